// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"

	"github.com/rovshanmuradov/fairlaunch/internal/domain"
)

type Config struct {
	LogFile              string        `mapstructure:"log_file"`
	DebugLogging         bool          `mapstructure:"debug_logging"`
	EventBufferSize      int           `mapstructure:"event_buffer_size"`
	ActorInboxSize       int           `mapstructure:"actor_inbox_size"`
	JournalPath          string        `mapstructure:"journal_path"`
	GraduationRetryMS    int           `mapstructure:"graduation_retry_ms"`
	GraduationRetryMaxMS int           `mapstructure:"graduation_retry_max_ms"`
	DefaultCurve         CurveDefaults `mapstructure:"default_curve"`
}

// CurveDefaults are the platform-wide bonding-curve parameters applied to
// launches that do not bring their own.
type CurveDefaults struct {
	K             uint64 `mapstructure:"k"`
	Scale         uint64 `mapstructure:"scale"`
	TargetRaise   uint64 `mapstructure:"target_raise"`
	MaxSupply     uint64 `mapstructure:"max_supply"`
	CreatorFeeBps uint16 `mapstructure:"creator_fee_bps"`
}

const (
	DefaultEventBufferSize      = 256
	DefaultActorInboxSize       = 64
	DefaultGraduationRetryMS    = 500
	DefaultGraduationRetryMaxMS = 30000
)

// LoadConfig reads the config file at path, layering environment overrides
// (FAIRLAUNCH_ prefix) on top. An empty path uses defaults only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	defaults := map[string]interface{}{
		"log_file":                "fairlaunch.log",
		"event_buffer_size":       DefaultEventBufferSize,
		"actor_inbox_size":        DefaultActorInboxSize,
		"journal_path":            "fairlaunch.db",
		"graduation_retry_ms":     DefaultGraduationRetryMS,
		"graduation_retry_max_ms": DefaultGraduationRetryMaxMS,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	defaultCurve := domain.DefaultCurveConfig()
	v.SetDefault("default_curve.k", defaultCurve.K.Uint64())
	v.SetDefault("default_curve.scale", defaultCurve.Scale.Uint64())
	v.SetDefault("default_curve.target_raise", defaultCurve.TargetRaise.Uint64())
	v.SetDefault("default_curve.max_supply", defaultCurve.MaxSupply.Uint64())
	v.SetDefault("default_curve.creator_fee_bps", defaultCurve.CreatorFeeBps)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("FAIRLAUNCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if cfg.EventBufferSize <= 0 {
		return errors.New("invalid event_buffer_size")
	}
	if cfg.ActorInboxSize <= 0 {
		return errors.New("invalid actor_inbox_size")
	}
	if cfg.GraduationRetryMS <= 0 {
		return errors.New("invalid graduation_retry_ms")
	}
	if cfg.GraduationRetryMaxMS < cfg.GraduationRetryMS {
		return errors.New("graduation_retry_max_ms must be >= graduation_retry_ms")
	}
	curve := cfg.CurveConfig()
	if err := curve.Validate(); err != nil {
		return err
	}
	return nil
}

// CurveConfig converts the configured defaults into the domain type.
func (c *Config) CurveConfig() domain.CurveConfig {
	cfg := domain.DefaultCurveConfig()
	if c.DefaultCurve.K != 0 {
		cfg.K.SetUint64(c.DefaultCurve.K)
	}
	if c.DefaultCurve.Scale != 0 {
		cfg.Scale.SetUint64(c.DefaultCurve.Scale)
	}
	if c.DefaultCurve.TargetRaise != 0 {
		cfg.TargetRaise.SetUint64(c.DefaultCurve.TargetRaise)
	}
	if c.DefaultCurve.MaxSupply != 0 {
		cfg.MaxSupply.SetUint64(c.DefaultCurve.MaxSupply)
	}
	cfg.CreatorFeeBps = c.DefaultCurve.CreatorFeeBps
	return cfg
}
