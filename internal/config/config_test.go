// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, DefaultEventBufferSize, cfg.EventBufferSize)
	assert.Equal(t, DefaultActorInboxSize, cfg.ActorInboxSize)
	assert.Equal(t, DefaultGraduationRetryMS, cfg.GraduationRetryMS)
	assert.Equal(t, "fairlaunch.log", cfg.LogFile)
	assert.Equal(t, "fairlaunch.db", cfg.JournalPath)

	curve := cfg.CurveConfig()
	require.NoError(t, curve.Validate())
	assert.Equal(t, uint64(1000), curve.K.Uint64())
	assert.Equal(t, uint64(1_000_000_000), curve.MaxSupply.Uint64())
	assert.Equal(t, uint16(300), curve.CreatorFeeBps)
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_file: custom.log
event_buffer_size: 512
graduation_retry_ms: 250
graduation_retry_max_ms: 5000
default_curve:
  k: 500
  scale: 1000
  target_raise: 42000
  max_supply: 100000
  creator_fee_bps: 150
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "custom.log", cfg.LogFile)
	assert.Equal(t, 512, cfg.EventBufferSize)
	assert.Equal(t, 250, cfg.GraduationRetryMS)

	curve := cfg.CurveConfig()
	assert.Equal(t, uint64(500), curve.K.Uint64())
	assert.Equal(t, uint64(100_000), curve.MaxSupply.Uint64())
	assert.Equal(t, uint16(150), curve.CreatorFeeBps)
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()

	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		return path
	}

	_, err := LoadConfig(write("buf.yaml", "event_buffer_size: 0\n"))
	require.Error(t, err)

	_, err = LoadConfig(write("retry.yaml", "graduation_retry_ms: 100\ngraduation_retry_max_ms: 50\n"))
	require.Error(t, err)

	_, err = LoadConfig(write("curve.yaml", "default_curve:\n  max_supply: 1\n  scale: 1000\n"))
	require.Error(t, err)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
