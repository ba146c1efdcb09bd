// internal/domain/types.go
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/holiman/uint256"
)

// Validation errors shared by the registry and the ledger. Both reject an
// operation before any state is touched.
var (
	ErrInvalidMetadata    = errors.New("invalid metadata")
	ErrInvalidCurveConfig = errors.New("invalid curve config")
)

// Account identifies a funds/token owner. Chain is the logical chain the
// account lives on, Owner the key within it. The zero value is never a valid
// account.
type Account struct {
	Chain string
	Owner string
}

func (a Account) String() string {
	return a.Chain + ":" + a.Owner
}

// IsZero reports whether the account is unset.
func (a Account) IsZero() bool {
	return a.Chain == "" && a.Owner == ""
}

// TokenMetadata describes a launch. Optional fields are empty strings.
type TokenMetadata struct {
	Name        string
	Symbol      string
	Description string
	ImageURL    string
	Twitter     string
	Telegram    string
	Website     string
}

// Validate enforces the factory's metadata limits.
func (m *TokenMetadata) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: token name cannot be empty", ErrInvalidMetadata)
	}
	if strings.TrimSpace(m.Symbol) == "" {
		return fmt.Errorf("%w: token symbol cannot be empty", ErrInvalidMetadata)
	}
	if len(m.Name) > 100 {
		return fmt.Errorf("%w: token name too long (max 100 characters)", ErrInvalidMetadata)
	}
	if len(m.Symbol) > 20 {
		return fmt.Errorf("%w: token symbol too long (max 20 characters)", ErrInvalidMetadata)
	}
	if len(m.Description) > 1000 {
		return fmt.Errorf("%w: description too long (max 1000 characters)", ErrInvalidMetadata)
	}
	if m.ImageURL != "" && !hasPrefixAny(m.ImageURL, "http://", "https://", "ipfs://") {
		return fmt.Errorf("%w: invalid image URL format", ErrInvalidMetadata)
	}
	if m.Website != "" && !hasPrefixAny(m.Website, "http://", "https://") {
		return fmt.Errorf("%w: invalid website URL format", ErrInvalidMetadata)
	}
	return nil
}

func hasPrefixAny(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// CurveConfig holds the bonding-curve parameters. All fields are immutable
// after launch creation.
type CurveConfig struct {
	// K is the constant in price = k * (supply/scale)^2.
	K *uint256.Int
	// Scale normalizes supply (e.g. 1_000_000 for 1M tokens).
	Scale *uint256.Int
	// TargetRaise is the base-currency amount the curve aims to collect.
	TargetRaise *uint256.Int
	// MaxSupply is the cap at which the launch graduates.
	MaxSupply *uint256.Int
	// CreatorFeeBps is the creator fee in basis points (300 = 3%).
	CreatorFeeBps uint16
}

// DefaultCurveConfig mirrors the platform defaults: 3% creator fee, 1B token
// cap, 69k target raise.
func DefaultCurveConfig() CurveConfig {
	return CurveConfig{
		K:             uint256.NewInt(1000),
		Scale:         uint256.NewInt(1_000_000),
		TargetRaise:   uint256.NewInt(69_000),
		MaxSupply:     uint256.NewInt(1_000_000_000),
		CreatorFeeBps: 300,
	}
}

// Validate rejects configurations the pricing engine cannot serve.
func (c *CurveConfig) Validate() error {
	if c.K == nil || c.K.IsZero() {
		return fmt.Errorf("%w: k must be greater than zero", ErrInvalidCurveConfig)
	}
	if c.Scale == nil || c.Scale.IsZero() {
		return fmt.Errorf("%w: scale must be greater than zero", ErrInvalidCurveConfig)
	}
	if c.TargetRaise == nil || c.TargetRaise.IsZero() {
		return fmt.Errorf("%w: target_raise must be greater than zero", ErrInvalidCurveConfig)
	}
	if c.MaxSupply == nil || c.MaxSupply.IsZero() {
		return fmt.Errorf("%w: max_supply must be greater than zero", ErrInvalidCurveConfig)
	}
	if !c.MaxSupply.Gt(c.Scale) {
		return fmt.Errorf("%w: max_supply must exceed scale", ErrInvalidCurveConfig)
	}
	if c.CreatorFeeBps > 10000 {
		return fmt.Errorf("%w: creator_fee_bps out of range", ErrInvalidCurveConfig)
	}
	return nil
}

// Clone returns a deep copy so launches never alias curve parameters.
func (c CurveConfig) Clone() CurveConfig {
	return CurveConfig{
		K:             new(uint256.Int).Set(c.K),
		Scale:         new(uint256.Int).Set(c.Scale),
		TargetRaise:   new(uint256.Int).Set(c.TargetRaise),
		MaxSupply:     new(uint256.Int).Set(c.MaxSupply),
		CreatorFeeBps: c.CreatorFeeBps,
	}
}

// Launch is the registry's view of a token launch.
type Launch struct {
	ID            string
	Creator       Account
	Metadata      TokenMetadata
	Curve         CurveConfig
	CurrentSupply *uint256.Int
	TotalRaised   *uint256.Int
	Graduated     bool
	CreatedAt     time.Time
	// PoolID is set at most once, after graduation.
	PoolID string
}

// Trade is a single executed buy or sell, append-only and ordered by
// creation.
type Trade struct {
	ID             string
	LaunchID       string
	Trader         Account
	IsBuy          bool
	TokenAmount    *uint256.Int
	CurrencyAmount *uint256.Int
	// Price is the spot price after the trade.
	Price     *uint256.Int
	Timestamp time.Time
}

// Position aggregates an account's activity on one launch.
type Position struct {
	LaunchID      string
	Balance       *uint256.Int
	TotalInvested *uint256.Int
	TradeCount    uint64
}
