// internal/domain/types_test.go
package domain

import (
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMetadata() TokenMetadata {
	return TokenMetadata{
		Name:   "Moon Token",
		Symbol: "MOON",
	}
}

func TestTokenMetadata_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TokenMetadata)
		wantErr bool
	}{
		{"valid minimal", func(m *TokenMetadata) {}, false},
		{"empty name", func(m *TokenMetadata) { m.Name = "  " }, true},
		{"empty symbol", func(m *TokenMetadata) { m.Symbol = "" }, true},
		{"name too long", func(m *TokenMetadata) { m.Name = strings.Repeat("a", 101) }, true},
		{"symbol too long", func(m *TokenMetadata) { m.Symbol = strings.Repeat("A", 21) }, true},
		{"description too long", func(m *TokenMetadata) { m.Description = strings.Repeat("d", 1001) }, true},
		{"https image", func(m *TokenMetadata) { m.ImageURL = "https://img.example/x.png" }, false},
		{"ipfs image", func(m *TokenMetadata) { m.ImageURL = "ipfs://Qm123" }, false},
		{"bad image scheme", func(m *TokenMetadata) { m.ImageURL = "ftp://img.example/x.png" }, true},
		{"valid website", func(m *TokenMetadata) { m.Website = "https://example.com" }, false},
		{"ipfs website rejected", func(m *TokenMetadata) { m.Website = "ipfs://Qm123" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMetadata()
			tt.mutate(&m)
			err := m.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidMetadata)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestCurveConfig_Validate(t *testing.T) {
	valid := DefaultCurveConfig()
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*CurveConfig)
	}{
		{"zero k", func(c *CurveConfig) { c.K = uint256.NewInt(0) }},
		{"nil scale", func(c *CurveConfig) { c.Scale = nil }},
		{"zero target raise", func(c *CurveConfig) { c.TargetRaise = uint256.NewInt(0) }},
		{"zero max supply", func(c *CurveConfig) { c.MaxSupply = uint256.NewInt(0) }},
		{"max supply below scale", func(c *CurveConfig) { c.MaxSupply = uint256.NewInt(10) }},
		{"fee above 100 percent", func(c *CurveConfig) { c.CreatorFeeBps = 10001 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultCurveConfig()
			tt.mutate(&c)
			require.ErrorIs(t, c.Validate(), ErrInvalidCurveConfig)
		})
	}
}

func TestCurveConfig_CloneIsDeep(t *testing.T) {
	orig := DefaultCurveConfig()
	cp := orig.Clone()
	cp.K.SetUint64(42)
	assert.Equal(t, uint64(1000), orig.K.Uint64())
}

func TestAccount(t *testing.T) {
	a := Account{Chain: "main", Owner: "alice"}
	assert.Equal(t, "main:alice", a.String())
	assert.False(t, a.IsZero())
	assert.True(t, Account{}.IsZero())
}
