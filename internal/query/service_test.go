// internal/query/service_test.go
package query

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/fairlaunch/internal/domain"
	"github.com/rovshanmuradov/fairlaunch/internal/ledger"
)

type emptyDirectory struct{}

func (emptyDirectory) Ledger(string) (*ledger.Ledger, bool) { return nil, false }

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestService_UnknownLaunch(t *testing.T) {
	s := New(nil, nil, emptyDirectory{})
	ctx := context.Background()
	account := domain.Account{Chain: "main", Owner: "alice"}

	_, err := s.Balance(ctx, "missing", account)
	require.ErrorIs(t, err, ErrLaunchUnknown)
	_, err = s.BuyQuote(ctx, "missing", u(1))
	require.ErrorIs(t, err, ErrLaunchUnknown)
	_, _, err = s.Position(ctx, "missing", account)
	require.ErrorIs(t, err, ErrLaunchUnknown)
	_, err = s.RecentTrades(ctx, "missing", 10)
	require.ErrorIs(t, err, ErrLaunchUnknown)
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		name     string
		amount   *uint256.Int
		decimals int32
		want     string
	}{
		{"nil", nil, 6, "0"},
		{"no decimals", u(1234), 0, "1234"},
		{"six decimals", u(1_234_567), 6, "1.234567"},
		{"sub unit", u(69), 6, "0.000069"},
		{"large", new(uint256.Int).Lsh(u(1), 70), 0, "1180591620717411303424"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatAmount(tt.amount, tt.decimals))
		})
	}
}

func TestFormatProgress(t *testing.T) {
	assert.Equal(t, "50%", FormatProgress(u(34_500), u(69_000)))
	assert.Equal(t, "33.3%", FormatProgress(u(1), u(3)))
	assert.Equal(t, "0%", FormatProgress(u(0), u(69_000)))
	assert.Equal(t, "0%", FormatProgress(u(10), nil))
	assert.Equal(t, "0%", FormatProgress(u(10), u(0)))
	// Overshoot clamps at 100%.
	assert.Equal(t, "100%", FormatProgress(u(70_000), u(69_000)))
}
