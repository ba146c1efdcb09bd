// internal/query/service.go
package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/fairlaunch/internal/curve"
	"github.com/rovshanmuradov/fairlaunch/internal/domain"
	"github.com/rovshanmuradov/fairlaunch/internal/ledger"
	"github.com/rovshanmuradov/fairlaunch/internal/pool"
	"github.com/rovshanmuradov/fairlaunch/internal/registry"
)

// ErrLaunchUnknown is returned for queries against a launch the platform
// never created.
var ErrLaunchUnknown = errors.New("query: unknown launch")

// LedgerDirectory resolves a launch id to its live ledger actor.
type LedgerDirectory interface {
	Ledger(launchID string) (*ledger.Ledger, bool)
}

// Service is the read-only query facade over the registry, ledgers and pool
// manager. Writes never go through here.
type Service struct {
	registry *registry.Registry
	pools    *pool.Manager
	ledgers  LedgerDirectory
}

// New builds the query service.
func New(reg *registry.Registry, pools *pool.Manager, ledgers LedgerDirectory) *Service {
	return &Service{registry: reg, pools: pools, ledgers: ledgers}
}

// PlatformStats aggregates headline numbers across the platform.
type PlatformStats struct {
	TotalLaunches     int
	GraduatedLaunches int
	TotalRaised       *uint256.Int
	TotalPools        uint64
	TotalTVL          *uint256.Int
}

// Stats returns platform-wide aggregates.
func (s *Service) Stats(ctx context.Context) (PlatformStats, error) {
	agg, err := s.registry.Stats(ctx)
	if err != nil {
		return PlatformStats{}, err
	}
	pools, tvl, err := s.pools.Totals(ctx)
	if err != nil {
		return PlatformStats{}, err
	}
	return PlatformStats{
		TotalLaunches:     agg.Launches,
		GraduatedLaunches: agg.Graduated,
		TotalRaised:       agg.TotalRaised,
		TotalPools:        pools,
		TotalTVL:          tvl,
	}, nil
}

// Launch returns the registry view of one launch.
func (s *Service) Launch(ctx context.Context, launchID string) (*domain.Launch, error) {
	return s.registry.Launch(ctx, launchID)
}

// Launches pages through all launches in creation order.
func (s *Service) Launches(ctx context.Context, offset, limit int) ([]*domain.Launch, error) {
	return s.registry.Launches(ctx, offset, limit)
}

// LaunchesByCreator pages through a creator's launches.
func (s *Service) LaunchesByCreator(ctx context.Context, creator domain.Account, offset, limit int) ([]*domain.Launch, error) {
	return s.registry.LaunchesByCreator(ctx, creator, offset, limit)
}

// RecentLaunches returns the newest launches, newest first.
func (s *Service) RecentLaunches(ctx context.Context, limit int) ([]*domain.Launch, error) {
	return s.registry.RecentLaunches(ctx, limit)
}

// GraduatedLaunches pages through graduated launches.
func (s *Service) GraduatedLaunches(ctx context.Context, offset, limit int) ([]*domain.Launch, error) {
	return s.registry.GraduatedLaunches(ctx, offset, limit)
}

// Search finds launches by name or symbol substring.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]*domain.Launch, error) {
	return s.registry.Search(ctx, query, limit)
}

// Balance returns a holder's token balance on one launch.
func (s *Service) Balance(ctx context.Context, launchID string, account domain.Account) (*uint256.Int, error) {
	l, ok := s.ledgers.Ledger(launchID)
	if !ok {
		return nil, ErrLaunchUnknown
	}
	return l.Balance(ctx, account)
}

// Allowance returns spender's remaining allowance over owner's tokens.
func (s *Service) Allowance(ctx context.Context, launchID string, owner, spender domain.Account) (*uint256.Int, error) {
	l, ok := s.ledgers.Ledger(launchID)
	if !ok {
		return nil, ErrLaunchUnknown
	}
	return l.Allowance(ctx, owner, spender)
}

// Position returns a trader's aggregate position on one launch.
func (s *Service) Position(ctx context.Context, launchID string, account domain.Account) (domain.Position, bool, error) {
	l, ok := s.ledgers.Ledger(launchID)
	if !ok {
		return domain.Position{}, false, ErrLaunchUnknown
	}
	return l.Position(ctx, account)
}

// RecentTrades returns a launch's latest trades, newest first.
func (s *Service) RecentTrades(ctx context.Context, launchID string, limit int) ([]domain.Trade, error) {
	l, ok := s.ledgers.Ledger(launchID)
	if !ok {
		return nil, ErrLaunchUnknown
	}
	return l.RecentTrades(ctx, limit)
}

// Quote details a prospective trade: gross curve value, creator fee, the
// net that actually changes hands, and the spot price after execution.
type Quote struct {
	TokenAmount *uint256.Int
	Value       *uint256.Int
	Fee         *uint256.Int
	Net         *uint256.Int
	PriceAfter  *uint256.Int
}

// BuyQuote prices a prospective buy without executing it. Net is the portion
// pooled into the launch treasury after the creator fee.
func (s *Service) BuyQuote(ctx context.Context, launchID string, amount *uint256.Int) (*Quote, error) {
	l, ok := s.ledgers.Ledger(launchID)
	if !ok {
		return nil, ErrLaunchUnknown
	}
	cost, err := l.BuyQuote(ctx, amount)
	if err != nil {
		return nil, err
	}
	snap, err := l.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	after := new(uint256.Int).Add(snap.CurrentSupply, amount)
	priceAfter, err := curve.Price(after, snap.Curve.K, snap.Curve.Scale)
	if err != nil {
		return nil, err
	}
	fee := curve.Fee(cost, snap.Curve.CreatorFeeBps)
	return &Quote{
		TokenAmount: new(uint256.Int).Set(amount),
		Value:       cost,
		Fee:         fee,
		Net:         new(uint256.Int).Sub(cost, fee),
		PriceAfter:  priceAfter,
	}, nil
}

// SellQuote prices a prospective sell without executing it. Net is what the
// seller receives after the creator fee.
func (s *Service) SellQuote(ctx context.Context, launchID string, amount *uint256.Int) (*Quote, error) {
	l, ok := s.ledgers.Ledger(launchID)
	if !ok {
		return nil, ErrLaunchUnknown
	}
	ret, err := l.SellQuote(ctx, amount)
	if err != nil {
		return nil, err
	}
	snap, err := l.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	after := new(uint256.Int)
	if !amount.Gt(snap.CurrentSupply) {
		after.Sub(snap.CurrentSupply, amount)
	}
	priceAfter, err := curve.Price(after, snap.Curve.K, snap.Curve.Scale)
	if err != nil {
		return nil, err
	}
	fee := curve.Fee(ret, snap.Curve.CreatorFeeBps)
	return &Quote{
		TokenAmount: new(uint256.Int).Set(amount),
		Value:       ret,
		Fee:         fee,
		Net:         new(uint256.Int).Sub(ret, fee),
		PriceAfter:  priceAfter,
	}, nil
}

// CurvePrice returns a launch's spot price on the bonding curve.
func (s *Service) CurvePrice(ctx context.Context, launchID string) (*uint256.Int, error) {
	l, ok := s.ledgers.Ledger(launchID)
	if !ok {
		return nil, ErrLaunchUnknown
	}
	return l.SpotPrice(ctx)
}

// Pool returns the launch's pool, if it graduated.
func (s *Service) Pool(ctx context.Context, launchID string) (*pool.Pool, bool, error) {
	return s.pools.PoolByLaunch(ctx, launchID)
}

// PoolPrice returns a pool's currency-per-token price, scaled by 1e6.
func (s *Service) PoolPrice(ctx context.Context, poolID string) (*uint256.Int, error) {
	return s.pools.SpotPrice(ctx, poolID)
}

// FormatAmount renders a raw amount with the given number of decimals, for
// display. 256-bit values round-trip through decimal strings.
func FormatAmount(amount *uint256.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	d, err := decimal.NewFromString(amount.Dec())
	if err != nil {
		return amount.Dec()
	}
	return d.Shift(-decimals).String()
}

// FormatProgress renders raised/target as a percentage string like "42.3%".
func FormatProgress(raised, target *uint256.Int) string {
	if raised == nil || target == nil || target.IsZero() {
		return "0%"
	}
	r, err1 := decimal.NewFromString(raised.Dec())
	t, err2 := decimal.NewFromString(target.Dec())
	if err1 != nil || err2 != nil {
		return "0%"
	}
	pct := r.Div(t).Mul(decimal.NewFromInt(100)).Round(1)
	hundred := decimal.NewFromInt(100)
	if pct.GreaterThan(hundred) {
		pct = hundred
	}
	return fmt.Sprintf("%s%%", pct.String())
}
