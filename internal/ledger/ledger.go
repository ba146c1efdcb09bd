// internal/ledger/ledger.go
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/fairlaunch/internal/bank"
	"github.com/rovshanmuradov/fairlaunch/internal/curve"
	"github.com/rovshanmuradov/fairlaunch/internal/domain"
	"github.com/rovshanmuradov/fairlaunch/internal/events"
)

// ErrStopped is returned for calls against a ledger whose actor loop has
// exited.
var ErrStopped = errors.New("ledger: actor stopped")

// Config tunes a ledger actor. Zero values fall back to defaults.
type Config struct {
	// RetryInitialInterval seeds the graduation resend backoff.
	RetryInitialInterval time.Duration
	// RetryMaxInterval caps the resend backoff.
	RetryMaxInterval time.Duration
	// InboxSize is the command channel buffer.
	InboxSize int
}

func (c Config) withDefaults() Config {
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = 500 * time.Millisecond
	}
	if c.RetryMaxInterval <= 0 {
		c.RetryMaxInterval = 30 * time.Second
	}
	if c.InboxSize <= 0 {
		c.InboxSize = 64
	}
	return c
}

// Ledger is the per-launch trading actor. All state lives behind a single
// processing goroutine fed by an inbox channel; public methods post closures
// and wait, so callers never observe partial updates.
type Ledger struct {
	state  *State
	funds  *bank.Bank
	bus    *events.Bus
	logger *zap.Logger
	cfg    Config
	clock  func() time.Time

	inbox    chan func()
	done     chan struct{}
	stopOnce func()

	resendCancel context.CancelFunc
}

// New creates a ledger actor. It does nothing until Run is called and
// Initialize delivers the launch parameters.
func New(funds *bank.Bank, bus *events.Bus, logger *zap.Logger, cfg Config) *Ledger {
	cfg = cfg.withDefaults()
	l := &Ledger{
		state:  NewState(),
		funds:  funds,
		bus:    bus,
		logger: logger.Named("ledger"),
		cfg:    cfg,
		clock:  time.Now,
		inbox:  make(chan func(), cfg.InboxSize),
		done:   make(chan struct{}),
	}
	var once bool
	l.stopOnce = func() {
		if !once {
			once = true
			close(l.done)
		}
	}
	return l
}

// Run processes commands until ctx is cancelled. It owns all state mutation;
// exactly one Run per ledger.
func (l *Ledger) Run(ctx context.Context) error {
	defer func() {
		l.stopResend()
		l.stopOnce()
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.inbox:
			fn()
		}
	}
}

// do posts fn to the actor loop and waits for it to execute.
func (l *Ledger) do(ctx context.Context, fn func()) error {
	executed := make(chan struct{})
	call := func() {
		fn()
		close(executed)
	}
	select {
	case l.inbox <- call:
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-executed:
		return nil
	case <-l.done:
		return ErrStopped
	}
}

// Initialize installs the launch parameters, moving the ledger to Active.
func (l *Ledger) Initialize(ctx context.Context, launchID string, creator domain.Account, metadata domain.TokenMetadata, cfg domain.CurveConfig) error {
	var err error
	if derr := l.do(ctx, func() {
		err = l.state.Initialize(launchID, creator, metadata, cfg, l.clock())
		if err == nil {
			l.logger = l.logger.With(zap.String("launch_id", launchID))
			l.logger.Info("Launch initialized",
				zap.String("creator", creator.String()),
				zap.String("symbol", metadata.Symbol))
		}
	}); derr != nil {
		return derr
	}
	return err
}

// Buy purchases amount tokens along the curve. maxCost of nil disables the
// slippage check.
func (l *Ledger) Buy(ctx context.Context, trader domain.Account, amount, maxCost *uint256.Int) (*Receipt, error) {
	var (
		receipt *Receipt
		err     error
	)
	if derr := l.do(ctx, func() {
		receipt, err = l.state.Buy(trader, amount, maxCost, l.clock(), l.funds)
		if err != nil {
			return
		}
		l.publishTrade(receipt)
		if receipt.GraduationTriggered {
			l.logger.Info("Supply cap reached, graduating",
				zap.String("supply", l.state.CurrentSupply().Dec()),
				zap.String("raised", l.state.TotalRaised().Dec()))
			l.startResend()
		}
	}); derr != nil {
		return nil, derr
	}
	return receipt, err
}

// Sell sells amount tokens back to the curve. minReturn of nil disables the
// slippage check.
func (l *Ledger) Sell(ctx context.Context, trader domain.Account, amount, minReturn *uint256.Int) (*Receipt, error) {
	var (
		receipt *Receipt
		err     error
	)
	if derr := l.do(ctx, func() {
		receipt, err = l.state.Sell(trader, amount, minReturn, l.clock(), l.funds)
		if err != nil {
			return
		}
		l.publishTrade(receipt)
	}); derr != nil {
		return nil, derr
	}
	return receipt, err
}

// Approve sets spender's allowance over owner's tokens.
func (l *Ledger) Approve(ctx context.Context, owner, spender domain.Account, amount *uint256.Int) error {
	var err error
	if derr := l.do(ctx, func() {
		err = l.state.Approve(owner, spender, amount)
	}); derr != nil {
		return derr
	}
	return err
}

// TransferFrom moves tokens between holders on behalf of an approved spender.
func (l *Ledger) TransferFrom(ctx context.Context, spender, from, to domain.Account, amount *uint256.Int) error {
	var err error
	if derr := l.do(ctx, func() {
		err = l.state.TransferFrom(spender, from, to, amount)
	}); derr != nil {
		return derr
	}
	return err
}

// Graduate manually closes the curve. Idempotent.
func (l *Ledger) Graduate(ctx context.Context) error {
	var err error
	if derr := l.do(ctx, func() {
		var changed bool
		changed, err = l.state.Graduate()
		if err == nil && changed {
			l.logger.Info("Manual graduation triggered")
			l.startResend()
		}
	}); derr != nil {
		return derr
	}
	return err
}

// HandlePoolCreated processes the pool's acknowledgement. Duplicates are
// harmless; the first ack stops the resend loop.
func (l *Ledger) HandlePoolCreated(ctx context.Context, poolID string) error {
	return l.do(ctx, func() {
		l.state.ApplyPoolCreated(poolID)
		l.stopResend()
		l.logger.Info("Pool acknowledged", zap.String("pool_id", poolID))
	})
}

// publishTrade broadcasts a committed trade. Runs on the actor goroutine.
func (l *Ledger) publishTrade(receipt *Receipt) {
	ev := &events.TradeExecuted{
		BaseEvent: events.BaseEvent{
			EventType: events.TradeExecutedType,
			EventTime: receipt.Trade.Timestamp,
		},
		LaunchID:       l.state.LaunchID(),
		Sequence:       l.state.TradeCount(),
		Trader:         receipt.Trade.Trader,
		IsBuy:          receipt.Trade.IsBuy,
		TokenAmount:    receipt.Trade.TokenAmount,
		CurrencyAmount: receipt.Trade.CurrencyAmount,
		NewPrice:       receipt.Trade.Price,
		CurrentSupply:  l.state.CurrentSupply(),
		TotalRaised:    l.state.TotalRaised(),
	}
	if err := l.bus.Publish(ev); err != nil {
		// Informational broadcast; the trade itself is already committed.
		l.logger.Warn("Failed to publish trade event", zap.Error(err))
	}
}

// --- queries ---

// Snapshot is a point-in-time read of the launch's headline numbers.
type Snapshot struct {
	LaunchID      string
	Creator       domain.Account
	Metadata      domain.TokenMetadata
	Curve         domain.CurveConfig
	Status        Status
	CurrentSupply *uint256.Int
	TotalRaised   *uint256.Int
	HolderCount   uint64
	TradeCount    uint64
	PoolID        string
	CreatedAt     time.Time
}

// Snapshot returns a consistent view of the launch state.
func (l *Ledger) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := l.do(ctx, func() {
		snap = Snapshot{
			LaunchID:      l.state.LaunchID(),
			Creator:       l.state.Creator(),
			Metadata:      l.state.Metadata(),
			Curve:         l.state.Curve(),
			Status:        l.state.Status(),
			CurrentSupply: l.state.CurrentSupply(),
			TotalRaised:   l.state.TotalRaised(),
			HolderCount:   l.state.HolderCount(),
			TradeCount:    l.state.TradeCount(),
			PoolID:        l.state.PoolID(),
			CreatedAt:     l.state.CreatedAt(),
		}
	})
	return snap, err
}

// Balance returns the holder's token balance.
func (l *Ledger) Balance(ctx context.Context, account domain.Account) (*uint256.Int, error) {
	var bal *uint256.Int
	err := l.do(ctx, func() { bal = l.state.Balance(account) })
	return bal, err
}

// Allowance returns spender's remaining allowance over owner's tokens.
func (l *Ledger) Allowance(ctx context.Context, owner, spender domain.Account) (*uint256.Int, error) {
	var a *uint256.Int
	err := l.do(ctx, func() { a = l.state.Allowance(owner, spender) })
	return a, err
}

// Position returns the trader's aggregate position, if any.
func (l *Ledger) Position(ctx context.Context, account domain.Account) (domain.Position, bool, error) {
	var (
		pos domain.Position
		ok  bool
	)
	err := l.do(ctx, func() { pos, ok = l.state.Position(account) })
	return pos, ok, err
}

// Trades returns a page of the trade log in execution order.
func (l *Ledger) Trades(ctx context.Context, offset, limit int) ([]domain.Trade, error) {
	var out []domain.Trade
	err := l.do(ctx, func() { out = l.state.Trades(offset, limit) })
	return out, err
}

// RecentTrades returns up to limit latest trades, newest first.
func (l *Ledger) RecentTrades(ctx context.Context, limit int) ([]domain.Trade, error) {
	var out []domain.Trade
	err := l.do(ctx, func() { out = l.state.RecentTrades(limit) })
	return out, err
}

// BuyQuote prices a prospective buy without executing it.
func (l *Ledger) BuyQuote(ctx context.Context, amount *uint256.Int) (*uint256.Int, error) {
	var (
		cost *uint256.Int
		err  error
	)
	if derr := l.do(ctx, func() {
		if amount == nil || amount.IsZero() {
			err = ErrInvalidAmount
			return
		}
		if err = l.state.requireActive(); err != nil {
			return
		}
		cfg := l.state.Curve()
		cost, err = curve.BuyCost(l.state.CurrentSupply(), amount, cfg.K, cfg.Scale)
	}); derr != nil {
		return nil, derr
	}
	return cost, err
}

// SellQuote prices a prospective sell without executing it.
func (l *Ledger) SellQuote(ctx context.Context, amount *uint256.Int) (*uint256.Int, error) {
	var (
		ret *uint256.Int
		err error
	)
	if derr := l.do(ctx, func() {
		if amount == nil || amount.IsZero() {
			err = ErrInvalidAmount
			return
		}
		if err = l.state.requireActive(); err != nil {
			return
		}
		cfg := l.state.Curve()
		ret, err = curve.SellReturn(l.state.CurrentSupply(), amount, cfg.K, cfg.Scale)
	}); derr != nil {
		return nil, derr
	}
	return ret, err
}

// SpotPrice returns the current curve price.
func (l *Ledger) SpotPrice(ctx context.Context) (*uint256.Int, error) {
	var (
		price *uint256.Int
		err   error
	)
	if derr := l.do(ctx, func() {
		cfg := l.state.Curve()
		price, err = curve.Price(l.state.CurrentSupply(), cfg.K, cfg.Scale)
	}); derr != nil {
		return nil, derr
	}
	return price, err
}
