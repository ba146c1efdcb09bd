// internal/pool/pool.go
package pool

import (
	"context"
	"errors"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/fairlaunch/internal/events"
)

// ErrStopped is returned for calls against a manager whose actor loop has
// exited.
var ErrStopped = errors.New("pool: actor stopped")

// Manager is the liquidity-pool actor. Like the ledger, all state mutation
// happens on a single goroutine fed by an inbox channel.
type Manager struct {
	state  *State
	bus    *events.Bus
	logger *zap.Logger
	clock  func() time.Time

	inbox    chan func()
	done     chan struct{}
	stopOnce func()

	sub events.Subscription
}

// NewManager creates the pool actor. Call Run to start it.
func NewManager(bus *events.Bus, logger *zap.Logger, inboxSize int) *Manager {
	if inboxSize <= 0 {
		inboxSize = 64
	}
	m := &Manager{
		state:  NewState(),
		bus:    bus,
		logger: logger.Named("pool"),
		clock:  time.Now,
		inbox:  make(chan func(), inboxSize),
		done:   make(chan struct{}),
	}
	var once bool
	m.stopOnce = func() {
		if !once {
			once = true
			close(m.done)
		}
	}
	return m
}

// Run subscribes to graduation messages and processes commands until ctx is
// cancelled.
func (m *Manager) Run(ctx context.Context) error {
	m.sub = m.bus.SubscribeFunc(events.GraduateTokenType, func(hctx context.Context, ev events.Event) error {
		msg, ok := ev.(*events.GraduateToken)
		if !ok {
			return nil
		}
		return m.handleGraduation(hctx, msg)
	})
	defer func() {
		m.sub.Unsubscribe()
		m.stopOnce()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-m.inbox:
			fn()
		}
	}
}

func (m *Manager) do(ctx context.Context, fn func()) error {
	executed := make(chan struct{})
	call := func() {
		fn()
		close(executed)
	}
	select {
	case m.inbox <- call:
	case <-m.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-executed:
		return nil
	case <-m.done:
		return ErrStopped
	}
}

// handleGraduation creates (or finds) the launch's pool and publishes the
// PoolCreated acknowledgement. Duplicate messages re-ack with the same pool
// id. Malformed messages are logged and dropped, never retried into a loop.
func (m *Manager) handleGraduation(ctx context.Context, msg *events.GraduateToken) error {
	return m.do(ctx, func() {
		p, created, err := m.state.CreatePool(msg.LaunchID, msg.TotalSupply, msg.TotalRaised, m.clock())
		if err != nil {
			m.logger.Warn("Dropping invalid graduation message",
				zap.String("launch_id", msg.LaunchID),
				zap.Error(err))
			return
		}
		if created {
			m.logger.Info("Pool created",
				zap.String("pool_id", p.ID),
				zap.String("launch_id", p.LaunchID),
				zap.String("token_reserve", p.TokenReserve.Dec()),
				zap.String("currency_reserve", p.CurrencyReserve.Dec()))
		} else {
			m.logger.Debug("Duplicate graduation, re-acknowledging",
				zap.String("pool_id", p.ID),
				zap.String("launch_id", p.LaunchID))
		}
		m.ack(p)
	})
}

// ack publishes PoolCreated. Runs on the actor goroutine.
func (m *Manager) ack(p *Pool) {
	ev := &events.PoolCreated{
		BaseEvent: events.BaseEvent{
			EventType: events.PoolCreatedType,
			EventTime: m.clock(),
		},
		LaunchID: p.LaunchID,
		PoolID:   p.ID,
	}
	if err := m.bus.Publish(ev); err != nil {
		// The ledger's resend loop will trigger another ack.
		m.logger.Warn("Failed to publish pool acknowledgement",
			zap.String("pool_id", p.ID),
			zap.Error(err))
	}
}

// Swap executes a constant-product swap. tokenIn selects the direction.
func (m *Manager) Swap(ctx context.Context, poolID string, tokenIn bool, amountIn, minAmountOut *uint256.Int) (*SwapResult, error) {
	var (
		res *SwapResult
		err error
	)
	if derr := m.do(ctx, func() {
		res, err = m.state.Swap(poolID, tokenIn, amountIn, minAmountOut)
		if err == nil {
			m.logger.Debug("Swap executed",
				zap.String("pool_id", poolID),
				zap.Bool("token_in", tokenIn),
				zap.String("amount_in", res.AmountIn.Dec()),
				zap.String("amount_out", res.AmountOut.Dec()))
		}
	}); derr != nil {
		return nil, derr
	}
	return res, err
}

// AddLiquidity always fails: graduated liquidity is locked permanently and
// there is no owner path to withdraw or extend it.
func (m *Manager) AddLiquidity(ctx context.Context, poolID string, tokenAmount, currencyAmount *uint256.Int) error {
	var err error
	if derr := m.do(ctx, func() {
		m.logger.Debug("AddLiquidity rejected", zap.String("pool_id", poolID))
		err = ErrPoolLocked
	}); derr != nil {
		return derr
	}
	return err
}

// Pool returns a copy of the pool, if it exists.
func (m *Manager) Pool(ctx context.Context, poolID string) (*Pool, bool, error) {
	var (
		p  *Pool
		ok bool
	)
	err := m.do(ctx, func() { p, ok = m.state.Pool(poolID) })
	return p, ok, err
}

// PoolByLaunch returns a copy of the launch's pool, if it graduated.
func (m *Manager) PoolByLaunch(ctx context.Context, launchID string) (*Pool, bool, error) {
	var (
		p  *Pool
		ok bool
	)
	err := m.do(ctx, func() { p, ok = m.state.PoolByLaunch(launchID) })
	return p, ok, err
}

// Pools returns a page of pools ordered by creation time.
func (m *Manager) Pools(ctx context.Context, offset, limit int) ([]*Pool, error) {
	var out []*Pool
	err := m.do(ctx, func() { out = m.state.Pools(offset, limit) })
	return out, err
}

// SpotPrice returns the pool's currency-per-token price, scaled by 1e6.
func (m *Manager) SpotPrice(ctx context.Context, poolID string) (*uint256.Int, error) {
	var (
		price *uint256.Int
		err   error
	)
	if derr := m.do(ctx, func() { price, err = m.state.SpotPrice(poolID) }); derr != nil {
		return nil, derr
	}
	return price, err
}

// Totals returns pool count and cumulative TVL.
func (m *Manager) Totals(ctx context.Context) (uint64, *uint256.Int, error) {
	var (
		count uint64
		tvl   *uint256.Int
	)
	err := m.do(ctx, func() {
		count = m.state.TotalPools()
		tvl = m.state.TotalTVL()
	})
	return count, tvl, err
}
