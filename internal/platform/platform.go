// internal/platform/platform.go
package platform

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/fairlaunch/internal/bank"
	"github.com/rovshanmuradov/fairlaunch/internal/config"
	"github.com/rovshanmuradov/fairlaunch/internal/domain"
	"github.com/rovshanmuradov/fairlaunch/internal/eventlog"
	"github.com/rovshanmuradov/fairlaunch/internal/events"
	"github.com/rovshanmuradov/fairlaunch/internal/ledger"
	"github.com/rovshanmuradov/fairlaunch/internal/pool"
	"github.com/rovshanmuradov/fairlaunch/internal/query"
	"github.com/rovshanmuradov/fairlaunch/internal/registry"
)

// ErrUnknownLaunch is returned for operations against a launch id the
// platform never created.
var ErrUnknownLaunch = errors.New("platform: unknown launch")

// Platform assembles the launch economy: registry, per-launch ledger actors,
// the pool manager, the funds bank and the trade journal, all connected by
// the event bus.
type Platform struct {
	cfg    *config.Config
	logger *zap.Logger

	bus     *events.Bus
	funds   *bank.Bank
	reg     *registry.Registry
	pools   *pool.Manager
	journal *eventlog.Journal
	queries *query.Service

	mu      sync.RWMutex
	ledgers map[string]*ledger.Ledger

	g      *errgroup.Group
	gctx   context.Context
	cancel context.CancelFunc
	subs   []events.Subscription

	// started and stopping are guarded by mu together with ledgers, so no
	// ledger goroutine can be added to g once Shutdown has begun waiting.
	started  bool
	stopping bool
}

// New builds an unstarted platform. A nil journal path in the config
// disables trade persistence.
func New(cfg *config.Config, logger *zap.Logger) (*Platform, error) {
	p := &Platform{
		cfg:     cfg,
		logger:  logger.Named("platform"),
		funds:   bank.New(),
		ledgers: make(map[string]*ledger.Ledger),
	}
	p.bus = events.NewBus(logger, cfg.EventBufferSize)
	p.reg = registry.New(p.bus, logger, cfg.ActorInboxSize)
	p.pools = pool.NewManager(p.bus, logger, cfg.ActorInboxSize)
	p.queries = query.New(p.reg, p.pools, p)

	if cfg.JournalPath != "" {
		journal, err := eventlog.Open(cfg.JournalPath, logger)
		if err != nil {
			return nil, err
		}
		p.journal = journal
	}
	return p, nil
}

// Start launches the actor loops and wires the event subscriptions. Call
// Shutdown to stop.
func (p *Platform) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return errors.New("platform: already started")
	}
	p.started = true
	p.mu.Unlock()

	gctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.g, p.gctx = errgroup.WithContext(gctx)

	p.g.Go(func() error { return ignoreCanceled(p.reg.Run(p.gctx)) })
	p.g.Go(func() error { return ignoreCanceled(p.pools.Run(p.gctx)) })

	// Every registered launch gets a ledger actor. The subscription covers
	// callers that talk to the registry directly; CreateToken also spawns
	// synchronously so the launch is tradable on return.
	p.subs = append(p.subs, p.bus.SubscribeFunc(events.TokenCreatedType, func(hctx context.Context, ev events.Event) error {
		msg, ok := ev.(*events.TokenCreated)
		if !ok {
			return nil
		}
		_, err := p.spawnLedger(msg.LaunchID, msg.Creator, msg.Metadata, msg.Curve)
		return err
	}))
	// Route pool acknowledgements to the owning ledger.
	p.subs = append(p.subs, p.bus.SubscribeFunc(events.PoolCreatedType, func(hctx context.Context, ev events.Event) error {
		msg, ok := ev.(*events.PoolCreated)
		if !ok {
			return nil
		}
		if l, ok := p.Ledger(msg.LaunchID); ok {
			return l.HandlePoolCreated(hctx, msg.PoolID)
		}
		return nil
	}))

	if p.journal != nil {
		p.journal.Attach(p.bus)
	}

	p.logger.Info("Platform started",
		zap.Int("event_buffer", p.cfg.EventBufferSize),
		zap.String("journal", p.cfg.JournalPath))
	return nil
}

// spawnLedger creates, runs and initializes the launch's ledger actor.
// Idempotent: a second call for the same launch returns the existing actor.
func (p *Platform) spawnLedger(launchID string, creator domain.Account, metadata domain.TokenMetadata, curveCfg domain.CurveConfig) (*ledger.Ledger, error) {
	p.mu.Lock()
	if !p.started || p.stopping {
		p.mu.Unlock()
		return nil, errors.New("platform: not running")
	}
	if l, ok := p.ledgers[launchID]; ok {
		p.mu.Unlock()
		return l, nil
	}
	l := ledger.New(p.funds, p.bus, p.logger, ledger.Config{
		RetryInitialInterval: time.Duration(p.cfg.GraduationRetryMS) * time.Millisecond,
		RetryMaxInterval:     time.Duration(p.cfg.GraduationRetryMaxMS) * time.Millisecond,
		InboxSize:            p.cfg.ActorInboxSize,
	})
	p.ledgers[launchID] = l
	// Register with the supervisor before releasing mu: Shutdown flips
	// stopping under the same lock, so it cannot start waiting on the group
	// between the map write and this Go call.
	p.g.Go(func() error { return ignoreCanceled(l.Run(p.gctx)) })
	p.mu.Unlock()

	if err := l.Initialize(p.gctx, launchID, creator, metadata, curveCfg); err != nil &&
		!errors.Is(err, ledger.ErrAlreadyInitialized) {
		return nil, err
	}
	return l, nil
}

// Ledger resolves a launch id to its live ledger actor.
func (p *Platform) Ledger(launchID string) (*ledger.Ledger, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	l, ok := p.ledgers[launchID]
	return l, ok
}

// CreateToken registers a launch and spawns its ledger. The launch is
// tradable when this returns.
func (p *Platform) CreateToken(ctx context.Context, creator domain.Account, metadata domain.TokenMetadata, curveCfg *domain.CurveConfig) (string, error) {
	launchID, err := p.reg.CreateToken(ctx, creator, metadata, curveCfg)
	if err != nil {
		return "", err
	}
	resolved := curveCfg
	if resolved == nil {
		cfg := p.cfg.CurveConfig()
		resolved = &cfg
	}
	if _, err := p.spawnLedger(launchID, creator, metadata, *resolved); err != nil {
		return "", err
	}
	return launchID, nil
}

// Buy purchases tokens on a launch's bonding curve.
func (p *Platform) Buy(ctx context.Context, launchID string, trader domain.Account, amount, maxCost *uint256.Int) (*ledger.Receipt, error) {
	l, ok := p.Ledger(launchID)
	if !ok {
		return nil, ErrUnknownLaunch
	}
	return l.Buy(ctx, trader, amount, maxCost)
}

// Sell sells tokens back to a launch's bonding curve.
func (p *Platform) Sell(ctx context.Context, launchID string, trader domain.Account, amount, minReturn *uint256.Int) (*ledger.Receipt, error) {
	l, ok := p.Ledger(launchID)
	if !ok {
		return nil, ErrUnknownLaunch
	}
	return l.Sell(ctx, trader, amount, minReturn)
}

// Approve sets a spender allowance on a launch's token.
func (p *Platform) Approve(ctx context.Context, launchID string, owner, spender domain.Account, amount *uint256.Int) error {
	l, ok := p.Ledger(launchID)
	if !ok {
		return ErrUnknownLaunch
	}
	return l.Approve(ctx, owner, spender, amount)
}

// TransferFrom moves tokens on behalf of an approved spender.
func (p *Platform) TransferFrom(ctx context.Context, launchID string, spender, from, to domain.Account, amount *uint256.Int) error {
	l, ok := p.Ledger(launchID)
	if !ok {
		return ErrUnknownLaunch
	}
	return l.TransferFrom(ctx, spender, from, to, amount)
}

// Graduate manually closes a launch's curve.
func (p *Platform) Graduate(ctx context.Context, launchID string) error {
	l, ok := p.Ledger(launchID)
	if !ok {
		return ErrUnknownLaunch
	}
	return l.Graduate(ctx)
}

// Swap trades against a graduated launch's locked pool.
func (p *Platform) Swap(ctx context.Context, poolID string, tokenIn bool, amountIn, minAmountOut *uint256.Int) (*pool.SwapResult, error) {
	return p.pools.Swap(ctx, poolID, tokenIn, amountIn, minAmountOut)
}

// Registry exposes the launch directory.
func (p *Platform) Registry() *registry.Registry { return p.reg }

// Pools exposes the pool manager.
func (p *Platform) Pools() *pool.Manager { return p.pools }

// Queries exposes the read-only query facade.
func (p *Platform) Queries() *query.Service { return p.queries }

// Funds exposes the native-currency bank.
func (p *Platform) Funds() *bank.Bank { return p.funds }

// Journal exposes the trade journal, nil when persistence is disabled.
func (p *Platform) Journal() *eventlog.Journal { return p.journal }

// Shutdown stops the actors, flushes the bus and closes the journal.
func (p *Platform) Shutdown(ctx context.Context) error {
	p.logger.Info("Shutting down platform")
	for _, s := range p.subs {
		s.Unsubscribe()
	}
	p.mu.Lock()
	p.stopping = true
	p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
	var errs []error
	if p.g != nil {
		if err := p.g.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.bus.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if p.journal != nil {
		if err := p.journal.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
