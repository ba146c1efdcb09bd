// internal/registry/registry.go
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/fairlaunch/internal/domain"
	"github.com/rovshanmuradov/fairlaunch/internal/events"
)

// ErrStopped is returned for calls against a registry whose actor loop has
// exited.
var ErrStopped = errors.New("registry: actor stopped")

// NotFoundError reports a lookup of an unknown launch.
type NotFoundError struct {
	LaunchID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("registry: launch %s not found", e.LaunchID)
}

// Registry is the launch factory and directory. It validates launch
// parameters, assigns ids, announces new launches on the bus and keeps an
// aggregate view of every launch updated from trade and graduation events.
//
// The actor pattern matches the ledger: one goroutine owns the maps.
type Registry struct {
	logger *zap.Logger
	bus    *events.Bus
	clock  func() time.Time

	launches map[string]*domain.Launch
	// order is the creation-ordered index behind pagination.
	order []string
	// byCreator maps each creator account to its launch ids, in creation
	// order.
	byCreator map[domain.Account][]string
	// lastTradeSeq tracks the highest trade sequence applied per launch, so
	// out-of-order TradeExecuted deliveries cannot roll the view backwards.
	lastTradeSeq map[string]uint64

	inbox    chan func()
	done     chan struct{}
	stopOnce func()

	subs []events.Subscription
}

// New creates the registry actor. Call Run to start it.
func New(bus *events.Bus, logger *zap.Logger, inboxSize int) *Registry {
	if inboxSize <= 0 {
		inboxSize = 64
	}
	r := &Registry{
		logger:       logger.Named("registry"),
		bus:          bus,
		clock:        time.Now,
		launches:     make(map[string]*domain.Launch),
		byCreator:    make(map[domain.Account][]string),
		lastTradeSeq: make(map[string]uint64),
		inbox:        make(chan func(), inboxSize),
		done:         make(chan struct{}),
	}
	var once bool
	r.stopOnce = func() {
		if !once {
			once = true
			close(r.done)
		}
	}
	return r
}

// Run subscribes to launch lifecycle events and processes commands until ctx
// is cancelled.
func (r *Registry) Run(ctx context.Context) error {
	r.subs = []events.Subscription{
		r.bus.SubscribeFunc(events.TradeExecutedType, func(hctx context.Context, ev events.Event) error {
			if msg, ok := ev.(*events.TradeExecuted); ok {
				return r.applyTrade(hctx, msg)
			}
			return nil
		}),
		r.bus.SubscribeFunc(events.GraduateTokenType, func(hctx context.Context, ev events.Event) error {
			if msg, ok := ev.(*events.GraduateToken); ok {
				return r.applyGraduation(hctx, msg)
			}
			return nil
		}),
		r.bus.SubscribeFunc(events.PoolCreatedType, func(hctx context.Context, ev events.Event) error {
			if msg, ok := ev.(*events.PoolCreated); ok {
				return r.applyPoolCreated(hctx, msg)
			}
			return nil
		}),
	}
	defer func() {
		for _, s := range r.subs {
			s.Unsubscribe()
		}
		r.stopOnce()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-r.inbox:
			fn()
		}
	}
}

func (r *Registry) do(ctx context.Context, fn func()) error {
	executed := make(chan struct{})
	call := func() {
		fn()
		close(executed)
	}
	select {
	case r.inbox <- call:
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-executed:
		return nil
	case <-r.done:
		return ErrStopped
	}
}

// CreateToken validates the launch parameters, registers the launch and
// announces it. A nil curve config uses the platform defaults. Returns the
// new launch id.
func (r *Registry) CreateToken(ctx context.Context, creator domain.Account, metadata domain.TokenMetadata, cfg *domain.CurveConfig) (string, error) {
	var (
		launchID string
		err      error
	)
	if derr := r.do(ctx, func() {
		launchID, err = r.createToken(creator, metadata, cfg)
	}); derr != nil {
		return "", derr
	}
	return launchID, err
}

// createToken runs on the actor goroutine.
func (r *Registry) createToken(creator domain.Account, metadata domain.TokenMetadata, cfg *domain.CurveConfig) (string, error) {
	if creator.IsZero() {
		return "", fmt.Errorf("%w: creator account required", domain.ErrInvalidMetadata)
	}
	if err := metadata.Validate(); err != nil {
		return "", err
	}

	var curve domain.CurveConfig
	if cfg == nil {
		curve = domain.DefaultCurveConfig()
	} else {
		curve = cfg.Clone()
	}
	if err := curve.Validate(); err != nil {
		return "", err
	}

	id := uuid.New().String()
	now := r.clock()
	launch := &domain.Launch{
		ID:            id,
		Creator:       creator,
		Metadata:      metadata,
		Curve:         curve,
		CurrentSupply: uint256.NewInt(0),
		TotalRaised:   uint256.NewInt(0),
		CreatedAt:     now,
	}
	r.launches[id] = launch
	r.order = append(r.order, id)
	r.byCreator[creator] = append(r.byCreator[creator], id)

	r.logger.Info("Launch registered",
		zap.String("launch_id", id),
		zap.String("creator", creator.String()),
		zap.String("symbol", metadata.Symbol))

	// TokenCreated drives ledger initialization; NewLaunch is the public
	// broadcast.
	if err := r.bus.Publish(&events.TokenCreated{
		BaseEvent: events.BaseEvent{EventType: events.TokenCreatedType, EventTime: now},
		LaunchID:  id,
		Creator:   creator,
		Metadata:  metadata,
		Curve:     curve.Clone(),
	}); err != nil {
		r.logger.Warn("Failed to publish token creation", zap.Error(err))
	}
	if err := r.bus.Publish(&events.NewLaunch{
		BaseEvent: events.BaseEvent{EventType: events.NewLaunchType, EventTime: now},
		LaunchID:  id,
		Creator:   creator,
		Metadata:  metadata,
	}); err != nil {
		r.logger.Warn("Failed to publish launch broadcast", zap.Error(err))
	}
	return id, nil
}

// applyTrade refreshes the launch's aggregate view from a trade broadcast.
// Deliveries can arrive out of order; only a snapshot newer than the last
// applied one may overwrite the view.
func (r *Registry) applyTrade(ctx context.Context, msg *events.TradeExecuted) error {
	return r.do(ctx, func() {
		launch, ok := r.launches[msg.LaunchID]
		if !ok {
			return
		}
		if msg.Sequence <= r.lastTradeSeq[msg.LaunchID] {
			return
		}
		r.lastTradeSeq[msg.LaunchID] = msg.Sequence
		if msg.CurrentSupply != nil {
			launch.CurrentSupply.Set(msg.CurrentSupply)
		}
		if msg.TotalRaised != nil {
			launch.TotalRaised.Set(msg.TotalRaised)
		}
	})
}

// applyGraduation marks the launch graduated. Safe on duplicates.
func (r *Registry) applyGraduation(ctx context.Context, msg *events.GraduateToken) error {
	return r.do(ctx, func() {
		launch, ok := r.launches[msg.LaunchID]
		if !ok {
			return
		}
		if !launch.Graduated {
			launch.Graduated = true
			r.logger.Info("Launch graduated", zap.String("launch_id", msg.LaunchID))
		}
		if msg.TotalSupply != nil {
			launch.CurrentSupply.Set(msg.TotalSupply)
		}
		if msg.TotalRaised != nil {
			launch.TotalRaised.Set(msg.TotalRaised)
		}
	})
}

// applyPoolCreated records the launch's pool id. Safe on duplicates.
func (r *Registry) applyPoolCreated(ctx context.Context, msg *events.PoolCreated) error {
	return r.do(ctx, func() {
		launch, ok := r.launches[msg.LaunchID]
		if !ok {
			return
		}
		launch.Graduated = true
		if launch.PoolID == "" {
			launch.PoolID = msg.PoolID
		}
	})
}

// Launch returns a copy of one launch.
func (r *Registry) Launch(ctx context.Context, launchID string) (*domain.Launch, error) {
	var (
		out *domain.Launch
		err error
	)
	if derr := r.do(ctx, func() {
		launch, ok := r.launches[launchID]
		if !ok {
			err = &NotFoundError{LaunchID: launchID}
			return
		}
		out = cloneLaunch(launch)
	}); derr != nil {
		return nil, derr
	}
	return out, err
}

// Launches returns a page of launches in creation order.
func (r *Registry) Launches(ctx context.Context, offset, limit int) ([]*domain.Launch, error) {
	var out []*domain.Launch
	err := r.do(ctx, func() {
		out = r.page(r.order, offset, limit)
	})
	return out, err
}

// LaunchesByCreator returns a creator's launches in creation order.
func (r *Registry) LaunchesByCreator(ctx context.Context, creator domain.Account, offset, limit int) ([]*domain.Launch, error) {
	var out []*domain.Launch
	err := r.do(ctx, func() {
		out = r.page(r.byCreator[creator], offset, limit)
	})
	return out, err
}

// RecentLaunches returns up to limit newest launches, newest first.
func (r *Registry) RecentLaunches(ctx context.Context, limit int) ([]*domain.Launch, error) {
	var out []*domain.Launch
	err := r.do(ctx, func() {
		if limit <= 0 {
			return
		}
		n := len(r.order)
		if limit > n {
			limit = n
		}
		out = make([]*domain.Launch, 0, limit)
		for i := 0; i < limit; i++ {
			out = append(out, cloneLaunch(r.launches[r.order[n-1-i]]))
		}
	})
	return out, err
}

// GraduatedLaunches returns a page of graduated launches in creation order.
func (r *Registry) GraduatedLaunches(ctx context.Context, offset, limit int) ([]*domain.Launch, error) {
	var out []*domain.Launch
	err := r.do(ctx, func() {
		var graduated []string
		for _, id := range r.order {
			if r.launches[id].Graduated {
				graduated = append(graduated, id)
			}
		}
		out = r.page(graduated, offset, limit)
	})
	return out, err
}

// Search returns launches whose name or symbol contains the query,
// case-insensitive, in creation order.
func (r *Registry) Search(ctx context.Context, query string, limit int) ([]*domain.Launch, error) {
	var out []*domain.Launch
	err := r.do(ctx, func() {
		q := strings.ToLower(strings.TrimSpace(query))
		if q == "" || limit <= 0 {
			return
		}
		for _, id := range r.order {
			launch := r.launches[id]
			if strings.Contains(strings.ToLower(launch.Metadata.Name), q) ||
				strings.Contains(strings.ToLower(launch.Metadata.Symbol), q) {
				out = append(out, cloneLaunch(launch))
				if len(out) == limit {
					return
				}
			}
		}
	})
	return out, err
}

// Count returns the total number of launches.
func (r *Registry) Count(ctx context.Context) (int, error) {
	var n int
	err := r.do(ctx, func() { n = len(r.order) })
	return n, err
}

// Aggregates sums headline numbers across all launches.
type Aggregates struct {
	Launches    int
	Graduated   int
	TotalRaised *uint256.Int
}

// Stats returns platform-wide launch aggregates.
func (r *Registry) Stats(ctx context.Context) (Aggregates, error) {
	agg := Aggregates{TotalRaised: uint256.NewInt(0)}
	err := r.do(ctx, func() {
		agg.Launches = len(r.order)
		for _, launch := range r.launches {
			if launch.Graduated {
				agg.Graduated++
			}
			agg.TotalRaised.Add(agg.TotalRaised, launch.TotalRaised)
		}
	})
	return agg, err
}

// page runs on the actor goroutine.
func (r *Registry) page(ids []string, offset, limit int) []*domain.Launch {
	if offset < 0 || offset >= len(ids) || limit <= 0 {
		return nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	out := make([]*domain.Launch, 0, end-offset)
	for _, id := range ids[offset:end] {
		out = append(out, cloneLaunch(r.launches[id]))
	}
	return out
}

func cloneLaunch(l *domain.Launch) *domain.Launch {
	cp := *l
	cp.Curve = l.Curve.Clone()
	cp.CurrentSupply = new(uint256.Int).Set(l.CurrentSupply)
	cp.TotalRaised = new(uint256.Int).Set(l.TotalRaised)
	return &cp
}
