// internal/events/types.go
package events

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/rovshanmuradov/fairlaunch/internal/domain"
)

// EventType represents the type of message on the bus.
type EventType string

const (
	// Registry → Ledger: a launch was registered, initialize its ledger.
	TokenCreatedType EventType = "token.created"

	// Registry → All: informational launch broadcast.
	NewLaunchType EventType = "launch.new"

	// Ledger → All: informational trade broadcast.
	TradeExecutedType EventType = "trade.executed"

	// Ledger → Pool: supply cap reached, lock liquidity. At-least-once.
	GraduateTokenType EventType = "token.graduate"

	// Pool → Ledger/Registry: pool materialized (possibly re-acked).
	PoolCreatedType EventType = "pool.created"
)

// Event is the base interface for all bus messages. Payloads are fully
// self-describing: handlers never reach back into sender state.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// TokenCreated initializes a freshly registered launch's ledger.
type TokenCreated struct {
	BaseEvent
	LaunchID string
	Creator  domain.Account
	Metadata domain.TokenMetadata
	Curve    domain.CurveConfig
}

// NewLaunch is the registry's launch broadcast.
type NewLaunch struct {
	BaseEvent
	LaunchID string
	Creator  domain.Account
	Metadata domain.TokenMetadata
}

// TradeExecuted is emitted after every committed buy or sell. Supply and
// raised totals ride along so index views need no callback into the ledger.
type TradeExecuted struct {
	BaseEvent
	LaunchID string
	// Sequence is the ledger's trade counter after this trade, starting at 1.
	// Dispatch is per-event, so snapshots can arrive out of order; views keep
	// only the highest sequence seen per launch.
	Sequence       uint64
	Trader         domain.Account
	IsBuy          bool
	TokenAmount    *uint256.Int
	CurrencyAmount *uint256.Int
	NewPrice       *uint256.Int
	CurrentSupply  *uint256.Int
	TotalRaised    *uint256.Int
}

// GraduateToken asks the pool actor to lock liquidity for a completed curve.
// Delivery is at-least-once; the pool must deduplicate by launch id.
type GraduateToken struct {
	BaseEvent
	LaunchID    string
	TotalSupply *uint256.Int
	TotalRaised *uint256.Int
}

// PoolCreated acknowledges pool creation back to the ledger and registry.
// Duplicate acks carry the same pool id and must be harmless.
type PoolCreated struct {
	BaseEvent
	LaunchID string
	PoolID   string
}
