// internal/pool/pool_test.go
package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/fairlaunch/internal/events"
)

func startManager(t *testing.T) (*Manager, *events.Bus) {
	t.Helper()
	bus := events.NewBus(zap.NewNop(), 64)
	m := NewManager(bus, zap.NewNop(), 16)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = m.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
		defer shutdownCancel()
		_ = bus.Shutdown(shutdownCtx)
	})
	return m, bus
}

func graduation(launchID string, supply, raised uint64) *events.GraduateToken {
	return &events.GraduateToken{
		BaseEvent:   events.BaseEvent{EventType: events.GraduateTokenType, EventTime: time.Now()},
		LaunchID:    launchID,
		TotalSupply: u(supply),
		TotalRaised: u(raised),
	}
}

func TestManager_GraduationCreatesPoolAndAcks(t *testing.T) {
	m, bus := startManager(t)
	ctx := context.Background()

	acks := make(chan string, 16)
	sub := bus.SubscribeFunc(events.PoolCreatedType, func(_ context.Context, ev events.Event) error {
		if msg, ok := ev.(*events.PoolCreated); ok {
			acks <- msg.PoolID
		}
		return nil
	})
	defer sub.Unsubscribe()

	// Delivery is at-least-once; publish until the pool materializes.
	require.Eventually(t, func() bool {
		_ = bus.Publish(graduation("launch-1", 1000, 500))
		_, ok, err := m.PoolByLaunch(ctx, "launch-1")
		return err == nil && ok
	}, 2*time.Second, 20*time.Millisecond)

	select {
	case id := <-acks:
		assert.Equal(t, "pool-launch-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("no pool acknowledgement received")
	}

	// Redelivery re-acks with the same id and creates nothing new.
	require.NoError(t, bus.Publish(graduation("launch-1", 9999, 1)))
	require.Eventually(t, func() bool {
		select {
		case id := <-acks:
			return id == "pool-launch-1"
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)

	count, _, err := m.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestManager_DropsMalformedGraduation(t *testing.T) {
	m, bus := startManager(t)
	ctx := context.Background()

	require.NoError(t, bus.Publish(graduation("launch-bad", 0, 500)))

	// Never creates a pool, never panics the actor.
	time.Sleep(100 * time.Millisecond)
	_, ok, err := m.PoolByLaunch(ctx, "launch-bad")
	require.NoError(t, err)
	assert.False(t, ok)

	// The actor is still alive.
	count, _, err := m.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestManager_SwapAndLockedLiquidity(t *testing.T) {
	m, bus := startManager(t)
	ctx := context.Background()

	require.Eventually(t, func() bool {
		_ = bus.Publish(graduation("launch-1", 1000, 1000))
		_, ok, err := m.PoolByLaunch(ctx, "launch-1")
		return err == nil && ok
	}, 2*time.Second, 20*time.Millisecond)

	res, err := m.Swap(ctx, "pool-launch-1", true, u(100), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(90), res.AmountOut.Uint64())

	// Locked forever: AddLiquidity is always rejected.
	err = m.AddLiquidity(ctx, "pool-launch-1", u(10), u(10))
	require.ErrorIs(t, err, ErrPoolLocked)

	price, err := m.SpotPrice(ctx, "pool-launch-1")
	require.NoError(t, err)
	// 910 * 1e6 / 1100.
	assert.Equal(t, uint64(827_272), price.Uint64())
}
