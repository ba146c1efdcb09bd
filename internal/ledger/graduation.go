// internal/ledger/graduation.go
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/fairlaunch/internal/events"
)

var errAwaitingAck = errors.New("ledger: graduation not yet acknowledged")

// startResend launches the at-least-once graduation delivery loop: publish
// GraduateToken, back off, and repeat until the pool acknowledges with
// PoolCreated. Runs on the actor goroutine; at most one loop per ledger.
func (l *Ledger) startResend() {
	if l.resendCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.resendCancel = cancel

	launchID := l.state.LaunchID()
	supply := l.state.CurrentSupply()
	raised := l.state.TotalRaised()

	go func() {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = l.cfg.RetryInitialInterval
		bo.MaxInterval = l.cfg.RetryMaxInterval

		_, err := backoff.Retry(ctx, func() (struct{}, error) {
			acked, aerr := l.poolAcked(ctx)
			if aerr != nil {
				return struct{}{}, backoff.Permanent(aerr)
			}
			if acked {
				return struct{}{}, nil
			}
			msg := &events.GraduateToken{
				BaseEvent: events.BaseEvent{
					EventType: events.GraduateTokenType,
					EventTime: l.clock(),
				},
				LaunchID:    launchID,
				TotalSupply: supply,
				TotalRaised: raised,
			}
			if perr := l.bus.Publish(msg); perr != nil {
				l.logger.Warn("Failed to publish graduation message", zap.Error(perr))
			}
			return struct{}{}, errAwaitingAck
		},
			backoff.WithBackOff(bo),
			backoff.WithNotify(func(err error, next time.Duration) {
				l.logger.Debug("Graduation awaiting pool acknowledgement",
					zap.Duration("next_retry", next))
			}),
		)
		if err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Warn("Graduation resend loop stopped", zap.Error(err))
		}
	}()
}

// stopResend cancels the resend loop. Runs on the actor goroutine (or during
// Run teardown, when the loop is no longer executing commands).
func (l *Ledger) stopResend() {
	if l.resendCancel != nil {
		l.resendCancel()
	}
}

// poolAcked reports whether a PoolCreated ack has landed.
func (l *Ledger) poolAcked(ctx context.Context) (bool, error) {
	var acked bool
	if err := l.do(ctx, func() {
		acked = l.state.PoolID() != ""
	}); err != nil {
		return false, err
	}
	return acked, nil
}
