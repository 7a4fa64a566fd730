// Package payments settles orders. Only a simulated gateway exists.
package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Charge is one settlement request.
type Charge struct {
	OrderID     uuid.UUID
	AmountCents int64
}

type Result struct {
	Reference string
	SettledAt time.Time
}

// Gateway settles a charge. Implementations must return promptly once ctx is done.
type Gateway interface {
	Charge(ctx context.Context, charge Charge) (*Result, error)
}

// Simulator always succeeds after a fixed latency.
type Simulator struct {
	delay time.Duration
	now   func() time.Time
}

func NewSimulator(delay time.Duration) *Simulator {
	if delay < 0 {
		delay = 0
	}
	return &Simulator{delay: delay, now: time.Now}
}

func (s *Simulator) Charge(ctx context.Context, charge Charge) (*Result, error) {
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Result{
		Reference: "sim_" + charge.OrderID.String(),
		SettledAt: s.now().UTC(),
	}, nil
}
