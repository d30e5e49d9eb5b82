package session

import (
	"context"
	"time"
)

// Countdown drives a periodic remaining-time signal for one attempt. The
// ticker only schedules work: every tick recomputes remaining time from the
// absolute deadline, so a suspended or delayed tick corrects itself instead
// of drifting the way a naive decrement would.
//
// OnExpire fires exactly once, when the deadline passes, after which the
// loop stops. Run also stops when the context is cancelled or the state
// reaches a terminal phase.
type Countdown struct {
	state    *State
	interval time.Duration
	now      func() time.Time

	// OnTick receives the remaining time on every interval. Optional.
	OnTick func(remaining time.Duration)
	// OnExpire fires once when remaining time reaches zero.
	OnExpire func()
}

// NewCountdown creates a countdown over a session state. A non-positive
// interval defaults to one second.
func NewCountdown(state *State, interval time.Duration) *Countdown {
	if interval <= 0 {
		interval = time.Second
	}
	return &Countdown{
		state:    state,
		interval: interval,
		now:      time.Now,
	}
}

// Run blocks until expiry, cancellation or a terminal phase.
func (c *Countdown) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			phase := c.state.Phase()
			if phase == PhaseSubmitting || phase == PhaseSubmitted {
				return
			}

			remaining := c.state.TimeLeft(c.now())
			if c.OnTick != nil {
				c.OnTick(remaining)
			}
			if remaining == 0 {
				if c.OnExpire != nil {
					c.OnExpire()
				}
				return
			}
		}
	}
}
