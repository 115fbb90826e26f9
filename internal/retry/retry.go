// Package retry provides bounded retries with a fixed inter-attempt delay.
// Every network-facing call in the run pipeline gets its own Policy.Do, so
// retry budgets are per call site, never shared.
package retry

import (
	"context"
	"time"

	logx "shopwatch/pkg/logx"
)

const (
	DefaultAttempts = 3
	DefaultDelay    = time.Second
)

// Policy is a fixed-delay retry budget. No jitter, no backoff growth: the
// delay between attempts is constant.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

func (p Policy) normalized() Policy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultAttempts
	}
	if p.Delay <= 0 {
		p.Delay = DefaultDelay
	}
	return p
}

// Do runs fn until it succeeds or the attempt budget is exhausted. Each failed
// attempt except the last logs a warning. The final error is returned
// unchanged (not wrapped) so callers can inspect the underlying failure.
// Cancellation during the inter-attempt wait returns ctx.Err().
func (p Policy) Do(ctx context.Context, log logx.Logger, op string, fn func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	p = p.normalized()

	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt == p.Attempts {
			break
		}
		log.Warn("attempt failed; retrying",
			logx.String("op", op),
			logx.Int("attempt", attempt),
			logx.Int("max_attempts", p.Attempts),
			logx.Duration("delay", p.Delay),
			logx.Err(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay):
		}
	}
	return err
}
