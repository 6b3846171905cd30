package trends

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"trendpulse/config"
)

// retryPolicy is the backoff half of the fetch state machine: attempt
// count, exponential delay, jitter, hard cap.
type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	jitterFrac  float64
}

func policyFromConfig(cfg *config.Config) retryPolicy {
	p := retryPolicy{
		maxAttempts: cfg.FetchMaxAttempts,
		baseDelay:   cfg.FetchBaseDelay,
		maxDelay:    cfg.FetchMaxDelay,
		jitterFrac:  cfg.FetchJitterFrac,
	}
	if p.maxAttempts < 1 {
		p.maxAttempts = 1
	}
	if p.baseDelay <= 0 {
		p.baseDelay = 800 * time.Millisecond
	}
	if p.maxDelay < p.baseDelay {
		p.maxDelay = p.baseDelay
	}
	return p
}

// delay returns the backoff before retrying after the given 1-based
// attempt: base doubled per attempt, capped, with symmetric jitter.
func (p retryPolicy) delay(attempt int) time.Duration {
	d := p.baseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.maxDelay {
			d = p.maxDelay
			break
		}
	}
	return jitterDuration(d, p.jitterFrac)
}

// jitterDuration spreads d by up to ±frac of itself.
func jitterDuration(d time.Duration, frac float64) time.Duration {
	if frac <= 0 || d <= 0 {
		return d
	}
	spread := (rand.Float64()*2 - 1) * frac * float64(d)
	out := d + time.Duration(spread)
	if out < 0 {
		return 0
	}
	return out
}

// sleepCtx sleeps for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// minAttemptHeadroom is the least remaining run budget worth starting
// another provider attempt with; below it the window is abandoned so the
// run can wind down cleanly.
const minAttemptHeadroom = 10 * time.Second

func checkBudget(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < minAttemptHeadroom {
			return fmt.Errorf("remaining run budget %s below attempt headroom: %w",
				remaining.Round(time.Second), context.DeadlineExceeded)
		}
	}
	return nil
}
