package tracking

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"
)

// Cooldown forwards each run's snapshots to an inner Reporter at most once
// per interval. A snapshot arriving inside the interval is held back and
// superseded by the next one; the final snapshot of a run always passes.
// Close delivers the held snapshot of every run that never finished.
type Cooldown struct {
	inner    Reporter
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	runs map[string]*throttle
}

type throttle struct {
	delivered time.Time
	held      *Totals
}

// CooldownOption configures a Cooldown.
type CooldownOption func(*Cooldown)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CooldownOption {
	return func(c *Cooldown) { c.now = now }
}

// NewCooldown wraps inner.
func NewCooldown(inner Reporter, interval time.Duration, opts ...CooldownOption) *Cooldown {
	c := &Cooldown{
		inner:    inner,
		interval: interval,
		now:      time.Now,
		runs:     make(map[string]*throttle),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnChange implements Reporter.
func (c *Cooldown) OnChange(ctx context.Context, totals Totals) error {
	c.mu.Lock()
	if totals.Final {
		delete(c.runs, totals.Run)
		c.mu.Unlock()
		return c.inner.OnChange(ctx, totals)
	}

	t, ok := c.runs[totals.Run]
	if !ok {
		t = &throttle{}
		c.runs[totals.Run] = t
	}
	now := c.now()
	if ok && now.Sub(t.delivered) < c.interval {
		held := totals.clone()
		t.held = &held
		c.mu.Unlock()
		return nil
	}
	t.delivered = now
	t.held = nil
	c.mu.Unlock()
	return c.inner.OnChange(ctx, totals)
}

// Close delivers held snapshots in run order and forgets every run.
func (c *Cooldown) Close() error {
	c.mu.Lock()
	runs := c.runs
	c.runs = make(map[string]*throttle)
	c.mu.Unlock()

	var errs []error
	for _, id := range slices.Sorted(maps.Keys(runs)) {
		if held := runs[id].held; held != nil {
			errs = append(errs, c.inner.OnChange(context.Background(), *held))
		}
	}
	return errors.Join(errs...)
}
