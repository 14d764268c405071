package tracking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/syntree/infrastructure/tracking"
)

// fakeReporter records every snapshot delivered to it.
type fakeReporter struct {
	mu    sync.Mutex
	items []tracking.Totals
}

func (f *fakeReporter) OnChange(_ context.Context, totals tracking.Totals) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, totals)
	return nil
}

func (f *fakeReporter) delivered() []tracking.Totals {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tracking.Totals(nil), f.items...)
}

func (f *fakeReporter) count() int {
	return len(f.delivered())
}

func (f *fakeReporter) last() tracking.Totals {
	items := f.delivered()
	return items[len(items)-1]
}

// clock is a manually advanced time source.
type clock struct {
	t time.Time
}

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newCooldown(fake *fakeReporter, interval time.Duration) (*tracking.Cooldown, *clock) {
	clk := &clock{t: time.Unix(1700000000, 0)}
	return tracking.NewCooldown(fake, interval, tracking.WithClock(clk.now)), clk
}

func TestCooldown_Throttles(t *testing.T) {
	ctx := context.Background()
	fake := &fakeReporter{}
	cooldown, clk := newCooldown(fake, time.Second)

	for i := 1; i <= 20; i++ {
		require.NoError(t, cooldown.OnChange(ctx, tracking.Totals{Run: "r", Files: i}))
		clk.advance(100 * time.Millisecond)
	}

	// Deliveries at files 1 and 11; 20 is held.
	got := fake.delivered()
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Files)
	assert.Equal(t, 11, got[1].Files)

	require.NoError(t, cooldown.Close())
	got = fake.delivered()
	require.Len(t, got, 3)
	assert.Equal(t, 20, got[2].Files)
}

func TestCooldown_FinalAlwaysPasses(t *testing.T) {
	ctx := context.Background()
	fake := &fakeReporter{}
	cooldown, _ := newCooldown(fake, time.Hour)

	require.NoError(t, cooldown.OnChange(ctx, tracking.Totals{Run: "r", Files: 1}))
	require.NoError(t, cooldown.OnChange(ctx, tracking.Totals{Run: "r", Files: 2}))
	require.NoError(t, cooldown.OnChange(ctx, tracking.Totals{Run: "r", Files: 3, Final: true}))

	got := fake.delivered()
	require.Len(t, got, 2)
	assert.True(t, got[1].Final)

	// The final snapshot superseded the held one.
	require.NoError(t, cooldown.Close())
	assert.Len(t, fake.delivered(), 2)
}

func TestCooldown_RunsAreIndependent(t *testing.T) {
	ctx := context.Background()
	fake := &fakeReporter{}
	cooldown, _ := newCooldown(fake, time.Hour)

	require.NoError(t, cooldown.OnChange(ctx, tracking.Totals{Run: "b"}))
	require.NoError(t, cooldown.OnChange(ctx, tracking.Totals{Run: "a"}))
	require.NoError(t, cooldown.OnChange(ctx, tracking.Totals{Run: "b", Files: 2}))
	require.NoError(t, cooldown.OnChange(ctx, tracking.Totals{Run: "a", Files: 4}))
	assert.Len(t, fake.delivered(), 2)

	require.NoError(t, cooldown.Close())
	got := fake.delivered()
	require.Len(t, got, 4)
	assert.Equal(t, "a", got[2].Run)
	assert.Equal(t, 4, got[2].Files)
	assert.Equal(t, "b", got[3].Run)
}

func TestCooldown_HeldSnapshotIsCopied(t *testing.T) {
	ctx := context.Background()
	fake := &fakeReporter{}
	cooldown, _ := newCooldown(fake, time.Hour)

	require.NoError(t, cooldown.OnChange(ctx, tracking.Totals{Run: "r"}))
	dedup := map[string]int{"wstnodes": 1}
	require.NoError(t, cooldown.OnChange(ctx, tracking.Totals{Run: "r", Dedup: dedup}))
	dedup["wstnodes"] = 99

	require.NoError(t, cooldown.Close())
	got := fake.delivered()
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[1].Dedup["wstnodes"])
}
