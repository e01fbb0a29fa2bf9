package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storefront-labs/orchestrator/internal/clock"
)

var epoch = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type recorder struct {
	mu    sync.Mutex
	fired []Expiry
}

func (r *recorder) onFire(e Expiry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, e)
}

func (r *recorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.fired))
	for _, e := range r.fired {
		out = append(out, e.BatchID)
	}
	return out
}

func TestSchedule_FiresAtDeadline(t *testing.T) {
	clk := clock.NewFake(epoch)
	rec := &recorder{}
	s := NewScheduler(clk, zap.NewNop(), rec.onFire)

	s.Schedule("b1", epoch.Add(30*time.Minute), "payload")
	assert.Equal(t, 1, s.Pending())

	clk.Advance(29 * time.Minute)
	assert.Empty(t, rec.ids())

	clk.Advance(time.Minute)
	require.Equal(t, []string{"b1"}, rec.ids())
	assert.Equal(t, "payload", rec.fired[0].Payload)
	assert.Equal(t, 0, s.Pending())
}

func TestCancel_PreventsFire(t *testing.T) {
	clk := clock.NewFake(epoch)
	rec := &recorder{}
	s := NewScheduler(clk, zap.NewNop(), rec.onFire)

	h := s.Schedule("b1", epoch.Add(time.Minute), nil)
	assert.True(t, s.Cancel(h))
	assert.False(t, s.Cancel(h))

	clk.Advance(time.Hour)
	assert.Empty(t, rec.ids())
}

func TestCancel_AfterFireReportsFalse(t *testing.T) {
	clk := clock.NewFake(epoch)
	rec := &recorder{}
	s := NewScheduler(clk, zap.NewNop(), rec.onFire)

	h := s.Schedule("b1", epoch.Add(time.Minute), nil)
	clk.Advance(time.Minute)

	assert.False(t, s.Cancel(h))
	assert.Equal(t, []string{"b1"}, rec.ids())
}

func TestCancel_UnknownHandle(t *testing.T) {
	s := NewScheduler(clock.NewFake(epoch), zap.NewNop(), func(Expiry) {})
	assert.False(t, s.Cancel(Handle{BatchID: "nope"}))
}

func TestSchedule_ReplacesEarlierEntry(t *testing.T) {
	clk := clock.NewFake(epoch)
	rec := &recorder{}
	s := NewScheduler(clk, zap.NewNop(), rec.onFire)

	stale := s.Schedule("b1", epoch.Add(time.Minute), nil)
	s.Schedule("b1", epoch.Add(time.Hour), nil)

	assert.False(t, s.Cancel(stale))
	clk.Advance(30 * time.Minute)
	assert.Empty(t, rec.ids())
	clk.Advance(30 * time.Minute)
	assert.Equal(t, []string{"b1"}, rec.ids())
}

func TestSchedule_PastDeadlineFiresImmediately(t *testing.T) {
	clk := clock.NewFake(epoch)
	rec := &recorder{}
	s := NewScheduler(clk, zap.NewNop(), rec.onFire)

	s.Schedule("b1", epoch.Add(-time.Minute), nil)
	clk.Advance(0)
	assert.Equal(t, []string{"b1"}, rec.ids())
}

func TestStop(t *testing.T) {
	clk := clock.NewFake(epoch)
	rec := &recorder{}
	s := NewScheduler(clk, zap.NewNop(), rec.onFire)

	s.Schedule("b1", epoch.Add(time.Minute), nil)
	s.Stop()
	s.Schedule("b2", epoch.Add(time.Minute), nil)

	clk.Advance(time.Hour)
	assert.Empty(t, rec.ids())
	assert.Equal(t, 0, s.Pending())
}

func TestCancelRacesFire_RealClock(t *testing.T) {
	for i := 0; i < 50; i++ {
		var mu sync.Mutex
		count := 0
		s := NewScheduler(clock.NewSystem(), zap.NewNop(), func(Expiry) {
			mu.Lock()
			count++
			mu.Unlock()
		})
		h := s.Schedule("b", time.Now().Add(time.Millisecond), nil)
		time.Sleep(time.Millisecond)
		cancelled := s.Cancel(h)
		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		if cancelled {
			assert.Equal(t, 0, count)
		} else {
			assert.Equal(t, 1, count)
		}
		mu.Unlock()
	}
}
