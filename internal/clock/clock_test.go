package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func TestFake_AdvanceFiresInOrder(t *testing.T) {
	c := NewFake(epoch)
	var fired []string
	c.AfterFunc(2*time.Minute, func() { fired = append(fired, "b") })
	c.AfterFunc(time.Minute, func() { fired = append(fired, "a") })
	c.AfterFunc(10*time.Minute, func() { fired = append(fired, "c") })

	c.Advance(5 * time.Minute)

	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, epoch.Add(5*time.Minute), c.Now())
	assert.Equal(t, 1, c.Pending())
}

func TestFake_CallbackSeesDeadlineTime(t *testing.T) {
	c := NewFake(epoch)
	var at time.Time
	c.AfterFunc(time.Minute, func() { at = c.Now() })

	c.Advance(time.Hour)

	assert.Equal(t, epoch.Add(time.Minute), at)
}

func TestFake_StopPreventsFire(t *testing.T) {
	c := NewFake(epoch)
	fired := false
	tm := c.AfterFunc(time.Minute, func() { fired = true })

	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop())
	c.Advance(time.Hour)
	assert.False(t, fired)
}

func TestFake_StopAfterFireReportsFalse(t *testing.T) {
	c := NewFake(epoch)
	tm := c.AfterFunc(time.Minute, func() {})
	c.Advance(time.Minute)
	assert.False(t, tm.Stop())
}

func TestFake_TimerScheduledInsideCallback(t *testing.T) {
	c := NewFake(epoch)
	count := 0
	c.AfterFunc(time.Minute, func() {
		count++
		c.AfterFunc(time.Minute, func() { count++ })
	})

	c.Advance(3 * time.Minute)
	assert.Equal(t, 2, count)
}

func TestSystem_AfterFunc(t *testing.T) {
	done := make(chan struct{})
	NewSystem().AfterFunc(time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("system timer never fired")
	}
}
