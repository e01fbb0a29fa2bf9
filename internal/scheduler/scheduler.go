// Package scheduler arms one cancellable timer per reservation batch.
package scheduler

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/storefront-labs/orchestrator/internal/clock"
)

// Expiry is handed to the fire callback.
type Expiry struct {
	BatchID  string
	Deadline time.Time
	Payload  any
}

// Handle identifies one scheduled expiry. A rescheduled batch gets a new Handle,
// so cancelling a stale one is a no-op.
type Handle struct {
	BatchID string
	seq     uint64
}

type entry struct {
	seq    uint64
	expiry Expiry
	timer  clock.Timer
}

// Scheduler runs onFire at most once per scheduled entry, and never after a
// Cancel that returned true.
type Scheduler struct {
	mu      sync.Mutex
	clock   clock.Clock
	logger  *zap.Logger
	onFire  func(Expiry)
	entries map[string]*entry
	seq     uint64
	stopped bool
}

func NewScheduler(clk clock.Clock, logger *zap.Logger, onFire func(Expiry)) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		clock:   clk,
		logger:  logger,
		onFire:  onFire,
		entries: make(map[string]*entry),
	}
}

// Schedule arms an expiry for batchID at deadline, replacing any earlier entry
// for the same batch. A deadline in the past fires on the next clock tick.
func (s *Scheduler) Schedule(batchID string, deadline time.Time, payload any) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.entries[batchID]; ok {
		prev.timer.Stop()
		delete(s.entries, batchID)
	}
	s.seq++
	h := Handle{BatchID: batchID, seq: s.seq}
	if s.stopped {
		return h
	}

	e := &entry{seq: h.seq, expiry: Expiry{BatchID: batchID, Deadline: deadline, Payload: payload}}
	wait := deadline.Sub(s.clock.Now())
	if wait < 0 {
		wait = 0
	}
	e.timer = s.clock.AfterFunc(wait, func() { s.fire(h) })
	s.entries[batchID] = e

	s.logger.Debug("scheduler.armed",
		zap.String("batch_id", batchID),
		zap.Time("deadline", deadline),
	)
	return h
}

// Cancel disarms the entry. It reports false if the entry already fired, was
// cancelled, or is unknown.
func (s *Scheduler) Cancel(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[h.BatchID]
	if !ok || e.seq != h.seq {
		return false
	}
	e.timer.Stop()
	delete(s.entries, h.BatchID)
	s.logger.Debug("scheduler.cancelled", zap.String("batch_id", h.BatchID))
	return true
}

// Pending reports armed entries.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop disarms everything; later Schedule calls are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, id)
	}
	s.stopped = true
}

func (s *Scheduler) fire(h Handle) {
	s.mu.Lock()
	e, ok := s.entries[h.BatchID]
	if !ok || e.seq != h.seq {
		s.mu.Unlock()
		return
	}
	delete(s.entries, h.BatchID)
	s.mu.Unlock()

	s.logger.Info("scheduler.fired",
		zap.String("batch_id", e.expiry.BatchID),
		zap.Time("deadline", e.expiry.Deadline),
	)
	s.onFire(e.expiry)
}
