package link

import (
	"sort"
	"sync"
	"time"
)

type Timer interface {
	// Stop returns false if timer already fired or was stopped.
	Stop() bool
}

// Scheduler runs f once after d. Manager requires f to be executed on the
// same goroutine that drives Manager; real implementation posts f into the
// engine loop.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// ManualScheduler is virtual time for tests and simulations.
// Timers fire only inside Advance, in due time order, ties by arm order.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	seq    uint64
	timers []*manualTimer
}

type manualTimer struct {
	s       *ManualScheduler
	at      time.Duration
	seq     uint64
	f       func()
	stopped bool
	fired   bool
}

func NewManualScheduler() *ManualScheduler { return &ManualScheduler{} }

func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &manualTimer{s: s, at: s.now + d, seq: s.seq, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Now is virtual time elapsed since creation.
func (s *ManualScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Advance moves time forward by d, firing every timer due on the way,
// including timers armed by fired callbacks.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	for {
		t := s.next(target)
		if t == nil {
			break
		}
		s.now = t.at
		t.fired = true
		s.remove(t)
		s.mu.Unlock()
		t.f()
		s.mu.Lock()
	}
	s.now = target
	s.mu.Unlock()
}

// AdvanceTo is Advance with absolute virtual time. Past time fires only overdue timers.
func (s *ManualScheduler) AdvanceTo(at time.Duration) {
	d := at - s.Now()
	if d < 0 {
		d = 0
	}
	s.Advance(d)
}

// Next returns due time of the earliest pending timer.
func (s *ManualScheduler) Next() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var min time.Duration
	found := false
	for _, t := range s.timers {
		if !found || t.at < min {
			min, found = t.at, true
		}
	}
	return min, found
}

func (s *ManualScheduler) next(target time.Duration) *manualTimer {
	if len(s.timers) == 0 {
		return nil
	}
	sort.SliceStable(s.timers, func(i, j int) bool {
		a, b := s.timers[i], s.timers[j]
		if a.at != b.at {
			return a.at < b.at
		}
		return a.seq < b.seq
	})
	if t := s.timers[0]; t.at <= target {
		return t
	}
	return nil
}

func (s *ManualScheduler) remove(t *manualTimer) {
	for i, x := range s.timers {
		if x == t {
			s.timers = append(s.timers[:i], s.timers[i+1:]...)
			return
		}
	}
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	t.s.remove(t)
	return true
}
