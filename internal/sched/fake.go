package sched

import (
	"context"
	"sort"
	"sync"
	"time"
)

// FakeScheduler is a Scheduler whose clock only moves when Advance or
// AdvanceTo is called. Due callbacks run synchronously, in time order, on the
// advancing goroutine. Now reports the firing time while a callback runs.
type FakeScheduler struct {
	mu      sync.Mutex
	now     time.Time
	counter uint64

	// Ordered by when, then by registration order.
	events  []*fakeEvent
	changed chan struct{}
}

type fakeEvent struct {
	s      *FakeScheduler
	seq    uint64
	when   time.Time
	period time.Duration
	f      func()
	active bool
}

// NewFakeScheduler returns a fake scheduler starting at start.
func NewFakeScheduler(start time.Time) *FakeScheduler {
	return &FakeScheduler{now: start, changed: make(chan struct{})}
}

func (s *FakeScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *FakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(s.now.Add(d), 0, f)
}

func (s *FakeScheduler) Every(period time.Duration, f func()) Timer {
	if period <= 0 {
		panic("sched: non-positive period")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(s.now.Add(period), period, f)
}

func (s *FakeScheduler) addLocked(when time.Time, period time.Duration, f func()) *fakeEvent {
	s.counter++
	ev := &fakeEvent{s: s, seq: s.counter, when: when, period: period, f: f, active: true}
	s.insertLocked(ev)
	s.notifyLocked()
	return ev
}

func (s *FakeScheduler) insertLocked(ev *fakeEvent) {
	idx := sort.Search(len(s.events), func(i int) bool {
		e := s.events[i]
		if e.when.Equal(ev.when) {
			return e.seq > ev.seq
		}
		return e.when.After(ev.when)
	})
	s.events = append(s.events, nil)
	copy(s.events[idx+1:], s.events[idx:])
	s.events[idx] = ev
}

func (s *FakeScheduler) removeLocked(ev *fakeEvent) {
	for i, e := range s.events {
		if e == ev {
			s.events = append(s.events[:i], s.events[i+1:]...)
			return
		}
	}
}

func (s *FakeScheduler) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Stop cancels the event.
func (ev *fakeEvent) Stop() bool {
	s := ev.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ev.active {
		return false
	}
	ev.active = false
	s.removeLocked(ev)
	s.notifyLocked()
	return true
}

// Advance moves the clock forward by d, running every callback that falls due.
func (s *FakeScheduler) Advance(d time.Duration) {
	s.AdvanceTo(s.Now().Add(d))
}

// AdvanceTo moves the clock to t and runs due callbacks. Time never goes
// backwards; an earlier t is ignored.
func (s *FakeScheduler) AdvanceTo(t time.Time) {
	for {
		s.mu.Lock()
		if t.Before(s.now) {
			s.mu.Unlock()
			return
		}
		if len(s.events) == 0 || s.events[0].when.After(t) {
			s.now = t
			s.mu.Unlock()
			return
		}

		ev := s.events[0]
		s.events = s.events[1:]
		if ev.when.After(s.now) {
			s.now = ev.when
		}
		if ev.period > 0 {
			ev.when = ev.when.Add(ev.period)
			s.insertLocked(ev)
		} else {
			ev.active = false
		}
		f := ev.f
		s.mu.Unlock()

		// Outside the lock so callbacks may schedule or stop timers.
		if f != nil {
			f()
		}
	}
}

// Pending returns the number of active timers.
func (s *FakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// WaitPending blocks until at least n timers are active or ctx is done.
// Tests use it to wait for a goroutine under test to arm its timers.
func (s *FakeScheduler) WaitPending(ctx context.Context, n int) error {
	for {
		s.mu.Lock()
		count, changed := len(s.events), s.changed
		s.mu.Unlock()
		if count >= n {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
