// Package sched provides the timers that drive stream sessions: one-shot
// deadlines and periodic publishing ticks.
//
// Production code uses Real, which is backed by the runtime timers. Tests use
// FakeScheduler, which only moves forward when told to and runs due callbacks
// on the goroutine that advanced it.
package sched

import (
	"sync"
	"time"
)

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop prevents any further invocation of the callback. It reports
	// whether the timer was still active. Stop must not be called from the
	// timer's own callback.
	Stop() bool
}

// Scheduler schedules callbacks relative to its notion of now.
type Scheduler interface {
	Now() time.Time

	// AfterFunc runs f once, d after now.
	AfterFunc(d time.Duration, f func()) Timer

	// Every runs f each time period elapses, starting one period from now.
	// Invocations never overlap.
	Every(period time.Duration, f func()) Timer
}

// Real returns a Scheduler backed by wall-clock time.
func Real() Scheduler { return realScheduler{} }

type realScheduler struct{}

func (realScheduler) Now() time.Time { return time.Now() }

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (realScheduler) Every(period time.Duration, f func()) Timer {
	if period <= 0 {
		panic("sched: non-positive period")
	}
	t := &ticker{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go t.run(time.NewTicker(period), f)
	return t
}

type ticker struct {
	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func (t *ticker) run(tk *time.Ticker, f func()) {
	defer close(t.done)
	defer tk.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-tk.C:
			// Stop wins over a tick that raced with it.
			select {
			case <-t.stop:
				return
			default:
			}
			f()
		}
	}
}

// Stop halts the ticker and waits for an in-flight callback to return.
func (t *ticker) Stop() bool {
	stopped := false
	t.once.Do(func() {
		close(t.stop)
		stopped = true
	})
	<-t.done
	return stopped
}
