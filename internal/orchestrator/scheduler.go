package orchestrator

import (
	"sync"
	"time"
)

// Handle cancels a scheduled continuation.
type Handle interface {
	Stop() bool
}

// Scheduler runs fn once after delay.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) Handle
}

// TimerScheduler schedules continuations with time.AfterFunc.
type TimerScheduler struct{}

func (TimerScheduler) Schedule(delay time.Duration, fn func()) Handle {
	return time.AfterFunc(delay, fn)
}

// ManualScheduler queues continuations until they are run explicitly. Used
// for stepping a run by hand.
type ManualScheduler struct {
	mu    sync.Mutex
	queue []*manualTask
}

type manualTask struct {
	m       *ManualScheduler
	fn      func()
	stopped bool
	ran     bool
}

func (t *manualTask) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.stopped || t.ran {
		return false
	}
	t.stopped = true
	return true
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (m *ManualScheduler) Schedule(delay time.Duration, fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTask{m: m, fn: fn}
	m.queue = append(m.queue, t)
	return t
}

// Pending returns the number of queued continuations, stopped ones included.
func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Fire runs the oldest queued continuation, even if it was stopped, and
// reports whether there was one. Firing stopped continuations shows that
// stale callbacks are ignored.
func (m *ManualScheduler) Fire() bool {
	m.mu.Lock()
	if len(m.queue) == 0 {
		m.mu.Unlock()
		return false
	}
	t := m.queue[0]
	m.queue = m.queue[1:]
	t.ran = true
	m.mu.Unlock()

	t.fn()
	return true
}

// RunUntilIdle fires continuations until the queue is empty or limit is
// reached, and returns how many ran.
func (m *ManualScheduler) RunUntilIdle(limit int) int {
	n := 0
	for n < limit && m.Fire() {
		n++
	}
	return n
}
