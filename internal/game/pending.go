package game

import "sync"

// actionQueue hands closures from worker goroutines back to the session's
// tick thread. Push is safe from any goroutine; Drain runs only on the tick
// thread at the top of Update. A closed queue drops further pushes so a late
// lookup completion cannot mutate a finished session.
type actionQueue struct {
	mu      sync.Mutex
	actions []func()
	closed  bool
}

func newActionQueue() *actionQueue {
	return &actionQueue{}
}

// Push enqueues one deferred action. Returns false after Close.
func (q *actionQueue) Push(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.actions = append(q.actions, fn)
	return true
}

// Drain runs every queued action in push order.
func (q *actionQueue) Drain() {
	q.mu.Lock()
	actions := q.actions
	q.actions = nil
	q.mu.Unlock()
	for _, fn := range actions {
		fn()
	}
}

// Close discards queued actions and rejects future pushes.
func (q *actionQueue) Close() {
	q.mu.Lock()
	q.actions = nil
	q.closed = true
	q.mu.Unlock()
}
