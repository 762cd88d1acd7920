package zone

import "sync"

// taskQueue re-enters async completions (token lookups, player data fetches)
// onto the tick goroutine. Push is safe from any goroutine; Drain runs only
// on the tick goroutine.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
}

func (q *taskQueue) Push(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.tasks = append(q.tasks, fn)
}

func (q *taskQueue) Drain() {
	q.mu.Lock()
	tasks := q.tasks
	q.tasks = nil
	q.mu.Unlock()
	for _, fn := range tasks {
		fn()
	}
}

func (q *taskQueue) Close() {
	q.mu.Lock()
	q.tasks = nil
	q.closed = true
	q.mu.Unlock()
}
