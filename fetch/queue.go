package fetch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// queue hands out at most capacity slots in strict FIFO order. When a
// throttle is set, consecutive grants are spaced by its interval even if
// slots are free.
type queue struct {
	mu       sync.Mutex
	capacity int
	active   int
	waiters  []*ticket
	throttle *rate.Limiter
}

type ticket struct {
	ready   chan time.Duration
	granted bool
}

func newQueue(capacity int, throttle time.Duration) *queue {
	q := &queue{capacity: capacity}
	if throttle > 0 {
		q.throttle = rate.NewLimiter(rate.Every(throttle), 1)
	}
	return q
}

// enqueue reserves a place at the back of the line. The caller must follow
// up with wait.
func (q *queue) enqueue() *ticket {
	t := &ticket{ready: make(chan time.Duration, 1)}

	q.mu.Lock()
	q.waiters = append(q.waiters, t)
	q.dispatch()
	q.mu.Unlock()

	return t
}

// wait blocks until t holds a slot. On error the slot, if any, is returned.
func (q *queue) wait(ctx context.Context, t *ticket) error {
	var delay time.Duration
	select {
	case delay = <-t.ready:
	case <-ctx.Done():
		q.mu.Lock()
		if !t.granted {
			q.remove(t)
			q.mu.Unlock()
			return ctx.Err()
		}
		q.mu.Unlock()
		q.release()
		return ctx.Err()
	}

	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		q.release()
		return ctx.Err()
	}
}

func (q *queue) release() {
	q.mu.Lock()
	q.active--
	q.dispatch()
	q.mu.Unlock()
}

// dispatch must be called with mu held.
func (q *queue) dispatch() {
	for q.active < q.capacity && len(q.waiters) > 0 {
		t := q.waiters[0]
		q.waiters[0] = nil
		q.waiters = q.waiters[1:]
		q.active++
		t.granted = true

		var delay time.Duration
		if q.throttle != nil {
			delay = q.throttle.Reserve().Delay()
		}
		t.ready <- delay
	}
}

func (q *queue) remove(t *ticket) {
	for i, w := range q.waiters {
		if w == t {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return
		}
	}
}

func (q *queue) lengths() (queued, active int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters), q.active
}
