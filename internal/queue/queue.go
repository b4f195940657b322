// Package queue holds pending outbound messages in strict FIFO order.
package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/notification-dispatcher/internal/model"
)

var ErrQueueFull = errors.New("message queue full")

// Queue is safe for concurrent use. Enqueue, drain and the dispatcher's
// peek/remove all run under the same mutex.
type Queue struct {
	maxDepth int
	now      func() time.Time

	mu    sync.Mutex
	items []*model.OutboundMessage

	notify chan struct{}
}

// New returns an empty queue. maxDepth <= 0 means unbounded.
func New(maxDepth int) *Queue {
	return &Queue{
		maxDepth: maxDepth,
		now:      time.Now,
		notify:   make(chan struct{}, 1),
	}
}

// Enqueue stores a copy of msg, filling in ID and EnqueuedAt on msg when
// they are unset.
func (q *Queue) Enqueue(msg *model.OutboundMessage) (string, error) {
	q.mu.Lock()
	if q.maxDepth > 0 && len(q.items) >= q.maxDepth {
		q.mu.Unlock()
		return "", ErrQueueFull
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = q.now().UTC()
	}
	m := *msg
	q.items = append(q.items, &m)
	q.mu.Unlock()

	q.signal()
	return msg.ID, nil
}

// Notify fires after an enqueue or requeue. Signals coalesce.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Peek returns a copy of the head message.
func (q *Queue) Peek() (model.OutboundMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return model.OutboundMessage{}, false
	}
	return *q.items[0], true
}

// PeekReady returns the first message whose retry backoff has elapsed. When
// none is ready, nextAt is the earliest time one will be; it is zero for an
// empty queue.
func (q *Queue) PeekReady(now time.Time) (msg model.OutboundMessage, ok bool, nextAt time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, m := range q.items {
		if !m.NotBefore.After(now) {
			return *m, true, time.Time{}
		}
		if nextAt.IsZero() || m.NotBefore.Before(nextAt) {
			nextAt = m.NotBefore
		}
	}
	return model.OutboundMessage{}, false, nextAt
}

func (q *Queue) Contains(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.indexLocked(id) >= 0
}

// Remove deletes the message after dispatch. It reports false when the
// message is no longer queued, e.g. after a drain.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexLocked(id)
	if i < 0 {
		return false
	}
	q.items = append(q.items[:i], q.items[i+1:]...)
	return true
}

// Requeue records a failed attempt and moves the message to the tail, where
// it becomes eligible again at notBefore.
func (q *Queue) Requeue(id, lastError string, notBefore time.Time) (model.OutboundMessage, bool) {
	q.mu.Lock()
	i := q.indexLocked(id)
	if i < 0 {
		q.mu.Unlock()
		return model.OutboundMessage{}, false
	}
	m := q.items[i]
	m.Attempts++
	m.LastError = lastError
	m.NotBefore = notBefore
	q.items = append(q.items[:i], q.items[i+1:]...)
	q.items = append(q.items, m)
	out := *m
	q.mu.Unlock()

	q.signal()
	return out, true
}

// DrainAll empties the queue and returns its content in order.
func (q *Queue) DrainAll() []*model.OutboundMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}

// Snapshot returns copies of the queued messages in dispatch order.
func (q *Queue) Snapshot() []model.OutboundMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.OutboundMessage, len(q.items))
	for i, m := range q.items {
		out[i] = *m
	}
	return out
}

func (q *Queue) MaxDepth() int { return q.maxDepth }

func (q *Queue) indexLocked(id string) int {
	for i, m := range q.items {
		if m.ID == id {
			return i
		}
	}
	return -1
}
