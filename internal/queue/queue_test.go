package queue

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LeventeLantos/notification-dispatcher/internal/model"
)

func msg(body string) *model.OutboundMessage {
	return &model.OutboundMessage{Recipient: "+36201234567", Body: body, Kind: model.KindText}
}

func TestQueue_FIFO(t *testing.T) {
	t.Parallel()

	q := New(0)
	var ids []string
	for _, b := range []string{"a", "b", "c"} {
		id, err := q.Enqueue(msg(b))
		if err != nil {
			t.Fatalf("Enqueue error: %v", err)
		}
		if id == "" {
			t.Fatalf("expected generated id")
		}
		ids = append(ids, id)
	}

	var got []string
	for !q.IsEmpty() {
		m, ok := q.Peek()
		if !ok {
			t.Fatalf("expected message at head")
		}
		got = append(got, m.Body)
		if !q.Remove(m.ID) {
			t.Fatalf("Remove(%s) returned false", m.ID)
		}
	}
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("expected FIFO order a,b,c got %v", got)
	}
	if _, ok := q.Peek(); ok {
		t.Fatalf("expected empty queue")
	}
}

func TestQueue_MaxDepth(t *testing.T) {
	t.Parallel()

	q := New(2)
	_, _ = q.Enqueue(msg("a"))
	_, _ = q.Enqueue(msg("b"))

	_, err := q.Enqueue(msg("c"))
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if q.Len() != 2 {
		t.Fatalf("expected len 2, got %d", q.Len())
	}
}

func TestQueue_DrainAll(t *testing.T) {
	t.Parallel()

	q := New(0)
	if got := q.DrainAll(); len(got) != 0 {
		t.Fatalf("expected nothing drained from empty queue, got %d", len(got))
	}

	_, _ = q.Enqueue(msg("a"))
	_, _ = q.Enqueue(msg("b"))

	drained := q.DrainAll()
	if len(drained) != 2 || drained[0].Body != "a" {
		t.Fatalf("unexpected drain result %+v", drained)
	}
	if !q.IsEmpty() {
		t.Fatalf("expected empty queue after drain")
	}
	if q.Remove(drained[0].ID) {
		t.Fatalf("expected Remove of drained message to report false")
	}
	if q.Contains(drained[1].ID) {
		t.Fatalf("expected drained message to be gone")
	}
}

func TestQueue_RequeueMovesToTail(t *testing.T) {
	t.Parallel()

	q := New(0)
	a := msg("a")
	_, _ = q.Enqueue(a)
	_, _ = q.Enqueue(msg("b"))

	at := time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC)
	got, ok := q.Requeue(a.ID, "timeout", at)
	if !ok {
		t.Fatalf("expected Requeue to succeed")
	}
	if got.Attempts != 1 || got.LastError != "timeout" || !got.NotBefore.Equal(at) {
		t.Fatalf("unexpected requeued message %+v", got)
	}
	snap := q.Snapshot()
	if snap[0].Body != "b" || snap[1].Body != "a" {
		t.Fatalf("expected order b,a got %s,%s", snap[0].Body, snap[1].Body)
	}

	if _, ok := q.Requeue("missing", "x", at); ok {
		t.Fatalf("expected Requeue of unknown id to fail")
	}
}

func TestQueue_PeekReadySkipsBackoff(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q := New(0)

	waiting := msg("retry")
	waiting.NotBefore = now.Add(2 * time.Second)
	_, _ = q.Enqueue(waiting)

	m, ok, next := q.PeekReady(now)
	if ok {
		t.Fatalf("expected nothing ready, got %+v", m)
	}
	if !next.Equal(waiting.NotBefore) {
		t.Fatalf("expected next eligibility %v, got %v", waiting.NotBefore, next)
	}

	_, _ = q.Enqueue(msg("fresh"))
	m, ok, _ = q.PeekReady(now)
	if !ok || m.Body != "fresh" {
		t.Fatalf("expected fresh message to be ready, got %+v ok=%v", m, ok)
	}

	m, ok, _ = q.PeekReady(now.Add(2 * time.Second))
	if !ok || m.Body != "retry" {
		t.Fatalf("expected retry to be ready at its eligibility time, got %+v", m)
	}
}

func TestQueue_NotifyCoalesces(t *testing.T) {
	t.Parallel()

	q := New(0)
	_, _ = q.Enqueue(msg("a"))
	_, _ = q.Enqueue(msg("b"))

	select {
	case <-q.Notify():
	default:
		t.Fatalf("expected a pending notification")
	}
	select {
	case <-q.Notify():
		t.Fatalf("expected notifications to coalesce")
	default:
	}
}

func TestQueue_ConcurrentEnqueue(t *testing.T) {
	t.Parallel()

	q := New(0)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = q.Enqueue(msg("x"))
		}()
	}
	wg.Wait()

	if q.Len() != 100 {
		t.Fatalf("expected 100 messages, got %d", q.Len())
	}
}
