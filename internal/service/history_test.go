package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/notification-dispatcher/internal/cache"
	"github.com/LeventeLantos/notification-dispatcher/internal/model"
)

type recordingRepo struct {
	mu     sync.Mutex
	sent   map[string]string
	failed map[string]string
	err    error
}

func newRecordingRepo() *recordingRepo {
	return &recordingRepo{sent: map[string]string{}, failed: map[string]string{}}
}

func (r *recordingRepo) MarkSent(ctx context.Context, msg model.OutboundMessage, remoteMessageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[msg.ID] = remoteMessageID
	return r.err
}

func (r *recordingRepo) MarkFailed(ctx context.Context, msg model.OutboundMessage, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[msg.ID] = reason
	return r.err
}

func (r *recordingRepo) ListSent(ctx context.Context, limit, offset int) ([]model.DeliveryRecord, error) {
	return nil, nil
}

func newMiniredisCache(t *testing.T) *cache.RedisCache {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return cache.NewRedisCache(rdb, 0)
}

func TestHistory_Disabled(t *testing.T) {
	t.Parallel()

	h := NewHistory(nil, nil)
	if h.Enabled() {
		t.Fatalf("expected history disabled without stores")
	}
	if err := h.OnSent(context.Background(), model.OutboundMessage{ID: "1"}, "r"); err != nil {
		t.Fatalf("OnSent error: %v", err)
	}
}

func TestHistory_WritesBothStores(t *testing.T) {
	t.Parallel()

	rp := newRecordingRepo()
	c := newMiniredisCache(t)
	h := NewHistory(rp, c)
	ctx := context.Background()

	if err := h.OnSent(ctx, model.OutboundMessage{ID: "a", Attempts: 1}, "remote-a"); err != nil {
		t.Fatalf("OnSent error: %v", err)
	}
	if err := h.OnFailed(ctx, model.OutboundMessage{ID: "b", Attempts: 3}, "retries exhausted"); err != nil {
		t.Fatalf("OnFailed error: %v", err)
	}

	if rp.sent["a"] != "remote-a" || rp.failed["b"] != "retries exhausted" {
		t.Fatalf("unexpected repo state: sent=%v failed=%v", rp.sent, rp.failed)
	}

	e, ok, err := c.Lookup(ctx, "b")
	if err != nil || !ok {
		t.Fatalf("expected cached failure, ok=%v err=%v", ok, err)
	}
	if e.Status != cache.StatusFailed || e.Attempts != 3 {
		t.Fatalf("unexpected cache entry: %+v", e)
	}
}

func TestHistory_RepoErrorStillCaches(t *testing.T) {
	t.Parallel()

	rp := newRecordingRepo()
	rp.err = errors.New("db down")
	c := newMiniredisCache(t)
	h := NewHistory(rp, c)

	err := h.OnSent(context.Background(), model.OutboundMessage{ID: "x"}, "remote-x")
	if err == nil || !errors.Is(err, rp.err) {
		t.Fatalf("expected repo error to surface, got %v", err)
	}

	if _, ok, _ := c.Lookup(context.Background(), "x"); !ok {
		t.Fatalf("expected cache write despite repo error")
	}
}
