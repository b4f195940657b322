package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveSend_CountsByResult(t *testing.T) {
	m := New(nil)

	m.ObserveSend("sent", 10*time.Millisecond)
	m.ObserveSend("sent", 20*time.Millisecond)
	m.ObserveSend("retry", 5*time.Millisecond)

	if got := testutil.ToFloat64(m.Sends.WithLabelValues("sent")); got != 2 {
		t.Fatalf("expected 2 sent, got %v", got)
	}
	if got := testutil.ToFloat64(m.Sends.WithLabelValues("retry")); got != 1 {
		t.Fatalf("expected 1 retry, got %v", got)
	}
	if got := testutil.CollectAndCount(m.SendDuration); got != 1 {
		t.Fatalf("expected one histogram series, got %d", got)
	}
}

func TestCounters(t *testing.T) {
	m := New(nil)

	m.ObserveRateLimited()
	m.ObserveRateLimited()
	m.ObserveInbound()
	m.ObserveThrottled()

	if got := testutil.ToFloat64(m.RateLimited); got != 2 {
		t.Fatalf("expected 2 rate limited, got %v", got)
	}
	if got := testutil.ToFloat64(m.Inbound); got != 1 {
		t.Fatalf("expected 1 inbound, got %v", got)
	}
	if got := testutil.ToFloat64(m.Throttled); got != 1 {
		t.Fatalf("expected 1 throttled, got %v", got)
	}
}

func TestHandler_ExposesQueueDepth(t *testing.T) {
	depth := 7
	m := New(func() int { return depth })

	srv := httptest.NewServer(m.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "dispatcher_queue_depth 7") {
		t.Fatalf("expected queue depth gauge in output, got:\n%s", b)
	}
}
