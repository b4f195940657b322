package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestLoggingMiddleware_PassesThroughAndCapturesStatus(t *testing.T) {
	handler := loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, rr.Code)
	}

	if body := rr.Body.String(); body != "ok" {
		t.Fatalf("expected body %q, got %q", "ok", body)
	}
}

func TestStatusRecorder_DefaultsToOK(t *testing.T) {
	rr := httptest.NewRecorder()
	rec := &statusRecorder{ResponseWriter: rr}

	_, _ = rec.Write([]byte("hello"))

	if rec.status != http.StatusOK {
		t.Fatalf("expected implicit 200, got %d", rec.status)
	}
	if rec.bytes != 5 {
		t.Fatalf("expected 5 bytes recorded, got %d", rec.bytes)
	}
}

func TestStatusCmd_PrintsQueueStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/queue/status" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"queueLength":3,"isProcessing":true,"rateLimitCounter":5,"rateLimitResetTime":"2026-01-01T00:01:00Z"}`))
	}))
	t.Cleanup(srv.Close)

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"status", "--addr", srv.URL})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("status command error: %v", err)
	}

	for _, want := range []string{"Queue length: 3", "Processing: true", "Rate limit counter: 5"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, out.String())
		}
	}
}

func TestFetchQueueStatus_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	_, err := fetchQueueStatus(&http.Client{Timeout: time.Second}, srv.URL)
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected HTTP 500 error, got %v", err)
	}
}
