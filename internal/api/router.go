package api

import (
	"net/http"

	"golang.org/x/time/rate"
)

// Router wires all routes. A nil inbound limiter disables throttling of the
// gateway webhook; a nil metrics handler leaves /metrics unrouted.
func Router(h *Handler, inbound *rate.Limiter, metrics http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", h.Health)
	mux.HandleFunc("GET /v1/status", h.Status)
	mux.HandleFunc("GET /v1/statistics", h.Statistics)

	mux.HandleFunc("GET /v1/queue/status", h.QueueStatus)
	mux.HandleFunc("GET /v1/queue", h.QueueContents)
	mux.HandleFunc("POST /v1/queue/clear", h.ClearQueue)

	mux.HandleFunc("GET /v1/dispatcher/status", h.DispatcherStatus)
	mux.HandleFunc("POST /v1/dispatcher/start", h.DispatcherStart)
	mux.HandleFunc("POST /v1/dispatcher/stop", h.DispatcherStop)

	mux.HandleFunc("POST /v1/messages/send", h.SendMessage)
	mux.HandleFunc("POST /v1/messages/send-bulk", h.SendBulk)
	mux.HandleFunc("POST /v1/messages/test", h.TestSend)
	mux.HandleFunc("GET /v1/messages/bulk/{id}", h.BulkStatus)
	mux.HandleFunc("GET /v1/messages/recent", h.RecentOutcomes)
	mux.HandleFunc("GET /v1/messages/sent", h.ListSentMessages)
	mux.HandleFunc("GET /v1/messages/{id}", h.MessageStatus)

	mux.HandleFunc("PUT /v1/webhook-target", h.UpdateWebhookTarget)
	mux.HandleFunc("POST /v1/webhook/inbound", h.throttle(inbound, h.Inbound))

	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("notification-dispatcher"))
	})

	return mux
}

func (h *Handler) throttle(l *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	if l == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow() {
			if h.observer != nil {
				h.observer.ObserveThrottled()
			}
			w.Header().Set("Retry-After", "1")
			writeErrorMessage(w, http.StatusTooManyRequests, "too many inbound requests")
			return
		}
		next(w, r)
	}
}
