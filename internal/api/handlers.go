package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/LeventeLantos/notification-dispatcher/internal/cache"
	"github.com/LeventeLantos/notification-dispatcher/internal/model"
	"github.com/LeventeLantos/notification-dispatcher/internal/queue"
	"github.com/LeventeLantos/notification-dispatcher/internal/repo"
	"github.com/LeventeLantos/notification-dispatcher/internal/service"
	"github.com/LeventeLantos/notification-dispatcher/internal/validate"
)

const (
	maxBodyBytes = 1 << 20
	// retryAfterSeconds is advertised when the queue is at capacity.
	retryAfterSeconds = 5
)

// InboundObserver counts inbound webhook traffic.
type InboundObserver interface {
	ObserveInbound()
	ObserveThrottled()
}

type Handler struct {
	admin    *service.Admin
	repo     repo.MessageRepository
	cache    cache.OutcomeCache
	observer InboundObserver
}

type Option func(*Handler)

// WithRepo enables the delivery history endpoint.
func WithRepo(r repo.MessageRepository) Option {
	return func(h *Handler) { h.repo = r }
}

// WithCache lets message lookups fall back to stored outcomes.
func WithCache(c cache.OutcomeCache) Option {
	return func(h *Handler) { h.cache = c }
}

func WithInboundObserver(o InboundObserver) Option {
	return func(h *Handler) { h.observer = o }
}

func NewHandler(a *service.Admin, opts ...Option) *Handler {
	h := &Handler{admin: a}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.admin.Status())
}

func (h *Handler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.admin.QueueStatus())
}

func (h *Handler) QueueContents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": h.admin.Queue()})
}

func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.admin.Statistics())
}

func (h *Handler) RecentOutcomes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": h.admin.Recent()})
}

func (h *Handler) DispatcherStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"running": h.admin.DispatcherRunning()})
}

func (h *Handler) DispatcherStart(w http.ResponseWriter, r *http.Request) {
	h.admin.StartDispatcher()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.admin.DispatcherRunning()})
}

func (h *Handler) DispatcherStop(w http.ResponseWriter, r *http.Request) {
	h.admin.StopDispatcher()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.admin.DispatcherRunning()})
}

func (h *Handler) ListSentMessages(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "message history not configured")
		return
	}

	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	items, err := h.repo.ListSent(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// MessageStatus reports a queued message first, then any stored outcome.
func (h *Handler) MessageStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	for _, m := range h.admin.Queue() {
		if m.ID == id {
			writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "queued", "message": m})
			return
		}
	}

	if h.cache != nil {
		entry, ok, err := h.cache.Lookup(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if ok {
			writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": entry.Status, "outcome": entry})
			return
		}
	}

	writeErrorMessage(w, http.StatusNotFound, "message not found")
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req service.SendRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.admin.Send(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

type bulkRequest struct {
	Recipients []string `json:"recipients"`
	Body       string   `json:"body"`
}

func (h *Handler) SendBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.admin.SendBulk(r.Context(), req.Recipients, req.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if res.StillProcessing {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

func (h *Handler) BulkStatus(w http.ResponseWriter, r *http.Request) {
	res, ok := h.admin.Batch(r.PathValue("id"))
	if !ok {
		writeErrorMessage(w, http.StatusNotFound, "batch not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.admin.ClearQueue())
}

type webhookTargetRequest struct {
	URL string `json:"url"`
}

func (h *Handler) UpdateWebhookTarget(w http.ResponseWriter, r *http.Request) {
	var req webhookTargetRequest
	if !decodeBody(w, r, &req) {
		return
	}

	target := strings.TrimSpace(req.URL)
	if err := h.admin.UpdateWebhookTarget(r.Context(), target); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "url": target})
}

type testSendRequest struct {
	Recipient string `json:"recipient"`
}

func (h *Handler) TestSend(w http.ResponseWriter, r *http.Request) {
	var req testSendRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.admin.TestSend(r.Context(), req.Recipient)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (h *Handler) Inbound(w http.ResponseWriter, r *http.Request) {
	var msg model.InboundMessage
	if !decodeBody(w, r, &msg) {
		return
	}

	if err := h.admin.RecordIncoming(r.Context(), msg); err != nil {
		var verr *validate.ValidationError
		if errors.As(err, &verr) {
			writeError(w, err)
			return
		}
		// Counted already; the gateway should not redeliver.
		slog.Error("inbound handler failed", "from", msg.From, "error", err)
	}
	if h.observer != nil {
		h.observer.ObserveInbound()
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			writeErrorMessage(w, http.StatusBadRequest, "request body is empty")
			return false
		}
		writeErrorMessage(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	var verr *validate.ValidationError
	var gerr *model.GatewayError

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, queue.ErrQueueFull):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		writeErrorMessage(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &gerr):
		writeErrorMessage(w, http.StatusBadGateway, gerr.Error())
	default:
		writeErrorMessage(w, http.StatusInternalServerError, err.Error())
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
