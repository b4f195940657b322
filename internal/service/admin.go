// Package service is the boundary between the HTTP layer and the dispatcher
// core: read-only telemetry snapshots, single and bulk sends, queue clearing,
// webhook reconfiguration and inbound message intake.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/LeventeLantos/notification-dispatcher/internal/model"
	"github.com/LeventeLantos/notification-dispatcher/internal/validate"
)

const TestMessageBody = "Test message from the notification dispatcher."

type Dispatcher interface {
	Enqueue(msg model.OutboundMessage) (string, error)
	Clear() int
	Start() bool
	Stop() bool
	IsRunning() bool
	IsProcessing() bool
}

type Queue interface {
	Len() int
	Snapshot() []model.OutboundMessage
}

type RateLimiter interface {
	Snapshot() model.RateLimitSnapshot
}

type Stats interface {
	RecordIncoming()
	Snapshot() model.Statistics
	Recent() []model.DispatchOutcome
}

type WebhookTarget interface {
	SetWebhook(ctx context.Context, callbackURL string) error
}

// InboundHandler receives inbound gateway messages for business processing.
type InboundHandler interface {
	HandleInbound(ctx context.Context, msg model.InboundMessage) error
}

type connectionStater interface {
	ConnectionState() string
}

type Status struct {
	ConnectionState string                  `json:"connectionState"`
	Running         bool                    `json:"running"`
	RateLimit       model.RateLimitSnapshot `json:"rateLimit"`
	Timestamp       time.Time               `json:"timestamp"`
}

type QueueStatus struct {
	QueueLength        int       `json:"queueLength"`
	IsProcessing       bool      `json:"isProcessing"`
	RateLimitCounter   int       `json:"rateLimitCounter"`
	RateLimitResetTime time.Time `json:"rateLimitResetTime"`
}

type SendRequest struct {
	Recipient string     `json:"recipient"`
	Body      string     `json:"body"`
	MediaRef  string     `json:"mediaRef,omitempty"`
	Kind      model.Kind `json:"kind,omitempty"`
}

type SendResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type ClearResult struct {
	ClearedCount int `json:"clearedCount"`
}

type Admin struct {
	dispatcher Dispatcher
	queue      Queue
	limiter    RateLimiter
	stats      Stats
	gateway    WebhookTarget
	bulk       *Bulk
	inbound    InboundHandler
	contentMax int
	now        func() time.Time
}

type AdminDeps struct {
	Dispatcher Dispatcher
	Queue      Queue
	Limiter    RateLimiter
	Stats      Stats
	Gateway    WebhookTarget
	Bulk       *Bulk
	Inbound    InboundHandler
	ContentMax int
}

func NewAdmin(deps AdminDeps) (*Admin, error) {
	if deps.Dispatcher == nil || deps.Queue == nil || deps.Limiter == nil || deps.Stats == nil {
		return nil, errors.New("dispatcher, queue, limiter and stats are required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("gateway is required")
	}
	inbound := deps.Inbound
	if inbound == nil {
		inbound = LogInbound{}
	}
	return &Admin{
		dispatcher: deps.Dispatcher,
		queue:      deps.Queue,
		limiter:    deps.Limiter,
		stats:      deps.Stats,
		gateway:    deps.Gateway,
		bulk:       deps.Bulk,
		inbound:    inbound,
		contentMax: deps.ContentMax,
		now:        time.Now,
	}, nil
}

func (a *Admin) Status() Status {
	state := "unknown"
	if cs, ok := a.gateway.(connectionStater); ok {
		state = cs.ConnectionState()
	}
	return Status{
		ConnectionState: state,
		Running:         a.dispatcher.IsRunning(),
		RateLimit:       a.limiter.Snapshot(),
		Timestamp:       a.now().UTC(),
	}
}

func (a *Admin) QueueStatus() QueueStatus {
	snap := a.limiter.Snapshot()
	return QueueStatus{
		QueueLength:        a.queue.Len(),
		IsProcessing:       a.dispatcher.IsProcessing(),
		RateLimitCounter:   snap.Count,
		RateLimitResetTime: snap.ResetAt,
	}
}

func (a *Admin) Statistics() model.Statistics {
	return a.stats.Snapshot()
}

func (a *Admin) Queue() []model.OutboundMessage {
	return a.queue.Snapshot()
}

func (a *Admin) Recent() []model.DispatchOutcome {
	return a.stats.Recent()
}

// Send queues one message. The result confirms acceptance, not delivery.
func (a *Admin) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	msg := model.OutboundMessage{
		Recipient: req.Recipient,
		Body:      req.Body,
		MediaRef:  strings.TrimSpace(req.MediaRef),
		Kind:      req.Kind,
	}
	if err := validate.Message(&msg, a.contentMax); err != nil {
		return SendResult{}, err
	}

	id, err := a.dispatcher.Enqueue(msg)
	if err != nil {
		slog.Warn("send rejected", "recipient", msg.Recipient, "error", err)
		return SendResult{}, err
	}
	slog.Debug("message queued", "message_id", id, "kind", string(msg.Kind))
	return SendResult{ID: id, Status: "queued"}, nil
}

func (a *Admin) SendBulk(ctx context.Context, recipients []string, body string) (model.BulkSendResult, error) {
	if a.bulk == nil {
		return model.BulkSendResult{}, errors.New("bulk sending not configured")
	}
	return a.bulk.SendBulk(ctx, recipients, body)
}

func (a *Admin) Batch(id string) (model.BulkSendResult, bool) {
	if a.bulk == nil {
		return model.BulkSendResult{}, false
	}
	return a.bulk.Batch(id)
}

func (a *Admin) TestSend(ctx context.Context, recipient string) (SendResult, error) {
	return a.Send(ctx, SendRequest{Recipient: recipient, Body: TestMessageBody, Kind: model.KindText})
}

func (a *Admin) ClearQueue() ClearResult {
	return ClearResult{ClearedCount: a.dispatcher.Clear()}
}

// UpdateWebhookTarget only checks the URL shape; the gateway decides the rest.
func (a *Admin) UpdateWebhookTarget(ctx context.Context, callbackURL string) error {
	callbackURL = strings.TrimSpace(callbackURL)
	if err := validate.HTTPURL("url", callbackURL); err != nil {
		return err
	}
	if err := a.gateway.SetWebhook(ctx, callbackURL); err != nil {
		return err
	}
	slog.Info("webhook target updated", "url", callbackURL)
	return nil
}

func (a *Admin) StartDispatcher() bool { return a.dispatcher.Start() }

func (a *Admin) StopDispatcher() bool { return a.dispatcher.Stop() }

func (a *Admin) DispatcherRunning() bool { return a.dispatcher.IsRunning() }

// RecordIncoming counts the message before handing it off, so a failing
// handler does not skew the incoming total.
func (a *Admin) RecordIncoming(ctx context.Context, msg model.InboundMessage) error {
	if strings.TrimSpace(msg.From) == "" {
		return &validate.ValidationError{Field: "from", Reason: "empty"}
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = a.now().UTC()
	}
	a.stats.RecordIncoming()
	return a.inbound.HandleInbound(ctx, msg)
}

// LogInbound is the default InboundHandler.
type LogInbound struct{}

func (LogInbound) HandleInbound(ctx context.Context, msg model.InboundMessage) error {
	slog.Info("inbound message received", "from", msg.From, "message_id", msg.MessageID, "length", len(msg.Body))
	return nil
}
