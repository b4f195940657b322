// Package dispatcher runs the single worker that moves queued messages to the
// gateway under the rate limit.
//
// Per message the worker goes Idle -> Polling -> (RateLimited | Sending) ->
// (Success | RetryPending | PermanentFailure) -> Idle. Only one send is ever
// in flight, so the limiter count matches gateway invocations and dispatch
// order follows queue order.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/notification-dispatcher/internal/model"
	"github.com/LeventeLantos/notification-dispatcher/internal/queue"
)

type Gateway interface {
	Send(ctx context.Context, msg model.OutboundMessage) (remoteMessageID string, err error)
}

type Limiter interface {
	TryAcquire() bool
	Snapshot() model.RateLimitSnapshot
}

type Recorder interface {
	RecordOutcome(o model.DispatchOutcome)
}

// Observer receives dispatch telemetry. Result is one of sent, retry or failed.
type Observer interface {
	ObserveSend(result string, d time.Duration)
	ObserveRateLimited()
}

type Config struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// SendTimeout bounds a single gateway call. Zero leaves it to the gateway.
	SendTimeout time.Duration
	// HookTimeout bounds each onSent/onFailed call.
	HookTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BackoffBase: time.Second,
		BackoffMax:  30 * time.Second,
		HookTimeout: 5 * time.Second,
	}
}

// idleWait means "sleep until something is enqueued".
const idleWait time.Duration = -1

type Dispatcher struct {
	queue    *queue.Queue
	limiter  Limiter
	gateway  Gateway
	recorder Recorder
	cfg      Config
	now      func() time.Time
	observer Observer

	onSent   func(ctx context.Context, msg model.OutboundMessage, remoteMessageID string) error
	onFailed func(ctx context.Context, msg model.OutboundMessage, reason string) error

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// wmu guards inflight and waiters. Clear holds it while draining so a
	// message is either claimed for sending or discarded, never both.
	wmu      sync.Mutex
	inflight string
	waiters  map[string]chan model.DispatchOutcome
}

func New(q *queue.Queue, l Limiter, g Gateway, r Recorder, cfg Config) (*Dispatcher, error) {
	if q == nil || l == nil || g == nil || r == nil {
		return nil, errors.New("queue, limiter, gateway and recorder are required")
	}
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.HookTimeout <= 0 {
		cfg.HookTimeout = def.HookTimeout
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = def.BackoffMax
		if cfg.BackoffMax < cfg.BackoffBase {
			cfg.BackoffMax = cfg.BackoffBase
		}
	}
	return &Dispatcher{
		queue:    q,
		limiter:  l,
		gateway:  g,
		recorder: r,
		cfg:      cfg,
		now:      time.Now,
		done:     make(chan struct{}),
		waiters:  make(map[string]chan model.DispatchOutcome),
	}, nil
}

// WithHooks registers sinks for terminal outcomes. Hook errors are logged.
func (d *Dispatcher) WithHooks(
	onSent func(ctx context.Context, msg model.OutboundMessage, remoteMessageID string) error,
	onFailed func(ctx context.Context, msg model.OutboundMessage, reason string) error,
) *Dispatcher {
	d.onSent = onSent
	d.onFailed = onFailed
	return d
}

func (d *Dispatcher) WithObserver(o Observer) *Dispatcher {
	d.observer = o
	return d
}

func (d *Dispatcher) Start() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	d.running.Store(true)

	go func() {
		defer close(d.done)

		slog.Info("dispatcher started",
			"max_attempts", d.cfg.MaxAttempts,
			"backoff_base", d.cfg.BackoffBase.String(),
			"backoff_max", d.cfg.BackoffMax.String(),
		)

		for {
			wait := d.safeStep(ctx)
			if !d.sleep(ctx, wait) {
				slog.Info("dispatcher stopping")
				return
			}
		}
	}()

	return true
}

// Stop cancels an in-flight send; the message stays queued for the next start.
func (d *Dispatcher) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running.Load() {
		return false
	}

	d.cancel()
	<-d.done
	d.running.Store(false)

	slog.Info("dispatcher stopped", "queue_length", d.queue.Len())
	return true
}

func (d *Dispatcher) IsRunning() bool {
	return d.running.Load()
}

// IsProcessing reports whether the worker has a send in flight or work queued.
func (d *Dispatcher) IsProcessing() bool {
	if !d.running.Load() {
		return false
	}
	d.wmu.Lock()
	busy := d.inflight != ""
	d.wmu.Unlock()
	return busy || !d.queue.IsEmpty()
}

func (d *Dispatcher) Enqueue(msg model.OutboundMessage) (string, error) {
	return d.queue.Enqueue(&msg)
}

// Submit enqueues msg and returns a channel that receives its terminal
// outcome exactly once.
func (d *Dispatcher) Submit(msg model.OutboundMessage) (string, <-chan model.DispatchOutcome, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	ch := make(chan model.DispatchOutcome, 1)

	d.wmu.Lock()
	d.waiters[msg.ID] = ch
	d.wmu.Unlock()

	id, err := d.queue.Enqueue(&msg)
	if err != nil {
		d.wmu.Lock()
		delete(d.waiters, msg.ID)
		d.wmu.Unlock()
		return "", nil, err
	}
	return id, ch, nil
}

// Clear discards every queued message that is not being sent right now and
// returns how many were discarded. An in-flight send completes normally.
func (d *Dispatcher) Clear() int {
	d.wmu.Lock()
	drained := d.queue.DrainAll()
	inflight := d.inflight
	var cleared []model.OutboundMessage
	for _, m := range drained {
		if m.ID == inflight {
			continue
		}
		cleared = append(cleared, *m)
	}
	d.wmu.Unlock()

	now := d.now().UTC()
	for _, m := range cleared {
		d.notify(model.DispatchOutcome{
			MessageID: m.ID,
			Recipient: m.Recipient,
			ErrorKind: model.ErrorCleared,
			Error:     "queue cleared before dispatch",
			Attempts:  m.Attempts,
			SentAt:    now,
		})
	}

	slog.Info("queue cleared", "cleared", len(cleared), "in_flight", inflight != "")
	return len(cleared)
}

func (d *Dispatcher) safeStep(ctx context.Context) (wait time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatcher step panic recovered", "panic", r)
			d.setInflight("")
			wait = d.cfg.BackoffBase
		}
	}()
	return d.step(ctx)
}

func (d *Dispatcher) step(ctx context.Context) time.Duration {
	now := d.now()
	msg, ok, nextAt := d.queue.PeekReady(now)
	if !ok {
		if nextAt.IsZero() {
			return idleWait
		}
		return positive(nextAt.Sub(now))
	}

	if !d.claim(msg.ID) {
		return 0
	}

	if !d.limiter.TryAcquire() {
		d.setInflight("")
		snap := d.limiter.Snapshot()
		if d.observer != nil {
			d.observer.ObserveRateLimited()
		}
		wait := positive(snap.ResetAt.Sub(d.now()))
		slog.Debug("rate limited; deferring dispatch",
			"message_id", msg.ID,
			"count", snap.Count,
			"limit", snap.Limit,
			"wait_ms", wait.Milliseconds(),
		)
		return wait
	}

	d.send(ctx, msg)
	return 0
}

func (d *Dispatcher) send(ctx context.Context, msg model.OutboundMessage) {
	defer d.setInflight("")

	sendCtx := ctx
	if d.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()
	}

	start := d.now()
	remoteID, err := d.callGateway(sendCtx, msg)
	took := d.now().Sub(start)

	if ctx.Err() != nil {
		// Shutdown interrupted the send; it is not an outcome.
		slog.Info("send interrupted by shutdown", "message_id", msg.ID)
		return
	}

	attempts := msg.Attempts + 1

	if err == nil {
		d.queue.Remove(msg.ID)
		d.observe("sent", took)
		d.finish(ctx, msg, model.DispatchOutcome{
			MessageID:       msg.ID,
			Recipient:       msg.Recipient,
			Success:         true,
			RemoteMessageID: remoteID,
			Attempts:        attempts,
			SentAt:          d.now().UTC(),
		})
		return
	}

	reason := err.Error()
	kind := model.ErrorPermanent
	if model.IsTransient(err) {
		kind = model.ErrorTransient
		if attempts < d.cfg.MaxAttempts {
			delay := d.Backoff(attempts)
			if _, ok := d.queue.Requeue(msg.ID, reason, d.now().Add(delay)); ok {
				d.observe("retry", took)
				slog.Warn("send failed; retry scheduled",
					"message_id", msg.ID,
					"attempt", attempts,
					"delay_ms", delay.Milliseconds(),
					"error", reason,
				)
				return
			}
			// Cleared while in flight: nothing left to retry.
		} else {
			kind = model.ErrorExhausted
		}
	}

	d.queue.Remove(msg.ID)
	d.observe("failed", took)
	d.finish(ctx, msg, model.DispatchOutcome{
		MessageID: msg.ID,
		Recipient: msg.Recipient,
		ErrorKind: kind,
		Error:     reason,
		Attempts:  attempts,
		SentAt:    d.now().UTC(),
	})
}

// callGateway reports a gateway panic as a transient failure, so the message
// is retried at the tail under MaxAttempts like any other failure.
func (d *Dispatcher) callGateway(ctx context.Context, msg model.OutboundMessage) (remoteID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("gateway panic recovered", "message_id", msg.ID, "panic", r)
			remoteID = ""
			err = model.Transient(0, fmt.Errorf("gateway panic: %v", r))
		}
	}()
	return d.gateway.Send(ctx, msg)
}

// Backoff is the delay before the next eligibility after the given number of
// failed attempts: base, 2*base, 4*base... capped at BackoffMax.
func (d *Dispatcher) Backoff(attempts int) time.Duration {
	delay := d.cfg.BackoffBase
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= d.cfg.BackoffMax {
			return d.cfg.BackoffMax
		}
	}
	if delay > d.cfg.BackoffMax {
		return d.cfg.BackoffMax
	}
	return delay
}

// finish records the outcome and wakes waiters before running the hooks, so
// a slow store never delays a bulk result.
func (d *Dispatcher) finish(ctx context.Context, msg model.OutboundMessage, o model.DispatchOutcome) {
	d.recorder.RecordOutcome(o)
	d.notify(o)

	msg.Attempts = o.Attempts
	if o.Success {
		slog.Info("message sent",
			"message_id", o.MessageID,
			"remote_message_id", o.RemoteMessageID,
			"attempts", o.Attempts,
		)
		if d.onSent != nil {
			d.runHook(ctx, "sent", o.MessageID, func(ctx context.Context) error {
				return d.onSent(ctx, msg, o.RemoteMessageID)
			})
		}
		return
	}

	msg.LastError = o.Error
	slog.Warn("message failed",
		"message_id", o.MessageID,
		"error_kind", string(o.ErrorKind),
		"attempts", o.Attempts,
		"error", o.Error,
	)
	if d.onFailed != nil {
		d.runHook(ctx, "failed", o.MessageID, func(ctx context.Context) error {
			return d.onFailed(ctx, msg, o.Error)
		})
	}
}

func (d *Dispatcher) runHook(ctx context.Context, name, messageID string, fn func(context.Context) error) {
	hctx, cancel := context.WithTimeout(ctx, d.cfg.HookTimeout)
	defer cancel()
	if err := fn(hctx); err != nil {
		slog.Warn(name+" hook failed", "message_id", messageID, "error", err)
	}
}

func (d *Dispatcher) notify(o model.DispatchOutcome) {
	d.wmu.Lock()
	ch, ok := d.waiters[o.MessageID]
	delete(d.waiters, o.MessageID)
	d.wmu.Unlock()
	if ok {
		ch <- o
	}
}

// claim marks id in flight if it is still queued.
func (d *Dispatcher) claim(id string) bool {
	d.wmu.Lock()
	defer d.wmu.Unlock()
	if !d.queue.Contains(id) {
		return false
	}
	d.inflight = id
	return true
}

func (d *Dispatcher) setInflight(id string) {
	d.wmu.Lock()
	d.inflight = id
	d.wmu.Unlock()
}

func (d *Dispatcher) observe(result string, took time.Duration) {
	if d.observer != nil {
		d.observer.ObserveSend(result, took)
	}
}

// sleep waits for the given duration, an enqueue signal or cancellation. It
// reports false once ctx is done.
func (d *Dispatcher) sleep(ctx context.Context, wait time.Duration) bool {
	if wait == 0 {
		return ctx.Err() == nil
	}

	var timer <-chan time.Time
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-ctx.Done():
		return false
	case <-d.queue.Notify():
		return true
	case <-timer:
		return true
	}
}

func positive(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Millisecond
	}
	return d
}
