package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/notification-dispatcher/internal/model"
	"github.com/LeventeLantos/notification-dispatcher/internal/validate"
)

const (
	defaultBatchMax = 200
	defaultBatchTTL = 24 * time.Hour

	// staleBatchFactor bounds how long an unfinished batch stays listed.
	staleBatchFactor = 2
)

type Submitter interface {
	Submit(msg model.OutboundMessage) (string, <-chan model.DispatchOutcome, error)
}

type BulkConfig struct {
	// Wait bounds how long SendBulk blocks for outcomes. Zero returns at once.
	Wait          time.Duration
	ContentMax    int
	MaxRecipients int
	MaxBatches    int
	BatchTTL      time.Duration
}

// Bulk fans one body out to many recipients through the dispatcher queue and
// aggregates their outcomes per batch.
type Bulk struct {
	sub Submitter
	cfg BulkConfig
	now func() time.Time

	mu      sync.RWMutex
	batches map[string]*batch
}

type batch struct {
	mu        sync.Mutex
	result    model.BulkSendResult
	createdAt time.Time
	doneAt    time.Time
	done      chan struct{}
}

type pendingSend struct {
	recipient string
	ch        <-chan model.DispatchOutcome
}

func NewBulk(sub Submitter, cfg BulkConfig) *Bulk {
	if cfg.MaxBatches <= 0 {
		cfg.MaxBatches = defaultBatchMax
	}
	if cfg.BatchTTL <= 0 {
		cfg.BatchTTL = defaultBatchTTL
	}
	return &Bulk{
		sub:     sub,
		cfg:     cfg,
		now:     time.Now,
		batches: make(map[string]*batch),
	}
}

// SendBulk never fails the batch because of a single recipient. Invalid or
// rejected recipients are reported in PerRecipientErrors; the call itself
// only errors on a bad body or recipient list.
func (b *Bulk) SendBulk(ctx context.Context, recipients []string, body string) (model.BulkSendResult, error) {
	if len(recipients) == 0 {
		return model.BulkSendResult{}, &validate.ValidationError{Field: "recipients", Reason: "empty"}
	}
	if b.cfg.MaxRecipients > 0 && len(recipients) > b.cfg.MaxRecipients {
		return model.BulkSendResult{}, &validate.ValidationError{Field: "recipients", Reason: "too many recipients"}
	}
	if err := validate.Body(model.KindText, body, b.cfg.ContentMax); err != nil {
		return model.BulkSendResult{}, err
	}

	bt := &batch{
		createdAt: b.now(),
		done:      make(chan struct{}),
		result: model.BulkSendResult{
			BatchID:            uuid.NewString(),
			Requested:          len(recipients),
			PerRecipientErrors: map[string]string{},
		},
	}
	res := &bt.result

	seen := make(map[string]struct{}, len(recipients))
	var pending []pendingSend
	for _, raw := range recipients {
		key := strings.TrimSpace(raw)
		norm, err := validate.Recipient(raw)
		if err == nil {
			key = norm
		}
		if _, dup := seen[key]; dup {
			res.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		if err != nil {
			res.Failed++
			res.PerRecipientErrors[key] = reason(err)
			continue
		}

		_, ch, err := b.sub.Submit(model.OutboundMessage{
			Recipient: norm,
			Body:      body,
			Kind:      model.KindText,
			BatchID:   res.BatchID,
		})
		if err != nil {
			res.Failed++
			res.PerRecipientErrors[norm] = err.Error()
			continue
		}
		res.Pending++
		pending = append(pending, pendingSend{recipient: norm, ch: ch})
	}
	res.StillProcessing = res.Pending > 0

	b.register(bt)
	slog.Info("bulk send accepted",
		"batch_id", res.BatchID,
		"requested", res.Requested,
		"queued", res.Pending,
		"rejected", res.Failed,
		"duplicates", res.Duplicates,
	)

	go b.collect(bt, pending)

	if b.cfg.Wait > 0 {
		t := time.NewTimer(b.cfg.Wait)
		defer t.Stop()
		select {
		case <-bt.done:
		case <-t.C:
		case <-ctx.Done():
		}
	}
	return bt.snapshot(), nil
}

// Batch returns the latest aggregate for a batch created by SendBulk.
func (b *Bulk) Batch(id string) (model.BulkSendResult, bool) {
	b.mu.RLock()
	bt, ok := b.batches[id]
	b.mu.RUnlock()
	if !ok {
		return model.BulkSendResult{}, false
	}
	return bt.snapshot(), true
}

type recipientOutcome struct {
	recipient string
	outcome   model.DispatchOutcome
}

// collect lives until every submitted message reports back. Cleared messages
// report too, so a queue clear releases it. Outcomes are applied in the order
// they arrive, not the order recipients were submitted.
func (b *Bulk) collect(bt *batch, pending []pendingSend) {
	results := make(chan recipientOutcome, len(pending))
	for _, p := range pending {
		go func(p pendingSend) {
			results <- recipientOutcome{recipient: p.recipient, outcome: <-p.ch}
		}(p)
	}
	for range pending {
		r := <-results
		bt.apply(r.recipient, r.outcome)
	}

	bt.mu.Lock()
	bt.doneAt = b.now()
	bt.result.StillProcessing = false
	res := bt.result
	bt.mu.Unlock()
	close(bt.done)

	fields := []any{
		"batch_id", res.BatchID,
		"successful", res.Successful,
		"failed", res.Failed,
	}
	if res.Failed > 0 {
		slog.Warn("bulk send finished with failures", fields...)
	} else {
		slog.Info("bulk send finished", fields...)
	}
}

func (bt *batch) apply(recipient string, o model.DispatchOutcome) {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	bt.result.Pending--
	if o.Success {
		bt.result.Successful++
		return
	}
	bt.result.Failed++
	msg := o.Error
	if msg == "" {
		msg = string(o.ErrorKind)
	}
	bt.result.PerRecipientErrors[recipient] = msg
}

func (bt *batch) snapshot() model.BulkSendResult {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	out := bt.result
	out.PerRecipientErrors = make(map[string]string, len(bt.result.PerRecipientErrors))
	for k, v := range bt.result.PerRecipientErrors {
		out.PerRecipientErrors[k] = v
	}
	out.StillProcessing = out.Pending > 0
	return out
}

func (b *Bulk) register(bt *batch) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batches[bt.result.BatchID] = bt
	b.pruneLocked(b.now())
}

// pruneLocked drops finished batches past their TTL, then the oldest finished
// ones while the registry is over capacity. Running batches are kept until
// they are staleBatchFactor TTLs old; their collectors still end once the
// queue reports every outcome.
func (b *Bulk) pruneLocked(now time.Time) {
	type entry struct {
		id string
		t  time.Time
	}
	var finished []entry
	for id, bt := range b.batches {
		bt.mu.Lock()
		doneAt, createdAt := bt.doneAt, bt.createdAt
		bt.mu.Unlock()
		if doneAt.IsZero() {
			if !createdAt.IsZero() && now.Sub(createdAt) > staleBatchFactor*b.cfg.BatchTTL {
				delete(b.batches, id)
			}
			continue
		}
		if now.Sub(doneAt) > b.cfg.BatchTTL {
			delete(b.batches, id)
			continue
		}
		finished = append(finished, entry{id: id, t: doneAt})
	}

	excess := len(b.batches) - b.cfg.MaxBatches
	if excess <= 0 {
		return
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].t.Before(finished[j].t) })
	for i := 0; i < excess && i < len(finished); i++ {
		delete(b.batches, finished[i].id)
	}
}

func reason(err error) string {
	var ve *validate.ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return err.Error()
}
