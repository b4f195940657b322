package service

import (
	"context"
	"errors"
	"time"

	"github.com/LeventeLantos/notification-dispatcher/internal/cache"
	"github.com/LeventeLantos/notification-dispatcher/internal/model"
	"github.com/LeventeLantos/notification-dispatcher/internal/repo"
)

// History fans terminal outcomes out to the durable stores that are
// configured. Either store may be nil.
type History struct {
	repo  repo.MessageRepository
	cache cache.OutcomeCache
	now   func() time.Time
}

func NewHistory(r repo.MessageRepository, c cache.OutcomeCache) *History {
	return &History{repo: r, cache: c, now: time.Now}
}

func (h *History) Enabled() bool {
	return h.repo != nil || h.cache != nil
}

func (h *History) OnSent(ctx context.Context, msg model.OutboundMessage, remoteMessageID string) error {
	var errs []error
	if h.repo != nil {
		if err := h.repo.MarkSent(ctx, msg, remoteMessageID); err != nil {
			errs = append(errs, err)
		}
	}
	if h.cache != nil {
		if err := h.cache.StoreSent(ctx, msg.ID, remoteMessageID, msg.Attempts, h.now()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *History) OnFailed(ctx context.Context, msg model.OutboundMessage, reason string) error {
	var errs []error
	if h.repo != nil {
		if err := h.repo.MarkFailed(ctx, msg, reason); err != nil {
			errs = append(errs, err)
		}
	}
	if h.cache != nil {
		if err := h.cache.StoreFailed(ctx, msg.ID, reason, msg.Attempts, h.now()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
