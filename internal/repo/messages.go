package repo

import (
	"context"

	"github.com/LeventeLantos/notification-dispatcher/internal/model"
)

type MessageRepository interface {
	MarkSent(ctx context.Context, msg model.OutboundMessage, remoteMessageID string) error
	MarkFailed(ctx context.Context, msg model.OutboundMessage, reason string) error
	ListSent(ctx context.Context, limit, offset int) ([]model.DeliveryRecord, error)
}
