package cache

import (
	"context"
	"time"
)

type Entry struct {
	Status          string    `json:"status"`
	RemoteMessageID string    `json:"remoteMessageId,omitempty"`
	Error           string    `json:"error,omitempty"`
	Attempts        int       `json:"attempts"`
	At              time.Time `json:"at"`
}

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// OutcomeCache keeps recent terminal outcomes per message for status lookups.
type OutcomeCache interface {
	StoreSent(ctx context.Context, messageID, remoteMessageID string, attempts int, sentAt time.Time) error
	StoreFailed(ctx context.Context, messageID, reason string, attempts int, failedAt time.Time) error
	Lookup(ctx context.Context, messageID string) (Entry, bool, error)
}
