package model

import "time"

type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// DeliveryRecord is the persisted history row for a message that reached a
// terminal outcome.
type DeliveryRecord struct {
	ID              string         `json:"id"`
	Recipient       string         `json:"recipient"`
	Body            string         `json:"body"`
	Kind            Kind           `json:"kind"`
	BatchID         *string        `json:"batchId,omitempty"`
	Status          DeliveryStatus `json:"status"`
	Attempts        int            `json:"attempts"`
	LastError       *string        `json:"lastError,omitempty"`
	RemoteMessageID *string        `json:"remoteMessageId,omitempty"`
	SentAt          *time.Time     `json:"sentAt,omitempty"`
	EnqueuedAt      time.Time      `json:"enqueuedAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}
