package model

import "time"

type Kind string

const (
	KindText        Kind = "text"
	KindMedia       Kind = "media"
	KindInteractive Kind = "interactive"
)

func (k Kind) Valid() bool {
	switch k {
	case KindText, KindMedia, KindInteractive:
		return true
	}
	return false
}

// OutboundMessage is owned by the queue until it reaches a terminal outcome.
// Only the dispatcher mutates Attempts, LastError and NotBefore.
type OutboundMessage struct {
	ID         string    `json:"id"`
	Recipient  string    `json:"recipient"`
	Body       string    `json:"body"`
	MediaRef   string    `json:"mediaRef,omitempty"`
	Kind       Kind      `json:"kind"`
	BatchID    string    `json:"batchId,omitempty"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"lastError,omitempty"`

	// NotBefore is the earliest time a retried message may be sent again.
	NotBefore time.Time `json:"notBefore,omitempty"`
}

type ErrorKind string

const (
	ErrorNone      ErrorKind = ""
	ErrorTransient ErrorKind = "transient"
	ErrorPermanent ErrorKind = "permanent"
	ErrorExhausted ErrorKind = "retries_exhausted"
	// ErrorCleared marks a message discarded by a queue clear. It never
	// reaches the gateway and is not counted in statistics.
	ErrorCleared ErrorKind = "cleared"
)

type DispatchOutcome struct {
	MessageID       string    `json:"messageId"`
	Recipient       string    `json:"recipient"`
	Success         bool      `json:"success"`
	ErrorKind       ErrorKind `json:"errorKind,omitempty"`
	Error           string    `json:"error,omitempty"`
	RemoteMessageID string    `json:"remoteMessageId,omitempty"`
	Attempts        int       `json:"attempts"`
	SentAt          time.Time `json:"sentAt"`
}

// Terminal reports whether the outcome came from the gateway path and must be
// reflected in statistics.
func (o DispatchOutcome) Terminal() bool {
	return o.ErrorKind != ErrorCleared
}

type InboundMessage struct {
	From       string    `json:"from"`
	Body       string    `json:"body"`
	MessageID  string    `json:"messageId,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
}
