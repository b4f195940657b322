package client

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/LeventeLantos/notification-dispatcher/internal/model"
)

const (
	StateConnected    = "connected"
	StateDegraded     = "degraded"
	StateDisconnected = "disconnected"
)

type BreakerSettings struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// BreakerGateway stops calling the gateway after repeated transient failures.
// Permanent failures are the recipient's problem and do not trip it.
type BreakerGateway struct {
	next Gateway
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerGateway(next Gateway, s BreakerSettings) *BreakerGateway {
	if s.Name == "" {
		s.Name = "gateway"
	}
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	threshold := s.FailureThreshold

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("gateway circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return &BreakerGateway{next: next, cb: cb}
}

func (g *BreakerGateway) Send(ctx context.Context, msg model.OutboundMessage) (string, error) {
	var permanent error
	res, err := g.cb.Execute(func() (interface{}, error) {
		id, err := g.next.Send(ctx, msg)
		if err != nil && !model.IsTransient(err) {
			permanent = err
			return "", nil
		}
		return id, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", model.Transient(0, err)
		}
		return "", err
	}
	if permanent != nil {
		return "", permanent
	}
	id, _ := res.(string)
	return id, nil
}

func (g *BreakerGateway) SetWebhook(ctx context.Context, callbackURL string) error {
	return g.next.SetWebhook(ctx, callbackURL)
}

func (g *BreakerGateway) ConnectionState() string {
	switch g.cb.State() {
	case gobreaker.StateOpen:
		return StateDisconnected
	case gobreaker.StateHalfOpen:
		return StateDegraded
	default:
		return StateConnected
	}
}
