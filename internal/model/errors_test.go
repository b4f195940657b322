package model

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient gateway error", Transient(503, errors.New("unavailable")), true},
		{"permanent gateway error", Permanent(400, errors.New("bad number")), false},
		{"wrapped transient", fmt.Errorf("send: %w", Transient(429, errors.New("slow down"))), true},
		{"deadline", context.DeadlineExceeded, true},
		{"net error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"plain error", errors.New("boom"), false},
		{"canceled", context.Canceled, false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestGatewayError_Message(t *testing.T) {
	err := Permanent(404, errors.New("unknown recipient"))
	if got := err.Error(); got != "gateway status 404: unknown recipient" {
		t.Fatalf("unexpected message %q", got)
	}

	err = Transient(0, errors.New("connection reset"))
	if got := err.Error(); got != "gateway: connection reset" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestDispatchOutcome_Terminal(t *testing.T) {
	if (DispatchOutcome{ErrorKind: ErrorCleared}).Terminal() {
		t.Fatalf("cleared outcome must not be terminal")
	}
	if !(DispatchOutcome{Success: true}).Terminal() {
		t.Fatalf("success must be terminal")
	}
}
