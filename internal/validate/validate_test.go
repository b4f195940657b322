package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/LeventeLantos/notification-dispatcher/internal/model"
)

func TestRecipient(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"+36201234567", "+36201234567", true},
		{"36201234567", "+36201234567", true},
		{"+1 (415) 555-0100", "+14155550100", true},
		{"0036201234567", "+36201234567", true},
		{"", "", false},
		{"+0123456789", "", false},
		{"12345", "", false},
		{"+3620abc4567", "", false},
		{"+1234567890123456", "", false},
	}

	for _, tc := range cases {
		got, err := Recipient(tc.in)
		if tc.ok {
			if err != nil {
				t.Fatalf("Recipient(%q) error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("Recipient(%q) = %q, want %q", tc.in, got, tc.want)
			}
			continue
		}
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("Recipient(%q) expected ValidationError, got %v", tc.in, err)
		}
		if ve.Field != "recipient" {
			t.Fatalf("expected field recipient, got %q", ve.Field)
		}
	}
}

func TestBody(t *testing.T) {
	t.Parallel()

	if err := Body(model.KindText, "hello", 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Body(model.KindText, "   ", 5); err == nil {
		t.Fatalf("expected error for blank body")
	}
	err := Body(model.KindText, "héllo!", 5)
	if err == nil || !strings.Contains(err.Error(), "exceeds 5") {
		t.Fatalf("expected length error, got %v", err)
	}
	if err := Body(model.KindMedia, "", 5); err != nil {
		t.Fatalf("media without caption should be accepted: %v", err)
	}
}

func TestHTTPURL(t *testing.T) {
	t.Parallel()

	if err := HTTPURL("url", "https://example.com/hook"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, bad := range []string{"", "ftp://example.com", "example.com/hook", "https://"} {
		if err := HTTPURL("url", bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestMessage_DefaultsAndMedia(t *testing.T) {
	t.Parallel()

	m := &model.OutboundMessage{Recipient: "36 20 123 4567", Body: "hi"}
	if err := Message(m, 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Kind != model.KindText {
		t.Fatalf("expected default kind text, got %q", m.Kind)
	}
	if m.Recipient != "+36201234567" {
		t.Fatalf("expected normalised recipient, got %q", m.Recipient)
	}

	media := &model.OutboundMessage{Recipient: "+36201234567", Kind: model.KindMedia}
	err := Message(media, 100)
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "mediaRef" {
		t.Fatalf("expected mediaRef validation error, got %v", err)
	}

	media.MediaRef = "https://cdn.example.com/a.png"
	if err := Message(media, 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := &model.OutboundMessage{Recipient: "+36201234567", Body: "x", Kind: "video"}
	if err := Message(bad, 100); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
