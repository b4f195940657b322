package validate

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/LeventeLantos/notification-dispatcher/internal/model"
)

// ValidationError is returned for input rejected before it reaches the queue.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

var (
	phonePattern = regexp.MustCompile(`^\+?[1-9]\d{7,14}$`)
	phoneNoise   = strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "")
)

// Recipient checks an international phone number and returns it as +digits.
func Recipient(raw string) (string, error) {
	s := phoneNoise.Replace(strings.TrimSpace(raw))
	if s == "" {
		return "", &ValidationError{Field: "recipient", Reason: "empty"}
	}
	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	if !phonePattern.MatchString(s) {
		return "", &ValidationError{Field: "recipient", Reason: fmt.Sprintf("%q is not an international phone number", raw)}
	}
	if s[0] != '+' {
		s = "+" + s
	}
	return s, nil
}

func Body(kind model.Kind, body string, contentMax int) error {
	if strings.TrimSpace(body) == "" && kind != model.KindMedia {
		return &ValidationError{Field: "body", Reason: "empty"}
	}
	if contentMax > 0 && utf8.RuneCountInString(body) > contentMax {
		return &ValidationError{Field: "body", Reason: fmt.Sprintf("content exceeds %d chars", contentMax)}
	}
	return nil
}

// HTTPURL accepts absolute http or https URLs with a host.
func HTTPURL(field, raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return &ValidationError{Field: field, Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: field, Reason: "scheme must be http or https"}
	}
	if u.Host == "" {
		return &ValidationError{Field: field, Reason: "missing host"}
	}
	return nil
}

// Message validates and normalises msg in place.
func Message(msg *model.OutboundMessage, contentMax int) error {
	if msg.Kind == "" {
		msg.Kind = model.KindText
	}
	if !msg.Kind.Valid() {
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", msg.Kind)}
	}
	r, err := Recipient(msg.Recipient)
	if err != nil {
		return err
	}
	msg.Recipient = r

	if err := Body(msg.Kind, msg.Body, contentMax); err != nil {
		return err
	}
	if msg.Kind == model.KindMedia {
		if msg.MediaRef == "" {
			return &ValidationError{Field: "mediaRef", Reason: "required for media messages"}
		}
		if err := HTTPURL("mediaRef", msg.MediaRef); err != nil {
			return err
		}
	}
	return nil
}
