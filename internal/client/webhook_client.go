package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/LeventeLantos/notification-dispatcher/internal/model"
)

// Gateway is the outbound messaging transport.
type Gateway interface {
	Send(ctx context.Context, msg model.OutboundMessage) (remoteMessageID string, err error)
	SetWebhook(ctx context.Context, callbackURL string) error
}

type WebhookClient struct {
	url        string
	webhookURL string
	token      string
	client     *http.Client
}

type Option func(*WebhookClient)

func WithToken(token string) Option {
	return func(c *WebhookClient) { c.token = token }
}

// WithWebhookEndpoint sets the gateway endpoint that stores our callback URL.
// Defaults to <url>/webhook.
func WithWebhookEndpoint(endpoint string) Option {
	return func(c *WebhookClient) { c.webhookURL = endpoint }
}

func WithTimeout(d time.Duration) Option {
	return func(c *WebhookClient) { c.client.Timeout = d }
}

func NewWebhookClient(url string, opts ...Option) *WebhookClient {
	c := &WebhookClient{
		url:        url,
		webhookURL: strings.TrimRight(url, "/") + "/webhook",
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type sendRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
	Type        string `json:"type"`
	MediaURL    string `json:"mediaUrl,omitempty"`
}

type sendResponse struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

type webhookRequest struct {
	URL string `json:"url"`
}

func (c *WebhookClient) Send(ctx context.Context, msg model.OutboundMessage) (string, error) {
	kind := msg.Kind
	if kind == "" {
		kind = model.KindText
	}
	reqBody, err := json.Marshal(sendRequest{
		PhoneNumber: msg.Recipient,
		Message:     msg.Body,
		Type:        string(kind),
		MediaURL:    msg.MediaRef,
	})
	if err != nil {
		return "", model.Permanent(0, err)
	}

	status, body, err := c.do(ctx, http.MethodPost, c.url, reqBody)
	if err != nil {
		return "", err
	}

	if !accepted(status) {
		return "", classify(status, fmt.Errorf("unexpected status code: %d body=%q", status, string(body)))
	}

	var sr sendResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", model.Permanent(status, fmt.Errorf("failed to decode json: %w body=%q", err, string(body)))
	}
	if sr.MessageID == "" {
		return "", model.Permanent(status, fmt.Errorf("missing messageId in response body=%q", string(body)))
	}

	return sr.MessageID, nil
}

func (c *WebhookClient) SetWebhook(ctx context.Context, callbackURL string) error {
	reqBody, err := json.Marshal(webhookRequest{URL: callbackURL})
	if err != nil {
		return err
	}

	status, body, err := c.do(ctx, http.MethodPut, c.webhookURL, reqBody)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return classify(status, fmt.Errorf("webhook update rejected: status %d body=%q", status, string(body)))
	}
	return nil
}

func (c *WebhookClient) do(ctx context.Context, method, url string, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, model.Permanent(0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0, nil, err
		}
		return 0, nil, model.Transient(0, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode, body, nil
}

func accepted(status int) bool {
	return status == http.StatusOK || status == http.StatusCreated || status == http.StatusAccepted
}

// classify treats throttling, timeouts and server errors as retryable.
func classify(status int, err error) error {
	if status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500 {
		return model.Transient(status, err)
	}
	return model.Permanent(status, err)
}
