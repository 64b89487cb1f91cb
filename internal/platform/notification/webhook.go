package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// WebhookPushSender delivers push notifications by POSTing them to an
// external gateway (e.g. a mobile push relay).
type WebhookPushSender struct {
	client *resty.Client
	url    string
}

// NewWebhookPushSender creates a push sender targeting the given endpoint.
func NewWebhookPushSender(url string) *WebhookPushSender {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &WebhookPushSender{client: client, url: url}
}

type pushPayload struct {
	To    string `json:"to"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// SendPush implements PushSender.
func (s *WebhookPushSender) SendPush(ctx context.Context, to, title, body string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(pushPayload{To: to, Title: title, Body: body}).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("push webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("push webhook returned status %d", resp.StatusCode())
	}
	return nil
}
