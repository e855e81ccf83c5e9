package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookTransport posts a Slack-compatible JSON payload to a fixed URL.
type WebhookTransport struct {
	url    string
	client *http.Client
}

func NewWebhookTransport(url string, timeout time.Duration) *WebhookTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookTransport{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type webhookPayload struct {
	Text     string `json:"text"`
	To       string `json:"to,omitempty"`
	Subject  string `json:"subject"`
	Recovery bool   `json:"recovery"`
}

func (w *WebhookTransport) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(webhookPayload{
		Text:     msg.Subject + "\n" + msg.Body,
		To:       msg.To,
		Subject:  msg.Subject,
		Recovery: msg.Recovery,
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
