package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookSender delivers messages by POSTing them to the messaging gateway.
// The base URL is injected from config so tests can point to a local mock.
type WebhookSender struct {
	baseURL    string
	httpClient *http.Client
}

func NewWebhookSender(baseURL string, timeout time.Duration) *WebhookSender {
	return &WebhookSender{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send posts the message to the configured gateway URL and expects a
// 202 Accepted response with a JSON body containing messageId.
func (s *WebhookSender) Send(ctx context.Context, m Message) (*SendResponse, error) {
	body, err := json.Marshal(SendRequest{
		To:              m.Recipient.ID,
		RecipientType:   string(m.Recipient.Type),
		Domain:          m.Domain,
		ContentType:     string(m.Type),
		Subject:         m.Subject,
		Body:            m.Body,
		CustomContentID: m.CustomContentID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("unexpected gateway status: %d", resp.StatusCode)
	}

	var sendResp SendResponse
	if err := json.NewDecoder(resp.Body).Decode(&sendResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &sendResp, nil
}

// compile-time check that WebhookSender implements Sender
var _ Sender = (*WebhookSender)(nil)
