package sender

import (
	"context"

	"github.com/remindhub/messaging-scheduler/internal/scheduling"
)

// Message is a fully resolved outbound send: one recipient, one language
// variant of one event's content.
type Message struct {
	Recipient scheduling.Recipient
	Domain    string
	Type      scheduling.ContentType

	// Subject is set for email content only.
	Subject string
	Body    string

	// CustomContentID names the registered handler for custom content; Body
	// is empty in that case and the gateway resolves the text itself.
	CustomContentID string
}

// SendRequest is the JSON body posted to the external gateway.
type SendRequest struct {
	To              string `json:"to"`
	RecipientType   string `json:"recipientType"`
	Domain          string `json:"domain"`
	ContentType     string `json:"contentType"`
	Subject         string `json:"subject,omitempty"`
	Body            string `json:"body,omitempty"`
	CustomContentID string `json:"customContentId,omitempty"`
}

// SendResponse maps the gateway's 202 Accepted response body.
type SendResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Sender abstracts delivery to the external messaging gateway.
// Mocking this interface in tests gives full control over gateway behaviour
// without making real HTTP calls.
type Sender interface {
	Send(ctx context.Context, m Message) (*SendResponse, error)
}
