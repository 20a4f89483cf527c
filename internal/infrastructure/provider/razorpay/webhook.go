package razorpay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wityliti/wityliti.io-sub000/internal/domain/provider"
)

// ParseWebhookEvent normalizes the gateway's webhook envelope
func (c *Client) ParseWebhookEvent(body []byte, eventID string) (*provider.WebhookEvent, error) {
	return ParseWebhookEvent(body, eventID)
}

func ParseWebhookEvent(body []byte, eventID string) (*provider.WebhookEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("invalid webhook payload: missing event")
	}

	event := &provider.WebhookEvent{
		EventID: eventID,
		Type:    env.Event,
	}
	if env.CreatedAt > 0 {
		event.CreatedAt = time.Unix(env.CreatedAt, 0).UTC()
	}
	if env.Payload.Subscription != nil {
		event.Subscription = env.Payload.Subscription.Entity.toProvider()
	}
	if env.Payload.Payment != nil {
		event.Payment = env.Payload.Payment.Entity.toProvider()
	}
	return event, nil
}
