package domain

import (
	"context"
	"net/http"
)

// Reconciler applies verified gateway webhooks to local state.
type Reconciler interface {
	HandleWebhook(ctx context.Context, payload []byte, headers http.Header) (*WebhookResult, error)
}

type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	// Duplicate is set when the event was already processed.
	Duplicate bool `json:"duplicate"`
	// Ignored is set for event types without a handler.
	Ignored bool `json:"ignored"`
}
