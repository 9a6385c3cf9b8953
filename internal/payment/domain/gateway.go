package domain

import (
	"context"
	"net/http"
	"time"
)

// EventType is the gateway-neutral name of a webhook event.
type EventType string

const (
	EventCheckoutCompleted   EventType = "checkout.completed"
	EventSubscriptionCreated EventType = "subscription.created"
	EventSubscriptionUpdated EventType = "subscription.updated"
	EventSubscriptionDeleted EventType = "subscription.deleted"
	EventPaymentSucceeded    EventType = "payment.succeeded"
	EventPaymentFailed       EventType = "payment.failed"
	EventPaymentCanceled     EventType = "payment.canceled"
	EventPaymentRefunded     EventType = "payment.refunded"
)

// GatewayEvent is a verified webhook parsed by an adapter. Types the adapter
// does not know keep the provider's raw type name.
type GatewayEvent struct {
	Provider          string
	ID                string
	Type              EventType
	RawType           string
	ObjectID          string
	SubscriptionID    string
	PaymentIntentID   string
	ReceiptRef        string
	CustomerID        string
	CustomerEmail     string
	ClientReferenceID string
	Metadata          map[string]string
	Amount            int64
	Currency          string
	OccurredAt        time.Time
	Payload           []byte
}

// GatewaySubscription is the gateway's current view of a subscription.
type GatewaySubscription struct {
	ID                 string
	CustomerID         string
	PriceID            string
	ItemID             string
	Status             string
	CancelAtPeriodEnd  bool
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	EndedAt            *time.Time
	Metadata           map[string]string
}

type IntentRequest struct {
	Amount        int64
	Currency      string
	PaymentMethod string
	Metadata      map[string]string
}

type Intent struct {
	ID           string
	ClientSecret string
	Status       string
}

type CheckoutRequest struct {
	PriceID           string
	CustomerID        string
	CustomerEmail     string
	ClientReferenceID string
	SuccessURL        string
	CancelURL         string
	Metadata          map[string]string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// Gateway is the payment provider seen by the rest of the service. Transport
// failures surface as ErrGateway.
type Gateway interface {
	Provider() string
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*GatewayEvent, error)

	CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	CancelPaymentIntent(ctx context.Context, intentID string) error

	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*GatewaySubscription, error)
	CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) (*GatewaySubscription, error)
	ChangeSubscriptionPrice(ctx context.Context, subscriptionID, priceID string) (*GatewaySubscription, error)
}

type AdapterConfig struct {
	Provider      string
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Gateway, error)
}
