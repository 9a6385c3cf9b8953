package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/affiliora/internal/payment/domain"
	stripego "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
)

const providerName = "stripe"

const defaultTimeout = 10 * time.Second

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return providerName
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.Gateway, error) {
	secretKey := strings.TrimSpace(cfg.SecretKey)
	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if secretKey == "" || webhookSecret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	backends := stripego.NewBackends(&http.Client{Timeout: timeout})
	return newAdapter(secretKey, webhookSecret, backends), nil
}

type Adapter struct {
	api           *client.API
	webhookSecret string
}

func newAdapter(secretKey, webhookSecret string, backends *stripego.Backends) *Adapter {
	return &Adapter{
		api:           client.New(secretKey, backends),
		webhookSecret: webhookSecret,
	}
}

func (a *Adapter) Provider() string {
	return providerName
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}
	if err := webhook.ValidatePayload(payload, sigHeader, a.webhookSecret); err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.GatewayEvent, error) {
	var event stripego.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" || event.Data == nil {
		return nil, paymentdomain.ErrInvalidEvent
	}

	out := &paymentdomain.GatewayEvent{
		Provider:   providerName,
		ID:         event.ID,
		RawType:    string(event.Type),
		Type:       paymentdomain.EventType(event.Type),
		OccurredAt: timestamp(event.Created),
		Payload:    payload,
	}

	var err error
	switch event.Type {
	case "checkout.session.completed":
		err = parseCheckoutSession(event.Data.Raw, out)
	case "customer.subscription.created":
		err = parseSubscription(event.Data.Raw, paymentdomain.EventSubscriptionCreated, out)
	case "customer.subscription.updated":
		err = parseSubscription(event.Data.Raw, paymentdomain.EventSubscriptionUpdated, out)
	case "customer.subscription.deleted":
		err = parseSubscription(event.Data.Raw, paymentdomain.EventSubscriptionDeleted, out)
	case "payment_intent.succeeded":
		err = parsePaymentIntent(event.Data.Raw, paymentdomain.EventPaymentSucceeded, out)
	case "payment_intent.payment_failed":
		err = parsePaymentIntent(event.Data.Raw, paymentdomain.EventPaymentFailed, out)
	case "payment_intent.canceled":
		err = parsePaymentIntent(event.Data.Raw, paymentdomain.EventPaymentCanceled, out)
	case "charge.refunded":
		err = parseRefund(event.Data.Raw, out)
	default:
		var object struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(event.Data.Raw, &object)
		out.ObjectID = object.ID
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func parseCheckoutSession(raw json.RawMessage, out *paymentdomain.GatewayEvent) error {
	var session stripego.CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	if session.ID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	out.Type = paymentdomain.EventCheckoutCompleted
	out.ObjectID = session.ID
	out.ClientReferenceID = session.ClientReferenceID
	out.Metadata = session.Metadata
	if session.Subscription != nil {
		out.SubscriptionID = session.Subscription.ID
	}
	if session.PaymentIntent != nil {
		out.PaymentIntentID = session.PaymentIntent.ID
	}
	if session.Customer != nil {
		out.CustomerID = session.Customer.ID
	}
	if session.CustomerDetails != nil {
		out.CustomerEmail = session.CustomerDetails.Email
	}
	return nil
}

func parseSubscription(raw json.RawMessage, eventType paymentdomain.EventType, out *paymentdomain.GatewayEvent) error {
	var sub stripego.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	if sub.ID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	out.Type = eventType
	out.ObjectID = sub.ID
	out.SubscriptionID = sub.ID
	out.Metadata = sub.Metadata
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	return nil
}

func parsePaymentIntent(raw json.RawMessage, eventType paymentdomain.EventType, out *paymentdomain.GatewayEvent) error {
	var intent stripego.PaymentIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	if intent.ID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	out.Type = eventType
	out.ObjectID = intent.ID
	out.PaymentIntentID = intent.ID
	out.Amount = intent.Amount
	out.Currency = strings.ToLower(string(intent.Currency))
	out.Metadata = intent.Metadata
	if intent.LatestCharge != nil {
		out.ReceiptRef = intent.LatestCharge.ID
	}
	if intent.Customer != nil {
		out.CustomerID = intent.Customer.ID
	}
	return nil
}

func parseRefund(raw json.RawMessage, out *paymentdomain.GatewayEvent) error {
	var charge stripego.Charge
	if err := json.Unmarshal(raw, &charge); err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	if charge.ID == "" || charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	out.Type = paymentdomain.EventPaymentRefunded
	out.ObjectID = charge.PaymentIntent.ID
	out.PaymentIntentID = charge.PaymentIntent.ID
	out.Amount = charge.AmountRefunded
	out.Currency = strings.ToLower(string(charge.Currency))
	out.Metadata = charge.Metadata
	return nil
}

func (a *Adapter) CreatePaymentIntent(ctx context.Context, req paymentdomain.IntentRequest) (*paymentdomain.Intent, error) {
	if req.Amount <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}
	params := &stripego.PaymentIntentParams{
		Amount:   stripego.Int64(req.Amount),
		Currency: stripego.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripego.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripego.Bool(true),
		},
	}
	if req.PaymentMethod != "" {
		params.PaymentMethod = stripego.String(req.PaymentMethod)
	}
	params.Context = ctx
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}

	intent, err := a.api.PaymentIntents.New(params)
	if err != nil {
		return nil, gatewayError("create payment intent", err)
	}
	return &paymentdomain.Intent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       string(intent.Status),
	}, nil
}

func (a *Adapter) CancelPaymentIntent(ctx context.Context, intentID string) error {
	params := &stripego.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := a.api.PaymentIntents.Cancel(intentID, params); err != nil {
		return gatewayError("cancel payment intent", err)
	}
	return nil
}

func (a *Adapter) CreateCheckoutSession(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutSession, error) {
	params := &stripego.CheckoutSessionParams{
		Mode: stripego.String(string(stripego.CheckoutSessionModeSubscription)),
		LineItems: []*stripego.CheckoutSessionLineItemParams{
			{
				Price:    stripego.String(req.PriceID),
				Quantity: stripego.Int64(1),
			},
		},
		SuccessURL:        stripego.String(req.SuccessURL),
		CancelURL:         stripego.String(req.CancelURL),
		ClientReferenceID: stripego.String(req.ClientReferenceID),
		SubscriptionData: &stripego.CheckoutSessionSubscriptionDataParams{
			Metadata: req.Metadata,
		},
	}
	if req.CustomerID != "" {
		params.Customer = stripego.String(req.CustomerID)
	} else if req.CustomerEmail != "" {
		params.CustomerEmail = stripego.String(req.CustomerEmail)
	}
	params.Context = ctx
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}

	session, err := a.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, gatewayError("create checkout session", err)
	}
	return &paymentdomain.CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

func (a *Adapter) GetSubscription(ctx context.Context, subscriptionID string) (*paymentdomain.GatewaySubscription, error) {
	params := &stripego.SubscriptionParams{}
	params.Context = ctx
	sub, err := a.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, gatewayError("get subscription", err)
	}
	return toGatewaySubscription(sub), nil
}

func (a *Adapter) CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) (*paymentdomain.GatewaySubscription, error) {
	params := &stripego.SubscriptionParams{
		CancelAtPeriodEnd: stripego.Bool(true),
	}
	params.Context = ctx
	sub, err := a.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, gatewayError("cancel subscription", err)
	}
	return toGatewaySubscription(sub), nil
}

func (a *Adapter) ChangeSubscriptionPrice(ctx context.Context, subscriptionID, priceID string) (*paymentdomain.GatewaySubscription, error) {
	current, err := a.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if current.ItemID == "" {
		return nil, fmt.Errorf("%w: subscription %s has no items", paymentdomain.ErrGateway, subscriptionID)
	}

	params := &stripego.SubscriptionParams{
		Items: []*stripego.SubscriptionItemsParams{
			{
				ID:    stripego.String(current.ItemID),
				Price: stripego.String(priceID),
			},
		},
		ProrationBehavior: stripego.String("create_prorations"),
	}
	params.Context = ctx
	sub, err := a.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, gatewayError("change subscription price", err)
	}
	return toGatewaySubscription(sub), nil
}

func toGatewaySubscription(sub *stripego.Subscription) *paymentdomain.GatewaySubscription {
	out := &paymentdomain.GatewaySubscription{
		ID:                 sub.ID,
		Status:             string(sub.Status),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CurrentPeriodStart: timestamp(sub.CurrentPeriodStart),
		CurrentPeriodEnd:   timestamp(sub.CurrentPeriodEnd),
		Metadata:           sub.Metadata,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.EndedAt > 0 {
		ended := timestamp(sub.EndedAt)
		out.EndedAt = &ended
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		out.ItemID = item.ID
		if item.Price != nil {
			out.PriceID = item.Price.ID
		}
	}
	return out
}

func gatewayError(op string, err error) error {
	var stripeErr *stripego.Error
	if errors.As(err, &stripeErr) {
		return fmt.Errorf("%w: %s: %s (%d)", paymentdomain.ErrGateway, op, stripeErr.Code, stripeErr.HTTPStatusCode)
	}
	return fmt.Errorf("%w: %s: %v", paymentdomain.ErrGateway, op, err)
}

func timestamp(unix int64) time.Time {
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0).UTC()
}
