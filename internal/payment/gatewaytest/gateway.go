// Package gatewaytest provides a testify mock of the payment gateway.
package gatewaytest

import (
	"context"
	"net/http"

	paymentdomain "github.com/smallbiznis/affiliora/internal/payment/domain"
	"github.com/stretchr/testify/mock"
)

type Gateway struct {
	mock.Mock
}

var _ paymentdomain.Gateway = (*Gateway)(nil)

func (g *Gateway) Provider() string {
	return "stripe"
}

func (g *Gateway) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	args := g.Called(ctx, payload, headers)
	return args.Error(0)
}

func (g *Gateway) Parse(ctx context.Context, payload []byte) (*paymentdomain.GatewayEvent, error) {
	args := g.Called(ctx, payload)
	event, _ := args.Get(0).(*paymentdomain.GatewayEvent)
	return event, args.Error(1)
}

func (g *Gateway) CreatePaymentIntent(ctx context.Context, req paymentdomain.IntentRequest) (*paymentdomain.Intent, error) {
	args := g.Called(ctx, req)
	intent, _ := args.Get(0).(*paymentdomain.Intent)
	return intent, args.Error(1)
}

func (g *Gateway) CancelPaymentIntent(ctx context.Context, intentID string) error {
	args := g.Called(ctx, intentID)
	return args.Error(0)
}

func (g *Gateway) CreateCheckoutSession(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutSession, error) {
	args := g.Called(ctx, req)
	session, _ := args.Get(0).(*paymentdomain.CheckoutSession)
	return session, args.Error(1)
}

func (g *Gateway) GetSubscription(ctx context.Context, subscriptionID string) (*paymentdomain.GatewaySubscription, error) {
	args := g.Called(ctx, subscriptionID)
	sub, _ := args.Get(0).(*paymentdomain.GatewaySubscription)
	return sub, args.Error(1)
}

func (g *Gateway) CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) (*paymentdomain.GatewaySubscription, error) {
	args := g.Called(ctx, subscriptionID)
	sub, _ := args.Get(0).(*paymentdomain.GatewaySubscription)
	return sub, args.Error(1)
}

func (g *Gateway) ChangeSubscriptionPrice(ctx context.Context, subscriptionID, priceID string) (*paymentdomain.GatewaySubscription, error) {
	args := g.Called(ctx, subscriptionID, priceID)
	sub, _ := args.Get(0).(*paymentdomain.GatewaySubscription)
	return sub, args.Error(1)
}
