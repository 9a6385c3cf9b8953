package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	paymentdomain "github.com/smallbiznis/affiliora/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripego "github.com/stripe/stripe-go/v81"
)

const testWebhookSecret = "whsec_test"

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	url := "http://127.0.0.1:0"
	if handler != nil {
		server := httptest.NewServer(handler)
		t.Cleanup(server.Close)
		url = server.URL
	}
	backend := stripego.GetBackendWithConfig(stripego.APIBackend, &stripego.BackendConfig{
		URL:               stripego.String(url),
		MaxNetworkRetries: stripego.Int64(0),
		LeveledLogger:     &stripego.LeveledLogger{Level: stripego.LevelNull},
	})
	return newAdapter("sk_test_123", testWebhookSecret, &stripego.Backends{API: backend})
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_123","type":"charge.succeeded","data":{"object":{}}}`)
	timestamp := time.Now().Unix()

	reqHeader := http.Header{}
	reqHeader.Set("Stripe-Signature", buildStripeSignatureHeader(testWebhookSecret, payload, timestamp))

	adapter := newTestAdapter(t, nil)
	require.NoError(t, adapter.Verify(context.Background(), payload, reqHeader))

	reqHeader.Set("Stripe-Signature", buildStripeSignatureHeader("wrong", payload, timestamp))
	require.ErrorIs(t, adapter.Verify(context.Background(), payload, reqHeader), paymentdomain.ErrInvalidSignature)

	reqHeader.Del("Stripe-Signature")
	require.ErrorIs(t, adapter.Verify(context.Background(), payload, reqHeader), paymentdomain.ErrInvalidSignature)
}

func TestParseEvents(t *testing.T) {
	created := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC).Unix()

	tests := []struct {
		name   string
		event  map[string]any
		assert func(t *testing.T, ev *paymentdomain.GatewayEvent)
	}{{
		name: "checkout.session.completed",
		event: map[string]any{
			"id":      "evt_checkout",
			"type":    "checkout.session.completed",
			"created": created,
			"data": map[string]any{"object": map[string]any{
				"id":                  "cs_1",
				"object":              "checkout.session",
				"client_reference_id": "token-abc",
				"customer":            "cus_1",
				"subscription":        "sub_1",
				"metadata":            map[string]any{"user_id": "42"},
			}},
		},
		assert: func(t *testing.T, ev *paymentdomain.GatewayEvent) {
			assert.Equal(t, paymentdomain.EventCheckoutCompleted, ev.Type)
			assert.Equal(t, "cs_1", ev.ObjectID)
			assert.Equal(t, "sub_1", ev.SubscriptionID)
			assert.Equal(t, "cus_1", ev.CustomerID)
			assert.Equal(t, "token-abc", ev.ClientReferenceID)
			assert.Equal(t, "42", ev.Metadata["user_id"])
		},
	}, {
		name: "customer.subscription.updated",
		event: map[string]any{
			"id":      "evt_sub",
			"type":    "customer.subscription.updated",
			"created": created,
			"data": map[string]any{"object": map[string]any{
				"id":       "sub_1",
				"object":   "subscription",
				"customer": "cus_1",
				"status":   "active",
			}},
		},
		assert: func(t *testing.T, ev *paymentdomain.GatewayEvent) {
			assert.Equal(t, paymentdomain.EventSubscriptionUpdated, ev.Type)
			assert.Equal(t, "sub_1", ev.SubscriptionID)
			assert.Equal(t, "cus_1", ev.CustomerID)
			assert.Equal(t, time.Unix(created, 0).UTC(), ev.OccurredAt)
		},
	}, {
		name: "payment_intent.succeeded",
		event: map[string]any{
			"id":   "evt_pi",
			"type": "payment_intent.succeeded",
			"data": map[string]any{"object": map[string]any{
				"id":       "pi_1",
				"object":   "payment_intent",
				"amount":   2500,
				"currency": "usd",
			}},
		},
		assert: func(t *testing.T, ev *paymentdomain.GatewayEvent) {
			assert.Equal(t, paymentdomain.EventPaymentSucceeded, ev.Type)
			assert.Equal(t, "pi_1", ev.PaymentIntentID)
			assert.Equal(t, int64(2500), ev.Amount)
			assert.Equal(t, "usd", ev.Currency)
		},
	}, {
		name: "charge.refunded",
		event: map[string]any{
			"id":   "evt_refund",
			"type": "charge.refunded",
			"data": map[string]any{"object": map[string]any{
				"id":              "ch_1",
				"object":          "charge",
				"payment_intent":  "pi_1",
				"amount_refunded": 1000,
				"currency":        "usd",
			}},
		},
		assert: func(t *testing.T, ev *paymentdomain.GatewayEvent) {
			assert.Equal(t, paymentdomain.EventPaymentRefunded, ev.Type)
			assert.Equal(t, "pi_1", ev.PaymentIntentID)
			assert.Equal(t, int64(1000), ev.Amount)
		},
	}, {
		name: "unknown type keeps raw name",
		event: map[string]any{
			"id":   "evt_other",
			"type": "invoice.upcoming",
			"data": map[string]any{"object": map[string]any{"id": "in_1", "object": "invoice"}},
		},
		assert: func(t *testing.T, ev *paymentdomain.GatewayEvent) {
			assert.Equal(t, paymentdomain.EventType("invoice.upcoming"), ev.Type)
			assert.Equal(t, "in_1", ev.ObjectID)
		},
	}}

	adapter := newTestAdapter(t, nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := json.Marshal(tc.event)
			require.NoError(t, err)
			ev, err := adapter.Parse(context.Background(), payload)
			require.NoError(t, err)
			assert.Equal(t, "stripe", ev.Provider)
			assert.Equal(t, tc.event["id"], ev.ID)
			tc.assert(t, ev)
		})
	}
}

func TestParseRejectsMalformedPayload(t *testing.T) {
	adapter := newTestAdapter(t, nil)

	_, err := adapter.Parse(context.Background(), []byte(`not json`))
	require.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)

	_, err = adapter.Parse(context.Background(), []byte(`{"type":"payment_intent.succeeded","data":{"object":{}}}`))
	require.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)
}

func TestCreatePaymentIntent(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "2500", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.Equal(t, "77", r.PostForm.Get("metadata[order_id]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","client_secret":"pi_123_secret","status":"requires_payment_method"}`))
	})

	intent, err := adapter.CreatePaymentIntent(context.Background(), paymentdomain.IntentRequest{
		Amount:   2500,
		Currency: "USD",
		Metadata: map[string]string{"order_id": "77"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", intent.ID)
	assert.Equal(t, "pi_123_secret", intent.ClientSecret)
}

func TestGatewayFailuresWrapErrGateway(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"boom"}}`))
	})

	_, err := adapter.GetSubscription(context.Background(), "sub_1")
	require.ErrorIs(t, err, paymentdomain.ErrGateway)

	err = adapter.CancelPaymentIntent(context.Background(), "pi_1")
	require.ErrorIs(t, err, paymentdomain.ErrGateway)
}

func TestChangeSubscriptionPriceUpdatesFirstItem(t *testing.T) {
	periodEnd := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC).Unix()
	var updated bool
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/subscriptions/sub_1", r.URL.Path)
		price := "price_creator"
		if r.Method == http.MethodPost {
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "si_1", r.PostForm.Get("items[0][id]"))
			assert.Equal(t, "price_pro", r.PostForm.Get("items[0][price]"))
			assert.Equal(t, "create_prorations", r.PostForm.Get("proration_behavior"))
			price = "price_pro"
			updated = true
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"id":"sub_1","object":"subscription","customer":"cus_1","status":"active",
			"current_period_end":%d,
			"items":{"object":"list","data":[{"id":"si_1","object":"subscription_item","price":{"id":%q,"object":"price"}}]}}`,
			periodEnd, price)
	})

	sub, err := adapter.ChangeSubscriptionPrice(context.Background(), "sub_1", "price_pro")
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, "price_pro", sub.PriceID)
	assert.Equal(t, "cus_1", sub.CustomerID)
	assert.Equal(t, time.Unix(periodEnd, 0).UTC(), sub.CurrentPeriodEnd)
}

func TestFactoryRequiresSecrets(t *testing.T) {
	_, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{SecretKey: "sk_test"})
	require.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)

	gateway, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{SecretKey: "sk_test", WebhookSecret: "whsec"})
	require.NoError(t, err)
	assert.Equal(t, "stripe", gateway.Provider())
}

func buildStripeSignatureHeader(secret string, payload []byte, ts int64) string {
	signedPayload := fmt.Sprintf("%d.%s", ts, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", ts, signature)
}
