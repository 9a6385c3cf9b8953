package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/affiliora/internal/clock"
	"github.com/smallbiznis/affiliora/internal/notification"
	obsmetrics "github.com/smallbiznis/affiliora/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/affiliora/internal/order/domain"
	paymentdomain "github.com/smallbiznis/affiliora/internal/payment/domain"
	"github.com/smallbiznis/affiliora/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/affiliora/internal/subscription/domain"
	"github.com/smallbiznis/affiliora/pkg/log/ctxlogger"
	"github.com/smallbiznis/affiliora/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const metadataOrderID = "order_id"

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Gateway       paymentdomain.Gateway
	Repo          paymentdomain.Repository
	Orders        orderdomain.Service
	Subscriptions subscriptiondomain.Service
	Notifier      *notification.Dispatcher `optional:"true"`
	Locker        *ratelimit.WebhookLocker `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics      `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	gateway       paymentdomain.Gateway
	repo          paymentdomain.Repository
	orders        orderdomain.Service
	subscriptions subscriptiondomain.Service
	notifier      *notification.Dispatcher
	locker        *ratelimit.WebhookLocker
	obsMetrics    *obsmetrics.Metrics

	handlers map[paymentdomain.EventType]handler
}

// handler processes one event type. prepare runs before the transaction and
// is where gateway reads happen; apply runs inside it.
type handler struct {
	prepare func(ctx context.Context, ev *paymentdomain.GatewayEvent, st *eventState) error
	apply   func(ctx context.Context, tx *gorm.DB, ev *paymentdomain.GatewayEvent, st *eventState) error
}

type eventState struct {
	subscription  *paymentdomain.GatewaySubscription
	checkoutToken string
	outcome       string
	afterCommit   []func(context.Context)
}

func (st *eventState) onCommit(fn func(context.Context)) {
	st.afterCommit = append(st.afterCommit, fn)
}

func NewService(p Params) paymentdomain.Reconciler {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	s := &Service{
		db:            p.DB,
		log:           p.Log.Named("payment.webhook"),
		genID:         p.GenID,
		clock:         clk,
		gateway:       p.Gateway,
		repo:          p.Repo,
		orders:        p.Orders,
		subscriptions: p.Subscriptions,
		notifier:      p.Notifier,
		locker:        p.Locker,
		obsMetrics:    p.ObsMetrics,
	}
	subscriptionHandler := handler{prepare: s.fetchSubscription, apply: s.applySubscription}
	s.handlers = map[paymentdomain.EventType]handler{
		paymentdomain.EventCheckoutCompleted:   {prepare: s.prepareCheckout, apply: s.applyCheckout},
		paymentdomain.EventSubscriptionCreated: subscriptionHandler,
		paymentdomain.EventSubscriptionUpdated: subscriptionHandler,
		paymentdomain.EventSubscriptionDeleted: subscriptionHandler,
		paymentdomain.EventPaymentSucceeded:    {apply: s.applyPaymentSucceeded},
		paymentdomain.EventPaymentFailed:       {apply: s.endPayment(paymentdomain.StatusFailed)},
		paymentdomain.EventPaymentCanceled:     {apply: s.endPayment(paymentdomain.StatusCanceled)},
		paymentdomain.EventPaymentRefunded:     {apply: s.applyRefund},
	}
	return s
}

func (s *Service) HandleWebhook(ctx context.Context, payload []byte, headers http.Header) (*paymentdomain.WebhookResult, error) {
	if len(payload) == 0 {
		return nil, paymentdomain.ErrInvalidPayload
	}
	provider := s.gateway.Provider()
	if err := s.gateway.Verify(ctx, payload, headers); err != nil {
		s.recordEvent(ctx, "unknown", "invalid_signature")
		return nil, err
	}
	ev, err := s.gateway.Parse(ctx, payload)
	if err != nil {
		s.recordEvent(ctx, "unknown", "invalid_payload")
		return nil, err
	}

	ctx, _ = correlation.EnsureCorrelationID(ctx)
	ctx = ctxlogger.ContextWithEventSubject(ctx, ev.RawType)

	result := &paymentdomain.WebhookResult{EventID: ev.ID, EventType: ev.RawType}
	log := ctxlogger.WithContext(ctx, s.log).With(
		zap.String("provider", provider),
		zap.String("event_id", ev.ID),
		zap.String("event_type", ev.RawType),
		zap.String("object_id", ev.ObjectID),
	)

	seen, err := s.repo.FindEvent(ctx, s.db, provider, ev.ID)
	if err != nil {
		return nil, err
	}
	if seen != nil && seen.ProcessedAt != nil {
		log.Debug("duplicate webhook delivery")
		result.Duplicate = true
		s.recordEvent(ctx, string(ev.Type), "duplicate")
		return result, nil
	}

	h, ok := s.handlers[ev.Type]
	if !ok {
		log.Info("ignoring unhandled webhook event")
		result.Ignored = true
	}

	release := s.locker.Acquire(ctx, provider, lockObject(ev))
	defer release()

	st := &eventState{outcome: "applied"}
	if ok && h.prepare != nil {
		if err := h.prepare(ctx, ev, st); err != nil {
			log.Warn("failed to prepare webhook event", zap.Error(err))
			s.recordEvent(ctx, string(ev.Type), "error")
			return nil, err
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		record := &paymentdomain.EventRecord{
			ID:              s.genID.Generate(),
			Provider:        provider,
			ProviderEventID: ev.ID,
			EventType:       ev.RawType,
			ObjectID:        ev.ObjectID,
			Payload:         datatypes.JSON(payload),
			ReceivedAt:      now,
		}
		inserted, err := s.repo.InsertEvent(ctx, tx, record)
		if err != nil {
			return err
		}
		if !inserted {
			result.Duplicate = true
			st.outcome = "duplicate"
			st.afterCommit = nil
			return nil
		}
		if ok {
			if err := h.apply(ctx, tx, ev, st); err != nil {
				return err
			}
		} else {
			st.outcome = "ignored"
		}
		return s.repo.MarkProcessed(ctx, tx, record.ID, now)
	})
	if err != nil {
		s.recordEvent(ctx, string(ev.Type), "error")
		if errors.Is(err, paymentdomain.ErrGateway) {
			log.Warn("gateway error while applying webhook", zap.Error(err))
			return nil, err
		}
		log.Error("webhook processing failed, transaction rolled back",
			zap.Error(err),
			zap.ByteString("payload", payload),
		)
		return nil, fmt.Errorf("%w: %w", paymentdomain.ErrIntegrity, err)
	}

	for _, fn := range st.afterCommit {
		fn(ctx)
	}
	s.recordEvent(ctx, string(ev.Type), st.outcome)
	return result, nil
}

func (s *Service) prepareCheckout(ctx context.Context, ev *paymentdomain.GatewayEvent, st *eventState) error {
	if ev.SubscriptionID == "" {
		return nil
	}
	st.checkoutToken = ev.ClientReferenceID
	return s.fetchSubscription(ctx, ev, st)
}

// fetchSubscription reads the gateway's current view so that stale or
// reordered deliveries converge on the latest state.
func (s *Service) fetchSubscription(ctx context.Context, ev *paymentdomain.GatewayEvent, st *eventState) error {
	if strings.TrimSpace(ev.SubscriptionID) == "" {
		return paymentdomain.ErrInvalidEvent
	}
	sub, err := s.gateway.GetSubscription(ctx, ev.SubscriptionID)
	s.recordGatewayCall(ctx, "get_subscription", err)
	if err != nil {
		return err
	}
	if sub == nil {
		return paymentdomain.ErrGateway
	}
	st.subscription = sub
	return nil
}

func (s *Service) applySubscription(ctx context.Context, tx *gorm.DB, ev *paymentdomain.GatewayEvent, st *eventState) error {
	res, err := s.subscriptions.ApplyGatewayStateTx(ctx, tx, subscriptiondomain.ApplyRequest{
		Subscription:  st.subscription,
		CheckoutToken: st.checkoutToken,
	})
	if err != nil {
		return err
	}
	if res.Rejected {
		st.outcome = "rejected"
		return nil
	}

	sub := res.Subscription
	from := string(res.Previous)
	if from != string(sub.Status) {
		st.onCommit(func(ctx context.Context) {
			if s.obsMetrics != nil {
				s.obsMetrics.RecordSubscription(ctx, from, string(sub.Status))
			}
		})
	}
	switch {
	case res.Activated():
		st.onCommit(func(ctx context.Context) { s.notifier.SubscriptionActivated(ctx, sub) })
	case res.Ended():
		fallback := ""
		if res.User != nil {
			fallback = res.User.Plan
		}
		st.onCommit(func(ctx context.Context) { s.notifier.SubscriptionEnded(ctx, sub, fallback) })
	}
	return nil
}

func (s *Service) applyCheckout(ctx context.Context, tx *gorm.DB, ev *paymentdomain.GatewayEvent, st *eventState) error {
	if st.subscription != nil {
		return s.applySubscription(ctx, tx, ev, st)
	}

	// One-time sale: settle the order the session was created for.
	var orderID snowflake.ID
	if raw := strings.TrimSpace(ev.Metadata[metadataOrderID]); raw != "" {
		parsed, err := snowflake.ParseString(raw)
		if err != nil {
			return paymentdomain.ErrInvalidEvent
		}
		orderID = parsed
	}
	intentID := strings.TrimSpace(ev.PaymentIntentID)

	var payment *paymentdomain.Payment
	var err error
	switch {
	case orderID != 0:
		payment, err = s.repo.FindPaymentByOrder(ctx, tx, orderID)
	case intentID != "":
		payment, err = s.repo.FindPaymentByIntent(ctx, tx, intentID)
	default:
		s.log.Info("checkout session without order or subscription", zap.String("session_id", ev.ObjectID))
		st.outcome = "ignored"
		return nil
	}
	if err != nil {
		return err
	}
	if payment == nil {
		s.log.Info("checkout session for unknown order", zap.String("session_id", ev.ObjectID))
		st.outcome = "ignored"
		return nil
	}
	if intentID == "" {
		intentID = payment.GatewayIntentID
	}
	return s.markPaid(ctx, tx, st, payment.OrderID, intentID, ev.ReceiptRef)
}

func (s *Service) applyPaymentSucceeded(ctx context.Context, tx *gorm.DB, ev *paymentdomain.GatewayEvent, st *eventState) error {
	payment, err := s.repo.FindPaymentByIntent(ctx, tx, ev.PaymentIntentID)
	if err != nil {
		return err
	}
	if payment == nil {
		// Subscription invoices are paid through intents we never created.
		s.log.Debug("payment intent not linked to an order", zap.String("intent_id", ev.PaymentIntentID))
		st.outcome = "ignored"
		return nil
	}
	return s.markPaid(ctx, tx, st, payment.OrderID, ev.PaymentIntentID, ev.ReceiptRef)
}

func (s *Service) markPaid(ctx context.Context, tx *gorm.DB, st *eventState, orderID snowflake.ID, intentID, receiptRef string) error {
	settlement, err := s.orders.MarkPaidTx(ctx, tx, orderdomain.MarkPaidRequest{
		OrderID:    orderID,
		IntentID:   intentID,
		ReceiptRef: receiptRef,
	})
	if err != nil {
		return err
	}
	if !settlement.Applied {
		st.outcome = "noop"
		return nil
	}
	order := settlement.Order
	st.onCommit(func(ctx context.Context) {
		if s.obsMetrics != nil {
			s.obsMetrics.RecordOrder(ctx, string(orderdomain.StatusPaid))
		}
		s.notifier.OrderPaid(ctx, order)
	})
	return nil
}

func (s *Service) endPayment(status paymentdomain.PaymentStatus) func(context.Context, *gorm.DB, *paymentdomain.GatewayEvent, *eventState) error {
	return func(ctx context.Context, tx *gorm.DB, ev *paymentdomain.GatewayEvent, st *eventState) error {
		_, changed, err := s.orders.EndPaymentTx(ctx, tx, ev.PaymentIntentID, status)
		if errors.Is(err, paymentdomain.ErrPaymentNotFound) {
			st.outcome = "ignored"
			return nil
		}
		if err != nil {
			return err
		}
		if !changed {
			st.outcome = "noop"
			return nil
		}
		st.onCommit(func(ctx context.Context) {
			if s.obsMetrics != nil {
				s.obsMetrics.RecordOrder(ctx, string(orderdomain.StatusCancelled))
			}
		})
		return nil
	}
}

func (s *Service) applyRefund(ctx context.Context, tx *gorm.DB, ev *paymentdomain.GatewayEvent, st *eventState) error {
	_, recorded, err := s.orders.RefundTx(ctx, tx, ev.PaymentIntentID, ev.Amount)
	if errors.Is(err, paymentdomain.ErrPaymentNotFound) {
		st.outcome = "ignored"
		return nil
	}
	if err != nil {
		return err
	}
	if !recorded {
		st.outcome = "noop"
	}
	return nil
}

func (s *Service) recordEvent(ctx context.Context, eventType, outcome string) {
	if s.obsMetrics == nil {
		return
	}
	s.obsMetrics.RecordWebhookEvent(ctx, s.gateway.Provider(), eventType, outcome)
}

func (s *Service) recordGatewayCall(ctx context.Context, op string, err error) {
	if s.obsMetrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
	}
	s.obsMetrics.RecordGatewayCall(ctx, s.gateway.Provider(), op, outcome)
}

func lockObject(ev *paymentdomain.GatewayEvent) string {
	switch {
	case ev.SubscriptionID != "":
		return ev.SubscriptionID
	case ev.PaymentIntentID != "":
		return ev.PaymentIntentID
	default:
		return ev.ObjectID
	}
}
