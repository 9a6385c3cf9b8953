package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	affiliationdomain "github.com/smallbiznis/affiliora/internal/affiliation/domain"
	"github.com/smallbiznis/affiliora/internal/clock"
	"github.com/smallbiznis/affiliora/internal/commission"
	"github.com/smallbiznis/affiliora/internal/config"
	ledgerdomain "github.com/smallbiznis/affiliora/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/affiliora/internal/observability/metrics"
	"github.com/smallbiznis/affiliora/internal/order/domain"
	paymentdomain "github.com/smallbiznis/affiliora/internal/payment/domain"
	productdomain "github.com/smallbiznis/affiliora/internal/product/domain"
	"github.com/smallbiznis/affiliora/internal/sponsorship"
	userdomain "github.com/smallbiznis/affiliora/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Cfg          config.Config
	Repo         domain.Repository
	Payments     paymentdomain.Repository
	Gateway      paymentdomain.Gateway
	Users        userdomain.Repository
	Products     productdomain.Repository
	Affiliations affiliationdomain.Service
	Sponsorships *sponsorship.Finder
	Ledger       ledgerdomain.Service
	Calculator   *commission.Calculator
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	defaultCurrency string
	repo            domain.Repository
	payments        paymentdomain.Repository
	gateway         paymentdomain.Gateway
	users           userdomain.Repository
	products        productdomain.Repository
	affiliations    affiliationdomain.Service
	sponsorships    *sponsorship.Finder
	ledger          ledgerdomain.Service
	calculator      *commission.Calculator
	obsMetrics      *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	calculator := p.Calculator
	if calculator == nil {
		calculator = commission.NewCalculator(p.Cfg)
	}
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("order.service"),
		genID:           p.GenID,
		clock:           clk,
		defaultCurrency: strings.ToLower(strings.TrimSpace(p.Cfg.Gateway.DefaultCurrency)),
		repo:            p.Repo,
		payments:        p.Payments,
		gateway:         p.Gateway,
		users:           p.Users,
		products:        p.Products,
		affiliations:    p.Affiliations,
		sponsorships:    p.Sponsorships,
		ledger:          p.Ledger,
		calculator:      calculator,
		obsMetrics:      p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.CreateResult, error) {
	if req.BuyerID == 0 {
		return nil, domain.ErrInvalidBuyer
	}
	if len(req.Items) == 0 {
		return nil, domain.ErrEmptyItems
	}
	for _, item := range req.Items {
		if item.ProductID == 0 {
			return nil, productdomain.ErrNotFound
		}
		if item.Quantity <= 0 {
			return nil, domain.ErrInvalidQuantity
		}
	}

	buyer, err := s.users.FindByID(ctx, s.db, req.BuyerID)
	if err != nil {
		return nil, err
	}
	if buyer == nil {
		return nil, domain.ErrInvalidBuyer
	}

	products, err := s.loadProducts(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	orderID := s.genID.Generate()
	order := &domain.Order{
		ID:           orderID,
		BuyerID:      req.BuyerID,
		InfluencerID: req.InfluencerID,
		Status:       domain.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	items := make([]domain.Item, 0, len(req.Items))
	for _, line := range req.Items {
		product := products[line.ProductID]
		if product.PriceCents < 0 {
			return nil, domain.ErrInvalidPrice
		}
		if order.BrandID == 0 {
			order.BrandID = product.BrandID
			order.Currency = product.Currency
		}
		if product.BrandID != order.BrandID {
			return nil, domain.ErrMixedBrands
		}
		if !strings.EqualFold(product.Currency, order.Currency) {
			return nil, domain.ErrMixedCurrencies
		}
		items = append(items, domain.Item{
			ID:                s.genID.Generate(),
			OrderID:           orderID,
			ProductID:         product.ID,
			Quantity:          line.Quantity,
			UnitPrice:         product.PriceCents,
			CoverageType:      domain.CoverageNone,
			CommissionPercent: decimal.Zero,
			CreatedAt:         now,
		})
		order.TotalAmount += product.PriceCents * line.Quantity
	}
	order.Currency = strings.ToLower(strings.TrimSpace(order.Currency))
	if order.Currency == "" {
		order.Currency = s.defaultCurrency
	}
	if order.TotalAmount <= 0 {
		return nil, domain.ErrInvalidTotal
	}

	if req.InfluencerID != nil {
		if err := s.resolveCoverage(ctx, *req.InfluencerID, products, items, now); err != nil {
			return nil, err
		}
	}
	if _, err := s.calculator.Calculate(toCommissionItems(order, items)); err != nil {
		return nil, err
	}

	intent, err := s.gateway.CreatePaymentIntent(ctx, paymentdomain.IntentRequest{
		Amount:        order.TotalAmount,
		Currency:      order.Currency,
		PaymentMethod: strings.TrimSpace(req.PaymentMethodRef),
		Metadata: map[string]string{
			"order_id": orderID.String(),
			"buyer_id": req.BuyerID.String(),
		},
	})
	s.recordGatewayCall(ctx, "create_payment_intent", err)
	if err != nil {
		return nil, err
	}
	order.PaymentRef = intent.ID

	payment := &paymentdomain.Payment{
		ID:              s.genID.Generate(),
		OrderID:         orderID,
		GatewayIntentID: intent.ID,
		Amount:          order.TotalAmount,
		Currency:        order.Currency,
		Status:          paymentdomain.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, order); err != nil {
			return err
		}
		if err := s.repo.InsertItems(ctx, tx, items); err != nil {
			return err
		}
		return s.payments.InsertPayment(ctx, tx, payment)
	})
	if err != nil {
		s.log.Error("failed to persist order, cancelling intent",
			zap.String("order_id", orderID.String()),
			zap.String("intent_id", intent.ID),
			zap.Error(err),
		)
		cancelErr := s.gateway.CancelPaymentIntent(context.WithoutCancel(ctx), intent.ID)
		s.recordGatewayCall(ctx, "cancel_payment_intent", cancelErr)
		if cancelErr != nil {
			s.log.Warn("failed to cancel orphan intent", zap.String("intent_id", intent.ID), zap.Error(cancelErr))
		}
		return nil, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordOrder(ctx, string(domain.StatusPending))
	}
	order.Items = items
	return &domain.CreateResult{Order: order, Payment: payment, ClientSecret: intent.ClientSecret}, nil
}

func (s *Service) loadProducts(ctx context.Context, lines []domain.ItemRequest) (map[snowflake.ID]productdomain.Product, error) {
	ids := make([]snowflake.ID, 0, len(lines))
	seen := map[snowflake.ID]struct{}{}
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}

	found, err := s.products.FindByIDs(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[snowflake.ID]productdomain.Product, len(found))
	for _, product := range found {
		out[product.ID] = product
	}
	for _, id := range ids {
		product, ok := out[id]
		if !ok {
			return nil, productdomain.ErrNotFound
		}
		if !product.Active {
			return nil, productdomain.ErrInactive
		}
	}
	return out, nil
}

// resolveCoverage snapshots the commission basis of every item. A sponsorship
// active now takes precedence over the standing affiliation.
func (s *Service) resolveCoverage(ctx context.Context, influencerID snowflake.ID, products map[snowflake.ID]productdomain.Product, items []domain.Item, at time.Time) error {
	influencer, err := s.users.FindByID(ctx, s.db, influencerID)
	if err != nil {
		return err
	}
	if influencer == nil || !influencer.IsInfluencer() {
		return domain.ErrInvalidInfluencer
	}

	for i := range items {
		item := &items[i]
		sponsored, err := s.sponsorships.FindActive(ctx, s.db, item.ProductID, influencerID, at)
		if err != nil {
			return err
		}
		if sponsored != nil {
			id := sponsored.ID
			item.CoverageType = domain.CoverageSponsorship
			item.CoverageID = &id
			item.CommissionPercent = sponsored.CommissionPercent
			continue
		}

		affiliation, err := s.affiliations.FindCovering(ctx, s.db, item.ProductID, influencerID)
		if err != nil {
			return err
		}
		if affiliation == nil {
			return domain.ErrUnattributed
		}
		id := affiliation.ID
		item.CoverageType = domain.CoverageAffiliation
		item.CoverageID = &id
		item.CommissionPercent = products[item.ProductID].CommissionPercent
	}
	return nil
}

func (s *Service) Get(ctx context.Context, actorID, id snowflake.ID) (*domain.Order, error) {
	order, err := s.load(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !order.Involves(actorID) {
		// Hide orders the caller is not a party to.
		return nil, domain.ErrNotFound
	}
	items, err := s.repo.ListItems(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func (s *Service) List(ctx context.Context, userID snowflake.ID, limit, offset int) ([]domain.Order, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidBuyer
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByUser(ctx, s.db, userID, limit, offset)
}

func (s *Service) OrderIDForIntent(ctx context.Context, intentID string) (snowflake.ID, error) {
	payment, err := s.payments.FindPaymentByIntent(ctx, s.db, strings.TrimSpace(intentID))
	if err != nil {
		return 0, err
	}
	if payment == nil {
		return 0, paymentdomain.ErrPaymentNotFound
	}
	return payment.OrderID, nil
}

func (s *Service) MarkPaid(ctx context.Context, orderID snowflake.ID, intentID string) (*domain.Settlement, error) {
	var settlement *domain.Settlement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		settlement, err = s.MarkPaidTx(ctx, tx, domain.MarkPaidRequest{OrderID: orderID, IntentID: intentID})
		return err
	})
	if err != nil {
		return nil, err
	}
	if settlement.Applied && s.obsMetrics != nil {
		s.obsMetrics.RecordOrder(ctx, string(domain.StatusPaid))
	}
	return settlement, nil
}

// MarkPaidTx settles an order on tx. The conditional payment update is the
// idempotency gate: a replay finds the payment already succeeded and writes
// nothing.
func (s *Service) MarkPaidTx(ctx context.Context, tx *gorm.DB, req domain.MarkPaidRequest) (*domain.Settlement, error) {
	intentID := strings.TrimSpace(req.IntentID)
	if req.OrderID == 0 || intentID == "" {
		return nil, domain.ErrNotFound
	}

	payment, err := s.payments.FindPaymentByOrder(ctx, tx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	if payment.GatewayIntentID != intentID {
		return nil, domain.ErrPaymentMismatch
	}

	order, err := s.load(ctx, tx, req.OrderID)
	if err != nil {
		return nil, err
	}

	switch payment.Status {
	case paymentdomain.StatusSucceeded:
		return &domain.Settlement{Order: order, Payment: payment}, nil
	case paymentdomain.StatusPending:
	default:
		return nil, paymentdomain.ErrInvalidTransition
	}

	now := s.clock.Now()
	ok, err := s.payments.TransitionPayment(ctx, tx, payment.ID, paymentdomain.StatusPending, paymentdomain.StatusSucceeded, optionalString(req.ReceiptRef), now)
	if err != nil {
		return nil, err
	}
	if !ok {
		// A concurrent delivery of the same intent moved the payment first.
		// The locking read sees its committed status even under snapshot
		// isolation.
		current, err := s.payments.LockPaymentByIntent(ctx, tx, intentID)
		if err != nil {
			return nil, err
		}
		if current == nil || current.Status != paymentdomain.StatusSucceeded {
			return nil, paymentdomain.ErrInvalidTransition
		}
		return &domain.Settlement{Order: order, Payment: current}, nil
	}
	payment.Status = paymentdomain.StatusSucceeded
	payment.UpdatedAt = now
	if req.ReceiptRef != "" {
		payment.ReceiptRef = optionalString(req.ReceiptRef)
	}

	ok, err = s.repo.TransitionStatus(ctx, tx, order.ID, domain.StatusPending, domain.StatusPaid, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.log.Error("payment succeeded for an order that is no longer pending",
			zap.String("order_id", order.ID.String()),
			zap.String("status", string(order.Status)),
			zap.String("intent_id", intentID),
		)
		return nil, domain.ErrInvalidTransition
	}
	order.Status = domain.StatusPaid
	order.UpdatedAt = now

	items, err := s.repo.ListItems(ctx, tx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	splits, err := s.calculator.Calculate(toCommissionItems(order, items))
	if err != nil {
		return nil, err
	}
	if err := s.recordSettlement(ctx, tx, order, intentID, splits); err != nil {
		return nil, err
	}
	if err := s.creditAffiliations(ctx, tx, items); err != nil {
		return nil, err
	}

	return &domain.Settlement{Order: order, Payment: payment, Splits: splits, Applied: true}, nil
}

func (s *Service) recordSettlement(ctx context.Context, tx *gorm.DB, order *domain.Order, intentID string, splits []commission.Split) error {
	orderID := order.ID
	if _, err := s.ledger.Record(ctx, tx, ledgerdomain.Transaction{
		FromUserID:        order.BuyerID,
		ToUserID:          order.BrandID,
		Amount:            order.TotalAmount,
		Currency:          order.Currency,
		Type:              ledgerdomain.TypePurchase,
		Status:            ledgerdomain.StatusCompleted,
		OrderID:           &orderID,
		GatewayTransferID: &intentID,
	}); err != nil {
		return err
	}

	for _, split := range splits {
		if split.Role != commission.RoleInfluencer || split.Amount <= 0 {
			continue
		}
		if _, err := s.ledger.Record(ctx, tx, ledgerdomain.Transaction{
			FromUserID: order.BrandID,
			ToUserID:   split.RecipientID,
			Amount:     split.Amount,
			Currency:   order.Currency,
			Type:       ledgerdomain.TypeCommission,
			Status:     ledgerdomain.StatusPending,
			OrderID:    &orderID,
			// The funding intent keys the row for replays.
			GatewayTransferID: &intentID,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) creditAffiliations(ctx context.Context, tx *gorm.DB, items []domain.Item) error {
	for _, item := range items {
		if item.CoverageType != domain.CoverageAffiliation || item.CoverageID == nil {
			continue
		}
		err := s.affiliations.IncrementTx(ctx, tx, *item.CoverageID, affiliationdomain.FieldTotalSaleQty, item.Quantity)
		if err != nil {
			return err
		}
		if revenue := item.Subtotal(); revenue > 0 {
			err = s.affiliations.IncrementTx(ctx, tx, *item.CoverageID, affiliationdomain.FieldTotalSaleRevenue, revenue)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) EndPaymentTx(ctx context.Context, tx *gorm.DB, intentID string, status paymentdomain.PaymentStatus) (*domain.Order, bool, error) {
	if status != paymentdomain.StatusFailed && status != paymentdomain.StatusCanceled {
		return nil, false, paymentdomain.ErrInvalidTransition
	}
	payment, err := s.payments.FindPaymentByIntent(ctx, tx, strings.TrimSpace(intentID))
	if err != nil {
		return nil, false, err
	}
	if payment == nil {
		return nil, false, paymentdomain.ErrPaymentNotFound
	}
	order, err := s.load(ctx, tx, payment.OrderID)
	if err != nil {
		return nil, false, err
	}

	if payment.Status != paymentdomain.StatusPending {
		if payment.Status != status {
			s.log.Warn("ignoring payment outcome for settled intent",
				zap.String("intent_id", payment.GatewayIntentID),
				zap.String("current", string(payment.Status)),
				zap.String("received", string(status)),
			)
		}
		return order, false, nil
	}

	now := s.clock.Now()
	ok, err := s.payments.TransitionPayment(ctx, tx, payment.ID, paymentdomain.StatusPending, status, nil, now)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return order, false, nil
	}
	if order.Status == domain.StatusPending {
		if _, err := s.repo.TransitionStatus(ctx, tx, order.ID, domain.StatusPending, domain.StatusCancelled, now); err != nil {
			return nil, false, err
		}
		order.Status = domain.StatusCancelled
		order.UpdatedAt = now
	}
	return order, true, nil
}

// RefundTx records money returned to the buyer. refunded is the gateway's
// cumulative refunded amount for the intent, so only the part not yet in the
// ledger is written, under a ref unique to that cumulative figure.
func (s *Service) RefundTx(ctx context.Context, tx *gorm.DB, intentID string, refunded int64) (*domain.Order, bool, error) {
	if refunded <= 0 {
		return nil, false, paymentdomain.ErrInvalidAmount
	}
	payment, err := s.payments.LockPaymentByIntent(ctx, tx, strings.TrimSpace(intentID))
	if err != nil {
		return nil, false, err
	}
	if payment == nil {
		return nil, false, paymentdomain.ErrPaymentNotFound
	}
	order, err := s.load(ctx, tx, payment.OrderID)
	if err != nil {
		return nil, false, err
	}
	if payment.Status != paymentdomain.StatusSucceeded {
		s.log.Warn("ignoring refund for unpaid intent",
			zap.String("intent_id", payment.GatewayIntentID),
			zap.String("status", string(payment.Status)),
		)
		return order, false, nil
	}
	if refunded > order.TotalAmount {
		refunded = order.TotalAmount
	}

	recorded, err := s.ledger.SumTx(ctx, tx, order.ID, ledgerdomain.TypeRefund)
	if err != nil {
		return nil, false, err
	}
	delta := refunded - recorded
	if delta <= 0 {
		// Replay or a stale delivery of an earlier partial refund.
		return order, false, nil
	}

	orderID := order.ID
	ref := fmt.Sprintf("%s:refunded:%d", payment.GatewayIntentID, refunded)
	inserted, err := s.ledger.Record(ctx, tx, ledgerdomain.Transaction{
		FromUserID:        order.BrandID,
		ToUserID:          order.BuyerID,
		Amount:            delta,
		Currency:          order.Currency,
		Type:              ledgerdomain.TypeRefund,
		Status:            ledgerdomain.StatusCompleted,
		OrderID:           &orderID,
		GatewayTransferID: &ref,
	})
	if err != nil {
		return nil, false, err
	}
	return order, inserted, nil
}

// Cancel asks the gateway to cancel the intent before touching local state,
// so a gateway failure leaves the order pending.
func (s *Service) Cancel(ctx context.Context, actorID, id snowflake.ID) (*domain.Order, error) {
	order, err := s.load(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != actorID {
		if order.Involves(actorID) {
			return nil, domain.ErrForbidden
		}
		return nil, domain.ErrNotFound
	}
	if order.Status != domain.StatusPending {
		return nil, domain.ErrInvalidTransition
	}
	return s.cancelPending(ctx, order)
}

// cancelPending voids the intent at the gateway before touching local state,
// so a payment that already went through is never cancelled here.
func (s *Service) cancelPending(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	err := s.gateway.CancelPaymentIntent(ctx, order.PaymentRef)
	s.recordGatewayCall(ctx, "cancel_payment_intent", err)
	if err != nil {
		return nil, err
	}

	var updated *domain.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result, _, err := s.EndPaymentTx(ctx, tx, order.PaymentRef, paymentdomain.StatusCanceled)
		if err != nil {
			return err
		}
		if result.Status != domain.StatusCancelled {
			return domain.ErrInvalidTransition
		}
		updated = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordOrder(ctx, string(domain.StatusCancelled))
	}
	return updated, nil
}

func (s *Service) ExpirePending(ctx context.Context, before time.Time, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	stale, err := s.repo.ListPendingBefore(ctx, s.db, before, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range stale {
		order := &stale[i]
		if _, err := s.cancelPending(ctx, order); err != nil {
			if errors.Is(err, paymentdomain.ErrGateway) || errors.Is(err, domain.ErrInvalidTransition) {
				// Settled or unreachable at the gateway; the webhook decides.
				s.log.Warn("skipping stale order",
					zap.String("order_id", order.ID.String()),
					zap.Error(err),
				)
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

func (s *Service) Ship(ctx context.Context, actorID, id snowflake.ID) (*domain.Order, error) {
	return s.advance(ctx, actorID, id, domain.StatusPaid, domain.StatusShipped)
}

func (s *Service) Deliver(ctx context.Context, actorID, id snowflake.ID) (*domain.Order, error) {
	return s.advance(ctx, actorID, id, domain.StatusShipped, domain.StatusDelivered)
}

func (s *Service) advance(ctx context.Context, actorID, id snowflake.ID, from, to domain.Status) (*domain.Order, error) {
	order, err := s.load(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if order.BrandID != actorID {
		if order.Involves(actorID) {
			return nil, domain.ErrForbidden
		}
		return nil, domain.ErrNotFound
	}
	if order.Status != from {
		return nil, domain.ErrInvalidTransition
	}

	now := s.clock.Now()
	ok, err := s.repo.TransitionStatus(ctx, s.db, id, from, to, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidTransition
	}
	order.Status = to
	order.UpdatedAt = now
	if s.obsMetrics != nil {
		s.obsMetrics.RecordOrder(ctx, string(to))
	}
	return order, nil
}

func (s *Service) load(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	if id == 0 {
		return nil, domain.ErrNotFound
	}
	order, err := s.repo.FindByID(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	return order, nil
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

func toCommissionItems(order *domain.Order, items []domain.Item) []commission.Item {
	out := make([]commission.Item, 0, len(items))
	for _, item := range items {
		ci := commission.Item{
			ProductID: item.ProductID,
			BrandID:   order.BrandID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
		if item.CoverageType != domain.CoverageNone && order.InfluencerID != nil {
			coverage := &commission.Coverage{
				Type:        commission.CoverageType(item.CoverageType),
				RecipientID: *order.InfluencerID,
				Percent:     item.CommissionPercent,
			}
			if item.CoverageID != nil {
				coverage.ID = *item.CoverageID
			}
			ci.Coverage = coverage
		}
		out = append(out, ci)
	}
	return out
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
