package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	affiliationdomain "github.com/smallbiznis/affiliora/internal/affiliation/domain"
	affiliationrepo "github.com/smallbiznis/affiliora/internal/affiliation/repository"
	affiliationservice "github.com/smallbiznis/affiliora/internal/affiliation/service"
	"github.com/smallbiznis/affiliora/internal/clock"
	"github.com/smallbiznis/affiliora/internal/commission"
	"github.com/smallbiznis/affiliora/internal/config"
	ledgerdomain "github.com/smallbiznis/affiliora/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/affiliora/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/affiliora/internal/ledger/service"
	"github.com/smallbiznis/affiliora/internal/order/domain"
	"github.com/smallbiznis/affiliora/internal/order/repository"
	paymentdomain "github.com/smallbiznis/affiliora/internal/payment/domain"
	"github.com/smallbiznis/affiliora/internal/payment/gatewaytest"
	paymentrepo "github.com/smallbiznis/affiliora/internal/payment/repository"
	productdomain "github.com/smallbiznis/affiliora/internal/product/domain"
	productrepo "github.com/smallbiznis/affiliora/internal/product/repository"
	"github.com/smallbiznis/affiliora/internal/sponsorship"
	sponsorshipdomain "github.com/smallbiznis/affiliora/internal/sponsorship/domain"
	sponsorshiprepo "github.com/smallbiznis/affiliora/internal/sponsorship/repository"
	userdomain "github.com/smallbiznis/affiliora/internal/user/domain"
	userrepo "github.com/smallbiznis/affiliora/internal/user/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

type fixture struct {
	db           *gorm.DB
	node         *snowflake.Node
	clock        *clock.FakeClock
	gateway      *gatewaytest.Gateway
	svc          domain.Service
	affiliations affiliationdomain.Service
	ledger       ledgerdomain.Service
	cfg          config.Config

	buyer      userdomain.User
	brand      userdomain.User
	influencer userdomain.User
	serum      productdomain.Product
	mask       productdomain.Product
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:order_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(
		&domain.Order{},
		&domain.Item{},
		&paymentdomain.Payment{},
		&ledgerdomain.Transaction{},
		&affiliationdomain.Affiliation{},
		&sponsorshipdomain.Sponsorship{},
		&userdomain.User{},
		&productdomain.Product{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	cfg := config.Config{
		Gateway:     config.GatewayConfig{DefaultCurrency: "usd"},
		Attribution: config.AttributionConfig{Cooldown: time.Hour},
	}

	f := &fixture{db: db, node: node, clock: clk, gateway: &gatewaytest.Gateway{}}
	f.affiliations = affiliationservice.NewService(affiliationservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Cfg:      cfg,
		Plans:    config.NewStaticPlanCatalogHolder(config.DefaultPlanCatalog()),
		Repo:     affiliationrepo.Provide(),
		Users:    userrepo.Provide(),
		Products: productrepo.Provide(),
	})
	f.ledger = ledgerservice.NewService(ledgerservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  ledgerrepo.Provide(),
	})
	f.cfg = cfg
	f.svc = f.newService(paymentrepo.Provide())

	f.buyer = f.seedUser(t, userdomain.RoleGuest, "guest@example.com")
	f.brand = f.seedUser(t, userdomain.RoleBrand, "brand@example.com")
	f.influencer = f.seedUser(t, userdomain.RoleInfluencer, "ina@example.com")
	f.serum = f.seedProduct(t, "Serum", 1000)
	f.mask = f.seedProduct(t, "Mask", 500)
	return f
}

func (f *fixture) newService(payments paymentdomain.Repository) domain.Service {
	return NewService(Params{
		DB:           f.db,
		Log:          zap.NewNop(),
		GenID:        f.node,
		Clock:        f.clock,
		Cfg:          f.cfg,
		Repo:         repository.Provide(),
		Payments:     payments,
		Gateway:      f.gateway,
		Users:        userrepo.Provide(),
		Products:     productrepo.Provide(),
		Affiliations: f.affiliations,
		Sponsorships: sponsorship.NewFinder(sponsorshiprepo.Provide()),
		Ledger:       f.ledger,
		Calculator:   commission.NewCalculator(f.cfg),
	})
}

func (f *fixture) seedUser(t *testing.T, role, email string) userdomain.User {
	t.Helper()
	now := f.clock.Now()
	u := userdomain.User{ID: f.node.Generate(), Email: email, Name: email, Role: role, Plan: "free", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, userrepo.Provide().Insert(context.Background(), f.db, &u))
	return u
}

func (f *fixture) seedProduct(t *testing.T, name string, price int64) productdomain.Product {
	t.Helper()
	now := f.clock.Now()
	p := productdomain.Product{
		ID: f.node.Generate(), BrandID: f.brand.ID, Name: name,
		PriceCents: price, Currency: "usd", CommissionPercent: decimal.NewFromInt(10),
		Active: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, productrepo.Provide().Insert(context.Background(), f.db, &p))
	return p
}

func (f *fixture) affiliate(t *testing.T, product productdomain.Product) *affiliationdomain.Affiliation {
	t.Helper()
	a, err := f.affiliations.Create(context.Background(), affiliationdomain.CreateRequest{ProductID: product.ID, InfluencerID: f.influencer.ID})
	require.NoError(t, err)
	return a
}

func (f *fixture) expectIntent(id string, amount int64) {
	f.gateway.On("CreatePaymentIntent", mock.Anything, mock.MatchedBy(func(req paymentdomain.IntentRequest) bool {
		return req.Amount == amount && req.Currency == "usd"
	})).Return(&paymentdomain.Intent{ID: id, ClientSecret: id + "_secret"}, nil).Once()
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func TestCreateAndMarkPaidSettlesCommission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	serumAff := f.affiliate(t, f.serum)
	maskAff := f.affiliate(t, f.mask)
	f.expectIntent("pi_1", 2500)

	influencerID := f.influencer.ID
	created, err := f.svc.Create(ctx, domain.CreateRequest{
		BuyerID: f.buyer.ID,
		Items: []domain.ItemRequest{
			{ProductID: f.serum.ID, Quantity: 2},
			{ProductID: f.mask.ID, Quantity: 1},
		},
		InfluencerID: &influencerID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2500), created.Order.TotalAmount)
	assert.Equal(t, domain.StatusPending, created.Order.Status)
	assert.Equal(t, "pi_1", created.Payment.GatewayIntentID)
	assert.Equal(t, paymentdomain.StatusPending, created.Payment.Status)
	assert.Equal(t, "pi_1_secret", created.ClientSecret)

	var sum int64
	for _, item := range created.Order.Items {
		sum += item.Subtotal()
		assert.Equal(t, domain.CoverageAffiliation, item.CoverageType)
	}
	assert.Equal(t, created.Order.TotalAmount, sum)

	settlement, err := f.svc.MarkPaid(ctx, created.Order.ID, "pi_1")
	require.NoError(t, err)
	assert.True(t, settlement.Applied)
	assert.Equal(t, domain.StatusPaid, settlement.Order.Status)
	assert.Equal(t, []commission.Split{
		{RecipientID: f.influencer.ID, Role: commission.RoleInfluencer, Amount: 250},
		{RecipientID: f.brand.ID, Role: commission.RoleBrand, Amount: 2250},
	}, settlement.Splits)
	assert.Equal(t, int64(2500), commission.Total(settlement.Splits))

	replay, err := f.svc.MarkPaid(ctx, created.Order.ID, "pi_1")
	require.NoError(t, err)
	assert.False(t, replay.Applied)

	txns, err := f.ledger.ListByOrder(ctx, created.Order.ID)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	byType := map[ledgerdomain.TransactionType]ledgerdomain.Transaction{}
	for _, txn := range txns {
		byType[txn.Type] = txn
	}
	assert.Equal(t, int64(2500), byType[ledgerdomain.TypePurchase].Amount)
	assert.Equal(t, ledgerdomain.StatusCompleted, byType[ledgerdomain.TypePurchase].Status)
	assert.Equal(t, f.buyer.ID, byType[ledgerdomain.TypePurchase].FromUserID)
	assert.Equal(t, int64(250), byType[ledgerdomain.TypeCommission].Amount)
	assert.Equal(t, ledgerdomain.StatusPending, byType[ledgerdomain.TypeCommission].Status)
	assert.Equal(t, f.influencer.ID, byType[ledgerdomain.TypeCommission].ToUserID)

	serumAfter, err := f.affiliations.Increment(ctx, serumAff.ID, affiliationdomain.FieldClicks, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), serumAfter.TotalSaleQty)
	assert.Equal(t, int64(2000), serumAfter.TotalSaleRevenue)
	maskAfter, err := f.affiliations.Increment(ctx, maskAff.ID, affiliationdomain.FieldClicks, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), maskAfter.TotalSaleQty)
	assert.Equal(t, int64(500), maskAfter.TotalSaleRevenue)
}

func TestCreateRequiresAttributionForEveryItem(t *testing.T) {
	f := newFixture(t)
	f.affiliate(t, f.serum)

	influencerID := f.influencer.ID
	_, err := f.svc.Create(context.Background(), domain.CreateRequest{
		BuyerID: f.buyer.ID,
		Items: []domain.ItemRequest{
			{ProductID: f.serum.ID, Quantity: 1},
			{ProductID: f.mask.ID, Quantity: 1},
		},
		InfluencerID: &influencerID,
	})
	require.ErrorIs(t, err, domain.ErrUnattributed)
	f.gateway.AssertNotCalled(t, "CreatePaymentIntent", mock.Anything, mock.Anything)
	assert.Zero(t, f.count(t, &domain.Order{}))
}

func TestCreatePrefersActiveSponsorship(t *testing.T) {
	f := newFixture(t)
	f.affiliate(t, f.serum)
	now := f.clock.Now()
	sponsored := sponsorshipdomain.Sponsorship{
		ID: f.node.Generate(), BrandID: f.brand.ID, InfluencerID: f.influencer.ID, ProductID: f.serum.ID,
		CommissionPercent: decimal.NewFromInt(20),
		StartsAt:          now.Add(-time.Hour), EndsAt: now.Add(24 * time.Hour), CreatedAt: now,
	}
	require.NoError(t, sponsorshiprepo.Provide().Insert(context.Background(), f.db, &sponsored))
	f.expectIntent("pi_s", 1000)

	influencerID := f.influencer.ID
	created, err := f.svc.Create(context.Background(), domain.CreateRequest{
		BuyerID:      f.buyer.ID,
		Items:        []domain.ItemRequest{{ProductID: f.serum.ID, Quantity: 1}},
		InfluencerID: &influencerID,
	})
	require.NoError(t, err)
	require.Len(t, created.Order.Items, 1)
	item := created.Order.Items[0]
	assert.Equal(t, domain.CoverageSponsorship, item.CoverageType)
	require.NotNil(t, item.CoverageID)
	assert.Equal(t, sponsored.ID, *item.CoverageID)
	assert.True(t, decimal.NewFromInt(20).Equal(item.CommissionPercent))

	settlement, err := f.svc.MarkPaid(context.Background(), created.Order.ID, "pi_s")
	require.NoError(t, err)
	assert.Equal(t, int64(200), settlement.Splits[0].Amount)
}

func TestCreateRollsBackWhenPaymentInsertFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()

	existing := paymentdomain.Payment{
		ID: f.node.Generate(), OrderID: f.node.Generate(), GatewayIntentID: "pi_dup",
		Amount: 1, Currency: "usd", Status: paymentdomain.StatusPending, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, paymentrepo.Provide().InsertPayment(ctx, f.db, &existing))

	f.expectIntent("pi_dup", 1000)
	f.gateway.On("CancelPaymentIntent", mock.Anything, "pi_dup").Return(nil).Once()

	_, err := f.svc.Create(ctx, domain.CreateRequest{
		BuyerID: f.buyer.ID,
		Items:   []domain.ItemRequest{{ProductID: f.serum.ID, Quantity: 1}},
	})
	require.Error(t, err)

	assert.Zero(t, f.count(t, &domain.Order{}))
	assert.Zero(t, f.count(t, &domain.Item{}))
	assert.Equal(t, int64(1), f.count(t, &paymentdomain.Payment{}))
	f.gateway.AssertExpectations(t)
}

func TestCreateValidatesItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	otherBrand := f.seedUser(t, userdomain.RoleBrand, "other@example.com")
	foreign := productdomain.Product{
		ID: f.node.Generate(), BrandID: otherBrand.ID, Name: "Balm", PriceCents: 700, Currency: "usd",
		Active: true, CreatedAt: f.clock.Now(), UpdatedAt: f.clock.Now(),
	}
	require.NoError(t, productrepo.Provide().Insert(ctx, f.db, &foreign))

	cases := []struct {
		name string
		req  domain.CreateRequest
		want error
	}{
		{"no items", domain.CreateRequest{BuyerID: f.buyer.ID}, domain.ErrEmptyItems},
		{"zero quantity", domain.CreateRequest{BuyerID: f.buyer.ID, Items: []domain.ItemRequest{{ProductID: f.serum.ID}}}, domain.ErrInvalidQuantity},
		{"unknown product", domain.CreateRequest{BuyerID: f.buyer.ID, Items: []domain.ItemRequest{{ProductID: 12345, Quantity: 1}}}, productdomain.ErrNotFound},
		{"mixed brands", domain.CreateRequest{BuyerID: f.buyer.ID, Items: []domain.ItemRequest{{ProductID: f.serum.ID, Quantity: 1}, {ProductID: foreign.ID, Quantity: 1}}}, domain.ErrMixedBrands},
		{"guest as influencer", domain.CreateRequest{BuyerID: f.buyer.ID, Items: []domain.ItemRequest{{ProductID: f.serum.ID, Quantity: 1}}, InfluencerID: &f.buyer.ID}, domain.ErrInvalidInfluencer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.req)
			require.ErrorIs(t, err, tc.want)
		})
	}
	f.gateway.AssertNotCalled(t, "CreatePaymentIntent", mock.Anything, mock.Anything)
}

func TestFailedPaymentCancelsOrderAndBlocksSettlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.expectIntent("pi_fail", 500)

	created, err := f.svc.Create(ctx, domain.CreateRequest{
		BuyerID: f.buyer.ID,
		Items:   []domain.ItemRequest{{ProductID: f.mask.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	var applied bool
	err = f.db.Transaction(func(tx *gorm.DB) error {
		order, ok, err := f.svc.EndPaymentTx(ctx, tx, "pi_fail", paymentdomain.StatusFailed)
		if err != nil {
			return err
		}
		applied = ok
		assert.Equal(t, domain.StatusCancelled, order.Status)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, applied)

	_, err = f.svc.MarkPaid(ctx, created.Order.ID, "pi_fail")
	require.ErrorIs(t, err, paymentdomain.ErrInvalidTransition)

	got, err := f.svc.Get(ctx, f.buyer.ID, created.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	assert.Zero(t, f.count(t, &ledgerdomain.Transaction{}))
}

func TestRefundIsRecordedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.expectIntent("pi_r", 1000)

	created, err := f.svc.Create(ctx, domain.CreateRequest{
		BuyerID: f.buyer.ID,
		Items:   []domain.ItemRequest{{ProductID: f.serum.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(ctx, created.Order.ID, "pi_r")
	require.NoError(t, err)

	for i, want := range []bool{true, false} {
		var inserted bool
		err := f.db.Transaction(func(tx *gorm.DB) error {
			var err error
			_, inserted, err = f.svc.RefundTx(ctx, tx, "pi_r", 1000)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, want, inserted, "attempt %d", i)
	}

	txns, err := f.ledger.ListByOrder(ctx, created.Order.ID)
	require.NoError(t, err)
	assert.Len(t, txns, 2)
}

func TestPartialRefundsRecordOnlyTheNewAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.expectIntent("pi_pr", 2000)

	created, err := f.svc.Create(ctx, domain.CreateRequest{
		BuyerID: f.buyer.ID,
		Items:   []domain.ItemRequest{{ProductID: f.serum.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(ctx, created.Order.ID, "pi_pr")
	require.NoError(t, err)

	// The gateway reports the cumulative refunded amount on every delivery.
	steps := []struct {
		refunded int64
		inserted bool
	}{
		{500, true},
		{1500, true},
		{1500, false},
		{500, false},
	}
	for i, step := range steps {
		var inserted bool
		err := f.db.Transaction(func(tx *gorm.DB) error {
			var err error
			_, inserted, err = f.svc.RefundTx(ctx, tx, "pi_pr", step.refunded)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, step.inserted, inserted, "step %d", i)
	}

	refunded, err := f.ledger.SumTx(ctx, f.db, created.Order.ID, ledgerdomain.TypeRefund)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), refunded)

	txns, err := f.ledger.ListByOrder(ctx, created.Order.ID)
	require.NoError(t, err)
	var amounts []int64
	for _, txn := range txns {
		if txn.Type == ledgerdomain.TypeRefund {
			amounts = append(amounts, txn.Amount)
		}
	}
	assert.ElementsMatch(t, []int64{500, 1000}, amounts)
}

// racingPayments lets a competing delivery win the pending->succeeded update
// right before this one runs it.
type racingPayments struct {
	paymentdomain.Repository
	calls atomic.Int64
}

func (r *racingPayments) TransitionPayment(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to paymentdomain.PaymentStatus, receiptRef *string, at time.Time) (bool, error) {
	r.calls.Add(1)
	if _, err := r.Repository.TransitionPayment(ctx, db, id, from, to, receiptRef, at); err != nil {
		return false, err
	}
	return false, nil
}

func TestMarkPaidLosingRaceReturnsWithoutSettling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.expectIntent("pi_race", 1000)

	created, err := f.svc.Create(ctx, domain.CreateRequest{
		BuyerID: f.buyer.ID,
		Items:   []domain.ItemRequest{{ProductID: f.serum.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	payments := &racingPayments{Repository: paymentrepo.Provide()}
	settlement, err := f.newService(payments).MarkPaid(ctx, created.Order.ID, "pi_race")
	require.NoError(t, err)
	assert.False(t, settlement.Applied)
	assert.Equal(t, paymentdomain.StatusSucceeded, settlement.Payment.Status)
	assert.Equal(t, int64(1), payments.calls.Load())
	assert.Zero(t, f.count(t, &ledgerdomain.Transaction{}))
}

func TestOrderLifecycleRespectsRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.expectIntent("pi_l", 1000)

	created, err := f.svc.Create(ctx, domain.CreateRequest{
		BuyerID: f.buyer.ID,
		Items:   []domain.ItemRequest{{ProductID: f.serum.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	orderID := created.Order.ID

	_, err = f.svc.Ship(ctx, f.brand.ID, orderID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.MarkPaid(ctx, orderID, "pi_l")
	require.NoError(t, err)

	_, err = f.svc.Ship(ctx, f.buyer.ID, orderID)
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.Get(ctx, f.influencer.ID, orderID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	shipped, err := f.svc.Ship(ctx, f.brand.ID, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusShipped, shipped.Status)

	delivered, err := f.svc.Deliver(ctx, f.brand.ID, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, delivered.Status)

	_, err = f.svc.Cancel(ctx, f.buyer.ID, orderID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	orders, err := f.svc.List(ctx, f.brand.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, orderID, orders[0].ID)
}

func TestCancelPendingOrderCallsGatewayFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.expectIntent("pi_c", 500)

	created, err := f.svc.Create(ctx, domain.CreateRequest{
		BuyerID: f.buyer.ID,
		Items:   []domain.ItemRequest{{ProductID: f.mask.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	f.gateway.On("CancelPaymentIntent", mock.Anything, "pi_c").Return(fmt.Errorf("%w: timeout", paymentdomain.ErrGateway)).Once()
	_, err = f.svc.Cancel(ctx, f.buyer.ID, created.Order.ID)
	require.ErrorIs(t, err, paymentdomain.ErrGateway)

	got, err := f.svc.Get(ctx, f.buyer.ID, created.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)

	f.gateway.On("CancelPaymentIntent", mock.Anything, "pi_c").Return(nil).Once()
	cancelled, err := f.svc.Cancel(ctx, f.buyer.ID, created.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
}

func TestExpirePendingCancelsOnlyStaleOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.expectIntent("pi_old", 500)
	old, err := f.svc.Create(ctx, domain.CreateRequest{
		BuyerID: f.buyer.ID,
		Items:   []domain.ItemRequest{{ProductID: f.mask.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	f.expectIntent("pi_settled", 1000)
	settled, err := f.svc.Create(ctx, domain.CreateRequest{
		BuyerID: f.buyer.ID,
		Items:   []domain.ItemRequest{{ProductID: f.mask.ID, Quantity: 2}},
	})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	f.expectIntent("pi_fresh", 500)
	fresh, err := f.svc.Create(ctx, domain.CreateRequest{
		BuyerID: f.buyer.ID,
		Items:   []domain.ItemRequest{{ProductID: f.mask.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	f.gateway.On("CancelPaymentIntent", mock.Anything, "pi_old").Return(nil).Once()
	f.gateway.On("CancelPaymentIntent", mock.Anything, "pi_settled").
		Return(fmt.Errorf("%w: intent already succeeded", paymentdomain.ErrGateway)).Once()

	n, err := f.svc.ExpirePending(ctx, f.clock.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for id, want := range map[snowflake.ID]domain.Status{
		old.Order.ID:     domain.StatusCancelled,
		settled.Order.ID: domain.StatusPending,
		fresh.Order.ID:   domain.StatusPending,
	} {
		got, err := f.svc.Get(ctx, f.buyer.ID, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status, "order %s", id)
	}
	f.gateway.AssertExpectations(t)
}
