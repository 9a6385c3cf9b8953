package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/affiliora/internal/clock"
	"github.com/smallbiznis/affiliora/internal/config"
	paymentdomain "github.com/smallbiznis/affiliora/internal/payment/domain"
	"github.com/smallbiznis/affiliora/internal/payment/gatewaytest"
	"github.com/smallbiznis/affiliora/internal/subscription/checkouttoken"
	"github.com/smallbiznis/affiliora/internal/subscription/domain"
	"github.com/smallbiznis/affiliora/internal/subscription/repository"
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
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	gateway *gatewaytest.Gateway
	tokens  *checkouttoken.Issuer
	svc     domain.Service

	influencer userdomain.User
	brand      userdomain.User
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:subscription_%d?mode=memory&cache=shared", dbSeq.Add(1))
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

	if err := db.AutoMigrate(&domain.Subscription{}, &userdomain.User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	cfg := config.Config{
		Checkout: config.CheckoutConfig{
			SuccessURL:  "https://app.test/billing/success",
			CancelURL:   "https://app.test/billing/cancel",
			TokenSecret: "checkout-secret",
			TokenTTL:    time.Hour,
		},
	}

	f := &fixture{db: db, node: node, clock: clk, gateway: &gatewaytest.Gateway{}}
	f.tokens = checkouttoken.NewIssuer(cfg, clk)
	f.svc = NewService(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Cfg:     cfg,
		Plans:   config.NewStaticPlanCatalogHolder(config.DefaultPlanCatalog()),
		Repo:    repository.Provide(),
		Users:   userrepo.Provide(),
		Gateway: f.gateway,
		Tokens:  f.tokens,
	})
	f.influencer = f.seedUser(t, userdomain.RoleInfluencer, "ina@example.com")
	f.brand = f.seedUser(t, userdomain.RoleBrand, "brand@example.com")
	return f
}

func (f *fixture) seedUser(t *testing.T, role, email string) userdomain.User {
	t.Helper()
	now := f.clock.Now()
	u := userdomain.User{ID: f.node.Generate(), Email: email, Name: email, Role: role, Plan: "free", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, userrepo.Provide().Insert(context.Background(), f.db, &u))
	return u
}

func (f *fixture) gatewaySub(id, status, priceID string, userID snowflake.ID) *paymentdomain.GatewaySubscription {
	start := f.clock.Now()
	return &paymentdomain.GatewaySubscription{
		ID:                 id,
		CustomerID:         "cus_" + id,
		PriceID:            priceID,
		ItemID:             "si_" + id,
		Status:             status,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   start.AddDate(0, 1, 0),
		Metadata:           map[string]string{domain.MetadataUserID: userID.String()},
	}
}

func (f *fixture) apply(t *testing.T, req domain.ApplyRequest) *domain.ApplyResult {
	t.Helper()
	var result *domain.ApplyResult
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = f.svc.ApplyGatewayStateTx(context.Background(), tx, req)
		return err
	})
	require.NoError(t, err)
	return result
}

func (f *fixture) user(t *testing.T, id snowflake.ID) *userdomain.User {
	t.Helper()
	u, err := userrepo.Provide().FindByID(context.Background(), f.db, id)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u
}

func (f *fixture) countSubscriptions(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&domain.Subscription{}).Count(&n).Error)
	return n
}

func TestCheckoutCreatesSessionWithSignedReference(t *testing.T) {
	f := newFixture(t)
	var captured paymentdomain.CheckoutRequest
	f.gateway.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(paymentdomain.CheckoutRequest) }).
		Return(&paymentdomain.CheckoutSession{ID: "cs_1", URL: "https://checkout.test/cs_1"}, nil).Once()

	result, err := f.svc.Checkout(context.Background(), domain.CheckoutRequest{UserID: f.influencer.ID, Plan: "Creator"})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", result.SessionID)
	assert.Equal(t, "https://checkout.test/cs_1", result.CheckoutURL)

	assert.Equal(t, "price_creator", captured.PriceID)
	assert.Equal(t, f.influencer.Email, captured.CustomerEmail)
	assert.Equal(t, captured.ClientReferenceID, captured.Metadata[domain.MetadataCheckoutToken])

	claims, err := f.tokens.Verify(captured.ClientReferenceID)
	require.NoError(t, err)
	userID, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, f.influencer.ID, userID)
	assert.Equal(t, "creator", claims.Plan)
}

func TestCheckoutValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Checkout(ctx, domain.CheckoutRequest{UserID: f.influencer.ID, Plan: "gold"})
	assert.ErrorIs(t, err, domain.ErrInvalidPlan)

	_, err = f.svc.Checkout(ctx, domain.CheckoutRequest{UserID: f.influencer.ID, Plan: "free"})
	assert.ErrorIs(t, err, domain.ErrPlanNotPurchasable)

	_, err = f.svc.Checkout(ctx, domain.CheckoutRequest{UserID: f.brand.ID, Plan: "creator"})
	assert.ErrorIs(t, err, domain.ErrInvalidPlan)

	_, err = f.svc.Checkout(ctx, domain.CheckoutRequest{UserID: 0, Plan: "creator"})
	assert.ErrorIs(t, err, domain.ErrInvalidUser)

	f.gateway.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
}

func TestCheckoutRejectsWhenAlreadyActive(t *testing.T) {
	f := newFixture(t)
	f.apply(t, domain.ApplyRequest{Subscription: f.gatewaySub("sub_1", "active", "price_creator", f.influencer.ID)})

	_, err := f.svc.Checkout(context.Background(), domain.CheckoutRequest{UserID: f.influencer.ID, Plan: "pro"})
	assert.ErrorIs(t, err, domain.ErrAlreadyActive)
	f.gateway.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
}

func TestApplyCreatesRowForUnknownSubscription(t *testing.T) {
	f := newFixture(t)

	result := f.apply(t, domain.ApplyRequest{Subscription: f.gatewaySub("sub_new", "active", "price_creator", f.influencer.ID)})
	require.True(t, result.Created)
	assert.True(t, result.Activated())
	assert.Equal(t, domain.StatusActive, result.Subscription.Status)
	assert.Equal(t, "creator", result.Subscription.Plan)
	assert.Equal(t, f.influencer.ID, result.Subscription.UserID)

	u := f.user(t, f.influencer.ID)
	assert.Equal(t, "creator", u.Plan)
	require.NotNil(t, u.GatewayCustomerID)
	assert.Equal(t, "cus_sub_new", *u.GatewayCustomerID)
}

func TestApplyBindsUserThroughCheckoutToken(t *testing.T) {
	f := newFixture(t)
	token, err := f.tokens.Issue(f.brand.ID, "growth")
	require.NoError(t, err)

	gs := f.gatewaySub("sub_brand", "active", "price_growth", 0)
	gs.Metadata = nil
	result := f.apply(t, domain.ApplyRequest{Subscription: gs, CheckoutToken: token})
	assert.Equal(t, f.brand.ID, result.Subscription.UserID)
	assert.Equal(t, "growth", f.user(t, f.brand.ID).Plan)
}

func TestApplyFailsWhenSubscriberUnknown(t *testing.T) {
	f := newFixture(t)
	gs := f.gatewaySub("sub_orphan", "active", "price_creator", 0)
	gs.Metadata = nil

	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.ApplyGatewayStateTx(context.Background(), tx, domain.ApplyRequest{Subscription: gs})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrUnresolvedSubscriber)
	assert.Zero(t, f.countSubscriptions(t))
}

func TestApplyReplayConverges(t *testing.T) {
	f := newFixture(t)
	gs := f.gatewaySub("sub_1", "active", "price_creator", f.influencer.ID)

	first := f.apply(t, domain.ApplyRequest{Subscription: gs})
	second := f.apply(t, domain.ApplyRequest{Subscription: gs})

	assert.False(t, second.Created)
	assert.False(t, second.Activated())
	assert.Equal(t, first.Subscription.ID, second.Subscription.ID)
	assert.Equal(t, first.Subscription.Status, second.Subscription.Status)
	assert.Equal(t, int64(1), f.countSubscriptions(t))
}

func TestApplyRenewalRefreshesPeriod(t *testing.T) {
	f := newFixture(t)
	gs := f.gatewaySub("sub_1", "active", "price_creator", f.influencer.ID)
	f.apply(t, domain.ApplyRequest{Subscription: gs})

	renewed := *gs
	renewed.CurrentPeriodStart = gs.CurrentPeriodEnd
	renewed.CurrentPeriodEnd = gs.CurrentPeriodEnd.AddDate(0, 1, 0)
	result := f.apply(t, domain.ApplyRequest{Subscription: &renewed})

	assert.Equal(t, domain.StatusActive, result.Subscription.Status)
	assert.True(t, result.Subscription.CurrentPeriodEnd.Equal(renewed.CurrentPeriodEnd))
}

func TestCancelledSubscriptionIsNeverReactivated(t *testing.T) {
	f := newFixture(t)
	gs := f.gatewaySub("sub_1", "active", "price_creator", f.influencer.ID)
	f.apply(t, domain.ApplyRequest{Subscription: gs})

	canceled := *gs
	canceled.Status = "canceled"
	endedAt := f.clock.Now().Add(24 * time.Hour)
	canceled.EndedAt = &endedAt
	ended := f.apply(t, domain.ApplyRequest{Subscription: &canceled})
	assert.Equal(t, domain.StatusCancelled, ended.Subscription.Status)
	assert.True(t, ended.Ended())
	assert.Equal(t, "free", f.user(t, f.influencer.ID).Plan)

	stale := f.apply(t, domain.ApplyRequest{Subscription: gs})
	assert.True(t, stale.Rejected)
	assert.Equal(t, domain.StatusCancelled, stale.Subscription.Status)

	stored, err := f.svc.Current(context.Background(), f.influencer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, stored.Status)
	assert.Equal(t, "free", f.user(t, f.influencer.ID).Plan)
}

func TestCancelKeepsSubscriptionActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gs := f.gatewaySub("sub_1", "active", "price_creator", f.influencer.ID)
	created := f.apply(t, domain.ApplyRequest{Subscription: gs})

	f.gateway.On("CancelSubscriptionAtPeriodEnd", mock.Anything, "sub_1").
		Return(&paymentdomain.GatewaySubscription{ID: "sub_1", Status: "active", CancelAtPeriodEnd: true}, nil).Once()

	sub, err := f.svc.Cancel(ctx, f.influencer.ID, created.Subscription.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, sub.Status)
	assert.True(t, sub.CancelAtPeriodEnd)
	assert.Equal(t, "creator", f.user(t, f.influencer.ID).Plan)

	again, err := f.svc.Cancel(ctx, f.influencer.ID, created.Subscription.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, again.Status)
	f.gateway.AssertNumberOfCalls(t, "CancelSubscriptionAtPeriodEnd", 1)

	// The gateway ends the subscription when the period runs out.
	final := *gs
	final.Status = "canceled"
	final.CancelAtPeriodEnd = true
	endedAt := gs.CurrentPeriodEnd
	final.EndedAt = &endedAt
	result := f.apply(t, domain.ApplyRequest{Subscription: &final})
	assert.Equal(t, domain.StatusExpired, result.Subscription.Status)
	assert.Equal(t, "free", f.user(t, f.influencer.ID).Plan)
}

func TestCancelLeavesStateUntouchedOnGatewayError(t *testing.T) {
	f := newFixture(t)
	created := f.apply(t, domain.ApplyRequest{Subscription: f.gatewaySub("sub_1", "active", "price_creator", f.influencer.ID)})

	f.gateway.On("CancelSubscriptionAtPeriodEnd", mock.Anything, "sub_1").
		Return(nil, paymentdomain.ErrGateway).Once()

	_, err := f.svc.Cancel(context.Background(), f.influencer.ID, created.Subscription.ID)
	assert.ErrorIs(t, err, paymentdomain.ErrGateway)

	stored, err := f.svc.Current(context.Background(), f.influencer.ID)
	require.NoError(t, err)
	assert.False(t, stored.CancelAtPeriodEnd)
}

func TestCancelRequiresOwner(t *testing.T) {
	f := newFixture(t)
	created := f.apply(t, domain.ApplyRequest{Subscription: f.gatewaySub("sub_1", "active", "price_creator", f.influencer.ID)})

	_, err := f.svc.Cancel(context.Background(), f.brand.ID, created.Subscription.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	f.gateway.AssertNotCalled(t, "CancelSubscriptionAtPeriodEnd", mock.Anything, mock.Anything)
}

func TestUpgradeRecordsPendingPlanUntilConfirmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gs := f.gatewaySub("sub_1", "active", "price_creator", f.influencer.ID)
	created := f.apply(t, domain.ApplyRequest{Subscription: gs})

	f.gateway.On("ChangeSubscriptionPrice", mock.Anything, "sub_1", "price_pro").
		Return(&paymentdomain.GatewaySubscription{ID: "sub_1", Status: "active", PriceID: "price_pro"}, nil).Once()

	sub, err := f.svc.Upgrade(ctx, f.influencer.ID, created.Subscription.ID, "pro")
	require.NoError(t, err)
	assert.Equal(t, "creator", sub.Plan)
	require.NotNil(t, sub.PendingPlan)
	assert.Equal(t, "pro", *sub.PendingPlan)
	assert.Equal(t, "creator", f.user(t, f.influencer.ID).Plan)

	confirmed := *gs
	confirmed.PriceID = "price_pro"
	result := f.apply(t, domain.ApplyRequest{Subscription: &confirmed})
	assert.Equal(t, "pro", result.Subscription.Plan)
	assert.Nil(t, result.Subscription.PendingPlan)
	assert.Equal(t, "pro", f.user(t, f.influencer.ID).Plan)
}

func TestUpgradeRequiresHigherRank(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.apply(t, domain.ApplyRequest{Subscription: f.gatewaySub("sub_1", "active", "price_creator", f.influencer.ID)})

	_, err := f.svc.Upgrade(ctx, f.influencer.ID, created.Subscription.ID, "creator")
	assert.ErrorIs(t, err, domain.ErrNotUpgrade)
	_, err = f.svc.Upgrade(ctx, f.influencer.ID, created.Subscription.ID, "free")
	assert.ErrorIs(t, err, domain.ErrNotUpgrade)
	_, err = f.svc.Upgrade(ctx, f.influencer.ID, created.Subscription.ID, "platinum")
	assert.ErrorIs(t, err, domain.ErrInvalidPlan)
	f.gateway.AssertNotCalled(t, "ChangeSubscriptionPrice", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpgradeRequiresActiveSubscription(t *testing.T) {
	f := newFixture(t)
	created := f.apply(t, domain.ApplyRequest{Subscription: f.gatewaySub("sub_1", "incomplete", "price_creator", f.influencer.ID)})
	assert.Equal(t, domain.StatusInactive, created.Subscription.Status)
	assert.Equal(t, "free", f.user(t, f.influencer.ID).Plan)

	_, err := f.svc.Upgrade(context.Background(), f.influencer.ID, created.Subscription.ID, "pro")
	assert.ErrorIs(t, err, domain.ErrNotActive)
}

func TestCurrentReturnsNotFoundWithoutSubscription(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Current(context.Background(), f.brand.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
