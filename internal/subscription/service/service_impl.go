package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/affiliora/internal/clock"
	"github.com/smallbiznis/affiliora/internal/config"
	obsmetrics "github.com/smallbiznis/affiliora/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/affiliora/internal/payment/domain"
	"github.com/smallbiznis/affiliora/internal/subscription/checkouttoken"
	"github.com/smallbiznis/affiliora/internal/subscription/domain"
	userdomain "github.com/smallbiznis/affiliora/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Plans      *config.PlanCatalogHolder
	Repo       domain.Repository
	Users      userdomain.Repository
	Gateway    paymentdomain.Gateway
	Tokens     *checkouttoken.Issuer
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	checkout   config.CheckoutConfig
	plans      *config.PlanCatalogHolder
	repo       domain.Repository
	users      userdomain.Repository
	gateway    paymentdomain.Gateway
	tokens     *checkouttoken.Issuer
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	plans := p.Plans
	if plans == nil {
		plans = config.NewStaticPlanCatalogHolder(config.DefaultPlanCatalog())
	}
	tokens := p.Tokens
	if tokens == nil {
		tokens = checkouttoken.NewIssuer(p.Cfg, clk)
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("subscription.service"),
		genID:      p.GenID,
		clock:      clk,
		checkout:   p.Cfg.Checkout,
		plans:      plans,
		repo:       p.Repo,
		users:      p.Users,
		gateway:    p.Gateway,
		tokens:     tokens,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResult, error) {
	if req.UserID == 0 {
		return nil, domain.ErrInvalidUser
	}
	user, err := s.users.FindByID(ctx, s.db, req.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, userdomain.ErrNotFound
	}

	plan, ok := s.plans.Get().Lookup(user.Role, req.Plan)
	if !ok {
		return nil, domain.ErrInvalidPlan
	}
	if plan.PriceID == "" {
		return nil, domain.ErrPlanNotPurchasable
	}

	active, err := s.repo.FindActiveByUser(ctx, s.db, user.ID, 0)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, domain.ErrAlreadyActive
	}

	token, err := s.tokens.Issue(user.ID, plan.Code)
	if err != nil {
		return nil, err
	}

	checkoutReq := paymentdomain.CheckoutRequest{
		PriceID:           plan.PriceID,
		ClientReferenceID: token,
		SuccessURL:        s.checkout.SuccessURL,
		CancelURL:         s.checkout.CancelURL,
		Metadata: map[string]string{
			domain.MetadataUserID:        user.ID.String(),
			domain.MetadataPlan:          plan.Code,
			domain.MetadataCheckoutToken: token,
		},
	}
	if user.GatewayCustomerID != nil && *user.GatewayCustomerID != "" {
		checkoutReq.CustomerID = *user.GatewayCustomerID
	} else {
		checkoutReq.CustomerEmail = user.Email
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, checkoutReq)
	s.recordGatewayCall(ctx, "create_checkout_session", err)
	if err != nil {
		return nil, err
	}

	s.log.Info("checkout session created",
		zap.String("user_id", user.ID.String()),
		zap.String("plan", plan.Code),
		zap.String("session_id", session.ID),
	)
	return &domain.CheckoutResult{SessionID: session.ID, CheckoutURL: session.URL}, nil
}

func (s *Service) Current(ctx context.Context, userID snowflake.ID) (*domain.Subscription, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	sub, err := s.repo.FindLatestByUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, domain.ErrNotFound
	}
	return sub, nil
}

// Cancel asks the gateway to stop renewing and flags the row. The status
// stays active until the gateway reports the period has ended.
func (s *Service) Cancel(ctx context.Context, userID, id snowflake.ID) (*domain.Subscription, error) {
	sub, err := s.loadOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != domain.StatusActive {
		return nil, domain.ErrNotActive
	}
	if sub.CancelAtPeriodEnd {
		return sub, nil
	}

	_, err = s.gateway.CancelSubscriptionAtPeriodEnd(ctx, sub.GatewaySubscriptionID)
	s.recordGatewayCall(ctx, "cancel_subscription", err)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.SetCancelAtPeriodEnd(ctx, s.db, sub.ID, s.clock.Now()); err != nil {
		return nil, err
	}
	s.log.Info("subscription set to cancel at period end",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("gateway_subscription_id", sub.GatewaySubscriptionID),
	)
	return s.reload(ctx, sub.ID)
}

// Upgrade moves the gateway subscription to a higher plan. The local plan is
// only recorded as pending; the reconciler makes it authoritative once the
// gateway confirms the change.
func (s *Service) Upgrade(ctx context.Context, userID, id snowflake.ID, planCode string) (*domain.Subscription, error) {
	sub, err := s.loadOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != domain.StatusActive {
		return nil, domain.ErrNotActive
	}
	user, err := s.users.FindByID(ctx, s.db, sub.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, userdomain.ErrNotFound
	}

	catalog := s.plans.Get()
	target, ok := catalog.Lookup(user.Role, planCode)
	if !ok {
		return nil, domain.ErrInvalidPlan
	}
	current, ok := catalog.Lookup(user.Role, sub.Plan)
	if !ok {
		current = catalog.DefaultPlan(user.Role)
	}
	if target.Rank <= current.Rank {
		return nil, domain.ErrNotUpgrade
	}
	if target.PriceID == "" {
		return nil, domain.ErrPlanNotPurchasable
	}

	_, err = s.gateway.ChangeSubscriptionPrice(ctx, sub.GatewaySubscriptionID, target.PriceID)
	s.recordGatewayCall(ctx, "change_subscription_price", err)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.SetPendingPlan(ctx, s.db, sub.ID, target.Code, s.clock.Now()); err != nil {
		return nil, err
	}
	s.log.Info("subscription upgrade requested",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("from_plan", current.Code),
		zap.String("to_plan", target.Code),
	)
	return s.reload(ctx, sub.ID)
}

func (s *Service) ApplyGatewayStateTx(ctx context.Context, tx *gorm.DB, req domain.ApplyRequest) (*domain.ApplyResult, error) {
	gs := req.Subscription
	if gs == nil || strings.TrimSpace(gs.ID) == "" {
		return nil, domain.ErrInvalidGatewayObject
	}

	existing, err := s.repo.FindByGatewayID(ctx, tx, gs.ID)
	if err != nil {
		return nil, err
	}
	if _, ok := domain.MapGatewayStatus(gs, existing); !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidGatewayStatus, gs.Status)
	}

	user, err := s.resolveUser(ctx, tx, gs, existing, req.CheckoutToken)
	if err != nil {
		return nil, err
	}
	plan, err := s.resolvePlan(user, gs, existing)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	result := &domain.ApplyResult{User: user}

	if existing == nil {
		status, _ := domain.MapGatewayStatus(gs, nil)
		sub := &domain.Subscription{
			ID:                    s.genID.Generate(),
			UserID:                user.ID,
			Plan:                  plan,
			Status:                status,
			CurrentPeriodStart:    gs.CurrentPeriodStart,
			CurrentPeriodEnd:      gs.CurrentPeriodEnd,
			CancelAtPeriodEnd:     gs.CancelAtPeriodEnd,
			GatewaySubscriptionID: gs.ID,
			GatewayCustomerID:     gs.CustomerID,
			Metadata:              metadataMap(gs.Metadata),
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		inserted, err := s.repo.Insert(ctx, tx, sub)
		if err != nil {
			return nil, err
		}
		if inserted {
			result.Subscription = sub
			result.Created = true
		} else {
			// Another delivery created the row first; fall through to update it.
			existing, err = s.repo.FindByGatewayID(ctx, tx, gs.ID)
			if err != nil {
				return nil, err
			}
			if existing == nil {
				return nil, domain.ErrNotFound
			}
		}
	}

	if existing != nil {
		status, _ := domain.MapGatewayStatus(gs, existing)
		result.Previous = existing.Status
		if !domain.CanTransition(existing.Status, status) {
			s.log.Warn("rejected subscription transition",
				zap.String("subscription_id", existing.ID.String()),
				zap.String("gateway_subscription_id", gs.ID),
				zap.String("from", string(existing.Status)),
				zap.String("to", string(status)),
				zap.String("gateway_status", gs.Status),
			)
			result.Subscription = existing
			result.Rejected = true
			return result, nil
		}

		next := *existing
		next.Plan = plan
		next.Status = status
		next.CurrentPeriodStart = gs.CurrentPeriodStart
		next.CurrentPeriodEnd = gs.CurrentPeriodEnd
		next.CancelAtPeriodEnd = gs.CancelAtPeriodEnd
		if gs.CustomerID != "" {
			next.GatewayCustomerID = gs.CustomerID
		}
		if len(gs.Metadata) > 0 {
			next.Metadata = metadataMap(gs.Metadata)
		}
		if next.PendingPlan != nil && (*next.PendingPlan == plan || status != domain.StatusActive) {
			next.PendingPlan = nil
		}
		next.UpdatedAt = now
		if err := s.repo.UpdateState(ctx, tx, &next); err != nil {
			return nil, err
		}
		result.Subscription = &next
	}

	if err := s.mirrorPlan(ctx, tx, user, result.Subscription, now); err != nil {
		return nil, err
	}
	if err := s.bindCustomer(ctx, tx, user, gs.CustomerID, now); err != nil {
		return nil, err
	}
	return result, nil
}

// resolveUser finds the owner of a gateway subscription. Known rows keep
// their owner; new ones are bound through the signed checkout token, the
// user id written into the gateway metadata, or the gateway customer.
func (s *Service) resolveUser(ctx context.Context, tx *gorm.DB, gs *paymentdomain.GatewaySubscription, existing *domain.Subscription, checkoutToken string) (*userdomain.User, error) {
	if existing != nil {
		return s.requireUser(ctx, tx, existing.UserID)
	}

	for _, token := range []string{checkoutToken, gs.Metadata[domain.MetadataCheckoutToken]} {
		if strings.TrimSpace(token) == "" {
			continue
		}
		claims, err := s.tokens.Verify(token)
		if err != nil {
			s.log.Debug("checkout token not usable", zap.String("gateway_subscription_id", gs.ID), zap.Error(err))
			continue
		}
		userID, err := claims.UserID()
		if err != nil {
			continue
		}
		return s.requireUser(ctx, tx, userID)
	}

	if raw := strings.TrimSpace(gs.Metadata[domain.MetadataUserID]); raw != "" {
		if userID, err := snowflake.ParseString(raw); err == nil && userID != 0 {
			return s.requireUser(ctx, tx, userID)
		}
	}

	if gs.CustomerID != "" {
		user, err := s.users.FindByGatewayCustomer(ctx, tx, gs.CustomerID)
		if err != nil {
			return nil, err
		}
		if user != nil {
			return user, nil
		}
	}
	return nil, domain.ErrUnresolvedSubscriber
}

func (s *Service) requireUser(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*userdomain.User, error) {
	user, err := s.users.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUnresolvedSubscriber
	}
	return user, nil
}

func (s *Service) resolvePlan(user *userdomain.User, gs *paymentdomain.GatewaySubscription, existing *domain.Subscription) (string, error) {
	accountType, plan, ok := s.plans.Get().ByPriceID(gs.PriceID)
	if !ok {
		if existing != nil {
			s.log.Warn("unknown gateway price, keeping stored plan",
				zap.String("gateway_subscription_id", gs.ID),
				zap.String("price_id", gs.PriceID),
				zap.String("plan", existing.Plan),
			)
			return existing.Plan, nil
		}
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownPrice, gs.PriceID)
	}
	if accountType != user.Role {
		return "", fmt.Errorf("%w: price %s is a %s plan", domain.ErrInvalidPlan, gs.PriceID, accountType)
	}
	return plan.Code, nil
}

// mirrorPlan keeps users.plan in step with the subscription it reflects.
// Ending one subscription falls back to another active one before the
// default plan.
func (s *Service) mirrorPlan(ctx context.Context, tx *gorm.DB, user *userdomain.User, sub *domain.Subscription, at time.Time) error {
	var plan string
	switch {
	case sub.Status == domain.StatusActive:
		plan = sub.Plan
	case sub.Status.Ended():
		other, err := s.repo.FindActiveByUser(ctx, tx, user.ID, sub.ID)
		if err != nil {
			return err
		}
		if other != nil {
			plan = other.Plan
		} else {
			plan = s.plans.Get().DefaultPlan(user.Role).Code
		}
	default:
		return nil
	}
	if user.Plan == plan {
		return nil
	}
	if err := s.users.UpdatePlan(ctx, tx, user.ID, plan, at); err != nil {
		return err
	}
	user.Plan = plan
	return nil
}

func (s *Service) bindCustomer(ctx context.Context, tx *gorm.DB, user *userdomain.User, customerID string, at time.Time) error {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" || (user.GatewayCustomerID != nil && *user.GatewayCustomerID != "") {
		return nil
	}
	owner, err := s.users.FindByGatewayCustomer(ctx, tx, customerID)
	if err != nil {
		return err
	}
	if owner != nil {
		if owner.ID != user.ID {
			s.log.Warn("gateway customer already bound to another user",
				zap.String("user_id", user.ID.String()),
				zap.String("owner_id", owner.ID.String()),
			)
		}
		return nil
	}
	if err := s.users.SetGatewayCustomer(ctx, tx, user.ID, customerID, at); err != nil {
		return err
	}
	user.GatewayCustomerID = &customerID
	return nil
}

func (s *Service) loadOwned(ctx context.Context, userID, id snowflake.ID) (*domain.Subscription, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	sub, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if sub == nil || !sub.OwnedBy(userID) {
		return nil, domain.ErrNotFound
	}
	return sub, nil
}

func (s *Service) reload(ctx context.Context, id snowflake.ID) (*domain.Subscription, error) {
	sub, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, domain.ErrNotFound
	}
	return sub, nil
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

func metadataMap(values map[string]string) datatypes.JSONMap {
	if len(values) == 0 {
		return nil
	}
	out := make(datatypes.JSONMap, len(values))
	for key, value := range values {
		if key == domain.MetadataCheckoutToken {
			continue
		}
		out[key] = value
	}
	return out
}
