package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/affiliora/internal/affiliation/domain"
	"github.com/smallbiznis/affiliora/internal/clock"
	"github.com/smallbiznis/affiliora/internal/config"
	obsmetrics "github.com/smallbiznis/affiliora/internal/observability/metrics"
	productdomain "github.com/smallbiznis/affiliora/internal/product/domain"
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

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Plans      *config.PlanCatalogHolder
	Repo       domain.Repository
	Users      userdomain.Repository
	Products   productdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	cooldown   time.Duration
	plans      *config.PlanCatalogHolder
	repo       domain.Repository
	users      userdomain.Repository
	products   productdomain.Repository
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
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("affiliation.service"),
		genID:      p.GenID,
		clock:      clk,
		cooldown:   p.Cfg.Attribution.Cooldown,
		plans:      plans,
		repo:       p.Repo,
		users:      p.Users,
		products:   p.Products,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Increment(ctx context.Context, id snowflake.ID, field domain.Field, delta int64) (*domain.Affiliation, error) {
	if err := s.increment(ctx, s.db, id, field, delta); err != nil {
		return nil, err
	}
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) IncrementTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, field domain.Field, delta int64) error {
	return s.increment(ctx, tx, id, field, delta)
}

func (s *Service) increment(ctx context.Context, db *gorm.DB, id snowflake.ID, field domain.Field, delta int64) error {
	if id == 0 {
		return domain.ErrNotFound
	}
	if err := field.ValidateDelta(delta); err != nil {
		return err
	}
	if delta == 0 {
		item, err := s.repo.FindByID(ctx, db, id)
		if err != nil {
			return err
		}
		if item == nil || item.Deleted {
			return domain.ErrNotFound
		}
		return nil
	}

	ok, err := s.repo.Increment(ctx, db, id, field, delta, s.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Service) RecordContact(ctx context.Context, req domain.ContactRequest) (*domain.ContactResult, error) {
	if req.ProductID == 0 {
		return nil, domain.ErrInvalidProduct
	}
	if req.InfluencerID == 0 {
		return nil, domain.ErrInvalidInfluencer
	}
	field, ok := req.Kind.Field()
	if !ok {
		return nil, domain.ErrInvalidKind
	}

	if _, err := s.loadProduct(ctx, s.db, req.ProductID); err != nil {
		return nil, err
	}
	influencer, err := s.users.FindByID(ctx, s.db, req.InfluencerID)
	if err != nil {
		return nil, err
	}
	if influencer == nil || !influencer.IsInfluencer() {
		return nil, domain.ErrInvalidInfluencer
	}

	now := s.clock.Now()
	existing, err := s.repo.FindByPair(ctx, s.db, req.ProductID, req.InfluencerID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		created := &domain.Affiliation{
			ID:           s.genID.Generate(),
			ProductID:    req.ProductID,
			InfluencerID: req.InfluencerID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if field == domain.FieldClicks {
			created.Clicks = 1
		} else {
			created.PageViews = 1
		}
		inserted, err := s.repo.Insert(ctx, s.db, created)
		if err != nil {
			return nil, err
		}
		if inserted {
			s.recordContact(ctx, req.Kind, "created")
			return &domain.ContactResult{Affiliation: created, Created: true, Counted: true}, nil
		}
		// Lost the insert race: the winner's row is within its cool-down.
		existing, err = s.repo.FindByPair(ctx, s.db, req.ProductID, req.InfluencerID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, domain.ErrNotFound
		}
	}
	if existing.Deleted {
		return nil, domain.ErrNotFound
	}

	if now.Sub(existing.UpdatedAt) < s.cooldown {
		s.recordContact(ctx, req.Kind, "cooldown")
		return &domain.ContactResult{Affiliation: existing}, nil
	}

	applied, err := s.repo.IncrementIfUnchanged(ctx, s.db, existing, field, 1, now)
	if err != nil {
		return nil, err
	}
	current, err := s.repo.FindByID(ctx, s.db, existing.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrNotFound
	}
	if !applied {
		s.log.Debug("concurrent contact suppressed",
			zap.String("affiliation_id", existing.ID.String()),
			zap.String("kind", string(req.Kind)),
		)
		s.recordContact(ctx, req.Kind, "cooldown")
		return &domain.ContactResult{Affiliation: current}, nil
	}

	s.recordContact(ctx, req.Kind, "counted")
	return &domain.ContactResult{Affiliation: current, Counted: true}, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Affiliation, error) {
	if req.ProductID == 0 {
		return nil, domain.ErrInvalidProduct
	}
	if req.InfluencerID == 0 {
		return nil, domain.ErrInvalidInfluencer
	}

	var result *domain.Affiliation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadProduct(ctx, tx, req.ProductID); err != nil {
			return err
		}
		// Concurrent creates for one influencer queue on this lock, so the
		// quota count below cannot be raced past the plan's cap.
		influencer, err := s.users.LockByID(ctx, tx, req.InfluencerID)
		if err != nil {
			return err
		}
		if influencer == nil {
			return userdomain.ErrNotFound
		}
		if !influencer.IsInfluencer() {
			return domain.ErrInfluencerOnly
		}

		existing, err := s.repo.FindByPair(ctx, tx, req.ProductID, req.InfluencerID)
		if err != nil {
			return err
		}
		if existing != nil && !existing.Deleted {
			return domain.ErrAlreadyExists
		}

		if err := s.checkQuota(ctx, tx, influencer); err != nil {
			return err
		}

		now := s.clock.Now()
		if existing != nil {
			restored, err := s.repo.Restore(ctx, tx, existing.ID, now)
			if err != nil {
				return err
			}
			if !restored {
				return domain.ErrAlreadyExists
			}
			result, err = s.repo.FindByID(ctx, tx, existing.ID)
			return err
		}

		item := &domain.Affiliation{
			ID:           s.genID.Generate(),
			ProductID:    req.ProductID,
			InfluencerID: req.InfluencerID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		inserted, err := s.repo.Insert(ctx, tx, item)
		if err != nil {
			return err
		}
		if !inserted {
			return domain.ErrAlreadyExists
		}
		result = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("affiliation created",
		zap.String("affiliation_id", result.ID.String()),
		zap.String("product_id", result.ProductID.String()),
		zap.String("influencer_id", result.InfluencerID.String()),
	)
	return result, nil
}

func (s *Service) checkQuota(ctx context.Context, tx *gorm.DB, influencer *userdomain.User) error {
	catalog := s.plans.Get()
	plan, ok := catalog.Lookup(influencer.Role, influencer.Plan)
	if !ok {
		plan = catalog.DefaultPlan(influencer.Role)
	}
	if !plan.Metered() {
		return nil
	}
	count, err := s.repo.CountActive(ctx, tx, influencer.ID)
	if err != nil {
		return err
	}
	if count >= int64(plan.AffiliationLimit) {
		return domain.ErrQuotaExceeded
	}
	return nil
}

func (s *Service) List(ctx context.Context, influencerID snowflake.ID, limit, offset int) ([]domain.Affiliation, error) {
	if influencerID == 0 {
		return nil, domain.ErrInvalidInfluencer
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
	items, err := s.repo.ListByInfluencer(ctx, s.db, influencerID, limit, offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Affiliation{}
	}
	return items, nil
}

func (s *Service) Delete(ctx context.Context, influencerID, id snowflake.ID) error {
	ok, err := s.repo.SoftDelete(ctx, s.db, id, influencerID, s.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	return nil
}

// FindCovering returns the live affiliation for the pair, or nil.
func (s *Service) FindCovering(ctx context.Context, db *gorm.DB, productID, influencerID snowflake.ID) (*domain.Affiliation, error) {
	item, err := s.repo.FindByPair(ctx, db, productID, influencerID)
	if err != nil {
		return nil, err
	}
	if item == nil || item.Deleted {
		return nil, nil
	}
	return item, nil
}

func (s *Service) loadProduct(ctx context.Context, db *gorm.DB, id snowflake.ID) (*productdomain.Product, error) {
	product, err := s.products.FindByID(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, productdomain.ErrNotFound
	}
	if !product.Active {
		return nil, productdomain.ErrInactive
	}
	return product, nil
}

func (s *Service) recordContact(ctx context.Context, kind domain.ContactKind, outcome string) {
	if s.obsMetrics == nil {
		return
	}
	s.obsMetrics.RecordContact(ctx, string(kind), outcome)
}
