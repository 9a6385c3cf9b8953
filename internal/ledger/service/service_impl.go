package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/affiliora/internal/clock"
	ledgerdomain "github.com/smallbiznis/affiliora/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/affiliora/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       ledgerdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       ledgerdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Record(ctx context.Context, tx *gorm.DB, txn ledgerdomain.Transaction) (bool, error) {
	txn.Currency = strings.ToLower(strings.TrimSpace(txn.Currency))
	if err := txn.Validate(); err != nil {
		return false, err
	}
	if txn.ID == 0 {
		txn.ID = s.genID.Generate()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = s.clock.Now()
	}

	inserted, err := s.repo.Insert(ctx, tx, &txn)
	if err != nil {
		return false, err
	}
	if !inserted {
		s.log.Debug("transaction already recorded",
			zap.String("type", string(txn.Type)),
			zap.Stringp("order_id", orderIDString(txn.OrderID)),
		)
		return false, nil
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordTransaction(ctx, string(txn.Type))
	}
	return true, nil
}

func (s *Service) SumTx(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, typ ledgerdomain.TransactionType) (int64, error) {
	if orderID == 0 {
		return 0, ledgerdomain.ErrInvalidOrder
	}
	if !typ.Valid() {
		return 0, ledgerdomain.ErrInvalidType
	}
	return s.repo.SumByOrder(ctx, tx, orderID, typ)
}

func (s *Service) ListByOrder(ctx context.Context, orderID snowflake.ID) ([]ledgerdomain.Transaction, error) {
	if orderID == 0 {
		return nil, ledgerdomain.ErrInvalidOrder
	}
	return s.repo.ListByOrder(ctx, s.db, orderID)
}

func (s *Service) ListByUser(ctx context.Context, userID snowflake.ID, limit, offset int) ([]ledgerdomain.Transaction, error) {
	if userID == 0 {
		return nil, ledgerdomain.ErrInvalidParties
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByUser(ctx, s.db, userID, limit, offset)
}

func orderIDString(id *snowflake.ID) *string {
	if id == nil {
		return nil
	}
	v := id.String()
	return &v
}
