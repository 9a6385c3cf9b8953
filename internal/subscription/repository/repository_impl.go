package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/affiliora/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const subscriptionColumns = `id, user_id, plan, pending_plan, status, current_period_start, current_period_end,
	 cancel_at_period_end, gateway_subscription_id, gateway_customer_id, metadata, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *domain.Subscription) (bool, error) {
	result := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "gateway_subscription_id"}},
		DoNothing: true,
	}).Create(sub)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) UpdateState(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET plan = ?, pending_plan = ?, status = ?, current_period_start = ?, current_period_end = ?,
		 cancel_at_period_end = ?, gateway_customer_id = ?, metadata = ?, updated_at = ?
		 WHERE id = ?`,
		sub.Plan,
		sub.PendingPlan,
		sub.Status,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
		sub.GatewayCustomerID,
		sub.Metadata,
		sub.UpdatedAt,
		sub.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	return r.findOne(ctx, db, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
}

func (r *repo) FindByGatewayID(ctx context.Context, db *gorm.DB, gatewaySubscriptionID string) (*domain.Subscription, error) {
	gatewaySubscriptionID = strings.TrimSpace(gatewaySubscriptionID)
	if gatewaySubscriptionID == "" {
		return nil, nil
	}
	return r.findOne(ctx, db,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE gateway_subscription_id = ?`,
		gatewaySubscriptionID,
	)
}

func (r *repo) FindLatestByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Subscription, error) {
	return r.findOne(ctx, db,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		userID,
	)
}

func (r *repo) FindActiveByUser(ctx context.Context, db *gorm.DB, userID, excludeID snowflake.ID) (*domain.Subscription, error) {
	return r.findOne(ctx, db,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE user_id = ? AND status = ? AND id <> ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		userID,
		domain.StatusActive,
		excludeID,
	)
}

func (r *repo) SetCancelAtPeriodEnd(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET cancel_at_period_end = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		true,
		at,
		id,
		domain.StatusActive,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) SetPendingPlan(ctx context.Context, db *gorm.DB, id snowflake.ID, plan string, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET pending_plan = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		plan,
		at,
		id,
		domain.StatusActive,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...interface{}) (*domain.Subscription, error) {
	var sub domain.Subscription
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&sub).Error; err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}
