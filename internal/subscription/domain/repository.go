package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert returns false when a row for the gateway subscription already
	// exists.
	Insert(ctx context.Context, db *gorm.DB, sub *Subscription) (bool, error)
	// UpdateState overwrites the gateway-derived columns of an existing row.
	UpdateState(ctx context.Context, db *gorm.DB, sub *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByGatewayID(ctx context.Context, db *gorm.DB, gatewaySubscriptionID string) (*Subscription, error)
	FindLatestByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Subscription, error)
	// FindActiveByUser returns an active subscription of the user other than
	// excludeID, if any.
	FindActiveByUser(ctx context.Context, db *gorm.DB, userID, excludeID snowflake.ID) (*Subscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	SetPendingPlan(ctx context.Context, db *gorm.DB, id snowflake.ID, plan string, at time.Time) (bool, error)
}
