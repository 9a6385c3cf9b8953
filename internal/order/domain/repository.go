package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	InsertItems(ctx context.Context, db *gorm.DB, items []Item) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	ListItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]Item, error)
	// ListByUser returns orders where the user is buyer, brand or influencer.
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, limit, offset int) ([]Order, error)
	// TransitionStatus reports false when the order was not in from.
	TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, at time.Time) (bool, error)
	// ListPendingBefore returns the oldest unpaid orders created before the cutoff.
	ListPendingBefore(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]Order, error)
}
