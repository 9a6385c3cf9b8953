package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Increment adds delta to one counter in a single UPDATE statement and
	// reports whether a live row matched.
	Increment(ctx context.Context, db *gorm.DB, id snowflake.ID, field Field, delta int64, at time.Time) (bool, error)
	// IncrementIfUnchanged is Increment guarded by the traffic counters the
	// caller observed, so two callers racing past a cool-down apply once.
	IncrementIfUnchanged(ctx context.Context, db *gorm.DB, seen *Affiliation, field Field, delta int64, at time.Time) (bool, error)
	Insert(ctx context.Context, db *gorm.DB, affiliation *Affiliation) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Affiliation, error)
	FindByPair(ctx context.Context, db *gorm.DB, productID, influencerID snowflake.ID) (*Affiliation, error)
	Restore(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	SoftDelete(ctx context.Context, db *gorm.DB, id, influencerID snowflake.ID, at time.Time) (bool, error)
	ListByInfluencer(ctx context.Context, db *gorm.DB, influencerID snowflake.ID, limit, offset int) ([]Affiliation, error)
	CountActive(ctx context.Context, db *gorm.DB, influencerID snowflake.ID) (int64, error)
}
