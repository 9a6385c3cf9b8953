package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	Increment(ctx context.Context, id snowflake.ID, field Field, delta int64) (*Affiliation, error)
	IncrementTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, field Field, delta int64) error
	RecordContact(ctx context.Context, req ContactRequest) (*ContactResult, error)
	Create(ctx context.Context, req CreateRequest) (*Affiliation, error)
	List(ctx context.Context, influencerID snowflake.ID, limit, offset int) ([]Affiliation, error)
	Delete(ctx context.Context, influencerID, id snowflake.ID) error
	FindCovering(ctx context.Context, db *gorm.DB, productID, influencerID snowflake.ID) (*Affiliation, error)
}

type ContactRequest struct {
	ProductID    snowflake.ID
	InfluencerID snowflake.ID
	Kind         ContactKind
}

type ContactResult struct {
	Affiliation *Affiliation `json:"affiliation"`
	Created     bool         `json:"created"`
	// Counted is false when the contact fell inside the cool-down window.
	Counted bool `json:"counted"`
}

type CreateRequest struct {
	ProductID    snowflake.ID
	InfluencerID snowflake.ID
}
