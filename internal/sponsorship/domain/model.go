package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Sponsorship grants an influencer commission on a product for a bounded
// period, independent of any affiliation.
type Sponsorship struct {
	ID                snowflake.ID    `json:"id" gorm:"primaryKey"`
	BrandID           snowflake.ID    `json:"brand_id" gorm:"not null;index"`
	InfluencerID      snowflake.ID    `json:"influencer_id" gorm:"not null;index:ix_sponsorships_pair,priority:2"`
	ProductID         snowflake.ID    `json:"product_id" gorm:"not null;index:ix_sponsorships_pair,priority:1"`
	CommissionPercent decimal.Decimal `json:"commission_percent" gorm:"type:numeric(5,2);not null"`
	StartsAt          time.Time       `json:"starts_at" gorm:"not null"`
	EndsAt            time.Time       `json:"ends_at" gorm:"not null"`
	Cancelled         bool            `json:"cancelled" gorm:"not null;default:false"`
	CreatedAt         time.Time       `json:"created_at" gorm:"not null"`
}

func (Sponsorship) TableName() string { return "sponsorships" }

// ActiveAt reports whether the sponsorship covers the instant at.
func (s Sponsorship) ActiveAt(at time.Time) bool {
	if s.Cancelled {
		return false
	}
	return !at.Before(s.StartsAt) && at.Before(s.EndsAt)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sponsorship *Sponsorship) error
	ListForPair(ctx context.Context, db *gorm.DB, productID, influencerID snowflake.ID) ([]Sponsorship, error)
}

var ErrInvalidWindow = errors.New("invalid_sponsorship_window")
