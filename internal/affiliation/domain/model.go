package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Affiliation links one influencer to one product and accumulates the
// attribution counters used for commission reporting.
type Affiliation struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	ProductID        snowflake.ID `json:"product_id" gorm:"not null;uniqueIndex:ux_affiliations_pair,priority:1"`
	InfluencerID     snowflake.ID `json:"influencer_id" gorm:"not null;uniqueIndex:ux_affiliations_pair,priority:2;index"`
	Clicks           int64        `json:"clicks" gorm:"not null;default:0"`
	PageViews        int64        `json:"page_views" gorm:"not null;default:0"`
	TotalSaleQty     int64        `json:"total_sale_qty" gorm:"not null;default:0"`
	TotalSaleRevenue int64        `json:"total_sale_revenue" gorm:"not null;default:0"`
	Deleted          bool         `json:"-" gorm:"not null;default:false"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time    `json:"updated_at" gorm:"not null"`
}

func (Affiliation) TableName() string { return "affiliations" }

// Field names a counter column.
type Field string

const (
	FieldClicks           Field = "clicks"
	FieldPageViews        Field = "page_views"
	FieldTotalSaleQty     Field = "total_sale_qty"
	FieldTotalSaleRevenue Field = "total_sale_revenue"
)

func (f Field) Valid() bool {
	switch f {
	case FieldClicks, FieldPageViews, FieldTotalSaleQty, FieldTotalSaleRevenue:
		return true
	default:
		return false
	}
}

// ValidateDelta enforces the per-field bounds. Traffic counters accept zero,
// sale counters require a positive amount.
func (f Field) ValidateDelta(delta int64) error {
	switch f {
	case FieldClicks, FieldPageViews:
		if delta < 0 {
			return ErrInvalidDelta
		}
	case FieldTotalSaleQty, FieldTotalSaleRevenue:
		if delta <= 0 {
			return ErrInvalidDelta
		}
	default:
		return ErrInvalidField
	}
	return nil
}

type ContactKind string

const (
	ContactClick ContactKind = "click"
	ContactView  ContactKind = "view"
)

func (k ContactKind) Field() (Field, bool) {
	switch k {
	case ContactClick:
		return FieldClicks, true
	case ContactView:
		return FieldPageViews, true
	default:
		return "", false
	}
}
