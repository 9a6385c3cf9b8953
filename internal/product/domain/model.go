package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Product is the catalog entry as seen by the settlement core.
type Product struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	BrandID    snowflake.ID `json:"brand_id" gorm:"not null;index"`
	Name       string       `json:"name" gorm:"type:text;not null"`
	PriceCents int64        `json:"price_cents" gorm:"not null"`
	Currency   string       `json:"currency" gorm:"type:text;not null"`
	// CommissionPercent is paid to an affiliated influencer on each sale.
	CommissionPercent decimal.Decimal `json:"commission_percent" gorm:"type:numeric(5,2);not null;default:0"`
	Active            bool            `json:"active" gorm:"not null;default:true"`
	CreatedAt         time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time       `json:"updated_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }
