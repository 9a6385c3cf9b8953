package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

var forward = map[Status]Status{
	StatusPending: StatusPaid,
	StatusPaid:    StatusShipped,
	StatusShipped: StatusDelivered,
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransition allows one step forward, or cancellation from any
// non-terminal status.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	return forward[from] == to
}

type CoverageType string

const (
	CoverageNone        CoverageType = "none"
	CoverageAffiliation CoverageType = "affiliation"
	CoverageSponsorship CoverageType = "sponsorship"
)

// Order is a single-brand purchase. TotalAmount always equals the sum of its
// items' unit price times quantity.
type Order struct {
	ID           snowflake.ID  `json:"id" gorm:"primaryKey"`
	BuyerID      snowflake.ID  `json:"buyer_id" gorm:"not null;index"`
	BrandID      snowflake.ID  `json:"brand_id" gorm:"not null;index"`
	InfluencerID *snowflake.ID `json:"influencer_id,omitempty" gorm:"index"`
	Status       Status        `json:"status" gorm:"type:text;not null"`
	TotalAmount  int64         `json:"total_amount" gorm:"not null"`
	Currency     string        `json:"currency" gorm:"type:text;not null"`
	PaymentRef   string        `json:"payment_ref" gorm:"type:text;not null"`
	Items        []Item        `json:"items" gorm:"-"`
	CreatedAt    time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time     `json:"updated_at" gorm:"not null"`
}

func (Order) TableName() string { return "orders" }

// Involves reports whether the user is a party to the order.
func (o *Order) Involves(userID snowflake.ID) bool {
	if o == nil || userID == 0 {
		return false
	}
	if o.BuyerID == userID || o.BrandID == userID {
		return true
	}
	return o.InfluencerID != nil && *o.InfluencerID == userID
}

// Item is an order line. The coverage columns freeze the commission basis
// resolved when the order was placed.
type Item struct {
	ID                snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrderID           snowflake.ID    `json:"order_id" gorm:"not null;index"`
	ProductID         snowflake.ID    `json:"product_id" gorm:"not null"`
	Quantity          int64           `json:"quantity" gorm:"not null"`
	UnitPrice         int64           `json:"unit_price" gorm:"not null"`
	CoverageType      CoverageType    `json:"coverage_type" gorm:"type:text;not null"`
	CoverageID        *snowflake.ID   `json:"coverage_id,omitempty"`
	CommissionPercent decimal.Decimal `json:"commission_percent" gorm:"type:numeric(5,2);not null;default:0"`
	CreatedAt         time.Time       `json:"created_at" gorm:"not null"`
}

func (Item) TableName() string { return "order_items" }

func (i Item) Subtotal() int64 {
	return i.UnitPrice * i.Quantity
}
