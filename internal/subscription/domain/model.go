package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusInactive  Status = "inactive"
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Ended reports whether the subscription no longer grants its plan.
func (s Status) Ended() bool {
	return s == StatusCancelled || s == StatusExpired
}

// Subscription mirrors one gateway subscription. Rows are keyed by the
// gateway subscription id and only move forward through the state machine.
type Subscription struct {
	ID                    snowflake.ID      `json:"id" gorm:"primaryKey"`
	UserID                snowflake.ID      `json:"user_id" gorm:"not null;index:idx_subscriptions_user"`
	Plan                  string            `json:"plan" gorm:"type:text;not null"`
	PendingPlan           *string           `json:"pending_plan,omitempty" gorm:"type:text"`
	Status                Status            `json:"status" gorm:"type:text;not null"`
	CurrentPeriodStart    time.Time         `json:"current_period_start"`
	CurrentPeriodEnd      time.Time         `json:"current_period_end"`
	CancelAtPeriodEnd     bool              `json:"cancel_at_period_end" gorm:"not null;default:false"`
	GatewaySubscriptionID string            `json:"gateway_subscription_id" gorm:"type:text;not null;uniqueIndex:ux_subscriptions_gateway"`
	GatewayCustomerID     string            `json:"gateway_customer_id,omitempty" gorm:"type:text"`
	Metadata              datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:json"`
	CreatedAt             time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt             time.Time         `json:"updated_at" gorm:"not null"`
}

func (Subscription) TableName() string { return "subscriptions" }

func (s *Subscription) OwnedBy(userID snowflake.ID) bool {
	return s != nil && userID != 0 && s.UserID == userID
}

// Metadata keys written on checkout sessions and gateway subscriptions.
const (
	MetadataUserID        = "user_id"
	MetadataPlan          = "plan"
	MetadataCheckoutToken = "checkout_token"
)
