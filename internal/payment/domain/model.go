package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusSucceeded PaymentStatus = "succeeded"
	StatusFailed    PaymentStatus = "failed"
	StatusCanceled  PaymentStatus = "canceled"
)

// Terminal reports whether no further gateway event may change the status.
func (s PaymentStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// Payment mirrors one gateway payment intent. It is created together with its
// order and only moves out of pending once.
type Payment struct {
	ID              snowflake.ID  `json:"id" gorm:"primaryKey"`
	OrderID         snowflake.ID  `json:"order_id" gorm:"not null;uniqueIndex:ux_payments_order"`
	GatewayIntentID string        `json:"gateway_intent_id" gorm:"type:text;not null;uniqueIndex:ux_payments_gateway_intent"`
	Amount          int64         `json:"amount" gorm:"not null"`
	Currency        string        `json:"currency" gorm:"type:text;not null"`
	Status          PaymentStatus `json:"status" gorm:"type:text;not null"`
	ReceiptRef      *string       `json:"receipt_ref,omitempty" gorm:"type:text"`
	CreatedAt       time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time     `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// EventRecord is the inbox row of a verified gateway event.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event,priority:1"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event,priority:2"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	ObjectID        string         `json:"object_id" gorm:"type:text;not null;index"`
	Payload         datatypes.JSON `json:"payload" gorm:"not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

type Repository interface {
	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindPaymentByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*Payment, error)
	FindPaymentByIntent(ctx context.Context, db *gorm.DB, intentID string) (*Payment, error)
	// LockPaymentByIntent reads the latest committed row and holds it for the
	// rest of the transaction, serializing work on one intent.
	LockPaymentByIntent(ctx context.Context, db *gorm.DB, intentID string) (*Payment, error)
	// TransitionPayment moves a payment from one status to another and reports
	// false when the row was not in the expected status. A nil receiptRef
	// keeps the stored one.
	TransitionPayment(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to PaymentStatus, receiptRef *string, at time.Time) (bool, error)

	FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*EventRecord, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}
