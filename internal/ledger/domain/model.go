package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type TransactionType string

const (
	TypePurchase   TransactionType = "purchase"
	TypeRefund     TransactionType = "refund"
	TypeCommission TransactionType = "commission"
	// TypeWithdrawal is recorded by the payout process, which lives outside this service.
	TypeWithdrawal TransactionType = "withdrawal"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

var (
	ErrInvalidType    = errors.New("invalid_transaction_type")
	ErrInvalidStatus  = errors.New("invalid_transaction_status")
	ErrInvalidAmount  = errors.New("invalid_transaction_amount")
	ErrInvalidParties = errors.New("invalid_transaction_parties")
	ErrInvalidOrder   = errors.New("invalid_transaction_order")
	ErrMissingRef     = errors.New("missing_transaction_gateway_ref")
)

// Transaction is a money movement between two users. Rows tied to an order
// are unique per (order, type, from, to, gateway ref) so settlement can be
// replayed. Purchase and commission rows carry the intent id; each partial
// refund carries its own ref.
type Transaction struct {
	ID                snowflake.ID      `gorm:"primaryKey" json:"id"`
	FromUserID        snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_transactions_settlement,priority:3" json:"from_user_id"`
	ToUserID          snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_transactions_settlement,priority:4" json:"to_user_id"`
	Amount            int64             `gorm:"not null" json:"amount"`
	Currency          string            `gorm:"type:text;not null" json:"currency"`
	Type              TransactionType   `gorm:"type:text;not null;uniqueIndex:ux_transactions_settlement,priority:2" json:"type"`
	Status            TransactionStatus `gorm:"type:text;not null" json:"status"`
	OrderID           *snowflake.ID     `gorm:"uniqueIndex:ux_transactions_settlement,priority:1" json:"order_id,omitempty"`
	GatewayTransferID *string           `gorm:"type:text;uniqueIndex:ux_transactions_settlement,priority:5" json:"gateway_transfer_id,omitempty"`
	CreatedAt         time.Time         `gorm:"not null" json:"created_at"`
}

func (Transaction) TableName() string { return "transactions" }

func (t TransactionType) Valid() bool {
	switch t {
	case TypePurchase, TypeRefund, TypeCommission, TypeWithdrawal:
		return true
	}
	return false
}

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Validate checks the invariants every stored transaction must hold.
func (t *Transaction) Validate() error {
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if !t.Status.Valid() {
		return ErrInvalidStatus
	}
	if t.Amount < 0 {
		return ErrInvalidAmount
	}
	if t.FromUserID == 0 || t.ToUserID == 0 || t.FromUserID == t.ToUserID {
		return ErrInvalidParties
	}
	if t.Type == TypeWithdrawal {
		return nil
	}
	if t.OrderID == nil || *t.OrderID == 0 {
		return ErrInvalidOrder
	}
	if t.GatewayTransferID == nil || *t.GatewayTransferID == "" {
		return ErrMissingRef
	}
	return nil
}

type Repository interface {
	// Insert reports false when the settlement key already exists.
	Insert(ctx context.Context, db *gorm.DB, txn *Transaction) (bool, error)
	ListByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]Transaction, error)
	SumByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID, typ TransactionType) (int64, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, limit, offset int) ([]Transaction, error)
}
