package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/affiliora/internal/commission"
	paymentdomain "github.com/smallbiznis/affiliora/internal/payment/domain"
	"gorm.io/gorm"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*CreateResult, error)
	Get(ctx context.Context, actorID, id snowflake.ID) (*Order, error)
	List(ctx context.Context, userID snowflake.ID, limit, offset int) ([]Order, error)

	MarkPaid(ctx context.Context, orderID snowflake.ID, intentID string) (*Settlement, error)
	MarkPaidTx(ctx context.Context, tx *gorm.DB, req MarkPaidRequest) (*Settlement, error)
	// EndPaymentTx records a failed or canceled intent and cancels its order.
	EndPaymentTx(ctx context.Context, tx *gorm.DB, intentID string, status paymentdomain.PaymentStatus) (*Order, bool, error)
	// RefundTx takes the cumulative amount refunded on the intent so far.
	RefundTx(ctx context.Context, tx *gorm.DB, intentID string, refunded int64) (*Order, bool, error)
	OrderIDForIntent(ctx context.Context, intentID string) (snowflake.ID, error)

	Cancel(ctx context.Context, actorID, id snowflake.ID) (*Order, error)
	Ship(ctx context.Context, actorID, id snowflake.ID) (*Order, error)
	Deliver(ctx context.Context, actorID, id snowflake.ID) (*Order, error)

	// ExpirePending cancels unpaid orders created before the cutoff and
	// reports how many were cancelled.
	ExpirePending(ctx context.Context, before time.Time, limit int) (int, error)
}

type ItemRequest struct {
	ProductID snowflake.ID
	Quantity  int64
}

type CreateRequest struct {
	BuyerID          snowflake.ID
	Items            []ItemRequest
	InfluencerID     *snowflake.ID
	PaymentMethodRef string
}

type CreateResult struct {
	Order        *Order                 `json:"order"`
	Payment      *paymentdomain.Payment `json:"payment"`
	ClientSecret string                 `json:"client_secret,omitempty"`
}

type MarkPaidRequest struct {
	OrderID    snowflake.ID
	IntentID   string
	ReceiptRef string
}

// Settlement is the outcome of markPaid. Applied is false on replays.
type Settlement struct {
	Order   *Order                 `json:"order"`
	Payment *paymentdomain.Payment `json:"payment"`
	Splits  []commission.Split     `json:"splits"`
	Applied bool                   `json:"applied"`
}
