package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/affiliora/internal/payment/domain"
	userdomain "github.com/smallbiznis/affiliora/internal/user/domain"
	"gorm.io/gorm"
)

type Service interface {
	Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
	Current(ctx context.Context, userID snowflake.ID) (*Subscription, error)
	Cancel(ctx context.Context, userID, id snowflake.ID) (*Subscription, error)
	Upgrade(ctx context.Context, userID, id snowflake.ID, plan string) (*Subscription, error)

	// ApplyGatewayStateTx upserts the subscription from the gateway's view
	// and mirrors the resulting plan onto the user inside tx.
	ApplyGatewayStateTx(ctx context.Context, tx *gorm.DB, req ApplyRequest) (*ApplyResult, error)
}

type CheckoutRequest struct {
	UserID snowflake.ID
	Plan   string
}

type CheckoutResult struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

type ApplyRequest struct {
	Subscription *paymentdomain.GatewaySubscription
	// CheckoutToken is the signed client reference carried by a completed
	// checkout session, if any.
	CheckoutToken string
}

type ApplyResult struct {
	Subscription *Subscription
	User         *userdomain.User
	Previous     Status
	Created      bool
	// Rejected is set when the gateway state would move the row backwards.
	// Nothing is written in that case.
	Rejected bool
}

// Activated reports whether this apply turned the subscription active.
func (r *ApplyResult) Activated() bool {
	return r != nil && !r.Rejected && r.Subscription != nil &&
		r.Subscription.Status == StatusActive && r.Previous != StatusActive
}

// Ended reports whether this apply ended the subscription.
func (r *ApplyResult) Ended() bool {
	return r != nil && !r.Rejected && r.Subscription != nil &&
		r.Subscription.Status.Ended() && !r.Previous.Ended()
}
