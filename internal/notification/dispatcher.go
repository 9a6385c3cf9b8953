// Package notification sends best-effort emails for committed state changes.
// Delivery failures are logged and never returned to the caller.
package notification

import (
	"bytes"
	"context"
	"html/template"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	orderdomain "github.com/smallbiznis/affiliora/internal/order/domain"
	"github.com/smallbiznis/affiliora/internal/providers/email"
	subscriptiondomain "github.com/smallbiznis/affiliora/internal/subscription/domain"
	userdomain "github.com/smallbiznis/affiliora/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sendTimeout = 5 * time.Second

var Module = fx.Module("notification",
	fx.Provide(NewDispatcher),
)

var bodies = template.Must(template.New("notification").Parse(`
{{define "order_paid_buyer"}}<p>Thanks for your order. Payment for order {{.OrderID}} was received ({{.Amount}} {{.Currency}}).</p>{{end}}
{{define "order_paid_brand"}}<p>Order {{.OrderID}} was paid ({{.Amount}} {{.Currency}}) and is ready to ship.</p>{{end}}
{{define "subscription_activated"}}<p>Your {{.Plan}} plan is active until {{.PeriodEnd}}.</p>{{end}}
{{define "subscription_ended"}}<p>Your {{.Plan}} subscription has ended. Your account is back on the {{.FallbackPlan}} plan.</p>{{end}}
`))

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Mailer email.Provider `optional:"true"`
	Users  userdomain.Repository
}

type Dispatcher struct {
	db     *gorm.DB
	log    *zap.Logger
	mailer email.Provider
	users  userdomain.Repository
}

func NewDispatcher(p Params) *Dispatcher {
	mailer := p.Mailer
	if mailer == nil {
		mailer = &email.NoOpProvider{}
	}
	return &Dispatcher{
		db:     p.DB,
		log:    p.Log.Named("notification"),
		mailer: mailer,
		users:  p.Users,
	}
}

// OrderPaid notifies the buyer and the brand of a settled order.
func (d *Dispatcher) OrderPaid(ctx context.Context, order *orderdomain.Order) {
	if d == nil || order == nil {
		return
	}
	data := map[string]any{
		"OrderID":  order.ID.String(),
		"Amount":   formatCents(order.TotalAmount),
		"Currency": order.Currency,
	}
	d.notify(ctx, order.BuyerID, "Payment received", "order_paid_buyer", data)
	d.notify(ctx, order.BrandID, "New paid order", "order_paid_brand", data)
}

func (d *Dispatcher) SubscriptionActivated(ctx context.Context, sub *subscriptiondomain.Subscription) {
	if d == nil || sub == nil {
		return
	}
	d.notify(ctx, sub.UserID, "Your subscription is active", "subscription_activated", map[string]any{
		"Plan":      sub.Plan,
		"PeriodEnd": sub.CurrentPeriodEnd.Format("2006-01-02"),
	})
}

func (d *Dispatcher) SubscriptionEnded(ctx context.Context, sub *subscriptiondomain.Subscription, fallbackPlan string) {
	if d == nil || sub == nil {
		return
	}
	d.notify(ctx, sub.UserID, "Your subscription has ended", "subscription_ended", map[string]any{
		"Plan":         sub.Plan,
		"FallbackPlan": fallbackPlan,
	})
}

func (d *Dispatcher) notify(ctx context.Context, userID snowflake.ID, subject, name string, data map[string]any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	log := d.log.With(zap.String("user_id", userID.String()), zap.String("notification", name))
	user, err := d.users.FindByID(ctx, d.db, userID)
	if err != nil {
		log.Warn("notification recipient lookup failed", zap.Error(err))
		return
	}
	if user == nil || user.Email == "" {
		log.Debug("notification recipient has no email")
		return
	}

	var body bytes.Buffer
	if err := bodies.ExecuteTemplate(&body, name, data); err != nil {
		log.Error("failed to render notification", zap.Error(err))
		return
	}
	if err := d.mailer.Send(ctx, []string{user.Email}, subject, body.String()); err != nil {
		log.Warn("failed to send notification", zap.Error(err))
	}
}

func formatCents(amount int64) string {
	return decimal.New(amount, -2).StringFixed(2)
}
