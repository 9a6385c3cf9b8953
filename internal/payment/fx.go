package payment

import (
	"github.com/smallbiznis/affiliora/internal/payment/adapters"
	"github.com/smallbiznis/affiliora/internal/payment/adapters/stripe"
	"github.com/smallbiznis/affiliora/internal/payment/repository"
	"github.com/smallbiznis/affiliora/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			stripe.NewFactory(),
		)
	}),
	fx.Provide(adapters.NewGateway),
	fx.Provide(webhook.NewService),
)
