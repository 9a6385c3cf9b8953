package subscription

import (
	"github.com/smallbiznis/affiliora/internal/subscription/checkouttoken"
	"github.com/smallbiznis/affiliora/internal/subscription/repository"
	"github.com/smallbiznis/affiliora/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(checkouttoken.NewIssuer),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
