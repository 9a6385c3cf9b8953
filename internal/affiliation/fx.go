package affiliation

import (
	"github.com/smallbiznis/affiliora/internal/affiliation/repository"
	"github.com/smallbiznis/affiliora/internal/affiliation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("affiliation.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
