package product

import (
	"github.com/smallbiznis/affiliora/internal/product/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("product.store",
	fx.Provide(repository.Provide),
)
