package sponsorship

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/affiliora/internal/sponsorship/domain"
	"github.com/smallbiznis/affiliora/internal/sponsorship/repository"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("sponsorship.store",
	fx.Provide(repository.Provide),
	fx.Provide(NewFinder),
)

// Finder resolves the sponsorship covering a product for an influencer.
type Finder struct {
	repo domain.Repository
}

func NewFinder(repo domain.Repository) *Finder {
	return &Finder{repo: repo}
}

// FindActive returns the most recently started sponsorship active at the
// given instant, or nil when none applies. Windows are compared in Go so the
// result does not depend on how the driver serializes timestamps.
func (f *Finder) FindActive(ctx context.Context, db *gorm.DB, productID, influencerID snowflake.ID, at time.Time) (*domain.Sponsorship, error) {
	items, err := f.repo.ListForPair(ctx, db, productID, influencerID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].ActiveAt(at) {
			return &items[i], nil
		}
	}
	return nil, nil
}
