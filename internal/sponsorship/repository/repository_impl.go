package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/affiliora/internal/sponsorship/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, s *domain.Sponsorship) error {
	if !s.EndsAt.After(s.StartsAt) {
		return domain.ErrInvalidWindow
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO sponsorships (id, brand_id, influencer_id, product_id, commission_percent, starts_at, ends_at, cancelled, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.BrandID,
		s.InfluencerID,
		s.ProductID,
		s.CommissionPercent,
		s.StartsAt,
		s.EndsAt,
		s.Cancelled,
		s.CreatedAt,
	).Error
}

func (r *repo) ListForPair(ctx context.Context, db *gorm.DB, productID, influencerID snowflake.ID) ([]domain.Sponsorship, error) {
	var items []domain.Sponsorship
	err := db.WithContext(ctx).Raw(
		`SELECT id, brand_id, influencer_id, product_id, commission_percent, starts_at, ends_at, cancelled, created_at
		 FROM sponsorships
		 WHERE product_id = ? AND influencer_id = ? AND cancelled = ?
		 ORDER BY starts_at DESC`,
		productID,
		influencerID,
		false,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
