package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/affiliora/internal/affiliation/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const selectColumns = `id, product_id, influencer_id, clicks, page_views, total_sale_qty,
	total_sale_revenue, deleted, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Increment(ctx context.Context, db *gorm.DB, id snowflake.ID, field domain.Field, delta int64, at time.Time) (bool, error) {
	if !field.Valid() {
		return false, domain.ErrInvalidField
	}
	column := string(field)
	res := db.WithContext(ctx).Exec(
		fmt.Sprintf(`UPDATE affiliations SET %s = %s + ?, updated_at = ? WHERE id = ? AND deleted = ?`, column, column),
		delta,
		at,
		id,
		false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) IncrementIfUnchanged(ctx context.Context, db *gorm.DB, seen *domain.Affiliation, field domain.Field, delta int64, at time.Time) (bool, error) {
	if seen == nil {
		return false, domain.ErrNotFound
	}
	if !field.Valid() {
		return false, domain.ErrInvalidField
	}
	column := string(field)
	res := db.WithContext(ctx).Exec(
		fmt.Sprintf(`UPDATE affiliations SET %s = %s + ?, updated_at = ?
		 WHERE id = ? AND deleted = ? AND clicks = ? AND page_views = ?`, column, column),
		delta,
		at,
		seen.ID,
		false,
		seen.Clicks,
		seen.PageViews,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, a *domain.Affiliation) (bool, error) {
	res := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}, {Name: "influencer_id"}},
		DoNothing: true,
	}).Create(a)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Affiliation, error) {
	var item domain.Affiliation
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+` FROM affiliations WHERE id = ?`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByPair(ctx context.Context, db *gorm.DB, productID, influencerID snowflake.ID) (*domain.Affiliation, error) {
	var item domain.Affiliation
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+` FROM affiliations WHERE product_id = ? AND influencer_id = ?`,
		productID,
		influencerID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Restore(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE affiliations SET deleted = ?, updated_at = ? WHERE id = ? AND deleted = ?`,
		false,
		at,
		id,
		true,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SoftDelete(ctx context.Context, db *gorm.DB, id, influencerID snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE affiliations SET deleted = ?, updated_at = ?
		 WHERE id = ? AND influencer_id = ? AND deleted = ?`,
		true,
		at,
		id,
		influencerID,
		false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListByInfluencer(ctx context.Context, db *gorm.DB, influencerID snowflake.ID, limit, offset int) ([]domain.Affiliation, error) {
	var items []domain.Affiliation
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+` FROM affiliations
		 WHERE influencer_id = ? AND deleted = ?
		 ORDER BY id DESC
		 LIMIT ? OFFSET ?`,
		influencerID,
		false,
		limit,
		offset,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountActive(ctx context.Context, db *gorm.DB, influencerID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM affiliations WHERE influencer_id = ? AND deleted = ?`,
		influencerID,
		false,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
