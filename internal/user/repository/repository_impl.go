package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/affiliora/internal/user/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO users (id, email, name, role, plan, gateway_customer_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.Name,
		user.Role,
		user.Plan,
		user.GatewayCustomerID,
		user.CreatedAt,
		user.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, name, role, plan, gateway_customer_id, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repo) FindByGatewayCustomer(ctx context.Context, db *gorm.DB, customerID string) (*domain.User, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, nil
	}
	var user domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, name, role, plan, gateway_customer_id, created_at, updated_at
		 FROM users WHERE gateway_customer_id = ?
		 LIMIT 1`,
		customerID,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) UpdatePlan(ctx context.Context, db *gorm.DB, id snowflake.ID, plan string, at time.Time) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE users SET plan = ?, updated_at = ? WHERE id = ?`,
		plan,
		at,
		id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) SetGatewayCustomer(ctx context.Context, db *gorm.DB, id snowflake.ID, customerID string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE users SET gateway_customer_id = ?, updated_at = ?
		 WHERE id = ? AND (gateway_customer_id IS NULL OR gateway_customer_id = '')`,
		customerID,
		at,
		id,
	).Error
}
