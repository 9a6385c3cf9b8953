package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the user store consumed by the settlement services.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, user *User) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	// LockByID reads the user FOR UPDATE, serializing per-user quota checks
	// until the surrounding transaction ends.
	LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindByGatewayCustomer(ctx context.Context, db *gorm.DB, customerID string) (*User, error)
	UpdatePlan(ctx context.Context, db *gorm.DB, id snowflake.ID, plan string, at time.Time) error
	SetGatewayCustomer(ctx context.Context, db *gorm.DB, id snowflake.ID, customerID string, at time.Time) error
}

var (
	ErrNotFound  = errors.New("user_not_found")
	ErrInvalidID = errors.New("invalid_user_id")
)
