package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/affiliora/internal/config"
)

const (
	RoleBrand      = config.AccountTypeBrand
	RoleInfluencer = config.AccountTypeInfluencer
	RoleGuest      = config.AccountTypeGuest
)

// User is the slice of the account record the settlement core reads and
// writes. Profile data lives elsewhere.
type User struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	Email             string       `json:"email" gorm:"type:text;not null"`
	Name              string       `json:"name" gorm:"type:text;not null"`
	Role              string       `json:"role" gorm:"type:text;not null"`
	Plan              string       `json:"plan" gorm:"type:text;not null;default:free"`
	GatewayCustomerID *string      `json:"gateway_customer_id,omitempty" gorm:"type:text;uniqueIndex:ux_users_gateway_customer"`
	CreatedAt         time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time    `json:"updated_at" gorm:"not null"`
}

func (User) TableName() string { return "users" }

func (u *User) IsInfluencer() bool { return u != nil && u.Role == RoleInfluencer }

func (u *User) IsBrand() bool { return u != nil && u.Role == RoleBrand }
