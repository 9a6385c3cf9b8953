package authorization

import (
	"context"

	userdomain "github.com/smallbiznis/affiliora/internal/user/domain"
)

// Service decides whether a user's role grants an action on an object.
type Service interface {
	Authorize(ctx context.Context, user *userdomain.User, object string, action string) error
}
