package domain

import (
	"context"

	userdomain "github.com/smallbiznis/affiliora/internal/user/domain"
)

// Service resolves bearer tokens minted by the external auth service into
// local users. Sessions and token issuance live outside this process.
type Service interface {
	Authenticate(ctx context.Context, rawToken string) (*userdomain.User, error)
}
