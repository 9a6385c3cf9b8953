package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/affiliora/internal/observability/context"
	userdomain "github.com/smallbiznis/affiliora/internal/user/domain"
)

const (
	headerAuthorization = "Authorization"
	contextUserKey      = "user"
)

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader(headerAuthorization))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// AuthRequired resolves the bearer token to a user and rejects anonymous
// callers.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if !s.authenticate(c, token) {
			return
		}
		c.Next()
	}
}

// AuthOptional resolves the bearer token when one is sent. A present but
// invalid token is still rejected.
func (s *Server) AuthOptional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" && !s.authenticate(c, token) {
			return
		}
		c.Next()
	}
}

func (s *Server) authenticate(c *gin.Context, token string) bool {
	user, err := s.authsvc.Authenticate(c.Request.Context(), token)
	if err != nil {
		AbortWithError(c, err)
		return false
	}
	c.Set(contextUserKey, user)
	c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), "user", user.ID.String()))
	return true
}

// Authorize checks the caller's role against the policy for object/action.
// Anonymous requests pass through untouched; pair it with AuthRequired on
// routes that need a caller.
func (s *Server) Authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			c.Next()
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), user, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) (*userdomain.User, bool) {
	value, ok := c.Get(contextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := value.(*userdomain.User)
	return user, ok && user != nil
}

// requireUser is used by handlers behind AuthRequired.
func requireUser(c *gin.Context) (*userdomain.User, bool) {
	user, ok := currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return nil, false
	}
	return user, true
}
