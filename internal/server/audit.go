package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/affiliora/internal/audit/domain"
	"github.com/smallbiznis/affiliora/internal/observability/logger"
	"go.uber.org/zap"
)

// recordAudit writes a best-effort audit entry for the caller. A failed
// write is logged and never fails the request.
func (s *Server) recordAudit(c *gin.Context, action, targetType, targetID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}

	ctx := c.Request.Context()
	err := s.auditSvc.Record(ctx, auditdomain.Entry{
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   metadata,
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
	if err != nil {
		logger.FromContext(ctx).Warn("audit write failed",
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func (s *Server) ListActivity(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	if s.auditSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	limit, offset, err := parsePagination(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.auditSvc.List(c.Request.Context(), auditdomain.ListRequest{
		ActorID:    user.ID.String(),
		Action:     strings.TrimSpace(c.Query("action")),
		TargetType: strings.TrimSpace(c.Query("target_type")),
		TargetID:   strings.TrimSpace(c.Query("target_id")),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
