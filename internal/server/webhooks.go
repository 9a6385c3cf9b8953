package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/affiliora/internal/observability/context"
	"github.com/smallbiznis/affiliora/internal/observability/logger"
	"github.com/smallbiznis/affiliora/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

const maxWebhookBodyBytes = 1 << 20

// HandlePaymentWebhook passes the raw body to the reconciler. The signature
// covers the exact bytes, so the body must not be decoded first.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := obscontext.WithActor(c.Request.Context(), "gateway", s.cfg.Gateway.Provider)
	ctx = correlation.ContextWithCorrelationID(ctx, c.GetHeader(correlation.HeaderName))
	c.Request = c.Request.WithContext(ctx)
	res, err := s.reconciler.HandleWebhook(ctx, payload, c.Request.Header)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(logger.KeyEventType, res.EventType)
	logger.FromContext(ctx).Debug("payment webhook handled",
		zap.String("event_id", res.EventID),
		zap.String("event_type", res.EventType),
		zap.Bool("duplicate", res.Duplicate),
		zap.Bool("ignored", res.Ignored),
	)
	c.JSON(http.StatusOK, gin.H{"received": true})
}
