package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/affiliora/internal/audit/domain"
	subscriptiondomain "github.com/smallbiznis/affiliora/internal/subscription/domain"
)

type checkoutRequest struct {
	Plan string `json:"plan" binding:"required,plan_code"`
}

type upgradeSubscriptionRequest struct {
	NewPlan string `json:"new_plan" binding:"required,plan_code"`
}

func (s *Server) CreateSubscriptionCheckout(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.subscriptionSvc.Checkout(c.Request.Context(), subscriptiondomain.CheckoutRequest{
		UserID: user.ID,
		Plan:   strings.TrimSpace(req.Plan),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionSubscriptionCheckout, "checkout_session", resp.SessionID, map[string]any{"plan": strings.TrimSpace(req.Plan)})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCurrentSubscription(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	resp, err := s.subscriptionSvc.Current(c.Request.Context(), user.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	id, err := parsePathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.subscriptionSvc.Cancel(c.Request.Context(), user.ID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionSubscriptionCancel, "subscription", id.String(), nil)

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpgradeSubscription(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	id, err := parsePathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req upgradeSubscriptionRequest
	if err := bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.subscriptionSvc.Upgrade(c.Request.Context(), user.ID, id, strings.TrimSpace(req.NewPlan))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionSubscriptionUpgrade, "subscription", id.String(), map[string]any{"new_plan": strings.TrimSpace(req.NewPlan)})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
