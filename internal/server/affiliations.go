package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	affiliationdomain "github.com/smallbiznis/affiliora/internal/affiliation/domain"
	auditdomain "github.com/smallbiznis/affiliora/internal/audit/domain"
	"github.com/smallbiznis/affiliora/internal/observability/logger"
)

type createAffiliationRequest struct {
	ProductID snowflake.ID `json:"product_id" binding:"required"`
}

type recordContactRequest struct {
	ProductID    snowflake.ID `json:"product_id" binding:"required"`
	InfluencerID snowflake.ID `json:"influencer_id" binding:"required"`
	Kind         string       `json:"kind" binding:"required,contact_kind"`
}

func (s *Server) CreateAffiliation(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	var req createAffiliationRequest
	if err := bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.affiliationSvc.Create(c.Request.Context(), affiliationdomain.CreateRequest{
		ProductID:    req.ProductID,
		InfluencerID: user.ID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionAffiliationCreate, "affiliation", resp.ID.String(), map[string]any{"product_id": req.ProductID.String()})

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListAffiliations(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	limit, offset, err := parsePagination(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.affiliationSvc.List(c.Request.Context(), user.ID, limit, offset)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteAffiliation(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	id, err := parsePathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.affiliationSvc.Delete(c.Request.Context(), user.ID, id); err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionAffiliationDelete, "affiliation", id.String(), nil)

	c.Status(http.StatusNoContent)
}

// RecordContact counts a click or view for the influencer's link. Callers
// may be anonymous.
func (s *Server) RecordContact(c *gin.Context) {
	var req recordContactRequest
	if err := bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set(logger.KeyContactKind, req.Kind)

	resp, err := s.affiliationSvc.RecordContact(c.Request.Context(), affiliationdomain.ContactRequest{
		ProductID:    req.ProductID,
		InfluencerID: req.InfluencerID,
		Kind:         affiliationdomain.ContactKind(req.Kind),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
