package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/affiliora/internal/audit/domain"
	"github.com/smallbiznis/affiliora/internal/observability/logger"
	orderdomain "github.com/smallbiznis/affiliora/internal/order/domain"
)

type orderItemRequest struct {
	ProductID snowflake.ID `json:"product_id" binding:"required"`
	Quantity  int64        `json:"quantity" binding:"required,gt=0"`
}

type createOrderRequest struct {
	Items            []orderItemRequest `json:"items" binding:"required,min=1,dive"`
	InfluencerID     *snowflake.ID      `json:"influencer_id"`
	PaymentMethodRef string             `json:"payment_method_ref" binding:"required"`
}

func (s *Server) CreateOrder(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	items := make([]orderdomain.ItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, orderdomain.ItemRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	resp, err := s.orderSvc.Create(c.Request.Context(), orderdomain.CreateRequest{
		BuyerID:          user.ID,
		Items:            items,
		InfluencerID:     req.InfluencerID,
		PaymentMethodRef: strings.TrimSpace(req.PaymentMethodRef),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	meta := map[string]any{
		"items":              len(items),
		"payment_method_ref": req.PaymentMethodRef,
	}
	if req.InfluencerID != nil {
		meta["influencer_id"] = req.InfluencerID.String()
	}
	if resp != nil && resp.Order != nil {
		c.Set(logger.KeyOrderID, resp.Order.ID.String())
		s.recordAudit(c, auditdomain.ActionOrderCreate, "order", resp.Order.ID.String(), meta)
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListOrders(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	limit, offset, err := parsePagination(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.orderSvc.List(c.Request.Context(), user.ID, limit, offset)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetOrder(c *gin.Context) {
	s.orderAction(c, "", s.orderSvc.Get)
}

func (s *Server) CancelOrder(c *gin.Context) {
	s.orderAction(c, auditdomain.ActionOrderCancel, s.orderSvc.Cancel)
}

func (s *Server) ShipOrder(c *gin.Context) {
	s.orderAction(c, auditdomain.ActionOrderShip, s.orderSvc.Ship)
}

func (s *Server) DeliverOrder(c *gin.Context) {
	s.orderAction(c, auditdomain.ActionOrderDeliver, s.orderSvc.Deliver)
}

// orderAction runs fn for the caller against the order in the path. The
// service checks that the caller is a party to the order. A non-empty
// auditAction is recorded on success.
func (s *Server) orderAction(c *gin.Context, auditAction string, fn func(ctx context.Context, actorID, id snowflake.ID) (*orderdomain.Order, error)) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	id, err := parsePathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set(logger.KeyOrderID, id.String())

	resp, err := fn(c.Request.Context(), user.ID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if auditAction != "" {
		s.recordAudit(c, auditAction, "order", id.String(), map[string]any{"status": string(resp.Status)})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
