package domain

import (
	"context"
	"errors"
	"time"
)

// Entry describes one action. ActorType and ActorID fall back to the actor
// carried on the context.
type Entry struct {
	ActorType  string
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
	IPAddress  string
	UserAgent  string
}

type ListRequest struct {
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	StartAt    *time.Time
	EndAt      *time.Time
	Limit      int
	Offset     int
}

type Service interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, req ListRequest) ([]AuditLog, error)
}

var (
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidActor     = errors.New("invalid_audit_actor")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)

// Actions recorded by the HTTP layer.
const (
	ActionOrderCreate          = "order.create"
	ActionOrderCancel          = "order.cancel"
	ActionOrderShip            = "order.ship"
	ActionOrderDeliver         = "order.deliver"
	ActionSubscriptionCheckout = "subscription.checkout"
	ActionSubscriptionCancel   = "subscription.cancel"
	ActionSubscriptionUpgrade  = "subscription.upgrade"
	ActionAffiliationCreate    = "affiliation.create"
	ActionAffiliationDelete    = "affiliation.delete"
)
