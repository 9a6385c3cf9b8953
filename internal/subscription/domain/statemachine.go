package domain

import (
	"strings"

	paymentdomain "github.com/smallbiznis/affiliora/internal/payment/domain"
)

// CanTransition reports whether a stored subscription may move from one
// status to another. Replays of the current status are always legal.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusInactive:
		return to == StatusActive || to == StatusCancelled || to == StatusExpired
	case StatusActive:
		return to == StatusCancelled || to == StatusExpired
	case StatusCancelled:
		return to == StatusExpired
	default:
		return false
	}
}

// Gateway subscription statuses as reported by the provider.
const (
	gatewayActive            = "active"
	gatewayTrialing          = "trialing"
	gatewayPastDue           = "past_due"
	gatewayUnpaid            = "unpaid"
	gatewayIncomplete        = "incomplete"
	gatewayIncompleteExpired = "incomplete_expired"
	gatewayCanceled          = "canceled"
	gatewayPaused            = "paused"
)

// MapGatewayStatus converts the gateway status into a local status. A
// canceled subscription counts as expired only when it ran out its final
// period after a cancel-at-period-end request; anything else is an early
// cancellation. existing may be nil.
func MapGatewayStatus(gs *paymentdomain.GatewaySubscription, existing *Subscription) (Status, bool) {
	if gs == nil {
		return "", false
	}
	switch strings.ToLower(strings.TrimSpace(gs.Status)) {
	case gatewayActive, gatewayTrialing, gatewayPastDue, gatewayUnpaid:
		return StatusActive, true
	case gatewayIncomplete, gatewayPaused:
		return StatusInactive, true
	case gatewayIncompleteExpired:
		return StatusExpired, true
	case gatewayCanceled:
		requested := gs.CancelAtPeriodEnd || (existing != nil && existing.CancelAtPeriodEnd)
		if requested && gs.EndedAt != nil && !gs.CurrentPeriodEnd.IsZero() && !gs.EndedAt.Before(gs.CurrentPeriodEnd) {
			return StatusExpired, true
		}
		return StatusCancelled, true
	default:
		return "", false
	}
}
