package domain

import "errors"

var (
	ErrNotFound             = errors.New("subscription_not_found")
	ErrInvalidUser          = errors.New("invalid_user_id")
	ErrInvalidPlan          = errors.New("invalid_plan")
	ErrPlanNotPurchasable   = errors.New("plan_not_purchasable")
	ErrAlreadyActive        = errors.New("subscription_already_active")
	ErrNotActive            = errors.New("subscription_not_active")
	ErrNotUpgrade           = errors.New("plan_not_higher_than_current")
	ErrInvalidTransition    = errors.New("invalid_subscription_transition")
	ErrInvalidGatewayStatus = errors.New("invalid_gateway_subscription_status")
	ErrUnknownPrice         = errors.New("unknown_subscription_price")
	ErrUnresolvedSubscriber = errors.New("subscription_user_unresolved")
	ErrInvalidGatewayObject = errors.New("invalid_gateway_subscription")
)
