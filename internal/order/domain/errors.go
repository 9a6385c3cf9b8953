package domain

import "errors"

var (
	ErrNotFound          = errors.New("order_not_found")
	ErrInvalidBuyer      = errors.New("invalid_buyer")
	ErrEmptyItems        = errors.New("order_items_required")
	ErrInvalidQuantity   = errors.New("invalid_quantity")
	ErrInvalidPrice      = errors.New("invalid_unit_price")
	ErrInvalidTotal      = errors.New("invalid_order_total")
	ErrMixedBrands       = errors.New("order_mixed_brands")
	ErrMixedCurrencies   = errors.New("order_mixed_currencies")
	ErrInvalidInfluencer = errors.New("invalid_order_influencer")
	ErrUnattributed      = errors.New("order_item_not_attributed")
	ErrInvalidTransition = errors.New("invalid_order_transition")
	ErrForbidden         = errors.New("order_forbidden")
	ErrPaymentMismatch   = errors.New("order_payment_mismatch")
)
