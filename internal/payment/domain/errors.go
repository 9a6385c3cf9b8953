package domain

import "errors"

var (
	ErrGateway          = errors.New("gateway_error")
	ErrIntegrity        = errors.New("integrity_error")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrInvalidConfig    = errors.New("invalid_gateway_config")
	ErrProviderNotFound = errors.New("payment_provider_not_found")

	ErrPaymentNotFound   = errors.New("payment_not_found")
	ErrInvalidTransition = errors.New("invalid_payment_transition")
	ErrInvalidAmount     = errors.New("invalid_payment_amount")
)
