package domain

import "errors"

var (
	ErrNotFound          = errors.New("affiliation_not_found")
	ErrAlreadyExists     = errors.New("affiliation_already_exists")
	ErrQuotaExceeded     = errors.New("affiliation_quota_exceeded")
	ErrInvalidDelta      = errors.New("invalid_delta")
	ErrInvalidField      = errors.New("invalid_field")
	ErrInvalidKind       = errors.New("invalid_kind")
	ErrInvalidProduct    = errors.New("invalid_product_id")
	ErrInvalidInfluencer = errors.New("invalid_influencer_id")
	ErrInfluencerOnly    = errors.New("influencer_role_required")
)
