package domain

import "errors"

var (
	ErrMissingToken  = errors.New("missing bearer token")
	ErrInvalidToken  = errors.New("invalid bearer token")
	ErrTokenExpired  = errors.New("bearer token expired")
	ErrUserNotFound  = errors.New("user not found")
	ErrMissingSecret = errors.New("auth jwt secret missing")
)
