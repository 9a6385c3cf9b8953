// Package checkouttoken signs the correlation token that binds a hosted
// checkout session back to the user who started it.
package checkouttoken

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/affiliora/internal/clock"
	"github.com/smallbiznis/affiliora/internal/config"
)

const defaultTTL = time.Hour

var (
	ErrMissingSecret = errors.New("checkout_token_secret_missing")
	ErrInvalidToken  = errors.New("invalid_checkout_token")
	ErrExpiredToken  = errors.New("checkout_token_expired")
)

type Claims struct {
	jwt.RegisteredClaims
	Plan string `json:"plan"`
}

// UserID returns the subject as a snowflake id.
func (c *Claims) UserID() (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Subject))
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

func NewIssuer(cfg config.Config, clk clock.Clock) *Issuer {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	ttl := cfg.Checkout.TokenTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Issuer{
		secret: []byte(strings.TrimSpace(cfg.Checkout.TokenSecret)),
		ttl:    ttl,
		clock:  clk,
	}
}

func (i *Issuer) Issue(userID snowflake.ID, plan string) (string, error) {
	if len(i.secret) == 0 {
		return "", ErrMissingSecret
	}
	now := i.clock.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Plan: strings.ToLower(strings.TrimSpace(plan)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

func (i *Issuer) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	if len(i.secret) == 0 {
		return nil, ErrMissingSecret
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}
