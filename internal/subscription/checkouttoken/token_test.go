package checkouttoken

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/affiliora/internal/clock"
	"github.com/smallbiznis/affiliora/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIssuer(secret string, clk clock.Clock) *Issuer {
	cfg := config.Config{Checkout: config.CheckoutConfig{TokenSecret: secret, TokenTTL: time.Hour}}
	return NewIssuer(cfg, clk)
}

func TestIssueAndVerify(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	issuer := newIssuer("secret", clk)

	token, err := issuer.Issue(snowflake.ID(42), " Creator ")
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	userID, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(42), userID)
	assert.Equal(t, "creator", claims.Plan)
	assert.Len(t, claims.ID, 26)
}

func TestTokensAreUniquePerIssue(t *testing.T) {
	issuer := newIssuer("secret", clock.NewFakeClock(time.Now()))
	first, err := issuer.Issue(1, "pro")
	require.NoError(t, err)
	second, err := issuer.Issue(1, "pro")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	issuer := newIssuer("secret", clk)
	token, err := issuer.Issue(7, "pro")
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	token, err := newIssuer("other", clk).Issue(7, "pro")
	require.NoError(t, err)

	_, err = newIssuer("secret", clk).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsNoneAlgorithm(t *testing.T) {
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "7"}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newIssuer("secret", clock.NewFakeClock(time.Now())).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssueRequiresSecret(t *testing.T) {
	_, err := newIssuer("", nil).Issue(1, "pro")
	assert.ErrorIs(t, err, ErrMissingSecret)
}
