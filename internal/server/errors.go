package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	affiliationdomain "github.com/smallbiznis/affiliora/internal/affiliation/domain"
	authdomain "github.com/smallbiznis/affiliora/internal/auth/domain"
	"github.com/smallbiznis/affiliora/internal/authorization"
	"github.com/smallbiznis/affiliora/internal/commission"
	orderdomain "github.com/smallbiznis/affiliora/internal/order/domain"
	paymentdomain "github.com/smallbiznis/affiliora/internal/payment/domain"
	productdomain "github.com/smallbiznis/affiliora/internal/product/domain"
	subscriptiondomain "github.com/smallbiznis/affiliora/internal/subscription/domain"
	userdomain "github.com/smallbiznis/affiliora/internal/user/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	// Gateway and integrity failures wrap domain errors, so they are matched
	// before the generic classes.
	switch {
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_signature",
			Message: "invalid webhook signature",
		}
	case errors.Is(err, paymentdomain.ErrIntegrity):
		return http.StatusInternalServerError, errorPayload{
			Type:    "integrity_error",
			Message: "event could not be reconciled",
		}
	case errors.Is(err, paymentdomain.ErrGateway):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_error",
			Message: "payment gateway unavailable",
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, orderdomain.ErrUnattributed):
		// Crediting an influencer without an affiliation on every item would
		// pay commission nobody earned.
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized_attribution",
			Message: "influencer is not affiliated with every item",
		}
	case isUnauthorizedError(err):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isForbiddenError(err):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, affiliationdomain.ErrQuotaExceeded):
		return http.StatusConflict, errorPayload{
			Type:    "quota_exceeded",
			Message: "affiliation quota reached for the current plan",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog mirrors mapError's type so request logs and responses
// agree.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if status >= http.StatusInternalServerError && payload.Type == "internal_error" {
		code = "internal_error"
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationSentinels = []error{
	ErrInvalidRequest,
	paymentdomain.ErrInvalidPayload,
	paymentdomain.ErrInvalidEvent,
	productdomain.ErrInactive,
	commission.ErrNoCoverage,
	userdomain.ErrInvalidID,

	affiliationdomain.ErrInvalidDelta,
	affiliationdomain.ErrInvalidField,
	affiliationdomain.ErrInvalidKind,
	affiliationdomain.ErrInvalidProduct,
	affiliationdomain.ErrInvalidInfluencer,

	orderdomain.ErrInvalidBuyer,
	orderdomain.ErrEmptyItems,
	orderdomain.ErrInvalidQuantity,
	orderdomain.ErrInvalidPrice,
	orderdomain.ErrInvalidTotal,
	orderdomain.ErrMixedBrands,
	orderdomain.ErrMixedCurrencies,
	orderdomain.ErrInvalidInfluencer,

	subscriptiondomain.ErrInvalidUser,
	subscriptiondomain.ErrInvalidPlan,
	subscriptiondomain.ErrPlanNotPurchasable,
	subscriptiondomain.ErrNotUpgrade,
}

// validationSentinel returns the domain error behind err when it describes
// bad caller input.
func validationSentinel(err error) error {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

func isValidationError(err error) bool {
	return validationSentinel(err) != nil
}

func isUnauthorizedError(err error) bool {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authdomain.ErrMissingToken),
		errors.Is(err, authdomain.ErrInvalidToken),
		errors.Is(err, authdomain.ErrTokenExpired),
		errors.Is(err, authdomain.ErrUserNotFound),
		errors.Is(err, authdomain.ErrMissingSecret):
		return true
	default:
		return false
	}
}

func isForbiddenError(err error) bool {
	switch {
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, authorization.ErrInvalidActor),
		errors.Is(err, orderdomain.ErrForbidden),
		errors.Is(err, affiliationdomain.ErrInfluencerOnly):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, affiliationdomain.ErrAlreadyExists),
		errors.Is(err, orderdomain.ErrInvalidTransition),
		errors.Is(err, paymentdomain.ErrInvalidTransition),
		errors.Is(err, subscriptiondomain.ErrAlreadyActive),
		errors.Is(err, subscriptiondomain.ErrNotActive),
		errors.Is(err, subscriptiondomain.ErrInvalidTransition):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, affiliationdomain.ErrNotFound),
		errors.Is(err, orderdomain.ErrNotFound),
		errors.Is(err, subscriptiondomain.ErrNotFound),
		errors.Is(err, productdomain.ErrNotFound),
		errors.Is(err, userdomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	sentinel := validationSentinel(err)
	switch {
	case sentinel == nil:
		return "invalid_request"
	case errors.Is(sentinel, productdomain.ErrInactive):
		return "inactive_product"
	default:
		return sentinel.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "inactive_product":
		return "product is not for sale"
	default:
		return "invalid value"
	}
}
