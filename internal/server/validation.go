package server

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	affiliationdomain "github.com/smallbiznis/affiliora/internal/affiliation/domain"
)

var (
	planCodePattern    = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,31}$`)
	registerValidators sync.Once
)

// RegisterValidators installs the custom binding tags on gin's validator.
func RegisterValidators() {
	registerValidators.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(jsonFieldName)
		_ = v.RegisterValidation("contact_kind", validateContactKind)
		_ = v.RegisterValidation("plan_code", validatePlanCode)
	})
}

func validateContactKind(fl validator.FieldLevel) bool {
	_, ok := affiliationdomain.ContactKind(fl.Field().String()).Field()
	return ok
}

// validatePlanCode checks the shape only; the catalog decides whether the
// plan exists for the caller's role.
func validatePlanCode(fl validator.FieldLevel) bool {
	return planCodePattern.MatchString(strings.TrimSpace(fl.Field().String()))
}

func jsonFieldName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return field.Name
	}
	return name
}

// bindJSON decodes the body and turns binding failures into field errors.
func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return bindingError(err)
	}
	return nil
}

func bindingError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return invalidRequestError()
	}
	out := &ValidationErrors{Errors: make([]ValidationError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Errors = append(out.Errors, ValidationError{
			Field:   fieldPath(fe.Namespace()),
			Code:    fe.Tag(),
			Message: fieldErrorMessage(fe),
		})
	}
	return out
}

// fieldPath drops the struct name gin prefixes to every namespace.
func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

func fieldErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt", "gte", "min":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "contact_kind":
		return "must be click or view"
	case "plan_code":
		return "is not a valid plan code"
	default:
		return "invalid value"
	}
}
