package todo

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goevery/collabtodo/internal/ierr"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,20}$`)

type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())

	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	_ = validate.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})

	return &Validator{
		validate,
	}
}

// Struct validates v and reports the first violation as an InvalidArgument
// error.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		return ierr.Newf(ierr.ErrorCodeInvalidArgument, describe(validationErrors[0]))
	}

	return ierr.New(ierr.ErrorCodeInvalidArgument, err)
}

func describe(fe validator.FieldError) string {
	field := fe.Field()

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "username":
		return field + " must be 3-20 letters, digits, dots, dashes or underscores"
	case "datetime":
		return field + " must be an ISO 8601 date"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s cannot exceed %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return field + " is invalid"
	}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}

	t := strings.TrimSpace(*s)

	return &t
}

// ValidatePage checks pagination parameters.
func ValidatePage(page int, pageSize int) error {
	switch {
	case page < 1:
		return ierr.Newf(ierr.ErrorCodeInvalidArgument, "page must be greater than 0")
	case pageSize < 1:
		return ierr.Newf(ierr.ErrorCodeInvalidArgument, "pageSize must be greater than 0")
	case pageSize > MaxPageSize:
		return ierr.Newf(ierr.ErrorCodeInvalidArgument, fmt.Sprintf("pageSize cannot exceed %d", MaxPageSize))
	default:
		return nil
	}
}
