package auth

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// RegisterRequest is the body of a registration call.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=3,max=128"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// RevokeRequest carries the credential to end. Either token of a pair, or a
// session id, is accepted.
type RevokeRequest struct {
	Token string `json:"token" validate:"required"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required,max=128"`
	NewPassword string `json:"newPassword" validate:"required,min=3,max=128,nefield=OldPassword"`
}

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when a request body breaks its field rules.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	messages := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		messages = append(messages, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(messages, "; ")
}

// Validator checks request bodies against their struct tags.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new Validator instance
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their json names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// Validate returns a *ValidationError listing every broken rule.
func (v *Validator) Validate(request any) error {
	err := v.validate.Struct(request)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.Wrap(err, "[Validator.Validate]")
	}

	verr := &ValidationError{Fields: make([]FieldError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		verr.Fields = append(verr.Fields, FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return verr
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "nefield":
		return "must differ from the current password"
	default:
		return "is invalid"
	}
}
