package core

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"edgealtar/internal/types"
)

// Validator wraps go-playground/validator with the service's custom tags and
// converts failures into AppErrors.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// ValidationError describes one failed field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewValidator creates a Validator and registers custom tags:
//
//	plan - the value names a purchasable plan (monthly, annual, lifetime)
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON field names rather than Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	if err := v.RegisterValidation("plan", validatePlan); err != nil {
		logger.Error("failed to register plan validation", "error", err)
	}

	return &Validator{validate: v, logger: logger}
}

func validatePlan(fl validator.FieldLevel) bool {
	return types.SubscriptionKind(fl.Field().String()).IsValid()
}

// ValidateStruct validates s and returns nil or an AppError whose details
// list every failed field.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		v.logger.Error("validator misuse", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	fields := make([]ValidationError, 0, len(verrs))
	code := types.ErrCodeValidationMissingField
	for _, fe := range verrs {
		fields = append(fields, ValidationError{
			Field:   fe.Field(),
			Code:    fe.Tag(),
			Message: validationMessage(fe),
		})
		if fe.Tag() == "plan" {
			code = types.ErrCodeValidationInvalidPlan
		}
	}

	return types.NewAppErrorWithDetails(code, fields[0].Message, err, map[string]any{
		"fields": fields,
	})
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "plan":
		return "plan must be one of monthly, annual, lifetime"
	case "oneof":
		return fe.Field() + " must be one of " + fe.Param()
	case "max":
		return fe.Field() + " is too long"
	default:
		return fe.Field() + " is invalid"
	}
}
