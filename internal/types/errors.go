package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers MUST use these constants instead of hardcoded strings.
const (
	// InvalidArgument (400)
	ErrCodeValidationInvalidPlan  ErrorCode = "validation_invalid_plan"
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidBody  ErrorCode = "validation_invalid_body"
	ErrCodeValidationInvalidQuiz  ErrorCode = "validation_invalid_quiz_answers"

	// InvalidSignature (400)
	ErrCodeSignatureMissing  ErrorCode = "signature_missing"
	ErrCodeSignatureInvalid  ErrorCode = "signature_invalid"
	ErrCodeSignatureNoSecret ErrorCode = "signature_secret_unconfigured"

	// Unauthenticated (401)
	ErrCodeAuthTokenMissing ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid ErrorCode = "auth_token_invalid"
	ErrCodeAuthTokenExpired ErrorCode = "auth_token_expired"

	// Permission (403)
	ErrCodePermissionPremiumRequired ErrorCode = "permission_premium_required"

	// NotFound (404)
	ErrCodeNotFoundProfile ErrorCode = "not_found_profile"
	ErrCodeNotFoundSpell   ErrorCode = "not_found_spell"
	ErrCodeNotFoundSession ErrorCode = "not_found_checkout_session"

	// FailedPrecondition
	ErrCodePreconditionConfigMissing  ErrorCode = "precondition_config_missing"
	ErrCodePreconditionNoSubscription ErrorCode = "precondition_no_subscription"

	// InvalidOperation (422)
	ErrCodeOperationLifetimeCancel ErrorCode = "operation_lifetime_not_cancelable"

	// Internal/Upstream (500)
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamStripe      ErrorCode = "upstream_stripe_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamIdentity    ErrorCode = "upstream_identity_unavailable"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "signature_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized // 401
	case strings.HasPrefix(s, "permission_"):
		return http.StatusForbidden // 403
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case s == string(ErrCodePreconditionNoSubscription):
		return http.StatusConflict // 409
	case s == string(ErrCodePreconditionConfigMissing):
		return http.StatusInternalServerError // 500, deployment is misconfigured
	case strings.HasPrefix(s, "operation_"):
		return http.StatusUnprocessableEntity // 422
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusInternalServerError // 500
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type used throughout the service.
// Domain and handler errors are expressed as AppError so the HTTP layer can
// format them consistently.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// HasCode reports whether err (or anything it wraps) is an AppError with the
// given code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsInfrastructure reports whether err represents a datastore or upstream
// failure, as opposed to a domain outcome such as a lookup miss.
func IsInfrastructure(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return err != nil
	}
	s := string(appErr.Code)
	return strings.HasPrefix(s, "internal_") || strings.HasPrefix(s, "upstream_")
}
