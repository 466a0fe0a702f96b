package core

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"edgealtar/internal/types"
)

// maxRequestBodySize caps JSON request bodies.
const maxRequestBodySize = 64 << 10 // 64 KB

// APIErrorResponse is the envelope for every error response.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the structured error information returned to clients.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// JSON writes data as a JSON response with the given status code. A marshal
// failure degrades to a 500 error body.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(APIErrorResponse{
			Error: ErrorDetail{
				Code:      string(types.ErrCodeInternalUnexpected),
				Message:   "failed to marshal response",
				RequestID: types.GetRequestID(r.Context()),
			},
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error writes err as a structured error response. AppErrors map to their
// code's HTTP status; anything else becomes a generic 500 so internal
// messages never reach the client.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	requestID := types.GetRequestID(r.Context())

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		JSON(w, r, appErr.HTTPStatus(), APIErrorResponse{
			Error: ErrorDetail{
				Code:      string(appErr.Code),
				Message:   appErr.Message,
				Details:   appErr.Details,
				RequestID: requestID,
			},
		})
		return
	}

	JSON(w, r, http.StatusInternalServerError, APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(types.ErrCodeInternalUnexpected),
			Message:   "an unexpected error occurred",
			RequestID: requestID,
		},
	})
}

// DecodeJSON reads a single JSON object from the request body into dst,
// rejecting unknown fields and bodies over maxRequestBodySize.
// Errors are AppErrors with code validation_invalid_body.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return mapDecodeError(err)
	}
	if dec.More() {
		return types.NewAppError(types.ErrCodeValidationInvalidBody, "request body must contain a single JSON object", nil)
	}
	return nil
}

// DecodeOptionalJSON is DecodeJSON for endpoints whose body may be empty.
func DecodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := DecodeJSON(w, r, dst)
	if err != nil && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func mapDecodeError(err error) *types.AppError {
	code := types.ErrCodeValidationInvalidBody

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return types.NewAppError(code, "request body is too large", err)
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return types.NewAppError(code, "malformed JSON in request body", err)
	}

	var unmarshalTypeErr *json.UnmarshalTypeError
	if errors.As(err, &unmarshalTypeErr) {
		return types.NewAppErrorWithDetails(code, "invalid value for field", err, map[string]any{
			"field":    unmarshalTypeErr.Field,
			"expected": unmarshalTypeErr.Type.String(),
		})
	}

	if strings.HasPrefix(err.Error(), "json: unknown field") {
		return types.NewAppError(code,
			"unknown field in request body: "+strings.TrimPrefix(err.Error(), "json: unknown field "), err)
	}

	if errors.Is(err, io.EOF) {
		return types.NewAppError(code, "request body must not be empty", err)
	}

	return types.NewAppError(code, "invalid JSON in request body", err)
}
