package core

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"edgealtar/internal/types"
)

// AuthMiddleware authenticates /v1 requests with the configured IdentityVerifier.
//
// The header shape is checked first so a missing or malformed
// "Bearer <token>" header never reaches the verifier. On success the verified
// Identity is stored in the request context; handlers never read user ids
// from request bodies.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Authorization header is required")
			return
		}

		token := extractBearerToken(authHeader)
		if token == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Bearer token is required")
			return
		}

		if s.Verifier == nil {
			s.Logger.ErrorContext(r.Context(), "authentication failed: no identity verifier configured")
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Authentication failed")
			return
		}

		identity, err := s.Verifier.Verify(r.Context(), token)
		if err != nil {
			s.handleAuthError(w, r, err)
			return
		}
		if identity == nil || identity.UserID == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
			return
		}

		ctx := types.WithIdentity(r.Context(), *identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractBearerToken returns the token from "Bearer <token>" (scheme is
// case-insensitive per RFC 7235), or "" if the header has another shape.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	token := strings.TrimSpace(authHeader[len(prefix):])
	if strings.ContainsAny(token, " \t") {
		return ""
	}
	return token
}

func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeAuthTokenExpired:
			s.Logger.WarnContext(r.Context(), "authentication failed: token expired",
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthTokenExpired, "Authentication token has expired")
			return
		case types.ErrCodeAuthTokenInvalid, types.ErrCodeAuthTokenMissing:
			s.Logger.WarnContext(r.Context(), "authentication failed: token invalid",
				slog.String("path", r.URL.Path),
				slog.String("error", appErr.Error()),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
			return
		}
	}

	// Key-fetch and other unexpected failures still fail closed.
	s.Logger.ErrorContext(r.Context(), "authentication failed: unexpected error",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Authentication failed")
}

func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	JSON(w, r, http.StatusUnauthorized, APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			RequestID: types.GetRequestID(r.Context()),
		},
	})
}

// RequireIdentity returns the verified caller or writes a 401 and returns false.
// Handlers mounted under /v1 call it before touching caller-scoped data.
func RequireIdentity(w http.ResponseWriter, r *http.Request) (types.Identity, bool) {
	id, ok := types.GetIdentity(r.Context())
	if !ok {
		Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return types.Identity{}, false
	}
	return id, true
}
