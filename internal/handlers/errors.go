package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/nkiryanov/eazynet/internal/apperrors"
	"github.com/nkiryanov/eazynet/internal/handlers/render"
	"github.com/nkiryanov/eazynet/internal/logger"
	"github.com/nkiryanov/eazynet/internal/service/session"
)

// Render session client error. Backend client errors pass through with their message,
// backend failures become 502 so the browser can tell them from BFF bugs.
func renderClientError(w http.ResponseWriter, err error, l logger.Logger) {
	var apiErr *session.APIError

	switch {
	case errors.Is(err, apperrors.ErrWeakPassword):
		render.FieldErrors(w, "Request validation failed", map[string]string{"password": err.Error()}, http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrRefreshFailed),
		errors.Is(err, apperrors.ErrNoRefreshToken):
		render.ServiceError(w, "Not authenticated", http.StatusUnauthorized)
	case errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError:
		if len(apiErr.Fields) > 0 {
			render.FieldErrors(w, apiErr.Message, joinFields(apiErr.Fields), apiErr.StatusCode)
			return
		}
		render.ServiceError(w, apiErr.Message, apiErr.StatusCode)
	case errors.Is(err, apperrors.ErrNotAuthenticated):
		render.ServiceError(w, "Not authenticated", http.StatusUnauthorized)
	case errors.As(err, &apiErr):
		l.Error("Identity backend failed", "status_code", apiErr.StatusCode, "error", err)
		render.ServiceError(w, "Identity service error", http.StatusBadGateway)
	case errors.Is(err, apperrors.ErrNetwork):
		l.Error("Identity backend unreachable", "error", err)
		render.ServiceError(w, "Identity service unavailable", http.StatusBadGateway)
	default:
		l.Error("Unexpected error", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func joinFields(fields map[string][]string) map[string]string {
	joined := make(map[string]string, len(fields))
	for name, messages := range fields {
		joined[name] = strings.Join(messages, ", ")
	}
	return joined
}
