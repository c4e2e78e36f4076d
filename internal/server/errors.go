package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gezibash/arc-rosca/internal/archive"
	"github.com/gezibash/arc-rosca/internal/middleware"
	"github.com/gezibash/arc-rosca/internal/service"
	"github.com/gezibash/arc-rosca/pkg/api"
	roscaerr "github.com/gezibash/arc-rosca/pkg/errors"
	"github.com/gezibash/arc-rosca/pkg/rosca"
)

// statusOf maps an error to its HTTP status. Not-found checks come first
// because ErrRoscaNotFound is also a state error.
func statusOf(err error) int {
	switch {
	case errors.Is(err, middleware.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, rosca.ErrRoscaNotFound),
		errors.Is(err, archive.ErrNotArchived),
		errors.Is(err, roscaerr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrArchiveDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, roscaerr.ErrValidation),
		errors.Is(err, roscaerr.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, roscaerr.ErrMembership):
		return http.StatusForbidden
	case errors.Is(err, roscaerr.ErrState):
		return http.StatusConflict
	case errors.Is(err, roscaerr.ErrEconomic):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	resp := api.ErrorResponse{Error: err.Error(), Code: rosca.ErrorCode(err)}
	if roscaerr.KindOf(err) != nil {
		resp.Kind = roscaerr.KindName(err)
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
