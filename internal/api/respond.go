package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/levante-framework/levante-dashboard-sub000/internal/logging"
	"github.com/levante-framework/levante-dashboard-sub000/internal/model"
	"github.com/levante-framework/levante-dashboard-sub000/internal/resolver"
)

type listResponse[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Limit int `json:"limit,omitempty"`
}

type countResponse struct {
	Count int64 `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// respondJSON encodes payload before writing the status so an encoding
// failure becomes a 500 instead of a truncated success.
func respondJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		logging.FromContext(r.Context()).Error("failed to encode response",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		status = http.StatusInternalServerError
		buf.Reset()
		buf.WriteString(`{"error":"failed to encode response"}` + "\n")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// respondError maps caller mistakes to 400 and everything else, which is a
// store or transport failure, to 502.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var bad *badRequestError
	if errors.As(err, &bad) {
		respondJSON(w, r, http.StatusBadRequest, errorResponse{Error: bad.msg})
		return
	}
	if errors.Is(err, resolver.ErrInvalidID) {
		respondJSON(w, r, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	logging.FromContext(r.Context()).Error("backend request failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	respondJSON(w, r, http.StatusBadGateway, errorResponse{Error: "document store request failed"})
}

// permissions returns the caller's permissions; a request that reached a
// handler without any gets the zero value and sees empty results.
func permissions(r *http.Request) model.Permissions {
	perms, _ := model.PermissionsFromContext(r.Context())
	return perms
}
