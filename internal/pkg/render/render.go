package render

import (
	"encoding/json"
	"errors"
	"net/http"

	"search-analytics-node/internal/gsc"
)

type errResponse struct {
	Error string `json:"error"`
}

func ChiJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ChiErr(w http.ResponseWriter, status int, msg string) {
	if msg == "" {
		msg = "unknown error"
	}
	ChiJSON(w, status, errResponse{Error: msg})
}

// StatusFor maps a node execution error to the HTTP status reported to callers.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, gsc.ErrRequest):
		return http.StatusBadRequest
	case errors.Is(err, gsc.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, gsc.ErrQuota):
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}
