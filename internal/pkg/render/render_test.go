package render

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"search-analytics-node/internal/gsc"
)

func TestStatusFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusBadRequest, StatusFor(gsc.Requestf("bad")))
	require.Equal(t, http.StatusUnauthorized, StatusFor(fmt.Errorf("run: %w", gsc.ErrAuthentication)))
	require.Equal(t, http.StatusTooManyRequests, StatusFor(&gsc.APIError{Status: http.StatusTooManyRequests}))
	require.Equal(t, http.StatusUnauthorized, StatusFor(&gsc.APIError{Status: http.StatusForbidden}))
	require.Equal(t, http.StatusBadGateway, StatusFor(&gsc.APIError{Status: http.StatusInternalServerError}))
	require.Equal(t, http.StatusBadGateway, StatusFor(errors.New("connection reset")))
}

func TestChiErr(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	ChiErr(w, http.StatusNotFound, "")

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	require.JSONEq(t, `{"error":"unknown error"}`, w.Body.String())
}
