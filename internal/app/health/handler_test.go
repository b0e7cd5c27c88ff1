package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHandle(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		db     pinger
		status int
		body   string
	}{
		{name: "no store", status: http.StatusOK, body: `{"ok":true,"db":"disabled"}`},
		{name: "store up", db: pingFunc(func(context.Context) error { return nil }), status: http.StatusOK, body: `{"ok":true,"db":"up"}`},
		{name: "store down", db: pingFunc(func(context.Context) error { return errors.New("gone") }), status: http.StatusServiceUnavailable, body: `{"ok":false,"db":"down"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &Handler{db: tc.db}
			w := httptest.NewRecorder()
			h.Handle(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, tc.status, w.Code)
			require.JSONEq(t, tc.body, w.Body.String())
		})
	}
}
