package gsc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestClient_ListSites(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/webmasters/v3/sites", r.URL.Path)
		_, _ = w.Write([]byte(`{"siteEntry":[{"siteUrl":"https://example.com/","permissionLevel":"siteOwner"},{"siteUrl":"sc-domain:example.org","permissionLevel":"siteUnverifiedUser"}]}`))
	}))
	t.Cleanup(srv.Close)

	sites, err := NewClient(srv.Client(), srv.URL, srv.URL).ListSites(context.Background())
	require.NoError(t, err)
	require.Len(t, sites, 2)
	require.Equal(t, "sc-domain:example.org", sites[1].SiteURL)
	require.Equal(t, "siteUnverifiedUser", sites[1].PermissionLevel)
}

func TestClient_QuerySearchAnalytics_EscapesSiteAndSendsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/webmasters/v3/sites/https:%2F%2Fexample.com%2F/searchAnalytics/query", r.URL.EscapedPath())

		var body QueryBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, []string{"page", "query"}, body.Dimensions)
		require.Equal(t, 1000, body.RowLimit)
		require.Equal(t, 25000, body.StartRow)

		_, _ = w.Write([]byte(`{"rows":[{"keys":["/a","shoes"],"clicks":3,"impressions":40,"ctr":0.075,"position":4.2}],"responseAggregationType":"byPage"}`))
	}))
	t.Cleanup(srv.Close)

	resp, err := NewClient(srv.Client(), srv.URL, srv.URL).QuerySearchAnalytics(context.Background(), "https://example.com/", QueryBody{
		StartDate:  "2024-01-01",
		EndDate:    "2024-01-31",
		Dimensions: []string{"page", "query"},
		RowLimit:   1000,
		StartRow:   25000,
	})
	require.NoError(t, err)
	require.Len(t, resp.Rows, 1)
	require.Equal(t, []string{"/a", "shoes"}, resp.Rows[0].Keys)
	require.InDelta(t, 0.075, resp.Rows[0].CTR, 1e-9)
}

func TestClient_InspectURL_ReturnsRawBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/urlInspection/index:inspect", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "https://example.com/a", body["inspectionUrl"])
		require.Equal(t, "https://example.com/", body["siteUrl"])

		_, _ = w.Write([]byte(`{"inspectionResult":{"indexStatusResult":{"verdict":"PASS"}}}`))
	}))
	t.Cleanup(srv.Close)

	raw, err := NewClient(srv.Client(), srv.URL, srv.URL).InspectURL(context.Background(), "https://example.com/", "https://example.com/a")
	require.NoError(t, err)
	require.JSONEq(t, `{"inspectionResult":{"indexStatusResult":{"verdict":"PASS"}}}`, string(raw))
}

func TestClient_ErrorClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status    int
		sentinel  error
		transient bool
	}{
		{http.StatusTooManyRequests, ErrQuota, false},
		{http.StatusUnauthorized, ErrAuthentication, false},
		{http.StatusForbidden, ErrAuthentication, false},
		{http.StatusBadRequest, nil, false},
		{http.StatusServiceUnavailable, nil, true},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.status), func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":{"code":1,"message":"vendor says no","status":"X"}}`))
			}))
			t.Cleanup(srv.Close)

			_, err := NewClient(srv.Client(), srv.URL, srv.URL).ListSites(context.Background())
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			require.Equal(t, tc.status, apiErr.Status)
			require.Equal(t, "vendor says no", apiErr.Message)
			if tc.sentinel != nil {
				require.ErrorIs(t, err, tc.sentinel)
			}
			require.Equal(t, tc.transient, IsTransient(err))
		})
	}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	require.False(t, IsTransient(nil))
	require.False(t, IsTransient(context.Canceled))
	require.False(t, IsTransient(Requestf("bad %s", "input")))
	require.True(t, IsTransient(errors.New("connection reset by peer")))
}

func TestRegisterMetrics_Idempotent(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(reg))
	require.NoError(t, RegisterMetrics(reg))
}
