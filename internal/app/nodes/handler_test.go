package nodes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"search-analytics-node/internal/gsc"
	"search-analytics-node/internal/node"
	"search-analytics-node/internal/table"
)

type executorFunc func(ctx context.Context, req node.ExecuteRequest) (*node.ExecuteResult, error)

func (f executorFunc) Execute(ctx context.Context, req node.ExecuteRequest) (*node.ExecuteResult, error) {
	return f(ctx, req)
}

func serve(t *testing.T, exec executorFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	h := &ExecuteHandler{executor: exec, logger: zap.NewNop().Sugar()}
	r := chi.NewRouter()
	h.RegisterRoute(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, strings.NewReader(body)))
	return w
}

func sampleResult() *node.ExecuteResult {
	tbl := table.New("page", "clicks")
	tbl.Append(table.Row{"page": "https://example.com/", "clicks": 3.0})
	return &node.ExecuteResult{
		RunID:  "run-1",
		Output: node.Output{Table: tbl, Warnings: []string{"capped"}},
	}
}

func TestHandle_ReturnsTable(t *testing.T) {
	t.Parallel()

	var got node.ExecuteRequest
	w := serve(t, func(ctx context.Context, req node.ExecuteRequest) (*node.ExecuteResult, error) {
		got = req
		return sampleResult(), nil
	}, http.MethodPost, "/v1/workflows/wf/nodes/query", `{"site":"sc-domain:example.com"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "run-1", w.Header().Get("X-Run-Id"))
	require.Equal(t, "wf", got.Workflow)
	require.Equal(t, "query", got.Node)
	require.JSONEq(t, `{"site":"sc-domain:example.com"}`, string(got.Params))

	var resp struct {
		RunID    string   `json:"run_id"`
		Warnings []string `json:"warnings"`
		Table    struct {
			Columns []string         `json:"columns"`
			Rows    []map[string]any `json:"rows"`
		} `json:"table"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "run-1", resp.RunID)
	require.Equal(t, []string{"capped"}, resp.Warnings)
	require.Equal(t, []string{"page", "clicks"}, resp.Table.Columns)
	require.Len(t, resp.Table.Rows, 1)
}

func TestHandle_CSVFormat(t *testing.T) {
	t.Parallel()

	w := serve(t, func(ctx context.Context, req node.ExecuteRequest) (*node.ExecuteResult, error) {
		return sampleResult(), nil
	}, http.MethodPost, "/v1/workflows/wf/nodes/query?format=csv", `{}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	require.Equal(t, []string{"capped"}, w.Header().Values("X-Node-Warning"))
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "page")
	require.Contains(t, lines[1], "https://example.com/")
}

func TestHandle_RejectsBadInputBeforeExecuting(t *testing.T) {
	t.Parallel()

	never := func(ctx context.Context, req node.ExecuteRequest) (*node.ExecuteResult, error) {
		t.Fatal("executor must not run")
		return nil, nil
	}

	w := serve(t, never, http.MethodPost, "/v1/workflows/wf/nodes/query?format=xml", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(t, never, http.MethodPost, "/v1/workflows/wf/nodes/query", `{"site":`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandle_ErrorStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "request", err: gsc.Requestf("site is required"), status: http.StatusBadRequest},
		{name: "authentication", err: gsc.ErrAuthentication, status: http.StatusUnauthorized},
		{name: "quota", err: &gsc.APIError{Endpoint: "searchanalytics.query", Status: http.StatusTooManyRequests}, status: http.StatusTooManyRequests},
		{name: "vendor", err: &gsc.APIError{Endpoint: "searchanalytics.query", Status: http.StatusBadGateway}, status: http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(t, func(ctx context.Context, req node.ExecuteRequest) (*node.ExecuteResult, error) {
				return &node.ExecuteResult{RunID: "run-2"}, tc.err
			}, http.MethodPost, "/v1/workflows/wf/nodes/query", `{}`)

			require.Equal(t, tc.status, w.Code)
			require.Equal(t, "run-2", w.Header().Get("X-Run-Id"))
			require.Contains(t, w.Body.String(), `"error"`)
		})
	}
}
