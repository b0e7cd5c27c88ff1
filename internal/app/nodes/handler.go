package nodes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"search-analytics-node/internal/node"
	"search-analytics-node/internal/pkg/render"
	"search-analytics-node/internal/router"
	"search-analytics-node/internal/table"
)

const maxParamsBytes = 4 << 20

type executor interface {
	Execute(ctx context.Context, req node.ExecuteRequest) (*node.ExecuteResult, error)
}

// ExecuteHandler runs a node synchronously and returns its table.
type ExecuteHandler struct {
	executor executor
	logger   *zap.SugaredLogger
}

type NewExecuteHandlerParams struct {
	fx.In

	Executor *node.Executor
	Logger   *zap.SugaredLogger
}

func NewExecuteHandler(p NewExecuteHandlerParams) *ExecuteHandler {
	return &ExecuteHandler{executor: p.Executor, logger: p.Logger}
}

func (h *ExecuteHandler) RegisterRoute(r *chi.Mux) {
	r.Post("/v1/workflows/{workflow}/nodes/{node}", h.Handle)
}

type executeResponse struct {
	RunID    string       `json:"run_id"`
	Table    *table.Table `json:"table"`
	Warnings []string     `json:"warnings"`
}

func (h *ExecuteHandler) Handle(w http.ResponseWriter, r *http.Request) {
	workflow := strings.TrimSpace(chi.URLParam(r, "workflow"))
	nodeName := strings.TrimSpace(chi.URLParam(r, "node"))
	if workflow == "" || nodeName == "" {
		render.ChiErr(w, http.StatusBadRequest, "missing workflow or node")
		return
	}

	var writer table.Writer
	if format := r.URL.Query().Get("format"); format != "" {
		tw, err := table.NewWriter(format)
		if err != nil {
			render.ChiErr(w, http.StatusBadRequest, err.Error())
			return
		}
		writer = tw
	}

	params, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxParamsBytes))
	if err != nil {
		render.ChiErr(w, http.StatusRequestEntityTooLarge, "parameters too large")
		return
	}
	if len(params) > 0 && !json.Valid(params) {
		render.ChiErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	res, err := h.executor.Execute(r.Context(), node.ExecuteRequest{
		Workflow: workflow,
		Node:     nodeName,
		Params:   params,
	})
	if res != nil && res.RunID != "" {
		w.Header().Set("X-Run-Id", res.RunID)
	}
	if err != nil {
		h.logger.Warnw("node_execute_request_failed", "workflow", workflow, "node", nodeName, "err", err)
		render.ChiErr(w, render.StatusFor(err), err.Error())
		return
	}

	warnings := res.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	tbl := res.Table
	if tbl == nil {
		tbl = table.New()
	}

	if writer == nil {
		render.ChiJSON(w, http.StatusOK, executeResponse{RunID: res.RunID, Table: tbl, Warnings: warnings})
		return
	}

	for _, warning := range warnings {
		w.Header().Add("X-Node-Warning", warning)
	}
	w.Header().Set("Content-Type", contentType(writer.Extension()))
	w.WriteHeader(http.StatusOK)
	if err := writer.Write(tbl, w); err != nil {
		h.logger.Errorw("node_execute_write_failed", "run_id", res.RunID, "err", err)
	}
}

func contentType(ext string) string {
	switch ext {
	case "csv":
		return "text/csv; charset=utf-8"
	case "json":
		return "application/json; charset=utf-8"
	case "jsonl":
		return "application/x-ndjson"
	case "yaml":
		return "application/yaml"
	default:
		return "text/plain; charset=utf-8"
	}
}

var _ router.Handler = (*ExecuteHandler)(nil)
