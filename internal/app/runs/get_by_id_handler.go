package runs

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"search-analytics-node/db"
	"search-analytics-node/internal/pkg/render"
	"search-analytics-node/internal/router"
	"search-analytics-node/internal/store"
	"search-analytics-node/internal/table"
)

type runGetter interface {
	GetRun(ctx context.Context, id string) (*store.Run, error)
}

type GetByIDHandler struct {
	store  runGetter
	logger *zap.SugaredLogger
}

type NewGetByIDHandlerParams struct {
	fx.In

	Store  *store.Store
	Logger *zap.SugaredLogger
}

func NewGetByIDHandler(p NewGetByIDHandlerParams) *GetByIDHandler {
	return &GetByIDHandler{
		store:  p.Store,
		logger: p.Logger,
	}
}

func (h *GetByIDHandler) RegisterRoute(r *chi.Mux) {
	r.Get("/v1/runs/{id}", h.Handle)
}

// Handle returns the run record. With ?format= the stored table is rendered
// in that format instead.
func (h *GetByIDHandler) Handle(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		render.ChiErr(w, http.StatusBadRequest, "missing id")
		return
	}

	run, err := h.store.GetRun(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		render.ChiErr(w, http.StatusNotFound, "not found")
		return
	case errors.Is(err, db.ErrDBDisabled):
		render.ChiErr(w, http.StatusServiceUnavailable, "workflow store disabled")
		return
	case err != nil:
		h.logger.Errorw("run_get_by_id_failed", "id", id, "err", err)
		render.ChiErr(w, http.StatusInternalServerError, "failed to fetch run")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		render.ChiJSON(w, http.StatusOK, run)
		return
	}

	writer, err := table.NewWriter(format)
	if err != nil {
		render.ChiErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if run.Table == nil {
		render.ChiErr(w, http.StatusConflict, "run has no table yet (status "+string(run.Status)+")")
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := writer.Write(run.Table, w); err != nil {
		h.logger.Errorw("run_write_table_failed", "id", id, "err", err)
	}
}

var _ router.Handler = (*GetByIDHandler)(nil)
