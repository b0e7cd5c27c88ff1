package health

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"go.uber.org/fx"

	"search-analytics-node/internal/pkg/render"
	"search-analytics-node/internal/router"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	db pinger
}

type NewHandlerParams struct {
	fx.In

	DB *sqlx.DB `optional:"true"`
}

func NewHandler(p NewHandlerParams) *Handler {
	h := &Handler{}
	if p.DB != nil {
		h.db = p.DB
	}
	return h
}

func (h *Handler) RegisterRoute(r *chi.Mux) {
	r.Get("/health", h.Handle)
}

type healthResponse struct {
	OK bool   `json:"ok"`
	DB string `json:"db"`
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		render.ChiJSON(w, http.StatusOK, healthResponse{OK: true, DB: "disabled"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		render.ChiJSON(w, http.StatusServiceUnavailable, healthResponse{OK: false, DB: "down"})
		return
	}
	render.ChiJSON(w, http.StatusOK, healthResponse{OK: true, DB: "up"})
}

var _ router.Handler = (*Handler)(nil)
