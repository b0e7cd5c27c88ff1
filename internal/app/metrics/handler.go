package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"search-analytics-node/internal/gsc"
	"search-analytics-node/internal/router"
)

type Handler struct {
	h http.Handler
}

func NewHandler() (*Handler, error) {
	if err := gsc.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		return nil, err
	}
	return &Handler{h: promhttp.Handler()}, nil
}

func (h *Handler) RegisterRoute(r *chi.Mux) {
	r.Get("/metrics", h.Handle)
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	h.h.ServeHTTP(w, r)
}

var _ router.Handler = (*Handler)(nil)
