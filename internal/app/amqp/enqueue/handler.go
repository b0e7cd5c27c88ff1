package enqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"search-analytics-node/config"
	"search-analytics-node/db"
	"search-analytics-node/internal/app/amqp/nodeworker"
	"search-analytics-node/internal/node"
	"search-analytics-node/internal/pkg/render"
	"search-analytics-node/internal/router"
	"search-analytics-node/internal/store"

	"github.com/go-chi/chi/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const maxParamsBytes = 4 << 20

type Handler struct {
	cfg      *config.Config
	channel  *amqp.Channel
	logger   *zap.SugaredLogger
	store    queuedRunWriter
	registry nodeLookup

	publish func(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	now     func() time.Time
}

type queuedRunWriter interface {
	CreateRun(ctx context.Context, in store.CreateRunInput) (string, error)
	FinishRun(ctx context.Context, in store.FinishRunInput) error
}

type nodeLookup interface {
	Get(name string) (node.Node, error)
}

type NewHandlerParams struct {
	fx.In

	Cfg      *config.Config
	Channel  *amqp.Channel `optional:"true"`
	Logger   *zap.SugaredLogger
	Store    *store.Store
	Registry *node.Registry
}

func NewHandler(p NewHandlerParams) *Handler {
	var publishFn func(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	if p.Channel != nil {
		publishFn = p.Channel.PublishWithContext
	}

	return &Handler{
		cfg:      p.Cfg,
		channel:  p.Channel,
		logger:   p.Logger,
		store:    p.Store,
		registry: p.Registry,
		publish:  publishFn,
		now:      time.Now,
	}
}

func (h *Handler) RegisterRoute(r *chi.Mux) {
	r.Post("/v1/workflows/{workflow}/nodes/{node}/enqueue", h.Handle)
}

type enqueueResponse struct {
	OK      bool   `json:"ok"`
	EventID string `json:"event_id"`
	RunID   string `json:"run_id"`
}

// Handle records a queued run and publishes it for the node worker.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	workflow := strings.TrimSpace(chi.URLParam(r, "workflow"))
	if workflow == "" {
		render.ChiErr(w, http.StatusBadRequest, "missing workflow")
		return
	}
	n, err := h.registry.Get(strings.TrimSpace(chi.URLParam(r, "node")))
	if err != nil {
		render.ChiErr(w, render.StatusFor(err), err.Error())
		return
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

	if h.cfg.RabbitMQ.URL == "" || h.publish == nil {
		render.ChiErr(w, http.StatusServiceUnavailable, "rabbitmq disabled")
		return
	}

	ex, routingKey := nodeworker.RoutingTarget(h.cfg.RabbitMQ)

	runID, err := h.store.CreateRun(r.Context(), store.CreateRunInput{
		Workflow: workflow,
		Node:     n.Name(),
		Status:   store.StatusQueued,
		Params:   params,
	})
	if errors.Is(err, db.ErrDBDisabled) {
		render.ChiErr(w, http.StatusServiceUnavailable, "workflow store disabled")
		return
	}
	if err != nil {
		h.logger.Errorw("enqueue_persist_queued_failed", "workflow", workflow, "node", n.Name(), "err", err)
		render.ChiErr(w, http.StatusInternalServerError, "failed to record run")
		return
	}

	now := h.now().UTC()
	eventID := nodeworker.EventIDForRun(runID)
	env := nodeworker.NodeExecutionRequestedEnvelope{
		EventName: nodeworker.EventName,
		EventID:   eventID,
		TS:        now,
		Data: nodeworker.NodeExecutionRequestedData{
			RunID:    runID,
			Workflow: workflow,
			Node:     n.Name(),
			Params:   params,
		},
	}
	body, err := json.Marshal(env)
	if err != nil {
		h.logger.Errorw("enqueue_marshal_failed", "err", err)
		h.abandon(r.Context(), runID, err)
		render.ChiErr(w, http.StatusInternalServerError, "failed to encode message")
		return
	}

	if h.channel != nil && h.cfg.RabbitMQ.DeclareTopology {
		if err := h.channel.ExchangeDeclare(ex, "topic", true, false, false, false, nil); err != nil {
			h.logger.Errorw("enqueue_exchange_declare_failed", "exchange", ex, "err", err)
			h.abandon(r.Context(), runID, err)
			render.ChiErr(w, http.StatusBadGateway, fmt.Sprintf("rabbitmq exchange declare failed: %s", ex))
			return
		}
	}

	if err := h.publish(r.Context(), ex, routingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    now,
		MessageId:    eventID,
		Body:         body,
	}); err != nil {
		h.logger.Errorw(
			"enqueue_publish_failed",
			"exchange", ex,
			"routing_key", routingKey,
			"event_id", eventID,
			"run_id", runID,
			"err", err,
		)
		h.abandon(r.Context(), runID, err)
		render.ChiErr(w, http.StatusBadGateway, "failed to publish message")
		return
	}

	h.logger.Infow("enqueue_published", "exchange", ex, "routing_key", routingKey, "event_id", eventID, "run_id", runID)
	render.ChiJSON(w, http.StatusAccepted, enqueueResponse{OK: true, EventID: eventID, RunID: runID})
}

// abandon marks a run that never reached the queue as failed.
func (h *Handler) abandon(ctx context.Context, runID string, cause error) {
	err := h.store.FinishRun(context.WithoutCancel(ctx), store.FinishRunInput{
		ID:  runID,
		Err: fmt.Errorf("enqueue: %w", cause),
	})
	if err != nil {
		h.logger.Errorw("enqueue_abandon_run_failed", "run_id", runID, "err", err)
	}
}

var _ router.Handler = (*Handler)(nil)
