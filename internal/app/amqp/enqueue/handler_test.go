package enqueue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"search-analytics-node/config"
	"search-analytics-node/internal/app/amqp/nodeworker"
	"search-analytics-node/internal/node"
	"search-analytics-node/internal/store"

	"github.com/go-chi/chi/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type fakeRuns struct {
	created  []store.CreateRunInput
	finished []store.FinishRunInput
}

func (f *fakeRuns) CreateRun(ctx context.Context, in store.CreateRunInput) (string, error) {
	f.created = append(f.created, in)
	return "run-1", nil
}

func (f *fakeRuns) FinishRun(ctx context.Context, in store.FinishRunInput) error {
	f.finished = append(f.finished, in)
	return nil
}

func newTestRegistry(t *testing.T) *node.Registry {
	t.Helper()

	reg, err := node.NewRegistry(node.NewRegistryParams{Nodes: []node.Node{
		node.NewQuery(nil),
		node.NewPropertyDetails(nil),
	}})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func newTestHandler(t *testing.T, cfg *config.Config, runs *fakeRuns) *Handler {
	return &Handler{
		cfg:      cfg,
		logger:   zap.NewNop().Sugar(),
		store:    runs,
		registry: newTestRegistry(t),
		now:      time.Now,
	}
}

func do(h *Handler, target, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.RegisterRoute(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, target, strings.NewReader(body)))
	return w
}

func TestHandler_Handle_UnknownNode(t *testing.T) {
	runs := &fakeRuns{}
	h := newTestHandler(t, &config.Config{}, runs)

	w := do(h, "/v1/workflows/wf/nodes/crawl/enqueue", `{}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if len(runs.created) != 0 {
		t.Fatalf("run recorded for unknown node")
	}
}

func TestHandler_Handle_BadJSON(t *testing.T) {
	h := newTestHandler(t, &config.Config{}, &fakeRuns{})

	w := do(h, "/v1/workflows/wf/nodes/query/enqueue", "{")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestHandler_Handle_RabbitMQDisabled(t *testing.T) {
	runs := &fakeRuns{}
	h := newTestHandler(t, &config.Config{}, runs)

	w := do(h, "/v1/workflows/wf/nodes/query/enqueue", `{"site":"s"}`)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if len(runs.created) != 0 {
		t.Fatalf("run recorded while rabbitmq is disabled")
	}
}

func TestHandler_Handle_OK_PublishesQueuedRun(t *testing.T) {
	var gotExchange, gotKey string
	var gotPublishing amqp.Publishing
	var gotResp struct {
		OK      bool   `json:"ok"`
		EventID string `json:"event_id"`
		RunID   string `json:"run_id"`
	}

	cfg := &config.Config{}
	cfg.RabbitMQ.URL = "amqp://example"
	cfg.RabbitMQ.Exchange = "events"
	cfg.RabbitMQ.RoutingKey = "node.execution.requested.v1"

	runs := &fakeRuns{}
	h := newTestHandler(t, cfg, runs)
	h.publish = func(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
		gotExchange = exchange
		gotKey = key
		gotPublishing = msg
		return nil
	}

	before := time.Now().UTC().Add(-1 * time.Second)
	w := do(h, "/v1/workflows/wf/nodes/query/enqueue", `{"site":"sc-domain:example.com"}`)
	after := time.Now().UTC().Add(1 * time.Second)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), &gotResp); err != nil {
		t.Fatalf("unmarshal response: %v body=%s", err, w.Body.String())
	}
	if !gotResp.OK || gotResp.RunID != "run-1" || gotResp.EventID != "noderun:run-1" {
		t.Fatalf("response=%+v", gotResp)
	}

	if len(runs.created) != 1 {
		t.Fatalf("created=%d", len(runs.created))
	}
	if in := runs.created[0]; in.Status != store.StatusQueued || in.Workflow != "wf" || in.Node != "query" {
		t.Fatalf("created run=%+v", in)
	}

	if gotExchange != "events" || gotKey != "node.execution.requested.v1" {
		t.Fatalf("publish exchange=%q key=%q", gotExchange, gotKey)
	}
	if gotPublishing.ContentType != "application/json" {
		t.Fatalf("contentType=%q", gotPublishing.ContentType)
	}
	if gotPublishing.MessageId != "noderun:run-1" {
		t.Fatalf("message id=%q", gotPublishing.MessageId)
	}
	if gotPublishing.Timestamp.Before(before) || gotPublishing.Timestamp.After(after) {
		t.Fatalf("timestamp=%s out of range", gotPublishing.Timestamp)
	}

	var env nodeworker.NodeExecutionRequestedEnvelope
	if err := json.Unmarshal(gotPublishing.Body, &env); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if env.EventName != nodeworker.EventName {
		t.Fatalf("env.event_name=%q", env.EventName)
	}
	if env.Data.RunID != "run-1" || env.Data.Workflow != "wf" || env.Data.Node != "query" {
		t.Fatalf("env.data=%+v", env.Data)
	}
	if string(env.Data.Params) != `{"site":"sc-domain:example.com"}` {
		t.Fatalf("env.data.params=%s", env.Data.Params)
	}
}

func TestHandler_Handle_PublishFailureFailsRun(t *testing.T) {
	cfg := &config.Config{}
	cfg.RabbitMQ.URL = "amqp://example"

	runs := &fakeRuns{}
	h := newTestHandler(t, cfg, runs)
	h.publish = func(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
		return errors.New("channel closed")
	}

	w := do(h, "/v1/workflows/wf/nodes/property_details/enqueue", ``)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if len(runs.finished) != 1 || runs.finished[0].ID != "run-1" || runs.finished[0].Err == nil {
		t.Fatalf("finished=%+v", runs.finished)
	}
}
