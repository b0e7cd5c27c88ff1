package nodeworker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"search-analytics-node/internal/gsc"
	"search-analytics-node/internal/node"
	"search-analytics-node/internal/store"
)

type executor interface {
	Execute(ctx context.Context, req node.ExecuteRequest) (*node.ExecuteResult, error)
}

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

// Handle executes the queued run. Failures are recorded on the run itself;
// only transient ones are returned so the message is dead-lettered for a
// later redrive.
func (h *ExecuteHandler) Handle(ctx context.Context, msg NodeExecutionRequestedEnvelope) error {
	if strings.TrimSpace(msg.EventName) != "" && msg.EventName != EventName {
		return fmt.Errorf("unexpected event_name: %s", msg.EventName)
	}
	if strings.TrimSpace(msg.Data.RunID) == "" {
		return fmt.Errorf("missing run_id")
	}
	if strings.TrimSpace(msg.Data.Workflow) == "" || strings.TrimSpace(msg.Data.Node) == "" {
		return fmt.Errorf("missing workflow or node")
	}

	res, err := h.executor.Execute(ctx, node.ExecuteRequest{
		Workflow: msg.Data.Workflow,
		Node:     msg.Data.Node,
		Params:   msg.Data.Params,
		RunID:    msg.Data.RunID,
	})
	if errors.Is(err, store.ErrRunNotRunnable) || errors.Is(err, store.ErrNotFound) {
		h.logger.Warnw("nodeworker_run_skipped",
			"event_id", msg.EventID,
			"run_id", msg.Data.RunID,
			"err", err,
		)
		return nil
	}
	if err != nil {
		if gsc.IsTransient(err) {
			return err
		}
		h.logger.Warnw("nodeworker_run_failed",
			"event_id", msg.EventID,
			"run_id", msg.Data.RunID,
			"node", msg.Data.Node,
			"err", err,
		)
		return nil
	}

	h.logger.Infow("nodeworker_finished",
		"event_id", msg.EventID,
		"run_id", res.RunID,
		"node", msg.Data.Node,
		"rows", res.Table.Len(),
	)
	return nil
}
