package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"search-analytics-node/config"
	"search-analytics-node/internal/credential"
	"search-analytics-node/internal/gsc"
	"search-analytics-node/internal/store"
)

// Store is the workflow state a node execution reads and writes.
type Store interface {
	LoadCredential(ctx context.Context, workflow string) (*credential.Credential, error)
	SaveCredential(ctx context.Context, workflow string, c *credential.Credential) error
	CreateRun(ctx context.Context, in store.CreateRunInput) (string, error)
	MarkRunning(ctx context.Context, id string) error
	FinishRun(ctx context.Context, in store.FinishRunInput) error
}

type Executor struct {
	cfg      *config.Config
	store    Store
	registry *Registry
	logger   *zap.SugaredLogger
	now      func() time.Time
}

type NewExecutorParams struct {
	fx.In

	Cfg      *config.Config
	Store    *store.Store
	Registry *Registry
	Logger   *zap.SugaredLogger
}

func NewExecutor(p NewExecutorParams) *Executor {
	return &Executor{
		cfg:      p.Cfg,
		store:    p.Store,
		registry: p.Registry,
		logger:   p.Logger,
		now:      time.Now,
	}
}

type ExecuteRequest struct {
	Workflow string
	Node     string
	Params   json.RawMessage

	// RunID continues a queued run; empty starts a new one.
	RunID string
}

type ExecuteResult struct {
	RunID string
	Output
}

// Execute runs one node with the workflow's credential and records the run.
// Parameters are validated before the credential is loaded. A refreshed
// access token is written back to the workflow store.
func (e *Executor) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	if req.Workflow == "" {
		return nil, gsc.Requestf("missing workflow")
	}
	n, err := e.registry.Get(req.Node)
	if err != nil {
		return nil, err
	}

	runID := req.RunID
	if runID == "" {
		runID, err = e.store.CreateRun(ctx, store.CreateRunInput{
			Workflow: req.Workflow,
			Node:     n.Name(),
			Status:   store.StatusRunning,
			Params:   req.Params,
		})
		if err != nil {
			return nil, err
		}
	} else if err := e.store.MarkRunning(ctx, runID); err != nil {
		return nil, err
	}

	out, err := e.run(ctx, n, req, runID)

	// Recording the outcome must survive a canceled execution context.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if ferr := e.store.FinishRun(finishCtx, store.FinishRunInput{
		ID:       runID,
		Table:    out.Table,
		Warnings: out.Warnings,
		Err:      err,
	}); ferr != nil {
		e.logger.Errorw("node_run_finish_failed", "run_id", runID, "err", ferr)
	}

	res := &ExecuteResult{RunID: runID, Output: out}
	if err != nil {
		e.logger.Errorw("node_execute_failed",
			"workflow", req.Workflow,
			"node", n.Name(),
			"run_id", runID,
			"err", err,
		)
		return res, err
	}

	e.logger.Infow("node_executed",
		"workflow", req.Workflow,
		"node", n.Name(),
		"run_id", runID,
		"rows", out.Table.Len(),
		"warnings", len(out.Warnings),
	)
	return res, nil
}

func (e *Executor) run(ctx context.Context, n Node, req ExecuteRequest, runID string) (Output, error) {
	if err := n.Validate(req.Params); err != nil {
		return Output{}, err
	}

	cred, err := e.store.LoadCredential(ctx, req.Workflow)
	if errors.Is(err, store.ErrNotFound) {
		return Output{}, fmt.Errorf("%w: workflow %q has no credential, execute the Authenticator first", gsc.ErrAuthentication, req.Workflow)
	}
	if err != nil {
		return Output{}, err
	}
	if err := cred.Check(e.now()); err != nil {
		return Output{}, err
	}

	oauthCfg := credential.NewOAuthConfig(e.cfg.Google, "")
	src := credential.NewSource(ctx, oauthCfg, cred)
	api := gsc.NewClient(src.HTTPClient(ctx), e.cfg.Google.APIBaseURL, e.cfg.Google.InspectionBaseURL)

	out, err := n.Execute(ctx, api, Input{
		Workflow:   req.Workflow,
		RunID:      runID,
		Credential: cred,
		Params:     req.Params,
		Progress: func(done, total int) {
			e.logger.Debugw("node_progress", "run_id", runID, "node", n.Name(), "done", done, "total", total)
		},
	})

	if cred.Apply(src.Latest()) {
		if serr := e.store.SaveCredential(context.WithoutCancel(ctx), req.Workflow, cred); serr != nil {
			e.logger.Warnw("credential_refresh_save_failed", "workflow", req.Workflow, "err", serr)
		} else {
			e.logger.Infow("credential_refreshed", "workflow", req.Workflow)
		}
	}

	return out, err
}
