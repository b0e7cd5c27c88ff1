// Package store persists workflow credentials and node runs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"search-analytics-node/db"
	"search-analytics-node/internal/credential"
)

var ErrNotFound = errors.New("not found")

// ErrRunNotRunnable is returned when a run is already running or finished ok.
var ErrRunNotRunnable = errors.New("run is not runnable")

type RunStatus string

const (
	StatusQueued  RunStatus = "queued"
	StatusRunning RunStatus = "running"
	StatusOK      RunStatus = "ok"
	StatusFailed  RunStatus = "failed"
)

type Store struct {
	db        *sqlx.DB
	logger    *zap.SugaredLogger
	validator *validator.Validate
	now       func() time.Time
}

type NewStoreParams struct {
	fx.In

	DB     *sqlx.DB `optional:"true"`
	Logger *zap.SugaredLogger
}

func NewStore(p NewStoreParams) *Store {
	return &Store{
		db:        p.DB,
		logger:    p.Logger,
		validator: validator.New(),
		now:       time.Now,
	}
}

func (s *Store) nowMs() int64 { return s.now().UnixMilli() }

func (s *Store) LoadCredential(ctx context.Context, workflow string) (*credential.Credential, error) {
	if s.db == nil {
		return nil, db.ErrDBDisabled
	}

	var payload string
	q := s.db.Rebind(`SELECT payload FROM workflow_credentials WHERE workflow = ?`)
	err := s.db.GetContext(ctx, &payload, q, workflow)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("credential for workflow %q: %w", workflow, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	return credential.Unmarshal([]byte(payload))
}

func (s *Store) SaveCredential(ctx context.Context, workflow string, c *credential.Credential) error {
	if s.db == nil {
		return db.ErrDBDisabled
	}
	if workflow == "" {
		return fmt.Errorf("save credential: missing workflow")
	}

	payload, err := c.Marshal()
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}

	now := s.nowMs()
	q := s.db.Rebind(`
INSERT INTO workflow_credentials (
  workflow,
  payload,
  created_at_ms,
  updated_at_ms
) VALUES (
  ?,
  ?,
  ?,
  ?
)
ON CONFLICT(workflow) DO UPDATE SET
  payload = excluded.payload,
  updated_at_ms = excluded.updated_at_ms
`)
	if _, err := s.db.ExecContext(ctx, q, workflow, string(payload), now, now); err != nil {
		return fmt.Errorf("upsert workflow_credentials: %w", err)
	}

	s.logger.Infow("credential_saved", "workflow", workflow, "is_pro", c.IsPro, "has_refresh_token", c.RefreshToken != "")
	return nil
}

func (s *Store) DeleteCredential(ctx context.Context, workflow string) error {
	if s.db == nil {
		return db.ErrDBDisabled
	}
	q := s.db.Rebind(`DELETE FROM workflow_credentials WHERE workflow = ?`)
	if _, err := s.db.ExecContext(ctx, q, workflow); err != nil {
		return fmt.Errorf("delete workflow credential: %w", err)
	}
	s.logger.Infow("credential_deleted", "workflow", workflow)
	return nil
}
