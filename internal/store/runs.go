package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"search-analytics-node/db"
	"search-analytics-node/internal/table"
)

type Run struct {
	ID          string          `json:"id"`
	Workflow    string          `json:"workflow"`
	Node        string          `json:"node"`
	Status      RunStatus       `json:"status"`
	Params      json.RawMessage `json:"params,omitempty"`
	RowCount    int             `json:"row_count"`
	Warnings    []string        `json:"warnings"`
	Error       *string         `json:"error"`
	Table       *table.Table    `json:"table,omitempty"`
	CreatedAtMs int64           `json:"created_at_ms"`
	UpdatedAtMs int64           `json:"updated_at_ms"`
}

type runRow struct {
	ID          string         `db:"id"`
	Workflow    string         `db:"workflow"`
	Node        string         `db:"node"`
	Status      string         `db:"status"`
	Params      sql.NullString `db:"params"`
	RowCount    int            `db:"row_count"`
	Warnings    sql.NullString `db:"warnings"`
	Error       sql.NullString `db:"error"`
	TableJSON   sql.NullString `db:"table_json"`
	CreatedAtMs int64          `db:"created_at_ms"`
	UpdatedAtMs int64          `db:"updated_at_ms"`
}

type CreateRunInput struct {
	ID       string
	Workflow string    `validate:"required"`
	Node     string    `validate:"required"`
	Status   RunStatus `validate:"required,oneof=queued running"`
	Params   json.RawMessage
}

func (s *Store) CreateRun(ctx context.Context, in CreateRunInput) (string, error) {
	if s.db == nil {
		return "", db.ErrDBDisabled
	}
	if err := s.validator.Struct(in); err != nil {
		return "", fmt.Errorf("validate run input: %w", err)
	}

	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}

	params := sql.NullString{}
	if len(in.Params) > 0 {
		params = sql.NullString{String: string(in.Params), Valid: true}
	}

	now := s.nowMs()
	q := s.db.Rebind(`
INSERT INTO node_runs (
  id,
  workflow,
  node,
  status,
  params,
  created_at_ms,
  updated_at_ms
) VALUES (
  ?,
  ?,
  ?,
  ?,
  ?,
  ?,
  ?
)
ON CONFLICT(id) DO NOTHING
`)
	if _, err := s.db.ExecContext(ctx, q, id, in.Workflow, in.Node, string(in.Status), params, now, now); err != nil {
		return "", fmt.Errorf("insert node_runs: %w", err)
	}

	s.logger.Infow("run_created", "id", id, "workflow", in.Workflow, "node", in.Node, "status", in.Status)
	return id, nil
}

// MarkRunning moves a queued run, or a failed one being redriven, to running.
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	if s.db == nil {
		return db.ErrDBDisabled
	}

	q := s.db.Rebind(`
UPDATE node_runs SET
  status = ?,
  error = NULL,
  updated_at_ms = ?
WHERE id = ? AND status IN (?, ?)
`)
	res, err := s.db.ExecContext(ctx, q, string(StatusRunning), s.nowMs(), id, string(StatusQueued), string(StatusFailed))
	if err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}
	if n == 1 {
		return nil
	}

	var current string
	err = s.db.GetContext(ctx, &current, s.db.Rebind(`SELECT status FROM node_runs WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("run %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}
	return fmt.Errorf("run %q is %s: %w", id, current, ErrRunNotRunnable)
}

type FinishRunInput struct {
	ID       string
	Table    *table.Table
	Warnings []string
	Err      error
}

// FinishRun records the outcome of a run: ok with its table, or failed with
// the error text.
func (s *Store) FinishRun(ctx context.Context, in FinishRunInput) error {
	if s.db == nil {
		return db.ErrDBDisabled
	}

	status := StatusOK
	errCol := sql.NullString{}
	if in.Err != nil {
		status = StatusFailed
		errCol = sql.NullString{String: in.Err.Error(), Valid: true}
	}

	warnings := sql.NullString{}
	if len(in.Warnings) > 0 {
		b, _ := json.Marshal(in.Warnings)
		warnings = sql.NullString{String: string(b), Valid: true}
	}

	tableJSON := sql.NullString{}
	if in.Table != nil {
		b, err := json.Marshal(in.Table)
		if err != nil {
			return fmt.Errorf("encode run table: %w", err)
		}
		tableJSON = sql.NullString{String: string(b), Valid: true}
	}

	_, err := db.Tx(ctx, s.db, func(tx *sqlx.Tx) (struct{}, error) {
		var current string
		if err := tx.GetContext(ctx, &current, tx.Rebind(`SELECT status FROM node_runs WHERE id = ?`), in.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return struct{}{}, fmt.Errorf("run %q: %w", in.ID, ErrNotFound)
			}
			return struct{}{}, err
		}

		q := tx.Rebind(`
UPDATE node_runs SET
  status = ?,
  row_count = ?,
  warnings = ?,
  error = ?,
  table_json = ?,
  updated_at_ms = ?
WHERE id = ?
`)
		_, err := tx.ExecContext(ctx, q, string(status), in.Table.Len(), warnings, errCol, tableJSON, s.nowMs(), in.ID)
		return struct{}{}, err
	})
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	s.logger.Infow("run_finished", "id", in.ID, "status", status, "rows", in.Table.Len())
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	if s.db == nil {
		return nil, db.ErrDBDisabled
	}

	var row runRow
	q := s.db.Rebind(`
SELECT id, workflow, node, status, params, row_count, warnings, error, table_json, created_at_ms, updated_at_ms
FROM node_runs
WHERE id = ?
`)
	if err := s.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get run: %w", err)
	}

	run := &Run{
		ID:          row.ID,
		Workflow:    row.Workflow,
		Node:        row.Node,
		Status:      RunStatus(row.Status),
		RowCount:    row.RowCount,
		Warnings:    []string{},
		CreatedAtMs: row.CreatedAtMs,
		UpdatedAtMs: row.UpdatedAtMs,
	}
	if row.Params.Valid {
		run.Params = json.RawMessage(row.Params.String)
	}
	if row.Error.Valid {
		e := row.Error.String
		run.Error = &e
	}
	if row.Warnings.Valid {
		if err := json.Unmarshal([]byte(row.Warnings.String), &run.Warnings); err != nil {
			return nil, fmt.Errorf("decode run warnings: %w", err)
		}
	}
	if row.TableJSON.Valid {
		var t table.Table
		if err := json.Unmarshal([]byte(row.TableJSON.String), &t); err != nil {
			return nil, fmt.Errorf("decode run table: %w", err)
		}
		run.Table = &t
	}
	return run, nil
}
