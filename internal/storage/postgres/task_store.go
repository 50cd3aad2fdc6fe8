// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bipulgarera-droid/seo-audit-slides/internal/audit"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	TaskTable       string
	RecordTable     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// NewPool builds a pgx pool from the config.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// TaskStore persists tasks with an optimistic version column, so concurrent
// sub-status writes for the same task never overwrite each other.
type TaskStore struct {
	pool  querier
	table string
}

// NewTaskStore constructs a store from an existing pool (the pool may be a
// pgxmock in tests).
func NewTaskStore(pool querier, table string) (*TaskStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "audit_tasks"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &TaskStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *TaskStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateTask inserts the task at version 1.
func (s *TaskStore) CreateTask(ctx context.Context, task audit.Task) error {
	sources, err := json.Marshal(task.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, domain, project_id, status, sources, max_pages, record_ref, version, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,1,$8,$9)`, s.table)
	if _, err := s.pool.Exec(ctx, query,
		task.ID,
		task.Domain,
		task.ProjectID,
		string(task.Status),
		sources,
		task.MaxPages,
		task.RecordRef,
		task.CreatedAt,
		task.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask fetches a task and its current version.
func (s *TaskStore) GetTask(ctx context.Context, taskID string) (audit.Task, int64, error) {
	query := fmt.Sprintf(`
SELECT id, domain, project_id, status, sources, max_pages, record_ref, version, created_at, updated_at
FROM %s WHERE id = $1`, s.table)
	task, version, err := scanTask(s.pool.QueryRow(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return audit.Task{}, 0, fmt.Errorf("task %s: %w", taskID, audit.ErrNotFound)
		}
		return audit.Task{}, 0, fmt.Errorf("select task: %w", err)
	}
	return task, version, nil
}

// UpdateTask writes the task if the stored version still matches; a stale
// version yields ErrVersionConflict so callers can re-read and retry.
func (s *TaskStore) UpdateTask(ctx context.Context, task audit.Task, version int64) error {
	sources, err := json.Marshal(task.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	query := fmt.Sprintf(`
UPDATE %s
SET status = $1, sources = $2, record_ref = $3, updated_at = $4, version = version + 1
WHERE id = $5 AND version = $6`, s.table)
	tag, err := s.pool.Exec(ctx, query,
		string(task.Status),
		sources,
		task.RecordRef,
		task.UpdatedAt,
		task.ID,
		version,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s version %d: %w", task.ID, version, audit.ErrVersionConflict)
	}
	return nil
}

// ListTasks returns all tasks, newest first.
func (s *TaskStore) ListTasks(ctx context.Context) ([]audit.Task, error) {
	query := fmt.Sprintf(`
SELECT id, domain, project_id, status, sources, max_pages, record_ref, version, created_at, updated_at
FROM %s ORDER BY created_at DESC, id DESC`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []audit.Task
	for rows.Next() {
		task, _, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

func scanTask(row pgx.Row) (audit.Task, int64, error) {
	var (
		task    audit.Task
		status  string
		sources []byte
		version int64
	)
	if err := row.Scan(
		&task.ID,
		&task.Domain,
		&task.ProjectID,
		&status,
		&sources,
		&task.MaxPages,
		&task.RecordRef,
		&version,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return audit.Task{}, 0, err
	}
	task.Status = audit.TaskStatus(status)
	if err := json.Unmarshal(sources, &task.Sources); err != nil {
		return audit.Task{}, 0, fmt.Errorf("unmarshal sources: %w", err)
	}
	return task, version, nil
}
