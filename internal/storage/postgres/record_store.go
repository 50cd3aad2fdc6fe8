package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bipulgarera-droid/seo-audit-slides/internal/audit"
)

// RecordStore persists finalized audit records. Records are write-once: a
// second insert for the same task id is a no-op.
type RecordStore struct {
	pool  querier
	table string
}

// NewRecordStore constructs a store from an existing pool.
func NewRecordStore(pool querier, table string) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "audit_records"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RecordStore{pool: pool, table: table}, nil
}

// PutRecord inserts the record, keeping the first write on conflict.
func (s *RecordStore) PutRecord(ctx context.Context, record audit.AuditRecord) error {
	if record.TaskID == "" {
		return fmt.Errorf("%w: record task id is required", audit.ErrValidation)
	}
	payloads, err := json.Marshal(record.Payloads)
	if err != nil {
		return fmt.Errorf("marshal payloads: %w", err)
	}
	failed, err := json.Marshal(record.Failed)
	if err != nil {
		return fmt.Errorf("marshal failed list: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (task_id, domain, payloads, failed, completed_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (task_id) DO NOTHING`, s.table)
	if _, err := s.pool.Exec(ctx, query,
		record.TaskID,
		record.Domain,
		payloads,
		failed,
		record.CompletedAt,
	); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// GetRecord fetches the record for a task id.
func (s *RecordStore) GetRecord(ctx context.Context, taskID string) (audit.AuditRecord, error) {
	query := fmt.Sprintf(`
SELECT task_id, domain, payloads, failed, completed_at
FROM %s WHERE task_id = $1`, s.table)
	var (
		record   audit.AuditRecord
		payloads []byte
		failed   []byte
	)
	err := s.pool.QueryRow(ctx, query, taskID).Scan(
		&record.TaskID,
		&record.Domain,
		&payloads,
		&failed,
		&record.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return audit.AuditRecord{}, fmt.Errorf("record %s: %w", taskID, audit.ErrNotFound)
		}
		return audit.AuditRecord{}, fmt.Errorf("select record: %w", err)
	}
	if err := json.Unmarshal(payloads, &record.Payloads); err != nil {
		return audit.AuditRecord{}, fmt.Errorf("unmarshal payloads: %w", err)
	}
	if err := json.Unmarshal(failed, &record.Failed); err != nil {
		return audit.AuditRecord{}, fmt.Errorf("unmarshal failed list: %w", err)
	}
	return record, nil
}
