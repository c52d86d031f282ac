// Package postgres provides a Postgres-backed job store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mjaros/seo-auditor/internal/audit"
)

// Config controls the Postgres connection pool used for job records.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// JobStore persists audit jobs in the audit_jobs table. Updates write only
// the columns carried by the update (COALESCE keeps the rest), so concurrent
// webhook deliveries for different sub-tasks cannot lose writes.
type JobStore struct {
	pool pool
}

// NewJobStore creates a Postgres-backed JobStore using the provided config.
//
// Expected schema:
//
//	CREATE TABLE audit_jobs (
//	    job_id             TEXT PRIMARY KEY,
//	    domain             TEXT NOT NULL,
//	    onpage_task_id     TEXT,
//	    onpage_status      TEXT NOT NULL,
//	    onpage_data        JSONB,
//	    lighthouse_task_id TEXT,
//	    lighthouse_status  TEXT NOT NULL,
//	    lighthouse_data    JSONB,
//	    error_text         TEXT,
//	    created_at         TIMESTAMPTZ NOT NULL
//	);
func NewJobStore(ctx context.Context, cfg Config) (*JobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.postgres.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	return &JobStore{pool: p}, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewJobStoreWithPool(p pool) (*JobStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateJob inserts a new job row.
func (s *JobStore) CreateJob(ctx context.Context, job audit.Job) error {
	query := `
		INSERT INTO audit_jobs (
			job_id, domain,
			onpage_task_id, onpage_status, onpage_data,
			lighthouse_task_id, lighthouse_status, lighthouse_data,
			error_text, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`
	_, err := s.pool.Exec(ctx, query,
		job.ID,
		job.Domain,
		nullable(job.OnPageTaskID),
		string(job.OnPageStatus),
		[]byte(job.OnPageData),
		nullable(job.LighthouseTaskID),
		string(job.LighthouseStatus),
		[]byte(job.LighthouseData),
		nullable(job.ErrorText),
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob retrieves a single job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (audit.Job, error) {
	query := `
		SELECT job_id, domain,
			onpage_task_id, onpage_status, onpage_data,
			lighthouse_task_id, lighthouse_status, lighthouse_data,
			error_text, created_at
		FROM audit_jobs
		WHERE job_id = $1;
	`
	var (
		job              audit.Job
		onpageTaskID     *string
		lighthouseTaskID *string
		errorText        *string
	)
	err := s.pool.QueryRow(ctx, query, jobID).Scan(
		&job.ID,
		&job.Domain,
		&onpageTaskID,
		&job.OnPageStatus,
		&job.OnPageData,
		&lighthouseTaskID,
		&job.LighthouseStatus,
		&job.LighthouseData,
		&errorText,
		&job.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return audit.Job{}, audit.ErrNotFound
		}
		return audit.Job{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	job.OnPageTaskID = deref(onpageTaskID)
	job.LighthouseTaskID = deref(lighthouseTaskID)
	job.ErrorText = deref(errorText)
	return job, nil
}

// UpdateJob merges the update's set columns into the row and returns the
// merged record.
func (s *JobStore) UpdateJob(ctx context.Context, jobID string, update audit.JobUpdate) (audit.Job, error) {
	query := `
		UPDATE audit_jobs SET
			onpage_task_id     = COALESCE($2, onpage_task_id),
			onpage_status      = COALESCE($3, onpage_status),
			onpage_data        = COALESCE($4, onpage_data),
			lighthouse_task_id = COALESCE($5, lighthouse_task_id),
			lighthouse_status  = COALESCE($6, lighthouse_status),
			lighthouse_data    = COALESCE($7, lighthouse_data),
			error_text         = COALESCE($8, error_text)
		WHERE job_id = $1;
	`
	res, err := s.pool.Exec(ctx, query,
		jobID,
		update.OnPageTaskID,
		statusArg(update.OnPageStatus),
		[]byte(update.OnPageData),
		update.LighthouseTaskID,
		statusArg(update.LighthouseStatus),
		[]byte(update.LighthouseData),
		update.ErrorText,
	)
	if err != nil {
		return audit.Job{}, fmt.Errorf("update job %s: %w", jobID, err)
	}
	if res.RowsAffected() == 0 {
		return audit.Job{}, audit.ErrNotFound
	}
	return s.GetJob(ctx, jobID)
}

// DeleteJob removes a job row. Deleting an absent job is a no-op.
func (s *JobStore) DeleteJob(ctx context.Context, jobID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM audit_jobs WHERE job_id = $1;`, jobID); err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}
	return nil
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func statusArg(s *audit.SubtaskStatus) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}
