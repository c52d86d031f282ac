// Package redis provides a Redis-backed job store. Records expire after the
// configured retention window, so abandoned jobs clean themselves up.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mjaros/seo-auditor/internal/audit"
)

// Config holds Redis connection and retention settings.
type Config struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

// ErrEmptyAddress is returned when the Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

const connectTimeout = 5 * time.Second

// JobStore persists each job as a Redis hash so updates touch only the
// fields they carry; concurrent HSETs for different fields cannot lose
// writes.
type JobStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewJobStore connects to Redis and verifies the connection.
func NewJobStore(cfg Config) (*JobStore, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &JobStore{client: client, ttl: cfg.TTL}, nil
}

// Close releases the underlying connection pool.
func (s *JobStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}

func jobKey(jobID string) string {
	return "job:" + jobID
}

// CreateJob writes a new job hash with the retention TTL.
func (s *JobStore) CreateJob(ctx context.Context, job audit.Job) error {
	key := jobKey(job.ID)
	fields := map[string]any{
		"domain":            job.Domain,
		"onpage_status":     string(job.OnPageStatus),
		"lighthouse_status": string(job.LighthouseStatus),
		"created_at":        job.CreatedAt.Format(time.RFC3339Nano),
	}
	if job.OnPageTaskID != "" {
		fields["onpage_task_id"] = job.OnPageTaskID
	}
	if job.LighthouseTaskID != "" {
		fields["lighthouse_task_id"] = job.LighthouseTaskID
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob reads a job hash back into a record.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (audit.Job, error) {
	fields, err := s.client.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return audit.Job{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if len(fields) == 0 {
		return audit.Job{}, audit.ErrNotFound
	}

	job := audit.Job{
		ID:               jobID,
		Domain:           fields["domain"],
		OnPageTaskID:     fields["onpage_task_id"],
		OnPageStatus:     audit.SubtaskStatus(fields["onpage_status"]),
		LighthouseTaskID: fields["lighthouse_task_id"],
		LighthouseStatus: audit.SubtaskStatus(fields["lighthouse_status"]),
		ErrorText:        fields["error_text"],
	}
	if raw := fields["onpage_data"]; raw != "" {
		job.OnPageData = []byte(raw)
	}
	if raw := fields["lighthouse_data"]; raw != "" {
		job.LighthouseData = []byte(raw)
	}
	if ts := fields["created_at"]; ts != "" {
		createdAt, parseErr := time.Parse(time.RFC3339Nano, ts)
		if parseErr != nil {
			return audit.Job{}, fmt.Errorf("parse created_at for job %s: %w", jobID, parseErr)
		}
		job.CreatedAt = createdAt
	}
	return job, nil
}

// UpdateJob sets only the fields carried by the update and refreshes the
// retention TTL, then returns the merged record.
func (s *JobStore) UpdateJob(ctx context.Context, jobID string, update audit.JobUpdate) (audit.Job, error) {
	key := jobKey(jobID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return audit.Job{}, fmt.Errorf("check job %s: %w", jobID, err)
	}
	if exists == 0 {
		return audit.Job{}, audit.ErrNotFound
	}

	fields := map[string]any{}
	if update.OnPageTaskID != nil {
		fields["onpage_task_id"] = *update.OnPageTaskID
	}
	if update.OnPageStatus != nil {
		fields["onpage_status"] = string(*update.OnPageStatus)
	}
	if update.OnPageData != nil {
		fields["onpage_data"] = string(update.OnPageData)
	}
	if update.LighthouseTaskID != nil {
		fields["lighthouse_task_id"] = *update.LighthouseTaskID
	}
	if update.LighthouseStatus != nil {
		fields["lighthouse_status"] = string(*update.LighthouseStatus)
	}
	if update.LighthouseData != nil {
		fields["lighthouse_data"] = string(update.LighthouseData)
	}
	if update.ErrorText != nil {
		fields["error_text"] = *update.ErrorText
	}

	if len(fields) > 0 {
		pipe := s.client.TxPipeline()
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, s.ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			return audit.Job{}, fmt.Errorf("update job %s: %w", jobID, err)
		}
	}

	return s.GetJob(ctx, jobID)
}

// DeleteJob removes a job hash. Deleting an absent job is a no-op.
func (s *JobStore) DeleteJob(ctx context.Context, jobID string) error {
	if err := s.client.Del(ctx, jobKey(jobID)).Err(); err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}
	return nil
}
