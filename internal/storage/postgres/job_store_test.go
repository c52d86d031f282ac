package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/mjaros/seo-auditor/internal/audit"
)

func TestCreateJobInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	job := audit.Job{
		ID:               "job-1",
		Domain:           "example.com",
		OnPageStatus:     audit.SubtaskPending,
		LighthouseStatus: audit.SubtaskPending,
		CreatedAt:        now,
	}

	mock.ExpectExec("INSERT INTO audit_jobs").
		WithArgs(
			"job-1",
			"example.com",
			(*string)(nil),
			"pending",
			[]byte(nil),
			(*string)(nil),
			"pending",
			[]byte(nil),
			(*string)(nil),
			now,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateJob(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobMapsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	taskID := "op-task"

	rows := pgxmock.NewRows([]string{
		"job_id", "domain",
		"onpage_task_id", "onpage_status", "onpage_data",
		"lighthouse_task_id", "lighthouse_status", "lighthouse_data",
		"error_text", "created_at",
	}).AddRow(
		"job-1", "example.com",
		&taskID, audit.SubtaskCompleted, json.RawMessage(`[{"total_pages":5}]`),
		(*string)(nil), audit.SubtaskPending, json.RawMessage(nil),
		(*string)(nil), now,
	)

	mock.ExpectQuery("SELECT job_id, domain").
		WithArgs("job-1").
		WillReturnRows(rows)

	job, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, "job-1", job.ID)
	require.Equal(t, "example.com", job.Domain)
	require.Equal(t, "op-task", job.OnPageTaskID)
	require.Equal(t, audit.SubtaskCompleted, job.OnPageStatus)
	require.JSONEq(t, `[{"total_pages":5}]`, string(job.OnPageData))
	require.Empty(t, job.LighthouseTaskID)
	require.Equal(t, now, job.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT job_id, domain").
		WithArgs("job-missing").
		WillReturnRows(pgxmock.NewRows([]string{
			"job_id", "domain",
			"onpage_task_id", "onpage_status", "onpage_data",
			"lighthouse_task_id", "lighthouse_status", "lighthouse_data",
			"error_text", "created_at",
		}))

	_, err = store.GetJob(context.Background(), "job-missing")
	require.ErrorIs(t, err, audit.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateJobCoalescesUnsetColumns(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	completed := audit.SubtaskCompleted
	statusStr := "completed"

	mock.ExpectExec("UPDATE audit_jobs SET").
		WithArgs(
			"job-1",
			(*string)(nil),
			&statusStr,
			[]byte(`[{"total_pages":5}]`),
			(*string)(nil),
			(*string)(nil),
			[]byte(nil),
			(*string)(nil),
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	taskID := "op-task"
	rows := pgxmock.NewRows([]string{
		"job_id", "domain",
		"onpage_task_id", "onpage_status", "onpage_data",
		"lighthouse_task_id", "lighthouse_status", "lighthouse_data",
		"error_text", "created_at",
	}).AddRow(
		"job-1", "example.com",
		&taskID, audit.SubtaskCompleted, json.RawMessage(`[{"total_pages":5}]`),
		(*string)(nil), audit.SubtaskPending, json.RawMessage(nil),
		(*string)(nil), now,
	)
	mock.ExpectQuery("SELECT job_id, domain").
		WithArgs("job-1").
		WillReturnRows(rows)

	job, err := store.UpdateJob(context.Background(), "job-1", audit.JobUpdate{
		OnPageStatus: &completed,
		OnPageData:   json.RawMessage(`[{"total_pages":5}]`),
	})
	require.NoError(t, err)
	require.Equal(t, audit.SubtaskCompleted, job.OnPageStatus)
	require.Equal(t, audit.SubtaskPending, job.LighthouseStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateJobUnknownID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock)
	require.NoError(t, err)

	errText := "boom"
	mock.ExpectExec("UPDATE audit_jobs SET").
		WithArgs(
			"job-missing",
			(*string)(nil),
			(*string)(nil),
			[]byte(nil),
			(*string)(nil),
			(*string)(nil),
			[]byte(nil),
			&errText,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	_, err = store.UpdateJob(context.Background(), "job-missing", audit.JobUpdate{ErrorText: &errText})
	require.ErrorIs(t, err, audit.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteJob(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectExec("DELETE FROM audit_jobs").
		WithArgs("job-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, store.DeleteJob(context.Background(), "job-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
