package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mjaros/seo-auditor/internal/audit"
)

func TestJobStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()

	job := audit.Job{
		ID:               "job-1",
		Domain:           "example.com",
		OnPageStatus:     audit.SubtaskPending,
		LighthouseStatus: audit.SubtaskPending,
		CreatedAt:        time.Unix(1700000000, 0).UTC(),
	}

	require.NoError(t, store.CreateJob(ctx, job))
	require.Error(t, store.CreateJob(ctx, job))

	got, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, job, got)

	_, err = store.GetJob(ctx, "job-unknown")
	require.ErrorIs(t, err, audit.ErrNotFound)

	require.NoError(t, store.DeleteJob(ctx, "job-1"))
	require.NoError(t, store.DeleteJob(ctx, "job-1"))

	_, err = store.GetJob(ctx, "job-1")
	require.ErrorIs(t, err, audit.ErrNotFound)
}

func TestUpdateJobUnknownID(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	completed := audit.SubtaskCompleted
	_, err := store.UpdateJob(context.Background(), "nope", audit.JobUpdate{OnPageStatus: &completed})
	require.ErrorIs(t, err, audit.ErrNotFound)
}

// Two webhook deliveries updating different sub-task fields of the same job
// must both land regardless of interleaving.
func TestConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()

	require.NoError(t, store.CreateJob(ctx, audit.Job{
		ID:               "job-1",
		Domain:           "example.com",
		OnPageStatus:     audit.SubtaskPending,
		LighthouseStatus: audit.SubtaskPending,
	}))

	completed := audit.SubtaskCompleted
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := store.UpdateJob(ctx, "job-1", audit.JobUpdate{OnPageStatus: &completed})
		require.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := store.UpdateJob(ctx, "job-1", audit.JobUpdate{LighthouseStatus: &completed})
		require.NoError(t, err)
	}()
	wg.Wait()

	job, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, audit.SubtaskCompleted, job.OnPageStatus)
	require.Equal(t, audit.SubtaskCompleted, job.LighthouseStatus)
}
