package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mjaros/seo-auditor/internal/audit"
	"github.com/mjaros/seo-auditor/internal/config"
	"github.com/mjaros/seo-auditor/internal/dataforseo"
	"github.com/mjaros/seo-auditor/internal/storage/memory"
)

type fakeAnalysisClient struct {
	submitOnPageErr     error
	submitLighthouseErr error
	submittedDomains    []string
}

func (f *fakeAnalysisClient) SubmitOnPageTask(_ context.Context, domain, jobID string) (string, error) {
	if f.submitOnPageErr != nil {
		return "", f.submitOnPageErr
	}
	f.submittedDomains = append(f.submittedDomains, domain)
	return "op-" + jobID, nil
}

func (f *fakeAnalysisClient) SubmitLighthouseTask(_ context.Context, _, jobID string) (string, error) {
	if f.submitLighthouseErr != nil {
		return "", f.submitLighthouseErr
	}
	return "lh-" + jobID, nil
}

func (f *fakeAnalysisClient) FetchOnPageSummary(context.Context, string) (dataforseo.OnPageSummary, error) {
	return dataforseo.OnPageSummary{}, nil
}

func (f *fakeAnalysisClient) FetchLighthouse(context.Context, string) (dataforseo.LighthouseResult, error) {
	return dataforseo.LighthouseResult{}, nil
}

func (f *fakeAnalysisClient) FetchPages(context.Context, string, int) (dataforseo.PagesResult, error) {
	return dataforseo.PagesResult{}, nil
}

func (f *fakeAnalysisClient) FetchDuplicateTags(context.Context, string, int) (dataforseo.DuplicateTagsResult, error) {
	return dataforseo.DuplicateTagsResult{}, nil
}

func (f *fakeAnalysisClient) FetchLinks(context.Context, string, int) (dataforseo.LinksResult, error) {
	return dataforseo.LinksResult{}, nil
}

func (f *fakeAnalysisClient) FetchImageResources(context.Context, string, int) (dataforseo.ResourcesResult, error) {
	return dataforseo.ResourcesResult{}, nil
}

func (f *fakeAnalysisClient) FetchNonIndexable(context.Context, string, int) (dataforseo.NonIndexableResult, error) {
	return dataforseo.NonIndexableResult{}, nil
}

func (f *fakeAnalysisClient) FetchRedirectChains(context.Context, string, int) (dataforseo.RedirectChainsResult, error) {
	return dataforseo.RedirectChainsResult{}, nil
}

type fakeAggregator struct {
	report audit.Report
	err    error
	calls  int
}

func (f *fakeAggregator) BuildReport(_ context.Context, job audit.Job) (audit.Report, error) {
	f.calls++
	if f.err != nil {
		return audit.Report{}, &audit.AggregationError{JobID: job.ID, Err: f.err}
	}
	return f.report, nil
}

type seqIDGen struct{ n int }

func (g *seqIDGen) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("job-%d", g.n), nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type testEnv struct {
	server     *Server
	store      *memory.JobStore
	client     *fakeAnalysisClient
	aggregator *fakeAggregator
}

func newTestEnv(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()
	store := memory.NewJobStore()
	client := &fakeAnalysisClient{}
	aggregator := &fakeAggregator{}
	server := NewServer(
		store,
		client,
		aggregator,
		&seqIDGen{},
		fixedClock{t: time.Unix(1700000000, 0).UTC()},
		cfg,
		nil,
	)
	return &testEnv{server: server, store: store, client: client, aggregator: aggregator}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) statusResponse {
	t.Helper()
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestStartAudit(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	rec := env.do(t, http.MethodPost, "/start-audit", map[string]string{"domain": "https://Example.com/"})

	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decodeStatus(t, rec)
	require.Equal(t, audit.StatusPending, resp.Status)
	require.Equal(t, "job-1", resp.JobID)

	job, err := env.store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, "example.com", job.Domain)
	require.Equal(t, "op-job-1", job.OnPageTaskID)
	require.Equal(t, "lh-job-1", job.LighthouseTaskID)
	require.Equal(t, audit.SubtaskPending, job.OnPageStatus)
	require.Equal(t, audit.SubtaskPending, job.LighthouseStatus)

	require.Equal(t, []string{"example.com"}, env.client.submittedDomains)
}

func TestStartAuditRejectsBadDomains(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	for _, domain := range []string{"", "   ", "example.com/path", "has space.com"} {
		rec := env.do(t, http.MethodPost, "/start-audit", map[string]string{"domain": domain})
		require.Equal(t, http.StatusBadRequest, rec.Code, "domain %q", domain)
	}
}

func TestStartAuditSubmitFailureRollsBack(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	env.client.submitLighthouseErr = errors.New("provider down")

	rec := env.do(t, http.MethodPost, "/start-audit", map[string]string{"domain": "example.com"})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Contains(t, rec.Body.String(), "failed to start audit")

	_, err := env.store.GetJob(context.Background(), "job-1")
	require.ErrorIs(t, err, audit.ErrNotFound)
}

func TestWebhookCompletesSubtask(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	require.NoError(t, env.store.CreateJob(context.Background(), audit.Job{
		ID:               "job-1",
		Domain:           "example.com",
		OnPageStatus:     audit.SubtaskPending,
		LighthouseStatus: audit.SubtaskPending,
	}))

	// Bare GET pingback, no payload at all.
	rec := env.do(t, http.MethodGet, "/webhook/onpage-done?job_id=job-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	job, err := env.store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, audit.SubtaskCompleted, job.OnPageStatus)
	require.Equal(t, audit.SubtaskPending, job.LighthouseStatus)

	// Duplicate delivery is acknowledged and changes nothing.
	rec = env.do(t, http.MethodGet, "/webhook/onpage-done?job_id=job-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	job, err = env.store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, audit.SubtaskCompleted, job.OnPageStatus)
}

func TestWebhookStoresResultPayload(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	require.NoError(t, env.store.CreateJob(context.Background(), audit.Job{
		ID:               "job-1",
		Domain:           "example.com",
		OnPageStatus:     audit.SubtaskPending,
		LighthouseStatus: audit.SubtaskPending,
	}))

	payload := map[string]any{
		"status_code": 20000,
		"tasks": []map[string]any{{
			"id":          "op-task",
			"status_code": 20000,
			"result":      []map[string]any{{"total_pages": 9}},
		}},
	}
	rec := env.do(t, http.MethodPost, "/webhook/onpage-done?job_id=job-1", payload)
	require.Equal(t, http.StatusOK, rec.Code)

	job, err := env.store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, audit.SubtaskCompleted, job.OnPageStatus)
	require.JSONEq(t, `[{"total_pages":9}]`, string(job.OnPageData))
}

func TestWebhookFailurePayloadMarksError(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	require.NoError(t, env.store.CreateJob(context.Background(), audit.Job{
		ID:               "job-1",
		Domain:           "example.com",
		OnPageStatus:     audit.SubtaskPending,
		LighthouseStatus: audit.SubtaskPending,
	}))

	payload := map[string]any{
		"status_code": 20000,
		"tasks": []map[string]any{{
			"id":             "lh-task",
			"status_code":    40501,
			"status_message": "invalid url",
		}},
	}
	rec := env.do(t, http.MethodPost, "/webhook/lighthouse-done?job_id=job-1", payload)
	require.Equal(t, http.StatusOK, rec.Code)

	job, err := env.store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, audit.SubtaskError, job.LighthouseStatus)
	require.Equal(t, audit.StatusError, audit.Overall(job))
}

func TestWebhookUnknownJobStillAcks(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	rec := env.do(t, http.MethodGet, "/webhook/onpage-done?job_id=job-missing", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCheckAuditStatus(t *testing.T) {
	t.Parallel()

	t.Run("unknown job", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, config.Config{})
		rec := env.do(t, http.MethodGet, "/check-audit-status/job-missing", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decodeStatus(t, rec)
		require.Equal(t, audit.StatusError, resp.Status)
		require.Equal(t, "Job not found.", resp.Message)
	})

	t.Run("step one in progress", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, config.Config{})
		require.NoError(t, env.store.CreateJob(context.Background(), audit.Job{
			ID:               "job-1",
			OnPageStatus:     audit.SubtaskPending,
			LighthouseStatus: audit.SubtaskPending,
		}))
		resp := decodeStatus(t, env.do(t, http.MethodGet, "/check-audit-status/job-1", nil))
		require.Equal(t, audit.StatusPending, resp.Status)
		require.Contains(t, resp.Message, "step 1/2")
		require.Zero(t, env.aggregator.calls)
	})

	t.Run("step two in progress", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, config.Config{})
		require.NoError(t, env.store.CreateJob(context.Background(), audit.Job{
			ID:               "job-1",
			OnPageStatus:     audit.SubtaskCompleted,
			LighthouseStatus: audit.SubtaskPending,
		}))
		resp := decodeStatus(t, env.do(t, http.MethodGet, "/check-audit-status/job-1", nil))
		require.Equal(t, audit.StatusPending, resp.Status)
		require.Contains(t, resp.Message, "step 2/2")
	})

	t.Run("subtask error", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, config.Config{})
		require.NoError(t, env.store.CreateJob(context.Background(), audit.Job{
			ID:               "job-1",
			OnPageStatus:     audit.SubtaskError,
			LighthouseStatus: audit.SubtaskPending,
		}))
		resp := decodeStatus(t, env.do(t, http.MethodGet, "/check-audit-status/job-1", nil))
		require.Equal(t, audit.StatusError, resp.Status)
		require.NotEmpty(t, resp.Message)
	})

	t.Run("both completed triggers aggregation", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, config.Config{})
		env.aggregator.report = audit.Report{
			AuditMetadata: audit.Metadata{Domain: "example.com", TotalURLsCrawled: 3},
		}
		require.NoError(t, env.store.CreateJob(context.Background(), audit.Job{
			ID:               "job-1",
			Domain:           "example.com",
			OnPageStatus:     audit.SubtaskCompleted,
			LighthouseStatus: audit.SubtaskCompleted,
		}))
		resp := decodeStatus(t, env.do(t, http.MethodGet, "/check-audit-status/job-1", nil))
		require.Equal(t, audit.StatusCompleted, resp.Status)
		require.NotNil(t, resp.Data)
		require.Equal(t, "example.com", resp.Data.AuditMetadata.Domain)
		require.Equal(t, 1, env.aggregator.calls)
	})

	t.Run("aggregation failure reports error", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, config.Config{})
		env.aggregator.err = errors.New("detail fetch failed")
		require.NoError(t, env.store.CreateJob(context.Background(), audit.Job{
			ID:               "job-1",
			Domain:           "example.com",
			OnPageStatus:     audit.SubtaskCompleted,
			LighthouseStatus: audit.SubtaskCompleted,
		}))
		resp := decodeStatus(t, env.do(t, http.MethodGet, "/check-audit-status/job-1", nil))
		require.Equal(t, audit.StatusError, resp.Status)
		require.Contains(t, resp.Message, "detail fetch failed")
	})
}

func TestAPIKeyGuardsClientRoutesOnly(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "secret"
	env := newTestEnv(t, cfg)

	rec := env.do(t, http.MethodPost, "/start-audit", map[string]string{"domain": "example.com"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/start-audit", strings.NewReader(`{"domain":"example.com"}`))
	req.Header.Set("X-API-Key", "secret")
	recAuth := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(recAuth, req)
	require.Equal(t, http.StatusAccepted, recAuth.Code)

	// Provider pingbacks carry no credentials and must stay reachable.
	recHook := env.do(t, http.MethodGet, "/webhook/onpage-done?job_id=whatever", nil)
	require.Equal(t, http.StatusOK, recHook.Code)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", nil).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/readyz", nil).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/metrics", nil).Code)
}
