package audit

import (
	"context"
	"time"

	"github.com/mjaros/seo-auditor/internal/dataforseo"
)

// JobStore persists audit job records. Updates must merge field-by-field so
// that concurrent webhook deliveries for the same job cannot lose writes.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	UpdateJob(ctx context.Context, jobID string, update JobUpdate) (Job, error)
	DeleteJob(ctx context.Context, jobID string) error
}

// AnalysisClient submits analysis tasks to the external provider and fetches
// their detail reports.
type AnalysisClient interface {
	SubmitOnPageTask(ctx context.Context, domain, jobID string) (string, error)
	SubmitLighthouseTask(ctx context.Context, domain, jobID string) (string, error)
	FetchOnPageSummary(ctx context.Context, taskID string) (dataforseo.OnPageSummary, error)
	FetchLighthouse(ctx context.Context, taskID string) (dataforseo.LighthouseResult, error)
	FetchPages(ctx context.Context, taskID string, limit int) (dataforseo.PagesResult, error)
	FetchDuplicateTags(ctx context.Context, taskID string, limit int) (dataforseo.DuplicateTagsResult, error)
	FetchLinks(ctx context.Context, taskID string, limit int) (dataforseo.LinksResult, error)
	FetchImageResources(ctx context.Context, taskID string, limit int) (dataforseo.ResourcesResult, error)
	FetchNonIndexable(ctx context.Context, taskID string, limit int) (dataforseo.NonIndexableResult, error)
	FetchRedirectChains(ctx context.Context, taskID string, limit int) (dataforseo.RedirectChainsResult, error)
}

// SecurityProber checks response headers on the audited domain itself. It
// never fails: any network error degrades to an all-false result.
type SecurityProber interface {
	Probe(ctx context.Context, domain string) SecurityFindings
}

// Aggregator builds the final report for a job whose sub-tasks completed.
type Aggregator interface {
	BuildReport(ctx context.Context, job Job) (Report, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
