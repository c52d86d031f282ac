// Package aggregation implements the fan-out step that turns a finished
// job's raw provider data into the final report.
package aggregation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mjaros/seo-auditor/internal/audit"
	"github.com/mjaros/seo-auditor/internal/dataforseo"
	"github.com/mjaros/seo-auditor/internal/metrics"
)

// Limits bounds each detail fetch issued during aggregation.
type Limits struct {
	Pages          int
	DuplicateTags  int
	Links          int
	Resources      int
	NonIndexable   int
	RedirectChains int
}

// DefaultLimits mirror the provider client's per-report defaults.
func DefaultLimits() Limits {
	return Limits{
		Pages:          dataforseo.DefaultPagesLimit,
		DuplicateTags:  dataforseo.DefaultDuplicateTagsLimit,
		Links:          dataforseo.DefaultLinksLimit,
		Resources:      dataforseo.DefaultResourcesLimit,
		NonIndexable:   dataforseo.DefaultNonIndexableLimit,
		RedirectChains: dataforseo.DefaultRedirectChainsLimit,
	}
}

// Aggregator fetches all detail reports for a completed job concurrently and
// maps them into one report. Any provider fetch failure fails the whole
// aggregation; the job record is then marked with the error but kept, so a
// later poll can retry until the record expires.
type Aggregator struct {
	client audit.AnalysisClient
	prober audit.SecurityProber
	store  audit.JobStore
	limits Limits
	logger *zap.Logger
}

// New constructs an Aggregator.
func New(
	client audit.AnalysisClient,
	prober audit.SecurityProber,
	store audit.JobStore,
	limits Limits,
	logger *zap.Logger,
) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		client: client,
		prober: prober,
		store:  store,
		limits: limits,
		logger: logger,
	}
}

// BuildReport assembles the final report for a job whose both sub-tasks are
// completed. On success the job record is deleted as a best-effort follow-up
// so the response is not delayed; on failure the record is annotated with
// the error and preserved.
func (a *Aggregator) BuildReport(ctx context.Context, job audit.Job) (audit.Report, error) {
	if !job.Aggregatable() {
		return audit.Report{}, &audit.AggregationError{
			JobID: job.ID,
			Err:   errors.New("both sub-tasks must be completed"),
		}
	}

	report, err := a.assemble(ctx, job)
	if err != nil {
		metrics.ObserveAggregation("error")
		a.recordFailure(ctx, job.ID, err)
		return audit.Report{}, &audit.AggregationError{JobID: job.ID, Err: err}
	}

	metrics.ObserveAggregation("completed")
	go a.deleteJob(job.ID)
	return report, nil
}

func (a *Aggregator) assemble(ctx context.Context, job audit.Job) (audit.Report, error) {
	summary, lighthouse, err := a.resolveSummaries(ctx, job)
	if err != nil {
		return audit.Report{}, err
	}

	var (
		duplicates dataforseo.DuplicateTagsResult
		sec        audit.SecurityFindings
	)

	// The detail fetches have no ordering among themselves, only a
	// join-before-mapping barrier. Fail fast: one failed fetch fails the
	// whole aggregation, no partial report is returned. The security probe
	// degrades internally instead of failing.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := a.client.FetchPages(gctx, job.OnPageTaskID, a.limits.Pages)
		return err
	})
	g.Go(func() error {
		var err error
		duplicates, err = a.client.FetchDuplicateTags(gctx, job.OnPageTaskID, a.limits.DuplicateTags)
		return err
	})
	g.Go(func() error {
		_, err := a.client.FetchLinks(gctx, job.OnPageTaskID, a.limits.Links)
		return err
	})
	g.Go(func() error {
		_, err := a.client.FetchImageResources(gctx, job.OnPageTaskID, a.limits.Resources)
		return err
	})
	g.Go(func() error {
		_, err := a.client.FetchNonIndexable(gctx, job.OnPageTaskID, a.limits.NonIndexable)
		return err
	})
	g.Go(func() error {
		_, err := a.client.FetchRedirectChains(gctx, job.OnPageTaskID, a.limits.RedirectChains)
		return err
	})
	g.Go(func() error {
		sec = a.prober.Probe(gctx, job.Domain)
		return nil
	})
	if err := g.Wait(); err != nil {
		return audit.Report{}, err
	}

	var lighthouseItem dataforseo.LighthouseItem
	if len(lighthouse.Items) > 0 {
		lighthouseItem = lighthouse.Items[0]
	}

	a.logger.Info("aggregation details fetched, mapping report",
		zap.String("job_id", job.ID),
		zap.String("domain", job.Domain),
	)

	return audit.BuildReport(audit.ReportInput{
		Domain:        job.Domain,
		Summary:       summary,
		Lighthouse:    lighthouseItem,
		DuplicateTags: duplicates.Items,
		Security:      sec,
	}), nil
}

// resolveSummaries sources the two raw summary payloads. Payloads pushed by
// webhook delivery take precedence; otherwise they are fetched by task id.
func (a *Aggregator) resolveSummaries(
	ctx context.Context,
	job audit.Job,
) (dataforseo.OnPageSummary, dataforseo.LighthouseResult, error) {
	var (
		summary    dataforseo.OnPageSummary
		lighthouse dataforseo.LighthouseResult
	)

	if !decodeStored(job.OnPageData, &summary) {
		if job.OnPageTaskID == "" {
			return summary, lighthouse, errors.New("onpage summary data missing and no task id to fetch it")
		}
		var err error
		summary, err = a.client.FetchOnPageSummary(ctx, job.OnPageTaskID)
		if err != nil {
			return summary, lighthouse, err
		}
	}

	if !decodeStored(job.LighthouseData, &lighthouse) {
		if job.LighthouseTaskID == "" {
			return summary, lighthouse, errors.New("lighthouse data missing and no task id to fetch it")
		}
		var err error
		lighthouse, err = a.client.FetchLighthouse(ctx, job.LighthouseTaskID)
		if err != nil {
			return summary, lighthouse, err
		}
	}

	return summary, lighthouse, nil
}

// decodeStored decodes a webhook-delivered raw result array into out,
// returning false when nothing usable was stored.
func decodeStored[T any](raw json.RawMessage, out *T) bool {
	if len(raw) == 0 {
		return false
	}
	var entries []T
	if err := json.Unmarshal(raw, &entries); err != nil || len(entries) == 0 {
		return false
	}
	*out = entries[0]
	return true
}

func (a *Aggregator) recordFailure(ctx context.Context, jobID string, cause error) {
	msg := cause.Error()
	if _, err := a.store.UpdateJob(ctx, jobID, audit.JobUpdate{ErrorText: &msg}); err != nil {
		a.logger.Error("record aggregation failure",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}
}

func (a *Aggregator) deleteJob(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.store.DeleteJob(ctx, jobID); err != nil {
		a.logger.Warn("deferred job delete failed",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}
}
