// Package dataforseo implements a typed client for the DataForSEO v3 API:
// task submission with pingback callbacks plus the detail reports consumed
// during aggregation.
package dataforseo

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/mjaros/seo-auditor/internal/metrics"
)

// Default fetch limits mirroring the aggregation pipeline's needs.
const (
	DefaultPagesLimit          = 100
	DefaultDuplicateTagsLimit  = 50
	DefaultLinksLimit          = 2000
	DefaultResourcesLimit      = 1000
	DefaultNonIndexableLimit   = 500
	DefaultRedirectChainsLimit = 50
)

// UpstreamError reports a non-success response from the provider.
type UpstreamError struct {
	Endpoint   string
	HTTPStatus int
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf(
		"dataforseo %s: http %d, status_code %d: %s",
		e.Endpoint, e.HTTPStatus, e.StatusCode, e.Message,
	)
}

// Config controls Client behavior.
type Config struct {
	BaseURL         string
	Login           string
	Password        string
	CallbackBaseURL string
	Timeout         time.Duration
	MaxCrawlPages   int
}

// Client is a thin typed wrapper around the provider's HTTP API. It is
// constructed once at startup and shared; the embedded http.Client bounds
// every call with the configured timeout.
type Client struct {
	httpClient *http.Client
	cfg        Config
	authHeader string
	logger     *zap.Logger
}

// New constructs a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.dataforseo.com/v3"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxCrawlPages == 0 {
		cfg.MaxCrawlPages = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	creds := base64.StdEncoding.EncodeToString([]byte(cfg.Login + ":" + cfg.Password))
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		authHeader: "Basic " + creds,
		logger:     logger,
	}
}

// SubmitOnPageTask starts the main on-page crawl and returns the provider's
// task id. The pingback URL routes the completion webhook back to job_id.
func (c *Client) SubmitOnPageTask(ctx context.Context, domain, jobID string) (string, error) {
	body := []map[string]any{{
		"target":                 domain,
		"max_crawl_pages":        c.cfg.MaxCrawlPages,
		"enable_javascript":      true,
		"load_resources":         true,
		"enable_content_parsing": true,
		"pingback_url":           c.pingbackURL("onpage-done", jobID),
	}}
	return c.submit(ctx, "/on_page/task_post", body)
}

// SubmitLighthouseTask starts a mobile Lighthouse run against the domain's
// root page and returns the provider's task id.
func (c *Client) SubmitLighthouseTask(ctx context.Context, domain, jobID string) (string, error) {
	body := []map[string]any{{
		"url":          "https://" + domain,
		"for_mobile":   true,
		"pingback_url": c.pingbackURL("lighthouse-done", jobID),
	}}
	return c.submit(ctx, "/on_page/lighthouse/task_post", body)
}

// FetchOnPageSummary retrieves the crawl-wide on-page summary.
func (c *Client) FetchOnPageSummary(ctx context.Context, taskID string) (OnPageSummary, error) {
	return do[OnPageSummary](ctx, c, http.MethodGet, "/on_page/summary/"+taskID, nil)
}

// FetchLighthouse retrieves the finished Lighthouse result.
func (c *Client) FetchLighthouse(ctx context.Context, taskID string) (LighthouseResult, error) {
	return do[LighthouseResult](ctx, c, http.MethodGet, "/on_page/lighthouse/task_get/json/"+taskID, nil)
}

// FetchPages retrieves the crawled page inventory.
func (c *Client) FetchPages(ctx context.Context, taskID string, limit int) (PagesResult, error) {
	return do[PagesResult](ctx, c, http.MethodPost, "/on_page/pages", idLimitBody(taskID, limit))
}

// FetchDuplicateTags retrieves duplicated title/description occurrences.
func (c *Client) FetchDuplicateTags(ctx context.Context, taskID string, limit int) (DuplicateTagsResult, error) {
	return do[DuplicateTagsResult](ctx, c, http.MethodPost, "/on_page/duplicate_tags", idLimitBody(taskID, limit))
}

// FetchLinks retrieves the internal link graph.
func (c *Client) FetchLinks(ctx context.Context, taskID string, limit int) (LinksResult, error) {
	return do[LinksResult](ctx, c, http.MethodPost, "/on_page/links", idLimitBody(taskID, limit))
}

// FetchImageResources retrieves image resources found during the crawl.
func (c *Client) FetchImageResources(ctx context.Context, taskID string, limit int) (ResourcesResult, error) {
	body := []map[string]any{{
		"id":      taskID,
		"limit":   limit,
		"filters": []any{"resource_type", "=", "image"},
	}}
	return do[ResourcesResult](ctx, c, http.MethodPost, "/on_page/resources", body)
}

// FetchNonIndexable retrieves pages excluded from indexing.
func (c *Client) FetchNonIndexable(ctx context.Context, taskID string, limit int) (NonIndexableResult, error) {
	return do[NonIndexableResult](ctx, c, http.MethodPost, "/on_page/non_indexable", idLimitBody(taskID, limit))
}

// FetchRedirectChains retrieves multi-hop redirect chains.
func (c *Client) FetchRedirectChains(ctx context.Context, taskID string, limit int) (RedirectChainsResult, error) {
	return do[RedirectChainsResult](ctx, c, http.MethodPost, "/on_page/redirect_chains", idLimitBody(taskID, limit))
}

func (c *Client) pingbackURL(event, jobID string) string {
	q := url.Values{}
	q.Set("job_id", jobID)
	return fmt.Sprintf("%s/webhook/%s?%s", c.cfg.CallbackBaseURL, event, q.Encode())
}

func idLimitBody(taskID string, limit int) []map[string]any {
	return []map[string]any{{"id": taskID, "limit": limit}}
}

// submit posts a task and returns the allocated task id. Task creation
// responds with a 2xxxx task-level code rather than plain 20000.
func (c *Client) submit(ctx context.Context, path string, body any) (string, error) {
	env, err := c.roundTrip(ctx, http.MethodPost, path, body)
	if err != nil {
		return "", err
	}
	if len(env.Tasks) == 0 {
		return "", &UpstreamError{
			Endpoint:   path,
			HTTPStatus: http.StatusOK,
			StatusCode: env.StatusCode,
			Message:    "response contains no tasks",
		}
	}
	task := env.Tasks[0]
	if task.StatusCode >= 30000 {
		return "", &UpstreamError{
			Endpoint:   path,
			HTTPStatus: http.StatusOK,
			StatusCode: task.StatusCode,
			Message:    task.StatusMessage,
		}
	}
	c.logger.Info("provider task submitted",
		zap.String("endpoint", path),
		zap.String("task_id", task.ID),
	)
	return task.ID, nil
}

// do performs a call and decodes the first result entry of the first task.
func do[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	var zero T
	env, err := c.roundTrip(ctx, method, path, body)
	if err != nil {
		return zero, err
	}
	if len(env.Tasks) == 0 || len(env.Tasks[0].Result) == 0 {
		return zero, &UpstreamError{
			Endpoint:   path,
			HTTPStatus: http.StatusOK,
			StatusCode: env.StatusCode,
			Message:    "response contains no result",
		}
	}
	task := env.Tasks[0]
	if task.StatusCode >= 30000 {
		return zero, &UpstreamError{
			Endpoint:   path,
			HTTPStatus: http.StatusOK,
			StatusCode: task.StatusCode,
			Message:    task.StatusMessage,
		}
	}
	var out T
	if err := json.Unmarshal(task.Result[0], &out); err != nil {
		return zero, fmt.Errorf("decode %s result: %w", path, err)
	}
	return out, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body any) (envelope[json.RawMessage], error) {
	var env envelope[json.RawMessage]

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return env, fmt.Errorf("encode %s request: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return env, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveProviderRequest(path, 0, time.Since(start))
		return env, fmt.Errorf("call %s: %w", path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("close response body", zap.Error(closeErr))
		}
	}()
	metrics.ObserveProviderRequest(path, resp.StatusCode, time.Since(start))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return env, fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return env, &UpstreamError{
			Endpoint:   path,
			HTTPStatus: resp.StatusCode,
			Message:    string(bytes.TrimSpace(raw)),
		}
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("decode %s envelope: %w", path, err)
	}
	if env.StatusCode >= 30000 {
		return env, &UpstreamError{
			Endpoint:   path,
			HTTPStatus: resp.StatusCode,
			StatusCode: env.StatusCode,
			Message:    env.StatusMessage,
		}
	}
	return env, nil
}
