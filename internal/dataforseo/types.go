package dataforseo

import "encoding/json"

// StatusOK is the provider's numeric code for a successful task or response.
const StatusOK = 20000

// envelope is the outer shape of every v3 API response.
type envelope[T any] struct {
	StatusCode    int           `json:"status_code"`
	StatusMessage string        `json:"status_message"`
	Tasks         []taskItem[T] `json:"tasks"`
}

type taskItem[T any] struct {
	ID            string `json:"id"`
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
	Result        []T    `json:"result"`
}

// TaskNotification is the optional payload a pingback webhook may carry.
// Pingbacks frequently arrive as bare GETs with no body at all; when a body
// is present its status codes decide whether the sub-task succeeded.
type TaskNotification struct {
	StatusCode    int                `json:"status_code"`
	StatusMessage string             `json:"status_message"`
	Tasks         []NotificationTask `json:"tasks"`
}

// NotificationTask is one task entry inside a pingback payload.
type NotificationTask struct {
	ID            string          `json:"id"`
	StatusCode    int             `json:"status_code"`
	StatusMessage string          `json:"status_message"`
	Result        json.RawMessage `json:"result"`
}

// Succeeded reports whether the notification indicates a successful task.
func (n TaskNotification) Succeeded() bool {
	if n.StatusCode != StatusOK {
		return false
	}
	for _, t := range n.Tasks {
		if t.StatusCode != StatusOK {
			return false
		}
	}
	return true
}

// Message returns the most specific provider status message available.
func (n TaskNotification) Message() string {
	for _, t := range n.Tasks {
		if t.StatusCode != StatusOK && t.StatusMessage != "" {
			return t.StatusMessage
		}
	}
	return n.StatusMessage
}

// OnPageSummary is the crawl-wide summary for an on-page task.
type OnPageSummary struct {
	DomainInfo  DomainInfo  `json:"domain_info"`
	TotalPages  int         `json:"total_pages"`
	PageMetrics PageMetrics `json:"page_metrics"`
}

// DomainInfo carries crawl-level metadata about the audited domain.
type DomainInfo struct {
	CrawlEnd string `json:"crawl_end"`
	CMS      string `json:"cms"`
}

// PageMetrics aggregates per-check counters across the crawl.
type PageMetrics struct {
	DuplicateDescription int          `json:"duplicate_description"`
	Checks               ChecksCounts `json:"checks"`
}

// ChecksCounts holds the subset of on-page check counters the report maps.
type ChecksCounts struct {
	TitleTooLong  int `json:"title_too_long"`
	TitleTooShort int `json:"title_too_short"`
	NoDescription int `json:"no_description"`
}

// LighthouseResult is one Lighthouse task result entry.
type LighthouseResult struct {
	Items []LighthouseItem `json:"items"`
}

// LighthouseItem flattens the Lighthouse audits consumed by the report.
type LighthouseItem struct {
	Performance             ScoredAudit  `json:"performance"`
	LCP                     DisplayAudit `json:"lcp"`
	CLS                     DisplayAudit `json:"cls"`
	TotalBlockingTime       DisplayAudit `json:"total_blocking_time"`
	UnusedJavascript        SavingsAudit `json:"unused_javascript"`
	UsesOptimizedImages     SavingsAudit `json:"uses_optimized_images"`
	RenderBlockingResources ItemsAudit   `json:"render_blocking_resources"`
}

// ScoredAudit carries a 0..1 category score. A nil score means Lighthouse
// could not compute the category.
type ScoredAudit struct {
	Score *float64 `json:"score"`
}

// DisplayAudit carries a human-readable metric value (e.g. "2.5 s").
type DisplayAudit struct {
	DisplayValue string `json:"displayValue"`
}

// SavingsAudit carries estimated byte savings for an optimization audit.
type SavingsAudit struct {
	Details SavingsDetails `json:"details"`
}

// SavingsDetails holds the savings estimate in KiB.
type SavingsDetails struct {
	OverallSavingsKiB float64 `json:"overallSavingsKiB"`
}

// ItemsAudit carries the offending resources behind an audit.
type ItemsAudit struct {
	Details ItemsDetails `json:"details"`
}

// ItemsDetails lists the audited resources.
type ItemsDetails struct {
	Items []ResourceRef `json:"items"`
}

// ResourceRef points at one resource URL flagged by an audit.
type ResourceRef struct {
	URL string `json:"url"`
}

// PagesResult is a page-inventory listing.
type PagesResult struct {
	ItemsCount int        `json:"items_count"`
	Items      []PageItem `json:"items"`
}

// PageItem is one crawled page.
type PageItem struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
}

// DuplicateTagsResult lists pages sharing a duplicated tag value.
type DuplicateTagsResult struct {
	Items []DuplicateTagItem `json:"items"`
}

// DuplicateTagItem is one duplicated-tag occurrence.
type DuplicateTagItem struct {
	Tag   string `json:"tag"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// LinksResult is a link-graph listing.
type LinksResult struct {
	ItemsCount int        `json:"items_count"`
	Items      []LinkItem `json:"items"`
}

// LinkItem is one edge of the site's link graph.
type LinkItem struct {
	Type     string `json:"type"`
	LinkFrom string `json:"link_from"`
	LinkTo   string `json:"link_to"`
}

// ResourcesResult lists non-HTML resources referenced by the crawl.
type ResourcesResult struct {
	Items []ResourceItem `json:"items"`
}

// ResourceItem is one fetched resource.
type ResourceItem struct {
	URL          string `json:"url"`
	ResourceType string `json:"resource_type"`
	Size         int    `json:"size"`
}

// NonIndexableResult lists pages excluded from indexing.
type NonIndexableResult struct {
	Items []NonIndexableItem `json:"items"`
}

// NonIndexableItem is one non-indexable page with its reason.
type NonIndexableItem struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// RedirectChainsResult lists multi-hop redirect chains.
type RedirectChainsResult struct {
	Items []RedirectChainItem `json:"items"`
}

// RedirectChainItem is the entry point of one redirect chain.
type RedirectChainItem struct {
	URL         string `json:"url"`
	ChainLength int    `json:"chain_length"`
}
