package audit

import (
	"encoding/json"
	"time"
)

// SubtaskStatus represents the lifecycle state of one external analysis task.
type SubtaskStatus string

// Sub-task status values persisted in the job store.
const (
	SubtaskPending   SubtaskStatus = "pending"
	SubtaskCompleted SubtaskStatus = "completed"
	SubtaskError     SubtaskStatus = "error"
)

// Status is the derived overall state of an audit job.
type Status string

// Overall status values reported to clients.
const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Subtask names one of the two external analyses gating aggregation.
type Subtask string

// The two sub-tasks every audit job runs.
const (
	SubtaskOnPage     Subtask = "onpage"
	SubtaskLighthouse Subtask = "lighthouse"
)

// Job represents the metadata persisted for each requested audit.
// ID and Domain are immutable after creation; the per-sub-task fields are
// mutated by webhook ingestion and must be merged field-by-field by stores.
type Job struct {
	ID               string          `json:"job_id"`
	Domain           string          `json:"domain"`
	OnPageTaskID     string          `json:"onpage_task_id,omitempty"`
	OnPageStatus     SubtaskStatus   `json:"onpage_status"`
	OnPageData       json.RawMessage `json:"onpage_data,omitempty"`
	LighthouseTaskID string          `json:"lighthouse_task_id,omitempty"`
	LighthouseStatus SubtaskStatus   `json:"lighthouse_status"`
	LighthouseData   json.RawMessage `json:"lighthouse_data,omitempty"`
	ErrorText        string          `json:"error_text,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// JobUpdate is a partial job record. Nil fields are left untouched so that
// concurrent webhook deliveries for different sub-tasks never clobber each
// other's writes.
type JobUpdate struct {
	OnPageTaskID     *string
	OnPageStatus     *SubtaskStatus
	OnPageData       json.RawMessage
	LighthouseTaskID *string
	LighthouseStatus *SubtaskStatus
	LighthouseData   json.RawMessage
	ErrorText        *string
}

// Merge applies the update's non-nil fields onto a copy of the job.
func (j Job) Merge(u JobUpdate) Job {
	if u.OnPageTaskID != nil {
		j.OnPageTaskID = *u.OnPageTaskID
	}
	if u.OnPageStatus != nil {
		j.OnPageStatus = *u.OnPageStatus
	}
	if u.OnPageData != nil {
		j.OnPageData = u.OnPageData
	}
	if u.LighthouseTaskID != nil {
		j.LighthouseTaskID = *u.LighthouseTaskID
	}
	if u.LighthouseStatus != nil {
		j.LighthouseStatus = *u.LighthouseStatus
	}
	if u.LighthouseData != nil {
		j.LighthouseData = u.LighthouseData
	}
	if u.ErrorText != nil {
		j.ErrorText = *u.ErrorText
	}
	return j
}

// SecurityFindings is the result of the independent security-header probe.
type SecurityFindings struct {
	HSTS           bool `json:"hsts"`
	CSP            bool `json:"csp"`
	ReferrerPolicy bool `json:"referrerPolicy"`
}

// SectionStatus grades one report section.
type SectionStatus string

// Section statuses shared by every report section.
const (
	SectionOK          SectionStatus = "ok"
	SectionNeedsReview SectionStatus = "needs-review"
	SectionNeedsFix    SectionStatus = "needs-fix"
)

// Example cites one concrete URL exhibiting an issue.
type Example struct {
	URL   string `json:"url"`
	Issue string `json:"issue"`
}

// Section is one named slice of the final report.
type Section struct {
	Status   SectionStatus  `json:"status"`
	Summary  string         `json:"summary"`
	Findings map[string]any `json:"findings"`
	Examples []Example      `json:"examples"`
}

// Metadata describes the crawl that produced the report.
type Metadata struct {
	Domain           string `json:"domain"`
	CrawlTimestamp   string `json:"crawlTimestamp"`
	TotalURLsCrawled int    `json:"totalUrlsCrawled"`
	CMS              string `json:"cms"`
}

// Report is the normalized audit output returned to the client. It is a
// value object assembled once per aggregation and never persisted.
type Report struct {
	AuditMetadata Metadata `json:"auditMetadata"`
	MetaData      Section  `json:"metaData"`
	Headings      Section  `json:"headings"`
	Content       Section  `json:"content"`
	Indexing      Section  `json:"indexing"`
	Sitemap       Section  `json:"sitemap"`
	RobotsTxt     Section  `json:"robotsTxt"`
	Redirects     Section  `json:"redirects"`
	InternalLinks Section  `json:"internalLinks"`
	URLs          Section  `json:"urls"`
	Images        Section  `json:"images"`
	Performance   Section  `json:"performance"`
	Security      Section  `json:"security"`
}
