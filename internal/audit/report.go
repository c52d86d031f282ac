package audit

import (
	"fmt"

	"github.com/mjaros/seo-auditor/internal/dataforseo"
)

const maxSectionExamples = 3

// ReportInput carries the raw provider data a report is assembled from.
// Only the fields below feed computed sections; the remaining detail
// reports gate aggregation (all fetches must succeed) but map to
// placeholder sections reserved for future extension.
type ReportInput struct {
	Domain        string
	Summary       dataforseo.OnPageSummary
	Lighthouse    dataforseo.LighthouseItem
	DuplicateTags []dataforseo.DuplicateTagItem
	Security      SecurityFindings
}

// BuildReport maps raw provider payloads into the fixed report shape.
// The transformation is pure and deterministic: identical input produces
// byte-identical output.
func BuildReport(in ReportInput) Report {
	return Report{
		AuditMetadata: Metadata{
			Domain:           in.Domain,
			CrawlTimestamp:   in.Summary.DomainInfo.CrawlEnd,
			TotalURLsCrawled: in.Summary.TotalPages,
			CMS:              in.Summary.DomainInfo.CMS,
		},
		MetaData:      buildMetaSection(in.Summary, in.DuplicateTags),
		Headings:      placeholderSection(),
		Content:       placeholderSection(),
		Indexing:      placeholderSection(),
		Sitemap:       placeholderSection(),
		RobotsTxt:     placeholderSection(),
		Redirects:     placeholderSection(),
		InternalLinks: placeholderSection(),
		URLs:          placeholderSection(),
		Images:        placeholderSection(),
		Performance:   buildPerformanceSection(in.Lighthouse),
		Security:      buildSecuritySection(in.Domain, in.Security),
	}
}

func buildMetaSection(summary dataforseo.OnPageSummary, duplicates []dataforseo.DuplicateTagItem) Section {
	checks := summary.PageMetrics.Checks
	findings := map[string]any{
		"longTitles":            checks.TitleTooLong,
		"shortTitles":           checks.TitleTooShort,
		"missingDescriptions":   checks.NoDescription,
		"duplicateDescriptions": summary.PageMetrics.DuplicateDescription,
	}

	status := SectionOK
	summaryText := "No metadata issues detected."
	if checks.TitleTooLong > 0 || checks.TitleTooShort > 0 ||
		checks.NoDescription > 0 || summary.PageMetrics.DuplicateDescription > 0 {
		status = SectionNeedsFix
		summaryText = "Metadata issues detected, including missing descriptions and duplicated titles."
	}

	examples := make([]Example, 0, maxSectionExamples)
	for _, item := range duplicates {
		if item.Tag != "title" {
			continue
		}
		examples = append(examples, Example{
			URL:   item.URL,
			Issue: fmt.Sprintf("duplicate title: '%s'", item.Title),
		})
		if len(examples) == maxSectionExamples {
			break
		}
	}

	return Section{
		Status:   status,
		Summary:  summaryText,
		Findings: findings,
		Examples: examples,
	}
}

func buildPerformanceSection(lh dataforseo.LighthouseItem) Section {
	findings := map[string]any{
		"lcp":               displayOrNA(lh.LCP.DisplayValue),
		"cls":               displayOrNA(lh.CLS.DisplayValue),
		"mainThreadBlocked": displayOrNA(lh.TotalBlockingTime.DisplayValue),
		"unusedJsKiB":       int(lh.UnusedJavascript.Details.OverallSavingsKiB),
		"largeImageKiB":     int(lh.UsesOptimizedImages.Details.OverallSavingsKiB),
	}

	examples := make([]Example, 0, maxSectionExamples)
	for _, item := range lh.RenderBlockingResources.Details.Items {
		examples = append(examples, Example{URL: item.URL, Issue: "render-blocking resource"})
		if len(examples) == maxSectionExamples {
			break
		}
	}

	// A missing score fails safe: the section is flagged rather than passed.
	status := SectionNeedsFix
	score := 0.0
	if lh.Performance.Score != nil {
		score = *lh.Performance.Score
		if score >= 0.9 {
			status = SectionOK
		}
	}

	return Section{
		Status: status,
		Summary: fmt.Sprintf(
			"Mobile performance score is %.0f/100. Key metrics (LCP: %s) need review.",
			score*100, findings["lcp"],
		),
		Findings: findings,
		Examples: examples,
	}
}

func buildSecuritySection(domain string, sec SecurityFindings) Section {
	findings := map[string]any{
		"hsts":           sec.HSTS,
		"csp":            sec.CSP,
		"referrerPolicy": sec.ReferrerPolicy,
	}

	if sec.HSTS {
		return Section{
			Status:   SectionOK,
			Summary:  "Key security headers are present.",
			Findings: findings,
			Examples: []Example{},
		}
	}
	return Section{
		Status:   SectionNeedsFix,
		Summary:  "Key security headers are missing, including HSTS.",
		Findings: findings,
		Examples: []Example{{
			URL:   "https://" + domain,
			Issue: "missing Strict-Transport-Security (HSTS) header",
		}},
	}
}

// placeholderSection marks a section that is not computed yet, reserved for
// future extension.
func placeholderSection() Section {
	return Section{
		Status:   SectionNeedsReview,
		Summary:  "Not analyzed in this audit version.",
		Findings: map[string]any{},
		Examples: []Example{},
	}
}

func displayOrNA(v string) string {
	if v == "" {
		return "N/A"
	}
	return v
}
