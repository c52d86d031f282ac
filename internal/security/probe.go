// Package security implements the independent security-header probe that
// runs alongside the provider detail fetches during aggregation.
package security

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mjaros/seo-auditor/internal/audit"
)

// Config controls Prober behavior.
type Config struct {
	Timeout time.Duration
}

// Prober issues a single HEAD request against the audited domain and
// inspects its response headers. Probe failures degrade to an all-false
// result instead of failing the audit.
type Prober struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// New constructs a Prober. A nil httpClient gets a default client bounded by
// cfg.Timeout; tests inject their own.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) *Prober {
	if cfg.Timeout == 0 {
		cfg.Timeout = 8 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{httpClient: httpClient, logger: logger}
}

// Probe checks for HSTS, CSP and Referrer-Policy headers on the domain's
// root page, following redirects. It never returns an error.
func (p *Prober) Probe(ctx context.Context, domain string) audit.SecurityFindings {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, "https://"+domain, nil)
	if err != nil {
		p.logger.Warn("security probe request build failed",
			zap.String("domain", domain),
			zap.Error(err),
		)
		return audit.SecurityFindings{}
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warn("security probe failed",
			zap.String("domain", domain),
			zap.Error(err),
		)
		return audit.SecurityFindings{}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			p.logger.Warn("close probe response body", zap.Error(closeErr))
		}
	}()

	return audit.SecurityFindings{
		HSTS:           resp.Header.Get("Strict-Transport-Security") != "",
		CSP:            resp.Header.Get("Content-Security-Policy") != "",
		ReferrerPolicy: resp.Header.Get("Referrer-Policy") != "",
	}
}
