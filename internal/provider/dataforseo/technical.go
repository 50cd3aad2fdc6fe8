package dataforseo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bipulgarera-droid/seo-audit-slides/internal/audit"
)

const (
	defaultPollInterval   = 10 * time.Second
	defaultMaxCrawlPages  = 200
	taskPostPath          = "/on_page/task_post"
	summaryPathPrefix     = "/on_page/summary/"
	crawlProgressFinished = "finished"
)

// TechnicalAdapter runs an on-page crawl: it posts an asynchronous crawl
// task and polls the summary endpoint until the crawl finishes or the
// caller's context expires.
type TechnicalAdapter struct {
	client       *Client
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewTechnicalAdapter constructs the adapter. A zero pollInterval selects
// the default.
func NewTechnicalAdapter(client *Client, pollInterval time.Duration, logger *zap.Logger) *TechnicalAdapter {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TechnicalAdapter{client: client, pollInterval: pollInterval, logger: logger}
}

// Source implements audit.Adapter.
func (a *TechnicalAdapter) Source() audit.Source { return audit.SourceTechnical }

type taskPostPayload struct {
	Target                 string `json:"target"`
	MaxCrawlPages          int    `json:"max_crawl_pages"`
	LoadResources          bool   `json:"load_resources"`
	EnableJavascript       bool   `json:"enable_javascript"`
	EnableBrowserRendering bool   `json:"enable_browser_rendering"`
	StoreRawHTML           bool   `json:"store_raw_html"`
}

type summaryResult struct {
	CrawlProgress string `json:"crawl_progress"`
	DomainInfo    struct {
		SSL     bool `json:"ssl"`
		Sitemap bool `json:"sitemap"`
	} `json:"domain_info"`
	PagesCrawled int `json:"pages_crawled"`
	PagesInQueue int `json:"pages_in_queue"`
	PageMetrics  struct {
		OnPageScore  float64 `json:"onpage_score"`
		BrokenLinks  int     `json:"broken_links"`
		NonIndexable int     `json:"non_indexable"`
		Checks       struct {
			BrokenResources      int `json:"broken_resources"`
			DuplicateTitle       int `json:"duplicate_title"`
			DuplicateDescription int `json:"duplicate_description"`
			DuplicateContent     int `json:"duplicate_content"`
			RedirectChain        int `json:"redirect_chain"`
		} `json:"checks"`
	} `json:"page_metrics"`
}

// Fetch implements audit.Adapter.
func (a *TechnicalAdapter) Fetch(ctx context.Context, domain string, params audit.FetchParams) (json.RawMessage, error) {
	maxPages := params.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxCrawlPages
	}
	taskID, err := a.client.postTask(ctx, audit.SourceTechnical, taskPostPath, []taskPostPayload{{
		Target:        domain,
		MaxCrawlPages: maxPages,
	}})
	if err != nil {
		return nil, err
	}
	a.logger.Debug("crawl task posted",
		zap.String("domain", domain),
		zap.String("provider_task_id", taskID),
	)
	summary, err := a.awaitSummary(ctx, taskID)
	if err != nil {
		return nil, err
	}

	payload := audit.TechnicalPayload{
		OnPageScore:  summary.PageMetrics.OnPageScore,
		PagesCrawled: summary.PagesCrawled,
		SSLEnabled:   summary.DomainInfo.SSL,
		HasSitemap:   summary.DomainInfo.Sitemap,
		Issues: audit.IssueCounts{
			BrokenLinks:          summary.PageMetrics.BrokenLinks,
			BrokenImages:         summary.PageMetrics.Checks.BrokenResources,
			DuplicateTitles:      summary.PageMetrics.Checks.DuplicateTitle,
			DuplicateDescription: summary.PageMetrics.Checks.DuplicateDescription,
			DuplicateContent:     summary.PageMetrics.Checks.DuplicateContent,
			NonIndexable:         summary.PageMetrics.NonIndexable,
			RedirectChains:       summary.PageMetrics.Checks.RedirectChain,
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, audit.NewSourceError(audit.SourceTechnical, audit.ErrKindUnknown,
			fmt.Errorf("marshal technical payload: %w", err))
	}
	return data, nil
}

// awaitSummary polls until the crawl reports finished. The caller's context
// bounds the wait; expiry surfaces as a timeout-kind source error.
func (a *TechnicalAdapter) awaitSummary(ctx context.Context, taskID string) (summaryResult, error) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			kind := audit.ErrKindTimeout
			if errors.Is(ctx.Err(), context.Canceled) {
				kind = audit.ErrKindUnknown
			}
			return summaryResult{}, audit.NewSourceError(audit.SourceTechnical, kind,
				fmt.Errorf("await crawl summary: %w", ctx.Err()))
		case <-ticker.C:
		}
		results, err := a.client.get(ctx, audit.SourceTechnical, summaryPathPrefix+taskID)
		if err != nil {
			return summaryResult{}, err
		}
		if len(results) == 0 {
			continue
		}
		var summary summaryResult
		if err := json.Unmarshal(results[0], &summary); err != nil {
			return summaryResult{}, audit.NewSourceError(audit.SourceTechnical, audit.ErrKindInvalidResponse,
				fmt.Errorf("decode crawl summary: %w", err))
		}
		if summary.CrawlProgress == crawlProgressFinished ||
			(summary.PagesInQueue == 0 && summary.PagesCrawled > 0) {
			return summary, nil
		}
		a.logger.Debug("crawl in progress",
			zap.String("provider_task_id", taskID),
			zap.Int("pages_crawled", summary.PagesCrawled),
			zap.Int("pages_in_queue", summary.PagesInQueue),
		)
	}
}
