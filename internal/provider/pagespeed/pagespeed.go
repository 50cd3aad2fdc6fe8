// Package pagespeed implements the performance adapter on top of the Google
// PageSpeed Insights v5 API.
package pagespeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/bipulgarera-droid/seo-audit-slides/internal/audit"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/policy/ratelimit"
)

// ProviderKey is the rate-limit bucket for PageSpeed requests.
const ProviderKey = "pagespeed"

const (
	defaultBaseURL  = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"
	defaultStrategy = "mobile"
)

// Config captures the connection parameters for the adapter.
type Config struct {
	BaseURL  string
	APIKey   string
	Strategy string
	Timeout  time.Duration
}

// Adapter fetches Lighthouse category scores and lab web vitals for the
// domain's landing page.
type Adapter struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	strategy   string
	limiter    *ratelimit.Limiter
	logger     *zap.Logger
}

// New constructs the adapter. The limiter may be nil to disable request
// budgeting (tests).
func New(cfg Config, limiter *ratelimit.Limiter, logger *zap.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Strategy == "" {
		cfg.Strategy = defaultStrategy
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		strategy:   cfg.Strategy,
		limiter:    limiter,
		logger:     logger,
	}
}

// Source implements audit.Adapter.
func (a *Adapter) Source() audit.Source { return audit.SourcePerformance }

type lighthouseResponse struct {
	LighthouseResult struct {
		Categories map[string]struct {
			Score float64 `json:"score"`
		} `json:"categories"`
		Audits map[string]struct {
			DisplayValue string `json:"displayValue"`
		} `json:"audits"`
	} `json:"lighthouseResult"`
}

// Fetch implements audit.Adapter.
func (a *Adapter) Fetch(ctx context.Context, domain string, _ audit.FetchParams) (json.RawMessage, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx, ProviderKey); err != nil {
			return nil, audit.NewSourceError(audit.SourcePerformance, audit.Classify(err), err)
		}
	}

	query := url.Values{}
	query.Set("url", "https://"+domain)
	query.Set("strategy", a.strategy)
	for _, category := range []string{"performance", "accessibility", "best-practices", "seo"} {
		query.Add("category", category)
	}
	if a.apiKey != "" {
		query.Set("key", a.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, audit.NewSourceError(audit.SourcePerformance, audit.ErrKindUnknown,
			fmt.Errorf("build request: %w", err))
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		kind := audit.ErrKindNetwork
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = audit.ErrKindTimeout
		}
		return nil, audit.NewSourceError(audit.SourcePerformance, kind, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return nil, audit.NewSourceError(audit.SourcePerformance, audit.ErrKindAuth,
			fmt.Errorf("pagespeed returned HTTP %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, audit.NewSourceError(audit.SourcePerformance, audit.ErrKindRateLimited,
			fmt.Errorf("pagespeed returned HTTP %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return nil, audit.NewSourceError(audit.SourcePerformance, audit.ErrKindNetwork,
			fmt.Errorf("pagespeed returned HTTP %d", resp.StatusCode))
	default:
		return nil, audit.NewSourceError(audit.SourcePerformance, audit.ErrKindInvalidResponse,
			fmt.Errorf("pagespeed returned HTTP %d", resp.StatusCode))
	}

	var body lighthouseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, audit.NewSourceError(audit.SourcePerformance, audit.ErrKindInvalidResponse,
			fmt.Errorf("decode pagespeed response: %w", err))
	}
	if len(body.LighthouseResult.Categories) == 0 {
		return nil, audit.NewSourceError(audit.SourcePerformance, audit.ErrKindInvalidResponse,
			errors.New("pagespeed response missing lighthouse categories"))
	}

	payload := audit.PerformancePayload{
		Strategy: a.strategy,
		Scores: audit.CategoryScores{
			Performance:   categoryScore(body, "performance"),
			Accessibility: categoryScore(body, "accessibility"),
			BestPractices: categoryScore(body, "best-practices"),
			SEO:           categoryScore(body, "seo"),
		},
		WebVitals: audit.PerformanceVitals{
			FCP:        auditDisplay(body, "first-contentful-paint"),
			LCP:        auditDisplay(body, "largest-contentful-paint"),
			CLS:        auditDisplay(body, "cumulative-layout-shift"),
			TBT:        auditDisplay(body, "total-blocking-time"),
			SpeedIndex: auditDisplay(body, "speed-index"),
		},
	}
	payload.Score = payload.Scores.Performance

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, audit.NewSourceError(audit.SourcePerformance, audit.ErrKindUnknown,
			fmt.Errorf("marshal performance payload: %w", err))
	}
	return data, nil
}

// categoryScore converts Lighthouse's 0-1 score to the 0-100 scale.
func categoryScore(body lighthouseResponse, name string) int {
	cat, ok := body.LighthouseResult.Categories[name]
	if !ok {
		return 0
	}
	return int(math.Round(cat.Score * 100))
}

func auditDisplay(body lighthouseResponse, name string) string {
	return body.LighthouseResult.Audits[name].DisplayValue
}
