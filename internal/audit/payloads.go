package audit

// Typed payload shapes produced by the provider adapters and consumed by the
// report exporter. FetchResult and AuditRecord carry them as raw JSON so the
// orchestration core stays payload-agnostic.

// TechnicalPayload summarizes an on-page crawl of the target domain.
type TechnicalPayload struct {
	OnPageScore  float64      `json:"onpage_score"`
	PagesCrawled int          `json:"pages_crawled"`
	SSLEnabled   bool         `json:"ssl_enabled"`
	HasSitemap   bool         `json:"has_sitemap"`
	Issues       IssueCounts  `json:"issues"`
	Pages        []PageReport `json:"pages,omitempty"`
}

// IssueCounts tallies site-wide technical problems.
type IssueCounts struct {
	BrokenLinks          int `json:"broken_links"`
	BrokenImages         int `json:"broken_images"`
	DuplicateTitles      int `json:"duplicate_titles"`
	DuplicateDescription int `json:"duplicate_descriptions"`
	DuplicateContent     int `json:"duplicate_content"`
	NonIndexable         int `json:"non_indexable"`
	RedirectChains       int `json:"redirect_chains"`
}

// PageReport captures per-page findings from the crawl.
type PageReport struct {
	URL         string  `json:"url"`
	StatusCode  int     `json:"status_code"`
	OnPageScore float64 `json:"onpage_score"`
	Title       string  `json:"title,omitempty"`
	NoH1        bool    `json:"no_h1,omitempty"`
	LoadTimeMs  int     `json:"load_time_ms,omitempty"`
}

// KeywordsPayload summarizes organic keyword rankings.
type KeywordsPayload struct {
	RankCount        int             `json:"rank_count"`
	EstimatedTraffic float64         `json:"estimated_traffic,omitempty"`
	Top              []RankedKeyword `json:"top,omitempty"`
}

// RankedKeyword is one organic ranking entry.
type RankedKeyword struct {
	Keyword      string  `json:"keyword"`
	Position     int     `json:"position"`
	SearchVolume int     `json:"search_volume"`
	CPC          float64 `json:"cpc,omitempty"`
}

// BacklinksPayload summarizes the backlink profile.
type BacklinksPayload struct {
	DomainRank       int `json:"domain_rank"`
	TotalBacklinks   int `json:"total_backlinks"`
	ReferringDomains int `json:"referring_domains"`
	SpamScore        int `json:"spam_score"`
}

// PerformancePayload carries Lighthouse category scores and lab metrics.
type PerformancePayload struct {
	Score     int               `json:"score"`
	Strategy  string            `json:"strategy"`
	Scores    CategoryScores    `json:"scores"`
	WebVitals PerformanceVitals `json:"web_vitals"`
}

// CategoryScores are the four Lighthouse category scores (0-100).
type CategoryScores struct {
	Performance   int `json:"performance"`
	Accessibility int `json:"accessibility"`
	BestPractices int `json:"best_practices"`
	SEO           int `json:"seo"`
}

// PerformanceVitals are the lab core web vitals.
type PerformanceVitals struct {
	FCP        string `json:"fcp,omitempty"`
	LCP        string `json:"lcp,omitempty"`
	CLS        string `json:"cls,omitempty"`
	TBT        string `json:"tbt,omitempty"`
	SpeedIndex string `json:"speed_index,omitempty"`
}
