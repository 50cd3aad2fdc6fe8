package dataforseo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bipulgarera-droid/seo-audit-slides/internal/audit"
)

const (
	rankedKeywordsPath  = "/dataforseo_labs/google/ranked_keywords/live"
	defaultLocationCode = 2356
	defaultLanguage     = "en"
	defaultKeywordLimit = 100
)

// KeywordsAdapter fetches the keywords a domain currently ranks for from
// the DataForSEO Labs live endpoint.
type KeywordsAdapter struct {
	client       *Client
	locationCode int
	limit        int
}

// NewKeywordsAdapter constructs the adapter. Zero locationCode and limit
// select the defaults.
func NewKeywordsAdapter(client *Client, locationCode, limit int) *KeywordsAdapter {
	if locationCode <= 0 {
		locationCode = defaultLocationCode
	}
	if limit <= 0 {
		limit = defaultKeywordLimit
	}
	return &KeywordsAdapter{client: client, locationCode: locationCode, limit: limit}
}

// Source implements audit.Adapter.
func (a *KeywordsAdapter) Source() audit.Source { return audit.SourceKeywords }

type rankedKeywordsPayload struct {
	Target       string `json:"target"`
	LanguageCode string `json:"language_code"`
	LocationCode int    `json:"location_code"`
	Limit        int    `json:"limit"`
}

type rankedKeywordsResult struct {
	TotalCount int `json:"total_count"`
	Metrics    struct {
		Organic struct {
			ETV float64 `json:"etv"`
		} `json:"organic"`
	} `json:"metrics"`
	Items []struct {
		KeywordData struct {
			Keyword     string `json:"keyword"`
			KeywordInfo struct {
				SearchVolume int     `json:"search_volume"`
				CPC          float64 `json:"cpc"`
			} `json:"keyword_info"`
		} `json:"keyword_data"`
		RankedSERPElement struct {
			SERPItem struct {
				RankAbsolute int `json:"rank_absolute"`
			} `json:"serp_item"`
		} `json:"ranked_serp_element"`
	} `json:"items"`
}

// Fetch implements audit.Adapter.
func (a *KeywordsAdapter) Fetch(ctx context.Context, domain string, _ audit.FetchParams) (json.RawMessage, error) {
	results, err := a.client.post(ctx, audit.SourceKeywords, rankedKeywordsPath, []rankedKeywordsPayload{{
		Target:       domain,
		LanguageCode: defaultLanguage,
		LocationCode: a.locationCode,
		Limit:        a.limit,
	}})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, audit.NewSourceError(audit.SourceKeywords, audit.ErrKindInvalidResponse,
			fmt.Errorf("%s returned no result", rankedKeywordsPath))
	}
	var result rankedKeywordsResult
	if err := json.Unmarshal(results[0], &result); err != nil {
		return nil, audit.NewSourceError(audit.SourceKeywords, audit.ErrKindInvalidResponse,
			fmt.Errorf("decode ranked keywords: %w", err))
	}

	payload := audit.KeywordsPayload{
		RankCount:        result.TotalCount,
		EstimatedTraffic: result.Metrics.Organic.ETV,
		Top:              make([]audit.RankedKeyword, 0, len(result.Items)),
	}
	for _, item := range result.Items {
		payload.Top = append(payload.Top, audit.RankedKeyword{
			Keyword:      item.KeywordData.Keyword,
			Position:     item.RankedSERPElement.SERPItem.RankAbsolute,
			SearchVolume: item.KeywordData.KeywordInfo.SearchVolume,
			CPC:          item.KeywordData.KeywordInfo.CPC,
		})
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, audit.NewSourceError(audit.SourceKeywords, audit.ErrKindUnknown,
			fmt.Errorf("marshal keywords payload: %w", err))
	}
	return data, nil
}
