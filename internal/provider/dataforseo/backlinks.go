package dataforseo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bipulgarera-droid/seo-audit-slides/internal/audit"
)

const backlinksSummaryPath = "/backlinks/summary/live"

// BacklinksAdapter fetches the domain's backlink profile summary.
type BacklinksAdapter struct {
	client *Client
}

func NewBacklinksAdapter(client *Client) *BacklinksAdapter {
	return &BacklinksAdapter{client: client}
}

// Source implements audit.Adapter.
func (a *BacklinksAdapter) Source() audit.Source { return audit.SourceBacklinks }

type backlinksSummaryPayload struct {
	Target            string `json:"target"`
	IncludeSubdomains bool   `json:"include_subdomains"`
}

type backlinksSummaryResult struct {
	Rank               int `json:"rank"`
	Backlinks          int `json:"backlinks"`
	ReferringDomains   int `json:"referring_domains"`
	BacklinksSpamScore int `json:"backlinks_spam_score"`
}

// Fetch implements audit.Adapter.
func (a *BacklinksAdapter) Fetch(ctx context.Context, domain string, _ audit.FetchParams) (json.RawMessage, error) {
	results, err := a.client.post(ctx, audit.SourceBacklinks, backlinksSummaryPath, []backlinksSummaryPayload{{
		Target:            domain,
		IncludeSubdomains: true,
	}})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, audit.NewSourceError(audit.SourceBacklinks, audit.ErrKindInvalidResponse,
			fmt.Errorf("%s returned no result", backlinksSummaryPath))
	}
	var result backlinksSummaryResult
	if err := json.Unmarshal(results[0], &result); err != nil {
		return nil, audit.NewSourceError(audit.SourceBacklinks, audit.ErrKindInvalidResponse,
			fmt.Errorf("decode backlinks summary: %w", err))
	}

	payload := audit.BacklinksPayload{
		DomainRank:       result.Rank,
		TotalBacklinks:   result.Backlinks,
		ReferringDomains: result.ReferringDomains,
		SpamScore:        result.BacklinksSpamScore,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, audit.NewSourceError(audit.SourceBacklinks, audit.ErrKindUnknown,
			fmt.Errorf("marshal backlinks payload: %w", err))
	}
	return data, nil
}
