package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bipulgarera-droid/seo-audit-slides/internal/audit"
)

// Slide is one rendered deck page.
type Slide struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Source string   `json:"source,omitempty"`
	Lines  []string `json:"lines,omitempty"`
}

// Artifact is the rendered deck. GeneratedAt mirrors the record's completion
// time, so rendering the same record twice yields identical artifacts.
type Artifact struct {
	TaskID      string    `json:"task_id"`
	Domain      string    `json:"domain"`
	Template    string    `json:"template"`
	GeneratedAt time.Time `json:"generated_at"`
	Slides      []Slide   `json:"slides"`
}

// Render builds the deck from a finalized record. Sections whose source
// failed or was not requested are omitted unless the template requires a
// complete record, in which case ErrIncompleteRecord is returned.
func Render(record audit.AuditRecord, tmpl Template) (Artifact, error) {
	if err := tmpl.Validate(); err != nil {
		return Artifact{}, err
	}
	if tmpl.RequireComplete {
		if len(record.Failed) > 0 {
			return Artifact{}, fmt.Errorf("%w: %d sources failed",
				audit.ErrIncompleteRecord, len(record.Failed))
		}
		for _, section := range tmpl.Sections {
			if section.Source == "" {
				continue
			}
			if _, ok := record.Payloads[section.Source]; !ok {
				return Artifact{}, fmt.Errorf("%w: source %s missing",
					audit.ErrIncompleteRecord, section.Source)
			}
		}
	}

	artifact := Artifact{
		TaskID:      record.TaskID,
		Domain:      record.Domain,
		Template:    tmpl.Name,
		GeneratedAt: record.CompletedAt,
		Slides:      make([]Slide, 0, len(tmpl.Sections)),
	}
	for _, section := range tmpl.Sections {
		slide, ok, err := renderSection(record, tmpl, section)
		if err != nil {
			return Artifact{}, err
		}
		if ok {
			artifact.Slides = append(artifact.Slides, slide)
		}
	}
	return artifact, nil
}

func renderSection(record audit.AuditRecord, tmpl Template, section Section) (Slide, bool, error) {
	slide := Slide{ID: section.ID, Title: section.Title, Source: string(section.Source)}
	if section.Source == "" {
		slide.Lines = renderStatic(record, tmpl, section)
		return slide, true, nil
	}
	payload, ok := record.Payloads[section.Source]
	if !ok {
		return Slide{}, false, nil
	}
	lines, err := renderSource(section.Source, payload)
	if err != nil {
		return Slide{}, false, fmt.Errorf("render section %s: %w", section.ID, err)
	}
	slide.Lines = lines
	return slide, true, nil
}

func renderStatic(record audit.AuditRecord, tmpl Template, section Section) []string {
	switch section.ID {
	case "cover":
		return []string{
			tmpl.Title,
			record.Domain,
			record.CompletedAt.Format("January 2, 2006"),
		}
	case "closing":
		return []string{"Thank you", record.Domain}
	default:
		return nil
	}
}

func renderSource(source audit.Source, payload json.RawMessage) ([]string, error) {
	switch source {
	case audit.SourceTechnical:
		return renderTechnical(payload)
	case audit.SourceKeywords:
		return renderKeywords(payload)
	case audit.SourceBacklinks:
		return renderBacklinks(payload)
	case audit.SourcePerformance:
		return renderPerformance(payload)
	default:
		return nil, fmt.Errorf("no renderer for source %q", source)
	}
}

func renderTechnical(payload json.RawMessage) ([]string, error) {
	var p audit.TechnicalPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode technical payload: %w", err)
	}
	lines := []string{
		fmt.Sprintf("On-page score: %.1f / 100", p.OnPageScore),
		fmt.Sprintf("Pages crawled: %d", p.PagesCrawled),
		fmt.Sprintf("SSL enabled: %s", yesNo(p.SSLEnabled)),
		fmt.Sprintf("Sitemap present: %s", yesNo(p.HasSitemap)),
	}
	issues := p.Issues
	if issues.BrokenLinks > 0 {
		lines = append(lines, fmt.Sprintf("Broken links: %d", issues.BrokenLinks))
	}
	if issues.DuplicateTitles > 0 {
		lines = append(lines, fmt.Sprintf("Duplicate titles: %d", issues.DuplicateTitles))
	}
	if issues.DuplicateDescription > 0 {
		lines = append(lines, fmt.Sprintf("Duplicate descriptions: %d", issues.DuplicateDescription))
	}
	if issues.NonIndexable > 0 {
		lines = append(lines, fmt.Sprintf("Non-indexable pages: %d", issues.NonIndexable))
	}
	if issues.RedirectChains > 0 {
		lines = append(lines, fmt.Sprintf("Redirect chains: %d", issues.RedirectChains))
	}
	return lines, nil
}

func renderKeywords(payload json.RawMessage) ([]string, error) {
	var p audit.KeywordsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode keywords payload: %w", err)
	}
	lines := []string{fmt.Sprintf("Ranking keywords: %d", p.RankCount)}
	if p.EstimatedTraffic > 0 {
		lines = append(lines, fmt.Sprintf("Estimated monthly traffic: %.0f", p.EstimatedTraffic))
	}
	top := p.Top
	if len(top) > 7 {
		top = top[:7]
	}
	for _, kw := range top {
		lines = append(lines, fmt.Sprintf("#%d %s (volume %d)", kw.Position, kw.Keyword, kw.SearchVolume))
	}
	return lines, nil
}

func renderBacklinks(payload json.RawMessage) ([]string, error) {
	var p audit.BacklinksPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode backlinks payload: %w", err)
	}
	return []string{
		fmt.Sprintf("Domain rank: %d", p.DomainRank),
		fmt.Sprintf("Total backlinks: %d", p.TotalBacklinks),
		fmt.Sprintf("Referring domains: %d", p.ReferringDomains),
		fmt.Sprintf("Spam score: %d", p.SpamScore),
	}, nil
}

func renderPerformance(payload json.RawMessage) ([]string, error) {
	var p audit.PerformancePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode performance payload: %w", err)
	}
	lines := []string{
		fmt.Sprintf("Performance score: %d / 100 (%s)", p.Score, p.Strategy),
		fmt.Sprintf("Accessibility: %d", p.Scores.Accessibility),
		fmt.Sprintf("Best practices: %d", p.Scores.BestPractices),
		fmt.Sprintf("SEO: %d", p.Scores.SEO),
	}
	if p.WebVitals.LCP != "" {
		lines = append(lines, fmt.Sprintf("Largest Contentful Paint: %s", p.WebVitals.LCP))
	}
	if p.WebVitals.CLS != "" {
		lines = append(lines, fmt.Sprintf("Cumulative Layout Shift: %s", p.WebVitals.CLS))
	}
	if p.WebVitals.TBT != "" {
		lines = append(lines, fmt.Sprintf("Total Blocking Time: %s", p.WebVitals.TBT))
	}
	return lines, nil
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
