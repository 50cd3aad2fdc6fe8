// Package export renders finalized audit records into slide-deck artifacts.
package export

import (
	"fmt"

	"github.com/bipulgarera-droid/seo-audit-slides/internal/audit"
)

// Section is one logical block of the deck. Sections with a Source render
// from that source's payload; sections without one are static.
type Section struct {
	ID     string       `json:"id"`
	Title  string       `json:"title"`
	Source audit.Source `json:"source,omitempty"`
}

// Template describes the deck layout for one export run.
type Template struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	// RequireComplete rejects records with any failed or missing source
	// instead of silently dropping their sections.
	RequireComplete bool      `json:"require_complete"`
	Sections        []Section `json:"sections"`
}

// Validate checks section ids are unique and sourced sections use known
// sources.
func (t Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: template name is required", audit.ErrValidation)
	}
	seen := make(map[string]struct{}, len(t.Sections))
	for _, section := range t.Sections {
		if section.ID == "" {
			return fmt.Errorf("%w: section id is required", audit.ErrValidation)
		}
		if _, dup := seen[section.ID]; dup {
			return fmt.Errorf("%w: duplicate section id %q", audit.ErrValidation, section.ID)
		}
		seen[section.ID] = struct{}{}
		if section.Source != "" && !section.Source.Valid() {
			return fmt.Errorf("%w: section %q references unknown source %q",
				audit.ErrValidation, section.ID, section.Source)
		}
	}
	return nil
}

// DefaultTemplate returns the standard audit deck layout: a cover, one
// section per data source, and a closing slide.
func DefaultTemplate() Template {
	return Template{
		Name:  "deep-audit",
		Title: "SEO Audit",
		Sections: []Section{
			{ID: "cover", Title: "SEO Audit"},
			{ID: "technical", Title: "Technical Health", Source: audit.SourceTechnical},
			{ID: "keywords", Title: "Organic Keywords", Source: audit.SourceKeywords},
			{ID: "backlinks", Title: "Backlink Profile", Source: audit.SourceBacklinks},
			{ID: "performance", Title: "Website Speed", Source: audit.SourcePerformance},
			{ID: "closing", Title: "Next Steps"},
		},
	}
}
