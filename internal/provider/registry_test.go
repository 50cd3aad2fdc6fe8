package provider

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/bipulgarera-droid/seo-audit-slides/internal/audit"
)

type stubAdapter struct{ source audit.Source }

func (s stubAdapter) Source() audit.Source { return s.source }

func (s stubAdapter) Fetch(context.Context, string, audit.FetchParams) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func TestRegistryLookup(t *testing.T) {
	reg, err := NewRegistry(
		stubAdapter{audit.SourceKeywords},
		stubAdapter{audit.SourceBacklinks},
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, err := reg.Adapter(audit.SourceKeywords); err != nil {
		t.Fatalf("Adapter(keywords): %v", err)
	}
	if _, err := reg.Adapter(audit.SourceTechnical); err == nil {
		t.Fatal("expected error for unregistered source")
	}
	sources := reg.Sources()
	if len(sources) != 2 || sources[0] != audit.SourceKeywords || sources[1] != audit.SourceBacklinks {
		t.Fatalf("unexpected sources: %v", sources)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(
		stubAdapter{audit.SourceKeywords},
		stubAdapter{audit.SourceKeywords},
	)
	if err == nil {
		t.Fatal("expected duplicate error")
	}
}

func TestRegistryRejectsUnknownSource(t *testing.T) {
	if _, err := NewRegistry(stubAdapter{audit.Source("social")}); err == nil {
		t.Fatal("expected unknown source error")
	}
}
