package export

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/bipulgarera-droid/seo-audit-slides/internal/audit"
)

const artifactContentType = "application/json"

// Exporter renders records and persists the resulting artifacts.
type Exporter struct {
	blobs      audit.BlobStore
	hasher     audit.Hasher
	blobPrefix string
	templates  map[string]Template
	logger     *zap.Logger
}

// NewExporter constructs an Exporter. The default template is always
// registered; extras may override it by name.
func NewExporter(blobs audit.BlobStore, hasher audit.Hasher, blobPrefix string, logger *zap.Logger, extras ...Template) (*Exporter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	templates := map[string]Template{}
	def := DefaultTemplate()
	templates[def.Name] = def
	for _, tmpl := range extras {
		if err := tmpl.Validate(); err != nil {
			return nil, fmt.Errorf("template %q: %w", tmpl.Name, err)
		}
		templates[tmpl.Name] = tmpl
	}
	return &Exporter{
		blobs:      blobs,
		hasher:     hasher,
		blobPrefix: strings.Trim(blobPrefix, "/"),
		templates:  templates,
		logger:     logger,
	}, nil
}

// Template resolves a registered template by name; the empty name selects
// the default.
func (e *Exporter) Template(name string) (Template, error) {
	if name == "" {
		name = DefaultTemplate().Name
	}
	tmpl, ok := e.templates[name]
	if !ok {
		return Template{}, fmt.Errorf("%w: unknown template %q", audit.ErrNotFound, name)
	}
	return tmpl, nil
}

// Export renders the record with the named template, writes the artifact to
// blob storage, and returns its URI alongside the artifact.
func (e *Exporter) Export(ctx context.Context, record audit.AuditRecord, templateName string) (string, Artifact, error) {
	tmpl, err := e.Template(templateName)
	if err != nil {
		return "", Artifact{}, err
	}
	artifact, err := Render(record, tmpl)
	if err != nil {
		return "", Artifact{}, err
	}
	data, err := json.Marshal(artifact)
	if err != nil {
		return "", Artifact{}, fmt.Errorf("marshal artifact: %w", err)
	}
	hash, err := e.hasher.Hash(data)
	if err != nil {
		return "", Artifact{}, fmt.Errorf("hash artifact: %w", err)
	}
	path := e.buildArtifactPath(record.TaskID, hash)
	uri, err := e.blobs.PutObject(ctx, path, artifactContentType, data)
	if err != nil {
		return "", Artifact{}, fmt.Errorf("put artifact: %w", err)
	}
	e.logger.Info("artifact exported",
		zap.String("task_id", record.TaskID),
		zap.String("template", tmpl.Name),
		zap.String("uri", uri),
		zap.Int("slides", len(artifact.Slides)),
	)
	return uri, artifact, nil
}

func (e *Exporter) buildArtifactPath(taskID, hash string) string {
	if e.blobPrefix == "" {
		return fmt.Sprintf("%s/%s.json", taskID, hash)
	}
	return fmt.Sprintf("%s/%s/%s.json", e.blobPrefix, taskID, hash)
}
