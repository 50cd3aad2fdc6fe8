package audit

import (
	"fmt"
	"net/url"
	"strings"
)

// Normalize validates the request and returns its canonical form: the target
// reduced to a bare lowercase host, the source set defaulted and de-duplicated.
// An empty source set means "all sources".
func (r AuditRequest) Normalize() (AuditRequest, error) {
	host, err := CanonicalHost(r.Domain)
	if err != nil {
		return AuditRequest{}, err
	}
	sources := r.Sources
	if len(sources) == 0 {
		sources = AllSources()
	}
	seen := make(map[Source]struct{}, len(sources))
	out := make([]Source, 0, len(sources))
	for _, s := range AllSources() {
		for _, req := range sources {
			if !req.Valid() {
				return AuditRequest{}, fmt.Errorf("%w: unknown source %q", ErrValidation, req)
			}
			if req != s {
				continue
			}
			if _, dup := seen[s]; !dup {
				seen[s] = struct{}{}
				out = append(out, s)
			}
		}
	}
	return AuditRequest{
		Domain:    host,
		Sources:   out,
		ProjectID: r.ProjectID,
		MaxPages:  r.MaxPages,
	}, nil
}

// CanonicalHost reduces a user-supplied target to a bare host: scheme, path,
// port, and a leading www label are stripped and the result is lowercased.
func CanonicalHost(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: domain is required", ErrValidation)
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("%w: invalid domain %q", ErrValidation, raw)
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if !strings.Contains(host, ".") {
		return "", fmt.Errorf("%w: invalid domain %q", ErrValidation, raw)
	}
	return host, nil
}
