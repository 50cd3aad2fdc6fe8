// Package aggregate merges adapter fetch results into a single audit record.
package aggregate

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/bipulgarera-droid/seo-audit-slides/internal/audit"
)

// Build combines the full set of FetchResults gathered for a task into an
// AuditRecord. The output depends only on the result set, not its arrival
// order: payloads are keyed by source and the failed list is sorted by source
// identifier. A set with zero successes is valid and yields a record with an
// empty payload mapping.
func Build(taskID, domain string, results []audit.FetchResult, completedAt time.Time) audit.AuditRecord {
	record := audit.AuditRecord{
		TaskID:      taskID,
		Domain:      domain,
		Payloads:    make(map[audit.Source]json.RawMessage, len(results)),
		Failed:      make([]audit.FailedSource, 0),
		CompletedAt: completedAt,
	}
	bySource := make(map[audit.Source]audit.FetchResult, len(results))
	for _, res := range results {
		prev, seen := bySource[res.Source]
		// A source appears at most once; if duplicates slip in, a success
		// beats a failure and otherwise the later timestamp wins.
		if seen && prev.Success && !res.Success {
			continue
		}
		if seen && prev.Success == res.Success && res.FetchedAt.Before(prev.FetchedAt) {
			continue
		}
		bySource[res.Source] = res
	}
	for src, res := range bySource {
		if res.Success {
			record.Payloads[src] = res.Payload
			continue
		}
		record.Failed = append(record.Failed, audit.FailedSource{
			Source:    src,
			ErrorKind: res.ErrorKind,
			ErrorText: res.ErrorText,
		})
	}
	sort.Slice(record.Failed, func(i, j int) bool {
		return record.Failed[i].Source < record.Failed[j].Source
	})
	return record
}
