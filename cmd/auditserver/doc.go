// Package main hosts the audit service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, and audit management endpoints. Requests are validated,
//     normalized into audit tasks by the tracker, and persisted via the TaskStore before being enqueued for work.
//   - Dispatcher & queue: accepted audits flow through a bounded in-memory queue sized by config.Audit.QueueDepth and
//     are fanned out to a fixed worker pool sized by config.Audit.Workers. Context cancellation stops workers cleanly
//     on shutdown.
//   - Fetch pipeline: each worker fans an audit out to the registered source adapters in parallel (DataForSEO on-page
//     crawl, ranked keywords, and backlinks summary, plus PageSpeed Insights), bounded by a per-source timeout and a
//     token bucket per provider. Transient failures get exactly one retry; permanent ones fail fast.
//   - Persistence & fanout: per-source results are aggregated into a durable AuditRecord, the task's sub-status map is
//     updated through compare-and-set writes, and a compact Pub/Sub notification is published when a topic is
//     configured. Slide-deck exports render the record into a deterministic artifact stored in GCS. Progress events
//     are buffered and sent to configured sinks for monitoring.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     metrics are exported via the progress sink and the /metrics handler. Task and record persistence can run
//     in-memory or on Postgres depending on the configured DSN. The service is stateless across requests, suitable
//     for Cloud Run scale-out.
//
// Operational notes:
//   - Concurrency model: bounded queue + fixed worker pool, with one goroutine per source inside a task. Shutdown is
//     coordinated via context cancellation propagated from main through dispatcher to workers; tasks can also be
//     aborted individually through the cancel endpoint.
//   - Rate limiting/backoff: every provider call passes a shared token bucket keyed by provider, so the DataForSEO
//     adapters drain one budget while PageSpeed drains another. Retry delay for transient failures is configurable.
//   - Observability: zap logs carry task IDs and domains at key transitions; Prometheus counters/histograms track task
//     and source activity; the progress Hub batches lifecycle events for downstream sinks.
//   - Cloud Run: the HTTP server listens on the configured port. Health endpoints (/healthz, /readyz) remain
//     lightweight; the process reacts to SIGTERM for graceful drain with in-flight work bounded by per-source
//     timeouts.
//
// Quick checklist:
//   - Configure env vars: AUDIT_SERVER_PORT, AUDIT_AUDIT_WORKERS, AUDIT_PROVIDERS_DATAFORSEO_LOGIN/PASSWORD,
//     AUDIT_PROVIDERS_PAGESPEED_API_KEY, storage (AUDIT_STORAGE_*), pubsub, and the database DSN when persistence
//     beyond memory is required.
//   - Run locally: go run ./cmd/auditserver -config config.yaml (or rely solely on env overrides).
//   - Cloud Run: container listens on the configured port, remains stateless across requests, and shuts down cleanly
//     on SIGTERM.
package main
