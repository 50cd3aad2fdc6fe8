// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/audits for audit submission, plus per-task status, record,
//     export, and cancel endpoints under /v1/audits/{task_id}.
package api
