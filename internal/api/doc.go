// Package api hosts the HTTP server, middleware, and handlers for the preview
// service. Notable routes:
//   - GET /?url=... (and any other path) returns the preview record for url.
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
package api
