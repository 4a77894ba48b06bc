// Package api hosts the HTTP server, middleware, and REST handlers for the
// lead scraper. Routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/leads to scrape a URL list synchronously (JSON, CSV or XLSX out).
//   - GET /v1/leads/{batch_id} to re-download a batch run by this process.
package api
