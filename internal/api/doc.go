// Package api hosts the HTTP server, middleware, and REST handlers. Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/scrape describes the API with an example request body.
//   - POST /api/scrape runs one bounded scrape and returns its result envelope.
package api
