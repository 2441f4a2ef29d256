// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes; readyz pings the store.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to enqueue a run, GET /v1/runs/{run_id} to read it back.
//   - GET /v1/discover?url= to find the feeds a site advertises.
package api
