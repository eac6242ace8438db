// Package api hosts the optional status server. Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /status for the most recent run summary.
//   - GET /runs, /runs/{run_id} and /runs/{run_id}/sites for recent run history.
package api
