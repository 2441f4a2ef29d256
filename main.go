// The main package for the techradar executable.
//
// Subcommands:
//   - worker: claims queued runs from the job table and executes them.
//   - serve: the ops HTTP API (healthz, readyz, metrics, /v1/runs, /v1/discover), by default
//     with the worker loop in the same process.
//   - migrate up|down: applies the embedded Postgres schema.
//   - enqueue: creates a run from flags; --wait processes it in-process.
//   - discover <url>: prints the feeds a site advertises.
//
// Configuration comes from an optional YAML file (--config) overlaid by TECHRADAR_* env vars.
// With db.dsn unset every service runs against the in-memory store.
package main

import "github.com/JakeFAU/techradar/cmd"

func main() {
	cmd.Execute()
}
