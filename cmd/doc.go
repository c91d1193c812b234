// Package cmd defines the CLI commands of the dartsatlas-scraper executable.
//
// Architecture overview:
//   - Engine: internal/engine wraps every scrape invocation in a bounded retry loop (three attempts, fixed
//     cool-down). Each attempt opens its own fetch session (colly by default, headless Chrome when enabled), runs
//     a connectivity probe, and dispatches to a single-page fetch, a filtered search, or a multi-page crawl.
//   - Extraction: internal/extract turns listing HTML into tournament records through selector cascades and infers
//     pagination state; internal/entries counts participants on each tournament's entries page.
//   - Pacing: every outbound request goes through the token bucket in internal/policy/ratelimit.
//   - Persistence & fanout: internal/results writes the run document to the configured BlobStore
//     (memory/local/GCS), upserts rows to Postgres when a DSN is set, and publishes a completion event when a
//     Pub/Sub topic is configured.
//   - Configuration & plumbing: Viper populates config from an optional .env, a config file and SCRAPER_* env vars;
//     zap provides structured logging; Prometheus metrics are exported via /metrics.
//
// Commands:
//   - scrape: run once and print the result envelope as JSON; exits non-zero when the scrape fails.
//   - serve: expose POST /api/scrape until SIGINT/SIGTERM.
package cmd
