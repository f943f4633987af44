// Package metrics exposes Prometheus counters for the chat exchange pipeline.
//
// A nil *Metrics is valid and records nothing, so components take one
// unconditionally and tests can pass nil.
//
// Exported series:
//
//	mahakaal_exchanges_total{outcome="completed|failed|superseded"}
//	mahakaal_exchange_duration_seconds{outcome=...}
//	mahakaal_stream_events_total{kind="status|log|history_append|answer|error"}
//	mahakaal_parse_failures_total
//	mahakaal_persist_total{result="saved|skipped|failed"}
package metrics
