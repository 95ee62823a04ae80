// Package tapjotform is a Singer tap for the Jotform REST API. It extracts
// forms, questions, submissions, reports, user history and folders and writes
// them as SCHEMA, RECORD and STATE messages.
//
// # Architecture
//
// A sync is a single pass over the streams in a fixed order. Each stream is a
// configuration record (path, keys, schema) composed with a few functions that
// parse and reshape its pages; there is no per-entity type hierarchy.
//
//	cmd/tap-jotform              - CLI: sync, discover, streams, version
//	internal/pipeline            - Runs streams, nests children, writes messages
//	pkg/connector/core           - Stream model and the Source interface
//	pkg/connector/sources/jotform - The six Jotform streams
//	pkg/clients                  - REST client, rate limiter, response cache
//	pkg/singer                   - Message writer and catalog
//	pkg/state                    - Bookmarks on disk or in S3
//
// # Quick Start
//
//	tap-jotform discover > catalog.json
//	tap-jotform sync --config config.json --catalog catalog.json \
//	    --state state.json --state-output state.json > messages.jsonl
//
// # Incremental Extraction
//
// Forms and submissions are replicated on updated_at. The highest value seen
// is saved per stream and sent back as a greater-than filter on the next run;
// start_date is the lower bound when no bookmark exists yet.
//
// # Configuration
//
// Configuration is a JSON or YAML file with TAP_JOTFORM_* environment
// overrides. Only api_key is required:
//
//	api_key: ${JOTFORM_API_KEY}
//	start_date: "2021-01-01T00:00:00Z"
//	requests_cache:
//	  enabled: true
//	  config:
//	    expire_after: 3600
package tapjotform
