// Package config provides centralized configuration management for the
// qcsync data synchronization client. It handles loading configuration from
// multiple sources, validation, and the canonical filesystem layout.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. YAML configuration file
//	3. Default values (lowest priority)
//
// All environment variables follow the pattern QCSYNC_* for namespacing:
//
//	QCSYNC_API_KEY=...
//	QCSYNC_API_UUID=...
//	QCSYNC_SYNC_DATA_DIR=/srv/stock_data
//	QCSYNC_SYNC_MODE=all
//	QCSYNC_LOGGING_LEVEL=info
//
// Product and strategy whitelists are YAML-only because they are structured
// lists. The loaded Config is immutable: components receive the sections they
// need at construction time and never consult ambient globals.
package config
