// Package config provides configuration management for Warden.
//
// Configuration is loaded from a YAML file, merged with defaults, then
// optionally overridden from the environment, and finally validated.
// A process-wide singleton holds the active configuration; hot reload
// swaps it atomically.
//
// # Loading
//
//	cfg, err := config.LoadConfigWithEnvOverrides("warden.yaml")
//
// # Environment Overrides
//
// Environment variables follow the naming convention WARDEN_SECTION_FIELD.
// Examples:
//
//   - WARDEN_PROXY_LISTEN_ADDRESS overrides proxy.listen_address
//   - WARDEN_ENGINE_CONFIG_PATH overrides engine.config_path
//   - WARDEN_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Sections
//
// The root Config carries one sub-config per concern: the host proxy
// listener (Proxy), the rules-engine lifecycle (Engine), stream-filter
// buffering (Buffering), the notification dispatcher (Dispatch), policy
// sources (Policy), the transaction audit trail (Evidence), content
// signature scanning (Processing), request budgets and rate limits
// (Limits), observability (Telemetry), and TLS/auth (Security).
package config
