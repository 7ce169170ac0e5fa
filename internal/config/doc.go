// Package config handles configuration loading for radius-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults; a missing config file
// simply yields the defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from RADIUS_GATEWAY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/radius-gateway/gateway.yaml
//  3. ~/.config/radius-gateway/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	runner:
//	  command: "${RAD_BIN}"
//
// Syntax: ${VAR_NAME}
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "localhost:8085"  # HTTP and SSE endpoints
//
// SSE tuning:
//
//	sse:
//	  keepalive_interval: "30s"  # comment frame cadence on idle streams
//	  queue_size: 64             # per-client pending message bound
//
// Runner:
//
//	runner:
//	  command: "rad"
//	  search_paths:              # probed when command is not on PATH
//	    - "/usr/local/bin"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Or fall back to defaults when no file exists:
//
//	cfg := config.Default()
package config
