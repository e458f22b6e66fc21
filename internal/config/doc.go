// Package config handles configuration loading for chat-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from CHAT_GATEWAY_CONFIG environment variable
//  2. ~/.config/chat-gateway/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${CHAT_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	socket:
//	  handshake_timeout: "10s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # API and WebSocket upgrade
//
// Database:
//
//	database:
//	  path: "/var/lib/chat-gateway/chat.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${CHAT_JWT_SECRET}"  # Required
//	  token_ttl: "24h"                  # Dev token lifetime
//
// Socket transport:
//
//	socket:
//	  handshake_timeout: "10s"
//
// CORS:
//
//	cors:
//	  allowed_origins:
//	    - "https://app.example.com"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - Database path is set
//   - JWT secret is set
//   - Duration format validity
//   - Log level values
package config
