// Package config provides configuration management for the billing server.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (highest priority)
//  2. YAML configuration file
//  3. Default values (lowest priority)
//
// Supported environment variables:
//   - BILLING_HTTP_PORT: HTTP server port (1-65535)
//   - BILLING_LOG_LEVEL: Log level (debug, info, warn, error)
//   - BILLING_API_TIMEOUT: Provider API timeout in seconds
//   - BILLING_SHUTDOWN_TIMEOUT: Graceful shutdown budget in seconds
//
// Example configuration file (config.yaml):
//
//	http_port: 8080
//	log_level: "info"
//	api_timeout: 30
//	shutdown_timeout: 10
//
// Provider credentials are deliberately not configurable here: the server is
// stateless and credentials arrive with each API request.
package config
