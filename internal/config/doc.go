// Package config provides configuration management for the notegate relay.
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. An optional YAML config file (config.yaml or configs/config.yaml)
//	3. Default values
//
// All environment variables follow the pattern NOTEGATE_* for namespacing:
//
//	NOTEGATE_SERVER_PORT=8080
//	NOTEGATE_ADMIN_PASSWORD=...
//	NOTEGATE_STORE_REPO=owner/name
//	NOTEGATE_STORE_TOKEN=...
//	NOTEGATE_LOGGING_LEVEL=info
//
// The store token may instead be supplied encrypted at rest
// (NOTEGATE_STORE_TOKEN_ENCRYPTED plus NOTEGATE_STORE_TOKEN_PASSPHRASE);
// see the security package.
package config
