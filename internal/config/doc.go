// Package config handles configuration loading for the mahakaal client.
//
// # Configuration File
//
// Location (first match wins):
//
//  1. Path from MAHAKAAL_CONFIG
//  2. $XDG_CONFIG_HOME/mahakaal/client.yaml
//  3. ~/.config/mahakaal/client.yaml
//
// A missing file is not an error for LoadOrDefault. Files ending in .toml
// are parsed as TOML; everything else as YAML.
//
// # Environment
//
// A .env file in the same directory is loaded first, without overriding
// variables already set. Values may then reference the environment:
//
//	backend:
//	  token: "${MAHAKAAL_TOKEN}"
//
// # Example
//
//	backend:
//	  base_url: "http://localhost:8000"
//	  request_timeout: "30s"
//	client:
//	  persist: true
//	  dedupe_ttl: "10m"
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//	metrics:
//	  enabled: false
//	  addr: "localhost:9090"
//	fake_backend:
//	  addr: "localhost:8000"
//	  database_path: "~/.local/share/mahakaal/chats.db"
//	  words_per_second: 20
package config
