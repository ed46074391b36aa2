/*
Package config provides configuration management for storagelite clients.

Configuration is layered: compiled-in defaults, then a YAML file, then
STORAGELITE_* environment variables, then whatever the caller sets in code.
Validate runs last and reports problems as configuration errors, before any
request is signed or sent.

# Usage Examples

	cfg := config.NewDefault()

	if err := cfg.LoadFromFile("/etc/storagelite/config.yaml"); err != nil {
		log.Fatal(err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		log.Fatal(err)
	}

	cfg.Client.MaxConcurrency = 16

	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

Configuration file format:

	global:
	  log_level: INFO
	  log_format: text
	  log_file: /var/log/storagelite/client.log
	  log_max_size: 100MB
	  log_max_backups: 3

	account:
	  name: devstoreaccount1
	  key: "<base64 account key>"
	  auth_scheme: shared_key
	  blob_endpoint: "https://devstoreaccount1.blob.core.windows.net"

	client:
	  max_concurrency: 8
	  max_retries: 3
	  base_retry_interval: 10s
	  chunk_size: 4MB
	  exceptions_enabled: true
	  transient_statuses: [408]
	  fatal_statuses: [501, 505]

	network:
	  timeouts:
	    connect: 10s
	    response_header: 60s

	monitoring:
	  metrics:
	    enabled: true
	    namespace: storagelite

Environment variable mapping:

	STORAGELITE_LOG_LEVEL="DEBUG"
	STORAGELITE_ACCOUNT_NAME="devstoreaccount1"
	STORAGELITE_ACCOUNT_KEY="..."
	STORAGELITE_MAX_CONCURRENCY="16"
	STORAGELITE_MAX_RETRIES="5"
	STORAGELITE_CHUNK_SIZE="8MB"
	STORAGELITE_EXCEPTIONS_ENABLED="false"

Sizes accept the usual binary suffixes (KB, MB, GB; 1MB = 1024*1024).
*/
package config
