package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/storagelite/storagelite/pkg/errors"
)

// Test Constants
const (
	TestDebugLevel  = "DEBUG"
	TestAccountName = "devstoreaccount1"
	TestAccountKey  = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="
)

func validConfig() *Configuration {
	cfg := NewDefault()
	cfg.Account.Name = TestAccountName
	cfg.Account.Key = TestAccountKey
	return cfg
}

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	if cfg.Global.LogLevel != "INFO" {
		t.Errorf("Expected LogLevel to be INFO, got %s", cfg.Global.LogLevel)
	}
	if cfg.Account.AuthScheme != AuthSharedKey {
		t.Errorf("Expected AuthScheme to be %s, got %s", AuthSharedKey, cfg.Account.AuthScheme)
	}
	if cfg.Client.MaxConcurrency != 8 {
		t.Errorf("Expected MaxConcurrency to be 8, got %d", cfg.Client.MaxConcurrency)
	}
	if cfg.Client.MaxRetries != 3 {
		t.Errorf("Expected MaxRetries to be 3, got %d", cfg.Client.MaxRetries)
	}
	if cfg.Client.BaseRetryInterval != 10*time.Second {
		t.Errorf("Expected BaseRetryInterval to be 10s, got %v", cfg.Client.BaseRetryInterval)
	}
	if !cfg.Client.ExceptionsEnabled {
		t.Error("Expected ExceptionsEnabled to be true")
	}

	size, err := cfg.ChunkSizeBytes()
	if err != nil {
		t.Fatalf("ChunkSizeBytes() error = %v", err)
	}
	if size != 4*1024*1024 {
		t.Errorf("Expected chunk size of 4MiB, got %d", size)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		config   func() *Configuration
		wantErr  bool
		wantCode errors.ErrorCode
		errMsg   string
	}{
		{
			name:    "valid config",
			config:  validConfig,
			wantErr: false,
		},
		{
			name: "missing account name",
			config: func() *Configuration {
				cfg := validConfig()
				cfg.Account.Name = ""
				return cfg
			},
			wantErr:  true,
			wantCode: errors.ErrCodeCredentialsMissing,
		},
		{
			name: "missing shared key",
			config: func() *Configuration {
				cfg := validConfig()
				cfg.Account.Key = ""
				return cfg
			},
			wantErr:  true,
			wantCode: errors.ErrCodeCredentialsMissing,
		},
		{
			name: "sigv4 without key uses ambient credentials",
			config: func() *Configuration {
				cfg := validConfig()
				cfg.Account.AuthScheme = AuthSigV4
				cfg.Account.Key = ""
				return cfg
			},
			wantErr: false,
		},
		{
			name: "unknown auth scheme",
			config: func() *Configuration {
				cfg := validConfig()
				cfg.Account.AuthScheme = "sas"
				return cfg
			},
			wantErr: true,
			errMsg:  "invalid auth_scheme",
		},
		{
			name: "invalid endpoint",
			config: func() *Configuration {
				cfg := validConfig()
				cfg.Account.BlobEndpoint = "not a url"
				return cfg
			},
			wantErr: true,
			errMsg:  "invalid endpoint",
		},
		{
			name: "invalid max concurrency",
			config: func() *Configuration {
				cfg := validConfig()
				cfg.Client.MaxConcurrency = 0
				return cfg
			},
			wantErr: true,
			errMsg:  "max_concurrency must be greater than 0",
		},
		{
			name: "negative retries",
			config: func() *Configuration {
				cfg := validConfig()
				cfg.Client.MaxRetries = -1
				return cfg
			},
			wantErr: true,
			errMsg:  "max_retries",
		},
		{
			name: "invalid chunk size",
			config: func() *Configuration {
				cfg := validConfig()
				cfg.Client.ChunkSize = "big"
				return cfg
			},
			wantErr: true,
			errMsg:  "chunk_size",
		},
		{
			name: "zero chunk size",
			config: func() *Configuration {
				cfg := validConfig()
				cfg.Client.ChunkSize = "0"
				return cfg
			},
			wantErr: true,
			errMsg:  "chunk_size must be greater than 0",
		},
		{
			name: "invalid log level",
			config: func() *Configuration {
				cfg := validConfig()
				cfg.Global.LogLevel = "INVALID"
				return cfg
			},
			wantErr: true,
			errMsg:  "invalid log_level",
		},
		{
			name: "invalid log format",
			config: func() *Configuration {
				cfg := validConfig()
				cfg.Global.LogFormat = "xml"
				return cfg
			},
			wantErr: true,
			errMsg:  "invalid log_format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.config()
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err == nil {
				return
			}
			if errors.CategoryOf(err) != errors.CategoryConfiguration {
				t.Errorf("Validate() error category = %v, want configuration", errors.CategoryOf(err))
			}
			if tt.wantCode != "" {
				se, _ := errors.AsStorageError(err)
				if se.Code != tt.wantCode {
					t.Errorf("Validate() error code = %v, want %v", se.Code, tt.wantCode)
				}
			}
			if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %v, want error containing %v", err, tt.errMsg)
			}
		})
	}
}

func TestEndpoints(t *testing.T) {
	cfg := validConfig()
	if got := cfg.BlobEndpointURL(); got != "https://devstoreaccount1.blob.core.windows.net" {
		t.Errorf("BlobEndpointURL() = %s", got)
	}
	if got := cfg.DFSEndpointURL(); got != "https://devstoreaccount1.dfs.core.windows.net" {
		t.Errorf("DFSEndpointURL() = %s", got)
	}

	cfg.Account.BlobEndpoint = "http://127.0.0.1:10000/devstoreaccount1/"
	if got := cfg.BlobEndpointURL(); got != "http://127.0.0.1:10000/devstoreaccount1" {
		t.Errorf("BlobEndpointURL() = %s", got)
	}
}

func TestRetryConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Client.MaxRetries = 5
	cfg.Client.TransientStatuses = []int{408, 409}

	rc := cfg.RetryConfig()
	if rc.MaxRetries != 5 || rc.BaseInterval != 10*time.Second {
		t.Errorf("unexpected retry config %+v", rc)
	}
	if len(rc.TransientStatuses) != 2 || rc.TransientStatuses[1] != 409 {
		t.Errorf("TransientStatuses = %v", rc.TransientStatuses)
	}
}

func TestLogFileOptions(t *testing.T) {
	cfg := validConfig()
	cfg.Global.LogFile = "/var/log/storagelite.log"
	cfg.Global.LogMaxSize = "10MB"
	cfg.Global.LogCompress = true

	opts, err := cfg.LogFileOptions()
	if err != nil {
		t.Fatalf("LogFileOptions() error = %v", err)
	}
	if opts.Path != cfg.Global.LogFile || opts.MaxSize != 10<<20 || opts.MaxBackups != 3 || !opts.Compress {
		t.Errorf("unexpected options %+v", opts)
	}

	cfg.Global.LogMaxSize = "huge"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid log_max_size")
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	configContent := `
global:
  log_level: DEBUG
  log_format: json

account:
  name: devstoreaccount1
  key: c2VjcmV0
  blob_endpoint: http://127.0.0.1:10000/devstoreaccount1

client:
  max_concurrency: 32
  max_retries: 5
  base_retry_interval: 2s
  chunk_size: 8MB
  exceptions_enabled: false
  transient_statuses: [408, 409]

network:
  timeouts:
    connect: 3s
`

	err := os.WriteFile(configFile, []byte(configContent), 0600)
	if err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	cfg := NewDefault()
	err = cfg.LoadFromFile(configFile)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Global.LogLevel != TestDebugLevel {
		t.Errorf("Expected LogLevel to be DEBUG, got %s", cfg.Global.LogLevel)
	}
	if cfg.Account.Name != TestAccountName || cfg.Account.Key != "c2VjcmV0" {
		t.Errorf("unexpected account %+v", cfg.Account.Name)
	}
	if cfg.Client.MaxConcurrency != 32 {
		t.Errorf("Expected MaxConcurrency to be 32, got %d", cfg.Client.MaxConcurrency)
	}
	if cfg.Client.BaseRetryInterval != 2*time.Second {
		t.Errorf("Expected BaseRetryInterval to be 2s, got %v", cfg.Client.BaseRetryInterval)
	}
	if cfg.Client.ExceptionsEnabled {
		t.Error("Expected ExceptionsEnabled to be false")
	}
	if cfg.Network.Timeouts.Connect != 3*time.Second {
		t.Errorf("Expected connect timeout to be 3s, got %v", cfg.Network.Timeouts.Connect)
	}
	// untouched sections keep their defaults
	if cfg.Network.Timeouts.ResponseHeader != 60*time.Second {
		t.Errorf("Expected response header timeout default, got %v", cfg.Network.Timeouts.ResponseHeader)
	}
	if size, _ := cfg.ChunkSizeBytes(); size != 8*1024*1024 {
		t.Errorf("Expected 8MiB chunks, got %d", size)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoadFromFileNonExistent(t *testing.T) {
	cfg := NewDefault()
	err := cfg.LoadFromFile("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("Expected error when loading non-existent config file")
	}
	if se, ok := errors.AsStorageError(err); !ok || se.Code != errors.ErrCodeConfigLoad {
		t.Errorf("Expected CONFIG_LOAD error, got %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	testEnvVars := map[string]string{
		"STORAGELITE_LOG_LEVEL":          "error",
		"STORAGELITE_ACCOUNT_NAME":       TestAccountName,
		"STORAGELITE_ACCOUNT_KEY":        TestAccountKey,
		"STORAGELITE_MAX_CONCURRENCY":    "64",
		"STORAGELITE_MAX_RETRIES":        "1",
		"STORAGELITE_CHUNK_SIZE":         "1MB",
		"STORAGELITE_EXCEPTIONS_ENABLED": "false",
	}

	for key, value := range testEnvVars {
		t.Setenv(key, value)
	}

	cfg := NewDefault()
	err := cfg.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Global.LogLevel != "ERROR" {
		t.Errorf("Expected LogLevel to be ERROR, got %s", cfg.Global.LogLevel)
	}
	if cfg.Account.Name != TestAccountName {
		t.Errorf("Expected account name %s, got %s", TestAccountName, cfg.Account.Name)
	}
	if cfg.Client.MaxConcurrency != 64 {
		t.Errorf("Expected MaxConcurrency to be 64, got %d", cfg.Client.MaxConcurrency)
	}
	if cfg.Client.MaxRetries != 1 {
		t.Errorf("Expected MaxRetries to be 1, got %d", cfg.Client.MaxRetries)
	}
	if cfg.Client.ChunkSize != "1MB" {
		t.Errorf("Expected ChunkSize to be 1MB, got %s", cfg.Client.ChunkSize)
	}
	if cfg.Client.ExceptionsEnabled {
		t.Error("Expected ExceptionsEnabled to be false")
	}
}

func TestLoadFromEnvInvalid(t *testing.T) {
	t.Setenv("STORAGELITE_MAX_CONCURRENCY", "many")

	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err == nil {
		t.Error("Expected error for non-numeric STORAGELITE_MAX_CONCURRENCY")
	}
}

func TestSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "saved_config.yaml")

	cfg := validConfig()
	cfg.Global.LogLevel = TestDebugLevel
	cfg.Client.ChunkSize = "16MB"

	err := cfg.SaveToFile(configFile)
	if err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	info, err := os.Stat(configFile)
	if err != nil {
		t.Fatalf("Config file was not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected 0600 permissions, got %v", info.Mode().Perm())
	}

	newCfg := NewDefault()
	err = newCfg.LoadFromFile(configFile)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}

	if newCfg.Global.LogLevel != TestDebugLevel {
		t.Errorf("Expected LogLevel to be DEBUG, got %s", newCfg.Global.LogLevel)
	}
	if newCfg.Client.ChunkSize != "16MB" {
		t.Errorf("Expected ChunkSize to be 16MB, got %s", newCfg.Client.ChunkSize)
	}
	if newCfg.Client.BaseRetryInterval != cfg.Client.BaseRetryInterval {
		t.Errorf("BaseRetryInterval did not round trip: %v", newCfg.Client.BaseRetryInterval)
	}
}

func TestSaveToFileCreateDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := NewDefault()
	err := cfg.SaveToFile(configFile)
	if err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		t.Error("Config file was not created")
	}
}
