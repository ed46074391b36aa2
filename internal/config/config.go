package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/storagelite/storagelite/pkg/errors"
	"github.com/storagelite/storagelite/pkg/retry"
	"github.com/storagelite/storagelite/pkg/utils"
)

// Supported authentication schemes.
const (
	AuthSharedKey = "shared_key"
	AuthSigV4     = "sigv4"
)

// Configuration represents the complete client configuration
type Configuration struct {
	Global     GlobalConfig     `yaml:"global"`
	Account    AccountConfig    `yaml:"account"`
	Client     ClientConfig     `yaml:"client"`
	Network    NetworkConfig    `yaml:"network"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// GlobalConfig represents global settings
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`
	// LogMaxSize rotates LogFile once it reaches this size, e.g. "100MB".
	LogMaxSize    string `yaml:"log_max_size"`
	LogMaxBackups int    `yaml:"log_max_backups"`
	LogCompress   bool   `yaml:"log_compress"`
}

// AccountConfig identifies the storage account and how requests are signed.
type AccountConfig struct {
	Name         string `yaml:"name"`
	Key          string `yaml:"key"`
	AuthScheme   string `yaml:"auth_scheme"`
	Region       string `yaml:"region"`
	BlobEndpoint string `yaml:"blob_endpoint"`
	DFSEndpoint  string `yaml:"dfs_endpoint"`
}

// ClientConfig holds the execution engine options.
type ClientConfig struct {
	MaxConcurrency    int           `yaml:"max_concurrency"`
	MaxRetries        int           `yaml:"max_retries"`
	BaseRetryInterval time.Duration `yaml:"base_retry_interval"`
	ChunkSize         string        `yaml:"chunk_size"`
	ExceptionsEnabled bool          `yaml:"exceptions_enabled"`
	TransientStatuses []int         `yaml:"transient_statuses"`
	FatalStatuses     []int         `yaml:"fatal_statuses"`
}

// NetworkConfig represents transport settings
type NetworkConfig struct {
	Timeouts            TimeoutConfig `yaml:"timeouts"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
}

// TimeoutConfig represents timeout settings
type TimeoutConfig struct {
	Connect        time.Duration `yaml:"connect"`
	ResponseHeader time.Duration `yaml:"response_header"`
	Idle           time.Duration `yaml:"idle"`
}

// MonitoringConfig represents monitoring settings
type MonitoringConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig represents metrics settings
type MetricsConfig struct {
	Enabled      bool              `yaml:"enabled"`
	Namespace    string            `yaml:"namespace"`
	CustomLabels map[string]string `yaml:"custom_labels"`
}

// TracingConfig represents tracing settings
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	rc := retry.DefaultConfig()
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:      "INFO",
			LogFormat:     utils.FormatText,
			LogMaxSize:    "100MB",
			LogMaxBackups: 3,
		},
		Account: AccountConfig{
			AuthScheme: AuthSharedKey,
			Region:     "us-east-1",
		},
		Client: ClientConfig{
			MaxConcurrency:    8,
			MaxRetries:        rc.MaxRetries,
			BaseRetryInterval: rc.BaseInterval,
			ChunkSize:         "4MB",
			ExceptionsEnabled: true,
			TransientStatuses: rc.TransientStatuses,
			FatalStatuses:     rc.FatalStatuses,
		},
		Network: NetworkConfig{
			Timeouts: TimeoutConfig{
				Connect:        10 * time.Second,
				ResponseHeader: 60 * time.Second,
				Idle:           90 * time.Second,
			},
			MaxIdleConnsPerHost: 16,
		},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{
				Enabled:   true,
				Namespace: "storagelite",
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.NewError(errors.ErrCodeConfigLoad, "failed to read config file").
			WithCause(err).WithDetail("file", filename)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.NewError(errors.ErrCodeConfigLoad, "failed to parse config file").
			WithCause(err).WithDetail("file", filename)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("STORAGELITE_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = strings.ToUpper(val)
	}
	if val := os.Getenv("STORAGELITE_LOG_FORMAT"); val != "" {
		c.Global.LogFormat = strings.ToLower(val)
	}
	if val := os.Getenv("STORAGELITE_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}

	if val := os.Getenv("STORAGELITE_ACCOUNT_NAME"); val != "" {
		c.Account.Name = val
	}
	if val := os.Getenv("STORAGELITE_ACCOUNT_KEY"); val != "" {
		c.Account.Key = val
	}
	if val := os.Getenv("STORAGELITE_BLOB_ENDPOINT"); val != "" {
		c.Account.BlobEndpoint = val
	}
	if val := os.Getenv("STORAGELITE_DFS_ENDPOINT"); val != "" {
		c.Account.DFSEndpoint = val
	}

	if val := os.Getenv("STORAGELITE_MAX_CONCURRENCY"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return errors.NewConfigError(errors.ErrCodeInvalidConfig, "STORAGELITE_MAX_CONCURRENCY: %v", err)
		}
		c.Client.MaxConcurrency = n
	}
	if val := os.Getenv("STORAGELITE_MAX_RETRIES"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return errors.NewConfigError(errors.ErrCodeInvalidConfig, "STORAGELITE_MAX_RETRIES: %v", err)
		}
		c.Client.MaxRetries = n
	}
	if val := os.Getenv("STORAGELITE_BASE_RETRY_INTERVAL"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return errors.NewConfigError(errors.ErrCodeInvalidConfig, "STORAGELITE_BASE_RETRY_INTERVAL: %v", err)
		}
		c.Client.BaseRetryInterval = d
	}
	if val := os.Getenv("STORAGELITE_CHUNK_SIZE"); val != "" {
		c.Client.ChunkSize = val
	}
	if val := os.Getenv("STORAGELITE_EXCEPTIONS_ENABLED"); val != "" {
		c.Client.ExceptionsEnabled = strings.ToLower(val) == "true"
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file. The account key is written
// as-is, so the file is created with owner-only permissions.
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ChunkSizeBytes parses Client.ChunkSize.
func (c *Configuration) ChunkSizeBytes() (int64, error) {
	n, err := utils.ParseBytes(c.Client.ChunkSize)
	if err != nil {
		return 0, errors.NewConfigError(errors.ErrCodeInvalidConfig, "chunk_size: %v", err)
	}
	if n <= 0 {
		return 0, errors.NewConfigError(errors.ErrCodeInvalidConfig, "chunk_size must be greater than 0")
	}
	return n, nil
}

// LogFileOptions returns the log file settings. An empty LogFile means stderr.
func (c *Configuration) LogFileOptions() (utils.FileOptions, error) {
	opts := utils.FileOptions{
		Path:       c.Global.LogFile,
		MaxBackups: c.Global.LogMaxBackups,
		Compress:   c.Global.LogCompress,
	}
	if c.Global.LogMaxSize != "" {
		n, err := utils.ParseBytes(c.Global.LogMaxSize)
		if err != nil {
			return opts, errors.NewConfigError(errors.ErrCodeInvalidConfig, "log_max_size: %v", err)
		}
		opts.MaxSize = n
	}
	return opts, nil
}

// RetryConfig returns the retry policy configuration.
func (c *Configuration) RetryConfig() retry.Config {
	return retry.Config{
		MaxRetries:        c.Client.MaxRetries,
		BaseInterval:      c.Client.BaseRetryInterval,
		TransientStatuses: c.Client.TransientStatuses,
		FatalStatuses:     c.Client.FatalStatuses,
	}
}

// BlobEndpointURL returns the blob service endpoint, derived from the account
// name when not configured.
func (c *Configuration) BlobEndpointURL() string {
	if c.Account.BlobEndpoint != "" {
		return strings.TrimRight(c.Account.BlobEndpoint, "/")
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net", c.Account.Name)
}

// DFSEndpointURL returns the filesystem service endpoint, derived from the
// account name when not configured.
func (c *Configuration) DFSEndpointURL() string {
	if c.Account.DFSEndpoint != "" {
		return strings.TrimRight(c.Account.DFSEndpoint, "/")
	}
	return fmt.Sprintf("https://%s.dfs.core.windows.net", c.Account.Name)
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if c.Account.Name == "" {
		return errors.NewConfigError(errors.ErrCodeCredentialsMissing, "account name is required")
	}

	switch c.Account.AuthScheme {
	case AuthSharedKey:
		if c.Account.Key == "" {
			return errors.NewConfigError(errors.ErrCodeCredentialsMissing, "account key is required for %s", AuthSharedKey)
		}
	case AuthSigV4:
		if c.Account.Region == "" {
			return errors.NewConfigError(errors.ErrCodeMissingConfig, "region is required for %s", AuthSigV4)
		}
	default:
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "invalid auth_scheme: %s (must be one of: %s, %s)",
			c.Account.AuthScheme, AuthSharedKey, AuthSigV4)
	}

	for _, endpoint := range []string{c.BlobEndpointURL(), c.DFSEndpointURL()} {
		u, err := url.Parse(endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.NewConfigError(errors.ErrCodeInvalidConfig, "invalid endpoint: %q", endpoint)
		}
	}

	if c.Client.MaxConcurrency <= 0 {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "max_concurrency must be greater than 0")
	}

	if err := c.RetryConfig().Validate(); err != nil {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "%v", err)
	}

	if _, err := c.ChunkSizeBytes(); err != nil {
		return err
	}

	if _, err := c.LogFileOptions(); err != nil {
		return err
	}

	if _, err := utils.ParseLogLevel(c.Global.LogLevel); err != nil {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "invalid log_level: %s (must be one of: DEBUG, INFO, WARN, ERROR)",
			c.Global.LogLevel)
	}

	switch strings.ToLower(c.Global.LogFormat) {
	case utils.FormatText, utils.FormatJSON, "":
	default:
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "invalid log_format: %s", c.Global.LogFormat)
	}

	return nil
}
