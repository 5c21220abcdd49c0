package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the entire application configuration
type Config struct {
	Drive    DriveConfig    `mapstructure:"drive"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Download DownloadConfig `mapstructure:"download"`
	Output   OutputConfig   `mapstructure:"output"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
}

// DriveConfig contains drive API configuration
type DriveConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	Token         string `mapstructure:"token"`
	Mnemonic      string `mapstructure:"mnemonic"`
	WorkspaceID   string `mapstructure:"workspace_id"`
	SkipTLSVerify bool   `mapstructure:"skip_tls_verify"`
	BufferSizeMB  int    `mapstructure:"buffer_size_mb"`
}

// CacheConfig contains blob cache settings
type CacheConfig struct {
	CapacityMB      int `mapstructure:"capacity_mb"`
	EligibleLimitMB int `mapstructure:"eligible_limit_mb"`
}

// DownloadConfig contains download orchestration settings
type DownloadConfig struct {
	Concurrency     int    `mapstructure:"concurrency"`
	PageSize        int    `mapstructure:"page_size"`
	WatchdogTimeout string `mapstructure:"watchdog_timeout"`
}

// OutputConfig contains disk-save sink settings
type OutputConfig struct {
	Dir          string `mapstructure:"dir"`
	BufferSizeMB int    `mapstructure:"buffer_size_mb"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig contains blob store database settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// Load loads configuration from the specified file path
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// Set defaults
	viper.SetDefault("drive.skip_tls_verify", false)
	viper.SetDefault("drive.buffer_size_mb", 8)
	viper.SetDefault("cache.capacity_mb", 500)
	viper.SetDefault("cache.eligible_limit_mb", 50)
	viper.SetDefault("download.concurrency", 3)
	viper.SetDefault("download.page_size", 50)
	viper.SetDefault("download.watchdog_timeout", "5s")
	viper.SetDefault("output.dir", "downloads")
	viper.SetDefault("output.buffer_size_mb", 8)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("database.path", "")

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Drive.BaseURL == "" {
		return fmt.Errorf("drive.base_url is required")
	}

	if c.Cache.CapacityMB <= 0 {
		return fmt.Errorf("cache.capacity_mb must be positive")
	}
	if c.Cache.EligibleLimitMB <= 0 {
		return fmt.Errorf("cache.eligible_limit_mb must be positive")
	}
	if c.Cache.EligibleLimitMB > c.Cache.CapacityMB {
		return fmt.Errorf("cache.eligible_limit_mb must not exceed cache.capacity_mb")
	}

	if c.Download.Concurrency < 1 || c.Download.Concurrency > 10 {
		return fmt.Errorf("download.concurrency must be between 1 and 10")
	}
	if _, err := time.ParseDuration(c.Download.WatchdogTimeout); err != nil {
		return fmt.Errorf("invalid download.watchdog_timeout: %w", err)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// GetCapacityBytes returns the cache capacity in bytes
func (c *CacheConfig) GetCapacityBytes() int64 {
	return int64(c.CapacityMB) * 1024 * 1024
}

// GetEligibleLimitBytes returns the caching eligibility threshold in bytes
func (c *CacheConfig) GetEligibleLimitBytes() int64 {
	return int64(c.EligibleLimitMB) * 1024 * 1024
}

// GetWatchdogTimeout returns the watchdog timeout as time.Duration
func (c *DownloadConfig) GetWatchdogTimeout() time.Duration {
	d, _ := time.ParseDuration(c.WatchdogTimeout)
	if d == 0 {
		return 5 * time.Second
	}
	return d
}

// GetBufferSize returns the drive client buffer size in bytes
func (c *DriveConfig) GetBufferSize() int {
	if c.BufferSizeMB <= 0 {
		return 8 * 1024 * 1024
	}
	return c.BufferSizeMB * 1024 * 1024
}
