// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`

	// File paths
	DatabasePath string `mapstructure:"storagepath"`
	DatabaseName string `mapstructure:"-"` // Derived from other settings

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseMaxOpenConns int `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int `mapstructure:"dbmaxidleconns"`

	// Event store (ClickHouse) settings
	EventStoreHost     string `mapstructure:"eventstorehost"`
	EventStorePort     int    `mapstructure:"eventstoreport"`
	EventStoreDatabase string `mapstructure:"eventstoredatabase"`
	EventStoreUser     string `mapstructure:"eventstoreuser"`
	EventStorePassword string `mapstructure:"eventstorepassword"`

	// Sync settings
	SyncCronSpec        string `mapstructure:"synccronspec"`
	FetchTimeoutSeconds int    `mapstructure:"fetchtimeoutseconds"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		// Set defaults
		v.SetDefault("appname", "tidemark")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("storagepath", "storage")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("eventstorehost", "localhost")
		v.SetDefault("eventstoreport", 9000)
		v.SetDefault("eventstoredatabase", "tidemark")
		v.SetDefault("eventstoreuser", "default")
		v.SetDefault("eventstorepassword", "")
		// Nightly, after the previous day has closed in UTC.
		v.SetDefault("synccronspec", "30 0 * * *")
		v.SetDefault("fetchtimeoutseconds", 60)

		// Bind environment variables
		v.BindEnv("appname", "TIDEMARK_APP_NAME")
		v.BindEnv("appport", "TIDEMARK_APP_PORT")
		v.BindEnv("environment", "TIDEMARK_ENV")
		v.BindEnv("loglevel", "TIDEMARK_LOG_LEVEL")
		v.BindEnv("storagepath", "TIDEMARK_STORAGE_PATH")
		v.BindEnv("logsdir", "TIDEMARK_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "TIDEMARK_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "TIDEMARK_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "TIDEMARK_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbmaxopenconns", "TIDEMARK_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "TIDEMARK_DB_MAX_IDLE_CONNS")
		v.BindEnv("eventstorehost", "TIDEMARK_EVENT_STORE_HOST")
		v.BindEnv("eventstoreport", "TIDEMARK_EVENT_STORE_PORT")
		v.BindEnv("eventstoredatabase", "TIDEMARK_EVENT_STORE_DATABASE")
		v.BindEnv("eventstoreuser", "TIDEMARK_EVENT_STORE_USER")
		v.BindEnv("eventstorepassword", "TIDEMARK_EVENT_STORE_PASSWORD")
		v.BindEnv("synccronspec", "TIDEMARK_SYNC_CRON_SPEC")
		v.BindEnv("fetchtimeoutseconds", "TIDEMARK_FETCH_TIMEOUT_SECONDS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		// Validate
		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		// Set derived values
		cfg.DatabaseName = cfg.GetDatabasePath()
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	if c.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid fetch timeout: %d", c.FetchTimeoutSeconds)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port.
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements
// cartridge.Config interface). Tidemark serves no static assets.
func (c *Config) GetPublicDirectory() string {
	return ""
}

// GetAssetsPrefix returns the URL prefix for static assets (implements
// cartridge.Config interface). Tidemark serves no static assets.
func (c *Config) GetAssetsPrefix() string {
	return ""
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment.
// If explicitly set via env var, uses that value. Tests run on a single
// connection for stability.
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// GetFetchTimeout returns the event store fetch timeout.
// The fetch is the only unbounded-latency external call in a sync run.
func (c *Config) GetFetchTimeout() int {
	return c.FetchTimeoutSeconds
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
