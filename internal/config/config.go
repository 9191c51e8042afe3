package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	DVR         DVRConfig         `mapstructure:"dvr"`
	Dispatcharr DispatcharrConfig `mapstructure:"dispatcharr"`
	Sync        SyncConfig        `mapstructure:"sync"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	API         APIConfig         `mapstructure:"api"`
}

// DVRConfig holds Channels DVR connection settings
type DVRConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	RetryAttempts  int    `mapstructure:"retry_attempts"`
}

// DispatcharrConfig holds IPTV manager connection settings. Only rules
// with a dynamic pattern source need it; it is disabled by default.
type DispatcharrConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	URL            string `mapstructure:"url"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// SyncConfig holds sync engine settings
type SyncConfig struct {
	IntervalMinutes       int  `mapstructure:"interval_minutes"`
	Concurrency           int  `mapstructure:"concurrency"` // 0 = NumCPU
	AutoCreateCollections bool `mapstructure:"auto_create_collections"`
	SyncOnStartup         bool `mapstructure:"sync_on_startup"`
}

// DatabaseConfig holds rule store settings. The default sqlite driver
// needs only a path; postgres uses the remaining fields.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // "sqlite" or "postgres"
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `mapstructure:"level"`

	App      LogLevelConfig `mapstructure:"app"`
	Database LogLevelConfig `mapstructure:"database"`
}

// LogLevelConfig represents log level configuration for a specific component
type LogLevelConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// APIConfig holds API server settings
type APIConfig struct {
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

var cfg *Config

// bindEnvWithAlternatives binds a viper key to environment variables with
// alternative names, so both COLLECTARR_DVR_URL and DVR_URL work.
func bindEnvWithAlternatives(key string, alternatives ...string) {
	viper.BindEnv(key)
	for _, alt := range alternatives {
		if value := os.Getenv(alt); value != "" {
			viper.Set(key, value)
			break
		}
	}
}

// Load reads configuration from file and environment variables
func Load() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/collectarr")

	setDefaults()

	viper.SetEnvPrefix("COLLECTARR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Docker-style alternatives for the common knobs
	bindEnvWithAlternatives("dvr.url", "DVR_URL")
	viper.BindEnv("dvr.timeout_seconds")
	viper.BindEnv("dvr.retry_attempts")

	viper.BindEnv("dispatcharr.enabled")
	bindEnvWithAlternatives("dispatcharr.url", "DISPATCHARR_URL")
	bindEnvWithAlternatives("dispatcharr.username", "DISPATCHARR_USERNAME")
	bindEnvWithAlternatives("dispatcharr.password", "DISPATCHARR_PASSWORD")
	viper.BindEnv("dispatcharr.timeout_seconds")

	bindEnvWithAlternatives("sync.interval_minutes", "SYNC_INTERVAL_MINUTES")
	viper.BindEnv("sync.concurrency")
	viper.BindEnv("sync.auto_create_collections")
	viper.BindEnv("sync.sync_on_startup")

	bindEnvWithAlternatives("database.driver", "DB_DRIVER")
	bindEnvWithAlternatives("database.path", "DB_PATH")
	bindEnvWithAlternatives("database.host", "DB_HOST")
	bindEnvWithAlternatives("database.port", "DB_PORT")
	bindEnvWithAlternatives("database.user", "DB_USER")
	bindEnvWithAlternatives("database.password", "DB_PASSWORD")
	bindEnvWithAlternatives("database.dbname", "DB_NAME")
	bindEnvWithAlternatives("database.sslmode", "DB_SSLMODE")

	bindEnvWithAlternatives("logging.level", "LOG_LEVEL")
	viper.BindEnv("logging.app.level")
	viper.BindEnv("logging.database.level")

	bindEnvWithAlternatives("api.port", "API_PORT")
	viper.BindEnv("api.cors_origins")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	return nil
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		return &Config{}
	}
	return cfg
}

// Reload reloads the configuration from file
func Reload() error {
	return Load()
}

func setDefaults() {
	viper.SetDefault("dvr.url", "http://localhost:8089")
	viper.SetDefault("dvr.timeout_seconds", 30)
	viper.SetDefault("dvr.retry_attempts", 3)

	viper.SetDefault("dispatcharr.enabled", false)
	viper.SetDefault("dispatcharr.timeout_seconds", 10)

	viper.SetDefault("sync.interval_minutes", 60)
	viper.SetDefault("sync.concurrency", 0)
	viper.SetDefault("sync.auto_create_collections", false)
	viper.SetDefault("sync.sync_on_startup", true)

	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", "./data/collectarr.db")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("logging.level", "info")

	viper.SetDefault("api.port", 8080)
}

func validate() error {
	if cfg.DVR.URL == "" {
		return fmt.Errorf("dvr.url is required")
	}

	switch cfg.Database.Driver {
	case "sqlite":
		if cfg.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "postgres":
		if cfg.Database.User == "" {
			return fmt.Errorf("database.user is required for the postgres driver")
		}
		if cfg.Database.DBName == "" {
			return fmt.Errorf("database.dbname is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be one of: sqlite, postgres")
	}

	if cfg.Dispatcharr.Enabled {
		if cfg.Dispatcharr.URL == "" {
			return fmt.Errorf("dispatcharr.url is required when dispatcharr.enabled is true")
		}
		if cfg.Dispatcharr.Username == "" || cfg.Dispatcharr.Password == "" {
			return fmt.Errorf("dispatcharr credentials are required when dispatcharr.enabled is true")
		}
	}

	if cfg.Sync.IntervalMinutes <= 0 {
		return fmt.Errorf("sync.interval_minutes must be positive")
	}

	validLevels := map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if !validLevels[cfg.Logging.App.Level] {
		return fmt.Errorf("logging.app.level must be one of: debug, info, warn, error")
	}
	if !validLevels[cfg.Logging.Database.Level] {
		return fmt.Errorf("logging.database.level must be one of: debug, info, warn, error")
	}

	return nil
}

// GetAppLogLevel returns the log level for application logging.
// Priority: logging.app.level → logging.level → "info"
func (c *Config) GetAppLogLevel() string {
	if c.Logging.App.Level != "" {
		return c.Logging.App.Level
	}
	if c.Logging.Level != "" {
		return c.Logging.Level
	}
	return "info"
}

// GetDatabaseLogLevel returns the log level for database logging.
// Priority: logging.database.level → logging.level → "info"
func (c *Config) GetDatabaseLogLevel() string {
	if c.Logging.Database.Level != "" {
		return c.Logging.Database.Level
	}
	if c.Logging.Level != "" {
		return c.Logging.Level
	}
	return "info"
}
