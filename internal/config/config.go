// Package config handles configuration loading for TradeChart.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	App     AppConfig     `mapstructure:"app"     yaml:"app"`
	Market  MarketConfig  `mapstructure:"market"  yaml:"market"`
	Filings FilingsConfig `mapstructure:"filings" yaml:"filings"`
	Cache   CacheConfig   `mapstructure:"cache"   yaml:"cache"`
	Line    LineConfig    `mapstructure:"line"    yaml:"line"`
	Alerts  AlertsConfig  `mapstructure:"alerts"  yaml:"alerts"`
	API     APIConfig     `mapstructure:"api"     yaml:"api"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// AppConfig identifies the operator. EDINET and EDGAR both require a
// descriptive User-Agent with a contact address.
type AppConfig struct {
	CompanyName  string `mapstructure:"company_name"  yaml:"company_name"`
	EmailAddress string `mapstructure:"email_address" yaml:"email_address"`
}

// UserAgent builds the contact User-Agent string sent to regulators.
func (a AppConfig) UserAgent() string {
	return fmt.Sprintf("%s %s", a.CompanyName, a.EmailAddress)
}

// MarketConfig holds price data settings.
type MarketConfig struct {
	PriceProvider string `mapstructure:"price_provider" yaml:"price_provider"` // "yfinance"
	DefaultRange  string `mapstructure:"default_range"  yaml:"default_range"`  // e.g., "2y"
}

// FilingsConfig holds disclosure source settings.
type FilingsConfig struct {
	Years        int    `mapstructure:"years"          yaml:"years"`
	DownloadDir  string `mapstructure:"download_dir"   yaml:"download_dir"`
	TDnetBaseURL string `mapstructure:"tdnet_base_url" yaml:"tdnet_base_url"`
}

// CacheConfig holds on-disk cache settings.
type CacheConfig struct {
	Dir      string `mapstructure:"dir"       yaml:"dir"`
	TTLHours int    `mapstructure:"ttl_hours" yaml:"ttl_hours"`
}

// LineConfig holds LINE Messaging API credentials.
type LineConfig struct {
	ChannelAccessToken string `mapstructure:"channel_access_token" yaml:"channel_access_token"`
	ChannelSecret      string `mapstructure:"channel_secret"       yaml:"channel_secret"`
	TargetUserID       string `mapstructure:"target_user_id"       yaml:"target_user_id"`
	Enabled            bool   `mapstructure:"enabled"              yaml:"enabled"`
}

// AlertsConfig holds RSI alert evaluation settings.
type AlertsConfig struct {
	RSIThreshold  float64 `mapstructure:"rsi_threshold"  yaml:"rsi_threshold"`
	RSIPeriod     int     `mapstructure:"rsi_period"     yaml:"rsi_period"`
	ScheduleTimes string  `mapstructure:"schedule_times" yaml:"schedule_times"` // "HH:MM,HH:MM" in JST
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// StorageConfig selects the alert/portfolio backend.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"      yaml:"backend"` // "file" or "postgres"
	DataDir     string `mapstructure:"data_dir"     yaml:"data_dir"`
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.tradechart/config.yaml (home directory)
//  3. /etc/tradechart/config.yaml (system)
//
// Environment variables override config file values.
// Format: TRADECHART_<SECTION>_<KEY>, e.g., TRADECHART_LINE_TARGET_USER_ID
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".tradechart"))
	v.AddConfigPath("/etc/tradechart")

	v.SetEnvPrefix("TRADECHART")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found — that's fine, use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)

	return &cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("TRADECHART")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.company_name", "TradeChart JP")
	v.SetDefault("app.email_address", "support@example.com")

	// Market defaults
	v.SetDefault("market.price_provider", "yfinance")
	v.SetDefault("market.default_range", "2y")

	// Filings defaults
	v.SetDefault("filings.years", 5)
	v.SetDefault("filings.download_dir", "data/raw_jp")
	v.SetDefault("filings.tdnet_base_url", "https://www.release.tdnet.info/inbs")

	// Cache defaults
	v.SetDefault("cache.dir", "data/cache")
	v.SetDefault("cache.ttl_hours", 12)

	// LINE defaults
	v.SetDefault("line.enabled", true)

	// Alerts defaults
	v.SetDefault("alerts.rsi_threshold", 40.0)
	v.SetDefault("alerts.rsi_period", 14)
	v.SetDefault("alerts.schedule_times", "07:00,12:30")

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})

	// Storage defaults
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.data_dir", "data")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv explicitly reads sensitive keys from environment
// variables, including the legacy unprefixed names earlier deployments
// used.
func overrideFromEnv(cfg *Config) {
	if token := coalesceEnv("TRADECHART_LINE_CHANNEL_ACCESS_TOKEN", "LINE_CHANNEL_ACCESS_TOKEN", "CHANNEL_ACCESS_TOKEN"); token != "" {
		cfg.Line.ChannelAccessToken = token
	}
	if secret := coalesceEnv("TRADECHART_LINE_CHANNEL_SECRET", "LINE_CHANNEL_SECRET", "CHANNEL_SECRET"); secret != "" {
		cfg.Line.ChannelSecret = secret
	}
	if user := coalesceEnv("TRADECHART_LINE_TARGET_USER_ID", "LINE_TARGET_USER_ID"); user != "" {
		cfg.Line.TargetUserID = user
	}
	if url := coalesceEnv("TRADECHART_STORAGE_DATABASE_URL", "DATABASE_URL"); url != "" {
		cfg.Storage.DatabaseURL = url
	}
}

// coalesceEnv returns the first non-empty environment variable value.
func coalesceEnv(names ...string) string {
	for _, name := range names {
		if value := os.Getenv(name); value != "" {
			return value
		}
	}
	return ""
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
