package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration.
// It is loaded once at startup and treated as immutable afterwards;
// every component receives the pieces it needs explicitly.
type Config struct {
	API      APIConfig      `yaml:"api" envconfig:"API"`
	Sync     SyncConfig     `yaml:"sync" envconfig:"SYNC"`
	Strategy StrategyConfig `yaml:"strategy" envconfig:"STRATEGY"`
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Notify   NotifyConfig   `yaml:"notify" envconfig:"NOTIFY"`
}

// APIConfig contains the data API connection settings.
type APIConfig struct {
	BaseURL   string        `yaml:"base_url" envconfig:"BASE_URL" default:"https://api.quantclass.cn/api/data/"`
	Key       string        `yaml:"key" envconfig:"KEY" validate:"required"`
	UUID      string        `yaml:"uuid" envconfig:"UUID" validate:"required"`
	Proxy     string        `yaml:"proxy" envconfig:"PROXY"`
	Timeout   time.Duration `yaml:"timeout" envconfig:"TIMEOUT" default:"5s"`
	RateRPS   float64       `yaml:"rate_rps" envconfig:"RATE_RPS" default:"5"`
	RateBurst int           `yaml:"rate_burst" envconfig:"RATE_BURST" default:"5"`
}

// SyncConfig contains data synchronization settings.
type SyncConfig struct {
	DataDir    string        `yaml:"data_dir" envconfig:"DATA_DIR" default:"data"`
	Mode       string        `yaml:"mode" envconfig:"MODE" default:"all" validate:"oneof=all new error"`
	Parallel   bool          `yaml:"parallel" envconfig:"PARALLEL" default:"true"`
	Workers    int           `yaml:"workers" envconfig:"WORKERS"`
	StaleAfter time.Duration `yaml:"stale_after" envconfig:"STALE_AFTER" default:"720h"`
	SweepAfter time.Duration `yaml:"sweep_after" envconfig:"SWEEP_AFTER" default:"168h"`
	Products   []string      `yaml:"products" envconfig:"PRODUCTS"`

	// ProductNames maps product IDs to display names used in progress
	// notifications. YAML-only; products without an entry fall back to the ID.
	ProductNames map[string]string `yaml:"product_names"`
}

// StrategyConfig contains strategy result settings.
type StrategyConfig struct {
	ResultDir string `yaml:"result_dir" envconfig:"RESULT_DIR" default:"strategy"`

	// Whitelist lists the strategy configurations fetched by the batch
	// driver. YAML-only.
	Whitelist []StrategyEntry `yaml:"whitelist"`
}

// StrategyEntry identifies one (strategy, period, count) combination.
type StrategyEntry struct {
	Strategy string `yaml:"strategy"`
	Period   string `yaml:"period"`
	Count    int    `yaml:"count"`
}

// ServerConfig contains HTTP server configuration for the chat front end.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
}

// NotifyConfig contains robot webhook push settings. Empty URLs disable push.
type NotifyConfig struct {
	InfoWebhook string        `yaml:"info_webhook" envconfig:"INFO_WEBHOOK"`
	WarnWebhook string        `yaml:"warn_webhook" envconfig:"WARN_WEBHOOK"`
	Timeout     time.Duration `yaml:"timeout" envconfig:"TIMEOUT" default:"10s"`
}

// Load loads configuration from environment variables and an optional YAML
// config file. Environment variables take precedence over file values.
func Load(configFile string) (*Config, error) {
	var cfg Config

	if err := envconfig.Process("QCSYNC", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileCfg, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs merges file config with env config. Credentials set in the
// environment win; structural settings set in the file win.
func mergeConfigs(fileCfg, envCfg Config) Config {
	if envCfg.API.Key == "" {
		envCfg.API.Key = fileCfg.API.Key
	}
	if envCfg.API.UUID == "" {
		envCfg.API.UUID = fileCfg.API.UUID
	}
	if envCfg.API.Proxy == "" {
		envCfg.API.Proxy = fileCfg.API.Proxy
	}
	if fileCfg.API.BaseURL != "" {
		envCfg.API.BaseURL = fileCfg.API.BaseURL
	}
	if len(fileCfg.Sync.Products) != 0 {
		envCfg.Sync.Products = fileCfg.Sync.Products
	}
	if fileCfg.Sync.DataDir != "" {
		envCfg.Sync.DataDir = fileCfg.Sync.DataDir
	}
	if fileCfg.Sync.Mode != "" {
		envCfg.Sync.Mode = fileCfg.Sync.Mode
	}
	if fileCfg.Sync.Workers != 0 {
		envCfg.Sync.Workers = fileCfg.Sync.Workers
	}
	if fileCfg.Strategy.ResultDir != "" {
		envCfg.Strategy.ResultDir = fileCfg.Strategy.ResultDir
	}
	if envCfg.Notify.InfoWebhook == "" {
		envCfg.Notify.InfoWebhook = fileCfg.Notify.InfoWebhook
	}
	if envCfg.Notify.WarnWebhook == "" {
		envCfg.Notify.WarnWebhook = fileCfg.Notify.WarnWebhook
	}

	// Whitelists and name maps only come from the file.
	envCfg.Sync.ProductNames = fileCfg.Sync.ProductNames
	envCfg.Strategy.Whitelist = fileCfg.Strategy.Whitelist

	return envCfg
}

// validate validates the configuration.
func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api timeout must be positive")
	}
	if c.Sync.StaleAfter <= 0 {
		return fmt.Errorf("sync stale_after must be positive")
	}

	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output != "both" && c.Logging.Output != "file" && c.Logging.Output != "stdout" {
		c.Logging.Output = "both"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}

	return nil
}

// findConfigFile returns the path to the config file, checking common
// locations. An empty return means env vars only.
func findConfigFile() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration suitable for tests.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:   "https://api.quantclass.cn/api/data/",
			Timeout:   5 * time.Second,
			RateRPS:   5,
			RateBurst: 5,
		},
		Sync: SyncConfig{
			DataDir:    "data",
			Mode:       "all",
			Parallel:   true,
			StaleAfter: 30 * 24 * time.Hour,
			SweepAfter: 7 * 24 * time.Hour,
		},
		Strategy: StrategyConfig{
			ResultDir: "strategy",
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "both",
			FilePath: "logs/app.log",
		},
		Notify: NotifyConfig{
			Timeout: 10 * time.Second,
		},
	}
}
