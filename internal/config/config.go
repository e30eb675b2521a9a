package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Config represents the complete configuration for the cabin dispatcher
type Config struct {
	Network   NetworkConfig   `yaml:"network"`
	Messaging MessagingConfig `yaml:"messaging"`
	Alert     AlertConfig     `yaml:"alert"`
	Log       LogConfig       `yaml:"log"`
	Journal   JournalConfig   `yaml:"journal"`
	Monitor   MonitorConfig   `yaml:"monitor"`
}

// NetworkConfig holds network-related settings
type NetworkConfig struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// HTTPConfig holds HTTP server settings
type HTTPConfig struct {
	Port         int    `yaml:"port"`
	ServerHeader string `yaml:"serverHeader"`
	DevMode      bool   `yaml:"devMode"`
}

// MaintenanceConfig holds maintenance TCP server settings. Port 0 disables it.
type MaintenanceConfig struct {
	Port         int      `yaml:"port"`
	AllowedCIDRs []string `yaml:"allowedCidrs"`
}

// MessagingConfig holds the cross-page message broker settings
type MessagingConfig struct {
	Backend       string      `yaml:"backend"`
	Channel       string      `yaml:"channel"`
	AlertChannel  string      `yaml:"alertChannel"`
	RevokeAfterMs int         `yaml:"revokeAfterMs"`
	Redis         RedisConfig `yaml:"redis"`
}

// RedisConfig holds the redis backend settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// AlertConfig holds the emergency alert and toast presentation
type AlertConfig struct {
	Message                 string `yaml:"message"`
	DurationMs              int    `yaml:"durationMs"`
	PlaySound               bool   `yaml:"playSound"`
	BlinkFrequency          int    `yaml:"blinkFrequency"`
	SecondaryMessage        string `yaml:"secondaryMessage"`
	SecondaryDurationMs     int    `yaml:"secondaryDurationMs"`
	SecondaryBlinkFrequency int    `yaml:"secondaryBlinkFrequency"`
	ToastDurationMs         int    `yaml:"toastDurationMs"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"filePath"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// JournalConfig holds the instruction history store settings. An empty
// path disables the journal.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// MonitorConfig toggles the prometheus endpoint
type MonitorConfig struct {
	Enabled bool `yaml:"enabled"`
}

// RevokeAfter returns the message revoke delay
func (m MessagingConfig) RevokeAfter() time.Duration {
	return time.Duration(m.RevokeAfterMs) * time.Millisecond
}

// Duration returns the primary alert duration
func (a AlertConfig) Duration() time.Duration {
	return time.Duration(a.DurationMs) * time.Millisecond
}

// SecondaryDuration returns the secondary alert duration
func (a AlertConfig) SecondaryDuration() time.Duration {
	return time.Duration(a.SecondaryDurationMs) * time.Millisecond
}

// ToastDuration returns how long toasts stay visible
func (a AlertConfig) ToastDuration() time.Duration {
	return time.Duration(a.ToastDurationMs) * time.Millisecond
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	cfg := getDefaultConfig()

	// A missing default file is fine; defaults apply
	if err := loadFromFile(cfg, "config/default.yaml"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}

	if path := os.Getenv("CABIN_CONFIG"); path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// getDefaultConfig returns the default configuration
func getDefaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			HTTP: HTTPConfig{
				Port:         8080,
				ServerHeader: "cabin-dispatch",
			},
			Maintenance: MaintenanceConfig{
				Port:         50000,
				AllowedCIDRs: []string{"127.0.0.0/8"},
			},
		},
		Messaging: MessagingConfig{
			Backend:       "memory",
			Channel:       "crossPageMessage",
			AlertChannel:  "warningSystem",
			RevokeAfterMs: 100,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
			},
		},
		Alert: AlertConfig{
			Message:                 "警告：请目视前方！",
			DurationMs:              5000,
			PlaySound:               true,
			BlinkFrequency:          50,
			SecondaryMessage:        "警告：请立即目视前方！！！",
			SecondaryDurationMs:     120000,
			SecondaryBlinkFrequency: 10,
			ToastDurationMs:         1500,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			FilePath:   "logs/cabind.log",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		Journal: JournalConfig{
			Path: "data/journal.db",
		},
		Monitor: MonitorConfig{
			Enabled: true,
		},
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config) error {
	if port := os.Getenv("CABIN_HTTP_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid CABIN_HTTP_PORT %q: %w", port, err)
		}
		cfg.Network.HTTP.Port = p
	}

	if backend := os.Getenv("CABIN_MESSAGING_BACKEND"); backend != "" {
		cfg.Messaging.Backend = backend
	}

	if addr := os.Getenv("CABIN_REDIS_ADDR"); addr != "" {
		cfg.Messaging.Redis.Addr = addr
	}

	if level := os.Getenv("CABIN_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	if path, ok := os.LookupEnv("CABIN_JOURNAL_PATH"); ok {
		cfg.Journal.Path = path
	}

	return nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Network.HTTP.Port <= 0 || cfg.Network.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http port %d", cfg.Network.HTTP.Port)
	}

	if cfg.Network.Maintenance.Port < 0 || cfg.Network.Maintenance.Port > 65535 {
		return fmt.Errorf("invalid maintenance port %d", cfg.Network.Maintenance.Port)
	}

	for _, cidr := range cfg.Network.Maintenance.AllowedCIDRs {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("invalid maintenance CIDR %q: %w", cidr, err)
		}
	}

	validBackends := []string{"memory", "redis"}
	if !contains(validBackends, cfg.Messaging.Backend) {
		return fmt.Errorf("invalid messaging backend %s, must be one of: %v", cfg.Messaging.Backend, validBackends)
	}

	if cfg.Messaging.Backend == "redis" && cfg.Messaging.Redis.Addr == "" {
		return fmt.Errorf("redis backend requires messaging.redis.addr")
	}

	if cfg.Messaging.Channel == "" || cfg.Messaging.AlertChannel == "" {
		return fmt.Errorf("messaging channel and alertChannel must be set")
	}

	if cfg.Messaging.Channel == cfg.Messaging.AlertChannel {
		return fmt.Errorf("messaging channel and alertChannel must differ, both are %s", cfg.Messaging.Channel)
	}

	if cfg.Messaging.RevokeAfterMs <= 0 || cfg.Messaging.RevokeAfterMs > 60000 {
		return fmt.Errorf("revokeAfterMs %d is outside reasonable range [1, 60000]", cfg.Messaging.RevokeAfterMs)
	}

	if cfg.Alert.Message == "" {
		return fmt.Errorf("alert message must be set")
	}

	if cfg.Alert.DurationMs <= 0 || cfg.Alert.ToastDurationMs <= 0 {
		return fmt.Errorf("alert durationMs and toastDurationMs must be positive")
	}

	if cfg.Alert.SecondaryMessage != "" && cfg.Alert.SecondaryDurationMs <= 0 {
		return fmt.Errorf("secondaryDurationMs must be positive when secondaryMessage is set")
	}

	if cfg.Alert.BlinkFrequency < 0 || cfg.Alert.SecondaryBlinkFrequency < 0 {
		return fmt.Errorf("blink frequencies must not be negative")
	}

	validFormats := []string{"text", "json"}
	if !contains(validFormats, cfg.Log.Format) {
		return fmt.Errorf("invalid log format %s, must be one of: %v", cfg.Log.Format, validFormats)
	}

	validOutputs := []string{"stdout", "stderr", "file"}
	if !contains(validOutputs, cfg.Log.Output) {
		return fmt.Errorf("invalid log output %s, must be one of: %v", cfg.Log.Output, validOutputs)
	}

	if cfg.Log.Output == "file" && cfg.Log.FilePath == "" {
		return fmt.Errorf("log output file requires log.filePath")
	}

	return nil
}

// contains checks if a string slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
