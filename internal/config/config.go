package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultListenAddr       = ":8080"
	DefaultStoreBackend     = "file"
	DefaultStoreDir         = "~/.relay/tasks"
	DefaultAlarmDir         = "~/.relay/alarms"
	DefaultSQLiteDSN        = "~/.relay/relay.db"
	DefaultStreamTimeout    = 20 * time.Minute
	DefaultEventBatchSize   = 10
	DefaultCleanupRetention = 7 * 24 * time.Hour
	DefaultCleanupInterval  = 30 * time.Second
	DefaultLogLevel         = "info"
)

// Config captures everything the daemon needs at startup. Values load from
// a YAML file when one is present, then RELAY_* environment variables, then
// defaults, later sources losing.
type Config struct {
	ListenAddr string `json:"listen_addr" yaml:"listen_addr" mapstructure:"listen_addr"`
	LogLevel   string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`

	// Store selects the durable state backend: file, sqlite or memory.
	StoreBackend string `json:"store_backend" yaml:"store_backend" mapstructure:"store_backend"`
	StoreDir     string `json:"store_dir" yaml:"store_dir" mapstructure:"store_dir"`
	SQLiteDSN    string `json:"sqlite_dsn" yaml:"sqlite_dsn" mapstructure:"sqlite_dsn"`
	AlarmDir     string `json:"alarm_dir" yaml:"alarm_dir" mapstructure:"alarm_dir"`

	// Agent is the upstream coding-agent service.
	AgentBaseURL    string `json:"agent_base_url" yaml:"agent_base_url" mapstructure:"agent_base_url"`
	CallbackBaseURL string `json:"callback_base_url" yaml:"callback_base_url" mapstructure:"callback_base_url"`
	CallbackSecret  string `json:"callback_secret" yaml:"callback_secret" mapstructure:"callback_secret"`

	// Notify is the external system of record for task status.
	NotifyBaseURL string `json:"notify_base_url" yaml:"notify_base_url" mapstructure:"notify_base_url"`
	NotifySecret  string `json:"notify_secret" yaml:"notify_secret" mapstructure:"notify_secret"`

	StreamTimeout    time.Duration `json:"stream_timeout" yaml:"stream_timeout" mapstructure:"stream_timeout"`
	EventBatchSize   int           `json:"event_batch_size" yaml:"event_batch_size" mapstructure:"event_batch_size"`
	CleanupRetention time.Duration `json:"cleanup_retention" yaml:"cleanup_retention" mapstructure:"cleanup_retention"`
	CleanupInterval  time.Duration `json:"cleanup_interval" yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:       DefaultListenAddr,
		LogLevel:         DefaultLogLevel,
		StoreBackend:     DefaultStoreBackend,
		StoreDir:         DefaultStoreDir,
		SQLiteDSN:        DefaultSQLiteDSN,
		AlarmDir:         DefaultAlarmDir,
		StreamTimeout:    DefaultStreamTimeout,
		EventBatchSize:   DefaultEventBatchSize,
		CleanupRetention: DefaultCleanupRetention,
		CleanupInterval:  DefaultCleanupInterval,
	}
}

// Load reads configuration from the given file (optional, "" means search
// the usual locations) and the RELAY_* environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("relay")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.relay")
	}

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	applyDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		// An explicit path that cannot be read is a startup error; a
		// missing default file is not.
		if path != "" {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("listen_addr", cfg.ListenAddr)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("store_backend", cfg.StoreBackend)
	v.SetDefault("store_dir", cfg.StoreDir)
	v.SetDefault("sqlite_dsn", cfg.SQLiteDSN)
	v.SetDefault("alarm_dir", cfg.AlarmDir)
	// Registered with empty defaults so AutomaticEnv finds them during
	// Unmarshal.
	v.SetDefault("agent_base_url", cfg.AgentBaseURL)
	v.SetDefault("callback_base_url", cfg.CallbackBaseURL)
	v.SetDefault("callback_secret", cfg.CallbackSecret)
	v.SetDefault("notify_base_url", cfg.NotifyBaseURL)
	v.SetDefault("notify_secret", cfg.NotifySecret)
	v.SetDefault("stream_timeout", cfg.StreamTimeout)
	v.SetDefault("event_batch_size", cfg.EventBatchSize)
	v.SetDefault("cleanup_retention", cfg.CleanupRetention)
	v.SetDefault("cleanup_interval", cfg.CleanupInterval)
}

// Validate rejects configurations the daemon cannot run with.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case "file", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown store backend %q (want file, sqlite or memory)", c.StoreBackend)
	}
	if c.AgentBaseURL == "" {
		return fmt.Errorf("agent_base_url is required")
	}
	if c.NotifyBaseURL == "" {
		return fmt.Errorf("notify_base_url is required")
	}
	if c.StreamTimeout <= 0 {
		return fmt.Errorf("stream_timeout must be positive, got %s", c.StreamTimeout)
	}
	if c.EventBatchSize <= 0 {
		return fmt.Errorf("event_batch_size must be positive, got %d", c.EventBatchSize)
	}
	if c.CleanupRetention <= 0 {
		return fmt.Errorf("cleanup_retention must be positive, got %s", c.CleanupRetention)
	}
	return nil
}
