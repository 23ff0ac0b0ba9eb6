// Package config provides configuration for the consultant service.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the consultant configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Security SecurityConfig `mapstructure:"security"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig contains HTTP and WebSocket settings.
type ServerConfig struct {
	Address        string        `mapstructure:"address"`
	WSReadTimeout  time.Duration `mapstructure:"ws_read_timeout"`
	WSWriteTimeout time.Duration `mapstructure:"ws_write_timeout"`
	WSPingInterval time.Duration `mapstructure:"ws_ping_interval"`
	WSMaxMessage   int64         `mapstructure:"ws_max_message"`
}

// LLMConfig contains upstream provider settings.
type LLMConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Mode    string        `mapstructure:"mode"`
}

// StorageConfig selects the settings/audit store.
type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	SQLiteDSN   string `mapstructure:"sqlite_dsn"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// CacheConfig configures the optional redis match cache.
type CacheConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// SecurityConfig holds the settings cipher secret.
type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
	KeyFile       string `mapstructure:"key_file"`
}

// PolicyConfig points at an optional rego file overriding the built-in policy.
type PolicyConfig struct {
	File string `mapstructure:"file"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.SQLiteDSN == "" {
			return fmt.Errorf("storage.sqlite_dsn is required for the sqlite driver")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver must be sqlite or postgres, got %q", c.Storage.Driver)
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be > 0")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":3000")
	v.SetDefault("server.ws_read_timeout", 60*time.Second)
	v.SetDefault("server.ws_write_timeout", 10*time.Second)
	v.SetDefault("server.ws_ping_interval", 30*time.Second)
	v.SetDefault("server.ws_max_message", 1<<20)
	v.SetDefault("llm.base_url", "https://api.deepseek.com")
	v.SetDefault("llm.timeout", 120*time.Second)
	v.SetDefault("llm.mode", "")
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_dsn", "file:knowledge.db?cache=shared&mode=rwc")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("security.encryption_key", "")
	v.SetDefault("security.key_file", "database/.encryption_key")
	v.SetDefault("policy.file", "")
	v.SetDefault("log.level", "info")
}

// Load reads defaults, an optional config file and KB_* environment variables.
// An empty path searches ./config and the working directory for config.{yaml,json,toml};
// a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("KB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
