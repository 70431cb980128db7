// Package config handles loading and validating the jarvis configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration shared by the assistant and the proxy.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	Listen    ListenConfig    `mapstructure:"listen"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Store     StoreConfig     `mapstructure:"store"`
	TTS       TTSConfig       `mapstructure:"tts"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds the health check server settings.
type ServerConfig struct {
	HealthPort     int `mapstructure:"health_port"`
	GRPCHealthPort int `mapstructure:"grpc_health_port"` // 0 disables the gRPC health service
}

// AssistantConfig holds the defaults used when nothing has been persisted yet.
type AssistantConfig struct {
	UserName    string `mapstructure:"user_name"`
	Personality string `mapstructure:"personality"` // jarvis, tony, funny, calm
	Language    string `mapstructure:"language"`    // BCP-47 prefix used for voice selection (e.g. "en")
	Continuous  bool   `mapstructure:"continuous"`
}

// ListenConfig tunes the listening state machine.
type ListenConfig struct {
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// GatewayConfig points the assistant at the answer proxy.
type GatewayConfig struct {
	Endpoint     string        `mapstructure:"endpoint"`
	Timeout      time.Duration `mapstructure:"timeout"`
	DisplayWords int           `mapstructure:"display_words"`
}

// StoreConfig selects the key-value persistence backend.
type StoreConfig struct {
	Backend string       `mapstructure:"backend"` // "memory", "sqlite" or "redis"
	SQLite  SQLiteConfig `mapstructure:"sqlite"`
	Redis   RedisConfig  `mapstructure:"redis"`
}

// SQLiteConfig holds settings for the file-backed store.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig holds settings for the redis-backed store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// TTSConfig selects and configures the speech output backend.
type TTSConfig struct {
	Backend string      `mapstructure:"backend"` // "console" or "piper"
	Piper   PiperConfig `mapstructure:"piper"`
}

// PiperConfig holds Piper TTS settings (Wyoming protocol).
//
// For a single Piper instance that serves all languages, set Endpoint.
// For per-language instances, set Endpoints which maps ISO-639-1 codes to
// individual Wyoming TCP endpoints. Endpoints takes precedence.
type PiperConfig struct {
	Endpoint  string            `mapstructure:"endpoint"`
	Endpoints map[string]string `mapstructure:"endpoints"`
	Voices    map[string]string `mapstructure:"voices"` // ISO-639-1 language code -> Piper voice model name
	OutputDir string            `mapstructure:"output_dir"`
	Player    string            `mapstructure:"player"` // optional command run with the WAV path (e.g. "aplay")
}

// ProxyConfig configures the answer proxy that fronts the language model.
type ProxyConfig struct {
	Port      int             `mapstructure:"port"`
	Backend   string          `mapstructure:"backend"` // "gemini" or "local"
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Local     LocalLLMConfig  `mapstructure:"local"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// GeminiConfig holds the generative language API settings. The key never
// leaves the proxy process.
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// LocalLLMConfig holds self-hosted LLM settings (Ollama, vLLM, llama.cpp).
type LocalLLMConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Model    string `mapstructure:"model"`
}

// RateLimitConfig limits requests per client address. Zero RPS disables it.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	File       string `mapstructure:"file"`   // optional rotated log file
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./jarvis.yaml, ./configs/jarvis.yaml, /etc/jarvis/jarvis.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("jarvis")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/jarvis")
	}

	// Environment variables: JARVIS_PROXY_PORT, JARVIS_STORE_BACKEND, etc.
	v.SetEnvPrefix("JARVIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in sensitive fields (e.g., "${GEMINI_API_KEY}")
	cfg.Proxy.Gemini.APIKey = resolveEnvRef(cfg.Proxy.Gemini.APIKey)
	cfg.Store.Redis.Password = resolveEnvRef(cfg.Store.Redis.Password)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("server.grpc_health_port", 50051)
	v.SetDefault("assistant.user_name", "Sir")
	v.SetDefault("assistant.personality", "jarvis")
	v.SetDefault("assistant.language", "en")
	v.SetDefault("assistant.continuous", false)
	v.SetDefault("listen.cooldown", 500*time.Millisecond)
	v.SetDefault("gateway.endpoint", "http://localhost:5000/gemini")
	v.SetDefault("gateway.timeout", 10*time.Second)
	v.SetDefault("gateway.display_words", 13)
	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.sqlite.path", "jarvis.db")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "")
	v.SetDefault("tts.backend", "console")
	v.SetDefault("tts.piper.endpoint", "localhost:10200")
	v.SetDefault("tts.piper.output_dir", os.TempDir())
	v.SetDefault("proxy.port", 5000)
	v.SetDefault("proxy.backend", "gemini")
	v.SetDefault("proxy.gemini.api_key", "${GEMINI_API_KEY}")
	v.SetDefault("proxy.gemini.model", "gemini-2.0-flash")
	v.SetDefault("proxy.local.endpoint", "http://localhost:11434/v1/chat/completions")
	v.SetDefault("proxy.local.model", "llama3")
	v.SetDefault("proxy.rate_limit.rps", 0)
	v.SetDefault("proxy.rate_limit.burst", 5)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 7)
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch {
	case c.Gateway.Timeout <= 0:
		return fmt.Errorf("gateway.timeout must be positive, got %s", c.Gateway.Timeout)
	case c.Gateway.DisplayWords <= 0:
		return fmt.Errorf("gateway.display_words must be positive, got %d", c.Gateway.DisplayWords)
	case c.Listen.Cooldown < 0:
		return fmt.Errorf("listen.cooldown must not be negative, got %s", c.Listen.Cooldown)
	case c.Proxy.Port <= 0 || c.Proxy.Port > 65535:
		return fmt.Errorf("proxy.port out of range: %d", c.Proxy.Port)
	}

	switch c.Store.Backend {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.TTS.Backend {
	case "console", "piper":
	default:
		return fmt.Errorf("unknown tts backend %q", c.TTS.Backend)
	}
	switch c.Proxy.Backend {
	case "gemini", "local":
	default:
		return fmt.Errorf("unknown proxy backend %q", c.Proxy.Backend)
	}
	return nil
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		envKey := val[2 : len(val)-1]
		if envVal := os.Getenv(envKey); envVal != "" {
			return envVal
		}
		return ""
	}
	return val
}
