package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. HARMONI_LLM_API_KEY.
const EnvPrefix = "HARMONI_"

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig    `json:"basic_config" yaml:"basic_config"`
	Database    DatabaseConfig `json:"database" yaml:"database" envPrefix:"DB_"`
	Redis       RedisConfig    `json:"redis" yaml:"redis" envPrefix:"REDIS_"`
	Chat        ChatConfig     `json:"chat" yaml:"chat" envPrefix:"LLM_"`
	Auth        AuthConfig     `json:"auth" yaml:"auth" envPrefix:"AUTH_"`
}

type BasicConfig struct {
	ServerAddress  string   `json:"server_address" yaml:"server_address" env:"SERVER_ADDRESS"`
	GinMode        string   `json:"gin_mode" yaml:"gin_mode" env:"GIN_MODE"`
	LogLevel       string   `json:"log_level" yaml:"log_level" env:"LOG_LEVEL"`
	Development    bool     `json:"development" yaml:"development" env:"DEVELOPMENT"`
	AdminToken     string   `json:"admin_token" yaml:"admin_token" env:"ADMIN_TOKEN"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// DatabaseConfig selects and addresses the relational store. Driver is one
// of sqlite3, mysql or postgres.
type DatabaseConfig struct {
	Driver   string `json:"driver" yaml:"driver" env:"DRIVER"`
	DSN      string `json:"dsn" yaml:"dsn" env:"DSN"`
	Host     string `json:"host" yaml:"host" env:"HOST"`
	Port     int    `json:"port" yaml:"port" env:"PORT"`
	Username string `json:"username" yaml:"username" env:"USERNAME"`
	Password string `json:"password" yaml:"password" env:"PASSWORD"`
	DBName   string `json:"db_name" yaml:"db_name" env:"NAME"`
	Params   string `json:"params" yaml:"params" env:"PARAMS"`
}

type RedisConfig struct {
	Host                 string `json:"host" yaml:"host" env:"HOST"`
	Port                 int    `json:"port" yaml:"port" env:"PORT"`
	Username             string `json:"username" yaml:"username" env:"USERNAME"`
	Password             string `json:"password" yaml:"password" env:"PASSWORD"`
	DB                   int    `json:"db" yaml:"db" env:"DB"`
	ConversationTTLHours int    `json:"conversation_ttl_hours" yaml:"conversation_ttl_hours" env:"CONVERSATION_TTL_HOURS"`
	TimeoutSeconds       int    `json:"timeout_seconds" yaml:"timeout_seconds" env:"TIMEOUT_SECONDS"`
}

// ChatConfig configures the LLM provider used by the chat orchestrator.
type ChatConfig struct {
	Provider              string  `json:"provider" yaml:"provider" env:"PROVIDER"`
	Model                 string  `json:"model" yaml:"model" env:"MODEL"`
	BaseURL               string  `json:"base_url" yaml:"base_url" env:"BASE_URL"`
	APIKey                string  `json:"api_key" yaml:"api_key" env:"API_KEY"`
	Temperature           float32 `json:"temperature" yaml:"temperature" env:"TEMPERATURE"`
	TopP                  float32 `json:"top_p" yaml:"top_p" env:"TOP_P"`
	MaxTokens             int     `json:"max_tokens" yaml:"max_tokens" env:"MAX_TOKENS"`
	TimeoutSeconds        int     `json:"timeout_seconds" yaml:"timeout_seconds" env:"TIMEOUT_SECONDS"`
	BreakerTimeoutSeconds int     `json:"breaker_timeout_seconds" yaml:"breaker_timeout_seconds" env:"BREAKER_TIMEOUT_SECONDS"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret" env:"JWT_SECRET"`
}

// Load reads configuration from the provided path (defaults to config.json),
// then applies HARMONI_* environment overrides. A missing default file is
// not an error so the service can run from the environment alone.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	var cfg Config
	data, err := os.ReadFile(absPath)
	switch {
	case err == nil:
		if err := decode(absPath, data, &cfg); err != nil {
			return nil, err
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env overrides: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.Database.Driver == "sqlite3" && isRelativeFile(cfg.Database.DSN) {
		cfg.Database.DSN = filepath.Join(filepath.Dir(absPath), cfg.Database.DSN)
	}
	return &cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = ":8090"
	}
	if c.BasicConfig.LogLevel == "" {
		c.BasicConfig.LogLevel = "info"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	c.Database.Driver = NormalizeDriver(c.Database.Driver)
	if c.Database.Driver == "sqlite3" && c.Database.DSN == "" {
		c.Database.DSN = "data/harmoni.db"
	}
	if c.Redis.Host == "" {
		c.Redis.Host = "127.0.0.1"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.ConversationTTLHours <= 0 {
		c.Redis.ConversationTTLHours = 30 * 24
	}
	if c.Redis.TimeoutSeconds <= 0 {
		c.Redis.TimeoutSeconds = 2
	}
	if c.Chat.Provider == "" {
		c.Chat.Provider = "gemini"
	}
	c.Chat.Provider = strings.ToLower(c.Chat.Provider)
	if c.Chat.Model == "" {
		c.Chat.Model = defaultModels[c.Chat.Provider]
	}
	if c.Chat.Temperature == 0 {
		c.Chat.Temperature = 0.7
	}
	if c.Chat.TopP == 0 {
		c.Chat.TopP = 0.9
	}
	if c.Chat.MaxTokens <= 0 {
		c.Chat.MaxTokens = 1000
	}
	if c.Chat.TimeoutSeconds <= 0 {
		c.Chat.TimeoutSeconds = 30
	}
	if c.Chat.BreakerTimeoutSeconds <= 0 {
		c.Chat.BreakerTimeoutSeconds = 60
	}
}

var defaultModels = map[string]string{
	"gemini": "gemini-1.5-flash",
	"openai": "gpt-4o-mini",
	"claude": "claude-3-5-haiku-latest",
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite3", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if _, ok := defaultModels[c.Chat.Provider]; !ok {
		return fmt.Errorf("unsupported chat provider: %s", c.Chat.Provider)
	}
	return nil
}

// NormalizeDriver folds driver aliases onto sqlite3, mysql and postgres.
func NormalizeDriver(driver string) string {
	switch d := strings.ToLower(strings.TrimSpace(driver)); d {
	case "sqlite", "sqlite3":
		return "sqlite3"
	case "postgres", "postgresql", "pgx":
		return "postgres"
	default:
		return d
	}
}

// ConversationTTL is the rolling expiry applied to stored conversations.
func (r RedisConfig) ConversationTTL() time.Duration {
	return time.Duration(r.ConversationTTLHours) * time.Hour
}

// Timeout bounds a single store round trip.
func (r RedisConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// Timeout bounds a single provider call.
func (c ChatConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func isRelativeFile(dsn string) bool {
	if dsn == "" || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return false
	}
	return !filepath.IsAbs(dsn)
}
