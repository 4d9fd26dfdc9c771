// Package app loads the evchat configuration and wires the service.
package app

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/randalmurphal/turngraph/pkg/turngraph/config"
)

// EnvPrefix prefixes environment overrides: EVCHAT_LLM_BASE_URL sets
// llm.base_url.
const EnvPrefix = "EVCHAT_"

// Config is the evchat process configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Server     ServerConfig     `mapstructure:"server"`
	Engine     EngineConfig     `mapstructure:"engine"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LLMConfig points at an OpenAI-compatible endpoint (OpenAI, Ollama, vLLM).
type LLMConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	ClassifierModel string        `mapstructure:"classifier_model"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	Workers         int           `mapstructure:"workers"`
}

// DatabaseConfig selects the analytics database. DSN wins over the
// host/port/user/password/name fields.
type DatabaseConfig struct {
	Driver       string        `mapstructure:"driver"`
	DSN          string        `mapstructure:"dsn"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	Name         string        `mapstructure:"name"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
	MaxRows      int           `mapstructure:"max_rows"`
}

// CheckpointConfig selects the checkpoint backend: memory, sqlite or redis.
type CheckpointConfig struct {
	Backend       string        `mapstructure:"backend"`
	Path          string        `mapstructure:"path"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// EngineConfig tunes turn execution. Metrics is none, otel or prometheus.
// OTel metrics and traces are pushed over OTLP/HTTP to OTLPEndpoint.
type EngineConfig struct {
	StepCeiling  int           `mapstructure:"step_ceiling"`
	NodeTimeout  time.Duration `mapstructure:"node_timeout"`
	Metrics      string        `mapstructure:"metrics"`
	Tracing      bool          `mapstructure:"tracing"`
	OTLPEndpoint string        `mapstructure:"otlp_endpoint"`
}

func defaults() config.Config {
	return config.New(map[string]any{
		"log": map[string]any{
			"level":  "info",
			"format": "text",
		},
		"llm": map[string]any{
			"base_url":     "http://localhost:11434/v1/",
			"api_key":      "ollama",
			"model":        "gpt-oss:20b",
			"timeout":      "2m",
			"max_attempts": 3,
			"workers":      4,
		},
		"database": map[string]any{
			"driver":         "pgx",
			"port":           5432,
			"max_open_conns": 10,
			"max_idle_conns": 1,
			"query_timeout":  "30s",
		},
		"checkpoint": map[string]any{
			"backend": "memory",
			"path":    "evchat-checkpoints.db",
			"ttl":     "24h",
		},
		"server": map[string]any{
			"addr":            ":8004",
			"allowed_origins": []any{"http://localhost:3004", "http://127.0.0.1:3004"},
		},
		"engine": map[string]any{
			"step_ceiling":  20,
			"metrics":       "none",
			"otlp_endpoint": "http://localhost:4318",
		},
	})
}

// Load builds the configuration from defaults, then the file at path (if
// non-empty), then DB_* variables, then EVCHAT_* variables.
func Load(path string, environ []string) (Config, error) {
	c := defaults()
	if path != "" {
		file, err := config.FromFile(path)
		if err != nil {
			return Config{}, err
		}
		c = c.Merge(file)
	}

	// DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME
	if db := config.FromEnv("DB_", environ); len(db.Raw()) > 0 {
		c = c.Merge(config.New(map[string]any{"database": db.Raw()}))
	}
	c = c.Merge(config.FromEnv(EnvPrefix, environ))

	var cfg Config
	if err := c.Decode(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadProcess is Load with the process environment.
func LoadProcess(path string) (Config, error) {
	return Load(path, os.Environ())
}

// DataSource returns the DSN for the configured driver.
func (d DatabaseConfig) DataSource() (string, error) {
	if d.DSN != "" {
		return d.DSN, nil
	}
	if d.Driver == "sqlite" {
		return "", fmt.Errorf("database.dsn is required for sqlite")
	}
	if d.Host == "" {
		return "", fmt.Errorf("database.dsn or database.host is required")
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, fmt.Sprint(d.Port)),
		Path:   "/" + d.Name,
	}
	if d.User != "" {
		u.User = url.UserPassword(d.User, d.Password)
	}
	return u.String(), nil
}
