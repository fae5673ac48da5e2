// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	APIs     APIsConfig     `mapstructure:"apis"`
	Scoring  ScoringConfig  `mapstructure:"scoring"`
	Search   SearchConfig   `mapstructure:"search"`
	Sources  SourcesConfig  `mapstructure:"sources"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SourcesConfig selects backing implementations for pluggable data sources.
type SourcesConfig struct {
	// Cases selects where candidate cases come from: "api" (the fox
	// client) or "postgres" (a local mirror of the case tables).
	Cases string `mapstructure:"cases"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	RequestTimeout  int    `mapstructure:"request_timeout"`  // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// APIsConfig holds settings for external API integrations.
type APIsConfig struct {
	Fox struct {
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
		Timeout int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"fox"`

	GenAI struct {
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
		Model   string `mapstructure:"model"`
		Timeout int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"genai"`
}

// ScoringConfig controls the AI scoring orchestrator and its fallback.
type ScoringConfig struct {
	Enabled bool `mapstructure:"enabled"`

	BatchSize  int `mapstructure:"batch_size"`
	MaxRetries int `mapstructure:"max_retries"`

	// ParallelThreshold is the batch count above which batches are scored
	// concurrently by a worker pool of PoolSize goroutines.
	ParallelThreshold int `mapstructure:"parallel_threshold"`
	PoolSize          int `mapstructure:"pool_size"`

	// Deadline is the request-level scoring budget in milliseconds.
	Deadline int `mapstructure:"deadline"`

	Cache CacheConfig `mapstructure:"cache"`
}

type CacheConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Backend    string `mapstructure:"backend"` // "memory" or "redis"
	MaxEntries int    `mapstructure:"max_entries"`
	TTL        int    `mapstructure:"ttl"` // seconds, redis backend only
}

// SearchConfig holds request parameter bounds and defaults.
type SearchConfig struct {
	DefaultRadiusMiles float64 `mapstructure:"default_radius_miles"`
	MaxRadiusMiles     float64 `mapstructure:"max_radius_miles"`
	DefaultLimit       int     `mapstructure:"default_limit"`
	MaxLimit           int     `mapstructure:"max_limit"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
