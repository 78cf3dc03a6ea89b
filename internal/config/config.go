package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

type GraphConfig struct {
	URI                 string `toml:"uri"`
	User                string `toml:"user"`
	Password            string `toml:"password"`
	Database            string `toml:"database"`
	MaxPoolSize         int    `toml:"max_pool_size"`
	QueryTimeoutSeconds int    `toml:"query_timeout_seconds"`
}

func (g GraphConfig) QueryTimeout() time.Duration {
	return time.Duration(g.QueryTimeoutSeconds) * time.Second
}

type EmbeddingConfig struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	BatchSize int    `toml:"batch_size"`
}

type MatchingConfig struct {
	FuzzyThreshold     int     `toml:"fuzzy_threshold"`
	EmbeddingThreshold float64 `toml:"embedding_threshold"`
}

type ConcurrencyConfig struct {
	// Workers bounds the cascade worker pool. Zero means one per CPU.
	Workers int `toml:"workers"`
}

type RetryConfig struct {
	MaxAttempts       int `toml:"max_attempts"`
	InitialIntervalMs int `toml:"initial_interval_ms"`
	MaxIntervalMs     int `toml:"max_interval_ms"`
}

type ExportConfig struct {
	MatchesCSV       string `toml:"matches_csv"`
	CrossRefTurtle   string `toml:"crossref_turtle"`
	SummaryJSON      string `toml:"summary_json"`
	CyberNamespace   string `toml:"cyber_namespace"`
	UnifiedNamespace string `toml:"unified_namespace"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	TTLHours int    `toml:"ttl_hours"`
}

type TracingConfig struct {
	Enabled bool   `toml:"enabled"`
	Service string `toml:"service"`
}

type LogConfig struct {
	Mode string `toml:"mode"`
}

type ServerConfig struct {
	Port string `toml:"port"`
}

type Config struct {
	Graph       GraphConfig       `toml:"graph"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Matching    MatchingConfig    `toml:"matching"`
	Concurrency ConcurrencyConfig `toml:"concurrency"`
	Retry       RetryConfig       `toml:"retry"`
	Export      ExportConfig      `toml:"export"`
	Redis       RedisConfig       `toml:"redis"`
	Tracing     TracingConfig     `toml:"tracing"`
	Log         LogConfig         `toml:"log"`
	Server      ServerConfig      `toml:"server"`
}

func Default() *Config {
	return &Config{
		Graph: GraphConfig{
			URI:                 "bolt://localhost:7687",
			User:                "neo4j",
			MaxPoolSize:         50,
			QueryTimeoutSeconds: 30,
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			Model:     "nomic-embed-text",
			BaseURL:   "http://localhost:11434",
			BatchSize: 64,
		},
		Matching: MatchingConfig{
			FuzzyThreshold:     90,
			EmbeddingThreshold: 0.85,
		},
		Retry: RetryConfig{
			MaxAttempts:       3,
			InitialIntervalMs: 200,
			MaxIntervalMs:     5000,
		},
		Export: ExportConfig{
			MatchesCSV:       "data/predictions/aligned_cves.csv",
			CrossRefTurtle:   "exports/kg_fusionne.ttl",
			SummaryJSON:      "exports/run_summary.json",
			CyberNamespace:   "http://example.org/cyber#",
			UnifiedNamespace: "http://example.org/unified#",
		},
		Redis: RedisConfig{
			TTLHours: 24 * 7,
		},
		Tracing: TracingConfig{
			Service: "kgfuse",
		},
		Log: LogConfig{
			Mode: "dev",
		},
		Server: ServerConfig{
			Port: "8080",
		},
	}
}

// Load reads path on top of Default. A missing file is not an error when
// allowMissing is set; environment overrides are applied in both cases.
func Load(path string, allowMissing bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	case os.IsNotExist(err) && allowMissing:
	default:
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// LoadDotEnv loads a .env file into the process environment if one exists.
func LoadDotEnv(paths ...string) {
	_ = godotenv.Load(paths...)
}

func (c *Config) ApplyEnv() {
	setString(&c.Graph.URI, "NEO4J_URI")
	setString(&c.Graph.User, "NEO4J_USER")
	setString(&c.Graph.Password, "NEO4J_PASSWORD")
	setString(&c.Graph.Database, "NEO4J_DATABASE")
	setInt(&c.Graph.QueryTimeoutSeconds, "NEO4J_TIMEOUT_SECONDS")
	setInt(&c.Graph.MaxPoolSize, "NEO4J_MAX_POOL_SIZE")

	setString(&c.Embedding.Provider, "EMBEDDING_PROVIDER")
	setString(&c.Embedding.Model, "EMBEDDING_MODEL")
	setString(&c.Embedding.APIKey, "EMBEDDING_API_KEY")
	setString(&c.Embedding.BaseURL, "EMBEDDING_BASE_URL")

	setInt(&c.Concurrency.Workers, "KGFUSE_WORKERS")

	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")

	setString(&c.Log.Mode, "LOG_MODE")
	setString(&c.Server.Port, "PORT")
}

func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Graph.URI) == "" {
		problems = append(problems, "graph.uri is required")
	}
	if c.Graph.QueryTimeoutSeconds <= 0 {
		problems = append(problems, "graph.query_timeout_seconds must be positive")
	}
	switch strings.ToLower(c.Embedding.Provider) {
	case "openai", "gemini", "ollama":
	case "":
		problems = append(problems, "embedding.provider is required")
	default:
		problems = append(problems, fmt.Sprintf("embedding.provider %q does not provide embeddings", c.Embedding.Provider))
	}
	if strings.TrimSpace(c.Embedding.Model) == "" {
		problems = append(problems, "embedding.model is required")
	}
	if c.Embedding.BatchSize <= 0 {
		problems = append(problems, "embedding.batch_size must be positive")
	}
	if c.Matching.FuzzyThreshold < 0 || c.Matching.FuzzyThreshold > 100 {
		problems = append(problems, "matching.fuzzy_threshold must be within [0,100]")
	}
	if c.Matching.EmbeddingThreshold < -1 || c.Matching.EmbeddingThreshold > 1 {
		problems = append(problems, "matching.embedding_threshold must be within [-1,1]")
	}
	if c.Concurrency.Workers < 0 {
		problems = append(problems, "concurrency.workers must not be negative")
	}
	if c.Retry.MaxAttempts < 1 {
		problems = append(problems, "retry.max_attempts must be at least 1")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func setString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	v := strings.TrimSpace(os.Getenv(env))
	if v == "" {
		return
	}
	if i, err := strconv.Atoi(v); err == nil {
		*dst = i
	}
}
