package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url" toml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env" toml:"api_key_env"`
	Model       string `yaml:"model" toml:"model"`
	Dimensions  int    `yaml:"dimensions" toml:"dimensions"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" toml:"max_retries"`
	// RequestsPerSecond throttles embedding calls; zero is unlimited.
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
}

// HashingEmbedderConfig configures the local feature-hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension" toml:"dimension"`
}

// EmbeddingCacheConfig enables the Redis embedding cache.
type EmbeddingCacheConfig struct {
	Enabled bool          `yaml:"enabled" toml:"enabled"`
	TTL     time.Duration `yaml:"ttl" toml:"ttl"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type    string                `yaml:"type" toml:"type"`
	Hashing HashingEmbedderConfig `yaml:"hashing" toml:"hashing"`
	OpenAI  *OpenAIEmbedderConfig `yaml:"openai,omitempty" toml:"openai,omitempty"`
	Cache   EmbeddingCacheConfig  `yaml:"cache" toml:"cache"`
}

// ChunkerConfig bounds chunk length and overlap, in characters.
type ChunkerConfig struct {
	Size    int `yaml:"size" toml:"size"`
	Overlap int `yaml:"overlap" toml:"overlap"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type" toml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty" toml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store. The
// catalog and content indices live in two collections.
type QdrantConfig struct {
	URL               string `yaml:"url" toml:"url"`
	APIKey            string `yaml:"api_key" toml:"api_key"`
	CatalogCollection string `yaml:"catalog_collection" toml:"catalog_collection"`
	ContentCollection string `yaml:"content_collection" toml:"content_collection"`
	TimeoutSecs       int    `yaml:"timeout_secs" toml:"timeout_secs"`
}

// RetrievalConfig tunes query-time behaviour.
type RetrievalConfig struct {
	MaxResults      int           `yaml:"max_results" toml:"max_results"`
	MinResolveScore float64       `yaml:"min_resolve_score" toml:"min_resolve_score"`
	Timeout         time.Duration `yaml:"timeout" toml:"timeout"`
	RetryBackoff    time.Duration `yaml:"retry_backoff" toml:"retry_backoff"`
}

// IngestConfig controls document loading.
type IngestConfig struct {
	DocsDir  string        `yaml:"docs_dir" toml:"docs_dir"`
	Workers  int           `yaml:"workers" toml:"workers"`
	Lock     string        `yaml:"lock" toml:"lock"`
	LockTTL  time.Duration `yaml:"lock_ttl" toml:"lock_ttl"`
	Registry string        `yaml:"registry" toml:"registry"`
	// SummarySentences is the length of lesson summaries in outlines; -1
	// disables them.
	SummarySentences int `yaml:"summary_sentences" toml:"summary_sentences"`
	// Schedule is a cron expression for periodic folder re-scans.
	Schedule string `yaml:"schedule" toml:"schedule"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" toml:"path"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
	PoolSize int    `yaml:"pool_size" toml:"pool_size"`
}

type PostgresConfig struct {
	DSN             string        `yaml:"dsn" toml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" toml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" toml:"conn_max_lifetime"`
}

type KafkaConfig struct {
	Brokers       []string `yaml:"brokers" toml:"brokers"`
	Topic         string   `yaml:"topic" toml:"topic"`
	ConsumerGroup string   `yaml:"consumer_group" toml:"consumer_group"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	Port    int  `yaml:"port" toml:"port"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder" toml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker" toml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store" toml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval" toml:"retrieval"`
	Ingest      IngestConfig      `yaml:"ingest" toml:"ingest"`
	Redis       RedisConfig       `yaml:"redis" toml:"redis"`
	Postgres    PostgresConfig    `yaml:"postgres" toml:"postgres"`
	SQLite      SQLiteConfig      `yaml:"sqlite" toml:"sqlite"`
	Kafka       KafkaConfig       `yaml:"kafka" toml:"kafka"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics" toml:"metrics"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Environment overrides are applied in both cases. Files ending in .toml are
// read as TOML, where durations are integer nanoseconds; anything else is YAML.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}
	cfg := defaultConfig()
	if err := unmarshal(path, data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/courserag/config.yaml.
// If neither exists, it writes defaults to ~/.config/courserag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnvOverrides(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var data []byte
	var err error
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func unmarshal(path string, data []byte, cfg *AppConfig) error {
	if isTOML(path) {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate reports settings that cannot work together.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Chunker.Size <= 0 {
		errs = append(errs, fmt.Errorf("chunker.size must be positive, got %d", c.Chunker.Size))
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.Size {
		errs = append(errs, fmt.Errorf("chunker.overlap must be in [0, chunker.size), got %d", c.Chunker.Overlap))
	}
	switch c.Embedder.Type {
	case "hashing":
	case "openai":
		if c.Embedder.OpenAI == nil {
			errs = append(errs, errors.New("embedder.openai section missing"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown embedder: %q", c.Embedder.Type))
	}
	switch c.VectorStore.Type {
	case "memory":
	case "qdrant":
		if c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "" {
			errs = append(errs, errors.New("vector_store.qdrant.url is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown vector store: %q", c.VectorStore.Type))
	}
	if c.Retrieval.MinResolveScore < 0 || c.Retrieval.MinResolveScore > 1 {
		errs = append(errs, fmt.Errorf("retrieval.min_resolve_score must be in [0, 1], got %v", c.Retrieval.MinResolveScore))
	}
	if c.Ingest.Lock != "memory" && c.Ingest.Lock != "redis" {
		errs = append(errs, fmt.Errorf("unknown ingest.lock: %q", c.Ingest.Lock))
	}
	switch c.Ingest.Registry {
	case "memory", "postgres":
	case "sqlite":
		if c.SQLite.Path == "" {
			errs = append(errs, errors.New("sqlite.path is required for the sqlite registry"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ingest.registry: %q", c.Ingest.Registry))
	}
	if c.Ingest.Registry != "memory" && c.VectorStore.Type == "memory" {
		errs = append(errs, fmt.Errorf("ingest.registry %q would outlive the in-memory vector store", c.Ingest.Registry))
	}
	if c.Ingest.Registry == "postgres" && c.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres.dsn is required for the postgres registry"))
	}
	if (c.Ingest.Lock == "redis" || c.Embedder.Cache.Enabled) && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required for the redis lock or embedding cache"))
	}
	return errors.Join(errs...)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "courserag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "hashing", Hashing: HashingEmbedderConfig{Dimension: 4096}, Cache: EmbeddingCacheConfig{TTL: 24 * time.Hour}},
		Chunker:     ChunkerConfig{Size: 800, Overlap: 100},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Retrieval: RetrievalConfig{
			MaxResults:      5,
			MinResolveScore: 0.35,
			Timeout:         30 * time.Second,
			RetryBackoff:    250 * time.Millisecond,
		},
		Ingest:   IngestConfig{DocsDir: "docs", Workers: 4, Lock: "memory", LockTTL: time.Minute, Registry: "memory", SummarySentences: 1},
		Redis:    RedisConfig{Addr: "localhost:6379", PoolSize: 10},
		Postgres: PostgresConfig{MaxOpenConns: 10, MaxIdleConns: 2, ConnMaxLifetime: 30 * time.Minute},
		SQLite:   SQLiteConfig{Path: filepath.Join(".courserag", "registry.db")},
		Kafka:    KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "course-documents", ConsumerGroup: "courserag-ingest"},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Metrics:  MetricsConfig{Port: 9102},
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
	if q := cfg.VectorStore.Qdrant; q != nil {
		if q.CatalogCollection == "" {
			q.CatalogCollection = "course_catalog"
		}
		if q.ContentCollection == "" {
			q.ContentCollection = "course_content"
		}
	}
}

// applyEnvOverrides reads CRAG_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("CRAG_DOCS_DIR"); v != "" {
		cfg.Ingest.DocsDir = v
	}
	if v := os.Getenv("CRAG_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Chunker.Size = n
		}
	}
	if v := os.Getenv("CRAG_CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Chunker.Overlap = n
		}
	}
	if v := os.Getenv("CRAG_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.MaxResults = n
		}
	}
	if v := os.Getenv("CRAG_MIN_RESOLVE_SCORE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Retrieval.MinResolveScore = f
		}
	}
	if v := os.Getenv("CRAG_RETRIEVAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retrieval.Timeout = d
		}
	}
	if v := os.Getenv("CRAG_QDRANT_URL"); v != "" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		cfg.VectorStore.Qdrant.URL = v
		applyConfigDefaults(cfg)
	}
	if v := os.Getenv("CRAG_QDRANT_API_KEY"); v != "" && cfg.VectorStore.Qdrant != nil {
		cfg.VectorStore.Qdrant.APIKey = v
	}
	if v := os.Getenv("CRAG_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CRAG_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CRAG_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("CRAG_SQLITE_PATH"); v != "" {
		cfg.SQLite.Path = v
	}
	if v := os.Getenv("CRAG_INGEST_SCHEDULE"); v != "" {
		cfg.Ingest.Schedule = v
	}
	if v := os.Getenv("CRAG_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CRAG_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CRAG_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
