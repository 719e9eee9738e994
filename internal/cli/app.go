package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"courserag/internal/chunker"
	"courserag/internal/config"
	"courserag/internal/embedding"
	"courserag/internal/embedding/cache"
	"courserag/internal/embedding/hashing"
	"courserag/internal/embedding/openai"
	"courserag/internal/lock"
	"courserag/internal/logger"
	"courserag/internal/metrics"
	"courserag/internal/registry"
	"courserag/internal/resilience"
	"courserag/internal/service"
	"courserag/internal/source"
	"courserag/internal/store"
	"courserag/internal/vectorstore"
	"courserag/internal/vectorstore/memory"
	"courserag/internal/vectorstore/qdrant"
)

// app holds the components one command invocation works with.
type app struct {
	cfg     *config.AppConfig
	svc     *service.Service
	store   *store.Store
	cache   *cache.Embedder
	logger  *slog.Logger
	closers []func() error
}

func (a *app) onClose(fn func() error) { a.closers = append(a.closers, fn) }

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// build wires the configured implementations together and seeds the title
// registry from whatever the catalog already holds.
func build(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	a := &app{cfg: cfg, logger: logger.WithComponent("cli")}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	var rdb *redis.Client
	if cfg.Ingest.Lock == "redis" || cfg.Embedder.Cache.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		a.onClose(rdb.Close)
	}

	emb, err := newEmbedder(cfg, m)
	if err != nil {
		a.Close()
		return nil, err
	}
	if cfg.Embedder.Cache.Enabled {
		a.cache = cache.New(emb, rdb, cfg.Embedder.Cache.TTL)
		metrics.RegisterCacheStats(reg, a.cache.Stats)
		emb = a.cache
	}

	catalog, content := newCollections(cfg)
	a.store = store.New(catalog, content, emb, store.Options{
		MinResolveScore: cfg.Retrieval.MinResolveScore,
		MaxResults:      cfg.Retrieval.MaxResults,
	})
	ch, err := chunker.New(cfg.Chunker.Size, cfg.Chunker.Overlap)
	if err != nil {
		a.Close()
		return nil, err
	}

	var locker lock.Locker = lock.NewKeyed()
	if cfg.Ingest.Lock == "redis" {
		locker = lock.NewRedis(rdb, cfg.Ingest.LockTTL)
	}

	titles, err := newRegistry(ctx, cfg, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.svc = service.New(a.store, ch, titles, locker, service.Options{
		Timeout:          cfg.Retrieval.Timeout,
		RetryBackoff:     cfg.Retrieval.RetryBackoff,
		IngestWorkers:    cfg.Ingest.Workers,
		SummarySentences: cfg.Ingest.SummarySentences,
		Metrics:          m,
	})
	if _, err := a.svc.Load(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, reg)
		a.onClose(func() error {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return shutdown(sctx)
		})
	}
	return a, nil
}

func newEmbedder(cfg *config.AppConfig, m *metrics.Metrics) (embedding.Embedder, error) {
	switch cfg.Embedder.Type {
	case "openai":
		oc := cfg.Embedder.OpenAI
		client, err := openai.NewClient(openai.Config{
			BaseURL:           oc.BaseURL,
			APIKeyEnv:         oc.APIKeyEnv,
			Model:             oc.Model,
			Dimensions:        oc.Dimensions,
			Timeout:           time.Duration(oc.TimeoutSecs) * time.Second,
			MaxRetries:        oc.MaxRetries,
			RequestsPerSecond: oc.RequestsPerSecond,
			Breaker: resilience.CircuitBreakerConfig{
				OnStateChange: func(name string, to resilience.State) {
					m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	default:
		return hashing.NewEmbedder(cfg.Embedder.Hashing.Dimension), nil
	}
}

func newCollections(cfg *config.AppConfig) (catalog, content vectorstore.Collection) {
	if cfg.VectorStore.Type == "qdrant" {
		q := cfg.VectorStore.Qdrant
		timeout := time.Duration(q.TimeoutSecs) * time.Second
		catalog = qdrant.NewCollection(qdrant.Config{URL: q.URL, APIKey: q.APIKey, Collection: q.CatalogCollection, Timeout: timeout})
		content = qdrant.NewCollection(qdrant.Config{URL: q.URL, APIKey: q.APIKey, Collection: q.ContentCollection, Timeout: timeout})
		return catalog, content
	}
	return memory.NewCollection(), memory.NewCollection()
}

func newRegistry(ctx context.Context, cfg *config.AppConfig, a *app) (registry.Registry, error) {
	switch cfg.Ingest.Registry {
	case "postgres":
		pg, err := registry.OpenPostgres(ctx, registry.PostgresConfig{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(pg.Close)
		return pg, nil
	case "sqlite":
		s, err := registry.OpenSQLite(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		a.onClose(s.Close)
		return s, nil
	default:
		return registry.NewMemory(), nil
	}
}

// loadDocs ingests the configured documents folder, so that read commands
// against the in-memory store have something to search. Known titles are
// skipped, which makes this cheap for persistent stores.
func (a *app) loadDocs(ctx context.Context) error {
	dir := a.cfg.Ingest.DocsDir
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); err != nil {
		a.logger.Warn("documents folder not available", "dir", dir, "error", err)
		return nil
	}
	_, err := a.svc.IngestFolder(ctx, source.Dir{Path: dir}, false)
	return err
}
