package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"qaforge/internal/adapter/bolt"
	wstore "qaforge/internal/adapter/weaviate"
	"qaforge/internal/config"
	"qaforge/internal/index"
)

type Dependencies struct {
	DB          *sql.DB
	Backend     index.Backend
	NSQProducer *nsq.Producer

	closers []io.Closer
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.PingContext(ctx); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1)
		time.Sleep(retryDelay)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if err := migrateUp(db, cfg.MigrationPath); err != nil {
		_ = db.Close()
		return nil, err
	}

	deps := &Dependencies{DB: db, closers: []io.Closer{db}}

	backend, err := openBackend(cfg)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.Backend = backend
	if c, ok := backend.(io.Closer); ok {
		deps.closers = append(deps.closers, c)
	}

	if err := EnsureSchemaWithRetry(ctx, backend, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
		deps.Close()
		if cfg.VectorBackend == config.BackendWeaviate {
			return nil, fmt.Errorf("weaviate schema error: %w", err)
		}
		return nil, fmt.Errorf("vector schema error: %w", err)
	}

	producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("nsq producer error: %w", err)
	}
	deps.NSQProducer = producer

	createTopics(cfg.NSQDHTTP)

	return deps, nil
}

// Close stops the producer and releases the database and vector store.
func (d *Dependencies) Close() {
	if d.NSQProducer != nil {
		d.NSQProducer.Stop()
	}
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			slog.Warn("failed to close dependency", "error", err)
		}
	}
}

func migrateUp(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up error: %w", err)
	}
	return nil
}

func openBackend(cfg *config.Config) (index.Backend, error) {
	switch cfg.VectorBackend {
	case config.BackendBolt:
		if err := os.MkdirAll(filepath.Dir(cfg.BoltPath), 0o750); err != nil {
			return nil, fmt.Errorf("bolt directory error: %w", err)
		}
		store, err := bolt.Open(cfg.BoltPath, cfg.CollectionName)
		if err != nil {
			return nil, fmt.Errorf("bolt open error: %w", err)
		}
		return store, nil
	default:
		client, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
		if err != nil {
			return nil, fmt.Errorf("weaviate client error: %w", err)
		}
		return wstore.NewStore(client, cfg.CollectionName), nil
	}
}

func createTopics(nsqdHTTP string) {
	if nsqdHTTP == "" {
		return
	}
	create := func(topic string) {
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
		resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}

	go func() {
		time.Sleep(2 * time.Second)
		create(config.TopicBuild)
	}()
}

// EnsureSchemaWithRetry retries the schema check until it passes or attempts run out.
func EnsureSchemaWithRetry(ctx context.Context, store SchemaEnsurer, attempts int, delay time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = store.EnsureSchema(ctx); err == nil {
			return nil
		}
		if i < attempts-1 {
			slog.WarnContext(ctx, "vector schema not ready, retrying...", "attempt", i+1, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}
