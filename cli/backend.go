package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"eventide/config"
	"eventide/models"
	"eventide/store"
)

const connectTimeout = 10 * time.Second

// stores holds the opened collections and what must be closed afterwards.
type stores struct {
	users  *models.UserStore
	events *models.EventStore
	close  func()
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	backend, closeFn, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := []store.Option{
		store.WithMaxRetries(cfg.MutateMaxRetries),
		store.WithLogger(logger),
	}
	logger.Info("store ready", slog.String("backend", cfg.StoreBackend))

	return &stores{
		users:  models.NewUserStore(backend, opts...),
		events: models.NewEventStore(backend, opts...),
		close:  closeFn,
	}, nil
}

func openBackend(ctx context.Context, cfg *config.Config) (store.Backend, func(), error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch cfg.StoreBackend {
	case config.BackendMemory:
		return store.NewMemoryBackend(), func() {}, nil

	case config.BackendRedis:
		rdb, err := openRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		return store.NewRedisBackend(rdb, "eventide:"), func() { _ = rdb.Close() }, nil

	case config.BackendMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("mongo connect: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, fmt.Errorf("mongo ping: %w", err)
		}
		closeFn := func() { _ = client.Disconnect(context.Background()) }
		return store.NewMongoBackend(client.Database(cfg.MongoDatabase)), closeFn, nil

	case config.BackendPostgres:
		b, err := store.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { _ = b.Close() }, nil

	case config.BackendSQLite:
		b, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { _ = b.Close() }, nil
	}

	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func openRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}
