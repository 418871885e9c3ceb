// Package app assembles stores, services and handlers from configuration.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ayush/personal-library/internal/auth"
	"github.com/ayush/personal-library/internal/books"
	"github.com/ayush/personal-library/internal/config"
	"github.com/ayush/personal-library/internal/middleware"
	"github.com/ayush/personal-library/internal/store"
)

// App is a fully wired API ready to be served.
type App struct {
	Handler http.Handler

	closers []func()
}

// New connects every backend cfg selects and wires the handlers. On error all
// connections opened so far are closed.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *App, err error) {
	a := &App{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	backends := map[string]interface {
		auth.UserStore
		books.Store
	}{}

	if cfg.Uses(config.StorePostgres) {
		pool, err := store.NewPostgresPool(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		if err := migratePostgres(ctx, pool, log); err != nil {
			return nil, err
		}
		backends[config.StorePostgres] = store.NewPostgresStore(pool)
		log.Info("postgres connected", zap.Int32("max_conns", pool.Config().MaxConns))
	}

	if cfg.Uses(config.StoreMongo) {
		client, err := store.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { client.Disconnect(context.Background()) })
		ms := store.NewMongoStore(client.Database(cfg.MongoDB))
		if err := ms.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		backends[config.StoreMongo] = ms
		log.Info("mongo connected", zap.String("db", cfg.MongoDB))
	}

	if cfg.Uses(config.StoreSQLite) {
		ss, err := store.OpenSQLite(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { ss.Close() })
		backends[config.StoreSQLite] = ss
		log.Info("sqlite opened", zap.String("path", cfg.SQLitePath))
	}

	users, ok := backends[cfg.UserStore]
	if !ok {
		return nil, fmt.Errorf("unknown user store %q", cfg.UserStore)
	}
	bookStore, ok := backends[cfg.BookStore]
	if !ok {
		return nil, fmt.Errorf("unknown book store %q", cfg.BookStore)
	}

	var (
		rdb         *redis.Client
		revoker     auth.Revoker
		revocations middleware.RevocationChecker
		limiter     *middleware.RateLimiter
	)
	if cfg.RedisAddr != "" {
		rdb, err = store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { rdb.Close() })
		rs := auth.NewRevocationStore(rdb)
		revoker, revocations = rs, rs
		limiter = middleware.NewRateLimiter(rdb, cfg.RateLimitRequests, cfg.RateLimitWindow, log)
		log.Info("redis connected", zap.String("addr", cfg.RedisAddr))
	} else {
		log.Warn("redis not configured: logout revocation and rate limiting disabled")
	}

	var covers books.FileStore
	if cfg.MinioEndpoint != "" {
		ms, err := store.NewMinioStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, err
		}
		covers = ms
		log.Info("minio connected", zap.String("bucket", cfg.MinioBucket))
	}

	hasher, err := auth.NewPasswordHasher(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTTTL, cfg.JWTIssuer)
	if err != nil {
		return nil, err
	}

	identity := auth.NewService(users, hasher, tokens, revoker, uuid.NewString, log.Named("auth"))
	policy := books.NewPolicy(bookStore, covers, log.Named("books"))

	a.Handler = NewRouter(RouterDeps{
		Auth:           auth.NewHandler(identity, log),
		Books:          books.NewHandler(policy, log),
		Tokens:         tokens,
		Revocations:    revocations,
		Limiter:        limiter,
		AllowedOrigins: cfg.AllowedOrigins,
		TrustProxy:     cfg.TrustProxy,
		Log:            log,
	})
	return a, nil
}

// Close releases every backend connection in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func migratePostgres(ctx context.Context, pool *pgxpool.Pool, log *zap.Logger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	return store.Migrate(ctx, db, goose.DialectPostgres, log)
}
