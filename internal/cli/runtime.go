// Package cli holds the engine's operator commands.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"innovation/engine/internal/app"
	"innovation/engine/internal/config"
	"innovation/engine/internal/events"
	"innovation/engine/internal/logging"
	"innovation/engine/internal/projection"
	"innovation/engine/internal/store"
)

// runtime is everything a command needs, opened from the environment.
type runtime struct {
	cfg         config.Config
	log         zerolog.Logger
	db          *sql.DB
	publisher   *events.RedisPublisher
	projections *projection.Cache
	service     *app.Service
}

// openRuntime connects to postgres and, when REDIS_URL is set, to redis. A redis
// that cannot be reached only disables events and projections.
func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		ServiceName: cfg.ServiceName,
	})

	db, err := store.Open(ctx, cfg.DatabaseURL, cfg.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	rt := &runtime{cfg: cfg, log: log, db: db}

	opts := []app.Option{app.WithLogger(log)}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		publisher, err := events.NewRedisPublisher(cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable; events disabled")
		} else {
			rt.publisher = publisher
			opts = append(opts, app.WithPublisher(publisher))
		}
		cache, err := projection.NewCacheFromURL(cfg.RedisURL, cfg.ProjectionTTL)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable; projection cache disabled")
		} else {
			rt.projections = cache
			opts = append(opts, app.WithProjectionCache(cache))
		}
	} else {
		log.Info().Msg("REDIS_URL not set; events and projection cache disabled")
	}

	rt.service = app.NewService(cfg, store.NewPostgresStore(db), opts...)
	return rt, nil
}

func (r *runtime) Close() {
	if r.publisher != nil {
		_ = r.publisher.Close()
	}
	if r.projections != nil {
		_ = r.projections.Close()
	}
	if r.db != nil {
		_ = r.db.Close()
	}
}

// withRuntime opens a runtime for the duration of fn.
func withRuntime(ctx context.Context, fn func(rt *runtime) error) error {
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}
