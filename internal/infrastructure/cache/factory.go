package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/erp/marketsync/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisPingTimeout = 5 * time.Second

// FactoryOption configures NewIdempotencyStore
type FactoryOption func(*factoryOptions)

type factoryOptions struct {
	logger        *zap.Logger
	allowFallback bool
}

// WithLogger sets the logger used to report the chosen backend
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(o *factoryOptions) { o.logger = logger }
}

// WithInMemoryFallback controls whether an unreachable Redis degrades to the
// in-memory store. Default true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(o *factoryOptions) { o.allowFallback = allow }
}

// NewIdempotencyStore builds the store selected by cfg.Backend
func NewIdempotencyStore(ctx context.Context, cfg config.IdempotencyConfig, redisCfg config.RedisConfig, opts ...FactoryOption) (shared.IdempotencyStore, error) {
	o := factoryOptions{logger: zap.NewNop(), allowFallback: true}
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.Backend != "redis" {
		o.logger.Info("Using in-memory idempotency store")
		return NewMemoryIdempotencyStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr(),
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		if !o.allowFallback {
			return nil, fmt.Errorf("cache: redis required for idempotency but unavailable: %w", err)
		}
		o.logger.Warn("Redis unavailable, falling back to in-memory idempotency store. "+
			"Duplicate tracking events may be applied again across instances.",
			zap.String("addr", redisCfg.Addr()),
			zap.Error(err),
		)
		return NewMemoryIdempotencyStore(), nil
	}

	o.logger.Info("Using Redis idempotency store", zap.String("addr", redisCfg.Addr()))
	return NewRedisIdempotencyStore(client, ""), nil
}
