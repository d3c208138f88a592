package ratelimit

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/seatly/internal/clock"
	"github.com/smallbiznis/seatly/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(NewLimiter),
)

// NewLimiter picks the Redis token bucket when a Redis address is
// configured and the in-process fixed window otherwise.
func NewLimiter(lc fx.Lifecycle, cfg config.Config, c clock.Clock, log *zap.Logger) Limiter {
	log = log.Named("ratelimit")
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		log.Info("rate limiting disabled")
		return Unlimited{}
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		log.Info("rate limiting in process memory")
		return NewFixedWindow(c)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("rate limit redis unreachable", zap.String("addr", addr), zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	log.Info("rate limiting via redis", zap.String("addr", addr))
	return NewTokenBucket(client)
}
