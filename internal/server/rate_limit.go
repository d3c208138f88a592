package server

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/seatly/internal/actorcontext"
	"github.com/smallbiznis/seatly/internal/config"
	"github.com/smallbiznis/seatly/internal/observability/logger"
	"github.com/smallbiznis/seatly/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	rateLimitReasonActorRate = "actor-rate"
	rateLimitWindow          = time.Minute
)

// rateLimit applies a per-actor budget read from the live seat policy, so a
// policy reload changes the limit without a restart.
func (s *Server) rateLimit(name string, perMinute func(config.SeatPolicy) int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		actor, ok := actorcontext.FromContext(ctx)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		limit := perMinute(s.policy.Get())
		if limit <= 0 {
			c.Next()
			return
		}

		endpoint := normalizeRateLimitEndpoint(c)
		key := name + ":" + actor.UserID.String()
		result, err := s.limiter.Allow(ctx, key, ratelimit.Rule{Limit: limit, Window: rateLimitWindow})
		if err != nil {
			logger.FromContext(ctx).Warn("rate limit check failed", zap.String("endpoint", endpoint), zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			logger.FromContext(ctx).Warn("rate limit exceeded",
				zap.String("reason", rateLimitReasonActorRate),
				zap.String("endpoint", endpoint),
			)
			s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, rateLimitReasonActorRate)
			c.Header("Retry-After", retryAfterSeconds(result.RetryAfter))
			c.Header("X-Rate-Limited-Reason", rateLimitReasonActorRate)
			AbortWithError(c, ErrRateLimited)
			return
		}

		s.obsMetrics.RecordRateLimitAllowed(ctx, endpoint)
		c.Next()
	}
}

func retryAfterSeconds(d time.Duration) string {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
