package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tokenledger/internal/observability/logger"
	"go.uber.org/zap"
)

const rateLimitReasonUserRate = "user-rate"

// allowUsageIngest applies the per-user token bucket. It aborts the request
// and reports false when the caller must back off.
func (s *Server) allowUsageIngest(c *gin.Context, userID string) bool {
	if !s.usageLimiter.Enabled() {
		return true
	}

	ctx := c.Request.Context()
	res, err := s.usageLimiter.AllowUser(ctx, userID)
	if err != nil {
		logger.FromContext(ctx).Warn("usage ingest rate limit check failed", zap.Error(err))
		AbortWithError(c, ErrServiceUnavailable)
		return false
	}
	if res.Allowed {
		return true
	}

	logger.FromContext(ctx).Warn("usage ingest rate limit exceeded",
		zap.String("reason", rateLimitReasonUserRate),
		zap.String("user_id", userID),
	)
	retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.Header("X-Rate-Limited-Reason", rateLimitReasonUserRate)
	AbortWithError(c, ErrRateLimited)
	return false
}
