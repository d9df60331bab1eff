package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PublicLinkRateLimit throttles unauthenticated link lookups per client IP.
// It fails open when redis is unavailable.
func (s *Server) PublicLinkRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.linkLimiter == nil || !s.linkLimiter.Enabled() {
			c.Next()
			return
		}

		allowed, retryAfter, err := s.linkLimiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			s.log.Warn("public_link.rate_limit_unavailable", zap.Error(err))
		}
		if !allowed {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}
