package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/toddfishman/meetini/internal/observability/context"
)

const (
	actorAPIKey    = "api_key"
	actorScheduler = "scheduler"

	headerCronSecret = "X-Cron-Secret"
)

// APIKeyRequired authenticates requests with one of the configured API keys.
// With no keys configured every request is rejected.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		presented := []byte(parts[1])
		matched := false
		for _, key := range s.apiKeys {
			if subtle.ConstantTimeCompare(presented, key) == 1 {
				matched = true
			}
		}
		if !matched {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), actorAPIKey, keyFingerprint(parts[1]))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CronSecretRequired guards the trigger endpoint with the shared secret.
func (s *Server) CronSecretRequired() gin.HandlerFunc {
	secret := []byte(s.cfg.Reminders.CronSecret)
	return func(c *gin.Context) {
		presented := strings.TrimSpace(c.GetHeader(headerCronSecret))
		if len(secret) == 0 || presented == "" ||
			subtle.ConstantTimeCompare([]byte(presented), secret) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), actorScheduler, "cron")
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func keyFingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:4])
}
