package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/recordkit/recordkit/internal/httputil"
)

// authTimingFloor is the minimum response time for failed auth to prevent
// timing oracles that could distinguish valid from invalid API keys.
const authTimingFloor = 50 * time.Millisecond

// enforceTimingFloor sleeps if needed so the response takes at least authTimingFloor.
func enforceTimingFloor(start time.Time) {
	if elapsed := time.Since(start); elapsed < authTimingFloor {
		time.Sleep(authTimingFloor - elapsed)
	}
}

// APIKeyAuth returns Gin middleware that authenticates requests via Bearer
// token against a single configured key. An empty configured key disables
// authentication entirely; config validation only permits that on loopback
// listeners.
func APIKeyAuth(apiKey string, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		start := time.Now()
		defer func() {
			if c.Writer.Status() == http.StatusUnauthorized {
				enforceTimingFloor(start)
			}
		}()

		presented := ExtractBearerToken(c)
		if presented == "" {
			httputil.RespondError(c, http.StatusUnauthorized, "unauthorized", "missing or invalid authorization header")
			return
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(apiKey)) != 1 {
			logAuthFailure(log, c)
			httputil.RespondError(c, http.StatusUnauthorized, "unauthorized", "invalid api key")
			return
		}

		c.Next()
	}
}

// ExtractBearerToken extracts the API key from the Authorization header.
func ExtractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// logAuthFailure logs a failed authentication attempt.
func logAuthFailure(log *logrus.Logger, c *gin.Context) {
	log.WithFields(logrus.Fields{
		"client_ip":  c.ClientIP(),
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"user_agent": c.Request.UserAgent(),
		"request_id": c.GetString(RequestIDKey),
	}).Warn("authentication failed: invalid api key")
}
