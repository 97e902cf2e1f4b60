package ratelimit

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/authcore/internal/observability/metrics"
)

// Middleware enforces the endpoint's limit before the handler runs.
// Callers are keyed by client_id when the request carries one, falling
// back to the client address.
func Middleware(limiter *Limiter, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = c.Request.URL.Path
		}
		// Config rows key endpoints without the leading slash.
		endpoint = strings.TrimPrefix(endpoint, "/")

		caller := callerKey(c)
		decision := limiter.Check(c.Request.Context(), endpoint, caller)
		if decision.Allowed {
			m.RecordRateLimitAllowed(c.Request.Context(), endpoint)
			c.Next()
			return
		}

		m.RecordRateLimitDenied(c.Request.Context(), endpoint)
		c.Header("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":             "too_many_requests",
			"error_description": "rate limit exceeded, retry later",
		})
	}
}

func callerKey(c *gin.Context) string {
	// PostForm and Query cover both token requests and the authorize
	// redirect without consuming the body for JSON payloads.
	if clientID := c.PostForm("client_id"); clientID != "" {
		return clientID
	}
	if clientID := c.Query("client_id"); clientID != "" {
		return clientID
	}
	return ClientIP(c.Request)
}
