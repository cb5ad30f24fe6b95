package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/twalsh/matchup-edge/internal/services"
	"github.com/twalsh/matchup-edge/pkg/utils"
)

// RateLimit guards an expensive route with the per-IP sliding window.
func RateLimit(limiter *services.RequestRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := limiter.Allow(c.ClientIP()); err != nil {
			utils.SendTooManyRequests(c, err.Error())
			c.Abort()
			return
		}
		c.Next()
	}
}
