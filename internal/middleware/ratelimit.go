package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/filevault/internal/apperr"
	"github.com/filevault/internal/ratelimit"
)

// RateLimitMiddleware throttles by client IP. A limiter backend failure
// lets the request through.
func RateLimitMiddleware(limiter ratelimit.Limiter, logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := limiter.Allow(c.Request.Context(), c.FullPath()+"|"+c.ClientIP())
		if err != nil {
			logger.WithError(err).Warn("rate limiter unavailable")
			c.Next()
			return
		}
		if !allowed {
			err := apperr.RateLimited()
			c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{"message": apperr.PublicMessage(err)})
			return
		}
		c.Next()
	}
}
