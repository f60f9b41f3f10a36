package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"roommate/server/internal/auth"
	"roommate/server/internal/models"
)

const actorKey = "actor"

// RequireActor reads the caller identity set by the session layer in front
// of this service. Requests without one never reach a handler.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.GetHeader("X-Actor-ID"), 10, 64)
		if err != nil || id == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid X-Actor-ID header"})
			return
		}

		role := models.Role(c.GetHeader("X-Actor-Role"))
		if role != models.RoleTenant && role != models.RoleLandlord {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "X-Actor-Role must be TENANT or LANDLORD"})
			return
		}

		c.Set(actorKey, auth.Actor{ID: uint(id), Role: role})
		c.Next()
	}
}

func actorFrom(c *gin.Context) auth.Actor {
	return c.MustGet(actorKey).(auth.Actor)
}

// RequestLogger logs one line per request through logrus
func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("Request failed")
			return
		}
		entry.Debug("Request handled")
	}
}
