package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db      *gorm.DB
	redis   *redis.Client
	version string
}

func NewHealthHandler(db *gorm.DB, rdb *redis.Client, version string) *HealthHandler {
	return &HealthHandler{db: db, redis: rdb, version: version}
}

// Live answers as long as the process is serving requests.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": h.version})
}

// Ready checks the dependencies the booking path cannot live without.
func (h *HealthHandler) Ready(c *gin.Context) {
	checkCtx, checkCancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer checkCancel()

	deps := gin.H{}
	healthy := true

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(checkCtx)
	}
	if err != nil {
		deps["database"] = "unreachable"
		healthy = false
	} else {
		deps["database"] = "ok"
	}

	if h.redis != nil {
		if err := h.redis.Ping(checkCtx).Err(); err != nil {
			deps["redis"] = "unreachable"
			healthy = false
		} else {
			deps["redis"] = "ok"
		}
	}

	status := http.StatusOK
	state := "ready"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":       state,
		"version":      h.version,
		"dependencies": deps,
		"checked_at":   time.Now().UTC(),
	})
}
