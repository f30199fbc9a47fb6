package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	pingDB    func(ctx context.Context) error
	pingRedis func(ctx context.Context) error
}

func NewHealthHandler(pingDB, pingRedis func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{
		pingDB:    pingDB,
		pingRedis: pingRedis,
	}
}

// Healthz is liveness only: the process is up.
func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz checks the dependencies a request actually needs. Redis is a read
// accelerator, so its outage degrades readiness but does not fail it.
func (h *HealthHandler) Readyz(ctx *gin.Context) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 1*time.Second)

	defer cancel()

	if h.pingDB != nil {
		if err := h.pingDB(cctx); err != nil {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not_ready",
				"db":     "down",
			})
			return
		}
	}

	redisState := "ok"

	if h.pingRedis != nil {
		if err := h.pingRedis(cctx); err != nil {
			redisState = "down"
		}
	}

	ctx.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"redis":  redisState,
	})
}
