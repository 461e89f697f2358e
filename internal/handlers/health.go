package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/snapgram/internal/logger"
	"go.uber.org/zap"
)

// Health reports whether the database is reachable
// GET /api/health
func (h *Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	if sqlDB, err := h.db.DB(); err != nil {
		status, code = "unavailable", http.StatusServiceUnavailable
	} else if err := sqlDB.PingContext(ctx); err != nil {
		logger.Log.Warn("Health check database ping failed", zap.Error(err))
		status, code = "unavailable", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":   status,
		"database": status,
		"time":     time.Now().UTC(),
	})
}
