package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (h *Handler) databaseHealth(c *gin.Context) {
	report := h.assessments.Health(c.Request.Context())
	status, code := "healthy", http.StatusOK
	switch {
	case !report.Connected:
		status, code = "unhealthy", http.StatusServiceUnavailable
	case report.Error != "":
		status, code = "error", http.StatusInternalServerError
	}
	c.JSON(code, gin.H{
		"status":    status,
		"database":  report,
		"timestamp": time.Now().UTC(),
	})
}

func (h *Handler) redisHealth(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.conversations.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "unhealthy",
			"connected": false,
			"error":     err.Error(),
			"timestamp": time.Now().UTC(),
		})
		return
	}
	body := gin.H{
		"status":    "healthy",
		"connected": true,
		"timestamp": time.Now().UTC(),
	}
	if h.memory != nil {
		if info, err := h.memory.MemoryInfo(ctx); err == nil {
			body["memory"] = info
		}
	}
	c.JSON(http.StatusOK, body)
}
