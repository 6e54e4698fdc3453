// internal/api/handlers/health_handler.go
// 健康檢查 Handler

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger 可檢查連線的外部服務
type Pinger interface {
	Ping(ctx context.Context) bool
}

// HealthHandler 健康檢查 Handler
type HealthHandler struct {
	version string
	keydb   Pinger
}

// NewHealthHandler 建立 Health Handler
// keydb 可為 nil (未啟用狀態快取)
func NewHealthHandler(version string, keydb Pinger) *HealthHandler {
	return &HealthHandler{version: version, keydb: keydb}
}

// Health 健康檢查
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	services := gin.H{"keydb": "disabled"}
	response := gin.H{
		"status":   "healthy",
		"version":  h.version,
		"services": services,
	}

	// 檢查 KeyDB
	if h.keydb != nil {
		services["keydb"] = "ok"
		if !h.keydb.Ping(ctx) {
			services["keydb"] = "error"
			response["status"] = "degraded"
		}
	}

	statusCode := http.StatusOK
	if response["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}
