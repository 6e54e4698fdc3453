// internal/api/handlers/status_handler.go
// 發送狀態 API Handler

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"mail-dispatch/internal/models"
	"mail-dispatch/internal/services"
)

// SummaryProvider 提供目前發送作業的即時狀態
type SummaryProvider interface {
	Summary() models.StatusSummary
}

// StatusHandler 發送狀態 Handler
type StatusHandler struct {
	live  SummaryProvider
	store services.StatusStore
}

// NewStatusHandler 建立 Status Handler
// live 與 store 皆可為 nil
func NewStatusHandler(live SummaryProvider, store services.StatusStore) *StatusHandler {
	return &StatusHandler{live: live, store: store}
}

// Current 取得目前發送作業狀態
func (h *StatusHandler) Current(c *gin.Context) {
	if h.live == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "no_active_run",
			"message": "No dispatch run in this process",
		})
		return
	}

	summary := h.live.Summary()
	if summary.RunID == "" {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "no_active_run",
			"message": "Dispatch run has not started",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"title":   summary.Title(),
		"data":    summary,
	})
}

// Get 依 run_id 從狀態快取取得發送狀態
func (h *StatusHandler) Get(c *gin.Context) {
	runID := c.Param("id")

	// 目前作業直接使用記憶體中的狀態
	if h.live != nil {
		if summary := h.live.Summary(); summary.RunID == runID {
			c.JSON(http.StatusOK, gin.H{"success": true, "title": summary.Title(), "data": summary})
			return
		}
	}

	if h.store == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "not_found",
			"message": "Status store is not configured",
		})
		return
	}

	summary, err := h.store.GetStatus(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, services.ErrStatusNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "not_found",
				"message": "Dispatch run not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "status_error",
			"message": "Failed to load dispatch status",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"title":   summary.Title(),
		"data":    summary,
	})
}
