package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/presence"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/telemetry"
)

type presenceEntry struct {
	UserID       int64     `json:"user_id"`
	ConnID       string    `json:"conn_id"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, registry *presence.Registry, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), userIDString(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/presence", func(c *gin.Context) {
		if registry == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "presence registry not configured"})
			return
		}
		snapshot := registry.Snapshot()
		entries := make([]presenceEntry, 0, len(snapshot))
		for _, e := range snapshot {
			entries = append(entries, presenceEntry{
				UserID:       e.UserID,
				ConnID:       e.Handle.ID(),
				ConnectedAt:  e.ConnectedAt,
				LastActivity: e.LastActivity,
			})
		}
		c.JSON(http.StatusOK, gin.H{"online": len(entries), "entries": entries})
	})
}
