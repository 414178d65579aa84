package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/sessionstory/sessionstory-go/internal/infrastructure/messaging"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/observability/logging"
)

// LiveHandlers upgrades dashboard connections into live session viewers
type LiveHandlers struct {
	hub    *messaging.LiveHub
	logger *logging.ChanneledLogger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The dashboard runs on customer-chosen domains; origin checks
	// belong to the auth layer, not the upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewLiveHandlers creates live-viewer handlers
func NewLiveHandlers(hub *messaging.LiveHub, logger *logging.ChanneledLogger) *LiveHandlers {
	return &LiveHandlers{hub: hub, logger: logger}
}

// GetLiveSession handles GET /session/live/:sessionId - upgrades to a
// websocket that streams batches as the visitor generates them.
func (h *LiveHandlers) GetLiveSession(c *gin.Context) {
	sessionID := c.Param("sessionId")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Live().Error("Websocket upgrade failed", "sessionId", sessionID, "error", err.Error())
		return
	}

	h.hub.Subscribe(sessionID, conn)
}
