// Package handlers provides HTTP request handlers for the presentation layer.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sessionstory/sessionstory-go/internal/application/services"
	"github.com/sessionstory/sessionstory-go/internal/domain/replay"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/observability/logging"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/observability/performance"
	"github.com/sessionstory/sessionstory-go/internal/presentation/http/middleware"
	"github.com/sessionstory/sessionstory-go/pkg/config"
)

// SessionHandlers contains the recording and retrieval HTTP handlers
type SessionHandlers struct {
	ingestion   *services.IngestionService
	retrieval   *services.RetrievalService
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// BatchMetadata is the metadata object the recorder sends alongside
// every batch.
type BatchMetadata struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	Language  string `json:"language,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

// RecordRequest is the upload payload posted by the recorder.
type RecordRequest struct {
	Metadata BatchMetadata          `json:"metadata"`
	Events   []replay.RecordedEvent `json:"events"`
}

// NewSessionHandlers creates session handlers with injected dependencies
func NewSessionHandlers(ingestion *services.IngestionService, retrieval *services.RetrievalService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *SessionHandlers {
	return &SessionHandlers{
		ingestion:   ingestion,
		retrieval:   retrieval,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// PostRecord handles POST /session/record/:ownerId - accepts one
// uploaded event batch from the recorder.
func (h *SessionHandlers) PostRecord(c *gin.Context) {
	ownerID := c.Param("ownerId")
	fingerprint := c.Query("fp")

	start := time.Now()
	marker := h.perfTracker.StartOperation("record_batch", ownerID)
	defer marker.Complete()

	if ownerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ownerId is required"})
		return
	}
	if fingerprint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fp query parameter is required"})
		return
	}

	if config.MaxBatchBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(config.MaxBatchBytes))
	}

	var req RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "batch exceeds size limit"})
			return
		}
		h.logger.Ingest().Error("Record request JSON binding failed", "ownerId", ownerID, "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format"})
		return
	}

	if req.Metadata.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "metadata.sessionId is required"})
		return
	}
	if len(req.Events) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "events must not be empty"})
		return
	}

	result, err := h.ingestion.RecordBatch(c.Request.Context(), services.RecordInput{
		OwnerID:     ownerID,
		Fingerprint: fingerprint,
		IP:          c.ClientIP(),
		SessionID:   req.Metadata.SessionID,
		URL:         req.Metadata.URL,
		Events:      req.Events,
	})
	if err != nil {
		marker.SetError(err)
		h.logger.Ingest().Error("Batch ingestion failed", "ownerId", ownerID, "sessionId", req.Metadata.SessionID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record batch"})
		return
	}

	marker.SetSuccess(true)
	h.logger.Ingest().Debug("Record request completed",
		"ownerId", ownerID,
		"sessionId", result.SessionID,
		"events", result.EventCount,
		"duration", time.Since(start))

	c.JSON(http.StatusOK, result)
}

// GetSession handles GET /session/:sessionId - returns the reassembled
// replay for one session.
func (h *SessionHandlers) GetSession(c *gin.Context) {
	sessionID := c.Param("sessionId")

	marker := h.perfTracker.StartOperation("get_session", "")
	defer marker.Complete()

	sessionReplay, err := h.retrieval.GetSession(sessionID)
	if err != nil {
		marker.SetError(err)
		h.logger.Ingest().Error("Session retrieval failed", "sessionId", sessionID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		return
	}
	if sessionReplay == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, sessionReplay)
}

// GetSessionsByOwner handles GET /session/user/:ownerId - lists an
// owner's replayable sessions, newest first.
func (h *SessionHandlers) GetSessionsByOwner(c *gin.Context) {
	ownerID := c.Param("ownerId")
	if ownerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ownerId is required"})
		return
	}

	marker := h.perfTracker.StartOperation("list_sessions", ownerID)
	defer marker.Complete()

	summaries, err := h.retrieval.GetSessionsByOwner(ownerID, config.ListingMinEventCount)
	if err != nil {
		marker.SetError(err)
		h.logger.Ingest().Error("Session listing failed", "ownerId", ownerID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, gin.H{"sessions": summaries})
}

// GetOwnSessions handles GET /session - lists the sessions of the
// owner identified by the bearer token.
func (h *SessionHandlers) GetOwnSessions(c *gin.Context) {
	ownerID, ok := middleware.GetOwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	marker := h.perfTracker.StartOperation("list_own_sessions", ownerID)
	defer marker.Complete()

	summaries, err := h.retrieval.GetSessionsByOwner(ownerID, config.ListingMinEventCount)
	if err != nil {
		marker.SetError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, gin.H{"sessions": summaries})
}
