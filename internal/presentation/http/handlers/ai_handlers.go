package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sessionstory/sessionstory-go/internal/application/services"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/observability/logging"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/observability/performance"
	"github.com/sessionstory/sessionstory-go/pkg/config"
)

// AIHandlers contains the summary and translation HTTP handlers
type AIHandlers struct {
	summaries   *services.SummaryService
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// TranslateRequest is the payload for POST /ai/translate.
type TranslateRequest struct {
	Text         string `json:"text"`
	SourceLocale string `json:"sourceLocale"`
	TargetLocale string `json:"targetLocale"`
}

// NewAIHandlers creates AI handlers with injected dependencies
func NewAIHandlers(summaries *services.SummaryService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *AIHandlers {
	return &AIHandlers{
		summaries:   summaries,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// GetSummary handles GET /ai/summary/:sessionId - generates a
// natural-language account of one recorded session.
func (h *AIHandlers) GetSummary(c *gin.Context) {
	sessionID := c.Param("sessionId")

	marker := h.perfTracker.StartOperation("session_summary", "")
	defer marker.Complete()

	summary, err := h.summaries.Summarize(c.Request.Context(), sessionID)
	if err != nil {
		marker.SetError(err)
		h.logger.AI().Error("Summary generation failed", "sessionId", sessionID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate summary"})
		return
	}
	if summary == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, gin.H{"sessionId": sessionID, "summary": summary})
}

// PostTranslate handles POST /ai/translate.
func (h *AIHandlers) PostTranslate(c *gin.Context) {
	if !config.TranslateEnable {
		c.JSON(http.StatusNotFound, gin.H{"error": "translation is disabled"})
		return
	}

	var req TranslateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" || req.TargetLocale == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text and targetLocale are required"})
		return
	}
	if req.SourceLocale == "" {
		req.SourceLocale = "auto-detected"
	}

	marker := h.perfTracker.StartOperation("translate", "")
	defer marker.Complete()

	translated, err := h.summaries.Translate(c.Request.Context(), req.Text, req.SourceLocale, req.TargetLocale)
	if err != nil {
		marker.SetError(err)
		h.logger.AI().Error("Translation failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to translate"})
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, gin.H{"translated": translated})
}
