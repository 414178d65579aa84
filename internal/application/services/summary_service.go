package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sessionstory/sessionstory-go/internal/infrastructure/ai"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/observability/logging"
)

// SummaryService turns a recorded session into a short natural-language
// account of what the visitor did, and exposes the shared text model
// for ad-hoc translations.
type SummaryService struct {
	retrieval *RetrievalService
	prompts   *ai.PromptBuilder
	model     ai.TextModel
	logger    *logging.ChanneledLogger
}

// NewSummaryService creates the summary service.
func NewSummaryService(
	retrieval *RetrievalService,
	prompts *ai.PromptBuilder,
	model ai.TextModel,
	logger *logging.ChanneledLogger,
) *SummaryService {
	return &SummaryService{
		retrieval: retrieval,
		prompts:   prompts,
		model:     model,
		logger:    logger,
	}
}

// Summarize generates the behavior summary for one session. It returns
// ("", nil) when the session does not exist.
func (s *SummaryService) Summarize(ctx context.Context, sessionID string) (string, error) {
	start := time.Now()

	sessionReplay, err := s.retrieval.GetSession(sessionID)
	if err != nil {
		return "", err
	}
	if sessionReplay == nil {
		return "", nil
	}

	prompt := s.prompts.SummaryPrompt(sessionReplay.Events)

	reply, err := s.model.Invoke(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("summarize session: %w", err)
	}

	s.logger.AI().Info("Session summary generated",
		"sessionId", sessionID,
		"events", len(sessionReplay.Events),
		"duration", time.Since(start))

	return reply, nil
}

// Translate renders text into another locale via the text model.
func (s *SummaryService) Translate(ctx context.Context, text, sourceLocale, targetLocale string) (string, error) {
	prompt := s.prompts.TranslatePrompt(text, sourceLocale, targetLocale)

	reply, err := s.model.Invoke(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	return reply, nil
}
