// Package ai integrates the opaque text-model collaborator used for
// session summaries and translations. The provider behind the endpoint
// is interchangeable; this package only ships prompts out and text back.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sessionstory/sessionstory-go/internal/infrastructure/observability/logging"
)

// TextModel is a text-in/text-out model invocation.
type TextModel interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// HTTPTextModel calls a model endpoint over HTTP.
type HTTPTextModel struct {
	endpoint   string
	modelID    string
	maxTokens  int
	httpClient *http.Client
	logger     *logging.ChanneledLogger
}

// NewHTTPTextModel creates a model client for the configured endpoint.
func NewHTTPTextModel(endpoint, modelID string, maxTokens int, logger *logging.ChanneledLogger) *HTTPTextModel {
	return &HTTPTextModel{
		endpoint:   endpoint,
		modelID:    modelID,
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

type invokeRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"maxTokens"`
}

type invokeResponse struct {
	Reply string `json:"reply"`
}

// Invoke sends one prompt and returns the model's reply.
func (m *HTTPTextModel) Invoke(ctx context.Context, prompt string) (string, error) {
	if m.endpoint == "" {
		return "", fmt.Errorf("no model endpoint configured")
	}

	body, err := json.Marshal(invokeRequest{
		Model:     m.modelID,
		Prompt:    prompt,
		MaxTokens: m.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal model request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build model request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.logger.AI().Error("Model invocation failed", "error", err.Error())
		return "", fmt.Errorf("invoke model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("invoke model: unexpected status %d", resp.StatusCode)
	}

	var decoded invokeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode model response: %w", err)
	}

	m.logger.AI().Debug("Model invocation completed", "model", m.modelID, "duration", time.Since(start))
	return decoded.Reply, nil
}
