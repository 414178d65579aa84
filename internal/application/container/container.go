// Package container provides dependency injection for all singleton services
package container

import (
	"fmt"

	"github.com/sessionstory/sessionstory-go/internal/application/services"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/ai"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/codec"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/email"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/geo"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/messaging"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/observability/logging"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/observability/performance"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/persistence/database"
	persistence "github.com/sessionstory/sessionstory-go/internal/infrastructure/persistence/replay"
	"github.com/sessionstory/sessionstory-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Application services (stateless singletons)
	IngestionService *services.IngestionService
	RetrievalService *services.RetrievalService
	SummaryService   *services.SummaryService

	// Infrastructure
	DB          *database.DB
	LiveHub     *messaging.LiveHub
	Logger      *logging.ChanneledLogger
	PerfTracker *performance.Tracker
}

// NewContainer creates and wires all singleton services
func NewContainer(db *database.DB, logger *logging.ChanneledLogger) (*Container, error) {
	perfTracker := performance.NewTracker(0)

	visitorRepo := persistence.NewSQLVisitorRepository(db, logger)
	sessionRepo := persistence.NewSQLSessionRepository(db, logger)

	batchCodec := codec.New(logger)
	geoClient := geo.NewClient(config.GeoLookupURL, config.GeoLookupLimit, logger)
	hub := messaging.NewLiveHub(config.MaxLiveClientsPerSession, config.LiveWriteTimeout, logger)

	var emailer email.Service
	if config.AlertEmailEnabled {
		svc, err := email.NewService()
		if err != nil {
			logger.Startup().Warn("Email alerts disabled", "error", err.Error())
		} else {
			emailer = svc
		}
	}

	prompts, err := ai.NewPromptBuilder(config.AIPromptBudget)
	if err != nil {
		return nil, fmt.Errorf("create prompt builder: %w", err)
	}
	model := ai.NewHTTPTextModel(config.AIEndpoint, config.AIModelID, config.AIMaxTokens, logger)

	retrievalService := services.NewRetrievalService(visitorRepo, sessionRepo, batchCodec, logger)

	return &Container{
		IngestionService: services.NewIngestionService(visitorRepo, sessionRepo, batchCodec, geoClient, hub, emailer, logger),
		RetrievalService: retrievalService,
		SummaryService:   services.NewSummaryService(retrievalService, prompts, model, logger),

		DB:          db,
		LiveHub:     hub,
		Logger:      logger,
		PerfTracker: perfTracker,
	}, nil
}
