// Package services contains the application-level orchestration between
// the HTTP surface and the infrastructure collaborators.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/singleflight"

	"github.com/sessionstory/sessionstory-go/internal/domain/replay"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/codec"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/email"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/geo"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/messaging"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/observability/logging"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/persistence/database"
	"github.com/sessionstory/sessionstory-go/pkg/config"
)

// RecordInput carries one uploaded batch through the ingestion pipeline.
type RecordInput struct {
	OwnerID     string
	Fingerprint string
	IP          string
	SessionID   string
	URL         string
	Events      []replay.RecordedEvent
}

// RecordResult reports what ingestion did with the batch.
type RecordResult struct {
	SessionID  string `json:"sessionId"`
	Created    bool   `json:"created"`
	EventCount int    `json:"eventCount"`
}

// IngestionService accepts uploaded event batches, resolves the visitor
// identity behind them, and appends the encoded blob to the session's
// batch list.
type IngestionService struct {
	visitors replay.VisitorRepository
	sessions replay.SessionRepository
	codec    *codec.BatchCodec
	geo      *geo.Client
	hub      *messaging.LiveHub
	emailer  email.Service
	logger   *logging.ChanneledLogger

	// visitorFlight collapses concurrent first-contact uploads for the
	// same fingerprint into one lookup+create.
	visitorFlight singleflight.Group
}

// NewIngestionService creates the ingestion service. emailer may be nil
// when alerts are disabled.
func NewIngestionService(
	visitors replay.VisitorRepository,
	sessions replay.SessionRepository,
	batchCodec *codec.BatchCodec,
	geoClient *geo.Client,
	hub *messaging.LiveHub,
	emailer email.Service,
	logger *logging.ChanneledLogger,
) *IngestionService {
	return &IngestionService{
		visitors: visitors,
		sessions: sessions,
		codec:    batchCodec,
		geo:      geoClient,
		hub:      hub,
		emailer:  emailer,
		logger:   logger,
	}
}

// RecordBatch persists one uploaded batch. The first batch of a session
// creates the session row and its blob in one transaction; every later
// batch is appended to the existing blob list. Events inside a batch
// are stored exactly as uploaded.
func (s *IngestionService) RecordBatch(ctx context.Context, input RecordInput) (*RecordResult, error) {
	start := time.Now()

	visitor, err := s.resolveVisitor(ctx, input.Fingerprint, input.IP)
	if err != nil {
		return nil, err
	}

	blob, err := s.codec.Encode(input.Events)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	existing, err := s.sessions.FindBySessionID(input.SessionID)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}

	created := false
	if existing == nil {
		session := &replay.Session{
			ID:         ulid.Make().String(),
			SessionID:  input.SessionID,
			VisitorID:  visitor.ID,
			OwnerID:    input.OwnerID,
			URL:        input.URL,
			EventCount: len(input.Events),
			CreatedAt:  time.Now().UTC(),
			UpdatedAt:  time.Now().UTC(),
		}
		if err := s.sessions.Create(session, blob); err != nil {
			if !database.IsUniqueViolation(err) {
				return nil, fmt.Errorf("create session: %w", err)
			}
			// A concurrent first batch for this session won the insert;
			// converge by appending to the winner's row.
			if aerr := s.sessions.AppendBatch(input.SessionID, blob, len(input.Events)); aerr != nil {
				return nil, fmt.Errorf("append batch: %w", aerr)
			}
		} else {
			created = true
			s.notifyNewSession(input.OwnerID, input.SessionID, input.URL)
		}
	} else {
		if err := s.sessions.AppendBatch(input.SessionID, blob, len(input.Events)); err != nil {
			return nil, fmt.Errorf("append batch: %w", err)
		}
	}

	s.hub.Broadcast(input.SessionID, input.Events)

	s.logger.Ingest().Info("Batch recorded",
		"sessionId", input.SessionID,
		"ownerId", input.OwnerID,
		"events", len(input.Events),
		"created", created,
		"duration", time.Since(start))

	return &RecordResult{
		SessionID:  input.SessionID,
		Created:    created,
		EventCount: len(input.Events),
	}, nil
}

// resolveVisitor returns the visitor for a fingerprint, creating it on
// first contact. Geo details are looked up exactly once per new
// fingerprint; a failed lookup leaves the geo fields empty forever
// rather than failing ingestion.
func (s *IngestionService) resolveVisitor(ctx context.Context, fingerprint, ip string) (*replay.Visitor, error) {
	v, err, _ := s.visitorFlight.Do(fingerprint, func() (any, error) {
		existing, err := s.visitors.FindByFingerprint(fingerprint)
		if err != nil {
			return nil, fmt.Errorf("find visitor: %w", err)
		}
		if existing != nil {
			return existing, nil
		}

		visitor := &replay.Visitor{
			ID:          ulid.Make().String(),
			Fingerprint: fingerprint,
			IP:          ip,
			CreatedAt:   time.Now().UTC(),
		}

		if details, err := s.geo.Lookup(ctx, ip); err == nil && details.Status == "success" {
			visitor.Country = details.Country
			visitor.Region = details.RegionName
			visitor.City = details.City
			visitor.Latitude = details.Latitude()
			visitor.Longitude = details.Longitude()
			visitor.Timezone = details.Timezone
			visitor.ISP = details.ISP
			visitor.Org = details.Org
			visitor.ASN = details.AS
		}

		if err := s.visitors.Create(visitor); err != nil {
			// A concurrent upload from another instance won the insert;
			// converge on the stored row.
			winner, ferr := s.visitors.FindByFingerprint(fingerprint)
			if ferr == nil && winner != nil {
				return winner, nil
			}
			return nil, fmt.Errorf("create visitor: %w", err)
		}

		s.logger.Ingest().Debug("Visitor created", "fingerprint", fingerprint, "country", visitor.Country)
		return visitor, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*replay.Visitor), nil
}

func (s *IngestionService) notifyNewSession(ownerID, sessionID, url string) {
	if s.emailer == nil || !config.AlertEmailEnabled || config.AlertEmailTo == "" {
		return
	}
	go func() {
		if err := s.emailer.SendSessionAlert(config.AlertEmailTo, ownerID, sessionID, url); err != nil {
			s.logger.Ingest().Warn("Session alert email failed", "sessionId", sessionID, "error", err.Error())
		}
	}()
}
