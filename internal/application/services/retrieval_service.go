package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/sessionstory/sessionstory-go/internal/domain/replay"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/codec"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/observability/logging"
)

// SessionReplay is a fully reassembled session: the session record plus
// every decodable event in upload order.
type SessionReplay struct {
	Session *replay.Session        `json:"session"`
	Events  []replay.RecordedEvent `json:"events"`
}

// RetrievalService reassembles stored sessions for playback and serves
// owner-facing listings.
type RetrievalService struct {
	visitors replay.VisitorRepository
	sessions replay.SessionRepository
	codec    *codec.BatchCodec
	logger   *logging.ChanneledLogger
}

// NewRetrievalService creates the retrieval service.
func NewRetrievalService(
	visitors replay.VisitorRepository,
	sessions replay.SessionRepository,
	batchCodec *codec.BatchCodec,
	logger *logging.ChanneledLogger,
) *RetrievalService {
	return &RetrievalService{
		visitors: visitors,
		sessions: sessions,
		codec:    batchCodec,
		logger:   logger,
	}
}

// GetSession returns the reassembled replay for one session, or nil
// when the session does not exist. Batches are decoded in insertion
// order; a corrupt or unrecognized batch is logged and skipped so its
// siblings still play back.
func (s *RetrievalService) GetSession(sessionID string) (*SessionReplay, error) {
	start := time.Now()

	session, err := s.sessions.FindBySessionID(sessionID)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	if session.VisitorID != "" {
		visitor, err := s.visitors.FindByID(session.VisitorID)
		if err != nil {
			return nil, fmt.Errorf("find visitor: %w", err)
		}
		session.Visitor = visitor
	}

	batches, err := s.sessions.Batches(sessionID)
	if err != nil {
		return nil, fmt.Errorf("load batches: %w", err)
	}

	events := make([]replay.RecordedEvent, 0, session.EventCount)
	skipped := 0
	for _, batch := range batches {
		decoded, err := s.codec.Decode(batch.Blob)
		if err != nil {
			if errors.Is(err, codec.ErrCorruptBatch) {
				s.logger.Codec().Error("Corrupt batch skipped during reassembly",
					"sessionId", sessionID, "seq", batch.Seq, "error", err.Error())
				skipped++
				continue
			}
			return nil, fmt.Errorf("decode batch %d: %w", batch.Seq, err)
		}
		events = append(events, decoded...)
	}

	s.logger.Codec().Debug("Session reassembled",
		"sessionId", sessionID,
		"batches", len(batches),
		"skipped", skipped,
		"events", len(events),
		"duration", time.Since(start))

	return &SessionReplay{Session: session, Events: events}, nil
}

// GetSessionsByOwner lists an owner's sessions newest first. Sessions
// at or below the minimum event count are left out; they are too short
// to be worth replaying.
func (s *RetrievalService) GetSessionsByOwner(ownerID string, minEvents int) ([]replay.SessionSummary, error) {
	summaries, err := s.sessions.ListByOwner(ownerID, minEvents)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return summaries, nil
}
