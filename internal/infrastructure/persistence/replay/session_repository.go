package replay

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sessionstory/sessionstory-go/internal/domain/replay"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/observability/logging"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/persistence/database"
	"github.com/sessionstory/sessionstory-go/pkg/config"
)

// SQLSessionRepository is the SQL-based implementation of the SessionRepository.
type SQLSessionRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLSessionRepository creates a new instance of the repository.
func NewSQLSessionRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLSessionRepository {
	return &SQLSessionRepository{
		db:     db,
		logger: logger,
	}
}

// FindBySessionID retrieves a Session by the recorder-supplied session id.
func (r *SQLSessionRepository) FindBySessionID(sessionID string) (*replay.Session, error) {
	const query = `
		SELECT id, session_id, visitor_id, owner_id, url, event_count, created_at, updated_at
		FROM sessions
		WHERE session_id = ?`

	start := time.Now()
	r.logger.Database().Debug("Loading session", "sessionId", sessionID)

	row := r.db.QueryRow(query, sessionID)
	session, err := r.scanSession(row)
	if err != nil {
		r.logger.Database().Error("Failed to load session", "error", err.Error(), "sessionId", sessionID)
		return nil, err
	}

	duration := time.Since(start)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery("SELECT ... FROM sessions WHERE session_id = ?", duration, "system")
	}
	return session, nil
}

// Create stores a brand-new session together with its first batch blob.
// Both rows land in one transaction so a session row never exists
// without its opening batch.
func (r *SQLSessionRepository) Create(session *replay.Session, blob []byte) error {
	start := time.Now()
	r.logger.Database().Debug("Executing session insert", "sessionId", session.SessionID, "ownerId", session.OwnerID)

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin session create: %w", err)
	}
	defer tx.Rollback()

	const sessionInsert = `
		INSERT INTO sessions (id, session_id, visitor_id, owner_id, url, event_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := tx.Exec(
		sessionInsert,
		session.ID,
		session.SessionID,
		session.VisitorID,
		session.OwnerID,
		session.URL,
		session.EventCount,
		database.FormatTime(session.CreatedAt),
		database.FormatTime(session.UpdatedAt),
	); err != nil {
		r.logger.Database().Error("Session insert failed", "error", err.Error(), "sessionId", session.SessionID)
		return err
	}

	const batchInsert = `
		INSERT INTO session_batches (id, session_id, seq, blob, created_at)
		VALUES (?, ?, 1, ?, ?)`

	if _, err := tx.Exec(batchInsert, ulid.Make().String(), session.ID, blob, database.FormatTime(time.Now())); err != nil {
		r.logger.Database().Error("Opening batch insert failed", "error", err.Error(), "sessionId", session.SessionID)
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session create: %w", err)
	}

	r.logger.Database().Info("Session insert completed", "sessionId", session.SessionID, "eventCount", session.EventCount, "duration", time.Since(start))
	return nil
}

// AppendBatch adds one more blob to an existing session's list and bumps
// the running event count. The sequence number is assigned inside the
// transaction, so two concurrent appends for the same session serialize
// at the storage layer instead of racing over an in-memory copy.
func (r *SQLSessionRepository) AppendBatch(sessionID string, blob []byte, eventCount int) error {
	start := time.Now()
	r.logger.Database().Debug("Appending batch", "sessionId", sessionID, "events", eventCount)

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin batch append: %w", err)
	}
	defer tx.Rollback()

	const batchInsert = `
		INSERT INTO session_batches (id, session_id, seq, blob, created_at)
		SELECT ?, s.id, COALESCE((SELECT MAX(b.seq) FROM session_batches b WHERE b.session_id = s.id), 0) + 1, ?, ?
		FROM sessions s
		WHERE s.session_id = ?`

	res, err := tx.Exec(batchInsert, ulid.Make().String(), blob, database.FormatTime(time.Now()), sessionID)
	if err != nil {
		r.logger.Database().Error("Batch insert failed", "error", err.Error(), "sessionId", sessionID)
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}

	const countUpdate = `
		UPDATE sessions
		SET event_count = event_count + ?, updated_at = ?
		WHERE session_id = ?`

	if _, err := tx.Exec(countUpdate, eventCount, database.FormatTime(time.Now()), sessionID); err != nil {
		r.logger.Database().Error("Event count update failed", "error", err.Error(), "sessionId", sessionID)
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch append: %w", err)
	}

	duration := time.Since(start)
	r.logger.Database().Info("Batch appended", "sessionId", sessionID, "events", eventCount, "duration", duration)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery("INSERT INTO session_batches ... ; UPDATE sessions ...", duration, "system")
	}
	return nil
}

// Batches returns the stored blobs for a session in insertion order.
func (r *SQLSessionRepository) Batches(sessionID string) ([]replay.StoredBatch, error) {
	const query = `
		SELECT b.id, b.session_id, b.seq, b.blob, b.created_at
		FROM session_batches b
		JOIN sessions s ON s.id = b.session_id
		WHERE s.session_id = ?
		ORDER BY b.seq ASC`

	start := time.Now()

	rows, err := r.db.Query(query, sessionID)
	if err != nil {
		r.logger.Database().Error("Failed to load session batches", "error", err.Error(), "sessionId", sessionID)
		return nil, err
	}
	defer rows.Close()

	var batches []replay.StoredBatch
	for rows.Next() {
		var b replay.StoredBatch
		var createdAtStr string
		if err := rows.Scan(&b.ID, &b.SessionID, &b.Seq, &b.Blob, &createdAtStr); err != nil {
			return nil, err
		}
		if b.CreatedAt, err = database.ParseTime(createdAtStr); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	duration := time.Since(start)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery("SELECT ... FROM session_batches ORDER BY seq", duration, "system")
	}
	return batches, nil
}

// ListByOwner returns summaries of an owner's sessions whose event count
// exceeds minEvents, newest first. Listings never include batch blobs.
func (r *SQLSessionRepository) ListByOwner(ownerID string, minEvents int) ([]replay.SessionSummary, error) {
	const query = `
		SELECT s.session_id, s.url, s.event_count, s.created_at, s.updated_at,
		       v.id, v.fingerprint, v.country, v.city
		FROM sessions s
		JOIN visitors v ON v.id = s.visitor_id
		WHERE s.owner_id = ? AND s.event_count > ?
		ORDER BY s.created_at DESC`

	start := time.Now()
	r.logger.Database().Debug("Listing sessions by owner", "ownerId", ownerID, "minEvents", minEvents)

	rows, err := r.db.Query(query, ownerID, minEvents)
	if err != nil {
		r.logger.Database().Error("Failed to list sessions", "error", err.Error(), "ownerId", ownerID)
		return nil, err
	}
	defer rows.Close()

	var summaries []replay.SessionSummary
	for rows.Next() {
		var s replay.SessionSummary
		var url, country, city sql.NullString
		var createdAtStr, updatedAtStr string
		if err := rows.Scan(
			&s.SessionID,
			&url,
			&s.EventCount,
			&createdAtStr,
			&updatedAtStr,
			&s.Visitor.ID,
			&s.Visitor.Fingerprint,
			&country,
			&city,
		); err != nil {
			return nil, err
		}
		s.URL = url.String
		s.Visitor.Country = country.String
		s.Visitor.City = city.String
		if s.CreatedAt, err = database.ParseTime(createdAtStr); err != nil {
			return nil, err
		}
		if s.UpdatedAt, err = database.ParseTime(updatedAtStr); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	duration := time.Since(start)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery("SELECT ... FROM sessions JOIN visitors WHERE owner_id = ?", duration, "system")
	}
	return summaries, nil
}

// scanSession is a helper function to scan a sql.Row into a Session struct.
func (r *SQLSessionRepository) scanSession(row *sql.Row) (*replay.Session, error) {
	var session replay.Session
	var url sql.NullString
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&session.ID,
		&session.SessionID,
		&session.VisitorID,
		&session.OwnerID,
		&url,
		&session.EventCount,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, err
	}

	session.URL = url.String

	if session.CreatedAt, err = database.ParseTime(createdAtStr); err != nil {
		return nil, err
	}
	if session.UpdatedAt, err = database.ParseTime(updatedAtStr); err != nil {
		return nil, err
	}

	return &session, nil
}
