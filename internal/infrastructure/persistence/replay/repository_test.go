package replay

import (
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sessionstory/sessionstory-go/internal/domain/replay"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/observability/logging"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/persistence/database"
)

func setupTestDB(t *testing.T) (*database.DB, *logging.ChanneledLogger) {
	t.Helper()

	logger, err := logging.NewChanneledLogger(&logging.LoggerConfig{DefaultLevel: slog.LevelError})
	if err != nil {
		t.Fatalf("create logger: %v", err)
	}

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.NewConnectionWithLogger("sqlite3", dbPath, logger)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
		logger.Close()
	})
	return db, logger
}

func newVisitor(fingerprint string) *replay.Visitor {
	return &replay.Visitor{
		ID:          ulid.Make().String(),
		Fingerprint: fingerprint,
		IP:          "203.0.113.7",
		Country:     "Iceland",
		City:        "Reykjavik",
		CreatedAt:   time.Now().UTC(),
	}
}

func TestVisitorCreateAndFind(t *testing.T) {
	db, logger := setupTestDB(t)
	repo := NewSQLVisitorRepository(db, logger)

	visitor := newVisitor("fp-alpha")
	if err := repo.Create(visitor); err != nil {
		t.Fatalf("create: %v", err)
	}

	found, err := repo.FindByFingerprint("fp-alpha")
	if err != nil {
		t.Fatalf("find by fingerprint: %v", err)
	}
	if found == nil {
		t.Fatal("visitor not found")
	}
	if found.ID != visitor.ID || found.Country != "Iceland" || found.City != "Reykjavik" {
		t.Fatalf("found = %+v, want fields of %+v", found, visitor)
	}

	byID, err := repo.FindByID(visitor.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if byID == nil || byID.Fingerprint != "fp-alpha" {
		t.Fatalf("find by id = %+v", byID)
	}
}

func TestVisitorNotFound(t *testing.T) {
	db, logger := setupTestDB(t)
	repo := NewSQLVisitorRepository(db, logger)

	found, err := repo.FindByFingerprint("never-seen")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found != nil {
		t.Fatalf("got %+v, want nil", found)
	}
}

func TestVisitorDuplicateFingerprint(t *testing.T) {
	db, logger := setupTestDB(t)
	repo := NewSQLVisitorRepository(db, logger)

	if err := repo.Create(newVisitor("fp-dupe")); err != nil {
		t.Fatalf("first create: %v", err)
	}

	err := repo.Create(newVisitor("fp-dupe"))
	if err == nil {
		t.Fatal("duplicate create succeeded")
	}
	if !database.IsUniqueViolation(err) {
		t.Fatalf("err = %v, want unique violation", err)
	}
}

func createTestSession(t *testing.T, sessions *SQLSessionRepository, visitors *SQLVisitorRepository, sessionID, ownerID string, eventCount int, createdAt time.Time) *replay.Session {
	t.Helper()

	visitor := newVisitor("fp-" + sessionID)
	if err := visitors.Create(visitor); err != nil {
		t.Fatalf("create visitor: %v", err)
	}

	session := &replay.Session{
		ID:         ulid.Make().String(),
		SessionID:  sessionID,
		VisitorID:  visitor.ID,
		OwnerID:    ownerID,
		URL:        "https://example.com/pricing",
		EventCount: eventCount,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
	if err := sessions.Create(session, []byte("blob-1")); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session
}

func TestSessionCreateAndFind(t *testing.T) {
	db, logger := setupTestDB(t)
	sessions := NewSQLSessionRepository(db, logger)
	visitors := NewSQLVisitorRepository(db, logger)

	created := createTestSession(t, sessions, visitors, "sess-1", "owner-1", 6, time.Now().UTC())

	found, err := sessions.FindBySessionID("sess-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found == nil {
		t.Fatal("session not found")
	}
	if found.ID != created.ID || found.OwnerID != "owner-1" || found.EventCount != 6 {
		t.Fatalf("found = %+v", found)
	}

	missing, err := sessions.FindBySessionID("sess-nope")
	if err != nil {
		t.Fatalf("find missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("got %+v, want nil", missing)
	}
}

func TestAppendBatch(t *testing.T) {
	db, logger := setupTestDB(t)
	sessions := NewSQLSessionRepository(db, logger)
	visitors := NewSQLVisitorRepository(db, logger)

	createTestSession(t, sessions, visitors, "sess-2", "owner-1", 6, time.Now().UTC())

	if err := sessions.AppendBatch("sess-2", []byte("blob-2"), 4); err != nil {
		t.Fatalf("append: %v", err)
	}

	found, err := sessions.FindBySessionID("sess-2")
	if err != nil {
		t.Fatal(err)
	}
	if found.EventCount != 10 {
		t.Fatalf("event count = %d, want 10", found.EventCount)
	}

	batches, err := sessions.Batches("sess-2")
	if err != nil {
		t.Fatalf("batches: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}
	if batches[0].Seq != 1 || batches[1].Seq != 2 {
		t.Fatalf("seqs = %d, %d; want 1, 2", batches[0].Seq, batches[1].Seq)
	}
	if string(batches[0].Blob) != "blob-1" || string(batches[1].Blob) != "blob-2" {
		t.Fatal("blobs out of order")
	}
}

func TestAppendBatchUnknownSession(t *testing.T) {
	db, logger := setupTestDB(t)
	sessions := NewSQLSessionRepository(db, logger)

	err := sessions.AppendBatch("sess-ghost", []byte("blob"), 3)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestListByOwner(t *testing.T) {
	db, logger := setupTestDB(t)
	sessions := NewSQLSessionRepository(db, logger)
	visitors := NewSQLVisitorRepository(db, logger)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	createTestSession(t, sessions, visitors, "sess-old", "owner-1", 20, base)
	createTestSession(t, sessions, visitors, "sess-new", "owner-1", 8, base.Add(time.Hour))
	createTestSession(t, sessions, visitors, "sess-short", "owner-1", 3, base.Add(2*time.Hour))
	createTestSession(t, sessions, visitors, "sess-other", "owner-2", 50, base)

	summaries, err := sessions.ListByOwner("owner-1", 5)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}
	if summaries[0].SessionID != "sess-new" || summaries[1].SessionID != "sess-old" {
		t.Fatalf("order = %s, %s; want sess-new, sess-old", summaries[0].SessionID, summaries[1].SessionID)
	}
	if summaries[0].Visitor.Fingerprint != "fp-sess-new" {
		t.Fatalf("visitor fingerprint = %q", summaries[0].Visitor.Fingerprint)
	}
	if summaries[0].EventCount != 8 {
		t.Fatalf("event count = %d, want 8", summaries[0].EventCount)
	}
}
