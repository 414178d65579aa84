package recorder

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sessionstory/sessionstory-go/internal/domain/replay"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/observability/logging"
)

type fakeEngine struct {
	mu      sync.Mutex
	emit    func(replay.RecordedEvent)
	stopped bool
}

func (e *fakeEngine) Start(ctx context.Context, emit func(replay.RecordedEvent)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emit = emit
	return nil
}

func (e *fakeEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	return nil
}

func (e *fakeEngine) push(events ...replay.RecordedEvent) {
	e.mu.Lock()
	emit := e.emit
	e.mu.Unlock()
	for _, ev := range events {
		emit(ev)
	}
}

type fakeTransport struct {
	mu       sync.Mutex
	batches  []Batch
	failNext int
}

func (t *fakeTransport) Send(ctx context.Context, batch Batch) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failNext > 0 {
		t.failNext--
		return errors.New("send failed")
	}
	t.batches = append(t.batches, batch)
	return nil
}

func (t *fakeTransport) sent() []Batch {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Batch(nil), t.batches...)
}

func newTestLogger(t *testing.T) *logging.ChanneledLogger {
	t.Helper()
	logger, err := logging.NewChanneledLogger(&logging.LoggerConfig{DefaultLevel: slog.LevelError})
	if err != nil {
		t.Fatalf("create logger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

func testConfig() Config {
	return Config{
		BaseURL:     "http://localhost:8080",
		OwnerID:     "owner-1",
		Fingerprint: "fp-1",
		// Keep the ticker out of the way; tests flush manually.
		FlushInterval: time.Hour,
		Page:          PageMetadata{URL: "https://example.com/pricing"},
	}
}

func customEvent(ts int64) replay.RecordedEvent {
	return replay.RecordedEvent{Type: replay.EventCustom, Timestamp: ts, Data: map[string]any{"n": float64(ts)}}
}

func eventRange(from, to int64) []replay.RecordedEvent {
	var events []replay.RecordedEvent
	for ts := from; ts <= to; ts++ {
		events = append(events, customEvent(ts))
	}
	return events
}

func TestNewValidation(t *testing.T) {
	logger := newTestLogger(t)
	engine := &fakeEngine{}

	tests := []struct {
		name   string
		mutate func(*Config)
		engine CaptureEngine
	}{
		{"missing base url", func(c *Config) { c.BaseURL = "" }, engine},
		{"missing owner", func(c *Config) { c.OwnerID = "" }, engine},
		{"missing fingerprint", func(c *Config) { c.Fingerprint = "" }, engine},
		{"nil engine", func(c *Config) {}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if _, err := New(cfg, tt.engine, &fakeTransport{}, logger); err == nil {
				t.Fatal("New succeeded, want error")
			}
		})
	}
}

func TestStartStopLifecycle(t *testing.T) {
	logger := newTestLogger(t)
	engine := &fakeEngine{}
	transport := &fakeTransport{}

	r, err := New(testConfig(), engine, transport, logger)
	if err != nil {
		t.Fatal(err)
	}

	if r.State() != StateIdle {
		t.Fatalf("initial state = %s, want idle", r.State())
	}

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if r.State() != StateRecording {
		t.Fatalf("state after start = %s, want recording", r.State())
	}
	if r.SessionID() == "" {
		t.Fatal("no session id assigned")
	}

	if err := r.Start(context.Background()); err == nil {
		t.Fatal("second start succeeded, want error")
	}

	if _, err := r.Stop(ReasonManual); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if r.State() != StateIdle {
		t.Fatalf("state after stop = %s, want idle", r.State())
	}
	if !engine.stopped {
		t.Fatal("engine was not stopped")
	}

	// Stop is idempotent.
	if saved, err := r.Stop(ReasonManual); err != nil || saved != nil {
		t.Fatalf("second stop = %v, %v; want nil, nil", saved, err)
	}
}

func TestCallerSuppliedSessionID(t *testing.T) {
	logger := newTestLogger(t)
	engine := &fakeEngine{}
	transport := &fakeTransport{}

	cfg := testConfig()
	cfg.Page.SessionID = "sess-external"

	r, err := New(cfg, engine, transport, logger)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if r.SessionID() != "sess-external" {
		t.Fatalf("session id = %q, want sess-external", r.SessionID())
	}

	engine.push(eventRange(1, 5)...)
	if err := r.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Stop(ReasonManual); err != nil {
		t.Fatal(err)
	}

	batches := transport.sent()
	if len(batches) != 1 || batches[0].Metadata.SessionID != "sess-external" {
		t.Fatalf("uploaded metadata = %+v, want session sess-external", batches)
	}
}

func TestShortSessionUploadsButSavesNothing(t *testing.T) {
	logger := newTestLogger(t)
	engine := &fakeEngine{}
	transport := &fakeTransport{}

	cfg := testConfig()
	cfg.BackupDir = t.TempDir()

	r, err := New(cfg, engine, transport, logger)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	sessionID := r.SessionID()

	engine.push(eventRange(1, 3)...)

	if err := r.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	// Short sessions still reach the server; the listing threshold
	// hides them there.
	batches := transport.sent()
	if len(batches) != 1 || len(batches[0].Events) != 3 {
		t.Fatalf("short session batches = %+v, want one batch of 3", batches)
	}

	saved, err := r.Stop(ReasonManual)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if saved != nil {
		t.Fatalf("short session saved %d events, want none", len(saved))
	}

	backup, err := NewBackupStore(cfg.BackupDir)
	if err != nil {
		t.Fatal(err)
	}
	stored, err := backup.Load(sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if stored != nil {
		t.Fatalf("short session left %d events in backup, want none", len(stored))
	}
}

func TestStopSavesFullSession(t *testing.T) {
	logger := newTestLogger(t)
	engine := &fakeEngine{}
	transport := &fakeTransport{}

	cfg := testConfig()
	cfg.BackupDir = t.TempDir()

	r, err := New(cfg, engine, transport, logger)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	sessionID := r.SessionID()

	engine.push(eventRange(1, 6)...)
	if err := r.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	engine.push(eventRange(7, 8)...)

	saved, err := r.Stop(ReasonManual)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}

	// Stop hands back the whole capture, not just the final batch.
	if len(saved) != 8 {
		t.Fatalf("stop returned %d events, want 8", len(saved))
	}
	for i, ev := range saved {
		if ev.Timestamp != int64(i+1) {
			t.Fatalf("saved event %d timestamp = %d, want %d", i, ev.Timestamp, i+1)
		}
	}

	backup, err := NewBackupStore(cfg.BackupDir)
	if err != nil {
		t.Fatal(err)
	}
	stored, err := backup.Load(sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 8 {
		t.Fatalf("backup holds %d events, want the full session of 8", len(stored))
	}
}

func TestOrderingAcrossFlushes(t *testing.T) {
	logger := newTestLogger(t)
	engine := &fakeEngine{}
	transport := &fakeTransport{}

	r, err := New(testConfig(), engine, transport, logger)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	engine.push(eventRange(1, 6)...)
	if err := r.Flush(context.Background()); err != nil {
		t.Fatalf("first flush: %v", err)
	}

	engine.push(eventRange(7, 10)...)
	if err := r.Flush(context.Background()); err != nil {
		t.Fatalf("second flush: %v", err)
	}

	if _, err := r.Stop(ReasonManual); err != nil {
		t.Fatal(err)
	}

	batches := transport.sent()
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}
	if len(batches[0].Events) != 6 || len(batches[1].Events) != 4 {
		t.Fatalf("batch sizes = %d, %d; want 6, 4", len(batches[0].Events), len(batches[1].Events))
	}

	var ts int64 = 1
	for _, batch := range batches {
		if batch.Metadata.SessionID == "" {
			t.Fatal("batch carries no session id")
		}
		for _, ev := range batch.Events {
			if ev.Timestamp != ts {
				t.Fatalf("event timestamp = %d, want %d", ev.Timestamp, ts)
			}
			ts++
		}
	}
}

func TestRequeueOnFailure(t *testing.T) {
	logger := newTestLogger(t)
	engine := &fakeEngine{}
	transport := &fakeTransport{failNext: 1}

	cfg := testConfig()
	cfg.BackupDir = t.TempDir()

	r, err := New(cfg, engine, transport, logger)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	sessionID := r.SessionID()

	engine.push(eventRange(1, 5)...)
	if err := r.Flush(context.Background()); err == nil {
		t.Fatal("flush succeeded, want transport error")
	}

	// Failed events are backed up on disk.
	backup, err := NewBackupStore(cfg.BackupDir)
	if err != nil {
		t.Fatal(err)
	}
	saved, err := backup.Load(sessionID)
	if err != nil {
		t.Fatalf("load backup: %v", err)
	}
	if len(saved) != 5 {
		t.Fatalf("backup holds %d events, want 5", len(saved))
	}

	// Newer events queue behind the requeued ones.
	engine.push(customEvent(6))
	if err := r.Flush(context.Background()); err != nil {
		t.Fatalf("retry flush: %v", err)
	}

	batches := transport.sent()
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	if len(batches[0].Events) != 6 {
		t.Fatalf("retried batch has %d events, want 6", len(batches[0].Events))
	}
	for i, ev := range batches[0].Events {
		if ev.Timestamp != int64(i+1) {
			t.Fatalf("event %d timestamp = %d, want %d", i, ev.Timestamp, i+1)
		}
	}

	// Successful delivery clears the failed-upload backup.
	saved, err = backup.Load(sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if saved != nil {
		t.Fatalf("backup still holds %d events after delivery", len(saved))
	}

	if _, err := r.Stop(ReasonManual); err != nil {
		t.Fatal(err)
	}
}

func TestPageHiddenFlushes(t *testing.T) {
	logger := newTestLogger(t)
	engine := &fakeEngine{}
	transport := &fakeTransport{}

	r, err := New(testConfig(), engine, transport, logger)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	engine.push(eventRange(1, 3)...)
	r.PageHidden()

	// Even a queue below the save minimum goes out on hide.
	batches := transport.sent()
	if len(batches) != 1 || len(batches[0].Events) != 3 {
		t.Fatalf("batches after hide = %+v, want one batch of 3", batches)
	}

	// Recording continues after the page comes back.
	if r.State() != StateRecording {
		t.Fatalf("state after hide = %s, want recording", r.State())
	}

	if _, err := r.Stop(ReasonManual); err != nil {
		t.Fatal(err)
	}
	if got := transport.sent(); len(got) != 1 {
		t.Fatalf("stop with empty queue uploaded %d extra batches", len(got)-1)
	}
}

func TestStopDeliversFinalBatch(t *testing.T) {
	logger := newTestLogger(t)
	engine := &fakeEngine{}
	transport := &fakeTransport{}

	r, err := New(testConfig(), engine, transport, logger)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	engine.push(eventRange(1, 8)...)
	saved, err := r.Stop(ReasonManual)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}

	batches := transport.sent()
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	if len(batches[0].Events) != 8 {
		t.Fatalf("final batch has %d events, want 8", len(batches[0].Events))
	}
	if len(saved) != 8 {
		t.Fatalf("stop returned %d events, want 8", len(saved))
	}
}

func TestCaptureDedupesPerEvent(t *testing.T) {
	logger := newTestLogger(t)
	engine := &fakeEngine{}
	transport := &fakeTransport{}

	r, err := New(testConfig(), engine, transport, logger)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	engine.push(snapshotEvent(1000, map[string]any{
		"id": float64(1),
		"childNodes": []any{
			map[string]any{"id": float64(2)},
			map[string]any{"id": float64(2)},
		},
	}))
	engine.push(eventRange(1, 4)...)

	if err := r.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Stop(ReasonManual); err != nil {
		t.Fatal(err)
	}

	batches := transport.sent()
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	node := batches[0].Events[0].Data["node"].(map[string]any)
	if ids := childIDs(node); len(ids) != 1 || ids[0] != 2 {
		t.Fatalf("uploaded snapshot child ids = %v, want [2]", ids)
	}
}
