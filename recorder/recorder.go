package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sessionstory/sessionstory-go/internal/domain/replay"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/observability/logging"
)

// State is the recorder lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRecording
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Stop reasons passed by lifecycle integrations.
const (
	ReasonManual = "manual"
	ReasonUnload = "unload"
	ReasonHide   = "hide"
	ReasonFreeze = "freeze"
)

// Config configures one recorder instance.
type Config struct {
	// BaseURL is the ingestion service root.
	BaseURL string

	// OwnerID identifies the account sessions are recorded for.
	OwnerID string

	// Fingerprint is the client-derived device identity.
	Fingerprint string

	// FlushInterval is how often queued events are uploaded.
	// Defaults to one second.
	FlushInterval time.Duration

	// MinEventsToSave is the smallest session worth keeping: Stop only
	// saves a local backup and returns the captured events once the
	// session reached this many. Defaults to 5. Uploads are not gated;
	// short sessions still reach the server and are hidden by the
	// listing threshold there.
	MinEventsToSave int

	// BackupDir, when set, enables on-disk backup of undelivered
	// events and of the full session at Stop.
	BackupDir string

	// Page describes the page being recorded. A non-empty SessionID is
	// honored as the session identifier; otherwise one is generated at
	// Start.
	Page PageMetadata
}

func (c *Config) validate() error {
	if c.BaseURL == "" {
		return errors.New("recorder: BaseURL is required")
	}
	if c.OwnerID == "" {
		return errors.New("recorder: OwnerID is required")
	}
	if c.Fingerprint == "" {
		return errors.New("recorder: Fingerprint is required")
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.MinEventsToSave <= 0 {
		c.MinEventsToSave = 5
	}
	return nil
}

// Recorder drives one recording session at a time: it pulls events from
// the capture engine, deduplicates each event as it arrives, and
// uploads batches on a fixed interval. Failed uploads are requeued
// ahead of newer events so capture order is preserved end to end. The
// full session is kept in a second buffer for the local save at Stop.
type Recorder struct {
	cfg       Config
	engine    CaptureEngine
	transport Transport
	backup    *BackupStore
	logger    *logging.ChanneledLogger

	state atomic.Int32

	// flushInFlight collapses overlapping ticks into one upload. The
	// final flush at Stop ignores it; by then the ticker is gone.
	flushInFlight atomic.Bool

	mu        sync.Mutex
	queue     []replay.RecordedEvent
	session   []replay.RecordedEvent
	total     int
	sessionID string
	metadata  PageMetadata

	done     chan struct{}
	tickerWG sync.WaitGroup

	cancelCapture context.CancelFunc
}

// New creates a recorder. When transport is nil an HTTP transport is
// built from the config.
func New(cfg Config, engine CaptureEngine, transport Transport, logger *logging.ChanneledLogger) (*Recorder, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if engine == nil {
		return nil, errors.New("recorder: capture engine is required")
	}

	if transport == nil {
		transport = NewHTTPTransport(cfg.BaseURL, cfg.OwnerID, cfg.Fingerprint, 10*time.Second)
	}

	var backup *BackupStore
	if cfg.BackupDir != "" {
		store, err := NewBackupStore(cfg.BackupDir)
		if err != nil {
			return nil, err
		}
		backup = store
	}

	return &Recorder{
		cfg:       cfg,
		engine:    engine,
		transport: transport,
		backup:    backup,
		logger:    logger,
	}, nil
}

// State reports the current lifecycle state.
func (r *Recorder) State() State {
	return State(r.state.Load())
}

// SessionID returns the id of the active session, or "" when idle.
func (r *Recorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// Start begins a new recording session. It is an error to start while
// a session is already active.
func (r *Recorder) Start(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateIdle), int32(StateStarting)) {
		return fmt.Errorf("recorder: cannot start from state %s", r.State())
	}

	sessionID := r.cfg.Page.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	r.mu.Lock()
	r.sessionID = sessionID
	r.queue = nil
	r.session = nil
	r.total = 0
	r.metadata = r.cfg.Page
	r.metadata.SessionID = sessionID
	r.mu.Unlock()

	captureCtx, cancel := context.WithCancel(ctx)
	r.cancelCapture = cancel

	if err := r.engine.Start(captureCtx, r.enqueue); err != nil {
		cancel()
		r.state.Store(int32(StateIdle))
		return fmt.Errorf("recorder: start capture: %w", err)
	}

	r.done = make(chan struct{})
	r.tickerWG.Add(1)
	go r.flushLoop()

	r.state.Store(int32(StateRecording))
	r.logger.Recorder().Info("Recording started", "sessionId", sessionID, "ownerId", r.cfg.OwnerID)
	return nil
}

// enqueue receives events from the capture engine. Each event passes
// through both dedup filters before it is buffered.
func (r *Recorder) enqueue(ev replay.RecordedEvent) {
	state := r.State()
	if state != StateRecording && state != StateStarting {
		return
	}

	ev = DedupeFullSnapshot(ev)
	ev = DedupeMutations(ev)

	r.mu.Lock()
	r.queue = append(r.queue, ev)
	r.session = append(r.session, ev)
	r.total++
	r.mu.Unlock()
}

func (r *Recorder) flushLoop() {
	defer r.tickerWG.Done()

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.flush(context.Background(), false); err != nil {
				r.logger.Recorder().Warn("Flush failed, events requeued",
					"sessionId", r.SessionID(), "error", err.Error())
			}
		case <-r.done:
			return
		}
	}
}

// flush uploads everything queued. When final is false an in-flight
// flush makes this one a no-op; events just wait for the next tick.
func (r *Recorder) flush(ctx context.Context, final bool) error {
	if !final {
		if !r.flushInFlight.CompareAndSwap(false, true) {
			return nil
		}
		defer r.flushInFlight.Store(false)
	}

	r.mu.Lock()
	events := r.queue
	r.queue = nil
	metadata := r.metadata
	sessionID := r.sessionID
	r.mu.Unlock()

	if len(events) == 0 {
		return nil
	}

	batch := Batch{Metadata: metadata, Events: events}

	if err := r.transport.Send(ctx, batch); err != nil {
		// Put the failed run back ahead of anything captured since,
		// so upload order always matches capture order.
		r.mu.Lock()
		r.queue = append(events, r.queue...)
		pending := append([]replay.RecordedEvent(nil), r.queue...)
		r.mu.Unlock()

		if r.backup != nil {
			if berr := r.backup.Save(sessionID, pending); berr != nil {
				r.logger.Recorder().Error("Backup write failed", "sessionId", sessionID, "error", berr.Error())
			}
		}
		return err
	}

	if r.backup != nil {
		r.backup.Delete(sessionID)
	}

	r.logger.Recorder().Debug("Batch uploaded", "sessionId", sessionID, "events", len(events))
	return nil
}

// Flush uploads queued events immediately, outside the ticker.
func (r *Recorder) Flush(ctx context.Context) error {
	if r.State() != StateRecording {
		return nil
	}
	return r.flush(ctx, false)
}

// PageHidden fires a best-effort upload of everything queued while the
// page may be going to the background. Recording continues; if the
// page comes back the session keeps going.
func (r *Recorder) PageHidden() {
	if r.State() != StateRecording {
		return
	}

	r.mu.Lock()
	if len(r.queue) == 0 {
		r.mu.Unlock()
		return
	}
	events := r.queue
	r.queue = nil
	batch := Batch{Metadata: r.metadata, Events: events}
	r.mu.Unlock()

	if detached, ok := r.transport.(DetachedSender); ok {
		detached.SendDetached(batch)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.transport.Send(ctx, batch); err != nil {
		r.mu.Lock()
		r.queue = append(batch.Events, r.queue...)
		r.mu.Unlock()
	}
}

// Stop ends the session. The final flush always fires, so even a short
// session reaches the server. When the session met the minimum event
// count, the full capture is written to the backup store and a copy is
// returned; below the minimum nothing is saved and the return is nil.
// Calling Stop on an idle or already-stopping recorder is a no-op.
func (r *Recorder) Stop(reason string) ([]replay.RecordedEvent, error) {
	if !r.state.CompareAndSwap(int32(StateRecording), int32(StateStopping)) &&
		!r.state.CompareAndSwap(int32(StateStarting), int32(StateStopping)) {
		return nil, nil
	}
	defer r.state.Store(int32(StateIdle))

	if err := r.engine.Stop(); err != nil {
		r.logger.Recorder().Warn("Capture engine stop failed", "error", err.Error())
	}
	if r.cancelCapture != nil {
		r.cancelCapture()
	}
	if r.done != nil {
		close(r.done)
		r.tickerWG.Wait()
	}

	var err error
	if reason == ReasonUnload || reason == ReasonFreeze {
		// The page is going away; there is no time for a round trip.
		r.finalDetached()
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err = r.flush(ctx, true)
	}

	r.mu.Lock()
	sessionID := r.sessionID
	total := r.total
	captured := append([]replay.RecordedEvent(nil), r.session...)
	r.mu.Unlock()

	if total < r.cfg.MinEventsToSave {
		if r.backup != nil {
			r.backup.Delete(sessionID)
		}
		r.logger.Recorder().Info("Session below minimum size, nothing saved",
			"sessionId", sessionID, "events", total, "reason", reason)
		return nil, err
	}

	if r.backup != nil {
		if berr := r.backup.Save(sessionID, captured); berr != nil {
			r.logger.Recorder().Error("Backup write failed", "sessionId", sessionID, "error", berr.Error())
		}
	}

	r.logger.Recorder().Info("Recording stopped",
		"sessionId", sessionID, "events", total, "reason", reason)
	return captured, err
}

func (r *Recorder) finalDetached() {
	r.mu.Lock()
	events := r.queue
	r.queue = nil
	batch := Batch{Metadata: r.metadata, Events: events}
	r.mu.Unlock()

	if len(batch.Events) == 0 {
		return
	}

	if detached, ok := r.transport.(DetachedSender); ok {
		detached.SendDetached(batch)
		return
	}

	if r.backup != nil {
		if err := r.backup.Save(r.SessionID(), batch.Events); err != nil {
			r.logger.Recorder().Error("Backup write failed", "sessionId", r.SessionID(), "error", err.Error())
		}
	}
}
