package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sessionstory/sessionstory-go/internal/domain/replay"
)

const maxBackupSessions = 10

// BackupStore keeps undelivered events on disk so a crash or lost
// connection does not drop a session outright. At most the last
// maxBackupSessions sessions are retained; older backups are pruned
// on every save.
type BackupStore struct {
	dir string
}

// NewBackupStore creates the store, making the directory if needed.
func NewBackupStore(dir string) (*BackupStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	return &BackupStore{dir: dir}, nil
}

func (s *BackupStore) path(sessionID string) string {
	return filepath.Join(s.dir, "session-"+sessionID+".json")
}

// Save overwrites the backup for a session with the full set of
// currently undelivered events.
func (s *BackupStore) Save(sessionID string, events []replay.RecordedEvent) error {
	raw, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("marshal backup: %w", err)
	}
	if err := os.WriteFile(s.path(sessionID), raw, 0o644); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	s.prune()
	return nil
}

// Load returns the backed-up events for a session, or nil when no
// backup exists.
func (s *BackupStore) Load(sessionID string) ([]replay.RecordedEvent, error) {
	raw, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup: %w", err)
	}

	var events []replay.RecordedEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("parse backup: %w", err)
	}
	return events, nil
}

// Delete removes a session's backup after its events were delivered.
func (s *BackupStore) Delete(sessionID string) {
	_ = os.Remove(s.path(sessionID))
}

// Sessions lists the session ids with a backup on disk, oldest first.
func (s *BackupStore) Sessions() ([]string, error) {
	entries, err := s.sorted()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for _, name := range entries {
		id := strings.TrimSuffix(strings.TrimPrefix(name, "session-"), ".json")
		ids = append(ids, id)
	}
	return ids, nil
}

// prune drops the oldest backups beyond the retention limit.
func (s *BackupStore) prune() {
	entries, err := s.sorted()
	if err != nil {
		return
	}
	for len(entries) > maxBackupSessions {
		_ = os.Remove(filepath.Join(s.dir, entries[0]))
		entries = entries[1:]
	}
}

// sorted returns backup file names ordered oldest first.
func (s *BackupStore) sorted() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	type stamped struct {
		name string
		mod  int64
	}
	var files []stamped
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "session-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, stamped{name: e.Name(), mod: info.ModTime().UnixNano()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod < files[j].mod })

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	return names, nil
}
