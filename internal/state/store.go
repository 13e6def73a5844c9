package state

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/tannershotme/daily-v2/internal/model"
)

// Logical keys are versioned by file name so the schema can evolve
// without migrations; an unknown or missing key always reads as its
// default, never as an error.
const (
	keyTheme          = "theme"
	keyTasks          = "tasks_v2"
	keyWakeTime       = "wake_time"
	keyTaskStatus     = "task_status"
	keyLastStatusDate = "last_status_date"
)

// Snapshot is the durable state as of one Load call.
type Snapshot struct {
	Theme          string
	Tasks          []model.Task
	WakeMillis     int64 // epoch ms, 0 = unset
	Status         map[model.TaskID]bool
	LastStatusDate string // "2006-01-02", "" = unset
}

// Store persists each logical key as its own JSON file so a corrupted
// value only costs that one key on load.
type Store struct {
	mu     sync.Mutex
	dir    string
	logger *log.Logger
}

func NewStore(dir string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Load never fails visibly. A key that cannot be read or parsed is
// replaced by its default and reported as a warning; the caller decides
// whether to surface it.
func (s *Store) Load() (Snapshot, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var warnings []string
	warn := func(key string, err error) {
		s.logger.Printf("state: key %s unreadable, using default: %v", key, err)
		warnings = append(warnings, fmt.Sprintf("could not load saved %s, using default", key))
	}

	snap := Snapshot{
		Theme:  "",
		Tasks:  nil,
		Status: map[model.TaskID]bool{},
	}

	if err := s.readKeyLocked(keyTheme, &snap.Theme); err != nil {
		warn(keyTheme, err)
		snap.Theme = ""
	}
	if err := s.readKeyLocked(keyTasks, &snap.Tasks); err != nil {
		warn(keyTasks, err)
		snap.Tasks = nil
	}
	if err := s.readKeyLocked(keyWakeTime, &snap.WakeMillis); err != nil {
		warn(keyWakeTime, err)
		snap.WakeMillis = 0
	}
	if err := s.readKeyLocked(keyTaskStatus, &snap.Status); err != nil {
		warn(keyTaskStatus, err)
		snap.Status = map[model.TaskID]bool{}
	}
	if snap.Status == nil {
		snap.Status = map[model.TaskID]bool{}
	}
	if err := s.readKeyLocked(keyLastStatusDate, &snap.LastStatusDate); err != nil {
		warn(keyLastStatusDate, err)
		snap.LastStatusDate = ""
	}

	return snap, warnings
}

func (s *Store) SaveTheme(theme string) error {
	return s.writeKey(keyTheme, theme)
}

func (s *Store) SaveTasks(tasks []model.Task) error {
	if tasks == nil {
		tasks = []model.Task{}
	}
	return s.writeKey(keyTasks, tasks)
}

// SaveWakeTime persists the wake anchor; 0 clears it.
func (s *Store) SaveWakeTime(wakeMillis int64) error {
	return s.writeKey(keyWakeTime, wakeMillis)
}

func (s *Store) SaveStatus(status map[model.TaskID]bool) error {
	if status == nil {
		status = map[model.TaskID]bool{}
	}
	return s.writeKey(keyTaskStatus, status)
}

// SaveLastStatusDate persists the calendar date the status map belongs
// to; "" clears it.
func (s *Store) SaveLastStatusDate(date string) error {
	return s.writeKey(keyLastStatusDate, date)
}

func (s *Store) readKeyLocked(key string, out any) error {
	b, err := os.ReadFile(s.keyPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(b, out)
}

// writeKey replaces the whole value for a key. The temp-file + rename
// dance keeps a crashed write from ever being visible to a later Load.
func (s *Store) writeKey(key string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	path := s.keyPath(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		s.logger.Printf("state: write %s failed: %v", key, err)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		s.logger.Printf("state: commit %s failed: %v", key, err)
		return err
	}
	return nil
}

func (s *Store) keyPath(key string) string {
	return filepath.Join(s.dir, key+".json")
}
