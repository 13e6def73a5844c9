package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Entry is the inspectable part of a cached response. Opaque entries
// were fetched without success validation: replayable, not trusted.
type Entry struct {
	URL         string    `json:"url"`
	Status      int       `json:"status"`
	ContentType string    `json:"contentType,omitempty"`
	Opaque      bool      `json:"opaque,omitempty"`
	StoredAt    time.Time `json:"storedAt"`
}

// Store is the cache manager's own disk storage, keyed by version then
// request URL. It is disjoint from the foreground state store.
type Store struct {
	mu  sync.Mutex
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Put(version, url string, e Entry, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.versionDir(version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	e.URL = url
	meta, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	base := filepath.Join(dir, hashKey(url))
	if err := os.WriteFile(base+".bin", body, 0o644); err != nil {
		return err
	}
	return os.WriteFile(base+".json", meta, 0o644)
}

func (s *Store) Get(version, url string) (Entry, []byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := filepath.Join(s.versionDir(version), hashKey(url))
	meta, err := os.ReadFile(base + ".json")
	if err != nil {
		return Entry{}, nil, false
	}
	var e Entry
	if err := json.Unmarshal(meta, &e); err != nil {
		return Entry{}, nil, false
	}
	body, err := os.ReadFile(base + ".bin")
	if err != nil {
		return Entry{}, nil, false
	}
	return e, body, true
}

// Versions enumerates every cache generation present on disk.
func (s *Store) Versions() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// EvictOtherVersions deletes every cache generation except current and
// returns the names it removed.
func (s *Store) EvictOtherVersions(current string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	deleted := []string{}
	keep := sanitizeVersion(current)
	for _, e := range entries {
		if !e.IsDir() || e.Name() == keep {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			return deleted, err
		}
		deleted = append(deleted, e.Name())
	}
	return deleted, nil
}

func (s *Store) versionDir(version string) string {
	return filepath.Join(s.dir, sanitizeVersion(version))
}

func sanitizeVersion(v string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '.' || r == '_':
			return r
		default:
			return '_'
		}
	}, v)
}

func hashKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:16])
}
