package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"cointrade/internal/market"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Store is the degraded-mode quote cache: one JSON file per pair under a
// base directory. It only sees traffic while the primary database store is
// unreachable, so simplicity wins over throughput. A process-wide mutex
// serializes writers; cross-process callers are protected by the refresh
// lock held around every write.
type Store struct {
	mu  sync.Mutex
	dir string
}

// NewStore creates the base directory if needed and returns the store.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("file store dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating file store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Ping reports whether the base directory is writable.
func (s *Store) Ping(context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dir)
	}
	return nil
}

func (s *Store) path(pair string) string {
	name := unsafeChars.ReplaceAllString(pair, "_")
	return filepath.Join(s.dir, name+".json")
}

func (s *Store) Read(_ context.Context, pair string) (market.CacheRecord, bool, error) {
	var rec market.CacheRecord
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path(pair))
	if err != nil {
		if os.IsNotExist(err) {
			return rec, false, nil
		}
		return rec, false, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		// A torn or corrupted file counts as a miss so the caller refetches.
		return market.CacheRecord{}, false, nil
	}
	return rec, true, nil
}

// Upsert writes the record atomically via a temp file rename.
func (s *Store) Upsert(_ context.Context, rec market.CacheRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding cache record for %s: %w", rec.Pair, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	target := s.path(rec.Pair)
	tmp, err := os.CreateTemp(s.dir, ".quote-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

var _ market.CacheStore = (*Store)(nil)
