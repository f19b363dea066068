// Package cache persists stage outputs keyed by fingerprint. It is the
// single source of truth for "has this already been computed": a hit means
// the stage is skipped entirely, a miss means the runtime regenerates and
// publishes.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dusk-indust/chronicle/internal/fingerprint"
)

// ErrMiss is returned by Get when no entry exists for the key.
var ErrMiss = errors.New("cache: miss")

// Entry is a published stage output.
type Entry struct {
	// Path is the absolute location of the published artifact file.
	Path string

	// Content is the full artifact body.
	Content []byte
}

// Store is a content-addressed file store rooted under one directory.
// Entries live at <root>/<stage>/<key>. Publication is all-or-nothing: a
// crash mid-Put never leaves a Get-visible partial entry.
type Store struct {
	root string

	// mu guards locks; each per-key mutex serializes Get/Put pairs for one
	// (stage, key) so two concurrent misses cannot both publish.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cache: resolve root %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create root %s: %w", abs, err)
	}
	return &Store{root: abs, locks: make(map[string]*sync.Mutex)}, nil
}

// Get looks up a published entry. It performs storage access only: no
// network, no model calls. Returns ErrMiss when the entry does not exist.
func (s *Store) Get(stage string, key fingerprint.Key) (*Entry, error) {
	lock := s.keyLock(stage, key)
	lock.Lock()
	defer lock.Unlock()

	return s.read(stage, key)
}

// Put publishes content under (stage, key). The write goes to a temporary
// file in the same directory and is renamed into place, so readers only
// ever observe complete entries. If another writer published the same key
// first, the redundant result is discarded and the existing entry returned.
func (s *Store) Put(stage string, key fingerprint.Key, content []byte) (*Entry, error) {
	lock := s.keyLock(stage, key)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Join(s.root, stage)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create %s: %w", dir, err)
	}

	final := s.entryPath(stage, key)

	tmp, err := os.CreateTemp(dir, string(key)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("cache: create temp for %s/%s: %w", stage, key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, fmt.Errorf("cache: write temp for %s/%s: %w", stage, key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("cache: close temp for %s/%s: %w", stage, key, err)
	}

	// A concurrent invocation may have published while we generated.
	// Discard our result in that case so Put stays idempotent per key.
	if existing, err := s.read(stage, key); err == nil {
		os.Remove(tmpName)
		return existing, nil
	}

	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("cache: publish %s/%s: %w", stage, key, err)
	}

	return &Entry{Path: final, Content: content}, nil
}

// Supersede force-publishes content under (stage, key), replacing any
// existing entry. Used by the force-regenerate switch, which must still Put
// the new result under the possibly unchanged key.
func (s *Store) Supersede(stage string, key fingerprint.Key, content []byte) (*Entry, error) {
	lock := s.keyLock(stage, key)
	lock.Lock()

	final := s.entryPath(stage, key)
	if err := os.Remove(final); err != nil && !os.IsNotExist(err) {
		lock.Unlock()
		return nil, fmt.Errorf("cache: supersede %s/%s: %w", stage, key, err)
	}
	lock.Unlock()

	return s.Put(stage, key, content)
}

// read loads an entry without locking; callers hold the key lock.
func (s *Store) read(stage string, key fingerprint.Key) (*Entry, error) {
	path := s.entryPath(stage, key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("cache: read %s: %w", path, err)
	}
	return &Entry{Path: path, Content: data}, nil
}

func (s *Store) entryPath(stage string, key fingerprint.Key) string {
	return filepath.Join(s.root, stage, string(key))
}

func (s *Store) keyLock(stage string, key fingerprint.Key) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := stage + "/" + string(key)
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}
