// Package store provides a crash-safe key/value store persisted to a single
// JSON file. Writes go through a temp file, fsync and an atomic rename, so a
// crash mid-write leaves the previous version intact. A store instance is
// safe for concurrent use within one process; concurrent writers from
// multiple processes are not coordinated and are an unsupported
// configuration.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/scribeline/meter_api/shared"
)

type Store struct {
	path string

	mu   sync.RWMutex
	data map[string]interface{}
}

// open loads the backing file if present. Stores are created through a
// Registry so that each path has exactly one in-process writer.
func open(path string) (*Store, error) {
	s := &Store{
		path: path,
		data: map[string]interface{}{},
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create store dir: %v", shared.ErrIO, err)
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", shared.ErrIO, path, err)
	}

	if err := sonic.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", shared.ErrIO, path, err)
	}
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

// Get returns the value for key. It never fails; a missing key reports
// ok=false.
func (s *Store) Get(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	return v, ok
}

// GetInt reads a numeric value, tolerating the representations the JSON
// codec round-trips numbers through.
func (s *Store) GetInt(key string) (int64, bool) {
	v, ok := s.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

// Set stores value under key and persists the full mapping. Values must be
// representable as a JSON tree; anything else fails with ErrSerialization
// and leaves the store untouched.
func (s *Store) Set(key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.data[key]
	s.data[key] = value

	if err := s.flush(); err != nil {
		// Keep memory and disk in agreement: roll back to the last
		// persisted state.
		if existed {
			s.data[key] = prev
		} else {
			delete(s.data, key)
		}
		return err
	}
	return nil
}

// Delete removes key and persists. Deleting an absent key is a caller bug
// and fails with ErrKeyNotFound.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.data[key]
	if !existed {
		return fmt.Errorf("%w: %s", shared.ErrKeyNotFound, key)
	}
	delete(s.data, key)

	if err := s.flush(); err != nil {
		s.data[key] = prev
		return err
	}
	return nil
}

// Take atomically reads and removes key. A read-then-delete pair would let
// two consumers observe the same entry; Take holds the write lock across
// both steps.
func (s *Store) Take(key string) (interface{}, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.data[key]
	if !existed {
		return nil, false, nil
	}
	delete(s.data, key)

	if err := s.flush(); err != nil {
		s.data[key] = prev
		return nil, false, err
	}
	return prev, true, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// flush rewrites the backing file. Callers must hold the write lock. The
// rename only happens after a fully successful write, so disk-full or
// permission errors leave the previously persisted file untouched.
func (s *Store) flush() error {
	start := time.Now()
	defer func() {
		flushDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	raw, err := sonic.MarshalIndent(s.data, "", "  ")
	if err != nil {
		flushErrorsTotal.Inc()
		return fmt.Errorf("%w: %v", shared.ErrSerialization, err)
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		flushErrorsTotal.Inc()
		return fmt.Errorf("%w: open %s: %v", shared.ErrIO, tmp, err)
	}

	if _, err = f.Write(raw); err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		flushErrorsTotal.Inc()
		return fmt.Errorf("%w: write %s: %v", shared.ErrIO, tmp, err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		flushErrorsTotal.Inc()
		return fmt.Errorf("%w: rename %s: %v", shared.ErrIO, s.path, err)
	}
	return nil
}
