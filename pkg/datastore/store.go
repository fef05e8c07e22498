package datastore

import (
	"sync"

	"github.com/cuemby/virtwho/pkg/report"
)

// Store is the process-wide keyed latch holding the most recent Report
// published by each source. Safe for concurrent use by one producer and
// many consumers per key. It keeps no history and no TTL: staleness is
// reasoned about by comparing content hashes, not by age.
type Store struct {
	entries   map[string]report.Report
	entriesMu sync.RWMutex
}

// New returns an empty Store.
func New() *Store {
	return &Store{entries: map[string]report.Report{}}
}

// Put replaces the entry for key with r.
func (s *Store) Put(key string, r report.Report) {
	s.entriesMu.Lock()
	defer s.entriesMu.Unlock()
	s.entries[key] = r
}

// Get returns the entry for key and true, or nil and false if key has
// never been published to.
func (s *Store) Get(key string) (report.Report, bool) {
	s.entriesMu.RLock()
	defer s.entriesMu.RUnlock()
	r, ok := s.entries[key]
	return r, ok
}

// Delete removes the entry for key, if any.
func (s *Store) Delete(key string) {
	s.entriesMu.Lock()
	defer s.entriesMu.Unlock()
	delete(s.entries, key)
}
