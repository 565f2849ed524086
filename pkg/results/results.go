/*
Package results implements C2: an idempotent, write-once store for task
outcomes, built on pkg/storage.

A Put for a key that has never been written succeeds. A Put for a key
already holding the same outcome is a silent no-op. A Put for a key already
holding a different outcome returns ErrConflict, since two different
outcomes for the same (experiment, package, toolchain) triple means the
task graph scheduled the same work twice. pkg/worker logs a failed Put,
ErrConflict included, and carries on with the run; it does not stop the
experiment.
*/
package results

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/crater/pkg/storage"
	"github.com/cuemby/crater/pkg/types"
)

var bucketResults = []byte("results")

// ErrConflict is returned when a key already holds a different outcome
// than the one being written.
var ErrConflict = errors.New("results: conflicting outcome for key")

// Record is the durable value stored per key.
type Record struct {
	Package   types.Package   `json:"package"`
	Toolchain types.Toolchain `json:"toolchain"`
	Outcome   types.Outcome   `json:"outcome"`
	Log       []byte          `json:"log,omitempty"`
	WrittenAt time.Time       `json:"written_at"`
}

// Store serializes concurrent writes to the same key before they reach the
// underlying storage.Store, and implements the conflict check described
// above. The underlying storage.Store's own transactions still apply;
// this layer only adds cross-call, same-key serialization within one
// process, matching the "owned, internally serialized by key" requirement
// placed on C2.
type Store struct {
	backend storage.Store

	keyLocksMu sync.Mutex
	keyLocks   map[string]*sync.Mutex
}

// New wraps backend as an idempotent result store.
func New(backend storage.Store) *Store {
	return &Store{backend: backend, keyLocks: make(map[string]*sync.Mutex)}
}

func key(exp string, pkg types.Package, tc types.Toolchain) []byte {
	return []byte(fmt.Sprintf("%s/%s/%s", exp, pkg.Key(), tc.Key()))
}

func (s *Store) lockFor(k string) *sync.Mutex {
	s.keyLocksMu.Lock()
	defer s.keyLocksMu.Unlock()
	m, ok := s.keyLocks[k]
	if !ok {
		m = &sync.Mutex{}
		s.keyLocks[k] = m
	}
	return m
}

// Put records outcome for (exp, pkg, tc), attaching log. Returns
// ErrConflict if the key already holds a different outcome.
func (s *Store) Put(exp string, pkg types.Package, tc types.Toolchain, outcome types.Outcome, log []byte) error {
	k := key(exp, pkg, tc)
	mu := s.lockFor(string(k))
	mu.Lock()
	defer mu.Unlock()

	existing, found, err := s.backend.Get(bucketResults, k)
	if err != nil {
		return fmt.Errorf("results: read existing: %w", err)
	}
	if found {
		var rec Record
		if err := json.Unmarshal(existing, &rec); err != nil {
			return fmt.Errorf("results: decode existing: %w", err)
		}
		if rec.Outcome == outcome {
			return nil
		}
		return fmt.Errorf("%w: key=%s existing=%s new=%s", ErrConflict, k, rec.Outcome, outcome)
	}

	rec := Record{Package: pkg, Toolchain: tc, Outcome: outcome, Log: log, WrittenAt: time.Now()}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("results: encode: %w", err)
	}
	return s.backend.Put(bucketResults, k, data)
}

// Get returns the recorded result for (exp, pkg, tc), if any.
func (s *Store) Get(exp string, pkg types.Package, tc types.Toolchain) (*Record, bool, error) {
	data, found, err := s.backend.Get(bucketResults, key(exp, pkg, tc))
	if err != nil || !found {
		return nil, found, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("results: decode: %w", err)
	}
	return &rec, true, nil
}

// Has reports whether a result already exists for (exp, pkg, tc), without
// decoding its value.
func (s *Store) Has(exp string, pkg types.Package, tc types.Toolchain) (bool, error) {
	_, found, err := s.backend.Get(bucketResults, key(exp, pkg, tc))
	return found, err
}

// ForExperiment returns every Record written for exp, in no particular
// order. Used by pkg/report to build a report once an experiment
// completes.
func (s *Store) ForExperiment(exp string) ([]Record, error) {
	prefix := []byte(exp + "/")
	var records []Record
	err := s.backend.ForEach(bucketResults, func(k, v []byte) error {
		if !bytes.HasPrefix(k, prefix) {
			return nil
		}
		var rec Record
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("results: decode %s: %w", k, err)
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("results: list %s: %w", exp, err)
	}
	return records, nil
}
