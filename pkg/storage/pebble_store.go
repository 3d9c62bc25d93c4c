package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
)

var (
	// ErrNotFound is returned when no entity exists under the requested key.
	ErrNotFound = errors.New("storage: not found")
	// ErrUnavailable is returned when a transaction loses a revision race.
	// The conflict is transient; callers retry with a fresh transaction.
	ErrUnavailable = errors.New("storage: transient conflict")
)

// Store is a Pebble-backed entity store. Every value carries a revision
// (see codec.go); Tx captures the revision of everything it reads and Commit
// re-validates those revisions under the store mutex before applying all
// writes as one synced batch. A transaction therefore either observes a
// serializable view and commits atomically, or fails with ErrUnavailable
// and no effect.
type Store struct {
	mu sync.Mutex // serializes commit validation + apply
	db *pebble.DB
}

func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Get unmarshals the entity at key into v and returns its revision.
func (s *Store) Get(key []byte, v any) (uint64, error) {
	raw, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get %q: %w", key, err)
	}
	defer closer.Close()

	rev, payload, err := splitValue(raw)
	if err != nil {
		return 0, fmt.Errorf("get %q: %w", key, err)
	}
	if v != nil {
		if err := unmarshalPayload(payload, v); err != nil {
			return 0, fmt.Errorf("get %q: %w", key, err)
		}
	}
	return rev, nil
}

// revOf returns the current revision of key, 0 when absent.
func (s *Store) revOf(key []byte) (uint64, error) {
	raw, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("rev %q: %w", key, err)
	}
	defer closer.Close()

	rev, _, err := splitValue(raw)
	return rev, err
}

// Scan visits every entity under prefix in key order. The payload passed to
// fn has the revision frame stripped and is only valid during the call.
func (s *Store) Scan(prefix []byte, fn func(key []byte, payload []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: KeyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("scan %q: %w", prefix, err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		_, payload, err := splitValue(iter.Value())
		if err != nil {
			return fmt.Errorf("scan %q at %q: %w", prefix, iter.Key(), err)
		}
		if err := fn(iter.Key(), payload); err != nil {
			return err
		}
	}
	return iter.Error()
}

// ScanReverse visits entities under prefix in descending key order, stopping
// early when fn returns false.
func (s *Store) ScanReverse(prefix []byte, fn func(key []byte, payload []byte) (bool, error)) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: KeyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("scan %q: %w", prefix, err)
	}
	defer iter.Close()

	for iter.Last(); iter.Valid(); iter.Prev() {
		_, payload, err := splitValue(iter.Value())
		if err != nil {
			return fmt.Errorf("scan %q at %q: %w", prefix, iter.Key(), err)
		}
		more, err := fn(iter.Key(), payload)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return iter.Error()
}

// Tx is an optimistic transaction. Reads go to committed state and record
// the observed revision (0 for absent keys); writes buffer locally until
// Commit. Not safe for concurrent use.
type Tx struct {
	s       *Store
	readRev map[string]uint64
	writes  map[string][]byte // JSON payloads, framed at commit
}

func (s *Store) NewTx() *Tx {
	return &Tx{
		s:       s,
		readRev: make(map[string]uint64),
		writes:  make(map[string][]byte),
	}
}

// Get reads key into v, observing the transaction's own pending writes first.
func (t *Tx) Get(key []byte, v any) error {
	if payload, ok := t.writes[string(key)]; ok {
		return unmarshalPayload(payload, v)
	}
	rev, err := t.s.Get(key, v)
	if errors.Is(err, ErrNotFound) {
		// Absence is part of the read set: a concurrent creation must
		// invalidate this transaction.
		t.readRev[string(key)] = 0
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	t.readRev[string(key)] = rev
	return nil
}

// Put buffers a write of v under key.
func (t *Tx) Put(key []byte, v any) error {
	payload, err := marshalPayload(v)
	if err != nil {
		return err
	}
	t.writes[string(key)] = payload
	return nil
}

// Scan visits committed entities under prefix, recording each revision in
// the read set. Pending writes of this transaction are not merged; callers
// scan before mutating.
func (t *Tx) Scan(prefix []byte, fn func(key []byte, payload []byte) error) error {
	iter, err := t.s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: KeyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("scan %q: %w", prefix, err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		rev, payload, err := splitValue(iter.Value())
		if err != nil {
			return fmt.Errorf("scan %q at %q: %w", prefix, iter.Key(), err)
		}
		t.readRev[string(iter.Key())] = rev
		if err := fn(iter.Key(), payload); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Commit validates every recorded read revision and applies the write set
// as a single synced batch. ErrUnavailable means a concurrent commit touched
// something this transaction read; nothing was written.
func (t *Tx) Commit() error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for key, rev := range t.readRev {
		cur, err := t.s.revOf([]byte(key))
		if err != nil {
			return err
		}
		if cur != rev {
			return ErrUnavailable
		}
	}

	batch := t.s.db.NewBatch()
	defer batch.Close()

	for key, payload := range t.writes {
		next := uint64(1)
		if rev, ok := t.readRev[key]; ok {
			next = rev + 1
		} else {
			cur, err := t.s.revOf([]byte(key))
			if err != nil {
				return err
			}
			next = cur + 1
		}
		if err := batch.Set([]byte(key), frameValue(next, payload), nil); err != nil {
			return fmt.Errorf("batch set %q: %w", key, err)
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}
