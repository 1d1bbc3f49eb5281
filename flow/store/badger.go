package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	badger "github.com/dgraph-io/badger/v3"
	json "github.com/goccy/go-json"
)

// Badger is an embedded key-value TimelineStore.
//
// Designed for single-binary deployments that want durable timelines
// without an external database. Records are stored as JSON under
// "run:<id>" and "entry:<run_id>:<seq>" keys; the sequence component is
// zero-padded so key order matches sequence order.
type Badger struct {
	db *badger.DB
}

// NewBadger opens (or creates) a Badger-backed store at dir.
//
// Example:
//
//	st, err := store.NewBadger("./data/timelines")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &Badger{db: db}, nil
}

func runKey(runID string) []byte {
	return []byte("run:" + runID)
}

func entryKey(runID string, seq int) []byte {
	return []byte(fmt.Sprintf("entry:%s:%010d", runID, seq))
}

func entryPrefix(runID string) []byte {
	return []byte("entry:" + runID + ":")
}

// CreateRun registers a run record.
func (s *Badger) CreateRun(_ context.Context, run RunRecord) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(run.ID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// AppendEntry appends a timeline entry, enforcing ascending sequence order
// inside one transaction.
func (s *Badger) AppendEntry(_ context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(runKey(e.RunID)); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		} else if err != nil {
			return err
		}

		// The last existing entry key is the highest sequence.
		iopts := badger.DefaultIteratorOptions
		iopts.Prefix = entryPrefix(e.RunID)
		iopts.Reverse = true
		iopts.PrefetchValues = false
		it := txn.NewIterator(iopts)
		defer it.Close()

		// Reverse iteration seeks past the prefix range end.
		it.Seek(append(entryPrefix(e.RunID), 0xff))
		if it.ValidForPrefix(entryPrefix(e.RunID)) {
			var last Entry
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := json.Unmarshal(val, &last); err != nil {
				return err
			}
			if e.Seq <= last.Seq {
				return ErrOutOfOrder
			}
		}
		return txn.Set(entryKey(e.RunID, e.Seq), data)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrOutOfOrder) {
			return err
		}
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

// Entries returns the run's timeline in sequence order.
func (s *Badger) Entries(_ context.Context, runID string) ([]Entry, error) {
	var out []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(runKey(runID)); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		} else if err != nil {
			return err
		}

		iopts := badger.DefaultIteratorOptions
		iopts.Prefix = entryPrefix(runID)
		it := txn.NewIterator(iopts)
		defer it.Close()

		for it.Seek(entryPrefix(runID)); it.ValidForPrefix(entryPrefix(runID)); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var e Entry
			if err := json.Unmarshal(val, &e); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}
	return out, nil
}

// Run returns the run record, or ErrNotFound.
func (s *Badger) Run(_ context.Context, runID string) (RunRecord, error) {
	var run RunRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(runID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return json.Unmarshal(val, &run)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return RunRecord{}, err
		}
		return RunRecord{}, fmt.Errorf("failed to load run: %w", err)
	}
	return run, nil
}

// ListRuns returns all run records, oldest first.
func (s *Badger) ListRuns(_ context.Context) ([]RunRecord, error) {
	var out []RunRecord
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte("run:")
		iopts := badger.DefaultIteratorOptions
		iopts.Prefix = prefix
		it := txn.NewIterator(iopts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var run RunRecord
			if err := json.Unmarshal(val, &run); err != nil {
				return err
			}
			out = append(out, run)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

// Close closes the underlying database.
func (s *Badger) Close() error {
	return s.db.Close()
}
