// Package storage provides the append-only journal used to rebuild the
// ledger across restarts. It uses BoltDB as the underlying storage
// engine, recording one JSON-encoded entry per leg open/add/close event
// in a single bucket keyed by a monotonic sequence.
package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"marginloop/internal/ledger"

	"go.etcd.io/bbolt"
)

const journalBucket = "journal"

// JournalRecord is one append-only record of a ledger mutation, enough
// to rebuild the ledger's legs and trade book on restart.
type JournalRecord struct {
	Seq       uint64        `json:"seq"`
	Key       ledger.LegKey `json:"key"`
	Action    string        `json:"action"` // OPEN | ADD | CLOSE
	Quantity  float64       `json:"quantity"`
	Price     float64       `json:"price"`
	MarginUSDT float64      `json:"margin_usdt,omitempty"`
	At        time.Time     `json:"at"`
}

// Store provides the journal's persistence layer.
type Store struct {
	db *bbolt.DB
}

// New opens (creating if needed) the journal database under dataPath.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "marginloop.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(journalBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create journal bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Append writes one journal record, assigning it the next sequence
// number in the bucket.
func (s *Store) Append(rec JournalRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(journalBucket))

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("storage: next sequence: %w", err)
		}
		rec.Seq = seq

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("storage: marshal journal record: %w", err)
		}

		return b.Put(seqKey(seq), data)
	})
}

// ReplayAll returns every journal record in sequence order, used to
// rebuild the ledger at startup.
func (s *Store) ReplayAll() ([]JournalRecord, error) {
	var records []JournalRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(journalBucket))
		c := b.Cursor()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec JournalRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue // skip malformed records rather than fail the whole replay
			}
			records = append(records, rec)
		}
		return nil
	})

	return records, err
}

func seqKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%020d", seq))
}
