package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Klingon-tech/night-consolidator/internal/log"
	"github.com/Klingon-tech/night-consolidator/internal/storage"
)

// Key namespaces in the shared database.
const (
	recordPrefix  = "rec/"
	sessionPrefix = "ses/"
)

var errStop = errors.New("stop iteration")

// Store is the record history. Reads never fail: storage and decoding
// problems are logged and the affected entries are skipped.
type Store struct {
	mu         sync.Mutex
	db         storage.DB
	recs       *storage.PrefixDB
	sessions   *storage.PrefixDB
	seq        uint64
	seqErr     error
	persistent bool
}

// Open opens the badger-backed store in dir. If the database cannot be
// opened the store falls back to memory and history is not kept across runs.
func Open(dir string) *Store {
	db, err := storage.NewBadger(dir)
	if err != nil {
		log.Records.Warn().Err(err).Str("dir", dir).Msg("Record database unavailable, using in-memory history")
		return New(storage.NewMemory())
	}
	s := New(db)
	s.persistent = true
	return s
}

// New creates a store over db.
func New(db storage.DB) *Store {
	s := &Store{
		db:       db,
		recs:     storage.NewPrefixDB(db, recordPrefix),
		sessions: storage.NewPrefixDB(db, sessionPrefix),
	}
	err := s.recs.ForEach(nil, func(key, _ []byte) error {
		if n, err := strconv.ParseUint(string(key), 10, 64); err == nil && n > s.seq {
			s.seq = n
		}
		return nil
	})
	if err != nil {
		// Without the last sequence number an append could overwrite history.
		log.Records.Error().Err(err).Msg("Failed to scan records, appends disabled")
		s.seqErr = err
	}
	return s
}

// Persistent reports whether records survive the process.
func (s *Store) Persistent() bool {
	return s.persistent
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func recordKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%020d", seq))
}

// Append stores a record. A zero timestamp is set to now. It fails when the
// store could not determine its last sequence number on open.
func (s *Store) Append(r Record) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seqErr != nil {
		return fmt.Errorf("record sequence unknown: %w", s.seqErr)
	}
	next := s.seq + 1
	if err := s.recs.Put(recordKey(next), data); err != nil {
		return fmt.Errorf("store record: %w", err)
	}
	s.seq = next
	return nil
}

// All returns every record in append order.
func (s *Store) All() []Record {
	return s.filter(func(Record) bool { return true })
}

// For returns the records of one source address.
func (s *Store) For(source string) []Record {
	return s.filter(func(r Record) bool { return r.SourceAddress == source })
}

// Successful returns every successful record.
func (s *Store) Successful() []Record {
	return s.filter(Record.Succeeded)
}

// HasBeenConsolidated reports whether source has a successful record. An
// empty destination matches any destination.
func (s *Store) HasBeenConsolidated(source, destination string) bool {
	found := false
	s.each(func(r Record) bool {
		if r.SourceAddress == source && r.Succeeded() &&
			(destination == "" || r.DestinationAddress == destination) {
			found = true
			return false
		}
		return true
	})
	return found
}

// Latest returns the most recent record of source.
func (s *Store) Latest(source string) (Record, bool) {
	recs := s.For(source)
	if len(recs) == 0 {
		return Record{}, false
	}
	return recs[len(recs)-1], true
}

// Recent returns up to n records, newest first.
func (s *Store) Recent(n int) []Record {
	all := s.All()
	if n <= 0 {
		return nil
	}
	if n > len(all) {
		n = len(all)
	}
	out := make([]Record, 0, n)
	for i := len(all) - 1; len(out) < n; i-- {
		out = append(out, all[i])
	}
	return out
}

func (s *Store) filter(keep func(Record) bool) []Record {
	var out []Record
	s.each(func(r Record) bool {
		if keep(r) {
			out = append(out, r)
		}
		return true
	})
	return out
}

// each visits records in append order until fn returns false.
func (s *Store) each(fn func(Record) bool) {
	err := s.recs.ForEach(nil, func(key, value []byte) error {
		var r Record
		if err := json.Unmarshal(value, &r); err != nil {
			log.Records.Warn().Str("key", string(key)).Err(err).Msg("Skipping corrupt record")
			return nil
		}
		if !fn(r) {
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		log.Records.Error().Err(err).Msg("Failed to read records")
	}
}
