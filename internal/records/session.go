package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Klingon-tech/night-consolidator/internal/log"
	"github.com/Klingon-tech/night-consolidator/internal/storage"
	"github.com/Klingon-tech/night-consolidator/pkg/types"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// Session is a snapshot of the records produced by one run.
type Session struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	Summary   SessionSummary `json:"summary"`
	Records   []Record       `json:"records"`
}

// SessionSummary totals a session.
type SessionSummary struct {
	Total          int   `json:"total"`
	Successful     int   `json:"successful"`
	Failed         int   `json:"failed"`
	Skipped        int   `json:"skipped"`
	TotalSolutions int64 `json:"totalSolutions"`
}

func summarize(recs []Record) SessionSummary {
	sum := SessionSummary{Total: len(recs)}
	for _, r := range recs {
		switch {
		case r.Succeeded():
			sum.Successful++
			sum.TotalSolutions += r.SolutionsConsolidated
		case r.Skipped:
			sum.Skipped++
			sum.Failed++
		default:
			sum.Failed++
		}
	}
	return sum
}

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// SaveSession stores a snapshot of recs under id. An empty id gets a new one.
func (s *Store) SaveSession(id string, recs []Record) (Session, error) {
	if id == "" {
		id = NewSessionID()
	}
	sess := Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Summary:   summarize(recs),
		Records:   append([]Record{}, recs...),
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return Session{}, fmt.Errorf("encode session: %w", err)
	}
	if err := s.sessions.Put([]byte(id), data); err != nil {
		return Session{}, fmt.Errorf("store session: %w", err)
	}
	log.Records.Debug().Str("session", id).Int("records", len(recs)).Msg("Saved session snapshot")
	return sess, nil
}

// Session returns one snapshot.
func (s *Store) Session(id string) (Session, error) {
	data, err := s.sessions.Get([]byte(id))
	if errors.Is(err, storage.ErrNotFound) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return sess, nil
}

// Sessions returns every snapshot, newest first. Corrupt entries are skipped.
func (s *Store) Sessions() []Session {
	var out []Session
	err := s.sessions.ForEach(nil, func(key, value []byte) error {
		var sess Session
		if err := json.Unmarshal(value, &sess); err != nil {
			log.Records.Warn().Str("session", string(key)).Err(err).Msg("Skipping corrupt session")
			return nil
		}
		out = append(out, sess)
		return nil
	})
	if err != nil {
		log.Records.Error().Err(err).Msg("Failed to read sessions")
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// ExportSession returns the snapshot as indented JSON.
func (s *Store) ExportSession(id string) ([]byte, error) {
	sess, err := s.Session(id)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(sess, "", "  ")
}

// FailedSources returns the sources whose attempt failed in a session,
// excluding skipped ones, in their original order.
func (s *Store) FailedSources(id string) ([]types.SourceAddress, error) {
	sess, err := s.Session(id)
	if err != nil {
		return nil, err
	}
	var out []types.SourceAddress
	for _, r := range sess.Records {
		if r.Succeeded() || r.Skipped || r.SourceIndex == nil {
			continue
		}
		out = append(out, types.SourceAddress{Index: *r.SourceIndex, Bech32: r.SourceAddress})
	}
	return out, nil
}
