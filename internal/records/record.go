// Package records keeps the append-only history of consolidation attempts
// and per-run session snapshots.
package records

import (
	"time"

	"github.com/Klingon-tech/night-consolidator/internal/donation"
)

// Record status values.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Destination modes.
const (
	ModeWallet = "wallet"
	ModeCustom = "custom"
)

// Record is one attempted donation. Records are never modified after Append.
type Record struct {
	Timestamp             time.Time `json:"timestamp"`
	SourceAddress         string    `json:"sourceAddress"`
	SourceIndex           *int      `json:"sourceIndex,omitempty"`
	DestinationAddress    string    `json:"destinationAddress"`
	DestinationIndex      *int      `json:"destinationIndex,omitempty"`
	DestinationMode       string    `json:"destinationMode"`
	SolutionsConsolidated int64     `json:"solutionsConsolidated"`
	Message               string    `json:"message,omitempty"`
	Status                string    `json:"status"`
	Error                 string    `json:"error,omitempty"`
	Skipped               bool      `json:"skipped,omitempty"`
	SessionID             string    `json:"sessionId,omitempty"`
}

// Succeeded reports whether the record counts as consolidated.
func (r Record) Succeeded() bool {
	return r.Status == StatusSuccess
}

// FromOutcome builds the record for one donation outcome.
// Already-donated outcomes are stored as successes.
func FromOutcome(o donation.Outcome, destination string, destIndex *int, mode, sessionID string) Record {
	idx := o.SourceIndex
	r := Record{
		Timestamp:          time.Now().UTC(),
		SourceAddress:      o.SourceAddress,
		SourceIndex:        &idx,
		DestinationAddress: destination,
		DestinationIndex:   destIndex,
		DestinationMode:    mode,
		SessionID:          sessionID,
	}
	switch o.Kind {
	case donation.KindSuccess:
		r.Status = StatusSuccess
		r.SolutionsConsolidated = o.SolutionsConsolidated
		r.Message = o.Message
	case donation.KindAlreadyDonated:
		r.Status = StatusSuccess
		r.Message = donation.DefaultAlreadyDonatedMessage
	case donation.KindSkipped:
		r.Status = StatusFailed
		r.Skipped = true
		r.Error = o.Message
	default:
		r.Status = StatusFailed
		r.Error = o.Message
	}
	return r
}
