package donation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SingleResult is the artifact written after a single-address donation.
type SingleResult struct {
	Success               bool   `json:"success"`
	SolutionsConsolidated *int64 `json:"solutionsConsolidated,omitempty"`
	Message               string `json:"message,omitempty"`
	Error                 string `json:"error,omitempty"`
	AlreadyDonated        bool   `json:"alreadyDonated,omitempty"`
	SourceAddress         string `json:"sourceAddress"`
	DestinationAddress    string `json:"destinationAddress"`
}

// NewSingleResult builds the artifact for one outcome.
func NewSingleResult(destination string, o Outcome) SingleResult {
	r := SingleResult{
		Success:            o.Succeeded(),
		SourceAddress:      o.SourceAddress,
		DestinationAddress: destination,
	}
	switch o.Kind {
	case KindSuccess:
		n := o.SolutionsConsolidated
		r.SolutionsConsolidated = &n
		r.Message = o.Message
	case KindAlreadyDonated:
		r.AlreadyDonated = true
		r.Message = o.Message
	default:
		r.Error = o.Message
	}
	return r
}

// Outcome converts the artifact back into an outcome.
func (r SingleResult) Outcome() Outcome {
	var o Outcome
	switch {
	case r.AlreadyDonated:
		o = AlreadyDonated(r.Message)
	case r.Success:
		var n int64
		if r.SolutionsConsolidated != nil {
			n = *r.SolutionsConsolidated
		}
		o = Success(n, r.Message)
	default:
		msg := r.Error
		if msg == "" {
			msg = r.Message
		}
		o = Failure(msg)
	}
	return o.For(r.SourceAddress, 0)
}

// BatchSummary totals a batch. Skipped counts already-donated sources.
type BatchSummary struct {
	Total          int   `json:"total"`
	Successful     int   `json:"successful"`
	Skipped        int   `json:"skipped"`
	Errors         int   `json:"errors"`
	TotalSolutions int64 `json:"totalSolutions"`
}

// BatchResult is the artifact written after a batch donation.
type BatchResult struct {
	Success            bool         `json:"success"`
	Results            []Outcome    `json:"results"`
	Summary            BatchSummary `json:"summary"`
	DestinationAddress string       `json:"destinationAddress"`
}

// NewBatchResult summarizes outcomes of a batch of total requested items.
func NewBatchResult(destination string, outcomes []Outcome, total int) BatchResult {
	r := BatchResult{
		Results:            outcomes,
		Summary:            BatchSummary{Total: total},
		DestinationAddress: destination,
	}
	if r.Results == nil {
		r.Results = []Outcome{}
	}
	for _, o := range outcomes {
		switch o.Kind {
		case KindSuccess:
			r.Summary.Successful++
			r.Summary.TotalSolutions += o.SolutionsConsolidated
		case KindAlreadyDonated, KindSkipped:
			r.Summary.Skipped++
		default:
			r.Summary.Errors++
		}
	}
	r.Success = r.Summary.Errors == 0
	return r
}

// WriteResult writes v as indented JSON to path, replacing any previous
// file atomically so a poller never sees a partial result.
func WriteResult(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create result dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".result-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp result: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write result: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write result: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish result: %w", err)
	}
	return nil
}

// ReadItems loads a batch input file (a JSON array of items).
func ReadItems(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse batch file: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("batch must contain at least one address")
	}
	return items, nil
}
