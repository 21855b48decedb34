// Package orchestrator runs a consolidation: it signs one message per source
// address, submits the signed batch and accounts for every address.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/night-consolidator/internal/donation"
	"github.com/Klingon-tech/night-consolidator/internal/log"
	"github.com/Klingon-tech/night-consolidator/internal/records"
	"github.com/Klingon-tech/night-consolidator/internal/session"
	"github.com/Klingon-tech/night-consolidator/pkg/types"
)

var (
	// ErrSigning wraps any failure of the signer. The run is aborted before
	// anything is submitted.
	ErrSigning = errors.New("failed to sign messages")
	// ErrRunInProgress is returned when Consolidate is called during a run.
	ErrRunInProgress = errors.New("consolidation already in progress")
)

// Outcome messages produced by the orchestrator itself.
const (
	SkippedMessage    = "Source address matches destination - skipped"
	SignFailedMessage = "Failed to sign message"
)

// Signer produces one signature per address index for destination.
type Signer interface {
	BatchSign(ctx context.Context, password string, indices []int, destination string) (map[int]string, error)
}

// Submitter donates a signed batch. *donation.Client and *launcher.Client
// implement it. A returned error with fewer outcomes than items means the
// remaining items were not processed.
type Submitter interface {
	DonateBatch(ctx context.Context, destination string, items []donation.Item, hooks donation.BatchHooks) ([]donation.Outcome, error)
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Signer    Signer
	Submitter Submitter
	// Records receives one record per outcome and a session snapshot. Optional.
	Records *records.Store
	// SessionRoot is where session logs go. Empty disables them.
	SessionRoot string
}

// Request describes one run.
type Request struct {
	Sources          []types.SourceAddress
	Destination      string
	DestinationMode  string // records.ModeWallet or records.ModeCustom
	DestinationIndex *int
	Password         string
	SessionLabel     string
	OnProgress       func(Progress)
}

// Orchestrator runs one consolidation at a time.
type Orchestrator struct {
	cfg     Config
	running atomic.Bool
	stopped atomic.Bool
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{cfg: cfg}
}

// Stop asks the current run to stop at the next phase or item boundary.
// A request already on the wire is not interrupted. A Stop issued while no
// run is active applies to the next run.
func (o *Orchestrator) Stop() {
	o.stopped.Store(true)
}

// Running reports whether a run is in progress.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Consolidate runs the whole workflow and returns one outcome per processed
// source, in input order. Only signer failures and invalid requests are
// returned as errors; per-address failures are outcomes.
func (o *Orchestrator) Consolidate(ctx context.Context, req Request) ([]donation.Outcome, error) {
	if req.Destination == "" {
		return nil, fmt.Errorf("destination address is required")
	}
	if o.cfg.Signer == nil || o.cfg.Submitter == nil {
		return nil, fmt.Errorf("orchestrator needs a signer and a submitter")
	}
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer func() {
		o.stopped.Store(false)
		o.running.Store(false)
	}()

	if req.DestinationMode == "" {
		req.DestinationMode = records.ModeCustom
	}
	id := records.NewSessionID()
	r := &run{
		o:         o,
		req:       req,
		sessionID: id,
		track:     newTracker(len(req.Sources), req.OnProgress),
		results:   make([]donation.Outcome, len(req.Sources)),
		done:      make([]bool, len(req.Sources)),
		sess:      session.Noop(),
		logger:    log.Orchestrator.With().Str("session", id).Logger(),
		started:   time.Now(),
	}
	return r.execute(ctx)
}

// run is the state of one Consolidate call.
type run struct {
	o         *Orchestrator
	req       Request
	sessionID string
	track     *tracker
	results   []donation.Outcome
	done      []bool
	sess      session.Logger
	logger    zerolog.Logger
	started   time.Time
}

func (r *run) stopRequested() bool {
	return r.o.stopped.Load()
}

func (r *run) execute(ctx context.Context) ([]donation.Outcome, error) {
	req := r.req
	r.track.logf("Starting consolidation for %d addresses", len(req.Sources))
	r.track.logf("Destination: %s", types.Preview(req.Destination, 20))
	r.track.emit()

	if root := r.o.cfg.SessionRoot; root != "" {
		r.sess = session.Open(root, req.Destination, map[string]any{
			"sessionId":          r.sessionID,
			"status":             "created",
			"destinationAddress": req.Destination,
			"destinationMode":    req.DestinationMode,
			"totalAddresses":     len(req.Sources),
		}, req.SessionLabel)
	}
	r.sess.Log("Consolidation session %s started", r.sessionID)
	r.sess.Log("Destination: %s (%s)", req.Destination, req.DestinationMode)
	r.sess.Log("Source addresses: %d", len(req.Sources))
	r.logger.Info().
		Int("sources", len(req.Sources)).
		Str("destination", types.Preview(req.Destination, 20)).
		Str("session_dir", r.sess.Dir()).
		Msg("Consolidation started")

	sigs, err := r.sign(ctx)
	if err != nil {
		r.track.logf("Signing failed: %v", err)
		r.track.emit()
		r.sess.Log("Signing failed: %v", err)
		r.sess.UpdateMetadata(map[string]any{"status": "failed", "error": err.Error()})
		runsTotal.WithLabelValues("failed").Inc()
		r.logger.Error().Err(err).Msg("Signing failed, nothing submitted")
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}

	if r.stopRequested() {
		r.track.p.Status = StatusStopped
		r.track.logf("Consolidation stopped before submission")
		r.track.emit()
		r.sess.Log("Stopped before submission")
		r.sess.UpdateMetadata(map[string]any{"status": string(StatusStopped), "successful": 0, "failed": 0})
		runsTotal.WithLabelValues(string(StatusStopped)).Inc()
		return []donation.Outcome{}, nil
	}

	r.track.p.Status = StatusConsolidating
	r.track.p.Current = 0
	r.track.emit()

	items, positions := r.prepare(sigs)
	if len(items) > 0 && !r.stopRequested() {
		r.submit(ctx, items, positions)
	}

	return r.finish(items), nil
}

// sign asks the signer for every source that is not the destination.
func (r *run) sign(ctx context.Context) (map[int]string, error) {
	var indices []int
	for _, src := range r.req.Sources {
		if src.Bech32 != r.req.Destination {
			indices = append(indices, src.Index)
		}
	}
	if len(indices) == 0 {
		return map[int]string{}, nil
	}
	r.sess.Log("Signing %d donation messages", len(indices))

	sigs, err := r.o.cfg.Signer.BatchSign(ctx, r.req.Password, indices, r.req.Destination)
	if err != nil {
		return nil, err
	}
	r.sess.Log("Signed %d of %d messages", len(sigs), len(indices))
	return sigs, nil
}

// prepare settles skipped and unsigned sources and returns the batch to
// submit with each item's position in the source list.
func (r *run) prepare(sigs map[int]string) ([]donation.Item, []int) {
	var (
		items     []donation.Item
		positions []int
	)
	for i, src := range r.req.Sources {
		if src.Bech32 == r.req.Destination {
			r.settle(i, donation.Skipped(SkippedMessage).For(src.Bech32, src.Index))
			continue
		}
		sig, ok := sigs[src.Index]
		if !ok || sig == "" {
			r.settle(i, donation.Failure(SignFailedMessage).For(src.Bech32, src.Index))
			continue
		}
		items = append(items, donation.Item{
			SourceAddress: src.Bech32,
			Signature:     sig,
			SourceIndex:   src.Index,
		})
		positions = append(positions, i)
	}
	return items, positions
}

func (r *run) submit(ctx context.Context, items []donation.Item, positions []int) {
	r.track.logf("Batch consolidating %d addresses...", len(items))
	r.track.p.CurrentAddress = fmt.Sprintf("Batch consolidating %d addresses...", len(items))
	r.track.emit()

	outcomes, err := r.o.cfg.Submitter.DonateBatch(ctx, r.req.Destination, items, donation.BatchHooks{
		OnOutcome: func(j int, o donation.Outcome) {
			if j >= 0 && j < len(positions) {
				r.settle(positions[j], o.For(items[j].SourceAddress, items[j].SourceIndex))
			}
		},
		ShouldStop: r.stopRequested,
		Tracer:     r.sess,
	})

	// Submitters that report only at the end are settled here.
	for j, o := range outcomes {
		if j < len(positions) && !r.done[positions[j]] {
			r.settle(positions[j], o.For(items[j].SourceAddress, items[j].SourceIndex))
		}
	}

	if err != nil {
		r.track.logf("✗ Batch consolidation failed: %v", err)
		r.sess.Log("Batch consolidation failed: %v", err)
		r.logger.Warn().Err(err).Int("processed", len(outcomes)).Msg("Batch submission failed")
		for j, pos := range positions {
			if !r.done[pos] {
				r.settle(pos, donation.Failure(err.Error()).For(items[j].SourceAddress, items[j].SourceIndex))
			}
		}
	}
}

// settle stores the outcome of source i and updates progress.
func (r *run) settle(i int, o donation.Outcome) {
	if r.done[i] {
		return
	}
	r.results[i] = o
	r.done[i] = true
	r.track.record(o)
	r.track.emit()
}

func (r *run) finish(items []donation.Item) []donation.Outcome {
	status := StatusCompleted
	if r.stopRequested() {
		status = StatusStopped
	}

	outcomes := make([]donation.Outcome, 0, len(r.results))
	for i, o := range r.results {
		if r.done[i] {
			outcomes = append(outcomes, o)
		}
	}

	p := &r.track.p
	p.Current = p.Total
	p.Status = status
	r.track.logf("Consolidation %s: %d successful, %d failed", status, p.Successful, p.Failed)
	r.track.emit()

	r.persist(outcomes)
	r.writeSession(status, items, outcomes)
	runsTotal.WithLabelValues(string(status)).Inc()

	r.logger.Info().
		Str("status", string(status)).
		Int("successful", p.Successful).
		Int("failed", p.Failed).
		Int64("solutions", p.TotalSolutionsConsolidated).
		Dur("took", time.Since(r.started)).
		Msg("Consolidation finished")
	return outcomes
}

// persist appends records and saves the session snapshot. Failures are
// logged and otherwise ignored.
func (r *run) persist(outcomes []donation.Outcome) {
	store := r.o.cfg.Records
	if store == nil {
		return
	}
	recs := make([]records.Record, 0, len(outcomes))
	for _, o := range outcomes {
		rec := records.FromOutcome(o, r.req.Destination, r.req.DestinationIndex, r.req.DestinationMode, r.sessionID)
		if err := store.Append(rec); err != nil {
			r.logger.Warn().Err(err).Str("source", o.SourceAddress).Msg("Failed to store record")
		}
		recs = append(recs, rec)
	}
	if _, err := store.SaveSession(r.sessionID, recs); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to save session snapshot")
	}
}

func (r *run) writeSession(status Status, items []donation.Item, outcomes []donation.Outcome) {
	p := r.track.p

	redacted := make([]donation.Item, len(items))
	for i, it := range items {
		it.Signature = types.Preview(it.Signature, 16)
		redacted[i] = it
	}
	r.sess.WriteJSON("batch-input.json", redacted)
	r.sess.WriteJSON("consolidation-result.json", donation.NewBatchResult(r.req.Destination, outcomes, len(r.req.Sources)))

	r.sess.Log("Consolidation %s: %d successful, %d failed, %d solutions", status, p.Successful, p.Failed, p.TotalSolutionsConsolidated)
	r.sess.WriteSummary([]string{
		"Night Consolidation Summary",
		"Session:             " + r.sessionID,
		"Destination:         " + r.req.Destination,
		"Status:              " + string(status),
		fmt.Sprintf("Total addresses:     %d", p.Total),
		fmt.Sprintf("Successful:          %d", p.Successful),
		fmt.Sprintf("Failed:              %d", p.Failed),
		fmt.Sprintf("Solutions (est.):    %d", p.TotalSolutionsConsolidated),
		"Completed at:        " + time.Now().Format(time.RFC3339),
	})
	r.sess.UpdateMetadata(map[string]any{
		"status":         string(status),
		"successful":     p.Successful,
		"failed":         p.Failed,
		"totalSolutions": p.TotalSolutionsConsolidated,
		"completedAt":    time.Now().UTC().Format(time.RFC3339),
	})
}
