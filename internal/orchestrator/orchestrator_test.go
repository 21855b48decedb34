package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Klingon-tech/night-consolidator/internal/donation"
	"github.com/Klingon-tech/night-consolidator/internal/records"
	"github.com/Klingon-tech/night-consolidator/internal/storage"
	"github.com/Klingon-tech/night-consolidator/internal/wallet"
	"github.com/Klingon-tech/night-consolidator/pkg/types"
)

const dest = "addr1destination"

// fakeSigner returns a 64-hex-char signature per index unless told otherwise.
type fakeSigner struct {
	mu      sync.Mutex
	err     error
	omit    map[int]bool
	calls   int
	indices []int
	onSign  func()
}

func (f *fakeSigner) BatchSign(_ context.Context, _ string, indices []int, _ string) (map[int]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.indices = append(f.indices, indices...)
	if f.onSign != nil {
		f.onSign()
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[int]string)
	for _, i := range indices {
		if !f.omit[i] {
			out[i] = fmt.Sprintf("%064x", i+1)
		}
	}
	return out, nil
}

// remote is a fake donation API keyed by source address.
type remote struct {
	mu      sync.Mutex
	calls   []string
	donated map[string]bool
	status  map[string]int
	body    map[string]string
	onCall  func()
}

func newRemote() *remote {
	return &remote{donated: map[string]bool{}, status: map[string]int{}, body: map[string]string{}}
}

func (rm *remote) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/donate_to/"), "/")
	source := parts[1]

	rm.mu.Lock()
	rm.calls = append(rm.calls, source)
	status, ok := rm.status[source]
	body := rm.body[source]
	if !ok {
		// Deterministic service: first donation succeeds, repeats conflict.
		if rm.donated[source] {
			status, body = http.StatusConflict, `{"message":"Already donated"}`
		} else {
			status, body = http.StatusOK, `{"solutions_consolidated":1}`
		}
		rm.donated[source] = true
	}
	onCall := rm.onCall
	rm.mu.Unlock()

	if onCall != nil {
		onCall()
	}
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func (rm *remote) callCount() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.calls)
}

type harness struct {
	orch    *Orchestrator
	signer  *fakeSigner
	remote  *remote
	store   *records.Store
	root    string
	updates []Progress
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		signer: &fakeSigner{omit: map[int]bool{}},
		remote: newRemote(),
		store:  records.New(storage.NewMemory()),
		root:   t.TempDir(),
	}
	srv := httptest.NewServer(h.remote)
	t.Cleanup(srv.Close)

	client := donation.NewClient(donation.Config{Endpoint: srv.URL, Timeout: 2 * time.Second})
	h.orch = New(Config{
		Signer:      h.signer,
		Submitter:   client,
		Records:     h.store,
		SessionRoot: h.root,
	})
	return h
}

func (h *harness) request(sources ...types.SourceAddress) Request {
	return Request{
		Sources:         sources,
		Destination:     dest,
		DestinationMode: records.ModeCustom,
		Password:        "pw",
		OnProgress:      func(p Progress) { h.updates = append(h.updates, p) },
	}
}

func (h *harness) last() Progress {
	return h.updates[len(h.updates)-1]
}

func src(i int) types.SourceAddress {
	return types.SourceAddress{Index: i, Bech32: "addr1source" + string(rune('a'+i))}
}

func TestConsolidate_MixedOutcomes(t *testing.T) {
	h := newHarness(t)
	h.remote.status[src(1).Bech32] = 200
	h.remote.body[src(1).Bech32] = `{"solutions_consolidated":5}`
	h.remote.status[src(2).Bech32] = 409
	h.remote.status[src(3).Bech32] = 500

	outcomes, err := h.orch.Consolidate(context.Background(), h.request(src(1), src(2), src(3)))
	if err != nil {
		t.Fatalf("Consolidate() error: %v", err)
	}

	want := []donation.Kind{donation.KindSuccess, donation.KindAlreadyDonated, donation.KindError}
	if len(outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(outcomes))
	}
	for i, k := range want {
		if outcomes[i].Kind != k {
			t.Errorf("outcomes[%d].Kind = %s, want %s", i, outcomes[i].Kind, k)
		}
	}
	if outcomes[0].SolutionsConsolidated != 5 {
		t.Errorf("solutions = %d, want 5", outcomes[0].SolutionsConsolidated)
	}

	p := h.last()
	if p.Successful != 2 || p.Failed != 1 || p.TotalSolutionsConsolidated != 5 {
		t.Errorf("final progress = %+v", p)
	}
	if p.Status != StatusCompleted || p.Current != p.Total || p.Total != 3 {
		t.Errorf("final status/current = %s %d/%d", p.Status, p.Current, p.Total)
	}
	if p.Successful+p.Failed != p.Total {
		t.Error("successful + failed must equal total")
	}
}

func TestConsolidate_DestinationSkipped(t *testing.T) {
	h := newHarness(t)
	sources := []types.SourceAddress{src(0), src(1), {Index: 2, Bech32: dest}, src(3)}

	outcomes, err := h.orch.Consolidate(context.Background(), h.request(sources...))
	if err != nil {
		t.Fatalf("Consolidate() error: %v", err)
	}
	if len(outcomes) != 4 {
		t.Fatalf("outcomes = %d, want 4", len(outcomes))
	}
	if outcomes[2].Kind != donation.KindSkipped || outcomes[2].Message != SkippedMessage {
		t.Errorf("outcomes[2] = %+v, want skipped", outcomes[2])
	}
	for _, idx := range h.signer.indices {
		if idx == 2 {
			t.Error("destination index must not be signed")
		}
	}
	for _, c := range h.remote.calls {
		if c == dest {
			t.Error("destination must not be submitted")
		}
	}
	if h.remote.callCount() != 3 {
		t.Errorf("network calls = %d, want 3", h.remote.callCount())
	}
	p := h.last()
	if p.Successful != 3 || p.Failed != 1 {
		t.Errorf("progress = %+v, want 3 successful / 1 failed", p)
	}
}

func TestConsolidate_AuthenticationFailure(t *testing.T) {
	h := newHarness(t)
	h.signer.err = wallet.ErrAuthentication

	outcomes, err := h.orch.Consolidate(context.Background(), h.request(src(0), src(1)))
	if !errors.Is(err, ErrSigning) || !errors.Is(err, wallet.ErrAuthentication) {
		t.Fatalf("Consolidate() error = %v, want ErrSigning wrapping ErrAuthentication", err)
	}
	if outcomes != nil {
		t.Errorf("outcomes = %v, want nil", outcomes)
	}
	if h.remote.callCount() != 0 {
		t.Errorf("network calls = %d, want 0", h.remote.callCount())
	}
	if len(h.store.All()) != 0 {
		t.Error("no records should be written on signing failure")
	}
}

func TestConsolidate_MissingSignature(t *testing.T) {
	h := newHarness(t)
	h.signer.omit[1] = true

	outcomes, err := h.orch.Consolidate(context.Background(), h.request(src(0), src(1), src(2)))
	if err != nil {
		t.Fatalf("Consolidate() error: %v", err)
	}
	if outcomes[1].Kind != donation.KindError || outcomes[1].Message != SignFailedMessage {
		t.Errorf("outcomes[1] = %+v, want sign failure", outcomes[1])
	}
	if outcomes[0].Kind != donation.KindSuccess || outcomes[2].Kind != donation.KindSuccess {
		t.Errorf("other outcomes = %+v", outcomes)
	}
	if h.remote.callCount() != 2 {
		t.Errorf("network calls = %d, want 2", h.remote.callCount())
	}
}

func TestConsolidate_Idempotence(t *testing.T) {
	h := newHarness(t)

	first, err := h.orch.Consolidate(context.Background(), h.request(src(0)))
	if err != nil {
		t.Fatalf("first Consolidate() error: %v", err)
	}
	second, err := h.orch.Consolidate(context.Background(), h.request(src(0)))
	if err != nil {
		t.Fatalf("second Consolidate() error: %v", err)
	}
	if first[0].Kind != donation.KindSuccess || second[0].Kind != donation.KindAlreadyDonated {
		t.Errorf("kinds = %s then %s", first[0].Kind, second[0].Kind)
	}
	if !h.store.HasBeenConsolidated(src(0).Bech32, dest) {
		t.Error("record store should show the source as consolidated")
	}
}

func TestConsolidate_StopBeforeSubmission(t *testing.T) {
	h := newHarness(t)
	h.signer.onSign = h.orch.Stop

	outcomes, err := h.orch.Consolidate(context.Background(), h.request(src(0), src(1)))
	if err != nil {
		t.Fatalf("Consolidate() error: %v", err)
	}
	if len(outcomes) != 0 {
		t.Errorf("outcomes = %d, want 0", len(outcomes))
	}
	if h.last().Status != StatusStopped {
		t.Errorf("status = %s, want stopped", h.last().Status)
	}
	if h.remote.callCount() != 0 {
		t.Errorf("network calls = %d, want 0", h.remote.callCount())
	}
}

func TestConsolidate_StopBeforeRunStarts(t *testing.T) {
	h := newHarness(t)
	h.orch.Stop()

	outcomes, err := h.orch.Consolidate(context.Background(), h.request(src(0), src(1)))
	if err != nil {
		t.Fatalf("Consolidate() error: %v", err)
	}
	if len(outcomes) != 0 {
		t.Errorf("outcomes = %d, want 0", len(outcomes))
	}
	if h.remote.callCount() != 0 {
		t.Errorf("network calls = %d, want 0", h.remote.callCount())
	}

	// The stop is consumed by that run; the next one proceeds.
	outcomes, err = h.orch.Consolidate(context.Background(), h.request(src(0), src(1)))
	if err != nil {
		t.Fatalf("Consolidate() error: %v", err)
	}
	if len(outcomes) != 2 {
		t.Errorf("outcomes after stopped run = %d, want 2", len(outcomes))
	}
}

func TestConsolidate_StopMidBatch(t *testing.T) {
	h := newHarness(t)
	h.remote.onCall = h.orch.Stop

	outcomes, err := h.orch.Consolidate(context.Background(), h.request(src(0), src(1), src(2)))
	if err != nil {
		t.Fatalf("Consolidate() error: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].SourceIndex != 0 {
		t.Errorf("outcomes = %+v, want only the first", outcomes)
	}
	if h.last().Status != StatusStopped {
		t.Errorf("status = %s, want stopped", h.last().Status)
	}
}

// failingSubmitter processes one item and then fails the batch.
type failingSubmitter struct{}

func (failingSubmitter) DonateBatch(_ context.Context, _ string, items []donation.Item, hooks donation.BatchHooks) ([]donation.Outcome, error) {
	o := donation.Success(2, "")
	hooks.OnOutcome(0, o)
	return []donation.Outcome{o}, errors.New("launcher timed out")
}

func TestConsolidate_BatchFailureMarksPending(t *testing.T) {
	orch := New(Config{Signer: &fakeSigner{}, Submitter: failingSubmitter{}})

	outcomes, err := orch.Consolidate(context.Background(), Request{
		Sources:     []types.SourceAddress{src(0), src(1), src(2)},
		Destination: dest,
	})
	if err != nil {
		t.Fatalf("Consolidate() error: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(outcomes))
	}
	if outcomes[0].Kind != donation.KindSuccess || outcomes[0].SourceAddress != src(0).Bech32 {
		t.Errorf("outcomes[0] = %+v", outcomes[0])
	}
	for _, o := range outcomes[1:] {
		if o.Kind != donation.KindError || o.Message != "launcher timed out" {
			t.Errorf("pending outcome = %+v, want batch error", o)
		}
	}
}

// blockingSigner holds the first run in the signing phase.
type blockingSigner struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSigner) BatchSign(_ context.Context, _ string, indices []int, _ string) (map[int]string, error) {
	close(b.entered)
	<-b.release
	return map[int]string{}, nil
}

func TestConsolidate_RunInProgress(t *testing.T) {
	bs := &blockingSigner{entered: make(chan struct{}), release: make(chan struct{})}
	orch := New(Config{Signer: bs, Submitter: failingSubmitter{}})
	req := Request{Sources: []types.SourceAddress{src(0)}, Destination: dest}

	done := make(chan struct{})
	go func() {
		orch.Consolidate(context.Background(), req)
		close(done)
	}()
	<-bs.entered

	if _, err := orch.Consolidate(context.Background(), req); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("concurrent Consolidate() error = %v, want ErrRunInProgress", err)
	}
	close(bs.release)
	<-done
	if orch.Running() {
		t.Error("Running() should be false after the run")
	}
}

func TestConsolidate_ProgressSnapshots(t *testing.T) {
	h := newHarness(t)
	sources := make([]types.SourceAddress, 0, 8)
	for i := 0; i < 8; i++ {
		sources = append(sources, src(i))
	}
	if _, err := h.orch.Consolidate(context.Background(), h.request(sources...)); err != nil {
		t.Fatalf("Consolidate() error: %v", err)
	}

	if h.updates[0].Status != StatusSigning || h.updates[0].Total != 8 {
		t.Errorf("first update = %+v", h.updates[0])
	}
	last := h.last()
	if len(last.Recent) != maxRecent {
		t.Errorf("recent = %d, want %d", len(last.Recent), maxRecent)
	}
	if last.Recent[0].SourceIndex != 7 {
		t.Errorf("recent[0] = #%d, want newest (#7)", last.Recent[0].SourceIndex)
	}
	if len(last.Logs) == 0 || len(last.Logs) > maxLogs {
		t.Errorf("logs = %d", len(last.Logs))
	}
	if !strings.Contains(last.Logs[len(last.Logs)-1], "completed") {
		t.Errorf("last log = %q", last.Logs[len(last.Logs)-1])
	}

	// Counters never go backwards across snapshots.
	for i := 1; i < len(h.updates); i++ {
		a, b := h.updates[i-1], h.updates[i]
		if b.Successful < a.Successful || b.Failed < a.Failed {
			t.Fatalf("counters decreased between updates %d and %d", i-1, i)
		}
	}
}

func TestConsolidate_SessionAndRecords(t *testing.T) {
	h := newHarness(t)
	req := h.request(src(0), src(1))
	req.SessionLabel = "test run"

	if _, err := h.orch.Consolidate(context.Background(), req); err != nil {
		t.Fatalf("Consolidate() error: %v", err)
	}

	recs := h.store.All()
	if len(recs) != 2 || recs[0].SessionID == "" {
		t.Fatalf("records = %+v", recs)
	}
	if _, err := h.store.Session(recs[0].SessionID); err != nil {
		t.Errorf("session snapshot missing: %v", err)
	}

	dirs, _ := filepath.Glob(filepath.Join(h.root, "test-run", "*"))
	if len(dirs) != 1 {
		t.Fatalf("session dirs = %v", dirs)
	}
	for _, name := range []string{"logs.txt", "session-info.json", "EstNightTotal.txt", "batch-input.json", "consolidation-result.json"} {
		if _, err := os.Stat(filepath.Join(dirs[0], name)); err != nil {
			t.Errorf("%s missing: %v", name, err)
		}
	}
	input, _ := os.ReadFile(filepath.Join(dirs[0], "batch-input.json"))
	trace, _ := os.ReadFile(filepath.Join(dirs[0], "logs.txt"))
	if !strings.Contains(string(trace), "-> POST") {
		t.Error("trace should contain request lines")
	}
	if strings.Contains(string(input), fmt.Sprintf("%064x", 1)) {
		t.Error("batch input artifact must not hold full signatures")
	}
}

func TestConsolidate_InaccessibleSessionRoot(t *testing.T) {
	h := newHarness(t)
	blocker := filepath.Join(t.TempDir(), "file")
	os.WriteFile(blocker, []byte("x"), 0644)
	h.orch.cfg.SessionRoot = blocker

	outcomes, err := h.orch.Consolidate(context.Background(), h.request(src(0), src(1)))
	if err != nil {
		t.Fatalf("Consolidate() error: %v", err)
	}
	if len(outcomes) != 2 || h.last().Successful != 2 {
		t.Errorf("outcomes = %+v, progress = %+v", outcomes, h.last())
	}
}

func TestConsolidate_InvalidRequest(t *testing.T) {
	orch := New(Config{Signer: &fakeSigner{}, Submitter: failingSubmitter{}})
	if _, err := orch.Consolidate(context.Background(), Request{}); err == nil {
		t.Error("missing destination should be rejected")
	}
}
