package donation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingTracer struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingTracer) Log(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, strings.TrimSpace(sprintf(format, args...)))
}

func (r *recordingTracer) indexOf(substr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, l := range r.lines {
		if strings.Contains(l, substr) {
			return i
		}
	}
	return -1
}

// fakeAPI serves donate_to requests; respond maps the source address to a
// status code and body.
type fakeAPI struct {
	mu       sync.Mutex
	paths    []string
	agents   []string
	arrivals []time.Time
	finishes []time.Time
	latency  time.Duration
	respond  func(source string) (int, string)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.agents = append(f.agents, r.UserAgent())
	f.arrivals = append(f.arrivals, time.Now())
	f.mu.Unlock()

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/donate_to/"), "/")
	if len(parts) != 3 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if f.latency > 0 {
		time.Sleep(f.latency)
	}
	status, body := f.respond(parts[1])
	f.mu.Lock()
	f.finishes = append(f.finishes, time.Now())
	f.mu.Unlock()
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func newTestClient(t *testing.T, api *fakeAPI, delay time.Duration) (*Client, *recordingTracer) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	tr := &recordingTracer{}
	c := NewClient(Config{Endpoint: srv.URL + "/", Delay: delay, Timeout: 2 * time.Second, Tracer: tr})
	return c, tr
}

func TestClient_DonateSingle_Classification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind Kind
		wantSols int64
		wantMsg  string
	}{
		{"success with fields", 200, `{"solutions_consolidated":5,"message":"ok"}`, KindSuccess, 5, "ok"},
		{"success defaults", 201, `{}`, KindSuccess, 0, DefaultSuccessMessage},
		{"success non-json", 200, `done`, KindSuccess, 0, DefaultSuccessMessage},
		{"conflict with message", 409, `{"message":"dup"}`, KindAlreadyDonated, 0, "dup"},
		{"conflict default", 409, ``, KindAlreadyDonated, 0, DefaultAlreadyDonatedMessage},
		{"server error message", 500, `{"message":"boom"}`, KindError, 0, "boom"},
		{"server error bare", 500, `oops`, KindError, 0, "500"},
		{"bad request", 400, `{}`, KindError, 0, "400"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{respond: func(string) (int, string) { return tt.status, tt.body }}
			c, _ := newTestClient(t, api, 0)

			o := c.DonateSingle(context.Background(), "addr1dest", "addr1src", "abcdef")
			if o.Kind != tt.wantKind {
				t.Fatalf("Kind = %s, want %s", o.Kind, tt.wantKind)
			}
			if o.SolutionsConsolidated != tt.wantSols {
				t.Errorf("SolutionsConsolidated = %d, want %d", o.SolutionsConsolidated, tt.wantSols)
			}
			if o.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", o.Message, tt.wantMsg)
			}
			if o.SourceAddress != "addr1src" {
				t.Errorf("SourceAddress = %q", o.SourceAddress)
			}
		})
	}
}

func TestClient_RequestShape(t *testing.T) {
	api := &fakeAPI{respond: func(string) (int, string) { return 200, `{}` }}
	c, _ := newTestClient(t, api, 0)

	c.DonateSingle(context.Background(), "addr1dest", "addr1src", "deadbeef")

	if len(api.paths) != 1 {
		t.Fatalf("requests = %d, want 1", len(api.paths))
	}
	if api.paths[0] != "/donate_to/addr1dest/addr1src/deadbeef" {
		t.Errorf("path = %q", api.paths[0])
	}
	if api.agents[0] != DefaultUserAgent {
		t.Errorf("User-Agent = %q, want %q", api.agents[0], DefaultUserAgent)
	}
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(Config{Endpoint: srv.URL, Timeout: 50 * time.Millisecond})
	o := c.DonateSingle(context.Background(), "d", "s", "sig")
	if o.Kind != KindError {
		t.Fatalf("Kind = %s, want error", o.Kind)
	}
	if !strings.Contains(o.Message, "timeout") {
		t.Errorf("Message = %q, want timeout message", o.Message)
	}
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(Config{Endpoint: url, Timeout: time.Second})
	o := c.DonateSingle(context.Background(), "d", "s", "sig")
	if o.Kind != KindError || o.Message == "" {
		t.Errorf("outcome = %+v, want error with transport message", o)
	}
}

func TestClient_TraceOrdering(t *testing.T) {
	api := &fakeAPI{respond: func(string) (int, string) { return 200, `{"solutions_consolidated":2}` }}
	c, tr := newTestClient(t, api, 0)

	c.DonateSingle(context.Background(), "addr1dest", "addr1src", "0123456789abcdef0123456789")

	req := tr.indexOf("-> POST")
	status := tr.indexOf("<- Status: 200")
	body := tr.indexOf(`"solutions_consolidated":2`)
	if req < 0 || status < 0 || body < 0 {
		t.Fatalf("missing trace lines: %v", tr.lines)
	}
	if !(req < status && status < body) {
		t.Errorf("trace out of order: %v", tr.lines)
	}
	if tr.indexOf("0123456789abcdef0123456789") >= 0 {
		t.Error("full signature must not appear in the trace")
	}
}

func TestClient_DonateBatch_OrderAndOutcomes(t *testing.T) {
	api := &fakeAPI{respond: func(source string) (int, string) {
		switch source {
		case "a1":
			return 200, `{"solutions_consolidated":5}`
		case "a2":
			return 409, `{}`
		default:
			return 500, `{}`
		}
	}}
	c, _ := newTestClient(t, api, 0)

	items := []Item{
		{SourceAddress: "a1", Signature: "s1", SourceIndex: 1},
		{SourceAddress: "a2", Signature: "s2", SourceIndex: 2},
		{SourceAddress: "a3", Signature: "s3", SourceIndex: 3},
	}
	var seen []int
	outcomes, err := c.DonateBatch(context.Background(), "dest", items, BatchHooks{
		OnOutcome: func(i int, _ Outcome) { seen = append(seen, i) },
	})
	if err != nil {
		t.Fatalf("DonateBatch() error: %v", err)
	}

	want := []Kind{KindSuccess, KindAlreadyDonated, KindError}
	if len(outcomes) != len(want) {
		t.Fatalf("outcomes = %d, want %d", len(outcomes), len(want))
	}
	for i, k := range want {
		if outcomes[i].Kind != k {
			t.Errorf("outcomes[%d].Kind = %s, want %s", i, outcomes[i].Kind, k)
		}
		if outcomes[i].SourceIndex != items[i].SourceIndex {
			t.Errorf("outcomes[%d].SourceIndex = %d", i, outcomes[i].SourceIndex)
		}
	}
	if len(seen) != 3 || seen[0] != 0 || seen[2] != 2 {
		t.Errorf("OnOutcome order = %v", seen)
	}
}

func TestClient_DonateBatch_DelayBetweenItemsOnly(t *testing.T) {
	const delay = 80 * time.Millisecond
	api := &fakeAPI{respond: func(string) (int, string) { return 200, `{}` }}
	c, _ := newTestClient(t, api, delay)

	items := []Item{{SourceAddress: "a"}, {SourceAddress: "b"}, {SourceAddress: "c"}}
	start := time.Now()
	if _, err := c.DonateBatch(context.Background(), "d", items, BatchHooks{}); err != nil {
		t.Fatalf("DonateBatch() error: %v", err)
	}
	elapsed := time.Since(start)

	for i := 1; i < len(api.arrivals); i++ {
		if gap := api.arrivals[i].Sub(api.arrivals[i-1]); gap < delay-10*time.Millisecond {
			t.Errorf("gap %d = %v, want >= %v", i, gap, delay)
		}
	}
	// Two gaps, no trailing delay.
	if elapsed > 3*delay {
		t.Errorf("batch took %v, expected no delay after the last item", elapsed)
	}
}

func TestClient_DonateBatch_DelayAfterSlowResponse(t *testing.T) {
	const delay = 80 * time.Millisecond
	api := &fakeAPI{latency: 2 * delay, respond: func(string) (int, string) { return 200, `{}` }}
	c, _ := newTestClient(t, api, delay)

	items := []Item{{SourceAddress: "a"}, {SourceAddress: "b"}, {SourceAddress: "c"}}
	if _, err := c.DonateBatch(context.Background(), "d", items, BatchHooks{}); err != nil {
		t.Fatalf("DonateBatch() error: %v", err)
	}
	if len(api.arrivals) != 3 || len(api.finishes) != 3 {
		t.Fatalf("requests = %d, want 3", len(api.arrivals))
	}
	for i := 1; i < len(api.arrivals); i++ {
		if gap := api.arrivals[i].Sub(api.finishes[i-1]); gap < delay-10*time.Millisecond {
			t.Errorf("pause before request %d = %v, want >= %v", i, gap, delay)
		}
	}
}

func TestClient_DonateBatch_FirstItemNotDelayed(t *testing.T) {
	api := &fakeAPI{respond: func(string) (int, string) { return 200, `{}` }}
	c, _ := newTestClient(t, api, time.Second)

	start := time.Now()
	c.DonateBatch(context.Background(), "d", []Item{{SourceAddress: "a"}}, BatchHooks{})
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("single-item batch took %v", elapsed)
	}
}

func TestClient_DonateBatch_Stop(t *testing.T) {
	api := &fakeAPI{respond: func(string) (int, string) { return 200, `{}` }}
	c, _ := newTestClient(t, api, 0)

	stopped := false
	items := []Item{{SourceAddress: "a"}, {SourceAddress: "b"}, {SourceAddress: "c"}}
	outcomes, err := c.DonateBatch(context.Background(), "d", items, BatchHooks{
		OnOutcome:  func(int, Outcome) { stopped = true },
		ShouldStop: func() bool { return stopped },
	})
	if err != nil {
		t.Fatalf("DonateBatch() error: %v", err)
	}
	if len(outcomes) != 1 {
		t.Errorf("outcomes = %d, want 1 after stop", len(outcomes))
	}
	if len(api.paths) != 1 {
		t.Errorf("requests = %d, want 1", len(api.paths))
	}
}

func TestClient_DonateBatch_Cancelled(t *testing.T) {
	api := &fakeAPI{respond: func(string) (int, string) { return 200, `{}` }}
	c, _ := newTestClient(t, api, 0)

	ctx, cancel := context.WithCancel(context.Background())
	items := []Item{{SourceAddress: "a"}, {SourceAddress: "b"}}
	outcomes, err := c.DonateBatch(ctx, "d", items, BatchHooks{
		OnOutcome: func(int, Outcome) { cancel() },
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("DonateBatch() error = %v, want context.Canceled", err)
	}
	if len(outcomes) != 1 {
		t.Errorf("outcomes = %d, want 1", len(outcomes))
	}
}
