package orchestrator

import (
	"fmt"
	"time"

	"github.com/Klingon-tech/night-consolidator/internal/donation"
)

// Status is the phase of a consolidation run.
type Status string

const (
	StatusSigning       Status = "signing"
	StatusConsolidating Status = "consolidating"
	StatusCompleted     Status = "completed"
	StatusStopped       Status = "stopped"
)

const (
	maxRecent = 5
	maxLogs   = 50
)

// Progress is a snapshot of a run, pushed to the observer after every change.
type Progress struct {
	Current                    int                `json:"current"`
	Total                      int                `json:"total"`
	Successful                 int                `json:"successful"`
	Failed                     int                `json:"failed"`
	CurrentAddress             string             `json:"currentAddress"`
	Status                     Status             `json:"status"`
	Recent                     []donation.Outcome `json:"recentResults"`
	TotalSolutionsConsolidated int64              `json:"totalSolutionsConsolidated"`
	Logs                       []string           `json:"logs"`
}

// tracker owns the mutable progress of one run.
type tracker struct {
	p        Progress
	recent   *Ring[donation.Outcome]
	logs     *Ring[string]
	observer func(Progress)
	now      func() time.Time
}

func newTracker(total int, observer func(Progress)) *tracker {
	return &tracker{
		p:        Progress{Total: total, Status: StatusSigning},
		recent:   NewRing[donation.Outcome](maxRecent),
		logs:     NewRing[string](maxLogs),
		observer: observer,
		now:      time.Now,
	}
}

func (t *tracker) logf(format string, args ...any) {
	t.logs.Push(fmt.Sprintf("[%s] %s", t.now().Format("15:04:05"), fmt.Sprintf(format, args...)))
}

// record counts one outcome.
func (t *tracker) record(o donation.Outcome) {
	t.p.Current++
	t.p.CurrentAddress = o.SourceAddress
	if o.Succeeded() {
		t.p.Successful++
	} else {
		t.p.Failed++
	}
	t.p.TotalSolutionsConsolidated += o.SolutionsConsolidated
	t.recent.Push(o)

	switch o.Kind {
	case donation.KindSuccess:
		t.logf("✓ Address #%d: %d solutions", o.SourceIndex, o.SolutionsConsolidated)
	case donation.KindAlreadyDonated:
		t.logf("⚠ Address #%d: Already donated", o.SourceIndex)
	case donation.KindSkipped:
		t.logf("- Address #%d: %s", o.SourceIndex, o.Message)
	default:
		t.logf("✗ Address #%d: %s", o.SourceIndex, o.Message)
	}
}

// emit pushes a snapshot that shares no memory with the tracker.
func (t *tracker) emit() {
	if t.observer == nil {
		return
	}
	snap := t.p
	snap.Recent = t.recent.Newest()
	snap.Logs = t.logs.Oldest()
	t.observer(snap)
}
