package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "nightc_runs_total",
	Help: "Consolidation runs by final status",
}, []string{"status"})
