package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fyrsmithlabs/repodescribe/internal/pipeline"
)

var (
	// describeRuns counts describe requests that reached the pipeline.
	// Labels: result (ok, walk_failed, aggregation_failed, storage_failed, canceled)
	describeRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "repodescribe",
			Subsystem: "api",
			Name:      "describe_runs_total",
			Help:      "Describe requests by pipeline result",
		},
		[]string{"result"},
	)

	describeInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "repodescribe",
			Subsystem: "api",
			Name:      "describe_in_flight",
			Help:      "Describe runs currently executing",
		},
	)

	describeRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "repodescribe",
			Subsystem: "api",
			Name:      "describe_rejected_total",
			Help:      "Describe requests rejected because every run slot was busy",
		},
	)
)

func resultLabel(err error) string {
	return string(pipeline.OutcomeOf(err))
}
