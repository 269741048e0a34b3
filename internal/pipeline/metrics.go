package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alanyoungcy/navledger/internal/domain"
)

// Metrics holds the prometheus collectors of the ingestion pipeline.
type Metrics struct {
	Runs            *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	Records         *prometheus.CounterVec
	SourceOutcomes  *prometheus.CounterVec
	ArchiveUploads  *prometheus.CounterVec
	ArchiveQueue    prometheus.Gauge
	LastSuccessTime prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "navledger_runs_total",
				Help: "Ingestion runs by result",
			},
			[]string{"result"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "navledger_run_duration_seconds",
				Help:    "Wall time of ingestion runs",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		Records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "navledger_records_total",
				Help: "Ledger records by persistence result",
			},
			[]string{"result"},
		),
		SourceOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "navledger_source_outcomes_total",
				Help: "Artifact collection outcomes by source and variant",
			},
			[]string{"source", "variant", "outcome"},
		),
		ArchiveUploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "navledger_archive_uploads_total",
				Help: "Raw artifact archive uploads by result",
			},
			[]string{"result"},
		),
		ArchiveQueue: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "navledger_archive_queue_depth",
				Help: "Artifacts waiting for archive upload",
			},
		),
		LastSuccessTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "navledger_last_success_timestamp_seconds",
				Help: "Unix time of the last successful run",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.Runs, m.RunDuration, m.Records, m.SourceOutcomes,
			m.ArchiveUploads, m.ArchiveQueue, m.LastSuccessTime,
		)
	}
	return m
}

func (m *Metrics) observeOutcomes(outcomes []domain.CollectionOutcome) {
	if m == nil {
		return
	}
	for _, o := range outcomes {
		m.SourceOutcomes.WithLabelValues(o.Source, o.Variant.String(), o.Kind.String()).Inc()
	}
}

func (m *Metrics) observeRun(r domain.RunReport) {
	if m == nil {
		return
	}
	result := "succeeded"
	switch {
	case !r.Succeeded:
		result = "failed"
	case r.PersistenceDegraded:
		result = "degraded"
	}
	m.Runs.WithLabelValues(result).Inc()
	m.RunDuration.Observe(r.Duration().Seconds())
	m.Records.WithLabelValues("added").Add(float64(r.Added))
	m.Records.WithLabelValues("duplicate").Add(float64(r.Duplicates))
	m.Records.WithLabelValues("invalid").Add(float64(r.Invalid))
	if r.Succeeded {
		m.LastSuccessTime.Set(float64(r.FinishedAt.Unix()))
	}
}
