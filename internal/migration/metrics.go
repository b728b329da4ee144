package migration

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the run counters to Prometheus.
type Metrics struct {
	Processed  *prometheus.CounterVec
	Created    *prometheus.CounterVec
	Skipped    *prometheus.CounterVec
	Failed     *prometheus.CounterVec
	ActiveRuns prometheus.Gauge
}

// NewMetrics registers the import metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Processed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "boekhouden_import_mutations_processed_total",
			Help: "Mutations pulled from the external ledger and processed.",
		}, []string{"company"}),
		Created: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "boekhouden_import_documents_created_total",
			Help: "Target documents created, by document kind.",
		}, []string{"company", "kind"}),
		Skipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "boekhouden_import_mutations_skipped_total",
			Help: "Mutations skipped, by reason.",
		}, []string{"company", "reason"}),
		Failed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "boekhouden_import_failed_records_total",
			Help: "Record-local failures, by error category.",
		}, []string{"company", "category"}),
		ActiveRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "boekhouden_import_active_runs",
			Help: "Import runs currently executing.",
		}),
	}
}
