package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gauge_etl"

// Sink labels for RecordsWritten.
const (
	SinkDataset = "dataset"
	SinkTest    = "test"
	SinkKafka   = "kafka"
	SinkParquet = "parquet"
)

// Prediction outcome labels for PredictionRequests.
const (
	OutcomeSuccess   = "success"
	OutcomeTransport = "transport_error"
	OutcomeDecode    = "decode_error"
	OutcomeInvalid   = "invalid"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the dataset
// pipeline and the prediction client.
type Metrics struct {
	FilesRead       prometheus.Counter
	RowsRead        prometheus.Counter
	RowsFiltered    prometheus.Counter
	StationsFailed  prometheus.Counter
	SegmentsKept    prometheus.Counter
	SegmentsDropped prometheus.Counter
	RecordsWritten  *prometheus.CounterVec // labels: sink={dataset,test,kafka,parquet}
	PipelineRunning prometheus.Gauge
	RunDuration     prometheus.Histogram

	// Prediction client metrics.
	PredictionRequests *prometheus.CounterVec // labels: outcome={success,transport_error,decode_error,invalid}
	PredictionDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests can
// build as many instances as they need.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FilesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_read_total",
			Help:      "Total gauge CSV files parsed.",
		}),
		RowsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_read_total",
			Help:      "Total data rows read from gauge CSV files.",
		}),
		RowsFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_filtered_total",
			Help:      "Total rows removed by the quality code filter.",
		}),
		StationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stations_failed_total",
			Help:      "Total stations skipped because a file could not be read or segmented.",
		}),
		SegmentsKept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_kept_total",
			Help:      "Total segments that passed the length and rain filters.",
		}),
		SegmentsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_dropped_total",
			Help:      "Total segments discarded by the length and rain filters.",
		}),
		RecordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Records written by sink.",
		}, []string{"sink"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a dataset build is in progress, 0 otherwise.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete dataset build.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		}),
		PredictionRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_requests_total",
			Help:      "Prediction requests by outcome.",
		}, []string{"outcome"}),
		PredictionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "Round trip duration of prediction requests.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.FilesRead,
		m.RowsRead,
		m.RowsFiltered,
		m.StationsFailed,
		m.SegmentsKept,
		m.SegmentsDropped,
		m.RecordsWritten,
		m.PipelineRunning,
		m.RunDuration,
		m.PredictionRequests,
		m.PredictionDuration,
	}
}
