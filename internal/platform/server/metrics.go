package server

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/oakmoor/casetrail/internal/platform/ledger"
)

type Metrics struct {
	appendsTotal   prometheus.Counter
	appendFailures *prometheus.CounterVec
	verifyRuns     *prometheus.CounterVec
	chainEntries   prometheus.Gauge
	authFailures   *prometheus.CounterVec
	accessRecords  prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		appendsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "casetrail",
				Subsystem: "ledger",
				Name:      "appends_total",
				Help:      "Total entries committed to the audit ledger.",
			},
		),
		appendFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "casetrail",
				Subsystem: "ledger",
				Name:      "append_failures_total",
				Help:      "Total rejected append attempts partitioned by reason.",
			},
			[]string{"reason"},
		),
		verifyRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "casetrail",
				Subsystem: "ledger",
				Name:      "verify_runs_total",
				Help:      "Total chain verification runs partitioned by result.",
			},
			[]string{"result"},
		),
		chainEntries: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "casetrail",
				Subsystem: "ledger",
				Name:      "chain_entries",
				Help:      "Entry count observed by the most recent verification run.",
			},
		),
		authFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "casetrail",
				Subsystem: "auth",
				Name:      "failures_total",
				Help:      "Total rejected requests partitioned by failure kind.",
			},
			[]string{"kind"},
		),
		accessRecords: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "casetrail",
				Subsystem: "access",
				Name:      "records_total",
				Help:      "Total accountability rows recorded for read/export calls.",
			},
		),
	}
}

func (m *Metrics) ObserveAppend(err error) {
	if m == nil {
		return
	}
	if err == nil {
		m.appendsTotal.Inc()
		return
	}
	reason := "storage"
	var verr *ledger.ValidationError
	if errors.As(err, &verr) {
		reason = "validation"
	}
	m.appendFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveVerify(rep ledger.Report, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.verifyRuns.WithLabelValues("error").Inc()
		return
	}
	result := "ok"
	if !rep.OK {
		result = "tampered"
	}
	m.verifyRuns.WithLabelValues(result).Inc()
	m.chainEntries.Set(float64(rep.Count))
}

func (m *Metrics) ObserveAuthFailure(kind string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveAccessRecord() {
	if m == nil {
		return
	}
	m.accessRecords.Inc()
}
