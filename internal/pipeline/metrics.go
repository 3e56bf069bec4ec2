package pipeline

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/PratikDhanave/trigger-contract-service/internal/models"
)

// unknownKind is the label value for every kind the classifier does not know,
// so producers cannot mint series.
const unknownKind = "unknown"

// Metrics holds the pipeline's prometheus collectors.
type Metrics struct {
	Updates   *prometheus.CounterVec
	Terminals *prometheus.CounterVec
	Closed    *prometheus.CounterVec
	Anomalies *prometheus.CounterVec
	Active    prometheus.Gauge
}

// NewMetrics builds the collectors and registers them with reg when it is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trigger_updates_total",
			Help: "Trigger updates accepted by listening sessions.",
		}, []string{"kind", "terminal"}),
		Terminals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trigger_sessions_terminal_total",
			Help: "Sessions that committed a terminal update.",
		}, []string{"kind", "origin"}),
		Closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trigger_sessions_closed_total",
			Help: "Sessions closed, by reason.",
		}, []string{"reason"}),
		Anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trigger_anomalies_total",
			Help: "Updates dropped because their session was no longer listening.",
		}, []string{"reason"}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trigger_sessions_active",
			Help: "Sessions not yet closed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Updates, m.Terminals, m.Closed, m.Anomalies, m.Active)
	}
	return m
}

func (m *Metrics) update(kind models.UpdateKind, terminal bool) {
	m.Updates.WithLabelValues(kindLabel(kind), strconv.FormatBool(terminal)).Inc()
}

func kindLabel(kind models.UpdateKind) string {
	if !kind.Known() {
		return unknownKind
	}
	return string(kind)
}
