package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/socket-client/internal/connection"
	"github.com/rickgao/socket-client/internal/journal"
)

// Namespace prefixes every metric name.
const Namespace = "wsclient"

// Collector records connection telemetry. It implements connection.Observer.
type Collector struct {
	state            *prometheus.GaugeVec
	messagesReceived *prometheus.CounterVec
	messageBytes     *prometheus.CounterVec
	connectAttempts  *prometheus.CounterVec
	listenerFaults   prometheus.Counter

	journalInserts prometheus.Counter
	journalErrors  prometheus.Counter
	journalDropped prometheus.Counter
	journalPending prometheus.Gauge
}

var (
	_ connection.Observer = (*Collector)(nil)
	_ journal.Metrics     = (*Collector)(nil)
)

// NewCollector registers the metrics with reg. A nil reg uses the default
// registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "connection_state",
			Help:      "Current connection state (1 for the active state, 0 otherwise)",
		}, []string{"state"}),

		messagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "messages_received_total",
			Help:      "Total inbound frames by kind",
		}, []string{"kind"}),

		messageBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "message_bytes_total",
			Help:      "Total inbound payload bytes by kind",
		}, []string{"kind"}),

		connectAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "connect_attempts_total",
			Help:      "Connect attempts by result",
		}, []string{"result"}),

		listenerFaults: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "listener_faults_total",
			Help:      "Listeners that panicked while handling an event",
		}),

		journalInserts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "journal",
			Name:      "inserts_total",
			Help:      "Journal entries written to the store",
		}),

		journalErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "journal",
			Name:      "errors_total",
			Help:      "Failed journal batch writes",
		}),

		journalDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "journal",
			Name:      "dropped_total",
			Help:      "Journal entries dropped because the buffer was closed or the payload could not be encoded",
		}),

		journalPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "journal",
			Name:      "pending",
			Help:      "Journal entries buffered and not yet written",
		}),
	}

	c.StateChanged(connection.StateDisconnected)
	return c
}

// StateChanged sets the one-hot state gauge.
func (c *Collector) StateChanged(s connection.State) {
	for _, st := range connection.States {
		v := 0.0
		if st == s {
			v = 1
		}
		c.state.WithLabelValues(st.String()).Set(v)
	}
}

// MessageReceived counts an inbound frame.
func (c *Collector) MessageReceived(kind string, size int) {
	c.messagesReceived.WithLabelValues(kind).Inc()
	c.messageBytes.WithLabelValues(kind).Add(float64(size))
}

// ConnectFinished counts a connect attempt by result.
func (c *Collector) ConnectFinished(err error) {
	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, connection.ErrAlreadyConnected):
		result = "rejected"
	default:
		result = "failure"
	}
	c.connectAttempts.WithLabelValues(result).Inc()
}

// ListenerFault counts a panicking listener.
func (c *Collector) ListenerFault() {
	c.listenerFaults.Inc()
}

// JournalFlushed records the outcome of a journal batch write.
func (c *Collector) JournalFlushed(inserted int, err error) {
	if err != nil {
		c.journalErrors.Inc()
		return
	}
	c.journalInserts.Add(float64(inserted))
}

// JournalDropped counts entries the journal could not buffer.
func (c *Collector) JournalDropped(n int) {
	c.journalDropped.Add(float64(n))
}

// JournalPending sets the number of buffered journal entries.
func (c *Collector) JournalPending(n int) {
	c.journalPending.Set(float64(n))
}

// Handler returns an HTTP handler exposing the metrics in g.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
