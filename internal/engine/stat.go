package engine

import (
	"net/http"

	"github.com/napd/console/internal/link"
	"github.com/napd/console/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const statNamespace = "napd_console"

// Stat is per engine, so tests and multiple sessions do not share counters.
type Stat struct {
	Registry *prometheus.Registry

	ConnectAttempts prometheus.Counter
	State           prometheus.Gauge
	Inbound         *prometheus.CounterVec
	Outbound        *prometheus.CounterVec
	Dropped         *prometheus.CounterVec
	ProtocolErrors  prometheus.Counter
	LastHeartbeat   prometheus.Gauge
}

func NewStat() *Stat {
	s := &Stat{
		Registry: prometheus.NewRegistry(),
		ConnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: statNamespace,
			Name:      "connect_attempts_total",
			Help:      "Transport connect attempts.",
		}),
		State: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: statNamespace,
			Name:      "connection_state",
			Help:      "0=disconnected 1=connecting 2=connected 3=reconnecting 4=timed_out",
		}),
		Inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: statNamespace,
			Name:      "messages_received_total",
			Help:      "Decoded inbound messages by kind.",
		}, []string{"kind"}),
		Outbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: statNamespace,
			Name:      "messages_sent_total",
			Help:      "Outbound messages handed to transport by kind.",
		}, []string{"kind"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: statNamespace,
			Name:      "messages_dropped_total",
			Help:      "Outbound messages dropped while not connected or failed to send.",
		}, []string{"kind"}),
		ProtocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: statNamespace,
			Name:      "protocol_errors_total",
			Help:      "Malformed or invalid inbound messages.",
		}),
		LastHeartbeat: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: statNamespace,
			Name:      "last_heartbeat_timestamp_seconds",
			Help:      "Controller heartbeat timestamp.",
		}),
	}
	s.Registry.MustRegister(
		s.ConnectAttempts,
		s.State,
		s.Inbound,
		s.Outbound,
		s.Dropped,
		s.ProtocolErrors,
		s.LastHeartbeat,
	)
	return s
}

func (s *Stat) setState(st link.State)   { s.State.Set(float64(st)) }
func (s *Stat) inbound(k protocol.Kind)  { s.Inbound.WithLabelValues(k.String()).Inc() }
func (s *Stat) outbound(k protocol.Kind) { s.Outbound.WithLabelValues(k.String()).Inc() }
func (s *Stat) dropped(k protocol.Kind)  { s.Dropped.WithLabelValues(k.String()).Inc() }

// Handler serves this engine registry in prometheus text format.
func (s *Stat) Handler() http.Handler {
	return promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})
}
