// ABOUTME: Prometheus collector for the registry and websocket server
// ABOUTME: Uses its own registry so tests and multiple servers never collide
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "proxaudio"

// Collector implements registry.Metrics and the server's connection metrics
type Collector struct {
	reg *prometheus.Registry

	// Registry metrics
	activeStreams prometheus.Gauge
	memberships   prometheus.Gauge
	streamsEnded  *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	notifications *prometheus.CounterVec
	chunks        prometheus.Counter
	chunkFanout   prometheus.Histogram
	framesDropped *prometheus.CounterVec
	tickDuration  prometheus.Histogram

	// Server metrics
	activeClients    prometheus.Gauge
	clientsConnected prometheus.Counter
	messagesReceived *prometheus.CounterVec
}

// New creates a collector registered on a fresh Prometheus registry
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		reg: reg,

		activeStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Number of live audio streams",
		}),

		memberships: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listener_memberships",
			Help:      "Sum of listener set sizes over all streams",
		}),

		streamsEnded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "streams_ended_total",
				Help:      "Streams ended, by reason",
			},
			[]string{"reason"},
		),

		rejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_rejections_total",
				Help:      "Rejected start requests, by reason",
			},
			[]string{"reason"},
		),

		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Start and stop notifications sent to listeners",
			},
			[]string{"kind"},
		),

		chunks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_forwarded_total",
			Help:      "Data chunks accepted from origins",
		}),

		chunkFanout: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_fanout_listeners",
			Help:      "Listeners each chunk was forwarded to",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}),

		framesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_dropped_total",
				Help:      "Data frames dropped, by cause",
			},
			[]string{"cause"},
		),

		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent in one registry tick",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8), // 10us to ~160ms
		}),

		activeClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_clients",
			Help:      "Connected websocket clients",
		}),

		clientsConnected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_connections_total",
			Help:      "Websocket handshakes completed",
		}),

		messagesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_received_total",
				Help:      "Control messages received, by type",
			},
			[]string{"type"},
		),
	}
}

// Registry returns the underlying Prometheus registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.reg
}

// Handler serves the collector's metrics
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// ActiveStreams sets the live stream gauge
func (c *Collector) ActiveStreams(n int) {
	c.activeStreams.Set(float64(n))
}

// Memberships sets the listener membership gauge
func (c *Collector) Memberships(n int) {
	c.memberships.Set(float64(n))
}

// StreamEnded records a stream ending
func (c *Collector) StreamEnded(reason string) {
	c.streamsEnded.WithLabelValues(reason).Inc()
}

// Rejected records a refused start request
func (c *Collector) Rejected(reason string) {
	c.rejections.WithLabelValues(reason).Inc()
}

// Notification records a start or stop notification
func (c *Collector) Notification(kind string) {
	c.notifications.WithLabelValues(kind).Inc()
}

// ChunkForwarded records one accepted chunk and its fan-out
func (c *Collector) ChunkForwarded(listeners int) {
	c.chunks.Inc()
	c.chunkFanout.Observe(float64(listeners))
}

// FrameDropped records a dropped data frame
func (c *Collector) FrameDropped(cause string) {
	c.framesDropped.WithLabelValues(cause).Inc()
}

// TickDuration records how long a tick took
func (c *Collector) TickDuration(d time.Duration) {
	c.tickDuration.Observe(d.Seconds())
}

// ClientConnected records a completed handshake
func (c *Collector) ClientConnected() {
	c.clientsConnected.Inc()
	c.activeClients.Inc()
}

// ClientDisconnected records a closed connection
func (c *Collector) ClientDisconnected() {
	c.activeClients.Dec()
}

// MessageReceived records an inbound control message
func (c *Collector) MessageReceived(msgType string) {
	c.messagesReceived.WithLabelValues(msgType).Inc()
}
