package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hxstream"

// Collector exposes streaming counters through Prometheus. A nil *Collector
// is valid and records nothing, so engines can run without metrics wired.
type Collector struct {
	registry *prometheus.Registry

	framesSent     prometheus.Counter
	framesReceived prometheus.Counter
	framesDropped  prometheus.Counter
	bytesSent      prometheus.Counter
	bytesReceived  prometheus.Counter
	throughputFPS  prometheus.Gauge
}

// NewCollector builds a registry for one engine. subsystem is "sender" or
// "receiver".
func NewCollector(subsystem string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "frames_sent_total", Help: "Frames handed to the transport.",
		}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "frames_received_total", Help: "Whole frames yielded by the transport.",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "frames_dropped_total", Help: "Frames dropped for oversize, decode failure, or rate governance.",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "bytes_sent_total", Help: "Compressed payload bytes sent.",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "bytes_received_total", Help: "Compressed payload bytes received.",
		}),
		throughputFPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "throughput_fps", Help: "Frames per second over the last sample window.",
		}),
	}
	c.registry.MustRegister(
		c.framesSent, c.framesReceived, c.framesDropped,
		c.bytesSent, c.bytesReceived, c.throughputFPS,
	)
	return c
}

func (c *Collector) FrameSent(bytes int) {
	if c == nil {
		return
	}
	c.framesSent.Inc()
	c.bytesSent.Add(float64(bytes))
}

func (c *Collector) FrameReceived(bytes int) {
	if c == nil {
		return
	}
	c.framesReceived.Inc()
	c.bytesReceived.Add(float64(bytes))
}

func (c *Collector) FrameDropped() {
	if c == nil {
		return
	}
	c.framesDropped.Inc()
}

func (c *Collector) SetThroughput(fps int) {
	if c == nil {
		return
	}
	c.throughputFPS.Set(float64(fps))
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr. Blocks; meant for a goroutine.
func (c *Collector) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	return http.ListenAndServe(addr, mux)
}
