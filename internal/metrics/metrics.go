package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "depthbook"

// Collector holds the stream session metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	frames        *prometheus.CounterVec
	pongs         prometheus.Counter
	messages      prometheus.Counter
	messageErrors prometheus.Counter
	fieldErrors   prometheus.Counter
	upserts       *prometheus.CounterVec
	levels        *prometheus.GaugeVec
	best          *prometheus.GaugeVec
	state         prometheus.Gauge
	samplesDrop   prometheus.Counter
}

// NewCollector creates the collectors and registers them, along with the Go
// and process collectors, on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_received_total", Help: "Frames received by kind",
		}, []string{"kind"}),
		pongs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "pongs_sent_total", Help: "Pong frames sent in reply to pings",
		}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_applied_total", Help: "Depth messages applied to the book",
		}),
		messageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "message_parse_errors_total", Help: "Text frames dropped as malformed",
		}),
		fieldErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "field_parse_errors_total", Help: "Price or quantity fields defaulted to zero",
		}),
		upserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "level_upserts_total", Help: "Level upserts by side",
		}, []string{"side"}),
		levels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "book_levels", Help: "Resting levels by side",
		}, []string{"side"}),
		best: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "best_price", Help: "Best price by side (0 when empty)",
		}, []string{"side"}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "session_state", Help: "0=connecting 1=streaming 2=closed",
		}),
		samplesDrop: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "recorder_samples_dropped_total", Help: "Book samples rejected by the recorder queue",
		}),
	}

	reg.MustRegister(
		c.frames, c.pongs, c.messages, c.messageErrors, c.fieldErrors,
		c.upserts, c.levels, c.best, c.state, c.samplesDrop,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// FrameReceived counts a frame of the given kind.
func (c *Collector) FrameReceived(kind string) {
	if c == nil {
		return
	}
	c.frames.WithLabelValues(kind).Inc()
}

// PongSent counts a pong reply.
func (c *Collector) PongSent() {
	if c == nil {
		return
	}
	c.pongs.Inc()
}

// MessageApplied records one applied depth message.
func (c *Collector) MessageApplied(bids, asks, fieldErrors int) {
	if c == nil {
		return
	}
	c.messages.Inc()
	c.upserts.WithLabelValues("bid").Add(float64(bids))
	c.upserts.WithLabelValues("ask").Add(float64(asks))
	c.fieldErrors.Add(float64(fieldErrors))
}

// MessageParseError counts a dropped text frame.
func (c *Collector) MessageParseError() {
	if c == nil {
		return
	}
	c.messageErrors.Inc()
}

// SetBook publishes per-side depth and best price.
func (c *Collector) SetBook(side string, levels int, best float64) {
	if c == nil {
		return
	}
	c.levels.WithLabelValues(side).Set(float64(levels))
	c.best.WithLabelValues(side).Set(best)
}

// SetState publishes the session state as its ordinal.
func (c *Collector) SetState(state int) {
	if c == nil {
		return
	}
	c.state.Set(float64(state))
}

// SampleDropped counts a sample the recorder queue refused.
func (c *Collector) SampleDropped() {
	if c == nil {
		return
	}
	c.samplesDrop.Inc()
}

// Handler returns the /metrics handler for gatherer g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
