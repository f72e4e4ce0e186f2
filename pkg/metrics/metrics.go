// Package metrics exposes the engine's prometheus instrumentation: segment
// and MPD request counters/latencies in the style of livesim2's server-side
// middleware, plus client-side collectors (bandwidth estimate gauge,
// buffering-event and retry counters, active-tile gauge, per-group
// quality-level gauge).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const service = "omafstream"

var defaultLatencyBuckets = []float64{5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000}

// Metrics owns every collector the engine reports. A Metrics is registered
// against one prometheus.Registerer (the caller's global registry or a
// private one in tests), unlike livesim2's package-level MustRegister, so
// that more than one Manager can run in a process without a registration
// panic.
type Metrics struct {
	mpdReqs     *prometheus.CounterVec
	mpdLatency  *prometheus.HistogramVec
	segReqs     *prometheus.CounterVec
	segLatency  *prometheus.HistogramVec
	segRetries  *prometheus.CounterVec
	bufferEvent *prometheus.CounterVec

	bandwidthEstimate prometheus.Gauge
	activeTiles       prometheus.Gauge
	qualityLevel      *prometheus.GaugeVec
}

// New builds and registers every collector against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		mpdReqs: newCounter(reg, "mpd_requests_total",
			"Number of MPD fetches, partitioned by outcome."),
		mpdLatency: newHistogram(reg, "mpd_request_duration_milliseconds",
			"MPD fetch latency.", defaultLatencyBuckets),
		segReqs: newCounter(reg, "segment_requests_total",
			"Number of segment fetches, partitioned by outcome and adaptation set role."),
		segLatency: newHistogram(reg, "segment_request_duration_milliseconds",
			"Segment fetch latency.", defaultLatencyBuckets),
		segRetries: newCounter(reg, "segment_retries_total",
			"Number of segment fetch retries, partitioned by adaptation set role."),
		bufferEvent: newCounter(reg, "buffering_events_total",
			"Number of times playback entered a buffering state, partitioned by cause."),
		bandwidthEstimate: newGauge(reg, "bandwidth_estimate_bps",
			"Current estimated available bandwidth in bits per second."),
		activeTiles: newGauge(reg, "active_tiles",
			"Number of tile adaptation sets currently being fetched."),
		qualityLevel: newGaugeVec(reg, "quality_level",
			"Currently selected quality level (0 = best) per tile group.", []string{"group"}),
	}
	return m
}

// ObserveMPDRequest records the outcome and latency of an MPD fetch.
func (m *Metrics) ObserveMPDRequest(outcome string, latency time.Duration) {
	m.mpdReqs.WithLabelValues(outcome).Inc()
	m.mpdLatency.WithLabelValues(outcome).Observe(msSince(latency))
}

// ObserveSegmentRequest records the outcome and latency of one segment
// fetch for the given adaptation-set role (tile, extractor, audio, base).
func (m *Metrics) ObserveSegmentRequest(role, outcome string, latency time.Duration) {
	m.segReqs.WithLabelValues(role, outcome).Inc()
	m.segLatency.WithLabelValues(role, outcome).Observe(msSince(latency))
}

// IncRetry records one segment fetch retry for role.
func (m *Metrics) IncRetry(role string) {
	m.segRetries.WithLabelValues(role).Inc()
}

// IncBufferingEvent records one transition into a buffering state caused by
// cause (e.g. "assembler-stall", "cache-empty").
func (m *Metrics) IncBufferingEvent(cause string) {
	m.bufferEvent.WithLabelValues(cause).Inc()
}

// SetBandwidthEstimate reports the bandwidth monitor's current estimate.
func (m *Metrics) SetBandwidthEstimate(bps float64) {
	m.bandwidthEstimate.Set(bps)
}

// SetActiveTiles reports the current count of concurrently fetched tiles.
func (m *Metrics) SetActiveTiles(n int) {
	m.activeTiles.Set(float64(n))
}

// SetQualityLevel reports the bitrate controller's current level for group
// ("foreground", "margin", "background").
func (m *Metrics) SetQualityLevel(group string, level int) {
	m.qualityLevel.WithLabelValues(group).Set(float64(level))
}

func msSince(d time.Duration) float64 {
	return float64(d.Nanoseconds()) * 1e-6
}

func newCounter(reg prometheus.Registerer, name, help string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        name,
		Help:        help,
		ConstLabels: prometheus.Labels{"service": service},
	}, labelsForCounter(name))
	reg.MustRegister(cv)
	return cv
}

func labelsForCounter(name string) []string {
	switch name {
	case "segment_requests_total":
		return []string{"role", "outcome"}
	case "segment_retries_total":
		return []string{"role"}
	case "buffering_events_total":
		return []string{"cause"}
	default:
		return []string{"outcome"}
	}
}

func newHistogram(reg prometheus.Registerer, name, help string, buckets []float64) *prometheus.HistogramVec {
	labels := []string{"outcome"}
	if name == "segment_request_duration_milliseconds" {
		labels = []string{"role", "outcome"}
	}
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        name,
		Help:        help,
		ConstLabels: prometheus.Labels{"service": service},
		Buckets:     buckets,
	}, labels)
	reg.MustRegister(h)
	return h
}

func newGauge(reg prometheus.Registerer, name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        name,
		Help:        help,
		ConstLabels: prometheus.Labels{"service": service},
	})
	reg.MustRegister(g)
	return g
}

func newGaugeVec(reg prometheus.Registerer, name, help string, labels []string) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        name,
		Help:        help,
		ConstLabels: prometheus.Labels{"service": service},
	}, labels)
	reg.MustRegister(g)
	return g
}
