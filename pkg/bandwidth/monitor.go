// Package bandwidth maintains the sliding window of download samples that
// the bitrate controller (F) reads to estimate currently available
// throughput. It is grounded on the reference player's BandwidthMonitor: a
// fixed ring of 100 (bits-per-second, timestamp) samples behind a single
// lock, with the estimate the median of the window rather than a mean, so a
// handful of stalled or unusually fast segments cannot swing the estimate.
package bandwidth

import (
	"sort"
	"sync"

	"github.com/omafstream/viewport-engine/pkg/clock"
)

// windowSize is the number of download samples retained, matching the
// reference player's FixedArray<DownloadSample, 100>.
const windowSize = 100

// Sample is one completed download's throughput observation.
type Sample struct {
	BitsPerSecond uint64
	TimestampMs   int64
}

// Monitor is the process-wide sliding-window throughput estimator. The
// download manager (H) owns its lifecycle: one Monitor is created when the
// manager starts and discarded when it stops, mirroring the reference
// player's lazily-created, explicitly-destroyed singleton without requiring
// package-level global state in this port.
type Monitor struct {
	mu      sync.Mutex
	samples [windowSize]Sample
	next    int
	count   int
	clock   clock.Clock
}

// New creates a Monitor using clk as its time source.
func New(clk clock.Clock) *Monitor {
	return &Monitor{clock: clk}
}

// NotifyDownloadCompleted records one finished download's throughput. A
// zero-duration download (cached or instantaneous) is ignored since it
// cannot yield a meaningful bits-per-second figure.
func (m *Monitor) NotifyDownloadCompleted(elapsedMs int64, bytesDownloaded uint64) {
	if elapsedMs <= 0 || bytesDownloaded == 0 {
		return
	}
	bps := bytesDownloaded * 8 * 1000 / uint64(elapsedMs)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples[m.next] = Sample{BitsPerSecond: bps, TimestampMs: m.clock.NowMs()}
	m.next = (m.next + 1) % windowSize
	if m.count < windowSize {
		m.count++
	}
}

// EstimatedBandwidthBps returns the median bits-per-second across the
// current window, or 0 if no samples have been recorded yet.
func (m *Monitor) EstimatedBandwidthBps() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == 0 {
		return 0
	}
	values := make([]uint64, m.count)
	for i := 0; i < m.count; i++ {
		values[i] = m.samples[i].BitsPerSecond
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid]
	}
	return (values[mid-1] + values[mid]) / 2
}

// SampleCount reports how many samples currently populate the window, for
// diagnostics and tests.
func (m *Monitor) SampleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Reset clears the window, discarding every recorded sample.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next = 0
	m.count = 0
	m.samples = [windowSize]Sample{}
}
