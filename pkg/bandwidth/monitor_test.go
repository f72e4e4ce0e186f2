package bandwidth

import (
	"testing"

	"github.com/omafstream/viewport-engine/pkg/clock"
	"github.com/stretchr/testify/require"
)

func TestEstimatedBandwidthEmpty(t *testing.T) {
	m := New(clock.NewFake(0))
	require.EqualValues(t, 0, m.EstimatedBandwidthBps())
	require.Equal(t, 0, m.SampleCount())
}

func TestEstimatedBandwidthMedian(t *testing.T) {
	m := New(clock.NewFake(0))
	// 1,000,000 bytes in 1000ms => 8,000,000 bps
	m.NotifyDownloadCompleted(1000, 1_000_000)
	// 2,000,000 bytes in 1000ms => 16,000,000 bps
	m.NotifyDownloadCompleted(1000, 2_000_000)
	// 500,000 bytes in 1000ms => 4,000,000 bps
	m.NotifyDownloadCompleted(1000, 500_000)
	require.EqualValues(t, 3, m.SampleCount())
	require.EqualValues(t, 8_000_000, m.EstimatedBandwidthBps())
}

func TestEstimatedBandwidthIgnoresDegenerateSamples(t *testing.T) {
	m := New(clock.NewFake(0))
	m.NotifyDownloadCompleted(0, 1_000_000)
	m.NotifyDownloadCompleted(1000, 0)
	require.Equal(t, 0, m.SampleCount())
}

func TestWindowWrapsAt100Samples(t *testing.T) {
	m := New(clock.NewFake(0))
	for i := 0; i < windowSize+10; i++ {
		m.NotifyDownloadCompleted(1000, 1_000_000)
	}
	require.Equal(t, windowSize, m.SampleCount())
}

func TestReset(t *testing.T) {
	m := New(clock.NewFake(0))
	m.NotifyDownloadCompleted(1000, 1_000_000)
	m.Reset()
	require.Equal(t, 0, m.SampleCount())
	require.EqualValues(t, 0, m.EstimatedBandwidthBps())
}
