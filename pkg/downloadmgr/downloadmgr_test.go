package downloadmgr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omafstream/viewport-engine/pkg/clock"
	"github.com/omafstream/viewport-engine/pkg/httpclient"
	"github.com/omafstream/viewport-engine/pkg/mpdmodel"
	"github.com/omafstream/viewport-engine/pkg/tilepicker"
)

const tiledMPD = `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011"
     type="static"
     profiles="urn:mpeg:dash:profile:isoff-on-demand:2011"
     mediaPresentationDuration="PT10S">
  <Period id="p0" duration="PT10S">
    <Preselection id="10" preselectionComponents="10 20 30"/>
    <AdaptationSet id="10" mimeType="video/mp4" codecs="hvc2.1.6.L93.B0">
      <Representation id="ext-hi" bandwidth="4000000" width="1920" height="960" frameRate="30">
        <SegmentTemplate initialization="init-ext.mp4" media="ext-$Number$.m4s" startNumber="0" duration="2" timescale="1"/>
      </Representation>
    </AdaptationSet>
    <AdaptationSet id="20" mimeType="video/mp4" codecs="hvt1.1.6.L93.B0">
      <SupplementalProperty schemeIdUri="urn:mpeg:omaf:cc:2018" value="0,0,0,5898240,5898240"/>
      <Representation id="tile-west" bandwidth="1000000" width="960" height="960" frameRate="30">
        <SegmentTemplate initialization="init-tile-west.mp4" media="tile-west-$Number$.m4s" startNumber="0" duration="2" timescale="1"/>
      </Representation>
    </AdaptationSet>
    <AdaptationSet id="30" mimeType="video/mp4" codecs="hvt1.1.6.L93.B0">
      <SupplementalProperty schemeIdUri="urn:mpeg:omaf:cc:2018" value="0,11796480,0,5898240,5898240"/>
      <Representation id="tile-east" bandwidth="1000000" width="960" height="960" frameRate="30">
        <SegmentTemplate initialization="init-tile-east.mp4" media="tile-east-$Number$.m4s" startNumber="0" duration="2" timescale="1"/>
      </Representation>
    </AdaptationSet>
    <AdaptationSet id="40" mimeType="audio/mp4" codecs="mp4a.40.2">
      <Representation id="audio-1" bandwidth="128000">
        <SegmentTemplate initialization="init-audio.mp4" media="audio-$Number$.m4s" startNumber="0" duration="2" timescale="1"/>
      </Representation>
    </AdaptationSet>
  </Period>
</MPD>`

const unboundExtractorMPD = `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static" profiles="urn:mpeg:dash:profile:isoff-on-demand:2011">
  <Period id="p0" duration="PT10S">
    <AdaptationSet id="10" mimeType="video/mp4" codecs="hvc2.1.6.L93.B0">
      <Representation id="ext-hi" bandwidth="4000000" width="1920" height="960" frameRate="30">
        <SegmentTemplate initialization="init-ext.mp4" media="ext-$Number$.m4s" startNumber="0" duration="2" timescale="1"/>
      </Representation>
    </AdaptationSet>
  </Period>
</MPD>`

func registerCommonSegments(c *httpclient.BufferClient) {
	c.Set("init-ext.mp4", 200, []byte("EI"))
	c.Set("ext-0.m4s", 200, []byte("EXT0"))
	c.Set("init-tile-west.mp4", 200, []byte("WI"))
	c.Set("tile-west-0.m4s", 200, []byte("WEST0"))
	c.Set("init-tile-east.mp4", 200, []byte("TI"))
	c.Set("tile-east-0.m4s", 200, []byte("EAST0"))
	c.Set("init-audio.mp4", 200, []byte("AI"))
	c.Set("audio-0.m4s", 200, []byte("AUDIO0"))
}

func testBudget() tilepicker.Budget {
	return tilepicker.Budget{DeviceMaxConcurrentTiles: 16}
}

func centeredViewport() tilepicker.Viewport {
	return tilepicker.Viewport{CenterAzimuth: 0, CenterElevation: 0, WidthDeg: 90, HeightDeg: 90}
}

func TestLoadMPDClassifiesUnitsAndTransitionsLifecycle(t *testing.T) {
	c := httpclient.NewBufferClient()
	registerCommonSegments(c)
	clk := clock.NewFake(0)
	m := New(c, clk, testBudget())

	require.NoError(t, m.LoadMPD([]byte(tiledMPD)))
	assert.Equal(t, StateInitializing, m.State())
	require.NotNil(t, m.Picker())
	require.Len(t, m.tileSetsByID, 2)
	require.Len(t, m.extractors, 1)
	require.Len(t, m.baseUnits, 1) // audio only; both tiles are bound to the extractor

	m.SetInitialViewport(centeredViewport())
	assert.Equal(t, StateInitialized, m.State())

	require.NoError(t, m.StartDownload())
	assert.Equal(t, StateDownloading, m.State())
}

func TestStartDownloadRejectedBeforeInitialized(t *testing.T) {
	c := httpclient.NewBufferClient()
	registerCommonSegments(c)
	clk := clock.NewFake(0)
	m := New(c, clk, testBudget())

	require.NoError(t, m.LoadMPD([]byte(tiledMPD)))
	err := m.StartDownload()
	assert.ErrorIs(t, err, ErrScheduling)
}

func TestLoadMPDRejectsExtractorWithoutSupportingSets(t *testing.T) {
	c := httpclient.NewBufferClient()
	clk := clock.NewFake(0)
	m := New(c, clk, testBudget())

	err := m.LoadMPD([]byte(unboundExtractorMPD))
	assert.ErrorIs(t, err, mpdmodel.ErrConfig)
}

func TestTickServicesAssemblerAndBaseUnitsWithoutError(t *testing.T) {
	c := httpclient.NewBufferClient()
	registerCommonSegments(c)
	clk := clock.NewFake(0)
	m := New(c, clk, testBudget())

	require.NoError(t, m.LoadMPD([]byte(tiledMPD)))
	m.SetInitialViewport(centeredViewport())
	require.NoError(t, m.StartDownload())

	ctx := context.Background()
	var lastState State
	var lastErr error
	for i := 0; i < 16; i++ {
		lastState, lastErr = m.Tick(ctx)
		require.NoError(t, lastErr)
	}
	assert.Equal(t, StateDownloading, lastState)
}

func TestTickNoopsOutsideDownloadingState(t *testing.T) {
	c := httpclient.NewBufferClient()
	registerCommonSegments(c)
	clk := clock.NewFake(0)
	m := New(c, clk, testBudget())

	require.NoError(t, m.LoadMPD([]byte(tiledMPD)))

	state, err := m.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateInitializing, state)
}

func TestLoadMPDRejectsWhenNotIdle(t *testing.T) {
	c := httpclient.NewBufferClient()
	registerCommonSegments(c)
	clk := clock.NewFake(0)
	m := New(c, clk, testBudget())

	require.NoError(t, m.LoadMPD([]byte(tiledMPD)))
	err := m.LoadMPD([]byte(tiledMPD))
	assert.ErrorIs(t, err, ErrScheduling)
}

func TestLoadMPDRejectsTileSetExceedingDeviceBudget(t *testing.T) {
	c := httpclient.NewBufferClient()
	clk := clock.NewFake(0)
	m := New(c, clk, tilepicker.Budget{DeviceMaxConcurrentTiles: 0})

	err := m.LoadMPD([]byte(tiledMPD))
	assert.ErrorIs(t, err, tilepicker.ErrResource)
	assert.Equal(t, StateIdle, m.State())
}

func TestValidatePlaybackTimeMsRejectsBeyondFirstPeriod(t *testing.T) {
	c := httpclient.NewBufferClient()
	registerCommonSegments(c)
	clk := clock.NewFake(0)
	m := New(c, clk, testBudget())

	require.NoError(t, m.LoadMPD([]byte(tiledMPD))) // period[0] duration is PT10S

	assert.NoError(t, m.ValidatePlaybackTimeMs(9_000))
	err := m.ValidatePlaybackTimeMs(11_000)
	assert.ErrorIs(t, err, ErrScheduling)
}
