package segstream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omafstream/viewport-engine/pkg/clock"
	"github.com/omafstream/viewport-engine/pkg/httpclient"
	"github.com/omafstream/viewport-engine/pkg/mpdmodel"
)

func testTemplate() *mpdmodel.SegmentTemplate {
	return &mpdmodel.SegmentTemplate{
		Initialization: "init-$RepresentationID$.mp4",
		Media:          "$RepresentationID$-$Number$.m4s",
	}
}

func TestStartDownloadFetchesInitThenMedia(t *testing.T) {
	c := httpclient.NewBufferClient()
	c.Set("init-rep0.mp4", 200, []byte("INIT"))
	c.Set("rep0-0.m4s", 200, []byte("SEG0"))
	clk := clock.NewFake(0)
	st := New(Config{RepresentationID: "rep0", Template: testTemplate(), LastSegmentID: -1}, c, clk, nil, nil)

	st.StartDownload(0)
	assert.Equal(t, StateDownloadingInit, st.State())

	changed, err := st.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StateIdle, st.State())

	changed, err = st.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StateDownloadingMedia, st.State())

	changed, err = st.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StateIdle, st.State())
	assert.Equal(t, 1, st.CachedSegmentCount())
	assert.Equal(t, int64(1), st.PeekNextSegmentID())
}

func Test404OnLastSegmentOfStaticStreamIsEndOfStream(t *testing.T) {
	c := httpclient.NewBufferClient()
	// rep0-0.m4s intentionally not registered -> BufferClient returns 404.
	clk := clock.NewFake(0)
	st := New(Config{
		RepresentationID: "rep0",
		Template:         testTemplate(),
		IsStaticLastRep:  true,
		LastSegmentID:    0,
	}, c, clk, nil, nil)
	st.StartDownload(0)
	st.state = StateDownloadingMedia // skip init for this test

	changed, err := st.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StateEndOfStream, st.State())
	assert.True(t, st.IsEndOfStream())
}

func Test500Retries30TimesThenError(t *testing.T) {
	c := httpclient.NewBufferClient()
	c.SetFailure("rep0-0.m4s")
	clk := clock.NewFake(0)
	st := New(Config{RepresentationID: "rep0", Template: testTemplate(), LastSegmentID: -1}, c, clk, nil, nil)
	st.StartDownload(0)
	st.state = StateDownloadingMedia

	for i := 0; i < maxRetries-1; i++ {
		changed, err := st.Tick(context.Background())
		require.NoError(t, err)
		assert.True(t, changed)
		require.Equal(t, StateRetry, st.State())
		clk.Advance(1001)
		changed, err = st.Tick(context.Background())
		require.NoError(t, err)
		assert.True(t, changed)
		require.Equal(t, StateDownloadingMedia, st.State())
	}
	// One more failure should exhaust the retry budget.
	changed, err := st.Tick(context.Background())
	require.Error(t, err)
	assert.True(t, changed)
	assert.Equal(t, StateError, st.State())
	assert.Equal(t, maxRetries, st.Retries())
}

func TestRetryDoesNotAdvanceBeforeBackoffElapses(t *testing.T) {
	c := httpclient.NewBufferClient()
	c.SetFailure("rep0-0.m4s")
	clk := clock.NewFake(0)
	st := New(Config{RepresentationID: "rep0", Template: testTemplate(), LastSegmentID: -1}, c, clk, nil, nil)
	st.StartDownload(0)
	st.state = StateDownloadingMedia

	_, err := st.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateRetry, st.State())

	changed, err := st.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, StateRetry, st.State())
}

func TestStopDownloadAsyncAbortCompletesWithinOneTick(t *testing.T) {
	c := httpclient.NewBufferClient()
	c.Set("rep0-0.m4s", 200, []byte("SEG0"))
	clk := clock.NewFake(0)
	st := New(Config{RepresentationID: "rep0", Template: testTemplate(), LastSegmentID: -1}, c, clk, nil, nil)
	st.StartDownload(0)
	st.state = StateDownloadingMedia

	st.StopDownloadAsync(true)
	assert.Equal(t, StateAborting, st.State())

	changed, err := st.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, st.HasCompleted())
}

func TestStopDownloadAsyncGracefulFinishesInFlightSegment(t *testing.T) {
	c := httpclient.NewBufferClient()
	c.Set("rep0-0.m4s", 200, []byte("SEG0"))
	clk := clock.NewFake(0)
	st := New(Config{RepresentationID: "rep0", Template: testTemplate(), LastSegmentID: -1}, c, clk, nil, nil)
	st.StartDownload(0)
	st.state = StateDownloadingMedia

	st.StopDownloadAsync(false)
	assert.Equal(t, StateDownloadingMediaBeforeStop, st.State())

	_, err := st.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, st.HasCompleted())
	assert.Equal(t, 1, st.CachedSegmentCount())
}

func TestSidxPrefixFetchIsRangeRequest(t *testing.T) {
	c := httpclient.NewBufferClient()
	body := make([]byte, 4096)
	c.Set("rep0-0.m4s", 200, body)
	clk := clock.NewFake(0)
	st := New(Config{RepresentationID: "rep0", Template: testTemplate(), IsOnDemand: true, LastSegmentID: -1}, c, clk, nil, nil)

	seg, err := st.FetchSidxPrefix(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, RoleSidxPrefix, seg.Role)
	assert.Len(t, seg.Bytes, sidxPrefixBytes)
	require.Len(t, c.Requested, 1)
	assert.True(t, c.Requested[0].HasRange())
	assert.Equal(t, int64(0), c.Requested[0].RangeStartInc)
	assert.Equal(t, int64(sidxPrefixBytes-1), c.Requested[0].RangeEndInc)
}
