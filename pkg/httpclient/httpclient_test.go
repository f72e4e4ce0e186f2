package httpclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferClientServesRegisteredBody(t *testing.T) {
	c := NewBufferClient()
	c.Set("http://x/seg1.m4s", 200, []byte("abcdef"))

	resp, err := c.Get(context.Background(), Request{URL: "http://x/seg1.m4s", RangeStartInc: -1})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, resp.State)
	assert.Equal(t, 200, resp.HTTPStatus)
	assert.Equal(t, []byte("abcdef"), resp.Body)
}

func TestBufferClientMissingURLIs404(t *testing.T) {
	c := NewBufferClient()
	resp, err := c.Get(context.Background(), Request{URL: "http://x/missing.m4s", RangeStartInc: -1})
	require.NoError(t, err)
	assert.Equal(t, 404, resp.HTTPStatus)
}

func TestBufferClientRange(t *testing.T) {
	c := NewBufferClient()
	c.Set("http://x/seg.m4s", 200, []byte("0123456789"))
	resp, err := c.Get(context.Background(), Request{URL: "http://x/seg.m4s", RangeStartInc: 2, RangeEndInc: 5})
	require.NoError(t, err)
	assert.Equal(t, []byte("2345"), resp.Body)
}

func TestBufferClientFailure(t *testing.T) {
	c := NewBufferClient()
	c.SetFailure("http://x/bad.m4s")
	resp, err := c.Get(context.Background(), Request{URL: "http://x/bad.m4s", RangeStartInc: -1})
	require.Error(t, err)
	assert.Equal(t, StateFailed, resp.State)
}

func TestBufferClientAbort(t *testing.T) {
	c := NewBufferClient()
	c.Set("http://x/seg.m4s", 200, []byte("abc"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp, err := c.Get(ctx, Request{URL: "http://x/seg.m4s", RangeStartInc: -1})
	require.Error(t, err)
	assert.Equal(t, StateAborted, resp.State)
}
