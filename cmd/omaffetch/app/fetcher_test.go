// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omafstream/viewport-engine/pkg/httpclient"
)

func TestAutoDir(t *testing.T) {
	cases := []struct {
		rawURL     string
		outDir     string
		wantedPath string
	}{
		{
			rawURL:     "https://dash.akamaized.net/WAVE/vectors/cfhd_sets/12.5_25_50/t1/2022-10-17/stream.mpd",
			outDir:     "/home/user/content",
			wantedPath: "/home/user/content/WAVE/vectors/cfhd_sets/12.5_25_50/t1/2022-10-17",
		},
		{
			rawURL:     "https://dash.akamaized.net/WAVE/vectors/cfhd_sets/12.5_25_50/t1/2022-10-17/stream.mpd",
			outDir:     "/home/user/content/WAVE/vectors",
			wantedPath: "/home/user/content/WAVE/vectors/cfhd_sets/12.5_25_50/t1/2022-10-17",
		},
		{
			rawURL:     "https://dash.akamaized.net/WAVE/stream.mpd",
			outDir:     "/home/user/content/WAVE/vectors",
			wantedPath: "/home/user/content/WAVE/vectors/WAVE",
		},
	}
	for _, tc := range cases {
		outPath, err := AutoDir(tc.rawURL, tc.outDir)
		require.NoError(t, err)
		require.Equal(t, tc.wantedPath, outPath)
	}
}

// fakeClient serves fixed bodies keyed by URL, standing in for the network.
type fakeClient struct {
	bodies map[string][]byte
}

func (f *fakeClient) Get(_ context.Context, req httpclient.Request) (*httpclient.Response, error) {
	b, ok := f.bodies[req.URL]
	if !ok {
		return &httpclient.Response{State: httpclient.StateCompleted, HTTPStatus: 404}, nil
	}
	return &httpclient.Response{State: httpclient.StateCompleted, HTTPStatus: 200, Body: b, BytesDownloaded: int64(len(b))}, nil
}

const numberAddressedMPD = `<?xml version="1.0"?>
<MPD type="static" mediaPresentationDuration="PT4S" profiles="urn:mpeg:dash:profile:isoff-on-demand:2011">
  <Period id="0" duration="PT4S">
    <AdaptationSet id="0" mimeType="video/mp4" codecs="hvc1">
      <Representation id="tile0" bandwidth="500000" width="960" height="960" frameRate="30">
        <SegmentTemplate media="$RepresentationID$/$Number$.m4s" initialization="$RepresentationID$/init.mp4"
          startNumber="1" duration="2" timescale="1"/>
      </Representation>
    </AdaptationSet>
  </Period>
</MPD>`

func TestRunDownloadsEverySegmentOfFirstPeriod(t *testing.T) {
	dir := t.TempDir()
	mpdURL := "https://example.com/stream.mpd"
	client := &fakeClient{bodies: map[string][]byte{
		mpdURL: []byte(numberAddressedMPD),
		"https://example.com/tile0/init.mp4": []byte("init"),
		"https://example.com/tile0/1.m4s":    []byte("seg1"),
		"https://example.com/tile0/2.m4s":    []byte("seg2"),
		"https://example.com/tile0/3.m4s":    []byte("seg3"),
	}}
	o := &Options{AssetURL: mpdURL, OutDir: dir}
	cnt, err := run(context.Background(), client, o)
	require.NoError(t, err)
	require.Zero(t, cnt.NrErrors)
	require.True(t, cnt.NrDownloaded >= 4, fmt.Sprintf("got %d", cnt.NrDownloaded))

	require.FileExists(t, filepath.Join(dir, "stream.mpd"))
	require.FileExists(t, filepath.Join(dir, "tile0", "init.mp4"))
	require.FileExists(t, filepath.Join(dir, "tile0", "1.m4s"))

	data, err := os.ReadFile(filepath.Join(dir, "tile0", "1.m4s"))
	require.NoError(t, err)
	require.Equal(t, "seg1", string(data))
}
