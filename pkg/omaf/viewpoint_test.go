package omaf

import (
	"testing"

	"github.com/Eyevinn/mp4ff/bits"
	"github.com/stretchr/testify/require"
)

func TestViewpointGroupStructRoundTripWithDescription(t *testing.T) {
	g := ViewpointGroupStruct{GroupID: 3, DescriptionPresent: true, Description: "stage-left"}
	sw := bits.NewFixedSliceWriter(int(g.Size()))
	require.NoError(t, g.EncodeSW(sw))

	sr := bits.NewFixedSliceReader(sw.Bytes())
	var got ViewpointGroupStruct
	require.NoError(t, got.DecodeSW(sr, true))
	require.Equal(t, g, got)
}

func TestViewpointTimelineSwitchStructRoundTrip(t *testing.T) {
	minT, maxT := int32(-500), int32(1500)
	ts := ViewpointTimelineSwitchStruct{MinTime: &minT, MaxTime: &maxT, TOffsetKind: OffsetRelative, TOffsetRelative: -2000}
	sw := bits.NewFixedSliceWriter(int(ts.Size()))
	require.NoError(t, ts.EncodeSW(sw))

	sr := bits.NewFixedSliceReader(sw.Bytes())
	var got ViewpointTimelineSwitchStruct
	require.NoError(t, got.DecodeSW(sr))
	require.Equal(t, ts, got)
}

func TestTransitionEffectRoundTripEachKind(t *testing.T) {
	cases := []TransitionEffect{
		{Kind: TransitionZoomIn},
		{Kind: TransitionFadeToBlack},
		{Kind: TransitionVideoTrackID, TrackID: 99},
		{Kind: TransitionVideoURL, VideoURL: "https://example.com/transition.mp4"},
	}
	for _, want := range cases {
		sw := bits.NewFixedSliceWriter(int(want.size()))
		require.NoError(t, want.encode(sw))

		sr := bits.NewFixedSliceReader(sw.Bytes())
		var got TransitionEffect
		require.NoError(t, got.decode(sr))
		require.True(t, want.Equal(got))
	}
}

func TestViewpointSwitchRegionStructRoundTripEachKind(t *testing.T) {
	cases := []ViewpointSwitchRegionStruct{
		{Kind: ViewpointRegionViewportRelative, ViewportRegion: ViewportRelativeRegion{RectLeftPercent: 100, RectTopPercent: 200, RectWidthPercent: 300, RectHeightPercent: 400}},
		{Kind: ViewpointRegionSphereRelative, SphereRegion: SphereRelativePosition{ShapeType: ShapeFourGreatCircles, SphereRegion: SphereRegion{CentreAzimuth: 1, CentreElevation: 2, Range: SphereRegionRange{AzimuthRange: 3, ElevationRange: 4}}}},
		{Kind: ViewpointRegionOverlay, RefOverlayID: 55},
	}
	for _, want := range cases {
		sw := bits.NewFixedSliceWriter(int(want.Size()))
		require.NoError(t, want.EncodeSW(sw))

		sr := bits.NewFixedSliceReader(sw.Bytes())
		var got ViewpointSwitchRegionStruct
		require.NoError(t, got.DecodeSW(sr))
		require.Equal(t, want, got)
	}
}

func TestOneViewpointSwitchingStructRoundTrip(t *testing.T) {
	one := OneViewpointSwitchingStruct{
		DestinationViewpointID: 12,
		ViewingOrientation: ViewingOrientation{
			Kind:         ViewingOrientationViewport,
			SphereRegion: SphereRegion{CentreAzimuth: 5, CentreElevation: -5},
		},
		TransitionEffect: &TransitionEffect{Kind: TransitionMirror},
		SwitchRegions: []ViewpointSwitchRegionStruct{
			{Kind: ViewpointRegionOverlay, RefOverlayID: 3},
		},
	}
	sw := bits.NewFixedSliceWriter(int(one.Size()))
	require.NoError(t, one.EncodeSW(sw))

	sr := bits.NewFixedSliceReader(sw.Bytes())
	var got OneViewpointSwitchingStruct
	require.NoError(t, got.DecodeSW(sr))
	require.Equal(t, one.DestinationViewpointID, got.DestinationViewpointID)
	require.Equal(t, one.ViewingOrientation, got.ViewingOrientation)
	require.Nil(t, got.TimelineSwitch)
	require.Equal(t, one.TransitionEffect, got.TransitionEffect)
	require.Equal(t, one.SwitchRegions, got.SwitchRegions)
}

func TestDynamicViewpointSampleRoundTripWithMixedContext(t *testing.T) {
	// Entry fixes GPS position statically; every other field is dynamic.
	fixedGps := ViewpointGpsPositionStruct{Longitude: 100, Latitude: 200, Altitude: 5}
	ctx := DynamicViewpointSampleEntry{
		ViewpointGpsPosition: &fixedGps,
	}

	sample := DynamicViewpointSample{
		ViewpointPos:              ViewpointPosStruct{X: 10, Y: 20, Z: 30},
		ViewpointGeomagneticInfo:  &ViewpointGeomagneticInfoStruct{Yaw: 1, Pitch: 2, Roll: 3},
		ViewpointGlobalCoordinateRotation: &ViewpointGlobalCoordinateSysRotationStruct{Yaw: 4, Pitch: 5, Roll: 6},
		ViewpointGroup:            &ViewpointGroupStruct{GroupID: 1},
		ViewpointSwitchingList:    &ViewpointSwitchingListStruct{},
	}

	sw := bits.NewFixedSliceWriter(int(sample.Size(ctx)))
	require.NoError(t, sample.EncodeSW(sw, ctx))

	sr := bits.NewFixedSliceReader(sw.Bytes())
	var got DynamicViewpointSample
	require.NoError(t, got.DecodeSW(sr, ctx))

	require.Equal(t, sample.ViewpointPos, got.ViewpointPos)
	// Static field in ctx must be reflected in the decoded sample even
	// though it never appeared on the wire.
	require.Equal(t, fixedGps, *got.ViewpointGpsPosition)
	require.Equal(t, *sample.ViewpointGeomagneticInfo, *got.ViewpointGeomagneticInfo)
	require.Equal(t, *sample.ViewpointGlobalCoordinateRotation, *got.ViewpointGlobalCoordinateRotation)
	require.Equal(t, sample.ViewpointGroup, got.ViewpointGroup)
	require.Equal(t, sample.ViewpointSwitchingList, got.ViewpointSwitchingList)
}

func TestViewpointLoopingStructRoundTrip(t *testing.T) {
	maxLoops := int8(-1)
	activation := int32(1000)
	vl := ViewpointLoopingStruct{
		MaxLoops:           &maxLoops,
		LoopActivationTime: &activation,
		LoopExit: &ViewpointSwitchingListStruct{
			Switching: []OneViewpointSwitchingStruct{
				{DestinationViewpointID: 1, ViewingOrientation: ViewingOrientation{Kind: ViewingOrientationDefault}},
			},
		},
	}
	sw := bits.NewFixedSliceWriter(int(vl.Size()))
	require.NoError(t, vl.EncodeSW(sw))

	sr := bits.NewFixedSliceReader(sw.Bytes())
	var got ViewpointLoopingStruct
	require.NoError(t, got.DecodeSW(sr))
	require.Equal(t, vl, got)
}

func TestViewpointInformationStructRoundTrip(t *testing.T) {
	info := ViewpointInformationStruct{
		ViewpointPos:             ViewpointPosStruct{X: 1, Y: 2, Z: 3},
		ViewpointGroup:           ViewpointGroupStruct{GroupID: 9, DescriptionPresent: true, Description: "main stage"},
		GlobalCoordinateRotation: ViewpointGlobalCoordinateSysRotationStruct{Yaw: 1, Pitch: 1, Roll: 1},
		ViewpointGpsPosition:     &ViewpointGpsPositionStruct{Longitude: 1, Latitude: 2, Altitude: 3},
	}
	sw := bits.NewFixedSliceWriter(int(info.Size()))
	require.NoError(t, info.EncodeSW(sw))

	sr := bits.NewFixedSliceReader(sw.Bytes())
	var got ViewpointInformationStruct
	require.NoError(t, got.DecodeSW(sr, true))
	require.Equal(t, info, got)
}
