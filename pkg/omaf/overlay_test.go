package omaf

import (
	"testing"

	"github.com/Eyevinn/mp4ff/bits"
	"github.com/stretchr/testify/require"
)

func fullSingleOverlay() SingleOverlay {
	return SingleOverlay{
		OverlayID: 7,
		ViewportRelative: &ViewportRelativeOverlay{
			RectLeftPercent: 1000, RectTopPercent: 2000,
			RectWidthPercent: 3000, RectHeightPercent: 4000,
			MediaAlignment: AlignHCVCScale, RelativeDisparityFlag: true, Disparity: -50,
		},
		SphereRelativeOmni: &SphereRelativeOmniOverlay{
			Region:            OmniRegion{Kind: RegionIndicationProjectedPicture, Projected: ProjectedPictureRegion{PictureWidth: 3840, PictureHeight: 1920, RegionWidth: 100, RegionHeight: 100}},
			TimelineChangeFlag: true,
			RegionDepthMinus1:  10,
		},
		SphereRelative2D: &SphereRelative2DOverlay{
			SphereRegion:       SphereRegion{CentreAzimuth: 1, CentreElevation: 2, CentreTilt: 3, Range: SphereRegionRange{AzimuthRange: 4, ElevationRange: 5}, Interpolate: true},
			TimelineChangeFlag: false,
			OverlayRotation:    Rotation{Yaw: 1, Pitch: 2, Roll: 3},
			RegionDepthMinus1:  1,
		},
		SourceRegion: &OverlaySourceRegion{
			Region:    PackedPictureRegion{PictureWidth: 3840, PictureHeight: 1920, RegionWidth: 200, RegionHeight: 200},
			Transform: TransformRotateCCW90,
		},
		RecommendedViewport: &RecommendedViewportOverlay{},
		LayeringOrder:       &OverlayLayeringOrder{LayeringOrder: -3},
		Opacity:             &OverlayOpacity{Opacity: 200},
		Interaction:         &OverlayInteraction{ChangePositionFlag: true, RotationFlag: true},
		Label:               &OverlayLabel{Label: "scoreboard"},
		Priority:            &OverlayPriority{Priority: 1},
		AssociatedSphereRegion: &AssociatedSphereRegion{
			ShapeType:    ShapeFourGreatCircles,
			SphereRegion: SphereRegion{CentreAzimuth: 9, CentreElevation: 9, Range: SphereRegionRange{AzimuthRange: 1, ElevationRange: 1}, Interpolate: false},
		},
		AlphaCompositing: &OverlayAlphaCompositing{Mode: AlphaBlendingSourceOver},
		Reserved1:        &ReservedOverlayControl{Raw: []byte{0xAA, 0xBB}},
		Reserved2:        &ReservedOverlayControl{Raw: []byte{}},
	}
}

func requireSingleOverlayEqual(t *testing.T, want, got SingleOverlay) {
	t.Helper()
	require.Equal(t, want.OverlayID, got.OverlayID)
	require.Equal(t, want.ViewportRelative, got.ViewportRelative)
	if want.SphereRelativeOmni != nil {
		require.NotNil(t, got.SphereRelativeOmni)
		require.True(t, want.SphereRelativeOmni.Region.Equal(got.SphereRelativeOmni.Region))
		require.Equal(t, want.SphereRelativeOmni.TimelineChangeFlag, got.SphereRelativeOmni.TimelineChangeFlag)
		require.Equal(t, want.SphereRelativeOmni.RegionDepthMinus1, got.SphereRelativeOmni.RegionDepthMinus1)
	} else {
		require.Nil(t, got.SphereRelativeOmni)
	}
	require.Equal(t, want.SphereRelative2D, got.SphereRelative2D)
	require.Equal(t, want.SourceRegion, got.SourceRegion)
	require.Equal(t, want.RecommendedViewport, got.RecommendedViewport)
	require.Equal(t, want.LayeringOrder, got.LayeringOrder)
	require.Equal(t, want.Opacity, got.Opacity)
	require.Equal(t, want.Interaction, got.Interaction)
	require.Equal(t, want.Label, got.Label)
	require.Equal(t, want.Priority, got.Priority)
	require.Equal(t, want.AssociatedSphereRegion, got.AssociatedSphereRegion)
	require.Equal(t, want.AlphaCompositing, got.AlphaCompositing)
	require.Equal(t, want.Reserved1, got.Reserved1)
	require.Equal(t, want.Reserved2, got.Reserved2)
}

func TestSingleOverlayRoundTripAllControls(t *testing.T) {
	for _, numFlagBytes := range []int{1, 2, 3} {
		overlay := fullSingleOverlay()
		size := overlay.Size(numFlagBytes)
		sw := bits.NewFixedSliceWriter(int(size))
		require.NoError(t, overlay.EncodeSW(sw, numFlagBytes))
		require.Len(t, sw.Bytes(), int(size))

		sr := bits.NewFixedSliceReader(sw.Bytes())
		var got SingleOverlay
		require.NoError(t, got.DecodeSW(sr, numFlagBytes))
		requireSingleOverlayEqual(t, overlay, got)
	}
}

func TestSingleOverlayRoundTripSubsetOfControls(t *testing.T) {
	overlay := SingleOverlay{
		OverlayID: 42,
		Opacity:   &OverlayOpacity{Opacity: 128},
		Label:     &OverlayLabel{Label: "hud"},
	}
	size := overlay.Size(2)
	sw := bits.NewFixedSliceWriter(int(size))
	require.NoError(t, overlay.EncodeSW(sw, 2))

	sr := bits.NewFixedSliceReader(sw.Bytes())
	var got SingleOverlay
	require.NoError(t, got.DecodeSW(sr, 2))
	requireSingleOverlayEqual(t, overlay, got)
}

func TestSingleOverlayNoControls(t *testing.T) {
	overlay := SingleOverlay{OverlayID: 1}
	sw := bits.NewFixedSliceWriter(int(overlay.Size(3)))
	require.NoError(t, overlay.EncodeSW(sw, 3))
	require.Len(t, sw.Bytes(), 2+3)

	sr := bits.NewFixedSliceReader(sw.Bytes())
	var got SingleOverlay
	require.NoError(t, got.DecodeSW(sr, 3))
	requireSingleOverlayEqual(t, overlay, got)
}

func TestOverlayStructRoundTrip(t *testing.T) {
	st := OverlayStruct{
		NumFlagBytes: 2,
		Overlays: []SingleOverlay{
			{OverlayID: 1, Opacity: &OverlayOpacity{Opacity: 255}},
			fullSingleOverlay(),
		},
	}
	sw := bits.NewFixedSliceWriter(int(st.Size()))
	require.NoError(t, st.EncodeSW(sw))

	sr := bits.NewFixedSliceReader(sw.Bytes())
	var got OverlayStruct
	require.NoError(t, got.DecodeSW(sr))
	require.Equal(t, st.NumFlagBytes, got.NumFlagBytes)
	require.Len(t, got.Overlays, 2)
	requireSingleOverlayEqual(t, st.Overlays[0], got.Overlays[0])
	requireSingleOverlayEqual(t, st.Overlays[1], got.Overlays[1])
}
