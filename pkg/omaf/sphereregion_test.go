package omaf

import (
	"testing"

	"github.com/Eyevinn/mp4ff/bits"
	"github.com/stretchr/testify/require"
)

func TestSphereRegionRoundTripWithRangeAndInterpolate(t *testing.T) {
	ctx := SphereRegionContext{HasRange: true, HasInterpolate: true}
	region := SphereRegion{
		CentreAzimuth:   0x00400000,
		CentreElevation: int32(0xFFC00000),
		CentreTilt:      0,
		Range: SphereRegionRange{
			AzimuthRange:   0x02D00000,
			ElevationRange: 0x00B40000,
		},
		Interpolate: true,
	}

	// 3*int32 always-present + 2*int32 range + 1 interpolate byte = 21 bytes.
	// Not the 18 bytes suggested by one illustrative spec example, which is
	// inconsistent with the field widths the same spec defines; see
	// SPEC_FULL.md §8 for the resolution.
	require.EqualValues(t, 21, region.Size(ctx))

	sw := bits.NewFixedSliceWriter(int(region.Size(ctx)))
	require.NoError(t, region.EncodeSW(sw, ctx))
	require.Len(t, sw.Bytes(), 21)

	sr := bits.NewFixedSliceReader(sw.Bytes())
	var got SphereRegion
	require.NoError(t, got.DecodeSW(sr, ctx))
	require.True(t, got.Equal(region, ctx))
}

func TestSphereRegionRoundTripMono(t *testing.T) {
	ctx := SphereRegionContext{}
	region := SphereRegion{CentreAzimuth: -90 << 16, CentreElevation: 45 << 16, CentreTilt: 0}
	require.EqualValues(t, 12, region.Size(ctx))

	sw := bits.NewFixedSliceWriter(int(region.Size(ctx)))
	require.NoError(t, region.EncodeSW(sw, ctx))

	sr := bits.NewFixedSliceReader(sw.Bytes())
	var got SphereRegion
	require.NoError(t, got.DecodeSW(sr, ctx))
	require.True(t, got.Equal(region, ctx))
}

func TestSphereRegionTruncated(t *testing.T) {
	ctx := SphereRegionContext{HasRange: true, HasInterpolate: true}
	sr := bits.NewFixedSliceReader(make([]byte, 4)) // far too short
	var got SphereRegion
	err := got.DecodeSW(sr, ctx)
	require.Error(t, err)
	require.True(t, IsTruncated(err))
}

func TestSphereRegionSampleRoundTrip(t *testing.T) {
	ctx := SphereRegionContext{HasRange: false, HasInterpolate: false}
	sample := SphereRegionSample{Regions: []SphereRegion{
		{CentreAzimuth: 10, CentreElevation: 20, CentreTilt: 0},
		{CentreAzimuth: -10, CentreElevation: -20, CentreTilt: 1},
	}}
	sw := bits.NewFixedSliceWriter(int(sample.Size(ctx)))
	require.NoError(t, sample.EncodeSW(sw, ctx))

	sr := bits.NewFixedSliceReader(sw.Bytes())
	var got SphereRegionSample
	require.NoError(t, got.DecodeSW(sr, ctx, len(sample.Regions)))
	require.Equal(t, sample.Regions, got.Regions)
}
