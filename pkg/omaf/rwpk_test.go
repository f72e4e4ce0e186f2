package omaf

import (
	"testing"

	"github.com/Eyevinn/mp4ff/bits"
	"github.com/stretchr/testify/require"
)

func sampleRWPK() RegionWisePacking {
	return RegionWisePacking{
		ProjPictureWidth:    3840,
		ProjPictureHeight:   1920,
		PackedPictureWidth:  3840,
		PackedPictureHeight: 1920,
		Regions: []RegionPair{
			{
				ProjRegion:   ProjectedPictureRegion{PictureWidth: 3840, PictureHeight: 1920, RegionWidth: 960, RegionHeight: 960, RegionTop: 0, RegionLeft: 0},
				PackedRegion: PackedPictureRegion{PictureWidth: 3840, PictureHeight: 1920, RegionWidth: 960, RegionHeight: 960, RegionTop: 0, RegionLeft: 0},
				Transform:    TransformNone,
			},
			{
				ProjRegion:   ProjectedPictureRegion{PictureWidth: 3840, PictureHeight: 1920, RegionWidth: 960, RegionHeight: 960, RegionTop: 0, RegionLeft: 960},
				PackedRegion: PackedPictureRegion{PictureWidth: 3840, PictureHeight: 1920, RegionWidth: 960, RegionHeight: 960, RegionTop: 0, RegionLeft: 960},
				Transform:    TransformRotateCCW90,
				GuardLeft:    &GuardBand{LeftWidth: 2, GuardType: 1},
				GuardRight:   &GuardBand{RightWidth: 2, GuardType: 1},
				GuardTop:     &GuardBand{TopHeight: 2, GuardType: 1},
				GuardBottom:  &GuardBand{BottomHeight: 2, GuardType: 1},
			},
		},
	}
}

func TestRegionWisePackingRoundTrip(t *testing.T) {
	rwpk := sampleRWPK()
	sw := bits.NewFixedSliceWriter(int(rwpk.Size()))
	require.NoError(t, rwpk.EncodeSW(sw))
	require.Len(t, sw.Bytes(), int(rwpk.Size()))

	sr := bits.NewFixedSliceReader(sw.Bytes())
	var got RegionWisePacking
	require.NoError(t, got.DecodeSW(sr))
	require.Equal(t, rwpk, got)
}

func TestTransformTypeClampsOutOfRange(t *testing.T) {
	require.Equal(t, TransformRotateCCW270, clampTransformType(7))
	require.Equal(t, TransformRotateCCW270, clampTransformType(200))
	require.Equal(t, TransformNone, clampTransformType(0))
}

func TestRegionPairWithoutGuardBands(t *testing.T) {
	rp := RegionPair{
		ProjRegion:   ProjectedPictureRegion{PictureWidth: 100, PictureHeight: 100, RegionWidth: 10, RegionHeight: 10},
		PackedRegion: PackedPictureRegion{PictureWidth: 100, PictureHeight: 100, RegionWidth: 10, RegionHeight: 10},
		Transform:    TransformMirrorHorizontal,
	}
	require.False(t, rp.HasGuardBands())
	sw := bits.NewFixedSliceWriter(int(rp.Size()))
	require.NoError(t, rp.EncodeSW(sw))

	sr := bits.NewFixedSliceReader(sw.Bytes())
	var got RegionPair
	require.NoError(t, got.DecodeSW(sr))
	require.Nil(t, got.GuardLeft)
	require.Equal(t, rp.Transform, got.Transform)
}
