package tilepicker

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fourTileRow builds a single latitude band covered by four 90°-wide tiles,
// enough to exercise selection, ordering, and coverage without the full
// 8x4 grid of spec §8 scenario 1.
func fourTileRow() []Row {
	row := Row{LatCenter: 0, Top: 60, Bottom: -60}
	centers := []float64{-135, -45, 45, 135}
	for i, c := range centers {
		row.Tiles = append(row.Tiles, Tile{
			AdaptationSetID: []string{"west", "south", "north", "east"}[i],
			Coverage:        Rect{CenterAzimuth: c, CenterElevation: 0, AzimuthWidth: 90, ElevationHeight: 120},
			Width:           960, Height: 960, FrameRate: 30,
		})
	}
	return []Row{row}
}

func TestPickTilesCoversExpandedViewport(t *testing.T) {
	p := New(fourTileRow(), Budget{DeviceMaxConcurrentTiles: 4})
	p.SetViewport(Viewport{CenterAzimuth: 0, CenterElevation: 0, WidthDeg: 90, HeightDeg: 90})
	sel, _, _ := p.GetLatestTiles()
	require.NotEmpty(t, sel.Viewport)

	var rects []Rect
	for _, t := range sel.Viewport {
		for _, tile := range fourTileRow()[0].Tiles {
			if tile.AdaptationSetID == t.AdaptationSetID {
				rects = append(rects, tile.Coverage)
			}
		}
	}
	expanded := Viewport{CenterAzimuth: 0, CenterElevation: 0, WidthDeg: 90, HeightDeg: 90}.Rect().Expand(expansionFactor)
	assert.True(t, Covers(rects, expanded))
}

func TestPickTilesOrdersByDecreasingArea(t *testing.T) {
	p := New(fourTileRow(), Budget{DeviceMaxConcurrentTiles: 4})
	sel := p.pickTilesLocked(Viewport{CenterAzimuth: 0, CenterElevation: 0, WidthDeg: 90, HeightDeg: 90})
	require.True(t, sort.SliceIsSorted(sel.Viewport, func(i, j int) bool {
		return sel.Viewport[i].Area > sel.Viewport[j].Area
	}))
}

func TestHysteresisStillMotionDoesNotReselect(t *testing.T) {
	p := New(fourTileRow(), Budget{DeviceMaxConcurrentTiles: 4})
	p.SetViewport(Viewport{CenterAzimuth: 0, CenterElevation: 0, WidthDeg: 90, HeightDeg: 90})
	first, _, _ := p.GetLatestTiles()

	p.SetViewport(Viewport{CenterAzimuth: 0.1, CenterElevation: 0, WidthDeg: 90, HeightDeg: 90})
	_, dropped, added := p.GetLatestTiles()
	assert.Empty(t, dropped)
	assert.Empty(t, added)
	_ = first
}

func TestHysteresisSlowMotionReselects(t *testing.T) {
	p := New(fourTileRow(), Budget{DeviceMaxConcurrentTiles: 4})
	p.SetViewport(Viewport{CenterAzimuth: 0, CenterElevation: 0, WidthDeg: 90, HeightDeg: 90})
	before := p.selection

	// An 8 degree move classifies as Slow (< fastThresholdDeg) and must
	// always reselect, shifting the measured areas even when the selected
	// tile ids are unchanged.
	p.SetViewport(Viewport{CenterAzimuth: 8, CenterElevation: 0, WidthDeg: 90, HeightDeg: 90})
	after := p.selection
	assert.NotEqual(t, before.Viewport[0].Area, after.Viewport[0].Area)
}

func TestHysteresisLargeJumpReselectsImmediately(t *testing.T) {
	p := New(fourTileRow(), Budget{DeviceMaxConcurrentTiles: 4})
	p.SetViewport(Viewport{CenterAzimuth: 0, CenterElevation: 0, WidthDeg: 90, HeightDeg: 90})
	_, _, _ = p.GetLatestTiles()

	// 90 degrees classifies as Fast, which defers reselection (see
	// TestFastMotionDefersThenSettleForcesReselect); force one here via
	// PickTiles, mirroring an explicit viewpoint switch.
	p.viewport = Viewport{CenterAzimuth: 90, CenterElevation: 0, WidthDeg: 90, HeightDeg: 90}
	sel := p.PickTiles()
	assert.Contains(t, tileIDs(sel.Viewport), "east")
}

func TestFastMotionDefersThenSettleForcesReselect(t *testing.T) {
	p := New(fourTileRow(), Budget{DeviceMaxConcurrentTiles: 4})
	p.SetViewport(Viewport{CenterAzimuth: 0, CenterElevation: 0, WidthDeg: 90, HeightDeg: 90})
	_, _, _ = p.GetLatestTiles()

	// A single large jump classifies as Fast and defers reselection.
	p.SetViewport(Viewport{CenterAzimuth: 170, CenterElevation: 0, WidthDeg: 90, HeightDeg: 90})
	selDuringFast, _, addedDuringFast := p.GetLatestTiles()
	assert.Empty(t, addedDuringFast, "fast motion should defer reselection")

	// Settling (small delta after a fast move) forces one reselection.
	p.SetViewport(Viewport{CenterAzimuth: 170.1, CenterElevation: 0, WidthDeg: 90, HeightDeg: 90})
	selAfterSettle, _, addedAfterSettle := p.GetLatestTiles()
	assert.NotEmpty(t, addedAfterSettle, "settling after fast motion should force a reselection")
	_ = selDuringFast
	_ = selAfterSettle
}

func tileIDs(areas []TileArea) []string {
	out := make([]string, len(areas))
	for i, a := range areas {
		out[i] = a.AdaptationSetID
	}
	return out
}

func TestMaxConcurrentTilesBudget(t *testing.T) {
	b := Budget{DeviceMaxConcurrentTiles: 100, MaxDecodedPixelsPerSec: 8_294_400 * 30, BaseLayerPixelsPerSec: 0}
	got := b.MaxConcurrentTiles(960, 960, 30)
	assert.Equal(t, 9, got) // 8294400*30 / (960*960*30) = 9
}

func TestMaxConcurrentTilesBoundedByDevice(t *testing.T) {
	b := Budget{DeviceMaxConcurrentTiles: 4, MaxDecodedPixelsPerSec: 1e12, BaseLayerPixelsPerSec: 0}
	got := b.MaxConcurrentTiles(960, 960, 30)
	assert.Equal(t, 4, got)
}

func TestMaxConcurrentTilesUnboundedWithoutPixelBudget(t *testing.T) {
	b := Budget{DeviceMaxConcurrentTiles: 4}
	got := b.MaxConcurrentTiles(960, 960, 30)
	assert.Equal(t, 4, got, "no MaxDecodedPixelsPerSec configured should fall back to the device constant, not zero")
}

func TestSupportsRejectsRepresentationBelowSampledWorstCase(t *testing.T) {
	// Four tiles in one row, each a 90°-wide quadrant of the band: a 90x90
	// viewport intersects at least two neighbouring tiles at any azimuth,
	// so the sampled worst case is >1.
	b := Budget{DeviceMaxConcurrentTiles: 1}
	p := New(fourTileRow(), b)
	p.SampleBudget(90, 90)
	assert.False(t, p.Supports(960, 960, 30), "a one-tile device budget must not support a layout whose worst case needs more than one tile")
}

func TestSupportsAcceptsRepresentationWithinDeviceBudget(t *testing.T) {
	b := Budget{DeviceMaxConcurrentTiles: 4}
	p := New(fourTileRow(), b)
	p.SampleBudget(90, 90)
	assert.True(t, p.Supports(960, 960, 30))
}
