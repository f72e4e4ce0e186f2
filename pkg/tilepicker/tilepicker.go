// Package tilepicker implements the viewport tile picker of spec §4.5
// (component E): given the head-orientation-driven viewport, it chooses the
// tile adaptation sets whose union covers the viewport with the smallest
// feasible change from the previous selection, applying hysteresis and a
// per-device pixel budget.
package tilepicker

import (
	"errors"
	"math"
	"sort"
	"sync"
)

// ErrResource is spec §7's ResourceError: the tile budget cannot be
// satisfied at any quality level.
var ErrResource = errors.New("tilepicker: tile budget cannot be satisfied")

const (
	// expansionFactor is the "high-quality region" expansion of spec §4.5
	// step 1.
	expansionFactor = 1.20
	// viewportAreaThreshold marks a tile as a full viewport tile once its
	// intersection area with the expanded viewport exceeds this, spec §4.5
	// step 3 ("300 square-degrees-ish").
	viewportAreaThreshold = 300.0
	// stillThresholdDeg is the motion classifier's still/slow boundary,
	// spec §4.5.
	stillThresholdDeg = 0.5
	// fastThresholdDeg is the motion classifier's slow/fast boundary, spec
	// §4.5.
	fastThresholdDeg = 10.0
)

// MotionClass is the hysteresis classifier's output, spec §4.5.
type MotionClass int

const (
	MotionStill MotionClass = iota
	MotionSlow
	MotionFast
)

// Tile is one tile adaptation set's sphere coverage, known to the picker at
// construction time from the MPD's OMAF content-coverage descriptors.
type Tile struct {
	AdaptationSetID string
	Coverage        Rect
	Width, Height   int
	FrameRate       float64
}

// Row is a latitude band of the tile grid, spec §4.5: tiles within a row are
// ordered by increasing center longitude.
type Row struct {
	LatCenter    float64
	Top, Bottom  float64
	Tiles        []Tile
}

// Viewport is the renderer-supplied head orientation and field of view,
// spec §3.4.
type Viewport struct {
	CenterAzimuth   float64
	CenterElevation float64
	Roll            float64
	WidthDeg        float64
	HeightDeg       float64
}

// Rect returns the un-expanded viewport rectangle.
func (v Viewport) Rect() Rect {
	return Rect{CenterAzimuth: v.CenterAzimuth, CenterElevation: v.CenterElevation, AzimuthWidth: v.WidthDeg, ElevationHeight: v.HeightDeg}
}

// TileArea pairs a selected tile with its measured intersection area, spec
// §3.4's TileSelection.
type TileArea struct {
	AdaptationSetID string
	Area            float64
}

// Selection is the ordered output of PickTiles, spec §3.4.
type Selection struct {
	Viewport []TileArea // decreasing area order
	Margin   []TileArea // decreasing area order, priority list for pre-emptive fetch
}

// allIDs returns every adaptation-set id present in the selection.
func (s Selection) allIDs() map[string]bool {
	out := make(map[string]bool, len(s.Viewport)+len(s.Margin))
	for _, t := range s.Viewport {
		out[t.AdaptationSetID] = true
	}
	for _, t := range s.Margin {
		out[t.AdaptationSetID] = true
	}
	return out
}

// Budget is the per-device tile concurrency limit of spec §4.5.
type Budget struct {
	DeviceMaxConcurrentTiles int
	MaxDecodedPixelsPerSec   float64
	BaseLayerPixelsPerSec    float64

	// ViewportWidthDeg/ViewportHeightDeg are the device's nominal field of
	// view, sampled once at picker construction to estimate the worst-case
	// concurrent tile count, spec §4.5. Zero leaves the sampled worst case
	// at zero tiles, which Supports counts as one tile.
	ViewportWidthDeg  float64
	ViewportHeightDeg float64
}

// MaxConcurrentTiles computes the effective tile budget: the minimum of the
// device capability constant and the pixel-budget-derived count, spec §4.5.
// A zero or negative MaxDecodedPixelsPerSec means no pixel-rate budget was
// configured for this device, so only the device capability constant binds.
func (b Budget) MaxConcurrentTiles(tileWidth, tileHeight int, fps float64) int {
	if tileWidth <= 0 || tileHeight <= 0 || fps <= 0 || b.MaxDecodedPixelsPerSec <= 0 {
		return b.DeviceMaxConcurrentTiles
	}
	remaining := b.MaxDecodedPixelsPerSec - b.BaseLayerPixelsPerSec
	if remaining < 0 {
		remaining = 0
	}
	byPixels := int(remaining / (float64(tileWidth) * float64(tileHeight) * fps))
	if b.DeviceMaxConcurrentTiles > 0 && b.DeviceMaxConcurrentTiles < byPixels {
		return b.DeviceMaxConcurrentTiles
	}
	return byPixels
}

// Picker is the viewport tile picker of spec §4.5. The renderer thread
// mutates it through SetViewport/PickTiles; the provider thread reads the
// result through GetLatestTiles. A single mutex stands in for spec §4.5's
// spinlock (see DESIGN.md).
type Picker struct {
	mu sync.Mutex

	rows   []Row
	budget Budget

	viewport     Viewport
	haveViewport bool

	selection     Selection
	lastHandedOff Selection

	motionAccumAz, motionAccumEl float64
	lastClass                   MotionClass

	worstCaseTiles int
}

// New constructs a Picker over the given tile rows and device budget,
// immediately sampling the budget against the device's nominal viewport
// (Budget.ViewportWidthDeg/HeightDeg), spec §4.5: "Before first use the
// picker samples the tile layout ... to estimate the worst-case and median
// number of tiles the viewport intersects."
func New(rows []Row, budget Budget) *Picker {
	p := &Picker{rows: rows, budget: budget}
	p.SampleBudget(budget.ViewportWidthDeg, budget.ViewportHeightDeg)
	return p
}

// SampleBudget (re)computes the worst-case concurrent tile count for a
// viewport of the given size and remembers it for Supports, spec §4.5. It
// is called once by New and may be called again if the device's effective
// viewport size changes.
func (p *Picker) SampleBudget(viewportWidthDeg, viewportHeightDeg float64) (worst, median int) {
	worst, median = p.EstimateWorstCaseAndMedian(viewportWidthDeg, viewportHeightDeg)
	p.mu.Lock()
	p.worstCaseTiles = worst
	p.mu.Unlock()
	return worst, median
}

// Supports reports whether a representation with the given per-tile pixel
// dimensions and frame rate fits the device budget at the sampled
// worst-case concurrent tile count, spec §4.5: "Representations that would
// overflow the budget are marked not supported for the device." A
// worst-case of zero (no rows sampled yet) is treated as one tile so an
// all-or-nothing budget of zero tiles can't masquerade as "no limit."
func (p *Picker) Supports(tileWidth, tileHeight int, fps float64) bool {
	p.mu.Lock()
	worst := p.worstCaseTiles
	budget := p.budget
	p.mu.Unlock()
	if worst <= 0 {
		worst = 1
	}
	return worst <= budget.MaxConcurrentTiles(tileWidth, tileHeight, fps)
}

// classifyMotion implements the hysteresis rule of spec §4.5: still motion
// is ignored unless accumulated drift crosses the still threshold; slow
// motion always reselects; fast motion defers (accumulating) until it
// settles back to still, which forces one reselection.
func (p *Picker) classifyMotion(deltaAz, deltaEl float64) (MotionClass, bool) {
	mag := math.Hypot(deltaAz, deltaEl)
	var class MotionClass
	switch {
	case mag < stillThresholdDeg:
		class = MotionStill
	case mag < fastThresholdDeg:
		class = MotionSlow
	default:
		class = MotionFast
	}

	forceReselect := false
	switch class {
	case MotionStill:
		p.motionAccumAz += deltaAz
		p.motionAccumEl += deltaEl
		if math.Hypot(p.motionAccumAz, p.motionAccumEl) >= stillThresholdDeg {
			forceReselect = true
			p.motionAccumAz, p.motionAccumEl = 0, 0
		}
		if p.lastClass == MotionFast {
			forceReselect = true // settle point: Fast -> Still forces one reselection
		}
	case MotionSlow:
		p.motionAccumAz, p.motionAccumEl = 0, 0
		forceReselect = true
	case MotionFast:
		p.motionAccumAz, p.motionAccumEl = 0, 0
		// deferred: no reselect while still moving fast
	}
	p.lastClass = class
	return class, forceReselect
}

// SetViewport updates the viewport and, per the motion classifier, either
// triggers a reselection or coalesces the update, spec §3.4/§4.5. It is the
// renderer thread's entry point.
func (p *Picker) SetViewport(v Viewport) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var deltaAz, deltaEl float64
	if p.haveViewport {
		deltaAz = azimuthDelta(p.viewport.CenterAzimuth, v.CenterAzimuth)
		deltaEl = v.CenterElevation - p.viewport.CenterElevation
	}
	_, reselect := p.classifyMotion(deltaAz, deltaEl)
	firstViewport := !p.haveViewport
	p.viewport = v
	p.haveViewport = true

	if firstViewport || reselect {
		p.selection = p.pickTilesLocked(v)
	}
}

// PickTiles forces an unconditional reselection for the current viewport,
// bypassing hysteresis; used for an explicit viewpoint switch or a cold
// start, spec §4.5.
func (p *Picker) PickTiles() Selection {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selection = p.pickTilesLocked(p.viewport)
	return p.selection
}

func (p *Picker) pickTilesLocked(v Viewport) Selection {
	expanded := v.Rect().Expand(expansionFactor)
	rows := p.selectRows(expanded)

	var viewportTiles, marginTiles []TileArea
	for _, row := range rows {
		for _, tile := range row.Tiles {
			area := tile.Coverage.IntersectionArea(expanded)
			if area <= 0 {
				continue
			}
			if area > viewportAreaThreshold {
				viewportTiles = append(viewportTiles, TileArea{AdaptationSetID: tile.AdaptationSetID, Area: area})
			} else {
				marginTiles = append(marginTiles, TileArea{AdaptationSetID: tile.AdaptationSetID, Area: area})
			}
		}
	}
	sort.SliceStable(viewportTiles, func(i, j int) bool { return viewportTiles[i].Area > viewportTiles[j].Area })
	sort.SliceStable(marginTiles, func(i, j int) bool { return marginTiles[i].Area > marginTiles[j].Area })

	return Selection{Viewport: viewportTiles, Margin: marginTiles}
}

// selectRows implements spec §4.5 step 2: prefer a single row fully
// covering the expanded viewport's latitude band (the first such row in
// layout order); otherwise take every row that partially covers it. Partial
// rows are all kept: rows whose sub-band another selected row already covers
// are not discarded.
func (p *Picker) selectRows(expanded Rect) []Row {
	top, bottom := expanded.Top(), expanded.Bottom()
	var full []Row
	var partial []Row
	for _, row := range p.rows {
		switch {
		case row.Top >= top && row.Bottom <= bottom:
			full = append(full, row)
		case row.Top > bottom && row.Bottom < top:
			partial = append(partial, row)
		}
	}
	if len(full) > 0 {
		return full[:1]
	}
	return partial
}

// GetLatestTiles is the provider thread's entry point: it copies the
// current selection under the lock and returns the set differences against
// the previously handed-off selection, spec §4.5.
func (p *Picker) GetLatestTiles() (sel Selection, dropped, added []string) {
	p.mu.Lock()
	current := p.selection
	previous := p.lastHandedOff
	p.lastHandedOff = current
	p.mu.Unlock()

	prevIDs := previous.allIDs()
	curIDs := current.allIDs()
	for id := range prevIDs {
		if !curIDs[id] {
			dropped = append(dropped, id)
		}
	}
	for id := range curIDs {
		if !prevIDs[id] {
			added = append(added, id)
		}
	}
	return current, dropped, added
}

// EstimateWorstCaseAndMedian samples the tile layout at the given latitudes
// (spec §4.5: -50°, 0°, +50°, plus tile boundaries) to estimate the
// worst-case and median number of tiles a viewport of the given size would
// intersect, informing the device budget check.
func (p *Picker) EstimateWorstCaseAndMedian(viewportWidthDeg, viewportHeightDeg float64) (worst, median int) {
	latitudes := []float64{-50, 0, 50}
	for _, row := range p.rows {
		latitudes = append(latitudes, row.Top, row.Bottom)
	}
	counts := make([]int, 0, len(latitudes))
	for _, lat := range latitudes {
		v := Viewport{CenterAzimuth: 0, CenterElevation: lat, WidthDeg: viewportWidthDeg, HeightDeg: viewportHeightDeg}
		sel := p.pickTilesLocked(v)
		counts = append(counts, len(sel.Viewport))
		if len(sel.Viewport) > worst {
			worst = len(sel.Viewport)
		}
	}
	if len(counts) == 0 {
		return 0, 0
	}
	sort.Ints(counts)
	median = counts[len(counts)/2]
	return worst, median
}
