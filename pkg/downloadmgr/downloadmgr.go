// Package downloadmgr implements the top-level orchestrator of spec §4.8
// (component H): it owns the MPD model, every adaptation-set façade and
// extractor assembler, the tile picker, and the bitrate controller, and
// drives them from a single service-loop Tick call per spec §4.8's six
// steps.
package downloadmgr

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/omafstream/viewport-engine/pkg/adaptset"
	"github.com/omafstream/viewport-engine/pkg/bandwidth"
	"github.com/omafstream/viewport-engine/pkg/bitrate"
	"github.com/omafstream/viewport-engine/pkg/clock"
	"github.com/omafstream/viewport-engine/pkg/extractor"
	"github.com/omafstream/viewport-engine/pkg/httpclient"
	"github.com/omafstream/viewport-engine/pkg/mpdmodel"
	"github.com/omafstream/viewport-engine/pkg/segstream"
	"github.com/omafstream/viewport-engine/pkg/tilepicker"
)

// ErrScheduling covers an invalid lifecycle transition or a service-loop
// call made outside its required state, spec §7.
var ErrScheduling = errors.New("downloadmgr: scheduling error")

// State is one node of the manager's lifecycle, spec §4.8.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateInitialized
	StateDownloading
	StateStopped
	StateEndOfStream
	StateStreamError
	StateConnectionError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateInitializing:
		return "Initializing"
	case StateInitialized:
		return "Initialized"
	case StateDownloading:
		return "Downloading"
	case StateStopped:
		return "Stopped"
	case StateEndOfStream:
		return "EndOfStream"
	case StateStreamError:
		return "StreamError"
	case StateConnectionError:
		return "ConnectionError"
	default:
		return "Unknown"
	}
}

// unit is one drivable component of the service loop: either a plain
// adaptation set (audio, base video, overlay, orphan tile) or an extractor
// assembler. Folding both behind one interface lets Tick's steps 3/5/6 walk
// a single slice instead of branching on kind everywhere.
type unit interface {
	ProcessSegmentDownload(ctx context.Context) (bool, error)
	IsEndOfStream() bool
	IsError() bool
	StartDownload(fromSegment int64)
	StopDownload()
}

// assemblerUnit adapts extractor.Assembler to the unit interface (it already
// has the right shape except StartDownload/ProcessSegmentDownload names).
type assemblerUnit struct{ a *extractor.Assembler }

func (u assemblerUnit) ProcessSegmentDownload(ctx context.Context) (bool, error) { return u.a.Tick(ctx) }
func (u assemblerUnit) IsEndOfStream() bool                                     { return u.a.IsEndOfStream() }
func (u assemblerUnit) IsError() bool                                           { return u.a.IsError() }
func (u assemblerUnit) StartDownload(fromSegment int64)                         { u.a.StartFrom(fromSegment) }
func (u assemblerUnit) StopDownload()                                           { u.a.Stop() }

type adaptsetUnit struct{ s *adaptset.AdaptationSet }

func (u adaptsetUnit) ProcessSegmentDownload(ctx context.Context) (bool, error) {
	return u.s.ProcessSegmentDownload(ctx)
}
func (u adaptsetUnit) IsEndOfStream() bool              { return u.s.IsEndOfStream() }
func (u adaptsetUnit) IsError() bool                    { return u.s.IsError() }
func (u adaptsetUnit) StartDownload(fromSegment int64)  { u.s.StartDownload(fromSegment) }
func (u adaptsetUnit) StopDownload()                    { u.s.StopDownload() }

// tileGroup is the bitrate controller's classification of a foreground,
// margin, or background tile adaptation set, spec §4.6/§4.8.
type tileGroup struct {
	id  string
	set *adaptset.AdaptationSet
}

// Manager is the download orchestrator of spec §4.8.
type Manager struct {
	mu sync.Mutex

	client httpclient.Client
	clk    clock.Clock
	obs    segstream.Observer // observer for non-tile, non-extractor sets (audio, base video, overlay)
	budget tilepicker.Budget

	bw          *bandwidth.Monitor
	bitrateCtrl *bitrate.Controller
	picker      *tilepicker.Picker

	// RefreshMPD, when set, is called by Tick to re-fetch the current MPD
	// document for a dynamic presentation; nil disables refresh (static
	// MPDs never need it).
	RefreshMPD func(ctx context.Context) ([]byte, error)

	mpd           *mpdmodel.MPD
	extractors    []*extractor.Assembler
	baseUnits     []unit
	tileSetsByID  map[string]*adaptset.AdaptationSet // every video-tile set, including extractor-bound ones
	allUnits      []unit

	state               State
	haveInitialViewport bool
	nextRefreshAtMs      int64
}

// New constructs an idle Manager. client and clk are shared by every
// representation's segstream.Stream; budget bounds the tile picker's
// concurrent tile count, spec §4.5.
func New(client httpclient.Client, clk clock.Clock, budget tilepicker.Budget) *Manager {
	return &Manager{
		client:       client,
		clk:          clk,
		obs:          segstream.NopObserver{},
		budget:       budget,
		bw:           bandwidth.New(clk),
		bitrateCtrl:  bitrate.New(clk),
		state:        StateIdle,
		tileSetsByID: make(map[string]*adaptset.AdaptationSet),
	}
}

// SetSegmentObserver installs the Observer used for sets that are neither
// tile nor extractor adaptation sets (audio, base video, overlay): the host
// decoder pool wires its own consumption of those bytes through it.
func (m *Manager) SetSegmentObserver(obs segstream.Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if obs == nil {
		obs = segstream.NopObserver{}
	}
	m.obs = obs
}

// State returns the manager's current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LoadMPD parses an MPD document, classifies every adaptation set, binds
// extractor bundles, and builds the tile picker's geometry, spec §4.2/§4.8.
// The manager transitions to Initializing; SetInitialViewport then completes
// the transition to Initialized.
func (m *Manager) LoadMPD(data []byte) error {
	parsed, err := mpdmodel.Parse(data)
	if err != nil {
		return fmt.Errorf("downloadmgr: load MPD: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return fmt.Errorf("%w: LoadMPD called in state %s", ErrScheduling, m.state)
	}

	tileModels, extractorModels, baseUnits, err := m.classifyAdaptationSetsLocked(parsed)
	if err != nil {
		return err
	}

	rows := buildTileRows(tileModels)
	picker := tilepicker.New(rows, m.budget)

	tileSets, tileBufs, err := m.buildTileSetsLocked(tileModels, picker)
	if err != nil {
		return err
	}
	extractors, boundTileIDs, err := m.buildExtractorsLocked(extractorModels, tileSets, tileBufs)
	if err != nil {
		return err
	}
	// Tile sets never referenced by an extractor have nothing to drive them
	// through an assembler; treat them as plain units so they still get
	// started and serviced, spec §4.2's "tile sets are never started,
	// stopped, or switched directly" applies to *bound* tile sets only.
	for id, ts := range tileSets {
		if !boundTileIDs[id] {
			baseUnits = append(baseUnits, adaptsetUnit{ts})
		}
	}

	m.picker = picker
	m.mpd = parsed
	m.tileSetsByID = tileSets
	m.extractors = extractors
	m.baseUnits = baseUnits

	m.allUnits = append([]unit{}, baseUnits...)
	for _, a := range extractors {
		m.allUnits = append(m.allUnits, assemblerUnit{a})
	}

	m.state = StateInitializing
	m.maybeCompleteInitializationLocked()
	return nil
}

// classifyAdaptationSetsLocked sorts every adaptation set of the MPD's
// first period into tile models (left uninstantiated until the device
// budget has been sampled against their geometry), extractor models, and
// already-built plain units (audio, base video, overlay), spec §4.2.
func (m *Manager) classifyAdaptationSetsLocked(parsed *mpdmodel.MPD) (map[string]*mpdmodel.AdaptationSet, []*mpdmodel.AdaptationSet, []unit, error) {
	if parsed.Period == nil {
		return nil, nil, nil, mpdmodel.ErrNoPeriod
	}

	tileModels := make(map[string]*mpdmodel.AdaptationSet)
	var extractorModels []*mpdmodel.AdaptationSet
	var baseUnits []unit

	for _, as := range parsed.Period.AdaptationSets {
		switch as.Role {
		case mpdmodel.RoleVideoTile:
			tileModels[as.ID] = as
		case mpdmodel.RoleVideoExtractor:
			extractorModels = append(extractorModels, as)
		default:
			built, err := adaptset.New(as, m.client, m.clk, m.bw, m.obs)
			if err != nil {
				return nil, nil, nil, err
			}
			baseUnits = append(baseUnits, adaptsetUnit{built})
		}
	}
	return tileModels, extractorModels, baseUnits, nil
}

// buildTileSetsLocked instantiates one adaptset.AdaptationSet per tile
// model, dropping any representation the sampled device budget cannot
// support, spec §4.5: "Representations that would overflow the budget are
// marked not supported for the device." A tile set left with no supported
// representation fails LoadMPD with tilepicker.ErrResource: no quality
// level exists that this device could decode at the picker's sampled
// worst-case concurrent tile count, spec §7/§8.
func (m *Manager) buildTileSetsLocked(tileModels map[string]*mpdmodel.AdaptationSet, picker *tilepicker.Picker) (map[string]*adaptset.AdaptationSet, map[string]*extractor.Buffer, error) {
	tileSets := make(map[string]*adaptset.AdaptationSet, len(tileModels))
	tileBufs := make(map[string]*extractor.Buffer, len(tileModels))
	for id, as := range tileModels {
		supported := make([]*mpdmodel.Representation, 0, len(as.Representations))
		for _, rep := range as.Representations {
			if picker.Supports(rep.Width, rep.Height, rep.FrameRate) {
				supported = append(supported, rep)
			}
		}
		if len(supported) == 0 {
			return nil, nil, fmt.Errorf("%w: tile set %s: no representation fits the device pixel budget", tilepicker.ErrResource, id)
		}
		filtered := *as
		filtered.Representations = supported
		buf := extractor.NewBuffer()
		built, err := adaptset.New(&filtered, m.client, m.clk, m.bw, buf)
		if err != nil {
			return nil, nil, err
		}
		tileSets[id] = built
		tileBufs[id] = buf
	}
	return tileSets, tileBufs, nil
}

// buildExtractorsLocked binds every extractor model to the (already
// budget-filtered) supporting tile sets it depends on, spec §4.2/§4.7. It
// also returns the set of tile ids bound to some extractor, so the caller
// can fold the rest in as plain units.
func (m *Manager) buildExtractorsLocked(extractorModels []*mpdmodel.AdaptationSet, tileSets map[string]*adaptset.AdaptationSet, tileBufs map[string]*extractor.Buffer) ([]*extractor.Assembler, map[string]bool, error) {
	var assemblers []*extractor.Assembler
	boundTileIDs := make(map[string]bool)
	for _, model := range extractorModels {
		if len(model.DependsOnAdaptationSetIDs) == 0 {
			return nil, nil, fmt.Errorf("%w: extractor %s has no supporting adaptation sets bound", mpdmodel.ErrConfig, model.ID)
		}
		extBuf := extractor.NewBuffer()
		extSet, err := adaptset.New(model, m.client, m.clk, m.bw, extBuf)
		if err != nil {
			return nil, nil, err
		}
		supporting := make(map[string]*adaptset.AdaptationSet, len(model.DependsOnAdaptationSetIDs))
		supportingBufs := make(map[string]*extractor.Buffer, len(model.DependsOnAdaptationSetIDs))
		for _, depID := range model.DependsOnAdaptationSetIDs {
			ts, ok := tileSets[depID]
			if !ok {
				return nil, nil, fmt.Errorf("%w: extractor %s depends on unknown set %s", mpdmodel.ErrConfig, model.ID, depID)
			}
			supporting[depID] = ts
			supportingBufs[depID] = tileBufs[depID]
			boundTileIDs[depID] = true
		}
		asm, err := extractor.New(extSet, extBuf, supporting, supportingBufs, model.DependsOnAdaptationSetIDs, m.clk, nopAssembledObserver{})
		if err != nil {
			return nil, nil, err
		}
		assemblers = append(assemblers, asm)
	}
	return assemblers, boundTileIDs, nil
}

type nopAssembledObserver struct{}

func (nopAssembledObserver) OnAssembledSegment(extractor.AssembledSegment) {}

// buildTileRows groups classified tile adaptation sets into latitude bands
// for the tile picker, spec §4.5: tiles sharing the same (top, bottom)
// elevation bounds (rounded to damp floating-point jitter across an
// encoder's tile grid) belong to the same row.
func buildTileRows(tileModels map[string]*mpdmodel.AdaptationSet) []tilepicker.Row {
	type key struct{ top, bottom int }
	rows := make(map[key]*tilepicker.Row)

	for id, as := range tileModels {
		if as.Coverage == nil || len(as.Representations) == 0 {
			continue
		}
		top := as.Coverage.CenterElevation + as.Coverage.ElevationRange/2
		bottom := as.Coverage.CenterElevation - as.Coverage.ElevationRange/2
		k := key{int(math.Round(top)), int(math.Round(bottom))}
		row, ok := rows[k]
		if !ok {
			row = &tilepicker.Row{LatCenter: as.Coverage.CenterElevation, Top: top, Bottom: bottom}
			rows[k] = row
		}
		rep := as.Representations[0]
		row.Tiles = append(row.Tiles, tilepicker.Tile{
			AdaptationSetID: id,
			Coverage: tilepicker.Rect{
				CenterAzimuth:   as.Coverage.CenterAzimuth,
				CenterElevation: as.Coverage.CenterElevation,
				AzimuthWidth:    as.Coverage.AzimuthRange,
				ElevationHeight: as.Coverage.ElevationRange,
			},
			Width: rep.Width, Height: rep.Height, FrameRate: rep.FrameRate,
		})
	}

	out := make([]tilepicker.Row, 0, len(rows))
	for _, row := range rows {
		sort.SliceStable(row.Tiles, func(i, j int) bool {
			return row.Tiles[i].Coverage.CenterAzimuth < row.Tiles[j].Coverage.CenterAzimuth
		})
		out = append(out, *row)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Top > out[j].Top })
	return out
}

// SetInitialViewport publishes the renderer thread's first viewport,
// unblocking completeInitialization, spec §4.8.
func (m *Manager) SetInitialViewport(v tilepicker.Viewport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.picker == nil {
		return
	}
	m.picker.SetViewport(v)
	m.haveInitialViewport = true
	m.maybeCompleteInitializationLocked()
}

func (m *Manager) maybeCompleteInitializationLocked() {
	if m.state == StateInitializing && m.mpd != nil && m.haveInitialViewport {
		m.state = StateInitialized
	}
}

// ValidatePlaybackTimeMs enforces spec §9's multi-period restriction: since
// mpdmodel only ever retains the first Period (see mpdmodel.Parse), any
// requested playback time beyond that period's declared duration is
// rejected explicitly rather than silently clamped or left to run past the
// end of the only period this engine knows about.
func (m *Manager) ValidatePlaybackTimeMs(targetMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mpd == nil || m.mpd.Period == nil {
		return fmt.Errorf("%w: no period loaded", ErrScheduling)
	}
	if durMs := m.mpd.Period.Duration.Milliseconds(); durMs > 0 && targetMs > durMs {
		return fmt.Errorf("%w: playback time %dms exceeds period[0] duration %dms", ErrScheduling, targetMs, durMs)
	}
	return nil
}

// StartDownload transitions Initialized -> Downloading and starts every
// unit from its first segment, spec §4.8.
func (m *Manager) StartDownload() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateInitialized {
		return fmt.Errorf("%w: StartDownload called in state %s", ErrScheduling, m.state)
	}
	for _, u := range m.allUnits {
		u.StartDownload(0)
	}
	m.state = StateDownloading
	return nil
}

// Stop halts every unit synchronously and transitions to Stopped, spec
// §4.8 (the "user pause" branch).
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.allUnits {
		u.StopDownload()
	}
	m.state = StateStopped
}

// Tick runs one pass of the service loop of spec §4.8: refresh the tile
// selection, refresh the MPD if due, service every fetch state machine and
// assembler, re-evaluate the bitrate controller, and update the lifecycle
// state from end-of-stream/error signals.
func (m *Manager) Tick(ctx context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateDownloading {
		return m.state, nil
	}

	// Step 1: the renderer-side tile selection is already current (E is
	// driven independently by SetInitialViewport/Picker.SetViewport); H
	// only needs to read it, which step 5 does when classifying groups.

	// Step 2: MPD refresh for dynamic presentations.
	if m.mpd.Type == "dynamic" && m.RefreshMPD != nil && m.clk.NowMs() >= m.nextRefreshAtMs {
		if err := m.refreshLocked(ctx); err != nil {
			m.state = StateConnectionError
			if errors.Is(err, mpdmodel.ErrCardinalityChanged) {
				m.state = StateStreamError
			}
			return m.state, err
		}
		m.nextRefreshAtMs = m.clk.NowMs() + m.mpd.MinimumUpdatePeriod.Milliseconds()
	}

	// Steps 3-4: service every extractor (which internally services its
	// supporting tile sets and concatenates when ready) and every plain
	// unit.
	var firstErr error
	for _, u := range m.allUnits {
		if _, err := u.ProcessSegmentDownload(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	// Step 5: bitrate controller.
	m.applyBitrateLocked()

	if firstErr != nil {
		m.state = StateStreamError
		return m.state, firstErr
	}

	// Step 6: end-of-stream / error aggregation.
	m.state = m.aggregateTerminalStateLocked()
	return m.state, nil
}

func (m *Manager) refreshLocked(ctx context.Context) error {
	data, err := m.RefreshMPD(ctx)
	if err != nil {
		return fmt.Errorf("downloadmgr: refresh MPD: %w", err)
	}
	next, err := mpdmodel.Parse(data)
	if err != nil {
		return fmt.Errorf("downloadmgr: parse refreshed MPD: %w", err)
	}
	if err := m.mpd.Refresh(next); err != nil {
		return fmt.Errorf("downloadmgr: %w", err)
	}
	return nil
}

// applyBitrateLocked classifies every tile set by the picker's latest
// selection into foreground/margin/background, runs the controller, and
// schedules a quality switch on each group's sets at their next segment
// boundary, spec §4.6/§4.8 step 5.
func (m *Manager) applyBitrateLocked() {
	if m.picker == nil || len(m.tileSetsByID) == 0 {
		return
	}
	sel, _, _ := m.picker.GetLatestTiles()
	inViewport := make(map[string]bool, len(sel.Viewport))
	for _, t := range sel.Viewport {
		inViewport[t.AdaptationSetID] = true
	}
	inMargin := make(map[string]bool, len(sel.Margin))
	for _, t := range sel.Margin {
		inMargin[t.AdaptationSetID] = true
	}

	var fg, mg, bg []tileGroup
	for id, set := range m.tileSetsByID {
		switch {
		case inViewport[id]:
			fg = append(fg, tileGroup{id, set})
		case inMargin[id]:
			mg = append(mg, tileGroup{id, set})
		default:
			bg = append(bg, tileGroup{id, set})
		}
	}
	if len(fg) == 0 {
		// Nothing classified as foreground yet (e.g. before the renderer's
		// first viewport reaches the picker); nothing to schedule.
		return
	}

	fgPolicy := policyFor(fg)
	mgPolicy := policyFor(mg)
	bgPolicy := policyFor(bg)
	overheadBps := uint64(0)
	levels := m.bitrateCtrl.Update(m.clk.NowMs(), fgPolicy, mgPolicy, bgPolicy, m.bw.EstimatedBandwidthBps(), overheadBps)

	applyLevel := func(groups []tileGroup, level int, nrLevels int) {
		for _, g := range groups {
			_ = g.set.SelectQuality(level, nrLevels, g.set.PeekNextSegmentID())
		}
	}
	applyLevel(fg, levels.Foreground, fgPolicy.NrLevels)
	applyLevel(mg, levels.Margin, mgPolicy.NrLevels)
	applyLevel(bg, levels.Background, bgPolicy.NrLevels)
}

// policyFor builds a bitrate.Policy from one representative set's quality
// ladder: OMAF tile grids of equal size share one bandwidth ladder, so the
// first set in the group stands in for the whole group, spec §4.6.
func policyFor(groups []tileGroup) bitrate.Policy {
	if len(groups) == 0 {
		return bitrate.Policy{NrLevels: 1, CostAtLevel: func(int) uint32 { return 0 }}
	}
	rep := groups[0].set
	return bitrate.Policy{
		NrLevels: rep.NrLevels(),
		CostAtLevel: func(level int) uint32 {
			r := rep.RepresentationAt(level)
			if r == nil {
				return 0
			}
			return r.Bandwidth
		},
	}
}

// aggregateTerminalStateLocked implements spec §4.8 step 6: a single
// errored unit is already handled by Tick before this is reached; here,
// reaching end-of-stream on every unit ends the session, while a subset
// reaching it leaves the manager Downloading so the others can finish.
func (m *Manager) aggregateTerminalStateLocked() State {
	if len(m.allUnits) == 0 {
		return m.state
	}
	for _, u := range m.allUnits {
		if !u.IsEndOfStream() {
			return StateDownloading
		}
	}
	return StateEndOfStream
}

// BandwidthMonitor exposes the shared bandwidth estimator for hosts that
// want to report it (metrics, diagnostics).
func (m *Manager) BandwidthMonitor() *bandwidth.Monitor { return m.bw }

// Picker exposes the tile picker for the renderer thread to drive, spec §5.
func (m *Manager) Picker() *tilepicker.Picker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.picker
}

// MPD returns the currently loaded manifest model, or nil before LoadMPD.
func (m *Manager) MPD() *mpdmodel.MPD {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mpd
}
