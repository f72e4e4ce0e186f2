// Package adaptset implements the adaptation-set façade of spec §4.4
// (component D): it owns one AdaptationSet's representations, drives their
// segment streams, and exposes the small orchestration contract the
// download manager (H) and bitrate controller (F) call into.
package adaptset

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/omafstream/viewport-engine/pkg/bandwidth"
	"github.com/omafstream/viewport-engine/pkg/clock"
	"github.com/omafstream/viewport-engine/pkg/httpclient"
	"github.com/omafstream/viewport-engine/pkg/mpdmodel"
	"github.com/omafstream/viewport-engine/pkg/segstream"
)

// ErrNoRepresentations is returned when an adaptation set has no
// representations to drive.
var ErrNoRepresentations = errors.New("adaptset: no representations")

// StereoMode selects how a stereo-capable set is played back, spec §4.4.
type StereoMode int

const (
	StereoAsDeclared StereoMode = iota
	StereoForceMono
)

// pendingSwitch records a quality or representation change scheduled to
// take effect at a segment boundary, spec §4.4: "a switch is scheduled at
// segment boundary fromSegment".
type pendingSwitch struct {
	representationID string
	fromSegment       int64
}

// AdaptationSet owns the representations of one manifest AdaptationSet and
// the segstream.Stream driving each, spec §4.4.
type AdaptationSet struct {
	Model *mpdmodel.AdaptationSet

	reps       map[string]*segstream.Stream
	frameBufs  map[string]*frameBuffer // one per representation, mirrors reps
	order      []*mpdmodel.Representation // sorted best quality (index 0) to worst
	activeRep  string
	lastSeg    int64 // last segment id processed for the active representation, -1 if none yet
	pending    *pendingSwitch
	stereoMode StereoMode

	client httpclient.Client
	clk    clock.Clock
	bw     *bandwidth.Monitor
	obs    segstream.Observer
}

// New builds an AdaptationSet from a parsed manifest model, creating one
// segstream.Stream per representation. It does not start downloading; call
// StartDownload for that.
func New(model *mpdmodel.AdaptationSet, client httpclient.Client, clk clock.Clock, bw *bandwidth.Monitor, obs segstream.Observer) (*AdaptationSet, error) {
	if len(model.Representations) == 0 {
		return nil, fmt.Errorf("%w: adaptation set %s", ErrNoRepresentations, model.ID)
	}
	as := &AdaptationSet{
		Model:     model,
		reps:      make(map[string]*segstream.Stream, len(model.Representations)),
		frameBufs: make(map[string]*frameBuffer, len(model.Representations)),
		client:    client,
		clk:       clk,
		bw:        bw,
		obs:       obs,
		lastSeg:   -1,
	}
	ordered := append([]*mpdmodel.Representation{}, model.Representations...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Bandwidth > ordered[j].Bandwidth })
	as.order = ordered
	for _, rep := range ordered {
		fb := newFrameBuffer(segmentDurationMs(rep.SegmentTemplate), obs)
		as.frameBufs[rep.ID] = fb
		as.reps[rep.ID] = segstream.New(segstream.Config{
			RepresentationID: rep.ID,
			Bandwidth:        rep.Bandwidth,
			Template:         rep.SegmentTemplate,
			LastSegmentID:    -1,
		}, client, clk, bw, fb)
	}
	as.activeRep = ordered[0].ID
	return as, nil
}

// segmentDurationMs derives a SegmentTemplate's nominal segment duration in
// milliseconds, used to estimate a delivered segment's presentation time
// for the decoder pool, spec §6.4.
func segmentDurationMs(t *mpdmodel.SegmentTemplate) int64 {
	if t == nil || t.Timescale == 0 {
		return 0
	}
	return int64(t.DurationTicks) * 1000 / int64(t.Timescale)
}

// frameBuffer tees a representation's segstream.Observer callbacks into a
// FIFO of segments ready for the decoder pool (spec §4.4's
// readNextVideoFrame), while still forwarding every callback to the
// caller-supplied Observer for cache accounting and extractor buffering.
type frameBuffer struct {
	mu        sync.Mutex
	inner     segstream.Observer
	durMs     int64
	initBytes []byte
	queue     []segstream.Segment
}

func newFrameBuffer(durMs int64, inner segstream.Observer) *frameBuffer {
	if inner == nil {
		inner = segstream.NopObserver{}
	}
	return &frameBuffer{inner: inner, durMs: durMs}
}

func (f *frameBuffer) OnSegmentReady(seg segstream.Segment) {
	f.inner.OnSegmentReady(seg)
	f.mu.Lock()
	defer f.mu.Unlock()
	switch seg.Role {
	case segstream.RoleInit:
		f.initBytes = seg.Bytes
	case segstream.RoleMedia:
		f.queue = append(f.queue, seg)
	}
}

func (f *frameBuffer) OnSegmentReleased(segmentID int64) { f.inner.OnSegmentReleased(segmentID) }

// next pops the earliest queued media segment whose estimated presentation
// time has already arrived (<= currentTimeUs), or reports ok=false if the
// queue is empty or the next segment isn't due yet.
func (f *frameBuffer) next(currentTimeUs int64) (seg segstream.Segment, initBytes []byte, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return segstream.Segment{}, nil, false
	}
	next := f.queue[0]
	presentationUs := next.SegmentID * f.durMs * 1000
	if presentationUs > currentTimeUs {
		return segstream.Segment{}, nil, false
	}
	f.queue = f.queue[1:]
	return next, f.initBytes, true
}

// NrLevels is the number of quality levels the MPD declares for this set,
// used by the bitrate controller to bound its choice, spec §4.6.
func (as *AdaptationSet) NrLevels() int { return len(as.order) }

// RepresentationAt returns the representation model at a quality level
// (0 = highest quality), or nil if level is out of range.
func (as *AdaptationSet) RepresentationAt(level int) *mpdmodel.Representation {
	if level < 0 || level >= len(as.order) {
		return nil
	}
	return as.order[level]
}

// activeStream returns the segstream.Stream for the currently active
// representation.
func (as *AdaptationSet) activeStream() *segstream.Stream {
	return as.reps[as.activeRep]
}

// StartDownload begins fetching the currently active representation from
// its init segment, spec §4.4.
func (as *AdaptationSet) StartDownload(startSegment int64) {
	as.activeStream().StartDownload(startSegment)
}

// StopDownload stops every representation's stream synchronously, spec §4.4.
func (as *AdaptationSet) StopDownload() {
	for _, s := range as.reps {
		s.StopDownloadSync()
	}
}

// StopDownloadAsync stops the active representation's stream, optionally
// resetting scheduling state (seek/viewpoint switch), spec §4.4/§5.
func (as *AdaptationSet) StopDownloadAsync(reset bool) {
	as.activeStream().StopDownloadAsync(true)
	if reset {
		as.pending = nil
		as.lastSeg = -1
	}
}

// ClearDownloadedContent releases any segments still held by every
// representation, spec §4.4.
func (as *AdaptationSet) ClearDownloadedContent() {
	for _, s := range as.reps {
		for s.CachedSegmentCount() > 0 {
			s.ReleaseSegment(-1)
		}
	}
}

// SeekToMs restarts the active stream at fromSegment and returns that
// segment id, spec §4.4. Segment duration information lives
// in the representation's SegmentTemplate; callers supply an
// already-resolved segment id via fromSegment since the exact MPD-to-time
// mapping depends on a segment timeline this package does not re-derive.
func (as *AdaptationSet) SeekToMs(fromSegment int64) int64 {
	as.activeStream().StopDownloadSync()
	as.lastSeg = fromSegment - 1
	as.activeStream().StartDownload(fromSegment)
	return fromSegment
}

// PeekNextSegmentID returns the next segment id the active representation
// will fetch, spec §4.4.
func (as *AdaptationSet) PeekNextSegmentID() int64 {
	return as.activeStream().PeekNextSegmentID()
}

// GetLastSegmentID returns the last segment id fully processed, spec §4.4.
func (as *AdaptationSet) GetLastSegmentID() int64 { return as.lastSeg }

// IsEndOfStream reports whether the active stream reached EndOfStream,
// spec §4.4.
func (as *AdaptationSet) IsEndOfStream() bool { return as.activeStream().IsEndOfStream() }

// IsError reports whether the active stream reached a terminal error, spec
// §4.4.
func (as *AdaptationSet) IsError() bool { return as.activeStream().IsError() }

// IsBuffering reports whether the active stream's cache has run dry while
// it is still active and retrying a failed fetch, the "Buffering" signal
// rather than stalling silently, spec §7.
func (as *AdaptationSet) IsBuffering() bool {
	s := as.activeStream()
	return s.IsActive() && s.CachedSegmentCount() == 0 && s.State() == segstream.StateRetry
}

// MPDUpdateRequired reports whether the active representation has run out
// of known segments and needs a fresh MPD (dynamic manifests), spec §4.4.
func (as *AdaptationSet) MPDUpdateRequired() bool {
	return as.activeStream().State() == segstream.StateIdle && as.GetLastSegmentID() < 0
}

// ProcessSegmentDownload advances the active stream's state machine by one
// tick and applies any quality/representation switch scheduled to take
// effect at the segment boundary just reached. It returns whether the set
// of currently active streams changed (a switch took effect), spec §4.4.
func (as *AdaptationSet) ProcessSegmentDownload(ctx context.Context) (bool, error) {
	streamsChanged := false
	if as.pending != nil && as.PeekNextSegmentID() >= as.pending.fromSegment {
		if err := as.applySwitch(*as.pending); err != nil {
			return false, err
		}
		as.pending = nil
		streamsChanged = true
	}
	changed, err := as.activeStream().Tick(ctx)
	if changed && as.activeStream().State() == segstream.StateIdle {
		as.lastSeg = as.activeStream().PeekNextSegmentID() - 1
	}
	return streamsChanged || changed, err
}

func (as *AdaptationSet) applySwitch(sw pendingSwitch) error {
	next, ok := as.reps[sw.representationID]
	if !ok {
		return fmt.Errorf("adaptset: unknown representation %s", sw.representationID)
	}
	if as.activeRep == sw.representationID {
		return nil
	}
	as.activeRep = sw.representationID
	if next.State() == segstream.StateUninitialized {
		next.StartDownload(sw.fromSegment)
	}
	return nil
}

// SelectQuality schedules a switch to the representation at the given
// quality level (0 = highest), effective at fromSegment, spec §4.4/§4.6.
// nrLevels bounds the level against the declared quality-ranking count so
// the bitrate controller never commands a level beyond what exists.
func (as *AdaptationSet) SelectQuality(level, nrLevels int, fromSegment int64) error {
	if nrLevels <= 0 {
		nrLevels = len(as.order)
	}
	if level < 0 {
		level = 0
	}
	if level >= nrLevels {
		level = nrLevels - 1
	}
	rep := as.RepresentationAt(level)
	if rep == nil {
		return fmt.Errorf("adaptset: quality level %d out of range for %s", level, as.Model.ID)
	}
	as.pending = &pendingSwitch{representationID: rep.ID, fromSegment: fromSegment}
	return nil
}

// SelectRepresentation schedules a switch to an explicit representation id
// (used by extractor sets bound via @dependencyId rather than a fixed
// quality ladder), spec §4.4.
func (as *AdaptationSet) SelectRepresentation(representationID string, fromSegment int64) error {
	if _, ok := as.reps[representationID]; !ok {
		return fmt.Errorf("adaptset: unknown representation %s", representationID)
	}
	as.pending = &pendingSwitch{representationID: representationID, fromSegment: fromSegment}
	return nil
}

// VideoFrame is the decoder-pool handoff unit of spec §6.4: one delivered
// segment's bytes paired with enough presentation metadata for the decoder
// pool to schedule it.
type VideoFrame struct {
	InitSegmentBytes   []byte
	SegmentBytes       []byte
	SegmentID          int64
	PresentationTimeUs int64
	DurationUs         int64
	StreamID           string
	MediaContent       string
}

// ReadNextVideoFrame implements spec §4.4's readNextVideoFrame(currentTimeUs):
// it hands the decoder pool the earliest buffered media segment of the
// active representation whose estimated presentation time has arrived, the
// §6.4 (initSegmentBytes, segmentBytes, segmentId, presentationTimeUs,
// durationUs, streamId, mediaContent) tuple. ok is false when nothing is
// ready yet.
func (as *AdaptationSet) ReadNextVideoFrame(currentTimeUs int64) (frame VideoFrame, ok bool) {
	fb, found := as.frameBufs[as.activeRep]
	if !found {
		return VideoFrame{}, false
	}
	seg, initBytes, ready := fb.next(currentTimeUs)
	if !ready {
		return VideoFrame{}, false
	}
	return VideoFrame{
		InitSegmentBytes:   initBytes,
		SegmentBytes:       seg.Bytes,
		SegmentID:          seg.SegmentID,
		PresentationTimeUs: seg.SegmentID * fb.durMs * 1000,
		DurationUs:         fb.durMs * 1000,
		StreamID:           as.Model.ID,
		MediaContent:       as.Model.MimeType,
	}, true
}

// GetCurrentVideoStreams returns the representation id(s) currently active.
// A mono or extractor set always has exactly one; a two-track stereo set
// forced to mono (ForceVideoTo) also reports one.
func (as *AdaptationSet) GetCurrentVideoStreams() []string {
	return []string{as.activeRep}
}

// GetCurrentBandwidth returns the declared bandwidth of the active
// representation, spec §4.4.
func (as *AdaptationSet) GetCurrentBandwidth() uint32 {
	for _, r := range as.order {
		if r.ID == as.activeRep {
			return r.Bandwidth
		}
	}
	return 0
}

// ForceVideoTo collapses a frame-packed or two-track stereo set to mono by
// fixing the active representation to the one carrying the "main" channel
// (here, the highest-quality representation), spec §4.4. Whether this
// yields correct stereo-to-mono degradation or a silent quality loss is an
// open question carried from spec §9; this port preserves the original's
// behaviour rather than resolving the ambiguity.
func (as *AdaptationSet) ForceVideoTo(mode StereoMode) {
	as.stereoMode = mode
	if mode == StereoForceMono && len(as.order) > 0 {
		as.activeRep = as.order[0].ID
	}
}

// StreamFor returns the segstream.Stream for a representation id, for
// components (extractor assembler, tests) that need direct access.
func (as *AdaptationSet) StreamFor(representationID string) *segstream.Stream {
	return as.reps[representationID]
}

// ActiveRepresentationID returns the currently active representation id.
func (as *AdaptationSet) ActiveRepresentationID() string { return as.activeRep }
