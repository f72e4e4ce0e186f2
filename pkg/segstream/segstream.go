// Package segstream drives the per-representation segment fetch state
// machine of spec §4.3 (component C): init segment, media segments,
// retries, abort, byte-range sub-segment prefetch, and cache accounting.
package segstream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/omafstream/viewport-engine/pkg/bandwidth"
	"github.com/omafstream/viewport-engine/pkg/clock"
	"github.com/omafstream/viewport-engine/pkg/httpclient"
	"github.com/omafstream/viewport-engine/pkg/mpdmodel"
)

// State is one node of the fetch state machine diagrammed in spec §4.3.
type State int

const (
	StateUninitialized State = iota
	StateDownloadingInit
	StateIdle
	StateDownloadingMedia
	StateRetry
	StateError
	StateEndOfStream
	StateDownloadingMediaBeforeStop
	StateAborting
	StateInactive
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateDownloadingInit:
		return "DownloadingInit"
	case StateIdle:
		return "Idle"
	case StateDownloadingMedia:
		return "DownloadingMedia"
	case StateRetry:
		return "Retry"
	case StateError:
		return "Error"
	case StateEndOfStream:
		return "EndOfStream"
	case StateDownloadingMediaBeforeStop:
		return "DownloadingMediaBeforeStop"
	case StateAborting:
		return "Aborting"
	case StateInactive:
		return "Inactive"
	default:
		return "Unknown"
	}
}

// SegmentRole distinguishes the three kinds of payload a Stream can deliver,
// spec §3.2.
type SegmentRole int

const (
	RoleInit SegmentRole = iota
	RoleMedia
	RoleSidxPrefix
)

// ByteRange is an inclusive byte range for an on-demand single-file
// representation's sub-segment, spec §3.2.
type ByteRange struct {
	StartInc int64
	EndInc   int64
}

// Segment is a contiguous byte buffer delivered by the stream, spec §3.2.
type Segment struct {
	InitSegmentID      string
	SegmentID          int64
	Role               SegmentRole
	ByteRange          *ByteRange
	Bytes              []byte
	DownloadDurationMs int64
	SizeBytes          int64
}

const (
	// defaultMaxCachedSegments is the initial cache target, spec §4.3.
	defaultMaxCachedSegments = 3
	// maxCachedSegmentsCeiling bounds the dynamic cache growth, spec §4.3.
	maxCachedSegmentsCeiling = 15
	// maxRetries is the retry budget before a transport error becomes
	// terminal, spec §4.3/§7.
	maxRetries = 30
	// retryBackoff is the fixed spacing between retry attempts, spec §4.3.
	retryBackoff = time.Second
	// sidxPrefixBytes is how much of a media segment is fetched to learn
	// its sub-segment byte ranges, spec §4.3.
	sidxPrefixBytes = 1024
	// defaultSegmentTimeoutMs is the representation-defined HTTP timeout
	// when the representation does not override it, spec §5.
	defaultSegmentTimeoutMs = 5000
)

// ErrTransport is the error a Stream surfaces, spec §7's TransportError
// kind.
var ErrTransport = errors.New("segstream: transport error")

// Observer receives lifecycle callbacks a Stream emits while servicing. All
// methods are called synchronously from within Tick/StopDownloadSync on the
// caller's goroutine.
type Observer interface {
	// OnSegmentReady is called once a segment has been successfully handed
	// off to the downstream consumer (e.g. the extractor assembler or the
	// ISOBMFF consumer). Cache accounting increments only after this call
	// returns without error, per spec §3.2.
	OnSegmentReady(seg Segment)
	// OnSegmentReleased is called when a cached segment is released by the
	// consumer, decrementing cache accounting, spec §3.2.
	OnSegmentReleased(segmentID int64)
}

// NopObserver is a no-op Observer for tests and hosts that don't need
// accounting callbacks.
type NopObserver struct{}

func (NopObserver) OnSegmentReady(Segment)          {}
func (NopObserver) OnSegmentReleased(int64) {}

// Config bundles the per-representation parameters a Stream is constructed
// with.
type Config struct {
	RepresentationID string
	Bandwidth        uint32
	Template         *mpdmodel.SegmentTemplate
	IsOnDemand       bool // enables sidx byte-range prefetch, spec §4.3
	IsStaticLastRep  bool // last representation of a static MPD: 404 on last segment is EndOfStream, not Error
	LastSegmentID    int64 // -1 if unknown (dynamic/live)
	TimeoutMs        int64
	TargetBufferMs   int64
}

// Stream is the per-representation fetch state machine of spec §4.3.
type Stream struct {
	cfg    Config
	client httpclient.Client
	clk    clock.Clock
	bw     *bandwidth.Monitor
	obs    Observer

	mu sync.Mutex

	state     State
	nextSeg   int64
	retries   int
	retryAtMs int64

	cachedSegmentCount int
	maxCachedSegments  int
	downloadDurSumMs   int64
	downloadDurCount   int

	abortRequested bool
	stopRequested  bool

	initSegmentID string
	segDurationMs int64

	sidxRetries int
	sidxDone    map[int64]bool
}

// New constructs a Stream in state Uninitialized.
func New(cfg Config, client httpclient.Client, clk clock.Clock, bw *bandwidth.Monitor, obs Observer) *Stream {
	if obs == nil {
		obs = NopObserver{}
	}
	if cfg.TimeoutMs == 0 {
		cfg.TimeoutMs = defaultSegmentTimeoutMs
	}
	var segDurationMs int64
	if cfg.Template != nil && cfg.Template.Timescale > 0 {
		segDurationMs = int64(cfg.Template.DurationTicks) * 1000 / int64(cfg.Template.Timescale)
	}
	return &Stream{
		cfg:               cfg,
		client:            client,
		clk:               clk,
		bw:                bw,
		obs:               obs,
		state:             StateUninitialized,
		maxCachedSegments: defaultMaxCachedSegments,
		initSegmentID:     cfg.RepresentationID, // stable per representation, spec §3.2
		segDurationMs:     segDurationMs,
		sidxDone:          make(map[int64]bool),
	}
}

// State returns the current machine state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsEndOfStream reports whether the stream has reached a normal terminal
// state, spec §7.
func (s *Stream) IsEndOfStream() bool { return s.State() == StateEndOfStream }

// IsError reports whether the stream has reached a terminal transport
// error, spec §7.
func (s *Stream) IsError() bool { return s.State() == StateError }

// IsActive reports whether the stream is doing anything other than sitting
// idle/inactive/terminal.
func (s *Stream) IsActive() bool {
	switch s.State() {
	case StateInactive, StateUninitialized:
		return false
	default:
		return true
	}
}

// CachedSegmentCount returns the current cache occupancy, spec §3.2/§4.3.
func (s *Stream) CachedSegmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cachedSegmentCount
}

// PeekNextSegmentID returns the segment id the next fetch will request.
func (s *Stream) PeekNextSegmentID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSeg
}

// StartDownload transitions Uninitialized -> DownloadingInit, beginning the
// fetch loop at fromSegment.
func (s *Stream) StartDownload(fromSegment int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateDownloadingInit
	s.nextSeg = fromSegment
	s.retries = 0
	s.abortRequested = false
	s.stopRequested = false
}

// StopDownloadSync blocks until the current HTTP request completes (the
// current Tick call, if in flight, already ran to completion since Tick is
// synchronous) and then deactivates, spec §4.3.
func (s *Stream) StopDownloadSync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateInactive
	s.abortRequested = false
	s.stopRequested = false
}

// StopDownloadAsync requests a graceful (abort=false) or immediate
// (abort=true) stop, observable via HasCompleted on subsequent ticks, spec
// §4.3/§5.
func (s *Stream) StopDownloadAsync(abort bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopRequested = true
	s.abortRequested = abort
	if abort {
		s.state = StateAborting
	} else if s.state == StateDownloadingMedia {
		s.state = StateDownloadingMediaBeforeStop
	} else {
		s.state = StateInactive
	}
}

// HasCompleted reports whether an async stop has finished.
func (s *Stream) HasCompleted() bool {
	return s.State() == StateInactive
}

// hasCapacity reports whether the cache has room for another media segment.
func (s *Stream) hasCapacity() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cachedSegmentCount < s.maxCachedSegments
}

// Tick performs one synchronous unit of work for the current state and
// returns whether the state changed. It is the poll-driven "generator"
// spec §9 calls for: no coroutines, just a state-step object advanced by
// the service loop.
func (s *Stream) Tick(ctx context.Context) (bool, error) {
	switch s.State() {
	case StateDownloadingInit:
		return s.tickInit(ctx)
	case StateIdle:
		return s.tickIdleToMedia(ctx)
	case StateDownloadingMedia:
		return s.tickMedia(ctx)
	case StateRetry:
		return s.tickRetry()
	case StateDownloadingMediaBeforeStop:
		return s.tickStopBeforeStop(ctx)
	case StateAborting:
		return s.tickAborting(ctx)
	default:
		return false, nil
	}
}

func (s *Stream) tickInit(ctx context.Context) (bool, error) {
	if s.cfg.Template == nil {
		s.setState(StateError)
		return true, fmt.Errorf("%w: no segment template for %s", ErrTransport, s.cfg.RepresentationID)
	}
	url := s.cfg.Template.InitURL(s.cfg.RepresentationID, s.cfg.Bandwidth)
	resp, err := s.client.Get(ctx, httpclient.Request{URL: url, RangeStartInc: -1, TimeoutMs: s.cfg.TimeoutMs})
	if err != nil || resp.State != httpclient.StateCompleted || resp.HTTPStatus >= 400 {
		s.setState(StateError)
		return true, fmt.Errorf("%w: init segment %s: %v (status %d)", ErrTransport, url, err, resp.HTTPStatus)
	}
	s.obs.OnSegmentReady(Segment{
		InitSegmentID: s.initSegmentID,
		SegmentID:     -1,
		Role:          RoleInit,
		Bytes:         resp.Body,
		SizeBytes:     resp.BytesDownloaded,
	})
	s.setState(StateIdle)
	return true, nil
}

func (s *Stream) tickIdleToMedia(ctx context.Context) (bool, error) {
	if !s.hasCapacity() {
		return false, nil
	}
	s.setState(StateDownloadingMedia)
	return true, nil
}

func (s *Stream) tickMedia(ctx context.Context) (bool, error) {
	return s.fetchMedia(ctx, false)
}

func (s *Stream) tickStopBeforeStop(ctx context.Context) (bool, error) {
	changed, err := s.fetchMedia(ctx, true)
	if s.State() == StateIdle {
		s.setState(StateInactive)
		return true, err
	}
	return changed, err
}

func (s *Stream) tickAborting(ctx context.Context) (bool, error) {
	s.setState(StateInactive)
	return true, nil
}

// fetchMedia downloads the next media segment. finishing is true when
// called while winding down for an async stop: on success it still
// delivers the segment (so in-flight bytes aren't wasted) but the caller
// forces a transition to Inactive afterward instead of looping.
func (s *Stream) fetchMedia(ctx context.Context, finishing bool) (bool, error) {
	segID := s.PeekNextSegmentID()
	url := s.mediaURL(segID)
	start := s.clk.NowMs()
	resp, err := s.client.Get(ctx, httpclient.Request{URL: url, RangeStartInc: -1, TimeoutMs: s.cfg.TimeoutMs})
	elapsed := s.clk.NowMs() - start

	if resp != nil && resp.HTTPStatus == 404 && s.isLastSegment(segID) {
		s.setState(StateEndOfStream)
		return true, nil
	}
	if err != nil || resp == nil || resp.State != httpclient.StateCompleted || resp.HTTPStatus >= 400 {
		return s.handleMediaFailure()
	}

	if s.bw != nil {
		s.bw.NotifyDownloadCompleted(elapsed, uint64(resp.BytesDownloaded))
	}
	s.obs.OnSegmentReady(Segment{
		InitSegmentID:      s.initSegmentID,
		SegmentID:          segID,
		Role:               RoleMedia,
		Bytes:              resp.Body,
		DownloadDurationMs: elapsed,
		SizeBytes:          resp.BytesDownloaded,
	})

	s.mu.Lock()
	s.cachedSegmentCount++
	s.nextSeg = segID + 1
	s.retries = 0
	s.recordDownloadDurationLocked(elapsed)
	s.mu.Unlock()

	if finishing {
		s.setState(StateIdle)
		return true, nil
	}
	s.setState(StateIdle)
	return true, nil
}

func (s *Stream) handleMediaFailure() (bool, error) {
	s.mu.Lock()
	s.retries++
	retries := s.retries
	s.mu.Unlock()
	if retries >= maxRetries {
		s.setState(StateError)
		return true, fmt.Errorf("%w: %s: exhausted %d retries", ErrTransport, s.cfg.RepresentationID, maxRetries)
	}
	s.mu.Lock()
	s.retryAtMs = s.clk.NowMs() + retryBackoff.Milliseconds()
	s.mu.Unlock()
	s.setState(StateRetry)
	return true, nil
}

func (s *Stream) tickRetry() (bool, error) {
	s.mu.Lock()
	ready := s.clk.NowMs() >= s.retryAtMs
	s.mu.Unlock()
	if !ready {
		return false, nil
	}
	s.setState(StateDownloadingMedia)
	return true, nil
}

func (s *Stream) mediaURL(segID int64) string {
	if s.cfg.Template.UsesTimeline() {
		t := timelineStartTime(s.cfg.Template.Timeline, segID)
		return s.cfg.Template.MediaURLByTime(s.cfg.RepresentationID, s.cfg.Bandwidth, t)
	}
	return s.cfg.Template.MediaURLByNumber(s.cfg.RepresentationID, s.cfg.Bandwidth, uint64(segID))
}

// timelineStartTime walks a SegmentTimeline to find the presentation time
// of the nth (0-based, relative to the first S entry) segment.
func timelineStartTime(timeline []mpdmodel.SegmentTimelineEntry, index int64) uint64 {
	var n int64
	for _, e := range timeline {
		count := int64(e.Repeat) + 1
		if index < n+count {
			return e.StartTime + uint64(index-n)*e.Duration
		}
		n += count
	}
	if len(timeline) == 0 {
		return 0
	}
	last := timeline[len(timeline)-1]
	return last.StartTime + uint64(index-n+int64(last.Repeat)+1)*last.Duration
}

func (s *Stream) isLastSegment(segID int64) bool {
	return s.cfg.IsStaticLastRep && s.cfg.LastSegmentID >= 0 && segID >= s.cfg.LastSegmentID
}

func (s *Stream) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// recordDownloadDurationLocked updates the running average download
// duration and raises maxCachedSegments when it exceeds the ratio of
// target buffering time to segment duration, spec §4.3. Must be called
// with mu held.
func (s *Stream) recordDownloadDurationLocked(elapsedMs int64) {
	s.downloadDurSumMs += elapsedMs
	s.downloadDurCount++
	if s.cfg.TargetBufferMs <= 0 || s.segDurationMs <= 0 {
		return
	}
	avg := s.downloadDurSumMs / int64(s.downloadDurCount)
	ratio := float64(s.cfg.TargetBufferMs) / float64(s.segDurationMs)
	if float64(avg) > ratio && s.maxCachedSegments < maxCachedSegmentsCeiling {
		s.maxCachedSegments++
	}
}

// ReleaseSegment decrements cache accounting when the consumer has
// finished with segmentID, spec §3.2.
func (s *Stream) ReleaseSegment(segmentID int64) {
	s.mu.Lock()
	if s.cachedSegmentCount > 0 {
		s.cachedSegmentCount--
	}
	s.mu.Unlock()
	s.obs.OnSegmentReleased(segmentID)
}

// MaxCachedSegments reports the current dynamic cache target, for tests and
// diagnostics.
func (s *Stream) MaxCachedSegments() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxCachedSegments
}

// Retries reports the current retry counter, for tests and diagnostics.
func (s *Stream) Retries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries
}

// FetchSidxPrefix fetches the first sidxPrefixBytes of a media segment to
// learn its sub-segment byte ranges ahead of deciding whether to fetch the
// whole segment, spec §4.3. It is a parallel, non-blocking state machine
// with its own retry counter, modelled here as a single synchronous helper
// the caller invokes when it wants that information; segstream does not
// interleave it with the main media fetch loop's state transitions.
func (s *Stream) FetchSidxPrefix(ctx context.Context, segID int64) (Segment, error) {
	if !s.cfg.IsOnDemand {
		return Segment{}, fmt.Errorf("segstream: sidx prefetch requires an on-demand representation")
	}
	url := s.mediaURL(segID)
	resp, err := s.client.Get(ctx, httpclient.Request{
		URL: url, RangeStartInc: 0, RangeEndInc: sidxPrefixBytes - 1, TimeoutMs: s.cfg.TimeoutMs,
	})
	if err != nil || resp.State != httpclient.StateCompleted || resp.HTTPStatus >= 400 {
		s.mu.Lock()
		s.sidxRetries++
		retries := s.sidxRetries
		s.mu.Unlock()
		if retries >= maxRetries {
			return Segment{}, fmt.Errorf("%w: sidx prefix for segment %d: exhausted retries", ErrTransport, segID)
		}
		return Segment{}, fmt.Errorf("%w: sidx prefix for segment %d: %v", ErrTransport, segID, err)
	}
	s.mu.Lock()
	s.sidxRetries = 0
	s.sidxDone[segID] = true
	s.mu.Unlock()
	return Segment{
		InitSegmentID: s.initSegmentID,
		SegmentID:     segID,
		Role:          RoleSidxPrefix,
		ByteRange:     &ByteRange{StartInc: 0, EndInc: sidxPrefixBytes - 1},
		Bytes:         resp.Body,
		SizeBytes:     resp.BytesDownloaded,
	}, nil
}
