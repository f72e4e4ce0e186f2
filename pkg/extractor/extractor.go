// Package extractor implements the extractor assembler of spec §4.7
// (component G): it links an extractor representation to the partial tile
// adaptation sets it depends on (§4.2's binding) and concatenates their
// completed segment bytes, in extractor NAL order, into a single conforming
// bitstream per segment.
package extractor

import (
	"context"
	"fmt"
	"sync"

	"github.com/omafstream/viewport-engine/pkg/adaptset"
	"github.com/omafstream/viewport-engine/pkg/clock"
	"github.com/omafstream/viewport-engine/pkg/segstream"
)

// bufferingThresholdMs is the one-retry-cycle grace period an assembler
// waits for a late supporting segment before reporting IsBuffering, matching
// segstream's own retry backoff interval. The reference source's exact
// policy here was unclear; this is the documented resolution (DESIGN.md).
const bufferingThresholdMs = 1000

// Buffer captures the segments a single representation's segstream.Stream
// delivers, keyed by segment id, so the assembler can wait for a matching
// set across representations that fetch independently. One Buffer is
// constructed per representation and passed as that stream's
// segstream.Observer.
type Buffer struct {
	mu            sync.Mutex
	bySeg         map[int64][]byte
	initSegID     string
	lastBytes     []byte
	lastSegID     int64
}

// NewBuffer returns an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{bySeg: make(map[int64][]byte), lastSegID: -1}
}

// OnSegmentReady implements segstream.Observer.
func (b *Buffer) OnSegmentReady(seg segstream.Segment) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if seg.Role == segstream.RoleInit {
		b.initSegID = seg.InitSegmentID
		return
	}
	if seg.Role != segstream.RoleMedia {
		return
	}
	b.bySeg[seg.SegmentID] = seg.Bytes
	b.lastBytes = seg.Bytes
	b.lastSegID = seg.SegmentID
}

// OnSegmentReleased implements segstream.Observer.
func (b *Buffer) OnSegmentReleased(int64) {}

// Take returns the bytes for segID, if delivered.
func (b *Buffer) Take(segID int64) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.bySeg[segID]
	return v, ok
}

// Evict discards the buffered bytes for segID once the assembler has
// consumed them.
func (b *Buffer) Evict(segID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.bySeg, segID)
}

// InitSegmentID returns the init segment id last observed.
func (b *Buffer) InitSegmentID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initSegID
}

// AssembledSegment is the assembler's output unit, spec §4.7.
type AssembledSegment struct {
	SegmentID     int64
	InitSegmentID string
	Bytes         []byte
}

// Observer receives assembled segments.
type Observer interface {
	OnAssembledSegment(seg AssembledSegment)
}

// Assembler binds one extractor adaptation set to its supporting partial
// tile sets and assembles their segments in order, spec §4.7.
type Assembler struct {
	clk clock.Clock
	obs Observer

	extractorSet *adaptset.AdaptationSet
	extractorBuf *Buffer

	// dependsOn is the ordered list of supporting adaptation-set ids,
	// defining the concatenation order the extractor's NAL pattern expects,
	// spec §4.2/§4.7.
	dependsOn      []string
	supporting     map[string]*adaptset.AdaptationSet
	supportingBufs map[string]*Buffer

	pendingSeg  int64
	waiting     bool
	waitStartMs int64
	buffering   bool
}

// New builds an Assembler. extractorBuf and each entry of supportingBufs
// must already be wired as the segstream.Observer for their respective
// adaptset.AdaptationSet's representations (adaptset.New's obs parameter),
// since the buffers are how the assembler observes completed segments
// without segstream depending on this package.
func New(extractorSet *adaptset.AdaptationSet, extractorBuf *Buffer, supporting map[string]*adaptset.AdaptationSet, supportingBufs map[string]*Buffer, dependsOn []string, clk clock.Clock, obs Observer) (*Assembler, error) {
	if extractorSet == nil || extractorBuf == nil {
		return nil, fmt.Errorf("extractor: extractor set is required")
	}
	if len(dependsOn) == 0 {
		return nil, fmt.Errorf("extractor: %s has no supporting adaptation sets", extractorSet.Model.ID)
	}
	for _, id := range dependsOn {
		if supporting[id] == nil || supportingBufs[id] == nil {
			return nil, fmt.Errorf("extractor: missing supporting set %s for extractor %s", id, extractorSet.Model.ID)
		}
	}
	return &Assembler{
		clk:            clk,
		obs:            obs,
		extractorSet:   extractorSet,
		extractorBuf:   extractorBuf,
		dependsOn:      dependsOn,
		supporting:     supporting,
		supportingBufs: supportingBufs,
	}, nil
}

// StartFrom begins downloading the extractor and every supporting set from
// fromSegment and sets the first segment id the assembler will emit.
func (a *Assembler) StartFrom(fromSegment int64) {
	a.pendingSeg = fromSegment
	a.extractorSet.StartDownload(fromSegment)
	for _, id := range a.dependsOn {
		a.supporting[id].StartDownload(fromSegment)
	}
}

// Stop stops the extractor and every supporting set synchronously.
func (a *Assembler) Stop() {
	a.extractorSet.StopDownload()
	for _, id := range a.dependsOn {
		a.supporting[id].StopDownload()
	}
}

// IsBuffering reports whether the assembler is stalled waiting past its
// retry grace period for a supporting segment, spec §4.7/§7.
func (a *Assembler) IsBuffering() bool { return a.buffering }

// PendingSegmentID returns the next segment id the assembler is waiting to
// emit, for diagnostics.
func (a *Assembler) PendingSegmentID() int64 { return a.pendingSeg }

// IsEndOfStream reports whether the extractor and every supporting set have
// all reached end-of-stream, spec §4.8 step 6.
func (a *Assembler) IsEndOfStream() bool {
	if !a.extractorSet.IsEndOfStream() {
		return false
	}
	for _, id := range a.dependsOn {
		if !a.supporting[id].IsEndOfStream() {
			return false
		}
	}
	return true
}

// IsError reports whether the extractor or any supporting set has reached a
// terminal transport error, spec §4.8 step 6.
func (a *Assembler) IsError() bool {
	if a.extractorSet.IsError() {
		return true
	}
	for _, id := range a.dependsOn {
		if a.supporting[id].IsError() {
			return true
		}
	}
	return false
}

// SwitchQuality schedules the extractor to switch to a different quality
// level at a segment boundary, spec §4.7's multi-resolution support; it
// delegates to the underlying AdaptationSet's SelectQuality. The new
// representation becomes active as soon as the boundary is reached and only
// then starts downloading; it is not prepared in parallel ahead of the swap.
func (a *Assembler) SwitchQuality(level, nrLevels int, fromSegment int64) error {
	return a.extractorSet.SelectQuality(level, nrLevels, fromSegment)
}

// Tick advances the extractor set and every supporting set by one state
// machine step, then attempts to assemble the pending segment id if every
// supporting set has delivered it. It returns whether any state changed.
func (a *Assembler) Tick(ctx context.Context) (bool, error) {
	changed := false
	if c, err := a.extractorSet.ProcessSegmentDownload(ctx); err != nil {
		return changed, fmt.Errorf("extractor: extractor set %s: %w", a.extractorSet.Model.ID, err)
	} else if c {
		changed = true
	}
	for _, id := range a.dependsOn {
		c, err := a.supporting[id].ProcessSegmentDownload(ctx)
		if err != nil {
			return changed, fmt.Errorf("extractor: supporting set %s: %w", id, err)
		}
		if c {
			changed = true
		}
	}

	extBytes, ok := a.extractorBuf.Take(a.pendingSeg)
	if !ok {
		return changed, nil
	}

	parts := make([][]byte, 0, len(a.dependsOn)+1)
	parts = append(parts, extBytes)
	var missing []string
	for _, id := range a.dependsOn {
		b, ok := a.supportingBufs[id].Take(a.pendingSeg)
		if !ok {
			missing = append(missing, id)
			continue
		}
		parts = append(parts, b)
	}

	if len(missing) > 0 {
		if !a.waiting {
			a.waiting = true
			a.waitStartMs = a.clk.NowMs()
		}
		if a.clk.NowMs()-a.waitStartMs < bufferingThresholdMs {
			return changed, nil
		}
		// Retry grace period elapsed: keep stalling (never skip or emit a
		// partially stale segment) but surface it as buffering, per the
		// documented resolution of spec §9's open point.
		a.buffering = true
		return changed, nil
	}

	a.waiting = false
	a.buffering = false
	a.obs.OnAssembledSegment(AssembledSegment{
		SegmentID:     a.pendingSeg,
		InitSegmentID: a.extractorBuf.InitSegmentID(),
		Bytes:         concatenate(parts),
	})
	a.extractorBuf.Evict(a.pendingSeg)
	for _, id := range a.dependsOn {
		a.supportingBufs[id].Evict(a.pendingSeg)
	}
	a.pendingSeg++
	return true, nil
}

func concatenate(parts [][]byte) []byte {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
