// Package bitrate implements the three-tier quality controller of spec §4.6
// (component F): it classifies each tile as foreground, margin, or
// background and assigns a quality level per class from the estimated
// available bandwidth.
package bitrate

import (
	"github.com/omafstream/viewport-engine/pkg/clock"
)

// defaultUpdateIntervalMs is the controller's evaluation cadence, spec §4.6.
const defaultUpdateIntervalMs = 2000

// IssueType is the download-problem classification surfaced to
// reportDownloadProblem, supplemented from the original source's
// NVRDashBitrateController per SPEC_FULL §3's [FULL] addition.
type IssueType int

const (
	IssueBuffering IssueType = iota
	IssueTimeout
	IssueBandwidthDrop
)

// Group is one of the three tile classes a tile selection is partitioned
// into, spec §4.6.
type Group int

const (
	GroupForeground Group = iota
	GroupMargin
	GroupBackground
)

// LevelSet is the chosen quality level for each group, spec §4.6's output.
type LevelSet struct {
	Foreground int
	Margin     int
	Background int
}

// Policy supplies, for a tile group, the ordered-by-level costs (index 0 =
// highest quality, matching adaptset's RepresentationAt convention) and how
// many quality levels the MPD declares.
type Policy struct {
	// NrLevels is the declared quality-ranking count for the tile group,
	// spec §4.6: "the bitrate controller never commands a level higher
	// than the highest declared level".
	NrLevels int
	// CostAtLevel returns the bandwidth cost of running the group at
	// level (0 = best quality).
	CostAtLevel func(level int) uint32
}

// Controller assigns quality levels to foreground/margin/background tile
// groups on a fixed cadence or on a reported download problem, spec §4.6.
type Controller struct {
	clk                clock.Clock
	updateIntervalMs    int64
	lastUpdateMs        int64
	haveUpdated          bool
	currentLevels        LevelSet
	issueCount           int
	forceDowngrade       bool
}

// New constructs a Controller using clk as its time source.
func New(clk clock.Clock) *Controller {
	return &Controller{
		clk:              clk,
		updateIntervalMs: defaultUpdateIntervalMs,
		currentLevels:    LevelSet{Foreground: 0, Margin: 0, Background: 0},
	}
}

// ReportDownloadProblem records a download problem. Per spec §4.6, "a
// download-problem report (buffering, timeout) may downshift immediately";
// this sets a flag consumed by the next Update call regardless of the
// update-interval cadence.
func (c *Controller) ReportDownloadProblem(issue IssueType) {
	c.issueCount++
	c.forceDowngrade = true
}

// shouldUpdate reports whether enough time has elapsed since the last
// evaluation, or a problem was reported, spec §4.6.
func (c *Controller) shouldUpdate(nowMs int64) bool {
	if !c.haveUpdated || c.forceDowngrade {
		return true
	}
	return nowMs-c.lastUpdateMs >= c.updateIntervalMs
}

// Update evaluates candidate level triples against the estimated bandwidth
// and returns the chosen LevelSet, spec §4.6. fg/margin/bg are the
// per-group policies; bandwidthBps is the current estimate from component
// I; overheadBps reserves headroom for protocol/audio overhead.
func (c *Controller) Update(nowMs int64, fg, margin, bg Policy, bandwidthBps uint64, overheadBps uint64) LevelSet {
	if !c.shouldUpdate(nowMs) {
		return c.currentLevels
	}
	c.lastUpdateMs = nowMs
	c.haveUpdated = true
	budget := int64(bandwidthBps) - int64(overheadBps)
	if budget < 0 {
		budget = 0
	}

	best := c.currentLevels
	bestCost := int64(-1)
	c.forceDowngrade = false

	for fgL := 0; fgL < maxInt(fg.NrLevels, 1); fgL++ {
		for mgL := fgL; mgL < maxInt(margin.NrLevels, 1); mgL++ {
			for bgL := mgL; bgL < maxInt(bg.NrLevels, 1); bgL++ {
				cost := int64(fg.CostAtLevel(fgL)) + int64(margin.CostAtLevel(mgL)) + int64(bg.CostAtLevel(bgL))
				if cost > budget {
					continue
				}
				if cost > bestCost {
					bestCost = cost
					best = LevelSet{Foreground: fgL, Margin: mgL, Background: bgL}
				}
			}
		}
	}
	if bestCost < 0 {
		// Nothing fits the budget: fall back to the lowest-cost triple
		// (worst quality) rather than commanding an unservable level.
		worstFg, worstMg, worstBg := maxInt(fg.NrLevels, 1)-1, maxInt(margin.NrLevels, 1)-1, maxInt(bg.NrLevels, 1)-1
		best = LevelSet{Foreground: worstFg, Margin: worstMg, Background: worstBg}
	}
	c.currentLevels = best
	return best
}

// CurrentLevels returns the levels assigned by the last Update call.
func (c *Controller) CurrentLevels() LevelSet { return c.currentLevels }

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
