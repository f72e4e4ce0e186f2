package bitrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omafstream/viewport-engine/pkg/clock"
)

// costTable returns decreasing bandwidth per increasing level index, level
// 0 being the most expensive (highest quality), matching adaptset's
// RepresentationAt(0) = best quality convention.
func costTable(costs ...uint32) func(level int) uint32 {
	return func(level int) uint32 {
		if level < 0 {
			level = 0
		}
		if level >= len(costs) {
			level = len(costs) - 1
		}
		return costs[level]
	}
}

func TestUpdatePicksHighestAffordableTriple(t *testing.T) {
	clk := clock.NewFake(0)
	c := New(clk)
	fg := Policy{NrLevels: 3, CostAtLevel: costTable(4_000_000, 2_000_000, 800_000)}
	mg := Policy{NrLevels: 3, CostAtLevel: costTable(4_000_000, 2_000_000, 800_000)}
	bg := Policy{NrLevels: 3, CostAtLevel: costTable(4_000_000, 2_000_000, 800_000)}

	levels := c.Update(0, fg, mg, bg, 40_000_000, 1_000_000)
	assert.Equal(t, 0, levels.Foreground)
	assert.Equal(t, 0, levels.Margin)
	assert.Equal(t, 0, levels.Background)
}

func TestForegroundAtLeastMarginAtLeastBackground(t *testing.T) {
	clk := clock.NewFake(0)
	c := New(clk)
	fg := Policy{NrLevels: 3, CostAtLevel: costTable(4_000_000, 2_000_000, 800_000)}
	mg := Policy{NrLevels: 3, CostAtLevel: costTable(4_000_000, 2_000_000, 800_000)}
	bg := Policy{NrLevels: 3, CostAtLevel: costTable(4_000_000, 2_000_000, 800_000)}

	levels := c.Update(0, fg, mg, bg, 6_000_000, 200_000)
	assert.LessOrEqual(t, levels.Foreground, levels.Margin)
	assert.LessOrEqual(t, levels.Margin, levels.Background)
}

func TestBandwidthDropStepsDownWithinTwoIntervals(t *testing.T) {
	clk := clock.NewFake(0)
	c := New(clk)
	fg := Policy{NrLevels: 3, CostAtLevel: costTable(4_000_000, 2_000_000, 800_000)}
	mg := Policy{NrLevels: 3, CostAtLevel: costTable(4_000_000, 2_000_000, 800_000)}
	bg := Policy{NrLevels: 3, CostAtLevel: costTable(4_000_000, 2_000_000, 800_000)}

	first := c.Update(0, fg, mg, bg, 40_000_000, 1_000_000)
	require.Equal(t, 0, first.Foreground)

	clk.Advance(defaultUpdateIntervalMs)
	second := c.Update(clk.NowMs(), fg, mg, bg, 2_000_000, 200_000)
	assert.GreaterOrEqual(t, second.Foreground, 1)
}

func TestReportDownloadProblemForcesImmediateReevaluation(t *testing.T) {
	clk := clock.NewFake(0)
	c := New(clk)
	fg := Policy{NrLevels: 3, CostAtLevel: costTable(4_000_000, 2_000_000, 800_000)}
	mg := Policy{NrLevels: 3, CostAtLevel: costTable(4_000_000, 2_000_000, 800_000)}
	bg := Policy{NrLevels: 3, CostAtLevel: costTable(4_000_000, 2_000_000, 800_000)}

	c.Update(0, fg, mg, bg, 40_000_000, 1_000_000)
	c.ReportDownloadProblem(IssueBuffering)
	// No time has passed, but the reported problem must force a re-evaluation.
	levels := c.Update(1, fg, mg, bg, 1_000_000, 200_000)
	assert.Equal(t, 2, levels.Foreground)
}
