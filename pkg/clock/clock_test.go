package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFakeClockAdvances(t *testing.T) {
	c := NewFake(1000)
	require.EqualValues(t, 1000, c.NowMs())
	require.EqualValues(t, 1_000_000, c.NowUs())
	c.Advance(500)
	require.EqualValues(t, 1500, c.NowMs())
}

func TestParseUTCNoDST(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2023-06-15T10:00:00Z", time.Date(2023, 6, 15, 10, 0, 0, 0, time.UTC)},
		{"2023-12-15T10:00:00.500Z", time.Date(2023, 12, 15, 10, 0, 0, 500_000_000, time.UTC)},
	}
	for _, c := range cases {
		got, err := ParseUTC(c.in)
		require.NoError(t, err)
		require.True(t, c.want.Equal(got), "got %v want %v", got, c.want)
		require.Equal(t, time.UTC, got.Location())
	}
}

func TestParseUTCInvalid(t *testing.T) {
	_, err := ParseUTC("not-a-time")
	require.Error(t, err)
}

func TestFormatUTCRoundTrip(t *testing.T) {
	in := "2023-06-15T10:00:00Z"
	t1, err := ParseUTC(in)
	require.NoError(t, err)
	require.Equal(t, in, FormatUTC(t1))
}
