package mya

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JeffersonLab/ced2gnn/api"
)

func TestStepsBetween(t *testing.T) {
	begin, err := parseDate("2021-11-10 00:00:00")
	require.NoError(t, err)
	end, err := parseDate("2021-11-10 02:00:00")
	require.NoError(t, err)

	assert.Equal(t, 2, StepsBetween(begin, end, time.Hour))

	t.Run("symmetric under swap", func(t *testing.T) {
		assert.Equal(t, StepsBetween(begin, end, time.Hour), StepsBetween(end, begin, time.Hour))
	})

	t.Run("partial step floors", func(t *testing.T) {
		end, err := parseDate("2021-11-10 02:59:00")
		require.NoError(t, err)
		assert.Equal(t, 2, StepsBetween(begin, end, time.Hour))
	})
}

func TestStepsBetweenDaylightSaving(t *testing.T) {
	// DST ended 2021-11-07 02:00 America/New_York: that day has 25 hours.
	begin, err := parseDate("2021-11-07 00:00:00")
	require.NoError(t, err)
	end, err := parseDate("2021-11-08 00:00:00")
	require.NoError(t, err)
	assert.Equal(t, 25, StepsBetween(begin, end, time.Hour))

	// An ordinary day stays at 24.
	begin, err = parseDate("2021-11-09 00:00:00")
	require.NoError(t, err)
	end, err = parseDate("2021-11-10 00:00:00")
	require.NoError(t, err)
	assert.Equal(t, 24, StepsBetween(begin, end, time.Hour))
}

func TestNewWindow(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		w, err := NewWindow("2021-11-10 00:00:00", "2021-11-10 02:00:00", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 2, w.Steps())
		assert.Equal(t, 2, w.Samples())
		assert.Equal(t, "2021-11-10_000000", w.DirName())
	})

	t.Run("end instant is never sampled", func(t *testing.T) {
		w, err := NewWindow("2021-11-10 00:00:00", "2021-11-10 01:00:00", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, w.Steps())
		assert.Equal(t, 1, w.Samples())
	})

	t.Run("bare dates accepted", func(t *testing.T) {
		w, err := NewWindow("2021-11-10", "2021-11-11", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 24, w.Steps())
	})

	t.Run("zero-step window is legal", func(t *testing.T) {
		w, err := NewWindow("2021-11-10 00:00:00", "2021-11-10 00:30:00", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 0, w.Steps())
		assert.Equal(t, 1, w.Samples())
	})

	t.Run("begin at or after end rejected", func(t *testing.T) {
		_, err := NewWindow("2021-11-12 00:00:00", "2021-11-10 00:00:00", time.Hour)
		assert.Error(t, err)
		_, err = NewWindow("2021-11-10 00:00:00", "2021-11-10 00:00:00", time.Hour)
		assert.Error(t, err)
	})

	t.Run("unparsable date rejected", func(t *testing.T) {
		_, err := NewWindow("tomorrow", "2021-11-10", time.Hour)
		assert.Error(t, err)
	})
}

func TestParseInterval(t *testing.T) {
	cases := map[string]time.Duration{
		"1h":  time.Hour,
		"30m": 30 * time.Minute,
		"90s": 90 * time.Second,
		"1d":  24 * time.Hour,
		"2w":  14 * 24 * time.Hour,
	}
	for in, want := range cases {
		d, err := ParseInterval(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, d, in)
	}

	for _, bad := range []string{"", "fast", "-1h", "0h", "0d"} {
		_, err := ParseInterval(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatInterval(t *testing.T) {
	assert.Equal(t, "1h", FormatInterval(time.Hour))
	assert.Equal(t, "30m", FormatInterval(30*time.Minute))
	assert.Equal(t, "90s", FormatInterval(90*time.Second))
	assert.Equal(t, "2d", FormatInterval(48*time.Hour))
}

func TestPlan(t *testing.T) {
	cfg := api.Mya{
		Interval: "1h",
		Dates: []api.DateRange{
			{Begin: "2021-11-10 00:00:00", End: "2021-11-10 02:00:00"},
			{Begin: "2021-11-12 00:00:00", End: "2021-11-11 00:00:00"}, // inverted
			{Begin: "2021-11-13 00:00:00", End: "2021-11-13 06:00:00"},
		},
	}

	windows, errs := Plan(cfg)
	// The inverted range is an error for that window only.
	require.Len(t, errs, 1)
	require.Len(t, windows, 2)
	assert.Equal(t, 2, windows[0].Steps())
	assert.Equal(t, 6, windows[1].Steps())

	t.Run("bad interval invalidates all ranges", func(t *testing.T) {
		cfg := api.Mya{Interval: "soon", Dates: cfg.Dates}
		windows, errs := Plan(cfg)
		assert.Empty(t, windows)
		assert.Len(t, errs, 1)
	})
}
