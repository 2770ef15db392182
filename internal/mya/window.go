// Package mya talks to the Mya web archiver (mySampler) and owns the
// sampling-window arithmetic. All window math is done on timezone-aware
// timestamps in the facility's local timezone so that days shortened or
// stretched by daylight-saving transitions keep the correct step count.
package mya

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/JeffersonLab/ced2gnn/api"
)

// The archiver lives in the America/New_York timezone.
const facilityZone = "America/New_York"

var (
	locOnce sync.Once
	loc     *time.Location
)

// FacilityTime returns the archiver's timezone.
func FacilityTime() *time.Location {
	locOnce.Do(func() {
		var err error
		loc, err = time.LoadLocation(facilityZone)
		if err != nil {
			// Without tzdata we cannot honor DST transitions; a fixed
			// offset at least keeps timestamps anchored to the facility.
			loc = time.FixedZone("EST", -5*60*60)
		}
	})
	return loc
}

// Window is one Mya sampling query: a half-open [Begin, End) span sampled
// every Interval. Begin strictly precedes End. A span shorter than one
// interval is legal and yields a single sample.
type Window struct {
	Begin    time.Time
	End      time.Time
	Interval time.Duration
}

// NewWindow parses facility-local timestamps and validates the span.
func NewWindow(begin, end string, interval time.Duration) (Window, error) {
	b, err := parseDate(begin)
	if err != nil {
		return Window{}, fmt.Errorf("begin date %q: %w", begin, err)
	}
	e, err := parseDate(end)
	if err != nil {
		return Window{}, fmt.Errorf("end date %q: %w", end, err)
	}
	if !b.Before(e) {
		return Window{}, fmt.Errorf("end date %q must be after begin date %q", end, begin)
	}
	if interval <= 0 {
		return Window{}, fmt.Errorf("interval must be positive")
	}
	return Window{Begin: b, End: e, Interval: interval}, nil
}

// Steps returns the number of interval-size steps between Begin and End.
func (w Window) Steps() int {
	return StepsBetween(w.Begin, w.End, w.Interval)
}

// Samples is the number of rows a query for this window returns: one per
// whole step across the half-open [Begin, End) span, so the end instant is
// never sampled. A span shorter than one interval still yields the single
// sample at Begin.
func (w Window) Samples() int {
	if s := w.Steps(); s > 1 {
		return s
	}
	return 1
}

// DirName names this window's output directory from its begin time.
func (w Window) DirName() string {
	return w.Begin.Format("2006-01-02_150405")
}

// StepsBetween computes floor(|end-begin| / interval). Both timestamps are
// absolute instants, so a 23- or 25-hour DST day divides correctly.
func StepsBetween(begin, end time.Time, interval time.Duration) int {
	diff := end.Sub(begin)
	if diff < 0 {
		diff = -diff
	}
	return int(diff / interval)
}

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, strings.TrimSpace(s), FacilityTime()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date")
}

// ParseInterval understands the archiver's interval notation: the
// time.ParseDuration units plus d (days) and w (weeks).
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, ok := strings.CutSuffix(s, "d"); ok {
		return daysToDuration(n, 24*time.Hour)
	}
	if n, ok := strings.CutSuffix(s, "w"); ok {
		return daysToDuration(n, 7*24*time.Hour)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("interval %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval %q: must be positive", s)
	}
	return d, nil
}

func daysToDuration(n string, unit time.Duration) (time.Duration, error) {
	count, err := strconv.Atoi(n)
	if err != nil || count <= 0 {
		return 0, fmt.Errorf("interval %q*%v: must be a positive count", n, unit)
	}
	return time.Duration(count) * unit, nil
}

// FormatInterval renders a duration in the archiver's compact notation for
// the mySampler "s" query parameter.
func FormatInterval(d time.Duration) string {
	switch {
	case d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	default:
		return fmt.Sprintf("%ds", d/time.Second)
	}
}

// Plan expands the configured date ranges into sampling windows. A range
// whose begin is not before its end is reported in errs and skipped; the
// remaining valid windows are still returned so one bad range does not sink
// the run. An unparsable default interval invalidates every range.
func Plan(cfg api.Mya) (windows []Window, errs []error) {
	interval, err := ParseInterval(cfg.Interval)
	if err != nil {
		return nil, []error{err}
	}
	for i, dr := range cfg.Dates {
		w, err := NewWindow(dr.Begin, dr.End, interval)
		if err != nil {
			errs = append(errs, fmt.Errorf("mya.dates[%d]: %w", i, err))
			continue
		}
		windows = append(windows, w)
	}
	return windows, errs
}
