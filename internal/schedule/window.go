package schedule

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSchedule is wrapped by every error caused by a malformed schedule
// definition or an unknown timezone.
var ErrInvalidSchedule = errors.New("invalid schedule")

const minutesPerDay = 24 * 60

// Window is one recurring weekly activation window. The zero value is not
// usable; build windows with NewWindow or Parse.
type Window struct {
	Day      int // ISO weekday, Monday=1 .. Sunday=7
	Hour     int
	Minute   int
	Buffer   int // minutes before start and after end that still count as active
	Duration int // minutes

	tz  string
	loc *time.Location
}

// NewWindow validates the fields and returns a Window anchored in loc.
// Windows whose buffered interval would leave the calendar day are rejected.
func NewWindow(day, hour, minute, buffer, duration int, loc *time.Location) (Window, error) {
	if loc == nil {
		return Window{}, fmt.Errorf("%w: nil location", ErrInvalidSchedule)
	}
	switch {
	case day < 1 || day > 7:
		return Window{}, fmt.Errorf("%w: day %d out of range 1-7", ErrInvalidSchedule, day)
	case hour < 0 || hour > 23:
		return Window{}, fmt.Errorf("%w: hour %d out of range 0-23", ErrInvalidSchedule, hour)
	case minute < 0 || minute > 59:
		return Window{}, fmt.Errorf("%w: minute %d out of range 0-59", ErrInvalidSchedule, minute)
	case buffer < 0:
		return Window{}, fmt.Errorf("%w: negative buffer %d", ErrInvalidSchedule, buffer)
	case duration < 0:
		return Window{}, fmt.Errorf("%w: negative duration %d", ErrInvalidSchedule, duration)
	}

	start := hour*60 + minute
	if start-buffer < 0 || start+duration+buffer >= minutesPerDay {
		return Window{}, fmt.Errorf("%w: window %02d:%02d+%dm (buffer %dm) crosses midnight",
			ErrInvalidSchedule, hour, minute, duration, buffer)
	}

	return Window{
		Day:      day,
		Hour:     hour,
		Minute:   minute,
		Buffer:   buffer,
		Duration: duration,
		tz:       loc.String(),
		loc:      loc,
	}, nil
}

// Timezone returns the IANA name of the window's timezone.
func (w Window) Timezone() string { return w.tz }

// Location returns the window's timezone.
func (w Window) Location() *time.Location { return w.loc }

// IsActive reports whether now falls inside the buffered interval of the
// nearest upcoming (or current) occurrence of the window's weekday.
// Both interval ends are inclusive.
func (w Window) IsActive(now time.Time) bool {
	start, end := w.Interval(now)
	return !now.Before(start) && !now.After(end)
}

// Interval returns the buffered [start, end] interval that IsActive checks
// now against.
func (w Window) Interval(now time.Time) (time.Time, time.Time) {
	date := w.dateFor(now)
	y, m, d := date.Date()
	start := time.Date(y, m, d, w.Hour, w.Minute, 0, 0, w.loc)

	buffer := time.Duration(w.Buffer) * time.Minute
	return start.Add(-buffer), start.Add(time.Duration(w.Duration)*time.Minute + buffer)
}

// dateFor walks forward from now's calendar date, in the window's timezone,
// until the weekday matches.
func (w Window) dateFor(now time.Time) time.Time {
	local := now.In(w.loc)
	for i := 0; i < 7; i++ {
		if isoWeekday(local) == w.Day {
			break
		}
		local = local.AddDate(0, 0, 1)
	}
	return local
}

// Equal reports whether both windows describe the same recurring window.
func (w Window) Equal(other Window) bool {
	return w.Day == other.Day &&
		w.Hour == other.Hour &&
		w.Minute == other.Minute &&
		w.Buffer == other.Buffer &&
		w.Duration == other.Duration &&
		w.tz == other.tz
}

func (w Window) String() string {
	return fmt.Sprintf("%s %02d:%02d for %dm (buffer %dm, %s)",
		isoWeekdayName(w.Day), w.Hour, w.Minute, w.Duration, w.Buffer, w.tz)
}

func isoWeekday(t time.Time) int {
	if wd := t.Weekday(); wd != time.Sunday {
		return int(wd)
	}
	return 7
}

func isoWeekdayName(day int) string {
	return time.Weekday(day % 7).String()
}
