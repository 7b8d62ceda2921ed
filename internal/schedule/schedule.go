package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is an immutable, ordered set of windows. Windows may overlap;
// only the union matters.
type Schedule struct {
	windows []Window
}

// New returns a Schedule over a copy of windows.
func New(windows ...Window) Schedule {
	return Schedule{windows: append([]Window(nil), windows...)}
}

// Parse builds a Schedule from comma separated "<day>|<HH:MM>|<duration>"
// records. buffer and timezone apply to every window.
//
// Example: "6|18:00|88,7|09:00|88" with buffer 2 and "US/Eastern".
func Parse(spec string, buffer int, timezone string) (Schedule, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil || strings.TrimSpace(timezone) == "" {
		return Schedule{}, fmt.Errorf("%w: unknown timezone %q", ErrInvalidSchedule, timezone)
	}
	if strings.TrimSpace(spec) == "" {
		return Schedule{}, fmt.Errorf("%w: no windows defined", ErrInvalidSchedule)
	}

	records := strings.Split(spec, ",")
	windows := make([]Window, 0, len(records))
	for i, rec := range records {
		w, err := parseRecord(rec, buffer, loc)
		if err != nil {
			return Schedule{}, fmt.Errorf("record %d (%q): %w", i+1, rec, err)
		}
		windows = append(windows, w)
	}
	return Schedule{windows: windows}, nil
}

func parseRecord(rec string, buffer int, loc *time.Location) (Window, error) {
	fields := strings.Split(rec, "|")
	if len(fields) != 3 {
		return Window{}, fmt.Errorf("%w: want <day>|<HH:MM>|<duration>, got %d fields", ErrInvalidSchedule, len(fields))
	}

	day, err := atoi("day", fields[0])
	if err != nil {
		return Window{}, err
	}

	hm := strings.Split(strings.TrimSpace(fields[1]), ":")
	if len(hm) != 2 {
		return Window{}, fmt.Errorf("%w: malformed start time %q", ErrInvalidSchedule, fields[1])
	}
	hour, err := atoi("hour", hm[0])
	if err != nil {
		return Window{}, err
	}
	minute, err := atoi("minute", hm[1])
	if err != nil {
		return Window{}, err
	}

	duration, err := atoi("duration", fields[2])
	if err != nil {
		return Window{}, err
	}

	return NewWindow(day, hour, minute, buffer, duration, loc)
}

func atoi(field, s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not an integer", ErrInvalidSchedule, field, s)
	}
	return n, nil
}

// IsAnyActive reports whether at least one window is active at now.
func (s Schedule) IsAnyActive(now time.Time) bool {
	for _, w := range s.windows {
		if w.IsActive(now) {
			return true
		}
	}
	return false
}

// Active returns the windows active at now, in schedule order.
func (s Schedule) Active(now time.Time) []Window {
	var out []Window
	for _, w := range s.windows {
		if w.IsActive(now) {
			out = append(out, w)
		}
	}
	return out
}

// Windows returns a copy of the schedule's windows.
func (s Schedule) Windows() []Window {
	return append([]Window(nil), s.windows...)
}

// Len returns the number of windows.
func (s Schedule) Len() int { return len(s.windows) }

// Equal reports whether both schedules hold equal windows in the same order.
func (s Schedule) Equal(other Schedule) bool {
	if len(s.windows) != len(other.windows) {
		return false
	}
	for i := range s.windows {
		if !s.windows[i].Equal(other.windows[i]) {
			return false
		}
	}
	return true
}
