package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/collectarr/collectarr/internal/models"
)

var dayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// IsActive decides whether a rule's schedule permits it to run at the
// given instant. Pure function: no clock access, no I/O.
//
// Semantics:
//   - schedule disabled: always active
//   - empty day set: every day
//   - start/end both blank: any time, only day gating applies
//   - end < start: overnight window wrapping past midnight
func IsActive(s models.Schedule, now time.Time) bool {
	if !s.Enabled {
		return true
	}

	if len(s.Days) > 0 && !dayMatches(s.Days, now.Weekday()) {
		return false
	}

	start, startOK := parseClock(s.Start)
	end, endOK := parseClock(s.End)
	if !startOK || !endOK {
		// Window gating only applies when both bounds are set and valid.
		return true
	}

	clock := now.Hour()*60 + now.Minute()

	if start == end {
		// Degenerate zero-length window: treat as all day.
		return true
	}
	if end < start {
		// Overnight: [start, 24:00) ∪ [00:00, end)
		return clock >= start || clock < end
	}
	return clock >= start && clock < end
}

func dayMatches(days models.StringList, weekday time.Weekday) bool {
	for _, d := range days {
		if w, ok := dayNames[strings.ToLower(strings.TrimSpace(d))]; ok && w == weekday {
			return true
		}
	}
	return false
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// Validate checks a schedule definition for storage-time errors so bad
// day names or clock strings are rejected before they silently widen
// the window at evaluation time.
func Validate(s models.Schedule) error {
	if !s.Enabled {
		return nil
	}
	for _, d := range s.Days {
		if _, ok := dayNames[strings.ToLower(strings.TrimSpace(d))]; !ok {
			return fmt.Errorf("invalid schedule day %q", d)
		}
	}
	if s.Start != "" {
		if _, ok := parseClock(s.Start); !ok {
			return fmt.Errorf("invalid schedule start %q", s.Start)
		}
	}
	if s.End != "" {
		if _, ok := parseClock(s.End); !ok {
			return fmt.Errorf("invalid schedule end %q", s.End)
		}
	}
	return nil
}
