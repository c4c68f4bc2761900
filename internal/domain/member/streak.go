package member

import (
	"sort"
	"time"

	"github.com/dojo-hub/dojo-attendance-hub/pkg/timeutil"
)

// Streak is the current run of consecutive training days. Count is zero when
// the run does not touch today or yesterday, no matter how long a historical
// run exists; this function intentionally does not report the best streak.
type Streak struct {
	Count  int
	Active bool
}

// CalculateStreak reduces an unordered collection of check-in timestamps to
// the member's current consecutive-day streak, measured in the calendar days
// of loc. Multiple check-ins on the same day count once.
//
// The streak is anchored at today or yesterday: attending every day up to two
// days ago reports {0, false}, while today plus a gap reports {1, true}.
func CalculateStreak(stamps []time.Time, now time.Time, loc *time.Location) Streak {
	if len(stamps) == 0 {
		return Streak{}
	}

	// Distinct calendar days, most recent first.
	seen := make(map[string]time.Time, len(stamps))
	for _, ts := range stamps {
		key := timeutil.DateKey(ts, loc)
		if _, ok := seen[key]; !ok {
			seen[key] = timeutil.StartOfDay(ts, loc)
		}
	}

	days := make([]time.Time, 0, len(seen))
	for _, day := range seen {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool {
		return days[i].After(days[j])
	})

	latest := days[0]
	if !timeutil.IsToday(latest, now, loc) && !timeutil.IsYesterday(latest, now, loc) {
		return Streak{}
	}

	count := 1
	for i := 1; i < len(days); i++ {
		if !timeutil.IsConsecutiveDay(days[i], days[i-1], loc) {
			break
		}
		count++
	}

	return Streak{Count: count, Active: true}
}
