package member

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateStreak(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 3, 10, 18, 0, 0, 0, loc)

	day := func(daysAgo int, hour int) time.Time {
		return time.Date(2026, 3, 10-daysAgo, hour, 0, 0, 0, loc)
	}

	tests := []struct {
		name   string
		stamps []time.Time
		want   Streak
	}{
		{
			name:   "no activity",
			stamps: nil,
			want:   Streak{Count: 0, Active: false},
		},
		{
			name:   "today yesterday and the day before",
			stamps: []time.Time{day(0, 9), day(1, 19), day(2, 7)},
			want:   Streak{Count: 3, Active: true},
		},
		{
			name:   "today plus a gap counts only the unbroken run",
			stamps: []time.Time{day(0, 9), day(3, 9)},
			want:   Streak{Count: 1, Active: true},
		},
		{
			name:   "run anchored at yesterday",
			stamps: []time.Time{day(1, 9), day(2, 9), day(3, 9), day(4, 9)},
			want:   Streak{Count: 4, Active: true},
		},
		{
			name:   "long run that ended two days ago is inactive",
			stamps: []time.Time{day(2, 9), day(3, 9), day(4, 9), day(5, 9), day(6, 9)},
			want:   Streak{Count: 0, Active: false},
		},
		{
			name:   "multiple check-ins on the same day count once",
			stamps: []time.Time{day(0, 7), day(0, 12), day(0, 20), day(1, 9)},
			want:   Streak{Count: 2, Active: true},
		},
		{
			name:   "gap in the middle stops the count",
			stamps: []time.Time{day(0, 9), day(1, 9), day(3, 9), day(4, 9)},
			want:   Streak{Count: 2, Active: true},
		},
		{
			name:   "unordered input",
			stamps: []time.Time{day(2, 9), day(0, 9), day(1, 9)},
			want:   Streak{Count: 3, Active: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateStreak(tt.stamps, now, loc))
		})
	}
}

func TestCalculateStreak_MidnightBoundary(t *testing.T) {
	// 23:50 and 00:10 around midnight are consecutive calendar days even
	// though only twenty minutes elapsed.
	loc := time.UTC
	now := time.Date(2026, 3, 11, 0, 30, 0, 0, loc)

	stamps := []time.Time{
		time.Date(2026, 3, 10, 23, 50, 0, 0, loc),
		time.Date(2026, 3, 11, 0, 10, 0, 0, loc),
	}

	assert.Equal(t, Streak{Count: 2, Active: true}, CalculateStreak(stamps, now, loc))
}

func TestCalculateStreak_ReferenceLocation(t *testing.T) {
	// 22:00 UTC and 02:00 UTC next day are the same calendar day in UTC-5
	// but different days in UTC.
	west := time.FixedZone("UTC-5", -5*60*60)
	now := time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC)

	stamps := []time.Time{
		time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC),
	}

	assert.Equal(t, Streak{Count: 2, Active: true}, CalculateStreak(stamps, now, time.UTC))
	assert.Equal(t, Streak{Count: 1, Active: true}, CalculateStreak(stamps, now, west))
}
