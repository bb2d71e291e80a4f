package session

import (
	"sort"
	"time"
)

// ComputeStreak counts consecutive calendar days, ending today, that have at
// least one scan. A day without a scan today means the streak is zero; days
// after now are ignored.
func ComputeStreak(dates []time.Time, now time.Time, loc *time.Location) Streak {
	if loc == nil {
		loc = time.UTC
	}
	today := dayOf(now, loc)

	seen := make(map[time.Time]struct{}, len(dates))
	days := make([]time.Time, 0, len(dates))
	var last *time.Time
	for _, d := range dates {
		if last == nil || d.After(*last) {
			t := d
			last = &t
		}
		day := dayOf(d, loc)
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })

	streak := Streak{LastCheck: last}
	cursor := today
	for _, day := range days {
		if day.After(cursor) {
			continue
		}
		if !day.Equal(cursor) {
			break
		}
		if day.Equal(today) {
			streak.CheckedToday = true
		}
		streak.Days++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return streak
}

func dayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
