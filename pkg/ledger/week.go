package ledger

import (
	"fmt"
	"time"
)

// Weeks follow ISO-8601 throughout: Monday 00:00 UTC start, Sunday end, and
// the "YYYY-Www" identifier from ISOWeek. The weekly contribution deadline is
// the Sunday that closes the week.

// WeekID returns the identifier of the ISO week containing t, e.g. "2025-W33".
func WeekID(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// WeekStart returns Monday 00:00 UTC of the ISO week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	daysPastMonday := (int(t.Weekday()) + 6) % 7
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.AddDate(0, 0, -daysPastMonday)
}

// WeekEnd returns the last instant of the ISO week containing t.
func WeekEnd(t time.Time) time.Time {
	return WeekStart(t).AddDate(0, 0, 7).Add(-time.Nanosecond)
}

// WeekStartFromID returns Monday 00:00 UTC of the identified week.
func WeekStartFromID(weekID string) (time.Time, error) {
	var year, week int
	if _, err := fmt.Sscanf(weekID, "%d-W%d", &year, &week); err != nil {
		return time.Time{}, fmt.Errorf("invalid week identifier %q: %w", weekID, err)
	}
	// January 4th is always inside ISO week 1.
	week1 := WeekStart(time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC))
	return week1.AddDate(0, 0, (week-1)*7), nil
}

// DeadlinesBetween counts the weekly contribution deadlines (Sundays) falling
// inside [from, to].
func DeadlinesBetween(from, to time.Time) int {
	from, to = from.UTC(), to.UTC()
	if to.Before(from) {
		return 0
	}
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	daysUntilSunday := (7 - int(day.Weekday())) % 7
	firstSunday := day.AddDate(0, 0, daysUntilSunday)
	if firstSunday.After(to) {
		return 0
	}
	lastDay := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(lastDay.Sub(firstSunday).Hours()/24)/7 + 1
}

// monthsBetween returns the calendar month difference between two dates,
// ignoring the day of month.
func monthsBetween(from, to time.Time) int {
	from, to = from.UTC(), to.UTC()
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}
