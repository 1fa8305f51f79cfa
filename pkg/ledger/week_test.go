package ledger

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestWeekID(t *testing.T) {
	cases := []struct {
		in   time.Time
		want string
	}{
		{date(2026, time.January, 14), "2026-W03"},
		{date(2026, time.January, 4), "2026-W01"},
		// Dec 29 2025 is the Monday of 2026's first ISO week.
		{date(2025, time.December, 29), "2026-W01"},
		{date(2026, time.January, 1), "2026-W01"},
	}
	for _, c := range cases {
		if got := WeekID(c.in); got != c.want {
			t.Errorf("WeekID(%s) = %s, want %s", c.in.Format("2006-01-02"), got, c.want)
		}
	}
}

func TestWeekStartIsMonday(t *testing.T) {
	for d := 12; d <= 18; d++ {
		in := time.Date(2026, time.January, d, 15, 30, 0, 0, time.UTC)
		got := WeekStart(in)
		want := date(2026, time.January, 12)
		if !got.Equal(want) {
			t.Errorf("WeekStart(Jan %d) = %s, want %s", d, got, want)
		}
	}
}

func TestWeekEndIsSundayNight(t *testing.T) {
	end := WeekEnd(date(2026, time.January, 14))
	if end.Weekday() != time.Sunday {
		t.Errorf("WeekEnd falls on %s, want Sunday", end.Weekday())
	}
	if !WeekStart(end).Equal(date(2026, time.January, 12)) {
		t.Error("WeekEnd left its own week")
	}
	if !end.Add(time.Nanosecond).Equal(date(2026, time.January, 19)) {
		t.Errorf("WeekEnd = %s, want the last instant before Jan 19", end)
	}
}

func TestWeekStartFromIDRoundTrip(t *testing.T) {
	for _, in := range []time.Time{
		date(2026, time.January, 14),
		date(2025, time.December, 31),
		date(2026, time.June, 1),
	} {
		start, err := WeekStartFromID(WeekID(in))
		if err != nil {
			t.Fatalf("WeekStartFromID(%s): %v", WeekID(in), err)
		}
		if !start.Equal(WeekStart(in)) {
			t.Errorf("round trip of %s: got %s, want %s", in.Format("2006-01-02"), start, WeekStart(in))
		}
	}

	if _, err := WeekStartFromID("garbage"); err == nil {
		t.Error("expected error for malformed week identifier")
	}
}

func TestDeadlinesBetween(t *testing.T) {
	cases := []struct {
		from, to time.Time
		want     int
	}{
		// January 2026 has Sundays on the 4th, 11th, 18th and 25th.
		{date(2026, time.January, 1), date(2026, time.January, 31), 4},
		{date(2026, time.January, 5), date(2026, time.January, 10), 0},
		{date(2026, time.January, 4), date(2026, time.January, 4), 1},
		{date(2026, time.January, 20), date(2026, time.January, 31), 1},
		{date(2026, time.February, 1), date(2026, time.January, 1), 0},
	}
	for _, c := range cases {
		if got := DeadlinesBetween(c.from, c.to); got != c.want {
			t.Errorf("DeadlinesBetween(%s, %s) = %d, want %d",
				c.from.Format("2006-01-02"), c.to.Format("2006-01-02"), got, c.want)
		}
	}
}

func TestMonthsBetween(t *testing.T) {
	cases := []struct {
		from, to time.Time
		want     int
	}{
		{date(2026, time.January, 14), date(2026, time.January, 14), 0},
		{date(2026, time.January, 31), date(2026, time.February, 1), 1},
		{date(2026, time.January, 15), date(2026, time.March, 20), 2},
		{date(2025, time.November, 1), date(2026, time.February, 1), 3},
	}
	for _, c := range cases {
		if got := monthsBetween(c.from, c.to); got != c.want {
			t.Errorf("monthsBetween(%s, %s) = %d, want %d",
				c.from.Format("2006-01"), c.to.Format("2006-01"), got, c.want)
		}
	}
}
