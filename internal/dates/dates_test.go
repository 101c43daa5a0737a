package dates

import (
	"errors"
	"testing"
	"time"
)

// Wednesday.
var base = time.Date(2026, 10, 14, 15, 30, 0, 0, time.UTC)

func TestNormalizeDue(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2026-11-02", "2026-11-02"},
		{" 2026-11-02 ", "2026-11-02"},
		{"2026-11-02T23:30:00-05:00", "2026-11-02"},
		{"tomorrow", "2026-10-15"},
		{"today", "2026-10-14"},
	}
	for _, tc := range cases {
		got, err := NormalizeDue(tc.in, base)
		if err != nil {
			t.Fatalf("NormalizeDue(%q) error = %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("NormalizeDue(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeDueWeekday(t *testing.T) {
	got, err := NormalizeDue("next friday", base)
	if err != nil {
		t.Fatalf("NormalizeDue() error = %v", err)
	}
	day, _ := ParseDay(got)
	if day.Weekday() != time.Friday || !day.After(base) {
		t.Fatalf("expected a Friday after %s, got %s", base.Format(DayLayout), got)
	}
}

func TestNormalizeDueRejectsNonsense(t *testing.T) {
	for _, in := range []string{"", "   ", "qwerty zxcv", "2024-13-45", "2024-02-30", "2024-02-30T10:00:00Z", "zzz tomorrow qqq", "tomorrow please"} {
		if _, err := NormalizeDue(in, base); !errors.Is(err, ErrUnparseable) {
			t.Fatalf("NormalizeDue(%q) error = %v, want ErrUnparseable", in, err)
		}
	}
}

func TestParseDay(t *testing.T) {
	day, err := ParseDay("2026-02-28")
	if err != nil || day.Format(DayLayout) != "2026-02-28" {
		t.Fatalf("ParseDay() = %s, %v", day, err)
	}
	for _, in := range []string{"2026-02-30", "02/28/2026", "tomorrow", ""} {
		if _, err := ParseDay(in); err == nil {
			t.Fatalf("ParseDay(%q) expected error", in)
		}
	}
}

func TestParseBoundCoversWholeEndDay(t *testing.T) {
	start, err := ParseBound("2026-03-01", false)
	if err != nil {
		t.Fatalf("ParseBound() error = %v", err)
	}
	end, err := ParseBound("2026-03-01", true)
	if err != nil {
		t.Fatalf("ParseBound() error = %v", err)
	}
	if !start.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start bound %s", start)
	}
	if !end.Equal(time.Date(2026, 3, 1, 23, 59, 59, 0, time.UTC)) {
		t.Fatalf("unexpected end bound %s", end)
	}

	exact, err := ParseBound("2026-03-01T10:00:00+02:00", true)
	if err != nil || !exact.Equal(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp bound %s, %v", exact, err)
	}
	if _, err := ParseBound("last week", false); err == nil {
		t.Fatal("expected error for non-timestamp bound")
	}
}
