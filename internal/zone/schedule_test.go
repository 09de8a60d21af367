package zone

import (
	"testing"
	"time"
)

func TestParseSchedule_Valid(t *testing.T) {
	tests := []struct {
		name      string
		timeOfDay string
		days      []string
		wantHour  int
		wantMin   int
		wantDays  int
	}{
		{"morning abbreviated", "05:00", []string{"mon", "wed", "fri"}, 5, 0, 3},
		{"full day names", "21:30", []string{"Saturday", "Sunday"}, 21, 30, 2},
		{"mixed case", "06:15", []string{"MON", "Tuesday"}, 6, 15, 2},
		{"every day", "00:00", []string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}, 0, 0, 7},
		{"whitespace tolerated", " 12:05 ", []string{" wed "}, 12, 5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseSchedule(tt.timeOfDay, tt.days)
			if err != nil {
				t.Fatalf("ParseSchedule: %v", err)
			}
			if s.Hour != tt.wantHour || s.Minute != tt.wantMin {
				t.Errorf("time = %02d:%02d, want %02d:%02d", s.Hour, s.Minute, tt.wantHour, tt.wantMin)
			}
			if s.Days.Count() != tt.wantDays {
				t.Errorf("day count = %d, want %d", s.Days.Count(), tt.wantDays)
			}
		})
	}
}

func TestParseSchedule_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		timeOfDay string
		days      []string
	}{
		{"empty time", "", []string{"mon"}},
		{"missing minutes", "05", []string{"mon"}},
		{"hour out of range", "24:00", []string{"mon"}},
		{"minute out of range", "05:60", []string{"mon"}},
		{"non-numeric", "ab:cd", []string{"mon"}},
		{"empty days", "05:00", nil},
		{"unknown day", "05:00", []string{"funday"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSchedule(tt.timeOfDay, tt.days); err == nil {
				t.Errorf("ParseSchedule(%q, %v) succeeded, want error", tt.timeOfDay, tt.days)
			}
		})
	}
}

func TestSchedule_Matches(t *testing.T) {
	s, err := ParseSchedule("05:30", []string{"mon", "fri"})
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}

	// 2026-01-05 is a Monday.
	monday := time.Date(2026, 1, 5, 5, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"exact minute on scheduled day", monday, true},
		{"seconds ignored", monday.Add(45 * time.Second), true},
		{"one minute late", monday.Add(time.Minute), false},
		{"one minute early", monday.Add(-time.Minute), false},
		{"right time wrong day", monday.AddDate(0, 0, 1), false},
		{"friday matches too", monday.AddDate(0, 0, 4), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Matches(tt.at); got != tt.want {
				t.Errorf("Matches(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestSchedule_NextFire(t *testing.T) {
	s, err := ParseSchedule("06:00", []string{"wed"})
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}

	// 2026-01-07 is a Wednesday.
	wednesday := time.Date(2026, 1, 7, 6, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		after time.Time
		want  time.Time
	}{
		{"before the scheduled minute", wednesday.Add(-2 * time.Hour), wednesday},
		{"exactly at the scheduled minute", wednesday, wednesday.AddDate(0, 0, 7)},
		{"after the scheduled minute", wednesday.Add(time.Hour), wednesday.AddDate(0, 0, 7)},
		{"previous day", wednesday.AddDate(0, 0, -1), wednesday},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.NextFire(tt.after); !got.Equal(tt.want) {
				t.Errorf("NextFire(%v) = %v, want %v", tt.after, got, tt.want)
			}
		})
	}
}

func TestWeekdays_Names(t *testing.T) {
	set, err := ParseWeekdays([]string{"friday", "mon"})
	if err != nil {
		t.Fatalf("ParseWeekdays: %v", err)
	}

	names := set.Names()
	if len(names) != 2 || names[0] != "mon" || names[1] != "fri" {
		t.Errorf("Names() = %v, want [mon fri]", names)
	}
}
