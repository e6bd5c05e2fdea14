package window

import (
	"testing"
	"time"
)

func buenosAires(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Argentina/Buenos_Aires")
	if err != nil {
		t.Fatalf("LoadLocation() error = %v", err)
	}
	return loc
}

func TestAllows(t *testing.T) {
	loc := buenosAires(t)
	s := Schedule{Location: loc}

	// 2025-06-02 is a Monday
	at := func(day, hour, minute int) time.Time {
		return time.Date(2025, 6, day, hour, minute, 0, 0, loc)
	}

	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"monday before window 1", at(2, 11, 59), false},
		{"monday window 1 start", at(2, 12, 0), true},
		{"monday inside window 1", at(2, 13, 0), true},
		{"monday window 1 end", at(2, 15, 0), false},
		{"monday gap", at(2, 16, 0), false},
		{"monday window 2 start", at(2, 18, 0), true},
		{"monday window 2 last minute", at(2, 20, 29), true},
		{"monday window 2 end", at(2, 20, 30), false},
		{"friday window 2", at(6, 19, 0), true},
		{"saturday start", at(7, 10, 0), true},
		{"saturday inside", at(7, 12, 59), true},
		{"saturday end", at(7, 13, 0), false},
		{"saturday evening", at(7, 19, 0), false},
		{"sunday", at(8, 11, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Allows(tt.t); got != tt.want {
				t.Errorf("Allows(%s) = %v, want %v", tt.t, got, tt.want)
			}
			if got := IsWithinContactWindow(s, tt.t); got != tt.want {
				t.Errorf("IsWithinContactWindow(%s) = %v, want %v", tt.t, got, tt.want)
			}
		})
	}
}

func TestAllowsConvertsToCampaignTimezone(t *testing.T) {
	loc := buenosAires(t)
	s := Schedule{Location: loc}

	// 16:00 UTC on a Tuesday is 13:00 in Buenos Aires
	utc := time.Date(2025, 6, 3, 16, 0, 0, 0, time.UTC)
	if !s.Allows(utc) {
		t.Error("Allows() = false for 13:00 local, want true")
	}

	// 19:00 UTC is 16:00 local, between windows
	if s.Allows(utc.Add(3 * time.Hour)) {
		t.Error("Allows() = true for 16:00 local, want false")
	}
}

func TestCustomWindows(t *testing.T) {
	loc := buenosAires(t)
	s := Schedule{
		Location:      loc,
		ContactSunday: true,
		Saturday:      Interval{Start: "09:00:00", End: "11:00:00"},
		Window1:       Interval{Start: "08:30", End: "10:00"},
		Window2:       Interval{Start: "bogus", End: ""},
	}

	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"custom window 1", time.Date(2025, 6, 3, 8, 30, 0, 0, loc), true},
		{"default window 1 no longer applies", time.Date(2025, 6, 3, 13, 0, 0, 0, loc), false},
		{"malformed window 2 falls back to default", time.Date(2025, 6, 3, 19, 0, 0, 0, loc), true},
		{"custom saturday", time.Date(2025, 6, 7, 9, 0, 0, 0, loc), true},
		{"custom saturday end", time.Date(2025, 6, 7, 11, 0, 0, 0, loc), false},
		{"sunday opted in uses saturday window", time.Date(2025, 6, 8, 10, 0, 0, 0, loc), true},
		{"sunday opted in outside window", time.Date(2025, 6, 8, 12, 0, 0, 0, loc), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Allows(tt.t); got != tt.want {
				t.Errorf("Allows() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicy(t *testing.T) {
	loc := buenosAires(t)
	closed := Schedule{Location: loc}
	open := Schedule{Location: loc, ContactSunday: true}

	tests := []struct {
		name string
		s    Schedule
		t    time.Time
		want Policy
	}{
		{"weekday", closed, time.Date(2025, 6, 4, 12, 0, 0, 0, loc), PolicyTwoWindows},
		{"saturday", closed, time.Date(2025, 6, 7, 12, 0, 0, 0, loc), PolicyOneWindow},
		{"sunday closed", closed, time.Date(2025, 6, 8, 12, 0, 0, 0, loc), PolicyClosed},
		{"sunday opted in", open, time.Date(2025, 6, 8, 12, 0, 0, 0, loc), PolicyOneWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.Policy(tt.t); got != tt.want {
				t.Errorf("Policy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeterminism(t *testing.T) {
	loc := buenosAires(t)
	s := Schedule{Location: loc}
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, loc)

	for m := 0; m < 7*24*60; m += 7 {
		ts := start.Add(time.Duration(m) * time.Minute)
		if s.Allows(ts) != s.Allows(ts) {
			t.Fatalf("Allows(%s) not deterministic", ts)
		}
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"12:00", 720, true},
		{"20:30:00", 1230, true},
		{"00:00", 0, true},
		{"", 0, false},
		{"25:00", 0, false},
		{"noon", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseClock(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseClock(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestLocalDate(t *testing.T) {
	loc := buenosAires(t)
	// 02:00 UTC on the 3rd is 23:00 on the 2nd in Buenos Aires
	ts := time.Date(2025, 6, 3, 2, 0, 0, 0, time.UTC)
	if got := LocalDate(ts, loc); got != "2025-06-02" {
		t.Errorf("LocalDate() = %s, want 2025-06-02", got)
	}
	if got := LocalDate(ts, nil); got != "2025-06-03" {
		t.Errorf("LocalDate(nil) = %s, want 2025-06-03", got)
	}
}
