package ingestion

import (
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestHoliday(t *testing.T) {
	cases := []struct {
		name string
		d    time.Time
		want string
	}{
		{"sunday", day(2025, 9, 21), "weekend"},
		{"independence", day(2025, 9, 7), "weekend"},
		{"tiradentes on monday", day(2025, 4, 21), "Tiradentes"},
		{"carnival monday 2026", day(2026, 2, 16), "Carnaval"},
		{"carnival tuesday 2026", day(2026, 2, 17), "Carnaval"},
		{"good friday 2026", day(2026, 4, 3), "Sexta-feira Santa"},
		{"corpus christi 2026", day(2026, 6, 4), "Corpus Christi"},
		{"regular wednesday", day(2026, 1, 14), ""},
		{"time of day ignored", time.Date(2026, 1, 14, 18, 30, 0, 0, time.UTC), ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Holiday(tc.d); got != tc.want {
				t.Fatalf("Holiday(%s) = %q, want %q", tc.d.Format(DateLayout), got, tc.want)
			}
		})
	}
}

func TestEasterSunday(t *testing.T) {
	for year, want := range map[int]time.Time{
		2024: day(2024, 3, 31),
		2025: day(2025, 4, 20),
		2026: day(2026, 4, 5),
	} {
		if got := easterSunday(year, time.UTC); !got.Equal(want) {
			t.Fatalf("easter %d = %s, want %s", year, got, want)
		}
	}
}

func TestBusinessDays(t *testing.T) {
	// Fri 2026-01-16 .. Tue 2026-01-20 inclusive.
	got := BusinessDays(DateRange{Start: day(2026, 1, 16), End: day(2026, 1, 21)})
	want := []time.Time{day(2026, 1, 16), day(2026, 1, 19), day(2026, 1, 20)}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("day %d: got %s want %s", i, got[i], want[i])
		}
	}
	if n := len(BusinessDays(DateRange{Start: day(2026, 1, 17), End: day(2026, 1, 19)})); n != 0 {
		t.Fatalf("weekend range should have no sessions, got %d", n)
	}
}
