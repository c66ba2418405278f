package event

import (
	"testing"
	"time"
)

func TestInferSeason(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		at   time.Time
		want string
	}{
		{"march belongs to previous year's season", time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC), "2025"},
		{"june still previous season", time.Date(2026, time.June, 30, 23, 59, 0, 0, time.UTC), "2025"},
		{"july starts the new season", time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC), "2026"},
		{"december same year", time.Date(2025, time.December, 24, 0, 0, 0, 0, time.UTC), "2025"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := InferSeason(tc.at); got != tc.want {
				t.Fatalf("InferSeason(%s) = %s, want %s", tc.at, got, tc.want)
			}
		})
	}
}

func TestPreviousSeason(t *testing.T) {
	t.Parallel()

	if got := PreviousSeason("2025"); got != "2024" {
		t.Fatalf("PreviousSeason(2025) = %s", got)
	}
	if got := PreviousSeason("current"); got != "current" {
		t.Fatalf("non-numeric season mangled: %s", got)
	}
}

func TestParseSport(t *testing.T) {
	t.Parallel()

	if s, ok := ParseSport(" Football "); !ok || s != SportFootball {
		t.Fatalf("ParseSport(Football) = %s, %v", s, ok)
	}
	if _, ok := ParseSport("cricket"); ok {
		t.Fatalf("cricket should not parse")
	}
}
