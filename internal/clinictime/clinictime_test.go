package clinictime

import (
	"errors"
	"testing"
	"time"
)

func mustNormalizer(t *testing.T, zone string) *Normalizer {
	t.Helper()
	n, err := NewNormalizer(zone)
	if err != nil {
		t.Fatalf("NewNormalizer(%q): %v", zone, err)
	}
	return n
}

func TestToUTC_RoundTrip(t *testing.T) {
	n := mustNormalizer(t, "America/New_York")

	cases := []struct {
		date string
		wall string
	}{
		{"2024-06-10", "09:00"},
		{"2024-06-10", "09:30"},
		{"2024-01-15", "16:30"}, // winter, EST
		{"2024-07-04", "00:00"},
	}

	for _, tc := range cases {
		utc, err := n.ToUTC(tc.date, tc.wall)
		if err != nil {
			t.Fatalf("ToUTC(%s %s): %v", tc.date, tc.wall, err)
		}
		if utc.Location() != time.UTC {
			t.Errorf("ToUTC returned non-UTC location %v", utc.Location())
		}
		local := n.ToClinicLocal(utc)
		if got := local.Format(DateLayout); got != tc.date {
			t.Errorf("round trip date: got %s want %s", got, tc.date)
		}
		if got := local.Format(TimeLayout); got != tc.wall {
			t.Errorf("round trip wall clock: got %s want %s", got, tc.wall)
		}
	}
}

func TestToUTC_UsesClinicZoneNotEnvironment(t *testing.T) {
	ny := mustNormalizer(t, "America/New_York")

	utc, err := ny.ToUTC("2024-06-10", "09:00")
	if err != nil {
		t.Fatalf("ToUTC: %v", err)
	}
	// EDT is UTC-4 in June.
	want := time.Date(2024, 6, 10, 13, 0, 0, 0, time.UTC)
	if !utc.Equal(want) {
		t.Errorf("got %v want %v", utc, want)
	}
}

func TestToUTC_DSTGapRejected(t *testing.T) {
	n := mustNormalizer(t, "America/New_York")

	// 2024-03-10 02:30 never occurs: clocks jump from 02:00 to 03:00.
	_, err := n.ToUTC("2024-03-10", "02:30")
	if !errors.Is(err, ErrInvalidTime) {
		t.Fatalf("expected ErrInvalidTime for DST gap, got %v", err)
	}

	// The surrounding times are fine.
	if _, err := n.ToUTC("2024-03-10", "01:30"); err != nil {
		t.Errorf("01:30 should exist: %v", err)
	}
	if _, err := n.ToUTC("2024-03-10", "03:00"); err != nil {
		t.Errorf("03:00 should exist: %v", err)
	}
}

func TestToUTC_DSTFallBackAmbiguousRejected(t *testing.T) {
	n := mustNormalizer(t, "America/New_York")

	// 2024-11-03 01:30 occurs twice: once as EDT (05:30Z), once as EST
	// (06:30Z). Neither reading is picked on the caller's behalf.
	_, err := n.ToUTC("2024-11-03", "01:30")
	if !errors.Is(err, ErrInvalidTime) {
		t.Fatalf("expected ErrInvalidTime for ambiguous fall-back time, got %v", err)
	}

	// Before and after the repeated hour the wall clock is unique.
	if _, err := n.ToUTC("2024-11-03", "00:30"); err != nil {
		t.Errorf("00:30 occurs once: %v", err)
	}
	if _, err := n.ToUTC("2024-11-03", "02:00"); err != nil {
		t.Errorf("02:00 occurs once: %v", err)
	}
}

func TestToUTC_MalformedInput(t *testing.T) {
	n := mustNormalizer(t, "UTC")

	cases := []struct {
		date string
		wall string
	}{
		{"2024-13-01", "09:00"},
		{"June 10", "09:00"},
		{"2024-06-10", "9am"},
		{"2024-06-10", "25:00"},
		{"", ""},
	}
	for _, tc := range cases {
		if _, err := n.ToUTC(tc.date, tc.wall); !errors.Is(err, ErrInvalidTime) {
			t.Errorf("ToUTC(%q, %q): expected ErrInvalidTime, got %v", tc.date, tc.wall, err)
		}
	}
}

func TestNewNormalizer_UnknownZone(t *testing.T) {
	if _, err := NewNormalizer("Mars/Olympus_Mons"); !errors.Is(err, ErrInvalidTime) {
		t.Fatalf("expected ErrInvalidTime, got %v", err)
	}
	if _, err := NewNormalizer(""); !errors.Is(err, ErrInvalidTime) {
		t.Fatalf("expected ErrInvalidTime for empty zone, got %v", err)
	}
}

func TestDayBoundsUTC(t *testing.T) {
	n := mustNormalizer(t, "America/New_York")

	start, end, err := n.DayBoundsUTC("2024-06-10")
	if err != nil {
		t.Fatalf("DayBoundsUTC: %v", err)
	}
	if want := time.Date(2024, 6, 10, 4, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("start: got %v want %v", start, want)
	}
	if want := time.Date(2024, 6, 11, 4, 0, 0, 0, time.UTC); !end.Equal(want) {
		t.Errorf("end: got %v want %v", end, want)
	}

	// The spring-forward day is 23 hours long; bounds must reflect that.
	start, end, err = n.DayBoundsUTC("2024-03-10")
	if err != nil {
		t.Fatalf("DayBoundsUTC: %v", err)
	}
	if got := end.Sub(start); got != 23*time.Hour {
		t.Errorf("spring-forward day length: got %s want 23h", got)
	}
}

func TestAlign(t *testing.T) {
	base := time.Date(2024, 6, 10, 14, 0, 0, 0, time.UTC)

	if got := AlignDown(base.Add(17 * time.Minute)); !got.Equal(base) {
		t.Errorf("AlignDown(14:17): got %v want %v", got, base)
	}
	if got := AlignUp(base.Add(17 * time.Minute)); !got.Equal(base.Add(30 * time.Minute)) {
		t.Errorf("AlignUp(14:17): got %v want 14:30", got)
	}
	if got := AlignDown(base); !got.Equal(base) {
		t.Errorf("AlignDown on aligned time moved it to %v", got)
	}
	if got := AlignUp(base); !got.Equal(base) {
		t.Errorf("AlignUp on aligned time moved it to %v", got)
	}
}

func TestSlotsCovering(t *testing.T) {
	at := func(h, m int) time.Time {
		return time.Date(2024, 6, 10, h, m, 0, 0, time.UTC)
	}

	// Aligned one-hour range covers exactly two slots.
	got := SlotsCovering(at(14, 0), at(15, 0))
	if len(got) != 2 || !got[0].Equal(at(14, 0)) || !got[1].Equal(at(14, 30)) {
		t.Errorf("14:00-15:00: got %v", got)
	}

	// Unaligned range expands outward: 14:10-14:40 touches both slots.
	got = SlotsCovering(at(14, 10), at(14, 40))
	if len(got) != 2 || !got[0].Equal(at(14, 0)) || !got[1].Equal(at(14, 30)) {
		t.Errorf("14:10-14:40: got %v", got)
	}

	// Range ending exactly on a boundary does not bleed into the next slot.
	got = SlotsCovering(at(14, 0), at(14, 30))
	if len(got) != 1 || !got[0].Equal(at(14, 0)) {
		t.Errorf("14:00-14:30: got %v", got)
	}

	if got := SlotsCovering(at(14, 0), at(14, 0)); got != nil {
		t.Errorf("empty range: got %v", got)
	}
	if got := SlotsCovering(at(15, 0), at(14, 0)); got != nil {
		t.Errorf("inverted range: got %v", got)
	}
}
