// Package clinictime is the single place where clinic-local wall-clock time
// is converted to UTC and back. Every other component works in UTC instants;
// anything crossing the user or external-calendar boundary goes through here.
package clinictime

import (
	"errors"
	"fmt"
	"time"
)

// SlotDuration is the fixed granularity of the bookable grid.
const SlotDuration = 30 * time.Minute

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

var ErrInvalidTime = errors.New("invalid clinic-local time")

// Normalizer converts between clinic-local wall-clock time and UTC using the
// clinic's configured timezone rules, never the process environment.
type Normalizer struct {
	loc *time.Location
}

func NewNormalizer(zone string) (*Normalizer, error) {
	if zone == "" {
		return nil, fmt.Errorf("%w: empty timezone", ErrInvalidTime)
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidTime, zone)
	}
	return &Normalizer{loc: loc}, nil
}

func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// ToUTC converts a clinic-local date ("2006-01-02") and wall clock ("15:04")
// to a UTC instant. Wall times inside a DST gap do not exist, and wall times
// inside a fall-back transition occur twice; both are rejected rather than
// resolved to an arbitrary instant.
func (n *Normalizer) ToUTC(date, wallClock string) (time.Time, error) {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q", ErrInvalidTime, date)
	}
	w, err := time.Parse(TimeLayout, wallClock)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad wall clock %q", ErrInvalidTime, wallClock)
	}

	local := time.Date(d.Year(), d.Month(), d.Day(), w.Hour(), w.Minute(), 0, 0, n.loc)

	// time.Date normalizes nonexistent wall times across a DST gap; if the
	// components changed, the requested time never occurs in this zone.
	if !sameWallClock(local, d, w) {
		return time.Time{}, fmt.Errorf("%w: %s %s does not exist in %s", ErrInvalidTime, date, wallClock, n.loc)
	}

	// A fall-back transition repeats a stretch of wall clock. If a nearby
	// instant reads as the same wall clock, the input names two instants.
	// Half-hour shifts exist (Lord Howe), so those offsets are probed too.
	for _, shift := range []time.Duration{-time.Hour, -30 * time.Minute, 30 * time.Minute, time.Hour} {
		if sameWallClock(local.Add(shift).In(n.loc), d, w) {
			return time.Time{}, fmt.Errorf("%w: %s %s is ambiguous in %s", ErrInvalidTime, date, wallClock, n.loc)
		}
	}

	return local.UTC(), nil
}

func sameWallClock(t, d, w time.Time) bool {
	return t.Year() == d.Year() && t.Month() == d.Month() && t.Day() == d.Day() &&
		t.Hour() == w.Hour() && t.Minute() == w.Minute()
}

// ToClinicLocal converts a UTC instant back to the clinic's wall clock.
func (n *Normalizer) ToClinicLocal(t time.Time) time.Time {
	return t.In(n.loc)
}

// DayBoundsUTC returns the UTC instants bounding one clinic-local calendar
// day: [local midnight, next local midnight).
func (n *Normalizer) DayBoundsUTC(date string) (time.Time, time.Time, error) {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: bad date %q", ErrInvalidTime, date)
	}
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, n.loc)
	end := start.AddDate(0, 0, 1)
	return start.UTC(), end.UTC(), nil
}

// AlignDown rounds an instant down to the 30-minute grid.
func AlignDown(t time.Time) time.Time {
	return t.Truncate(SlotDuration)
}

// AlignUp rounds an instant up to the 30-minute grid.
func AlignUp(t time.Time) time.Time {
	down := t.Truncate(SlotDuration)
	if down.Equal(t) {
		return t
	}
	return down.Add(SlotDuration)
}

// SlotsCovering enumerates the starts of every 30-minute slot overlapped by
// [start, end). An unaligned range is expanded: start rounds down, end rounds
// up, so a partially covered slot counts as covered.
func SlotsCovering(start, end time.Time) []time.Time {
	if !end.After(start) {
		return nil
	}
	var slots []time.Time
	for cur := AlignDown(start); cur.Before(end); cur = cur.Add(SlotDuration) {
		slots = append(slots, cur)
	}
	return slots
}
