package calendar

import (
	"fmt"
	"time"

	"github.com/clinicflow/slot-sync/internal/clinictime"
)

// ExternalEvent is one calendar entry fetched from the external provider,
// parsed into an explicit structure at the boundary. It exists only to decide
// which slots to block; it is never persisted beyond the event-id reference
// kept on an owning appointment.
type ExternalEvent struct {
	ID          string
	Summary     string
	Description string

	// Timed events carry UTC instants.
	Start time.Time
	End   time.Time

	// All-day events carry calendar dates instead; EndDate is exclusive per
	// the calendar provider's convention.
	AllDay    bool
	StartDate string
	EndDate   string
}

// eventTime mirrors the provider's start/end object: exactly one of dateTime
// (timed) or date (all-day) is set.
type eventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type wireEvent struct {
	ID          string     `json:"id"`
	Status      string     `json:"status,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	Description string     `json:"description,omitempty"`
	ColorID     string     `json:"colorId,omitempty"`
	Start       *eventTime `json:"start,omitempty"`
	End         *eventTime `json:"end,omitempty"`
}

type eventListResponse struct {
	Items         []wireEvent `json:"items"`
	NextPageToken string      `json:"nextPageToken,omitempty"`
}

func parseEvent(w wireEvent) (ExternalEvent, error) {
	ev := ExternalEvent{
		ID:          w.ID,
		Summary:     w.Summary,
		Description: w.Description,
	}

	if w.Start == nil || w.End == nil {
		return ExternalEvent{}, fmt.Errorf("event %s: missing start or end", w.ID)
	}

	// All-day events are detected by the absence of a time component.
	if w.Start.Date != "" {
		if w.End.Date == "" {
			return ExternalEvent{}, fmt.Errorf("event %s: all-day start with timed end", w.ID)
		}
		if _, err := time.Parse(clinictime.DateLayout, w.Start.Date); err != nil {
			return ExternalEvent{}, fmt.Errorf("event %s: bad start date %q", w.ID, w.Start.Date)
		}
		if _, err := time.Parse(clinictime.DateLayout, w.End.Date); err != nil {
			return ExternalEvent{}, fmt.Errorf("event %s: bad end date %q", w.ID, w.End.Date)
		}
		ev.AllDay = true
		ev.StartDate = w.Start.Date
		ev.EndDate = w.End.Date
		return ev, nil
	}

	start, err := time.Parse(time.RFC3339, w.Start.DateTime)
	if err != nil {
		return ExternalEvent{}, fmt.Errorf("event %s: bad start dateTime %q", w.ID, w.Start.DateTime)
	}
	end, err := time.Parse(time.RFC3339, w.End.DateTime)
	if err != nil {
		return ExternalEvent{}, fmt.Errorf("event %s: bad end dateTime %q", w.ID, w.End.DateTime)
	}
	if !end.After(start) {
		return ExternalEvent{}, fmt.Errorf("event %s: end not after start", w.ID)
	}

	ev.Start = start.UTC()
	ev.End = end.UTC()
	return ev, nil
}

// BlockRanges resolves an event to the UTC time ranges it occupies on the
// clinic's grid. A timed event is its own range; an all-day event covers every
// clinic-local calendar day in [StartDate, EndDate), the end date itself
// excluded.
func (ev ExternalEvent) BlockRanges(tz *clinictime.Normalizer) ([][2]time.Time, error) {
	if !ev.AllDay {
		return [][2]time.Time{{ev.Start, ev.End}}, nil
	}

	startDay, err := time.Parse(clinictime.DateLayout, ev.StartDate)
	if err != nil {
		return nil, fmt.Errorf("event %s: bad start date %q", ev.ID, ev.StartDate)
	}
	endDay, err := time.Parse(clinictime.DateLayout, ev.EndDate)
	if err != nil {
		return nil, fmt.Errorf("event %s: bad end date %q", ev.ID, ev.EndDate)
	}

	var ranges [][2]time.Time
	for day := startDay; day.Before(endDay); day = day.AddDate(0, 0, 1) {
		from, to, err := tz.DayBoundsUTC(day.Format(clinictime.DateLayout))
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, [2]time.Time{from, to})
	}

	return ranges, nil
}
