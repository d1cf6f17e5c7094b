// Package recommend ranks a provider's open slots for a patient, favoring
// under-utilized times. Scoring rationale is delegated to an external
// reasoning service whose output is treated as a suggestion only: every
// recommended time is re-validated against ground-truth availability.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicflow/slot-sync/internal/clinictime"
	"github.com/clinicflow/slot-sync/internal/patientpref"
	"github.com/clinicflow/slot-sync/internal/slotgrid"
	"github.com/clinicflow/slot-sync/internal/stats"
)

// Weighting of the composite score. The scorer's opinion carries the most
// weight, but an under-utilized or patient-preferred slot always gets a
// deterministic boost on top.
const (
	scorerWeight       = 0.6
	underUtilizedBonus = 25
	preferredBonus     = 15
)

type Recommendation struct {
	Time          string   `json:"time"` // clinic-local "HH:MM"
	Score         float64  `json:"score"`
	Reasons       []string `json:"reasons"`
	UnderUtilized bool     `json:"under_utilized"`
	BookingRate   float64  `json:"booking_rate"`
}

// Result is what the booking flow renders. When Degraded is set the scoring
// service was unusable and only the plain availability list is offered.
type Result struct {
	Recommendations []Recommendation `json:"recommendations"`
	Summary         string           `json:"summary"`
	Degraded        bool             `json:"degraded"`
	AvailableTimes  []string         `json:"available_times"`
}

type AvailabilityReader interface {
	GetAvailability(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]slotgrid.Slot, error)
}

type UtilizationReader interface {
	GetForWeekday(ctx context.Context, providerID uuid.UUID, weekday time.Weekday) ([]stats.Record, error)
}

type PreferenceReader interface {
	Get(ctx context.Context, patientID uuid.UUID) (*patientpref.Preference, error)
}

type Selector struct {
	grid      AvailabilityReader
	stats     UtilizationReader
	prefs     PreferenceReader
	scorer    Scorer
	tz        *clinictime.Normalizer
	threshold float64 // booking rate below this is under-utilized
	log       zerolog.Logger
}

func NewSelector(
	grid AvailabilityReader,
	statsReader UtilizationReader,
	prefs PreferenceReader,
	scorer Scorer,
	tz *clinictime.Normalizer,
	threshold float64,
	log zerolog.Logger,
) *Selector {
	return &Selector{
		grid:      grid,
		stats:     statsReader,
		prefs:     prefs,
		scorer:    scorer,
		tz:        tz,
		threshold: threshold,
		log:       log.With().Str("component", "slot_selector").Logger(),
	}
}

// Recommend ranks the open slots of one provider on one clinic-local date.
// Availability is fetched fresh inside the call, never cached across it.
func (s *Selector) Recommend(ctx context.Context, providerID, patientID uuid.UUID, date string) (*Result, error) {
	dayStart, dayEnd, err := s.tz.DayBoundsUTC(date)
	if err != nil {
		return nil, err
	}

	slots, err := s.grid.GetAvailability(ctx, providerID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("read availability: %w", err)
	}

	open := make(map[string]bool)
	var openTimes []string
	for _, slot := range slots {
		if !slot.Available {
			continue
		}
		wall := s.tz.ToClinicLocal(slot.StartsAt).Format(clinictime.TimeLayout)
		open[wall] = true
		openTimes = append(openTimes, wall)
	}
	sort.Strings(openTimes)

	if len(openTimes) == 0 {
		return &Result{Summary: "No open slots on " + date, AvailableTimes: nil}, nil
	}

	weekday := s.tz.ToClinicLocal(dayStart).Weekday()
	rates := s.utilizationByTime(ctx, providerID, weekday)
	preferred := s.preferredBuckets(ctx, patientID)

	candidates := make([]Candidate, 0, len(openTimes))
	for _, wall := range openTimes {
		rate, hasRate := rates[wall]
		w, _ := time.Parse(clinictime.TimeLayout, wall)
		candidates = append(candidates, Candidate{
			SlotTime:         wall,
			BookingRate:      rate,
			UnderUtilized:    hasRate && rate < s.threshold,
			PatientPreferred: preferred[patientpref.BucketOf(w)],
		})
	}

	scored, err := s.scorer.Score(ctx, ScoringRequest{
		ProviderID: providerID.String(),
		Date:       date,
		Weekday:    weekday.String(),
		Candidates: candidates,
	})
	if err != nil {
		if !errors.Is(err, ErrRecommendationUnavailable) {
			s.log.Warn().Err(err).Msg("scorer failed with unexpected error")
		}
		// Degrade to plain availability; never fail the booking flow.
		return &Result{
			Summary:        "Recommendations unavailable, showing open slots",
			Degraded:       true,
			AvailableTimes: openTimes,
		}, nil
	}

	byTime := make(map[string]Candidate, len(candidates))
	for _, c := range candidates {
		byTime[c.SlotTime] = c
	}

	var recs []Recommendation
	for _, sc := range scored.Candidates {
		cand, ok := byTime[sc.SlotTime]
		if !ok || !open[sc.SlotTime] {
			// A recommendation for a slot that is not actually open is a
			// contract violation; drop it rather than surface it.
			s.log.Debug().Str("slot_time", sc.SlotTime).Msg("dropping recommendation for unavailable slot")
			continue
		}
		recs = append(recs, s.compose(cand, sc))
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].Time < recs[j].Time
	})

	summary := scored.Summary
	if summary == "" {
		summary = fmt.Sprintf("%d recommended times for %s", len(recs), date)
	}

	return &Result{
		Recommendations: recs,
		Summary:         summary,
		AvailableTimes:  openTimes,
	}, nil
}

// compose blends the scorer's opinion with the deterministic utilization and
// preference boosts, bounded to 0-100.
func (s *Selector) compose(cand Candidate, sc ScoredCandidate) Recommendation {
	score := scorerWeight * sc.Score
	reasons := append([]string(nil), sc.Reasons...)

	if cand.UnderUtilized {
		score += underUtilizedBonus
		reasons = append(reasons, fmt.Sprintf("historically under-utilized (%.0f%% booked)", cand.BookingRate))
	}
	if cand.PatientPreferred {
		score += preferredBonus
		reasons = append(reasons, "matches patient's preferred time of day")
	}
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	return Recommendation{
		Time:          cand.SlotTime,
		Score:         score,
		Reasons:       reasons,
		UnderUtilized: cand.UnderUtilized,
		BookingRate:   cand.BookingRate,
	}
}

func (s *Selector) utilizationByTime(ctx context.Context, providerID uuid.UUID, weekday time.Weekday) map[string]float64 {
	records, err := s.stats.GetForWeekday(ctx, providerID, weekday)
	if err != nil {
		s.log.Warn().Err(err).Msg("utilization lookup failed, scoring without history")
		return nil
	}

	rates := make(map[string]float64, len(records))
	for _, rec := range records {
		rates[rec.SlotTime] = rec.BookingRate
	}
	return rates
}

func (s *Selector) preferredBuckets(ctx context.Context, patientID uuid.UUID) map[patientpref.Bucket]bool {
	pref, err := s.prefs.Get(ctx, patientID)
	if err != nil {
		if !errors.Is(err, patientpref.ErrPreferenceNotFound) {
			s.log.Warn().Err(err).Msg("preference lookup failed, scoring without preference")
		}
		return nil
	}

	buckets := make(map[patientpref.Bucket]bool, len(pref.Buckets))
	for _, b := range pref.Buckets {
		buckets[b] = true
	}
	return buckets
}
