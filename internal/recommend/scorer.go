package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrRecommendationUnavailable means the scoring service failed or returned
// something unusable. The booking flow degrades to the plain availability
// list; it never fails on this.
var ErrRecommendationUnavailable = errors.New("recommendation scoring unavailable")

// Candidate is one open slot with the utilization and preference context the
// scoring service reasons over.
type Candidate struct {
	SlotTime         string  `json:"slot_time"` // clinic-local "HH:MM"
	BookingRate      float64 `json:"booking_rate"`
	UnderUtilized    bool    `json:"under_utilized"`
	PatientPreferred bool    `json:"patient_preferred"`
}

type ScoringRequest struct {
	ProviderID string      `json:"provider_id"`
	Date       string      `json:"date"`
	Weekday    string      `json:"weekday"`
	Candidates []Candidate `json:"candidates"`
}

type ScoredCandidate struct {
	SlotTime string   `json:"slot_time"`
	Score    float64  `json:"score"` // 0-100
	Reasons  []string `json:"reasons"`
}

type ScoringResult struct {
	Candidates []ScoredCandidate `json:"candidates"`
	Summary    string            `json:"summary"`
}

// Scorer produces ranked slot scores with human-readable rationale. Its
// output is an untrusted suggestion: the selector always re-validates against
// ground-truth availability.
type Scorer interface {
	Score(ctx context.Context, req ScoringRequest) (*ScoringResult, error)
}

// HTTPScorer calls the external reasoning service. The loosely-typed payload
// is parsed into explicit structures here at the boundary, with strict
// validation; anything malformed degrades via ErrRecommendationUnavailable.
type HTTPScorer struct {
	url  string
	http *http.Client
}

func NewHTTPScorer(url string) *HTTPScorer {
	return &HTTPScorer{
		url:  url,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPScorer) Score(ctx context.Context, req ScoringRequest) (*ScoringResult, error) {
	if s.url == "" {
		return nil, fmt.Errorf("%w: no scoring service configured", ErrRecommendationUnavailable)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrRecommendationUnavailable, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrRecommendationUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecommendationUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: scoring service status=%d", ErrRecommendationUnavailable, resp.StatusCode)
	}

	var result ScoringResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrRecommendationUnavailable, err)
	}
	if len(result.Candidates) == 0 {
		return nil, fmt.Errorf("%w: empty candidate list", ErrRecommendationUnavailable)
	}
	for _, c := range result.Candidates {
		if c.SlotTime == "" || c.Score < 0 || c.Score > 100 {
			return nil, fmt.Errorf("%w: malformed candidate %+v", ErrRecommendationUnavailable, c)
		}
	}

	return &result, nil
}
