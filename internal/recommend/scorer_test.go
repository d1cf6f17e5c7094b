package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func scoringRequest() ScoringRequest {
	return ScoringRequest{
		ProviderID: "p-1",
		Date:       "2025-06-03",
		Weekday:    "Tuesday",
		Candidates: []Candidate{{SlotTime: "09:00"}, {SlotTime: "14:00", UnderUtilized: true}},
	}
}

func TestHTTPScorer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ScoringRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Candidates) != 2 {
			t.Errorf("candidates = %d, want 2", len(req.Candidates))
		}

		json.NewEncoder(w).Encode(ScoringResult{
			Summary: "Tuesday afternoons run light",
			Candidates: []ScoredCandidate{
				{SlotTime: "14:00", Score: 88, Reasons: []string{"light afternoon"}},
				{SlotTime: "09:00", Score: 40},
			},
		})
	}))
	defer srv.Close()

	result, err := NewHTTPScorer(srv.URL).Score(context.Background(), scoringRequest())
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(result.Candidates) != 2 || result.Candidates[0].SlotTime != "14:00" {
		t.Errorf("result = %+v", result)
	}
	if result.Summary == "" {
		t.Error("summary missing")
	}
}

func TestHTTPScorer_NoURL(t *testing.T) {
	_, err := NewHTTPScorer("").Score(context.Background(), scoringRequest())
	if !errors.Is(err, ErrRecommendationUnavailable) {
		t.Fatalf("err = %v, want ErrRecommendationUnavailable", err)
	}
}

func TestHTTPScorer_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTPScorer(srv.URL).Score(context.Background(), scoringRequest())
	if !errors.Is(err, ErrRecommendationUnavailable) {
		t.Fatalf("err = %v, want ErrRecommendationUnavailable", err)
	}
}

func TestHTTPScorer_MalformedResponses(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", "<html>oops</html>"},
		{"empty candidates", `{"candidates":[],"summary":"nothing"}`},
		{"missing slot time", `{"candidates":[{"score":50}]}`},
		{"score out of range", `{"candidates":[{"slot_time":"09:00","score":300}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewHTTPScorer(srv.URL).Score(context.Background(), scoringRequest())
			if !errors.Is(err, ErrRecommendationUnavailable) {
				t.Fatalf("err = %v, want ErrRecommendationUnavailable", err)
			}
		})
	}
}
