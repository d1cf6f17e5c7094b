package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeCalendar is an httptest stand-in for the external provider: a token
// endpoint plus an events collection.
type fakeCalendar struct {
	mu sync.Mutex

	validRefreshToken string
	accessToken       string
	tokenStatus       int // 0 means success

	events       map[string]wireEvent
	nextID       int
	pageSize     int
	listRequests int

	srv *httptest.Server
}

func newFakeCalendar(t *testing.T) *fakeCalendar {
	t.Helper()

	f := &fakeCalendar{
		validRefreshToken: "refresh-ok",
		accessToken:       "access-ok",
		events:            make(map[string]wireEvent),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", f.handleToken)
	mux.HandleFunc("/calendars/primary/events", f.handleCollection)
	mux.HandleFunc("/calendars/primary/events/", f.handleItem)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeCalendar) client() *Client {
	return NewClient(ClientConfig{
		TokenURL:     f.srv.URL + "/token",
		APIBaseURL:   f.srv.URL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	})
}

func (f *fakeCalendar) addEvent(ev wireEvent) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	if ev.ID == "" {
		ev.ID = fmt.Sprintf("ev-%d", f.nextID)
	}
	f.events[ev.ID] = ev
	return ev.ID
}

func (f *fakeCalendar) handleToken(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.tokenStatus != 0 {
		w.WriteHeader(f.tokenStatus)
		return
	}
	if err := r.ParseForm(); err != nil || r.PostForm.Get("refresh_token") != f.validRefreshToken {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"access_token": f.accessToken})
}

func (f *fakeCalendar) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer "+f.accessToken
}

func (f *fakeCalendar) handleCollection(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		f.listRequests++

		var ids []string
		for id := range f.events {
			ids = append(ids, id)
		}
		// Deterministic order for pagination.
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				if ids[j] < ids[i] {
					ids[i], ids[j] = ids[j], ids[i]
				}
			}
		}

		start := 0
		if tok := r.URL.Query().Get("pageToken"); tok != "" {
			fmt.Sscanf(tok, "page-%d", &start)
		}

		resp := eventListResponse{}
		end := len(ids)
		if f.pageSize > 0 && start+f.pageSize < end {
			end = start + f.pageSize
			resp.NextPageToken = fmt.Sprintf("page-%d", end)
		}
		for _, id := range ids[start:end] {
			resp.Items = append(resp.Items, f.events[id])
		}
		json.NewEncoder(w).Encode(resp)

	case http.MethodPost:
		var ev wireEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.nextID++
		ev.ID = fmt.Sprintf("ev-%d", f.nextID)
		f.events[ev.ID] = ev
		json.NewEncoder(w).Encode(ev)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeCalendar) handleItem(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/calendars/primary/events/")
	ev, ok := f.events[id]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodPut:
		var updated wireEvent
		if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		updated.ID = ev.ID
		f.events[id] = updated
		json.NewEncoder(w).Encode(updated)
	case http.MethodDelete:
		delete(f.events, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func timedWireEvent(id string, start, end time.Time) wireEvent {
	return wireEvent{
		ID:    id,
		Start: &eventTime{DateTime: start.UTC().Format(time.RFC3339)},
		End:   &eventTime{DateTime: end.UTC().Format(time.RFC3339)},
	}
}

func TestExchangeRefreshToken(t *testing.T) {
	f := newFakeCalendar(t)
	c := f.client()
	ctx := context.Background()

	token, err := c.ExchangeRefreshToken(ctx, "refresh-ok")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if token != "access-ok" {
		t.Errorf("token = %q, want access-ok", token)
	}
}

func TestExchangeRefreshToken_DeadGrant(t *testing.T) {
	f := newFakeCalendar(t)
	c := f.client()

	_, err := c.ExchangeRefreshToken(context.Background(), "revoked")
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestExchangeRefreshToken_ServerError(t *testing.T) {
	f := newFakeCalendar(t)
	f.tokenStatus = http.StatusInternalServerError
	c := f.client()

	_, err := c.ExchangeRefreshToken(context.Background(), "refresh-ok")
	if !errors.Is(err, ErrSyncTransient) {
		t.Fatalf("err = %v, want ErrSyncTransient", err)
	}
}

func TestExchangeRefreshToken_Empty(t *testing.T) {
	f := newFakeCalendar(t)
	c := f.client()

	_, err := c.ExchangeRefreshToken(context.Background(), "")
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestListEvents_Pagination(t *testing.T) {
	f := newFakeCalendar(t)
	f.pageSize = 2
	c := f.client()

	base := time.Date(2025, 6, 9, 14, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		start := base.Add(time.Duration(i) * time.Hour)
		f.addEvent(timedWireEvent("", start, start.Add(30*time.Minute)))
	}

	events, err := c.ListEvents(context.Background(), "access-ok", base.Add(-time.Hour), base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 5 {
		t.Errorf("len = %d, want 5 across pages", len(events))
	}
	if f.listRequests != 3 {
		t.Errorf("list requests = %d, want 3 pages", f.listRequests)
	}
}

func TestListEvents_SkipsCancelledAndMalformed(t *testing.T) {
	f := newFakeCalendar(t)
	c := f.client()

	start := time.Date(2025, 6, 9, 14, 0, 0, 0, time.UTC)
	f.addEvent(timedWireEvent("good", start, start.Add(time.Hour)))

	cancelled := timedWireEvent("cancelled", start, start.Add(time.Hour))
	cancelled.Status = "cancelled"
	f.addEvent(cancelled)

	f.addEvent(wireEvent{ID: "no-times"})
	f.addEvent(wireEvent{
		ID:    "inverted",
		Start: &eventTime{DateTime: start.Format(time.RFC3339)},
		End:   &eventTime{DateTime: start.Add(-time.Hour).Format(time.RFC3339)},
	})

	events, err := c.ListEvents(context.Background(), "access-ok", start.Add(-time.Hour), start.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 || events[0].ID != "good" {
		t.Errorf("events = %+v, want only the well-formed one", events)
	}
}

func TestListEvents_Unauthorized(t *testing.T) {
	f := newFakeCalendar(t)
	c := f.client()

	_, err := c.ListEvents(context.Background(), "stale-token", time.Now(), time.Now().Add(time.Hour))
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestCreateUpdateDeleteEvent(t *testing.T) {
	f := newFakeCalendar(t)
	c := f.client()
	ctx := context.Background()

	start := time.Date(2025, 6, 9, 14, 0, 0, 0, time.UTC)
	payload := EventPayload{
		Summary: "Clinic appointment: Checkup",
		Start:   start,
		End:     start.Add(30 * time.Minute),
		ColorID: "2",
	}

	id, err := c.CreateEvent(ctx, "access-ok", payload)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == "" {
		t.Fatal("create returned empty id")
	}

	payload.ColorID = "8"
	if err := c.UpdateEvent(ctx, "access-ok", id, payload); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := f.events[id].ColorID; got != "8" {
		t.Errorf("colorId = %q, want 8", got)
	}

	if err := c.DeleteEvent(ctx, "access-ok", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	// Deleting again is idempotent.
	if err := c.DeleteEvent(ctx, "access-ok", id); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
}

func TestUpdateEvent_Gone(t *testing.T) {
	f := newFakeCalendar(t)
	c := f.client()

	err := c.UpdateEvent(context.Background(), "access-ok", "never-existed", EventPayload{
		Start: time.Now(),
		End:   time.Now().Add(time.Hour),
	})
	if !errors.Is(err, ErrEventGone) {
		t.Fatalf("err = %v, want ErrEventGone", err)
	}
}
