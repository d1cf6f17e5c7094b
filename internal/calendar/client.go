package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clinicflow/slot-sync/internal/appointment"
)

var (
	// ErrNotConnected means the provider has no usable calendar credential:
	// no refresh token, or the token was rejected at exchange. Sync is
	// skipped; booking is unaffected. It is the same value the appointment
	// service matches on, so best-effort pushes degrade cleanly.
	ErrNotConnected = appointment.ErrCalendarNotConnected

	// ErrSyncTransient is a network or API failure talking to the external
	// provider. It aborts the current operation for that provider only and is
	// retried on the next sweep, never surfaced to the end user.
	ErrSyncTransient = errors.New("transient calendar sync failure")
)

type ClientConfig struct {
	TokenURL     string
	APIBaseURL   string
	ClientID     string
	ClientSecret string
	CalendarID   string // defaults to "primary"
}

// Client talks to the external calendar provider's REST API. Access tokens
// are obtained per operation by exchanging the provider's refresh token and
// are never persisted.
type Client struct {
	cfg  ClientConfig
	http *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: 25 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// ExchangeRefreshToken trades a stored refresh token for a short-lived access
// token. A 4xx from the token endpoint means the grant is dead and the
// provider should be treated as not connected; anything else is transient.
func (c *Client) ExchangeRefreshToken(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", ErrNotConnected
	}

	form := url.Values{
		"refresh_token": {refreshToken},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: build token request: %v", ErrSyncTransient, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token exchange: %v", ErrSyncTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return "", fmt.Errorf("%w: token endpoint status=%d", ErrNotConnected, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: token endpoint status=%d", ErrSyncTransient, resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode token response: %v", ErrSyncTransient, err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrSyncTransient)
	}

	return body.AccessToken, nil
}

// ListEvents fetches every event overlapping [from, to). Malformed or
// cancelled items are skipped so one bad event cannot poison a sweep.
func (c *Client) ListEvents(ctx context.Context, accessToken string, from, to time.Time) ([]ExternalEvent, error) {
	var events []ExternalEvent
	pageToken := ""

	for {
		u, err := url.Parse(fmt.Sprintf("%s/calendars/%s/events", c.cfg.APIBaseURL, url.PathEscape(c.cfg.CalendarID)))
		if err != nil {
			return nil, fmt.Errorf("%w: build events url: %v", ErrSyncTransient, err)
		}
		q := u.Query()
		q.Set("timeMin", from.UTC().Format(time.RFC3339))
		q.Set("timeMax", to.UTC().Format(time.RFC3339))
		q.Set("singleEvents", "true")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		u.RawQuery = q.Encode()

		var page eventListResponse
		if err := c.do(ctx, accessToken, http.MethodGet, u.String(), nil, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if item.Status == "cancelled" {
				continue
			}
			ev, err := parseEvent(item)
			if err != nil {
				// Skip malformed rows rather than failing the whole listing.
				continue
			}
			events = append(events, ev)
		}

		if page.NextPageToken == "" {
			return events, nil
		}
		pageToken = page.NextPageToken
	}
}

// EventPayload is the outbound event body pushed for an appointment.
type EventPayload struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	ColorID     string
}

func (p EventPayload) wire() wireEvent {
	return wireEvent{
		Summary:     p.Summary,
		Description: p.Description,
		ColorID:     p.ColorID,
		Start:       &eventTime{DateTime: p.Start.UTC().Format(time.RFC3339)},
		End:         &eventTime{DateTime: p.End.UTC().Format(time.RFC3339)},
	}
}

func (c *Client) CreateEvent(ctx context.Context, accessToken string, payload EventPayload) (string, error) {
	u := fmt.Sprintf("%s/calendars/%s/events", c.cfg.APIBaseURL, url.PathEscape(c.cfg.CalendarID))

	var created wireEvent
	if err := c.do(ctx, accessToken, http.MethodPost, u, payload.wire(), &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("%w: created event has no id", ErrSyncTransient)
	}

	return created.ID, nil
}

// ErrEventGone reports an update/delete against an event id the external
// calendar no longer knows. Callers treat it as "mapping is stale".
var ErrEventGone = errors.New("external event no longer exists")

func (c *Client) UpdateEvent(ctx context.Context, accessToken, eventID string, payload EventPayload) error {
	u := fmt.Sprintf("%s/calendars/%s/events/%s", c.cfg.APIBaseURL, url.PathEscape(c.cfg.CalendarID), url.PathEscape(eventID))
	return c.do(ctx, accessToken, http.MethodPut, u, payload.wire(), nil)
}

// DeleteEvent removes an event. Deleting an event that is already gone is a
// success: repeated deletes must stay idempotent.
func (c *Client) DeleteEvent(ctx context.Context, accessToken, eventID string) error {
	u := fmt.Sprintf("%s/calendars/%s/events/%s", c.cfg.APIBaseURL, url.PathEscape(c.cfg.CalendarID), url.PathEscape(eventID))

	err := c.do(ctx, accessToken, http.MethodDelete, u, nil, nil)
	if errors.Is(err, ErrEventGone) {
		return nil
	}
	return err
}

func (c *Client) do(ctx context.Context, accessToken, method, rawURL string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encode request: %v", ErrSyncTransient, err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrSyncTransient, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrSyncTransient, method, rawURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: events API status=401", ErrNotConnected)
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrEventGone
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: events API status=%d body=%s", ErrSyncTransient, resp.StatusCode, string(b))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrSyncTransient, err)
	}

	return nil
}
