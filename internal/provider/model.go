package provider

import (
	"time"

	"github.com/google/uuid"
)

type CalendarStatus string

const (
	CalendarNotConnected CalendarStatus = "not_connected"
	CalendarConnected    CalendarStatus = "connected"
)

// Provider is a bookable professional. The refresh token is opaque and
// provider-owned; it never leaves this package except as an argument to the
// calendar token exchange, and is excluded from any JSON rendering.
type Provider struct {
	ID             uuid.UUID      `json:"id"`
	DisplayName    string         `json:"display_name"`
	CalendarStatus CalendarStatus `json:"calendar_status"`
	RefreshToken   string         `json:"-"`
	LastSyncedAt   *time.Time     `json:"last_synced_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Connected reports whether outbound/inbound calendar sync may be attempted.
func (p *Provider) Connected() bool {
	return p.CalendarStatus == CalendarConnected && p.RefreshToken != ""
}
