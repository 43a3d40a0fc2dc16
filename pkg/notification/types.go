// Package notification contains the public domain models shared by the relay:
// device registrations, outbound messages, and the ticket/receipt pair a push
// gateway hands back for each accepted message.
package notification

import "time"

// UnknownValue fills any device descriptor field the client did not supply.
const UnknownValue = "unknown"

// Ticket and receipt statuses reported by gateways.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusUnknown = "unknown"
)

// DeviceInfo describes the device a token belongs to.
type DeviceInfo struct {
	Platform   string `json:"platform"`
	OSVersion  string `json:"osVersion"`
	AppVersion string `json:"appVersion"`
}

// WithDefaults returns a copy with every empty field set to UnknownValue.
func (d DeviceInfo) WithDefaults() DeviceInfo {
	if d.Platform == "" {
		d.Platform = UnknownValue
	}
	if d.OSVersion == "" {
		d.OSVersion = UnknownValue
	}
	if d.AppVersion == "" {
		d.AppVersion = UnknownValue
	}
	return d
}

// Registration is the metadata stored for one token.
type Registration struct {
	StoredAt   time.Time  `json:"storedAt"`
	LastUsed   *time.Time `json:"lastUsed"`
	DeviceInfo DeviceInfo `json:"deviceInfo"`
}

// OutboundMessage is a single notification addressed to one token.
// The JSON field names follow the Expo push API.
type OutboundMessage struct {
	To         string         `json:"to"`
	Sound      string         `json:"sound,omitempty"`
	Title      string         `json:"title,omitempty"`
	Body       string         `json:"body,omitempty"`
	Data       map[string]any `json:"data"`
	TrackingID string         `json:"_trackingId,omitempty"`
}

// Ticket acknowledges one submitted message. An accepted message carries an ID
// that can later be redeemed for a Receipt; a rejected one carries
// Status == StatusError and no ID.
type Ticket struct {
	ID      string         `json:"id,omitempty"`
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Receipt is the final delivery outcome for a ticket.
type Receipt struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

// SendRequest asks the relay to notify every registered token, or only
// TargetToken when it is set. A nil Title or Body takes the default; an
// explicit empty string is sent as is.
type SendRequest struct {
	Title       *string        `json:"title,omitempty"`
	Body        *string        `json:"body,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	TargetToken string         `json:"targetToken,omitempty"`
}
