package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

// DeviceClass selects which heartbeat interval column applies. It is
// supplied by the device-detection collaborator, never derived here.
type DeviceClass string

const (
	DeviceDesktop DeviceClass = "desktop"
	DeviceMobile  DeviceClass = "mobile"
)

// Action is a single behavioral event carried inside a payload.
type Action struct {
	Name      string  `json:"name"`
	Timestamp int64   `json:"timestamp"` // Unix timestamp in milliseconds
	Value     *int64  `json:"value,omitempty"`
	Label     *string `json:"label,omitempty"`
}

// WirePayload is the envelope the delivery layer carries to the collector.
// SentAt is stamped fresh at every actual transmission attempt; CreatedAt
// and UpdatedAt describe the payload itself and never change on retry.
type WirePayload struct {
	WorkspaceID      string            `json:"workspaceId"`
	SessionID        string            `json:"sessionId"`
	Path             string            `json:"path,omitempty"`
	Actions          []Action          `json:"actions,omitempty"`
	ActiveDuration   int64             `json:"activeDuration,omitempty"` // milliseconds
	MaxScroll        int               `json:"maxScroll,omitempty"`      // percentage
	CustomDimensions map[string]string `json:"customDimensions,omitempty"`
	CreatedAt        int64             `json:"createdAt"`
	UpdatedAt        int64             `json:"updatedAt"`
	SentAt           int64             `json:"sentAt"`
}

// QueuedPayload wraps a payload that failed all live channels and now sits
// in the persisted offline queue.
type QueuedPayload struct {
	ID          string          `json:"id"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   int64           `json:"createdAt"` // Unix milliseconds
	Attempts    int             `json:"attempts"`
	LastAttempt int64           `json:"lastAttempt,omitempty"` // 0 when never attempted
}

// NewQueuedPayload wraps raw payload bytes with a fresh queue identity.
func NewQueuedPayload(payload []byte, createdAt int64) QueuedPayload {
	return QueuedPayload{
		ID:        uuid.New().String(),
		Payload:   payload,
		CreatedAt: createdAt,
	}
}

// SendResult reports the outcome of a delivery attempt. The transport
// never returns an error to its caller; this value is the whole story.
type SendResult struct {
	Success bool   `json:"success"`
	Queued  bool   `json:"queued,omitempty"`
	Error   string `json:"error,omitempty"`
}
