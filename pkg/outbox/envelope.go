package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Actor identifies who caused the event.
type Actor struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// Envelope is the stable JSON stored in outbox_events.payload and sent as the Pub/Sub message body.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	EventType  string          `json:"eventType"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *Actor          `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// Decode parses a stored payload back into its envelope.
func Decode(payload []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(payload, &env)
	return env, err
}
