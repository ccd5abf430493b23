package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Type identifies an outbound room event on the wire.
type Type string

const (
	TypeInit           Type = "init"
	TypeUpdateScores   Type = "updateScores"
	TypeStartAuction   Type = "startAuction"
	TypeUpdateBid      Type = "updateBid"
	TypeRevealQuestion Type = "revealQuestion"
	TypeTimerUpdate    Type = "timerUpdate"
	TypePassTurn       Type = "passTurn"
	TypeRoundResult    Type = "roundResult"
	TypeGameOver       Type = "gameOver"
	TypeNotification   Type = "notification"
)

// Envelope wraps a room event for delivery. TargetConn, when set, restricts
// delivery to a single connection instead of the whole room.
type Envelope struct {
	ID         string          `json:"id"`
	RoomID     string          `json:"room_id"`
	Type       Type            `json:"type"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data"`
	TargetConn string          `json:"target_conn,omitempty"`
}

// Publisher delivers envelopes to room members. Implementations must preserve
// publish order per room.
type Publisher interface {
	Publish(ev Envelope)
}

// New builds a room-wide envelope for the given payload.
func New(roomID string, t Type, payload any) Envelope {
	data, err := json.Marshal(payload)
	if err != nil {
		// Payloads are plain structs; a marshal failure is a programming error.
		log.Error().Err(err).Str("room_id", roomID).Str("event_type", string(t)).Msg("failed to marshal event payload")
	}
	return Envelope{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		Type:      t,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// NewTargeted builds an envelope delivered only to connID.
func NewTargeted(roomID, connID string, t Type, payload any) Envelope {
	ev := New(roomID, t, payload)
	ev.TargetConn = connID
	return ev
}
