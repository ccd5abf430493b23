package gateway

import (
	"encoding/json"

	"github.com/mazad-game/mazad/internal/game"
)

// Inbound event names.
const (
	MsgJoinRoom       = "joinRoom"
	MsgRequestAuction = "requestAuction"
	MsgChangeQuestion = "changeQuestion"
	MsgPlaceBid       = "placeBid"
	MsgWinAuction     = "winAuction"
	MsgSubmitAnswer   = "submitAnswer"
	MsgUsePowerUp     = "usePowerUp"
	MsgLeaveRoom      = "leaveRoom"
)

// ClientMessage is the single inbound wire shape; fields are populated per
// message type.
type ClientMessage struct {
	Type string `json:"type"`

	// joinRoom
	RoomID    string         `json:"roomId,omitempty"`
	TeamAName string         `json:"teamAName,omitempty"`
	TeamBName string         `json:"teamBName,omitempty"`
	Settings  *game.Settings `json:"settings,omitempty"`

	// shared
	Team string `json:"team,omitempty"`
	Name string `json:"name,omitempty"`

	// requestAuction / winAuction
	Level string `json:"level,omitempty"`

	// winAuction: display payload relayed by the leader's client. The room's
	// own question record stays authoritative; this field is never consulted
	// for arbitration.
	Question json.RawMessage `json:"question,omitempty"`

	// placeBid
	Amount int `json:"amount,omitempty"`

	// submitAnswer
	Answer string `json:"answer,omitempty"`

	// usePowerUp
	Kind string `json:"kind,omitempty"`
}
