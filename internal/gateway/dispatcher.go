package gateway

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mazad-game/mazad/internal/game"
	"github.com/mazad-game/mazad/internal/game/events"
)

// Binder is the slice of the connection manager the dispatcher needs to
// move connections between room fan-out pools.
type Binder interface {
	Bind(connID, roomID string)
	Unbind(connID string)
}

// Dispatcher routes inbound client events into room operations. It owns the
// connection-to-room side table: the current room of a connection is looked
// up here on every event, never stored on the connection itself.
type Dispatcher struct {
	registry *game.Registry
	pub      events.Publisher
	binder   Binder

	mu       sync.Mutex
	sessions map[string]string // connID -> roomID
}

// NewDispatcher wires a dispatcher to the room registry, the publisher used
// for sender-only error notifications, and the fan-out binder.
func NewDispatcher(registry *game.Registry, pub events.Publisher, binder Binder) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		pub:      pub,
		binder:   binder,
		sessions: make(map[string]string),
	}
}

// HandleMessage parses one inbound frame and applies it. Malformed frames
// and unknown event types are dropped; room errors never propagate past the
// offending connection.
func (d *Dispatcher) HandleMessage(connID string, data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Debug().Err(err).Str("conn_id", connID).Msg("dropping malformed client message")
		return
	}

	switch msg.Type {
	case MsgJoinRoom:
		d.handleJoin(connID, msg)
	case MsgLeaveRoom:
		d.release(connID)
	case MsgRequestAuction:
		if room, ok := d.roomFor(connID); ok {
			room.StartRound(connID)
		}
	case MsgChangeQuestion:
		if room, ok := d.roomFor(connID); ok {
			room.ChangeQuestion(connID)
		}
	case MsgPlaceBid:
		if room, ok := d.roomFor(connID); ok {
			room.PlaceBid(connID, game.Team(msg.Team), msg.Amount, msg.Name)
		}
	case MsgWinAuction:
		if room, ok := d.roomFor(connID); ok {
			room.Reveal(game.Team(msg.Team), msg.Level)
		}
	case MsgSubmitAnswer:
		if room, ok := d.roomFor(connID); ok {
			room.SubmitAnswer(game.Team(msg.Team), msg.Answer, msg.Name)
		}
	case MsgUsePowerUp:
		if room, ok := d.roomFor(connID); ok {
			room.UsePowerUp(game.Team(msg.Team), game.PowerUp(msg.Kind))
		}
	default:
		log.Debug().Str("conn_id", connID).Str("type", msg.Type).Msg("ignoring unknown event type")
	}
}

// HandleDisconnect releases the closed connection's room binding.
func (d *Dispatcher) HandleDisconnect(connID string) {
	d.release(connID)
}

func (d *Dispatcher) handleJoin(connID string, msg ClientMessage) {
	if msg.RoomID == "" {
		d.notify(connID, "A room id is required to join.")
		return
	}

	d.mu.Lock()
	prior, hadPrior := d.sessions[connID]
	d.sessions[connID] = msg.RoomID
	d.mu.Unlock()

	// Rejoining a different room releases the old membership first.
	if hadPrior && prior != msg.RoomID {
		if room, ok := d.registry.Get(prior); ok {
			room.Leave(connID)
		}
	}

	room := d.registry.GetOrCreate(msg.RoomID, msg.Settings)
	d.binder.Bind(connID, msg.RoomID)
	room.Join(connID, game.Team(msg.Team), msg.TeamAName, msg.TeamBName)
}

// roomFor resolves the connection's current room. Events for a room the
// connection never joined get a sender-only notification.
func (d *Dispatcher) roomFor(connID string) (*game.Room, bool) {
	d.mu.Lock()
	roomID, ok := d.sessions[connID]
	d.mu.Unlock()

	if !ok {
		d.notify(connID, "Join a room first.")
		return nil, false
	}
	room, ok := d.registry.Get(roomID)
	if !ok {
		d.notify(connID, "That room no longer exists.")
		return nil, false
	}
	return room, true
}

// release drops the connection's binding, telling the room and the fan-out
// pool.
func (d *Dispatcher) release(connID string) {
	d.mu.Lock()
	roomID, ok := d.sessions[connID]
	delete(d.sessions, connID)
	d.mu.Unlock()

	if !ok {
		return
	}
	d.binder.Unbind(connID)
	if room, found := d.registry.Get(roomID); found {
		room.Leave(connID)
	}
	log.Debug().Str("conn_id", connID).Str("room_id", roomID).Msg("room binding released")
}

func (d *Dispatcher) notify(connID, message string) {
	d.pub.Publish(events.NewTargeted("", connID, events.TypeNotification, events.NotificationPayload{
		Message: message,
	}))
}

// RoomOf reports the connection's current room, if any.
func (d *Dispatcher) RoomOf(connID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	roomID, ok := d.sessions[connID]
	return roomID, ok
}
