package game

import (
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mazad-game/mazad/internal/game/events"
	"github.com/mazad-game/mazad/internal/questions"
)

// Registry owns the room map. Rooms are created lazily on first join and
// live for the registry's lifetime; no ambient state, so multiple registries
// can coexist in tests.
type Registry struct {
	bank     *questions.Bank
	pub      events.Publisher
	clock    clockwork.Clock
	rules    Rules
	defaults Settings

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewRegistry builds an empty registry around the shared question bank,
// publisher and clock. defaults is the baseline for rooms created without
// explicit settings.
func NewRegistry(bank *questions.Bank, pub events.Publisher, clock clockwork.Clock, rules Rules, defaults Settings) *Registry {
	return &Registry{
		bank:     bank,
		pub:      pub,
		clock:    clock,
		rules:    rules,
		defaults: defaults,
		rooms:    make(map[string]*Room),
	}
}

// GetOrCreate returns the room for roomID, constructing it with the given
// settings (or defaults when nil) if it does not exist yet. Settings only
// apply on creation; an existing room keeps its own.
func (reg *Registry) GetOrCreate(roomID string, settings *Settings) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if room, ok := reg.rooms[roomID]; ok {
		return room
	}

	s := reg.defaults
	if settings != nil {
		if settings.RoundTimeSeconds > 0 {
			s.RoundTimeSeconds = settings.RoundTimeSeconds
		}
		if settings.MaxRounds > 0 {
			s.MaxRounds = settings.MaxRounds
		}
	}

	room := newRoom(roomID, s, reg.bank, reg.rules, reg.pub, reg.clock)
	reg.rooms[roomID] = room
	log.Info().Str("room_id", roomID).Int("max_rounds", s.MaxRounds).Int("round_time", s.RoundTimeSeconds).Msg("room created")
	return room
}

// Get returns the room for roomID if it exists.
func (reg *Registry) Get(roomID string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	room, ok := reg.rooms[roomID]
	return room, ok
}

// RoomIDs lists the ids of all live rooms.
func (reg *Registry) RoomIDs() []string {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	ids := make([]string, 0, len(reg.rooms))
	for id := range reg.rooms {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown stops every room's timers and clears the map.
func (reg *Registry) Shutdown() {
	reg.mu.Lock()
	rooms := reg.rooms
	reg.rooms = make(map[string]*Room)
	reg.mu.Unlock()

	for _, room := range rooms {
		room.Shutdown()
	}
	log.Info().Int("rooms", len(rooms)).Msg("registry shut down")
}
