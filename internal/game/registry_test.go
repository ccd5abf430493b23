package game

import (
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/mazad-game/mazad/internal/game/events"
)

func newTestRegistry(t *testing.T) (*Registry, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	reg := NewRegistry(newTestBank(t, "q1"), pub, clockwork.NewFakeClock(), DefaultRules(), DefaultSettings())
	t.Cleanup(reg.Shutdown)
	return reg, pub
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	reg, _ := newTestRegistry(t)

	first := reg.GetOrCreate("room-1", &Settings{RoundTimeSeconds: 20, MaxRounds: 5})
	second := reg.GetOrCreate("room-1", &Settings{RoundTimeSeconds: 99, MaxRounds: 99})

	if first != second {
		t.Fatal("same room id must return the same room")
	}
	if first.settings.RoundTimeSeconds != 20 || first.settings.MaxRounds != 5 {
		t.Fatalf("settings from a later join must not apply, got %+v", first.settings)
	}
}

func TestGetOrCreateMergesDefaults(t *testing.T) {
	reg, _ := newTestRegistry(t)

	room := reg.GetOrCreate("room-1", &Settings{MaxRounds: 5})
	if room.settings.RoundTimeSeconds != 30 {
		t.Fatalf("unset fields must fall back to defaults, got %+v", room.settings)
	}
	if room.settings.MaxRounds != 5 {
		t.Fatalf("set fields must apply, got %+v", room.settings)
	}

	plain := reg.GetOrCreate("room-2", nil)
	if plain.settings != DefaultSettings() {
		t.Fatalf("nil settings must mean defaults, got %+v", plain.settings)
	}
}

func TestRegistryGetAndRoomIDs(t *testing.T) {
	reg, _ := newTestRegistry(t)

	if _, ok := reg.Get("room-1"); ok {
		t.Fatal("Get must not create rooms")
	}

	reg.GetOrCreate("room-1", nil)
	reg.GetOrCreate("room-2", nil)

	if _, ok := reg.Get("room-1"); !ok {
		t.Fatal("expected room-1 to exist")
	}
	if ids := reg.RoomIDs(); len(ids) != 2 {
		t.Fatalf("expected 2 room ids, got %v", ids)
	}
}

func TestRegistryShutdownClearsRooms(t *testing.T) {
	reg, pub := newTestRegistry(t)

	room := reg.GetOrCreate("room-1", nil)
	room.StartRound("conn-1")
	reg.Shutdown()

	if _, ok := reg.Get("room-1"); ok {
		t.Fatal("shutdown must clear the room map")
	}

	// A shut-down room is terminal.
	auctions := pub.count(events.TypeStartAuction)
	room.StartRound("conn-1")
	if pub.count(events.TypeStartAuction) != auctions {
		t.Fatal("a shut-down room must not open auctions")
	}
}
