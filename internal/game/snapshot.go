package game

// Phase names the conceptual room states implied by the field combinations.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseAuctionOpen  Phase = "auction_open"
	PhaseAnswerWindow Phase = "answer_window"
	PhaseSecondChance Phase = "second_chance"
	PhaseGameOver     Phase = "game_over"
)

// Snapshot is a read-only view of a room for the state endpoint.
type Snapshot struct {
	RoomID         string   `json:"room_id"`
	Phase          Phase    `json:"phase"`
	PointsA        int      `json:"pointsA"`
	PointsB        int      `json:"pointsB"`
	TeamAName      string   `json:"teamAName,omitempty"`
	TeamBName      string   `json:"teamBName,omitempty"`
	CurrentRound   int      `json:"currentRound"`
	QuestionActive bool     `json:"questionActive"`
	FrozenTeam     string   `json:"frozenTeam,omitempty"`
	Settings       Settings `json:"settings"`
}

// Snapshot captures the room's current state.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Snapshot{
		RoomID:         r.id,
		Phase:          r.phaseLocked(),
		PointsA:        r.teams[TeamA].points,
		PointsB:        r.teams[TeamB].points,
		TeamAName:      r.teams[TeamA].name,
		TeamBName:      r.teams[TeamB].name,
		CurrentRound:   r.currentRound,
		QuestionActive: r.current != nil,
		FrozenTeam:     string(r.frozen),
		Settings:       r.settings,
	}
}

func (r *Room) phaseLocked() Phase {
	switch {
	case r.over:
		return PhaseGameOver
	case r.current == nil:
		return PhaseIdle
	case !r.revealed:
		return PhaseAuctionOpen
	case r.turnTaken:
		return PhaseSecondChance
	default:
		return PhaseAnswerWindow
	}
}
