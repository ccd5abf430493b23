package game

// Team tags the two fixed team slots of a room.
type Team string

const (
	TeamA Team = "A"
	TeamB Team = "B"
)

// Valid reports whether the tag names one of the two slots.
func (t Team) Valid() bool {
	return t == TeamA || t == TeamB
}

// Other returns the opposing team.
func (t Team) Other() Team {
	if t == TeamA {
		return TeamB
	}
	return TeamA
}

// Settings are the per-room, join-time options.
type Settings struct {
	RoundTimeSeconds int `yaml:"round_time_seconds" json:"roundTime"`
	MaxRounds        int `yaml:"max_rounds" json:"maxRounds"`
}

// DefaultSettings returns the settings applied when a room is created
// without explicit options.
func DefaultSettings() Settings {
	return Settings{
		RoundTimeSeconds: 30,
		MaxRounds:        10,
	}
}

// Rules hold the process-wide scoring and timing constants. They are
// configurable at startup and shared read-only by every room.
type Rules struct {
	CorrectPoints  int `yaml:"correct"`
	PenaltyPoints  int `yaml:"penalty"`
	ComboBonus     int `yaml:"combo_bonus"`
	ComboThreshold int `yaml:"combo_threshold"`
	StealPoints    int `yaml:"steal"`
	FreezeSeconds  int `yaml:"freeze_seconds"`

	// RevealDurations maps a difficulty level to the answer-window length in
	// seconds. Unknown levels fall back to the "medium" entry.
	RevealDurations map[string]int `yaml:"reveal_durations"`
}

// DefaultRules returns the stock scoring rules.
func DefaultRules() Rules {
	return Rules{
		CorrectPoints:  50,
		PenaltyPoints:  30,
		ComboBonus:     20,
		ComboThreshold: 3,
		StealPoints:    20,
		FreezeSeconds:  10,
		RevealDurations: map[string]int{
			"easy":   20,
			"medium": 15,
			"hard":   10,
		},
	}
}

// revealDuration resolves a difficulty level to seconds.
func (r Rules) revealDuration(level string) int {
	if d, ok := r.RevealDurations[level]; ok {
		return d
	}
	return r.RevealDurations["medium"]
}

const startingPoints = 100

// PowerUp names the optional scoring modifiers.
type PowerUp string

const (
	PowerUpSteal  PowerUp = "steal"
	PowerUpFreeze PowerUp = "freeze"
)
