package events

// Payloads for the wire events in events.go. Field names follow the client
// protocol (camelCase), not the internal naming.

// QuestionView is the client-safe projection of a question record. The
// correct option is never included while a round is live; it travels only in
// RoundResultPayload.CorrectAns.
type QuestionView struct {
	Kind     string   `json:"kind"`
	Hint     string   `json:"hint"`
	Prompt   string   `json:"prompt"`
	ImageRef string   `json:"imageRef,omitempty"`
	Options  []string `json:"options"`
}

// SettingsView mirrors the room settings for the init payload.
type SettingsView struct {
	RoundTimeSeconds int `json:"roundTime"`
	MaxRounds        int `json:"maxRounds"`
}

// InitPayload is sent to a connection right after it joins a room.
type InitPayload struct {
	PointsA   int          `json:"pointsA"`
	PointsB   int          `json:"pointsB"`
	TeamAName string       `json:"teamAName,omitempty"`
	TeamBName string       `json:"teamBName,omitempty"`
	IsLeader  bool         `json:"isLeader"`
	Settings  SettingsView `json:"settings"`
}

// ScoresPayload is the two-team scoreboard.
type ScoresPayload struct {
	PointsA int `json:"pointsA"`
	PointsB int `json:"pointsB"`
}

// StartAuctionPayload opens the bidding phase for a new question.
type StartAuctionPayload struct {
	Hint         string       `json:"hint"`
	FullQuestion QuestionView `json:"fullQuestion"`
	RoundNumber  int          `json:"roundNumber"`
}

// BidPayload relays a placed bid to the room.
type BidPayload struct {
	Team   string `json:"team"`
	Amount int    `json:"amount"`
	Name   string `json:"name"`
}

// RevealPayload carries the revealed question and the answer-window duration
// in seconds.
type RevealPayload struct {
	Question QuestionView `json:"question"`
	Duration int          `json:"duration"`
}

// TimerUpdatePayload is the per-second countdown tick.
type TimerUpdatePayload struct {
	SecondsLeft int `json:"secondsLeft"`
}

// PassTurnPayload hands the question to the other team with a reduced
// option set after a first failure.
type PassTurnPayload struct {
	ToTeam     string   `json:"toTeam"`
	NewOptions []string `json:"newOptions"`
	Points     int      `json:"points"`
	IsTimeout  bool     `json:"isTimeout,omitempty"`
}

// RoundResultPayload resolves a round and reveals the correct answer.
type RoundResultPayload struct {
	IsCorrect  bool   `json:"isCorrect"`
	Team       string `json:"team"`
	Points     int    `json:"points"`
	Name       string `json:"name,omitempty"`
	CorrectAns string `json:"correctAns"`
	IsTimeout  bool   `json:"isTimeout,omitempty"`
}

// GameOverPayload carries the final scores.
type GameOverPayload struct {
	PointsA int `json:"pointsA"`
	PointsB int `json:"pointsB"`
}

// NotificationPayload is a human-readable message, usually sender-only.
type NotificationPayload struct {
	Message string `json:"message"`
}
