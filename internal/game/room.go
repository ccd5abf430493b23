package game

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mazad-game/mazad/internal/game/events"
	"github.com/mazad-game/mazad/internal/questions"
)

// TimeoutAnswer is the synthetic answer submitted when the answer window
// expires. The server-side countdown produces it; clients may also send it.
const TimeoutAnswer = "TIMEOUT"

type teamState struct {
	points     int
	leaderConn string
	name       string
	combo      int
}

// Room is the per-session state machine. All mutations run under the room
// mutex; every read-modify-publish sequence is one critical section so
// submissions from both teams serialize rather than interleave.
type Room struct {
	id    string
	clock clockwork.Clock
	pub   events.Publisher
	bank  *questions.Bank
	rules Rules

	mu       sync.Mutex
	settings Settings
	teams    map[Team]*teamState

	currentRound   int
	current        *questions.Record
	revealed       bool
	windowSeconds  int
	turnTaken      bool
	firstAnswering Team
	highestBid     int
	usedPrompts    map[string]bool

	frozen      Team
	freezeTimer clockwork.Timer

	// roundSeq bumps whenever answer-window ownership changes (question
	// selected, turn passed, round resolved). Countdown callbacks carry the
	// seq they were scheduled under and no-op when stale, closing the
	// double-resolution race between a late timer and a real answer.
	roundSeq uint64
	cd       *countdown

	over bool
}

func newRoom(id string, settings Settings, bank *questions.Bank, rules Rules, pub events.Publisher, clock clockwork.Clock) *Room {
	return &Room{
		id:       id,
		clock:    clock,
		pub:      pub,
		bank:     bank,
		rules:    rules,
		settings: settings,
		teams: map[Team]*teamState{
			TeamA: {points: startingPoints},
			TeamB: {points: startingPoints},
		},
		usedPrompts: make(map[string]bool),
	}
}

// Join binds connID into the room. The first connection to claim a team's
// leader slot becomes its leader; the slot is never reassigned while that
// connection stays bound. Join publishes a targeted init to the caller and
// broadcasts the scoreboard to the room on every join, including the first.
func (r *Room) Join(connID string, team Team, teamAName, teamBName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if team.Valid() {
		ts := r.teams[team]
		if ts.leaderConn == "" {
			ts.leaderConn = connID
			log.Info().Str("room_id", r.id).Str("team", string(team)).Str("conn_id", connID).Msg("leader slot claimed")
		}
	}
	if teamAName != "" && r.teams[TeamA].name == "" {
		r.teams[TeamA].name = teamAName
	}
	if teamBName != "" && r.teams[TeamB].name == "" {
		r.teams[TeamB].name = teamBName
	}

	isLeader := r.teams[TeamA].leaderConn == connID || r.teams[TeamB].leaderConn == connID

	r.pub.Publish(events.NewTargeted(r.id, connID, events.TypeInit, events.InitPayload{
		PointsA:   r.teams[TeamA].points,
		PointsB:   r.teams[TeamB].points,
		TeamAName: r.teams[TeamA].name,
		TeamBName: r.teams[TeamB].name,
		IsLeader:  isLeader,
		Settings: events.SettingsView{
			RoundTimeSeconds: r.settings.RoundTimeSeconds,
			MaxRounds:        r.settings.MaxRounds,
		},
	}))
	r.publishScoresLocked()
}

// Leave unbinds connID. A vacated leader slot is not reassigned; the vacancy
// is surfaced in the logs instead.
func (r *Room) Leave(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for tag, ts := range r.teams {
		if ts.leaderConn == connID {
			log.Warn().Str("room_id", r.id).Str("team", string(tag)).Str("conn_id", connID).
				Msg("leader connection left; slot remains claimed and will not be reassigned")
		}
	}
}

// StartRound advances to the next round and opens the auction. Past
// maxRounds it broadcasts gameOver instead and the room stays terminal.
// An empty question bank makes round start a no-op reported to the
// requester only.
func (r *Room) StartRound(requesterConn string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.over {
		r.publishGameOverLocked()
		return
	}

	r.currentRound++
	if r.currentRound > r.settings.MaxRounds {
		r.over = true
		r.stopCountdownLocked()
		log.Info().Str("room_id", r.id).Int("rounds_played", r.settings.MaxRounds).Msg("game over")
		r.publishGameOverLocked()
		return
	}

	if !r.selectQuestionLocked(requesterConn) {
		// Selection failed; do not burn the round.
		r.currentRound--
	}
}

// ChangeQuestion swaps the current question without burning a round. It is a
// no-op before the first round and after game over.
func (r *Room) ChangeQuestion(requesterConn string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.over || r.currentRound == 0 {
		return
	}
	r.selectQuestionLocked(requesterConn)
}

// selectQuestionLocked picks a fresh question, resets the round fields and
// broadcasts startAuction. Reports whether a question was selected.
func (r *Room) selectQuestionLocked(requesterConn string) bool {
	q, cycled, err := r.bank.Pick(r.usedPrompts)
	if err != nil {
		log.Warn().Err(err).Str("room_id", r.id).Msg("round start skipped")
		r.pub.Publish(events.NewTargeted(r.id, requesterConn, events.TypeNotification, events.NotificationPayload{
			Message: "No questions are available.",
		}))
		return false
	}
	if cycled {
		r.usedPrompts = make(map[string]bool)
	}
	r.usedPrompts[q.Prompt] = true

	r.current = &q
	r.revealed = false
	r.windowSeconds = 0
	r.turnTaken = false
	r.firstAnswering = ""
	r.highestBid = 0
	r.roundSeq++
	r.stopCountdownLocked()

	log.Info().Str("room_id", r.id).Int("round", r.currentRound).Str("hint", q.Hint).Msg("auction opened")
	r.pub.Publish(events.New(r.id, events.TypeStartAuction, events.StartAuctionPayload{
		Hint:         q.Hint,
		FullQuestion: questionView(q),
		RoundNumber:  r.currentRound,
	}))
	return true
}

// PlaceBid relays a bid to the room. A frozen team's bid is rejected with a
// sender-only notification, as is a bid that does not beat the current
// highest.
func (r *Room) PlaceBid(connID string, team Team, amount int, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.over || !team.Valid() {
		return
	}
	if r.frozen == team {
		r.pub.Publish(events.NewTargeted(r.id, connID, events.TypeNotification, events.NotificationPayload{
			Message: "Your team is frozen and cannot bid right now.",
		}))
		return
	}
	if amount <= r.highestBid {
		r.pub.Publish(events.NewTargeted(r.id, connID, events.TypeNotification, events.NotificationPayload{
			Message: fmt.Sprintf("Bid must be higher than the current %d.", r.highestBid),
		}))
		return
	}
	r.highestBid = amount

	r.pub.Publish(events.New(r.id, events.TypeUpdateBid, events.BidPayload{
		Team:   string(team),
		Amount: amount,
		Name:   name,
	}))
}

// Reveal closes the auction in favor of team and opens the answer window.
// The window duration comes from the difficulty tier table, and the
// authoritative countdown starts server-side: per-second timerUpdate ticks
// and a synthetic timeout if no answer arrives.
func (r *Room) Reveal(team Team, level string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.over || r.current == nil || !team.Valid() {
		return
	}

	r.revealed = true
	r.windowSeconds = r.rules.revealDuration(level)
	r.roundSeq++

	log.Info().Str("room_id", r.id).Str("team", string(team)).Str("level", level).
		Int("duration", r.windowSeconds).Msg("question revealed")
	r.pub.Publish(events.New(r.id, events.TypeRevealQuestion, events.RevealPayload{
		Question: questionView(*r.current),
		Duration: r.windowSeconds,
	}))
	r.startCountdownLocked(team, r.windowSeconds, r.roundSeq)
}

// SubmitAnswer arbitrates an answer or timeout for team. A second submission
// from the team that already failed this round is ignored with no broadcast.
func (r *Room) SubmitAnswer(team Team, answer, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitLocked(team, answer, name)
}

func (r *Room) submitLocked(team Team, answer, name string) {
	if r.over || r.current == nil || !team.Valid() {
		return
	}
	if r.turnTaken && team == r.firstAnswering {
		// The first failed answerer gets no second shot this round; the
		// pending countdown for the other team keeps running.
		log.Debug().Str("room_id", r.id).Str("team", string(team)).Msg("duplicate answer ignored")
		return
	}

	r.stopCountdownLocked()
	ts := r.teams[team]

	switch {
	case answer == TimeoutAnswer:
		ts.points -= r.rules.PenaltyPoints
		ts.combo = 0
		r.failLocked(team, name, true)

	case answer == r.current.CorrectOption:
		ts.combo++
		gained := r.rules.CorrectPoints
		if ts.combo >= r.rules.ComboThreshold {
			gained += r.rules.ComboBonus
		}
		ts.points += gained
		r.resolveLocked(team, name, true, false)

	default:
		ts.points -= r.rules.PenaltyPoints
		ts.combo = 0
		r.failLocked(team, name, false)
	}
}

// failLocked applies the shared first-failure/second-failure branching for
// wrong answers and timeouts alike.
func (r *Room) failLocked(team Team, name string, isTimeout bool) {
	if !r.turnTaken {
		r.turnTaken = true
		r.firstAnswering = team
		r.roundSeq++

		r.pub.Publish(events.New(r.id, events.TypePassTurn, events.PassTurnPayload{
			ToTeam:     string(team.Other()),
			NewOptions: r.reducedOptionsLocked(),
			Points:     r.teams[team].points,
			IsTimeout:  isTimeout,
		}))
		r.publishScoresLocked()

		if r.windowSeconds > 0 {
			r.startCountdownLocked(team.Other(), r.windowSeconds, r.roundSeq)
		}
		return
	}

	// Both teams have failed; the round is over.
	r.resolveLocked(team, name, false, isTimeout)
}

// resolveLocked ends the round, reveals the answer and broadcasts the result
// plus the scoreboard.
func (r *Room) resolveLocked(team Team, name string, isCorrect, isTimeout bool) {
	correctAns := r.current.CorrectOption
	r.current = nil
	r.revealed = false
	r.windowSeconds = 0
	r.roundSeq++

	log.Info().Str("room_id", r.id).Str("team", string(team)).Bool("correct", isCorrect).
		Bool("timeout", isTimeout).Int("round", r.currentRound).Msg("round resolved")
	r.pub.Publish(events.New(r.id, events.TypeRoundResult, events.RoundResultPayload{
		IsCorrect:  isCorrect,
		Team:       string(team),
		Points:     r.teams[team].points,
		Name:       name,
		CorrectAns: correctAns,
		IsTimeout:  isTimeout,
	}))
	r.publishScoresLocked()
}

// reducedOptionsLocked builds the second-chance option set: the correct
// option plus exactly two of the wrong ones, shuffled.
func (r *Room) reducedOptionsLocked() []string {
	wrong := r.current.WrongOptions()
	rand.Shuffle(len(wrong), func(i, j int) {
		wrong[i], wrong[j] = wrong[j], wrong[i]
	})

	opts := append([]string{r.current.CorrectOption}, wrong[:2]...)
	rand.Shuffle(len(opts), func(i, j int) {
		opts[i], opts[j] = opts[j], opts[i]
	})
	return opts
}

// UsePowerUp applies a scoring modifier. Steal moves points from the
// opponent; freeze bars the opponent from bidding for a fixed window that
// clears itself.
func (r *Room) UsePowerUp(team Team, kind PowerUp) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.over || !team.Valid() {
		return
	}

	switch kind {
	case PowerUpSteal:
		r.teams[team.Other()].points -= r.rules.StealPoints
		r.teams[team].points += r.rules.StealPoints
		log.Info().Str("room_id", r.id).Str("team", string(team)).Int("points", r.rules.StealPoints).Msg("steal power-up used")
		r.publishScoresLocked()

	case PowerUpFreeze:
		target := team.Other()
		r.frozen = target
		if r.freezeTimer != nil {
			stopAndDrainTimer(r.freezeTimer)
		}
		r.freezeTimer = r.clock.AfterFunc(secondsToDuration(r.rules.FreezeSeconds), func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.frozen == target {
				r.frozen = ""
				log.Debug().Str("room_id", r.id).Str("team", string(target)).Msg("freeze expired")
			}
		})
		log.Info().Str("room_id", r.id).Str("team", string(target)).Int("seconds", r.rules.FreezeSeconds).Msg("freeze power-up used")
		r.pub.Publish(events.New(r.id, events.TypeNotification, events.NotificationPayload{
			Message: fmt.Sprintf("Team %s is frozen for %d seconds.", target, r.rules.FreezeSeconds),
		}))
	}
}

// Shutdown cancels the room's timers. The registry calls it when tearing the
// room map down.
func (r *Room) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.over = true
	r.stopCountdownLocked()
	if r.freezeTimer != nil {
		stopAndDrainTimer(r.freezeTimer)
		r.freezeTimer = nil
	}
}

func (r *Room) publishScoresLocked() {
	r.pub.Publish(events.New(r.id, events.TypeUpdateScores, events.ScoresPayload{
		PointsA: r.teams[TeamA].points,
		PointsB: r.teams[TeamB].points,
	}))
}

func (r *Room) publishGameOverLocked() {
	r.pub.Publish(events.New(r.id, events.TypeGameOver, events.GameOverPayload{
		PointsA: r.teams[TeamA].points,
		PointsB: r.teams[TeamB].points,
	}))
}

func questionView(q questions.Record) events.QuestionView {
	return events.QuestionView{
		Kind:     string(q.Kind),
		Hint:     q.Hint,
		Prompt:   q.Prompt,
		ImageRef: q.ImageRef,
		Options:  q.Options,
	}
}
