package game

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mazad-game/mazad/internal/game/events"
	"github.com/mazad-game/mazad/internal/questions"
)

// recordingPublisher captures envelopes for assertions. Safe for concurrent
// publishes from countdown goroutines.
type recordingPublisher struct {
	mu  sync.Mutex
	evs []events.Envelope
}

func (p *recordingPublisher) Publish(ev events.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evs = append(p.evs, ev)
}

func (p *recordingPublisher) byType(t events.Type) []events.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Envelope
	for _, ev := range p.evs {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (p *recordingPublisher) count(t events.Type) int {
	return len(p.byType(t))
}

func (p *recordingPublisher) last(t *testing.T, typ events.Type) events.Envelope {
	t.Helper()
	evs := p.byType(typ)
	if len(evs) == 0 {
		t.Fatalf("no %s event published", typ)
	}
	return evs[len(evs)-1]
}

func decode(t *testing.T, ev events.Envelope, v any) {
	t.Helper()
	if err := json.Unmarshal(ev.Data, v); err != nil {
		t.Fatalf("decode %s payload: %v", ev.Type, err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func newTestBank(t *testing.T, prompts ...string) *questions.Bank {
	t.Helper()
	recs := make([]questions.Record, 0, len(prompts))
	for _, p := range prompts {
		recs = append(recs, questions.Record{
			Kind:          questions.KindText,
			Hint:          "Capitals",
			Prompt:        p,
			Options:       []string{"Paris", "Rome", "Berlin", "Madrid"},
			CorrectOption: "Paris",
		})
	}
	bank, err := questions.NewBank(recs)
	if err != nil {
		t.Fatal(err)
	}
	return bank
}

func newTestRoom(t *testing.T, clock clockwork.Clock, settings Settings) (*Room, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	room := newRoom("room-1", settings, newTestBank(t, "q1"), DefaultRules(), pub, clock)
	t.Cleanup(room.Shutdown)
	return room, pub
}

func TestJoinClaimsLeaderSlotOnce(t *testing.T) {
	room, pub := newTestRoom(t, clockwork.NewFakeClock(), DefaultSettings())

	room.Join("conn-1", TeamA, "Lions", "Tigers")
	room.Join("conn-2", TeamA, "", "")

	inits := pub.byType(events.TypeInit)
	if len(inits) != 2 {
		t.Fatalf("expected 2 init events, got %d", len(inits))
	}
	if inits[0].TargetConn != "conn-1" || inits[1].TargetConn != "conn-2" {
		t.Fatal("init events must target the joining connection")
	}

	var first, second events.InitPayload
	decode(t, inits[0], &first)
	decode(t, inits[1], &second)
	if !first.IsLeader {
		t.Fatal("first connection to claim a team must be its leader")
	}
	if second.IsLeader {
		t.Fatal("leader slot must not be reassigned to later joiners")
	}
	if first.PointsA != 100 || first.PointsB != 100 {
		t.Fatalf("teams must start at 100 points, got %d/%d", first.PointsA, first.PointsB)
	}
	if second.TeamAName != "Lions" || second.TeamBName != "Tigers" {
		t.Fatalf("team names must stick from the first join, got %q/%q", second.TeamAName, second.TeamBName)
	}

	if pub.count(events.TypeUpdateScores) != 2 {
		t.Fatalf("every join must broadcast the scoreboard, got %d", pub.count(events.TypeUpdateScores))
	}
}

func TestStartRoundOpensAuction(t *testing.T) {
	room, pub := newTestRoom(t, clockwork.NewFakeClock(), DefaultSettings())

	room.StartRound("conn-1")

	var start events.StartAuctionPayload
	decode(t, pub.last(t, events.TypeStartAuction), &start)
	if start.RoundNumber != 1 {
		t.Fatalf("expected round 1, got %d", start.RoundNumber)
	}
	if start.Hint != "Capitals" {
		t.Fatalf("unexpected hint %q", start.Hint)
	}
	if len(start.FullQuestion.Options) != 4 {
		t.Fatalf("expected 4 options, got %d", len(start.FullQuestion.Options))
	}
}

func TestStartRoundPastMaxRoundsEndsGame(t *testing.T) {
	room, pub := newTestRoom(t, clockwork.NewFakeClock(), Settings{RoundTimeSeconds: 30, MaxRounds: 1})

	room.StartRound("conn-1")
	room.SubmitAnswer(TeamA, "Paris", "dana")
	room.StartRound("conn-1")

	if pub.count(events.TypeGameOver) != 1 {
		t.Fatalf("expected 1 gameOver, got %d", pub.count(events.TypeGameOver))
	}
	var over events.GameOverPayload
	decode(t, pub.last(t, events.TypeGameOver), &over)
	if over.PointsA != 150 || over.PointsB != 100 {
		t.Fatalf("unexpected final scores %d/%d", over.PointsA, over.PointsB)
	}

	// A terminal room republishes gameOver and opens no new auction.
	auctions := pub.count(events.TypeStartAuction)
	room.StartRound("conn-1")
	if pub.count(events.TypeGameOver) != 2 {
		t.Fatal("terminal room must republish gameOver")
	}
	if pub.count(events.TypeStartAuction) != auctions {
		t.Fatal("terminal room must not open a new auction")
	}
}

func TestChangeQuestionKeepsRoundNumber(t *testing.T) {
	room, pub := newTestRoom(t, clockwork.NewFakeClock(), DefaultSettings())

	// Before the first round it is a no-op.
	room.ChangeQuestion("conn-1")
	if pub.count(events.TypeStartAuction) != 0 {
		t.Fatal("changeQuestion before the first round must do nothing")
	}

	room.StartRound("conn-1")
	room.ChangeQuestion("conn-1")

	auctions := pub.byType(events.TypeStartAuction)
	if len(auctions) != 2 {
		t.Fatalf("expected 2 startAuction events, got %d", len(auctions))
	}
	var swap events.StartAuctionPayload
	decode(t, auctions[1], &swap)
	if swap.RoundNumber != 1 {
		t.Fatalf("changeQuestion must not burn a round, got round %d", swap.RoundNumber)
	}
}

func TestPlaceBidMonotonic(t *testing.T) {
	room, pub := newTestRoom(t, clockwork.NewFakeClock(), DefaultSettings())
	room.StartRound("conn-1")

	room.PlaceBid("conn-1", TeamA, 40, "dana")
	room.PlaceBid("conn-2", TeamB, 40, "omar")
	room.PlaceBid("conn-2", TeamB, 55, "omar")

	bids := pub.byType(events.TypeUpdateBid)
	if len(bids) != 2 {
		t.Fatalf("expected 2 accepted bids, got %d", len(bids))
	}
	var bid events.BidPayload
	decode(t, bids[1], &bid)
	if bid.Team != "B" || bid.Amount != 55 {
		t.Fatalf("unexpected winning bid %+v", bid)
	}

	// The rejected equal bid yields a sender-only notification.
	notes := pub.byType(events.TypeNotification)
	if len(notes) != 1 || notes[0].TargetConn != "conn-2" {
		t.Fatalf("rejected bid must notify only the sender, got %+v", notes)
	}
}

func TestCorrectAnswerScoresAndResolves(t *testing.T) {
	room, pub := newTestRoom(t, clockwork.NewFakeClock(), DefaultSettings())
	room.StartRound("conn-1")

	scoresBefore := pub.count(events.TypeUpdateScores)
	room.SubmitAnswer(TeamA, "Paris", "dana")

	var result events.RoundResultPayload
	decode(t, pub.last(t, events.TypeRoundResult), &result)
	if !result.IsCorrect || result.Team != "A" || result.Points != 150 {
		t.Fatalf("unexpected round result %+v", result)
	}
	if result.CorrectAns != "Paris" {
		t.Fatalf("result must reveal the correct answer, got %q", result.CorrectAns)
	}
	if got := pub.count(events.TypeUpdateScores) - scoresBefore; got != 1 {
		t.Fatalf("a scoring event must broadcast the scoreboard exactly once, got %d", got)
	}
}

func TestWrongAnswerPassesTurnWithReducedOptions(t *testing.T) {
	room, pub := newTestRoom(t, clockwork.NewFakeClock(), DefaultSettings())
	room.StartRound("conn-1")

	room.SubmitAnswer(TeamA, "Rome", "dana")

	var pass events.PassTurnPayload
	decode(t, pub.last(t, events.TypePassTurn), &pass)
	if pass.ToTeam != "B" {
		t.Fatalf("turn must pass to the other team, got %q", pass.ToTeam)
	}
	if pass.IsTimeout {
		t.Fatal("a wrong answer is not a timeout")
	}
	if pass.Points != 70 {
		t.Fatalf("expected 70 points after the penalty, got %d", pass.Points)
	}
	if len(pass.NewOptions) != 3 {
		t.Fatalf("reduced set must hold 3 options, got %v", pass.NewOptions)
	}
	correct := 0
	for _, o := range pass.NewOptions {
		if o == "Paris" {
			correct++
		}
	}
	if correct != 1 {
		t.Fatalf("reduced set must hold the correct option exactly once, got %v", pass.NewOptions)
	}

	// Second failure ends the round.
	room.SubmitAnswer(TeamB, "Berlin", "omar")
	var result events.RoundResultPayload
	decode(t, pub.last(t, events.TypeRoundResult), &result)
	if result.IsCorrect || result.Team != "B" || result.Points != 70 {
		t.Fatalf("unexpected round result %+v", result)
	}
}

func TestSecondChanceCorrectAnswerScores(t *testing.T) {
	room, pub := newTestRoom(t, clockwork.NewFakeClock(), DefaultSettings())
	room.StartRound("conn-1")

	room.SubmitAnswer(TeamA, "Madrid", "dana")
	room.SubmitAnswer(TeamB, "Paris", "omar")

	var result events.RoundResultPayload
	decode(t, pub.last(t, events.TypeRoundResult), &result)
	if !result.IsCorrect || result.Team != "B" || result.Points != 150 {
		t.Fatalf("unexpected round result %+v", result)
	}
}

func TestDuplicateAnswerFromFirstFailerIgnored(t *testing.T) {
	room, pub := newTestRoom(t, clockwork.NewFakeClock(), DefaultSettings())
	room.StartRound("conn-1")

	room.SubmitAnswer(TeamA, "Rome", "dana")
	published := len(pub.byType(events.TypePassTurn)) + len(pub.byType(events.TypeRoundResult)) + pub.count(events.TypeUpdateScores)

	// The first failed answerer gets no second shot, correct or not.
	room.SubmitAnswer(TeamA, "Paris", "dana")

	got := len(pub.byType(events.TypePassTurn)) + len(pub.byType(events.TypeRoundResult)) + pub.count(events.TypeUpdateScores)
	if got != published {
		t.Fatal("duplicate answer must publish nothing")
	}

	// The other team can still resolve the round.
	room.SubmitAnswer(TeamB, "Paris", "omar")
	if pub.count(events.TypeRoundResult) != 1 {
		t.Fatal("the other team's answer must still resolve the round")
	}
}

func TestTimeoutSubmission(t *testing.T) {
	room, pub := newTestRoom(t, clockwork.NewFakeClock(), DefaultSettings())
	room.StartRound("conn-1")

	room.SubmitAnswer(TeamA, TimeoutAnswer, "")
	var pass events.PassTurnPayload
	decode(t, pub.last(t, events.TypePassTurn), &pass)
	if !pass.IsTimeout || pass.ToTeam != "B" || pass.Points != 70 {
		t.Fatalf("unexpected pass %+v", pass)
	}

	room.SubmitAnswer(TeamB, TimeoutAnswer, "")
	var result events.RoundResultPayload
	decode(t, pub.last(t, events.TypeRoundResult), &result)
	if !result.IsTimeout || result.IsCorrect {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestComboBonus(t *testing.T) {
	room, pub := newTestRoom(t, clockwork.NewFakeClock(), DefaultSettings())

	for i := 0; i < 3; i++ {
		room.StartRound("conn-1")
		room.SubmitAnswer(TeamA, "Paris", "dana")
	}

	// 100 + 50 + 50 + 70: the third consecutive correct answer carries the bonus.
	var scores events.ScoresPayload
	decode(t, pub.last(t, events.TypeUpdateScores), &scores)
	if scores.PointsA != 270 {
		t.Fatalf("expected 270 points with combo bonus, got %d", scores.PointsA)
	}

	// A failure resets the streak.
	room.StartRound("conn-1")
	room.SubmitAnswer(TeamA, "Rome", "dana")
	room.SubmitAnswer(TeamB, "Rome", "omar")
	room.StartRound("conn-1")
	room.SubmitAnswer(TeamA, "Paris", "dana")

	decode(t, pub.last(t, events.TypeUpdateScores), &scores)
	if scores.PointsA != 290 {
		t.Fatalf("expected 290 points after streak reset, got %d", scores.PointsA)
	}
}

func TestStealPowerUp(t *testing.T) {
	room, pub := newTestRoom(t, clockwork.NewFakeClock(), DefaultSettings())

	room.UsePowerUp(TeamA, PowerUpSteal)

	var scores events.ScoresPayload
	decode(t, pub.last(t, events.TypeUpdateScores), &scores)
	if scores.PointsA != 120 || scores.PointsB != 80 {
		t.Fatalf("steal must transfer points, got %d/%d", scores.PointsA, scores.PointsB)
	}
}

func TestFreezePowerUpBarsBiddingUntilExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	room, pub := newTestRoom(t, clock, DefaultSettings())
	room.StartRound("conn-1")

	room.UsePowerUp(TeamA, PowerUpFreeze)
	room.PlaceBid("conn-2", TeamB, 40, "omar")
	if pub.count(events.TypeUpdateBid) != 0 {
		t.Fatal("a frozen team's bid must be rejected")
	}

	clock.Advance(11 * time.Second)
	waitFor(t, func() bool {
		room.mu.Lock()
		defer room.mu.Unlock()
		return room.frozen == ""
	})

	room.PlaceBid("conn-2", TeamB, 40, "omar")
	if pub.count(events.TypeUpdateBid) != 1 {
		t.Fatal("bid must be accepted once the freeze expires")
	}
}

func TestRevealStartsAuthoritativeCountdown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	room, pub := newTestRoom(t, clock, DefaultSettings())
	room.StartRound("conn-1")

	room.Reveal(TeamA, "hard")

	var reveal events.RevealPayload
	decode(t, pub.last(t, events.TypeRevealQuestion), &reveal)
	if reveal.Duration != 10 {
		t.Fatalf("hard tier must open a 10 second window, got %d", reveal.Duration)
	}

	clock.BlockUntil(1)
	clock.Advance(time.Second)
	waitFor(t, func() bool { return pub.count(events.TypeTimerUpdate) >= 1 })

	var tick events.TimerUpdatePayload
	decode(t, pub.last(t, events.TypeTimerUpdate), &tick)
	if tick.SecondsLeft != 9 {
		t.Fatalf("expected 9 seconds left, got %d", tick.SecondsLeft)
	}
}

func TestCountdownExpiryPassesTurn(t *testing.T) {
	clock := clockwork.NewFakeClock()
	room, pub := newTestRoom(t, clock, DefaultSettings())
	room.StartRound("conn-1")
	room.Reveal(TeamA, "hard")

	for i := 0; i < 10; i++ {
		clock.BlockUntil(1)
		clock.Advance(time.Second)
		if i < 9 {
			want := i + 1
			waitFor(t, func() bool { return pub.count(events.TypeTimerUpdate) >= want })
		}
	}

	waitFor(t, func() bool { return pub.count(events.TypePassTurn) == 1 })
	var pass events.PassTurnPayload
	decode(t, pub.last(t, events.TypePassTurn), &pass)
	if !pass.IsTimeout || pass.ToTeam != "B" {
		t.Fatalf("expiry must pass the turn as a timeout, got %+v", pass)
	}
}

func TestAnswerCancelsCountdown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	room, pub := newTestRoom(t, clock, DefaultSettings())
	room.StartRound("conn-1")
	room.Reveal(TeamA, "hard")

	clock.BlockUntil(1)
	room.SubmitAnswer(TeamA, "Paris", "dana")
	if pub.count(events.TypeRoundResult) != 1 {
		t.Fatal("answer must resolve the round")
	}

	// The stale timer must not resolve the round a second time.
	clock.Advance(30 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if pub.count(events.TypeRoundResult) != 1 {
		t.Fatal("cancelled countdown must not produce a synthetic timeout")
	}
	if pub.count(events.TypePassTurn) != 0 {
		t.Fatal("cancelled countdown must not pass the turn")
	}
}
