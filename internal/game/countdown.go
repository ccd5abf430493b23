package game

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mazad-game/mazad/internal/game/events"
)

// countdown is the authoritative answer-window timer for one turn. It ticks
// once per second and resolves the turn as a synthetic timeout when it
// expires. A real answer stops it; the roundSeq guard catches the remaining
// window where the timer fires concurrently with an answer.
type countdown struct {
	cancel chan struct{}
	once   sync.Once
}

func (c *countdown) stop() {
	c.once.Do(func() { close(c.cancel) })
}

// startCountdownLocked replaces any pending countdown with a fresh one for
// team, scheduled under seq.
func (r *Room) startCountdownLocked(team Team, seconds int, seq uint64) {
	if r.cd != nil {
		r.cd.stop()
	}
	cd := &countdown{cancel: make(chan struct{})}
	r.cd = cd
	go r.runCountdown(cd, team, seconds, seq)
}

// stopCountdownLocked cancels the pending countdown, if any. Called at the
// top of every answer submission before state changes.
func (r *Room) stopCountdownLocked() {
	if r.cd != nil {
		r.cd.stop()
		r.cd = nil
	}
}

func (r *Room) runCountdown(cd *countdown, team Team, seconds int, seq uint64) {
	remaining := seconds
	for remaining > 0 {
		t := r.clock.NewTimer(time.Second)
		select {
		case <-cd.cancel:
			stopAndDrainTimer(t)
			return
		case <-t.Chan():
		}
		remaining--
		if !r.tick(seq, remaining) {
			return
		}
	}
	r.timeOut(team, seq)
}

// tick publishes a timerUpdate unless the window it was scheduled for is
// gone. Reports whether the countdown should keep running.
func (r *Room) tick(seq uint64, secondsLeft int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.over || r.current == nil || seq != r.roundSeq {
		return false
	}
	r.pub.Publish(events.New(r.id, events.TypeTimerUpdate, events.TimerUpdatePayload{
		SecondsLeft: secondsLeft,
	}))
	return true
}

// timeOut resolves an expired window as a timeout submission for team,
// unless the window is stale.
func (r *Room) timeOut(team Team, seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.over || r.current == nil || seq != r.roundSeq {
		return
	}
	r.submitLocked(team, TimeoutAnswer, "")
}

// stopAndDrainTimer safely stops a timer and drains its channel, following
// the pattern from the time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
