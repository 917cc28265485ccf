package game

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
)

// Step runs exactly one fixed-timestep tick. A panic inside the tick is recovered
// and counted; the room keeps running.
func (r *Room) Step() {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("💥 Room %s tick %d panicked: %v", r.ID, r.clock.Tick(), rec)
			r.telemetry.TickPanicked(r.Mode)
		}
	}()

	r.clock.Advance()

	switch r.phase {
	case PhaseWaiting:
		r.tickWaiting()
	case PhaseCountdown:
		r.tickCountdown()
	case PhasePlaying:
		r.tickPlaying()
	case PhaseEnded:
		r.tickEnded()
	}

	r.tickIdle()
	r.publish()
	r.telemetry.TickObserved(r.Mode, time.Since(start))
}

func (r *Room) tickWaiting() {
	r.driveBots(false)
	r.integrateAll(true)
	if r.canStart() {
		r.enterCountdown()
	}
}

// canStart: enough players, and everyone human is ready when the mode asks for it
func (r *Room) canStart() bool {
	if r.successor != nil || r.disposed {
		return false
	}
	n := r.store.PlayerCount()
	if n == 0 || n < r.settings.MinPlayers {
		return false
	}
	if !r.settings.ReadyGated {
		return true
	}
	for _, p := range r.store.Players() {
		if !p.IsBot && !p.Ready {
			return false
		}
	}
	return true
}

func (r *Room) enterCountdown() {
	r.phase = PhaseCountdown
	r.countdown = int(math.Ceil(r.cfg.CountdownSeconds))
	if r.countdown <= 0 {
		r.startMatch()
		return
	}
	r.countdownTicks = r.clock.Ticks(1)
	r.emit(EventCountdown, "", CountdownPayload{Seconds: r.countdown})
}

func (r *Room) tickCountdown() {
	r.integrateAll(false)

	r.countdownTicks--
	if r.countdownTicks > 0 {
		return
	}
	r.countdown--
	if r.countdown <= 0 {
		r.startMatch()
		return
	}
	r.countdownTicks = r.clock.Ticks(1)
	r.emit(EventCountdown, "", CountdownPayload{Seconds: r.countdown})
}

// startMatch is the Countdown -> Playing transition
func (r *Room) startMatch() {
	r.arena = r.settings.Arena
	r.store.ClearHazards()
	r.store.SetBall(nil)
	r.store.SetGrid(nil)
	r.subPhase = ""
	r.subPhaseTicks = 0

	for _, p := range r.store.Players() {
		p.resetForMatch()
	}
	if r.settings.Spawn == SpawnTeams {
		r.balanceTeams()
	}
	r.placeAll()

	r.matchID = uuid.NewString()
	r.matchTicks = 0
	r.remainingTicks = 0
	if r.settings.Timer == TimerDown {
		r.remainingTicks = r.clock.Ticks(r.settings.MatchSeconds)
	}

	r.rules.Setup(r)
	r.phase = PhasePlaying
	r.emit(EventMatchStart, "", MatchStartPayload{MatchID: r.matchID, Mode: r.Mode, Players: r.store.PlayerCount()})
	log.Printf("🎬 Room %s: %s match %s started with %d players", r.ID, r.Mode, r.matchID, r.store.PlayerCount())
}

// tickPlaying is the simulation step. Order: timers and multipliers, bots,
// physics, hazards, collisions, mode rules, match clock, win check.
func (r *Room) tickPlaying() {
	frozen := r.subPhase != ""

	for _, p := range r.store.Players() {
		if !p.Alive {
			continue
		}
		p.tickTimers()
		p.SurvivedTicks++
		// Rebuilt from scratch every tick so leaving a zone restores speed at once
		p.SpeedMultiplier = r.hazards.SpeedMultiplierAt(r.store, p.X, p.Y)
		if p.BoostTicks > 0 {
			p.SpeedMultiplier *= r.cfg.Physics.BoostMultiplier
		}
	}

	if !frozen {
		r.driveBots(true)
	}
	r.integrateAll(!frozen)
	if b := r.store.Ball(); b != nil {
		integrateBall(b, r.cfg.Physics, r.clock.Dt())
	}

	r.hazards.Update(r)
	r.resolveCollisions(frozen)
	if b := r.store.Ball(); b != nil {
		if c, ok := r.rules.(BallConfiner); ok {
			c.ConfineBall(r, b)
		}
	}
	r.hazards.Contacts(r)
	r.store.PruneHazards()

	if frozen {
		r.subPhaseTicks--
		if r.subPhaseTicks <= 0 {
			name := r.subPhase
			r.subPhase = ""
			if h, ok := r.rules.(SubPhaseHandler); ok {
				h.OnSubPhaseEnd(r, name)
			}
		}
	} else {
		r.rules.OnTick(r)
	}
	if r.ended {
		return
	}

	r.matchTicks++
	if r.settings.Timer == TimerDown {
		r.remainingTicks--
		if r.remainingTicks <= 0 {
			r.remainingTicks = 0
			r.endMatch(r.rules.Resolve(r, ReasonTimeout))
			return
		}
	}

	if o, ok := r.rules.CheckWin(r); ok {
		r.endMatch(o)
	}
}

// endMatch moves to Ended exactly once; later calls are no-ops
func (r *Room) endMatch(o Outcome) {
	if r.ended {
		return
	}
	if o.Draw {
		o.WinnerID, o.WinnerName, o.WinnerTeam = "", "", ""
	}

	r.ended = true
	r.phase = PhaseEnded
	r.subPhase = ""
	r.outcome = &o
	r.endTicks = r.clock.Ticks(r.cfg.EndDelaySeconds)
	for _, p := range r.store.Players() {
		p.inputX, p.inputY = 0, 0
	}

	r.emit(EventMatchEnd, o.WinnerID, MatchEndPayload{
		MatchID:    r.matchID,
		WinnerID:   o.WinnerID,
		WinnerName: o.WinnerName,
		WinnerTeam: o.WinnerTeam,
		Draw:       o.Draw,
		Reason:     o.Reason,
		Scores:     r.scores(false),
	})
	r.results.RecordMatch(r.buildSummary(o))

	result := "win"
	if o.Draw {
		result = "draw"
	}
	r.telemetry.MatchEnded(r.Mode, result)

	if o.Draw {
		log.Printf("🏁 Room %s: %s match ended in a draw (%s)", r.ID, r.Mode, o.Reason)
	} else {
		log.Printf("🏁 Room %s: %s match won by %s (%s)", r.ID, r.Mode, o.WinnerName, o.Reason)
	}
}

func (r *Room) tickEnded() {
	r.integrateAll(false)
	if r.successor != nil || r.chaining {
		return
	}
	r.endTicks--
	if r.endTicks > 0 {
		return
	}

	if r.cfg.Chain && r.successorFn != nil && r.store.PlayerCount() > 0 {
		r.requestSuccessor()
		return
	}
	r.reset()
}

// requestSuccessor asks for the next room off the tick path; the answer comes
// back through chainCh.
func (r *Room) requestSuccessor() {
	r.chaining = true
	next := NextMode(r.Mode)
	fn := r.successorFn
	timeout := r.cfg.SuccessorTimeout
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		ref, err := fn(ctx, next)
		r.chainCh <- chainResult{ref: ref, err: err}
	}()
}

func (r *Room) finishChain(res chainResult) {
	if !r.chaining {
		return
	}
	r.chaining = false
	if res.err != nil {
		log.Printf("⚠️ Room %s: successor room failed (%v), resetting in place", r.ID, res.err)
		r.reset()
		return
	}

	ref := res.ref
	r.successor = &ref
	r.emit(EventRoomTransition, "", RoomTransitionPayload{
		RoomID: ref.ID,
		Code:   ref.Code,
		Mode:   ref.Mode,
		Scores: r.scores(true),
	})
	log.Printf("🔀 Room %s: players moving to %s room %s", r.ID, ref.Mode, ref.ID)

	// Bots never reconnect; humans get the grace window to follow the transition
	for _, p := range append([]*Player(nil), r.store.Players()...) {
		if p.IsBot {
			r.store.RemovePlayer(p.ID)
		}
	}
	r.startIdle()
}

// reset is the explicit Ended -> Waiting transition
func (r *Room) reset() {
	r.store.ClearHazards()
	r.store.SetBall(nil)
	r.store.SetGrid(nil)
	r.arena = r.settings.Arena
	r.subPhase = ""
	r.subPhaseTicks = 0
	r.rules.Reset(r)

	for _, p := range r.store.Players() {
		if r.settings.CarryScore {
			p.CarriedScore = min(p.CarriedScore+p.Score, MaxCarriedScore)
		}
		p.resetForMatch()
		p.Ready = p.IsBot
	}
	r.placeAll()

	r.phase = PhaseWaiting
	r.ended = false
	r.outcome = nil
	r.matchID = ""
	r.matchTicks = 0
	r.remainingTicks = 0
	r.emit(EventMatchReset, "", nil)
	log.Printf("🔄 Room %s: reset to waiting", r.ID)
}

// scores maps player id to score; total includes carried score
func (r *Room) scores(total bool) map[string]int {
	out := make(map[string]int, r.store.PlayerCount())
	for _, p := range r.store.Players() {
		if total {
			out[p.ID] = p.TotalScore()
		} else {
			out[p.ID] = p.Score
		}
	}
	return out
}

func (r *Room) startIdle() {
	if r.idlePending {
		return
	}
	r.idlePending = true
	r.idleTicks = r.clock.Ticks(r.cfg.IdleGraceSeconds)
}

func (r *Room) cancelIdle() {
	r.idlePending = false
	r.idleTicks = 0
}

// tickIdle counts down the disposal window. Empty rooms and rooms whose players
// moved to a successor are disposed when it runs out.
func (r *Room) tickIdle() {
	if !r.idlePending {
		return
	}
	if r.store.PlayerCount() > 0 && r.successor == nil {
		r.cancelIdle()
		return
	}
	r.idleTicks--
	if r.idleTicks <= 0 {
		r.dispose("idle")
	}
}

func (r *Room) driveBots(playing bool) {
	driver, hasDriver := r.rules.(BotDriver)
	for _, p := range r.store.Players() {
		if !p.IsBot || !p.Alive || p.Stunned() {
			continue
		}
		if playing && hasDriver {
			driver.DriveBot(r, p)
			continue
		}
		p.wander(&r.arena, r.rng)
	}
}

func (r *Room) integrateAll(acceptInput bool) {
	dt := r.clock.Dt()
	for _, p := range r.store.Players() {
		if p.Alive {
			integratePlayer(p, &r.arena, r.cfg.Physics, r.settings.MaxSpeed, dt, acceptInput)
		}
	}
}

func (r *Room) placeAll() {
	teamIndex := map[string]int{}
	for i, p := range r.store.Players() {
		idx := i
		if r.settings.Spawn == SpawnTeams {
			idx = teamIndex[p.Team]
			teamIndex[p.Team]++
		}
		r.placeAt(p, idx, r.store.PlayerCount())
	}
}

func (r *Room) placePlayer(p *Player, index int) {
	if r.settings.Spawn == SpawnTeams {
		index = 0
		for _, other := range r.store.Players() {
			if other != p && other.Team == p.Team {
				index++
			}
		}
	}
	r.placeAt(p, index, max(r.store.PlayerCount(), r.settings.MinPlayers))
}

func (r *Room) placeAt(p *Player, index, count int) {
	x, y := SpawnPoint(&r.arena, r.settings.Spawn, index, count, p.Team, r.rng)
	p.X, p.Y, _, _ = r.arena.Confine(x, y, 0, 0, p.Radius)
	p.VX, p.VY = 0, 0
}
