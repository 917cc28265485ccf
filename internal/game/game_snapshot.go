package game

import "slices"

// Snapshot is an immutable copy of a room's state, published once per tick.
// Readers on other goroutines (HTTP handlers, the AI director, the lobby) load
// it lock-free through Room.Snapshot and must not modify it.
type Snapshot struct {
	RoomID     string       `json:"roomId"`
	Code       string       `json:"code"`
	Mode       string       `json:"mode"`
	Phase      Phase        `json:"phase"`
	SubPhase   string       `json:"subPhase,omitempty"`
	Countdown  int          `json:"countdown,omitempty"`
	Tick       uint64       `json:"tick"`
	MatchID    string       `json:"matchId,omitempty"`
	Elapsed    float64      `json:"elapsed"`
	TimeLeft   float64      `json:"timeLeft,omitempty"`
	Arena      Arena        `json:"arena"`
	Players    []PlayerView `json:"players"`
	Hazards    []Hazard     `json:"hazards"`
	Ball       *Ball        `json:"ball,omitempty"`
	Grid       *Grid        `json:"grid,omitempty"`
	ModeState  any          `json:"modeState,omitempty"`
	Outcome    *Outcome     `json:"outcome,omitempty"`
	Successor  *RoomRef     `json:"successor,omitempty"`
	LastEvent  string       `json:"lastEvent,omitempty"`
	MinPlayers int          `json:"minPlayers"`
	MaxPlayers int          `json:"maxPlayers"`

	// Counters are recomputed from the collections on every publish
	PlayerCount int `json:"playerCount"`
	AliveCount  int `json:"aliveCount"`
	HazardCount int `json:"hazardCount"`
}

// ModeStateReporter lets a rule set add mode-specific fields to snapshots
type ModeStateReporter interface {
	ModeState(r *Room) any
}

// buildSnapshot copies the current state. Called on the room goroutine only.
func (r *Room) buildSnapshot() *Snapshot {
	snap := &Snapshot{
		RoomID:     r.ID,
		Code:       r.Code,
		Mode:       r.Mode,
		Phase:      r.phase,
		SubPhase:   r.subPhase,
		Tick:       r.clock.Tick(),
		MatchID:    r.matchID,
		Elapsed:    round1(r.clock.Seconds(r.matchTicks)),
		Arena:      r.arena,
		Players:    make([]PlayerView, 0, r.store.PlayerCount()),
		Hazards:    make([]Hazard, 0, len(r.store.Hazards())),
		LastEvent:  r.lastEvent,
		MinPlayers: r.settings.MinPlayers,
		MaxPlayers: r.settings.MaxPlayers,

		PlayerCount: r.store.PlayerCount(),
		AliveCount:  r.store.AliveCount(),
		HazardCount: r.store.ActiveHazardCount(),
	}
	if r.phase == PhaseCountdown {
		snap.Countdown = r.countdown
	}
	if r.settings.Timer == TimerDown && r.phase == PhasePlaying {
		snap.TimeLeft = round1(r.clock.Seconds(r.remainingTicks))
	}
	for _, p := range r.store.Players() {
		snap.Players = append(snap.Players, p.View())
	}
	for _, h := range r.store.Hazards() {
		snap.Hazards = append(snap.Hazards, *h)
	}
	if b := r.store.Ball(); b != nil {
		ball := *b
		snap.Ball = &ball
	}
	if g := r.store.Grid(); g != nil {
		grid := *g
		grid.Cells = slices.Clone(g.Cells)
		snap.Grid = &grid
	}
	if rep, ok := r.rules.(ModeStateReporter); ok && r.phase != PhaseWaiting {
		snap.ModeState = rep.ModeState(r)
	}
	if r.outcome != nil {
		o := *r.outcome
		snap.Outcome = &o
	}
	if r.successor != nil {
		ref := *r.successor
		snap.Successor = &ref
	}
	return snap
}

// publish stores the snapshot for lock-free readers and pushes the frame
func (r *Room) publish() {
	snap := r.buildSnapshot()
	r.latest.Store(snap)
	r.broadcaster.State(r.ID, Frame{Snapshot: snap, Delta: r.store.Flush()})
}

// Info is the short listing form of a snapshot
type Info struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	Mode       string `json:"mode"`
	Phase      Phase  `json:"phase"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"maxPlayers"`
}

// Info summarizes the snapshot for room listings
func (s *Snapshot) Info() Info {
	return Info{
		ID:         s.RoomID,
		Code:       s.Code,
		Mode:       s.Mode,
		Phase:      s.Phase,
		Players:    s.PlayerCount,
		MaxPlayers: s.MaxPlayers,
	}
}
