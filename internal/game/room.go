package game

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// Phase is the room's top-level match state
type Phase string

const (
	PhaseWaiting   Phase = "waiting"
	PhaseCountdown Phase = "countdown"
	PhasePlaying   Phase = "playing"
	PhaseEnded     Phase = "ended"
)

// Join rejection reasons
const (
	RejectFull       = "full"
	RejectInProgress = "in_progress"
	RejectLocked     = "locked"
	RejectMoved      = "moved"
	RejectInvalid    = "invalid"
)

// RoomConfig holds lifecycle and simulation settings shared by every mode
type RoomConfig struct {
	TickRate         int
	CountdownSeconds float64
	EndDelaySeconds  float64
	IdleGraceSeconds float64
	SuccessorTimeout time.Duration
	Chain            bool
	InboxSize        int
	Seed             int64 // 0 seeds from the clock
	Physics          PhysicsConfig
	Hazards          HazardConfig
}

// DefaultRoomConfig returns the default room settings
func DefaultRoomConfig() RoomConfig {
	return RoomConfig{
		TickRate:         DefaultTickRate,
		CountdownSeconds: 3,
		EndDelaySeconds:  5,
		IdleGraceSeconds: 30,
		SuccessorTimeout: 5 * time.Second,
		Chain:            true,
		InboxSize:        256,
		Physics:          DefaultPhysics(),
		Hazards:          DefaultHazards(),
	}
}

// Broadcaster is the transport collaborator. Both calls happen on the room
// goroutine and must not block.
type Broadcaster interface {
	Event(roomID string, ev Event)
	State(roomID string, frame Frame)
}

// Frame is the per-tick state push: the full snapshot plus what changed
type Frame struct {
	Snapshot *Snapshot `json:"snapshot"`
	Delta    Delta     `json:"delta"`
}

// Telemetry receives room metrics. Implementations must be safe for concurrent use.
type Telemetry interface {
	TickObserved(mode string, d time.Duration)
	TickPanicked(mode string)
	MatchEnded(mode, result string)
	HazardSpawned(mode, kind string)
}

// RoomRef identifies a room for chained transitions
type RoomRef struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Mode string `json:"mode"`
}

// SuccessorFunc creates the next room in the rotation. It runs off the room goroutine.
type SuccessorFunc func(ctx context.Context, mode string) (RoomRef, error)

// Deps are the collaborators a room talks to. Nil fields get no-op defaults.
type Deps struct {
	Broadcaster Broadcaster
	Results     ResultSink
	Telemetry   Telemetry
	Journal     *Journal
	Successor   SuccessorFunc
	OnDispose   func(roomID string)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Event(string, Event) {}
func (nopBroadcaster) State(string, Frame) {}

type nopTelemetry struct{}

func (nopTelemetry) TickObserved(string, time.Duration) {}
func (nopTelemetry) TickPanicked(string) {}
func (nopTelemetry) MatchEnded(string, string) {}
func (nopTelemetry) HazardSpawned(string, string) {}

// Inbox messages

// JoinRequest adds a player. Reply, if set, must be buffered; the room never
// blocks on it.
type JoinRequest struct {
	PlayerID string
	Payload  JoinPayload
	Reply    chan<- JoinResult
}

// JoinResult reports whether a join was accepted
type JoinResult struct {
	OK     bool       `json:"ok"`
	Reason string     `json:"reason,omitempty"`
	Player PlayerView `json:"player"`
}

// LeaveRequest removes a player
type LeaveRequest struct {
	PlayerID string
}

// Input is a client command: move{dx,dy}, ready, rename{name}, dash
type Input struct {
	Type string  `json:"type" msgpack:"type"`
	DX   float64 `json:"dx,omitempty" msgpack:"dx"`
	DY   float64 `json:"dy,omitempty" msgpack:"dy"`
	Name string  `json:"name,omitempty" msgpack:"name"`
}

// InputRequest routes a client command to a player
type InputRequest struct {
	PlayerID string
	Input    Input
}

// MutationRequest applies an arena mutation from outside the room
type MutationRequest struct {
	Mutation Mutation
}

// CloseRequest disposes the room immediately
type CloseRequest struct{}

type chainResult struct {
	ref RoomRef
	err error
}

// Room is one match instance. All state below the identity fields is owned by
// the goroutine running Run; other goroutines talk to it through Submit and read
// it through Snapshot.
type Room struct {
	ID   string
	Code string
	Mode string

	cfg         RoomConfig
	rules       RuleSet
	settings    ModeSettings
	broadcaster Broadcaster
	results     ResultSink
	telemetry   Telemetry
	journal     *Journal
	successorFn SuccessorFunc
	onDispose   func(string)

	clock   *Clock
	store   *EntityStore
	arena   Arena
	hazards *HazardEngine
	rng     *rand.Rand

	phase          Phase
	subPhase       string
	subPhaseTicks  int
	countdown      int
	countdownTicks int

	matchID        string
	matchTicks     int
	remainingTicks int

	ended     bool
	outcome   *Outcome
	endTicks  int
	chaining  bool
	successor *RoomRef

	idlePending bool
	idleTicks   int
	disposed    bool

	lastEvent string
	slots     int

	inbox   chan any
	chainCh chan chainResult
	done    chan struct{}
	latest  atomic.Pointer[Snapshot]

	// Departures bypass the bounded inbox so a disconnect is never lost
	leaveMu sync.Mutex
	leaves  []string
	leaveCh chan struct{}
}

// NewRoom creates a room in Waiting. It does not start the loop; call Run.
func NewRoom(id, code string, rules RuleSet, cfg RoomConfig, deps Deps) *Room {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = DefaultRoomConfig().InboxSize
	}
	if cfg.SuccessorTimeout <= 0 {
		cfg.SuccessorTimeout = DefaultRoomConfig().SuccessorTimeout
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	r := &Room{
		ID:          id,
		Code:        code,
		Mode:        rules.Name(),
		cfg:         cfg,
		rules:       rules,
		settings:    rules.Settings(),
		broadcaster: deps.Broadcaster,
		results:     deps.Results,
		telemetry:   deps.Telemetry,
		journal:     deps.Journal,
		successorFn: deps.Successor,
		onDispose:   deps.OnDispose,
		clock:       NewClock(cfg.TickRate),
		store:       NewEntityStore(),
		hazards:     NewHazardEngine(cfg.Hazards),
		rng:         rand.New(rand.NewSource(seed)),
		phase:       PhaseWaiting,
		inbox:       make(chan any, cfg.InboxSize),
		chainCh:     make(chan chainResult, 1),
		done:        make(chan struct{}),
		leaveCh:     make(chan struct{}, 1),
	}
	if r.broadcaster == nil {
		r.broadcaster = nopBroadcaster{}
	}
	if r.results == nil {
		r.results = nopResults{}
	}
	if r.telemetry == nil {
		r.telemetry = nopTelemetry{}
	}
	r.arena = r.settings.Arena

	// Rooms are created before anyone joins; the idle window covers that gap.
	r.startIdle()
	r.publish()
	return r
}

// Run drives the room until it is disposed or ctx is cancelled
func (r *Room) Run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.clock.Interval())
	defer ticker.Stop()

	log.Printf("🏟️ Room %s (%s, code %s) running at %d TPS", r.ID, r.Mode, r.Code, r.clock.Rate())

	for !r.disposed {
		select {
		case <-ctx.Done():
			r.dispose("shutdown")
			return
		case msg := <-r.inbox:
			r.handle(msg)
		case res := <-r.chainCh:
			r.finishChain(res)
		case <-r.leaveCh:
			r.drainLeaves()
		case <-ticker.C:
			r.Step()
		}
	}
}

// Done is closed when Run returns
func (r *Room) Done() <-chan struct{} {
	return r.done
}

// Submit enqueues a message without blocking. Returns false if the inbox is full.
func (r *Room) Submit(msg any) bool {
	select {
	case r.inbox <- msg:
		return true
	default:
		return false
	}
}

// Leave queues a player's departure. Unlike Submit it never drops: leaves are
// held outside the inbox until the room goroutine picks them up. Returns false
// once the room has stopped.
func (r *Room) Leave(playerID string) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	r.leaveMu.Lock()
	r.leaves = append(r.leaves, playerID)
	r.leaveMu.Unlock()

	select {
	case r.leaveCh <- struct{}{}:
	default:
	}
	return true
}

func (r *Room) drainLeaves() {
	r.leaveMu.Lock()
	ids := r.leaves
	r.leaves = nil
	r.leaveMu.Unlock()

	for _, id := range ids {
		r.handle(LeaveRequest{PlayerID: id})
	}
}

// Join submits a join and waits for the room's answer
func (r *Room) Join(ctx context.Context, playerID string, payload JoinPayload) (JoinResult, error) {
	reply := make(chan JoinResult, 1)
	if !r.Submit(JoinRequest{PlayerID: playerID, Payload: payload, Reply: reply}) {
		return JoinResult{}, ErrInboxFull
	}
	select {
	case res := <-reply:
		return res, nil
	case <-r.done:
		return JoinResult{}, ErrRoomClosed
	case <-ctx.Done():
		return JoinResult{}, ctx.Err()
	}
}

// Snapshot returns the latest published state. Safe from any goroutine.
func (r *Room) Snapshot() *Snapshot {
	return r.latest.Load()
}

// Settings returns the mode settings the room was created with
func (r *Room) Settings() ModeSettings {
	return r.settings
}

// handle applies one inbox message. A fault is isolated to the message.
func (r *Room) handle(msg any) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("💥 Room %s: handler panic on %T: %v", r.ID, msg, rec)
			r.telemetry.TickPanicked(r.Mode)
		}
	}()

	switch m := msg.(type) {
	case JoinRequest:
		res := r.handleJoin(m)
		if m.Reply != nil {
			select {
			case m.Reply <- res:
			default:
			}
		}
	case LeaveRequest:
		r.handleLeave(m.PlayerID)
	case InputRequest:
		r.handleInput(m.PlayerID, m.Input)
	case MutationRequest:
		r.applyExternalMutation(m.Mutation)
	case CloseRequest:
		r.dispose("closed")
	case chainResult:
		r.finishChain(m)
	default:
		log.Printf("⚠️ Room %s: ignored message %T", r.ID, msg)
	}
}

func (r *Room) handleJoin(req JoinRequest) JoinResult {
	if req.PlayerID == "" {
		return JoinResult{Reason: RejectInvalid}
	}
	// Reconnects are idempotent
	if p, ok := r.store.Player(req.PlayerID); ok {
		return JoinResult{OK: true, Player: p.View()}
	}

	switch {
	case r.disposed:
		return JoinResult{Reason: RejectLocked}
	case r.successor != nil:
		return JoinResult{Reason: RejectMoved}
	case r.phase == PhaseEnded:
		return JoinResult{Reason: RejectLocked}
	case r.phase != PhaseWaiting:
		return JoinResult{Reason: RejectInProgress}
	case r.store.PlayerCount() >= r.settings.MaxPlayers:
		return JoinResult{Reason: RejectFull}
	}

	slot := r.slots
	r.slots++

	def := fmt.Sprintf("Player %d", slot+1)
	if req.Payload.Bot {
		def = fmt.Sprintf("Bot %d", slot+1)
	}
	p := &Player{
		ID:              req.PlayerID,
		Name:            SanitizeName(req.Payload.DisplayName, def),
		Color:           SanitizeColor(req.Payload.Color, slot),
		Radius:          DefaultPlayerRadius,
		Alive:           true,
		SpeedMultiplier: 1,
		CarriedScore:    SanitizeScore(req.Payload.PreviousScore),
		IsBot:           req.Payload.Bot,
		Ready:           req.Payload.Bot,
	}
	if r.settings.Spawn == SpawnTeams {
		p.Team = r.smallerTeam()
	}
	r.store.AddPlayer(p)
	r.placePlayer(p, r.store.PlayerCount()-1)
	r.cancelIdle()

	r.emit(EventPlayerJoined, p.ID, PlayerJoinedPayload{Player: p.View()})
	log.Printf("➕ Room %s: %s joined (%d/%d)", r.ID, p.Name, r.store.PlayerCount(), r.settings.MaxPlayers)
	return JoinResult{OK: true, Player: p.View()}
}

func (r *Room) handleLeave(id string) {
	p := r.store.RemovePlayer(id)
	if p == nil {
		return
	}
	r.emit(EventPlayerLeft, p.ID, PlayerLeftPayload{PlayerID: p.ID, Name: p.Name})
	log.Printf("➖ Room %s: %s left (%d remaining)", r.ID, p.Name, r.store.PlayerCount())

	switch r.phase {
	case PhaseCountdown:
		if !r.canStart() {
			r.phase = PhaseWaiting
			r.emit(EventCountdownCancelled, "", nil)
		}
	case PhasePlaying:
		if h, ok := r.rules.(LeaveHandler); ok {
			h.OnLeave(r, p)
		}
		if r.store.PlayerCount() < r.settings.MinPlayers {
			r.endMatch(r.rules.Resolve(r, ReasonForfeit))
		}
	}

	if r.store.PlayerCount() == 0 {
		r.startIdle()
	}
}

func (r *Room) handleInput(id string, in Input) {
	p, ok := r.store.Player(id)
	if !ok {
		return
	}

	switch in.Type {
	case "move":
		if !r.acceptsMovement(p) {
			return
		}
		dx, dy, ok := normalizeVector(in.DX, in.DY)
		if !ok {
			return
		}
		p.inputX, p.inputY = dx, dy
	case "ready":
		if r.phase == PhaseWaiting && !p.Ready {
			p.Ready = true
			r.emit(EventPlayerReady, p.ID, nil)
		}
	case "rename":
		name := SanitizeName(in.Name, p.Name)
		if name != p.Name {
			p.Name = name
			r.emit(EventPlayerRenamed, p.ID, PlayerRenamedPayload{PlayerID: p.ID, Name: name})
		}
	case "dash":
		r.dash(p)
	}
}

// acceptsMovement gates move commands: dead, stunned and frozen players are ignored
func (r *Room) acceptsMovement(p *Player) bool {
	if !p.Alive || p.Stunned() {
		return false
	}
	switch r.phase {
	case PhaseWaiting:
		return true
	case PhasePlaying:
		return r.subPhase == ""
	}
	return false
}

func (r *Room) dash(p *Player) {
	if r.phase != PhasePlaying || r.subPhase != "" || !p.Alive || p.Stunned() || p.AbilityCooldown > 0 {
		return
	}
	dx, dy := p.inputX, p.inputY
	if dx == 0 && dy == 0 {
		dx, dy = p.VX, p.VY
	}
	dx, dy, ok := normalizeVector(dx*1e6, dy*1e6)
	if !ok || (dx == 0 && dy == 0) {
		return
	}
	p.VX = dx * r.cfg.Physics.DashImpulse
	p.VY = dy * r.cfg.Physics.DashImpulse
	p.DashTicks = r.clock.Ticks(0.25)
	p.AbilityCooldown = r.clock.Ticks(3)
}

func (r *Room) applyExternalMutation(m Mutation) {
	if r.phase != PhasePlaying || !r.settings.AcceptsMutations {
		return
	}
	r.hazards.Apply(r, m)
}

// ApplyMutation runs a mutation from inside the room (rules use this)
func (r *Room) ApplyMutation(kind MutationKind, targetID string) bool {
	return r.hazards.Apply(r, Mutation{Kind: kind, TargetID: targetID, Source: "rules"})
}

func (r *Room) smallerTeam() string {
	red, blue := 0, 0
	for _, p := range r.store.Players() {
		switch p.Team {
		case TeamRed:
			red++
		case TeamBlue:
			blue++
		}
	}
	if blue < red {
		return TeamBlue
	}
	return TeamRed
}

// balanceTeams moves the latest joiners off the bigger team until the sides
// differ by at most one. Leaves during Waiting can empty a side.
func (r *Room) balanceTeams() {
	players := r.store.Players()
	count := map[string]int{}
	for _, p := range players {
		count[p.Team]++
	}
	for i := len(players) - 1; i >= 0; i-- {
		big, small := TeamRed, TeamBlue
		if count[TeamBlue] > count[TeamRed] {
			big, small = TeamBlue, TeamRed
		}
		if count[big]-count[small] <= 1 {
			return
		}
		if p := players[i]; p.Team == big {
			p.Team = small
			count[big]--
			count[small]++
			log.Printf("⚖️ Room %s: %s moved to %s", r.ID, p.Name, small)
		}
	}
}

// Eliminate takes a player out of the match. Idempotent: the first cause sticks.
func (r *Room) Eliminate(p *Player, cause string) bool {
	if !p.Alive {
		return false
	}
	p.Alive = false
	p.Cause = cause
	p.VX, p.VY = 0, 0
	p.inputX, p.inputY = 0, 0
	r.emit(EventPlayerEliminated, p.ID, PlayerEliminatedPayload{
		PlayerID: p.ID,
		Name:     p.Name,
		Cause:    cause,
		Alive:    r.store.AliveCount(),
	})
	if h, ok := r.rules.(EliminationHandler); ok {
		h.OnEliminated(r, p)
	}
	return true
}

// EnterSubPhase starts a nested, tick-counted sub-phase of Playing
func (r *Room) EnterSubPhase(name string, seconds float64) {
	r.subPhase = name
	r.subPhaseTicks = r.clock.Ticks(seconds)
	r.emit(EventSubPhase, "", SubPhasePayload{Name: name, Seconds: seconds})
}

func (r *Room) emit(t EventType, playerID string, payload any) {
	ev := NewEvent(t, r.clock.Tick(), r.ID, playerID, payload)
	r.lastEvent = t.String()
	r.broadcaster.Event(r.ID, ev)
	if r.journal != nil {
		r.journal.Record(ev)
	}
}

func (r *Room) dispose(reason string) {
	if r.disposed {
		return
	}
	r.disposed = true
	log.Printf("🧹 Room %s (%s) disposed: %s", r.ID, r.Mode, reason)
	if r.onDispose != nil {
		r.onDispose(r.ID)
	}
}

// Accessors used by rule sets and tests

func (r *Room) Store() *EntityStore { return r.store }
func (r *Room) Arena() *Arena { return &r.arena }
func (r *Room) Clock() *Clock { return r.clock }
func (r *Room) Rand() *rand.Rand { return r.rng }
func (r *Room) Phase() Phase { return r.phase }
func (r *Room) SubPhase() string { return r.subPhase }
