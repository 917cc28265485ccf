package game

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

// recordingBroadcaster captures everything a room sends. Tests drive rooms
// synchronously through handle and Step, so no locking is needed.
type recordingBroadcaster struct {
	events []Event
	frames []Frame
}

func (b *recordingBroadcaster) Event(_ string, ev Event) { b.events = append(b.events, ev) }
func (b *recordingBroadcaster) State(_ string, f Frame) { b.frames = append(b.frames, f) }

func (b *recordingBroadcaster) count(t EventType) int {
	n := 0
	for _, ev := range b.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

type recordingSink struct {
	summaries []MatchSummary
}

func (s *recordingSink) RecordMatch(m MatchSummary) { s.summaries = append(s.summaries, m) }

type testRoom struct {
	*Room
	events  *recordingBroadcaster
	results *recordingSink
}

func testRoomConfig() RoomConfig {
	cfg := DefaultRoomConfig()
	cfg.Seed = 42
	cfg.CountdownSeconds = 0
	cfg.Chain = false
	return cfg
}

func newTestRoom(t *testing.T, rules RuleSet, cfg RoomConfig, deps Deps) *testRoom {
	t.Helper()
	events := &recordingBroadcaster{}
	results := &recordingSink{}
	deps.Broadcaster = events
	deps.Results = results
	return &testRoom{
		Room:    NewRoom("room-1", "ABC123", rules, cfg, deps),
		events:  events,
		results: results,
	}
}

func (tr *testRoom) join(t *testing.T, id string) *Player {
	t.Helper()
	res := tr.handleJoin(JoinRequest{PlayerID: id, Payload: JoinPayload{DisplayName: id}})
	if !res.OK {
		t.Fatalf("Join %s rejected: %s", id, res.Reason)
	}
	p, _ := tr.store.Player(id)
	return p
}

func (tr *testRoom) ready(ids ...string) {
	for _, id := range ids {
		tr.handle(InputRequest{PlayerID: id, Input: Input{Type: "ready"}})
	}
}

func (tr *testRoom) steps(n int) {
	for i := 0; i < n; i++ {
		tr.Step()
	}
}

// startHarvest returns a harvest room already in Playing with players a and b
func startHarvest(t *testing.T, cfg RoomConfig) (*testRoom, *Player, *Player) {
	t.Helper()
	tr := newTestRoom(t, NewHarvest(DefaultHarvest()), cfg, Deps{})
	a := tr.join(t, "a")
	b := tr.join(t, "b")
	tr.ready("a", "b")
	tr.Step()
	if tr.Phase() != PhasePlaying {
		t.Fatalf("Expected phase playing, got %s", tr.Phase())
	}
	return tr, a, b
}

func TestRoomStartsInWaiting(t *testing.T) {
	tr := newTestRoom(t, NewHarvest(DefaultHarvest()), testRoomConfig(), Deps{})

	snap := tr.Snapshot()
	if snap == nil {
		t.Fatal("Expected a snapshot right after NewRoom")
	}
	if snap.Phase != PhaseWaiting {
		t.Errorf("Expected phase waiting, got %s", snap.Phase)
	}
	if snap.Mode != ModeHarvest {
		t.Errorf("Expected mode harvest, got %s", snap.Mode)
	}
}

func TestJoinRejections(t *testing.T) {
	tr := newTestRoom(t, NewHarvest(DefaultHarvest()), testRoomConfig(), Deps{})

	if res := tr.handleJoin(JoinRequest{PlayerID: ""}); res.OK || res.Reason != RejectInvalid {
		t.Errorf("Expected invalid rejection for empty id, got %+v", res)
	}

	for i := 0; i < DefaultHarvest().MaxPlayers; i++ {
		tr.join(t, string(rune('a'+i)))
	}
	if res := tr.handleJoin(JoinRequest{PlayerID: "late"}); res.OK || res.Reason != RejectFull {
		t.Errorf("Expected full rejection, got %+v", res)
	}

	// Reconnects are idempotent even when full
	res := tr.handleJoin(JoinRequest{PlayerID: "a"})
	if !res.OK {
		t.Errorf("Expected reconnect to succeed, got %+v", res)
	}
	if tr.store.PlayerCount() != DefaultHarvest().MaxPlayers {
		t.Errorf("Reconnect changed player count to %d", tr.store.PlayerCount())
	}
}

func TestJoinDuringMatchRejected(t *testing.T) {
	tr, _, _ := startHarvest(t, testRoomConfig())

	res := tr.handleJoin(JoinRequest{PlayerID: "c"})
	if res.OK || res.Reason != RejectInProgress {
		t.Errorf("Expected in_progress rejection, got %+v", res)
	}
}

func TestJoinSanitizesPayload(t *testing.T) {
	tr := newTestRoom(t, NewHarvest(DefaultHarvest()), testRoomConfig(), Deps{})

	res := tr.handleJoin(JoinRequest{PlayerID: "a", Payload: JoinPayload{
		DisplayName:   "  A very long display name indeed  ",
		Color:         "javascript:alert(1)",
		PreviousScore: 5e9,
	}})
	if !res.OK {
		t.Fatalf("Join rejected: %s", res.Reason)
	}
	if got := len([]rune(res.Player.Name)); got > MaxNameLength {
		t.Errorf("Expected name clamped to %d runes, got %d (%q)", MaxNameLength, got, res.Player.Name)
	}
	if !strings.HasPrefix(res.Player.Color, "#") || len(res.Player.Color) != 7 {
		t.Errorf("Expected palette color, got %q", res.Player.Color)
	}
	p, _ := tr.store.Player("a")
	if p.CarriedScore != MaxCarriedScore {
		t.Errorf("Expected carried score clamped to %d, got %d", MaxCarriedScore, p.CarriedScore)
	}

	res = tr.handleJoin(JoinRequest{PlayerID: "b"})
	if res.Player.Name != "Player 2" {
		t.Errorf("Expected default name 'Player 2', got %q", res.Player.Name)
	}
}

func TestMoveInputIsNormalized(t *testing.T) {
	tr := newTestRoom(t, NewHarvest(DefaultHarvest()), testRoomConfig(), Deps{})
	p := tr.join(t, "a")

	tr.handle(InputRequest{PlayerID: "a", Input: Input{Type: "move", DX: 3, DY: 4}})
	if math.Abs(p.inputX-0.6) > 1e-9 || math.Abs(p.inputY-0.8) > 1e-9 {
		t.Errorf("Expected (0.6, 0.8), got (%f, %f)", p.inputX, p.inputY)
	}

	tr.handle(InputRequest{PlayerID: "a", Input: Input{Type: "move", DX: math.NaN(), DY: 0}})
	if math.IsNaN(p.inputX) {
		t.Error("NaN input must be ignored")
	}

	// Unknown players are ignored without panicking
	tr.handle(InputRequest{PlayerID: "ghost", Input: Input{Type: "move", DX: 1}})
}

func TestCountdownCancelledWhenPlayerLeaves(t *testing.T) {
	cfg := testRoomConfig()
	cfg.CountdownSeconds = 3
	tr := newTestRoom(t, NewHarvest(DefaultHarvest()), cfg, Deps{})
	tr.join(t, "a")
	tr.join(t, "b")
	tr.ready("a", "b")
	tr.Step()

	if tr.Phase() != PhaseCountdown {
		t.Fatalf("Expected countdown, got %s", tr.Phase())
	}

	tr.handle(LeaveRequest{PlayerID: "b"})
	if tr.Phase() != PhaseWaiting {
		t.Errorf("Expected waiting after leave, got %s", tr.Phase())
	}
	if n := tr.events.count(EventCountdownCancelled); n != 1 {
		t.Errorf("Expected 1 countdown_cancelled event, got %d", n)
	}
}

func TestCountdownRunsToMatchStart(t *testing.T) {
	cfg := testRoomConfig()
	cfg.CountdownSeconds = 3
	tr := newTestRoom(t, NewHarvest(DefaultHarvest()), cfg, Deps{})
	tr.join(t, "a")
	tr.join(t, "b")
	tr.ready("a", "b")

	tr.steps(1 + tr.clock.Ticks(3))
	if tr.Phase() != PhasePlaying {
		t.Fatalf("Expected playing after the countdown, got %s", tr.Phase())
	}
	if n := tr.events.count(EventCountdown); n != 3 {
		t.Errorf("Expected 3 countdown events, got %d", n)
	}
	if n := tr.events.count(EventMatchStart); n != 1 {
		t.Errorf("Expected 1 match_start event, got %d", n)
	}
}

func TestEndMatchIsIdempotent(t *testing.T) {
	tr, a, _ := startHarvest(t, testRoomConfig())

	o := Outcome{WinnerID: a.ID, WinnerName: a.Name, Reason: ReasonWin}
	tr.endMatch(o)
	tr.endMatch(o)
	tr.endMatch(Outcome{Draw: true, Reason: ReasonTimeout})

	if n := tr.events.count(EventMatchEnd); n != 1 {
		t.Errorf("Expected 1 match_end broadcast, got %d", n)
	}
	if n := len(tr.results.summaries); n != 1 {
		t.Errorf("Expected 1 persisted summary, got %d", n)
	}
	if tr.outcome.WinnerID != a.ID {
		t.Errorf("Expected first outcome to stick, got %+v", tr.outcome)
	}
}

func TestDrawClearsWinner(t *testing.T) {
	tr, a, _ := startHarvest(t, testRoomConfig())

	tr.endMatch(Outcome{WinnerID: a.ID, Draw: true, Reason: ReasonTimeout})
	if tr.outcome.WinnerID != "" {
		t.Errorf("Expected empty winner on draw, got %q", tr.outcome.WinnerID)
	}
}

func TestResetRoundTrip(t *testing.T) {
	tr, a, b := startHarvest(t, testRoomConfig())
	a.Score = 30
	tr.ApplyMutation(MutationRotatingObstacle, "")

	tr.endMatch(tr.rules.Resolve(tr.Room, ReasonTimeout))
	if tr.Phase() != PhaseEnded {
		t.Fatalf("Expected ended, got %s", tr.Phase())
	}

	for i := 0; i < 1000 && tr.Phase() != PhaseWaiting; i++ {
		tr.Step()
	}
	if tr.Phase() != PhaseWaiting {
		t.Fatalf("Expected waiting after the end delay, got %s", tr.Phase())
	}

	for _, p := range []*Player{a, b} {
		if !p.Alive || p.Score != 0 || p.Ready {
			t.Errorf("Player %s not reset: alive=%v score=%d ready=%v", p.ID, p.Alive, p.Score, p.Ready)
		}
	}
	if a.CarriedScore != 30 {
		t.Errorf("Expected score folded into carry (30), got %d", a.CarriedScore)
	}
	if len(tr.store.Hazards()) != 0 || tr.store.Grid() != nil {
		t.Error("Expected hazards and grid cleared on reset")
	}
	if snap := tr.Snapshot(); snap.Outcome != nil || snap.MatchID != "" {
		t.Errorf("Expected no outcome after reset, got %+v", snap.Outcome)
	}
	if n := tr.events.count(EventMatchReset); n != 1 {
		t.Errorf("Expected 1 match_reset event, got %d", n)
	}
}

func TestLeaveBelowMinimumForfeits(t *testing.T) {
	tr, a, _ := startHarvest(t, testRoomConfig())
	a.Score = 10

	tr.handle(LeaveRequest{PlayerID: "b"})

	if tr.Phase() != PhaseEnded {
		t.Fatalf("Expected ended after forfeit, got %s", tr.Phase())
	}
	if tr.outcome.Reason != ReasonForfeit {
		t.Errorf("Expected reason forfeit, got %s", tr.outcome.Reason)
	}
	if tr.outcome.WinnerID != "a" {
		t.Errorf("Expected a to win by forfeit, got %q", tr.outcome.WinnerID)
	}
}

func TestIdleDisposalCancelledByJoin(t *testing.T) {
	cfg := testRoomConfig()
	cfg.IdleGraceSeconds = 1
	disposed := ""
	tr := newTestRoom(t, NewHarvest(DefaultHarvest()), cfg, Deps{OnDispose: func(id string) { disposed = id }})

	tr.steps(10)
	tr.join(t, "a")
	tr.steps(3 * tr.clock.Rate())
	if tr.disposed {
		t.Fatal("Room disposed although a player joined during the grace window")
	}

	tr.handle(LeaveRequest{PlayerID: "a"})
	tr.steps(tr.clock.Rate() + 1)
	if !tr.disposed {
		t.Fatal("Expected empty room to be disposed after the grace window")
	}
	if disposed != "room-1" {
		t.Errorf("Expected OnDispose with room-1, got %q", disposed)
	}
	if res := tr.handleJoin(JoinRequest{PlayerID: "b"}); res.OK {
		t.Error("Disposed room accepted a join")
	}
}

func TestChainToSuccessor(t *testing.T) {
	cfg := testRoomConfig()
	cfg.Chain = true
	requested := ""
	successor := func(ctx context.Context, mode string) (RoomRef, error) {
		requested = mode
		return RoomRef{ID: "room-2", Code: "XYZ789", Mode: mode}, nil
	}
	tr := newTestRoom(t, NewHarvest(DefaultHarvest()), cfg, Deps{Successor: successor})
	a := tr.join(t, "a")
	tr.handleJoin(JoinRequest{PlayerID: "bot", Payload: JoinPayload{Bot: true}})
	tr.ready("a")
	tr.Step()
	if tr.Phase() != PhasePlaying {
		t.Fatalf("Expected playing, got %s", tr.Phase())
	}
	a.Score = 20

	tr.endMatch(tr.rules.Resolve(tr.Room, ReasonTimeout))
	tr.steps(tr.clock.Ticks(cfg.EndDelaySeconds))
	if !tr.chaining {
		t.Fatal("Expected a successor request after the end delay")
	}

	select {
	case res := <-tr.chainCh:
		tr.finishChain(res)
	case <-time.After(2 * time.Second):
		t.Fatal("Successor request never answered")
	}
	tr.Step()

	if requested != ModeDynamite {
		t.Errorf("Expected successor mode dynamite, got %q", requested)
	}
	snap := tr.Snapshot()
	if snap.Successor == nil || snap.Successor.ID != "room-2" {
		t.Fatalf("Expected successor room-2 in snapshot, got %+v", snap.Successor)
	}
	if tr.store.PlayerCount() != 1 {
		t.Errorf("Expected bots removed on transition, %d players left", tr.store.PlayerCount())
	}
	if n := tr.events.count(EventRoomTransition); n != 1 {
		t.Errorf("Expected 1 room_transition event, got %d", n)
	}
	for _, ev := range tr.events.events {
		if ev.Type != EventRoomTransition {
			continue
		}
		payload := ev.Payload.(RoomTransitionPayload)
		if payload.Scores["a"] != 20 {
			t.Errorf("Expected carried total 20 for a, got %d", payload.Scores["a"])
		}
	}
	if res := tr.handleJoin(JoinRequest{PlayerID: "c"}); res.Reason != RejectMoved {
		t.Errorf("Expected moved rejection, got %+v", res)
	}
}

func TestChainFailureResetsInPlace(t *testing.T) {
	cfg := testRoomConfig()
	cfg.Chain = true
	successor := func(ctx context.Context, mode string) (RoomRef, error) {
		return RoomRef{}, errors.New("lobby full")
	}
	tr := newTestRoom(t, NewHarvest(DefaultHarvest()), cfg, Deps{Successor: successor})
	tr.join(t, "a")
	tr.join(t, "b")
	tr.ready("a", "b")
	tr.Step()

	tr.endMatch(tr.rules.Resolve(tr.Room, ReasonTimeout))
	tr.steps(tr.clock.Ticks(cfg.EndDelaySeconds))

	select {
	case res := <-tr.chainCh:
		tr.finishChain(res)
	case <-time.After(2 * time.Second):
		t.Fatal("Successor request never answered")
	}

	if tr.Phase() != PhaseWaiting {
		t.Errorf("Expected reset to waiting, got %s", tr.Phase())
	}
	if tr.successor != nil {
		t.Error("Expected no successor after a failed chain")
	}
	if tr.store.PlayerCount() != 2 {
		t.Errorf("Expected players kept, got %d", tr.store.PlayerCount())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testRoomConfig()
	tr := newTestRoom(t, NewHarvest(DefaultHarvest()), cfg, Deps{})

	ctx, cancel := context.WithCancel(context.Background())
	go tr.Run(ctx)

	res, err := tr.Join(ctx, "a", JoinPayload{DisplayName: "Alice"})
	if err != nil || !res.OK {
		t.Fatalf("Join through the inbox failed: %v %+v", err, res)
	}
	if res.Player.Name != "Alice" {
		t.Errorf("Expected name Alice, got %q", res.Player.Name)
	}

	cancel()
	select {
	case <-tr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if _, err := tr.Join(context.Background(), "b", JoinPayload{}); !errors.Is(err, ErrRoomClosed) && !errors.Is(err, ErrInboxFull) {
		t.Errorf("Expected closed room error, got %v", err)
	}
}

func TestLeaveDeliveredWhenInboxFull(t *testing.T) {
	cfg := testRoomConfig()
	cfg.InboxSize = 4
	tr := newTestRoom(t, NewHarvest(DefaultHarvest()), cfg, Deps{})
	tr.join(t, "a")
	tr.publish()
	if tr.Snapshot().PlayerCount != 1 {
		t.Fatalf("Expected 1 player published, got %d", tr.Snapshot().PlayerCount)
	}

	for tr.Submit(InputRequest{PlayerID: "a", Input: Input{Type: "rename", Name: "Spam"}}) {
	}
	if tr.Submit(LeaveRequest{PlayerID: "a"}) {
		t.Fatal("Expected full inbox to refuse a submitted leave")
	}
	if !tr.Leave("a") {
		t.Fatal("Expected Leave to queue while the room is open")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go tr.Run(ctx)

	deadline := time.After(2 * time.Second)
	for tr.Snapshot().PlayerCount != 0 {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("Expected player removed, still %d in room", tr.Snapshot().PlayerCount)
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-tr.Done()
	if tr.Leave("a") {
		t.Error("Expected Leave to report false after the room stopped")
	}
}

func TestSpeedZoneOnlyInside(t *testing.T) {
	tr, a, _ := startHarvest(t, testRoomConfig())
	a.X, a.Y = 80, 80

	tr.store.AddHazard(&Hazard{
		ID:         99,
		Kind:       HazardSpeedZone,
		X:          80,
		Y:          80,
		W:          160,
		H:          160,
		Lifetime:   1000,
		Multiplier: 0.5,
		Active:     true,
	})

	tr.Step()
	if a.SpeedMultiplier != 0.5 {
		t.Errorf("Expected multiplier 0.5 inside the zone, got %f", a.SpeedMultiplier)
	}

	a.X, a.Y = 400, 80
	tr.Step()
	if a.SpeedMultiplier != 1.0 {
		t.Errorf("Expected multiplier 1.0 the tick after leaving, got %f", a.SpeedMultiplier)
	}
}

func TestSpeedZoneHalvesMaxSpeed(t *testing.T) {
	arena := RectArena(10000, 10000, 100, 100)
	cfg := DefaultPhysics()
	p := &Player{X: 5000, Y: 5000, Radius: 20, Alive: true, SpeedMultiplier: 0.5}
	p.inputX = 1

	for i := 0; i < 60; i++ {
		integratePlayer(p, &arena, cfg, 300, 1.0/30, true)
	}
	// Velocity is clamped before friction, so it never exceeds the limit
	if speed := math.Hypot(p.VX, p.VY); speed > 150+1e-9 {
		t.Errorf("Expected speed at most 150, got %f", speed)
	}
}

func TestStepRecoversFromPanic(t *testing.T) {
	tr := newTestRoom(t, panicRules{NewHarvest(DefaultHarvest())}, testRoomConfig(), Deps{})
	tr.join(t, "a")
	tr.join(t, "b")
	tr.ready("a", "b")

	tr.steps(3)
	if tr.Phase() != PhasePlaying {
		t.Errorf("Expected room to survive tick panics, got %s", tr.Phase())
	}
}

type panicRules struct {
	*Harvest
}

func (panicRules) OnTick(*Room) { panic("boom") }
