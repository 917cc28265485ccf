package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"party-arena/internal/game"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() RoomContext {
	return RoomContext{
		RoomID: "room-1",
		Mode:   game.ModeSurvival,
		Phase:  string(game.PhasePlaying),
		Players: []PlayerBrief{
			{ID: "dead-leader", Score: 30, Alive: false},
			{ID: "p2", Score: 20, Alive: true},
			{ID: "p3", Score: 10, Alive: true},
		},
	}
}

func TestClientRequest(t *testing.T) {
	var got RoomContext
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"command":"spawn_trap","target":"p2","narration":"Watch out!"}`))
	}))
	defer ts.Close()

	c := NewClient(Config{Endpoint: ts.URL, APIKey: "secret"})
	d, err := c.Next(context.Background(), testContext())
	require.NoError(t, err)

	assert.Equal(t, "spawn_trap", d.Command)
	assert.Equal(t, "p2", d.Target)
	assert.Equal(t, "Watch out!", d.Narration)
	assert.Equal(t, SourceAI, d.Source)
	assert.Equal(t, "room-1", got.RoomID)
	assert.Len(t, got.Players, 3)
}

func TestClientFallsBack(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer failing.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer garbage.Close()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"disabled", Config{}},
		{"server error", Config{Endpoint: failing.URL}},
		{"timeout", Config{Endpoint: slow.URL, Timeout: 50 * time.Millisecond}},
		{"bad body", Config{Endpoint: garbage.URL}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(tt.cfg)
			start := time.Now()
			d, err := c.Next(context.Background(), testContext())
			assert.Error(t, err)
			assert.Equal(t, SourceFallback, d.Source)
			assert.Equal(t, game.MutationFallingBlock.String(), d.Command)
			assert.Less(t, time.Since(start), time.Second)
		})
	}
}

func TestClientRateLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"command":"none"}`))
	}))
	defer ts.Close()

	c := NewClient(Config{Endpoint: ts.URL, RequestsPerSecond: 0.001, Burst: 1})
	_, err := c.Request(context.Background(), testContext())
	require.NoError(t, err)

	_, err = c.Request(context.Background(), testContext())
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestFallbackRotationIsPerRoom(t *testing.T) {
	f := NewFallback()
	rc := testContext()

	var commands []string
	for range fallbackCommands {
		d := f.Next(rc)
		commands = append(commands, d.Command)
		if d.Command == game.MutationTrap.String() {
			assert.Equal(t, "p2", d.Target, "trap targets the top alive player")
		}
	}
	assert.Equal(t, []string{
		"spawn_falling_block", "spawn_speed_zone", "spawn_rotating_obstacle", "spawn_trap", "none",
	}, commands)

	// Wraps around, and another room starts its own rotation
	assert.Equal(t, "spawn_falling_block", f.Next(rc).Command)
	other := rc
	other.RoomID = "room-2"
	assert.Equal(t, "spawn_falling_block", f.Next(other).Command)

	f.Forget(rc.RoomID)
	assert.Equal(t, "spawn_falling_block", f.Next(rc).Command)
}

func TestNewRoomContextOrdersByScore(t *testing.T) {
	snap := &game.Snapshot{
		RoomID:      "r",
		Mode:        game.ModeHarvest,
		Phase:       game.PhasePlaying,
		AliveCount:  2,
		HazardCount: 1,
		Players: []game.PlayerView{
			{ID: "low", Score: 1, Alive: true},
			{ID: "high", Score: 9, Alive: true},
		},
	}
	rc := NewRoomContext(snap)
	require.Len(t, rc.Players, 2)
	assert.Equal(t, "high", rc.Players[0].ID)
	assert.Equal(t, 2, rc.Alive)
	assert.Contains(t, rc.Commands, "shrink_arena")
}

// Director

type fixedSource struct {
	directive Directive
	block     chan struct{}
	calls     int
	mu        sync.Mutex
}

func (s *fixedSource) Next(ctx context.Context, rc RoomContext) (Directive, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
		}
	}
	return s.directive, nil
}

type staticRooms []*game.Room

func (r staticRooms) Playing() []*game.Room { return r }

type outcomeLog struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *outcomeLog) DirectiveObserved(source, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, source+":"+outcome)
}

func (o *outcomeLog) list() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.outcomes...)
}

// playingRoom starts a harvest room with two bots and waits until it plays
func playingRoom(t *testing.T) *game.Room {
	t.Helper()
	cfg := game.DefaultRoomConfig()
	cfg.TickRate = game.MaxTickRate
	cfg.CountdownSeconds = 0
	cfg.Chain = false
	cfg.Seed = 7

	room := game.NewRoom("room-1", "ABCDEF", game.NewHarvest(game.DefaultHarvest()), cfg, game.Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		<-room.Done()
	})
	go room.Run(ctx)

	for _, id := range []string{"bot-1", "bot-2"} {
		res, err := room.Join(ctx, id, game.JoinPayload{Bot: true})
		require.NoError(t, err)
		require.True(t, res.OK)
	}
	require.Eventually(t, func() bool {
		return room.Snapshot().Phase == game.PhasePlaying
	}, 2*time.Second, 5*time.Millisecond)
	return room
}

func TestDirectorAppliesMutation(t *testing.T) {
	room := playingRoom(t)
	src := &fixedSource{directive: Directive{Command: "spawn_speed_zone", Source: SourceAI}}
	obs := &outcomeLog{}
	d := NewDirector(src, staticRooms{room}, time.Hour, obs)

	assert.Equal(t, 1, d.Poll(context.Background()))
	d.Wait()

	assert.Equal(t, []string{"ai:applied"}, obs.list())
	require.Eventually(t, func() bool {
		return room.Snapshot().HazardCount == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDirectorDropsUnknownCommands(t *testing.T) {
	room := playingRoom(t)
	src := &fixedSource{directive: Directive{Command: "delete_everything", Source: SourceAI}}
	obs := &outcomeLog{}
	d := NewDirector(src, staticRooms{room}, time.Hour, obs)

	d.Poll(context.Background())
	d.Wait()
	assert.Equal(t, []string{"ai:rejected"}, obs.list())
	assert.Equal(t, 0, room.Snapshot().HazardCount)
}

func TestDirectorOneCallInFlightPerRoom(t *testing.T) {
	room := playingRoom(t)
	src := &fixedSource{directive: Directive{Command: "none"}, block: make(chan struct{})}
	d := NewDirector(src, staticRooms{room}, time.Hour, nil)

	assert.Equal(t, 1, d.Poll(context.Background()))
	assert.Equal(t, 0, d.Poll(context.Background()), "second poll must skip the busy room")

	close(src.block)
	d.Wait()
	assert.Equal(t, 1, d.Poll(context.Background()))
	d.Wait()
}

type forgettingSource struct {
	fixedSource
	fmu       sync.Mutex
	forgotten []string
}

func (s *forgettingSource) Forget(roomID string) {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	s.forgotten = append(s.forgotten, roomID)
}

type roomList struct {
	mu    sync.Mutex
	rooms []*game.Room
}

func (l *roomList) Playing() []*game.Room {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*game.Room(nil), l.rooms...)
}

func TestDirectorForgetsRoomsThatStopPlaying(t *testing.T) {
	room := playingRoom(t)
	src := &forgettingSource{fixedSource: fixedSource{directive: Directive{Command: "none"}}}
	rooms := &roomList{rooms: []*game.Room{room}}
	d := NewDirector(src, rooms, time.Hour, nil)

	d.Poll(context.Background())
	d.Wait()
	assert.Empty(t, src.forgotten)

	rooms.mu.Lock()
	rooms.rooms = nil
	rooms.mu.Unlock()

	d.Poll(context.Background())
	d.Poll(context.Background())
	assert.Equal(t, []string{room.ID}, src.forgotten, "forgotten exactly once")
}

func TestClientForgetRestartsRotation(t *testing.T) {
	c := NewClient(Config{})
	rc := testContext()

	first, err := c.Next(context.Background(), rc)
	require.Error(t, err)
	second, _ := c.Next(context.Background(), rc)
	assert.NotEqual(t, first.Command, second.Command)

	c.Forget(rc.RoomID)
	again, _ := c.Next(context.Background(), rc)
	assert.Equal(t, first.Command, again.Command)
}
