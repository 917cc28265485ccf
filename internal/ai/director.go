package ai

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"party-arena/internal/game"
)

// Source produces directives. *Client is the production source.
type Source interface {
	Next(ctx context.Context, rc RoomContext) (Directive, error)
}

// Forgetter is implemented by sources that keep per-room state. The director
// calls Forget once a room stops playing.
type Forgetter interface {
	Forget(roomID string)
}

// Rooms lists the rooms the director should consider. *lobby.Manager satisfies it.
type Rooms interface {
	Playing() []*game.Room
}

// Observer receives directive outcomes for metrics. Outcomes are
// "applied", "none", "rejected" and "inbox_full".
type Observer interface {
	DirectiveObserved(source, outcome string)
}

type nopObserver struct{}

func (nopObserver) DirectiveObserved(string, string) {}

// Director periodically asks the source for one mutation per playing room and
// submits it through the room's inbox. At most one call per room is in flight.
type Director struct {
	source   Source
	rooms    Rooms
	interval time.Duration
	observer Observer

	mu       sync.Mutex
	inflight map[string]bool
	known    map[string]bool
	wg       sync.WaitGroup
}

// NewDirector creates a director. A zero interval uses the default.
func NewDirector(source Source, rooms Rooms, interval time.Duration, observer Observer) *Director {
	if interval <= 0 {
		interval = DefaultConfig().Interval
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Director{
		source:   source,
		rooms:    rooms,
		interval: interval,
		observer: observer,
		inflight: make(map[string]bool),
		known:    make(map[string]bool),
	}
}

// Run drives the director until ctx is cancelled, then waits for in-flight calls
func (d *Director) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	log.Printf("🤖 AI director running every %s", d.interval)

	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			return
		case <-ticker.C:
			d.Poll(ctx)
		}
	}
}

// Poll starts a directive call for every eligible room without one in flight
func (d *Director) Poll(ctx context.Context) int {
	started := 0
	playing := make(map[string]bool)
	for _, room := range d.rooms.Playing() {
		if !room.Settings().AcceptsMutations {
			continue
		}
		playing[room.ID] = true
		if !d.acquire(room.ID) {
			continue
		}
		started++
		d.wg.Add(1)
		go func(room *game.Room) {
			defer d.wg.Done()
			defer d.release(room.ID)
			d.direct(ctx, room)
		}(room)
	}
	d.forgetStale(playing)
	return started
}

// forgetStale drops source state for rooms that are no longer playing
func (d *Director) forgetStale(playing map[string]bool) {
	d.mu.Lock()
	var stale []string
	for id := range d.known {
		if !playing[id] {
			stale = append(stale, id)
			delete(d.known, id)
		}
	}
	for id := range playing {
		d.known[id] = true
	}
	d.mu.Unlock()

	if f, ok := d.source.(Forgetter); ok {
		for _, id := range stale {
			f.Forget(id)
		}
	}
}

// Wait blocks until every in-flight call has finished
func (d *Director) Wait() {
	d.wg.Wait()
}

func (d *Director) acquire(roomID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inflight[roomID] {
		return false
	}
	d.inflight[roomID] = true
	return true
}

func (d *Director) release(roomID string) {
	d.mu.Lock()
	delete(d.inflight, roomID)
	d.mu.Unlock()
}

func (d *Director) direct(ctx context.Context, room *game.Room) {
	snap := room.Snapshot()
	if snap == nil || snap.Phase != game.PhasePlaying {
		return
	}

	dir, err := d.source.Next(ctx, NewRoomContext(snap))
	if err != nil && !errors.Is(err, ErrDisabled) {
		log.Printf("⚠️ AI directive for room %s failed, using fallback: %v", room.ID, err)
	}
	if dir.Source == "" {
		dir.Source = SourceAI
	}

	m, ok := game.ParseMutation(dir.Command, dir.Target, dir.Source)
	switch {
	case !ok:
		log.Printf("⚠️ AI sent unknown command %q for room %s, dropped", dir.Command, room.ID)
		d.observer.DirectiveObserved(dir.Source, "rejected")
	case m.Kind == game.MutationNone:
		d.observer.DirectiveObserved(dir.Source, "none")
	case !room.Submit(game.MutationRequest{Mutation: m}):
		d.observer.DirectiveObserved(dir.Source, "inbox_full")
	default:
		d.observer.DirectiveObserved(dir.Source, "applied")
	}
}
