package game

import (
	"slices"
	"strconv"
)

// Entity keys used in deltas
const (
	ballKey = "ball"
	gridKey = "grid"
)

func playerKey(id string) string { return "p:" + id }
func hazardKey(id uint64) string { return "h:" + strconv.FormatUint(id, 10) }

// Delta lists the entities that changed since the previous Flush.
// Removed carries the keys ("p:<id>", "h:<id>", "ball", "grid") that disappeared.
type Delta struct {
	Players []PlayerView `json:"players,omitempty"`
	Hazards []Hazard     `json:"hazards,omitempty"`
	Ball    *Ball        `json:"ball,omitempty"`
	Grid    []int        `json:"grid,omitempty"`
	Removed []string     `json:"removed,omitempty"`
}

// Empty reports whether nothing changed
func (d Delta) Empty() bool {
	return len(d.Players) == 0 && len(d.Hazards) == 0 && d.Ball == nil && d.Grid == nil && len(d.Removed) == 0
}

// EntityStore is the authoritative state of one room's entities. It is owned by
// the room goroutine and is not safe for concurrent use.
//
// Deltas are computed by comparing the current state against what was last
// flushed, so every mutation path (physics, rules, hazards) is picked up without
// each one having to mark entities dirty.
type EntityStore struct {
	players []*Player // join order, for deterministic iteration
	index   map[string]*Player
	hazards []*Hazard
	ball    *Ball
	grid    *Grid

	sentPlayers map[string]PlayerView
	sentHazards map[uint64]Hazard
	sentBall    *Ball
	sentGrid    []int
}

// NewEntityStore creates an empty store
func NewEntityStore() *EntityStore {
	return &EntityStore{
		index:       make(map[string]*Player),
		sentPlayers: make(map[string]PlayerView),
		sentHazards: make(map[uint64]Hazard),
	}
}

// AddPlayer inserts a player. Returns false if the id is already present.
func (s *EntityStore) AddPlayer(p *Player) bool {
	if _, exists := s.index[p.ID]; exists {
		return false
	}
	s.index[p.ID] = p
	s.players = append(s.players, p)
	return true
}

// RemovePlayer deletes a player and returns it (nil if unknown)
func (s *EntityStore) RemovePlayer(id string) *Player {
	p, ok := s.index[id]
	if !ok {
		return nil
	}
	delete(s.index, id)
	n := 0
	for _, other := range s.players {
		if other.ID != id {
			s.players[n] = other
			n++
		}
	}
	s.players[n] = nil
	s.players = s.players[:n]
	return p
}

// Player looks up a player by id. Weak references resolve through here.
func (s *EntityStore) Player(id string) (*Player, bool) {
	if id == "" {
		return nil, false
	}
	p, ok := s.index[id]
	return p, ok
}

// PatchPlayer applies fn to a player if present
func (s *EntityStore) PatchPlayer(id string, fn func(p *Player)) bool {
	p, ok := s.index[id]
	if !ok {
		return false
	}
	fn(p)
	return true
}

// Players returns players in join order. The slice must not be retained.
func (s *EntityStore) Players() []*Player {
	return s.players
}

// EachAlive calls fn for every alive player in join order
func (s *EntityStore) EachAlive(fn func(p *Player)) {
	for _, p := range s.players {
		if p.Alive {
			fn(p)
		}
	}
}

// PlayerCount is the number of connected players
func (s *EntityStore) PlayerCount() int {
	return len(s.players)
}

// AliveCount is derived from the collection on every call
func (s *EntityStore) AliveCount() int {
	n := 0
	for _, p := range s.players {
		if p.Alive {
			n++
		}
	}
	return n
}

// AddHazard appends a hazard
func (s *EntityStore) AddHazard(h *Hazard) {
	s.hazards = append(s.hazards, h)
}

// Hazards returns the live hazard list. The slice must not be retained.
func (s *EntityStore) Hazards() []*Hazard {
	return s.hazards
}

// ActiveHazardCount is derived from the collection on every call
func (s *EntityStore) ActiveHazardCount() int {
	n := 0
	for _, h := range s.hazards {
		if h.Active {
			n++
		}
	}
	return n
}

// PruneHazards drops inactive hazards in place
func (s *EntityStore) PruneHazards() int {
	n := 0
	for _, h := range s.hazards {
		if h.Active {
			s.hazards[n] = h
			n++
		}
	}
	removed := len(s.hazards) - n
	for i := n; i < len(s.hazards); i++ {
		s.hazards[i] = nil
	}
	s.hazards = s.hazards[:n]
	return removed
}

// ClearHazards removes every hazard
func (s *EntityStore) ClearHazards() {
	for i := range s.hazards {
		s.hazards[i] = nil
	}
	s.hazards = s.hazards[:0]
}

func (s *EntityStore) Ball() *Ball { return s.ball }
func (s *EntityStore) SetBall(b *Ball) { s.ball = b }
func (s *EntityStore) Grid() *Grid { return s.grid }
func (s *EntityStore) SetGrid(g *Grid) { s.grid = g }

// Flush returns everything that changed since the last Flush and records the
// current state as sent.
func (s *EntityStore) Flush() Delta {
	var d Delta

	seen := make(map[string]struct{}, len(s.players))
	for _, p := range s.players {
		view := p.View()
		seen[p.ID] = struct{}{}
		if prev, ok := s.sentPlayers[p.ID]; !ok || prev != view {
			d.Players = append(d.Players, view)
			s.sentPlayers[p.ID] = view
		}
	}
	for id := range s.sentPlayers {
		if _, ok := seen[id]; !ok {
			d.Removed = append(d.Removed, playerKey(id))
			delete(s.sentPlayers, id)
		}
	}

	live := make(map[uint64]struct{}, len(s.hazards))
	for _, h := range s.hazards {
		live[h.ID] = struct{}{}
		if prev, ok := s.sentHazards[h.ID]; !ok || prev != *h {
			d.Hazards = append(d.Hazards, *h)
			s.sentHazards[h.ID] = *h
		}
	}
	for id := range s.sentHazards {
		if _, ok := live[id]; !ok {
			d.Removed = append(d.Removed, hazardKey(id))
			delete(s.sentHazards, id)
		}
	}

	switch {
	case s.ball != nil && (s.sentBall == nil || *s.sentBall != *s.ball):
		b := *s.ball
		d.Ball = &b
		s.sentBall = &b
	case s.ball == nil && s.sentBall != nil:
		d.Removed = append(d.Removed, ballKey)
		s.sentBall = nil
	}

	switch {
	case s.grid != nil && !slices.Equal(s.sentGrid, s.grid.Cells):
		d.Grid = slices.Clone(s.grid.Cells)
		s.sentGrid = d.Grid
	case s.grid == nil && s.sentGrid != nil:
		d.Removed = append(d.Removed, gridKey)
		s.sentGrid = nil
	}

	slices.Sort(d.Removed)
	return d
}
