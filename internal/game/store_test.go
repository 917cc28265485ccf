package game

import (
	"slices"
	"testing"
)

func TestStoreDeltaOnlyCarriesChanges(t *testing.T) {
	s := NewEntityStore()
	a := &Player{ID: "a", Name: "A", Alive: true, SpeedMultiplier: 1}
	b := &Player{ID: "b", Name: "B", Alive: true, SpeedMultiplier: 1}
	s.AddPlayer(a)
	s.AddPlayer(b)

	d := s.Flush()
	if len(d.Players) != 2 {
		t.Fatalf("Expected both players in the first delta, got %d", len(d.Players))
	}
	if d := s.Flush(); !d.Empty() {
		t.Errorf("Expected empty delta with no changes, got %+v", d)
	}

	a.X = 50
	d = s.Flush()
	if len(d.Players) != 1 || d.Players[0].ID != "a" {
		t.Errorf("Expected only a in the delta, got %+v", d.Players)
	}

	// Sub-decimal jitter is rounded away in views
	a.X = 50.01
	if d := s.Flush(); len(d.Players) != 0 {
		t.Errorf("Expected rounding to suppress jitter, got %+v", d.Players)
	}

	s.RemovePlayer("b")
	d = s.Flush()
	if !slices.Equal(d.Removed, []string{"p:b"}) {
		t.Errorf("Expected removal of p:b, got %v", d.Removed)
	}
}

func TestStoreDeltaHazardsBallGrid(t *testing.T) {
	s := NewEntityStore()
	h := &Hazard{ID: 7, Kind: HazardTrap, Lifetime: 10, Active: true}
	s.AddHazard(h)
	s.SetBall(&Ball{X: 1, Y: 2, Radius: 14})
	s.SetGrid(&Grid{Cols: 2, Rows: 1, Cells: []int{2, 2}})

	d := s.Flush()
	if len(d.Hazards) != 1 || d.Ball == nil || !slices.Equal(d.Grid, []int{2, 2}) {
		t.Fatalf("Expected hazard, ball and grid in the first delta, got %+v", d)
	}

	s.Grid().Cells[0] = 1
	d = s.Flush()
	if !slices.Equal(d.Grid, []int{1, 2}) || len(d.Hazards) != 0 || d.Ball != nil {
		t.Errorf("Expected only the grid change, got %+v", d)
	}

	h.Active = false
	s.PruneHazards()
	s.SetBall(nil)
	s.SetGrid(nil)
	d = s.Flush()
	want := []string{"ball", "grid", "h:7"}
	if !slices.Equal(d.Removed, want) {
		t.Errorf("Expected removals %v, got %v", want, d.Removed)
	}
}

func TestStoreJoinOrderAndCounts(t *testing.T) {
	s := NewEntityStore()
	for _, id := range []string{"c", "a", "b"} {
		s.AddPlayer(&Player{ID: id, Alive: true})
	}
	if s.AddPlayer(&Player{ID: "a"}) {
		t.Error("Duplicate id accepted")
	}

	var order []string
	for _, p := range s.Players() {
		order = append(order, p.ID)
	}
	if !slices.Equal(order, []string{"c", "a", "b"}) {
		t.Errorf("Expected join order c,a,b, got %v", order)
	}

	s.PatchPlayer("a", func(p *Player) { p.Alive = false })
	if s.AliveCount() != 2 || s.PlayerCount() != 3 {
		t.Errorf("Expected 2 alive of 3, got %d of %d", s.AliveCount(), s.PlayerCount())
	}
	if _, ok := s.Player(""); ok {
		t.Error("Empty id must not resolve")
	}
}
