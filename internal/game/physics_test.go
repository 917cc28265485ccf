package game

import (
	"math"
	"math/rand"
	"testing"
)

func TestRectConfineClamps(t *testing.T) {
	arena := RectArena(800, 600, 200, 200)

	tests := []struct {
		name             string
		x, y, vx, vy     float64
		wx, wy, wvx, wvy float64
	}{
		{"inside untouched", 400, 300, 10, -10, 400, 300, 10, -10},
		{"left wall", -10, 300, -50, 5, 20, 300, 0, 5},
		{"bottom right corner", 900, 700, 30, 40, 780, 580, 0, 0},
		{"moving away keeps velocity", 5, 300, 50, 0, 20, 300, 50, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, vx, vy := arena.Confine(tt.x, tt.y, tt.vx, tt.vy, 20)
			if x != tt.wx || y != tt.wy || vx != tt.wvx || vy != tt.wvy {
				t.Errorf("Confine = (%v, %v, %v, %v), want (%v, %v, %v, %v)",
					x, y, vx, vy, tt.wx, tt.wy, tt.wvx, tt.wvy)
			}
			if !arena.Contains(x, y, 20) {
				t.Errorf("Confined body at (%v, %v) is not inside", x, y)
			}
		})
	}
}

func TestCircleConfineReflects(t *testing.T) {
	arena := CircleArena(400, 400, 300, 100)

	x, y, vx, vy := arena.Confine(750, 400, 100, 20, 20)
	if math.Abs(x-680) > 1e-9 || math.Abs(y-400) > 1e-9 {
		t.Errorf("Expected body moved to (680, 400), got (%f, %f)", x, y)
	}
	// Normal component reflected with restitution 0.5, tangent kept
	if math.Abs(vx+50) > 1e-9 {
		t.Errorf("Expected vx -50, got %f", vx)
	}
	if vy != 20 {
		t.Errorf("Expected tangential vy kept at 20, got %f", vy)
	}

	// Moving inward at the edge is not reflected
	_, _, vx, _ = arena.Confine(750, 400, -100, 0, 20)
	if vx != -100 {
		t.Errorf("Inward velocity changed to %f", vx)
	}
}

func TestConfineHonorsShrinkImmediately(t *testing.T) {
	arena := CircleArena(400, 400, 300, 100)
	arena.Shrink(100)

	x, _, _, _ := arena.Confine(680, 400, 0, 0, 20)
	if math.Abs(x-580) > 1e-9 {
		t.Errorf("Expected body pulled to the new edge at 580, got %f", x)
	}
}

func TestShrinkScenario(t *testing.T) {
	arena := RectArena(800, 600, 200, 200)

	for i := 0; i < 5; i++ {
		if !arena.Shrink(20) {
			t.Fatalf("Shrink %d rejected", i+1)
		}
	}
	if arena.Width != 700 {
		t.Errorf("Expected width 700 after 5 shrinks, got %f", arena.Width)
	}

	for i := 0; i < 100; i++ {
		arena.Shrink(20)
	}
	if arena.Width != 200 || arena.Height != 200 {
		t.Errorf("Expected floor 200x200, got %fx%f", arena.Width, arena.Height)
	}
	if arena.Shrink(20) {
		t.Error("Shrink at the floor must report no change")
	}
}

func TestRandomPointInside(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	arenas := []Arena{
		RectArena(800, 600, 200, 200),
		CircleArena(400, 400, 300, 100),
	}
	for _, arena := range arenas {
		for i := 0; i < 500; i++ {
			x, y := arena.RandomPoint(rng, 20)
			if !arena.Contains(x, y, 20) {
				t.Fatalf("%s arena: random point (%f, %f) outside", arena.Shape, x, y)
			}
		}
	}
}

func TestIntegratePlayerFriction(t *testing.T) {
	arena := RectArena(800, 600, 200, 200)
	cfg := DefaultPhysics()
	p := &Player{X: 400, Y: 300, VX: 100, Radius: 20, Alive: true, SpeedMultiplier: 1}

	for i := 0; i < 200; i++ {
		integratePlayer(p, &arena, cfg, 300, 1.0/30, false)
	}
	if p.VX != 0 {
		t.Errorf("Expected velocity to decay and snap to zero, got %f", p.VX)
	}
	if p.X <= 400 {
		t.Errorf("Expected the player to drift right, got x=%f", p.X)
	}
}

func TestStunnedPlayerHoldsStill(t *testing.T) {
	arena := RectArena(800, 600, 200, 200)
	p := &Player{X: 400, Y: 300, VX: 100, Radius: 20, Alive: true, SpeedMultiplier: 1, StunTicks: 5}
	p.inputX = 1

	integratePlayer(p, &arena, DefaultPhysics(), 300, 1.0/30, true)
	if p.X != 400 || p.VX != 0 {
		t.Errorf("Stunned player moved: x=%f vx=%f", p.X, p.VX)
	}
}

func TestBallNeverAbsorbed(t *testing.T) {
	cfg := DefaultPhysics()
	p := &Player{X: 100, Y: 100, Radius: 20}
	b := &Ball{X: 125, Y: 100, Radius: 10}

	if !deflectBall(p, b, cfg) {
		t.Fatal("Expected contact")
	}
	if b.VX < cfg.MinImpulse {
		t.Errorf("Expected at least the minimum impulse, got vx=%f", b.VX)
	}
	if b.X != 130 {
		t.Errorf("Expected ball pushed to the contact distance 130, got %f", b.X)
	}
}

func TestPushApartSeparates(t *testing.T) {
	a := &Player{X: 100, Y: 100, Radius: 20}
	b := &Player{X: 110, Y: 100, Radius: 20}

	pushApart(a, b)
	if got := math.Hypot(b.X-a.X, b.Y-a.Y); math.Abs(got-40) > 1e-9 {
		t.Errorf("Expected separation 40, got %f", got)
	}
}
