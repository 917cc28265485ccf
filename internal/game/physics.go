package game

import (
	"fmt"
	"math"
	"math/rand"
)

// ArenaShape selects the boundary response
type ArenaShape uint8

const (
	ArenaRect   ArenaShape = iota // Clamp at the walls
	ArenaCircle                   // Island: reflect inward with damping
)

func (s ArenaShape) String() string {
	if s == ArenaCircle {
		return "circle"
	}
	return "rect"
}

// MarshalText lets snapshots carry the shape as a string
func (s ArenaShape) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names MarshalText produces
func (s *ArenaShape) UnmarshalText(text []byte) error {
	switch string(text) {
	case "rect":
		*s = ArenaRect
	case "circle":
		*s = ArenaCircle
	default:
		return fmt.Errorf("unknown arena shape %q", text)
	}
	return nil
}

// Arena is the playable area of a room. Rect arenas span [0, Width] x [0, Height];
// circle arenas are centered at (CenterX, CenterY).
type Arena struct {
	Shape       ArenaShape `json:"shape" yaml:"-"`
	Width       float64    `json:"width" yaml:"width"`
	Height      float64    `json:"height" yaml:"height"`
	CenterX     float64    `json:"centerX" yaml:"centerX"`
	CenterY     float64    `json:"centerY" yaml:"centerY"`
	Radius      float64    `json:"radius" yaml:"radius"`
	MinWidth    float64    `json:"-" yaml:"minWidth"`
	MinHeight   float64    `json:"-" yaml:"minHeight"`
	MinRadius   float64    `json:"-" yaml:"minRadius"`
	Restitution float64    `json:"-" yaml:"restitution"`
}

// RectArena builds a rectangular arena with shrink floors
func RectArena(width, height, minWidth, minHeight float64) Arena {
	return Arena{
		Shape:     ArenaRect,
		Width:     width,
		Height:    height,
		CenterX:   width / 2,
		CenterY:   height / 2,
		MinWidth:  minWidth,
		MinHeight: minHeight,
	}
}

// CircleArena builds an island arena with the default restitution of 0.5
func CircleArena(centerX, centerY, radius, minRadius float64) Arena {
	return Arena{
		Shape:       ArenaCircle,
		Width:       centerX * 2,
		Height:      centerY * 2,
		CenterX:     centerX,
		CenterY:     centerY,
		Radius:      radius,
		MinRadius:   minRadius,
		Restitution: 0.5,
	}
}

// Center returns the arena center
func (a *Arena) Center() (float64, float64) {
	if a.Shape == ArenaCircle {
		return a.CenterX, a.CenterY
	}
	return a.Width / 2, a.Height / 2
}

// Extent is the distance from the center to the nearest boundary
func (a *Arena) Extent() float64 {
	if a.Shape == ArenaCircle {
		return a.Radius
	}
	return math.Min(a.Width, a.Height) / 2
}

// Contains reports whether a body of radius r at (x, y) lies fully inside
func (a *Arena) Contains(x, y, r float64) bool {
	if a.Shape == ArenaCircle {
		return math.Hypot(x-a.CenterX, y-a.CenterY)+r <= a.Radius+1e-9
	}
	return x >= r && x <= a.Width-r && y >= r && y <= a.Height-r
}

// Confine keeps a body of radius r inside the arena. It is a pure function of the
// arena's current bounds, so a shrink is honored on the very next call.
// Rect arenas clamp and zero the outward velocity; circle arenas move the body onto
// the inner edge and reflect the normal component scaled by Restitution.
func (a *Arena) Confine(x, y, vx, vy, r float64) (float64, float64, float64, float64) {
	if a.Shape == ArenaCircle {
		return a.confineCircle(x, y, vx, vy, r)
	}

	lo, hiX, hiY := r, a.Width-r, a.Height-r
	if hiX < lo {
		hiX = a.Width / 2
		lo = hiX
	}
	if x < lo {
		x = lo
		if vx < 0 {
			vx = 0
		}
	} else if x > hiX {
		x = hiX
		if vx > 0 {
			vx = 0
		}
	}

	loY := r
	if hiY < loY {
		hiY = a.Height / 2
		loY = hiY
	}
	if y < loY {
		y = loY
		if vy < 0 {
			vy = 0
		}
	} else if y > hiY {
		y = hiY
		if vy > 0 {
			vy = 0
		}
	}
	return x, y, vx, vy
}

func (a *Arena) confineCircle(x, y, vx, vy, r float64) (float64, float64, float64, float64) {
	limit := a.Radius - r
	if limit < 0 {
		limit = 0
	}
	dx := x - a.CenterX
	dy := y - a.CenterY
	dist := math.Hypot(dx, dy)
	if dist <= limit {
		return x, y, vx, vy
	}
	if dist == 0 {
		return a.CenterX, a.CenterY, 0, 0
	}

	nx := dx / dist
	ny := dy / dist
	x = a.CenterX + nx*limit
	y = a.CenterY + ny*limit

	// Reflect only the outward normal component
	vn := vx*nx + vy*ny
	if vn > 0 {
		restitution := a.Restitution
		if restitution <= 0 {
			restitution = 0.5
		}
		vx -= (1 + restitution) * vn * nx
		vy -= (1 + restitution) * vn * ny
	}
	return x, y, vx, vy
}

// Shrink reduces the bounds by step, never below the configured floor.
// Returns false when the arena is already at its floor.
func (a *Arena) Shrink(step float64) bool {
	if step <= 0 {
		return false
	}
	if a.Shape == ArenaCircle {
		next := math.Max(a.Radius-step, a.MinRadius)
		if next >= a.Radius {
			return false
		}
		a.Radius = next
		return true
	}

	changed := false
	if w := math.Max(a.Width-step, a.MinWidth); w < a.Width {
		a.Width = w
		changed = true
	}
	if h := math.Max(a.Height-step, a.MinHeight); h < a.Height {
		a.Height = h
		changed = true
	}
	return changed
}

// RandomPoint returns a uniformly distributed point at least margin from the boundary
func (a *Arena) RandomPoint(rng *rand.Rand, margin float64) (float64, float64) {
	if a.Shape == ArenaCircle {
		maxR := math.Max(a.Radius-margin, 0)
		// sqrt keeps the distribution uniform over the disc
		d := math.Sqrt(rng.Float64()) * maxR
		angle := rng.Float64() * 2 * math.Pi
		return a.CenterX + math.Cos(angle)*d, a.CenterY + math.Sin(angle)*d
	}
	w := math.Max(a.Width-2*margin, 0)
	h := math.Max(a.Height-2*margin, 0)
	return margin + rng.Float64()*w, margin + rng.Float64()*h
}

// PhysicsConfig tunes the arcade integrator
type PhysicsConfig struct {
	Acceleration    float64 `yaml:"acceleration"` // Units/s² applied along input
	Friction        float64 `yaml:"friction"`     // Per-tick multiplicative decay
	SnapSpeed       float64 `yaml:"snapSpeed"`    // |v| below this snaps to zero
	BallFriction    float64 `yaml:"ballFriction"`
	BallMaxSpeed    float64 `yaml:"ballMaxSpeed"`
	KickFactor      float64 `yaml:"kickFactor"`
	MinImpulse      float64 `yaml:"minImpulse"`   // Ball is never absorbed by a resting player
	ContactReach    float64 `yaml:"contactReach"` // Extra distance for contact hooks
	DashImpulse     float64 `yaml:"dashImpulse"`
	BoostMultiplier float64 `yaml:"boostMultiplier"`
}

// DefaultPhysics returns the default integrator tuning
func DefaultPhysics() PhysicsConfig {
	return PhysicsConfig{
		Acceleration:    1800,
		Friction:        0.9,
		SnapSpeed:       1,
		BallFriction:    0.98,
		BallMaxSpeed:    900,
		KickFactor:      1.2,
		MinImpulse:      120,
		ContactReach:    12,
		DashImpulse:     650,
		BoostMultiplier: 1.5,
	}
}

// integratePlayer advances one player by dt. Stunned players hold still;
// eliminated players are never passed in.
func integratePlayer(p *Player, arena *Arena, cfg PhysicsConfig, maxSpeed, dt float64, acceptInput bool) {
	if p.Stunned() {
		p.VX, p.VY = 0, 0
		return
	}

	if acceptInput {
		p.VX += p.inputX * cfg.Acceleration * dt
		p.VY += p.inputY * cfg.Acceleration * dt
	}

	limit := maxSpeed * p.SpeedMultiplier
	if p.DashTicks > 0 {
		limit = math.Max(limit, cfg.DashImpulse)
	}
	if speed := math.Hypot(p.VX, p.VY); speed > limit {
		scale := limit / speed
		p.VX *= scale
		p.VY *= scale
	}

	p.X += p.VX * dt
	p.Y += p.VY * dt

	p.VX *= cfg.Friction
	p.VY *= cfg.Friction
	if math.Abs(p.VX) < cfg.SnapSpeed {
		p.VX = 0
	}
	if math.Abs(p.VY) < cfg.SnapSpeed {
		p.VY = 0
	}

	p.X, p.Y, p.VX, p.VY = arena.Confine(p.X, p.Y, p.VX, p.VY, p.Radius)
}

// Ball is the passive dynamic body used by ball modes
type Ball struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	VX     float64 `json:"vx"`
	VY     float64 `json:"vy"`
	Radius float64 `json:"radius"`
}

// integrateBall moves the ball without confinement; modes confine it so goal
// mouths can let it through.
func integrateBall(b *Ball, cfg PhysicsConfig, dt float64) {
	if speed := math.Hypot(b.VX, b.VY); speed > cfg.BallMaxSpeed {
		scale := cfg.BallMaxSpeed / speed
		b.VX *= scale
		b.VY *= scale
	}
	b.X += b.VX * dt
	b.Y += b.VY * dt
	b.VX *= cfg.BallFriction
	b.VY *= cfg.BallFriction
	if math.Abs(b.VX) < cfg.SnapSpeed {
		b.VX = 0
	}
	if math.Abs(b.VY) < cfg.SnapSpeed {
		b.VY = 0
	}
}
