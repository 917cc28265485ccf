package game

import (
	"log"
	"math"
)

// HazardKind tags a transient arena object
type HazardKind string

const (
	HazardFallingBlock     HazardKind = "falling_block"
	HazardRotatingObstacle HazardKind = "rotating_obstacle"
	HazardSpeedZone        HazardKind = "speed_zone"
	HazardTrap             HazardKind = "trap"
)

// Hazard is a transient arena object. Geometry depends on the kind:
//   - falling block, speed zone: box centered at (X, Y) of size W x H
//   - rotating obstacle: bar of length W and thickness H pivoting on (X, Y)
//   - trap: circle of Radius at (X, Y)
//
// Hazard is a plain value type so the store can diff it by comparison.
type Hazard struct {
	ID           uint64     `json:"id"`
	Kind         HazardKind `json:"kind"`
	X            float64    `json:"x"`
	Y            float64    `json:"y"`
	W            float64    `json:"w,omitempty"`
	H            float64    `json:"h,omitempty"`
	Radius       float64    `json:"radius,omitempty"`
	VX           float64    `json:"vx,omitempty"`
	VY           float64    `json:"vy,omitempty"`
	Angle        float64    `json:"angle,omitempty"`
	AngularSpeed float64    `json:"angularSpeed,omitempty"`
	TargetID     string     `json:"targetId,omitempty"`
	Lifetime     int        `json:"lifetime"`
	ArmTicks     int        `json:"armTicks,omitempty"`
	Multiplier   float64    `json:"multiplier,omitempty"`
	Active       bool       `json:"active"`
}

// Lethal reports whether contact eliminates a player right now
func (h *Hazard) Lethal() bool {
	switch h.Kind {
	case HazardFallingBlock, HazardRotatingObstacle:
		return true
	case HazardTrap:
		return h.ArmTicks == 0
	default:
		return false
	}
}

// Touches reports whether a circle of radius r at (x, y) is in contact
func (h *Hazard) Touches(x, y, r float64) bool {
	switch h.Kind {
	case HazardFallingBlock:
		return circleRectOverlap(x, y, r, h.X, h.Y, h.W, h.H)
	case HazardRotatingObstacle:
		ax, ay, bx, by := h.endpoints()
		return segmentDistance(x, y, ax, ay, bx, by) < r+h.H/2
	case HazardTrap:
		ok, _ := circlesOverlap(x, y, r, h.X, h.Y, h.Radius)
		return ok
	case HazardSpeedZone:
		// Zones act on the player's position only
		return pointInRect(x, y, h.X, h.Y, h.W, h.H)
	}
	return false
}

func (h *Hazard) endpoints() (float64, float64, float64, float64) {
	half := h.W / 2
	dx := math.Cos(h.Angle) * half
	dy := math.Sin(h.Angle) * half
	return h.X - dx, h.Y - dy, h.X + dx, h.Y + dy
}

// cause is the elimination cause reported for a lethal contact
func (h *Hazard) cause() string {
	return string(h.Kind)
}

// HazardConfig holds spawn defaults. Durations are in seconds and converted to
// ticks with the room clock.
type HazardConfig struct {
	MaxActive int `yaml:"maxActive"`

	FallingLifetime float64 `yaml:"fallingLifetime"`
	FallingSize     float64 `yaml:"fallingSize"`
	FallingSpeed    float64 `yaml:"fallingSpeed"`

	RotatingLifetime  float64 `yaml:"rotatingLifetime"`
	RotatingLength    float64 `yaml:"rotatingLength"`
	RotatingThickness float64 `yaml:"rotatingThickness"`
	RotatingSpeed     float64 `yaml:"rotatingSpeed"` // rad/s

	ZoneLifetime   float64 `yaml:"zoneLifetime"`
	ZoneSize       float64 `yaml:"zoneSize"`
	ZoneMultiplier float64 `yaml:"zoneMultiplier"`

	TrapLifetime float64 `yaml:"trapLifetime"`
	TrapRadius   float64 `yaml:"trapRadius"`
	TrapLead     float64 `yaml:"trapLead"`
	TrapArm      float64 `yaml:"trapArm"`

	ShrinkStep float64 `yaml:"shrinkStep"`
}

// DefaultHazards returns the default hazard tuning
func DefaultHazards() HazardConfig {
	return HazardConfig{
		MaxActive: 24,

		FallingLifetime: 6,
		FallingSize:     60,
		FallingSpeed:    170,

		RotatingLifetime:  12,
		RotatingLength:    180,
		RotatingThickness: 16,
		RotatingSpeed:     1.6,

		ZoneLifetime:   8,
		ZoneSize:       160,
		ZoneMultiplier: 0.5,

		TrapLifetime: 3,
		TrapRadius:   28,
		TrapLead:     80,
		TrapArm:      0.5,

		ShrinkStep: 20,
	}
}

// HazardEngine spawns, advances and expires hazards for one room.
// Ids come from a room-scoped sequence.
type HazardEngine struct {
	cfg    HazardConfig
	nextID uint64
}

// NewHazardEngine creates an engine with the given tuning
func NewHazardEngine(cfg HazardConfig) *HazardEngine {
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = DefaultHazards().MaxActive
	}
	return &HazardEngine{cfg: cfg}
}

// Config returns the engine's tuning
func (e *HazardEngine) Config() HazardConfig {
	return e.cfg
}

// LastID is the most recently assigned hazard id (0 before the first spawn)
func (e *HazardEngine) LastID() uint64 {
	return e.nextID
}

// Apply executes a validated mutation against the room. Internal rules, the AI
// director and the admin endpoint all go through here.
func (e *HazardEngine) Apply(r *Room, m Mutation) bool {
	switch m.Kind {
	case MutationNone:
		return false
	case MutationFallingBlock:
		return e.spawnFallingBlock(r, m.TargetID)
	case MutationRotatingObstacle:
		return e.spawnRotatingObstacle(r, m.TargetID)
	case MutationSpeedZone:
		return e.spawnSpeedZone(r, m.TargetID)
	case MutationTrap:
		return e.spawnTrap(r, m.TargetID)
	case MutationShrinkArena:
		return e.shrink(r)
	default:
		log.Printf("⚠️ Room %s: dropped unknown mutation %d from %s", r.ID, m.Kind, m.Source)
		return false
	}
}

func (e *HazardEngine) add(r *Room, h *Hazard) bool {
	if r.store.ActiveHazardCount() >= e.cfg.MaxActive {
		return false
	}
	e.nextID++
	h.ID = e.nextID
	h.Active = true
	r.store.AddHazard(h)
	r.emit(EventHazardSpawned, "", HazardSpawnedPayload{ID: h.ID, Kind: h.Kind, X: h.X, Y: h.Y, TargetID: h.TargetID})
	r.telemetry.HazardSpawned(r.Mode, string(h.Kind))
	return true
}

// targetPosition resolves a weak target reference; missing or eliminated targets
// fall back to untargeted placement.
func (e *HazardEngine) targetPosition(r *Room, targetID string) (*Player, bool) {
	p, ok := r.store.Player(targetID)
	if !ok || !p.Alive {
		return nil, false
	}
	return p, true
}

func (e *HazardEngine) spawnFallingBlock(r *Room, targetID string) bool {
	size := e.cfg.FallingSize
	x, _ := r.arena.RandomPoint(r.rng, size/2)
	if p, ok := e.targetPosition(r, targetID); ok {
		x = p.X
	}
	top := 0.0
	if r.arena.Shape == ArenaCircle {
		top = r.arena.CenterY - r.arena.Radius
	}
	return e.add(r, &Hazard{
		Kind:     HazardFallingBlock,
		X:        x,
		Y:        top - size/2,
		W:        size,
		H:        size,
		VY:       e.cfg.FallingSpeed,
		TargetID: targetID,
		Lifetime: r.clock.Ticks(e.cfg.FallingLifetime),
	})
}

func (e *HazardEngine) spawnRotatingObstacle(r *Room, targetID string) bool {
	x, y := r.arena.RandomPoint(r.rng, e.cfg.RotatingLength/2)
	direction := 1.0
	if r.rng.Intn(2) == 0 {
		direction = -1
	}
	return e.add(r, &Hazard{
		Kind:         HazardRotatingObstacle,
		X:            x,
		Y:            y,
		W:            e.cfg.RotatingLength,
		H:            e.cfg.RotatingThickness,
		Angle:        r.rng.Float64() * 2 * math.Pi,
		AngularSpeed: direction * e.cfg.RotatingSpeed,
		Lifetime:     r.clock.Ticks(e.cfg.RotatingLifetime),
	})
}

func (e *HazardEngine) spawnSpeedZone(r *Room, targetID string) bool {
	size := e.cfg.ZoneSize
	x, y := r.arena.RandomPoint(r.rng, size/2)
	if p, ok := e.targetPosition(r, targetID); ok {
		x, y = p.X, p.Y
	}
	return e.add(r, &Hazard{
		Kind:       HazardSpeedZone,
		X:          x,
		Y:          y,
		W:          size,
		H:          size,
		TargetID:   targetID,
		Lifetime:   r.clock.Ticks(e.cfg.ZoneLifetime),
		Multiplier: e.cfg.ZoneMultiplier,
	})
}

func (e *HazardEngine) spawnTrap(r *Room, targetID string) bool {
	p, ok := e.targetPosition(r, targetID)
	if !ok {
		// Untargeted traps pick a random alive player
		alive := make([]*Player, 0, r.store.PlayerCount())
		r.store.EachAlive(func(p *Player) { alive = append(alive, p) })
		if len(alive) > 0 {
			p = alive[r.rng.Intn(len(alive))]
			ok = true
		}
	}

	var x, y float64
	target := ""
	if ok {
		x, y = p.X, p.Y
		if speed := math.Hypot(p.VX, p.VY); speed > 0 {
			x += p.VX / speed * e.cfg.TrapLead
			y += p.VY / speed * e.cfg.TrapLead
		}
		x, y, _, _ = r.arena.Confine(x, y, 0, 0, e.cfg.TrapRadius)
		target = p.ID
	} else {
		x, y = r.arena.RandomPoint(r.rng, e.cfg.TrapRadius)
	}

	return e.add(r, &Hazard{
		Kind:     HazardTrap,
		X:        x,
		Y:        y,
		Radius:   e.cfg.TrapRadius,
		TargetID: target,
		Lifetime: r.clock.Ticks(e.cfg.TrapLifetime),
		ArmTicks: r.clock.Ticks(e.cfg.TrapArm),
	})
}

func (e *HazardEngine) shrink(r *Room) bool {
	if !r.arena.Shrink(e.cfg.ShrinkStep) {
		return false
	}
	r.emit(EventArenaShrink, "", ArenaShrinkPayload{
		Width:  r.arena.Width,
		Height: r.arena.Height,
		Radius: r.arena.Radius,
	})
	if h, ok := r.rules.(ShrinkHandler); ok {
		h.OnShrink(r)
	}
	return true
}

// Update advances every hazard by one tick. Lifetimes only ever decrease; a hazard
// whose lifetime reaches zero or that leaves the arena is deactivated and removed
// in the same update.
func (e *HazardEngine) Update(r *Room) {
	dt := r.clock.Dt()
	bottom := r.arena.Height
	if r.arena.Shape == ArenaCircle {
		bottom = r.arena.CenterY + r.arena.Radius
	}

	for _, h := range r.store.Hazards() {
		if !h.Active {
			continue
		}
		switch h.Kind {
		case HazardFallingBlock:
			h.X += h.VX * dt
			h.Y += h.VY * dt
			if h.Y-h.H/2 > bottom {
				h.Active = false
			}
		case HazardRotatingObstacle:
			h.Angle = normalizeAngle(h.Angle + h.AngularSpeed*dt)
		case HazardTrap:
			if h.ArmTicks > 0 {
				h.ArmTicks--
			}
		}

		h.Lifetime--
		if h.Lifetime <= 0 {
			h.Lifetime = 0
			h.Active = false
		}
	}
	r.store.PruneHazards()
}

// SpeedMultiplierAt is the product of every active zone containing (x, y)
func (e *HazardEngine) SpeedMultiplierAt(store *EntityStore, x, y float64) float64 {
	m := 1.0
	for _, h := range store.Hazards() {
		if h.Active && h.Kind == HazardSpeedZone && h.Touches(x, y, 0) {
			m *= h.Multiplier
		}
	}
	return m
}

// Contacts eliminates alive players touching a lethal hazard. Traps are consumed.
func (e *HazardEngine) Contacts(r *Room) {
	for _, p := range r.store.Players() {
		if !p.Alive {
			continue
		}
		for _, h := range r.store.Hazards() {
			if !h.Active || !h.Lethal() || !h.Touches(p.X, p.Y, p.Radius) {
				continue
			}
			if h.Kind == HazardTrap {
				h.Active = false
			}
			r.Eliminate(p, h.cause())
			break
		}
	}
}
