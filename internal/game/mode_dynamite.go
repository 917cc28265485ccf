package game

import (
	"log"
	"math"
)

const (
	ModeDynamite = "dynamite"

	subPhaseExplosion = "explosion"
	causeDynamite     = "dynamite"
)

// DynamiteConfig tunes hot potato
type DynamiteConfig struct {
	MinPlayers          int     `yaml:"minPlayers"`
	MaxPlayers          int     `yaml:"maxPlayers"`
	Radius              float64 `yaml:"radius"`
	MinRadius           float64 `yaml:"minRadius"`
	MaxSpeed            float64 `yaml:"maxSpeed"`
	FuseSeconds         float64 `yaml:"fuseSeconds"`
	FuseDecay           float64 `yaml:"fuseDecay"` // Fraction removed per round
	MinFuseSeconds      float64 `yaml:"minFuseSeconds"`
	PassCooldownSeconds float64 `yaml:"passCooldownSeconds"`
	ExplosionSeconds    float64 `yaml:"explosionSeconds"`
}

// DefaultDynamite returns the default hot potato tuning
func DefaultDynamite() DynamiteConfig {
	return DynamiteConfig{
		MinPlayers:          3,
		MaxPlayers:          10,
		Radius:              380,
		MinRadius:           150,
		MaxSpeed:            260,
		FuseSeconds:         20,
		FuseDecay:           0.15,
		MinFuseSeconds:      5,
		PassCooldownSeconds: 1,
		ExplosionSeconds:    2,
	}
}

// Dynamite is hot potato: one player holds a lit fuse and passes it on contact.
// When the fuse runs out the holder is eliminated; the last player standing wins.
type Dynamite struct {
	cfg DynamiteConfig

	holderID  string // Weak reference, resolved through the store every tick
	fuseTicks int
	round     int
	passTick  uint64 // tick of the last pass; the fuse moves at most once per tick
}

func NewDynamite(cfg DynamiteConfig) *Dynamite {
	return &Dynamite{cfg: cfg}
}

func (d *Dynamite) Name() string { return ModeDynamite }

func (d *Dynamite) Settings() ModeSettings {
	size := d.cfg.Radius + 40
	return ModeSettings{
		MinPlayers:       d.cfg.MinPlayers,
		MaxPlayers:       d.cfg.MaxPlayers,
		Arena:            CircleArena(size, size, d.cfg.Radius, d.cfg.MinRadius),
		Spawn:            SpawnCircle,
		MaxSpeed:         d.cfg.MaxSpeed,
		Timer:            TimerUp,
		AcceptsMutations: true,
	}
}

func (d *Dynamite) Setup(r *Room) {
	d.round = 1
	d.holderID = ""
	d.pickHolder(r, "")
}

// fuseFor returns the fuse length of a round: shorter each round, never below the floor
func (d *Dynamite) fuseFor(round int) float64 {
	fuse := d.cfg.FuseSeconds * math.Pow(1-d.cfg.FuseDecay, float64(round-1))
	return math.Max(fuse, d.cfg.MinFuseSeconds)
}

// pickHolder hands a fresh fuse to a random alive player
func (d *Dynamite) pickHolder(r *Room, from string) {
	alive := make([]*Player, 0, r.store.PlayerCount())
	r.store.EachAlive(func(p *Player) { alive = append(alive, p) })
	if len(alive) == 0 {
		d.holderID = ""
		return
	}
	p := alive[r.rng.Intn(len(alive))]
	for _, other := range alive {
		other.Holding = false
	}
	p.Holding = true
	d.holderID = p.ID
	d.fuseTicks = r.clock.Ticks(d.fuseFor(d.round))
	r.emit(EventDynamitePassed, p.ID, DynamitePassedPayload{FromID: from, ToID: p.ID, Fuse: round1(r.clock.Seconds(d.fuseTicks))})
}

// holder resolves the weak holder reference
func (d *Dynamite) holder(r *Room) (*Player, bool) {
	if d.holderID == "" {
		return nil, false
	}
	p, ok := r.store.Player(d.holderID)
	if !ok || !p.Alive {
		return nil, false
	}
	return p, true
}

func (d *Dynamite) OnTick(r *Room) {
	h, ok := d.holder(r)
	if !ok {
		// Holder vanished between ticks; the fuse moves on at its current length
		fuse := d.fuseTicks
		d.pickHolder(r, "")
		if fuse > 0 {
			d.fuseTicks = fuse
		}
		return
	}

	d.fuseTicks--
	if d.fuseTicks > 0 {
		return
	}

	h.Holding = false
	d.holderID = ""
	r.Eliminate(h, causeDynamite)
	r.emit(EventDynamiteExploded, h.ID, DynamiteExplodedPayload{PlayerID: h.ID, Round: d.round})
	log.Printf("💣 Room %s: %s exploded in round %d", r.ID, h.Name, d.round)

	// Survivors of a round earn a point; it breaks forfeit ties
	r.store.EachAlive(func(p *Player) { p.Score++ })

	if r.store.AliveCount() >= 2 {
		r.EnterSubPhase(subPhaseExplosion, d.cfg.ExplosionSeconds)
	}
}

func (d *Dynamite) OnSubPhaseEnd(r *Room, name string) {
	if name != subPhaseExplosion {
		return
	}
	d.round++
	d.pickHolder(r, "")
}

// OnContact passes the fuse from holder to the other player. The previous holder
// gets a pass cooldown so it cannot come straight back, and the new holder
// cannot pass again within the same tick.
func (d *Dynamite) OnContact(r *Room, a, b *Player, dist float64) {
	var from, to *Player
	switch d.holderID {
	case a.ID:
		from, to = a, b
	case b.ID:
		from, to = b, a
	default:
		return
	}
	if to.PassCooldown > 0 || d.passTick == r.clock.Tick() {
		return
	}

	from.Holding = false
	to.Holding = true
	d.holderID = to.ID
	d.passTick = r.clock.Tick()
	from.PassCooldown = r.clock.Ticks(d.cfg.PassCooldownSeconds)
	r.emit(EventDynamitePassed, to.ID, DynamitePassedPayload{FromID: from.ID, ToID: to.ID, Fuse: round1(r.clock.Seconds(d.fuseTicks))})
}

// OnEliminated reassigns the fuse when a hazard takes out the holder
func (d *Dynamite) OnEliminated(r *Room, p *Player) {
	if p.ID != d.holderID {
		return
	}
	p.Holding = false
	d.holderID = ""
	if r.subPhase == "" && r.store.AliveCount() >= 2 {
		fuse := d.fuseTicks
		d.pickHolder(r, p.ID)
		d.fuseTicks = fuse
	}
}

// OnLeave reassigns the fuse when the holder disconnects
func (d *Dynamite) OnLeave(r *Room, p *Player) {
	if p.ID != d.holderID {
		return
	}
	d.holderID = ""
	if r.subPhase == "" && r.store.AliveCount() >= 2 {
		fuse := d.fuseTicks
		d.pickHolder(r, p.ID)
		d.fuseTicks = fuse
	}
}

func (d *Dynamite) CheckWin(r *Room) (Outcome, bool) {
	return lastAliveOutcome(r)
}

// Resolve picks the sole survivor, else the survivor with the most rounds
func (d *Dynamite) Resolve(r *Room, reason string) Outcome {
	alive := make([]*Player, 0, r.store.PlayerCount())
	r.store.EachAlive(func(p *Player) { alive = append(alive, p) })
	if len(alive) == 0 {
		return Outcome{Draw: true, Reason: reason}
	}
	return scoreOutcome(alive, reason)
}

func (d *Dynamite) Reset(r *Room) {
	d.passTick = 0
	d.holderID = ""
	d.fuseTicks = 0
	d.round = 0
}

// DriveBot: the holder chases the nearest player; everyone else runs from the holder
func (d *Dynamite) DriveBot(r *Room, p *Player) {
	h, ok := d.holder(r)
	if !ok {
		p.wander(&r.arena, r.rng)
		return
	}
	if h == p {
		var nearest *Player
		best := math.Inf(1)
		r.store.EachAlive(func(o *Player) {
			if o == p || o.PassCooldown > 0 {
				return
			}
			if dist := math.Hypot(o.X-p.X, o.Y-p.Y); dist < best {
				best = dist
				nearest = o
			}
		})
		if nearest == nil {
			p.wander(&r.arena, r.rng)
			return
		}
		p.steerTowards(nearest.X, nearest.Y)
		return
	}

	dist := math.Hypot(p.X-h.X, p.Y-h.Y)
	if dist > r.arena.Extent() {
		p.wander(&r.arena, r.rng)
		return
	}
	p.steerTowards(2*p.X-h.X, 2*p.Y-h.Y)
}

type dynamiteState struct {
	HolderID string  `json:"holderId,omitempty"`
	Fuse     float64 `json:"fuse"`
	Round    int     `json:"round"`
}

func (d *Dynamite) ModeState(r *Room) any {
	return dynamiteState{
		HolderID: d.holderID,
		Fuse:     round1(r.clock.Seconds(d.fuseTicks)),
		Round:    d.round,
	}
}
