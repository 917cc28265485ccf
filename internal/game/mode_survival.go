package game

import (
	"log"
	"math"
)

const (
	ModeSurvival = "survival"

	causeOutOfBounds = "out_of_bounds"
)

// SurvivalConfig tunes the shrinking island
type SurvivalConfig struct {
	MinPlayers      int     `yaml:"minPlayers"`
	MaxPlayers      int     `yaml:"maxPlayers"`
	Radius          float64 `yaml:"radius"`
	MinRadius       float64 `yaml:"minRadius"`
	MaxSpeed        float64 `yaml:"maxSpeed"`
	WaveSeconds     float64 `yaml:"waveSeconds"`
	SpawnSeconds    float64 `yaml:"spawnSeconds"`
	MinSpawnSeconds float64 `yaml:"minSpawnSeconds"`
	SpawnDecay      float64 `yaml:"spawnDecay"` // Interval multiplier per wave
}

// DefaultSurvival returns the default island tuning
func DefaultSurvival() SurvivalConfig {
	return SurvivalConfig{
		MinPlayers:      2,
		MaxPlayers:      12,
		Radius:          360,
		MinRadius:       140,
		MaxSpeed:        260,
		WaveSeconds:     10,
		SpawnSeconds:    3,
		MinSpawnSeconds: 0.8,
		SpawnDecay:      0.8,
	}
}

// survivalSpawns is the hazard rotation; traps always go after the leader
var survivalSpawns = []MutationKind{
	MutationFallingBlock,
	MutationRotatingObstacle,
	MutationTrap,
	MutationSpeedZone,
}

// Survival: hazards rain on a shrinking island. Score is whole seconds survived
// and the last player standing wins.
type Survival struct {
	cfg SurvivalConfig

	wave          int
	waveTicks     int
	spawnInterval float64
	spawnTicks    int
	cursor        int
}

func NewSurvival(cfg SurvivalConfig) *Survival {
	return &Survival{cfg: cfg}
}

func (s *Survival) Name() string { return ModeSurvival }

func (s *Survival) Settings() ModeSettings {
	size := s.cfg.Radius + 40
	return ModeSettings{
		MinPlayers:       s.cfg.MinPlayers,
		MaxPlayers:       s.cfg.MaxPlayers,
		Arena:            CircleArena(size, size, s.cfg.Radius, s.cfg.MinRadius),
		Spawn:            SpawnCircle,
		MaxSpeed:         s.cfg.MaxSpeed,
		Timer:            TimerUp,
		AcceptsMutations: true,
	}
}

func (s *Survival) Setup(r *Room) {
	s.wave = 1
	s.cursor = 0
	s.waveTicks = r.clock.Ticks(s.cfg.WaveSeconds)
	s.spawnInterval = s.cfg.SpawnSeconds
	s.spawnTicks = r.clock.Ticks(s.spawnInterval)
}

func (s *Survival) OnTick(r *Room) {
	r.store.EachAlive(func(p *Player) {
		p.Score = int(r.clock.Seconds(p.SurvivedTicks))
	})

	s.spawnTicks--
	if s.spawnTicks <= 0 {
		kind := survivalSpawns[s.cursor%len(survivalSpawns)]
		s.cursor++
		target := ""
		if kind == MutationTrap {
			if leader, ok := s.leader(r); ok {
				target = leader.ID
			}
		}
		r.ApplyMutation(kind, target)
		s.spawnTicks = r.clock.Ticks(s.spawnInterval)
	}

	s.waveTicks--
	if s.waveTicks <= 0 {
		s.wave++
		s.waveTicks = r.clock.Ticks(s.cfg.WaveSeconds)
		s.spawnInterval = math.Max(s.spawnInterval*s.cfg.SpawnDecay, s.cfg.MinSpawnSeconds)
		r.emit(EventWave, "", WavePayload{Wave: s.wave})
		log.Printf("🌊 Room %s: wave %d, spawning every %.1fs", r.ID, s.wave, s.spawnInterval)
		r.ApplyMutation(MutationShrinkArena, "")
	}
}

// leader is the longest survivor still alive; the earliest joiner wins ties
func (s *Survival) leader(r *Room) (*Player, bool) {
	var best *Player
	r.store.EachAlive(func(p *Player) {
		if best == nil || p.SurvivedTicks > best.SurvivedTicks {
			best = p
		}
	})
	return best, best != nil
}

// OnShrink rings out anyone left standing on the crumbled edge
func (s *Survival) OnShrink(r *Room) {
	for _, p := range r.store.Players() {
		if p.Alive && !r.arena.Contains(p.X, p.Y, p.Radius) {
			r.Eliminate(p, causeOutOfBounds)
		}
	}
}

func (s *Survival) CheckWin(r *Room) (Outcome, bool) {
	return lastAliveOutcome(r)
}

// Resolve favors whoever is still alive with the most time survived
func (s *Survival) Resolve(r *Room, reason string) Outcome {
	alive := make([]*Player, 0, r.store.PlayerCount())
	r.store.EachAlive(func(p *Player) { alive = append(alive, p) })
	if len(alive) == 0 {
		return scoreOutcome(r.store.Players(), reason)
	}
	return scoreOutcome(alive, reason)
}

func (s *Survival) Reset(r *Room) {
	s.wave = 0
	s.waveTicks = 0
	s.spawnTicks = 0
	s.cursor = 0
}

// DriveBot keeps bots near the middle and away from lethal hazards
func (s *Survival) DriveBot(r *Room, p *Player) {
	for _, h := range r.store.Hazards() {
		if !h.Active || !h.Lethal() {
			continue
		}
		dist := math.Hypot(p.X-h.X, p.Y-h.Y)
		if dist < math.Max(h.W, h.Radius*2)+p.Radius*3 {
			p.steerTowards(2*p.X-h.X, 2*p.Y-h.Y)
			return
		}
	}
	cx, cy := r.arena.Center()
	if math.Hypot(p.X-cx, p.Y-cy) > r.arena.Radius*0.4 {
		p.steerTowards(cx, cy)
		return
	}
	p.wander(&r.arena, r.rng)
}

type survivalState struct {
	Wave      int     `json:"wave"`
	NextSpawn float64 `json:"nextSpawn"`
	NextWave  float64 `json:"nextWave"`
}

func (s *Survival) ModeState(r *Room) any {
	return survivalState{
		Wave:      s.wave,
		NextSpawn: round1(r.clock.Seconds(s.spawnTicks)),
		NextWave:  round1(r.clock.Seconds(s.waveTicks)),
	}
}
