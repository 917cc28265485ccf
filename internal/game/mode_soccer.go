package game

import (
	"log"
	"math"
)

const (
	ModeSoccer = "soccer"

	TeamRed  = "red"
	TeamBlue = "blue"

	subPhaseGoalFreeze = "goal_freeze"
)

// SoccerConfig tunes the team ball game
type SoccerConfig struct {
	MinPlayers    int     `yaml:"minPlayers"`
	MaxPlayers    int     `yaml:"maxPlayers"`
	Width         float64 `yaml:"width"`
	Height        float64 `yaml:"height"`
	MaxSpeed      float64 `yaml:"maxSpeed"`
	GoalWidth     float64 `yaml:"goalWidth"`
	GoalsToWin    int     `yaml:"goalsToWin"`
	FreezeSeconds float64 `yaml:"freezeSeconds"`
	StunSeconds   float64 `yaml:"stunSeconds"`
	BallRadius    float64 `yaml:"ballRadius"`
	WallBounce    float64 `yaml:"wallBounce"`
}

// DefaultSoccer returns the default soccer tuning
func DefaultSoccer() SoccerConfig {
	return SoccerConfig{
		MinPlayers:    2,
		MaxPlayers:    8,
		Width:         1000,
		Height:        600,
		MaxSpeed:      300,
		GoalWidth:     180,
		GoalsToWin:    3,
		FreezeSeconds: 2,
		StunSeconds:   0.75,
		BallRadius:    14,
		WallBounce:    0.8,
	}
}

// Soccer: red defends the left goal, blue the right. First team to GoalsToWin wins.
type Soccer struct {
	cfg SoccerConfig

	red         int
	blue        int
	lastToucher string
}

func NewSoccer(cfg SoccerConfig) *Soccer {
	return &Soccer{cfg: cfg}
}

func (s *Soccer) Name() string { return ModeSoccer }

func (s *Soccer) Settings() ModeSettings {
	return ModeSettings{
		MinPlayers: s.cfg.MinPlayers,
		MaxPlayers: s.cfg.MaxPlayers,
		ReadyGated: true,
		Arena:      RectArena(s.cfg.Width, s.cfg.Height, s.cfg.Width, s.cfg.Height),
		Spawn:      SpawnTeams,
		MaxSpeed:   s.cfg.MaxSpeed,
		Timer:      TimerNone,
		CarryScore: true,
	}
}

func (s *Soccer) Setup(r *Room) {
	s.red, s.blue = 0, 0
	s.lastToucher = ""
	r.store.SetBall(&Ball{Radius: s.cfg.BallRadius})
	s.kickoff(r)
}

// kickoff puts the ball on the center spot
func (s *Soccer) kickoff(r *Room) {
	b := r.store.Ball()
	if b == nil {
		return
	}
	b.X, b.Y = r.arena.Width/2, r.arena.Height/2
	b.VX, b.VY = 0, 0
	s.lastToucher = ""
}

// inMouth reports whether y lies between the goal posts
func (s *Soccer) inMouth(r *Room, y float64) bool {
	return math.Abs(y-r.arena.Height/2) < s.cfg.GoalWidth/2
}

// ConfineBall bounces the ball off the walls, except through the goal mouths
func (s *Soccer) ConfineBall(r *Room, b *Ball) {
	w, h := r.arena.Width, r.arena.Height
	if b.Y < b.Radius {
		b.Y = b.Radius
		b.VY = math.Abs(b.VY) * s.cfg.WallBounce
	} else if b.Y > h-b.Radius {
		b.Y = h - b.Radius
		b.VY = -math.Abs(b.VY) * s.cfg.WallBounce
	}

	if s.inMouth(r, b.Y) {
		return
	}
	if b.X < b.Radius {
		b.X = b.Radius
		b.VX = math.Abs(b.VX) * s.cfg.WallBounce
	} else if b.X > w-b.Radius {
		b.X = w - b.Radius
		b.VX = -math.Abs(b.VX) * s.cfg.WallBounce
	}
}

func (s *Soccer) OnTick(r *Room) {
	b := r.store.Ball()
	if b == nil {
		return
	}

	for _, p := range r.store.Players() {
		if !p.Alive {
			continue
		}
		if ok, _ := circlesOverlap(p.X, p.Y, p.Radius+1, b.X, b.Y, b.Radius); ok {
			s.lastToucher = p.ID
		}
	}

	// A goal needs the whole ball past the line
	switch {
	case b.X+b.Radius < 0:
		s.goal(r, TeamBlue)
	case b.X-b.Radius > r.arena.Width:
		s.goal(r, TeamRed)
	}
}

func (s *Soccer) goal(r *Room, team string) {
	if team == TeamRed {
		s.red++
	} else {
		s.blue++
	}

	scorerID := ""
	if p, ok := r.store.Player(s.lastToucher); ok && p.Team == team {
		p.Score++
		scorerID = p.ID
	}
	r.emit(EventGoal, scorerID, GoalPayload{
		Team:     team,
		ScorerID: scorerID,
		Score:    map[string]int{TeamRed: s.red, TeamBlue: s.blue},
	})
	log.Printf("⚽ Room %s: goal for %s (%d-%d)", r.ID, team, s.red, s.blue)

	s.kickoff(r)
	if s.red < s.cfg.GoalsToWin && s.blue < s.cfg.GoalsToWin {
		r.EnterSubPhase(subPhaseGoalFreeze, s.cfg.FreezeSeconds)
	}
}

func (s *Soccer) OnSubPhaseEnd(r *Room, name string) {
	if name != subPhaseGoalFreeze {
		return
	}
	r.placeAll()
	s.kickoff(r)
}

// OnContact stuns an opponent hit by a dashing player
func (s *Soccer) OnContact(r *Room, a, b *Player, dist float64) {
	if a.Team == b.Team {
		return
	}
	stun := r.clock.Ticks(s.cfg.StunSeconds)
	if a.DashTicks > 0 && !b.Stunned() {
		b.StunTicks = stun
		b.VX, b.VY = 0, 0
	}
	if b.DashTicks > 0 && !a.Stunned() {
		a.StunTicks = stun
		a.VX, a.VY = 0, 0
	}
}

// OnLeave forfeits the match for a team left with nobody on it
func (s *Soccer) OnLeave(r *Room, p *Player) {
	if len(s.members(r, TeamRed)) == 0 || len(s.members(r, TeamBlue)) == 0 {
		r.endMatch(s.Resolve(r, ReasonForfeit))
	}
}

func (s *Soccer) CheckWin(r *Room) (Outcome, bool) {
	switch {
	case s.red >= s.cfg.GoalsToWin:
		return s.teamWin(r, TeamRed, ReasonWin), true
	case s.blue >= s.cfg.GoalsToWin:
		return s.teamWin(r, TeamBlue, ReasonWin), true
	}
	return Outcome{}, false
}

// teamWin credits the team; its top scorer is named as the winner
func (s *Soccer) teamWin(r *Room, team, reason string) Outcome {
	members := s.members(r, team)
	o := Outcome{WinnerTeam: team, Reason: reason}
	if len(members) == 0 {
		return o
	}
	top, ok := LeaderByScore(members)
	if !ok {
		top = members[0]
	}
	o.WinnerID = top.ID
	o.WinnerName = top.Name
	return o
}

func (s *Soccer) members(r *Room, team string) []*Player {
	var out []*Player
	for _, p := range r.store.Players() {
		if p.Team == team {
			out = append(out, p)
		}
	}
	return out
}

// Resolve: an emptied team forfeits; otherwise the goal count decides
func (s *Soccer) Resolve(r *Room, reason string) Outcome {
	red, blue := len(s.members(r, TeamRed)), len(s.members(r, TeamBlue))
	switch {
	case red > 0 && blue == 0:
		return s.teamWin(r, TeamRed, reason)
	case blue > 0 && red == 0:
		return s.teamWin(r, TeamBlue, reason)
	case s.red > s.blue:
		return s.teamWin(r, TeamRed, reason)
	case s.blue > s.red:
		return s.teamWin(r, TeamBlue, reason)
	}
	return Outcome{Draw: true, Reason: reason}
}

func (s *Soccer) Reset(r *Room) {
	s.red, s.blue = 0, 0
	s.lastToucher = ""
}

// DriveBot lines up behind the ball facing the opponent goal and dashes at
// nearby opponents now and then
func (s *Soccer) DriveBot(r *Room, p *Player) {
	b := r.store.Ball()
	if b == nil {
		p.wander(&r.arena, r.rng)
		return
	}

	goalX := r.arena.Width
	if p.Team == TeamBlue {
		goalX = 0
	}
	dx, dy := goalX-b.X, r.arena.Height/2-b.Y
	dist := math.Hypot(dx, dy)
	if dist < 1 {
		p.steerTowards(b.X, b.Y)
		return
	}
	offset := b.Radius + p.Radius
	aimX, aimY := b.X-dx/dist*offset, b.Y-dy/dist*offset
	if math.Hypot(aimX-p.X, aimY-p.Y) < offset {
		p.steerTowards(b.X, b.Y)
	} else {
		p.steerTowards(aimX, aimY)
	}

	if p.AbilityCooldown > 0 || r.rng.Float64() > 0.02 {
		return
	}
	for _, o := range r.store.Players() {
		if o.Alive && o.Team != p.Team && math.Hypot(o.X-p.X, o.Y-p.Y) < 120 {
			r.dash(p)
			return
		}
	}
}

type soccerState struct {
	Red        int `json:"red"`
	Blue       int `json:"blue"`
	GoalsToWin int `json:"goalsToWin"`
}

func (s *Soccer) ModeState(r *Room) any {
	return soccerState{Red: s.red, Blue: s.blue, GoalsToWin: s.cfg.GoalsToWin}
}
