package game

import (
	"math"
	"math/rand"
	"regexp"
	"strings"
	"unicode"
)

const (
	DefaultPlayerRadius = 20.0
	MaxNameLength       = 16
	MaxCarriedScore     = 1_000_000
)

// Player represents a connected participant in a room
type Player struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Color  string  `json:"color"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	VX     float64 `json:"vx"`
	VY     float64 `json:"vy"`
	Radius float64 `json:"radius"`

	Alive bool   `json:"alive"`
	Cause string `json:"cause,omitempty"` // First recorded elimination cause

	// Status timers, all in ticks
	StunTicks       int `json:"stunTicks"`
	BoostTicks      int `json:"boostTicks"`
	DashTicks       int `json:"-"`
	AbilityCooldown int `json:"abilityCooldown"`
	PassCooldown    int `json:"-"`
	HarvestCooldown int `json:"-"`

	// Effective speed multiplier, rebuilt every tick from boosts and zones
	SpeedMultiplier float64 `json:"speedMultiplier"`

	Score        int    `json:"score"`
	CarriedScore int    `json:"carriedScore"`
	Team         string `json:"team,omitempty"`
	Ready        bool   `json:"ready"`
	IsBot        bool   `json:"isBot"`
	Holding      bool   `json:"holding"`

	// Ticks survived in the current match
	SurvivedTicks int `json:"-"`

	// Last accepted movement input, unit length or less
	inputX float64
	inputY float64
}

// PlayerView is the comparable wire form of a player used for snapshots and deltas
type PlayerView struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Color           string  `json:"color"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	VX              float64 `json:"vx"`
	VY              float64 `json:"vy"`
	Radius          float64 `json:"radius"`
	Alive           bool    `json:"alive"`
	Cause           string  `json:"cause,omitempty"`
	Stunned         bool    `json:"stunned"`
	Boosted         bool    `json:"boosted"`
	AbilityCooldown int     `json:"abilityCooldown"`
	SpeedMultiplier float64 `json:"speedMultiplier"`
	Score           int     `json:"score"`
	CarriedScore    int     `json:"carriedScore"`
	Team            string  `json:"team,omitempty"`
	Ready           bool    `json:"ready"`
	IsBot           bool    `json:"isBot"`
	Holding         bool    `json:"holding"`
}

// View returns the wire form with positions rounded to a tenth of a unit
func (p *Player) View() PlayerView {
	return PlayerView{
		ID:              p.ID,
		Name:            p.Name,
		Color:           p.Color,
		X:               round1(p.X),
		Y:               round1(p.Y),
		VX:              round1(p.VX),
		VY:              round1(p.VY),
		Radius:          p.Radius,
		Alive:           p.Alive,
		Cause:           p.Cause,
		Stunned:         p.StunTicks > 0,
		Boosted:         p.BoostTicks > 0,
		AbilityCooldown: p.AbilityCooldown,
		SpeedMultiplier: p.SpeedMultiplier,
		Score:           p.Score,
		CarriedScore:    p.CarriedScore,
		Team:            p.Team,
		Ready:           p.Ready,
		IsBot:           p.IsBot,
		Holding:         p.Holding,
	}
}

// TotalScore is the score carried in from earlier rooms plus this match's score
func (p *Player) TotalScore() int {
	return p.CarriedScore + p.Score
}

// Stunned reports whether the player is currently unable to act
func (p *Player) Stunned() bool {
	return p.StunTicks > 0
}

// resetForMatch clears every per-match field. Identity, team and carried score survive.
func (p *Player) resetForMatch() {
	p.VX, p.VY = 0, 0
	p.Alive = true
	p.Cause = ""
	p.StunTicks = 0
	p.BoostTicks = 0
	p.DashTicks = 0
	p.AbilityCooldown = 0
	p.PassCooldown = 0
	p.HarvestCooldown = 0
	p.SpeedMultiplier = 1
	p.Score = 0
	p.Holding = false
	p.SurvivedTicks = 0
	p.inputX, p.inputY = 0, 0
}

// tickTimers decrements every status timer by one tick
func (p *Player) tickTimers() {
	if p.StunTicks > 0 {
		p.StunTicks--
	}
	if p.BoostTicks > 0 {
		p.BoostTicks--
	}
	if p.DashTicks > 0 {
		p.DashTicks--
	}
	if p.AbilityCooldown > 0 {
		p.AbilityCooldown--
	}
	if p.PassCooldown > 0 {
		p.PassCooldown--
	}
	if p.HarvestCooldown > 0 {
		p.HarvestCooldown--
	}
}

// wander steers a bot: a pull toward the arena center when far from it plus
// occasional random heading changes.
func (p *Player) wander(arena *Arena, rng *rand.Rand) {
	cx, cy := arena.Center()
	dx := cx - p.X
	dy := cy - p.Y
	dist := math.Hypot(dx, dy)

	if dist > arena.Extent()*0.6 {
		p.inputX = dx / dist
		p.inputY = dy / dist
		return
	}

	if rng.Float64() < 0.05 {
		angle := rng.Float64() * math.Pi * 2
		p.inputX = math.Cos(angle)
		p.inputY = math.Sin(angle)
	}
}

// steerTowards points a bot's input at a world position
func (p *Player) steerTowards(x, y float64) {
	dx := x - p.X
	dy := y - p.Y
	dist := math.Hypot(dx, dy)
	if dist < 1 {
		p.inputX, p.inputY = 0, 0
		return
	}
	p.inputX = dx / dist
	p.inputY = dy / dist
}

// JoinPayload is the optional client metadata sent with a join
type JoinPayload struct {
	DisplayName   string  `json:"displayName,omitempty"`
	Color         string  `json:"color,omitempty"`
	PreviousScore float64 `json:"previousScore,omitempty"`
	Bot           bool    `json:"bot,omitempty"`
}

var playerColors = []string{
	"#ff6b6b", "#4ecdc4", "#45b7d1", "#96ceb4",
	"#ffeaa7", "#dfe6e9", "#fd79a8", "#00b894",
	"#6c5ce7", "#fdcb6e", "#e17055", "#00cec9",
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// SanitizeName trims, strips control characters and clamps a display name.
// Empty results fall back to def.
func SanitizeName(name, def string) string {
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" {
		return def
	}
	runes := []rune(name)
	if len(runes) > MaxNameLength {
		name = strings.TrimSpace(string(runes[:MaxNameLength]))
	}
	return name
}

// SanitizeColor accepts #rrggbb colors and otherwise picks from the palette by slot
func SanitizeColor(color string, slot int) string {
	if hexColor.MatchString(color) {
		return strings.ToLower(color)
	}
	if slot < 0 {
		slot = -slot
	}
	return playerColors[slot%len(playerColors)]
}

// SanitizeScore clamps a carried-in score to [0, MaxCarriedScore]
func SanitizeScore(score float64) int {
	if math.IsNaN(score) || score <= 0 {
		return 0
	}
	if score > MaxCarriedScore {
		return MaxCarriedScore
	}
	return int(score)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
