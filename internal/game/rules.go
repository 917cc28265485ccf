package game

import (
	"fmt"
	"sort"
)

// TimerMode selects how the match clock is shown and enforced
type TimerMode uint8

const (
	TimerNone TimerMode = iota // Best-of-phases modes
	TimerDown                  // Sprint modes end when it reaches zero
	TimerUp                    // Elimination modes count elapsed time
)

// SpawnLayout selects where players are placed at join and match start
type SpawnLayout uint8

const (
	SpawnRandom SpawnLayout = iota
	SpawnCorners
	SpawnCircle
	SpawnTeams
)

// ModeSettings are the lifecycle-relevant knobs a rule set exposes
type ModeSettings struct {
	MinPlayers       int
	MaxPlayers       int
	ReadyGated       bool // Otherwise the countdown starts at MinPlayers
	Arena            Arena
	Spawn            SpawnLayout
	MaxSpeed         float64
	Timer            TimerMode
	MatchSeconds     float64 // Only for TimerDown
	CarryScore       bool    // Fold score into carried score on reset
	AcceptsMutations bool    // External mutation commands are applied
}

// Outcome is the terminal resolution of a match. A draw has an empty WinnerID.
type Outcome struct {
	WinnerID   string `json:"winnerId"`
	WinnerName string `json:"winnerName,omitempty"`
	WinnerTeam string `json:"winnerTeam,omitempty"`
	Draw       bool   `json:"draw"`
	Reason     string `json:"reason"`
}

// Outcome reasons
const (
	ReasonWin        = "win"
	ReasonLastAlive  = "last_alive"
	ReasonAllCleared = "all_cleared"
	ReasonTimeout    = "timeout"
	ReasonForfeit    = "forfeit"
	ReasonEliminated = "all_eliminated"
)

// RuleSet is the per-mode plug-in driven by the generic room core.
// Every method runs on the room goroutine.
type RuleSet interface {
	Name() string
	Settings() ModeSettings
	// Setup runs at Countdown -> Playing, after players have been reset and spawned
	Setup(r *Room)
	// OnTick runs after physics, hazards and collisions settle. Not called during sub-phases.
	OnTick(r *Room)
	// CheckWin is evaluated after every playing tick
	CheckWin(r *Room) (Outcome, bool)
	// Resolve produces a final outcome for timeouts and forfeits
	Resolve(r *Room, reason string) Outcome
	// Reset clears mode state when the room returns to Waiting
	Reset(r *Room)
}

// ContactHandler receives entity-entity contacts once per pair per tick
type ContactHandler interface {
	OnContact(r *Room, a, b *Player, dist float64)
}

// SubPhaseHandler is notified when a nested sub-phase runs out
type SubPhaseHandler interface {
	OnSubPhaseEnd(r *Room, name string)
}

// ShrinkHandler reacts to arena shrinks
type ShrinkHandler interface {
	OnShrink(r *Room)
}

// EliminationHandler reacts to a player being eliminated
type EliminationHandler interface {
	OnEliminated(r *Room, p *Player)
}

// LeaveHandler reacts to a player leaving mid-match
type LeaveHandler interface {
	OnLeave(r *Room, p *Player)
}

// BallConfiner keeps the ball in play. Unlike OnTick it also runs during
// sub-phases, since players can still knock the ball around while frozen.
type BallConfiner interface {
	ConfineBall(r *Room, b *Ball)
}

// BotDriver steers bots with mode knowledge; bots wander otherwise
type BotDriver interface {
	DriveBot(r *Room, p *Player)
}

// Rotation is the fixed order used for chained transitions
var Rotation = []string{ModeHarvest, ModeDynamite, ModeSoccer, ModeSurvival}

// NextMode returns the mode after tag in the rotation
func NextMode(tag string) string {
	for i, m := range Rotation {
		if m == tag {
			return Rotation[(i+1)%len(Rotation)]
		}
	}
	return Rotation[0]
}

// Tuning carries per-mode overrides, loaded from YAML by the config package
type Tuning struct {
	Harvest  HarvestConfig  `yaml:"harvest"`
	Dynamite DynamiteConfig `yaml:"dynamite"`
	Soccer   SoccerConfig   `yaml:"soccer"`
	Survival SurvivalConfig `yaml:"survival"`
}

// DefaultTuning returns the built-in tuning for every mode
func DefaultTuning() Tuning {
	return Tuning{
		Harvest:  DefaultHarvest(),
		Dynamite: DefaultDynamite(),
		Soccer:   DefaultSoccer(),
		Survival: DefaultSurvival(),
	}
}

// Registry builds rule sets by mode tag
type Registry struct {
	factories map[string]func() RuleSet
}

// NewRegistry registers the built-in modes with the given tuning
func NewRegistry(t Tuning) *Registry {
	reg := &Registry{factories: make(map[string]func() RuleSet)}
	reg.Register(ModeHarvest, func() RuleSet { return NewHarvest(t.Harvest) })
	reg.Register(ModeDynamite, func() RuleSet { return NewDynamite(t.Dynamite) })
	reg.Register(ModeSoccer, func() RuleSet { return NewSoccer(t.Soccer) })
	reg.Register(ModeSurvival, func() RuleSet { return NewSurvival(t.Survival) })
	return reg
}

// Register adds or replaces a mode
func (reg *Registry) Register(tag string, factory func() RuleSet) {
	reg.factories[tag] = factory
}

// New creates a fresh rule set for a room
func (reg *Registry) New(tag string) (RuleSet, error) {
	factory, ok := reg.factories[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, tag)
	}
	return factory(), nil
}

// Modes lists registered tags in sorted order
func (reg *Registry) Modes() []string {
	tags := make([]string, 0, len(reg.factories))
	for tag := range reg.factories {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// LeaderByScore returns the unique top scorer. An exact tie for the lead is a
// draw: no secondary criteria are consulted.
func LeaderByScore(players []*Player) (*Player, bool) {
	var leader *Player
	tied := false
	for _, p := range players {
		switch {
		case leader == nil || p.Score > leader.Score:
			leader = p
			tied = false
		case p.Score == leader.Score:
			tied = true
		}
	}
	if leader == nil || tied {
		return nil, false
	}
	return leader, true
}

// scoreOutcome resolves a highest-score-wins match
func scoreOutcome(players []*Player, reason string) Outcome {
	leader, ok := LeaderByScore(players)
	if !ok {
		return Outcome{Draw: true, Reason: reason}
	}
	return Outcome{WinnerID: leader.ID, WinnerName: leader.Name, WinnerTeam: leader.Team, Reason: reason}
}

// lastAliveOutcome resolves an elimination match; ok is false while two or more remain
func lastAliveOutcome(r *Room) (Outcome, bool) {
	var survivor *Player
	alive := 0
	r.store.EachAlive(func(p *Player) {
		alive++
		survivor = p
	})
	switch alive {
	case 0:
		return Outcome{Draw: true, Reason: ReasonEliminated}, true
	case 1:
		return Outcome{WinnerID: survivor.ID, WinnerName: survivor.Name, Reason: ReasonLastAlive}, true
	}
	return Outcome{}, false
}
