package game

import "strings"

// MutationKind is one command of the closed arena-mutation vocabulary
type MutationKind uint8

const (
	MutationNone MutationKind = iota
	MutationFallingBlock
	MutationRotatingObstacle
	MutationSpeedZone
	MutationTrap
	MutationShrinkArena
)

// String returns the wire name
func (k MutationKind) String() string {
	switch k {
	case MutationFallingBlock:
		return "spawn_falling_block"
	case MutationRotatingObstacle:
		return "spawn_rotating_obstacle"
	case MutationSpeedZone:
		return "spawn_speed_zone"
	case MutationTrap:
		return "spawn_trap"
	case MutationShrinkArena:
		return "shrink_arena"
	default:
		return "none"
	}
}

// MutationCommands maps wire names and short aliases to kinds.
// Anything not listed here is dropped.
var MutationCommands = map[string]MutationKind{
	"none": MutationNone,
	"noop": MutationNone,

	"spawn_falling_block": MutationFallingBlock,
	"falling_block":       MutationFallingBlock,
	"block":               MutationFallingBlock,

	"spawn_rotating_obstacle": MutationRotatingObstacle,
	"rotating_obstacle":       MutationRotatingObstacle,
	"spinner":                 MutationRotatingObstacle,

	"spawn_speed_zone": MutationSpeedZone,
	"speed_zone":       MutationSpeedZone,
	"slow_zone":        MutationSpeedZone,

	"spawn_trap": MutationTrap,
	"trap":       MutationTrap,

	"shrink_arena": MutationShrinkArena,
	"shrink":       MutationShrinkArena,
}

// Mutation is a validated arena-mutation command
type Mutation struct {
	Kind     MutationKind `json:"-"`
	TargetID string       `json:"target,omitempty"` // Weak reference, resolved on apply
	Source   string       `json:"source,omitempty"` // "rules", "ai", "admin"
}

// ParseMutation validates an untrusted command. ok is false for unknown commands.
func ParseMutation(command, target, source string) (Mutation, bool) {
	kind, ok := MutationCommands[strings.ToLower(strings.TrimSpace(command))]
	if !ok {
		return Mutation{}, false
	}
	target = strings.TrimSpace(target)
	if len(target) > 64 {
		target = ""
	}
	return Mutation{Kind: kind, TargetID: target, Source: source}, true
}
