package game

import (
	"time"
)

// EventType enum for one-shot room notifications
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventPlayerJoined
	EventPlayerLeft
	EventPlayerReady
	EventPlayerRenamed
	EventCountdown
	EventCountdownCancelled
	EventMatchStart
	EventPlayerEliminated
	EventMatchEnd
	EventMatchReset
	EventRoomTransition
	EventGoal
	EventDynamitePassed
	EventDynamiteExploded
	EventCellDepleted
	EventArenaShrink
	EventHazardSpawned
	EventWave
	EventSubPhase
)

// EventVersion for backwards compatibility in replay
const EventVersion uint8 = 1

// Event is a discrete notification. It is not part of continuous state.
type Event struct {
	Version   uint8     `json:"version"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"` // Unix nano
	Sequence  uint64    `json:"sequence"`  // Assigned by the journal
	Tick      uint64    `json:"tick"`
	RoomID    string    `json:"roomId"`
	PlayerID  string    `json:"playerId,omitempty"`
	Payload   any       `json:"payload,omitempty"`
}

var eventNames = [...]string{
	EventTypeUnknown:        "unknown",
	EventPlayerJoined:       "player_joined",
	EventPlayerLeft:         "player_left",
	EventPlayerReady:        "player_ready",
	EventPlayerRenamed:      "player_renamed",
	EventCountdown:          "countdown",
	EventCountdownCancelled: "countdown_cancelled",
	EventMatchStart:         "match_start",
	EventPlayerEliminated:   "player_eliminated",
	EventMatchEnd:           "match_end",
	EventMatchReset:         "match_reset",
	EventRoomTransition:     "room_transition",
	EventGoal:               "goal",
	EventDynamitePassed:     "dynamite_passed",
	EventDynamiteExploded:   "dynamite_exploded",
	EventCellDepleted:       "cell_depleted",
	EventArenaShrink:        "arena_shrink",
	EventHazardSpawned:      "hazard_spawned",
	EventWave:               "wave",
	EventSubPhase:           "sub_phase",
}

// String returns the wire name
func (t EventType) String() string {
	if int(t) < len(eventNames) {
		return eventNames[t]
	}
	return "unknown"
}

// MarshalText encodes the type as its wire name
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, tick uint64, roomID, playerID string, payload any) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		Tick:      tick,
		RoomID:    roomID,
		PlayerID:  playerID,
		Payload:   payload,
	}
}

// Typed payloads for different event types

type PlayerJoinedPayload struct {
	Player PlayerView `json:"player"`
}

type PlayerLeftPayload struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

type PlayerRenamedPayload struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

type CountdownPayload struct {
	Seconds int `json:"seconds"`
}

type MatchStartPayload struct {
	MatchID string `json:"matchId"`
	Mode    string `json:"mode"`
	Players int    `json:"players"`
}

type PlayerEliminatedPayload struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Cause    string `json:"cause"`
	Alive    int    `json:"alive"`
}

type MatchEndPayload struct {
	MatchID    string         `json:"matchId"`
	WinnerID   string         `json:"winnerId"`
	WinnerName string         `json:"winnerName,omitempty"`
	WinnerTeam string         `json:"winnerTeam,omitempty"`
	Draw       bool           `json:"draw"`
	Reason     string         `json:"reason"`
	Scores     map[string]int `json:"scores"`
}

type RoomTransitionPayload struct {
	RoomID string         `json:"roomId"`
	Code   string         `json:"code,omitempty"`
	Mode   string         `json:"mode"`
	Scores map[string]int `json:"scores"`
}

type GoalPayload struct {
	Team     string         `json:"team"`
	ScorerID string         `json:"scorerId,omitempty"`
	Score    map[string]int `json:"score"`
}

type DynamitePassedPayload struct {
	FromID string  `json:"fromId"`
	ToID   string  `json:"toId"`
	Fuse   float64 `json:"fuse"`
}

type DynamiteExplodedPayload struct {
	PlayerID string `json:"playerId"`
	Round    int    `json:"round"`
}

type CellDepletedPayload struct {
	Cell     int    `json:"cell"`
	PlayerID string `json:"playerId"`
	Points   int    `json:"points"`
}

type ArenaShrinkPayload struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Radius float64 `json:"radius,omitempty"`
}

type HazardSpawnedPayload struct {
	ID       uint64     `json:"id"`
	Kind     HazardKind `json:"kind"`
	X        float64    `json:"x"`
	Y        float64    `json:"y"`
	TargetID string     `json:"targetId,omitempty"`
}

type WavePayload struct {
	Wave int `json:"wave"`
}

type SubPhasePayload struct {
	Name    string  `json:"name"`
	Seconds float64 `json:"seconds"`
}
