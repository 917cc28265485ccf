// Package ai talks to the external AI/event collaborator that directs arena
// mutations, and falls back to a fixed rotation when it is slow or missing.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"party-arena/internal/game"

	"golang.org/x/time/rate"
)

var (
	ErrDisabled    = errors.New("ai endpoint not configured")
	ErrRateLimited = errors.New("ai call rate limited")
)

// Directive sources
const (
	SourceAI       = "ai"
	SourceFallback = "fallback"
)

// Config configures the client and the director
type Config struct {
	Endpoint          string
	APIKey            string
	Timeout           time.Duration // Per call
	Interval          time.Duration // Director period per room
	RequestsPerSecond float64       // Across all rooms
	Burst             int
}

// DefaultConfig returns defaults. An empty endpoint runs on the fallback only.
func DefaultConfig() Config {
	return Config{
		Timeout:           4 * time.Second,
		Interval:          8 * time.Second,
		RequestsPerSecond: 2,
		Burst:             4,
	}
}

// PlayerBrief is the per-player slice of room context sent to the AI
type PlayerBrief struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
	Alive bool   `json:"alive"`
	Team  string `json:"team,omitempty"`
}

// RoomContext is the request body for one directive
type RoomContext struct {
	RoomID   string        `json:"roomId"`
	Mode     string        `json:"mode"`
	Phase    string        `json:"phase"`
	Elapsed  float64       `json:"elapsed"`
	Alive    int           `json:"alive"`
	Hazards  int           `json:"hazards"`
	Players  []PlayerBrief `json:"players"`
	Commands []string      `json:"commands"`
}

// NewRoomContext builds the request body from a published snapshot. Players
// are ordered by score, highest first.
func NewRoomContext(snap *game.Snapshot) RoomContext {
	rc := RoomContext{
		RoomID:   snap.RoomID,
		Mode:     snap.Mode,
		Phase:    string(snap.Phase),
		Elapsed:  snap.Elapsed,
		Alive:    snap.AliveCount,
		Hazards:  snap.HazardCount,
		Players:  make([]PlayerBrief, 0, len(snap.Players)),
		Commands: commandNames(),
	}
	for _, p := range snap.Players {
		rc.Players = append(rc.Players, PlayerBrief{ID: p.ID, Name: p.Name, Score: p.Score, Alive: p.Alive, Team: p.Team})
	}
	sort.SliceStable(rc.Players, func(i, j int) bool { return rc.Players[i].Score > rc.Players[j].Score })
	return rc
}

func commandNames() []string {
	kinds := []game.MutationKind{
		game.MutationFallingBlock,
		game.MutationRotatingObstacle,
		game.MutationSpeedZone,
		game.MutationTrap,
		game.MutationShrinkArena,
		game.MutationNone,
	}
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = k.String()
	}
	return out
}

// Directive is the collaborator's answer. Narration is for commentary only.
type Directive struct {
	Command   string `json:"command"`
	Target    string `json:"target,omitempty"`
	Narration string `json:"narration,omitempty"`
	Source    string `json:"-"`
}

// Client calls the AI endpoint with a bounded timeout and a shared rate limit
type Client struct {
	cfg      Config
	client   *http.Client
	limiter  *rate.Limiter
	fallback *Fallback
}

// NewClient creates a client. A zero Timeout uses the default.
func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	return &Client{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		fallback: NewFallback(),
	}
}

// Enabled reports whether an endpoint is configured
func (c *Client) Enabled() bool {
	return c.cfg.Endpoint != ""
}

// Next always yields a directive: the AI's answer when it arrives in time,
// otherwise the next fallback in rotation. err reports why the fallback was used.
func (c *Client) Next(ctx context.Context, rc RoomContext) (Directive, error) {
	d, err := c.Request(ctx, rc)
	if err != nil {
		return c.fallback.Next(rc), err
	}
	return d, nil
}

// Request performs one call to the AI endpoint
func (c *Client) Request(ctx context.Context, rc RoomContext) (Directive, error) {
	if !c.Enabled() {
		return Directive{}, ErrDisabled
	}
	if !c.limiter.Allow() {
		return Directive{}, ErrRateLimited
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(rc)
	if err != nil {
		return Directive{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Directive{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Directive{}, fmt.Errorf("ai request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Directive{}, fmt.Errorf("ai response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Directive{}, fmt.Errorf("ai error %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var d Directive
	if err := json.Unmarshal(respBody, &d); err != nil {
		return Directive{}, fmt.Errorf("ai response decode: %w", err)
	}
	d.Source = SourceAI
	return d, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// fallbackCommands is the rotation used when the AI does not answer
var fallbackCommands = []game.MutationKind{
	game.MutationFallingBlock,
	game.MutationSpeedZone,
	game.MutationRotatingObstacle,
	game.MutationTrap,
	game.MutationNone,
}

// Forget drops the room's fallback rotation
func (c *Client) Forget(roomID string) {
	c.fallback.Forget(roomID)
}

// Fallback hands out a deterministic per-room rotation of commands. Traps
// target the current leader.
type Fallback struct {
	mu   sync.Mutex
	next map[string]int
}

// NewFallback creates an empty rotation
func NewFallback() *Fallback {
	return &Fallback{next: make(map[string]int)}
}

// Next returns the room's next fallback directive
func (f *Fallback) Next(rc RoomContext) Directive {
	f.mu.Lock()
	i := f.next[rc.RoomID]
	f.next[rc.RoomID] = (i + 1) % len(fallbackCommands)
	f.mu.Unlock()

	kind := fallbackCommands[i]
	d := Directive{Command: kind.String(), Source: SourceFallback}
	if kind == game.MutationTrap {
		for _, p := range rc.Players {
			if p.Alive {
				d.Target = p.ID
				break
			}
		}
	}
	return d
}

// Forget drops a room's rotation state
func (f *Fallback) Forget(roomID string) {
	f.mu.Lock()
	delete(f.next, roomID)
	f.mu.Unlock()
}
