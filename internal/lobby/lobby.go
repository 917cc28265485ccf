// Package lobby owns the set of live rooms: creation by mode tag, join codes,
// successor rooms for chained transitions and disposal.
package lobby

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sort"
	"strings"
	"sync"

	"party-arena/internal/game"

	"github.com/google/uuid"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomFull     = errors.New("room full")
	ErrMaxRooms     = errors.New("room limit reached")
	ErrShutdown     = errors.New("lobby shut down")
)

// Config controls room creation
type Config struct {
	MaxRooms    int
	DefaultMode string
	Room        game.RoomConfig
}

// DefaultConfig returns the default lobby settings
func DefaultConfig() Config {
	return Config{
		MaxRooms:    200,
		DefaultMode: game.ModeHarvest,
		Room:        game.DefaultRoomConfig(),
	}
}

// Manager holds live rooms by id and join code. Each room runs on its own
// goroutine started by Create and stopped by Close, idle disposal or Shutdown.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*game.Room
	codes map[string]string // code -> room id

	cfg      Config
	registry *game.Registry
	deps     game.Deps

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// NewManager creates a lobby. deps are shared by every room; Successor and
// OnDispose are filled in by the manager.
func NewManager(cfg Config, registry *game.Registry, deps game.Deps) *Manager {
	if cfg.MaxRooms <= 0 {
		cfg.MaxRooms = DefaultConfig().MaxRooms
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = DefaultConfig().DefaultMode
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		rooms:    make(map[string]*game.Room),
		codes:    make(map[string]string),
		cfg:      cfg,
		registry: registry,
		deps:     deps,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Create starts a new room running the given mode. An empty mode uses the default.
func (m *Manager) Create(mode string) (*game.Room, error) {
	if mode == "" {
		mode = m.cfg.DefaultMode
	}
	rules, err := m.registry.New(mode)
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrShutdown
	}
	if len(m.rooms) >= m.cfg.MaxRooms {
		return nil, fmt.Errorf("create %s room: %w (%d)", mode, ErrMaxRooms, m.cfg.MaxRooms)
	}

	id := uuid.NewString()
	code := m.uniqueCode()

	deps := m.deps
	deps.Successor = m.Successor
	deps.OnDispose = m.remove

	room := game.NewRoom(id, code, rules, m.cfg.Room, deps)
	m.rooms[id] = room
	m.codes[code] = id

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		room.Run(m.ctx)
	}()

	log.Printf("🆕 Created %s room %s (code %s, %d live)", mode, id, code, len(m.rooms))
	return room, nil
}

// Successor creates the next room for a chained transition. It is handed to
// every room as its SuccessorFunc.
func (m *Manager) Successor(ctx context.Context, mode string) (game.RoomRef, error) {
	if err := ctx.Err(); err != nil {
		return game.RoomRef{}, err
	}
	room, err := m.Create(mode)
	if err != nil {
		return game.RoomRef{}, err
	}
	return game.RoomRef{ID: room.ID, Code: room.Code, Mode: room.Mode}, nil
}

// Get returns a live room by id
func (m *Manager) Get(id string) (*game.Room, error) {
	m.mu.RLock()
	room, ok := m.rooms[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	return room, nil
}

// GetByCode returns a live room by join code (case-insensitive)
func (m *Manager) GetByCode(code string) (*game.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.codes[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, fmt.Errorf("%w: code %s", ErrRoomNotFound, code)
	}
	return m.rooms[id], nil
}

// Resolve accepts either a room id or a join code
func (m *Manager) Resolve(key string) (*game.Room, error) {
	if room, err := m.Get(key); err == nil {
		return room, nil
	}
	return m.GetByCode(key)
}

// List returns a short summary of every live room, ordered by code
func (m *Manager) List() []game.Info {
	m.mu.RLock()
	out := make([]game.Info, 0, len(m.rooms))
	for _, room := range m.rooms {
		if snap := room.Snapshot(); snap != nil {
			out = append(out, snap.Info())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Playing returns the rooms whose latest snapshot is in the playing phase
func (m *Manager) Playing() []*game.Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*game.Room
	for _, room := range m.rooms {
		if snap := room.Snapshot(); snap != nil && snap.Phase == game.PhasePlaying {
			out = append(out, room)
		}
	}
	return out
}

// Count returns the number of live rooms
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Modes lists the mode tags rooms can be created with
func (m *Manager) Modes() []string {
	return m.registry.Modes()
}

// Close asks a room to dispose itself. The room leaves the registry once its
// loop has processed the request.
func (m *Manager) Close(id string) error {
	room, err := m.Get(id)
	if err != nil {
		return err
	}
	if !room.Submit(game.CloseRequest{}) {
		return fmt.Errorf("close room %s: %w", id, game.ErrInboxFull)
	}
	return nil
}

// Shutdown stops every room and waits for their loops to return
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	n := len(m.rooms)
	m.mu.Unlock()

	log.Printf("🛑 Lobby shutting down %d rooms", n)
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// remove runs on the disposing room's goroutine
func (m *Manager) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		return
	}
	delete(m.rooms, id)
	delete(m.codes, room.Code)
}

const codeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// uniqueCode must be called with mu held
func (m *Manager) uniqueCode() string {
	for {
		code := generateCode(6)
		if _, exists := m.codes[code]; !exists {
			return code
		}
	}
}

func generateCode(n int) string {
	b := make([]byte, n)
	max := big.NewInt(int64(len(codeChars)))
	for i := range b {
		idx, _ := rand.Int(rand.Reader, max)
		b[i] = codeChars[idx.Int64()]
	}
	return string(b)
}
