package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"party-arena/internal/game"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	// MaxWSConnectionsTotal is the maximum number of WebSocket connections allowed
	MaxWSConnectionsTotal = 500

	// MaxWSConnectionsPerIP is the maximum WebSocket connections per IP
	MaxWSConnectionsPerIP = 10

	writeWait      = 5 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = pongWait * 9 / 10
	joinTimeout    = 2 * time.Second
	maxMessageSize = 1024
	sendBuffer     = 64
)

// HubConfig configures connection limits and per-session input rate
type HubConfig struct {
	MaxConnections int
	MaxPerIP       int
	InputsPerSec   float64
	Origins        []string // nil uses DefaultAllowedOrigins
}

// DefaultHubConfig returns production defaults
func DefaultHubConfig() HubConfig {
	return HubConfig{
		MaxConnections: MaxWSConnectionsTotal,
		MaxPerIP:       MaxWSConnectionsPerIP,
		InputsPerSec:   60,
	}
}

// session is one player's WebSocket connection to one room
type session struct {
	conn     *websocket.Conn
	ip       string
	roomID   string
	playerID string
	codec    Codec
	send     chan []byte
	limiter  *rate.Limiter
	once     sync.Once
	closed   chan struct{}
}

func (s *session) close() {
	s.once.Do(func() { close(s.closed) })
}

// enqueue never blocks the caller. A full buffer drops the message; the
// next state frame carries the full snapshot anyway.
func (s *session) enqueue(msg []byte) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.send <- msg:
		return true
	default:
		RecordWSMessage("dropped_out")
		return false
	}
}

// Hub fans room broadcasts out to the sessions watching each room. It is the
// game.Broadcaster handed to every room, so Event and State run on room
// goroutines and never block.
type Hub struct {
	cfg       HubConfig
	upgrader  websocket.Upgrader
	wsLimiter *WebSocketRateLimiter

	mu     sync.RWMutex
	rooms  map[string]map[*session]struct{}
	owners map[string]*session // room+player -> the session driving that player
	total  int
}

func ownerKey(roomID, playerID string) string {
	return roomID + "/" + playerID
}

// NewHub creates a hub with connection limiting
func NewHub(cfg HubConfig) *Hub {
	def := DefaultHubConfig()
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.MaxPerIP <= 0 {
		cfg.MaxPerIP = def.MaxPerIP
	}
	if cfg.InputsPerSec <= 0 {
		cfg.InputsPerSec = def.InputsPerSec
	}
	if cfg.Origins == nil {
		cfg.Origins = DefaultAllowedOrigins
	}

	h := &Hub{
		cfg:       cfg,
		wsLimiter: NewWebSocketRateLimiter(cfg.MaxPerIP),
		rooms:     make(map[string]map[*session]struct{}),
		owners:    make(map[string]*session),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if IsAllowedOrigin(origin, h.cfg.Origins) {
				return true
			}
			log.Printf("⚠️ WebSocket connection rejected from origin: %s", origin)
			RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// Event implements game.Broadcaster
func (h *Hub) Event(roomID string, ev game.Event) {
	h.broadcast(roomID, Envelope{Event: ev.Type.String(), Data: ev})
}

// State implements game.Broadcaster
func (h *Hub) State(roomID string, frame game.Frame) {
	h.broadcast(roomID, Envelope{Event: EventState, Data: frame})
}

func (h *Hub) broadcast(roomID string, env Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sessions := h.rooms[roomID]
	if len(sessions) == 0 {
		return
	}
	frames := newEncodedFrames(env)
	for s := range sessions {
		msg, err := frames.get(s.codec)
		if err != nil {
			log.Printf("⚠️ Encode %s for room %s failed: %v", env.Event, roomID, err)
			return
		}
		if s.enqueue(msg) {
			RecordWSMessage("out")
		}
	}
}

// ClientCount returns the number of connected sessions
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// RoomClients returns the number of sessions watching a room
func (h *Hub) RoomClients(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// register adds the session and makes it the owner of its player. A previous
// session for the same player is closed; it no longer owns the player, so its
// teardown leaves the player in the room.
func (h *Hub) register(s *session) {
	h.mu.Lock()
	if h.rooms[s.roomID] == nil {
		h.rooms[s.roomID] = make(map[*session]struct{})
	}
	h.rooms[s.roomID][s] = struct{}{}
	h.total++
	key := ownerKey(s.roomID, s.playerID)
	prev := h.owners[key]
	h.owners[key] = s
	count := h.total
	h.mu.Unlock()

	if prev != nil {
		log.Printf("📱 Player %s reconnected to room %s, closing the older session", s.playerID, s.roomID)
		prev.close()
	}
	log.Printf("📱 Player %s connected to room %s from %s (%d total)", s.playerID, s.roomID, s.ip, count)
	UpdateWSConnections(count)
}

// unregister removes the session and reports whether it still owned its player
func (h *Hub) unregister(s *session) bool {
	h.mu.Lock()
	owned := false
	key := ownerKey(s.roomID, s.playerID)
	if h.owners[key] == s {
		delete(h.owners, key)
		owned = true
	}
	if sessions, ok := h.rooms[s.roomID]; ok {
		if _, ok := sessions[s]; ok {
			delete(sessions, s)
			h.total--
		}
		if len(sessions) == 0 {
			delete(h.rooms, s.roomID)
		}
	}
	count := h.total
	h.mu.Unlock()

	log.Printf("📱 Player %s disconnected from room %s (%d remaining)", s.playerID, s.roomID, count)
	UpdateWSConnections(count)
	return owned
}

// release removes the session and, if it owned its player, takes the player
// out of the room
func (h *Hub) release(s *session, room *game.Room) {
	if h.unregister(s) && !room.Leave(s.playerID) {
		log.Printf("⚠️ Room %s already stopped, leave for %s skipped", s.roomID, s.playerID)
	}
}

// CloseAll disconnects every session, used on shutdown
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sessions := range h.rooms {
		for s := range sessions {
			s.close()
		}
	}
}

// joinPayload reads the optional join metadata from the query string
func joinPayload(r *http.Request) game.JoinPayload {
	q := r.URL.Query()
	p := game.JoinPayload{
		DisplayName: q.Get("name"),
		Color:       q.Get("color"),
	}
	if v := q.Get("previousScore"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.PreviousScore = f
		}
	}
	return p
}

// Serve upgrades the request, joins the player to room and pumps messages
// until either side closes. The player leaves the room on disconnect.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, room *game.Room) {
	codec, err := CodecByName(r.URL.Query().Get("codec"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ip := GetClientIP(r)
	if h.ClientCount() >= h.cfg.MaxConnections {
		log.Printf("⚠️ WebSocket connection rejected: total limit reached (%d)", h.cfg.MaxConnections)
		RecordConnectionRejected("ws_total_limit")
		writeError(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	if !h.wsLimiter.Allow(ip) {
		log.Printf("⚠️ WebSocket connection rejected from %s: per-IP limit reached", ip)
		RecordConnectionRejected("ws_ip_limit")
		writeError(w, "too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		h.wsLimiter.Release(ip)
		return
	}

	playerID := r.URL.Query().Get("player")
	if playerID == "" || len(playerID) > 64 {
		playerID = uuid.NewString()
	}
	s := &session{
		conn:     conn,
		ip:       ip,
		roomID:   room.ID,
		playerID: playerID,
		codec:    codec,
		send:     make(chan []byte, sendBuffer),
		limiter:  rate.NewLimiter(rate.Limit(h.cfg.InputsPerSec), max(1, int(h.cfg.InputsPerSec))),
		closed:   make(chan struct{}),
	}

	// Register before joining so the join's own events reach this session
	h.register(s)

	ctx, cancel := context.WithTimeout(r.Context(), joinTimeout)
	res, err := room.Join(ctx, playerID, joinPayload(r))
	cancel()
	if err != nil || !res.OK {
		reason := res.Reason
		if err != nil {
			reason = err.Error()
		}
		RecordConnectionRejected("join")
		// The join may have displaced an older session for this player
		h.release(s, room)
		h.reject(conn, codec, room, reason)
		h.wsLimiter.Release(ip)
		return
	}

	joined := Envelope{Event: EventJoined, Data: joinedMessage{Result: res, Snapshot: room.Snapshot()}}
	if msg, err := codec.Encode(joined); err == nil {
		s.enqueue(msg)
	}

	go h.writePump(s, room.Done())
	go h.readPump(s, room)
}

type joinedMessage struct {
	Result   game.JoinResult `json:"result"`
	Snapshot *game.Snapshot  `json:"snapshot"`
}

type rejectedMessage struct {
	Reason    string        `json:"reason"`
	Successor *game.RoomRef `json:"successor,omitempty"`
}

func (h *Hub) reject(conn *websocket.Conn, codec Codec, room *game.Room, reason string) {
	defer conn.Close()

	body := rejectedMessage{Reason: reason}
	if snap := room.Snapshot(); snap != nil {
		body.Successor = snap.Successor
	}
	if msg, err := codec.Encode(Envelope{Event: EventRejected, Data: body}); err == nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(codec.MessageType(), msg)
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(writeWait))
}

// readPump turns client frames into room inputs. It owns teardown.
func (h *Hub) readPump(s *session, room *game.Room) {
	defer func() {
		h.release(s, room)
		s.close()
		h.wsLimiter.Release(s.ip)
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if !s.limiter.Allow() {
			RecordWSMessage("dropped_in")
			continue
		}
		in, err := s.codec.DecodeInput(data)
		if err != nil || in.Type == "" {
			continue
		}
		RecordWSMessage("in")
		if !room.Submit(game.InputRequest{PlayerID: s.playerID, Input: in}) {
			RecordWSMessage("dropped_in")
		}
	}
}

// writePump owns all writes to the connection. It also hangs up when the
// room is disposed.
func (h *Hub) writePump(s *session, roomDone <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.closed:
			s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case <-roomDone:
			h.drain(s)
			s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "room closed"),
				time.Now().Add(writeWait))
			s.close()
			return
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(s.codec.MessageType(), msg); err != nil {
				s.close()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		}
	}
}

// drain flushes queued messages so the final events reach the client
func (h *Hub) drain(s *session) {
	for {
		select {
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(s.codec.MessageType(), msg); err != nil {
				return
			}
		default:
			return
		}
	}
}
