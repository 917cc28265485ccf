package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"party-arena/internal/game"
	"party-arena/internal/lobby"

	"github.com/go-chi/chi/v5"
)

// Handler methods for routerHandlers

func (h *routerHandlers) handleGetModes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string][]string{"modes": h.lobby.Modes()})
}

func (h *routerHandlers) handleListRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string][]game.Info{"rooms": h.lobby.List()})
}

func (h *routerHandlers) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	// An empty body creates a room with the default mode
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
			writeError(w, "invalid request", http.StatusBadRequest)
			return
		}
	}

	room, err := h.lobby.Create(req.Mode)
	if err != nil {
		writeLobbyError(w, err)
		return
	}

	w.Header().Set("Location", "/api/rooms/"+room.ID)
	writeJSONStatus(w, http.StatusCreated, room.Snapshot().Info())
}

func (h *routerHandlers) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.lobby.Resolve(chi.URLParam(r, "room"))
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	writeJSON(w, room.Snapshot())
}

func (h *routerHandlers) handlePostMutation(w http.ResponseWriter, r *http.Request) {
	room, err := h.lobby.Resolve(chi.URLParam(r, "room"))
	if err != nil {
		writeLobbyError(w, err)
		return
	}

	var req struct {
		Command string `json:"command"`
		Target  string `json:"target"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		writeError(w, "invalid request", http.StatusBadRequest)
		return
	}

	m, ok := game.ParseMutation(req.Command, req.Target, "admin")
	if !ok {
		writeError(w, "unknown command", http.StatusBadRequest)
		return
	}
	if !room.Settings().AcceptsMutations {
		writeError(w, room.Mode+" rooms do not accept mutations", http.StatusConflict)
		return
	}
	if !room.Submit(game.MutationRequest{Mutation: m}) {
		writeLobbyError(w, game.ErrInboxFull)
		return
	}

	log.Printf("🛠️ Admin mutation %s queued for room %s", m.Kind, room.ID)
	writeJSONStatus(w, http.StatusAccepted, map[string]any{
		"queued":  true,
		"command": m.Kind.String(),
		"target":  m.TargetID,
	})
}

func (h *routerHandlers) handleGetMatches(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, "match history disabled", http.StatusNotFound)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	matches, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		log.Printf("⚠️ Load match history failed: %v", err)
		writeError(w, "match history unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string][]game.MatchSummary{"matches": matches})
}

func (h *routerHandlers) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	room, err := h.lobby.Resolve(chi.URLParam(r, "room"))
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	if snap := room.Snapshot(); snap != nil && snap.PlayerCount >= snap.MaxPlayers && r.URL.Query().Get("player") == "" {
		writeLobbyError(w, lobby.ErrRoomFull)
		return
	}
	h.hub.Serve(w, r, room)
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	writeJSONStatus(w, code, map[string]string{"error": message})
}

// writeLobbyError maps registry and room sentinels to HTTP statuses
func writeLobbyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lobby.ErrRoomNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, game.ErrUnknownMode):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, lobby.ErrRoomFull):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, lobby.ErrMaxRooms), errors.Is(err, game.ErrInboxFull):
		w.Header().Set("Retry-After", "1")
		writeError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, lobby.ErrShutdown), errors.Is(err, game.ErrRoomClosed):
		writeError(w, err.Error(), http.StatusGone)
	default:
		log.Printf("⚠️ Unexpected lobby error: %v", err)
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}
