package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/wricardo/sokoban-ledger/chain"
	"github.com/wricardo/sokoban-ledger/game/config"
	"github.com/wricardo/sokoban-ledger/game/engine"
	"github.com/wricardo/sokoban-ledger/game/entity"
	"github.com/wricardo/sokoban-ledger/game/service"
	"github.com/wricardo/sokoban-ledger/game/submit"
	"github.com/wricardo/sokoban-ledger/transport/websocket"
)

// Server represents the REST API server
type Server struct {
	service service.GameService
	hub     *websocket.Hub
	router  *mux.Router
}

// NewServer creates a new API server. hub may be nil.
func NewServer(gameService service.GameService, hub *websocket.Hub) *Server {
	s := &Server{
		service: gameService,
		hub:     hub,
		router:  mux.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Session management
	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")

	// Local play
	api.HandleFunc("/sessions/{id}/state", s.handleGetGameState).Methods("GET")
	api.HandleFunc("/sessions/{id}/move", s.handleMove).Methods("POST")
	api.HandleFunc("/sessions/{id}/bulk-move", s.handleBulkMove).Methods("POST")
	api.HandleFunc("/sessions/{id}/undo", s.handleUndo).Methods("POST")
	api.HandleFunc("/sessions/{id}/reset", s.handleReset).Methods("POST")

	// Ledger
	api.HandleFunc("/sessions/{id}/submit", s.handleSubmit).Methods("POST")
	api.HandleFunc("/chain", s.handleChainStatus).Methods("GET")

	// Levels
	api.HandleFunc("/levels", s.handleListLevels).Methods("GET")
	api.HandleFunc("/levels", s.handleCreateLevel).Methods("POST")
	api.HandleFunc("/levels/{id:[0-9]+}", s.handleGetLevel).Methods("GET")

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Code  int    `json:"code,omitempty"` // ledger abort code
}

// classify maps service errors to an HTTP status and a stable kind. fallback
// is used for errors that carry no known sentinel.
func classify(err error, fallback int) (int, ErrorResponse) {
	resp := ErrorResponse{Error: err.Error()}

	var abort *chain.AbortError
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		resp.Kind = "not_found"
		return http.StatusNotFound, resp
	case errors.Is(err, config.ErrLevelNotFound):
		resp.Kind = "level_not_found"
		return http.StatusNotFound, resp
	case errors.Is(err, service.ErrInvalidMove):
		resp.Kind = "invalid_move"
		return http.StatusBadRequest, resp
	case errors.Is(err, config.ErrInvalidLevel):
		resp.Kind = "invalid_level"
		return http.StatusBadRequest, resp
	case errors.Is(err, config.ErrReadOnly):
		resp.Kind = "read_only"
		return http.StatusForbidden, resp
	case errors.Is(err, submit.ErrPrecondition):
		resp.Kind = "precondition"
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, entity.ErrEntitiesNotFound):
		resp.Kind = "entities_not_found"
		return http.StatusFailedDependency, resp
	case errors.As(err, &abort):
		resp.Kind = "aborted"
		resp.Code = abort.Code
		return http.StatusConflict, resp
	case errors.Is(err, service.ErrSubmissionInFlight):
		resp.Kind = "in_flight"
		return http.StatusConflict, resp
	case errors.Is(err, service.ErrSessionFinished):
		resp.Kind = "finished"
		return http.StatusConflict, resp
	case errors.Is(err, submit.ErrOutcomeUnknown):
		resp.Kind = "outcome_unknown"
		return http.StatusGatewayTimeout, resp
	case errors.Is(err, service.ErrChainUnavailable):
		resp.Kind = "unavailable"
		return http.StatusNotImplemented, resp
	}

	if fallback == http.StatusBadGateway {
		resp.Kind = "transport"
	}
	return fallback, resp
}

func respondServiceError(w http.ResponseWriter, err error, fallback int) {
	status, resp := classify(err, fallback)
	respondJSON(w, status, resp)
}

// Session Handlers

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LevelID int `json:"level_id,omitempty"`
	}

	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	session, err := s.service.CreateSession(r.Context(), req.LevelID)
	if err != nil {
		respondServiceError(w, err, http.StatusBadGateway)
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListSessions(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	query := r.URL.Query()
	sortBy := query.Get("sort")    // "created", "accessed" (default)
	order := query.Get("order")    // "asc", "desc" (default: "desc")
	limitStr := query.Get("limit") // number of sessions to return

	if sortBy == "" {
		sortBy = "accessed"
	}
	if order == "" {
		order = "desc"
	}

	sort.Slice(sessions, func(i, j int) bool {
		var ti, tj time.Time
		if sortBy == "created" {
			ti, tj = sessions[i].CreatedAt, sessions[j].CreatedAt
		} else {
			ti, tj = sessions[i].LastAccessedAt, sessions[j].LastAccessedAt
		}

		if order == "asc" {
			return ti.Before(tj)
		}
		return ti.After(tj)
	})

	total := len(sessions)
	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(sessions) {
			sessions = sessions[:l]
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"count":    len(sessions),
		"total":    total,
		"sessions": sessions,
		"sort":     sortBy,
		"order":    order,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	session, err := s.service.GetSession(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err, http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := s.service.DeleteSession(r.Context(), sessionID); err != nil {
		respondServiceError(w, err, http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Session %s deleted", sessionID),
	})
}

// Local play handlers

func (s *Server) handleGetGameState(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	state, err := s.service.GetGameState(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err, http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		Direction string `json:"direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := s.service.Move(r.Context(), sessionID, req.Direction)
	if err != nil {
		respondServiceError(w, err, http.StatusInternalServerError)
		return
	}

	s.broadcast(sessionID, result.GameState)

	log.Debug().
		Str("session_id", sessionID).
		Str("dir", result.Move).
		Bool("ok", result.Success).
		Str("stop", result.StopReason).
		Int("moves", result.GameState.MoveCount).
		Msg("move")

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleBulkMove(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		Moves      []string `json:"moves"`
		MoveString string   `json:"move_string,omitempty"` // e.g. "ULURR"
		Reset      bool     `json:"reset,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	moves := req.Moves
	if len(moves) == 0 && req.MoveString != "" {
		dirs, err := engine.ParseMoveString(req.MoveString)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "invalid_move"})
			return
		}
		for _, d := range dirs {
			moves = append(moves, d.String())
		}
	}

	result, err := s.service.BulkMove(r.Context(), sessionID, moves, req.Reset)
	if err != nil {
		respondServiceError(w, err, http.StatusInternalServerError)
		return
	}

	s.broadcast(sessionID, result.GameState)

	log.Debug().
		Str("session_id", sessionID).
		Int("executed", result.MovesExecuted).
		Int("requested", result.RequestedMoves).
		Str("stop", result.StopReason).
		Bool("solved", result.Solved).
		Msg("bulk move")

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	state, err := s.service.Undo(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err, http.StatusInternalServerError)
		return
	}

	s.broadcast(sessionID, state)
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	state, err := s.service.Reset(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err, http.StatusInternalServerError)
		return
	}

	s.broadcast(sessionID, state)

	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Ledger reset to the initial layout",
		"state":   state,
	})
}

// Ledger handlers

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	result, err := s.service.Submit(r.Context(), sessionID)
	if err != nil {
		status, resp := classify(err, http.StatusBadGateway)
		if state, serr := s.service.GetGameState(r.Context(), sessionID); serr == nil {
			s.broadcast(sessionID, state)
			s.event(sessionID, websocket.EventSubmission, resp)
		}
		log.Info().Str("session_id", sessionID).Str("kind", resp.Kind).Int("code", resp.Code).Msg("submission failed")
		respondJSON(w, status, resp)
		return
	}

	s.broadcast(sessionID, result.GameState)
	s.event(sessionID, websocket.EventSubmission, result.Receipt)

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleChainStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.ChainStatus(r.Context())
	if err != nil {
		respondServiceError(w, err, http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// Level handlers

func (s *Server) handleListLevels(w http.ResponseWriter, r *http.Request) {
	levels, err := s.service.ListLevels(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, levels)
}

func (s *Server) handleGetLevel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid level id")
		return
	}

	level, err := s.service.LoadLevel(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, level)
}

func (s *Server) handleCreateLevel(w http.ResponseWriter, r *http.Request) {
	var level engine.LevelConfig
	if err := json.NewDecoder(r.Body).Decode(&level); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.service.SaveLevel(r.Context(), &level); err != nil {
		respondServiceError(w, err, http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"message":  "Level saved successfully",
		"level_id": level.ID,
	})
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}
	if s.hub == nil {
		http.Error(w, "WebSocket updates disabled", http.StatusServiceUnavailable)
		return
	}

	if _, err := s.service.GetSession(r.Context(), sessionID); err != nil {
		http.Error(w, "Invalid session", http.StatusNotFound)
		return
	}

	s.hub.ServeWS(w, r, sessionID)
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (s *Server) broadcast(sessionID string, state *service.GameView) {
	if s.hub != nil && state != nil {
		s.hub.BroadcastToSession(sessionID, state)
	}
}

func (s *Server) event(sessionID, event string, data any) {
	if s.hub != nil {
		s.hub.BroadcastEvent(sessionID, event, data)
	}
}
