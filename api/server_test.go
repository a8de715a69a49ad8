package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wricardo/sokoban-ledger/chain"
	"github.com/wricardo/sokoban-ledger/chain/simchain"
	"github.com/wricardo/sokoban-ledger/game/config"
	"github.com/wricardo/sokoban-ledger/game/engine"
	"github.com/wricardo/sokoban-ledger/game/entity"
	"github.com/wricardo/sokoban-ledger/game/service"
	"github.com/wricardo/sokoban-ledger/game/session"
	"github.com/wricardo/sokoban-ledger/game/submit"
	"github.com/wricardo/sokoban-ledger/transport/websocket"
)

// MockGameService implements service.GameService for testing
type MockGameService struct {
	CreateSessionFunc func(ctx context.Context, levelID int) (*service.SessionInfo, error)
	GetSessionFunc    func(ctx context.Context, sessionID string) (*service.SessionInfo, error)
	ListSessionsFunc  func(ctx context.Context) ([]*service.SessionInfo, error)
	DeleteSessionFunc func(ctx context.Context, sessionID string) error

	MoveFunc     func(ctx context.Context, sessionID, direction string) (*service.MoveResult, error)
	BulkMoveFunc func(ctx context.Context, sessionID string, moves []string, reset bool) (*service.BulkMoveResult, error)
	StateFunc    func(ctx context.Context, sessionID string) (*service.GameView, error)

	SubmitFunc func(ctx context.Context, sessionID string) (*service.SubmitResult, error)

	ListLevelsFunc func(ctx context.Context) ([]*service.LevelInfo, error)
	SaveLevelFunc  func(ctx context.Context, level *engine.LevelConfig) error
}

func (m *MockGameService) CreateSession(ctx context.Context, levelID int) (*service.SessionInfo, error) {
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx, levelID)
	}
	return &service.SessionInfo{ID: "test-session", LevelID: levelID, CreatedAt: time.Now()}, nil
}

func (m *MockGameService) GetSession(ctx context.Context, sessionID string) (*service.SessionInfo, error) {
	if m.GetSessionFunc != nil {
		return m.GetSessionFunc(ctx, sessionID)
	}
	return &service.SessionInfo{ID: sessionID, LevelID: 1, CreatedAt: time.Now()}, nil
}

func (m *MockGameService) ListSessions(ctx context.Context) ([]*service.SessionInfo, error) {
	if m.ListSessionsFunc != nil {
		return m.ListSessionsFunc(ctx)
	}
	return []*service.SessionInfo{}, nil
}

func (m *MockGameService) DeleteSession(ctx context.Context, sessionID string) error {
	if m.DeleteSessionFunc != nil {
		return m.DeleteSessionFunc(ctx, sessionID)
	}
	return nil
}

func (m *MockGameService) Move(ctx context.Context, sessionID, direction string) (*service.MoveResult, error) {
	if m.MoveFunc != nil {
		return m.MoveFunc(ctx, sessionID, direction)
	}
	return &service.MoveResult{Success: true, Move: direction, GameState: &service.GameView{SessionID: sessionID}}, nil
}

func (m *MockGameService) BulkMove(ctx context.Context, sessionID string, moves []string, reset bool) (*service.BulkMoveResult, error) {
	if m.BulkMoveFunc != nil {
		return m.BulkMoveFunc(ctx, sessionID, moves, reset)
	}
	return &service.BulkMoveResult{RequestedMoves: len(moves), MovesExecuted: len(moves), Success: true, GameState: &service.GameView{}}, nil
}

func (m *MockGameService) Undo(ctx context.Context, sessionID string) (*service.GameView, error) {
	return m.GetGameState(ctx, sessionID)
}

func (m *MockGameService) Reset(ctx context.Context, sessionID string) (*service.GameView, error) {
	return m.GetGameState(ctx, sessionID)
}

func (m *MockGameService) GetGameState(ctx context.Context, sessionID string) (*service.GameView, error) {
	if m.StateFunc != nil {
		return m.StateFunc(ctx, sessionID)
	}
	return &service.GameView{SessionID: sessionID, Status: service.StatusActive}, nil
}

func (m *MockGameService) Submit(ctx context.Context, sessionID string) (*service.SubmitResult, error) {
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, sessionID)
	}
	return &service.SubmitResult{Receipt: &submit.Receipt{Digest: "d1"}, GameState: &service.GameView{}}, nil
}

func (m *MockGameService) ChainStatus(ctx context.Context) (*service.ChainStatus, error) {
	return nil, service.ErrChainUnavailable
}

func (m *MockGameService) ListLevels(ctx context.Context) ([]*service.LevelInfo, error) {
	if m.ListLevelsFunc != nil {
		return m.ListLevelsFunc(ctx)
	}
	return []*service.LevelInfo{}, nil
}

func (m *MockGameService) LoadLevel(ctx context.Context, levelID int) (*engine.LevelConfig, error) {
	return nil, fmt.Errorf("%w: %d", config.ErrLevelNotFound, levelID)
}

func (m *MockGameService) SaveLevel(ctx context.Context, level *engine.LevelConfig) error {
	if m.SaveLevelFunc != nil {
		return m.SaveLevelFunc(ctx, level)
	}
	return nil
}

// Test helpers
func setupTestServer(t *testing.T, svc service.GameService) *Server {
	hub := websocket.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)
	return NewServer(svc, hub)
}

// setupSimServer wires the real service against the in-process ledger
func setupSimServer(t *testing.T) (*Server, *simchain.Chain) {
	t.Helper()
	levels, err := config.NewManager("")
	if err != nil {
		t.Fatalf("Failed to load levels: %v", err)
	}
	sim := simchain.New(levels)
	svc := service.NewGameService(
		session.NewManager(),
		levels,
		entity.NewResolver(sim, sim.GridID()),
		submit.NewSubmitter(sim, nil),
		service.WithSessionReader(sim),
	)
	return setupTestServer(t, svc), sim
}

func makeRequest(method, path string, body any) *http.Request {
	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewBuffer(bodyBytes))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func do(server *Server, method, path string, body any) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest(method, path, body))
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), target); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
}

func TestCreateSession(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    any
		setupMock      func(*MockGameService)
		expectedStatus int
		expectedKind   string
	}{
		{
			name:           "Default level",
			requestBody:    nil,
			expectedStatus: http.StatusCreated,
		},
		{
			name:        "Specific level",
			requestBody: map[string]int{"level_id": 3},
			setupMock: func(m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, levelID int) (*service.SessionInfo, error) {
					if levelID != 3 {
						t.Errorf("Expected level 3, got %d", levelID)
					}
					return &service.SessionInfo{ID: "s3", LevelID: levelID}, nil
				}
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:        "Unknown level",
			requestBody: map[string]int{"level_id": 99},
			setupMock: func(m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, levelID int) (*service.SessionInfo, error) {
					return nil, fmt.Errorf("%w: %d", config.ErrLevelNotFound, levelID)
				}
			},
			expectedStatus: http.StatusNotFound,
			expectedKind:   "level_not_found",
		},
		{
			name: "Entities not found",
			setupMock: func(m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, levelID int) (*service.SessionInfo, error) {
					return nil, fmt.Errorf("resolve entities: %w", &entity.NotFoundError{Roles: []string{"player"}})
				}
			},
			expectedStatus: http.StatusFailedDependency,
			expectedKind:   "entities_not_found",
		},
		{
			name: "Ledger unreachable",
			setupMock: func(m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, levelID int) (*service.SessionInfo, error) {
					return nil, errors.New("dial tcp: connection refused")
				}
			},
			expectedStatus: http.StatusBadGateway,
			expectedKind:   "transport",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockGameService{}
			if tt.setupMock != nil {
				tt.setupMock(mockService)
			}

			w := do(setupTestServer(t, mockService), "POST", "/api/sessions", tt.requestBody)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.expectedKind != "" {
				var resp ErrorResponse
				parseResponse(t, w, &resp)
				if resp.Kind != tt.expectedKind {
					t.Errorf("Expected kind %q, got %q", tt.expectedKind, resp.Kind)
				}
			}
		})
	}
}

func TestListSessions(t *testing.T) {
	now := time.Now()
	mockService := &MockGameService{
		ListSessionsFunc: func(ctx context.Context) ([]*service.SessionInfo, error) {
			return []*service.SessionInfo{
				{ID: "old", CreatedAt: now.Add(-2 * time.Hour), LastAccessedAt: now.Add(-time.Hour)},
				{ID: "new", CreatedAt: now.Add(-time.Hour), LastAccessedAt: now},
				{ID: "mid", CreatedAt: now.Add(-90 * time.Minute), LastAccessedAt: now.Add(-30 * time.Minute)},
			}, nil
		},
	}
	server := setupTestServer(t, mockService)

	tests := []struct {
		query     string
		wantFirst string
		wantCount int
	}{
		{"", "new", 3},
		{"?order=asc", "old", 3},
		{"?sort=created&order=asc", "old", 3},
		{"?limit=1", "new", 1},
	}

	for _, tt := range tests {
		t.Run("query"+tt.query, func(t *testing.T) {
			w := do(server, "GET", "/api/sessions"+tt.query, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", w.Code)
			}

			var resp struct {
				Count    int                    `json:"count"`
				Total    int                    `json:"total"`
				Sessions []*service.SessionInfo `json:"sessions"`
			}
			parseResponse(t, w, &resp)
			if resp.Count != tt.wantCount || resp.Total != 3 {
				t.Errorf("Expected count %d of 3, got %d of %d", tt.wantCount, resp.Count, resp.Total)
			}
			if resp.Sessions[0].ID != tt.wantFirst {
				t.Errorf("Expected first session %s, got %s", tt.wantFirst, resp.Sessions[0].ID)
			}
		})
	}
}

func TestGetAndDeleteSession(t *testing.T) {
	mockService := &MockGameService{
		GetSessionFunc: func(ctx context.Context, sessionID string) (*service.SessionInfo, error) {
			if sessionID != "known" {
				return nil, service.ErrSessionNotFound
			}
			return &service.SessionInfo{ID: sessionID}, nil
		},
		DeleteSessionFunc: func(ctx context.Context, sessionID string) error {
			if sessionID == "busy" {
				return service.ErrSubmissionInFlight
			}
			return nil
		},
	}
	server := setupTestServer(t, mockService)

	if w := do(server, "GET", "/api/sessions/known", nil); w.Code != http.StatusOK {
		t.Errorf("Expected 200 for known session, got %d", w.Code)
	}
	if w := do(server, "GET", "/api/sessions/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing session, got %d", w.Code)
	}
	if w := do(server, "DELETE", "/api/sessions/known", nil); w.Code != http.StatusOK {
		t.Errorf("Expected 200 on delete, got %d", w.Code)
	}
	if w := do(server, "DELETE", "/api/sessions/busy", nil); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 deleting a submitting session, got %d", w.Code)
	}
}

func TestMove(t *testing.T) {
	t.Run("Passes direction through", func(t *testing.T) {
		var got string
		mockService := &MockGameService{
			MoveFunc: func(ctx context.Context, sessionID, direction string) (*service.MoveResult, error) {
				got = direction
				return &service.MoveResult{Success: true, Move: direction, GameState: &service.GameView{MoveCount: 1}}, nil
			},
		}
		w := do(setupTestServer(t, mockService), "POST", "/api/sessions/s1/move", map[string]string{"direction": "left"})
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		if got != "left" {
			t.Errorf("Expected direction left, got %q", got)
		}
	})

	t.Run("Invalid body", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/sessions/s1/move", bytes.NewBufferString("{"))
		setupTestServer(t, &MockGameService{}).ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("Invalid direction", func(t *testing.T) {
		mockService := &MockGameService{
			MoveFunc: func(ctx context.Context, sessionID, direction string) (*service.MoveResult, error) {
				return nil, fmt.Errorf("%w: unknown direction %q", service.ErrInvalidMove, direction)
			},
		}
		w := do(setupTestServer(t, mockService), "POST", "/api/sessions/s1/move", map[string]string{"direction": "sideways"})
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("Finished session", func(t *testing.T) {
		mockService := &MockGameService{
			MoveFunc: func(ctx context.Context, sessionID, direction string) (*service.MoveResult, error) {
				return nil, service.ErrSessionFinished
			},
		}
		w := do(setupTestServer(t, mockService), "POST", "/api/sessions/s1/move", map[string]string{"direction": "up"})
		if w.Code != http.StatusConflict {
			t.Errorf("Expected status 409, got %d", w.Code)
		}
	})
}

func TestBulkMove(t *testing.T) {
	tests := []struct {
		name        string
		body        map[string]any
		wantMoves   []string
		wantReset   bool
		wantStatus  int
		mockReached bool
	}{
		{
			name:        "Move list",
			body:        map[string]any{"moves": []string{"up", "left"}},
			wantMoves:   []string{"up", "left"},
			wantStatus:  http.StatusOK,
			mockReached: true,
		},
		{
			name:        "Move string with reset",
			body:        map[string]any{"move_string": "ULU", "reset": true},
			wantMoves:   []string{"up", "left", "up"},
			wantReset:   true,
			wantStatus:  http.StatusOK,
			mockReached: true,
		},
		{
			name:       "Bad move string",
			body:       map[string]any{"move_string": "UXU"},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached := false
			mockService := &MockGameService{
				BulkMoveFunc: func(ctx context.Context, sessionID string, moves []string, reset bool) (*service.BulkMoveResult, error) {
					reached = true
					if fmt.Sprint(moves) != fmt.Sprint(tt.wantMoves) {
						t.Errorf("Expected moves %v, got %v", tt.wantMoves, moves)
					}
					if reset != tt.wantReset {
						t.Errorf("Expected reset %v, got %v", tt.wantReset, reset)
					}
					return &service.BulkMoveResult{MovesExecuted: len(moves), GameState: &service.GameView{}}, nil
				},
			}

			w := do(setupTestServer(t, mockService), "POST", "/api/sessions/s1/bulk-move", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if reached != tt.mockReached {
				t.Errorf("Expected service call %v, got %v", tt.mockReached, reached)
			}
		})
	}
}

func TestSubmitErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
		wantCode   int
	}{
		{"Empty ledger", fmt.Errorf("%w: %w", submit.ErrPrecondition, submit.ErrEmptyLedger), http.StatusUnprocessableEntity, "precondition", 0},
		{"Ledger abort", fmt.Errorf("submit solution: %w", chain.DecodeFailure(chain.FormatAbort("submit_solution", chain.CodeBlockedByWall))), http.StatusConflict, "aborted", chain.CodeBlockedByWall},
		{"In flight", service.ErrSubmissionInFlight, http.StatusConflict, "in_flight", 0},
		{"Already solved", service.ErrSessionFinished, http.StatusConflict, "finished", 0},
		{"Outcome unknown", fmt.Errorf("%w: context deadline exceeded", submit.ErrOutcomeUnknown), http.StatusGatewayTimeout, "outcome_unknown", 0},
		{"Transport", errors.New("relay: 503 Service Unavailable"), http.StatusBadGateway, "transport", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockGameService{
				SubmitFunc: func(ctx context.Context, sessionID string) (*service.SubmitResult, error) {
					return nil, tt.err
				},
			}

			w := do(setupTestServer(t, mockService), "POST", "/api/sessions/s1/submit", nil)
			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}

			var resp ErrorResponse
			parseResponse(t, w, &resp)
			if resp.Kind != tt.wantKind {
				t.Errorf("Expected kind %q, got %q", tt.wantKind, resp.Kind)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("Expected code %d, got %d", tt.wantCode, resp.Code)
			}
		})
	}
}

func TestLevels(t *testing.T) {
	mockService := &MockGameService{
		ListLevelsFunc: func(ctx context.Context) ([]*service.LevelInfo, error) {
			return []*service.LevelInfo{{ID: 1, Name: "First Steps"}}, nil
		},
		SaveLevelFunc: func(ctx context.Context, level *engine.LevelConfig) error {
			return config.ErrReadOnly
		},
	}
	server := setupTestServer(t, mockService)

	w := do(server, "GET", "/api/levels", nil)
	var levels []*service.LevelInfo
	parseResponse(t, w, &levels)
	if len(levels) != 1 || levels[0].Name != "First Steps" {
		t.Errorf("Unexpected level list: %s", w.Body.String())
	}

	if w := do(server, "GET", "/api/levels/7", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown level, got %d", w.Code)
	}
	if w := do(server, "GET", "/api/levels/abc", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for non-numeric level route, got %d", w.Code)
	}
	if w := do(server, "POST", "/api/levels", map[string]any{"id": 9, "name": "x"}); w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 without a level directory, got %d", w.Code)
	}
}

func TestChainStatusUnavailable(t *testing.T) {
	w := do(setupTestServer(t, &MockGameService{}), "GET", "/api/chain", nil)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("Expected status 501, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	w := do(setupTestServer(t, &MockGameService{}), "GET", "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestWebSocket(t *testing.T) {
	tests := []struct {
		name           string
		queryParams    string
		expectedStatus int
	}{
		{"Missing session parameter", "", http.StatusBadRequest},
		{"Invalid session", "?session=missing", http.StatusNotFound},
	}

	mockService := &MockGameService{
		GetSessionFunc: func(ctx context.Context, sessionID string) (*service.SessionInfo, error) {
			return nil, service.ErrSessionNotFound
		},
	}
	server := setupTestServer(t, mockService)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			server.ServeHTTP(w, httptest.NewRequest("GET", "/ws"+tt.queryParams, nil))
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

// TestSolveAndSubmit plays level 1 through the REST API against the
// simulated ledger.
func TestSolveAndSubmit(t *testing.T) {
	server, _ := setupSimServer(t)

	w := do(server, "POST", "/api/sessions", map[string]int{"level_id": 1})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var created service.SessionInfo
	parseResponse(t, w, &created)
	base := "/api/sessions/" + created.ID

	w = do(server, "POST", base+"/submit", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 submitting an empty ledger, got %d", w.Code)
	}

	w = do(server, "POST", base+"/move", map[string]string{"direction": "up"})
	var move service.MoveResult
	parseResponse(t, w, &move)
	if !move.Success || !move.Pushed {
		t.Errorf("Expected the first up to push a box, got %+v", move)
	}

	w = do(server, "POST", base+"/bulk-move", map[string]any{"move_string": "ULURLLLDRRR", "reset": true})
	var bulk service.BulkMoveResult
	parseResponse(t, w, &bulk)
	if !bulk.Solved || bulk.MovesExecuted != 11 {
		t.Fatalf("Expected the solution to solve in 11 moves, got %+v", bulk)
	}

	w = do(server, "POST", base+"/submit", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var result service.SubmitResult
	parseResponse(t, w, &result)
	if result.Receipt == nil || result.Receipt.Digest == "" {
		t.Fatalf("Expected a receipt, got %+v", result)
	}
	if result.GameState.Status != service.StatusSolved {
		t.Errorf("Expected status %s, got %s", service.StatusSolved, result.GameState.Status)
	}

	if w := do(server, "POST", base+"/undo", nil); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 editing a solved session, got %d", w.Code)
	}

	w = do(server, "GET", "/api/chain", nil)
	var status service.ChainStatus
	parseResponse(t, w, &status)
	if status.BestScore == nil || *status.BestScore != 11 {
		t.Errorf("Expected best score 11, got %+v", status.BestScore)
	}
}

func TestSubmitAbortAfterRestart(t *testing.T) {
	server, sim := setupSimServer(t)

	w := do(server, "POST", "/api/sessions", map[string]int{"level_id": 1})
	var created service.SessionInfo
	parseResponse(t, w, &created)
	base := "/api/sessions/" + created.ID

	do(server, "POST", base+"/bulk-move", map[string]any{"move_string": "ULURLLLDRRR"})

	// a second start replaces the remote objects the session was bound to
	if _, err := sim.StartLevel(context.Background(), 1); err != nil {
		t.Fatalf("StartLevel failed: %v", err)
	}

	w = do(server, "POST", base+"/submit", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected status 409, got %d: %s", w.Code, w.Body.String())
	}
	var resp ErrorResponse
	parseResponse(t, w, &resp)
	if resp.Kind != "aborted" || resp.Code == 0 {
		t.Errorf("Expected an abort with a code, got %+v", resp)
	}

	w = do(server, "GET", base+"/state", nil)
	var state service.GameView
	parseResponse(t, w, &state)
	if state.Status != service.StatusActive || state.MoveCount != 11 {
		t.Errorf("Expected an active session keeping its 11 moves, got %s with %d", state.Status, state.MoveCount)
	}
	if state.LastError == "" {
		t.Error("Expected the abort to be recorded as last error")
	}
}
