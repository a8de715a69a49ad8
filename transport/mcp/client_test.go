package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/wricardo/sokoban-ledger/game/engine"
	"github.com/wricardo/sokoban-ledger/game/service"
	"github.com/wricardo/sokoban-ledger/game/submit"
)

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatal("Expected result content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("Expected text content in result")
	}
	return text.Text
}

func callTool(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func sampleView() *service.GameView {
	return &service.GameView{
		SessionID:     "ab12",
		LevelID:       1,
		LevelName:     "First Steps",
		Width:         6,
		Height:        6,
		Board:         []string{"------", "-####-", "----.-", "--$$.-", "---@--", "------"},
		Player:        engine.Position{X: 3, Y: 4},
		Goals:         []engine.Position{{X: 4, Y: 2}, {X: 4, Y: 3}},
		MaxMoves:      12,
		Remaining:     12,
		PossibleMoves: []string{"up", "right", "down", "left"},
		Status:        service.StatusActive,
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8080/")

	if client.baseURL != "http://localhost:8080" {
		t.Errorf("Expected trailing slash trimmed, got %s", client.baseURL)
	}
	if client.httpClient == nil {
		t.Error("Expected HTTP client to be initialized")
	}
	if client.GetMCPServer() == nil {
		t.Error("Expected MCP server to be initialized")
	}
}

func TestClient_apiCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sampleView())
	}))
	defer server.Close()

	client := NewClient(server.URL)

	var state service.GameView
	if err := client.apiCall(context.Background(), "GET", "/api/sessions/ab12/state", nil, &state); err != nil {
		t.Fatalf("apiCall failed: %v", err)
	}
	if state.LevelName != "First Steps" {
		t.Errorf("Expected level name First Steps, got %s", state.LevelName)
	}
}

func TestClient_apiCall_Error(t *testing.T) {
	client := NewClient("http://invalid-url-that-does-not-exist:9999")

	if err := client.apiCall(context.Background(), "GET", "/api/health", nil, nil); err == nil {
		t.Error("Expected error for invalid URL")
	}
}

func TestClient_apiCall_HTTPError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind string
		wantCode int
		wantText string
	}{
		{
			name:     "Plain failure",
			status:   http.StatusInternalServerError,
			body:     "Internal Server Error",
			wantText: "API error: 500",
		},
		{
			name:     "Ledger abort",
			status:   http.StatusConflict,
			body:     `{"error":"Blocked by wall","kind":"aborted","code":104}`,
			wantKind: "aborted",
			wantCode: 104,
			wantText: "Blocked by wall (abort code 104)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			err := NewClient(server.URL).apiCall(context.Background(), "POST", "/api/sessions/x/submit", nil, nil)

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Expected *APIError, got %v", err)
			}
			if apiErr.Status != tt.status || apiErr.Kind != tt.wantKind || apiErr.Code != tt.wantCode {
				t.Errorf("Unexpected error fields: %+v", apiErr)
			}
			if err.Error() != tt.wantText {
				t.Errorf("Expected %q, got %q", tt.wantText, err.Error())
			}
		})
	}
}

func TestClient_createSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/api/sessions" {
			t.Errorf("Expected POST /api/sessions, got %s %s", r.Method, r.URL.Path)
		}

		var body map[string]int
		json.NewDecoder(r.Body).Decode(&body)
		if body["level_id"] != 2 {
			t.Errorf("Expected level_id 2, got %v", body)
		}

		view := sampleView()
		json.NewEncoder(w).Encode(service.SessionInfo{
			ID:          "test-session-123",
			LevelID:     2,
			LevelName:   "Open Field",
			StartDigest: "dg-1",
			GameState:   view,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	// JSON numbers arrive as float64
	result, err := client.handleCreateSession(context.Background(), callTool("create_session", map[string]any{"level_id": float64(2)}))
	if err != nil {
		t.Fatalf("createSession failed: %v", err)
	}

	text := resultText(t, result)
	for _, want := range []string{"test-session-123", "Open Field", "dg-1", "--$$.-"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in result, got: %s", want, text)
		}
	}
}

func TestClient_bulkMove(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sessions/ab12/bulk-move" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}

		var body struct {
			Moves      []string `json:"moves"`
			MoveString string   `json:"move_string"`
			Reset      bool     `json:"reset"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if len(body.Moves) != 4 || !body.Reset {
			t.Errorf("Unexpected request body: %+v", body)
		}

		json.NewEncoder(w).Encode(service.BulkMoveResult{
			RequestedMoves: 4,
			MovesExecuted:  3,
			StoppedOnMove:  4,
			StopReason:     "blocked_wall",
			GameState:      sampleView(),
		})
	}))
	defer server.Close()

	args := map[string]any{
		"session_id": "ab12",
		"moves":      []any{"up", "left", "up", "up"},
		"reset":      true,
	}
	result, err := NewClient(server.URL).handleBulkMove(context.Background(), callTool("bulk_move", args))
	if err != nil {
		t.Fatalf("bulk_move failed: %v", err)
	}

	text := resultText(t, result)
	if !strings.Contains(text, "Executed 3 of 4 moves") || !strings.Contains(text, "Stopped on move 4: blocked_wall") {
		t.Errorf("Unexpected bulk move text: %s", text)
	}
}

func TestClient_submitAbort(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"Not the player","kind":"aborted","code":101}`))
	}))
	defer server.Close()

	result, err := NewClient(server.URL).handleSubmit(context.Background(), callTool("submit_solution", map[string]any{"session_id": "ab12"}))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !result.IsError {
		t.Error("Expected a tool error")
	}

	text := resultText(t, result)
	if !strings.Contains(text, "abort code 101") || !strings.Contains(text, "still open") {
		t.Errorf("Unexpected submit error text: %s", text)
	}
}

func TestClient_missingSessionID(t *testing.T) {
	client := NewClient("http://localhost:8080")

	result, err := client.handleGameState(context.Background(), callTool("game_state", map[string]any{}))
	if err != nil {
		t.Fatalf("game_state failed: %v", err)
	}
	if !result.IsError {
		t.Error("Expected a tool error without session_id")
	}
}

func TestClient_describeCell(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(sampleView())
	}))
	defer server.Close()
	client := NewClient(server.URL)

	tests := []struct {
		x, y    float64
		want    string
		isError bool
	}{
		{2, 3, "box (pushable)", false},
		{4, 2, "goal (empty)", false},
		{1, 1, "wall", false},
		{3, 4, "player", false},
		{6, 0, "out of bounds", true},
	}

	for _, tt := range tests {
		args := map[string]any{"session_id": "ab12", "x": tt.x, "y": tt.y}
		result, err := client.handleDescribeCell(context.Background(), callTool("describe_cell", args))
		if err != nil {
			t.Fatalf("describe_cell failed: %v", err)
		}
		if result.IsError != tt.isError {
			t.Errorf("(%v,%v): expected error %v, got %v", tt.x, tt.y, tt.isError, result.IsError)
		}
		if text := resultText(t, result); !strings.Contains(text, tt.want) {
			t.Errorf("(%v,%v): expected %q in %q", tt.x, tt.y, tt.want, text)
		}
	}
}

func TestFormatGameState(t *testing.T) {
	view := sampleView()
	text := formatGameState(view)

	expected := []string{
		"Level 1: First Steps",
		" 3 --$$.-",
		"Player: (3, 4)",
		"Boxes on goals: 0/2",
		"Moves: 0/12 (12 left)",
		"Status: active",
	}
	for _, want := range expected {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in output, got:\n%s", want, text)
		}
	}
	if strings.Contains(text, "Solved") {
		t.Error("Unsolved board should not mention solving")
	}
}

func TestFormatGameState_Solved(t *testing.T) {
	view := sampleView()
	view.Solved = true
	if !strings.Contains(formatGameState(view), "Call submit_solution") {
		t.Error("Expected a submit hint for a locally solved board")
	}

	view.Status = service.StatusSolved
	view.Receipt = &submit.Receipt{Digest: "d"}
	if !strings.Contains(formatGameState(view), "SOLVED ON LEDGER") {
		t.Error("Expected the ledger banner for a submitted board")
	}
}

func TestFormatMoveResult(t *testing.T) {
	pushed := formatMoveResult(&service.MoveResult{Success: true, Move: "up", Pushed: true, GameState: sampleView()})
	if !strings.Contains(pushed, "Moved up and pushed a box") {
		t.Errorf("Unexpected output: %s", pushed)
	}

	refused := formatMoveResult(&service.MoveResult{Move: "up", StopReason: "blocked_wall"})
	if !strings.Contains(refused, "Move up refused: blocked_wall") {
		t.Errorf("Unexpected output: %s", refused)
	}
}

func TestClient_handleGameInstructions(t *testing.T) {
	client := NewClient("http://localhost:8080")

	result, err := client.handleGameInstructions(context.Background(), callTool("game_instructions", map[string]any{}))
	if err != nil {
		t.Fatalf("handleGameInstructions failed: %v", err)
	}

	text := resultText(t, result)
	for _, content := range []string{"OBJECTIVE:", "BOARD LEGEND:", "MOVEMENT:", "SUBMITTING:", "up to 64 moves"} {
		if !strings.Contains(text, content) {
			t.Errorf("Expected '%s' in instructions", content)
		}
	}
}
