package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/sokoban-ledger/game/engine"
	"github.com/wricardo/sokoban-ledger/game/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// APIError is a failed REST call. Kind and Code mirror the error body.
type APIError struct {
	Status  int
	Message string
	Kind    string
	Code    int
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s (abort code %d)", e.Message, e.Code)
	}
	return e.Message
}

// NewClient creates a new MCP client that calls the REST API. Submissions
// wait for finality, so the timeout is longer than a plain read needs.
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Sokoban Ledger",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Sokoban Ledger - MCP Interface

This is a thin client that proxies all requests to the REST API server.

Moves are simulated locally and only reach the ledger when you call
submit_solution. Solve the level first, then submit once.

AVAILABLE TOOLS:
- create_session: Start a level attempt (binds the level's on-ledger objects)
- game_state: Board, move budget and solved flag
- move / bulk_move: Record moves locally
- undo / reset_moves: Edit the recorded moves
- submit_solution: Send the recorded moves to the ledger
- list_sessions / get_session: Inspect sessions
- list_levels: Level catalog
- chain_status: What the ledger currently holds
- describe_cell: Inspect a single cell
- game_instructions: Rules and board legend`),
	)

	c.registerTools()
}

func sessionProperty() map[string]any {
	return map[string]any{
		"type":        "string",
		"description": "Session ID",
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Session management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Start a new level attempt. Starting a level resets the ledger's board, so older sessions can no longer submit.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"level_id": map[string]any{
					"type":        "integer",
					"description": "Level to play (optional, defaults to the first level)",
				},
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all game sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details of a specific session",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleGetSession)

	// Local play
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_state",
		Description: "Get the current board, recorded moves and remaining budget",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleGameState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "move",
		Description: "Record one move. Walking into a box pushes it.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionProperty(),
				"direction": map[string]any{
					"type":        "string",
					"enum":        []string{"up", "down", "left", "right"},
					"description": "Direction to move",
				},
				"intent": map[string]any{
					"type":        "string",
					"description": "Brief explanation of the intent behind this move",
				},
			},
			Required: []string{"session_id", "direction"},
		},
	}, c.handleMove)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "bulk_move",
		Description: fmt.Sprintf("Record up to %d moves in sequence. Stops at the first refused move.", engine.MaxBulkMoves),
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionProperty(),
				"moves": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "string",
						"enum": []string{"up", "down", "left", "right"},
					},
					"description": "Array of moves",
				},
				"move_string": map[string]any{
					"type":        "string",
					"description": "Compact alternative to moves, e.g. \"ULURR\"",
				},
				"intent": map[string]any{
					"type":        "string",
					"description": "Brief explanation of the intent behind this sequence of moves",
				},
				"reset": map[string]any{
					"type":        "boolean",
					"description": "Clear recorded moves first",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleBulkMove)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "undo",
		Description: "Remove the last recorded move",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleUndo)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "reset_moves",
		Description: "Clear all recorded moves and return to the starting layout",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleReset)

	// Ledger
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "submit_solution",
		Description: "Submit the recorded moves to the ledger. Only a solved board can be submitted.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleSubmit)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "chain_status",
		Description: "Show the game object as the ledger reports it",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, c.handleChainStatus)

	// Levels and help
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_levels",
		Description: "List available levels",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, c.handleListLevels)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_instructions",
		Description: "Get the rules and the board legend",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, c.handleGameInstructions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "describe_cell",
		Description: "Describe one cell of the board (0-based x column, y row)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionProperty(),
				"x":          map[string]any{"type": "integer", "description": "Column (0-based)"},
				"y":          map[string]any{"type": "integer", "description": "Row (0-based)"},
			},
			Required: []string{"session_id", "x", "y"},
		},
	}, c.handleDescribeCell)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
			Code  int    `json:"code"`
		}
		json.NewDecoder(resp.Body).Decode(&errResp)
		apiErr := &APIError{Status: resp.StatusCode, Message: errResp.Error, Kind: errResp.Kind, Code: errResp.Code}
		if apiErr.Message == "" {
			apiErr.Message = fmt.Sprintf("API error: %d", resp.StatusCode)
		}
		return apiErr
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func arguments(request mcp.CallToolRequest) map[string]any {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		args = map[string]any{}
	}
	return args
}

func intArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

func stringsArg(args map[string]any, key string) []string {
	raw, _ := args[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func sessionPath(args map[string]any, suffix string) (string, error) {
	id, _ := args["session_id"].(string)
	if id == "" {
		return "", fmt.Errorf("session_id is required")
	}
	return "/api/sessions/" + id + suffix, nil
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	body := map[string]int{}
	if id, ok := intArg(args, "level_id"); ok {
		body["level_id"] = id
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created session: %s\nLevel: %d (%s)\n", session.ID, session.LevelID, session.LevelName)
	if session.StartDigest != "" {
		result += fmt.Sprintf("Level started on ledger: %s\n", session.StartDigest)
	}
	if session.GameState != nil {
		result += "\n" + formatGameState(session.GameState)
	}
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int                   `json:"count"`
		Sessions []service.SessionInfo `json:"sessions"`
	}
	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		moves := 0
		if s.GameState != nil {
			moves = s.GameState.MoveCount
		}
		fmt.Fprintf(&b, "- %s (Level %d %s, %s, %d moves, created %s)\n",
			s.ID, s.LevelID, s.LevelName, s.Status, moves, s.CreatedAt.Format("15:04:05"))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request), "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "GET", path, nil, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatSessionInfo(&session)), nil
}

func (c *Client) handleGameState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request), "/state")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var state service.GameView
	if err := c.apiCall(ctx, "GET", path, nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatGameState(&state)), nil
}

func (c *Client) handleMove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	path, err := sessionPath(args, "/move")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	direction, _ := args["direction"].(string)

	var result service.MoveResult
	if err := c.apiCall(ctx, "POST", path, map[string]string{"direction": direction}, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatMoveResult(&result)), nil
}

func (c *Client) handleBulkMove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	path, err := sessionPath(args, "/bulk-move")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	moveString, _ := args["move_string"].(string)
	reset, _ := args["reset"].(bool)

	body := map[string]any{
		"moves":       stringsArg(args, "moves"),
		"move_string": moveString,
		"reset":       reset,
	}

	var result service.BulkMoveResult
	if err := c.apiCall(ctx, "POST", path, body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatBulkMoveResult(&result)), nil
}

func (c *Client) handleUndo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request), "/undo")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var state service.GameView
	if err := c.apiCall(ctx, "POST", path, nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Last move undone.\n\n" + formatGameState(&state)), nil
}

func (c *Client) handleReset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request), "/reset")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var response struct {
		Message string            `json:"message"`
		State   *service.GameView `json:"state"`
	}
	if err := c.apiCall(ctx, "POST", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := response.Message + "\n"
	if response.State != nil {
		result += "\n" + formatGameState(response.State)
	}
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleSubmit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request), "/submit")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var result service.SubmitResult
	if err := c.apiCall(ctx, "POST", path, nil, &result); err != nil {
		return mcp.NewToolResultError("Submission failed: " + describeSubmitError(err)), nil
	}
	return mcp.NewToolResultText(formatSubmitResult(&result)), nil
}

func (c *Client) handleChainStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var status service.ChainStatus
	if err := c.apiCall(ctx, "GET", "/api/chain", nil, &status); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Ledger game: %s\nLevel: %d\nMove budget: %d\nGoals: %d\n",
		status.State, status.LevelID, status.MaxMoves, status.Goals)
	if status.BestScore != nil {
		result += fmt.Sprintf("Best score: %d moves\n", *status.BestScore)
	}
	if status.Player != "" {
		result += fmt.Sprintf("Player object: %s\n", status.Player)
	}
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListLevels(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var levels []service.LevelInfo
	if err := c.apiCall(ctx, "GET", "/api/levels", nil, &levels); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString("Available Levels:\n\n")
	for _, l := range levels {
		fmt.Fprintf(&b, "%d. %s (%dx%d, %d boxes, %d moves max", l.ID, l.Name, l.Width, l.Height, l.Boxes, l.MaxMoves)
		if l.Difficulty != "" {
			fmt.Fprintf(&b, ", %s", l.Difficulty)
		}
		b.WriteString(")\n")
		if l.Description != "" {
			fmt.Fprintf(&b, "   %s\n", l.Description)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGameInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instructions := fmt.Sprintf(`Sokoban Ledger - Instructions

OBJECTIVE:
Push every box onto a goal cell, then submit the moves to the ledger.

BOARD LEGEND:
  #  wall
  .  goal
  $  box
  *  box on a goal
  @  player
  +  player on a goal
  -  floor

Row 0 is the top of the board; "up" decreases y.

MOVEMENT:
- Each move steps one cell up, down, left or right.
- Walking into a box pushes it one cell, if the cell beyond is free floor or a goal.
- A box cannot be pushed into a wall, another box, or off the board.
- Boxes cannot be pulled.
- Each level has a move budget; refused moves do not count against it.

LOCAL PLAY:
- move and bulk_move record moves locally; nothing is sent to the ledger.
- bulk_move accepts up to %d moves and stops at the first refused move.
- undo removes the last move; reset_moves clears them all.

SUBMITTING:
- submit_solution sends every recorded move in one transaction.
- The board must be solved before submitting.
- The ledger replays the moves itself. If it disagrees it aborts with a code:
    101 not the player of this game (the level was restarted)
    103 too many moves
    104 blocked by wall
    105 out of bounds
    106 blocked by box
    107 not solved
- After an abort the session stays open; fix the moves and submit again.
- Starting another session restarts the level on the ledger, so submit
  before creating a new session.

Good luck!`, engine.MaxBulkMoves)

	return mcp.NewToolResultText(instructions), nil
}

func (c *Client) handleDescribeCell(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	path, err := sessionPath(args, "/state")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	x, okX := intArg(args, "x")
	y, okY := intArg(args, "y")
	if !okX || !okY {
		return mcp.NewToolResultError("x and y are required integers"), nil
	}

	var state service.GameView
	if err := c.apiCall(ctx, "GET", path, nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if y < 0 || y >= len(state.Board) || x < 0 || x >= len([]rune(state.Board[y])) {
		return mcp.NewToolResultError(fmt.Sprintf("Coordinates (%d, %d) are out of bounds. Board is %dx%d",
			x, y, state.Width, state.Height)), nil
	}

	char := []rune(state.Board[y])[x]
	return mcp.NewToolResultText(fmt.Sprintf("Cell (%d, %d): '%c' %s", x, y, char, describeChar(char))), nil
}

func describeChar(char rune) string {
	switch char {
	case engine.CharWall:
		return "wall (impassable)"
	case engine.CharGoal:
		return "goal (empty)"
	case engine.CharBox:
		return "box (pushable)"
	case engine.CharBoxOnGoal:
		return "box on goal"
	case engine.CharPlayer:
		return "player"
	case engine.CharPlayerOnGoal:
		return "player standing on a goal"
	}
	return "floor"
}

func describeSubmitError(err error) string {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err.Error()
	}
	switch apiErr.Kind {
	case "precondition":
		return apiErr.Message + ". Solve the board locally before submitting."
	case "aborted":
		return apiErr.Error() + ". The ledger rejected the moves; the session is still open."
	case "in_flight":
		return "a submission for this session is already in progress"
	case "outcome_unknown":
		return apiErr.Message + ". Check chain_status before submitting again."
	}
	return apiErr.Error()
}

func formatSessionInfo(session *service.SessionInfo) string {
	result := fmt.Sprintf("Session: %s\nLevel: %d (%s)\nStatus: %s\nCreated: %s\nLast accessed: %s\n",
		session.ID, session.LevelID, session.LevelName, session.Status,
		session.CreatedAt.Format(time.RFC3339), session.LastAccessedAt.Format(time.RFC3339))
	if session.GameState != nil {
		result += "\n" + formatGameState(session.GameState)
	}
	return result
}

func formatGameState(state *service.GameView) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Level %d: %s\n", state.LevelID, state.LevelName)
	for y, row := range state.Board {
		fmt.Fprintf(&b, "%2d %s\n", y, row)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Player: (%d, %d)\n", state.Player.X, state.Player.Y)
	fmt.Fprintf(&b, "Boxes on goals: %d/%d\n", state.BoxesOnGoals, len(state.Goals))
	fmt.Fprintf(&b, "Moves: %d/%d (%d left)", state.MoveCount, state.MaxMoves, state.Remaining)
	if state.Moves != "" {
		fmt.Fprintf(&b, " %s", state.Moves)
	}
	b.WriteString("\n")
	if len(state.PossibleMoves) > 0 {
		fmt.Fprintf(&b, "Possible moves: %s\n", strings.Join(state.PossibleMoves, ", "))
	}
	fmt.Fprintf(&b, "Status: %s\n", state.Status)

	switch {
	case state.Status == service.StatusSolved:
		b.WriteString("\nSOLVED ON LEDGER\n")
	case state.Solved:
		b.WriteString("\nSolved locally. Call submit_solution to record it on the ledger.\n")
	}
	if state.LastError != "" {
		fmt.Fprintf(&b, "Last submission error: %s\n", state.LastError)
	}
	return b.String()
}

func formatMoveResult(result *service.MoveResult) string {
	var b strings.Builder
	if result.Success {
		fmt.Fprintf(&b, "Moved %s", result.Move)
		if result.Pushed {
			b.WriteString(" and pushed a box")
		}
		b.WriteString("\n")
	} else {
		fmt.Fprintf(&b, "Move %s refused: %s\n", result.Move, result.StopReason)
	}
	if result.Message != "" {
		fmt.Fprintf(&b, "%s\n", result.Message)
	}
	if result.GameState != nil {
		b.WriteString("\n" + formatGameState(result.GameState))
	}
	return b.String()
}

func formatBulkMoveResult(result *service.BulkMoveResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Executed %d of %d moves\n", result.MovesExecuted, result.RequestedMoves)
	if result.Truncated {
		fmt.Fprintf(&b, "Request truncated to %d moves\n", result.Limit)
	}
	if result.StoppedOnMove > 0 {
		fmt.Fprintf(&b, "Stopped on move %d: %s\n", result.StoppedOnMove, result.StopReason)
	}
	if result.Message != "" {
		fmt.Fprintf(&b, "%s\n", result.Message)
	}
	if result.GameState != nil {
		b.WriteString("\n" + formatGameState(result.GameState))
	}
	return b.String()
}

func formatSubmitResult(result *service.SubmitResult) string {
	var b strings.Builder
	b.WriteString("Solution accepted by the ledger\n")
	if r := result.Receipt; r != nil {
		fmt.Fprintf(&b, "Transaction: %s\nMoves: %d\nFinalized: %s\n", r.Digest, r.MoveCount, r.FinalizedAt.Format(time.RFC3339))
	}
	return b.String()
}
