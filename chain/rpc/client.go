package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wricardo/sokoban-ledger/chain"
)

// Error is a JSON-RPC error object
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

// Client reads ledger objects from a full node over JSON-RPC. It implements
// chain.PositionLookup, chain.SessionReader and the finality half of
// chain.Validator.
type Client struct {
	endpoint     string
	gameID       chain.ObjectID
	httpClient   *http.Client
	pollInterval time.Duration
	nextID       atomic.Uint64
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPollInterval sets how often WaitForTransaction polls
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// NewClient creates a client for the node at endpoint. gameID is the game
// object read by GameSession.
func NewClient(endpoint string, gameID chain.ObjectID, opts ...Option) *Client {
	c := &Client{
		endpoint:     endpoint,
		gameID:       gameID,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		pollInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pollInterval <= 0 {
		c.pollInterval = 500 * time.Millisecond
	}
	return c
}

// Call performs one JSON-RPC request and decodes its result into out
func (c *Client) Call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: HTTP %d: %s", method, resp.StatusCode, bytes.TrimSpace(data))
	}

	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}

type objectResponse struct {
	Data *struct {
		ObjectID string `json:"objectId"`
		Content  *struct {
			DataType string          `json:"dataType"`
			Fields   json.RawMessage `json:"fields"`
		} `json:"content"`
	} `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

// getObjectFields reads an object's Move fields into out
func (c *Client) getObjectFields(ctx context.Context, id string, out any) error {
	var obj objectResponse
	err := c.Call(ctx, "sui_getObject", []any{id, map[string]bool{"showContent": true}}, &obj)
	if err != nil {
		return err
	}
	if obj.Data == nil || obj.Data.Content == nil || obj.Data.Content.DataType != "moveObject" {
		return fmt.Errorf("object %s: %w", id, chain.ErrNotFound)
	}
	return json.Unmarshal(obj.Data.Content.Fields, out)
}

// GridTable reads the UID of the grid's cells table
func (c *Client) GridTable(ctx context.Context, gridID chain.ObjectID) (chain.TableHandle, error) {
	var fields struct {
		Cells struct {
			Fields struct {
				ID struct {
					ID string `json:"id"`
				} `json:"id"`
			} `json:"fields"`
		} `json:"cells"`
	}
	if err := c.getObjectFields(ctx, string(gridID), &fields); err != nil {
		return "", err
	}
	if fields.Cells.Fields.ID.ID == "" {
		return "", fmt.Errorf("could not read grid cells table id of %s", gridID)
	}
	return chain.TableHandle(fields.Cells.Fields.ID.ID), nil
}

// Lookup reads the table entry for a position index. A missing dynamic field
// is an empty cell, not an error.
func (c *Client) Lookup(ctx context.Context, table chain.TableHandle, index uint64) (chain.ObjectID, error) {
	name := map[string]string{"type": "u64", "value": strconv.FormatUint(index, 10)}

	var obj objectResponse
	if err := c.Call(ctx, "suix_getDynamicFieldObject", []any{string(table), name}, &obj); err != nil {
		return "", err
	}
	if obj.Error != nil || obj.Data == nil || obj.Data.Content == nil {
		return "", nil
	}

	var fields struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(obj.Data.Content.Fields, &fields); err != nil {
		return "", fmt.Errorf("decode table entry %d: %w", index, err)
	}
	return chain.ObjectID(fields.Value), nil
}

// WaitForTransaction polls until the node knows the transaction
func (c *Client) WaitForTransaction(ctx context.Context, digest string) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		var block struct {
			Digest  string          `json:"digest"`
			Effects json.RawMessage `json:"effects"`
		}
		err := c.Call(ctx, "sui_getTransactionBlock", []any{digest, map[string]bool{"showEffects": true}}, &block)
		if err == nil && block.Digest != "" {
			log.Debug().Str("digest", digest).Int("attempts", attempt).Msg("transaction final")
			return nil
		}
		// The node answers with an RPC error until the transaction is indexed
		var rpcErr *Error
		if err != nil && !errors.As(err, &rpcErr) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// GameSession reads the game object
func (c *Client) GameSession(ctx context.Context) (*chain.GameSession, error) {
	var fields struct {
		State     u64    `json:"state"`
		LevelID   u64    `json:"level_id"`
		MaxMoves  u64    `json:"max_moves"`
		GoalXs    []u64  `json:"goal_xs"`
		GoalYs    []u64  `json:"goal_ys"`
		BestScore *u64   `json:"best_score"`
		Player    string `json:"player"`
	}
	if err := c.getObjectFields(ctx, string(c.gameID), &fields); err != nil {
		return nil, err
	}

	session := &chain.GameSession{
		State:    chain.GameState(fields.State),
		LevelID:  uint64(fields.LevelID),
		MaxMoves: uint64(fields.MaxMoves),
		Player:   fields.Player,
	}
	for _, x := range fields.GoalXs {
		session.GoalXs = append(session.GoalXs, uint64(x))
	}
	for _, y := range fields.GoalYs {
		session.GoalYs = append(session.GoalYs, uint64(y))
	}
	if fields.BestScore != nil {
		best := uint64(*fields.BestScore)
		session.BestScore = &best
	}
	return session, nil
}

// u64 decodes Move integers, which the node renders as strings
type u64 uint64

func (v *u64) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	if s == "null" || s == "" {
		*v = 0
		return nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid u64 %s", b)
	}
	*v = u64(n)
	return nil
}
