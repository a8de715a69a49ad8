package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wricardo/sokoban-ledger/chain"
)

// ClockID is the shared system clock object
const ClockID = "0x6"

// Objects names the on-chain objects the game calls touch
type Objects struct {
	Package       string
	EntityPackage string
	Game          string
	World         string
	Grid          string
}

// Argument is one move-call argument as the relay expects it
type Argument struct {
	Kind  string `json:"kind"`
	Type  string `json:"type,omitempty"`
	Value any    `json:"value"`
}

// MoveCall describes a single programmable transaction for the relay to sign
type MoveCall struct {
	Package   string     `json:"package"`
	Module    string     `json:"module"`
	Function  string     `json:"function"`
	Arguments []Argument `json:"arguments"`
}

type relayResponse struct {
	Digest string `json:"digest"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

func objectArg(id string) Argument {
	return Argument{Kind: "object", Value: id}
}

// Relay submits game calls to an HTTP signing relay that holds the wallet.
// It implements the execution half of chain.Validator.
type Relay struct {
	url        string
	objects    Objects
	httpClient *http.Client
}

// NewRelay creates a relay client posting to <url>/execute
func NewRelay(url string, objects Objects, hc *http.Client) *Relay {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if objects.EntityPackage == "" {
		objects.EntityPackage = objects.Package
	}
	return &Relay{url: strings.TrimRight(url, "/"), objects: objects, httpClient: hc}
}

// StartLevelCall builds the start_level move call
func (r *Relay) StartLevelCall(levelID uint64) MoveCall {
	return MoveCall{
		Package:  r.objects.Package,
		Module:   "game",
		Function: "start_level",
		Arguments: []Argument{
			objectArg(r.objects.Game),
			objectArg(r.objects.World),
			objectArg(r.objects.Grid),
			{Kind: "pure", Type: "u64", Value: levelID},
			objectArg(ClockID),
		},
	}
}

// SubmitSolutionCall builds the submit_solution move call. Box entities are
// passed as one vector in binding order.
func (r *Relay) SubmitSolutionCall(req chain.SolutionRequest) MoveCall {
	boxes := make([]string, len(req.Boxes))
	for i, id := range req.Boxes {
		boxes[i] = string(id)
	}
	// []uint8 would marshal as base64
	directions := make([]int, len(req.Directions))
	for i, d := range req.Directions {
		directions[i] = int(d)
	}

	return MoveCall{
		Package:  r.objects.Package,
		Module:   "game",
		Function: "submit_solution",
		Arguments: []Argument{
			objectArg(r.objects.Game),
			objectArg(r.objects.World),
			objectArg(r.objects.Grid),
			objectArg(string(req.Player)),
			{Kind: "object_vec", Type: r.objects.EntityPackage + "::entity::Entity", Value: boxes},
			{Kind: "pure", Type: "vector<u8>", Value: directions},
		},
	}
}

// StartLevel signs and executes start_level
func (r *Relay) StartLevel(ctx context.Context, levelID uint64) (*chain.Transaction, error) {
	return r.Execute(ctx, r.StartLevelCall(levelID))
}

// SubmitSolution signs and executes submit_solution
func (r *Relay) SubmitSolution(ctx context.Context, req chain.SolutionRequest) (*chain.Transaction, error) {
	return r.Execute(ctx, r.SubmitSolutionCall(req))
}

// Execute posts a move call. A transaction the ledger rejected is returned
// with its failure text and a nil error.
func (r *Relay) Execute(ctx context.Context, call MoveCall) (*chain.Transaction, error) {
	body, err := json.Marshal(call)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay %s: %w", call.Function, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("relay %s: read response: %w", call.Function, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relay %s: HTTP %d: %s", call.Function, resp.StatusCode, bytes.TrimSpace(data))
	}

	var out relayResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("relay %s: decode response: %w", call.Function, err)
	}

	tx := &chain.Transaction{Digest: out.Digest}
	if out.Status != "success" {
		tx.Failure = out.Error
		if tx.Failure == "" {
			tx.Failure = "Transaction failed"
		}
	}
	return tx, nil
}

// Backend joins a node client and a relay into one chain backend
type Backend struct {
	*Client
	*Relay
}

// NewBackend creates a backend from a node endpoint and a relay URL
func NewBackend(rpcURL, relayURL string, objects Objects, pollInterval, timeout time.Duration) *Backend {
	hc := &http.Client{Timeout: timeout}
	return &Backend{
		Client: NewClient(rpcURL, chain.ObjectID(objects.Game), WithHTTPClient(hc), WithPollInterval(pollInterval)),
		Relay:  NewRelay(relayURL, objects, nil),
	}
}

var (
	_ chain.PositionLookup = (*Backend)(nil)
	_ chain.Validator      = (*Backend)(nil)
	_ chain.SessionReader  = (*Backend)(nil)
)
