// Package ledgertest provides a scripted in-memory ledger.Client for tests.
package ledgertest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"eventsync/internal/ledger"
)

// Client replays scripted statuses. For each hash the statuses are consumed
// in order and the last one repeats forever.
type Client struct {
	mu sync.Mutex

	Statuses map[ledger.TxHash][]ledger.Status
	PollErr  map[ledger.TxHash][]error

	// ReadResults are returned by ReadState in order, the last one repeating.
	ReadResults []json.RawMessage
	ReadErr     error

	SubmitErr  error
	SubmitHash ledger.TxHash
	AppealErr  error
	AppealHash ledger.TxHash

	// SubmitHook runs inside Submit before returning; tests use it to block.
	SubmitHook func(ctx context.Context)

	polls     map[ledger.TxHash]int
	reads     int
	submits   int
	appeals   int
	mutations []ledger.Mutation
}

func New() *Client {
	return &Client{
		Statuses:   map[ledger.TxHash][]ledger.Status{},
		PollErr:    map[ledger.TxHash][]error{},
		SubmitHash: Hash("submit"),
		AppealHash: Hash("appeal"),
		polls:      map[ledger.TxHash]int{},
	}
}

// Hash derives a deterministic tx hash from a label.
func Hash(label string) ledger.TxHash {
	return common.BytesToHash(crypto.Keccak256([]byte(label)))
}

func (c *Client) Script(hash ledger.TxHash, statuses ...ledger.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statuses[hash] = statuses
}

func (c *Client) ReadState(ctx context.Context, address common.Address, q ledger.Query) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	if c.ReadErr != nil {
		return nil, c.ReadErr
	}
	if len(c.ReadResults) == 0 {
		return json.RawMessage(`{"events":[]}`), nil
	}
	idx := c.reads - 1
	if idx >= len(c.ReadResults) {
		idx = len(c.ReadResults) - 1
	}
	return c.ReadResults[idx], nil
}

func (c *Client) Submit(ctx context.Context, address common.Address, m ledger.Mutation) (ledger.TxHash, error) {
	c.mu.Lock()
	c.submits++
	c.mutations = append(c.mutations, m)
	hook := c.SubmitHook
	err := c.SubmitErr
	hash := c.SubmitHash
	c.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
	if err != nil {
		return ledger.TxHash{}, err
	}
	return hash, nil
}

func (c *Client) PollStatus(ctx context.Context, hash ledger.TxHash) (ledger.TxStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.polls[hash]
	c.polls[hash] = n + 1
	if errs := c.PollErr[hash]; n < len(errs) && errs[n] != nil {
		return ledger.TxStatus{Hash: hash}, errs[n]
	}
	script := c.Statuses[hash]
	if len(script) == 0 {
		return ledger.TxStatus{Hash: hash, Status: ledger.StatusPending}, nil
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	return ledger.TxStatus{Hash: hash, Status: script[n]}, nil
}

func (c *Client) Appeal(ctx context.Context, hash ledger.TxHash) (ledger.TxHash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appeals++
	if c.AppealErr != nil {
		return ledger.TxHash{}, c.AppealErr
	}
	return c.AppealHash, nil
}

func (c *Client) Polls(hash ledger.TxHash) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.polls[hash]
}

func (c *Client) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

func (c *Client) Submits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submits
}

func (c *Client) Appeals() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appeals
}

func (c *Client) Mutations() []ledger.Mutation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ledger.Mutation(nil), c.mutations...)
}

// Session wraps the fake in a ledger.Session.
func (c *Client) Session() *ledger.Session {
	return ledger.NewSession(func(context.Context) (ledger.Client, error) { return c, nil }, nil)
}

// ErrTransport is a ready-made transport failure.
var ErrTransport = &ledger.TransportError{Op: "call", Err: errors.New("connection refused")}
