package genlayer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"eventsync/internal/ledger"
)

const DefaultRPCURL = "https://studio.genlayer.com/api"

type Config struct {
	RPCURL         string
	ChainID        int64
	PrivateKey     string
	RequestsPerSec float64
	Burst          int
}

// Client speaks JSON-RPC to a GenLayer node and implements ledger.Client.
type Client struct {
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
	signer     *signer
	chainID    int64
	logger     *zap.Logger
}

var _ ledger.Client = (*Client)(nil)

func NewClient(httpClient *http.Client, cfg Config, logger *zap.Logger) (*Client, error) {
	s, err := newSigner(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	url := strings.TrimRight(strings.TrimSpace(cfg.RPCURL), "/")
	if url == "" {
		url = DefaultRPCURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:        url,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		signer:     s,
		chainID:    cfg.ChainID,
		logger:     logger,
	}, nil
}

// Dialer returns a ledger.DialFunc that builds a client and verifies the chain.
func Dialer(httpClient *http.Client, cfg Config, logger *zap.Logger) ledger.DialFunc {
	return func(ctx context.Context) (ledger.Client, error) {
		c, err := NewClient(httpClient, cfg, logger)
		if err != nil {
			return nil, err
		}
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
}

func (c *Client) Address() common.Address {
	return c.signer.from
}

// Connect checks that the node answers and serves the configured chain.
func (c *Client) Connect(ctx context.Context) error {
	var raw string
	if err := c.call(ctx, "eth_chainId", nil, &raw); err != nil {
		return err
	}
	id, err := hexutil.DecodeUint64(raw)
	if err != nil {
		return &ledger.MalformedResponseError{What: "eth_chainId result", Err: err}
	}
	if c.chainID != 0 && int64(id) != c.chainID {
		return fmt.Errorf("chain id mismatch: node=%d configured=%d", id, c.chainID)
	}
	if c.chainID == 0 {
		c.chainID = int64(id)
	}
	c.logger.Info("genlayer node connected",
		zap.Int64("chain_id", c.chainID),
		zap.String("account", c.signer.from.Hex()),
	)
	return nil
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) ReadState(ctx context.Context, address common.Address, q ledger.Query) (json.RawMessage, error) {
	params := callParams{
		From: c.signer.from.Hex(),
		To:   address.Hex(),
		Data: callData{Method: q.Function, Args: nonNilArgs(q.Args)},
	}
	var out json.RawMessage
	if err := c.call(ctx, "gen_call", []any{params, "latest"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Submit(ctx context.Context, address common.Address, m ledger.Mutation) (ledger.TxHash, error) {
	var nonceHex string
	if err := c.call(ctx, "eth_getTransactionCount", []any{c.signer.from.Hex(), "pending"}, &nonceHex); err != nil {
		return ledger.TxHash{}, err
	}
	nonce, err := hexutil.DecodeUint64(nonceHex)
	if err != nil {
		return ledger.TxHash{}, &ledger.MalformedResponseError{What: "eth_getTransactionCount result", Err: err}
	}

	payload := txPayload{
		From:    c.signer.from.Hex(),
		To:      address.Hex(),
		Data:    callData{Method: m.Function, Args: nonNilArgs(m.Args)},
		Value:   m.Value.String(),
		Nonce:   nonce,
		ChainID: c.chainID,
	}
	sig, err := c.signer.sign(payload)
	if err != nil {
		return ledger.TxHash{}, fmt.Errorf("sign transaction: %w", err)
	}

	var hashHex string
	if err := c.call(ctx, "gen_sendTransaction", []any{signedTx{txPayload: payload, Signature: sig}}, &hashHex); err != nil {
		return ledger.TxHash{}, err
	}
	hash, err := parseHash(hashHex)
	if err != nil {
		return ledger.TxHash{}, err
	}
	c.logger.Info("transaction submitted",
		zap.String("hash", hash.Hex()),
		zap.String("method", m.Function),
		zap.Uint64("nonce", nonce),
	)
	return hash, nil
}

func (c *Client) PollStatus(ctx context.Context, hash ledger.TxHash) (ledger.TxStatus, error) {
	var res txStatusResult
	if err := c.call(ctx, "gen_getTransactionStatus", []any{hash.Hex()}, &res); err != nil {
		return ledger.TxStatus{Hash: hash}, err
	}
	if strings.TrimSpace(res.Status) == "" {
		return ledger.TxStatus{Hash: hash}, &ledger.MalformedResponseError{What: "transaction status", Err: fmt.Errorf("empty status")}
	}
	return ledger.TxStatus{Hash: hash, Status: ledger.ParseStatus(res.Status)}, nil
}

func (c *Client) Appeal(ctx context.Context, hash ledger.TxHash) (ledger.TxHash, error) {
	payload := appealPayload{
		TxID:    hash.Hex(),
		From:    c.signer.from.Hex(),
		ChainID: c.chainID,
	}
	sig, err := c.signer.sign(payload)
	if err != nil {
		return ledger.TxHash{}, fmt.Errorf("sign appeal: %w", err)
	}
	var hashHex string
	if err := c.call(ctx, "gen_appealTransaction", []any{signedAppeal{appealPayload: payload, Signature: sig}}, &hashHex); err != nil {
		return ledger.TxHash{}, err
	}
	appealHash, err := parseHash(hashHex)
	if err != nil {
		return ledger.TxHash{}, err
	}
	c.logger.Info("appeal submitted",
		zap.String("hash", hash.Hex()),
		zap.String("appeal_hash", appealHash.Hex()),
	)
	return appealHash, nil
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	if params == nil {
		params = []any{}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return &ledger.TransportError{Op: method, Err: err}
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ledger.TransportError{Op: method, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return &ledger.TransportError{Op: method, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return &ledger.TransportError{Op: method, Err: &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return &ledger.MalformedResponseError{What: method + " response", Err: err}
	}
	if rpcResp.Error != nil {
		return &ledger.TransportError{Op: method, Err: rpcResp.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return &ledger.MalformedResponseError{What: method + " result", Err: err}
	}
	return nil
}

func parseHash(raw string) (ledger.TxHash, error) {
	b, err := hexutil.Decode(strings.TrimSpace(raw))
	if err != nil || len(b) != common.HashLength {
		if err == nil {
			err = fmt.Errorf("want %d bytes, got %d", common.HashLength, len(b))
		}
		return ledger.TxHash{}, &ledger.MalformedResponseError{What: "transaction hash", Err: err}
	}
	return common.BytesToHash(b), nil
}

func nonNilArgs(args []any) []any {
	if args == nil {
		return []any{}
	}
	return args
}
