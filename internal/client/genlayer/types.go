package genlayer

import (
	"encoding/json"
	"fmt"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// APIError is a non-200 HTTP answer from the node.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Body)
}

type callData struct {
	Method string `json:"method"`
	Args   []any  `json:"args"`
}

type callParams struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Data callData `json:"data"`
}

type txPayload struct {
	From    string   `json:"from"`
	To      string   `json:"to"`
	Data    callData `json:"data"`
	Value   string   `json:"value"`
	Nonce   uint64   `json:"nonce"`
	ChainID int64    `json:"chainId"`
}

type signedTx struct {
	txPayload
	Signature string `json:"signature"`
}

type appealPayload struct {
	TxID    string `json:"txId"`
	From    string `json:"from"`
	ChainID int64  `json:"chainId"`
}

type signedAppeal struct {
	appealPayload
	Signature string `json:"signature"`
}

type txStatusResult struct {
	Hash   string `json:"hash"`
	Status string `json:"status"`
}
