package ledger

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TxHash identifies a submitted transaction or appeal.
type TxHash = common.Hash

// Status is the consensus state reported for a transaction.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusProposing         Status = "PROPOSING"
	StatusCommitting        Status = "COMMITTING"
	StatusRevealing         Status = "REVEALING"
	StatusAccepted          Status = "ACCEPTED"
	StatusFinalized         Status = "FINALIZED"
	StatusRejected          Status = "REJECTED"
	StatusUndetermined      Status = "UNDETERMINED"
	StatusCanceled          Status = "CANCELED"
	StatusLeaderTimeout     Status = "LEADER_TIMEOUT"
	StatusValidatorsTimeout Status = "VALIDATORS_TIMEOUT"
)

func ParseStatus(raw string) Status {
	return Status(strings.ToUpper(strings.TrimSpace(raw)))
}

// Accepted reports whether the transaction reached (or passed) acceptance.
func (s Status) Accepted() bool {
	return s == StatusAccepted || s == StatusFinalized
}

// Rejected reports whether validators reached a negative or no decision,
// which is what an appeal can re-adjudicate.
func (s Status) Rejected() bool {
	return s == StatusRejected || s == StatusUndetermined
}

// Query is a read-only contract call.
type Query struct {
	Function string `json:"method"`
	Args     []any  `json:"args"`
}

// Mutation is a state-changing contract call.
type Mutation struct {
	Function string          `json:"method"`
	Args     []any           `json:"args"`
	Value    decimal.Decimal `json:"value"`
}

// TxStatus is one observation of a transaction.
type TxStatus struct {
	Hash   TxHash `json:"hash"`
	Status Status `json:"status"`
}

// Client is the remote consensus network as seen by this service.
type Client interface {
	ReadState(ctx context.Context, address common.Address, q Query) (json.RawMessage, error)
	Submit(ctx context.Context, address common.Address, m Mutation) (TxHash, error)
	PollStatus(ctx context.Context, hash TxHash) (TxStatus, error)
	Appeal(ctx context.Context, hash TxHash) (TxHash, error)
}
