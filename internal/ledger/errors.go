package ledger

import (
	"errors"
	"fmt"
)

// ErrNoCredentials is returned by dialers that have no account to sign with.
var ErrNoCredentials = errors.New("ledger account key is not configured")

// TransportError wraps a failed network or RPC exchange.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ClientUnavailableError means no connected, authenticated client exists.
type ClientUnavailableError struct {
	Err error
}

func (e *ClientUnavailableError) Error() string {
	if e.Err == nil {
		return "ledger client unavailable"
	}
	return fmt.Sprintf("ledger client unavailable: %v", e.Err)
}

func (e *ClientUnavailableError) Unwrap() error { return e.Err }

// ConsensusTimeoutError means the poll budget ran out without a decision.
type ConsensusTimeoutError struct {
	Hash       TxHash
	Attempts   int
	LastStatus Status
	Err        error
}

func (e *ConsensusTimeoutError) Error() string {
	msg := fmt.Sprintf("transaction %s not accepted after %d polls (last status %q)", e.Hash.Hex(), e.Attempts, e.LastStatus)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConsensusTimeoutError) Unwrap() error { return e.Err }

// ConsensusRejectedError means the single appeal also failed to reach acceptance.
type ConsensusRejectedError struct {
	Hash       TxHash
	AppealHash TxHash
	LastStatus Status
	Err        error
}

func (e *ConsensusRejectedError) Error() string {
	msg := fmt.Sprintf("transaction %s rejected; appeal %s not accepted (last status %q)", e.Hash.Hex(), e.AppealHash.Hex(), e.LastStatus)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConsensusRejectedError) Unwrap() error { return e.Err }

// MalformedResponseError means a payload could not be decoded.
type MalformedResponseError struct {
	What string
	Err  error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed %s: %v", e.What, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
