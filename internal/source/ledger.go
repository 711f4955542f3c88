package source

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"eventsync/internal/ledger"
)

// LedgerSource reads events from an intelligent contract and refreshes them
// by submitting the contract's sync transaction.
type LedgerSource struct {
	Session      *ledger.Session
	Waiter       *ledger.Waiter
	Contract     common.Address
	ReadFunction string
	SyncFunction string
	SyncValue    decimal.Decimal
	Logger       *zap.Logger
}

func (s *LedgerSource) Name() string { return "ledger" }

func (s *LedgerSource) Fetch(ctx context.Context) (Batch, error) {
	client, err := s.Session.Client(ctx)
	if err != nil {
		return Batch{}, err
	}
	raw, err := client.ReadState(ctx, s.Contract, ledger.Query{Function: s.readFunction()})
	if err != nil {
		return Batch{}, err
	}
	return DecodeBatch(raw)
}

func (s *LedgerSource) Refresh(ctx context.Context) (RefreshResult, error) {
	if s.Waiter == nil {
		return RefreshResult{}, fmt.Errorf("ledger source has no waiter")
	}
	client, err := s.Session.Client(ctx)
	if err != nil {
		return RefreshResult{}, err
	}
	hash, err := client.Submit(ctx, s.Contract, ledger.Mutation{
		Function: s.syncFunction(),
		Value:    s.SyncValue,
	})
	if err != nil {
		return RefreshResult{}, err
	}
	if s.Logger != nil {
		s.Logger.Info("sync transaction sent", zap.String("hash", hash.Hex()))
	}
	res := RefreshResult{TxHash: hash.Hex()}
	receipt, err := s.Waiter.AwaitOutcome(ctx, hash)
	res.Appealed = receipt.Appealed
	res.Attempts = receipt.Attempts
	if err != nil {
		return res, err
	}
	return res, nil
}

func (s *LedgerSource) readFunction() string {
	if s.ReadFunction == "" {
		return "read_events"
	}
	return s.ReadFunction
}

func (s *LedgerSource) syncFunction() string {
	if s.SyncFunction == "" {
		return "sync_events"
	}
	return s.SyncFunction
}
