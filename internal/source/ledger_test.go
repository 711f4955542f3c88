package source

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsync/internal/ledger"
	"eventsync/internal/ledger/ledgertest"
)

func newLedgerSource(fake *ledgertest.Client) *LedgerSource {
	session := fake.Session()
	return &LedgerSource{
		Session:  session,
		Waiter:   &ledger.Waiter{Session: session, Policy: ledger.Policy{Interval: time.Millisecond, Retries: 3}},
		Contract: common.HexToAddress("0xA9485ec8a442189F25D70399f12dF370b23408fb"),
	}
}

func TestLedgerSource_Fetch(t *testing.T) {
	fake := ledgertest.New()
	fake.ReadResults = []json.RawMessage{json.RawMessage(quizNight)}
	src := newLedgerSource(fake)

	b, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, b.Events, 1)
	assert.Equal(t, 1, fake.Reads())
	assert.Equal(t, 0, fake.Submits())
}

func TestLedgerSource_FetchTransportError(t *testing.T) {
	fake := ledgertest.New()
	fake.ReadErr = ledgertest.ErrTransport
	_, err := newLedgerSource(fake).Fetch(context.Background())
	var transport *ledger.TransportError
	assert.ErrorAs(t, err, &transport)
}

func TestLedgerSource_RefreshWaitsForAcceptance(t *testing.T) {
	fake := ledgertest.New()
	fake.Script(fake.SubmitHash, ledger.StatusPending, ledger.StatusAccepted)
	src := newLedgerSource(fake)
	src.SyncValue = decimal.NewFromInt(0)

	res, err := src.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fake.SubmitHash.Hex(), res.TxHash)
	assert.Equal(t, 2, res.Attempts)
	assert.False(t, res.Appealed)

	muts := fake.Mutations()
	require.Len(t, muts, 1)
	assert.Equal(t, "sync_events", muts[0].Function)
	assert.True(t, muts[0].Value.IsZero())
}

func TestLedgerSource_RefreshTimeout(t *testing.T) {
	fake := ledgertest.New()
	src := newLedgerSource(fake)

	res, err := src.Refresh(context.Background())
	var timeout *ledger.ConsensusTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, 0, fake.Appeals())
}

func TestLedgerSource_NoSession(t *testing.T) {
	src := &LedgerSource{Waiter: &ledger.Waiter{}}
	_, err := src.Fetch(context.Background())
	var unavailable *ledger.ClientUnavailableError
	assert.ErrorAs(t, err, &unavailable)
	_, err = src.Refresh(context.Background())
	assert.ErrorAs(t, err, &unavailable)
}
