package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsync/internal/ledger"
	"eventsync/internal/ledger/ledgertest"
)

type closingClient struct {
	*ledgertest.Client
	closed int
}

func (c *closingClient) Close() error {
	c.closed++
	return nil
}

func TestSession_DialsOnceAndResets(t *testing.T) {
	dials := 0
	cc := &closingClient{Client: ledgertest.New()}
	s := ledger.NewSession(func(context.Context) (ledger.Client, error) {
		dials++
		return cc, nil
	}, nil)

	c1, err := s.Client(context.Background())
	require.NoError(t, err)
	c2, err := s.Client(context.Background())
	require.NoError(t, err)
	assert.Same(t, c1, c2)
	assert.Equal(t, 1, dials)

	s.Reset()
	assert.Equal(t, 1, cc.closed)
	_, err = s.Client(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, dials)

	require.NoError(t, s.Close())
	assert.Equal(t, 2, cc.closed)
	_, err = s.Client(context.Background())
	var unavailable *ledger.ClientUnavailableError
	assert.ErrorAs(t, err, &unavailable)
}

func TestSession_DialErrorIsUnavailable(t *testing.T) {
	boom := errors.New("boom")
	s := ledger.NewSession(func(context.Context) (ledger.Client, error) { return nil, boom }, nil)
	_, err := s.Client(context.Background())
	var unavailable *ledger.ClientUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.ErrorIs(t, err, boom)

	var nilSession *ledger.Session
	_, err = nilSession.Client(context.Background())
	assert.ErrorAs(t, err, &unavailable)
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, ledger.ParseStatus(" accepted ").Accepted())
	assert.True(t, ledger.StatusFinalized.Accepted())
	assert.False(t, ledger.StatusPending.Accepted())
	assert.True(t, ledger.StatusRejected.Rejected())
	assert.True(t, ledger.StatusUndetermined.Rejected())
	assert.False(t, ledger.StatusLeaderTimeout.Rejected())
}
