package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsync/internal/ledger"
	"eventsync/internal/ledger/ledgertest"
)

type recorder struct {
	mu          sync.Mutex
	transitions []ledger.Transition
	polls       int
	pollErrors  int
}

func (r *recorder) Polled(hash ledger.TxHash, st ledger.Status, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls++
	if err != nil {
		r.pollErrors++
	}
}

func (r *recorder) Transitioned(t ledger.Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
}

func (r *recorder) path() []ledger.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ledger.State, 0, len(r.transitions))
	for _, t := range r.transitions {
		out = append(out, t.To)
	}
	return out
}

func fastPolicy(retries, appealRetries int) ledger.Policy {
	return ledger.Policy{
		Interval:       time.Millisecond,
		Retries:        retries,
		AppealInterval: time.Millisecond,
		AppealRetries:  appealRetries,
	}
}

func newWaiter(c *ledgertest.Client, p ledger.Policy) (*ledger.Waiter, *recorder) {
	rec := &recorder{}
	return &ledger.Waiter{Session: c.Session(), Policy: p, Observer: rec}, rec
}

func TestAwaitOutcome_AcceptedWithinBudget(t *testing.T) {
	c := ledgertest.New()
	h := ledgertest.Hash("tx")
	c.Script(h, ledger.StatusPending, ledger.StatusProposing, ledger.StatusAccepted)
	w, rec := newWaiter(c, fastPolicy(10, 5))

	receipt, err := w.AwaitOutcome(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusAccepted, receipt.Status)
	assert.Equal(t, 3, receipt.Attempts)
	assert.False(t, receipt.Appealed)
	assert.Equal(t, 3, c.Polls(h))
	assert.Zero(t, c.Appeals())
	assert.Equal(t, []ledger.State{ledger.StatePolling, ledger.StateAccepted}, rec.path())
}

func TestAwaitOutcome_FinalizedCountsAsAccepted(t *testing.T) {
	c := ledgertest.New()
	h := ledgertest.Hash("tx")
	c.Script(h, ledger.StatusFinalized)
	w, _ := newWaiter(c, fastPolicy(3, 3))

	receipt, err := w.AwaitOutcome(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFinalized, receipt.Status)
	assert.Equal(t, 1, c.Polls(h))
}

func TestAwaitOutcome_NeverResolvesTimesOutAfterBudget(t *testing.T) {
	c := ledgertest.New()
	h := ledgertest.Hash("stuck")
	c.Script(h, ledger.StatusPending)
	w, rec := newWaiter(c, fastPolicy(7, 3))

	_, err := w.AwaitOutcome(context.Background(), h)
	var timeout *ledger.ConsensusTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, ledger.StatusPending, timeout.LastStatus)
	// the whole budget plus the explicit status check, never fewer.
	assert.Equal(t, 8, c.Polls(h))
	assert.Equal(t, 8, timeout.Attempts)
	assert.Zero(t, c.Appeals())
	assert.Equal(t, []ledger.State{ledger.StatePolling, ledger.StateTimedOut}, rec.path())
}

func TestAwaitOutcome_RejectedAppealsExactlyOnce(t *testing.T) {
	c := ledgertest.New()
	h := ledgertest.Hash("tx")
	c.Script(h, ledger.StatusPending, ledger.StatusRevealing, ledger.StatusRejected)
	c.Script(c.AppealHash, ledger.StatusPending, ledger.StatusAccepted)
	w, rec := newWaiter(c, fastPolicy(3, 5))

	receipt, err := w.AwaitOutcome(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Appeals())
	assert.True(t, receipt.Appealed)
	assert.Equal(t, c.AppealHash, receipt.AppealHash)
	assert.Equal(t, ledger.StatusAccepted, receipt.Status)
	assert.Equal(t, 4, c.Polls(h))
	assert.Equal(t, 2, c.Polls(c.AppealHash))
	assert.Equal(t, []ledger.State{
		ledger.StatePolling,
		ledger.StateRejectedPendingAppeal,
		ledger.StateAppealed,
		ledger.StatePolling,
		ledger.StateAccepted,
	}, rec.path())
}

func TestAwaitOutcome_UndeterminedIsAppealed(t *testing.T) {
	c := ledgertest.New()
	h := ledgertest.Hash("tx")
	c.Script(h, ledger.StatusUndetermined)
	c.Script(c.AppealHash, ledger.StatusAccepted)
	w, _ := newWaiter(c, fastPolicy(2, 2))

	receipt, err := w.AwaitOutcome(context.Background(), h)
	require.NoError(t, err)
	assert.True(t, receipt.Appealed)
	assert.Equal(t, 1, c.Appeals())
}

func TestAwaitOutcome_AppealExhaustedIsFatal(t *testing.T) {
	c := ledgertest.New()
	h := ledgertest.Hash("tx")
	c.Script(h, ledger.StatusRejected)
	c.Script(c.AppealHash, ledger.StatusCommitting)
	w, rec := newWaiter(c, fastPolicy(4, 2))

	_, err := w.AwaitOutcome(context.Background(), h)
	var rejected *ledger.ConsensusRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, h, rejected.Hash)
	assert.Equal(t, c.AppealHash, rejected.AppealHash)
	assert.Equal(t, 1, c.Appeals())
	assert.Equal(t, 2, c.Polls(c.AppealHash))
	path := rec.path()
	assert.Equal(t, ledger.StateFatal, path[len(path)-1])
}

func TestAwaitOutcome_AppealSubmitFailureIsFatal(t *testing.T) {
	c := ledgertest.New()
	h := ledgertest.Hash("tx")
	c.Script(h, ledger.StatusRejected)
	c.AppealErr = ledgertest.ErrTransport
	w, _ := newWaiter(c, fastPolicy(2, 2))

	_, err := w.AwaitOutcome(context.Background(), h)
	var rejected *ledger.ConsensusRejectedError
	require.ErrorAs(t, err, &rejected)
	var transport *ledger.TransportError
	assert.ErrorAs(t, err, &transport)
	assert.Equal(t, 1, c.Appeals())
}

func TestAwaitOutcome_AcceptedAtExplicitCheck(t *testing.T) {
	c := ledgertest.New()
	h := ledgertest.Hash("tx")
	c.Script(h, ledger.StatusPending, ledger.StatusPending, ledger.StatusAccepted)
	w, _ := newWaiter(c, fastPolicy(2, 2))

	receipt, err := w.AwaitOutcome(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusAccepted, receipt.Status)
	assert.Zero(t, c.Appeals())
}

func TestAwaitOutcome_PollErrorsConsumeBudget(t *testing.T) {
	c := ledgertest.New()
	h := ledgertest.Hash("tx")
	c.PollErr[h] = []error{ledgertest.ErrTransport, ledgertest.ErrTransport}
	c.Script(h, ledger.StatusPending, ledger.StatusPending, ledger.StatusAccepted)
	w, rec := newWaiter(c, fastPolicy(5, 2))

	receipt, err := w.AwaitOutcome(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, 3, receipt.Attempts)
	assert.Equal(t, 2, rec.pollErrors)
}

func TestAwaitOutcome_FailedCheckIsTimeout(t *testing.T) {
	c := ledgertest.New()
	h := ledgertest.Hash("tx")
	c.PollErr[h] = []error{nil, nil, ledgertest.ErrTransport}
	c.Script(h, ledger.StatusPending)
	w, _ := newWaiter(c, fastPolicy(2, 2))

	_, err := w.AwaitOutcome(context.Background(), h)
	var timeout *ledger.ConsensusTimeoutError
	require.ErrorAs(t, err, &timeout)
	var transport *ledger.TransportError
	assert.ErrorAs(t, err, &transport)
	assert.Zero(t, c.Appeals())
}

func TestAwaitOutcome_Cancelled(t *testing.T) {
	c := ledgertest.New()
	h := ledgertest.Hash("tx")
	c.Script(h, ledger.StatusPending)
	w, _ := newWaiter(c, ledger.Policy{Interval: time.Hour, Retries: 100})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := w.AwaitOutcome(ctx, h)
		done <- err
	}()
	require.Eventually(t, func() bool { return c.Polls(h) == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		var timeout *ledger.ConsensusTimeoutError
		assert.False(t, errors.As(err, &timeout))
	case <-time.After(2 * time.Second):
		t.Fatal("waiter did not stop after cancel")
	}
	assert.Equal(t, 1, c.Polls(h))
}

func TestAwaitOutcome_NoClient(t *testing.T) {
	w := &ledger.Waiter{
		Session: ledger.NewSession(func(context.Context) (ledger.Client, error) {
			return nil, ledger.ErrNoCredentials
		}, nil),
		Policy: fastPolicy(1, 1),
	}
	_, err := w.AwaitOutcome(context.Background(), ledgertest.Hash("tx"))
	var unavailable *ledger.ClientUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.ErrorIs(t, err, ledger.ErrNoCredentials)
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []ledger.State{ledger.StateAccepted, ledger.StateTimedOut, ledger.StateFatal} {
		assert.True(t, s.Terminal(), s)
	}
	for _, s := range []ledger.State{ledger.StateSubmitted, ledger.StatePolling, ledger.StateRejectedPendingAppeal, ledger.StateAppealed} {
		assert.False(t, s.Terminal(), s)
	}
}
