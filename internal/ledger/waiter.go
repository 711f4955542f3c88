package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// State is a step of the transaction outcome state machine.
type State string

const (
	StateSubmitted             State = "SUBMITTED"
	StatePolling               State = "POLLING"
	StateAccepted              State = "ACCEPTED"
	StateRejectedPendingAppeal State = "REJECTED_PENDING_APPEAL"
	StateTimedOut              State = "TIMED_OUT"
	StateAppealed              State = "APPEALED"
	StateFatal                 State = "FATAL"
)

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateAccepted || s == StateTimedOut || s == StateFatal
}

type Transition struct {
	Hash     TxHash
	From     State
	To       State
	Attempts int
	Status   Status
}

// Observer is notified of every poll and state change. Implementations must not block.
type Observer interface {
	Polled(hash TxHash, status Status, err error)
	Transitioned(t Transition)
}

// Policy bounds the polling phases. The appeal phase gets its own budget.
type Policy struct {
	Interval       time.Duration
	Retries        int
	AppealInterval time.Duration
	AppealRetries  int
}

func DefaultPolicy() Policy {
	return Policy{
		Interval:       5 * time.Second,
		Retries:        100,
		AppealInterval: 5 * time.Second,
		AppealRetries:  60,
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.Interval <= 0 {
		p.Interval = d.Interval
	}
	if p.Retries <= 0 {
		p.Retries = d.Retries
	}
	if p.AppealInterval <= 0 {
		p.AppealInterval = p.Interval
	}
	if p.AppealRetries <= 0 {
		p.AppealRetries = p.Retries
	}
	return p
}

// Receipt is the accepted outcome of a submission.
type Receipt struct {
	Hash       TxHash `json:"hash"`
	Status     Status `json:"status"`
	Appealed   bool   `json:"appealed"`
	AppealHash TxHash `json:"appeal_hash,omitempty"`
	Attempts   int    `json:"attempts"`
}

// Waiter drives a submitted transaction to ACCEPTED, appealing at most once.
type Waiter struct {
	Session  *Session
	Policy   Policy
	Logger   *zap.Logger
	Observer Observer
}

// AwaitOutcome polls hash until it is accepted. When the first budget runs out
// it checks the status once more: a rejection is appealed exactly once and the
// appeal is polled with the appeal budget; anything else is a timeout.
func (w *Waiter) AwaitOutcome(ctx context.Context, hash TxHash) (Receipt, error) {
	receipt := Receipt{Hash: hash}
	if err := ctx.Err(); err != nil {
		return receipt, err
	}
	client, err := w.Session.Client(ctx)
	if err != nil {
		return receipt, err
	}
	p := w.Policy.normalized()

	w.transition(hash, StateSubmitted, StatePolling, 0, "")
	res, err := w.poll(ctx, client, hash, p.Retries, p.Interval)
	receipt.Attempts = res.attempts
	if err != nil {
		return receipt, err
	}
	if res.status.Accepted() {
		return w.accept(receipt, hash, res.status), nil
	}

	check, checkErr := client.PollStatus(ctx, hash)
	receipt.Attempts++
	w.polled(hash, check.Status, checkErr)
	if checkErr != nil && ctx.Err() != nil {
		return receipt, ctx.Err()
	}
	if checkErr == nil && check.Status.Accepted() {
		return w.accept(receipt, hash, check.Status), nil
	}
	if checkErr != nil || !check.Status.Rejected() {
		last := res.status
		if checkErr == nil {
			last = check.Status
		}
		w.transition(hash, StatePolling, StateTimedOut, receipt.Attempts, last)
		return receipt, &ConsensusTimeoutError{Hash: hash, Attempts: receipt.Attempts, LastStatus: last, Err: checkErr}
	}

	w.transition(hash, StatePolling, StateRejectedPendingAppeal, receipt.Attempts, check.Status)
	appealHash, err := client.Appeal(ctx, hash)
	if err != nil {
		if ctx.Err() != nil {
			return receipt, ctx.Err()
		}
		w.transition(hash, StateRejectedPendingAppeal, StateFatal, receipt.Attempts, check.Status)
		return receipt, &ConsensusRejectedError{Hash: hash, LastStatus: check.Status, Err: err}
	}
	receipt.Appealed = true
	receipt.AppealHash = appealHash
	w.transition(hash, StateRejectedPendingAppeal, StateAppealed, receipt.Attempts, check.Status)
	w.transition(appealHash, StateAppealed, StatePolling, receipt.Attempts, "")

	res, err = w.poll(ctx, client, appealHash, p.AppealRetries, p.AppealInterval)
	receipt.Attempts += res.attempts
	if err != nil {
		return receipt, err
	}
	if res.status.Accepted() {
		return w.accept(receipt, appealHash, res.status), nil
	}
	w.transition(appealHash, StatePolling, StateFatal, receipt.Attempts, res.status)
	return receipt, &ConsensusRejectedError{Hash: hash, AppealHash: appealHash, LastStatus: res.status}
}

type pollResult struct {
	status   Status
	attempts int
}

func (w *Waiter) poll(ctx context.Context, client Client, hash TxHash, retries int, interval time.Duration) (pollResult, error) {
	var res pollResult
	for attempt := 1; attempt <= retries; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, interval); err != nil {
				return res, err
			}
		}
		st, err := client.PollStatus(ctx, hash)
		res.attempts = attempt
		w.polled(hash, st.Status, err)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			if w.Logger != nil {
				w.Logger.Debug("status poll failed",
					zap.String("hash", hash.Hex()),
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
			}
			continue
		}
		res.status = st.Status
		if st.Status.Accepted() {
			return res, nil
		}
	}
	return res, nil
}

func (w *Waiter) accept(receipt Receipt, hash TxHash, st Status) Receipt {
	receipt.Status = st
	w.transition(hash, StatePolling, StateAccepted, receipt.Attempts, st)
	return receipt
}

func (w *Waiter) polled(hash TxHash, st Status, err error) {
	if w.Observer != nil {
		w.Observer.Polled(hash, st, err)
	}
}

func (w *Waiter) transition(hash TxHash, from, to State, attempts int, st Status) {
	t := Transition{Hash: hash, From: from, To: to, Attempts: attempts, Status: st}
	if w.Logger != nil {
		fields := []zap.Field{
			zap.String("hash", hash.Hex()),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Int("attempts", attempts),
		}
		if st != "" {
			fields = append(fields, zap.String("status", string(st)))
		}
		if to == StateTimedOut || to == StateFatal {
			w.Logger.Warn("transaction state", fields...)
		} else {
			w.Logger.Info("transaction state", fields...)
		}
	}
	if w.Observer != nil {
		w.Observer.Transitioned(t)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
