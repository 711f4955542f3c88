package ledger

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"
)

var errSessionClosed = errors.New("ledger session closed")

// DialFunc connects and authenticates a Client.
type DialFunc func(ctx context.Context) (Client, error)

// Session owns the connected ledger client. It dials lazily, keeps the client
// until Reset or Close, and redials on the next use after a Reset.
type Session struct {
	Dial   DialFunc
	Logger *zap.Logger

	mu     sync.Mutex
	client Client
	closed bool
}

func NewSession(dial DialFunc, logger *zap.Logger) *Session {
	return &Session{Dial: dial, Logger: logger}
}

// Client returns the connected client, dialing if needed.
func (s *Session) Client(ctx context.Context) (Client, error) {
	if s == nil || s.Dial == nil {
		return nil, &ClientUnavailableError{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &ClientUnavailableError{Err: errSessionClosed}
	}
	if s.client != nil {
		return s.client, nil
	}
	c, err := s.Dial(ctx)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("ledger dial failed", zap.Error(err))
		}
		return nil, &ClientUnavailableError{Err: err}
	}
	if c == nil {
		return nil, &ClientUnavailableError{}
	}
	if s.Logger != nil {
		s.Logger.Info("ledger client connected")
	}
	s.client = c
	return c, nil
}

// Reset drops the current client so the next call redials.
func (s *Session) Reset() {
	if s == nil {
		return
	}
	s.mu.Lock()
	c := s.client
	s.client = nil
	s.mu.Unlock()
	closeClient(c)
}

// Close releases the client; the session cannot be used afterwards.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	c := s.client
	s.client = nil
	s.closed = true
	s.mu.Unlock()
	return closeClient(c)
}

func closeClient(c Client) error {
	if closer, ok := c.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
