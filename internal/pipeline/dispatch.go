package pipeline

import (
	"context"
	"fmt"
	"sync"
)

// SendFunc performs the remote send and returns the service's message.
type SendFunc func(ctx context.Context) (string, error)

// DispatchGuard allows at most one successful send per owner.
type DispatchGuard struct {
	mu       sync.Mutex
	inFlight bool
	sent     bool
	closed   bool
	attempts int
}

// Dispatch runs send unless a send already succeeded or is in progress.
// A failed retryable send leaves the guard open; a failed non-retryable send
// closes it for good.
func (g *DispatchGuard) Dispatch(ctx context.Context, retryable bool, send SendFunc) (string, error) {
	g.mu.Lock()
	switch {
	case g.sent:
		g.mu.Unlock()
		return "", ErrAlreadySent
	case g.closed:
		g.mu.Unlock()
		return "", fmt.Errorf("%w: an earlier automatic send failed", ErrSendFailed)
	case g.inFlight:
		g.mu.Unlock()
		return "", ErrSendInFlight
	}
	g.inFlight = true
	g.attempts++
	g.mu.Unlock()

	msg, err := send(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()

	g.inFlight = false
	if err != nil {
		if !retryable {
			g.closed = true
		}
		return "", fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	g.sent = true

	return msg, nil
}

// MarkSent records a send that happened outside this guard.
func (g *DispatchGuard) MarkSent() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sent = true
}

func (g *DispatchGuard) Sent() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.sent
}

// InFlight reports whether a send started by Dispatch has not returned yet.
func (g *DispatchGuard) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.inFlight
}

func (g *DispatchGuard) Attempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.attempts
}
