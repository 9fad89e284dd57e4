package issuer

import (
	"context"
	"sync"
)

// Gate is a one-shot readiness barrier. It fires exactly once, releases all
// waiters together, and remains open for waiters that arrive after firing.
// The issuer holds challenge validation requests on the gate so the
// authority is never asked to verify a challenge before the endpoint
// serving it accepts connections.
type Gate struct {
	once  sync.Once
	fired chan struct{}
}

// NewGate creates an unfired Gate.
func NewGate() *Gate {
	return &Gate{fired: make(chan struct{})}
}

// Fire opens the gate. Calls after the first are no-ops.
func (g *Gate) Fire() {
	g.once.Do(func() {
		close(g.fired)
	})
}

// Fired reports whether the gate has been opened.
func (g *Gate) Fired() bool {
	select {
	case <-g.fired:
		return true
	default:
		return false
	}
}

// Wait blocks until the gate fires or the context is cancelled. It returns
// immediately when the gate has already fired.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.fired:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
