package manager

import "context"

// Gate admits one run at a time. Full runs give up at once when it is
// taken; single-file runs wait for it.
type Gate struct {
	slot chan struct{}
}

// NewGate creates an open gate.
func NewGate() *Gate {
	return &Gate{slot: make(chan struct{}, 1)}
}

// TryAcquire takes the gate without blocking. It reports whether it succeeded.
func (g *Gate) TryAcquire() bool {
	select {
	case g.slot <- struct{}{}:
		return true
	default:
		return false
	}
}

// Acquire waits for the gate or for ctx.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release opens the gate. Only the holder may call it.
func (g *Gate) Release() {
	<-g.slot
}

// Busy reports whether a run holds the gate.
func (g *Gate) Busy() bool {
	return len(g.slot) > 0
}
