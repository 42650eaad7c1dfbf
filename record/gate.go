package record

import "sync/atomic"

// Gate is the write-inhibit flag consulted by every [Store] wired to it.
// An external coordinator (typically the firmware-upgrade controller)
// blocks it for the duration of an unsafe window; stores only ever read
// it. A coordinator that blocks a gate must unblock it when its window
// ends — stores never clear it themselves.
type Gate struct {
	blocked atomic.Bool
}

// NewGate returns a gate in the "writes allowed" state.
func NewGate() *Gate {
	return &Gate{}
}

// Block inhibits writes on every store sharing this gate.
func (g *Gate) Block() {
	g.blocked.Store(true)
}

// Unblock allows writes again.
func (g *Gate) Unblock() {
	g.blocked.Store(false)
}

// Blocked reports whether writes are currently inhibited.
func (g *Gate) Blocked() bool {
	return g.blocked.Load()
}

// Shared is the process-wide default gate, used by stores constructed
// without [WithGate]. It starts in the "writes allowed" state.
var Shared = NewGate()
