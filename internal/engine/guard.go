package engine

import "sync/atomic"

// State is the engine's update state.
type State int32

const (
	// StateIdle means buffer changes come from the outside and must run
	// the full parse, validate and render pipeline.
	StateIdle State = iota
	// StateProgrammaticUpdate means the engine is rewriting the buffer
	// itself; the change notification that fires is already accounted
	// for and must not re-enter the pipeline.
	StateProgrammaticUpdate
)

func (s State) String() string {
	if s == StateProgrammaticUpdate {
		return "programmatic-update"
	}
	return "idle"
}

// Guard is the two-state machine separating user edits from the engine's
// own buffer rewrites. Replacing the buffer fires the widget's change
// callback synchronously in the same call chain; without the guard that
// callback would re-run the pipeline against text the engine just
// produced, and the swap path would double-apply its side effects.
type Guard struct {
	v atomic.Int32
}

// State returns the current state.
func (g *Guard) State() State {
	return State(g.v.Load())
}

// Enter moves Idle to ProgrammaticUpdate. It reports false when the guard
// was already held, in which case the caller must not Exit.
func (g *Guard) Enter() bool {
	return g.v.CompareAndSwap(int32(StateIdle), int32(StateProgrammaticUpdate))
}

// Exit returns to Idle.
func (g *Guard) Exit() {
	g.v.Store(int32(StateIdle))
}
