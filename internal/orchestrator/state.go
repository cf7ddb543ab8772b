package orchestrator

// State represents the ramp lifecycle.
type State int32

const (
	// StateIdle is the initial state before the first batch.
	StateIdle State = iota

	// StateRamping means batches are being spawned on schedule.
	StateRamping

	// StateStopped means no further batches will be spawned.
	StateStopped
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRamping:
		return "ramping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if no more batches can start.
func (s State) IsTerminal() bool {
	return s == StateStopped
}
