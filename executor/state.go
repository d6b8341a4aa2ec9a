package executor

// State is a stage of a run. A run moves Created → Loaded → Invoked →
// Completed or Faulted, and is always Unloaded last.
type State int

const (
	Created State = iota
	Loaded
	Invoked
	Completed
	Faulted
	Unloaded
)

var stateNames = [...]string{"created", "loaded", "invoked", "completed", "faulted", "unloaded"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
