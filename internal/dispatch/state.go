package dispatch

// State is the lifecycle state of a connection.
type State int32

const (
	Uninitialized State = iota
	Initializing
	Ready
	ShuttingDown
	Exited
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case ShuttingDown:
		return "shutting down"
	case Exited:
		return "exited"
	}
	return "invalid"
}
