package connector

// State is the orchestrator lifecycle stage. Transitions only move forward.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateAuthenticated
	StateBootstrapping
	StateStreaming
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateBootstrapping:
		return "bootstrapping"
	case StateStreaming:
		return "streaming"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
