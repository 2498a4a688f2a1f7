package browser

// Status tracks a handle through its lifecycle. Transitions flow
// starting -> ready <-> busy, with unhealthy and terminated as terminal
// detours. The pool is the only writer after startup.
type Status int32

const (
	StatusStarting Status = iota
	StatusReady
	StatusBusy
	StatusUnhealthy
	StatusTerminated
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusReady:
		return "ready"
	case StatusBusy:
		return "busy"
	case StatusUnhealthy:
		return "unhealthy"
	case StatusTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
