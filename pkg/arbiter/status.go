package arbiter

// Status is the cluster-wide node status of spec.md §3:
// "status ∈ {initializing, offline, connected, online, recovery,
// in-minority, out-of-service}".
type Status int

const (
	StatusInitializing Status = iota
	StatusOffline
	StatusConnected
	StatusOnline
	StatusRecovery
	StatusInMinority
	StatusOutOfService
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusOffline:
		return "offline"
	case StatusConnected:
		return "connected"
	case StatusOnline:
		return "online"
	case StatusRecovery:
		return "recovery"
	case StatusInMinority:
		return "in-minority"
	case StatusOutOfService:
		return "out-of-service"
	default:
		return "invalid"
	}
}
