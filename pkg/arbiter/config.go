package arbiter

import "time"

// Config holds the numeric knobs of spec.md §6 relevant to the failure
// detector.
type Config struct {
	HeartbeatSendTimeout time.Duration
	HeartbeatRecvTimeout time.Duration
	NodeDisableDelay     time.Duration
}

// DefaultConfig returns the detector's default cadence.
func DefaultConfig() Config {
	return Config{
		HeartbeatSendTimeout: 500 * time.Millisecond,
		HeartbeatRecvTimeout: 2 * time.Second,
		NodeDisableDelay:     1 * time.Second,
	}
}
