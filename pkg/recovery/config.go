package recovery

// LSN is a log sequence number: a monotone byte offset into a node's
// write-ahead log, used to measure how far a recovery slot lags its
// donor (spec.md §4.6).
type LSN uint64

// Config holds the recovery controller's timing policy (spec.md §6's
// min-recovery-lag / max-recovery-lag knobs).
type Config struct {
	// MinRecoveryLag is the remaining-lag threshold below which a donor
	// considers a recoverer "almost caught up" and asserts the cluster
	// lock (spec.md §4.6 step 3).
	MinRecoveryLag LSN

	// MaxRecoveryLag is the lag above which a donor drops a slot rather
	// than let it fall further behind (step 4); the recoverer must then
	// restart with a full base copy, out of scope here.
	MaxRecoveryLag LSN
}

// DefaultConfig returns the recovery controller's default timing
// policy.
func DefaultConfig() Config {
	return Config{
		MinRecoveryLag: 1 << 16,
		MaxRecoveryLag: 1 << 28,
	}
}
