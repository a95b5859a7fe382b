// Package visibility implements MVCC visibility over the shared
// transaction state table and the cluster-wide oldest-xmin computation
// (spec.md §4.3).
package visibility

import (
	"context"
	"time"

	"github.com/mnohosten/laura-mtm/pkg/csn"
	"github.com/mnohosten/laura-mtm/pkg/gtid"
	"github.com/mnohosten/laura-mtm/pkg/txstate"
)

// Config tunes the in-doubt back-off loop.
type Config struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxRetries     int
}

// DefaultConfig matches spec.md §4.3: ~1ms initial, ~100ms cap, ~100 retries.
func DefaultConfig() Config {
	return Config{
		InitialBackoff: time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
		MaxRetries:     100,
	}
}

// Service answers visibility queries against a transaction state table.
type Service struct {
	table  *txstate.Table
	config Config

	// sleep is overridable so tests can exercise the retry loop without
	// real wall-clock delay.
	sleep func(time.Duration)
}

// NewService creates a visibility service over table with cfg's back-off
// parameters.
func NewService(table *txstate.Table, cfg Config) *Service {
	return &Service{table: table, config: cfg, sleep: time.Sleep}
}

// Visible reports whether the write made by xid is visible to a reader
// holding snapshot. It implements the rule of spec.md §4.3:
//
//   - CSN > snapshot, or status aborted  -> invisible
//   - CSN <= snapshot and status committed -> visible
//   - status unknown (in-doubt) -> wait, then re-read
//
// The state lock is never held across the sleep: each retry takes a
// fresh read of the table.
func (s *Service) Visible(ctx context.Context, xid gtid.XID, snapshot csn.CSN) (bool, error) {
	backoff := s.config.InitialBackoff
	if backoff <= 0 {
		backoff = time.Millisecond
	}

	for attempt := 0; attempt < s.config.MaxRetries || s.config.MaxRetries <= 0; attempt++ {
		ts, err := s.table.Get(xid)
		if err != nil {
			// No record at all: treat as not-yet-visible rather than an
			// error, matching a reader racing a writer's BEGIN.
			return false, nil
		}

		switch ts.Status {
		case txstate.StatusCommitted:
			return ts.Csn <= snapshot, nil
		case txstate.StatusAborted:
			return false, nil
		case txstate.StatusUnknown:
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			default:
			}
			s.sleep(backoff)
			backoff *= 2
			if backoff > s.config.MaxBackoff {
				backoff = s.config.MaxBackoff
			}
			continue
		default: // StatusInProgress: not yet decided, not yet visible
			return false, nil
		}
	}

	return false, ErrRetriesExhausted
}

// NodeSnapshotReporter supplies each live node's currently reported
// oldest-snapshot, the per-node runtime record of spec.md §3.
type NodeSnapshotReporter interface {
	NodeOldestSnapshots() map[gtid.NodeID]csn.CSN
}

// OldestXmin computes the cluster-wide vacuum horizon: the local
// engine's xmin, lowered to the minimum of every node's reported
// oldest-snapshot minus vacuumDelay, so a snapshot taken on one node
// stays readable while any other node might still reference its
// tuples (spec.md §4.3).
func OldestXmin(localXmin csn.CSN, reporter NodeSnapshotReporter, vacuumDelay csn.CSN) csn.CSN {
	horizon := localXmin
	for _, snap := range reporter.NodeOldestSnapshots() {
		adjusted := snap
		if adjusted > vacuumDelay {
			adjusted -= vacuumDelay
		} else {
			adjusted = 0
		}
		if adjusted < horizon {
			horizon = adjusted
		}
	}
	return horizon
}
