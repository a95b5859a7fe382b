package xact

import (
	"context"

	"github.com/mnohosten/laura-mtm/pkg/csn"
	"github.com/mnohosten/laura-mtm/pkg/gtid"
)

// VoteOutcome is one participant's answer to a PREPARE.
type VoteOutcome int

const (
	VoteReady VoteOutcome = iota
	VoteAborted
)

// Vote is a single participant's PREPARE response (spec.md §6's
// READY/ABORTED messages).
type Vote struct {
	Node    gtid.NodeID
	Outcome VoteOutcome
	CSN     csn.CSN // participant's locally assigned CSN, valid iff VoteReady
	Err     error
}

// VoteTransport is the arbiter socket as seen by the coordinator
// (spec.md §4.5): broadcasting PREPARE/COMMIT/ABORT to every live,
// non-disabled participant and collecting their votes. pkg/arbiter
// implements this; pkg/node wires the two together.
type VoteTransport interface {
	// BroadcastPrepare sends PREPARE(gid, gtid, commitCsn0) to every
	// live non-disabled node other than self and returns a channel
	// delivering one Vote per participant (closed once all have
	// reported or the context is done).
	BroadcastPrepare(ctx context.Context, gid gtid.GID, gt gtid.GTID, commitCsn0 csn.CSN) (<-chan Vote, error)

	// BroadcastCommit/BroadcastAbort send the terminal decision to
	// every participant that was asked to PREPARE.
	BroadcastCommit(ctx context.Context, gid gtid.GID, finalCSN csn.CSN) error
	BroadcastAbort(ctx context.Context, gid gtid.GID) error

	// LiveNonDisabledCount returns how many participants (besides self)
	// a PREPARE must currently reach for quorum.
	LiveNonDisabledCount() int

	// ConfigChangeCounter lets the coordinator detect a membership
	// change mid-vote (spec.md §4.4: "the coordinator observes the
	// config-change-counter increment and re-evaluates").
	ConfigChangeCounter() uint64
}
