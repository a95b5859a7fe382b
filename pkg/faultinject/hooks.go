package faultinject

import (
	"time"

	"github.com/mnohosten/laura-mtm/pkg/gtid"
)

// DelayPrepare implements pkg/xact's FaultHook: if KindDelayPrepare is
// configured and fires, it returns the configured delay for the
// coordinator to sleep before broadcasting PREPARE.
func (inj *Injector) DelayPrepare(_ gtid.GID) time.Duration {
	if !inj.ShouldInject(KindDelayPrepare) {
		return 0
	}
	return inj.Delay(KindDelayPrepare)
}

// ForceAbort implements pkg/xact's FaultHook: if KindForceAbort is
// configured and fires, the coordinator aborts the transaction instead
// of proceeding to PREPARE.
func (inj *Injector) ForceAbort(_ gtid.GID) bool {
	return inj.ShouldInject(KindForceAbort)
}

// DropVote implements pkg/arbiter/rpc's vote-drop hook: if
// KindDropVote is configured and fires, the coordinator never sees
// that participant's vote, exercising the same quorum-loss path a real
// network partition would.
func (inj *Injector) DropVote() bool {
	return inj.ShouldInject(KindDropVote)
}
