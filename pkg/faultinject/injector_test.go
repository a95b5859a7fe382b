package faultinject

import (
	"context"
	"testing"
	"time"

	"github.com/mnohosten/laura-mtm/pkg/csn"
	"github.com/mnohosten/laura-mtm/pkg/gtid"
	"github.com/mnohosten/laura-mtm/pkg/txstate"
	"github.com/mnohosten/laura-mtm/pkg/xact"
)

func TestShouldInjectRequiresEnabledInjectorAndFault(t *testing.T) {
	inj := NewInjector(1)
	inj.EnableFault(KindForceAbort, 1.0)

	if inj.ShouldInject(KindForceAbort) {
		t.Fatalf("injector not yet enabled, should not fire")
	}

	inj.Enable()
	if !inj.ShouldInject(KindForceAbort) {
		t.Fatalf("expected fault to fire at probability 1.0")
	}
	if got := inj.GetTriggerCount(KindForceAbort); got != 1 {
		t.Fatalf("trigger count = %d, want 1", got)
	}

	if inj.ShouldInject(KindDropVote) {
		t.Fatalf("unconfigured kind must never fire")
	}
}

func TestDisableFaultStopsFiringWithoutLosingConfig(t *testing.T) {
	inj := NewInjector(1)
	inj.Enable()
	inj.EnableFault(KindDelayPrepare, 1.0)
	inj.ConfigureFault(Config{Kind: KindDelayPrepare, Enabled: true, Probability: 1.0, Delay: 50 * time.Millisecond})

	inj.DisableFault(KindDelayPrepare)
	if inj.ShouldInject(KindDelayPrepare) {
		t.Fatalf("disabled fault must not fire")
	}

	inj.EnableFault(KindDelayPrepare, 1.0)
	if !inj.ShouldInject(KindDelayPrepare) {
		t.Fatalf("re-enabling should restore firing")
	}
}

func TestResetClearsTriggerCountsOnly(t *testing.T) {
	inj := NewInjector(1)
	inj.Enable()
	inj.EnableFault(KindDropVote, 1.0)
	inj.ShouldInject(KindDropVote)
	if inj.GetTriggerCount(KindDropVote) != 1 {
		t.Fatalf("expected one trigger before reset")
	}

	inj.Reset()
	if inj.GetTriggerCount(KindDropVote) != 0 {
		t.Fatalf("expected trigger count cleared by Reset")
	}
	if !inj.ShouldInject(KindDropVote) {
		t.Fatalf("Reset must not disable configured faults")
	}
}

func TestAddEventCallbackObservesTriggeredDecisions(t *testing.T) {
	inj := NewInjector(1)
	inj.Enable()
	inj.EnableFault(KindForceAbort, 1.0)

	var events []Event
	inj.AddEventCallback(func(ev Event) { events = append(events, ev) })

	inj.ShouldInject(KindForceAbort)
	inj.ShouldInject(KindDropVote) // unconfigured: must not notify

	if len(events) != 1 {
		t.Fatalf("expected exactly one callback invocation, got %d", len(events))
	}
	if events[0].Kind != KindForceAbort || !events[0].Triggered {
		t.Fatalf("unexpected event: %+v", events[0])
	}
}

func TestDelayReturnsConfiguredDurationRegardlessOfFiring(t *testing.T) {
	inj := NewInjector(1)
	inj.ConfigureFault(Config{Kind: KindDelayPrepare, Enabled: true, Probability: 1.0, Delay: 25 * time.Millisecond})

	if got := inj.Delay(KindDelayPrepare); got != 25*time.Millisecond {
		t.Fatalf("Delay = %v, want 25ms", got)
	}
	if got := inj.Delay(KindDropVote); got != 0 {
		t.Fatalf("Delay of unconfigured kind = %v, want 0", got)
	}
}

// fakeHost and fakeTransport mirror pkg/xact's own test fakes, kept
// local here since those are unexported.
type fakeHost struct {
	replicated map[gtid.XID]bool
	committed  []gtid.XID
	aborted    []gtid.XID
}

func newFakeHost() *fakeHost {
	return &fakeHost{replicated: make(map[gtid.XID]bool)}
}

func (h *fakeHost) PrePrepare(ctx context.Context, xid gtid.XID) error { return nil }
func (h *fakeHost) HasReplicatedWrites(xid gtid.XID) bool              { return h.replicated[xid] }
func (h *fakeHost) TouchesLocalOnlyRelation(xid gtid.XID) bool         { return false }
func (h *fakeHost) PostPrepare(ctx context.Context, xid gtid.XID, committed bool) {}
func (h *fakeHost) Commit(ctx context.Context, xid gtid.XID, finalCSN csn.CSN) error {
	h.committed = append(h.committed, xid)
	return nil
}
func (h *fakeHost) Abort(ctx context.Context, xid gtid.XID) error {
	h.aborted = append(h.aborted, xid)
	return nil
}

type fakeTransport struct {
	liveCount int
	votes     []xact.Vote
}

func (f *fakeTransport) BroadcastPrepare(ctx context.Context, gid gtid.GID, gt gtid.GTID, commitCsn0 csn.CSN) (<-chan xact.Vote, error) {
	ch := make(chan xact.Vote, len(f.votes))
	for _, v := range f.votes {
		ch <- v
	}
	close(ch)
	return ch, nil
}
func (f *fakeTransport) BroadcastCommit(ctx context.Context, gid gtid.GID, finalCSN csn.CSN) error {
	return nil
}
func (f *fakeTransport) BroadcastAbort(ctx context.Context, gid gtid.GID) error { return nil }
func (f *fakeTransport) LiveNonDisabledCount() int                            { return f.liveCount }
func (f *fakeTransport) ConfigChangeCounter() uint64                          { return 0 }

func TestForceAbortHookAbortsBeforePrepare(t *testing.T) {
	inj := NewInjector(1)
	inj.Enable()
	inj.EnableFault(KindForceAbort, 1.0)

	clock := csn.NewClock()
	table := txstate.NewTable()
	host := newFakeHost()
	host.replicated[1] = true
	transport := &fakeTransport{liveCount: 2, votes: []xact.Vote{
		{Node: 2, Outcome: xact.VoteReady},
	}}

	mgr := xact.NewManager(1, clock, table, host, transport, nil, xact.DefaultConfig())
	mgr.SetFaultHook(inj)

	if _, err := mgr.Begin(1); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	_, err := mgr.Commit(context.Background(), 1)
	if err != xact.ErrInjectedAbort {
		t.Fatalf("Commit err = %v, want ErrInjectedAbort", err)
	}
	if len(host.aborted) != 1 || host.aborted[0] != 1 {
		t.Fatalf("expected host.Abort called for xid 1: %v", host.aborted)
	}
	if len(host.committed) != 0 {
		t.Fatalf("force-abort must never reach host.Commit")
	}
}

func TestDelayPrepareHookDelaysBeforeBroadcast(t *testing.T) {
	inj := NewInjector(1)
	inj.Enable()
	inj.ConfigureFault(Config{Kind: KindDelayPrepare, Enabled: true, Probability: 1.0, Delay: 30 * time.Millisecond})

	clock := csn.NewClock()
	table := txstate.NewTable()
	host := newFakeHost()
	host.replicated[2] = true
	transport := &fakeTransport{liveCount: 2, votes: []xact.Vote{
		{Node: 2, Outcome: xact.VoteReady},
		{Node: 3, Outcome: xact.VoteReady},
	}}

	mgr := xact.NewManager(1, clock, table, host, transport, nil, xact.DefaultConfig())
	mgr.SetFaultHook(inj)

	if _, err := mgr.Begin(2); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	start := time.Now()
	if _, err := mgr.Commit(context.Background(), 2); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("commit returned after %v, want >= 30ms delay", elapsed)
	}
}
