package rpc

import (
	"context"
	"sync"

	"google.golang.org/grpc"

	"github.com/mnohosten/laura-mtm/pkg/csn"
	"github.com/mnohosten/laura-mtm/pkg/gtid"
	"github.com/mnohosten/laura-mtm/pkg/xact"
)

// membershipView supplies the live-node accounting the VoteTransport
// needs without importing pkg/arbiter directly, so this package does
// not depend on the detector's concrete type.
type membershipView interface {
	LiveNonDisabledCount() int
	ConfigChangeCounter() uint64
}

// Transport is the coordinator-side arbiter socket: it fans a PREPARE
// out to every known peer over its gRPC connection and aggregates
// their votes, implementing xact.VoteTransport.
type Transport struct {
	selfNode   gtid.NodeID
	signingKey []byte
	membership membershipView

	mu       sync.RWMutex
	peers    map[gtid.NodeID]ArbiterClient
	dropVote func() bool
}

// NewTransport builds a Transport for selfNode. membership supplies
// the live/disabled accounting (typically a *arbiter.Detector).
func NewTransport(selfNode gtid.NodeID, signingKey []byte, membership membershipView) *Transport {
	return &Transport{
		selfNode:   selfNode,
		signingKey: signingKey,
		membership: membership,
		peers:      make(map[gtid.NodeID]ArbiterClient),
	}
}

// AddPeer registers a dialed connection to a peer node's arbiter port.
func (t *Transport) AddPeer(id gtid.NodeID, cc *grpc.ClientConn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[id] = NewArbiterClient(cc)
}

// SetDropVoteHook wires an administrative fault injector's vote-drop
// decision (spec.md §6: inject-2pc-error) into the PREPARE fan-out: when
// it returns true, a peer's vote is computed but never delivered to the
// coordinator, modeling the vote being lost on the wire. Passing nil
// disables the hook.
func (t *Transport) SetDropVoteHook(hook func() bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dropVote = hook
}

// RemovePeer drops a peer (e.g. once its node is fully decommissioned).
func (t *Transport) RemovePeer(id gtid.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, id)
}

func (t *Transport) snapshotPeers() map[gtid.NodeID]ArbiterClient {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cp := make(map[gtid.NodeID]ArbiterClient, len(t.peers))
	for id, c := range t.peers {
		cp[id] = c
	}
	return cp
}

func (t *Transport) BroadcastPrepare(ctx context.Context, gid gtid.GID, gt gtid.GTID, commitCsn0 csn.CSN) (<-chan xact.Vote, error) {
	peers := t.snapshotPeers()
	ch := make(chan xact.Vote, len(peers))
	if len(peers) == 0 {
		close(ch)
		return ch, nil
	}

	t.mu.RLock()
	dropVote := t.dropVote
	t.mu.RUnlock()

	var wg sync.WaitGroup
	for id, client := range peers {
		wg.Add(1)
		go func(id gtid.NodeID, client ArbiterClient) {
			defer wg.Done()

			req := &PrepareRequest{
				Gid:        string(gid),
				Node:       uint8(gt.Node),
				Xid:        uint64(gt.Xid),
				CommitCsn0: uint64(commitCsn0),
			}
			req.Mac = sign(t.signingKey, preparePayload(req)...)

			resp, err := client.Prepare(ctx, req)
			if err != nil {
				ch <- xact.Vote{Node: id, Outcome: xact.VoteAborted, Err: err}
				return
			}

			if dropVote != nil && dropVote() {
				return
			}

			outcome := xact.VoteReady
			if resp.Outcome == OutcomeAborted {
				outcome = xact.VoteAborted
			}
			ch <- xact.Vote{Node: id, Outcome: outcome, CSN: csn.CSN(resp.Csn)}
		}(id, client)
	}

	go func() {
		wg.Wait()
		close(ch)
	}()

	return ch, nil
}

func (t *Transport) BroadcastCommit(ctx context.Context, gid gtid.GID, finalCSN csn.CSN) error {
	peers := t.snapshotPeers()
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for id, client := range peers {
		wg.Add(1)
		go func(id gtid.NodeID, client ArbiterClient) {
			defer wg.Done()
			req := &CommitRequest{Gid: string(gid), FinalCsn: uint64(finalCSN)}
			req.Mac = sign(t.signingKey, commitPayload(req)...)
			if _, err := client.CommitPrepared(ctx, req); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(id, client)
	}
	wg.Wait()
	return firstErr
}

func (t *Transport) BroadcastAbort(ctx context.Context, gid gtid.GID) error {
	peers := t.snapshotPeers()
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for id, client := range peers {
		wg.Add(1)
		go func(id gtid.NodeID, client ArbiterClient) {
			defer wg.Done()
			req := &AbortRequest{Gid: string(gid)}
			req.Mac = sign(t.signingKey, abortPayload(req)...)
			if _, err := client.AbortPrepared(ctx, req); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(id, client)
	}
	wg.Wait()
	return firstErr
}

func (t *Transport) LiveNonDisabledCount() int {
	return t.membership.LiveNonDisabledCount()
}

func (t *Transport) ConfigChangeCounter() uint64 {
	return t.membership.ConfigChangeCounter()
}
