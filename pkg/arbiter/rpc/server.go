package rpc

import (
	"context"
	"errors"

	"github.com/mnohosten/laura-mtm/pkg/csn"
	"github.com/mnohosten/laura-mtm/pkg/gtid"
	"github.com/mnohosten/laura-mtm/pkg/xact"
)

func csnOf(v uint64) csn.CSN { return csn.CSN(v) }

// Server answers the arbiter-socket RPCs for one node, delegating to
// its applier set for the actual 2PC participant state machine.
type Server struct {
	appliers   *xact.ApplierSet
	signingKey []byte
}

// NewServer wires the arbiter-socket service to a node's applier set.
func NewServer(appliers *xact.ApplierSet, signingKey []byte) *Server {
	return &Server{appliers: appliers, signingKey: signingKey}
}

func (s *Server) Prepare(ctx context.Context, req *PrepareRequest) (*PrepareResponse, error) {
	if !verify(s.signingKey, req.Mac, preparePayload(req)...) {
		return nil, ErrBadMac
	}

	gt := gtid.GTID{Node: gtid.NodeID(req.Node), Xid: gtid.XID(req.Xid)}
	vote, err := s.appliers.Prepare(ctx, gt, gtid.GID(req.Gid), csnOf(req.CommitCsn0))
	if err != nil {
		if errors.Is(err, xact.ErrNotActive) {
			return &PrepareResponse{Node: req.Node, Outcome: OutcomeAborted, ErrMsg: err.Error()}, nil
		}
		return nil, err
	}

	resp := &PrepareResponse{Node: uint8(vote.Node), Csn: uint64(vote.CSN)}
	if vote.Outcome == xact.VoteAborted {
		resp.Outcome = OutcomeAborted
	} else {
		resp.Outcome = OutcomeReady
	}
	return resp, nil
}

func (s *Server) CommitPrepared(ctx context.Context, req *CommitRequest) (*CommitResponse, error) {
	if !verify(s.signingKey, req.Mac, commitPayload(req)...) {
		return nil, ErrBadMac
	}
	if err := s.appliers.CommitPrepared(ctx, gtid.GID(req.Gid), csnOf(req.FinalCsn)); err != nil {
		return &CommitResponse{Ok: false, ErrMsg: err.Error()}, nil
	}
	return &CommitResponse{Ok: true}, nil
}

func (s *Server) AbortPrepared(ctx context.Context, req *AbortRequest) (*AbortResponse, error) {
	if !verify(s.signingKey, req.Mac, abortPayload(req)...) {
		return nil, ErrBadMac
	}
	if err := s.appliers.AbortPrepared(ctx, gtid.GID(req.Gid)); err != nil {
		return &AbortResponse{Ok: false, ErrMsg: err.Error()}, nil
	}
	return &AbortResponse{Ok: true}, nil
}

func (s *Server) Heartbeat(ctx context.Context, req *HeartbeatRequest) (*HeartbeatResponse, error) {
	if !verify(s.signingKey, req.Mac, heartbeatPayload(req)...) {
		return nil, ErrBadMac
	}
	return &HeartbeatResponse{Ack: true}, nil
}
