package main

import (
	"context"
	"log"
	"sync"

	"github.com/mnohosten/laura-mtm/pkg/csn"
	"github.com/mnohosten/laura-mtm/pkg/gtid"
)

// standaloneHost is the integration seam a SQL engine's commit path
// fills in production (xact.TransactionHost): it is deliberately the
// simplest implementation that lets a standalone mtmd process run and
// be driven against, since this codebase has no SQL engine (Non-goal).
// Every transaction is treated as carrying replicated writes, so the
// coordinator always goes to PREPARE rather than filtering locally.
type standaloneHost struct {
	mu          sync.Mutex
	localTables map[string]bool
}

func newStandaloneHost() *standaloneHost {
	return &standaloneHost{localTables: make(map[string]bool)}
}

func (h *standaloneHost) PrePrepare(ctx context.Context, xid gtid.XID) error { return nil }
func (h *standaloneHost) HasReplicatedWrites(xid gtid.XID) bool              { return true }

// TouchesLocalOnlyRelation always reports false: without a SQL engine
// tracking which relations a transaction wrote, this host cannot tell
// which table(s) xid touched, so make-table-local only ever adjusts
// the registry a future engine integration would consult.
func (h *standaloneHost) TouchesLocalOnlyRelation(xid gtid.XID) bool { return false }

func (h *standaloneHost) PostPrepare(ctx context.Context, xid gtid.XID, committed bool) {
	log.Printf("xid %d post-prepare: committed=%v", xid, committed)
}

func (h *standaloneHost) Commit(ctx context.Context, xid gtid.XID, finalCSN csn.CSN) error {
	log.Printf("xid %d committed at csn %d", xid, finalCSN)
	return nil
}

func (h *standaloneHost) Abort(ctx context.Context, xid gtid.XID) error {
	log.Printf("xid %d aborted", xid)
	return nil
}

func (h *standaloneHost) MarkTableLocal(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.localTables[name] = true
	return nil
}
