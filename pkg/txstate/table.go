package txstate

import (
	"sync"

	"github.com/mnohosten/laura-mtm/pkg/csn"
	"github.com/mnohosten/laura-mtm/pkg/gtid"
)

// Table is the hash-from-XID-to-TransactionState plus a GID secondary
// index and an insertion-ordered FIFO, as described in spec.md §4.2.
// Inserts are O(1); GC walks the FIFO from its head, stopping at the
// first record younger than the cutoff or still covered by an active
// snapshot.
//
// A single sync.RWMutex is the "state lock" of spec.md §5: writers take
// it exclusively, visibility readers take it shared, and nothing holds
// it across network I/O or a suspension point.
type Table struct {
	mu sync.RWMutex

	arena    []*TransactionState // index 0 unused; slotID 0 means "none"
	freeList []slotID

	byXid map[gtid.XID]slotID
	byGid map[gtid.GID]slotID

	fifoHead slotID
	fifoTail slotID

	// activeSnapshots tracks outstanding snapshot CSNs so GC (I6) never
	// advances oldest-xid past one still in use.
	activeSnapshots map[csn.CSN]int
}

// NewTable creates an empty transaction state table.
func NewTable() *Table {
	return &Table{
		arena:           make([]*TransactionState, 1, 256), // reserve slot 0 as "none"
		byXid:           make(map[gtid.XID]slotID),
		byGid:           make(map[gtid.GID]slotID),
		fifoHead:        noSlot,
		fifoTail:        noSlot,
		activeSnapshots: make(map[csn.CSN]int),
	}
}

// Insert adds a new TransactionState, enforcing I1 (at most one
// TransactionState per XID). The state's Gid, if non-empty, is also
// indexed. insertAfterParent, when non-nil, makes this record GC-adjacent
// to an already-inserted parent (used for sub-transactions per spec.md's
// "inserted immediately after the parent" rule).
func (t *Table) Insert(ts *TransactionState, insertAfterParent gtid.XID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.byXid[ts.Xid]; exists {
		return ErrAlreadyExists
	}

	slot := t.allocSlot(ts)
	t.byXid[ts.Xid] = slot
	if ts.Gid != "" {
		t.byGid[ts.Gid] = slot
	}

	if insertAfterParent != 0 {
		if parentSlot, ok := t.byXid[insertAfterParent]; ok {
			t.linkAfter(parentSlot, slot)
			return nil
		}
	}
	t.linkAtTail(slot)
	return nil
}

func (t *Table) allocSlot(ts *TransactionState) slotID {
	var slot slotID
	if n := len(t.freeList); n > 0 {
		slot = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.arena[slot] = ts
	} else {
		slot = slotID(len(t.arena))
		t.arena = append(t.arena, ts)
	}
	ts.slot = slot
	ts.next = noSlot
	return slot
}

func (t *Table) linkAtTail(slot slotID) {
	if t.fifoHead == noSlot {
		t.fifoHead = slot
	} else {
		t.arena[t.fifoTail].next = slot
	}
	t.fifoTail = slot
}

func (t *Table) linkAfter(parent, slot slotID) {
	t.arena[slot].next = t.arena[parent].next
	t.arena[parent].next = slot
	if t.fifoTail == parent {
		t.fifoTail = slot
	}
}

// Get returns a copy of the TransactionState for xid, or ErrNotFound.
func (t *Table) Get(xid gtid.XID) (*TransactionState, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	slot, ok := t.byXid[xid]
	if !ok {
		return nil, ErrNotFound
	}
	return t.arena[slot].Clone(), nil
}

// GetByGid returns a copy of the TransactionState registered under gid.
func (t *Table) GetByGid(gid gtid.GID) (*TransactionState, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	slot, ok := t.byGid[gid]
	if !ok {
		return nil, ErrNotFound
	}
	return t.arena[slot].Clone(), nil
}

// Update applies fn to the live record for xid under the write lock and
// rejects the status change if it would violate I3.
func (t *Table) Update(xid gtid.XID, fn func(ts *TransactionState)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	slot, ok := t.byXid[xid]
	if !ok {
		return ErrNotFound
	}

	live := t.arena[slot]
	before := live.Status
	fn(live)
	if live.Status != before && !before.CanTransitionTo(live.Status) {
		live.Status = before
		return ErrInvalidTransition
	}

	if live.Gid != "" {
		if _, indexed := t.byGid[live.Gid]; !indexed {
			t.byGid[live.Gid] = slot
		}
	}
	return nil
}

// AcquireSnapshot registers snap as in use by an in-progress transaction
// (I6: oldest-xid never advances past a held snapshot). Release must be
// called exactly once when the transaction finishes.
func (t *Table) AcquireSnapshot(snap csn.CSN) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.activeSnapshots[snap]++
}

// ReleaseSnapshot undoes a matching AcquireSnapshot.
func (t *Table) ReleaseSnapshot(snap csn.CSN) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := t.activeSnapshots[snap]; n <= 1 {
		delete(t.activeSnapshots, snap)
	} else {
		t.activeSnapshots[snap] = n - 1
	}
}

// OldestActiveSnapshot returns the minimum CSN among snapshots currently
// held by in-progress transactions, and ok=false if there are none.
func (t *Table) OldestActiveSnapshot() (csn.CSN, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var min csn.CSN
	found := false
	for s := range t.activeSnapshots {
		if !found || s < min {
			min = s
			found = true
		}
	}
	return min, found
}

// GC removes records from the FIFO head while they are older than
// cutoff and not protected by an active snapshot, per spec.md §3's
// lifecycle rule. It returns the number of records removed.
func (t *Table) GC(cutoff csn.CSN) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for t.fifoHead != noSlot {
		head := t.arena[t.fifoHead]

		if head.Status == StatusInProgress || head.Status == StatusUnknown {
			break // still active or in-doubt; GC cannot reclaim it yet
		}
		if head.Csn > cutoff {
			break // not old enough yet
		}
		if t.activeSnapshots[head.Csn] > 0 {
			break // a live snapshot could still need its visibility outcome
		}

		nextSlot := head.next
		delete(t.byXid, head.Xid)
		if head.Gid != "" {
			delete(t.byGid, head.Gid)
		}
		t.arena[t.fifoHead] = nil
		t.freeList = append(t.freeList, t.fifoHead)

		t.fifoHead = nextSlot
		if t.fifoHead == noSlot {
			t.fifoTail = noSlot
		}
		removed++
	}
	return removed
}

// Len returns the number of live entries in the table.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byXid)
}
