// Package gtid defines node identity and global transaction identifiers
// shared by every component of the multi-master core.
package gtid

import "fmt"

// MaxNodes is the hard upper bound on cluster size. Node sets are carried
// as a single machine word so the clique search and the disabled-mask
// never need more than a uint64.
const MaxNodes = 64

// NodeID is a node's small positive integer identity, fixed at cluster
// creation and stable for the node's lifetime. Valid range is [1, MaxNodes].
type NodeID uint8

// XID is a local transaction identifier, unique only within its
// originating node.
type XID uint64

// GTID identifies a transaction cluster-wide by the node that began it
// and that node's local transaction id.
type GTID struct {
	Node NodeID
	Xid  XID
}

func (g GTID) String() string {
	return fmt.Sprintf("%d:%d", g.Node, g.Xid)
}

// GID is the textual global identifier used for the prepared-transaction
// handle, e.g. "mtm_3_104829". It must be unique across the cluster.
type GID string

// MakeGID derives the textual GID for a GTID. The format is stable and
// parseable so an applier can recover the originating GTID from a GID it
// only received as a string (e.g. in a COMMIT PREPARED message).
func MakeGID(g GTID) GID {
	return GID(fmt.Sprintf("mtm_%d_%d", g.Node, g.Xid))
}

// ParseGID recovers the GTID encoded by MakeGID, or ok=false if gid was
// not produced by this core (e.g. a hand-issued PREPARE TRANSACTION).
func ParseGID(gid GID) (GTID, bool) {
	var node NodeID
	var xid XID
	if _, err := fmt.Sscanf(string(gid), "mtm_%d_%d", &node, &xid); err != nil {
		return GTID{}, false
	}
	g := GTID{Node: node, Xid: xid}
	if MakeGID(g) != gid {
		return GTID{}, false // trailing or non-canonical text
	}
	return g, true
}

// NodeSet is a bitset over node IDs 1..MaxNodes, bit (id-1) set means
// "member". It is used for the connectivity mask, the disabled mask and
// the maximum-clique computation, all of which must fit a machine word
// per the N <= 64 constraint.
type NodeSet uint64

// NewNodeSet builds a NodeSet from a list of member node IDs.
func NewNodeSet(ids ...NodeID) NodeSet {
	var s NodeSet
	for _, id := range ids {
		s = s.Add(id)
	}
	return s
}

// Add returns s with id set as a member.
func (s NodeSet) Add(id NodeID) NodeSet {
	return s | bit(id)
}

// Remove returns s with id cleared.
func (s NodeSet) Remove(id NodeID) NodeSet {
	return s &^ bit(id)
}

// Has reports whether id is a member of s.
func (s NodeSet) Has(id NodeID) bool {
	return s&bit(id) != 0
}

// Count returns the number of members (popcount).
func (s NodeSet) Count() int {
	n := 0
	for s != 0 {
		s &= s - 1
		n++
	}
	return n
}

// Members returns the member node IDs in ascending order.
func (s NodeSet) Members() []NodeID {
	out := make([]NodeID, 0, s.Count())
	for id := NodeID(1); id <= MaxNodes; id++ {
		if s.Has(id) {
			out = append(out, id)
		}
	}
	return out
}

// Union returns the set of nodes in s or other.
func (s NodeSet) Union(other NodeSet) NodeSet {
	return s | other
}

// Intersect returns the set of nodes in both s and other.
func (s NodeSet) Intersect(other NodeSet) NodeSet {
	return s & other
}

// Complement returns the members of [1, n] not in s.
func (s NodeSet) Complement(n int) NodeSet {
	var full NodeSet
	for id := NodeID(1); int(id) <= n; id++ {
		full = full.Add(id)
	}
	return full &^ s
}

func bit(id NodeID) NodeSet {
	if id < 1 || id > MaxNodes {
		panic(fmt.Sprintf("gtid: node id %d out of range [1,%d]", id, MaxNodes))
	}
	return 1 << uint(id-1)
}
