// Package wire implements the replication-transport byte-stream
// framing of spec.md §6: the B/C/R/I/U/D message kinds and tuple-block
// encoding carried between a node's logical-decoding output and its
// peers' appliers. Each record is framed by a compression flag byte
// and a 4-byte length prefix (codec.go).
package wire

import "github.com/mnohosten/laura-mtm/pkg/gtid"

// Kind identifies a replication-stream message's wire tag.
type Kind byte

const (
	KindBegin    Kind = 'B'
	KindCommit   Kind = 'C'
	KindRelation Kind = 'R'
	KindInsert   Kind = 'I'
	KindUpdate   Kind = 'U'
	KindDelete   Kind = 'D'
)

func (k Kind) String() string {
	switch k {
	case KindBegin:
		return "BEGIN"
	case KindCommit:
		return "COMMIT"
	case KindRelation:
		return "RELATION"
	case KindInsert:
		return "INSERT"
	case KindUpdate:
		return "UPDATE"
	case KindDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// CommitFlag distinguishes the four shapes a 'C' message can take
// (spec.md §6: "flags byte (commit / prepare / commit-prepared /
// abort-prepared)").
type CommitFlag byte

const (
	CommitFlagCommit CommitFlag = iota
	CommitFlagPrepare
	CommitFlagCommitPrepared
	CommitFlagAbortPrepared
)

// Begin is a 'B' message: the start of a distributed transaction's
// replicated change stream.
type Begin struct {
	OriginNode gtid.NodeID
	OriginXid  gtid.XID
	SnapshotCSN uint64
}

// Commit is a 'C' message, overloaded by Flag to also carry PREPARE,
// COMMIT PREPARED and ABORT PREPARED notifications (spec.md §6).
type Commit struct {
	Flag       CommitFlag
	OriginNode gtid.NodeID
	CaughtUp   bool
	CommitLSN  uint64
	EndLSN     uint64
	CommitTime int64 // wall-clock microseconds
	FinalCSN   uint64
	Gid        string
}

// Relation is an 'R' message identifying the table a subsequent
// I/U/D message applies to.
type Relation struct {
	Schema string
	Name   string
}

// AttrKind tags one tuple-block attribute's encoding (spec.md §6's
// tuple block: n/u/b/s/t).
type AttrKind byte

const (
	AttrNull           AttrKind = 'n'
	AttrUnchangedTOAST AttrKind = 'u'
	AttrBinaryInternal AttrKind = 'b'
	AttrBinarySendRecv AttrKind = 's'
	AttrText           AttrKind = 't'
)

// Attr is one live attribute in a tuple block.
type Attr struct {
	Kind AttrKind
	Data []byte // absent for AttrNull and AttrUnchangedTOAST
}

// Tuple is spec.md §6's tuple block: an ordered list of live
// attributes.
type Tuple struct {
	Attrs []Attr
}

// RowChange is an 'I', 'U' or 'D' message: a single row mutation
// against the relation named by the preceding 'R' message. Update
// carries both the new tuple and, if the replica identity requires it,
// the old key tuple; Delete carries only the old key tuple.
type RowChange struct {
	Kind Kind
	New  *Tuple
	Old  *Tuple
}
