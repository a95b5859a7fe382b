package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/mnohosten/laura-mtm/pkg/gtid"
)

// EncodeBegin serializes a BEGIN message body (spec.md §6: "originator
// node id, origin xid, snapshot CSN").
func EncodeBegin(b Begin) []byte {
	buf := make([]byte, 1+8+8)
	buf[0] = byte(b.OriginNode)
	binary.BigEndian.PutUint64(buf[1:9], uint64(b.OriginXid))
	binary.BigEndian.PutUint64(buf[9:17], b.SnapshotCSN)
	return buf
}

// DecodeBegin parses a BEGIN message body.
func DecodeBegin(body []byte) (Begin, error) {
	if len(body) != 17 {
		return Begin{}, fmt.Errorf("wire: BEGIN body length = %d, want 17", len(body))
	}
	return Begin{
		OriginNode:  gtid.NodeID(body[0]),
		OriginXid:   gtid.XID(binary.BigEndian.Uint64(body[1:9])),
		SnapshotCSN: binary.BigEndian.Uint64(body[9:17]),
	}, nil
}

// EncodeCommit serializes a COMMIT-family message body. Gid is empty
// unless Flag is CommitFlagCommitPrepared or CommitFlagAbortPrepared.
func EncodeCommit(c Commit) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(c.Flag))
	buf.WriteByte(byte(c.OriginNode))
	caughtUp := byte(0)
	if c.CaughtUp {
		caughtUp = 1
	}
	buf.WriteByte(caughtUp)

	var fixed [8 * 4]byte
	binary.BigEndian.PutUint64(fixed[0:8], c.CommitLSN)
	binary.BigEndian.PutUint64(fixed[8:16], c.EndLSN)
	binary.BigEndian.PutUint64(fixed[16:24], uint64(c.CommitTime))
	binary.BigEndian.PutUint64(fixed[24:32], c.FinalCSN)
	buf.Write(fixed[:])

	appendString(&buf, c.Gid)
	return buf.Bytes()
}

// DecodeCommit parses a COMMIT-family message body.
func DecodeCommit(body []byte) (Commit, error) {
	if len(body) < 3+32+2 {
		return Commit{}, fmt.Errorf("wire: COMMIT body too short (%d bytes)", len(body))
	}
	r := bytes.NewReader(body)

	flagByte, _ := r.ReadByte()
	originByte, _ := r.ReadByte()
	caughtUpByte, _ := r.ReadByte()

	var fixed [32]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return Commit{}, fmt.Errorf("wire: read COMMIT fixed fields: %w", err)
	}

	gid, err := readString(r)
	if err != nil {
		return Commit{}, fmt.Errorf("wire: read COMMIT gid: %w", err)
	}

	return Commit{
		Flag:       CommitFlag(flagByte),
		OriginNode: gtid.NodeID(originByte),
		CaughtUp:   caughtUpByte != 0,
		CommitLSN:  binary.BigEndian.Uint64(fixed[0:8]),
		EndLSN:     binary.BigEndian.Uint64(fixed[8:16]),
		CommitTime: int64(binary.BigEndian.Uint64(fixed[16:24])),
		FinalCSN:   binary.BigEndian.Uint64(fixed[24:32]),
		Gid:        gid,
	}, nil
}

// EncodeRelation serializes a RELATION message body.
func EncodeRelation(rel Relation) []byte {
	var buf bytes.Buffer
	appendString(&buf, rel.Schema)
	appendString(&buf, rel.Name)
	return buf.Bytes()
}

// DecodeRelation parses a RELATION message body.
func DecodeRelation(body []byte) (Relation, error) {
	r := bytes.NewReader(body)
	schema, err := readString(r)
	if err != nil {
		return Relation{}, fmt.Errorf("wire: read RELATION schema: %w", err)
	}
	name, err := readString(r)
	if err != nil {
		return Relation{}, fmt.Errorf("wire: read RELATION name: %w", err)
	}
	return Relation{Schema: schema, Name: name}, nil
}

// EncodeTuple serializes a tuple block: a 2-byte live-attribute count
// followed by each attribute's 1-byte kind and, where the kind carries
// a value, its length-prefixed bytes (spec.md §6).
func EncodeTuple(t Tuple) []byte {
	var buf bytes.Buffer
	var countBuf [2]byte
	binary.BigEndian.PutUint16(countBuf[:], uint16(len(t.Attrs)))
	buf.Write(countBuf[:])

	for _, a := range t.Attrs {
		buf.WriteByte(byte(a.Kind))
		switch a.Kind {
		case AttrNull, AttrUnchangedTOAST:
			// no payload
		default:
			appendBytes(&buf, a.Data)
		}
	}
	return buf.Bytes()
}

// DecodeTuple parses a tuple block.
func DecodeTuple(r *bytes.Reader) (Tuple, error) {
	var countBuf [2]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return Tuple{}, fmt.Errorf("wire: read tuple attr count: %w", err)
	}
	n := binary.BigEndian.Uint16(countBuf[:])

	t := Tuple{Attrs: make([]Attr, 0, n)}
	for i := uint16(0); i < n; i++ {
		kindByte, err := r.ReadByte()
		if err != nil {
			return Tuple{}, fmt.Errorf("wire: read tuple attr %d kind: %w", i, err)
		}
		kind := AttrKind(kindByte)

		a := Attr{Kind: kind}
		switch kind {
		case AttrNull, AttrUnchangedTOAST:
		default:
			data, err := readBytes(r)
			if err != nil {
				return Tuple{}, fmt.Errorf("wire: read tuple attr %d data: %w", i, err)
			}
			a.Data = data
		}
		t.Attrs = append(t.Attrs, a)
	}
	return t, nil
}

// EncodeRowChange serializes an I/U/D message body: the new tuple
// (Insert, Update) and/or the old key tuple (Update, Delete).
func EncodeRowChange(rc RowChange) ([]byte, error) {
	var buf bytes.Buffer
	hasNew, hasOld := byte(0), byte(0)
	if rc.New != nil {
		hasNew = 1
	}
	if rc.Old != nil {
		hasOld = 1
	}
	buf.WriteByte(hasNew)
	buf.WriteByte(hasOld)

	if rc.New != nil {
		buf.Write(EncodeTuple(*rc.New))
	}
	if rc.Old != nil {
		buf.Write(EncodeTuple(*rc.Old))
	}
	return buf.Bytes(), nil
}

// DecodeRowChange parses an I/U/D message body for the given kind.
func DecodeRowChange(kind Kind, body []byte) (RowChange, error) {
	r := bytes.NewReader(body)
	hasNew, err := r.ReadByte()
	if err != nil {
		return RowChange{}, fmt.Errorf("wire: read row-change has-new flag: %w", err)
	}
	hasOld, err := r.ReadByte()
	if err != nil {
		return RowChange{}, fmt.Errorf("wire: read row-change has-old flag: %w", err)
	}

	rc := RowChange{Kind: kind}
	if hasNew != 0 {
		t, err := DecodeTuple(r)
		if err != nil {
			return RowChange{}, fmt.Errorf("wire: decode new tuple: %w", err)
		}
		rc.New = &t
	}
	if hasOld != 0 {
		t, err := DecodeTuple(r)
		if err != nil {
			return RowChange{}, fmt.Errorf("wire: decode old tuple: %w", err)
		}
		rc.Old = &t
	}
	return rc, nil
}
