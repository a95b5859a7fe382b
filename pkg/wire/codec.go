package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// frame header: 1 compression flag byte, 4-byte big-endian payload
// length (the length of the possibly-compressed body), then the
// payload: [flag][4-byte length][payload].
const (
	flagUncompressed byte = 0
	flagZstd         byte = 1
)

// Codec encodes and decodes wire messages as length-prefixed frames,
// transparently compressing payloads at or above CompressThreshold.
type Codec struct {
	CompressThreshold int

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewCodec builds a Codec. threshold <= 0 disables compression
// entirely.
func NewCodec(threshold int) (*Codec, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("wire: build zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("wire: build zstd decoder: %w", err)
	}
	return &Codec{CompressThreshold: threshold, enc: enc, dec: dec}, nil
}

// WriteFrame writes one framed, possibly-compressed record.
func (c *Codec) WriteFrame(w io.Writer, kind Kind, body []byte) error {
	payload := make([]byte, 1+len(body))
	payload[0] = byte(kind)
	copy(payload[1:], body)

	flag := flagUncompressed
	if c.CompressThreshold > 0 && len(payload) >= c.CompressThreshold {
		payload = c.enc.EncodeAll(payload, nil)
		flag = flagZstd
	}

	header := make([]byte, 5)
	header[0] = flag
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("wire: write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one framed record, decompressing it if flagged, and
// returns its kind tag plus the decoded body (without the kind byte).
func (c *Codec) ReadFrame(r io.Reader) (Kind, []byte, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	flag := header[0]
	length := binary.BigEndian.Uint32(header[1:])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("wire: read frame body: %w", err)
	}

	if flag == flagZstd {
		raw, err := c.dec.DecodeAll(payload, nil)
		if err != nil {
			return 0, nil, fmt.Errorf("wire: decompress frame: %w", err)
		}
		payload = raw
	}

	if len(payload) == 0 {
		return 0, nil, fmt.Errorf("wire: empty frame")
	}
	return Kind(payload[0]), payload[1:], nil
}

// appendString writes a length-prefixed (2-byte) string, the length
// form spec.md §6 calls for on RELATION's schema/name fields.
func appendString(buf *bytes.Buffer, s string) {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
	buf.Write(lenBuf[:])
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return "", err
	}
	return string(data), nil
}

func appendBytes(buf *bytes.Buffer, b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
