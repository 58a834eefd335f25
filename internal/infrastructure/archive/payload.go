package archive

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"

	"github.com/turtacn/occurrence-matrix/internal/domain/matrix"
	"github.com/turtacn/occurrence-matrix/pkg/errors"
)

// Payload layout (".coo"):
//
//	magic   "OCOO"
//	version uvarint
//	rows    uvarint
//	cols    uvarint
//	nnz     uvarint
//	nnz ×   { row uvarint, col uvarint, value float64 little-endian }
//	crc32   uint32 little-endian, IEEE, over every preceding byte
const (
	payloadMagic   = "OCOO"
	payloadVersion = 1
)

// payloadHeader is the shape recorded in the payload.
type payloadHeader struct {
	Rows, Cols, Nnz int
}

// writePayload encodes m's stored coordinates to w.
func writePayload(w io.Writer, m *matrix.SparseMatrix) (int64, error) {
	h := crc32.NewIEEE()
	cw := &countingWriter{w: io.MultiWriter(w, h)}
	bw := bufio.NewWriter(cw)

	rows, cols := m.Shape()
	var scratch [binary.MaxVarintLen64]byte
	putUvarint := func(v uint64) {
		n := binary.PutUvarint(scratch[:], v)
		bw.Write(scratch[:n])
	}

	bw.WriteString(payloadMagic)
	putUvarint(payloadVersion)
	putUvarint(uint64(rows))
	putUvarint(uint64(cols))
	putUvarint(uint64(m.Nnz()))

	var f [8]byte
	for _, e := range m.Entries() {
		putUvarint(uint64(e.Row))
		putUvarint(uint64(e.Col))
		binary.LittleEndian.PutUint64(f[:], math.Float64bits(e.Value))
		bw.Write(f[:])
	}
	if err := bw.Flush(); err != nil {
		return cw.n, err
	}

	var sum [4]byte
	binary.LittleEndian.PutUint32(sum[:], h.Sum32())
	if _, err := w.Write(sum[:]); err != nil {
		return cw.n, err
	}
	return cw.n + 4, nil
}

// readPayload decodes a payload held entirely in data.  Every structural
// problem is reported as CorruptMetadata.
func readPayload(data []byte) (payloadHeader, []matrix.Entry, error) {
	var hdr payloadHeader
	if len(data) < len(payloadMagic)+4 {
		return hdr, nil, corrupt("payload truncated")
	}
	body, trailer := data[:len(data)-4], data[len(data)-4:]
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(trailer) {
		return hdr, nil, corrupt("payload checksum mismatch")
	}
	if !bytes.HasPrefix(body, []byte(payloadMagic)) {
		return hdr, nil, corrupt("payload magic mismatch")
	}

	r := bytes.NewReader(body[len(payloadMagic):])
	version, err := binary.ReadUvarint(r)
	if err != nil {
		return hdr, nil, corrupt("payload version unreadable")
	}
	if version != payloadVersion {
		return hdr, nil, corrupt(fmt.Sprintf("unsupported payload version %d", version))
	}

	var dims [3]uint64
	for i := range dims {
		if dims[i], err = binary.ReadUvarint(r); err != nil {
			return hdr, nil, corrupt("payload header truncated")
		}
	}
	// Each entry takes at least 10 bytes, which bounds a hostile nnz.
	if dims[2] > uint64(r.Len())/10 {
		return hdr, nil, corrupt("payload entry count exceeds payload size")
	}
	hdr = payloadHeader{Rows: int(dims[0]), Cols: int(dims[1]), Nnz: int(dims[2])}

	entries := make([]matrix.Entry, hdr.Nnz)
	var f [8]byte
	for i := range entries {
		row, err1 := binary.ReadUvarint(r)
		col, err2 := binary.ReadUvarint(r)
		_, err3 := io.ReadFull(r, f[:])
		if err1 != nil || err2 != nil || err3 != nil {
			return hdr, nil, corrupt(fmt.Sprintf("payload entry %d truncated", i))
		}
		if row >= dims[0] || col >= dims[1] {
			return hdr, nil, corrupt(fmt.Sprintf("payload entry %d at (%d, %d) outside %dx%d", i, row, col, dims[0], dims[1]))
		}
		v := math.Float64frombits(binary.LittleEndian.Uint64(f[:]))
		if !(v > 0) || math.IsInf(v, 0) {
			return hdr, nil, corrupt(fmt.Sprintf("payload entry %d holds non-positive value %v", i, v))
		}
		entries[i] = matrix.Entry{Row: int(row), Col: int(col), Value: v}
	}
	if r.Len() != 0 {
		return hdr, nil, corrupt("payload has trailing bytes")
	}
	return hdr, entries, nil
}

func corrupt(msg string) error {
	return errors.New(errors.ErrCodeCorruptMetadata, msg)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
