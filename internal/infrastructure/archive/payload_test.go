package archive

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/occurrence-matrix/pkg/errors"
)

func encodeTestPayload(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	n, err := writePayload(&buf, buildTestMatrix(t))
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)
	return buf.Bytes()
}

// reseal recomputes the trailer after body has been tampered with.
func reseal(body []byte) []byte {
	out := append([]byte(nil), body...)
	var sum [4]byte
	binary.LittleEndian.PutUint32(sum[:], crc32.ChecksumIEEE(body))
	return append(out, sum[:]...)
}

func TestPayload_RoundTrip(t *testing.T) {
	m := buildTestMatrix(t)
	hdr, entries, err := readPayload(encodeTestPayload(t))
	require.NoError(t, err)

	rows, cols := m.Shape()
	assert.Equal(t, payloadHeader{Rows: rows, Cols: cols, Nnz: m.Nnz()}, hdr)
	assert.Equal(t, m.Entries(), entries)
}

func TestPayload_DetectsCorruption(t *testing.T) {
	data := encodeTestPayload(t)
	body := data[:len(data)-4]

	flipped := append([]byte(nil), data...)
	flipped[len(payloadMagic)+3] ^= 0xff

	badMagic := append([]byte("XCOO"), body[4:]...)

	badVersion := append([]byte(nil), body...)
	badVersion[len(payloadMagic)] = 9

	outOfRange := append([]byte(nil), body...)
	// First entry's row code sits right after magic, version and three dims.
	outOfRange[len(payloadMagic)+4] = 100

	cases := map[string][]byte{
		"empty":        nil,
		"checksum":     flipped,
		"magic":        reseal(badMagic),
		"version":      reseal(badVersion),
		"truncated":    reseal(body[:len(body)-3]),
		"trailing":     reseal(append(append([]byte(nil), body...), 0)),
		"out of range": reseal(outOfRange),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := readPayload(data)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeCorruptMetadata), "%v", err)
		})
	}
}

func TestPayload_RejectsNonPositiveValue(t *testing.T) {
	var body []byte
	body = append(body, payloadMagic...)
	body = binary.AppendUvarint(body, payloadVersion)
	body = binary.AppendUvarint(body, 1)
	body = binary.AppendUvarint(body, 1)
	body = binary.AppendUvarint(body, 1)
	body = binary.AppendUvarint(body, 0)
	body = binary.AppendUvarint(body, 0)
	body = binary.LittleEndian.AppendUint64(body, math.Float64bits(-1))

	_, _, err := readPayload(reseal(body))
	assert.True(t, errors.IsCode(err, errors.ErrCodeCorruptMetadata))
}
