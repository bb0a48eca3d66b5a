package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ddcio/ddcio/internal/ddcerr"
)

func TestBuildGetVcp_WireShape(t *testing.T) {
	p := BuildGetVcp(0x10)
	require.Equal(t, KindGetVcpRequest, p.Kind)
	// dest, slave, len|0x80, opcode, code, checksum
	require.Len(t, p.Bytes, 6)
	assert.Equal(t, byte(DestByte), p.Bytes[0])
	assert.Equal(t, byte(SlaveByte), p.Bytes[1])
	assert.Equal(t, byte(0x82), p.Bytes[2]) // 2 data bytes | 0x80
	assert.Equal(t, byte(OpGetVcp), p.Bytes[3])
	assert.Equal(t, byte(0x10), p.Bytes[4])
}

func TestBuildSetVcp_EncodesBigEndianValue(t *testing.T) {
	p := BuildSetVcp(0x60, 0x0102)
	assert.Equal(t, byte(OpSetVcp), p.Bytes[3])
	assert.Equal(t, byte(0x60), p.Bytes[4])
	assert.Equal(t, byte(0x01), p.Bytes[5])
	assert.Equal(t, byte(0x02), p.Bytes[6])
}

func TestBuildTableWriteRequest_RejectsOversizePayload(t *testing.T) {
	_, err := BuildTableWriteRequest(0x10, 0, make([]byte, 32))
	require.Error(t, err)
	assert.True(t, ddcerr.Is(err, ddcerr.MalformedData))
}

// TestChecksumLaw is the spec.md §8 law 1 property test: every wrapped
// packet's trailing byte is the XOR of DestByte with every byte from the
// slave byte up to, but not including, the trailer.
func TestChecksumLaw(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		data := rapid.SliceOfN(rapid.Byte(), 1, 30).Draw(rt, "data")
		buf := wrap(data)

		want := xorChecksum(DestByte, buf[1:len(buf)-1])
		assert.Equal(rt, want, buf[len(buf)-1])
	})
}

// TestLengthByteLaw is spec.md §8 law 2: the length byte always carries the
// high bit set and its low 7 bits equal len(data).
func TestLengthByteLaw(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 32).Draw(rt, "n")
		data := rapid.SliceOfN(rapid.Byte(), n, n).Draw(rt, "data")
		buf := wrap(data)

		assert.Equal(rt, byte(0x80), buf[2]&0x80)
		assert.Equal(rt, byte(n&0x7f), buf[2]&0x7f)
	})
}

func TestUpdateOffset_CapabilitiesVsTableLayout(t *testing.T) {
	cap := BuildCapabilitiesRequest(0)
	UpdateOffset(cap, 0x0102)
	assert.Equal(t, byte(0x01), cap.Bytes[4])
	assert.Equal(t, byte(0x02), cap.Bytes[5])

	tr := BuildTableReadRequest(0x10, 0)
	UpdateOffset(tr, 0x0304)
	assert.Equal(t, byte(0x03), tr.Bytes[5])
	assert.Equal(t, byte(0x04), tr.Bytes[6])

	// Checksum recomputed after mutation.
	want := xorChecksum(DestByte, tr.Bytes[1:len(tr.Bytes)-1])
	assert.Equal(t, want, tr.Bytes[len(tr.Bytes)-1])
}

func TestUpdateOffset_PanicsOnNonMultiPartKind(t *testing.T) {
	get := BuildGetVcp(0x10)
	assert.Panics(t, func() { UpdateOffset(get, 1) })
}
