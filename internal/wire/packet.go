// Package wire implements the DDC/CI packet framing and parsing layer
// (spec.md §3, §4.1). It is bit-exact: every byte offset, checksum seed,
// and length-byte encoding rule here is part of the wire contract with real
// monitors and must not be "cleaned up".
package wire

import "github.com/ddcio/ddcio/internal/ddcerr"

const (
	// DestByte is the destination/source byte for requests on the wire (0x6e).
	DestByte = 0x6e
	// SlaveByte is the source byte for host->monitor requests (0x51).
	SlaveByte = 0x51
	// ResponseSrcByte is the byte a monitor response is expected to start with.
	ResponseSrcByte = 0x6e
	// SynthesizedDestByte is the byte synthesized at offset 0 of a parsed
	// response buffer before recomputing its checksum (0x6f).
	SynthesizedDestByte = 0x6f
	// ChecksumSeed is the implicit access-bus destination byte used as the
	// XOR seed when validating a received response (0x50).
	ChecksumSeed = 0x50

	maxDataLen = 32
)

// Opcode is a DDC/CI protocol opcode, the first data byte of a request or
// reply.
type Opcode byte

const (
	OpGetVcp              Opcode = 0x01
	OpGetVcpReply         Opcode = 0x02
	OpSetVcp              Opcode = 0x03
	OpSaveSettings        Opcode = 0x0C
	OpTableReadRequest    Opcode = 0xE2
	OpCapabilitiesReply   Opcode = 0xE3
	OpTableReadReply      Opcode = 0xE4
	OpTableWriteRequest   Opcode = 0xE7
	OpCapabilitiesRequest Opcode = 0xF3
)

// Kind tags the variant a Packet represents.
type Kind int

const (
	KindGetVcpRequest Kind = iota
	KindSetVcpRequest
	KindSaveSettingsRequest
	KindCapabilitiesRequest
	KindTableReadRequest
	KindTableWriteRequest
	KindNonTableVcpResponse
	KindMultiPartReadResponse
)

// Packet is a heap-owned byte buffer plus its decoded view, per spec.md §3.
type Packet struct {
	Kind  Kind
	Bytes []byte

	// Populated for KindNonTableVcpResponse.
	VCP *NonTableVcpResponse
	// Populated for KindMultiPartReadResponse.
	Fragment *MultiPartFragment
}

// NonTableVcpResponse is the decoded view of a Get VCP reply (spec.md §3).
type NonTableVcpResponse struct {
	VcpCode    byte
	ResultCode byte
	TypeCode   byte
	MaxHi      byte
	MaxLo      byte
	CurHi      byte
	CurLo      byte

	MaxValue uint16
	CurValue uint16

	ValidResponse   bool
	SupportedOpcode bool
}

// MultiPartFragment is the decoded view of a capabilities/table-read reply
// fragment (spec.md §3).
type MultiPartFragment struct {
	FragmentKind Opcode
	Offset       uint16
	Length       int
	Payload      []byte
}

// xorChecksum XORs every byte in data starting from seed.
func xorChecksum(seed byte, data []byte) byte {
	c := seed
	for _, b := range data {
		c ^= b
	}
	return c
}

// wrap prepends the dest/slave bytes and length byte, appends the XOR
// checksum computed with seed DestByte, and returns the full wire packet.
func wrap(data []byte) []byte {
	n := len(data)
	buf := make([]byte, 0, 3+n+1)
	buf = append(buf, DestByte, SlaveByte, byte(n|0x80))
	buf = append(buf, data...)
	buf = append(buf, xorChecksum(DestByte, buf[1:]))
	return buf
}

// BuildGetVcp constructs a Get VCP Feature request for the given VCP code.
func BuildGetVcp(code byte) *Packet {
	data := []byte{byte(OpGetVcp), code}
	return &Packet{Kind: KindGetVcpRequest, Bytes: wrap(data)}
}

// BuildSetVcp constructs a Set VCP Feature request for the given VCP code
// and 16-bit value.
func BuildSetVcp(code byte, value uint16) *Packet {
	data := []byte{byte(OpSetVcp), code, byte(value >> 8), byte(value & 0xff)}
	return &Packet{Kind: KindSetVcpRequest, Bytes: wrap(data)}
}

// BuildSaveSettings constructs a Save Current Settings request.
func BuildSaveSettings() *Packet {
	data := []byte{byte(OpSaveSettings)}
	return &Packet{Kind: KindSaveSettingsRequest, Bytes: wrap(data)}
}

// buildMultiPartRequest builds the opcode plus two offset bytes payload of a
// Capabilities request. BuildTableReadRequest and BuildTableWriteRequest
// insert a VCP code byte after the opcode and encode the offset inline the
// same way.
//
// The historical C source computes the high offset byte with >>16 in the
// request *builder* but >>8 in the offset *updater* (see UpdateOffset); the
// >>16 form is effectively always zero for any offset that fits the 16-bit
// field the protocol actually carries, and is very likely a bug in the
// original. This port preserves the updater's >>8 form in the builder too,
// so the observed wire shape is consistent across the whole request's
// lifetime (spec.md §9, open question 1).
func buildMultiPartRequest(opcode Opcode, offset uint32) []byte {
	return []byte{byte(opcode), byte(offset >> 8), byte(offset & 0xff)}
}

// BuildCapabilitiesRequest constructs a Capabilities Request for the given
// byte offset into the capabilities string.
func BuildCapabilitiesRequest(offset uint32) *Packet {
	data := buildMultiPartRequest(OpCapabilitiesRequest, offset)
	return &Packet{Kind: KindCapabilitiesRequest, Bytes: wrap(data)}
}

// BuildTableReadRequest constructs a Table Read Request for the given VCP
// code and byte offset.
func BuildTableReadRequest(code byte, offset uint32) *Packet {
	data := []byte{byte(OpTableReadRequest), code, byte(offset >> 8), byte(offset & 0xff)}
	return &Packet{Kind: KindTableReadRequest, Bytes: wrap(data)}
}

// BuildTableWriteRequest constructs a Table Write Request for the given VCP
// code, byte offset, and payload (at most 31 bytes, so it plus the header
// fits the 32-byte data limit).
func BuildTableWriteRequest(code byte, offset uint32, payload []byte) (*Packet, error) {
	if len(payload) > 31 {
		return nil, ddcerr.New(ddcerr.MalformedData, "wire.BuildTableWriteRequest")
	}
	data := make([]byte, 0, 4+len(payload))
	data = append(data, byte(OpTableWriteRequest), code, byte(offset>>8), byte(offset&0xff))
	data = append(data, payload...)
	return &Packet{Kind: KindTableWriteRequest, Bytes: wrap(data)}, nil
}

// UpdateOffset mutates the two offset bytes of a multi-part request packet
// in place (capabilities or table read/write) and recomputes its checksum,
// without re-encoding the rest of the packet. Data starts at wire index 3
// (after dest/slave/length); capabilities requests carry the offset right
// after the opcode (data[1:3] => wire[4:6]), while table read/write
// requests carry a VCP code byte before the offset (data[2:4] => wire[5:7]).
func UpdateOffset(p *Packet, offset uint32) {
	b := p.Bytes
	var hi, lo int
	switch p.Kind {
	case KindCapabilitiesRequest:
		hi, lo = 4, 5
	case KindTableReadRequest, KindTableWriteRequest:
		hi, lo = 5, 6
	default:
		panic("wire.UpdateOffset: not a multi-part request packet")
	}
	b[hi] = byte(offset >> 8)
	b[lo] = byte(offset & 0xff)
	n := len(b)
	b[n-1] = xorChecksum(DestByte, b[1:n-1])
}
