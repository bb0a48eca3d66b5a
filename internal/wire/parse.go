package wire

import "github.com/ddcio/ddcio/internal/ddcerr"

// ExpectedReply tells Parse what kind of reply is expected so it can check
// the opcode and (for Get VCP) the requested VCP code.
type ExpectedReply struct {
	Opcode      Opcode
	RequestCode byte // only meaningful when Opcode == OpGetVcpReply
}

// IsNullResponse reports whether raw is the exact Null Response sentinel
// (spec.md §3, §8 law 3): 6F 6E 80 BE.
func IsNullResponse(raw []byte) bool {
	return len(raw) == 4 &&
		raw[0] == SynthesizedDestByte && raw[1] == ResponseSrcByte &&
		raw[2] == 0x80 && raw[3] == 0xBE
}

// Parse decodes a raw response buffer of up to maxReadBytes bytes received
// from the transport into a Packet, per spec.md §4.1 steps 1-7. The
// canonical Null Response sentinel 6F 6E 80 BE (see IsNullResponse) is
// accepted as-is and reported as ddcerr.NullResponse.
func Parse(raw []byte, expect ExpectedReply) (*Packet, error) {
	const source = "wire.Parse"

	if IsNullResponse(raw) {
		return nil, ddcerr.New(ddcerr.NullResponse, source)
	}
	if len(raw) < 2 {
		return nil, ddcerr.New(ddcerr.MalformedData, source)
	}
	if raw[0] != ResponseSrcByte {
		return nil, ddcerr.New(ddcerr.MalformedData, source)
	}

	dataLen := int(raw[1] & 0x7f)
	if dataLen > maxDataLen {
		return nil, ddcerr.New(ddcerr.MalformedData, source)
	}
	if raw[1] == raw[0] {
		// Hardware "double-byte" artifact: the length byte repeated the
		// source byte. Reported as the same malformed-data error kind.
		return nil, ddcerr.New(ddcerr.MalformedData, source)
	}
	if len(raw) < 2+dataLen+1 {
		return nil, ddcerr.New(ddcerr.MalformedData, source)
	}

	// Synthesize the canonical buffer: 0x6f, 0x6e, bytes[1..1+data+1], and
	// validate its checksum against seed 0x50.
	synth := make([]byte, 0, 2+1+dataLen+1)
	synth = append(synth, SynthesizedDestByte, ResponseSrcByte)
	synth = append(synth, raw[1:1+1+dataLen+1]...)
	trailer := synth[len(synth)-1]
	computed := xorChecksum(ChecksumSeed, synth[1:len(synth)-1])
	if computed != trailer {
		return nil, ddcerr.New(ddcerr.MalformedData, source)
	}

	if dataLen == 0 {
		return nil, ddcerr.New(ddcerr.NullResponse, source)
	}

	data := synth[3 : 3+dataLen]

	if data[0] != byte(expect.Opcode) {
		return nil, ddcerr.New(ddcerr.MalformedData, source)
	}

	switch expect.Opcode {
	case OpGetVcpReply:
		return parseNonTableVcp(data, expect.RequestCode, synth)
	case OpTableReadReply, OpCapabilitiesReply:
		return parseMultiPartFragment(expect.Opcode, data, synth)
	default:
		return nil, ddcerr.New(ddcerr.MalformedData, source)
	}
}

func parseNonTableVcp(data []byte, requestCode byte, raw []byte) (*Packet, error) {
	const source = "wire.parseNonTableVcp"
	if len(data) != 8 {
		return nil, ddcerr.New(ddcerr.MalformedData, source)
	}

	resultCode := data[1]
	opcodeByte := data[2]
	if opcodeByte != requestCode {
		return nil, ddcerr.New(ddcerr.MalformedData, source)
	}

	vcp := &NonTableVcpResponse{
		VcpCode:    opcodeByte,
		ResultCode: resultCode,
		TypeCode:   data[3],
		MaxHi:      data[4],
		MaxLo:      data[5],
		CurHi:      data[6],
		CurLo:      data[7],
	}

	switch resultCode {
	case 0x00:
		vcp.ValidResponse = true
		vcp.SupportedOpcode = true
		vcp.MaxValue = uint16(vcp.MaxHi)<<8 | uint16(vcp.MaxLo)
		vcp.CurValue = uint16(vcp.CurHi)<<8 | uint16(vcp.CurLo)
	case 0x01:
		// Feature reported as unsupported: information, not an error.
		vcp.ValidResponse = true
		vcp.SupportedOpcode = false
	default:
		return nil, ddcerr.New(ddcerr.MalformedData, source)
	}

	return &Packet{Kind: KindNonTableVcpResponse, Bytes: raw, VCP: vcp}, nil
}

func parseMultiPartFragment(opcode Opcode, data []byte, raw []byte) (*Packet, error) {
	const source = "wire.parseMultiPartFragment"
	if len(data) < 3 || len(data) > 35 {
		return nil, ddcerr.New(ddcerr.MalformedData, source)
	}

	offset := uint16(data[1])<<8 | uint16(data[2])
	payload := append([]byte(nil), data[3:]...)

	frag := &MultiPartFragment{
		FragmentKind: opcode,
		Offset:       offset,
		Length:       len(payload),
		Payload:      payload,
	}
	return &Packet{Kind: KindMultiPartReadResponse, Bytes: raw, Fragment: frag}, nil
}
