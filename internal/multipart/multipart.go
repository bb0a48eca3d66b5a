// Package multipart implements the offset-driven fragment reassembly
// protocol (spec.md §4.5) layered on top of the retry controller, used for
// both Capabilities and Table Read transfers.
package multipart

import (
	"bytes"
	"context"

	"github.com/ddcio/ddcio/internal/ddcerr"
	"github.com/ddcio/ddcio/internal/retry"
	"github.com/ddcio/ddcio/internal/wire"
)

// maxTotalSize is the generous total-size cap spec.md §4.5 asks for: "the
// implementer picks a value >= 4 KiB for capabilities."
const maxTotalSize = 16 * 1024

// Kind selects which multi-part protocol variant to drive.
type Kind int

const (
	KindCapabilities Kind = iota
	KindTableRead
)

// ReadAll drives the retry controller once per fragment until a
// zero-length fragment terminates the transfer, reassembling the payload
// at the declared offsets (spec.md §4.5 steps 1-4). For capabilities reads,
// the result is additionally trimmed and NUL-terminated (step 5).
func ReadAll(ctx context.Context, rc *retry.Controller, kind Kind, vcpCode byte, maxFragmentRetries int) ([]byte, error) {
	const source = "multipart.ReadAll"

	var buf bytes.Buffer
	var offset uint32
	fragmentRetries := 0

	for {
		var req *wire.Packet
		var expect wire.ExpectedReply
		var opKind retry.OpKind
		switch kind {
		case KindCapabilities:
			req = wire.BuildCapabilitiesRequest(offset)
			expect = wire.ExpectedReply{Opcode: wire.OpCapabilitiesReply}
			opKind = retry.OpMultiPartRead
		case KindTableRead:
			req = wire.BuildTableReadRequest(vcpCode, offset)
			expect = wire.ExpectedReply{Opcode: wire.OpTableReadReply}
			opKind = retry.OpMultiPartRead
		}

		resp, err := rc.WriteReadWithRetry(ctx, req, expect, false, opKind)
		if err != nil {
			return nil, err
		}
		frag := resp.Fragment
		if frag == nil {
			return nil, ddcerr.New(ddcerr.MalformedData, source)
		}

		if uint32(frag.Offset) != offset {
			fragmentRetries++
			if fragmentRetries > maxFragmentRetries {
				return nil, ddcerr.New(ddcerr.MalformedData, source)
			}
			continue // retry the same offset
		}
		fragmentRetries = 0

		if frag.Length == 0 {
			break
		}

		buf.Write(frag.Payload)
		offset += uint32(frag.Length)

		if buf.Len() > maxTotalSize {
			return nil, ddcerr.New(ddcerr.MalformedData, source)
		}
	}

	out := buf.Bytes()
	if kind == KindCapabilities {
		out = trimCapabilities(out)
	}
	return out, nil
}

// trimCapabilities trims trailing spaces and NULs and appends a single NUL
// terminator, per spec.md §4.5 step 5.
func trimCapabilities(b []byte) []byte {
	end := len(b)
	for end > 0 && (b[end-1] == ' ' || b[end-1] == 0) {
		end--
	}
	out := make([]byte, end+1)
	copy(out, b[:end])
	out[end] = 0
	return out
}

const maxWriteChunk = 31

// WriteAll chunks payload into <=31-byte Table Write Request fragments at
// incrementing offsets, the write-side counterpart to ReadAll, retrying
// each fragment write with the write-only retry path (spec.md §4.1's
// TableWriteRequest, reported under the multi-part-write statistics
// bucket of spec.md §6).
func WriteAll(ctx context.Context, rc *retry.Controller, vcpCode byte, payload []byte) error {
	var offset uint32
	for offset < uint32(len(payload)) || len(payload) == 0 {
		end := offset + maxWriteChunk
		if end > uint32(len(payload)) {
			end = uint32(len(payload))
		}
		chunk := payload[offset:end]
		req, err := wire.BuildTableWriteRequest(vcpCode, offset, chunk)
		if err != nil {
			return err
		}
		if err := rc.WriteOnlyWithRetry(ctx, req, false, retry.OpMultiPartWrite); err != nil {
			return err
		}
		if len(payload) == 0 {
			return nil
		}
		offset = end
	}
	return nil
}
