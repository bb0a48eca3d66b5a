package retry

import (
	"bytes"
	"context"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddcio/ddcio/internal/ddcerr"
	"github.com/ddcio/ddcio/internal/dsa"
	"github.com/ddcio/ddcio/internal/exchange"
	"github.com/ddcio/ddcio/internal/transport"
	"github.com/ddcio/ddcio/internal/wire"
)

func buildGetVcpReply(code byte, cur, max uint16) []byte {
	data := []byte{byte(wire.OpGetVcpReply), 0x00, code, 0x00, byte(max >> 8), byte(max & 0xff), byte(cur >> 8), byte(cur & 0xff)}
	buf := []byte{wire.ResponseSrcByte, byte(len(data) | 0x80)}
	buf = append(buf, data...)
	trailer := byte(wire.ChecksumSeed)
	for _, b := range buf {
		trailer ^= b
	}
	return append(buf, trailer)
}

func newController(fake *transport.Fake) *Controller {
	table := dsa.NewService(nil).Get(0)
	engine := &exchange.Engine{Transport: fake, Sleeper: exchange.RealSleeper, Multiplier: table.GetSleepMultiplier, MaxRead: 16}
	return &Controller{
		Engine: engine,
		Table:  table,
		Clock:  nil,
		Stats:  NewStats(map[OpKind]int{OpWriteRead: 4, OpWriteOnly: 4}),
		MaxTries: map[OpKind]int{OpWriteRead: 4, OpWriteOnly: 4},
	}
}

func TestClassify_NullResponseIsRetryable(t *testing.T) {
	cl := classify(ddcerr.New(ddcerr.NullResponse, "x"), false)
	assert.True(t, cl.retryable)
	assert.True(t, cl.isNull)
}

func TestClassify_EBADFIsFatal(t *testing.T) {
	cl := classify(ddcerr.Wrap(ddcerr.Io, "x", syscall.EBADF), false)
	assert.False(t, cl.retryable)
	assert.True(t, cl.fatal)
}

func TestClassify_EIOIsRetryable(t *testing.T) {
	cl := classify(ddcerr.Wrap(ddcerr.Io, "x", syscall.EIO), false)
	assert.True(t, cl.retryable)
	assert.False(t, cl.fatal)
}

func TestWriteReadWithRetry_SucceedsFirstTry(t *testing.T) {
	fake := &transport.Fake{Responses: []transport.FakeResponse{
		{Bytes: buildGetVcpReply(0x10, 1, 2)},
	}}
	ctrl := newController(fake)

	resp, err := ctrl.WriteReadWithRetry(context.Background(), wire.BuildGetVcp(0x10),
		wire.ExpectedReply{Opcode: wire.OpGetVcpReply, RequestCode: 0x10}, false, OpWriteRead)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), resp.VCP.CurValue)
}

func TestWriteReadWithRetry_SucceedsAfterTransientIO(t *testing.T) {
	fake := &transport.Fake{Responses: []transport.FakeResponse{
		{Err: syscall.EIO},
		{Bytes: buildGetVcpReply(0x10, 1, 2)},
	}}
	ctrl := newController(fake)

	resp, err := ctrl.WriteReadWithRetry(context.Background(), wire.BuildGetVcp(0x10),
		wire.ExpectedReply{Opcode: wire.OpGetVcpReply, RequestCode: 0x10}, false, OpWriteRead)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), resp.VCP.CurValue)
}

func TestWriteReadWithRetry_AllNullResponsesClassifyAsAllResponsesNull(t *testing.T) {
	fake := &transport.Fake{Responses: []transport.FakeResponse{
		{Bytes: []byte{0x6F, 0x6E, 0x80, 0xBE}},
		{Bytes: []byte{0x6F, 0x6E, 0x80, 0xBE}},
		{Bytes: []byte{0x6F, 0x6E, 0x80, 0xBE}},
		{Bytes: []byte{0x6F, 0x6E, 0x80, 0xBE}},
	}}
	ctrl := newController(fake)

	_, err := ctrl.WriteReadWithRetry(context.Background(), wire.BuildGetVcp(0x10),
		wire.ExpectedReply{Opcode: wire.OpGetVcpReply, RequestCode: 0x10}, false, OpWriteRead)
	require.Error(t, err)
	assert.True(t, ddcerr.Is(err, ddcerr.AllResponsesNull))
}

func TestWriteReadWithRetry_AllZeroClassifiesAsAllTriesZero(t *testing.T) {
	fake := &transport.Fake{Responses: []transport.FakeResponse{
		{Bytes: make([]byte, 8)},
		{Bytes: make([]byte, 8)},
		{Bytes: make([]byte, 8)},
		{Bytes: make([]byte, 8)},
	}}
	ctrl := newController(fake)

	_, err := ctrl.WriteReadWithRetry(context.Background(), wire.BuildGetVcp(0x10),
		wire.ExpectedReply{Opcode: wire.OpGetVcpReply, RequestCode: 0x10}, false, OpWriteRead)
	require.Error(t, err)
	assert.True(t, ddcerr.Is(err, ddcerr.AllTriesZero))
}

func TestWriteReadWithRetry_FatalErrorIsNotRetried(t *testing.T) {
	fake := &transport.Fake{Responses: []transport.FakeResponse{
		{Err: syscall.EBADF},
		{Bytes: buildGetVcpReply(0x10, 1, 2)}, // would succeed if retried
	}}
	ctrl := newController(fake)

	_, err := ctrl.WriteReadWithRetry(context.Background(), wire.BuildGetVcp(0x10),
		wire.ExpectedReply{Opcode: wire.OpGetVcpReply, RequestCode: 0x10}, false, OpWriteRead)
	require.Error(t, err)
	assert.Len(t, fake.Writes, 1)
}

func TestWriteOnlyWithRetry_EIOIsRetried(t *testing.T) {
	fake := &transport.Fake{WriteErrs: []error{syscall.EIO, nil}}
	ctrl := newController(fake)

	err := ctrl.WriteOnlyWithRetry(context.Background(), wire.BuildSetVcp(0x10, 5), false, OpWriteOnly)
	require.NoError(t, err)
	assert.Len(t, fake.Writes, 2)
}

func TestWriteOnlyWithRetry_NonEIOErrnoIsFatal(t *testing.T) {
	fake := &transport.Fake{WriteErrs: []error{syscall.ENOSPC}}
	ctrl := newController(fake)

	err := ctrl.WriteOnlyWithRetry(context.Background(), wire.BuildSetVcp(0x10, 5), false, OpWriteOnly)
	require.Error(t, err)
	assert.Len(t, fake.Writes, 1)
}

func TestStats_ReportRendersOneRowPerKind(t *testing.T) {
	s := NewStats(map[OpKind]int{OpWriteRead: 2})
	s.recordSuccessAfter(OpWriteRead, 1)
	s.recordFatal(OpWriteRead)

	var buf bytes.Buffer
	require.NoError(t, s.Report(&buf))
	assert.Contains(t, buf.String(), "write-read")
}
