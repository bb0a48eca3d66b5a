package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_WriteRecordsACopy(t *testing.T) {
	f := &Fake{}
	buf := []byte{1, 2, 3}
	require.NoError(t, f.Write(context.Background(), buf))
	buf[0] = 0xFF // mutating the caller's slice afterward must not affect what was recorded
	require.Len(t, f.Writes, 1)
	assert.Equal(t, []byte{1, 2, 3}, f.Writes[0])
}

func TestFake_ReadPopsScriptedResponsesInOrder(t *testing.T) {
	f := &Fake{Responses: []FakeResponse{
		{Bytes: []byte{0xAA}},
		{Bytes: []byte{0xBB, 0xCC}},
	}}

	buf := make([]byte, 4)
	n, err := f.Read(context.Background(), buf, ReadModeBlock)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, byte(0xAA), buf[0])

	n, err = f.Read(context.Background(), buf, ReadModeBlock)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFake_BytewiseReadAssemblesOneByteAtATime(t *testing.T) {
	f := &Fake{Responses: []FakeResponse{
		{Bytes: []byte{0xAA}},
		{Bytes: []byte{0xBB}},
		{Bytes: []byte{0xCC}},
	}}

	buf := make([]byte, 3)
	n, err := f.Read(context.Background(), buf, ReadModeBytewise)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, buf)
}

func TestFake_BytewiseReadStopsOnZeroLengthEntry(t *testing.T) {
	f := &Fake{Responses: []FakeResponse{
		{Bytes: []byte{0xAA}},
		{Bytes: nil},
		{Bytes: []byte{0xCC}}, // never consumed: the short read breaks the loop
	}}

	buf := make([]byte, 3)
	n, err := f.Read(context.Background(), buf, ReadModeBytewise)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, byte(0xAA), buf[0])
}

func TestFake_BlockReadIgnoresPerByteFraming(t *testing.T) {
	f := &Fake{Responses: []FakeResponse{
		{Bytes: []byte{0xAA, 0xBB, 0xCC}},
	}}

	buf := make([]byte, 3)
	n, err := f.Read(context.Background(), buf, ReadModeBlock)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, buf)
}

func TestFake_ReadPastScriptReturnsEmpty(t *testing.T) {
	f := &Fake{}
	n, err := f.Read(context.Background(), make([]byte, 4), ReadModeBlock)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
