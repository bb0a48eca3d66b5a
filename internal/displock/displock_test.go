package displock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddcio/ddcio/internal/ddcerr"
)

func TestAcquire_SecondCallerWithoutWaitFailsLocked(t *testing.T) {
	reg := NewRegistry()
	h1, err := reg.Acquire(2, 1, false)
	require.NoError(t, err)

	_, err = reg.Acquire(2, 2, false)
	assert.True(t, ddcerr.Is(err, ddcerr.Locked))

	require.NoError(t, reg.Release(h1))
}

func TestAcquire_SameThreadReopeningFailsAlreadyOpen(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Acquire(2, 1, false)
	require.NoError(t, err)

	_, err = reg.Acquire(2, 1, false)
	assert.True(t, ddcerr.Is(err, ddcerr.AlreadyOpen))
}

func TestAcquire_WaitUnblocksOnRelease(t *testing.T) {
	reg := NewRegistry()
	h1, err := reg.Acquire(2, 1, false)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		h2, err := reg.Acquire(2, 2, true)
		require.NoError(t, err)
		require.NoError(t, reg.Release(h2))
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, reg.Release(h1))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiting Acquire never unblocked")
	}
}

func TestRelease_TwiceIsInvalidOperation(t *testing.T) {
	reg := NewRegistry()
	h, err := reg.Acquire(2, 1, false)
	require.NoError(t, err)
	require.NoError(t, reg.Release(h))

	err = reg.Release(h)
	assert.True(t, ddcerr.Is(err, ddcerr.InvalidOperation))
}

func TestIsValid_ReflectsReleaseState(t *testing.T) {
	reg := NewRegistry()
	h, err := reg.Acquire(2, 1, false)
	require.NoError(t, err)
	assert.True(t, reg.IsValid(h))
	require.NoError(t, reg.Release(h))
	assert.False(t, reg.IsValid(h))
}
