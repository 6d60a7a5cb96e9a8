package device

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-ercp/ercp"
)

// syncBuffer is a bytes.Buffer safe for one writer and concurrent readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := strings.TrimRight(b.buf.String(), "\n")
	if s == "" {
		return nil
	}

	return strings.Split(s, "\n")
}

func fixedNow() time.Time {
	return time.Date(2024, 3, 1, 9, 5, 7, 42_000_000, time.Local)
}

func TestLogLoop_DeliversRejectsAndContinues(t *testing.T) {
	s, dev := newSimSession(t)

	var stdout, stderr syncBuffer
	loop := NewLogLoop(s, LogLoopConfig{Stdout: &stdout, Stderr: &stderr, Now: fixedNow})
	assert.Equal(t, StateIdle, loop.State())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- loop.Run(ctx) }()

	require.NoError(t, dev.SendLog(ctx, "hello"))
	require.NoError(t, dev.SendFrame(ctx, ercp.Frame{Code: 0x42, Value: []byte{1}}))
	require.NoError(t, dev.SendLog(ctx, "world"))

	require.Eventually(t, func() bool {
		return loop.Stats().Delivered.Load() == 2 && loop.Stats().Rejected.Load() == 1 && dev.Acks() == 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return loop.State() == StateAwaitingFrame }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("log loop did not stop after cancel")
	}

	assert.Equal(t, StateIdle, loop.State())
	assert.Equal(t, []string{
		"09:05:07.042 Starting log session (type ^C to quit)",
		"09:05:07.042 hello",
		"09:05:07.042 world",
	}, stdout.Lines())

	errLines := stderr.Lines()
	require.Len(t, errLines, 1)
	assert.Contains(t, errLines[0], "unexpected frame")
	assert.Equal(t, uint64(0), loop.Stats().AckFailures.Load())
}

func TestLogLoop_InvalidTextNotAcknowledged(t *testing.T) {
	s, engine := newMockSession(t)
	engine.On("Receive", mock.Anything, ercp.NoTimeout).
		Return(ercp.Frame{Code: ercp.Log, Value: []byte{0xC3, 0x28}}, nil).Once()
	engine.On("Receive", mock.Anything, ercp.NoTimeout).
		Return(ercp.Frame{}, ercp.ErrConnClosed).Once()

	var stdout, stderr syncBuffer
	loop := NewLogLoop(s, LogLoopConfig{Stdout: &stdout, Stderr: &stderr, Now: fixedNow})

	err := loop.Run(context.Background())
	require.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, ercp.ErrConnClosed)

	assert.Equal(t, uint64(1), loop.Stats().Rejected.Load())
	assert.Len(t, stdout.Lines(), 1)
	require.Len(t, stderr.Lines(), 1)
	assert.Contains(t, stderr.Lines()[0], "invalid text encoding")
	engine.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestLogLoop_TimeoutsAreReported(t *testing.T) {
	s, engine := newMockSession(t)
	engine.On("Receive", mock.Anything, 20*time.Millisecond).
		Return(ercp.Frame{}, ercp.ErrTimeout).Twice()
	engine.On("Receive", mock.Anything, 20*time.Millisecond).
		Return(ercp.Frame{}, &ercp.IOError{Op: "read", Err: assert.AnError}).Once()

	var stderr syncBuffer
	loop := NewLogLoop(s, LogLoopConfig{Stdout: &syncBuffer{}, Stderr: &stderr, Timeout: 20 * time.Millisecond})

	err := loop.Run(context.Background())
	require.ErrorIs(t, err, ErrTransport)
	assert.Len(t, stderr.Lines(), 2)
	assert.Equal(t, uint64(2), loop.Stats().Rejected.Load())
}

func TestLogLoop_AckFailureCounted(t *testing.T) {
	s, engine := newMockSession(t)
	engine.On("Receive", mock.Anything, ercp.NoTimeout).
		Return(ercp.Frame{Code: ercp.Log, Value: []byte("x")}, nil).Once()
	engine.On("Notify", mock.Anything, cmdWith(ercp.Ack)).Return(ercp.ErrConnClosed).Once()

	var stdout syncBuffer
	loop := NewLogLoop(s, LogLoopConfig{Stdout: &stdout, Stderr: &syncBuffer{}, Now: fixedNow})

	err := loop.Run(context.Background())
	require.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, uint64(1), loop.Stats().Delivered.Load())
	assert.Equal(t, uint64(1), loop.Stats().AckFailures.Load())
	assert.Equal(t, "09:05:07.042 x", stdout.Lines()[1])
}

func TestLogLoop_CanceledBeforeStart(t *testing.T) {
	s, engine := newMockSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout syncBuffer
	err := NewLogLoop(s, LogLoopConfig{Stdout: &stdout, Stderr: &syncBuffer{}}).Run(ctx)
	require.NoError(t, err)
	assert.Len(t, stdout.Lines(), 1)
	engine.AssertNotCalled(t, "Receive", mock.Anything, mock.Anything)
}

func TestLogLoopState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "awaiting-frame", StateAwaitingFrame.String())
	assert.Equal(t, "delivered", StateDelivered.String())
	assert.Equal(t, "rejected", StateRejected.String())
	assert.Equal(t, "LogLoopState(9)", LogLoopState(9).String())
}
