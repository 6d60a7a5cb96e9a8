package ercp

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTestConn creates a Conn backed by the local end of net.Pipe().
// Returns the connection and the remote end for peer simulation.
func newTestConn(t *testing.T, opts ...ConnOption) (*Conn, net.Conn) {
	t.Helper()

	defaults := []ConnOption{
		WithFrameTimeout(50 * time.Millisecond),
		WithCloseTimeout(200 * time.Millisecond),
	}

	cfg, err := NewConnectionConfig(append(defaults, opts...)...)
	require.NoError(t, err)

	local, remote := net.Pipe()

	conn, err := NewConn(local, cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		_ = remote.Close()
	})

	return conn, remote
}

// packedLen returns the wire size of a frame carrying n value bytes.
func packedLen(n int) int {
	return frameOverhead + n
}

// readFrameFrom reads one frame of n value bytes from r, failing the test on error.
func readFrameFrom(t *testing.T, r io.Reader, n int) Frame {
	t.Helper()

	buf := make([]byte, packedLen(n))
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Errorf("readFrameFrom: %v", err)
		return Frame{}
	}

	f, err := ParseFrame(buf)
	if err != nil {
		t.Errorf("readFrameFrom: %v", err)
	}

	return f
}

// mustWrite writes data to w, reporting a test error on failure.
func mustWrite(t *testing.T, w io.Writer, data []byte) {
	t.Helper()

	if _, err := w.Write(data); err != nil {
		t.Errorf("mustWrite: %v", err)
	}
}

// corrupt returns a copy of a packed frame with its CRC byte flipped.
func corrupt(packed []byte) []byte {
	out := make([]byte, len(packed))
	copy(out, packed)
	out[len(out)-2] ^= 0xFF

	return out
}
