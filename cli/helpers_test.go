package cli

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-ercp/device"
	"github.com/arloliu/go-ercp/ercp"
	"github.com/arloliu/go-ercp/ercptest"
)

// lockedBuffer is a bytes.Buffer safe for concurrent use.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func (b *lockedBuffer) Lines() []string {
	s := strings.TrimRight(b.String(), "\n")
	if s == "" {
		return nil
	}

	return strings.Split(s, "\n")
}

func fixedClock() time.Time {
	return time.Date(2024, 5, 17, 14, 3, 9, 120_000_000, time.Local)
}

func newSimRouter(t *testing.T, devOpts ...ercptest.Option) (*Router, *ercptest.Device, *lockedBuffer, *lockedBuffer) {
	t.Helper()

	dev := ercptest.New(devOpts...)

	session, err := device.Open("sim0",
		device.WithOpener(dev.Opener()),
		device.WithConnOptions(ercp.WithCloseTimeout(200*time.Millisecond)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = session.Close()
		_ = dev.Close()
	})

	var stdout, stderr lockedBuffer

	return NewRouter(session, &stdout, &stderr, WithClock(fixedClock)), dev, &stdout, &stderr
}
