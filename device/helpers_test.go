package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-ercp/ercp"
	"github.com/arloliu/go-ercp/ercptest"
	"github.com/arloliu/go-ercp/logger"
)

// mockEngine is a testify mock of Engine.
type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) Transceive(ctx context.Context, cmd ercp.Command, timeout time.Duration) (ercp.Frame, error) {
	args := m.Called(ctx, cmd, timeout)
	return args.Get(0).(ercp.Frame), args.Error(1)
}

func (m *mockEngine) Receive(ctx context.Context, timeout time.Duration) (ercp.Frame, error) {
	args := m.Called(ctx, timeout)
	return args.Get(0).(ercp.Frame), args.Error(1)
}

func (m *mockEngine) Notify(ctx context.Context, cmd ercp.Command) error {
	return m.Called(ctx, cmd).Error(0)
}

func (m *mockEngine) Close() error {
	return m.Called().Error(0)
}

// cmdWith matches a command by code and value.
func cmdWith(code byte, value ...byte) any {
	return mock.MatchedBy(func(cmd ercp.Command) bool {
		if cmd.Code() != code || len(cmd.Value()) != len(value) {
			return false
		}
		for i := range value {
			if cmd.Value()[i] != value[i] {
				return false
			}
		}

		return true
	})
}

func newMockSession(t *testing.T, opts ...Option) (*Session, *mockEngine) {
	t.Helper()

	engine := &mockEngine{}

	l := logger.NewMockLogger()
	l.On("Warn", mock.Anything, mock.Anything).Maybe()
	l.On("Debug", mock.Anything, mock.Anything).Maybe()

	s, err := NewSession(engine, append([]Option{WithLogger(l)}, opts...)...)
	require.NoError(t, err)

	return s, engine
}

// newSimSession opens a session on a simulated device.
func newSimSession(t *testing.T, devOpts ...ercptest.Option) (*Session, *ercptest.Device) {
	t.Helper()

	dev := ercptest.New(devOpts...)

	s, err := Open("sim0",
		WithOpener(dev.Opener()),
		WithConnOptions(ercp.WithCloseTimeout(200*time.Millisecond)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = s.Close()
		_ = dev.Close()
	})

	return s, dev
}
