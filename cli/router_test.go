package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-ercp/device"
	"github.com/arloliu/go-ercp/ercp"
	"github.com/arloliu/go-ercp/ercptest"
)

func TestRouter_Outputs(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{"ping", Command{Op: OpPing}, "The device is alive."},
		{"protocol", Command{Op: OpProtocol}, "Protocol: 0.1.0"},
		{"version firmware", Command{Op: OpVersion, Component: device.Firmware}, "fw 0.3.1"},
		{"version ercp", Command{Op: OpVersion, Component: device.ProtocolLibrary}, ercptest.DefaultERCPVersion},
		{"max-length", Command{Op: OpMaxLength}, "Max length = 64"},
		{"description", Command{Op: OpDescription}, "lab relay board"},
		{"command", Command{Op: OpCommand, Code: "4a", Value: "0102"}, "Reply: 0x4B [01 02 FF]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, dev, stdout, stderr := newSimRouter(t,
				ercptest.WithDescription("lab relay board"),
				ercptest.WithFirmwareVersion("fw 0.3.1"),
				ercptest.WithMaxLength(64),
			)
			dev.Handle(0x4A, func(value []byte) (ercp.Frame, bool) {
				return ercp.Frame{Code: 0x4B, Value: append(value, 0xFF)}, true
			})

			require.NoError(t, router.Route(context.Background(), tt.cmd, time.Second))
			assert.Equal(t, []string{tt.want}, stdout.Lines())
			assert.Empty(t, stderr.String())
		})
	}
}

func TestRouter_ResetPrintsNothing(t *testing.T) {
	router, dev, stdout, stderr := newSimRouter(t)

	require.NoError(t, router.Route(context.Background(), Command{Op: OpReset}, time.Second))
	assert.Empty(t, stdout.String())
	assert.Empty(t, stderr.String())
	assert.Len(t, dev.Requests(), 1)
}

func TestRouter_ResetTimeoutIsAWarning(t *testing.T) {
	router, dev, stdout, stderr := newSimRouter(t)
	dev.SetSilent(true)

	require.NoError(t, router.Route(context.Background(), Command{Op: OpReset}, 50*time.Millisecond))
	assert.Empty(t, stdout.String())
	require.Len(t, stderr.Lines(), 1)
	assert.Contains(t, stderr.Lines()[0], "Warning:")
}

func TestRouter_ErrorsRenderedOnStderr(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{"nack", Command{Op: OpVersion, Component: device.OtherComponent(0x33)}, "version: protocol error"},
		{"bad hex", Command{Op: OpCommand, Code: "zz"}, "command: invalid command"},
		{"too long", Command{Op: OpCommand, Code: "10", Value: "000102"}, "value too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _, stdout, stderr := newSimRouter(t, ercptest.WithMaxLength(2))

			if tt.name == "too long" {
				require.NoError(t, router.Route(context.Background(), Command{Op: OpMaxLength}, time.Second))
				stdout.buf.Reset()
			}

			err := router.Route(context.Background(), tt.cmd, time.Second)
			require.Error(t, err)
			assert.Empty(t, stdout.String())

			lines := stderr.Lines()
			require.Len(t, lines, 1)
			assert.Contains(t, lines[0], "Error: ")
			assert.Contains(t, lines[0], tt.want)
		})
	}
}

func TestRouter_SilentDeviceTimeout(t *testing.T) {
	router, dev, stdout, stderr := newSimRouter(t)
	dev.SetSilent(true)

	err := router.Route(context.Background(), Command{Op: OpPing}, 100*time.Millisecond)
	require.ErrorIs(t, err, device.ErrProtocol)
	assert.True(t, device.IsTimeout(err))
	assert.Empty(t, stdout.String())
	assert.Equal(t, []string{"Error: ping: protocol error: ercp: reply timeout"}, stderr.Lines())
}

func TestRouter_Info(t *testing.T) {
	router, _, stdout, stderr := newSimRouter(t, ercptest.WithDescription("probe"), ercptest.WithFirmwareVersion("2.0"))

	require.NoError(t, router.Route(context.Background(), Command{Op: OpInfo}, time.Second))
	assert.Equal(t, []string{
		"Description: probe",
		"Firmware version: 2.0",
		"ERCP library version: " + ercptest.DefaultERCPVersion,
	}, stdout.Lines())
	assert.Empty(t, stderr.String())
}

func TestRouter_InfoShowsNotAvailable(t *testing.T) {
	router, dev, stdout, stderr := newSimRouter(t)
	dev.Handle(ercp.Version, func([]byte) (ercp.Frame, bool) {
		return ercp.Frame{Code: ercp.Nack, Value: []byte{ercp.NackInvalidArguments}}, true
	})

	require.Error(t, router.Route(context.Background(), Command{Op: OpInfo}, time.Second))
	assert.Equal(t, []string{
		"Description: " + ercptest.DefaultDescription,
		"Firmware version: N/A",
		"ERCP library version: N/A",
	}, stdout.Lines())
	assert.Len(t, stderr.Lines(), 2)
}

func TestRouter_Log(t *testing.T) {
	router, dev, stdout, stderr := newSimRouter(t)

	stats := &device.LogLoopStats{}
	WithLogStats(stats)(router)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- router.Route(ctx, Command{Op: OpLog}, time.Second) }()

	require.NoError(t, dev.SendLog(ctx, "hello"))
	require.NoError(t, dev.SendFrame(ctx, ercp.Frame{Code: ercp.Ping}))
	require.NoError(t, dev.SendLog(ctx, "world"))

	require.Eventually(t, func() bool {
		return stats.Delivered.Load() == 2 && stats.Rejected.Load() == 1 && dev.Acks() == 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{
		"14:03:09.120 Starting log session (type ^C to quit)",
		"14:03:09.120 hello",
		"14:03:09.120 world",
	}, stdout.Lines())
	assert.Len(t, stderr.Lines(), 1)
}
