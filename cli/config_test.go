package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-ercp/logger"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ercp.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
protocol = "basic"
port = "/dev/ttyACM0"
baud = 57600
timeout = "1s"
link_timeout = "20ms"
log_timeout = "30s"
frame_timeout = "50ms"
retry_limit = 1
log_level = "debug"
log_backend = "zerolog"
metrics_addr = "127.0.0.1:9464"
`)

	cfg := DefaultConfig()
	require.NoError(t, LoadConfigFile(path, &cfg))

	assert.Equal(t, Config{
		Basic:        true,
		Port:         "/dev/ttyACM0",
		Baud:         57600,
		Timeout:      time.Second,
		LinkTimeout:  20 * time.Millisecond,
		LogTimeout:   30 * time.Second,
		FrameTimeout: 50 * time.Millisecond,
		RetryLimit:   1,
		LogLevel:     logger.DebugLevel,
		LogBackend:   "zerolog",
		MetricsAddr:  "127.0.0.1:9464",
	}, cfg)
}

func TestLoadConfigFile_KeepsUndefinedKeys(t *testing.T) {
	path := writeConfig(t, `port = "COM3"`)

	cfg := DefaultConfig()
	require.NoError(t, LoadConfigFile(path, &cfg))

	want := DefaultConfig()
	want.Port = "COM3"
	assert.Equal(t, want, cfg)
}

func TestLoadConfigFile_Errors(t *testing.T) {
	tests := map[string]string{
		"unknown key":      `speed = 9600`,
		"unknown protocol": `protocol = "extended"`,
		"bad duration":     `timeout = "soon"`,
		"bad level":        `log_level = "loud"`,
		"bad syntax":       `port = `,
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			assert.Error(t, LoadConfigFile(writeConfig(t, content), &cfg))
		})
	}

	cfg := DefaultConfig()
	assert.Error(t, LoadConfigFile(filepath.Join(t.TempDir(), "missing.toml"), &cfg))
}

func TestConfig_ApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv(envMap(map[string]string{
		EnvPort:       "/dev/ttyUSB0",
		EnvLogLevel:   "error",
		EnvLogBackend: "logrus",
	})))

	assert.Equal(t, "/dev/ttyUSB0", cfg.Port)
	assert.Equal(t, logger.ErrorLevel, cfg.LogLevel)
	assert.Equal(t, "logrus", cfg.LogBackend)

	assert.Error(t, cfg.ApplyEnv(envMap(map[string]string{EnvLogLevel: "chatty"})))
}
