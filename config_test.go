package fluid

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/zerr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	zapobserver "go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, "fluid.yaml", "construction_wait: 250ms\nverify_on_start: true\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.ConstructionWait)
	assert.True(t, cfg.VerifyOnStart)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	broken := writeFile(t, "broken.yaml", "construction_wait: [1\n")
	_, err = LoadConfig(broken)
	assert.ErrorContains(t, err, "failed to parse config file")
	var zErr *zerr.Error
	require.ErrorAs(t, err, &zErr)
	assert.Equal(t, broken, zErr.Metadata()["path"])

	_, err = LoadConfig(writeFile(t, "negative.yaml", "construction_wait: -1s\n"))
	assert.ErrorContains(t, err, "must not be negative")
}

func TestConfig_LoadEnv(t *testing.T) {
	envFile := writeFile(t, ".env", "FLUID_CONSTRUCTION_WAIT=2s\nFLUID_LOG_LEVEL=warn\n")
	t.Setenv("FLUID_LOG_LEVEL", "debug")
	t.Setenv("FLUID_VERIFY_ON_START", "true")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadEnv(envFile, filepath.Join(t.TempDir(), "absent.env")))

	assert.Equal(t, 2*time.Second, cfg.ConstructionWait)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.VerifyOnStart)
}

func TestConfig_LoadEnvInvalid(t *testing.T) {
	cfg := DefaultConfig()
	t.Setenv("FLUID_CONSTRUCTION_WAIT", "soon")
	assert.ErrorContains(t, cfg.LoadEnv(), "invalid construction wait")

	t.Setenv("FLUID_CONSTRUCTION_WAIT", "-1s")
	assert.ErrorContains(t, cfg.LoadEnv(), "must not be negative")

	t.Setenv("FLUID_CONSTRUCTION_WAIT", "1s")
	t.Setenv("FLUID_VERIFY_ON_START", "maybe")
	assert.ErrorContains(t, cfg.LoadEnv(), "invalid verify on start")
}

func TestNewLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "debug"
	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	cfg.LogLevel = "chatty"
	_, err = NewLogger(cfg)
	assert.Error(t, err)
}

func TestConfig_ConstructionWaitReachesCache(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConstructionWait = time.Second
	c := New(WithConfig(cfg))
	assert.Equal(t, time.Second, c.cache.wait)
	assert.Equal(t, time.Second, c.NewChild().cache.wait)
}

func TestSetLogger(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })
	assert.NotNil(t, Logger())

	core, logs := zapobserver.New(zapcore.DebugLevel)
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			SetLogger(zap.New(core))
			_ = Logger()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	c := New()
	require.NoError(t, c.Bind(Instance(&testWidget{})))
	assert.NotZero(t, logs.FilterMessage("bound component").Len())

	SetLogger(nil)
	assert.NotNil(t, Logger())
}
