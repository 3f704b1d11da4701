package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/gridloop/internal/app"
)

func parse(t *testing.T, args ...string) (*app.Config, bool, error) {
	t.Helper()
	var out bytes.Buffer
	return Parse(args, &out)
}

func TestParseDefaults(t *testing.T) {
	cfg, done, err := parse(t, "workflow.hcl")
	require.NoError(t, err)
	require.False(t, done)

	assert.Equal(t, "workflow.hcl", cfg.WorkflowPath)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, app.StateBackendMemory, cfg.StateBackend)
	assert.Equal(t, time.Duration(0), cfg.RunTimeout)
	assert.False(t, cfg.KeepState)
}

func TestParseWorkflowFlagVariants(t *testing.T) {
	cfg, _, err := parse(t, "--workflow", "a.hcl")
	require.NoError(t, err)
	assert.Equal(t, "a.hcl", cfg.WorkflowPath)

	cfg, _, err = parse(t, "-w", "b.yaml")
	require.NoError(t, err)
	assert.Equal(t, "b.yaml", cfg.WorkflowPath)
}

func TestParseAllOptions(t *testing.T) {
	cfg, done, err := parse(t,
		"--log-format", "text",
		"--log-level", "debug",
		"--workers", "8",
		"--healthcheck-port", "8080",
		"--run-timeout", "90s",
		"--keep-state",
		"workflow.hcl",
	)
	require.NoError(t, err)
	require.False(t, done)

	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 8, cfg.WorkerCount)
	assert.Equal(t, 8080, cfg.HealthcheckPort)
	assert.Equal(t, 90*time.Second, cfg.RunTimeout)
	assert.True(t, cfg.KeepState)
}

func TestParseNoArgsPrintsUsage(t *testing.T) {
	var out bytes.Buffer
	cfg, done, err := Parse(nil, &out)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParseInvalidLogFormat(t *testing.T) {
	_, _, err := parse(t, "--log-format", "xml", "workflow.hcl")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
	assert.Contains(t, exitErr.Message, "invalid log-format")
}

func TestParseInvalidLogLevel(t *testing.T) {
	_, _, err := parse(t, "--log-level", "verbose", "workflow.hcl")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Contains(t, exitErr.Message, "invalid log-level")
}

func TestParseRedisBackend(t *testing.T) {
	cfg, _, err := parse(t,
		"--state-backend", "redis",
		"--redis-url", "redis://localhost:6379/0",
		"workflow.hcl",
	)
	require.NoError(t, err)
	assert.Equal(t, app.StateBackendRedis, cfg.StateBackend)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
}

func TestParseRedisBackendFallsBackToEnv(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://env-host:6379/1")
	cfg, _, err := parse(t, "--state-backend", "redis", "workflow.hcl")
	require.NoError(t, err)
	assert.Equal(t, "redis://env-host:6379/1", cfg.RedisURL)
}

func TestParseRedisBackendWithoutURLFails(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	_, _, err := parse(t, "--state-backend", "redis", "workflow.hcl")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Contains(t, exitErr.Message, "requires a redis URL")
}

func TestParseUnknownFlag(t *testing.T) {
	_, _, err := parse(t, "--no-such-flag", "workflow.hcl")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}
