package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darianrosebrook/sterling-executor/agent/config"
)

const sample = `
buildExecMaxAttempts: 10
buildingLeaves:
  - place_block
  - place_workstation
taskTypeBridgeLeafNames:
  - acquire_material
enableTaskTypeBridge: true
legacyLeafRewriteEnabled: false
loopBreakerEnabled: true
maxRetries: 5
`

func TestLoad_ParsesSetsAndScalars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	resolved, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, resolved.Executor.BuildExecMaxAttempts)
	assert.True(t, resolved.Executor.BuildingLeaves["place_block"])
	assert.True(t, resolved.Executor.TaskTypeBridgeLeaves["acquire_material"])
	assert.True(t, resolved.Executor.EnableTaskTypeBridge)
	assert.False(t, resolved.Executor.LegacyLeafRewriteEnabled)
	assert.True(t, resolved.Executor.LoopBreakerEnabled)
	assert.Equal(t, int64(5), resolved.Executor.MaxRetries)
}

func TestResolve_AppliesDefaultsForOmittedKeys(t *testing.T) {
	resolved := config.Resolve(config.File{})
	assert.Equal(t, int64(3), resolved.Executor.MaxRetries)
	assert.Equal(t, 20, resolved.Executor.BuildExecMaxAttempts)
	assert.Equal(t, int64(120_000), resolved.Executor.BuildExecMaxElapsedMs)
	assert.NotEmpty(t, resolved.MemoryEndpoint)
}

func TestResolve_MemoryEndpointEnvOverride(t *testing.T) {
	t.Setenv("MEMORY_ENDPOINT", "http://override.example/hints")
	resolved := config.Resolve(config.File{MemoryEndpoint: "http://file.example/hints"})
	assert.Equal(t, "http://override.example/hints", resolved.MemoryEndpoint)
}
