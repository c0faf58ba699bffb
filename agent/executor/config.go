package executor

import (
	"time"

	"github.com/darianrosebrook/sterling-executor/agent/ictx"
	"github.com/darianrosebrook/sterling-executor/runtime/agent/telemetry"
)

// Config carries the recognized configuration keys the executor reads
//. It is an alias of ictx.Config so Context implementations
// outside this package can build one without importing executor.
type Config = ictx.Config

// DefaultConfig returns the executor's default configuration.
func DefaultConfig() Config {
	return Config{
		BuildExecMaxAttempts:   20,
		BuildExecMinIntervalMs: int64(2 * time.Second / time.Millisecond),
		BuildExecMaxElapsedMs:  int64(120 * time.Second / time.Millisecond),
		BuildingLeaves: map[string]bool{
			"place_block":       true,
			"place_workstation": true,
		},
		TaskTypeBridgeLeaves:     map[string]bool{},
		EnableTaskTypeBridge:     false,
		LegacyLeafRewriteEnabled: true,
		LoopBreakerEnabled:       false,
		MaxRetries:               3,
		Logger:                   telemetry.NewNoopLogger(),
	}
}
