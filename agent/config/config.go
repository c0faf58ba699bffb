// Package config loads the executor's configuration keys from a YAML
// file and applies environment overrides and defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/darianrosebrook/sterling-executor/agent/ictx"
	"github.com/darianrosebrook/sterling-executor/runtime/agent/telemetry"
)

// defaultMemoryEndpoint is the memory-hints URL used when neither the
// config file nor the MEMORY_ENDPOINT environment variable overrides it
const defaultMemoryEndpoint = "http://localhost:8787/memory/hints"

// File is the on-disk YAML shape for the executor's configuration.
type File struct {
	BuildExecBudgetDisabled bool     `yaml:"buildExecBudgetDisabled"`
	BuildExecMaxAttempts    int      `yaml:"buildExecMaxAttempts"`
	BuildExecMinIntervalMs  int64    `yaml:"buildExecMinIntervalMs"`
	BuildExecMaxElapsedMs   int64    `yaml:"buildExecMaxElapsedMs"`
	BuildingLeaves          []string `yaml:"buildingLeaves"`
	TaskTypeBridgeLeafNames []string `yaml:"taskTypeBridgeLeafNames"`
	LeafAllowlist           []string `yaml:"leafAllowlist"`
	EnableTaskTypeBridge    bool     `yaml:"enableTaskTypeBridge"`
	LegacyLeafRewriteEnabled bool    `yaml:"legacyLeafRewriteEnabled"`
	LoopBreakerEnabled      bool     `yaml:"loopBreakerEnabled"`
	MaxRetries              int64    `yaml:"maxRetries"`
	MemoryEndpoint          string   `yaml:"memoryEndpoint"`

	// MemoryHintsTimeoutMs / MemoryHintsRetries bound the memory-hints HTTP
	// call.
	MemoryHintsTimeoutMs int `yaml:"memoryHintsTimeoutMs"`
	MemoryHintsRetries   int `yaml:"memoryHintsRetries"`
}

// Resolved is the File plus environment overrides and defaults applied,
// ready to hand to ictx.Config and the memory-hints client.
type Resolved struct {
	Executor       ictx.Config
	MemoryEndpoint string
	MemoryHints    MemoryHintsConfig
}

// MemoryHintsConfig bounds the memory-hints HTTP call.
type MemoryHintsConfig struct {
	Timeout time.Duration
	Retries int
	// BaseBackoff is the exponential backoff base between retries.
	BaseBackoff time.Duration
}

// Load reads and parses a YAML config file at path, applying the
// MEMORY_ENDPOINT environment override and the documented defaults for
// any key the file omits.
func Load(path string) (Resolved, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Resolved{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Resolved{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return Resolve(f), nil
}

// Resolve applies defaults and the MEMORY_ENDPOINT environment override to
// a parsed File, without touching the filesystem. Exported separately from
// Load so callers constructing a File in-process (e.g. tests) can still
// exercise the resolution rules.
func Resolve(f File) Resolved {
	maxRetries := f.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	maxAttempts := f.BuildExecMaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 20
	}
	minInterval := f.BuildExecMinIntervalMs
	if minInterval == 0 {
		minInterval = 2000
	}
	maxElapsed := f.BuildExecMaxElapsedMs
	if maxElapsed == 0 {
		maxElapsed = 120_000
	}

	endpoint := f.MemoryEndpoint
	if v := os.Getenv("MEMORY_ENDPOINT"); v != "" {
		endpoint = v
	}
	if endpoint == "" {
		endpoint = defaultMemoryEndpoint
	}

	timeoutMs := f.MemoryHintsTimeoutMs
	if timeoutMs == 0 {
		timeoutMs = 5000
	}
	retries := f.MemoryHintsRetries
	if retries == 0 {
		retries = 2
	}

	return Resolved{
		Executor: ictx.Config{
			BuildExecBudgetDisabled:  f.BuildExecBudgetDisabled,
			BuildExecMaxAttempts:     maxAttempts,
			BuildExecMinIntervalMs:   minInterval,
			BuildExecMaxElapsedMs:    maxElapsed,
			BuildingLeaves:           toSet(f.BuildingLeaves),
			TaskTypeBridgeLeaves:     toSet(f.TaskTypeBridgeLeafNames),
			LeafAllowlist:            toSet(f.LeafAllowlist),
			EnableTaskTypeBridge:     f.EnableTaskTypeBridge,
			LegacyLeafRewriteEnabled: f.LegacyLeafRewriteEnabled,
			LoopBreakerEnabled:       f.LoopBreakerEnabled,
			MaxRetries:               maxRetries,
			Logger:                   telemetry.NewNoopLogger(),
		},
		MemoryEndpoint: endpoint,
		MemoryHints: MemoryHintsConfig{
			Timeout:     time.Duration(timeoutMs) * time.Millisecond,
			Retries:     retries,
			BaseBackoff: 200 * time.Millisecond,
		},
	}
}

func toSet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}
