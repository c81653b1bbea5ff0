// Package diagnostics checks host resources before the engine fans out
// over child processes and network calls.
package diagnostics

import (
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Thresholds for preflight checks.
const (
	// minAvailableMemoryBytes is the floor below which spawning several
	// CLI children is likely to thrash or OOM.
	minAvailableMemoryBytes = 256 << 20 // 256 MiB

	// loadPerCoreWarn triggers a warning when the 1-minute load average
	// per core exceeds it.
	loadPerCoreWarn = 2.0
)

// PreflightResult reports host readiness.
type PreflightResult struct {
	OK       bool
	Errors   []string
	Warnings []string

	AvailableMemoryBytes uint64
	Load1                float64
	Cores                int
}

// RunPreflight checks available memory and load. Metric read failures
// degrade to warnings; only a confirmed resource shortage blocks.
func RunPreflight() *PreflightResult {
	result := &PreflightResult{OK: true, Cores: runtime.NumCPU()}

	if vm, err := mem.VirtualMemory(); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("memory stats unavailable: %v", err))
	} else {
		result.AvailableMemoryBytes = vm.Available
		if vm.Available < minAvailableMemoryBytes {
			result.OK = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"available memory %d MiB below %d MiB floor",
				vm.Available>>20, minAvailableMemoryBytes>>20))
		}
	}

	if avg, err := load.Avg(); err == nil {
		result.Load1 = avg.Load1
		if result.Cores > 0 && avg.Load1/float64(result.Cores) > loadPerCoreWarn {
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"load average %.1f high for %d cores", avg.Load1, result.Cores))
		}
	}

	return result
}
