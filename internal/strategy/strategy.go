// Package strategy selects and parses the checkpoint strategy for a
// detection result, grounded on original_source/src/strategy.rs (folded
// into CheckpointEngine::select_strategy there; split into its own package
// here to match the teacher's one-package-per-concern layout).
package strategy

import (
	"fmt"

	"github.com/alexeldeib/gpu-checkpoint/internal/detector"
)

// Strategy is the checkpoint approach chosen for a process.
type Strategy int

const (
	SkipGpu Strategy = iota
	CudaCheckpoint
	BarSliding
	Hybrid
	// Auto is not a checkpoint strategy in its own right; it tells the
	// caller to resolve the real strategy via Select.
	Auto
)

func (s Strategy) String() string {
	switch s {
	case SkipGpu:
		return "skip-gpu"
	case CudaCheckpoint:
		return "cuda"
	case BarSliding:
		return "bar-sliding"
	case Hybrid:
		return "hybrid"
	case Auto:
		return "auto"
	default:
		return "unknown"
	}
}

// Select is a pure function of a DetectionResult: empty allocations skip the
// GPU entirely, any problematic allocation forces BAR sliding, otherwise the
// vendor fast path is used. Hybrid is never chosen here — it is only
// reachable via an explicit override (ParseStrategy("hybrid")).
func Select(result *detector.DetectionResult) Strategy {
	if result == nil || len(result.Allocations) == 0 {
		return SkipGpu
	}
	if result.HasProblematicAllocations() {
		return BarSliding
	}
	return CudaCheckpoint
}

// ParseStrategy maps the CLI's --strategy flag values to a Strategy. An
// empty string or "auto" yields Auto; the caller must then resolve it via
// Select instead of using it directly as a checkpoint strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "auto":
		return Auto, nil
	case "cuda":
		return CudaCheckpoint, nil
	case "bar-sliding":
		return BarSliding, nil
	case "hybrid":
		return Hybrid, nil
	default:
		return Auto, fmt.Errorf("unknown strategy %q", s)
	}
}
