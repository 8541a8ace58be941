package detector

import (
	"context"
	"os"

	"github.com/alexeldeib/gpu-checkpoint/internal/log"
	"github.com/alexeldeib/gpu-checkpoint/internal/metrics"
)

var gpuDeviceNodes = []string{"/dev/nvidia0", "/dev/nvidiactl"}

// anyGpuDeviceNodePresent reports whether any known GPU device node exists
// on this host. Used to decide whether to register the NVIDIA detector at
// all, mirroring original_source/src/detector/mod.rs's composite detector
// setup.
func anyGpuDeviceNodePresent() bool {
	for _, path := range gpuDeviceNodes {
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}
	return false
}

// CompositeDetector runs every registered vendor detector against a PID and
// aggregates their results. A single detector's error is logged and
// swallowed rather than aborting the scan, so one vendor's failure never
// hides another vendor's allocations.
type CompositeDetector struct {
	detectors []GpuDetector
}

// NewCompositeDetector registers the NVIDIA detector when a GPU device node
// is present on the host. AMD/Intel detectors are not implemented.
func NewCompositeDetector() *CompositeDetector {
	c := &CompositeDetector{}
	if anyGpuDeviceNodePresent() {
		c.detectors = append(c.detectors, NewNvidiaDetector())
	} else {
		log.Current.Debugw("no GPU device nodes found, composite detector has no backends")
	}
	return c
}

// WithDetectors overrides the registered detector set, primarily for tests.
func (c *CompositeDetector) WithDetectors(detectors ...GpuDetector) *CompositeDetector {
	c.detectors = detectors
	return c
}

// DetectAll runs every registered detector against pid and returns one
// DetectionResult per detector that didn't error. Detector-level errors are
// logged, not returned, so a permission failure in one vendor's scan
// doesn't prevent another vendor's result from coming back.
func (c *CompositeDetector) DetectAll(ctx context.Context, pid uint32) ([]*DetectionResult, error) {
	var results []*DetectionResult
	for _, d := range c.detectors {
		result, err := d.DetectAllocations(ctx, pid)
		if err != nil {
			log.Current.Warnw("detector failed", "vendor", d.Vendor().String(), "pid", pid, "error", err)
			continue
		}
		results = append(results, result)
	}
	recordAllocationMetrics(results)
	return results, nil
}

func recordAllocationMetrics(results []*DetectionResult) {
	counts := map[AllocationType]int{}
	for _, r := range results {
		for _, a := range r.Allocations {
			counts[a.AllocType]++
		}
	}
	for allocType, n := range counts {
		metrics.AllocationsDetected.WithLabelValues(allocType.String()).Set(float64(n))
	}
}
