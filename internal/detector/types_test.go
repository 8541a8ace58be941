package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGpuAllocationSizeDerivedFromRange(t *testing.T) {
	a := NewGpuAllocation(0x100000000, 0x200000000, AllocStandard)
	assert.Equal(t, uint64(0x100000000), a.Size)
	assert.Equal(t, a.Size, a.VaddrEnd-a.VaddrStart)
}

func TestIsProblematic(t *testing.T) {
	tests := []struct {
		allocType AllocationType
		want      bool
	}{
		{AllocStandard, false},
		{AllocUvm, true},
		{AllocManaged, true},
		{AllocIpc, true},
		{AllocDistributed, true},
		{AllocBarMapped, false},
		{AllocHostPinned, false},
		{AllocUnknown, false},
	}
	for _, tc := range tests {
		a := NewGpuAllocation(0, 0x1000, tc.allocType)
		assert.Equal(t, tc.want, a.IsProblematic(), "alloc_type=%v", tc.allocType)
	}
}

// TestAddAllocationStats covers spec.md §8's per-type-counter and
// largest-allocation invariants across a mixed-type sequence.
func TestAddAllocationStats(t *testing.T) {
	result := NewDetectionResult(1234, VendorNvidia)

	// 1 MiB UVM allocation is the largest of the six.
	result.AddAllocation(NewGpuAllocation(0, 0x1000, AllocStandard))
	result.AddAllocation(NewGpuAllocation(0, 0x2000, AllocStandard))
	result.AddAllocation(NewGpuAllocation(0, 0x100000, AllocUvm))
	result.AddAllocation(NewGpuAllocation(0, 0x4000, AllocManaged))
	result.AddAllocation(NewGpuAllocation(0, 0x8000, AllocIpc))
	result.AddAllocation(NewGpuAllocation(0, 0x10000, AllocDistributed))

	assert.Equal(t, 2, result.Stats.StandardAllocations)
	assert.Equal(t, 1, result.Stats.UvmAllocations)
	assert.Equal(t, 1, result.Stats.ManagedAllocations)
	assert.Equal(t, 1, result.Stats.IpcAllocations)
	assert.Equal(t, 1, result.Stats.DistributedAllocations)

	var wantTotal uint64
	var wantLargest uint64
	for _, a := range result.Allocations {
		wantTotal += a.Size
		if a.Size > wantLargest {
			wantLargest = a.Size
		}
	}

	assert.Equal(t, wantTotal, result.Stats.TotalSize)
	assert.Equal(t, wantTotal, result.TotalGpuMemory)
	assert.Equal(t, wantLargest, result.Stats.LargestAllocation)
	assert.Equal(t, uint64(0x100000), result.Stats.LargestAllocation)
	assert.Len(t, result.Allocations, 6)
}

func TestDetectionResultEmptyStats(t *testing.T) {
	result := NewDetectionResult(1234, VendorNvidia)
	assert.Equal(t, uint64(0), result.TotalGpuMemory)
	assert.Equal(t, uint64(0), result.Stats.LargestAllocation)
	assert.False(t, result.HasProblematicAllocations())
}

func TestHasProblematicAllocations(t *testing.T) {
	result := NewDetectionResult(1234, VendorNvidia)
	result.AddAllocation(NewGpuAllocation(0, 0x1000, AllocStandard))
	assert.False(t, result.HasProblematicAllocations())

	result.AddAllocation(NewGpuAllocation(0, 0x1000, AllocUvm))
	assert.True(t, result.HasProblematicAllocations())
}

func TestAddAllocationPreservesInsertionOrder(t *testing.T) {
	result := NewDetectionResult(1234, VendorNvidia)
	result.AddAllocation(NewGpuAllocation(0, 0x1000, AllocUvm))
	result.AddAllocation(NewGpuAllocation(0, 0x1000, AllocIpc))
	result.AddAllocation(NewGpuAllocation(0, 0x1000, AllocBarMapped))

	wantOrder := []AllocationType{AllocUvm, AllocIpc, AllocBarMapped}
	for i, a := range result.Allocations {
		assert.Equal(t, wantOrder[i], a.AllocType)
	}
}
