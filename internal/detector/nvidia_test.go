package detector

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func regionsFixture() []MemoryRegion {
	return []MemoryRegion{
		{Start: 0x1000, End: 0x2000, Perms: "rw-p", Pathname: "[anon:cuda_managed]"},
		{Start: 0x3000, End: 0x4000, Perms: "rw-s", Pathname: "/dev/shm/cuda.ipc.7"},
		{Start: 0x5000, End: 0x6000, Perms: "rw-s", Pathname: "/dev/shm/nccl-rank0"},
		{Start: 0x7000, End: 0x8000, Perms: "rw-s", Pathname: "/sys/bus/pci/devices/0000:01:00.0/resource0"},
		{Start: 0x9000, End: 0xa000, Perms: "rw-p", Pathname: "/dev/nvidia-uvm"},
		{Start: 0xb000, End: 0xc000, Perms: "rw-p", Pathname: "/lib/libc.so"},
	}
}

func TestDetectUvmAllocations(t *testing.T) {
	out := detectUvmAllocations(regionsFixture())
	assert.Len(t, out, 2)
	for _, a := range out {
		assert.Contains(t, []AllocationType{AllocUvm, AllocManaged}, a.AllocType)
	}
}

func TestDetectIpcAllocations(t *testing.T) {
	out := detectIpcAllocations(regionsFixture())
	assert.Len(t, out, 2)
	types := []AllocationType{out[0].AllocType, out[1].AllocType}
	assert.Contains(t, types, AllocIpc)
	assert.Contains(t, types, AllocDistributed)
}

func TestDetectBarMappings(t *testing.T) {
	out := detectBarMappings(regionsFixture())
	assert.Len(t, out, 1)
	assert.Equal(t, AllocBarMapped, out[0].AllocType)
}

func TestCheckNvidiaMLNeverEnriches(t *testing.T) {
	assert.Nil(t, checkNvidiaML())
}

func TestNvidiaDetectorVendor(t *testing.T) {
	d := NewNvidiaDetector()
	assert.Equal(t, VendorNvidia, d.Vendor())
}

// TestHasNvidiaFd covers the filter IsGpuProcess and DetectAllocations both
// rely on: an AMD or shared-memory FD alone must never look like an NVIDIA
// signal.
func TestHasNvidiaFd(t *testing.T) {
	assert.False(t, hasNvidiaFd(nil))
	assert.False(t, hasNvidiaFd([]GpuFdInfo{{DeviceType: FdAmdGpu}}))
	assert.False(t, hasNvidiaFd([]GpuFdInfo{{DeviceType: FdSharedMemory}}))
	assert.True(t, hasNvidiaFd([]GpuFdInfo{{DeviceType: FdAmdGpu}, {DeviceType: FdNvidiaDevice}}))
	assert.True(t, hasNvidiaFd([]GpuFdInfo{{DeviceType: FdNvidiaControl}}))
	assert.True(t, hasNvidiaFd([]GpuFdInfo{{DeviceType: FdNvidiaUvm}}))
}

// TestIsGpuProcessSelf exercises IsGpuProcess end-to-end against the test
// process's own PID, matching the teacher's self-PID procfs test style.
func TestIsGpuProcessSelf(t *testing.T) {
	d := NewNvidiaDetector()
	_, err := d.IsGpuProcess(context.Background(), uint32(os.Getpid()))
	require.NoError(t, err)
}
