package checkpoint

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := CheckpointHeader{Magic: Magic, Version: Version, Pid: 4242, NumAllocations: 2, TotalSize: 8192, Timestamp: 1700000000}
	var buf bytes.Buffer
	require.NoError(t, h.WriteTo(&buf))
	assert.Equal(t, headerSize, buf.Len())

	got, err := ReadCheckpointHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.NoError(t, got.Validate())
}

func TestHeaderValidateBadMagic(t *testing.T) {
	h := CheckpointHeader{Magic: 0, Version: Version}
	assert.Error(t, h.Validate())
}

func TestHeaderValidateBadVersion(t *testing.T) {
	h := CheckpointHeader{Magic: Magic, Version: 2}
	assert.Error(t, h.Validate())
}

func TestAllocationHeaderRoundTrip(t *testing.T) {
	a := AllocationHeader{VaddrStart: 0x1000, VaddrEnd: 0x2000, Size: 0x1000, DeviceID: 0, Flags: 0}
	var buf bytes.Buffer
	require.NoError(t, a.WriteTo(&buf))
	assert.Equal(t, allocHdrSize, buf.Len())

	got, err := ReadAllocationHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestReadHeaderShortRead(t *testing.T) {
	_, err := ReadCheckpointHeader(bytes.NewReader([]byte{1, 2, 3}))
	assert.Error(t, err)
}
