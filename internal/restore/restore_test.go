package restore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alexeldeib/gpu-checkpoint/internal/checkpoint"
	"github.com/alexeldeib/gpu-checkpoint/internal/detector"
	"github.com/alexeldeib/gpu-checkpoint/internal/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixtureCheckpoint(t *testing.T, path string, pid uint32, size uint64) {
	t.Helper()
	detection := detector.NewDetectionResult(pid, detector.VendorNvidia)
	detection.AddAllocation(detector.NewGpuAllocation(0x1000, 0x1000+size, detector.AllocStandard))
	w := checkpoint.NewWriter(checkpoint.WithWindowSize(64))
	_, err := w.CheckpointProcess(pid, detection, path)
	require.NoError(t, err)
}

func TestRestoreHeaderOnlyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ckpt.bin")
	detection := detector.NewDetectionResult(1234, detector.VendorNvidia)
	w := checkpoint.NewWriter()
	_, err := w.CheckpointProcess(1234, detection, path)
	require.NoError(t, err)

	r := NewRestorer()
	meta, err := r.RestoreFromCheckpoint(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, meta.NumAllocations)
	assert.Equal(t, uint64(0), meta.TotalSize)
}

func TestRestoreDegradedModeCountsBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ckpt.bin")
	writeFixtureCheckpoint(t, path, 999999996, 256)

	var targetPid uint32 = 999999995
	r := NewRestorer(WithWindowSize(32))
	meta, err := r.RestoreFromCheckpoint(path, &targetPid)
	require.NoError(t, err)
	assert.Equal(t, 1, meta.NumAllocations)
	assert.Equal(t, uint64(256), meta.TotalSize)
	assert.Equal(t, targetPid, meta.Pid)
}

func TestRestoreUsesHeaderPidWhenTargetNil(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ckpt.bin")
	writeFixtureCheckpoint(t, path, 999999994, 64)

	r := NewRestorer()
	meta, err := r.RestoreFromCheckpoint(path, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(999999994), meta.Pid)
}

func TestRestoreBadMagicIsRestoreError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ckpt.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 32), 0o600))

	r := NewRestorer()
	_, err := r.RestoreFromCheckpoint(path, nil)
	assert.Error(t, err)
	assert.True(t, errdefs.IsRestoreError(err))
}

func TestRestoreShortHeaderReadIsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ckpt.bin")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o600))

	r := NewRestorer()
	_, err := r.RestoreFromCheckpoint(path, nil)
	assert.Error(t, err)
}
