// Package restore implements the checkpoint reader / BAR-sliding restore
// path, grounded on original_source/src/checkpoint/bar_sliding.rs's
// BarRestore.
package restore

import (
	"io"
	"os"
	"time"

	"github.com/alexeldeib/gpu-checkpoint/internal/checkpoint"
	"github.com/alexeldeib/gpu-checkpoint/internal/detector"
	"github.com/alexeldeib/gpu-checkpoint/internal/errdefs"
	"github.com/alexeldeib/gpu-checkpoint/internal/log"
	"github.com/alexeldeib/gpu-checkpoint/internal/metrics"
)

// Metadata describes a completed restore operation. TotalSize includes
// bytes that were consumed-and-discarded in degraded mode.
type Metadata struct {
	Pid            uint32
	NumAllocations int
	TotalSize      uint64
	DurationMs     int64
}

const defaultWindow = 256 * 1024 * 1024

// Restorer streams a checkpoint file's payloads into a target process's
// memory, falling back to a degraded discard-only mode when the target
// isn't writable.
type Restorer struct {
	window   int
	progress checkpoint.Progress
}

// Option configures a Restorer at construction.
type Option func(*Restorer)

// WithWindowSize overrides the sliding-window size in bytes.
func WithWindowSize(bytes int) Option {
	return func(r *Restorer) {
		if bytes > 0 {
			r.window = bytes
		}
	}
}

// WithProgress attaches a progress sink.
func WithProgress(p checkpoint.Progress) Option {
	return func(r *Restorer) {
		if p != nil {
			r.progress = p
		}
	}
}

// NewRestorer builds a Restorer with the default window and no-op progress
// reporting unless overridden.
func NewRestorer(opts ...Option) *Restorer {
	r := &Restorer{window: defaultWindow, progress: checkpoint.NoopProgress{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RestoreFromCheckpoint streams checkpointPath into targetPid's memory. If
// targetPid is nil, the PID recorded in the checkpoint header is used.
func (r *Restorer) RestoreFromCheckpoint(checkpointPath string, targetPid *uint32) (*Metadata, error) {
	start := time.Now()

	in, err := os.Open(checkpointPath)
	if err != nil {
		return nil, errdefs.IoError(err)
	}
	defer in.Close()

	header, err := checkpoint.ReadCheckpointHeader(in)
	if err != nil {
		return nil, err
	}
	if err := header.Validate(); err != nil {
		return nil, err
	}

	pid := header.Pid
	if targetPid != nil {
		pid = *targetPid
	}

	memPath := detector.ProcPath(pid, "mem")
	mem, memErr := os.OpenFile(memPath, os.O_WRONLY, 0)
	degraded := memErr != nil
	if degraded {
		log.Current.Infow("target proc mem unavailable, restoring in degraded discard-only mode", "pid", pid, "path", memPath, "error", memErr)
	}
	if mem != nil {
		defer mem.Close()
	}

	buf := make([]byte, r.window)
	var totalSize uint64
	count := 0

	for i := uint32(0); i < header.NumAllocations; i++ {
		allocHdr, err := checkpoint.ReadAllocationHeader(in)
		if err != nil {
			break
		}
		count++

		consumed, writeErr := r.restoreAllocation(in, mem, allocHdr, buf)
		totalSize += consumed
		if writeErr != nil {
			log.Current.Warnw("restore write failed, discarding remaining payload", "pid", pid, "vaddr_start", allocHdr.VaddrStart, "error", writeErr)
		}
	}

	r.progress.Finish("restore complete")
	metrics.BytesRestored.Add(float64(totalSize))

	return &Metadata{
		Pid:            pid,
		NumAllocations: count,
		TotalSize:      totalSize,
		DurationMs:     time.Since(start).Milliseconds(),
	}, nil
}

// restoreAllocation streams exactly allocHdr.Size bytes from in. When mem is
// non-nil it seeks to VaddrStart and writes there; on any write failure (or
// when mem is nil, i.e. degraded mode) the remaining payload is consumed and
// discarded so the input stream stays aligned for the next header.
func (r *Restorer) restoreAllocation(in io.Reader, mem *os.File, allocHdr checkpoint.AllocationHeader, buf []byte) (uint64, error) {
	if mem != nil {
		if _, err := mem.Seek(int64(allocHdr.VaddrStart), io.SeekStart); err == nil {
			return r.copyToTarget(in, mem, allocHdr.Size, buf)
		}
	}
	return r.discard(in, allocHdr.Size, buf), nil
}

func (r *Restorer) copyToTarget(in io.Reader, mem *os.File, size uint64, buf []byte) (uint64, error) {
	var copied uint64
	var failed error
	for copied < size {
		chunk := uint64(len(buf))
		if remaining := size - copied; remaining < chunk {
			chunk = remaining
		}
		n, err := in.Read(buf[:chunk])
		if n > 0 {
			if failed == nil {
				if _, werr := mem.Write(buf[:n]); werr != nil {
					failed = errdefs.IoError(werr)
				} else {
					r.progress.Inc(uint64(n))
				}
			}
			copied += uint64(n)
		}
		if err != nil {
			break
		}
		if n == 0 {
			break
		}
	}
	return copied, failed
}

// discard reads and throws away exactly up to size bytes of payload (or
// until the input is exhausted), keeping the stream aligned for the next
// allocation header.
func (r *Restorer) discard(in io.Reader, size uint64, buf []byte) uint64 {
	var copied uint64
	for copied < size {
		chunk := uint64(len(buf))
		if remaining := size - copied; remaining < chunk {
			chunk = remaining
		}
		n, err := in.Read(buf[:chunk])
		copied += uint64(n)
		if err != nil {
			break
		}
		if n == 0 {
			break
		}
	}
	return copied
}
