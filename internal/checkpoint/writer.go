package checkpoint

import (
	"io"
	"os"
	"time"

	"github.com/alexeldeib/gpu-checkpoint/internal/detector"
	"github.com/alexeldeib/gpu-checkpoint/internal/errdefs"
	"github.com/alexeldeib/gpu-checkpoint/internal/log"
	"github.com/alexeldeib/gpu-checkpoint/internal/metrics"
)

// Metadata describes a completed checkpoint operation.
type Metadata struct {
	Pid            uint32
	Path           string
	SizeBytes      uint64 // total payload bytes, not file size
	DurationMs     int64
	NumAllocations int
}

// Writer streams a DetectionResult's allocations from /proc/<pid>/mem into a
// checkpoint file using a fixed-size sliding window. Grounded on
// original_source/src/checkpoint/bar_sliding.rs's BarSlidingCheckpoint.
type Writer struct {
	window   int
	progress Progress
}

// Option configures a Writer at construction, matching the teacher's
// functional-options idiom (cmd/gpud/scan.OpOption).
type Option func(*Writer)

// WithWindowSize overrides the sliding-window size in bytes. Values <= 0
// leave the default (256 MiB) in place.
func WithWindowSize(bytes int) Option {
	return func(w *Writer) {
		if bytes > 0 {
			w.window = bytes
		}
	}
}

// WithProgress attaches a progress sink. A nil sink is replaced with
// NoopProgress.
func WithProgress(p Progress) Option {
	return func(w *Writer) {
		if p != nil {
			w.progress = p
		}
	}
}

// NewWriter builds a Writer with the default 256 MiB window and no-op
// progress reporting unless overridden.
func NewWriter(opts ...Option) *Writer {
	w := &Writer{window: defaultWindow, progress: NoopProgress{}}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// nowUnix is overridable in tests; production code always uses time.Now.
var nowUnix = func() uint64 { return uint64(time.Now().Unix()) }

// CheckpointProcess writes detection's allocations for pid to outputPath.
func (w *Writer) CheckpointProcess(pid uint32, detection *detector.DetectionResult, outputPath string) (*Metadata, error) {
	start := time.Now()

	out, err := os.Create(outputPath)
	if err != nil {
		return nil, errdefs.IoError(err)
	}
	defer out.Close()

	header := CheckpointHeader{
		Magic:          Magic,
		Version:        Version,
		Pid:            pid,
		NumAllocations: uint32(len(detection.Allocations)),
		TotalSize:      detection.TotalGpuMemory,
		Timestamp:      nowUnix(),
	}
	if err := header.WriteTo(out); err != nil {
		return nil, err
	}

	memPath := procMemPath(pid)
	mem, memErr := os.Open(memPath)
	if memErr != nil {
		if os.IsPermission(memErr) {
			return nil, errdefs.PermissionDenied()
		}
		if !os.IsNotExist(memErr) {
			return nil, errdefs.IoError(memErr)
		}
		log.Current.Infow("proc mem unavailable for checkpoint, writing zero-filled payloads", "pid", pid, "path", memPath)
	}
	if mem != nil {
		defer mem.Close()
	}

	var totalPayload uint64
	buf := make([]byte, w.window)

	for _, a := range detection.Allocations {
		allocHdr := AllocationHeader{
			VaddrStart: a.VaddrStart,
			VaddrEnd:   a.VaddrEnd,
			Size:       a.Size,
		}
		if a.DeviceID != nil {
			allocHdr.DeviceID = *a.DeviceID
		}
		if err := allocHdr.WriteTo(out); err != nil {
			return nil, err
		}

		written, err := w.copyAllocation(out, mem, a.VaddrStart, a.Size, buf)
		totalPayload += written
		if err != nil {
			return nil, err
		}
	}

	w.progress.Finish("checkpoint complete")
	metrics.BytesCheckpointed.Add(float64(totalPayload))

	return &Metadata{
		Pid:            pid,
		Path:           outputPath,
		SizeBytes:      totalPayload,
		DurationMs:     time.Since(start).Milliseconds(),
		NumAllocations: len(detection.Allocations),
	}, nil
}

// copyAllocation writes up to size bytes of payload to out, either sourced
// from mem starting at vaddrStart (when mem is non-nil) or as zero fill,
// which always writes exactly size bytes.
// A short read from mem ends the copy early without error, per spec.md §4.7
// point 5 — the resulting file is truncated and intentionally left invalid
// for a strict restore.
func (w *Writer) copyAllocation(out io.Writer, mem *os.File, vaddrStart uint64, size uint64, buf []byte) (uint64, error) {
	if mem == nil {
		return w.copyZeroFill(out, size, buf)
	}

	if _, err := mem.Seek(int64(vaddrStart), io.SeekStart); err != nil {
		return 0, errdefs.IoError(err)
	}

	var copied uint64
	for copied < size {
		chunk := uint64(len(buf))
		if remaining := size - copied; remaining < chunk {
			chunk = remaining
		}
		n, err := mem.Read(buf[:chunk])
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return copied, errdefs.IoError(werr)
			}
			copied += uint64(n)
			w.progress.Inc(uint64(n))
		}
		if err != nil {
			// Short read or EOF: stop here, not an error.
			break
		}
		if n == 0 {
			break
		}
	}
	return copied, nil
}

func (w *Writer) copyZeroFill(out io.Writer, size uint64, buf []byte) (uint64, error) {
	for i := range buf {
		buf[i] = 0
	}
	var copied uint64
	for copied < size {
		chunk := uint64(len(buf))
		if remaining := size - copied; remaining < chunk {
			chunk = remaining
		}
		if _, err := out.Write(buf[:chunk]); err != nil {
			return copied, errdefs.IoError(err)
		}
		copied += chunk
		w.progress.Inc(chunk)
	}
	return copied, nil
}

func procMemPath(pid uint32) string {
	return detector.ProcPath(pid, "mem")
}
