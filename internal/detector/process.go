package detector

import (
	"context"
	"strconv"
	"strings"

	gopsprocess "github.com/shirou/gopsutil/v4/process"

	"github.com/alexeldeib/gpu-checkpoint/internal/errdefs"
	"github.com/alexeldeib/gpu-checkpoint/internal/log"
)

// GpuDeviceType classifies an open file descriptor by the GPU device node
// it points at. Grounded on original_source/src/detector/process.rs's
// classify_fd.
type GpuDeviceType int

const (
	FdUnknown GpuDeviceType = iota
	FdNvidiaDevice
	FdNvidiaControl
	FdNvidiaUvm
	FdAmdGpu
	FdSharedMemory
)

func (t GpuDeviceType) String() string {
	switch t {
	case FdNvidiaDevice:
		return "nvidia-device"
	case FdNvidiaControl:
		return "nvidia-control"
	case FdNvidiaUvm:
		return "nvidia-uvm"
	case FdAmdGpu:
		return "amdgpu"
	case FdSharedMemory:
		return "shared-memory"
	default:
		return "unknown"
	}
}

// FileDescriptor is one open file descriptor entry for a process, resolved
// to its target path.
type FileDescriptor struct {
	Fd     int32
	Target string
}

// GpuFdInfo pairs a classified file descriptor with the device type it
// points at. DeviceID is only populated for FdNvidiaDevice, extracted from
// the trailing digits of a "/dev/nvidia<N>" path.
type GpuFdInfo struct {
	Fd         int32
	DeviceType GpuDeviceType
	DeviceID   *uint32
	Target     string
}

// ScanFileDescriptors lists a process's open file descriptors via gopsutil
// and returns only those that point at a GPU-related device node.
func ScanFileDescriptors(ctx context.Context, pid uint32) ([]GpuFdInfo, error) {
	proc, err := gopsprocess.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, classifyGopsutilErr(pid, err)
	}

	files, err := proc.OpenFilesWithContext(ctx)
	if err != nil {
		return nil, classifyGopsutilErr(pid, err)
	}

	var found []GpuFdInfo
	for _, f := range files {
		fd := FileDescriptor{Fd: int32(f.Fd), Target: f.Path}
		if devType, deviceID, ok := ClassifyFD(fd); ok {
			found = append(found, GpuFdInfo{Fd: fd.Fd, DeviceType: devType, DeviceID: deviceID, Target: fd.Target})
		}
	}

	log.Current.Debugw("scanned file descriptors", "pid", pid, "gpu_fds", len(found))
	return found, nil
}

// ClassifyFD maps a file descriptor's target path to a GpuDeviceType, along
// with a device ID extracted from the path when one is parseable (only for
// FdNvidiaDevice; e.g. "/dev/nvidia0" -> device ID 0). Grounded on
// original_source/src/detector/process.rs's classify_fd.
func ClassifyFD(fd FileDescriptor) (GpuDeviceType, *uint32, bool) {
	switch {
	case strings.Contains(fd.Target, "/dev/nvidia-uvm"):
		return FdNvidiaUvm, nil, true
	case strings.Contains(fd.Target, "/dev/nvidiactl"):
		return FdNvidiaControl, nil, true
	case strings.HasPrefix(fd.Target, "/dev/nvidia"):
		return FdNvidiaDevice, nvidiaDeviceID(fd.Target), true
	case strings.Contains(fd.Target, "/dev/kfd") || strings.HasPrefix(fd.Target, "/dev/dri/"):
		return FdAmdGpu, nil, true
	case strings.HasPrefix(fd.Target, "/dev/shm/") && (strings.Contains(fd.Target, "cuda") || strings.Contains(fd.Target, "nccl")):
		return FdSharedMemory, nil, true
	default:
		return FdUnknown, nil, false
	}
}

// nvidiaDeviceID extracts the numeric device index from a "/dev/nvidia<N>"
// path, returning nil when the suffix following "/dev/nvidia" isn't a plain
// decimal number (e.g. it is empty, or belongs to a path already handled by
// another branch of ClassifyFD).
func nvidiaDeviceID(target string) *uint32 {
	suffix := strings.TrimPrefix(target, "/dev/nvidia")
	if suffix == "" {
		return nil
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return nil
		}
	}
	n, err := strconv.ParseUint(suffix, 10, 32)
	if err != nil {
		return nil
	}
	id := uint32(n)
	return &id
}

// CheckProcessCmdline reports whether a process's command line mentions a
// GPU-related keyword. Grounded on check_process_cmdline.
func CheckProcessCmdline(ctx context.Context, pid uint32) (bool, error) {
	proc, err := gopsprocess.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return false, classifyGopsutilErr(pid, err)
	}
	args, err := proc.CmdlineSliceWithContext(ctx)
	if err != nil {
		return false, classifyGopsutilErr(pid, err)
	}
	joined := strings.ToLower(strings.Join(args, " "))
	return containsGpuKeyword(joined), nil
}

// CheckProcessEnviron reports whether a process's environment mentions a
// GPU-related keyword. Grounded on check_process_environ.
func CheckProcessEnviron(ctx context.Context, pid uint32) (bool, error) {
	proc, err := gopsprocess.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return false, classifyGopsutilErr(pid, err)
	}
	env, err := proc.EnvironWithContext(ctx)
	if err != nil {
		return false, classifyGopsutilErr(pid, err)
	}
	joined := strings.ToLower(strings.Join(env, "\n"))
	return containsGpuKeyword(joined), nil
}

// HasGpuEnvironment inspects a raw environment variable list the way
// original_source/src/detector/process.rs's has_gpu_environment does,
// keyword scan included.
//
// This preserves a quirk of the original: LD_LIBRARY_PATH is treated as a
// GPU signal purely by its name, regardless of its value, because the
// key-presence check short-circuits before the narrower value check for
// "cuda"/"nvidia"/"rocm" ever runs. A LD_LIBRARY_PATH unrelated to the GPU
// stack still reports true. See DESIGN.md for why this is kept rather than
// fixed.
func HasGpuEnvironment(env []string) bool {
	for _, kv := range env {
		key, value, found := strings.Cut(kv, "=")
		if !found {
			continue
		}
		if key == "LD_LIBRARY_PATH" {
			return true
		}
		lowerKey := strings.ToLower(key)
		if strings.Contains(lowerKey, "cuda") || strings.Contains(lowerKey, "nvidia") || strings.Contains(lowerKey, "rocm") {
			return true
		}
		lowerValue := strings.ToLower(value)
		if strings.Contains(lowerValue, "cuda") || strings.Contains(lowerValue, "nvidia") || strings.Contains(lowerValue, "rocm") {
			return true
		}
	}
	return false
}

func containsGpuKeyword(s string) bool {
	for _, kw := range []string{"cuda", "nvidia", "rocm", "nccl", "tensorrt"} {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func classifyGopsutilErr(pid uint32, err error) error {
	if err == gopsprocess.ErrorProcessNotRunning {
		return errdefs.ProcessNotFound(pid)
	}
	msg := err.Error()
	if strings.Contains(msg, "permission denied") {
		return errdefs.PermissionDenied()
	}
	return errdefs.IoError(err)
}
