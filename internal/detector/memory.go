package detector

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/alexeldeib/gpu-checkpoint/internal/errdefs"
	"github.com/alexeldeib/gpu-checkpoint/internal/log"
)

// MemoryRegion is one parsed line of /proc/<pid>/maps. Grounded on
// original_source/src/detector/memory.rs's MemoryRegion + parse_line.
type MemoryRegion struct {
	Start    uint64
	End      uint64
	Perms    string
	Offset   uint64
	Dev      string
	Inode    uint64
	Pathname string // empty when the region has no backing pathname
}

// ParseMaps reads and structures /proc/<pid>/maps. On non-Linux platforms it
// returns an empty sequence, per spec.md §4.1.
func ParseMaps(pid uint32) ([]MemoryRegion, error) {
	if runtime.GOOS != "linux" {
		log.Current.Debugw("memory map parsing not supported on this platform")
		return nil, nil
	}

	path := ProcPath(pid, "maps")
	f, err := os.Open(path)
	if err != nil {
		return nil, classifyProcfsOpenErr(pid, err)
	}
	defer f.Close()

	var regions []MemoryRegion
	scanner := bufio.NewScanner(f)
	// maps lines can be long when the pathname is long; grow the buffer rather
	// than truncate.
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		if region, ok := parseMapsLine(scanner.Text()); ok {
			regions = append(regions, region)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errdefs.IoError(err)
	}

	log.Current.Debugw("parsed memory regions", "pid", pid, "count", len(regions))
	return regions, nil
}

// parseMapsLine parses one whitespace-delimited /proc/<pid>/maps line.
// Malformed lines are signaled by ok == false and are silently skipped by the
// caller, per spec.md §4.1.
func parseMapsLine(line string) (region MemoryRegion, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return MemoryRegion{}, false
	}

	addrParts := strings.SplitN(fields[0], "-", 2)
	if len(addrParts) != 2 {
		return MemoryRegion{}, false
	}
	start, err := strconv.ParseUint(addrParts[0], 16, 64)
	if err != nil {
		return MemoryRegion{}, false
	}
	end, err := strconv.ParseUint(addrParts[1], 16, 64)
	if err != nil {
		return MemoryRegion{}, false
	}
	if end <= start {
		return MemoryRegion{}, false
	}

	offset, err := strconv.ParseUint(fields[2], 16, 64)
	if err != nil {
		return MemoryRegion{}, false
	}

	inode, err := strconv.ParseUint(fields[4], 10, 64)
	if err != nil {
		return MemoryRegion{}, false
	}

	var pathname string
	if len(fields) > 5 {
		pathname = strings.Join(fields[5:], " ")
	}

	return MemoryRegion{
		Start:    start,
		End:      end,
		Perms:    fields[1],
		Offset:   offset,
		Dev:      fields[3],
		Inode:    inode,
		Pathname: pathname,
	}, true
}

const largeAnonThreshold = 64 * 1024 * 1024 // 64 MiB

// ClassifyRegion applies the vendor-agnostic rules of spec.md §4.3 to a
// single region, independent of any other region. It is a pure function: the
// same region always classifies the same way.
func ClassifyRegion(region MemoryRegion) (GpuAllocation, bool) {
	path := region.Pathname
	if path == "" {
		return GpuAllocation{}, false
	}

	switch {
	case strings.Contains(path, "/dev/nvidia-uvm"):
		a := NewGpuAllocation(region.Start, region.End, AllocUvm)
		a.Metadata = regionMetadata(region)
		return a, true

	case strings.HasPrefix(path, "/dev/nvidia"):
		a := NewGpuAllocation(region.Start, region.End, AllocStandard)
		a.Metadata = regionMetadata(region)
		return a, true

	case strings.HasPrefix(path, "[anon:") && strings.Contains(path, "cuda"):
		a := NewGpuAllocation(region.Start, region.End, AllocManaged)
		a.Metadata.Protection = region.Perms
		return a, true

	case strings.HasPrefix(path, "/dev/shm/") && (strings.Contains(path, "cuda") || strings.Contains(path, "nccl")):
		allocType := AllocIpc
		distributed := false
		if strings.Contains(path, "nccl") || strings.Contains(path, "horovod") {
			allocType = AllocDistributed
			distributed = true
		}
		a := NewGpuAllocation(region.Start, region.End, allocType)
		a.Metadata = regionMetadata(region)
		a.Metadata.IsShared = true
		a.Metadata.IsDistributed = distributed
		return a, true

	case strings.Contains(path, "/sys/bus/pci/devices/") && strings.Contains(path, "resource"):
		a := NewGpuAllocation(region.Start, region.End, AllocBarMapped)
		a.Metadata = regionMetadata(region)
		return a, true

	case (path == "[heap]" || strings.HasPrefix(path, "[anon:")) && region.End-region.Start >= largeAnonThreshold:
		a := NewGpuAllocation(region.Start, region.End, AllocUnknown)
		a.Metadata.Protection = region.Perms
		return a, true

	default:
		return GpuAllocation{}, false
	}
}

func regionMetadata(region MemoryRegion) AllocationMetadata {
	return AllocationMetadata{
		BackingFile: region.Pathname,
		Protection:  region.Perms,
		IsShared:    strings.Contains(region.Perms, "s"),
	}
}

// ProcPath builds /proc/<pid>/<leaf>, shared by every procfs-reading
// package in this module.
func ProcPath(pid uint32, leaf string) string {
	return "/proc/" + strconv.FormatUint(uint64(pid), 10) + "/" + leaf
}

func classifyProcfsOpenErr(pid uint32, err error) error {
	if os.IsNotExist(err) {
		return errdefs.ProcessNotFound(pid)
	}
	if os.IsPermission(err) {
		return errdefs.PermissionDenied()
	}
	return errdefs.IoError(err)
}
