// Package nvmlinfo provides best-effort, advisory-only NVIDIA device
// enrichment via NVML, grounded on leptonai-gpud's
// components/accelerator/nvidia/query/detect.go (LoadProductName). Nothing
// in this package is allowed to influence a DetectionResult: callers may
// only use it to annotate logs or CLI output.
package nvmlinfo

import (
	"github.com/NVIDIA/go-nvlib/pkg/nvlib/device"
	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"github.com/alexeldeib/gpu-checkpoint/internal/log"
)

// DeviceInfo is one NVML-enumerated GPU, for display only.
type DeviceInfo struct {
	Index       int
	ProductName string
}

// Collect enumerates NVML devices present on the host. It never returns an
// error to the caller for a missing or unusable NVML library: absence of
// NVML is normal on hosts without an NVIDIA driver, so this degrades to an
// empty slice and a debug log line rather than surfacing a GpuDeviceError.
func Collect() []DeviceInfo {
	nvmlLib := nvml.New()
	if ret := nvmlLib.Init(); ret != nvml.SUCCESS {
		log.Current.Debugw("nvml unavailable, skipping enrichment", "ret", ret.Error())
		return nil
	}
	defer nvmlLib.Shutdown()

	deviceLib := device.New(nvmlLib)
	devices, err := deviceLib.GetDevices()
	if err != nil {
		log.Current.Debugw("nvml device enumeration failed", "error", err)
		return nil
	}

	infos := make([]DeviceInfo, 0, len(devices))
	for i, d := range devices {
		name, ret := d.GetName()
		if ret != nvml.SUCCESS {
			name = "unknown"
		}
		infos = append(infos, DeviceInfo{Index: i, ProductName: name})
	}
	return infos
}
