// Command mockgpu holds open a handful of fake GPU device files and a large
// touched memory allocation so the detector can be exercised end-to-end
// without real GPU hardware. Ported from
// original_source/src/bin/mock_gpu_process.rs; manual-use only, not
// exercised by the test suite.
package main

import (
	"fmt"
	"os"
	"time"
)

var mockDeviceFiles = []string{
	"/tmp/mock_nvidia0",
	"/tmp/mock_nvidia-uvm",
}

const mockAllocSize = 256 * 1024 * 1024 // 256 MiB

func main() {
	fmt.Printf("Mock GPU process starting (PID: %d)\n", os.Getpid())

	handles := openMockDevices()
	defer closeAll(handles)

	buf := make([]byte, mockAllocSize)
	for i := 0; i < len(buf); i += 4096 {
		buf[i] = byte(i % 256)
	}
	fmt.Printf("Allocated %d MB of memory\n", mockAllocSize/(1024*1024))
	fmt.Println("Mock GPU process ready. Press Ctrl+C to exit.")

	for {
		time.Sleep(time.Second)
		fmt.Print(".")
	}
}

func openMockDevices() []*os.File {
	var handles []*os.File
	for _, path := range mockDeviceFiles {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create %s: %v\n", path, err)
			continue
		}
		fmt.Fprintln(f, "Mock GPU device")
		fmt.Printf("Created mock device: %s\n", path)
		handles = append(handles, f)
	}
	return handles
}

func closeAll(files []*os.File) {
	for _, f := range files {
		f.Close()
	}
}
