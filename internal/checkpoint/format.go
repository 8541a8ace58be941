// Package checkpoint implements the BAR-sliding checkpoint writer and the
// on-disk checkpoint codec, grounded on
// original_source/src/checkpoint/{bar_sliding,format}.rs.
package checkpoint

import (
	"encoding/binary"
	"io"

	"github.com/alexeldeib/gpu-checkpoint/internal/errdefs"
)

const (
	// Magic is the checkpoint file's 4-byte identifier, 'G','P','U','C' read
	// most-significant byte first; written little-endian, the file's first
	// four bytes are 'C','U','P','G'.
	Magic uint32 = 0x47505543
	// Version is the only checkpoint format version this codec understands.
	Version uint32 = 1

	headerSize    = 32
	allocHdrSize  = 32
	defaultWindow = 256 * 1024 * 1024
)

// CheckpointHeader is the fixed 32-byte file header.
type CheckpointHeader struct {
	Magic          uint32
	Version        uint32
	Pid            uint32
	NumAllocations uint32
	TotalSize      uint64
	Timestamp      uint64
}

// WriteTo encodes the header in little-endian, fixed-width form.
func (h CheckpointHeader) WriteTo(w io.Writer) error {
	var buf [headerSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.Pid)
	binary.LittleEndian.PutUint32(buf[12:16], h.NumAllocations)
	binary.LittleEndian.PutUint64(buf[16:24], h.TotalSize)
	binary.LittleEndian.PutUint64(buf[24:32], h.Timestamp)
	_, err := w.Write(buf[:])
	if err != nil {
		return errdefs.IoError(err)
	}
	return nil
}

// ReadCheckpointHeader reads and decodes a header with an exact-length read;
// any short read surfaces as IoError.
func ReadCheckpointHeader(r io.Reader) (CheckpointHeader, error) {
	var buf [headerSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return CheckpointHeader{}, errdefs.IoError(err)
	}
	h := CheckpointHeader{
		Magic:          binary.LittleEndian.Uint32(buf[0:4]),
		Version:        binary.LittleEndian.Uint32(buf[4:8]),
		Pid:            binary.LittleEndian.Uint32(buf[8:12]),
		NumAllocations: binary.LittleEndian.Uint32(buf[12:16]),
		TotalSize:      binary.LittleEndian.Uint64(buf[16:24]),
		Timestamp:      binary.LittleEndian.Uint64(buf[24:32]),
	}
	return h, nil
}

// Validate checks the magic and version fields, producing a RestoreError on
// mismatch per spec.
func (h CheckpointHeader) Validate() error {
	if h.Magic != Magic {
		return errdefs.RestoreError("bad checkpoint magic")
	}
	if h.Version != Version {
		return errdefs.RestoreError("unsupported checkpoint version")
	}
	return nil
}

// AllocationHeader is the fixed 32-byte per-allocation header preceding its
// payload bytes.
type AllocationHeader struct {
	VaddrStart uint64
	VaddrEnd   uint64
	Size       uint64
	DeviceID   uint32
	Flags      uint32 // reserved; writers emit 0, readers ignore
}

// WriteTo encodes the allocation header in little-endian, fixed-width form.
func (a AllocationHeader) WriteTo(w io.Writer) error {
	var buf [allocHdrSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], a.VaddrStart)
	binary.LittleEndian.PutUint64(buf[8:16], a.VaddrEnd)
	binary.LittleEndian.PutUint64(buf[16:24], a.Size)
	binary.LittleEndian.PutUint32(buf[24:28], a.DeviceID)
	binary.LittleEndian.PutUint32(buf[28:32], a.Flags)
	_, err := w.Write(buf[:])
	if err != nil {
		return errdefs.IoError(err)
	}
	return nil
}

// ReadAllocationHeader reads and decodes an allocation header with an
// exact-length read.
func ReadAllocationHeader(r io.Reader) (AllocationHeader, error) {
	var buf [allocHdrSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return AllocationHeader{}, errdefs.IoError(err)
	}
	return AllocationHeader{
		VaddrStart: binary.LittleEndian.Uint64(buf[0:8]),
		VaddrEnd:   binary.LittleEndian.Uint64(buf[8:16]),
		Size:       binary.LittleEndian.Uint64(buf[16:24]),
		DeviceID:   binary.LittleEndian.Uint32(buf[24:28]),
		Flags:      binary.LittleEndian.Uint32(buf[28:32]),
	}, nil
}
