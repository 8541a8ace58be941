// Package errdefs defines the closed set of error kinds used across the
// detector, checkpoint, and restore packages. It follows the sentinel-plus-Is*
// pattern used by the teacher's pkg/errdefs rather than one bespoke error type
// per package.
package errdefs

import (
	"errors"
	"fmt"
)

// Kind identifies which branch of the error taxonomy an Error belongs to.
type Kind int

const (
	KindDetectionError Kind = iota
	KindCheckpointError
	KindRestoreError
	KindIoError
	KindProcessNotFound
	KindPermissionDenied
	KindGpuDeviceError
	KindStrategyError
)

func (k Kind) String() string {
	switch k {
	case KindDetectionError:
		return "detection_error"
	case KindCheckpointError:
		return "checkpoint_error"
	case KindRestoreError:
		return "restore_error"
	case KindIoError:
		return "io_error"
	case KindProcessNotFound:
		return "process_not_found"
	case KindPermissionDenied:
		return "permission_denied"
	case KindGpuDeviceError:
		return "gpu_device_error"
	case KindStrategyError:
		return "strategy_error"
	default:
		return "unknown"
	}
}

// Error is the single error type raised by this module. Pid is only set for
// KindProcessNotFound.
type Error struct {
	Kind Kind
	Msg  string
	Pid  uint32
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindProcessNotFound:
		return fmt.Sprintf("process not found: %d", e.Pid)
	case KindPermissionDenied:
		return "permission denied"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func DetectionError(msg string) error { return &Error{Kind: KindDetectionError, Msg: msg} }

func CheckpointError(msg string) error { return &Error{Kind: KindCheckpointError, Msg: msg} }

func RestoreError(msg string) error { return &Error{Kind: KindRestoreError, Msg: msg} }

func GpuDeviceError(msg string) error { return &Error{Kind: KindGpuDeviceError, Msg: msg} }

func StrategyError(msg string) error { return &Error{Kind: KindStrategyError, Msg: msg} }

// IoError wraps a low-level I/O error that doesn't fall into one of the more
// specific kinds below.
func IoError(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindIoError, Msg: "io error", Err: err}
}

func ProcessNotFound(pid uint32) error {
	return &Error{Kind: KindProcessNotFound, Pid: pid}
}

var errPermissionDenied = &Error{Kind: KindPermissionDenied}

// PermissionDenied returns the shared permission-denied sentinel.
func PermissionDenied() error { return errPermissionDenied }

func is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

func IsDetectionError(err error) bool   { return is(err, KindDetectionError) }
func IsCheckpointError(err error) bool  { return is(err, KindCheckpointError) }
func IsRestoreError(err error) bool     { return is(err, KindRestoreError) }
func IsIoError(err error) bool          { return is(err, KindIoError) }
func IsProcessNotFound(err error) bool  { return is(err, KindProcessNotFound) }
func IsPermissionDenied(err error) bool { return is(err, KindPermissionDenied) }
func IsGpuDeviceError(err error) bool   { return is(err, KindGpuDeviceError) }
func IsStrategyError(err error) bool    { return is(err, KindStrategyError) }
