package core

import (
	"errors"
	"fmt"
)

var (
	ErrDeviceRemoved     = errors.New("device removed")
	ErrDeviceLost        = errors.New("device lost")
	ErrOutOfMemory       = errors.New("out of device memory")
	ErrSubmitFailed      = errors.New("queue submission failed")
	ErrPresentFailed     = errors.New("present failed")
	ErrNoAdapter         = errors.New("no suitable adapter")
	ErrPipelineBuild     = errors.New("pipeline build failed")
	ErrContractViolation = errors.New("contract violation")
	ErrUnknown           = errors.New("unknown")
)

// DeviceError is the result of a failed call across the device boundary.
type DeviceError struct {
	Op  string
	Err error
}

func NewDeviceError(op string, err error) *DeviceError {
	return &DeviceError{Op: op, Err: err}
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device: %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must stop the frame loop.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var de *DeviceError
	if errors.As(err, &de) {
		return true
	}
	return errors.Is(err, ErrDeviceRemoved) || errors.Is(err, ErrDeviceLost) ||
		errors.Is(err, ErrPipelineBuild) || errors.Is(err, ErrContractViolation)
}

// Violation builds a contract violation error and logs it.
func Violation(format string, args ...interface{}) error {
	err := fmt.Errorf("%w: %s", ErrContractViolation, fmt.Sprintf(format, args...))
	LogError("%s", err)
	return err
}
