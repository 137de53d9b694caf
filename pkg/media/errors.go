package media

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied         = errors.New("permission denied")
	ErrDeviceBusy               = errors.New("device busy")
	ErrConfigurationUnsupported = errors.New("configuration unsupported")
	ErrDeviceTimeout            = errors.New("device timeout")
	ErrDeviceDisconnected       = errors.New("device disconnected")
)

// CaptureError is a device failure with the source and
// operation it happened in.
type CaptureError struct {
	Kind   Kind
	Op     string
	Device string
	Err    error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("%v %v [%v]: %v", e.Kind, e.Op, e.Device, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

func NewError(kind Kind, op, device string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CaptureError
	if errors.As(err, &ce) {
		return err
	}
	return &CaptureError{Kind: kind, Op: op, Device: device, Err: err}
}
