package bootloader

import (
	"errors"
	"fmt"
)

var (
	// ErrWriteError means SET_FEATURE accepted fewer bytes than submitted.
	ErrWriteError = errors.New("bootloader: short feature write")

	// ErrReadError means GET_FEATURE returned fewer bytes than expected or
	// the reply could not be decoded.
	ErrReadError = errors.New("bootloader: bad feature read")

	// ErrProtocol means a reply field failed a structural check.
	ErrProtocol = errors.New("bootloader: protocol error")

	// ErrNotReady means the device failed the bootloader sanity check.
	ErrNotReady = errors.New("bootloader: bootloader not ready")
)

// DeviceError carries a non-zero NV error code reported by the device in its
// status reply.
type DeviceError struct {
	Code ErrorCode
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("bootloader: device reported error: %s", e.Code)
}

// Is makes two DeviceErrors with the same code match under errors.Is.
func (e *DeviceError) Is(target error) bool {
	var other *DeviceError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}
