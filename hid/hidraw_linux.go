//go:build linux

package hid

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl request encoding for HIDIOCSFEATURE/HIDIOCGFEATURE from
// <linux/hidraw.h>: direction read|write, type 'H', nr 0x06/0x07, with the
// buffer length encoded in the size field.
const (
	iocWrite = 1
	iocRead  = 2

	iocNrShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30

	hidIOCSFeature = 0x06
	hidIOCGFeature = 0x07
)

func hidIOC(nr, length int) uintptr {
	return uintptr((iocRead|iocWrite)<<iocDirShift |
		int('H')<<iocTypeShift |
		nr<<iocNrShift |
		length<<iocSizeShift)
}

// hidrawEndpoint drives feature reports through a /dev/hidrawN node.
type hidrawEndpoint struct {
	f *os.File
}

// Open opens the hidraw node at path for feature-report access.
func Open(path string) (Endpoint, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("hid: failed to open %s: %w", path, err)
	}
	return &hidrawEndpoint{f: f}, nil
}

func (e *hidrawEndpoint) SetFeature(buf []byte) (int, error) {
	return e.ioctl(hidIOC(hidIOCSFeature, len(buf)), buf)
}

func (e *hidrawEndpoint) GetFeature(buf []byte) (int, error) {
	return e.ioctl(hidIOC(hidIOCGFeature, len(buf)), buf)
}

func (e *hidrawEndpoint) ioctl(req uintptr, buf []byte) (int, error) {
	if e.f == nil {
		return 0, ErrNotConnected
	}
	if len(buf) == 0 {
		return 0, fmt.Errorf("hid: empty report buffer")
	}

	n, _, errno := unix.Syscall(
		unix.SYS_IOCTL,
		e.f.Fd(),
		req,
		uintptr(unsafe.Pointer(&buf[0])),
	)
	if errno != 0 {
		return 0, fmt.Errorf("hid: feature report ioctl: %w", errno)
	}
	return int(n), nil
}

func (e *hidrawEndpoint) Close() error {
	if e.f == nil {
		return ErrNotConnected
	}
	err := e.f.Close()
	e.f = nil
	return err
}
