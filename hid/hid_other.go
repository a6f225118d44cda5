//go:build !linux

package hid

import "fmt"

// Open is only implemented for Linux hidraw nodes.
func Open(path string) (Endpoint, error) {
	return nil, fmt.Errorf("hid: raw HID access is not supported on this platform")
}

// FindDevices is only implemented for Linux hidraw nodes.
func FindDevices(vendorID string) ([]string, error) {
	return nil, fmt.Errorf("hid: device discovery is not supported on this platform")
}
