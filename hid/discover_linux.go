//go:build linux

package hid

import (
	"os"
	"path/filepath"
	"strings"
)

const sysHidraw = "/sys/class/hidraw"

// FindDevices returns the /dev/hidraw* paths whose parent HID identifier
// carries the given vendor id (four uppercase hex digits, e.g. "0488" for
// Cirque). Entries that cannot be resolved are skipped.
func FindDevices(vendorID string) ([]string, error) {
	entries, err := os.ReadDir(sysHidraw)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var devices []string
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "hidraw") {
			continue
		}

		// The "device" symlink resolves to a directory named
		// BusID:VID:PID.instance for HID devices.
		link, err := os.Readlink(filepath.Join(sysHidraw, name, "device"))
		if err != nil {
			continue
		}
		id := filepath.Base(link)
		fields := strings.FieldsFunc(id, func(r rune) bool {
			return r == ':' || r == '.'
		})
		if len(fields) < 3 {
			continue
		}

		if strings.EqualFold(fields[1], vendorID) {
			devices = append(devices, filepath.Join("/dev", name))
		}
	}

	return devices, nil
}
