package gpio

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// USB identity of the FT232H bridge the relay board hangs off.
const (
	VendorID  = 0x0403
	ProductID = 0x6014

	DefaultSysfsRoot = "/sys/bus/usb/devices"
)

// Probe reports whether a USB device with the given vendor/product pair is
// attached, by scanning the sysfs device directory under root.
func Probe(root string, vendor, product uint16) bool {
	if root == "" {
		root = DefaultSysfsRoot
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return false
	}
	for _, e := range entries {
		dir := filepath.Join(root, e.Name())
		v, ok := readHexID(filepath.Join(dir, "idVendor"))
		if !ok || v != vendor {
			continue
		}
		p, ok := readHexID(filepath.Join(dir, "idProduct"))
		if ok && p == product {
			return true
		}
	}
	return false
}

func readHexID(path string) (uint16, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(b)), 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(n), true
}
