//go:build linux

package reader

import (
	"path/filepath"
)

// pciAttached reports whether the tty's parent device sits on the PCI bus,
// as with add-in serial cards. On-board platform UARTs resolve to
// bus/platform instead.
func pciAttached(name string) bool {
	link := filepath.Join("/sys/class/tty", filepath.Base(name), "device", "subsystem")
	target, err := filepath.EvalSymlinks(link)
	if err != nil {
		return false
	}
	return filepath.Base(target) == "pci"
}
