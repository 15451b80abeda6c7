//go:build !linux

package reader

// pciAttached is only implemented on linux; elsewhere the enumerator's USB
// flag is all we have.
func pciAttached(name string) bool { return false }
