//go:build linux

package hostenv

import "os"

// MountFlagsFor reports noexec/ro for the mount holding path.
// Best effort only: unreadable procfs yields the zero value.
func MountFlagsFor(path string) MountFlags {
	if path == "" {
		return MountFlags{}
	}

	// mountinfo carries super options too (overlay setups).
	if data, err := os.ReadFile("/proc/self/mountinfo"); err == nil { // #nosec G304 -- fixed procfs path
		if mounts := parseMountinfo(string(data)); len(mounts) > 0 {
			return flagsFor(path, mounts)
		}
	}

	data, err := os.ReadFile("/proc/mounts") // #nosec G304 -- fixed procfs path
	if err != nil {
		return MountFlags{}
	}
	return flagsFor(path, parseProcMounts(string(data)))
}
