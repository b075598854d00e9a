//go:build !linux

package hostenv

// MountFlagsFor is only implemented on linux.
func MountFlagsFor(string) MountFlags {
	return MountFlags{}
}
