package hostenv

import (
	"path/filepath"
	"strings"
)

type mountEntry struct {
	mountPoint string
	options    map[string]struct{}
}

// MountFlags summarizes the mount options that matter for installing
// executables below a path.
type MountFlags struct {
	NoExec   bool
	ReadOnly bool
}

func parseMountinfo(content string) []mountEntry {
	var out []mountEntry
	for _, line := range strings.Split(content, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}
		sep := -1
		for i, f := range fields {
			if f == "-" {
				sep = i
				break
			}
		}
		if sep < 0 {
			continue
		}
		// 1:id 2:parent 3:major:minor 4:root 5:mountpoint 6:options ... "-" fstype source superopts
		entry := mountEntry{
			mountPoint: unescapeMountPath(fields[4]),
			options:    parseMountOptions(fields[5]),
		}
		if sep+3 < len(fields) {
			for k := range parseMountOptions(fields[sep+3]) {
				entry.options[k] = struct{}{}
			}
		}
		out = append(out, entry)
	}
	return out
}

func parseProcMounts(content string) []mountEntry {
	var out []mountEntry
	for _, line := range strings.Split(content, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		out = append(out, mountEntry{
			mountPoint: unescapeMountPath(fields[1]),
			options:    parseMountOptions(fields[3]),
		})
	}
	return out
}

func parseMountOptions(opt string) map[string]struct{} {
	m := make(map[string]struct{})
	for _, part := range strings.Split(opt, ",") {
		if part = strings.TrimSpace(part); part != "" {
			m[part] = struct{}{}
		}
	}
	return m
}

// Procfs encodes spaces and a few special characters with octal escapes (proc(5)).
var mountPathUnescaper = strings.NewReplacer(
	"\\040", " ",
	"\\011", "\t",
	"\\012", "\n",
	"\\134", "\\",
)

func unescapeMountPath(value string) string {
	return mountPathUnescaper.Replace(value)
}

// flagsFor returns the options of the longest mount point containing path.
func flagsFor(path string, mounts []mountEntry) MountFlags {
	dest := filepath.ToSlash(filepath.Clean(path))
	if dest == "." || dest == "" {
		return MountFlags{}
	}

	bestLen := -1
	var best MountFlags
	for _, m := range mounts {
		mountPoint := filepath.ToSlash(filepath.Clean(m.mountPoint))
		if mountPoint == "." || mountPoint == "" || !pathHasPrefix(dest, mountPoint) {
			continue
		}
		if len(mountPoint) > bestLen {
			bestLen = len(mountPoint)
			_, noexec := m.options["noexec"]
			_, ro := m.options["ro"]
			best = MountFlags{NoExec: noexec, ReadOnly: ro}
		}
	}
	return best
}

func pathHasPrefix(path, prefix string) bool {
	if prefix == "/" {
		return strings.HasPrefix(path, "/")
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
