package bundle

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// maxEntryBytes caps a single extracted file.
const maxEntryBytes = 1 << 30

// extractZip unpacks archivePath into dest, keeping relative paths. Entries
// resolving outside dest fail the extraction.
func extractZip(archivePath, dest string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = r.Close() }() // read-only archive

	for _, f := range r.File {
		target := filepath.Join(dest, filepath.FromSlash(f.Name))
		if err := ensureWithinRoot(dest, target); err != nil {
			return err
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("mkdir %s: %w", target, err)
			}
		case mode&os.ModeSymlink != 0:
			return fmt.Errorf("unsupported symlink entry %q", f.Name)
		default:
			if err := extractFile(f, target); err != nil {
				return err
			}
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if f.UncompressedSize64 > maxEntryBytes {
		return fmt.Errorf("entry %q is %s, over the %s limit", f.Name,
			humanize.Bytes(f.UncompressedSize64), humanize.Bytes(maxEntryBytes))
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("mkdir for file %s: %w", target, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %q: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}
	// #nosec G304 -- target checked by ensureWithinRoot
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}
	n, err := io.Copy(out, io.LimitReader(rc, maxEntryBytes+1))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("copy file %s: %w", target, err)
	}
	if n > maxEntryBytes {
		return fmt.Errorf("entry %q exceeds %s", f.Name, humanize.Bytes(maxEntryBytes))
	}
	return nil
}

func ensureWithinRoot(root, target string) error {
	root = filepath.Clean(root)
	target = filepath.Clean(target)
	if target == root {
		return nil
	}
	if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return fmt.Errorf("illegal path %s outside %s", target, root)
	}
	return nil
}
