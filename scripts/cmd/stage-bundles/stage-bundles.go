// Command stage-bundles lays out engine builds as the update server tree the
// installer downloads from: <out>/version and <out>/<version>/<target>/<exe>.zip.
package main

import (
	"archive/zip"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/3leaps/bundlefetch/pkg/update"
)

func main() {
	dist := flag.String("dist", "dist/engine", "directory with one subdirectory per target triple")
	out := flag.String("out", "dist/update", "update server tree to write")
	version := flag.String("version", "", "bundle version (semver)")
	exe := flag.String("executable", "TabNine", "engine executable name; names the archive")
	flag.Parse()

	if err := run(*dist, *out, *version, *exe); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(dist, out, version, exe string) error {
	dist = strings.TrimSpace(dist)
	if dist == "" || strings.TrimSpace(out) == "" {
		return errors.New("dist and out directories are required")
	}
	v, err := update.ParseVersion(version)
	if err != nil {
		return err
	}
	if exe == "" || strings.ContainsAny(exe, `/\`) {
		return fmt.Errorf("executable must be a bare file name (got %q)", exe)
	}

	targets, err := targetDirs(dist)
	if err != nil {
		return err
	}
	for _, target := range targets {
		archive := filepath.Join(out, v, target, exe+".zip")
		size, err := zipDir(filepath.Join(dist, target), archive)
		if err != nil {
			return fmt.Errorf("%s: %w", target, err)
		}
		fmt.Printf("✅ Wrote %s (%s)\n", archive, humanize.Bytes(uint64(size)))
	}

	// The manifest goes last so clients never see a version without archives.
	manifest := filepath.Join(out, "version")
	if err := os.WriteFile(manifest, []byte(v+"\n"), 0o644); err != nil { // #nosec G306 -- served publicly
		return fmt.Errorf("write manifest: %w", err)
	}
	fmt.Printf("✅ Wrote %s (%s, %d targets)\n", manifest, v, len(targets))
	return nil
}

func targetDirs(dist string) ([]string, error) {
	entries, err := os.ReadDir(dist)
	if err != nil {
		return nil, fmt.Errorf("read dist: %w", err)
	}
	var targets []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			targets = append(targets, entry.Name())
		}
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no target directories found in %s", dist)
	}
	sort.Strings(targets)
	return targets, nil
}

// zipDir archives every regular file under dir with slash-separated paths
// relative to dir and returns the archive size.
func zipDir(dir, archive string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(archive), 0o755); err != nil {
		return 0, fmt.Errorf("create archive dir: %w", err)
	}
	f, err := os.Create(archive) // #nosec G304 -- build tool output path
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", archive, err)
	}
	defer f.Close() //nolint:errcheck // error checked via Close below

	zw := zip.NewWriter(f)
	files := 0
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files++
		return addFile(zw, path, filepath.ToSlash(rel))
	})
	if err != nil {
		return 0, err
	}
	if files == 0 {
		return 0, fmt.Errorf("no files in %s", dir)
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("finish archive: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), f.Close()
}

func addFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path) // #nosec G304 -- build tool reading engine builds
	if err != nil {
		return err
	}
	defer src.Close() //nolint:errcheck // read-only

	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
