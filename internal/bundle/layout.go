package bundle

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/3leaps/bundlefetch/internal/model"
	"github.com/3leaps/bundlefetch/pkg/update"
)

var targetTriples = map[string]string{
	"darwin/amd64":  "x86_64-apple-darwin",
	"darwin/arm64":  "aarch64-apple-darwin",
	"linux/amd64":   "x86_64-unknown-linux-musl",
	"linux/arm64":   "aarch64-unknown-linux-musl",
	"windows/amd64": "x86_64-pc-windows-gnu",
	"windows/386":   "i686-pc-windows-gnu",
}

// Layout maps versions to paths under RootDir and URLs under UpdateBaseURL.
// Every method is a pure function of its fields and arguments, except
// InstalledVersions which reads RootDir.
type Layout struct {
	RootDir        string
	UpdateBaseURL  string
	ExecutableName string
	GOOS           string
	GOARCH         string
}

// NewLayout returns a Layout for the running platform.
func NewLayout(rootDir, updateBaseURL, executableName string) Layout {
	return Layout{
		RootDir:        rootDir,
		UpdateBaseURL:  strings.TrimRight(updateBaseURL, "/"),
		ExecutableName: executableName,
		GOOS:           runtime.GOOS,
		GOARCH:         runtime.GOARCH,
	}
}

// Target returns the platform triple bundles are published under.
func (l Layout) Target() (string, error) {
	key := l.GOOS + "/" + l.GOARCH
	t, ok := targetTriples[key]
	if !ok {
		return "", fmt.Errorf("no bundle published for %s", key)
	}
	return t, nil
}

// VersionURL is the manifest naming the latest published version.
func (l Layout) VersionURL() string {
	return l.UpdateBaseURL + "/version"
}

// Describe locates the bundle for version.
func (l Layout) Describe(version string) (model.BundleDescriptor, error) {
	v, err := update.ParseVersion(version)
	if err != nil {
		return model.BundleDescriptor{}, err
	}
	target, err := l.Target()
	if err != nil {
		return model.BundleDescriptor{}, err
	}

	dir := filepath.Join(l.RootDir, v, target)
	archive := l.ExecutableName + ".zip"
	return model.BundleDescriptor{
		Version:           v,
		BundlePath:        filepath.Join(dir, archive),
		BundleDownloadURL: strings.Join([]string{l.UpdateBaseURL, v, target, archive}, "/"),
		BundleDirectory:   dir,
		ExecutablePath:    filepath.Join(dir, l.executableFile()),
	}, nil
}

func (l Layout) executableFile() string {
	if l.GOOS == "windows" {
		return l.ExecutableName + ".exe"
	}
	return l.ExecutableName
}

// InstalledVersions lists the versions under RootDir whose executable exists,
// newest first. Directories that are not versions are ignored. A missing
// RootDir means nothing is installed.
func (l Layout) InstalledVersions() ([]string, error) {
	entries, err := os.ReadDir(l.RootDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read bundle root: %w", err)
	}

	var versions []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		d, err := l.Describe(e.Name())
		if err != nil || d.Version != e.Name() {
			continue
		}
		if info, err := os.Stat(d.ExecutablePath); err == nil && info.Mode().IsRegular() {
			versions = append(versions, d.Version)
		}
	}

	sort.SliceStable(versions, func(i, j int) bool {
		c, _ := update.CompareVersions(versions[i], versions[j])
		return c > 0
	})
	return versions, nil
}
