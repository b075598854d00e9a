// Package bundle installs versioned engine bundles: download, extract, mark
// executable, clean up.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/3leaps/bundlefetch/internal/hostenv"
	"github.com/3leaps/bundlefetch/internal/model"
	"github.com/3leaps/bundlefetch/internal/reporter"
	"github.com/3leaps/bundlefetch/internal/sandbox"
	"github.com/3leaps/bundlefetch/internal/verify"
	"github.com/3leaps/bundlefetch/pkg/update"
)

const executableMode fs.FileMode = 0o755

// VersionSource resolves the version to install.
type VersionSource interface {
	LatestBundleVersion(ctx context.Context) (string, error)
}

// Downloader streams a remote file to a local path.
type Downloader interface {
	DownloadFileToDestination(ctx context.Context, url, destinationPath string) error
}

// Installer installs bundles into a Layout. It holds no locks: callers must
// not run two installs of the same version concurrently.
type Installer struct {
	guard         sandbox.Guard
	layout        Layout
	versions      VersionSource
	downloader    Downloader
	reporter      reporter.Reporter
	logger        *log.Logger
	publicKeyPath string

	chmod      func(string, fs.FileMode) error
	mountFlags func(string) hostenv.MountFlags
}

// Option configures an Installer.
type Option func(*Installer)

// WithReporter sets the telemetry sink.
func WithReporter(r reporter.Reporter) Option {
	return func(i *Installer) {
		if r != nil {
			i.reporter = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(i *Installer) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithMinisignPublicKey requires a valid <archive>.minisig signed by the key
// at path before anything is extracted.
func WithMinisignPublicKey(path string) Option {
	return func(i *Installer) { i.publicKeyPath = path }
}

// NewInstaller returns an Installer. guard is consulted before any I/O.
func NewInstaller(guard sandbox.Guard, layout Layout, versions VersionSource, downloader Downloader, opts ...Option) *Installer {
	i := &Installer{
		guard:      guard,
		layout:     layout,
		versions:   versions,
		downloader: downloader,
		reporter:   reporter.Nop{},
		logger:     log.Default(),
		chmod:      os.Chmod,
		mountFlags: hostenv.MountFlagsFor,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Layout returns the layout bundles are installed into.
func (i *Installer) Layout() Layout { return i.layout }

// DownloadAndExtractBundle installs the latest published bundle and returns
// its executable path. The staged archive is removed on every exit path; on
// failure the rest of the bundle directory is left for diagnosis.
func (i *Installer) DownloadAndExtractBundle(ctx context.Context) (string, error) {
	if err := i.guard.Check("download bundle"); err != nil {
		return "", err
	}
	version, err := i.versions.LatestBundleVersion(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve bundle version: %w", err)
	}
	return i.install(ctx, version)
}

// Plan is the outcome of comparing the published version with what is on disk.
type Plan struct {
	Latest    string
	Installed []string
	Decision  update.Decision
	Message   string
}

// Plan resolves the latest version and decides what Ensure would do.
func (i *Installer) Plan(ctx context.Context, force bool) (Plan, error) {
	if err := i.guard.Check("check bundle version"); err != nil {
		return Plan{}, err
	}
	latest, err := i.versions.LatestBundleVersion(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("resolve bundle version: %w", err)
	}
	installed, err := i.layout.InstalledVersions()
	if err != nil {
		return Plan{}, err
	}
	decision, msg := update.DecideBundleInstall(installed, latest, force)
	return Plan{Latest: latest, Installed: installed, Decision: decision, Message: msg}, nil
}

// Result is what Ensure left on disk.
type Result struct {
	Version        string
	ExecutablePath string
	Decision       update.Decision
	Message        string
}

// Ensure makes the latest bundle available, installing it unless it is
// already present (or force is set). When sandboxed it never touches the
// network and falls back to the newest installed bundle.
func (i *Installer) Ensure(ctx context.Context, force bool) (Result, error) {
	if i.guard.Sandboxed() {
		return i.newestInstalled()
	}

	plan, err := i.Plan(ctx, force)
	if err != nil {
		return Result{}, err
	}
	i.logger.Debug("bundle plan", "latest", plan.Latest, "installed", len(plan.Installed), "decision", plan.Decision)

	if plan.Decision == update.DecisionSkip {
		d, err := i.layout.Describe(plan.Latest)
		if err != nil {
			return Result{}, err
		}
		return Result{Version: d.Version, ExecutablePath: d.ExecutablePath, Decision: plan.Decision, Message: plan.Message}, nil
	}

	path, err := i.install(ctx, plan.Latest)
	if err != nil {
		return Result{}, err
	}
	return Result{Version: plan.Latest, ExecutablePath: path, Decision: plan.Decision, Message: plan.Message}, nil
}

func (i *Installer) newestInstalled() (Result, error) {
	installed, err := i.layout.InstalledVersions()
	if err != nil {
		return Result{}, err
	}
	if len(installed) == 0 {
		return Result{}, i.guard.Check("download bundle")
	}
	d, err := i.layout.Describe(installed[0])
	if err != nil {
		return Result{}, err
	}
	return Result{
		Version:        d.Version,
		ExecutablePath: d.ExecutablePath,
		Decision:       update.DecisionSkip,
		Message:        fmt.Sprintf("Using installed bundle %s (sandboxed)", update.FormatVersionDisplay(d.Version)),
	}, nil
}

func (i *Installer) install(ctx context.Context, version string) (string, error) {
	d, err := i.layout.Describe(version)
	if err != nil {
		return "", err
	}
	sigPath := d.BundlePath + verify.SignatureSuffix
	defer func() {
		i.removeStaged(d.BundlePath)
		if i.publicKeyPath != "" {
			i.removeStaged(sigPath)
		}
	}()

	if err := os.MkdirAll(d.BundleDirectory, executableMode); err != nil {
		return "", fmt.Errorf("create bundle directory: %w", err)
	}
	mount := i.mountFlags(d.BundleDirectory)
	if mount.ReadOnly {
		return "", fmt.Errorf("bundle directory %s is on a read-only mount", d.BundleDirectory)
	}
	i.logger.Info("downloading bundle", "version", d.Version, "url", d.BundleDownloadURL)
	if err := i.downloader.DownloadFileToDestination(ctx, d.BundleDownloadURL, d.BundlePath); err != nil {
		return "", fmt.Errorf("download bundle %s: %w", d.Version, err)
	}
	if err := i.verifySignature(ctx, d, sigPath); err != nil {
		return "", err
	}
	if err := extractZip(d.BundlePath, d.BundleDirectory); err != nil {
		return "", fmt.Errorf("extract bundle %s: %w", d.Version, err)
	}
	i.removeStaged(d.BundlePath)
	if err := i.markExecutable(d.BundleDirectory); err != nil {
		return "", fmt.Errorf("mark bundle executable: %w", err)
	}
	if _, err := os.Stat(d.ExecutablePath); err != nil {
		return "", fmt.Errorf("bundle %s has no %s: %w", d.Version, filepath.Base(d.ExecutablePath), err)
	}
	if mount.NoExec {
		i.logger.Warn("bundle directory is on a noexec mount; the engine will not start", "dir", d.BundleDirectory)
	}

	i.reporter.Report(ctx, reporter.NewEvent(reporter.EventBundleDownloadSuccess, map[string]string{
		"version": d.Version,
	}))
	i.logger.Info("bundle installed", "version", d.Version, "path", d.ExecutablePath)
	return d.ExecutablePath, nil
}

func (i *Installer) verifySignature(ctx context.Context, d model.BundleDescriptor, sigPath string) error {
	if i.publicKeyPath == "" {
		return nil
	}
	if err := i.downloader.DownloadFileToDestination(ctx, d.BundleDownloadURL+verify.SignatureSuffix, sigPath); err != nil {
		return fmt.Errorf("download bundle signature: %w", err)
	}
	if err := verify.MinisignFile(d.BundlePath, sigPath, i.publicKeyPath); err != nil {
		return fmt.Errorf("verify bundle %s: %w", d.Version, err)
	}
	return nil
}

// markExecutable sets every regular file under dir to 0755. It does nothing
// on windows.
func (i *Installer) markExecutable(dir string) error {
	if i.layout.GOOS == "windows" {
		return nil
	}
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		return i.chmod(path, executableMode)
	})
}

// removeStaged deletes a staged file. Failures are logged and dropped.
func (i *Installer) removeStaged(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		i.logger.Debug("cleanup failed", "path", path, "err", err)
	}
}
