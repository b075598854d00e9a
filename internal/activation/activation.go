// Package activation runs the extension's startup and uninstall hooks.
package activation

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/3leaps/bundlefetch/internal/bundle"
	"github.com/3leaps/bundlefetch/internal/model"
	"github.com/3leaps/bundlefetch/internal/reporter"
	"github.com/3leaps/bundlefetch/internal/sandbox"
	"github.com/3leaps/bundlefetch/internal/supervise"
)

// Ensurer makes the engine bundle available.
type Ensurer interface {
	Ensure(ctx context.Context, force bool) (bundle.Result, error)
}

// PreRelease updates the extension package on the pre-release channels.
type PreRelease interface {
	Run(ctx context.Context) error
}

// Channels reads and clears the user's channel state.
type Channels interface {
	ActiveChannel() model.Channel
	UpdatePersistedAlphaVersion(ctx context.Context, v string) error
}

// Options are the host facts activation depends on.
type Options struct {
	ExtensionVersion string
	FirstInstall     bool
	// TestMode skips the pre-release flow.
	TestMode         bool
}

// Result is what activation made available.
type Result struct {
	Version        string
	ExecutablePath string
	Channel        model.Channel
}

// Activator wires the installer and the pre-release flow together.
type Activator struct {
	guard      sandbox.Guard
	installer  Ensurer
	prerelease PreRelease
	channels   Channels
	reporter   reporter.Reporter
	logger     *log.Logger
	opts       Options
}

// New returns an Activator. prerelease may be nil.
func New(guard sandbox.Guard, installer Ensurer, prerelease PreRelease, channels Channels, rep reporter.Reporter, logger *log.Logger, opts Options) *Activator {
	if rep == nil {
		rep = reporter.Nop{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Activator{
		guard:      guard,
		installer:  installer,
		prerelease: prerelease,
		channels:   channels,
		reporter:   rep,
		logger:     logger,
		opts:       opts,
	}
}

// Activate reports activation, then ensures the engine bundle while the
// pre-release flow runs alongside it. Only the bundle's failure is returned.
func (a *Activator) Activate(ctx context.Context) (Result, error) {
	ch := a.channels.ActiveChannel()
	props := map[string]string{"version": a.opts.ExtensionVersion, "channel": string(ch)}
	a.reporter.Report(ctx, reporter.NewEvent(reporter.EventExtensionActivated, props))
	if a.opts.FirstInstall {
		a.reporter.Report(ctx, reporter.NewEvent(reporter.EventExtensionInstalled, props))
	}

	var ensured bundle.Result
	g := supervise.New(ctx, a.logger)
	g.Go("ensure bundle", func(ctx context.Context) error {
		r, err := a.installer.Ensure(ctx, false)
		ensured = r
		return err
	})
	if a.prereleaseEnabled() {
		g.GoBestEffort("pre-release update", a.prerelease.Run)
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	a.logger.Info("activated", "bundle", ensured.Version, "channel", ch)
	return Result{Version: ensured.Version, ExecutablePath: ensured.ExecutablePath, Channel: ch}, nil
}

func (a *Activator) prereleaseEnabled() bool {
	switch {
	case a.prerelease == nil:
		return false
	case a.opts.TestMode:
		a.logger.Debug("pre-release flow skipped in test mode")
		return false
	case a.guard.Sandboxed():
		a.logger.Debug("pre-release flow skipped", "reason", a.guard.Reason())
		return false
	default:
		return true
	}
}

// Uninstall forgets the persisted alpha version and reports the uninstall.
func (a *Activator) Uninstall(ctx context.Context) error {
	if err := a.channels.UpdatePersistedAlphaVersion(ctx, ""); err != nil {
		return err
	}
	a.reporter.Report(ctx, reporter.NewEvent(reporter.EventExtensionUninstalled, map[string]string{
		"version": a.opts.ExtensionVersion,
	}))
	return nil
}
