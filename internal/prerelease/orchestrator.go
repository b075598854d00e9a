// Package prerelease keeps the editor extension itself on the pre-release
// channels: the proposed alpha sentinel build, or the newest alpha release.
package prerelease

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/3leaps/bundlefetch/internal/host/editor"
	"github.com/3leaps/bundlefetch/internal/sandbox"
	"github.com/3leaps/bundlefetch/internal/state"
)

const (
	// ProposedAlphaVersion is the fixed tag of the always-latest proposed build.
	ProposedAlphaVersion = "9999.9999.9999"

	MessageIDUpdated  = "prerelease-installer-update"
	MessageIDJoinBeta = "join-beta-channel"

	// CapabilityAlpha enables the beta notice outside insiders builds.
	CapabilityAlpha = "alpha"

	betaSettingSuffix = ".receiveBetaChannelUpdates"
)

// Resolver is the slice of channel.Resolver the orchestrator needs.
type Resolver interface {
	CurrentVersion(ctx context.Context) (string, error)
	AvailableAlphaVersion(artifactURL string) (string, error)
	IsNewerAlphaVersionAvailable(ctx context.Context, candidate string) (bool, error)
	UpdatePersistedAlphaVersion(ctx context.Context, v string) error
	PreReleaseChannelSupported() bool
	UserConsumesProposedAlphaUpdates() bool
	UserConsumesPreReleaseChannelUpdates() bool
}

// Releases finds the newest release artifact.
type Releases interface {
	LatestAssetURL(ctx context.Context) (string, error)
}

// Downloader streams a remote file to a local path.
type Downloader interface {
	DownloadFileToDestination(ctx context.Context, url, destinationPath string) error
}

// Settings name the extension and say when the beta notice applies.
type Settings struct {
	DisplayName     string
	PackageName     string
	SettingsPrefix  string
	DownloadBaseURL string
	Insiders        bool
	AlphaCapability bool
	// TempDir holds downloaded packages until the host installs them.
	// Empty means os.TempDir().
	TempDir         string
}

// Orchestrator runs the pre-release checks once per activation.
type Orchestrator struct {
	guard      sandbox.Guard
	resolver   Resolver
	releases   Releases
	downloader Downloader
	host       editor.Host
	store      state.Store
	settings   Settings
	logger     *log.Logger
}

// New returns an Orchestrator.
func New(guard sandbox.Guard, resolver Resolver, releases Releases, downloader Downloader, host editor.Host, store state.Store, settings Settings, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		guard:      guard,
		resolver:   resolver,
		releases:   releases,
		downloader: downloader,
		host:       host,
		store:      store,
		settings:   settings,
		logger:     logger,
	}
}

// ProposedAlphaURL is the well-known artifact of the proposed alpha build.
func (o *Orchestrator) ProposedAlphaURL() string {
	return fmt.Sprintf("%s/v%s/%s-%s.vsix",
		strings.TrimRight(o.settings.DownloadBaseURL, "/"), ProposedAlphaVersion, o.settings.PackageName, ProposedAlphaVersion)
}

// Run shows the beta notice if due, then installs a pre-release package
// when the user's channel has one. A failed notice is logged and does not
// stop the install. Callers treat any returned error as best effort.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.guard.Check("pre-release update"); err != nil {
		return err
	}

	if err := o.showBetaNoticeIfNeeded(ctx); err != nil {
		o.logger.Warn("beta channel notice failed", "err", err)
	}

	installed, err := o.installPreRelease(ctx)
	if err != nil {
		return err
	}
	if installed == "" {
		return nil
	}

	return o.host.ShowMessage(ctx, editor.Message{
		ID: MessageIDUpdated,
		Text: fmt.Sprintf("%s has been updated to %s version. Please reload the window for the changes to take effect.",
			o.settings.DisplayName, installed),
		ButtonText: "Reload",
		Action: func(ctx context.Context) error {
			return o.host.ExecuteCommand(ctx, editor.CommandReloadWindow)
		},
	})
}

// installPreRelease returns the installed version, or "" when nothing was due.
func (o *Orchestrator) installPreRelease(ctx context.Context) (string, error) {
	switch {
	case o.resolver.UserConsumesProposedAlphaUpdates():
		current, err := o.resolver.CurrentVersion(ctx)
		if err != nil {
			return "", err
		}
		if current == ProposedAlphaVersion {
			o.logger.Debug("proposed alpha already installed")
			return "", nil
		}
		if err := o.installPackage(ctx, o.ProposedAlphaURL(), ProposedAlphaVersion); err != nil {
			return "", err
		}
		return ProposedAlphaVersion, nil

	case o.resolver.UserConsumesPreReleaseChannelUpdates():
		artifactURL, err := o.releases.LatestAssetURL(ctx)
		if err != nil {
			return "", fmt.Errorf("latest pre-release: %w", err)
		}
		available, err := o.resolver.AvailableAlphaVersion(artifactURL)
		if err != nil {
			return "", err
		}
		newer, err := o.resolver.IsNewerAlphaVersionAvailable(ctx, available)
		if err != nil {
			return "", err
		}
		if !newer {
			o.logger.Debug("no newer alpha", "available", available)
			return "", nil
		}
		if err := o.installPackage(ctx, artifactURL, available); err != nil {
			return "", err
		}
		return available, nil

	default:
		return "", nil
	}
}

// installPackage downloads the package to a temp file, hands it to the host
// and records version as installed. The temp file is always removed.
func (o *Orchestrator) installPackage(ctx context.Context, artifactURL, version string) error {
	f, err := os.CreateTemp(o.settings.TempDir, "bundlefetch-*.vsix")
	if err != nil {
		return fmt.Errorf("create temp package: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return fmt.Errorf("create temp package: %w", err)
	}
	defer func() {
		if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			o.logger.Debug("cleanup failed", "path", name, "err", err)
		}
	}()

	o.logger.Info("downloading pre-release package", "version", version)
	if err := o.downloader.DownloadFileToDestination(ctx, artifactURL, name); err != nil {
		return fmt.Errorf("download package %s: %w", version, err)
	}
	if err := o.host.ExecuteCommand(ctx, editor.CommandInstallExtension, name); err != nil {
		return fmt.Errorf("install package %s: %w", version, err)
	}
	if err := o.resolver.UpdatePersistedAlphaVersion(ctx, version); err != nil {
		return fmt.Errorf("record installed version: %w", err)
	}
	return nil
}

// showBetaNoticeIfNeeded offers the beta channel once. The shown flag is
// written as soon as the message is displayed, whatever the user picks.
func (o *Orchestrator) showBetaNoticeIfNeeded(ctx context.Context) error {
	shown, err := state.GetBool(ctx, o.store, state.KeyBetaMessageShown)
	if err != nil {
		return err
	}
	due := o.resolver.PreReleaseChannelSupported() &&
		(o.settings.Insiders || o.settings.AlphaCapability) &&
		!shown &&
		!o.resolver.UserConsumesPreReleaseChannelUpdates()
	if !due {
		return nil
	}

	showErr := o.host.ShowMessage(ctx, editor.Message{
		ID:         MessageIDJoinBeta,
		Text:       fmt.Sprintf("Do you wish to help %s get better? Enable the extension beta channel if so!", o.settings.DisplayName),
		ButtonText: "Open Settings",
		Action: func(ctx context.Context) error {
			return o.host.ExecuteCommand(ctx, editor.CommandOpenSettings, o.settings.SettingsPrefix+betaSettingSuffix)
		},
	})
	return errors.Join(showErr, state.SetBool(ctx, o.store, state.KeyBetaMessageShown, true))
}
