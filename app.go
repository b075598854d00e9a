package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/3leaps/bundlefetch/internal/activation"
	"github.com/3leaps/bundlefetch/internal/bundle"
	"github.com/3leaps/bundlefetch/internal/channel"
	"github.com/3leaps/bundlefetch/internal/config"
	"github.com/3leaps/bundlefetch/internal/host/editor"
	"github.com/3leaps/bundlefetch/internal/host/github"
	"github.com/3leaps/bundlefetch/internal/prerelease"
	"github.com/3leaps/bundlefetch/internal/reporter"
	"github.com/3leaps/bundlefetch/internal/sandbox"
	"github.com/3leaps/bundlefetch/internal/state"
	"github.com/3leaps/bundlefetch/internal/transport"
)

// app is the composition root: one per command invocation.
type app struct {
	logger     *log.Logger
	guard      sandbox.Guard
	store      state.Store
	closeStore func() error

	resolver   *channel.Resolver
	installer  *bundle.Installer
	prerelease *prerelease.Orchestrator
	activator  *activation.Activator
}

// loadConfig resolves configuration and the root logger only.
func loadConfig(ctx context.Context, opts *globalOptions, stderr io.Writer) (config.Config, string, *log.Logger, error) {
	cfg, path, err := config.Load(ctx, config.LoadOptions{ConfigFilePath: opts.configPath})
	if err != nil {
		return config.Config{}, "", nil, err
	}
	levelName := cfg.LogLevel
	if opts.logLevel != "" {
		levelName = opts.logLevel
	}
	level, err := log.ParseLevel(levelName)
	if err != nil {
		return config.Config{}, "", nil, fmt.Errorf("--log-level: %w", err)
	}
	logger := log.NewWithOptions(stderr, log.Options{Prefix: config.AppName, Level: level})
	return cfg, path, logger, nil
}

func newApp(ctx context.Context, opts *globalOptions, stdout, stderr io.Writer) (*app, error) {
	cfg, path, logger, err := loadConfig(ctx, opts, stderr)
	if err != nil {
		return nil, err
	}
	if path != "" {
		logger.Debug("config loaded", "path", path)
	}

	guard := sandbox.Detect(cfg.Sandboxed, os.Getenv)
	if guard.Sandboxed() {
		logger.Debug("sandboxed", "reason", guard.Reason())
	}

	a := &app{logger: logger, guard: guard}
	if opts.ephemeral {
		a.store = state.NewMemory()
		a.closeStore = func() error { return nil }
	} else {
		db, err := state.OpenSQLite(cfg.StatePath)
		if err != nil {
			return nil, err
		}
		a.store = db
		a.closeStore = db.Close
	}

	client := transport.New(guard,
		transport.WithUserAgent(transport.UserAgent(version)),
		transport.WithToken(transport.TokenFromEnv()),
		transport.WithLogger(logger.WithPrefix("transport")),
	)
	rep := reporter.NewLog(logger)
	layout := bundle.NewLayout(cfg.RootDir, cfg.Endpoints.UpdateBaseURL, cfg.Bundle.ExecutableName)

	a.resolver = channel.NewResolver(guard, client, layout, a.store, channel.Settings{
		ExtensionVersion:    cfg.Host.ExtensionVersion,
		PrereleaseSupported: cfg.Host.PrereleaseSupported,
		ReceiveBetaUpdates:  cfg.Channel.ReceiveBetaUpdates,
		UseProposedAlpha:    cfg.Channel.UseProposedAlpha,
	}, logger.WithPrefix("channel"))

	installerOpts := []bundle.Option{
		bundle.WithReporter(rep),
		bundle.WithLogger(logger.WithPrefix("bundle")),
	}
	if cfg.Bundle.MinisignPublicKey != "" {
		installerOpts = append(installerOpts, bundle.WithMinisignPublicKey(cfg.Bundle.MinisignPublicKey))
	}
	a.installer = bundle.NewInstaller(guard, layout, a.resolver, client, installerOpts...)

	host := editor.NewTerminal(
		editor.WithOutput(stdout),
		editor.WithEditorCLI(cfg.Host.EditorCLI),
		editor.WithInsiders(cfg.Host.Insiders),
		editor.WithAutoConfirm(opts.yes),
		editor.WithTerminalLogger(logger.WithPrefix("editor")),
	)
	releases := github.NewReleases(client, cfg.Endpoints.APIBaseURL, cfg.Repo.ID, logger.WithPrefix("github"))
	a.prerelease = prerelease.New(guard, a.resolver, releases, client, host, a.store, prerelease.Settings{
		DisplayName:     cfg.Bundle.ExecutableName,
		PackageName:     cfg.Host.PackageName,
		SettingsPrefix:  cfg.Host.SettingsPrefix,
		DownloadBaseURL: cfg.Endpoints.DownloadBaseURL,
		Insiders:        cfg.Host.Insiders,
		AlphaCapability: cfg.HasCapability(prerelease.CapabilityAlpha),
	}, logger.WithPrefix("prerelease"))

	a.activator = activation.New(guard, a.installer, a.prerelease, a.resolver, rep, logger.WithPrefix("activation"), activation.Options{
		ExtensionVersion: cfg.Host.ExtensionVersion,
		FirstInstall:     cfg.Host.FirstInstall,
		TestMode:         cfg.TestMode,
	})
	return a, nil
}

func (a *app) close() {
	if err := a.closeStore(); err != nil {
		a.logger.Debug("close state store", "err", err)
	}
}
