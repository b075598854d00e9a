// Package channel resolves versions across the update channels: the stable
// bundle manifest, the pre-release listing and the persisted alpha version.
package channel

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/3leaps/bundlefetch/internal/bundle"
	"github.com/3leaps/bundlefetch/internal/model"
	"github.com/3leaps/bundlefetch/internal/sandbox"
	"github.com/3leaps/bundlefetch/internal/state"
	"github.com/3leaps/bundlefetch/pkg/update"
)

// releaseDownloadSegment precedes the release tag in a release asset URL.
const releaseDownloadSegment = "/releases/download/"

// Fetcher buffers a small remote payload.
type Fetcher interface {
	DownloadFileToStr(ctx context.Context, url string) (string, error)
}

// Settings are the user and host facts channel selection depends on.
type Settings struct {
	ExtensionVersion    string
	PrereleaseSupported bool
	ReceiveBetaUpdates  bool
	UseProposedAlpha    bool
}

// Resolver answers "what is installed" and "what is available" per channel.
type Resolver struct {
	guard    sandbox.Guard
	fetcher  Fetcher
	layout   bundle.Layout
	store    state.Store
	settings Settings
	logger   *log.Logger
}

// NewResolver returns a Resolver.
func NewResolver(guard sandbox.Guard, fetcher Fetcher, layout bundle.Layout, store state.Store, settings Settings, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{
		guard:    guard,
		fetcher:  fetcher,
		layout:   layout,
		store:    store,
		settings: settings,
		logger:   logger,
	}
}

// LatestBundleVersion reads the version manifest. A manifest that is not a
// full semver fails with update.ErrInvalidVersion.
func (r *Resolver) LatestBundleVersion(ctx context.Context) (string, error) {
	if err := r.guard.Check("resolve latest bundle version"); err != nil {
		return "", err
	}
	body, err := r.fetcher.DownloadFileToStr(ctx, r.layout.VersionURL())
	if err != nil {
		return "", err
	}
	v, err := update.ParseVersion(body)
	if err != nil {
		return "", fmt.Errorf("version manifest: %w", err)
	}
	r.logger.Debug("latest bundle version", "version", v)
	return v, nil
}

// CurrentVersion is the persisted alpha version, else the running extension
// version. "" means none is known.
func (r *Resolver) CurrentVersion(ctx context.Context) (string, error) {
	v, ok, err := r.store.Get(ctx, state.KeyAlphaVersion)
	if err != nil {
		return "", fmt.Errorf("read persisted alpha version: %w", err)
	}
	if ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), nil
	}
	return strings.TrimSpace(r.settings.ExtensionVersion), nil
}

// AvailableAlphaVersion derives the version from a release asset URL of the
// form .../releases/download/<tag>/<asset>.
func (r *Resolver) AvailableAlphaVersion(artifactURL string) (string, error) {
	u, err := url.Parse(artifactURL)
	if err != nil {
		return "", fmt.Errorf("artifact url: %w", err)
	}
	_, rest, ok := strings.Cut(u.Path, releaseDownloadSegment)
	if !ok {
		return "", fmt.Errorf("%w: no release tag in %q", update.ErrInvalidVersion, artifactURL)
	}
	tag, _, _ := strings.Cut(rest, "/")
	return update.ParseVersion(tag)
}

// IsNewerAlphaVersionAvailable applies the alpha predicate to candidate and
// the current version.
func (r *Resolver) IsNewerAlphaVersionAvailable(ctx context.Context, candidate string) (bool, error) {
	current, err := r.CurrentVersion(ctx)
	if err != nil {
		return false, err
	}
	return update.IsNewerAlphaVersionAvailable(current, candidate)
}

// UpdatePersistedAlphaVersion records v as installed. "" clears it.
func (r *Resolver) UpdatePersistedAlphaVersion(ctx context.Context, v string) error {
	if v == "" {
		return r.store.Delete(ctx, state.KeyAlphaVersion)
	}
	norm, err := update.ParseVersion(v)
	if err != nil {
		return err
	}
	return r.store.Update(ctx, state.KeyAlphaVersion, norm)
}

// PreReleaseChannelSupported reports whether the host can install
// pre-release extension packages at all.
func (r *Resolver) PreReleaseChannelSupported() bool {
	return r.settings.PrereleaseSupported
}

// UserConsumesProposedAlphaUpdates reports the proposed-alpha opt-in.
func (r *Resolver) UserConsumesProposedAlphaUpdates() bool {
	return r.settings.PrereleaseSupported && r.settings.UseProposedAlpha
}

// UserConsumesPreReleaseChannelUpdates reports the beta channel opt-in.
func (r *Resolver) UserConsumesPreReleaseChannelUpdates() bool {
	return r.settings.PrereleaseSupported && r.settings.ReceiveBetaUpdates
}

// ActiveChannel picks the channel; proposed alpha wins over beta.
func (r *Resolver) ActiveChannel() model.Channel {
	switch {
	case r.UserConsumesProposedAlphaUpdates():
		return model.ChannelProposedAlpha
	case r.UserConsumesPreReleaseChannelUpdates():
		return model.ChannelBeta
	default:
		return model.ChannelStable
	}
}

// InstalledBundleVersions lists installed bundles, newest first.
func (r *Resolver) InstalledBundleVersions() ([]string, error) {
	return r.layout.InstalledVersions()
}
