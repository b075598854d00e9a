// Package github reads release listings from the GitHub REST API.
package github

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/3leaps/bundlefetch/internal/model"
)

// ErrNoRelease is returned when the listing has no release or the latest
// release has no asset.
var ErrNoRelease = errors.New("no release asset published")

//go:embed releases.schema.json
var releasesSchemaJSON []byte

const releasesSchemaURL = "https://schemas.3leaps.dev/bundlefetch/releases.schema.json"

var releasesSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(releasesSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse releases schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(releasesSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add releases schema: %w", err)
	}
	return c.Compile(releasesSchemaURL)
})

// Fetcher buffers a small remote payload.
type Fetcher interface {
	DownloadFileToStr(ctx context.Context, url string) (string, error)
}

// Releases lists the releases of one repository.
type Releases struct {
	fetcher Fetcher
	apiBase string
	repo    string
	logger  *log.Logger
}

// NewReleases returns a client for repo ("owner/name") on the API at apiBase.
func NewReleases(fetcher Fetcher, apiBase, repo string, logger *log.Logger) *Releases {
	if logger == nil {
		logger = log.Default()
	}
	return &Releases{
		fetcher: fetcher,
		apiBase: strings.TrimRight(apiBase, "/"),
		repo:    strings.Trim(repo, "/"),
		logger:  logger,
	}
}

// ListURL is the releases-listing endpoint.
func (r *Releases) ListURL() string {
	return fmt.Sprintf("%s/repos/%s/releases", r.apiBase, r.repo)
}

// List fetches the listing, newest first, and validates its shape.
func (r *Releases) List(ctx context.Context) ([]model.Release, error) {
	body, err := r.fetcher.DownloadFileToStr(ctx, r.ListURL())
	if err != nil {
		return nil, err
	}
	return decodeReleases([]byte(body))
}

// LatestAssetURL returns the download URL of the first asset of the latest
// release. Nothing else in the listing is consulted.
func (r *Releases) LatestAssetURL(ctx context.Context) (string, error) {
	releases, err := r.List(ctx)
	if err != nil {
		return "", err
	}
	if len(releases) == 0 || len(releases[0].Assets) == 0 {
		return "", fmt.Errorf("%s: %w", r.repo, ErrNoRelease)
	}
	latest := releases[0]
	r.logger.Debug("latest release", "tag", latest.TagName, "asset", latest.Assets[0].Name)
	return latest.Assets[0].BrowserDownloadURL, nil
}

func decodeReleases(body []byte) ([]model.Release, error) {
	sch, err := releasesSchema()
	if err != nil {
		return nil, err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse releases: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return nil, fmt.Errorf("releases payload: %w", err)
	}

	var releases []model.Release
	if err := json.Unmarshal(body, &releases); err != nil {
		return nil, fmt.Errorf("decode releases: %w", err)
	}
	return releases, nil
}
