package update

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/mod/semver"
)

type Decision string

const (
	DecisionProceed   Decision = "proceed"   // Install the latest bundle
	DecisionSkip      Decision = "skip"      // Latest bundle already on disk
	DecisionReinstall Decision = "reinstall" // Force reinstall of an installed bundle
	DecisionDowngrade Decision = "downgrade" // Manifest points below the newest installed bundle
)

// ErrInvalidVersion is returned for any string that is not a full MAJOR.MINOR.PATCH semver.
var ErrInvalidVersion = errors.New("invalid version")

// AlphaIdentifier is the prerelease identifier that marks alpha builds.
const AlphaIdentifier = "alpha"

// FormatVersionDisplay formats a version string for display, adding "v" prefix if needed.
func FormatVersionDisplay(v string) string {
	if v == "" {
		return v
	}
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// ParseVersion validates v as a semantic version and returns it without the
// leading "v" and surrounding whitespace. Shorthand forms accepted by
// x/mod/semver ("v1", "v1.2") are rejected: all three numeric parts are required.
func ParseVersion(v string) (string, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(v), "v")
	if trimmed == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidVersion, v)
	}

	canonical := "v" + trimmed
	if !semver.IsValid(canonical) {
		return "", fmt.Errorf("%w: %q", ErrInvalidVersion, v)
	}

	core := strings.TrimPrefix(releaseOf(canonical), "v")
	if strings.Count(core, ".") != 2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidVersion, v)
	}

	return trimmed, nil
}

// CompareVersions compares two versions. Returns -1 if a < b, 0 if a == b, 1 if a > b.
// Build metadata is ignored.
func CompareVersions(a, b string) (int, error) {
	av, err := ParseVersion(a)
	if err != nil {
		return 0, err
	}
	bv, err := ParseVersion(b)
	if err != nil {
		return 0, err
	}
	return semver.Compare("v"+av, "v"+bv), nil
}

// ReleaseVersion drops prerelease and build metadata: "1.2.0-alpha.2" becomes "1.2.0".
func ReleaseVersion(v string) (string, error) {
	norm, err := ParseVersion(v)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(releaseOf("v"+norm), "v"), nil
}

// PrereleaseIdentifiers returns the dot-separated prerelease identifiers of v,
// e.g. ["alpha", "1"] for "1.3.0-alpha.1". A release version has none.
func PrereleaseIdentifiers(v string) ([]string, error) {
	norm, err := ParseVersion(v)
	if err != nil {
		return nil, err
	}
	pre := strings.TrimPrefix(semver.Prerelease("v"+norm), "-")
	if pre == "" {
		return nil, nil
	}
	return strings.Split(pre, "."), nil
}

// IsNewerAlphaVersionAvailable reports whether candidate should be offered on
// the alpha channel given the current version. A candidate qualifies when it
// carries the exact "alpha" prerelease identifier and either
//
//   - is strictly greater than current, or
//   - shares current's release version (an alpha respin of the installed release).
//
// An empty current means nothing is installed and never qualifies. Any
// unparsable version is an error.
func IsNewerAlphaVersionAvailable(current, candidate string) (bool, error) {
	ids, err := PrereleaseIdentifiers(candidate)
	if err != nil {
		return false, fmt.Errorf("candidate version: %w", err)
	}
	if strings.TrimSpace(current) == "" {
		return false, nil
	}

	cmp, err := CompareVersions(candidate, current)
	if err != nil {
		return false, fmt.Errorf("current version: %w", err)
	}

	isAlpha := slices.Contains(ids, AlphaIdentifier)
	if !isAlpha {
		return false, nil
	}
	if cmp > 0 {
		return true, nil
	}

	candidateRelease, _ := ReleaseVersion(candidate)
	currentNorm, _ := ParseVersion(current)
	return semver.Compare("v"+candidateRelease, "v"+currentNorm) == 0, nil
}

// DecideBundleInstall determines what to do with the bundle named by the
// version manifest.
//
// installed: versions already present on disk (any order)
// latest:    version published in the manifest
// force:     reinstall even if latest is already present
//
// Returns a Decision and a human message. latest must already be valid.
func DecideBundleInstall(installed []string, latest string, force bool) (Decision, string) {
	present := false
	newest := ""
	for _, v := range installed {
		cmp, err := CompareVersions(v, latest)
		if err != nil {
			continue
		}
		if cmp == 0 {
			present = true
		}
		if newest == "" {
			newest = v
			continue
		}
		if c, _ := CompareVersions(v, newest); c > 0 {
			newest = v
		}
	}

	if present {
		if force {
			return DecisionReinstall, fmt.Sprintf("Reinstalling bundle %s...", FormatVersionDisplay(latest))
		}
		return DecisionSkip, fmt.Sprintf("Bundle %s is already installed.", FormatVersionDisplay(latest))
	}

	if newest != "" {
		if c, _ := CompareVersions(newest, latest); c > 0 {
			return DecisionDowngrade, fmt.Sprintf("Installing bundle %s (newest on disk is %s; the manifest wins)",
				FormatVersionDisplay(latest), FormatVersionDisplay(newest))
		}
		return DecisionProceed, fmt.Sprintf("Updating bundle: %s → %s", FormatVersionDisplay(newest), FormatVersionDisplay(latest))
	}

	return DecisionProceed, fmt.Sprintf("Installing bundle %s", FormatVersionDisplay(latest))
}

// DescribeDecision returns a human-readable dry-run status.
func DescribeDecision(d Decision) string {
	switch d {
	case DecisionSkip:
		return "Already at latest version (no download needed)"
	case DecisionProceed:
		return "Update available"
	case DecisionReinstall:
		return "Force reinstall requested"
	case DecisionDowngrade:
		return "Manifest version is older than the newest installed bundle"
	default:
		return string(d)
	}
}

// releaseOf returns the vMAJOR.MINOR.PATCH part of a canonical "v" version.
func releaseOf(canonical string) string {
	core := canonical
	if idx := strings.IndexAny(core, "-+"); idx >= 0 {
		core = core[:idx]
	}
	return core
}
