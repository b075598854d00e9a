// Package update provides the version math behind bundle installs and
// pre-release channel updates.
//
// It does not perform downloads or installation. It answers two questions:
// should the bundle named by the version manifest be downloaded, and does a
// pre-release artifact qualify for the alpha channel.
//
// Version model
//   - Versions are full semantic versions "MAJOR.MINOR.PATCH" with optional
//     prerelease/build metadata (e.g., "1.3.0-alpha.1", "1.0.0+build123").
//     A leading "v" and surrounding whitespace are accepted and stripped.
//   - Anything else is rejected with ErrInvalidVersion; nothing is coerced.
//   - Prerelease precedence follows SemVer: "1.2.0-alpha.1" < "1.2.0".
//   - The alpha channel rule is deliberately asymmetric: an alpha build of the
//     currently installed release qualifies even though it sorts below it.
package update
