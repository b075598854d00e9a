// Package verify checks detached signatures over downloaded bundle archives.
package verify

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jedisct1/go-minisign"
)

// SignatureSuffix is appended to an archive URL or path to locate its signature.
const SignatureSuffix = ".minisig"

// ErrUnsupportedFormat is returned for signature files that are not minisign.
var ErrUnsupportedFormat = errors.New("unsupported signature format")

// requireMinisign rejects anything that does not start like a minisign
// signature file.
func requireMinisign(path string) error {
	// #nosec G304 -- path is the signature staged next to the archive
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read sig: %w", err)
	}
	if !strings.HasPrefix(strings.TrimSpace(string(data)), "untrusted comment:") {
		return fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	return nil
}

// MinisignFile verifies the archive at archivePath against the minisign
// signature at sigPath using the public key file at pubKeyPath.
func MinisignFile(archivePath, sigPath, pubKeyPath string) error {
	if err := requireMinisign(sigPath); err != nil {
		return err
	}

	pubKey, err := minisign.NewPublicKeyFromFile(pubKeyPath)
	if err != nil {
		return fmt.Errorf("read minisign pubkey: %w", err)
	}
	sig, err := minisign.NewSignatureFromFile(sigPath)
	if err != nil {
		return fmt.Errorf("read minisign signature: %w", err)
	}

	// #nosec G304 -- archivePath is the staged bundle archive
	content, err := os.ReadFile(archivePath)
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}

	valid, err := pubKey.Verify(content, sig)
	if err != nil {
		return fmt.Errorf("minisign: verification error: %w", err)
	}
	if !valid {
		return errors.New("minisign: signature verification failed")
	}
	return nil
}
