package verify

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/3leaps/bundlefetch/internal/verify/verifytest"
)

func writeFile(t *testing.T, path string, data []byte) string {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestMinisignFileRejectsOtherFormats(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	signer := verifytest.NewSigner(t, dir)
	archive := writeFile(t, filepath.Join(dir, "bundle.zip"), []byte("zip bytes"))
	for name, content := range map[string]string{
		"pgp":     "-----BEGIN PGP SIGNATURE-----\n...",
		"garbage": "not a signature",
	} {
		sig := writeFile(t, filepath.Join(dir, name+".sig"), []byte(content))
		if err := MinisignFile(archive, sig, signer.PublicKeyPath); !errors.Is(err, ErrUnsupportedFormat) {
			t.Fatalf("%s: expected ErrUnsupportedFormat, got %v", name, err)
		}
	}
}

func TestMinisignFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	signer := verifytest.NewSigner(t, dir)
	archive := writeFile(t, filepath.Join(dir, "bundle.zip"), []byte("zip bytes"))
	sig := writeFile(t, filepath.Join(dir, "bundle.zip"+SignatureSuffix), signer.Sign([]byte("zip bytes")))

	if err := MinisignFile(archive, sig, signer.PublicKeyPath); err != nil {
		t.Fatalf("MinisignFile: %v", err)
	}

	tampered := writeFile(t, filepath.Join(dir, "tampered.zip"), []byte("zip bytes!"))
	if err := MinisignFile(tampered, sig, signer.PublicKeyPath); err == nil {
		t.Fatalf("expected failure for tampered archive")
	}

	other := verifytest.NewSigner(t, t.TempDir())
	if err := MinisignFile(archive, sig, other.PublicKeyPath); err == nil {
		t.Fatalf("expected failure for foreign key")
	}
}

func TestMinisignFileErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	signer := verifytest.NewSigner(t, dir)
	archive := writeFile(t, filepath.Join(dir, "bundle.zip"), []byte("zip bytes"))
	sig := writeFile(t, filepath.Join(dir, "bundle.zip.minisig"), signer.Sign([]byte("zip bytes")))

	if err := MinisignFile(archive, filepath.Join(dir, "missing.minisig"), signer.PublicKeyPath); err == nil || !strings.Contains(err.Error(), "read sig") {
		t.Fatalf("missing sig: %v", err)
	}
	if err := MinisignFile(archive, sig, filepath.Join(dir, "missing.pub")); err == nil || !strings.Contains(err.Error(), "pubkey") {
		t.Fatalf("missing pubkey: %v", err)
	}
	truncated := writeFile(t, filepath.Join(dir, "short.minisig"), []byte("untrusted comment: x\n"))
	if err := MinisignFile(archive, truncated, signer.PublicKeyPath); err == nil || !strings.Contains(err.Error(), "signature") {
		t.Fatalf("truncated sig: %v", err)
	}
	if err := MinisignFile(filepath.Join(dir, "gone.zip"), sig, signer.PublicKeyPath); err == nil || !strings.Contains(err.Error(), "read archive") {
		t.Fatalf("missing archive: %v", err)
	}
}
