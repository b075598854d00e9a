// Package verifytest produces minisign key pairs and signatures for tests.
package verifytest

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
)

// Signer holds a throwaway minisign key.
type Signer struct {
	PublicKeyPath string

	keyID [8]byte
	priv  ed25519.PrivateKey
}

// NewSigner generates a key and writes its public half to dir/minisign.pub.
func NewSigner(t testing.TB, dir string) *Signer {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	s := &Signer{priv: priv}
	if _, err := rand.Read(s.keyID[:]); err != nil {
		t.Fatalf("key id: %v", err)
	}

	bin := append([]byte("Ed"), s.keyID[:]...)
	bin = append(bin, pub...)
	content := "untrusted comment: test key\n" + base64.StdEncoding.EncodeToString(bin) + "\n"

	s.PublicKeyPath = filepath.Join(dir, "minisign.pub")
	if err := os.WriteFile(s.PublicKeyPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write pubkey: %v", err)
	}
	return s
}

// Sign returns a legacy (non-prehashed) minisign signature file over data.
func (s *Signer) Sign(data []byte) []byte {
	const trusted = "timestamp:0\tfile:bundle.zip"

	sig := ed25519.Sign(s.priv, data)
	global := ed25519.Sign(s.priv, append(append([]byte{}, sig...), trusted...))

	bin := append([]byte("Ed"), s.keyID[:]...)
	bin = append(bin, sig...)
	return []byte("untrusted comment: signature from test key\n" +
		base64.StdEncoding.EncodeToString(bin) + "\n" +
		"trusted comment: " + trusted + "\n" +
		base64.StdEncoding.EncodeToString(global) + "\n")
}
