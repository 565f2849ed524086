package security

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RotationWindow is how far ahead of a leaf certificate's expiry a caller
// should treat it as due for reissue, rather than waiting for it to lapse
// mid-experiment and take an agent-coordinator connection down with it.
const RotationWindow = 30 * 24 * time.Hour

const (
	leafCertFile = "leaf.crt"
	leafKeyFile  = "leaf.key"
	caCertFile   = "ca.crt"
)

// CertDir resolves the on-disk cache directory for a coordinator or agent
// node's issued leaf certificate, rooted under workDir so it survives
// restarts alongside the rest of the scratch layout rather than under the
// operator's home directory.
func CertDir(workDir, nodeID string) string {
	return filepath.Join(workDir, "tls", nodeID)
}

// CacheLeaf persists an issued leaf certificate and its private key under
// dir so a future process start can reuse it via LoadLeaf instead of
// asking the CA to issue a fresh one on every restart.
func CacheLeaf(dir string, cert *tls.Certificate) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("security: create cert dir %s: %w", dir, err)
	}

	rsaKey, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("security: leaf private key is not RSA")
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]})
	if err := os.WriteFile(filepath.Join(dir, leafCertFile), certPEM, 0o600); err != nil {
		return fmt.Errorf("security: write leaf cert: %w", err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(rsaKey)})
	if err := os.WriteFile(filepath.Join(dir, leafKeyFile), keyPEM, 0o600); err != nil {
		return fmt.Errorf("security: write leaf key: %w", err)
	}

	return nil
}

// LeafExists reports whether a cached leaf certificate is present in dir,
// without validating its expiry.
func LeafExists(dir string) bool {
	_, certErr := os.Stat(filepath.Join(dir, leafCertFile))
	_, keyErr := os.Stat(filepath.Join(dir, leafKeyFile))
	return certErr == nil && keyErr == nil
}

// LoadLeaf reads back a leaf certificate cached by CacheLeaf, populating
// its Leaf field so callers can inspect NotAfter without a second parse.
func LoadLeaf(dir string) (*tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(filepath.Join(dir, leafCertFile), filepath.Join(dir, leafKeyFile))
	if err != nil {
		return nil, fmt.Errorf("security: load cached leaf: %w", err)
	}
	if cert.Leaf == nil {
		leaf, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return nil, fmt.Errorf("security: parse cached leaf: %w", err)
		}
		cert.Leaf = leaf
	}
	return &cert, nil
}

// NeedsRotation reports whether cert is nil, already expired, or within
// RotationWindow of expiry.
func NeedsRotation(cert *x509.Certificate) bool {
	if cert == nil {
		return true
	}
	return time.Until(cert.NotAfter) < RotationWindow
}

// CacheCA writes the CA's certificate (DER-encoded) to dir so it can be
// handed to agents out of band for them to trust the coordinator's
// self-signed TLS listener.
func CacheCA(dir string, caCertDER []byte) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("security: create cert dir %s: %w", dir, err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: caCertDER})
	if err := os.WriteFile(filepath.Join(dir, caCertFile), pemBytes, 0o644); err != nil {
		return fmt.Errorf("security: write CA cert: %w", err)
	}
	return nil
}

// LoadCAFile parses a PEM-encoded CA certificate from path, for an agent
// that was handed the coordinator's CA certificate to establish trust.
func LoadCAFile(path string) (*x509.Certificate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("security: read CA cert %s: %w", path, err)
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("security: %s is not a PEM certificate", path)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("security: parse CA cert %s: %w", path, err)
	}
	return cert, nil
}
