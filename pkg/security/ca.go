package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/cuemby/crater/pkg/storage"
)

// keySize bounds the RSA key generated for a given Role: the root signs
// for a decade and is worth the extra CPU at Initialize time, a leaf is
// reissued every nodeCertValidity and should stay cheap.
type Role int

const (
	RoleRoot Role = iota
	RoleLeaf
)

func (r Role) keySize() int {
	if r == RoleRoot {
		return 4096
	}
	return 2048
}

const (
	rootCAValidity   = 10 * 365 * 24 * time.Hour
	nodeCertValidity = 90 * 24 * time.Hour
)

var (
	caBucket = []byte("ca")
	caKey    = []byte("root")
)

// CertAuthority is a single self-signed root over which every
// coordinator and agent TLS leaf in a cluster is issued, keyed off a
// cluster encryption key so the root private key is never at rest
// unencrypted (see SetClusterEncryptionKey).
type CertAuthority struct {
	mu   sync.RWMutex
	root *x509.Certificate
	key  *rsa.PrivateKey

	store storage.Store
}

// caRecord is the JSON shape persisted under the store's "ca"/"root" key.
type caRecord struct {
	CertDER         []byte
	EncryptedKeyDER []byte
}

// NewCertAuthority returns a CertAuthority backed by store for
// persistence; call Initialize (first run) or LoadFromStore (subsequent
// runs) before issuing certificates.
func NewCertAuthority(store storage.Store) *CertAuthority {
	return &CertAuthority{store: store}
}

// Initialize generates a fresh, self-signed root certificate and key.
func (ca *CertAuthority) Initialize() error {
	key, err := rsa.GenerateKey(rand.Reader, RoleRoot.keySize())
	if err != nil {
		return fmt.Errorf("security: generate root key: %w", err)
	}

	serial, err := randomSerial()
	if err != nil {
		return err
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"crater"}, CommonName: "crater root CA"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(rootCAValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
		MaxPathLen:            1,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("security: self-sign root: %w", err)
	}
	root, err := x509.ParseCertificate(der)
	if err != nil {
		return fmt.Errorf("security: parse root: %w", err)
	}

	ca.mu.Lock()
	ca.root, ca.key = root, key
	ca.mu.Unlock()
	return nil
}

// LoadFromStore restores a previously persisted root from the backing
// store, decrypting its private key with the cluster encryption key.
func (ca *CertAuthority) LoadFromStore() error {
	raw, found, err := ca.store.Get(caBucket, caKey)
	if err != nil {
		return fmt.Errorf("security: read CA record: %w", err)
	}
	if !found {
		return fmt.Errorf("security: no CA record persisted yet")
	}

	var rec caRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return fmt.Errorf("security: decode CA record: %w", err)
	}

	keyDER, err := Decrypt(rec.EncryptedKeyDER)
	if err != nil {
		return fmt.Errorf("security: decrypt root key: %w", err)
	}
	key, err := x509.ParsePKCS1PrivateKey(keyDER)
	if err != nil {
		return fmt.Errorf("security: parse root key: %w", err)
	}
	root, err := x509.ParseCertificate(rec.CertDER)
	if err != nil {
		return fmt.Errorf("security: parse root cert: %w", err)
	}

	ca.mu.Lock()
	ca.root, ca.key = root, key
	ca.mu.Unlock()
	return nil
}

// SaveToStore persists the in-memory root, encrypting its private key.
func (ca *CertAuthority) SaveToStore() error {
	ca.mu.RLock()
	root, key := ca.root, ca.key
	ca.mu.RUnlock()
	if root == nil || key == nil {
		return fmt.Errorf("security: CA not initialized")
	}

	encryptedKey, err := Encrypt(x509.MarshalPKCS1PrivateKey(key))
	if err != nil {
		return fmt.Errorf("security: encrypt root key: %w", err)
	}

	raw, err := json.Marshal(caRecord{CertDER: root.Raw, EncryptedKeyDER: encryptedKey})
	if err != nil {
		return fmt.Errorf("security: encode CA record: %w", err)
	}
	if err := ca.store.Put(caBucket, caKey, raw); err != nil {
		return fmt.Errorf("security: persist CA record: %w", err)
	}
	return nil
}

// IssueNodeCertificate signs a leaf certificate for a coordinator or
// agent process identified by nodeID, valid for the given DNS names and
// IPs (role is a free-text label embedded in the subject, e.g.
// "coordinator" or "agent", carrying no authorization meaning of its
// own — auth is the bearer-token layer in pkg/agentapi).
func (ca *CertAuthority) IssueNodeCertificate(nodeID, role string, dnsNames []string, ips []net.IP) (*tls.Certificate, error) {
	ca.mu.RLock()
	root, rootKey := ca.root, ca.key
	ca.mu.RUnlock()
	if root == nil || rootKey == nil {
		return nil, fmt.Errorf("security: CA not initialized")
	}

	leafKey, err := rsa.GenerateKey(rand.Reader, RoleLeaf.keySize())
	if err != nil {
		return nil, fmt.Errorf("security: generate leaf key: %w", err)
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{Organization: []string{"crater"}, CommonName: fmt.Sprintf("%s/%s", role, nodeID)},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(nodeCertValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:     dnsNames,
		IPAddresses:  ips,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, root, &leafKey.PublicKey, rootKey)
	if err != nil {
		return nil, fmt.Errorf("security: sign leaf for %s: %w", nodeID, err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("security: parse leaf for %s: %w", nodeID, err)
	}

	return &tls.Certificate{Certificate: [][]byte{der}, PrivateKey: leafKey, Leaf: leaf}, nil
}

// VerifyCertificate checks that cert chains to this CA's root, accepting
// either server or client auth extended key usage.
func (ca *CertAuthority) VerifyCertificate(cert *x509.Certificate) error {
	ca.mu.RLock()
	root := ca.root
	ca.mu.RUnlock()
	if root == nil {
		return fmt.Errorf("security: CA not initialized")
	}

	roots := x509.NewCertPool()
	roots.AddCert(root)
	_, err := cert.Verify(x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	})
	if err != nil {
		return fmt.Errorf("security: verify chain: %w", err)
	}
	return nil
}

// RootCertDER returns the root certificate in DER form, or nil if the CA
// has not been initialized/loaded yet.
func (ca *CertAuthority) RootCertDER() []byte {
	ca.mu.RLock()
	defer ca.mu.RUnlock()
	if ca.root == nil {
		return nil
	}
	return ca.root.Raw
}

// Ready reports whether the CA holds a usable root certificate and key.
func (ca *CertAuthority) Ready() bool {
	ca.mu.RLock()
	defer ca.mu.RUnlock()
	return ca.root != nil && ca.key != nil
}

func randomSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("security: generate serial: %w", err)
	}
	return serial, nil
}
