/*
Package security implements a Certificate Authority for the coordinator's
HTTP listener, used when an operator has not supplied a certificate of
their own.

# Architecture

	Root CA (self-signed, RSA 4096, 10-year validity)
	└── Node certificates (RSA 2048, 90-day validity, ServerAuth+ClientAuth)

The root CA's private key is encrypted at rest with a cluster encryption
key derived deterministically from the node's identity:

	clusterKey = SHA-256(nodeID)  // 32 bytes, AES-256-GCM

SetClusterEncryptionKey must be called once before Initialize or
LoadFromStore; Encrypt/Decrypt (AES-256-GCM, random nonce per call) wrap
the root private key's bytes going into and out of storage.

# Usage

	store, err := storage.NewBoltStore(caDir)
	if err != nil {
		return err
	}

	if err := security.SetClusterEncryptionKey(security.DeriveKeyFromClusterID(nodeID)); err != nil {
		return err
	}

	ca := security.NewCertAuthority(store)
	if err := ca.LoadFromStore(); err != nil {
		if err := ca.Initialize(); err != nil {
			return err
		}
		if err := ca.SaveToStore(); err != nil {
			return err
		}
	}

	cert, err := ca.IssueNodeCertificate(nodeID, "coordinator", []string{"localhost"}, nil)

The resulting *tls.Certificate is handed directly to an http.Server's
TLSConfig. certs.go's CacheLeaf/LoadLeaf/NeedsRotation let a coordinator
reuse a previously-issued leaf across restarts instead of minting a new
one every time it starts (cmd/crater's autogenCert does exactly this);
CacheCA/LoadCAFile let an operator hand an agent the coordinator's root
certificate out of band so it can trust a self-signed listener without
skipping verification entirely.

# Storage layout

	Bucket: "ca"
	Key:    "root"
	Value:  {CertDER: [...], EncryptedKeyDER: [...encrypted...]}

# Threat model

This CA protects connections between the coordinator's HTTP listener and
its agents against passive network eavesdropping and trivial
impersonation. It does not defend against a compromised coordinator host:
the cluster encryption key is derivable from the node ID alone, and the
root private key lives decrypted in process memory once loaded.
*/
package security
