// Package cryptoimpl provides the hash/RSA/Ed25519 primitives the
// signer and verifier call: stdlib RSA/SHA for RSA signatures, and
// github.com/cloudflare/circl's Ed25519 for Ed25519 signatures. These
// are plain functions called directly; there is no interface type
// through which another provider can be substituted.
package cryptoimpl

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash"

	circlEd25519 "github.com/cloudflare/circl/sign/ed25519"

	"dkimkit.dev/dkim/sig"
)

// NewHash returns a fresh hash.Hash for d.
func NewHash(d sig.Digest) (hash.Hash, crypto.Hash) {
	switch d {
	case sig.SHA1:
		return sha1.New(), crypto.SHA1
	default:
		return sha256.New(), crypto.SHA256
	}
}

// RSASign produces a PKCS#1 v1.5 signature over digest using key and
// the digest algorithm named by cryptoHash.
func RSASign(key *rsa.PrivateKey, cryptoHash crypto.Hash, digest []byte) ([]byte, error) {
	out, err := rsa.SignPKCS1v15(rand.Reader, key, cryptoHash, digest)
	if err != nil {
		return nil, fmt.Errorf("cryptoimpl: rsa sign: %w", err)
	}
	return out, nil
}

// RSAVerify checks a PKCS#1 v1.5 signature over digest.
func RSAVerify(key *rsa.PublicKey, cryptoHash crypto.Hash, digest, signature []byte) error {
	if err := rsa.VerifyPKCS1v15(key, cryptoHash, digest, signature); err != nil {
		return fmt.Errorf("cryptoimpl: rsa verify: %w", err)
	}
	return nil
}

// Ed25519Sign signs digest (not the raw message) with the 64-byte
// private key (a bare 32-byte seed must be expanded first), matching the DKIM ed25519-sha256 convention
// of signing the SHA-256 digest bytes rather than the canonical data
// directly.
func Ed25519Sign(key ed25519.PrivateKey, digest []byte) []byte {
	return circlEd25519.Sign(circlEd25519.PrivateKey(key), digest)
}

// Ed25519Verify verifies a detached signature over digest.
func Ed25519Verify(pub ed25519.PublicKey, digest, signature []byte) error {
	if !circlEd25519.Verify(circlEd25519.PublicKey(pub), digest, signature) {
		return fmt.Errorf("cryptoimpl: ed25519 verify: signature does not match")
	}
	return nil
}
