package dkim

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	"dkimkit.dev/dkim/sig"
)

// parsePrivateKey decodes raw per Plan.PrivateKey's documented forms
// for alg.
func parsePrivateKey(alg sig.Algorithm, raw []byte) (rsaKey *rsa.PrivateKey, edKey ed25519.PrivateKey, err error) {
	switch alg {
	case sig.RSA:
		rsaKey, err = parseRSAPrivateKey(raw)
		return rsaKey, nil, err
	case sig.Ed25519:
		edKey, err = parseEd25519PrivateKey(raw)
		return nil, edKey, err
	default:
		return nil, nil, fmt.Errorf("dkim: unknown signature algorithm")
	}
}

func parseRSAPrivateKey(raw []byte) (*rsa.PrivateKey, error) {
	der := raw
	if block, _ := pem.Decode(raw); block != nil {
		der = block.Bytes
	} else if decoded, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(raw))); err == nil {
		der = decoded
	}

	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("dkim: cannot parse RSA private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("dkim: PKCS#8 key is not RSA")
	}
	return key, nil
}

func parseEd25519PrivateKey(raw []byte) (ed25519.PrivateKey, error) {
	material := raw
	if decoded, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(raw))); err == nil {
		material = decoded
	}
	switch len(material) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(material), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(material), nil
	default:
		return nil, fmt.Errorf("dkim: ed25519 private key must be %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(material))
	}
}
