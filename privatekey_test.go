package dkim

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"

	"dkimkit.dev/dkim/sig"
)

func TestParsePrivateKeyRSAFromPEM(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	pemBytes := pem.EncodeToMemory(block)

	rsaKey, edKey, err := parsePrivateKey(sig.RSA, pemBytes)
	if err != nil {
		t.Fatal(err)
	}
	if edKey != nil {
		t.Error("edKey should be nil for RSA plan")
	}
	if rsaKey.N.Cmp(key.N) != 0 {
		t.Error("parsed RSA key does not match original")
	}
}

func TestParsePrivateKeyRSAFromRawBase64DER(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der := x509.MarshalPKCS1PrivateKey(key)
	b64 := []byte(base64.StdEncoding.EncodeToString(der))

	rsaKey, _, err := parsePrivateKey(sig.RSA, b64)
	if err != nil {
		t.Fatal(err)
	}
	if rsaKey.N.Cmp(key.N) != 0 {
		t.Error("parsed RSA key does not match original")
	}
}

func TestParsePrivateKeyRSAPKCS8(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	rsaKey, _, err := parsePrivateKey(sig.RSA, der)
	if err != nil {
		t.Fatal(err)
	}
	if rsaKey.N.Cmp(key.N) != 0 {
		t.Error("parsed RSA key does not match original")
	}
}

func TestParsePrivateKeyEd25519Seed(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	seed := priv.Seed()

	rsaKey, edKey, err := parsePrivateKey(sig.Ed25519, seed)
	if err != nil {
		t.Fatal(err)
	}
	if rsaKey != nil {
		t.Error("rsaKey should be nil for Ed25519 plan")
	}
	if !edKey.Equal(priv) {
		t.Error("parsed ed25519 key does not match original")
	}
}

func TestParsePrivateKeyEd25519ExpandedKey(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	_, edKey, err := parsePrivateKey(sig.Ed25519, []byte(priv))
	if err != nil {
		t.Fatal(err)
	}
	if !edKey.Equal(priv) {
		t.Error("parsed ed25519 key does not match original")
	}
}

func TestParsePrivateKeyEd25519WrongLength(t *testing.T) {
	if _, _, err := parsePrivateKey(sig.Ed25519, []byte("too short")); err == nil {
		t.Fatal("expected error for wrong-length ed25519 key material")
	}
}
