// Package key provides PublicKeyRecord, the typed projection of a
// parsed DKIM public-key TXT record.
package key

import (
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"strings"

	"dkimkit.dev/dkim/internal/rfc5322"
	"dkimkit.dev/dkim/internal/tagvalue"
	"dkimkit.dev/dkim/internal/wireenc"
	"dkimkit.dev/dkim/sig"
)

// Type is the key algorithm a public-key record carries.
type Type int

const (
	RSA Type = iota
	Ed25519
)

// Record is the typed projection of a key=value TXT record published
// at <selector>._domainkey.<domain>.
type Record struct {
	Type Type

	// RSAKey and Ed25519Key hold the parsed key material; exactly one
	// is populated, matching Type, unless Revoked is true.
	RSAKey     *rsa.PublicKey
	Ed25519Key ed25519.PublicKey
	Revoked    bool

	// AcceptableDigests restricts which sig.Digest values are legal
	// for a signature verified under this key; nil means unrestricted.
	AcceptableDigests []sig.Digest

	// ServiceTypes restricts which service identifiers the key may
	// verify; nil or containing "*" means unrestricted.
	ServiceTypes []string

	TestingFlag      bool // t=y: verification failures classify softly
	StrictDomainFlag bool // t=s: identity-domain must equal key-domain
}

// Parse parses txt, the concatenated TXT record text, as a key record.
func Parse(txt string) (*Record, error) {
	tl, err := tagvalue.Parse([]byte(txt))
	if err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}

	if v, ok := tl.Get("v"); ok && v.String() != "DKIM1" {
		return nil, fmt.Errorf("key: unsupported v=%q", v)
	}

	r := &Record{Type: RSA}
	if k, ok := tl.Get("k"); ok {
		switch k.String() {
		case "rsa":
			r.Type = RSA
		case "ed25519":
			r.Type = Ed25519
		default:
			return nil, fmt.Errorf("key: unsupported k=%q", k)
		}
	}

	p, ok := tl.Get("p")
	if !ok {
		return nil, fmt.Errorf("key: missing p=")
	}
	if len(strings.TrimSpace(p.String())) == 0 {
		r.Revoked = true
		return r, nil
	}
	raw, err := wireenc.DecodeBase64(p.Raw)
	if err != nil {
		return nil, fmt.Errorf("key: bad p=: %w", err)
	}

	switch r.Type {
	case RSA:
		pub, err := x509.ParsePKIXPublicKey(raw)
		if err != nil {
			return nil, fmt.Errorf("key: p= is not a SubjectPublicKeyInfo blob: %w", err)
		}
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("key: p= does not contain an RSA key")
		}
		r.RSAKey = rsaPub
	case Ed25519:
		if len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("key: ed25519 p= must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
		}
		r.Ed25519Key = ed25519.PublicKey(raw)
	}

	if h, ok := tl.Get("h"); ok {
		names, err := rfc5322.ValueList(h.Raw)
		if err != nil {
			return nil, fmt.Errorf("key: bad h=: %w", err)
		}
		for _, n := range names {
			switch strings.ToLower(string(n)) {
			case "sha1":
				r.AcceptableDigests = append(r.AcceptableDigests, sig.SHA1)
			case "sha256":
				r.AcceptableDigests = append(r.AcceptableDigests, sig.SHA256)
			}
		}
	}

	if s, ok := tl.Get("s"); ok {
		parts, err := rfc5322.ValueList(s.Raw)
		if err != nil {
			return nil, fmt.Errorf("key: bad s=: %w", err)
		}
		for _, p := range parts {
			svc := string(p)
			if svc == "*" {
				r.ServiceTypes = nil
				break
			}
			r.ServiceTypes = append(r.ServiceTypes, svc)
		}
	}

	if t, ok := tl.Get("t"); ok {
		flags, err := rfc5322.ValueList(t.Raw)
		if err != nil {
			return nil, fmt.Errorf("key: bad t=: %w", err)
		}
		for _, f := range flags {
			switch string(f) {
			case "y":
				r.TestingFlag = true
			case "s":
				r.StrictDomainFlag = true
			}
		}
	}

	return r, nil
}

// AcceptsDigest reports whether d is allowed by h=, or true if h= was
// absent.
func (r *Record) AcceptsDigest(d sig.Digest) bool {
	if r.AcceptableDigests == nil {
		return true
	}
	for _, ad := range r.AcceptableDigests {
		if ad == d {
			return true
		}
	}
	return false
}
