// Package sig provides SignatureRecord, the typed projection of a
// parsed DKIM-Signature or ARC-Message-Signature tag list.
package sig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"dkimkit.dev/dkim/internal/canon"
	"dkimkit.dev/dkim/internal/rfc5322"
	"dkimkit.dev/dkim/internal/tagvalue"
	"dkimkit.dev/dkim/internal/wireenc"
)

// Algorithm is a signature algorithm, paired with a Digest.
type Algorithm int

const (
	RSA Algorithm = iota
	Ed25519
)

// Digest is the hash algorithm a signature is computed over.
type Digest int

const (
	SHA1 Digest = iota
	SHA256
)

// Record is the typed projection of one signature header's tag list.
type Record struct {
	ARC bool // true if parsed from an ARC-Message-Signature header

	Algorithm Algorithm
	Digest    Digest

	Signature []byte // b=, base64-decoded
	BodyHash  []byte // bh=, base64-decoded

	HeaderCanon canon.Mode
	BodyCanon   canon.Mode

	Domain    string   // d=, lowercased
	Signed    []string // h=, lowercased order preserved, duplicates kept
	Identity  string   // i=, quoted-printable decoded (empty if absent, non-ARC only)
	BodyLen   int64    // l=, -1 if absent
	HasLen    bool
	Query     string // q=, defaults to "dns/txt"
	Selector  string // s=
	Timestamp time.Time
	HasTime   bool
	Expires   time.Time
	HasExpiry bool

	Instance int // ARC i=, 1..50, only when ARC is true

	// BValueStart/BValueEnd bound the b= tag's raw (undecoded) value
	// within the bytes passed to Parse, so the verifier can erase it
	// before re-hashing the signature header itself.
	BValueStart, BValueEnd int
}

// Parse parses raw as a tag-list and projects it into a Record. arc
// selects whether raw was read from an ARC-Message-Signature header
// (which forbids v= and requires an instance i=) rather than a
// DKIM-Signature header (which requires v=1 and treats i= as an
// optional identity).
func Parse(raw []byte, arc bool) (*Record, error) {
	tl, err := tagvalue.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("sig: %w", err)
	}
	r := &Record{ARC: arc, Query: "dns/txt"}

	if arc {
		if tl.Has("v") {
			return nil, fmt.Errorf("sig: v= not permitted on ARC signature")
		}
	} else {
		v, ok := tl.Get("v")
		if !ok {
			return nil, fmt.Errorf("sig: missing v=")
		}
		if v.String() != "1" {
			return nil, fmt.Errorf("sig: unsupported v=%q", v)
		}
	}

	a, ok := tl.Get("a")
	if !ok {
		return nil, fmt.Errorf("sig: missing a=")
	}
	switch a.String() {
	case "rsa-sha1":
		r.Algorithm, r.Digest = RSA, SHA1
	case "rsa-sha256":
		r.Algorithm, r.Digest = RSA, SHA256
	case "ed25519-sha256":
		r.Algorithm, r.Digest = Ed25519, SHA256
	default:
		return nil, fmt.Errorf("sig: unsupported a=%q", a)
	}

	r.HeaderCanon, r.BodyCanon = canon.Simple, canon.Simple
	if c, ok := tl.Get("c"); ok {
		hmode, bmode, err := parseCanonPair(c.String())
		if err != nil {
			return nil, err
		}
		r.HeaderCanon, r.BodyCanon = hmode, bmode
	}

	b, ok := tl.Get("b")
	if !ok {
		return nil, fmt.Errorf("sig: missing b=")
	}
	sigBytes, err := wireenc.DecodeBase64(b.Raw)
	if err != nil || len(sigBytes) == 0 {
		return nil, fmt.Errorf("sig: bad b=: %w", err)
	}
	r.Signature = sigBytes
	r.BValueStart, r.BValueEnd = b.Start, b.End

	bh, ok := tl.Get("bh")
	if !ok {
		return nil, fmt.Errorf("sig: missing bh=")
	}
	bodyHash, err := wireenc.DecodeBase64(bh.Raw)
	if err != nil {
		return nil, fmt.Errorf("sig: bad bh=: %w", err)
	}
	r.BodyHash = bodyHash

	d, ok := tl.Get("d")
	if !ok {
		return nil, fmt.Errorf("sig: missing d=")
	}
	r.Domain = strings.ToLower(d.String())

	h, ok := tl.Get("h")
	if !ok {
		return nil, fmt.Errorf("sig: missing h=")
	}
	names, err := rfc5322.ValueList(h.Raw)
	if err != nil {
		return nil, fmt.Errorf("sig: bad h=: %w", err)
	}
	hasFrom := false
	for _, n := range names {
		lower := strings.ToLower(string(n))
		r.Signed = append(r.Signed, lower)
		if lower == "from" {
			hasFrom = true
		}
	}
	if !hasFrom {
		return nil, fmt.Errorf("sig: h= does not include From")
	}

	if arc {
		inst, ok := tl.Get("i")
		if !ok {
			return nil, fmt.Errorf("sig: ARC signature missing i= instance")
		}
		n, err := strconv.Atoi(inst.String())
		if err != nil || n < 1 || n > 50 {
			return nil, fmt.Errorf("sig: ARC instance i=%q out of range", inst)
		}
		r.Instance = n
	} else if i, ok := tl.Get("i"); ok {
		ident, err := wireenc.DecodeQuotedPrintable(i.Raw)
		if err != nil {
			return nil, fmt.Errorf("sig: bad i=: %w", err)
		}
		identDomain, err := identityDomain(string(ident))
		if err != nil {
			return nil, err
		}
		if !sameOrSubdomain(identDomain, r.Domain) {
			return nil, fmt.Errorf("sig: i= domain %q is not d= %q or a subdomain", identDomain, r.Domain)
		}
		r.Identity = string(ident)
	}

	if l, ok := tl.Get("l"); ok {
		s := l.String()
		if len(s) == 0 || len(s) > 76 {
			return nil, fmt.Errorf("sig: bad l=%q", s)
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("sig: bad l=%q: %w", s, err)
		}
		r.BodyLen = int64(n)
		r.HasLen = true
	} else {
		r.BodyLen = -1
	}

	if q, ok := tl.Get("q"); ok {
		if q.String() != "dns/txt" {
			return nil, fmt.Errorf("sig: unsupported q=%q", q)
		}
		r.Query = "dns/txt"
	}

	s, ok := tl.Get("s")
	if !ok {
		return nil, fmt.Errorf("sig: missing s=")
	}
	r.Selector = s.String()

	if t, ok := tl.Get("t"); ok {
		n, err := strconv.ParseInt(t.String(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("sig: bad t=%q: %w", t, err)
		}
		r.Timestamp = time.Unix(n, 0).UTC()
		r.HasTime = true
	}
	if x, ok := tl.Get("x"); ok {
		n, err := strconv.ParseInt(x.String(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("sig: bad x=%q: %w", x, err)
		}
		r.Expires = time.Unix(n, 0).UTC()
		r.HasExpiry = true
	}

	return r, nil
}

// Expired reports whether the signature's x= has passed as of now.
func (r *Record) Expired(now time.Time) bool {
	return r.HasExpiry && now.After(r.Expires)
}

func parseCanonPair(s string) (hdr, body canon.Mode, err error) {
	part := s
	if i := strings.IndexByte(s, '/'); i >= 0 {
		part = s[:i]
		bmode, ok := canon.ParseMode(s[i+1:])
		if !ok {
			return 0, 0, fmt.Errorf("sig: unsupported c= body mode %q", s[i+1:])
		}
		body = bmode
	} else {
		// "c=relaxed" alone means header relaxed, body simple.
		body = canon.Simple
	}
	hmode, ok := canon.ParseMode(part)
	if !ok {
		return 0, 0, fmt.Errorf("sig: unsupported c= header mode %q", part)
	}
	return hmode, body, nil
}

// identityDomain returns the domain part of an i= addr-spec, i.e.
// everything after the last unescaped '@'.
func identityDomain(s string) (string, error) {
	i := strings.LastIndexByte(s, '@')
	if i < 0 {
		return "", fmt.Errorf("sig: i= has no domain part")
	}
	return strings.ToLower(s[i+1:]), nil
}

func sameOrSubdomain(sub, domain string) bool {
	if sub == domain {
		return true
	}
	return strings.HasSuffix(sub, "."+domain)
}
