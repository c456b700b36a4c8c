package dkim

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"io"
	"strings"
	"time"

	"crawshaw.io/iox"
	"golang.org/x/net/idna"

	"dkimkit.dev/dkim/cryptoimpl"
	"dkimkit.dev/dkim/internal/canon"
	"dkimkit.dev/dkim/internal/message"
	"dkimkit.dev/dkim/internal/wireenc"
	"dkimkit.dev/dkim/sig"
)

// Signer drives canonicalization, digesting, and signing to produce
// one or more new signature headers for a message, per Options.
type Signer struct {
	Options Options

	// Filer spools a non-seekable message source to a temp-file-backed
	// buffer. May be left nil if Sign is always called with an
	// io.ReadSeeker.
	Filer *iox.Filer

	// Now, if set, fixes the wall-clock time used for t=. Tests set
	// this for reproducibility; nil means time.Now.
	Now func() time.Time
}

func (s *Signer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Sign parses src once and produces one signature header value per
// plan in Options.Plans, in order. Each returned string is the
// complete header value (the part after "DKIM-Signature: " or
// "ARC-Message-Signature: "), ready to be prepended as a new header.
func (s *Signer) Sign(src io.Reader) ([]string, error) {
	if len(s.Options.Plans) == 0 {
		return nil, permErr(ClassPermError, "no signature plans configured", nil)
	}

	msg, err := message.Parse(s.Filer, src)
	if err != nil {
		return nil, permErr(ClassPermError, "parsing message", err)
	}

	out := make([]string, 0, len(s.Options.Plans))
	for i := range s.Options.Plans {
		hdr, err := s.signPlan(msg, &s.Options.Plans[i])
		if err != nil {
			return nil, err
		}
		out = append(out, hdr)
	}
	return out, nil
}

func (s *Signer) signPlan(msg *message.Message, plan *Plan) (string, error) {
	if plan.Domain == "" || plan.Selector == "" {
		return "", permErr(ClassPermError, "plan missing domain or selector", nil)
	}
	if _, err := idna.ToASCII(plan.Domain); err != nil {
		return "", permErr(ClassPermError, "d= is not a valid DNS-label sequence", err)
	}
	if _, err := idna.ToASCII(plan.Selector); err != nil {
		return "", permErr(ClassPermError, "s= is not a valid DNS-label sequence", err)
	}
	rsaKey, edKey, err := parsePrivateKey(plan.Algorithm, plan.PrivateKey)
	if err != nil {
		return "", permErr(ClassPermError, "parsing private key", err)
	}

	bodyHash, err := s.hashBody(msg, plan)
	if err != nil {
		return "", err
	}

	hsh, cryptoHash := cryptoimpl.NewHash(plan.Digest)
	signedNames, err := feedHeaders(hsh, msg, plan)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if plan.IsARC {
		fmt.Fprintf(&buf, "i=%d; a=%s; c=%s/%s;", plan.ARCInstance, algName(plan), plan.HeaderCanon, plan.BodyCanon)
	} else {
		fmt.Fprintf(&buf, "v=1; a=%s; c=%s/%s;", algName(plan), plan.HeaderCanon, plan.BodyCanon)
	}
	if plan.WantTimestamp {
		ts := plan.Timestamp
		if ts.IsZero() {
			ts = s.now()
		}
		fmt.Fprintf(&buf, " t=%d;", ts.Unix())
	}
	if plan.HasExpiry {
		fmt.Fprintf(&buf, " x=%d;", plan.Expires.Unix())
	}
	fmt.Fprintf(&buf, "\r\n\td=%s; s=%s;", plan.Domain, plan.Selector)
	if plan.HasIdentity {
		fmt.Fprintf(&buf, " i=%s;", wireenc.EncodeQuotedPrintable([]byte(plan.Identity)))
	}
	if plan.HasBodyLengthCap {
		fmt.Fprintf(&buf, " l=%d;", plan.BodyLengthCap)
	}

	hList := append(append([]string(nil), signedNames...), plan.Oversign...)
	fmt.Fprintf(&buf, "\r\n\th=%s;", wireenc.Wrap(strings.Join(hList, ":"), 80))
	fmt.Fprintf(&buf, "\r\n\tbh=%s;", wireenc.WrapBase64(bodyHash, 66))
	buf.WriteString("\r\n\tb=")

	hdrName := "DKIM-Signature"
	if plan.IsARC {
		hdrName = "ARC-Message-Signature"
	}

	// Feed the synthesized signature header itself, with an empty b=
	// value and no trailing CRLF (there is none yet: b= is still
	// open), canonicalized the same way as every other signed header.
	// The colon-space matches how the caller is expected to prepend
	// the field name to the returned value when inserting it into the
	// message; simple canonicalization preserves it verbatim, so it
	// must agree with the wire form or verification would never match.
	synthesized := append([]byte(hdrName+": "), buf.Bytes()...)
	synthesized = append(synthesized, '\r', '\n')
	canonicalized := canon.Header(plan.HeaderCanon, synthesized)
	canonicalized = bytes.TrimSuffix(canonicalized, []byte("\r\n"))
	hsh.Write(canonicalized)

	digest := hsh.Sum(nil)

	var sigBytes []byte
	switch plan.Algorithm {
	case sig.RSA:
		sigBytes, err = cryptoimpl.RSASign(rsaKey, cryptoHash, digest)
	case sig.Ed25519:
		sigBytes = cryptoimpl.Ed25519Sign(ed25519.PrivateKey(edKey), digest)
	}
	if err != nil {
		return "", permErr(ClassPermError, "signing", err)
	}

	buf.WriteString(wireenc.WrapBase64(sigBytes, 66))
	return buf.String(), nil
}

func algName(plan *Plan) string {
	switch plan.Algorithm {
	case sig.RSA:
		if plan.Digest == sig.SHA1 {
			return "rsa-sha1"
		}
		return "rsa-sha256"
	default:
		return "ed25519-sha256"
	}
}

func (s *Signer) hashBody(msg *message.Message, plan *Plan) ([]byte, error) {
	body, err := msg.Body()
	if err != nil {
		return nil, permErr(ClassPermError, "seeking to body", err)
	}
	hsh, _ := cryptoimpl.NewHash(plan.Digest)
	canonical := canon.Body(plan.BodyCanon, body)

	if plan.HasBodyLengthCap {
		n, err := io.Copy(hsh, io.LimitReader(canonical, plan.BodyLengthCap))
		if err != nil {
			return nil, permErr(ClassPermError, "hashing body", err)
		}
		if n < plan.BodyLengthCap {
			return nil, permErr(ClassPermError, "body shorter than l= cap", nil)
		}
	} else if _, err := io.Copy(hsh, canonical); err != nil {
		return nil, permErr(ClassPermError, "hashing body", err)
	}
	return hsh.Sum(nil), nil
}

// feedHeaders feeds every header selected by plan into hsh, in
// reverse source order, canonicalized with plan.HeaderCanon, and
// returns the lowercased names fed in the order they were fed. An
// empty plan.Headers selects every header present, each exactly once.
func feedHeaders(hsh io.Writer, msg *message.Message, plan *Plan) ([]string, error) {
	var names []string
	signSet := make(map[string]bool, len(plan.Headers))
	for _, h := range plan.Headers {
		signSet[strings.ToLower(h)] = true
	}
	for i := len(msg.Headers) - 1; i >= 0; i-- {
		f := msg.Headers[i]
		lower := strings.ToLower(string(f.Name))
		if len(plan.Headers) > 0 && !signSet[lower] {
			continue
		}
		raw, err := msg.Bytes(f)
		if err != nil {
			return nil, permErr(ClassPermError, "reading header bytes", err)
		}
		canonical := canon.Header(plan.HeaderCanon, raw)
		if _, err := hsh.Write(canonical); err != nil {
			return nil, permErr(ClassPermError, "hashing header", err)
		}
		names = append(names, lower)
	}
	return names, nil
}
