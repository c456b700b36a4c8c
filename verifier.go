package dkim

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"strings"
	"time"

	"crawshaw.io/iox"

	"dkimkit.dev/dkim/cryptoimpl"
	"dkimkit.dev/dkim/internal/canon"
	"dkimkit.dev/dkim/internal/message"
	"dkimkit.dev/dkim/resolver"
	"dkimkit.dev/dkim/sig"
)

// HeaderKind selects which signature header name a Verifier collects.
type HeaderKind int

const (
	DKIMSignature HeaderKind = iota
	ARCMessageSignature
)

func (k HeaderKind) headerName() string {
	if k == ARCMessageSignature {
		return "ARC-Message-Signature"
	}
	return "DKIM-Signature"
}

// Verifier enumerates and checks the signature headers of one
// message against a pluggable key resolver.
type Verifier struct {
	Message  *message.Message
	Kind     HeaderKind
	Resolver resolver.Resolver

	// Now, if set, fixes the wall-clock time used to evaluate x=.
	Now func() time.Time
}

// New parses src and returns a Verifier ready to enumerate signature
// headers of the given kind.
func New(filer *iox.Filer, src io.Reader, kind HeaderKind, res resolver.Resolver) (*Verifier, error) {
	msg, err := message.Parse(filer, src)
	if err != nil {
		return nil, permErr(ClassPermError, "parsing message", err)
	}
	return &Verifier{Message: msg, Kind: kind, Resolver: res}, nil
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Signatures returns the header-field indices, in message order, of
// every header matching Kind.
func (v *Verifier) Signatures() []int {
	return v.Message.Find(v.Kind.headerName())
}

// ParseSignature parses the signature header at field index idx.
func (v *Verifier) ParseSignature(idx int) (*sig.Record, error) {
	f := v.Message.Headers[idx]
	raw, err := v.Message.Bytes(f)
	if err != nil {
		return nil, permErr(ClassPermError, "reading signature header", err)
	}
	colon := bytes.IndexByte(raw, ':')
	if colon < 0 {
		return nil, permErr(ClassPermError, "malformed signature header", nil)
	}
	rec, err := sig.Parse(raw[colon+1:], v.Kind == ARCMessageSignature)
	if err != nil {
		return nil, permErr(ClassPermError, "parsing signature", err)
	}
	// sig.Record's b= offsets are relative to raw[colon+1:]; rebase
	// them onto the full field bytes so CheckSignature can erase b=
	// directly out of raw.
	rec.BValueStart += colon + 1
	rec.BValueEnd += colon + 1
	return rec, nil
}

// CheckBodyHash streams the message body through the canonicalizer
// named by s and compares the result against s.BodyHash.
func (v *Verifier) CheckBodyHash(s *sig.Record) error {
	body, err := v.Message.Body()
	if err != nil {
		return permErr(ClassPermError, "seeking to body", err)
	}
	hsh, _ := cryptoimpl.NewHash(s.Digest)
	canonical := canon.Body(s.BodyCanon, body)
	if s.HasLen {
		if _, err := io.Copy(hsh, io.LimitReader(canonical, s.BodyLen)); err != nil {
			return permErr(ClassPermError, "hashing body", err)
		}
	} else if _, err := io.Copy(hsh, canonical); err != nil {
		return permErr(ClassPermError, "hashing body", err)
	}
	if !bytes.Equal(hsh.Sum(nil), s.BodyHash) {
		return permErr(ClassFail, "body hash does not match bh=", nil)
	}
	return nil
}

// FetchPublicKey resolves s's selector/domain to a key.Record through
// v.Resolver. Defined in keyfetch.go to keep the key-parsing import
// local to one file.
func (v *Verifier) FetchPublicKey(ctx context.Context, s *sig.Record) (*publicKeyResult, error) {
	return fetchPublicKey(ctx, v.Resolver, s)
}

// CheckSignature cross-validates s against k and verifies the header
// signature at field index idx.
func (v *Verifier) CheckSignature(idx int, s *sig.Record, k *publicKeyResult) error {
	if s.Expired(v.now()) {
		return permErr(ClassPermError, "signature expired", nil)
	}
	if k.Record.Revoked {
		return permErr(ClassPermError, "key is revoked", nil)
	}
	if !k.Record.AcceptsDigest(s.Digest) {
		return permErr(ClassPermError, "digest algorithm not acceptable to key", nil)
	}
	switch s.Algorithm {
	case sig.RSA:
		if k.Record.RSAKey == nil {
			return permErr(ClassPermError, "key is not RSA but signature is", nil)
		}
	case sig.Ed25519:
		if k.Record.Ed25519Key == nil {
			return permErr(ClassPermError, "key is not Ed25519 but signature is", nil)
		}
	}
	if k.Record.StrictDomainFlag && !s.ARC {
		identDomain := s.Domain
		if s.Identity != "" {
			if at := strings.LastIndexByte(s.Identity, '@'); at >= 0 {
				identDomain = strings.ToLower(s.Identity[at+1:])
			}
		}
		if identDomain != s.Domain {
			return permErr(ClassPermError, "t=s forbids identity domain != d=", nil)
		}
	}

	hsh, cryptoHash := cryptoimpl.NewHash(s.Digest)
	if err := v.feedSignedHeaders(hsh, s); err != nil {
		return err
	}
	if err := v.feedSignatureField(hsh, idx, s); err != nil {
		return err
	}
	digest := hsh.Sum(nil)

	var verifyErr error
	switch s.Algorithm {
	case sig.RSA:
		verifyErr = cryptoimpl.RSAVerify(k.Record.RSAKey, cryptoHash, digest, s.Signature)
	case sig.Ed25519:
		verifyErr = cryptoimpl.Ed25519Verify(ed25519.PublicKey(k.Record.Ed25519Key), digest, s.Signature)
	}
	if verifyErr != nil {
		if k.Record.TestingFlag {
			return permErr(ClassNeutral, "signature did not verify (key is testing)", verifyErr)
		}
		return permErr(ClassFail, "signature did not verify", verifyErr)
	}
	return nil
}

// feedSignedHeaders implements RFC 6376 5.4.2's consume-last matching:
// a map from lowercased header name to its message occurrences, in
// source order; for each name listed in s.Signed, pop the
// most-recently-added unconsumed occurrence and feed it. A name whose
// occurrences are exhausted (including those oversigned with no
// matching header at all) is skipped.
func (v *Verifier) feedSignedHeaders(hsh io.Writer, s *sig.Record) error {
	byName := make(map[string][]int)
	for i, f := range v.Message.Headers {
		lower := strings.ToLower(string(f.Name))
		byName[lower] = append(byName[lower], i)
	}
	for _, name := range s.Signed {
		occ := byName[name]
		if len(occ) == 0 {
			continue
		}
		idx := occ[len(occ)-1]
		byName[name] = occ[:len(occ)-1]

		raw, err := v.Message.Bytes(v.Message.Headers[idx])
		if err != nil {
			return permErr(ClassPermError, "reading header bytes", err)
		}
		if _, err := hsh.Write(canon.Header(s.HeaderCanon, raw)); err != nil {
			return permErr(ClassPermError, "hashing header", err)
		}
	}
	return nil
}

// feedSignatureField appends the signature header itself to hsh, with
// the b= value erased, no trailing CRLF, and the configured
// canonicalization applied.
func (v *Verifier) feedSignatureField(hsh io.Writer, idx int, s *sig.Record) error {
	f := v.Message.Headers[idx]
	raw, err := v.Message.Bytes(f)
	if err != nil {
		return permErr(ClassPermError, "reading signature header", err)
	}
	if s.BValueStart < 0 || s.BValueEnd > len(raw) || s.BValueStart > s.BValueEnd {
		return permErr(ClassPermError, "b= offset out of range", nil)
	}
	erased := make([]byte, 0, len(raw))
	erased = append(erased, raw[:s.BValueStart]...)
	erased = append(erased, raw[s.BValueEnd:]...)

	canonical := canon.Header(s.HeaderCanon, erased)
	canonical = bytes.TrimSuffix(canonical, []byte("\r\n"))
	_, err = hsh.Write(canonical)
	if err != nil {
		return permErr(ClassPermError, "hashing signature header", err)
	}
	return nil
}

// Verify is the common-case convenience entry point: it checks every
// signature header of Kind present on the message and returns the
// first error encountered, or nil if at least one signature fully
// verified. errs, if non-nil, receives one error per signature
// header in message order (nil entries mean that signature verified).
func (v *Verifier) Verify(ctx context.Context, errs *[]error) error {
	idxs := v.Signatures()
	if len(idxs) == 0 {
		return permErr(ClassNone, "no signature present", nil)
	}
	var anyOK bool
	var firstErr error
	for _, idx := range idxs {
		err := v.verifyOne(ctx, idx)
		if errs != nil {
			*errs = append(*errs, err)
		}
		if err == nil {
			anyOK = true
		} else if firstErr == nil {
			firstErr = err
		}
	}
	if anyOK {
		return nil
	}
	if firstErr != nil {
		return firstErr
	}
	return fmt.Errorf("dkim: verification failed")
}

func (v *Verifier) verifyOne(ctx context.Context, idx int) error {
	s, err := v.ParseSignature(idx)
	if err != nil {
		return err
	}
	if err := v.CheckBodyHash(s); err != nil {
		return err
	}
	key, err := v.FetchPublicKey(ctx, s)
	if err != nil {
		return err
	}
	return v.CheckSignature(idx, s, key)
}
