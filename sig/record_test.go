package sig

import (
	"testing"

	"dkimkit.dev/dkim/internal/canon"
)

func TestParseBasicRSA(t *testing.T) {
	const raw = "v=1; a=rsa-sha256; c=relaxed/relaxed; d=example.com; s=sel1;\r\n" +
		" h=from:to:subject; bh=AAAA; b=BBBB"
	r, err := Parse([]byte(raw), false)
	if err != nil {
		t.Fatal(err)
	}
	if r.Algorithm != RSA || r.Digest != SHA256 {
		t.Errorf("algorithm/digest = %v/%v", r.Algorithm, r.Digest)
	}
	if r.HeaderCanon != canon.Relaxed || r.BodyCanon != canon.Relaxed {
		t.Errorf("canon modes = %v/%v", r.HeaderCanon, r.BodyCanon)
	}
	if r.Domain != "example.com" || r.Selector != "sel1" {
		t.Errorf("d=/s= = %q/%q", r.Domain, r.Selector)
	}
	want := []string{"from", "to", "subject"}
	if len(r.Signed) != len(want) {
		t.Fatalf("Signed = %v", r.Signed)
	}
	for i := range want {
		if r.Signed[i] != want[i] {
			t.Errorf("Signed[%d] = %q, want %q", i, r.Signed[i], want[i])
		}
	}
}

func TestParseDefaultCanonIsSimpleSimple(t *testing.T) {
	const raw = "v=1; a=rsa-sha1; d=example.com; s=sel1; h=from; bh=AAAA; b=BBBB"
	r, err := Parse([]byte(raw), false)
	if err != nil {
		t.Fatal(err)
	}
	if r.HeaderCanon != canon.Simple || r.BodyCanon != canon.Simple {
		t.Errorf("canon modes = %v/%v, want simple/simple", r.HeaderCanon, r.BodyCanon)
	}
}

func TestParseRelaxedAloneMeansSimpleBody(t *testing.T) {
	const raw = "v=1; a=rsa-sha1; c=relaxed; d=example.com; s=sel1; h=from; bh=AAAA; b=BBBB"
	r, err := Parse([]byte(raw), false)
	if err != nil {
		t.Fatal(err)
	}
	if r.HeaderCanon != canon.Relaxed || r.BodyCanon != canon.Simple {
		t.Errorf("canon modes = %v/%v, want relaxed/simple", r.HeaderCanon, r.BodyCanon)
	}
}

func TestParseEd25519(t *testing.T) {
	const raw = "v=1; a=ed25519-sha256; d=example.com; s=sel1; h=from; bh=AAAA; b=BBBB"
	r, err := Parse([]byte(raw), false)
	if err != nil {
		t.Fatal(err)
	}
	if r.Algorithm != Ed25519 || r.Digest != SHA256 {
		t.Errorf("algorithm/digest = %v/%v", r.Algorithm, r.Digest)
	}
}

func TestParseMissingFromInHFails(t *testing.T) {
	const raw = "v=1; a=rsa-sha256; d=example.com; s=sel1; h=to:subject; bh=AAAA; b=BBBB"
	if _, err := Parse([]byte(raw), false); err == nil {
		t.Fatal("expected error: h= without from")
	}
}

func TestParseMissingRequiredTag(t *testing.T) {
	tests := []string{
		"a=rsa-sha256; d=example.com; s=sel1; h=from; bh=AAAA; b=BBBB",  // no v=
		"v=1; d=example.com; s=sel1; h=from; bh=AAAA; b=BBBB",          // no a=
		"v=1; a=rsa-sha256; s=sel1; h=from; bh=AAAA; b=BBBB",           // no d=
		"v=1; a=rsa-sha256; d=example.com; h=from; bh=AAAA; b=BBBB",    // no s=
		"v=1; a=rsa-sha256; d=example.com; s=sel1; bh=AAAA; b=BBBB",    // no h=
		"v=1; a=rsa-sha256; d=example.com; s=sel1; h=from; b=BBBB",     // no bh=
		"v=1; a=rsa-sha256; d=example.com; s=sel1; h=from; bh=AAAA",    // no b=
	}
	for _, raw := range tests {
		if _, err := Parse([]byte(raw), false); err == nil {
			t.Errorf("Parse(%q): expected error", raw)
		}
	}
}

func TestParseARCRequiresInstanceNotVersion(t *testing.T) {
	const raw = "a=rsa-sha256; c=relaxed/relaxed; d=example.com; s=sel1;\r\n" +
		" h=from; bh=AAAA; b=BBBB; i=1"
	r, err := Parse([]byte(raw), true)
	if err != nil {
		t.Fatal(err)
	}
	if r.Instance != 1 {
		t.Errorf("Instance = %d, want 1", r.Instance)
	}

	const withV = "v=1; a=rsa-sha256; d=example.com; s=sel1; h=from; bh=AAAA; b=BBBB; i=1"
	if _, err := Parse([]byte(withV), true); err == nil {
		t.Fatal("expected error: v= not permitted on ARC signature")
	}
}

func TestParseARCInstanceOutOfRange(t *testing.T) {
	const raw = "a=rsa-sha256; d=example.com; s=sel1; h=from; bh=AAAA; b=BBBB; i=51"
	if _, err := Parse([]byte(raw), true); err == nil {
		t.Fatal("expected error: i= out of range")
	}
}

func TestParseIdentityMustMatchDomain(t *testing.T) {
	const ok = "v=1; a=rsa-sha256; d=example.com; s=sel1; h=from; bh=AAAA; b=BBBB; i=@sub.example.com"
	if _, err := Parse([]byte(ok), false); err != nil {
		t.Errorf("subdomain identity should be accepted: %v", err)
	}
	const bad = "v=1; a=rsa-sha256; d=example.com; s=sel1; h=from; bh=AAAA; b=BBBB; i=@evil.com"
	if _, err := Parse([]byte(bad), false); err == nil {
		t.Fatal("expected error: i= domain not d= or subdomain")
	}
}

func TestParseBodyLengthTag(t *testing.T) {
	const raw = "v=1; a=rsa-sha256; d=example.com; s=sel1; h=from; bh=AAAA; b=BBBB; l=42"
	r, err := Parse([]byte(raw), false)
	if err != nil {
		t.Fatal(err)
	}
	if !r.HasLen || r.BodyLen != 42 {
		t.Errorf("HasLen/BodyLen = %v/%d", r.HasLen, r.BodyLen)
	}
}

func TestParseNoLengthTagDefaultsMinusOne(t *testing.T) {
	const raw = "v=1; a=rsa-sha256; d=example.com; s=sel1; h=from; bh=AAAA; b=BBBB"
	r, err := Parse([]byte(raw), false)
	if err != nil {
		t.Fatal(err)
	}
	if r.HasLen || r.BodyLen != -1 {
		t.Errorf("HasLen/BodyLen = %v/%d, want false/-1", r.HasLen, r.BodyLen)
	}
}

func TestExpired(t *testing.T) {
	const raw = "v=1; a=rsa-sha256; d=example.com; s=sel1; h=from; bh=AAAA; b=BBBB; x=1000"
	r, err := Parse([]byte(raw), false)
	if err != nil {
		t.Fatal(err)
	}
	expires := r.Expires
	if !r.Expired(expires.Add(1)) {
		t.Error("should be expired just after x=")
	}
	if r.Expired(expires.Add(-1)) {
		t.Error("should not be expired just before x=")
	}
}

func TestBValueOffsetsLocateExactBytes(t *testing.T) {
	const raw = "v=1; a=rsa-sha256; d=example.com; s=sel1; h=from; bh=AAAA; b=XYZ123=="
	r, err := Parse([]byte(raw), false)
	if err != nil {
		t.Fatal(err)
	}
	if got := raw[r.BValueStart:r.BValueEnd]; got != "XYZ123==" {
		t.Errorf("raw[%d:%d] = %q, want %q", r.BValueStart, r.BValueEnd, got, "XYZ123==")
	}
}
