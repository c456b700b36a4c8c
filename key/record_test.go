package key

import (
	"testing"

	"dkimkit.dev/dkim/sig"
)

// testRSAPublicKeyB64 is a real PKIX-encoded RSA public key, base64'd
// with no PEM wrapping, suitable as a p= value.
const testRSAPublicKeyB64 = "MIIBIjANBgkqhkiG9w0BAQEFAAOCAQ8AMIIBCgKCAQEAoFEz19zjN1fwLplozRIF" +
	"z+f7PdaAQOG5a1kO496NTqLNvvkbDDAIJG3jAAFA/pPkXA5wRzImDuUvMmnurv4I" +
	"FZJfvlTEHadBbgpQjgCgSnqUXIYa1U4ELeBfEHFVBV0lUITbZ9kBGjJ92I3qIFr3" +
	"PQkysS6/YfJlpBJ0CrC3PlUGfqjtnEQ1pJc9+oZNmIiyw2CrMOdZqiijbN8Zuc2j" +
	"qPBl3oW9CJaacv+NZUuoBuOROsmH6/mVAAYFa2RXioOKt214hPH0oFsEzj9CLDqw" +
	"qdbVaBpMU4h9OpG1PtP5DIkbNL8vTKfjDHKobvDTY351JZctUTWp3VwovAWadCjn" +
	"JQIDAQAB"

func TestParseRSAKey(t *testing.T) {
	r, err := Parse("v=DKIM1; k=rsa; p=" + testRSAPublicKeyB64)
	if err != nil {
		t.Fatal(err)
	}
	if r.Type != RSA || r.RSAKey == nil {
		t.Fatalf("Type/RSAKey = %v/%v", r.Type, r.RSAKey)
	}
	if r.Revoked {
		t.Error("should not be revoked")
	}
}

func TestParseDefaultTypeIsRSA(t *testing.T) {
	r, err := Parse("p=" + testRSAPublicKeyB64)
	if err != nil {
		t.Fatal(err)
	}
	if r.Type != RSA {
		t.Errorf("Type = %v, want RSA", r.Type)
	}
}

func TestParseRevokedKey(t *testing.T) {
	r, err := Parse("v=DKIM1; k=rsa; p=")
	if err != nil {
		t.Fatal(err)
	}
	if !r.Revoked {
		t.Error("empty p= should mark key revoked")
	}
}

func TestParseRevokedKeyWhitespaceOnly(t *testing.T) {
	r, err := Parse("v=DKIM1; p=   ")
	if err != nil {
		t.Fatal(err)
	}
	if !r.Revoked {
		t.Error("whitespace-only p= should mark key revoked")
	}
}

func TestParseUnsupportedVersion(t *testing.T) {
	if _, err := Parse("v=DKIM2; p=" + testRSAPublicKeyB64); err == nil {
		t.Fatal("expected error for unsupported v=")
	}
}

func TestParseEd25519WrongLength(t *testing.T) {
	if _, err := Parse("k=ed25519; p=AAAA"); err == nil {
		t.Fatal("expected error: ed25519 key of wrong length")
	}
}

func TestParseAcceptableDigests(t *testing.T) {
	r, err := Parse("p=" + testRSAPublicKeyB64 + "; h=sha256")
	if err != nil {
		t.Fatal(err)
	}
	if !r.AcceptsDigest(sig.SHA256) {
		t.Error("should accept sha256")
	}
	if r.AcceptsDigest(sig.SHA1) {
		t.Error("should not accept sha1")
	}
}

func TestParseNoHMeansUnrestrictedDigests(t *testing.T) {
	r, err := Parse("p=" + testRSAPublicKeyB64)
	if err != nil {
		t.Fatal(err)
	}
	if !r.AcceptsDigest(sig.SHA1) || !r.AcceptsDigest(sig.SHA256) {
		t.Error("nil AcceptableDigests should accept everything")
	}
}

func TestParseServiceTypeWildcard(t *testing.T) {
	r, err := Parse("p=" + testRSAPublicKeyB64 + "; s=email:*")
	if err != nil {
		t.Fatal(err)
	}
	if r.ServiceTypes != nil {
		t.Errorf("ServiceTypes = %v, want nil (wildcard)", r.ServiceTypes)
	}
}

func TestParseServiceTypeRestricted(t *testing.T) {
	r, err := Parse("p=" + testRSAPublicKeyB64 + "; s=email")
	if err != nil {
		t.Fatal(err)
	}
	if len(r.ServiceTypes) != 1 || r.ServiceTypes[0] != "email" {
		t.Errorf("ServiceTypes = %v", r.ServiceTypes)
	}
}

func TestParseFlags(t *testing.T) {
	r, err := Parse("p=" + testRSAPublicKeyB64 + "; t=y:s")
	if err != nil {
		t.Fatal(err)
	}
	if !r.TestingFlag || !r.StrictDomainFlag {
		t.Errorf("TestingFlag/StrictDomainFlag = %v/%v", r.TestingFlag, r.StrictDomainFlag)
	}
}

func TestParseMissingP(t *testing.T) {
	if _, err := Parse("v=DKIM1; k=rsa"); err == nil {
		t.Fatal("expected error for missing p=")
	}
}
