// Package wireenc holds the strict binary codecs used for key material
// and identity values: base64 for b=, bh= and p=, quoted-printable for i=.
package wireenc

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"mime/quotedprintable"
)

// ErrBadBase64 is returned when a base64 value does not decode cleanly.
var ErrBadBase64 = errors.New("wireenc: malformed base64 value")

// DecodeBase64 strictly decodes s, stripping the FWS that DKIM tag
// values are allowed to carry (RFC 6376 3.5: "Whitespace is ignored in
// this value"). An empty result after stripping is valid (callers
// decide whether an empty value is acceptable).
func DecodeBase64(s []byte) ([]byte, error) {
	stripped := stripFWS(s)
	out := make([]byte, base64.StdEncoding.DecodedLen(len(stripped)))
	n, err := base64.StdEncoding.Decode(out, stripped)
	if err != nil {
		return nil, ErrBadBase64
	}
	return out[:n], nil
}

// EncodeBase64 is the inverse of DecodeBase64, with no folding applied;
// callers that need wrapped output use WrapBase64.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// WrapBase64 base64-encodes b and inserts "\r\n\t " every width
// characters, matching the continuation style the signer uses for
// h= and b=.
func WrapBase64(b []byte, width int) string {
	s := base64.StdEncoding.EncodeToString(b)
	return Wrap(s, width)
}

// Wrap breaks s into width-column chunks joined by "\r\n\t ".
func Wrap(s string, width int) string {
	if width <= 0 || len(s) <= width {
		return s
	}
	var buf bytes.Buffer
	for len(s) > width {
		buf.WriteString(s[:width])
		buf.WriteString("\r\n\t ")
		s = s[width:]
	}
	buf.WriteString(s)
	return buf.String()
}

func stripFWS(s []byte) []byte {
	out := make([]byte, 0, len(s))
	for _, c := range s {
		switch c {
		case ' ', '\t', '\r', '\n':
		default:
			out = append(out, c)
		}
	}
	return out
}

// DecodeQuotedPrintable decodes the dkim-quoted-printable alphabet used
// by the i= tag: it is the RFC 2045 quoted-printable alphabet, but
// ";" and "=" must always be represented as hex escapes since they
// are tag-list metacharacters. Decoding uses the standard decoder,
// which accepts that restriction as a subset of the general grammar.
func DecodeQuotedPrintable(s []byte) ([]byte, error) {
	r := quotedprintable.NewReader(bytes.NewReader(s))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EncodeQuotedPrintable encodes b using the dkim-quoted-printable
// alphabet: alphanumerics pass through verbatim; ';', '=', space, and
// any byte outside printable ASCII are hex-escaped.
func EncodeQuotedPrintable(b []byte) string {
	var buf bytes.Buffer
	for _, c := range b {
		switch {
		case c == ';' || c == '=' || c == ' ' || c < 0x21 || c > 0x7e:
			buf.WriteByte('=')
			buf.WriteByte(hexDigit(c >> 4))
			buf.WriteByte(hexDigit(c & 0xf))
		default:
			buf.WriteByte(c)
		}
	}
	return buf.String()
}

func hexDigit(n byte) byte {
	if n < 10 {
		return '0' + n
	}
	return 'A' + n - 10
}
