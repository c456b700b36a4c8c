// Package rfc2047 decodes MIME encoded-words ("=?charset?enc?data?=")
// as used by the ADSP author-domain extractor when it reads display
// names out of a From header (RFC 2047, RFC 6376 section 3.9's "decode
// using the rules in RFC 2047" instruction).
package rfc2047

import (
	"bytes"
	"encoding/base64"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// Decode scans s left to right for encoded-words and decodes each one
// it finds. It never fails: a token that looks like an encoded-word
// but does not parse cleanly is emitted verbatim, per RFC 2047 section
// 6.2's guidance that implementations should be liberal in what they
// accept from other, possibly buggy, implementations.
//
// Adjacent encoded-words separated only by whitespace/line-folds are
// joined with no intervening space (RFC 2047 section 6.2); an
// encoded-word separated from plain text by whitespace keeps that
// whitespace.
func Decode(s string) string {
	var out strings.Builder
	i := 0
	prevWasEncodedWord := false
	for i < len(s) {
		start := strings.Index(s[i:], "=?")
		if start < 0 {
			out.WriteString(s[i:])
			break
		}
		start += i

		// Text strictly between the previous token and this one.
		between := s[i:start]
		decoded, end, ok := parseOne(s[start:])
		if !ok {
			out.WriteString(between)
			out.WriteString("=?")
			i = start + 2
			prevWasEncodedWord = false
			continue
		}

		if prevWasEncodedWord && isAllFWS(between) {
			// collide: no separator between two encoded-words
		} else {
			out.WriteString(between)
		}
		out.WriteString(decoded)
		i = start + end
		prevWasEncodedWord = true
	}
	return out.String()
}

// parseOne parses one encoded-word at the start of s (which begins
// "=?"). It returns the decoded text, the number of input bytes
// consumed, and whether parsing succeeded.
func parseOne(s string) (decoded string, consumed int, ok bool) {
	if !strings.HasPrefix(s, "=?") {
		return "", 0, false
	}
	rest := s[2:]

	charset, rest, ok := cutQuestion(rest)
	if !ok || charset == "" {
		return "", 0, false
	}
	enc, rest, ok := cutQuestion(rest)
	if !ok || enc == "" {
		return "", 0, false
	}
	data, rest, ok := cutQuestionMarkEquals(rest)
	if !ok {
		return "", 0, false
	}

	var raw []byte
	var err error
	switch {
	case len(enc) == 1 && (enc[0] == 'q' || enc[0] == 'Q'):
		raw, err = decodeQ([]byte(data))
	case len(enc) == 1 && (enc[0] == 'b' || enc[0] == 'B'):
		raw, err = base64.StdEncoding.DecodeString(data)
	default:
		return "", 0, false
	}
	if err != nil {
		return "", 0, false
	}

	text, err := decodeCharset(charset, raw)
	if err != nil {
		return "", 0, false
	}

	total := len(s) - len(rest)
	return text, total, true
}

// cutQuestion splits s at the first '?', returning the part before it
// and the remainder after the '?'.
func cutQuestion(s string) (before, after string, ok bool) {
	i := strings.IndexByte(s, '?')
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// cutQuestionMarkEquals splits s at the first "?=", returning the part
// before it and the remainder after.
func cutQuestionMarkEquals(s string) (before, after string, ok bool) {
	i := strings.Index(s, "?=")
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+2:], true
}

// decodeQ decodes RFC 2047's "Q" encoding: quoted-printable with '_'
// standing in for a literal space.
func decodeQ(b []byte) ([]byte, error) {
	var out bytes.Buffer
	for i := 0; i < len(b); i++ {
		switch c := b[i]; {
		case c == '_':
			out.WriteByte(' ')
		case c == '=' && i+2 < len(b):
			hi, ok1 := hexVal(b[i+1])
			lo, ok2 := hexVal(b[i+2])
			if !ok1 || !ok2 {
				out.WriteByte(c)
				continue
			}
			out.WriteByte(hi<<4 | lo)
			i += 2
		default:
			out.WriteByte(c)
		}
	}
	return out.Bytes(), nil
}

func hexVal(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func isAllFWS(s string) bool {
	for _, c := range s {
		switch c {
		case ' ', '\t', '\r', '\n':
		default:
			return false
		}
	}
	return true
}

// decodeCharset converts raw bytes in the named MIME charset to UTF-8.
// us-ascii and utf-8 pass through unchanged; other charsets are looked
// up via golang.org/x/text's IANA index, with a fallback for the
// common "gb2312" alias the index doesn't carry.
func decodeCharset(charset string, raw []byte) (string, error) {
	switch strings.ToLower(charset) {
	case "us-ascii", "ascii", "utf-8", "utf8", "":
		return string(raw), nil
	}
	enc, err := ianaindex.MIME.Encoding(charset)
	if err != nil || enc == nil {
		if strings.EqualFold(charset, "gb2312") {
			enc = simplifiedchinese.HZGB2312
		} else {
			return string(raw), nil
		}
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw), nil
	}
	return string(out), nil
}
