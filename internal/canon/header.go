// Package canon implements RFC 6376 section 3.4's header and body
// canonicalization algorithms, in both "simple" and "relaxed" modes,
// shared by the signer and the verifier.
package canon

// Mode selects a canonicalization algorithm.
type Mode int

const (
	Simple Mode = iota
	Relaxed
)

// ParseMode maps the c= tag's algorithm names to a Mode.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "simple":
		return Simple, true
	case "relaxed":
		return Relaxed, true
	}
	return 0, false
}

func (m Mode) String() string {
	if m == Relaxed {
		return "relaxed"
	}
	return "simple"
}

// Header canonicalizes one header field's raw bytes (the exact wire
// form returned by message.Message.Bytes, including its trailing
// CRLF but none of the next field's bytes).
//
// Simple canonicalization (RFC 6376 3.4.1) does not touch the header
// field at all.
//
// Relaxed canonicalization (RFC 6376 3.4.2):
//   - the field name is lowercased
//   - WSP between the field name and the colon is deleted
//   - unfolds all header field continuation lines (deletes the CRLF
//     at the start of each continuation, along with any WSP that
//     follows it, and replaces it with a single space)
//   - reduces all sequences of WSP within the value to a single SP
//   - deletes leading and trailing WSP from the value
//   - the trailing CRLF is kept
func Header(mode Mode, raw []byte) []byte {
	if mode == Simple {
		return raw
	}
	return relaxedHeader(raw)
}

func relaxedHeader(raw []byte) []byte {
	colon := indexByte(raw, ':')
	if colon < 0 {
		return raw
	}
	name := raw[:colon]
	for len(name) > 0 && (name[len(name)-1] == ' ' || name[len(name)-1] == '\t') {
		name = name[:len(name)-1]
	}
	value := raw[colon+1:]

	out := make([]byte, 0, len(raw))
	out = appendLower(out, name)
	out = append(out, ':')

	var sb []byte
	lastWasWS := true // strip leading WSP from the value
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch c {
		case ' ', '\t', '\r', '\n':
			lastWasWS = true
		default:
			if lastWasWS && len(sb) > 0 {
				sb = append(sb, ' ')
			}
			sb = append(sb, c)
			lastWasWS = false
		}
	}
	out = append(out, sb...)
	out = append(out, '\r', '\n')
	return out
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

func appendLower(out, name []byte) []byte {
	for _, c := range name {
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return out
}
