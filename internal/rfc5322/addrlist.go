package rfc5322

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"dkimkit.dev/dkim/rfc2047"
)

// Mailbox is one address extracted from an RFC 5322 address-list: a
// display name (already RFC 2047 decoded) and an addr-spec.
type Mailbox struct {
	Name string
	Addr string // local-part@domain
}

// ParseAddressList parses list as an RFC 5322 address list (mailbox /
// group, comma-separated), flattening any groups into their member
// mailboxes. Quoted-string local-parts may contain backslash escapes;
// comments nest; an addr-spec may itself carry a comment between its
// local-part and domain (the worked example relies on this: "c@(Chris's
// host.)public.example"). An unmatched '<' is a parse error.
//
// A display-name's permissive atom grammar accepts ',' as atext, so a
// name like "Last, First" ahead of an angle-addr is consumed whole as
// one phrase before the list-separating comma is ever looked for; no
// separate comma-splitting special case is needed.
func ParseAddressList(list string) ([]Mailbox, error) {
	p := &addrScanner{s: list}
	return p.list()
}

type addrScanner struct {
	s string
}

func (p *addrScanner) list() ([]Mailbox, error) {
	var out []Mailbox
	for {
		p.skipSpace()
		mbs, err := p.address(true)
		if err != nil {
			return nil, err
		}
		out = append(out, mbs...)

		if !p.skipCFWS() {
			return nil, errors.New("rfc5322: misformatted comment")
		}
		if p.empty() {
			break
		}
		if !p.consume(',') {
			return nil, errors.New("rfc5322: expected comma")
		}
	}
	return out, nil
}

func (p *addrScanner) address(handleGroup bool) ([]Mailbox, error) {
	p.skipSpace()
	if p.empty() {
		return nil, errors.New("rfc5322: no address")
	}

	if spec, err := p.addrSpec(); err == nil {
		name := ""
		p.skipSpace()
		if !p.empty() && p.peek() == '(' {
			var cErr error
			name, cErr = p.trailingCommentAsName()
			if cErr != nil {
				return nil, cErr
			}
		}
		return []Mailbox{{Name: name, Addr: spec}}, nil
	}

	var name string
	var err error
	if p.peek() != '<' {
		name, err = p.phrase()
		if err != nil {
			return nil, err
		}
	}

	p.skipSpace()
	if handleGroup && p.consume(':') {
		return p.groupList()
	}

	if !p.consume('<') {
		return nil, errors.New("rfc5322: no angle-addr")
	}
	spec, err := p.addrSpec()
	if err != nil {
		return nil, err
	}
	if !p.consume('>') {
		return nil, errors.New("rfc5322: unclosed angle-addr")
	}
	return []Mailbox{{Name: name, Addr: spec}}, nil
}

func (p *addrScanner) groupList() ([]Mailbox, error) {
	var group []Mailbox
	p.skipSpace()
	if p.consume(';') {
		p.skipCFWS()
		return group, nil
	}
	for {
		p.skipSpace()
		mbs, err := p.address(false) // groups do not nest
		if err != nil {
			return nil, err
		}
		group = append(group, mbs...)

		if !p.skipCFWS() {
			return nil, errors.New("rfc5322: misformatted comment")
		}
		if p.consume(';') {
			p.skipCFWS()
			break
		}
		if !p.consume(',') {
			return nil, errors.New("rfc5322: expected comma in group")
		}
	}
	return group, nil
}

// addrSpec parses local-part "@" domain, where either side of the '@'
// may be followed by a parenthesized comment (discarded).
func (p *addrScanner) addrSpec() (spec string, err error) {
	save := *p
	defer func() {
		if err != nil {
			*p = save
		}
	}()

	p.skipSpace()
	if p.empty() {
		return "", errors.New("rfc5322: no addr-spec")
	}

	var local string
	if p.peek() == '"' {
		local, err = p.quotedString()
		if err == nil && local == "" {
			err = errors.New("rfc5322: empty quoted local-part")
		}
	} else {
		local, err = p.atom(true, false)
	}
	if err != nil {
		return "", err
	}
	p.skipInlineComment()

	if !p.consume('@') {
		return "", errors.New("rfc5322: missing @ in addr-spec")
	}
	p.skipInlineComment()

	if p.empty() {
		return "", errors.New("rfc5322: no domain in addr-spec")
	}
	domain, err := p.atom(true, false)
	if err != nil {
		return "", err
	}
	return local + "@" + domain, nil
}

// skipInlineComment discards one optional parenthesized comment with
// no surrounding space requirement, used between addr-spec tokens.
func (p *addrScanner) skipInlineComment() {
	if !p.empty() && p.peek() == '(' {
		p.consume('(')
		p.comment()
	}
}

func (p *addrScanner) phrase() (string, error) {
	var words []string
	var prevEncoded bool
	for {
		p.skipSpace()
		if p.empty() {
			break
		}
		var word string
		var err error
		encoded := false
		if p.peek() == '"' {
			word, err = p.quotedString()
		} else {
			word, err = p.atom(true, true)
			if err == nil && strings.Contains(word, "=?") {
				decoded := rfc2047.Decode(word)
				encoded = decoded != word
				word = decoded
			}
		}
		if err != nil {
			break
		}
		if prevEncoded && encoded {
			words[len(words)-1] += word
		} else {
			words = append(words, word)
		}
		prevEncoded = encoded
	}
	if len(words) == 0 {
		return "", errors.New("rfc5322: missing word in phrase")
	}
	return strings.Join(words, " "), nil
}

func (p *addrScanner) trailingCommentAsName() (string, error) {
	if !p.consume('(') {
		return "", errors.New("rfc5322: comment does not start with (")
	}
	c, ok := p.comment()
	if !ok {
		return "", errors.New("rfc5322: misformatted comment")
	}
	return rfc2047.Decode(c), nil
}

func (p *addrScanner) quotedString() (string, error) {
	i := 1 // opening quote already peeked, not yet consumed
	var sb strings.Builder
	escaped := false
	for {
		r, size := utf8.DecodeRuneInString(p.s[i:])
		switch {
		case size == 0:
			return "", errors.New("rfc5322: unclosed quoted-string")
		case size == 1 && r == utf8.RuneError:
			return "", fmt.Errorf("rfc5322: invalid utf-8 in quoted-string")
		case escaped:
			if !isVchar(r) && !isWSP(r) {
				return "", fmt.Errorf("rfc5322: bad escape in quoted-string")
			}
			sb.WriteRune(r)
			escaped = false
		case isQtext(r) || isWSP(r):
			sb.WriteRune(r)
		case r == '"':
			p.s = p.s[i+size:]
			return sb.String(), nil
		case r == '\\':
			escaped = true
		default:
			return "", fmt.Errorf("rfc5322: bad character in quoted-string")
		}
		i += size
	}
}

// atom parses an RFC 5322 atom. If dot, a dot-atom is parsed instead.
// If permissive, specials other than '<','>',':','"' are accepted, to
// tolerate the sort of loosely-formed display names seen in the wild.
func (p *addrScanner) atom(dot, permissive bool) (string, error) {
	i := 0
	for {
		r, size := utf8.DecodeRuneInString(p.s[i:])
		if size == 1 && r == utf8.RuneError {
			return "", errors.New("rfc5322: invalid utf-8")
		}
		if size == 0 || !isAtext(r, dot, permissive) {
			break
		}
		i += size
	}
	if i == 0 {
		return "", errors.New("rfc5322: empty atom")
	}
	atom := p.s[:i]
	p.s = p.s[i:]
	if !permissive {
		if strings.HasPrefix(atom, ".") || strings.HasSuffix(atom, ".") || strings.Contains(atom, "..") {
			return "", errors.New("rfc5322: malformed dot-atom")
		}
	}
	return atom, nil
}

func (p *addrScanner) consume(c byte) bool {
	if p.empty() || p.peek() != c {
		return false
	}
	p.s = p.s[1:]
	return true
}

// skipSpace trims leading WSP and line-folds. Header values reaching
// this parser still carry their original folding, so a group's
// "display-name ':'" boundary, or an addr-spec's internal comment, may
// be separated from what follows by a literal "\r\n " with no space
// before the fold — RFC 5322's FWS allows *WSP (zero or more) ahead of
// the CRLF, unlike the single-token FWS contract ConsumeFWS enforces
// for tag-list values, so this loop is its own, more permissive walk
// rather than a call to ConsumeFWS.
func (p *addrScanner) skipSpace() {
	for {
		i := 0
		for i < len(p.s) && (p.s[i] == ' ' || p.s[i] == '\t') {
			i++
		}
		if i+1 < len(p.s) && p.s[i] == '\r' && p.s[i+1] == '\n' {
			j := i + 2
			k := j
			for k < len(p.s) && (p.s[k] == ' ' || p.s[k] == '\t') {
				k++
			}
			if k > j {
				p.s = p.s[k:]
				continue
			}
		}
		if i == 0 {
			return
		}
		p.s = p.s[i:]
	}
}
func (p *addrScanner) peek() byte { return p.s[0] }
func (p *addrScanner) empty() bool { return len(p.s) == 0 }

// skipCFWS skips comment-and-folding-whitespace: any run of spaces and
// nested, backslash-escaping parenthesized comments.
func (p *addrScanner) skipCFWS() bool {
	p.skipSpace()
	for p.consume('(') {
		if _, ok := p.comment(); !ok {
			return false
		}
		p.skipSpace()
	}
	return true
}

// comment consumes up to and including the matching ')', honouring
// nesting and backslash escapes; '(' itself must already be consumed.
func (p *addrScanner) comment() (string, bool) {
	depth := 1
	var sb strings.Builder
	for !p.empty() && depth > 0 {
		switch {
		case p.peek() == '\\' && len(p.s) > 1:
			p.s = p.s[1:]
		case p.peek() == '(':
			depth++
		case p.peek() == ')':
			depth--
		}
		if depth > 0 {
			sb.WriteByte(p.s[0])
		}
		p.s = p.s[1:]
	}
	return sb.String(), depth == 0
}

func isAtext(r rune, dot, permissive bool) bool {
	switch r {
	case '.':
		return dot
	case '(', ')', '[', ']', ';', '@', '\\', ',':
		return permissive
	case '<', '>', '"', ':':
		return false
	}
	return isVchar(r)
}

func isQtext(r rune) bool {
	if r == '\\' || r == '"' {
		return false
	}
	return isVchar(r)
}

func isVchar(r rune) bool {
	return '!' <= r && r <= '~' || r >= utf8.RuneSelf
}

func isWSP(r rune) bool { return r == ' ' || r == '\t' }
