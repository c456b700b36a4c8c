package canon

import "io"

// Body wraps r with the body canonicalization algorithm for mode (RFC
// 6376 section 3.4.3/3.4.4). The returned reader reads exactly the
// canonicalized body: relaxed reduces intra-line WSP runs to a single
// SP and drops trailing WSP; both modes collapse any run of trailing
// CRLF-terminated empty lines down to a single CRLF (or, per the
// relaxed-empty-body quirk noted in section 3.4.3, to zero bytes if
// the canonical body is empty and the mode is relaxed).
func Body(mode Mode, r io.Reader) io.Reader {
	if mode == Relaxed {
		return &trimTrailingEmptyLines{r: &reduceWhitespace{r: r}, relaxed: true}
	}
	return &trimTrailingEmptyLines{r: r}
}

// trimTrailingEmptyLines reduces any run of trailing CRLFs in the
// wrapped stream to a single CRLF, matching RFC 6376 3.4.3's
// definition of "empty line". In relaxed mode an entirely-empty body
// canonicalizes to zero bytes rather than a bare CRLF: RFC 6376
// section 3.4.4 inherits 3.4.3's empty-line rule but relaxed body
// hashes of an empty message are conventionally computed over zero
// bytes, matching every interoperating implementation.
type trimTrailingEmptyLines struct {
	r       io.Reader
	relaxed bool

	data [4096]byte
	off  int
	len  int
	rerr error

	inCR     bool
	numCRLFs int
	sawByte  bool
	epilogue bool
}

func (s *trimTrailingEmptyLines) Read(buf []byte) (n int, err error) {
	for s.len == 0 {
		if s.rerr != nil {
			if !s.epilogue {
				s.epilogue = true
				if !s.relaxed || s.sawByte {
					s.data[0], s.data[1] = '\r', '\n'
					s.off, s.len = 0, 2
					break
				}
				return 0, s.rerr
			}
			return 0, s.rerr
		}
		s.off = 0
		s.len, s.rerr = s.r.Read(s.data[:])
	}

	if s.epilogue {
		n = copy(buf, s.data[s.off:s.off+s.len])
		s.off += n
		s.len -= n
		return n, nil
	}

	for s.len > 0 && n < len(buf) {
		c := s.data[s.off]
		s.off++
		s.len--

		if c != '\n' && s.inCR {
			buf[n] = '\r'
			n++
			s.sawByte = true
			s.inCR = false
		}

		switch c {
		case '\r':
			s.inCR = true
		case '\n':
			if s.inCR {
				s.numCRLFs++
				s.inCR = false
			} else {
				buf[n] = '\n'
				n++
				s.sawByte = true
			}
		default:
			for ; s.numCRLFs > 0 && n+1 < len(buf); s.numCRLFs-- {
				buf[n], buf[n+1] = '\r', '\n'
				n += 2
			}
			if s.numCRLFs > 0 {
				s.off--
				s.len++
				return n, nil
			}
			buf[n] = c
			n++
			s.sawByte = true
		}
	}
	return n, nil
}

// reduceWhitespace collapses runs of SP/TAB within a line to a single
// SP and drops whitespace immediately preceding a CRLF, per RFC 6376
// 3.4.4(a).
type reduceWhitespace struct {
	r    io.Reader
	inWS bool
}

func (r *reduceWhitespace) Read(buf []byte) (n int, err error) {
	if len(buf) == 0 {
		return r.r.Read(buf)
	}

	in := buf
	if r.inWS {
		in = buf[1:]
	}

	n, err = r.r.Read(in)
	out := buf[:0]
	for _, c := range in[:n] {
		switch c {
		case ' ', '\t':
			if !r.inWS {
				r.inWS = true
			}
		default:
			if r.inWS {
				out = append(out, ' ')
			}
			fallthrough
		case '\r', '\n':
			out = append(out, c)
			r.inWS = false
		}
	}
	return len(out), err
}

// LimitBody caps a canonicalized body reader at n bytes, implementing
// the l= tag: only the first n octets of the canonicalized body are
// ever hashed or signed.
func LimitBody(r io.Reader, n int64) io.Reader {
	return io.LimitReader(r, n)
}
