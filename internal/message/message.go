// Package message splits a raw RFC 5322 message into its header
// fields and body over a seekable byte source, preserving the exact
// original bytes of each header (including its line folds) so that
// "simple" canonicalization, and the b= erase-and-rehash step, have
// the untouched wire form to work from.
package message

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"crawshaw.io/iox"
)

// NoBody is the sentinel BodyStart value for a message whose source
// ended before the header/body blank-line separator was seen: the
// message has no body at all, not an empty one.
const NoBody int64 = -1

// Field is one header field's name and its byte range in Source,
// spanning from the first byte of the field name through (and
// including) the field's final CRLF.
type Field struct {
	Name       []byte
	Start, End int64
}

// Message is a parsed message: an ordered list of header fields plus
// the offset where the body begins, all relative to Source.
type Message struct {
	Source    io.ReadSeeker
	Headers   []Field
	BodyStart int64
}

// Parse reads src from its current position and splits it into header
// fields and a body offset. If src is not seekable, Parse spools it
// into a BufferFile obtained from filer (filer may be nil only if src
// already implements io.Seeker).
func Parse(filer *iox.Filer, src io.Reader) (*Message, error) {
	seekable, ok := src.(io.ReadSeeker)
	if !ok {
		buf := filer.BufferFile(0)
		if _, err := io.Copy(buf, src); err != nil {
			buf.Close()
			return nil, err
		}
		if _, err := buf.Seek(0, io.SeekStart); err != nil {
			buf.Close()
			return nil, err
		}
		seekable = buf
	}

	m := &Message{Source: seekable}
	r := bufio.NewReader(seekable)
	var off int64

	for {
		lineStart := off
		line, err := r.ReadSlice('\n')
		off += int64(len(line))
		if err != nil && err != bufio.ErrBufferFull && len(line) == 0 {
			if err == io.EOF {
				m.BodyStart = NoBody
				return m, nil
			}
			return nil, err
		}
		// ReadSlice can stop mid-line on a full buffer; reassemble.
		for err == bufio.ErrBufferFull {
			var more []byte
			more, err = r.ReadSlice('\n')
			off += int64(len(more))
			line = append(line, more...)
		}
		if err != nil && err != io.EOF {
			return nil, err
		}

		if isBlankLine(line) {
			m.BodyStart = off
			return m, nil
		}
		if line[0] == ' ' || line[0] == '\t' {
			// Continuation of the previous field with no field before it.
			return nil, errors.New("message: header continuation with no field")
		}

		name := fieldName(line)
		if name == nil {
			return nil, errors.New("message: malformed header field")
		}
		f := Field{Name: name, Start: lineStart}

		for {
			peeked, peekErr := r.Peek(1)
			if peekErr != nil || len(peeked) == 0 {
				break
			}
			if peeked[0] != ' ' && peeked[0] != '\t' {
				break
			}
			cont, cErr := r.ReadSlice('\n')
			off += int64(len(cont))
			for cErr == bufio.ErrBufferFull {
				var more []byte
				more, cErr = r.ReadSlice('\n')
				off += int64(len(more))
			}
			if cErr != nil && cErr != io.EOF {
				return nil, cErr
			}
		}
		f.End = off
		m.Headers = append(m.Headers, f)
	}
}

func isBlankLine(line []byte) bool {
	return bytes.Equal(line, []byte("\r\n")) || bytes.Equal(line, []byte("\n"))
}

// fieldName returns the field-name portion of a header's first line
// (before the ':'), or nil if the line has no colon.
func fieldName(line []byte) []byte {
	i := bytes.IndexByte(line, ':')
	if i <= 0 {
		return nil
	}
	return append([]byte(nil), line[:i]...)
}

// Bytes returns the exact original bytes of field f, including its
// trailing CRLF.
func (m *Message) Bytes(f Field) ([]byte, error) {
	if _, err := m.Source.Seek(f.Start, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, f.End-f.Start)
	if _, err := io.ReadFull(m.Source, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Body seeks Source to the start of the message body and returns it;
// callers read from the returned reader until EOF. A message parsed
// from a source with no header/body separator (BodyStart == NoBody)
// has no body at all; Body returns an already-exhausted reader.
func (m *Message) Body() (io.Reader, error) {
	if m.BodyStart == NoBody {
		return bytes.NewReader(nil), nil
	}
	if _, err := m.Source.Seek(m.BodyStart, io.SeekStart); err != nil {
		return nil, err
	}
	return m.Source, nil
}

// Find returns the indices (in document order) of every header field
// whose name matches want case-insensitively.
func (m *Message) Find(want string) []int {
	var idx []int
	for i, f := range m.Headers {
		if bytes.EqualFold(f.Name, []byte(want)) {
			idx = append(idx, i)
		}
	}
	return idx
}
