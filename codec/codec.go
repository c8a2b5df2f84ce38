/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package codec

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/parley-im/parley/xmpp"
)

const streamName = "stream"

// ParsingMode defines the way in which stream framing elements are handled.
type ParsingMode int

const (
	// SocketStream treats input as an XML stream wrapped in <stream:stream/> (RFC 6120).
	SocketStream = ParsingMode(iota)

	// FramedStream treats input as a sequence of self-contained frames opened
	// by <open/> and finished by <close/> (RFC 7395).
	FramedStream
)

// ErrTooLargeStanza is returned by Next when the size of
// the incoming stanza exceeds the configured limit.
var ErrTooLargeStanza = errors.New("codec: too large stanza")

// ErrStreamClosedByPeer is returned by Next when peer closes the stream.
var ErrStreamClosedByPeer = errors.New("codec: stream closed by peer")

// MalformedStanzaError is returned when the incoming byte stream is not well-formed XML.
// A codec that returned it can not be resumed.
type MalformedStanzaError struct {
	Offset int64
	Err    error
}

func (e *MalformedStanzaError) Error() string {
	return fmt.Sprintf("codec: malformed stanza at offset %d: %v", e.Offset, e.Err)
}

// Unwrap returns the underlying syntax error.
func (e *MalformedStanzaError) Unwrap() error { return e.Err }

// Codec incrementally decodes XMPP elements out of a byte stream.
// It is not safe for concurrent use.
type Codec struct {
	mode          ParsingMode
	maxStanzaSize int
	buf           []byte
	consumed      int64
	err           error
}

// New returns a codec working in the given mode.
// A non positive maxStanzaSize disables the stanza size limit.
func New(mode ParsingMode, maxStanzaSize int) *Codec {
	return &Codec{mode: mode, maxStanzaSize: maxStanzaSize}
}

// Feed appends received bytes to the codec input buffer.
func (c *Codec) Feed(b []byte) {
	c.buf = append(c.buf, b...)
}

// Reset discards any buffered input and clears a previous stream close.
// Used when the stream is restarted after TLS or SASL negotiation.
func (c *Codec) Reset() {
	c.buf = nil
	if c.err == ErrStreamClosedByPeer {
		c.err = nil
	}
}

// Next returns the next complete top level element.
// A nil element and nil error means that more input is required.
func (c *Codec) Next() (xmpp.XElement, error) {
	if c.err != nil {
		return nil, c.err
	}
	elem, n, err := c.parse()
	c.discard(n)
	if err != nil {
		c.err = err
		return nil, err
	}
	if elem == nil && c.maxStanzaSize > 0 && len(c.buf) > c.maxStanzaSize {
		c.err = ErrTooLargeStanza
		return nil, c.err
	}
	return elem, nil
}

func (c *Codec) discard(n int) {
	if n == 0 {
		return
	}
	c.consumed += int64(n)
	c.buf = c.buf[n:]
	if len(c.buf) == 0 {
		c.buf = nil
	}
}

// parse decodes at most one element from the buffer and reports the
// amount of bytes that can be discarded.
func (c *Codec) parse() (xmpp.XElement, int, error) {
	data := c.buf[:completeRunes(c.buf)]
	dec := xml.NewDecoder(bytes.NewReader(data))

	var stack []*xmpp.Element
	var boundary int
	for {
		t, err := dec.RawToken()
		if err != nil {
			if isIncomplete(err) {
				return nil, boundary, nil
			}
			return nil, boundary, &MalformedStanzaError{Offset: c.consumed + dec.InputOffset(), Err: err}
		}
		if c.maxStanzaSize > 0 && int(dec.InputOffset())-boundary > c.maxStanzaSize {
			return nil, boundary, ErrTooLargeStanza
		}
		switch t1 := t.(type) {
		case xml.ProcInst:
			if len(stack) == 0 {
				boundary = int(dec.InputOffset())
			}

		case xml.Comment, xml.Directive:
			return nil, boundary, &MalformedStanzaError{
				Offset: c.consumed + dec.InputOffset(),
				Err:    errors.New("restricted XML"),
			}

		case xml.CharData:
			if len(stack) == 0 {
				if len(bytes.TrimSpace(t1)) > 0 {
					return nil, boundary, &MalformedStanzaError{
						Offset: c.consumed + dec.InputOffset(),
						Err:    errors.New("text outside of element"),
					}
				}
				// whitespace keepalive or pretty printing between stanzas
				boundary = int(dec.InputOffset())
				continue
			}
			top := stack[len(stack)-1]
			top.SetText(top.Text() + string(t1))

		case xml.StartElement:
			elem := startElement(t1)
			if len(stack) == 0 && c.isStreamHeader(t1.Name) {
				return elem, int(dec.InputOffset()), nil
			}
			stack = append(stack, elem)

		case xml.EndElement:
			name := xmlName(t1.Name.Space, t1.Name.Local)
			if len(stack) == 0 {
				if c.mode == SocketStream && t1.Name.Space == streamName && t1.Name.Local == streamName {
					return nil, int(dec.InputOffset()), ErrStreamClosedByPeer
				}
				return nil, boundary, &MalformedStanzaError{
					Offset: c.consumed + dec.InputOffset(),
					Err:    fmt.Errorf("unexpected end element </%s>", name),
				}
			}
			top := stack[len(stack)-1]
			if top.Name() != name {
				return nil, boundary, &MalformedStanzaError{
					Offset: c.consumed + dec.InputOffset(),
					Err:    fmt.Errorf("element <%s> closed by </%s>", top.Name(), name),
				}
			}
			stack = stack[:len(stack)-1]
			if top.Elements().Count() > 0 && len(strings.TrimSpace(top.Text())) == 0 {
				top.SetText("")
			}
			if len(stack) > 0 {
				stack[len(stack)-1].AppendElement(top)
				continue
			}
			if c.mode == FramedStream && t1.Name.Local == "close" && top.Namespace() == xmpp.NamespaceFraming {
				return nil, int(dec.InputOffset()), ErrStreamClosedByPeer
			}
			return top, int(dec.InputOffset()), nil
		}
	}
}

func (c *Codec) isStreamHeader(name xml.Name) bool {
	return c.mode == SocketStream && name.Space == streamName && name.Local == streamName
}

// Parse decodes a single element out of b.
func Parse(b []byte) (xmpp.XElement, error) {
	c := New(FramedStream, 0)
	c.Feed(b)
	elem, err := c.Next()
	if err != nil {
		return nil, err
	}
	if elem == nil {
		return nil, &MalformedStanzaError{Offset: int64(len(b)), Err: io.ErrUnexpectedEOF}
	}
	return elem, nil
}

// Serialize returns the wire representation of an element.
func Serialize(elem xmpp.XElement) []byte {
	var buf bytes.Buffer
	elem.ToXML(&buf, true)
	return buf.Bytes()
}

func startElement(t xml.StartElement) *xmpp.Element {
	elem := xmpp.NewElementName(xmlName(t.Name.Space, t.Name.Local))
	for _, a := range t.Attr {
		elem.SetAttribute(xmlName(a.Name.Space, a.Name.Local), a.Value)
	}
	return elem
}

func xmlName(space, local string) string {
	if len(space) > 0 {
		return space + ":" + local
	}
	return local
}

// isIncomplete reports whether a decoding error was caused by input ending
// in the middle of a token.
func isIncomplete(err error) bool {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return true
	}
	var syntaxErr *xml.SyntaxError
	if errors.As(err, &syntaxErr) {
		return strings.HasPrefix(syntaxErr.Msg, "unexpected EOF")
	}
	return false
}

// completeRunes returns the length of b without a trailing partial UTF-8 sequence.
func completeRunes(b []byte) int {
	n := len(b)
	for i := n - 1; i >= 0 && i >= n-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if !utf8.FullRune(b[i:]) {
			return i
		}
		break
	}
	return n
}
