/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package xmpp

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/parley-im/parley/xmpp/jid"
)

var bufPool = sync.Pool{New: func() interface{} { return new(bytes.Buffer) }}

// ErrorType represents an 'error' stanza type.
const ErrorType = "error"

// Well known XMPP core namespaces.
const (
	NamespaceClient  = "jabber:client"
	NamespaceStream  = "http://etherx.jabber.org/streams"
	NamespaceFraming = "urn:ietf:params:xml:ns:xmpp-framing"
	NamespaceTLS     = "urn:ietf:params:xml:ns:xmpp-tls"
	NamespaceSASL    = "urn:ietf:params:xml:ns:xmpp-sasl"
	NamespaceBind    = "urn:ietf:params:xml:ns:xmpp-bind"
	NamespaceSession = "urn:ietf:params:xml:ns:xmpp-session"
	NamespaceStanzas = "urn:ietf:params:xml:ns:xmpp-stanzas"
	NamespaceStreams = "urn:ietf:params:xml:ns:xmpp-streams"
)

// XElement represents a generic XML node element.
type XElement interface {
	fmt.Stringer

	Name() string
	Attributes() AttributeSet
	Elements() ElementSet

	Text() string

	ID() string
	Namespace() string
	Language() string
	Version() string
	From() string
	To() string
	Type() string

	IsStanza() bool

	IsError() bool
	Error() XElement

	ToXML(w io.Writer, includeClosing bool)
}

// Stanza represents an XMPP stanza element.
type Stanza interface {
	XElement
	FromJID() *jid.JID
	ToJID() *jid.JID
}
