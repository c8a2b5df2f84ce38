/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package codec

import (
	"bytes"

	"github.com/parley-im/parley/xmpp"
)

// StreamHeader returns the opening of a client stream addressed to domain.
func StreamHeader(mode ParsingMode, domain, lang string) []byte {
	var buf bytes.Buffer
	var el *xmpp.Element
	switch mode {
	case FramedStream:
		el = xmpp.NewElementNamespace("open", xmpp.NamespaceFraming)
	default:
		buf.WriteString(`<?xml version="1.0"?>`)
		el = xmpp.NewElementName("stream:stream")
		el.SetNamespace(xmpp.NamespaceClient)
		el.SetAttribute("xmlns:stream", xmpp.NamespaceStream)
	}
	el.SetTo(domain)
	el.SetVersion("1.0")
	if len(lang) > 0 {
		el.SetLanguage(lang)
	}
	el.ToXML(&buf, mode == FramedStream)
	return buf.Bytes()
}

// StreamFooter returns the closing of a client stream.
func StreamFooter(mode ParsingMode) []byte {
	if mode == FramedStream {
		return Serialize(xmpp.NewElementNamespace("close", xmpp.NamespaceFraming))
	}
	return []byte("</stream:stream>")
}

// IsStreamHeader reports whether elem opens a stream in the given mode.
func IsStreamHeader(mode ParsingMode, elem xmpp.XElement) bool {
	if mode == FramedStream {
		return elem.Name() == "open" && elem.Namespace() == xmpp.NamespaceFraming
	}
	return elem.Name() == "stream:stream"
}
