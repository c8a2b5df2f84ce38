/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package streamerror

import (
	"github.com/parley-im/parley/xmpp"
)

// Error represents a "stream:error" element.
type Error struct {
	reason string
	text   string
}

var (
	// ErrInvalidXML represents 'invalid-xml' stream error.
	ErrInvalidXML = newStreamError("invalid-xml")

	// ErrInvalidNamespace represents 'invalid-namespace' stream error.
	ErrInvalidNamespace = newStreamError("invalid-namespace")

	// ErrHostUnknown represents 'host-unknown' stream error.
	ErrHostUnknown = newStreamError("host-unknown")

	// ErrConflict represents 'conflict' stream error.
	ErrConflict = newStreamError("conflict")

	// ErrConnectionTimeout represents 'connection-timeout' stream error.
	ErrConnectionTimeout = newStreamError("connection-timeout")

	// ErrPolicyViolation represents 'policy-violation' stream error.
	ErrPolicyViolation = newStreamError("policy-violation")

	// ErrUnsupportedStanzaType represents 'unsupported-stanza-type' stream error.
	ErrUnsupportedStanzaType = newStreamError("unsupported-stanza-type")

	// ErrUnsupportedVersion represents 'unsupported-version' stream error.
	ErrUnsupportedVersion = newStreamError("unsupported-version")

	// ErrNotAuthorized represents 'not-authorized' stream error.
	ErrNotAuthorized = newStreamError("not-authorized")

	// ErrSystemShutdown represents 'system-shutdown' stream error.
	ErrSystemShutdown = newStreamError("system-shutdown")

	// ErrUndefinedCondition represents 'undefined-condition' stream error.
	ErrUndefinedCondition = newStreamError("undefined-condition")
)

func newStreamError(reason string) *Error {
	return &Error{reason: reason}
}

// FromElement decodes a "stream:error" element sent by the server.
func FromElement(elem xmpp.XElement) *Error {
	se := &Error{}
	for _, child := range elem.Elements().All() {
		if child.Namespace() != xmpp.NamespaceStreams {
			continue
		}
		if child.Name() == "text" {
			se.text = child.Text()
		} else if len(se.reason) == 0 {
			se.reason = child.Name()
		}
	}
	if len(se.reason) == 0 {
		se.reason = ErrUndefinedCondition.reason
	}
	return se
}

// Reason returns the defined condition name.
func (se *Error) Reason() string {
	return se.reason
}

// Text returns the optional description sent along the condition.
func (se *Error) Text() string {
	return se.text
}

// Element returns stream error XML node.
func (se *Error) Element() xmpp.XElement {
	ret := xmpp.NewElementName("stream:error")
	ret.AppendElement(xmpp.NewElementNamespace(se.reason, xmpp.NamespaceStreams))
	if len(se.text) > 0 {
		ret.AppendElement(xmpp.NewElementNamespace("text", xmpp.NamespaceStreams).SetText(se.text))
	}
	return ret
}

// Error satisfies error interface.
func (se *Error) Error() string {
	if len(se.text) > 0 {
		return se.reason + ": " + se.text
	}
	return se.reason
}
