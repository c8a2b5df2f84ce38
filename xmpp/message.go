/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package xmpp

import (
	"fmt"

	"github.com/parley-im/parley/xmpp/jid"
)

const (
	// NormalType represents a 'normal' message type.
	NormalType = "normal"

	// HeadlineType represents a 'headline' message type.
	HeadlineType = "headline"

	// ChatType represents a 'chat' message type.
	ChatType = "chat"

	// GroupChatType represents a 'groupchat' message type.
	GroupChatType = "groupchat"
)

// Message type represents a <message> element.
// All incoming <message> elements providing from the
// stream will automatically be converted to Message objects.
type Message struct {
	stanzaElement
}

// NewMessageFromElement creates a Message object from XElement.
func NewMessageFromElement(e XElement, from *jid.JID, to *jid.JID) (*Message, error) {
	if e.Name() != MessageName {
		return nil, fmt.Errorf("wrong Message element name: %s", e.Name())
	}
	messageType := e.Type()
	if !IsMessageType(messageType) {
		return nil, fmt.Errorf(`invalid Message "type" attribute: %s`, messageType)
	}
	m := &Message{}
	m.copyFrom(e)
	m.SetFromJID(from)
	m.SetToJID(to)
	m.SetNamespace("")
	return m, nil
}

// NewMessageType creates and returns a new Message element.
func NewMessageType(identifier string, messageType string) *Message {
	msg := &Message{}
	msg.SetName(MessageName)
	msg.SetID(identifier)
	msg.SetType(messageType)
	return msg
}

// NewMessage creates an addressed message carrying a body.
func NewMessage(identifier string, messageType string, to *jid.JID, body string) *Message {
	msg := NewMessageType(identifier, messageType)
	msg.SetToJID(to)
	msg.SetBody(body)
	return msg
}

// IsGroupChat returns true if this is a 'groupchat' type Message.
func (m *Message) IsGroupChat() bool {
	return m.Type() == GroupChatType
}

// IsMessageWithBody returns true if the message
// has a body sub element.
func (m *Message) IsMessageWithBody() bool {
	return m.elements.Child("body") != nil
}

// Body returns the message body text.
func (m *Message) Body() string {
	if b := m.elements.Child("body"); b != nil {
		return b.Text()
	}
	return ""
}

// Subject returns the message subject text.
func (m *Message) Subject() string {
	if s := m.elements.Child("subject"); s != nil {
		return s.Text()
	}
	return ""
}

// SetBody sets message <body/> element.
func (m *Message) SetBody(body string) *Message {
	m.setChildText("body", body)
	return m
}

// SetSubject sets message <subject/> element.
func (m *Message) SetSubject(subject string) *Message {
	m.setChildText("subject", subject)
	return m
}

// IsMessageType reports whether tp is a valid message 'type' attribute.
func IsMessageType(tp string) bool {
	switch tp {
	case "", ErrorType, NormalType, HeadlineType, ChatType, GroupChatType:
		return true
	default:
		return false
	}
}
