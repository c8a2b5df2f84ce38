/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package client

import (
	"github.com/parley-im/parley/xmpp"
	"github.com/parley-im/parley/xmpp/jid"
)

// EventType identifies the kind of console event.
type EventType int

const (
	// MessageEvent carries an incoming chat, normal or headline message.
	MessageEvent EventType = iota

	// GroupMessageEvent carries an incoming room message.
	GroupMessageEvent

	// SubscriptionRequestEvent is emitted when a contact asks to see the account presence.
	SubscriptionRequestEvent

	// SubscriptionEvent is emitted when a contact grants, denies or revokes a subscription.
	SubscriptionEvent

	// PresenceEvent is emitted when a contact resource changes availability.
	PresenceEvent

	// RosterEvent is emitted when a roster push modifies the contact list.
	RosterEvent

	// ErrorEvent carries an error stanza.
	ErrorEvent

	// DisconnectedEvent is the last event, emitted once the session terminates.
	DisconnectedEvent
)

// String returns EventType string representation.
func (et EventType) String() string {
	switch et {
	case MessageEvent:
		return "message"
	case GroupMessageEvent:
		return "groupchat"
	case SubscriptionRequestEvent:
		return "subscription_request"
	case SubscriptionEvent:
		return "subscription"
	case PresenceEvent:
		return "presence"
	case RosterEvent:
		return "roster"
	case ErrorEvent:
		return "error"
	case DisconnectedEvent:
		return "disconnected"
	}
	return ""
}

// Event represents something the console should tell the user about.
type Event struct {
	Type   EventType
	From   *jid.JID
	Stanza xmpp.Stanza

	// Err is set for ErrorEvent and DisconnectedEvent.
	Err error
}
