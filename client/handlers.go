/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package client

import (
	"context"

	"github.com/parley-im/parley/archive"
	"github.com/parley-im/parley/dispatcher"
	"github.com/parley-im/parley/log"
	"github.com/parley-im/parley/roster"
	"github.com/parley-im/parley/xmpp"
	"github.com/parley-im/parley/xmpp/jid"
)

func (c *Client) registerHandlers() {
	c.disp.Register(dispatcher.IQKind, dispatcher.IQNamespace(xmpp.SetType, roster.Namespace), c.handleRosterPush)
	c.disp.Register(dispatcher.PresenceKind, c.isContactStanza, c.handlePresence)
	c.disp.Register(dispatcher.MessageKind, nil, c.handleMessage)

	// roster results are correlated replies and never reach handlers
	c.disp.Observe(dispatcher.IQNamespace(xmpp.ResultType, roster.Namespace), c.handleRosterResult)
}

func (c *Client) handleRosterResult(_ context.Context, stanza xmpp.Stanza) error {
	c.roster.Apply(stanza)
	return nil
}

func (c *Client) isContactStanza(stanza xmpp.Stanza) bool {
	return !c.muc.IsRoom(stanza.FromJID())
}

func (c *Client) handleRosterPush(ctx context.Context, stanza xmpp.Stanza) error {
	iq := stanza.(*xmpp.IQ)
	if !c.isAccountAddress(iq.FromJID()) {
		return c.Send(ctx, iq.ErrorIQ(xmpp.ErrServiceUnavailable))
	}
	if c.roster.Apply(iq) {
		c.emit(Event{Type: RosterEvent, From: iq.FromJID(), Stanza: iq})
	}
	return c.Send(ctx, iq.ResultIQ())
}

func (c *Client) handlePresence(_ context.Context, stanza xmpp.Stanza) error {
	p := stanza.(*xmpp.Presence)
	switch {
	case p.IsSubscribe():
		c.emit(Event{Type: SubscriptionRequestEvent, From: p.FromJID(), Stanza: p})

	case p.IsSubscribed(), p.IsUnsubscribe(), p.IsUnsubscribed():
		c.emit(Event{Type: SubscriptionEvent, From: p.FromJID(), Stanza: p})

	case p.IsError():
		c.roster.Apply(p)
		c.emit(Event{Type: ErrorEvent, From: p.FromJID(), Stanza: p, Err: stanzaError(p)})

	case p.IsAvailable(), p.IsUnavailable():
		if c.roster.Apply(p) {
			c.emit(Event{Type: PresenceEvent, From: p.FromJID(), Stanza: p})
		}
	}
	return nil
}

func (c *Client) handleMessage(ctx context.Context, stanza xmpp.Stanza) error {
	msg := stanza.(*xmpp.Message)
	switch {
	case msg.IsError():
		c.emit(Event{Type: ErrorEvent, From: msg.FromJID(), Stanza: msg, Err: stanzaError(msg)})

	case msg.IsGroupChat():
		if !msg.IsMessageWithBody() {
			return nil
		}
		c.store(ctx, msg, archive.Incoming)
		c.emit(Event{Type: GroupMessageEvent, From: msg.FromJID(), Stanza: msg})

	case msg.IsMessageWithBody():
		c.store(ctx, msg, archive.Incoming)
		c.emit(Event{Type: MessageEvent, From: msg.FromJID(), Stanza: msg})
	}
	return nil
}

// isAccountAddress reports whether from is empty or the account bare address.
func (c *Client) isAccountAddress(from *jid.JID) bool {
	return from == nil || (from.IsBare() && from.Matches(c.cfg.JID, jid.MatchesBare))
}

// emit never blocks the reading goroutine: events are dropped when the console falls behind.
func (c *Client) emit(ev Event) {
	select {
	case c.eventsCh <- ev:
	default:
		log.Warnf("event queue full, dropping %s event", ev.Type)
	}
}

func (c *Client) emitLast(ev Event) {
	for {
		select {
		case c.eventsCh <- ev:
			return
		default:
		}
		select {
		case <-c.eventsCh:
		default:
		}
	}
}

func stanzaError(stanza xmpp.Stanza) error {
	if se := xmpp.NewStanzaErrorFromElement(stanza.Error()); se != nil {
		return se
	}
	return xmpp.ErrUndefinedCondition
}
