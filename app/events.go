/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package app

import (
	"fmt"
	"io"
	"time"

	"github.com/parley-im/parley/client"
	"github.com/parley-im/parley/xmpp"
	"github.com/parley-im/parley/xmpp/jid"
)

func printEvents(out io.Writer, events <-chan client.Event) {
	for ev := range events {
		if s := formatEvent(ev, time.Now()); len(s) > 0 {
			_, _ = fmt.Fprintln(out, s)
		}
	}
}

func formatEvent(ev client.Event, now time.Time) string {
	ts := now.Format("15:04")
	from := addr(ev.From)

	switch ev.Type {
	case client.MessageEvent:
		msg, ok := ev.Stanza.(*xmpp.Message)
		if !ok {
			return ""
		}
		return fmt.Sprintf("[%s] <- %s: %s", ts, bareAddr(ev.From), msg.Body())

	case client.GroupMessageEvent:
		msg, ok := ev.Stanza.(*xmpp.Message)
		if !ok || ev.From == nil {
			return ""
		}
		return fmt.Sprintf("[%s] %s <%s> %s", ts, bareAddr(ev.From), ev.From.Resource(), msg.Body())

	case client.SubscriptionRequestEvent:
		return fmt.Sprintf("[%s] %s wants to see your presence (/approve or /deny)", ts, from)

	case client.SubscriptionEvent:
		switch ev.Stanza.Type() {
		case xmpp.SubscribedType:
			return fmt.Sprintf("[%s] %s approved your subscription", ts, from)
		case xmpp.UnsubscribeType:
			return fmt.Sprintf("[%s] %s no longer sees your presence", ts, from)
		case xmpp.UnsubscribedType:
			return fmt.Sprintf("[%s] %s cancelled your subscription", ts, from)
		}

	case client.PresenceEvent:
		p, ok := ev.Stanza.(*xmpp.Presence)
		if !ok {
			return ""
		}
		state := "offline"
		if p.IsAvailable() {
			state = p.ShowState().String()
			if len(state) == 0 {
				state = "online"
			}
		}
		if status := p.Status(); len(status) > 0 {
			return fmt.Sprintf("[%s] %s is %s (%s)", ts, from, state, status)
		}
		return fmt.Sprintf("[%s] %s is %s", ts, from, state)

	case client.RosterEvent:
		return fmt.Sprintf("[%s] roster updated", ts)

	case client.ErrorEvent:
		return fmt.Sprintf("[%s] error from %s: %v", ts, from, ev.Err)

	case client.DisconnectedEvent:
		if ev.Err != nil {
			return fmt.Sprintf("[%s] disconnected: %v", ts, ev.Err)
		}
		return fmt.Sprintf("[%s] disconnected", ts)
	}
	return ""
}

func addr(j *jid.JID) string {
	if j == nil {
		return "server"
	}
	return j.String()
}

func bareAddr(j *jid.JID) string {
	if j == nil {
		return "server"
	}
	return j.ToBareJID().String()
}
