/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package roster

import (
	"errors"
	"fmt"

	"github.com/parley-im/parley/xmpp"
	"github.com/parley-im/parley/xmpp/jid"
)

// Namespace is the roster management namespace (RFC 6121).
const Namespace = "jabber:iq:roster"

// roster item subscription values
const (
	SubscriptionNone   = "none"
	SubscriptionFrom   = "from"
	SubscriptionTo     = "to"
	SubscriptionBoth   = "both"
	SubscriptionRemove = "remove"
)

// Item represents a roster item as sent by the server.
type Item struct {
	JID          *jid.JID
	Name         string
	Subscription string
	Ask          bool
	Groups       []string
}

// NewItem parses an XML element returning a derived roster item instance.
func NewItem(elem xmpp.XElement) (*Item, error) {
	if elem.Name() != "item" {
		return nil, fmt.Errorf("invalid item element name: %s", elem.Name())
	}
	ri := &Item{}
	if jidStr := elem.Attributes().Get("jid"); len(jidStr) > 0 {
		j, err := jid.NewWithString(jidStr, false)
		if err != nil {
			return nil, err
		}
		ri.JID = j.ToBareJID()
	} else {
		return nil, errors.New("item 'jid' attribute is required")
	}
	ri.Name = elem.Attributes().Get("name")

	subscription := elem.Attributes().Get("subscription")
	switch subscription {
	case "":
		ri.Subscription = SubscriptionNone
	case SubscriptionBoth, SubscriptionFrom, SubscriptionTo, SubscriptionNone, SubscriptionRemove:
		ri.Subscription = subscription
	default:
		return nil, fmt.Errorf("unrecognized 'subscription' enum type: %s", subscription)
	}
	ask := elem.Attributes().Get("ask")
	if len(ask) > 0 {
		if ask != "subscribe" {
			return nil, fmt.Errorf("unrecognized 'ask' enum type: %s", ask)
		}
		ri.Ask = true
	}
	for _, group := range elem.Elements().Children("group") {
		if group.Attributes().Count() > 0 {
			return nil, errors.New("group element must not contain any attribute")
		}
		if len(group.Text()) > 0 && !hasGroup(ri.Groups, group.Text()) {
			ri.Groups = append(ri.Groups, group.Text())
		}
	}
	return ri, nil
}

// Element returns a roster item XML element representation.
func (ri *Item) Element() xmpp.XElement {
	item := xmpp.NewElementName("item")
	item.SetAttribute("jid", ri.JID.ToBareJID().String())
	if len(ri.Name) > 0 {
		item.SetAttribute("name", ri.Name)
	}
	if len(ri.Subscription) > 0 {
		item.SetAttribute("subscription", ri.Subscription)
	}
	if ri.Ask {
		item.SetAttribute("ask", "subscribe")
	}
	for _, group := range ri.Groups {
		item.AppendElement(xmpp.NewElementName("group").SetText(group))
	}
	return item
}

func hasGroup(groups []string, name string) bool {
	for _, g := range groups {
		if g == name {
			return true
		}
	}
	return false
}

func (ri *Item) clone() *Item {
	cp := *ri
	cp.Groups = append([]string(nil), ri.Groups...)
	return &cp
}
