/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package roster

import (
	"github.com/google/uuid"
	"github.com/parley-im/parley/xmpp"
	"github.com/parley-im/parley/xmpp/jid"
)

// NewGetRequest builds a roster retrieval request.
// A non empty ver asks the server for changes since that version (RFC 6121 §2.6).
func NewGetRequest(ver string) *xmpp.IQ {
	iq := xmpp.NewIQType(uuid.New().String(), xmpp.GetType)
	q := xmpp.NewElementNamespace("query", Namespace)
	if len(ver) > 0 {
		q.SetAttribute("ver", ver)
	}
	iq.AppendElement(q)
	return iq
}

// NewSetRequest builds a request adding or updating item.
func NewSetRequest(item *Item) *xmpp.IQ {
	it := item.clone()
	it.Subscription = ""
	it.Ask = false

	iq := xmpp.NewIQType(uuid.New().String(), xmpp.SetType)
	q := xmpp.NewElementNamespace("query", Namespace)
	q.AppendElement(it.Element())
	iq.AppendElement(q)
	return iq
}

// NewRemoveRequest builds a request deleting the contact addressed by j.
func NewRemoveRequest(j *jid.JID) *xmpp.IQ {
	iq := xmpp.NewIQType(uuid.New().String(), xmpp.SetType)
	q := xmpp.NewElementNamespace("query", Namespace)
	q.AppendElement((&Item{JID: j, Subscription: SubscriptionRemove}).Element())
	iq.AppendElement(q)
	return iq
}
