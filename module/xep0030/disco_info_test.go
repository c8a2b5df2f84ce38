/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package xep0030

import (
	"context"
	"sync"
	"testing"

	"github.com/parley-im/parley/codec"
	"github.com/parley-im/parley/dispatcher"
	"github.com/parley-im/parley/module"
	"github.com/parley-im/parley/xmpp"
	"github.com/parley-im/parley/xmpp/jid"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	mu     sync.Mutex
	sent   []xmpp.Stanza
	replyF func(iq *xmpp.IQ) *xmpp.IQ
}

func (s *fakeStream) JID() *jid.JID { return jid.MustParse("juliet@capulet.lit/balcony") }

func (s *fakeStream) Send(_ context.Context, stanza xmpp.Stanza) error {
	s.mu.Lock()
	s.sent = append(s.sent, stanza)
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) SendIQ(_ context.Context, iq *xmpp.IQ) (*xmpp.IQ, error) {
	if len(iq.ID()) == 0 {
		iq.SetID("q1")
	}
	return s.replyF(iq), nil
}

func parseIQ(t *testing.T, b string) *xmpp.IQ {
	elem, err := codec.Parse([]byte(b))
	require.Nil(t, err)
	st, err := xmpp.NewStanzaFromElement(elem)
	require.Nil(t, err)
	return st.(*xmpp.IQ)
}

func TestDiscoInfo_Features(t *testing.T) {
	di := New(Identity{Category: "client", Type: "console", Name: "parley"})
	disp := dispatcher.New()
	stm := &fakeStream{}

	module.New(disp, stm, di, di)
	di.RegisterFeature("urn:xmpp:ping")

	iq := parseIQ(t, `<iq type="get" id="d1" from="romeo@montague.lit/orchard" to="juliet@capulet.lit/balcony"><query xmlns="http://jabber.org/protocol/disco#info"/></iq>`)
	require.Equal(t, 1, disp.Dispatch(context.Background(), iq))
	require.Len(t, stm.sent, 1)

	res := stm.sent[0]
	require.Equal(t, xmpp.ResultType, res.Type())
	require.Equal(t, "d1", res.ID())
	require.Equal(t, "romeo@montague.lit/orchard", res.To())

	q := res.Elements().ChildNamespace("query", discoInfoNamespace)
	require.NotNil(t, q)
	identity := q.Elements().Child("identity")
	require.Equal(t, "client", identity.Attributes().Get("category"))
	require.Equal(t, "console", identity.Attributes().Get("type"))

	var features []string
	for _, f := range q.Elements().Children("feature") {
		features = append(features, f.Attributes().Get("var"))
	}
	require.Equal(t, []string{discoInfoNamespace, discoItemsNamespace, "urn:xmpp:ping"}, features)
}

func TestDiscoInfo_ItemsAndNodes(t *testing.T) {
	di := New(Identity{Category: "client", Type: "console"})
	stm := &fakeStream{}

	iq := parseIQ(t, `<iq type="get" id="d2" from="capulet.lit"><query xmlns="http://jabber.org/protocol/disco#items"/></iq>`)
	require.True(t, di.MatchesIQ(iq))
	require.Nil(t, di.ProcessIQ(context.Background(), iq, stm))
	require.Equal(t, xmpp.ResultType, stm.sent[0].Type())
	require.Equal(t, 0, stm.sent[0].Elements().ChildNamespace("query", discoItemsNamespace).Elements().Count())

	iq = parseIQ(t, `<iq type="get" id="d3" from="capulet.lit"><query xmlns="http://jabber.org/protocol/disco#info" node="urn:xmpp:unknown"/></iq>`)
	require.Nil(t, di.ProcessIQ(context.Background(), iq, stm))
	require.Equal(t, xmpp.ErrorType, stm.sent[1].Type())
	require.Equal(t, "item-not-found", xmpp.NewStanzaErrorFromElement(stm.sent[1].Error()).Condition())

	// results and sets are not handled
	require.False(t, di.MatchesIQ(parseIQ(t, `<iq type="set" id="d4"><query xmlns="http://jabber.org/protocol/disco#info"/></iq>`)))
}

func TestQueryInfo(t *testing.T) {
	stm := &fakeStream{replyF: func(iq *xmpp.IQ) *xmpp.IQ {
		return parseIQ(t, `<iq type="result" id="`+iq.ID()+`" from="chat.shakespeare.lit"><query xmlns="http://jabber.org/protocol/disco#info">`+
			`<identity category="conference" type="text" name="Chatrooms"/>`+
			`<feature var="http://jabber.org/protocol/muc"/></query></iq>`)
	}}
	info, err := QueryInfo(context.Background(), stm, jid.MustParse("chat.shakespeare.lit"), "")
	require.Nil(t, err)
	require.Equal(t, []Identity{{Category: "conference", Type: "text", Name: "Chatrooms"}}, info.Identities)
	require.True(t, info.HasFeature("http://jabber.org/protocol/muc"))
	require.False(t, info.HasFeature("urn:xmpp:ping"))

	stm.replyF = func(iq *xmpp.IQ) *xmpp.IQ {
		return parseIQ(t, `<iq type="error" id="`+iq.ID()+`"><error type="cancel"><item-not-found xmlns="urn:ietf:params:xml:ns:xmpp-stanzas"/></error></iq>`)
	}
	_, err = QueryInfo(context.Background(), stm, jid.MustParse("chat.shakespeare.lit"), "")
	require.NotNil(t, err)
	se, ok := err.(*xmpp.StanzaError)
	require.True(t, ok)
	require.Equal(t, "item-not-found", se.Condition())
}

func TestQueryItems(t *testing.T) {
	stm := &fakeStream{replyF: func(iq *xmpp.IQ) *xmpp.IQ {
		return parseIQ(t, `<iq type="result" id="`+iq.ID()+`"><query xmlns="http://jabber.org/protocol/disco#items">`+
			`<item jid="chat.shakespeare.lit" name="Chatrooms"/><item jid="pubsub.shakespeare.lit"/></query></iq>`)
	}}
	items, err := QueryItems(context.Background(), stm, jid.MustParse("shakespeare.lit"))
	require.Nil(t, err)
	require.Equal(t, []Item{{Jid: "chat.shakespeare.lit", Name: "Chatrooms"}, {Jid: "pubsub.shakespeare.lit"}}, items)
}
