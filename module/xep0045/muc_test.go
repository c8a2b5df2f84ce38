/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package xep0045

import (
	"context"
	"testing"
	"time"

	"github.com/parley-im/parley/codec"
	"github.com/parley-im/parley/dispatcher"
	"github.com/parley-im/parley/xmpp"
	"github.com/parley-im/parley/xmpp/jid"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	sentCh chan xmpp.Stanza
}

func newFakeStream() *fakeStream {
	return &fakeStream{sentCh: make(chan xmpp.Stanza, 8)}
}

func (s *fakeStream) JID() *jid.JID { return jid.MustParse("hag66@shakespeare.lit/pda") }

func (s *fakeStream) Send(_ context.Context, stanza xmpp.Stanza) error {
	s.sentCh <- stanza
	return nil
}

func (s *fakeStream) SendIQ(_ context.Context, iq *xmpp.IQ) (*xmpp.IQ, error) {
	return iq.ResultIQ(), nil
}

func (s *fakeStream) next(t *testing.T) xmpp.Stanza {
	select {
	case st := <-s.sentCh:
		return st
	case <-time.After(time.Second):
		require.FailNow(t, "no stanza sent")
		return nil
	}
}

func parseStanza(t *testing.T, b string) xmpp.Stanza {
	elem, err := codec.Parse([]byte(b))
	require.Nil(t, err)
	st, err := xmpp.NewStanzaFromElement(elem)
	require.Nil(t, err)
	return st
}

func TestMUC_JoinAndLeave(t *testing.T) {
	disp := dispatcher.New()
	stm := newFakeStream()
	x := New()
	x.Register(disp)
	defer x.Unregister(disp)

	errCh := make(chan error, 1)
	go func() {
		errCh <- x.Join(context.Background(), stm, jid.MustParse("coven@chat.shakespeare.lit/thirdwitch"), "cauldronburn")
	}()

	p := stm.next(t)
	require.Equal(t, "presence", p.Name())
	require.Equal(t, "coven@chat.shakespeare.lit/thirdwitch", p.To())
	xEl := p.Elements().ChildNamespace("x", mucNamespace)
	require.NotNil(t, xEl)
	require.Equal(t, "cauldronburn", xEl.Elements().Child("password").Text())

	ctx := context.Background()
	require.Equal(t, 1, disp.Dispatch(ctx, parseStanza(t, `<presence from="coven@chat.shakespeare.lit/firstwitch">`+
		`<x xmlns="http://jabber.org/protocol/muc#user"><item affiliation="owner" role="moderator"/></x></presence>`)))
	disp.Dispatch(ctx, parseStanza(t, `<presence from="coven@chat.shakespeare.lit/thirdwitch">`+
		`<x xmlns="http://jabber.org/protocol/muc#user"><item affiliation="member" role="participant" jid="hag66@shakespeare.lit/pda"/>`+
		`<status code="110"/></x></presence>`))
	require.Nil(t, <-errCh)

	rooms := x.Rooms()
	require.Len(t, rooms, 1)
	require.Equal(t, "coven@chat.shakespeare.lit", rooms[0].JID.String())
	require.Equal(t, "thirdwitch", rooms[0].Nick)

	disp.Dispatch(ctx, parseStanza(t, `<message type="groupchat" from="coven@chat.shakespeare.lit/firstwitch"><subject>Fire Burn and Cauldron Bubble!</subject></message>`))
	require.Equal(t, "Fire Burn and Cauldron Bubble!", x.Rooms()[0].Subject)

	occupants, err := x.Occupants(jid.MustParse("coven@chat.shakespeare.lit"))
	require.Nil(t, err)
	require.Len(t, occupants, 2)
	require.Equal(t, "firstwitch", occupants[0].Nick)
	require.Equal(t, "moderator", occupants[0].Role)
	require.Equal(t, "hag66@shakespeare.lit/pda", occupants[1].JID)

	disp.Dispatch(ctx, parseStanza(t, `<presence type="unavailable" from="coven@chat.shakespeare.lit/firstwitch"/>`))
	occupants, _ = x.Occupants(jid.MustParse("coven@chat.shakespeare.lit"))
	require.Len(t, occupants, 1)

	msg, err := x.SendMessage(ctx, stm, jid.MustParse("coven@chat.shakespeare.lit"), "Harpier cries")
	require.Nil(t, err)
	require.Equal(t, xmpp.GroupChatType, msg.Type())
	require.Equal(t, "coven@chat.shakespeare.lit", stm.next(t).To())

	require.Nil(t, x.Leave(ctx, stm, jid.MustParse("coven@chat.shakespeare.lit"), "gone"))
	p = stm.next(t)
	require.Equal(t, xmpp.UnavailableType, p.Type())
	require.Equal(t, "coven@chat.shakespeare.lit/thirdwitch", p.To())
	require.Len(t, x.Rooms(), 0)

	require.Equal(t, ErrNotJoined, x.Leave(ctx, stm, jid.MustParse("coven@chat.shakespeare.lit"), ""))
	_, err = x.SendMessage(ctx, stm, jid.MustParse("coven@chat.shakespeare.lit"), "again")
	require.Equal(t, ErrNotJoined, err)
}

func TestMUC_JoinRejected(t *testing.T) {
	disp := dispatcher.New()
	stm := newFakeStream()
	x := New()
	x.Register(disp)

	errCh := make(chan error, 1)
	go func() {
		errCh <- x.Join(context.Background(), stm, jid.MustParse("coven@chat.shakespeare.lit/thirdwitch"), "")
	}()
	stm.next(t)

	disp.Dispatch(context.Background(), parseStanza(t, `<presence type="error" from="coven@chat.shakespeare.lit/thirdwitch">`+
		`<error type="auth"><not-authorized xmlns="urn:ietf:params:xml:ns:xmpp-stanzas"/></error></presence>`))

	err := <-errCh
	require.NotNil(t, err)
	se, ok := err.(*xmpp.StanzaError)
	require.True(t, ok)
	require.Equal(t, "not-authorized", se.Condition())
	require.False(t, x.IsRoom(jid.MustParse("coven@chat.shakespeare.lit")))
}

func TestMUC_JoinCancelled(t *testing.T) {
	stm := newFakeStream()
	x := New()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := x.Join(ctx, stm, jid.MustParse("coven@chat.shakespeare.lit/thirdwitch"), "")
	require.Equal(t, context.DeadlineExceeded, err)
	require.False(t, x.IsRoom(jid.MustParse("coven@chat.shakespeare.lit")))

	require.NotNil(t, x.Join(context.Background(), stm, jid.MustParse("chat.shakespeare.lit"), ""))
}
