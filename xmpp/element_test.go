/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package xmpp_test

import (
	"testing"

	"github.com/parley-im/parley/xmpp"
	"github.com/stretchr/testify/require"
)

func TestElementEscaping(t *testing.T) {
	e := xmpp.NewElementName("body")
	e.SetAttribute("a", `x"<y`)
	e.SetText("1 < 2 & 3 > 2")
	require.Equal(t, `<body a="x&#34;&lt;y">1 &lt; 2 &amp; 3 &gt; 2</body>`, e.String())
}

func TestElementChildren(t *testing.T) {
	e := xmpp.NewElementNamespace("query", "jabber:iq:roster")
	e.AppendElement(xmpp.NewElementName("item").SetAttribute("jid", "a@b.lit"))
	e.AppendElement(xmpp.NewElementName("item").SetAttribute("jid", "c@d.lit"))
	e.AppendElement(xmpp.NewElementNamespace("x", "jabber:x:data"))

	require.Equal(t, 3, e.Elements().Count())
	require.Len(t, e.Elements().Children("item"), 2)
	require.NotNil(t, e.Elements().ChildNamespace("x", "jabber:x:data"))
	require.Nil(t, e.Elements().ChildNamespace("x", "jabber:x:oob"))

	cp := xmpp.NewElementFromElement(e)
	cp.AppendElement(xmpp.NewElementName("item").SetAttribute("jid", "e@f.lit"))
	require.Equal(t, 3, e.Elements().Count())
	require.Len(t, cp.Elements().Children("item"), 3)
	require.Equal(t, "jabber:iq:roster", cp.Namespace())
}

func TestNewStanzaFromElement(t *testing.T) {
	e := xmpp.NewElementName("message")
	e.SetFrom("juliet@capulet.lit/balcony")
	e.SetType(xmpp.ChatType)
	st, err := xmpp.NewStanzaFromElement(e)
	require.Nil(t, err)
	require.Equal(t, "juliet@capulet.lit/balcony", st.FromJID().String())
	require.Nil(t, st.ToJID())

	_, ok := st.(*xmpp.Message)
	require.True(t, ok)

	e.SetFrom("@bad")
	_, err = xmpp.NewStanzaFromElement(e)
	require.NotNil(t, err)
}

func TestStanzaErrorFromElement(t *testing.T) {
	errEl := xmpp.NewElementName("error").SetAttribute("type", "auth")
	errEl.AppendElement(xmpp.NewElementNamespace("forbidden", xmpp.NamespaceStanzas))
	errEl.AppendElement(xmpp.NewElementNamespace("text", xmpp.NamespaceStanzas).SetText("go away"))

	se := xmpp.NewStanzaErrorFromElement(errEl)
	require.Equal(t, "forbidden", se.Condition())
	require.Equal(t, "auth", se.Type())
	require.Equal(t, "go away", se.Text())
	require.Equal(t, "forbidden (auth): go away", se.Error())

	require.Equal(t, "undefined-condition", xmpp.NewStanzaErrorFromElement(xmpp.NewElementName("error")).Condition())
	require.Nil(t, xmpp.NewStanzaErrorFromElement(nil))
}
