/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package codec

import (
	"errors"
	"testing"

	"github.com/parley-im/parley/xmpp"
	"github.com/parley-im/parley/xmpp/jid"
	"github.com/stretchr/testify/require"
)

const serverStream = `<?xml version='1.0'?>` +
	`<stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams' id='s1' from='capulet.lit' version='1.0' xml:lang='en'>` +
	`<stream:features><starttls xmlns='urn:ietf:params:xml:ns:xmpp-tls'><required/></starttls></stream:features>` +
	"\n " +
	`<message from='juliet@capulet.lit/balcony' to='romeo@montague.lit' type='chat'><body>Wherefore art thou, Romeo? ¿Dónde estás? 😘</body></message>` +
	`<iq type='result' id='r1'><query xmlns='jabber:iq:roster' ver='v2'>` + "\n  " +
	`<item jid='nurse@capulet.lit' name='Nurse &amp; Co' subscription='both'><group>Servants</group></item>` + "\n" +
	`</query></iq>` +
	`<presence/>` +
	`</stream:stream>`

func drain(t *testing.T, c *Codec) ([]string, error) {
	var out []string
	for {
		elem, err := c.Next()
		if err != nil {
			return out, err
		}
		if elem == nil {
			return out, nil
		}
		out = append(out, elem.String())
	}
}

func TestCodecSingleChunk(t *testing.T) {
	c := New(SocketStream, 0)
	c.Feed([]byte(serverStream))
	elems, err := drain(t, c)
	require.Equal(t, ErrStreamClosedByPeer, err)
	require.Len(t, elems, 5)

	require.Equal(t, `<stream:stream xmlns="jabber:client" xmlns:stream="http://etherx.jabber.org/streams" id="s1" from="capulet.lit" version="1.0" xml:lang="en"/>`, elems[0])
	require.Equal(t, `<message from="juliet@capulet.lit/balcony" to="romeo@montague.lit" type="chat"><body>Wherefore art thou, Romeo? ¿Dónde estás? 😘</body></message>`, elems[2])
	require.Equal(t, `<iq type="result" id="r1"><query xmlns="jabber:iq:roster" ver="v2"><item jid="nurse@capulet.lit" name="Nurse &amp; Co" subscription="both"><group>Servants</group></item></query></iq>`, elems[3])
	require.Equal(t, `<presence/>`, elems[4])

	// a closed codec keeps reporting the close
	_, err = c.Next()
	require.Equal(t, ErrStreamClosedByPeer, err)
}

func TestCodecChunkBoundaryIndependence(t *testing.T) {
	whole := New(SocketStream, 0)
	whole.Feed([]byte(serverStream))
	expected, err := drain(t, whole)
	require.Equal(t, ErrStreamClosedByPeer, err)

	input := []byte(serverStream)
	for _, size := range []int{1, 2, 3, 5, 7, 13, 64} {
		c := New(SocketStream, 0)
		var got []string
		for off := 0; off < len(input); off += size {
			end := off + size
			if end > len(input) {
				end = len(input)
			}
			c.Feed(input[off:end])
			elems, err := drain(t, c)
			got = append(got, elems...)
			if err != nil {
				require.Equal(t, ErrStreamClosedByPeer, err)
				require.Equal(t, len(input), end)
			}
		}
		require.Equal(t, expected, got, "chunk size %d", size)
	}
}

func TestCodecSplitAtEverySingleOffset(t *testing.T) {
	input := []byte(serverStream)
	whole := New(SocketStream, 0)
	whole.Feed(input)
	expected, _ := drain(t, whole)

	for i := 1; i < len(input); i++ {
		c := New(SocketStream, 0)
		c.Feed(input[:i])
		first, err := drain(t, c)
		require.Nil(t, err, "split at %d", i)
		c.Feed(input[i:])
		second, err := drain(t, c)
		require.Equal(t, ErrStreamClosedByPeer, err)
		require.Equal(t, expected, append(first, second...), "split at %d", i)
	}
}

func TestCodecMalformed(t *testing.T) {
	for _, in := range []string{
		`<message><body>hi</message>`,
		`</presence>`,
		`hello`,
		`<iq><!-- nope --></iq>`,
		`<a>&bogus;</a>`,
	} {
		c := New(FramedStream, 0)
		c.Feed([]byte(in))
		_, err := drain(t, c)
		var malformed *MalformedStanzaError
		require.True(t, errors.As(err, &malformed), "input %q: %v", in, err)

		// the codec does not recover
		c.Feed([]byte(`<presence/>`))
		_, err2 := c.Next()
		require.Equal(t, err, err2)
	}
}

func TestCodecTooLargeStanza(t *testing.T) {
	c := New(SocketStream, 32)
	c.Feed([]byte(`<presence/>`))
	elem, err := c.Next()
	require.Nil(t, err)
	require.NotNil(t, elem)

	c.Feed([]byte(`<message><body>this body will not fit into the limit`))
	_, err = c.Next()
	require.Equal(t, ErrTooLargeStanza, err)
}

func TestCodecWhitespaceKeepAlive(t *testing.T) {
	c := New(SocketStream, 8)
	for i := 0; i < 10; i++ {
		c.Feed([]byte(" "))
		elem, err := c.Next()
		require.Nil(t, err)
		require.Nil(t, elem)
	}
	require.Len(t, c.buf, 0)
}

func TestCodecFramedStream(t *testing.T) {
	c := New(FramedStream, 0)
	c.Feed([]byte(`<open xmlns="urn:ietf:params:xml:ns:xmpp-framing" from="capulet.lit" id="f1" version="1.0"/>`))
	elem, err := c.Next()
	require.Nil(t, err)
	require.True(t, IsStreamHeader(FramedStream, elem))
	require.Equal(t, "f1", elem.ID())

	c.Feed(StreamFooter(FramedStream))
	_, err = c.Next()
	require.Equal(t, ErrStreamClosedByPeer, err)

	c.Reset()
	c.Feed([]byte(`<presence/>`))
	elem, err = c.Next()
	require.Nil(t, err)
	require.Equal(t, "presence", elem.Name())
}

func TestSerializeRoundTrip(t *testing.T) {
	to, err := jid.NewWithString(`obrien@example.com/desk "a" & <b>`, false)
	require.Nil(t, err)
	from, err := jid.NewWithString("alice@example.com/parley", false)
	require.Nil(t, err)

	msg := xmpp.NewMessage("m&1", xmpp.ChatType, to, `1 < 2 && "quotes" 'too' > 0`)
	msg.SetFromJID(from)
	msg.SetSubject("<subject>")

	parsed, err := Parse(Serialize(msg))
	require.Nil(t, err)
	st, err := xmpp.NewStanzaFromElement(parsed)
	require.Nil(t, err)
	rt, ok := st.(*xmpp.Message)
	require.True(t, ok)
	require.Equal(t, msg.ID(), rt.ID())
	require.Equal(t, msg.Type(), rt.Type())
	require.Equal(t, msg.Body(), rt.Body())
	require.Equal(t, msg.Subject(), rt.Subject())
	require.Equal(t, to.String(), rt.ToJID().String())
	require.Equal(t, from.String(), rt.FromJID().String())

	p := xmpp.NewPresence(nil, nil, xmpp.AvailableType)
	p.SetShowState(xmpp.ChatShowState).SetStatus("free & easy")
	p.AppendElement(xmpp.NewElementName("priority").SetText("5"))
	parsed, err = Parse(Serialize(p))
	require.Nil(t, err)
	rp, err := xmpp.NewPresenceFromElement(parsed, nil, nil)
	require.Nil(t, err)
	require.Equal(t, xmpp.ChatShowState, rp.ShowState())
	require.Equal(t, "free & easy", rp.Status())
	require.Equal(t, int8(5), rp.Priority())
}

func TestStreamHeader(t *testing.T) {
	require.Equal(t,
		`<?xml version="1.0"?><stream:stream xmlns="jabber:client" xmlns:stream="http://etherx.jabber.org/streams" to="capulet.lit" version="1.0" xml:lang="en">`,
		string(StreamHeader(SocketStream, "capulet.lit", "en")))
	require.Equal(t,
		`<open xmlns="urn:ietf:params:xml:ns:xmpp-framing" to="capulet.lit" version="1.0"/>`,
		string(StreamHeader(FramedStream, "capulet.lit", "")))
	require.Equal(t, "</stream:stream>", string(StreamFooter(SocketStream)))
}
