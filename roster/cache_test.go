/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package roster

import (
	"testing"

	"github.com/parley-im/parley/codec"
	"github.com/parley-im/parley/xmpp"
	"github.com/parley-im/parley/xmpp/jid"
	"github.com/stretchr/testify/require"
)

func parseStanza(t *testing.T, s string) xmpp.Stanza {
	elem, err := codec.Parse([]byte(s))
	require.Nil(t, err)
	st, err := xmpp.NewStanzaFromElement(elem)
	require.Nil(t, err)
	return st
}

const rosterResult = `<iq type="result" id="r1" to="romeo@montague.lit/orchard">
<query xmlns="jabber:iq:roster" ver="ver7">
  <item jid="juliet@capulet.lit" name="Juliet" subscription="both"><group>Lovers</group><group>Capulets</group></item>
  <item jid="nurse@capulet.lit" subscription="to"><group>Capulets</group></item>
  <item jid="benvolio@montague.lit" subscription="from" ask="subscribe"/>
</query></iq>`

func newLoadedCache(t *testing.T) *Cache {
	c := NewCache()
	c.SetOwner(jid.MustParse("romeo@montague.lit/orchard"))
	require.True(t, c.Apply(parseStanza(t, rosterResult)))
	return c
}

func contactCount(c *Cache) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func TestCacheRosterResult(t *testing.T) {
	c := newLoadedCache(t)
	require.Equal(t, 3, contactCount(c))
	require.Equal(t, "ver7", c.Version())

	groups := c.Snapshot()
	require.Len(t, groups, 3)
	require.Equal(t, "Capulets", groups[0].Name)
	require.Len(t, groups[0].Entries, 2)
	require.Equal(t, "juliet@capulet.lit", groups[0].Entries[0].JID.String())
	require.Equal(t, "nurse@capulet.lit", groups[0].Entries[1].JID.String())
	require.Equal(t, "Lovers", groups[1].Name)
	require.Equal(t, DefaultGroup, groups[2].Name)
	require.Equal(t, "benvolio@montague.lit", groups[2].Entries[0].JID.String())
	require.True(t, groups[2].Entries[0].Ask)
	require.Equal(t, SubscriptionFrom, groups[2].Entries[0].Subscription)
}

func TestCachePresenceResources(t *testing.T) {
	c := newLoadedCache(t)

	require.True(t, c.Apply(parseStanza(t, `<presence from="juliet@capulet.lit/balcony"><show>away</show><status>brb</status><priority>3</priority></presence>`)))
	require.True(t, c.Apply(parseStanza(t, `<presence from="juliet@capulet.lit/chamber"/>`)))

	e, ok := c.Entry(jid.MustParse("juliet@capulet.lit"))
	require.True(t, ok)
	require.True(t, e.IsOnline())
	require.Len(t, e.Resources, 2)
	require.Equal(t, xmpp.AwayShowState, e.Resources["balcony"].Show)
	require.Equal(t, "brb", e.Resources["balcony"].Status)
	require.Equal(t, int8(3), e.Resources["balcony"].Priority)

	// the snapshot reflects the new resource in every group
	for _, g := range c.Snapshot() {
		for _, en := range g.Entries {
			if en.JID.String() == "juliet@capulet.lit" {
				require.Contains(t, en.Resources, "chamber")
			}
		}
	}

	require.True(t, c.Apply(parseStanza(t, `<presence from="juliet@capulet.lit/balcony" type="unavailable"/>`)))
	e, _ = c.Entry(jid.MustParse("juliet@capulet.lit"))
	require.Len(t, e.Resources, 1)
	require.NotContains(t, e.Resources, "balcony")

	// unknown resource going offline changes nothing
	require.False(t, c.Apply(parseStanza(t, `<presence from="juliet@capulet.lit/garden" type="unavailable"/>`)))

	// snapshots are detached copies
	e.Resources["fake"] = Resource{}
	e2, _ := c.Entry(jid.MustParse("juliet@capulet.lit"))
	require.NotContains(t, e2.Resources, "fake")
}

func TestCachePresenceUnknownContact(t *testing.T) {
	c := newLoadedCache(t)
	require.False(t, c.Apply(parseStanza(t, `<presence from="tybalt@capulet.lit/sword"/>`)))
	_, ok := c.Entry(jid.MustParse("tybalt@capulet.lit"))
	require.False(t, ok)

	require.False(t, c.Apply(parseStanza(t, `<presence from="juliet@capulet.lit" type="subscribe"/>`)))
	require.False(t, c.Apply(parseStanza(t, `<presence/>`)))
}

func TestCachePresenceBeforeRoster(t *testing.T) {
	c := NewCache()
	c.SetOwner(jid.MustParse("romeo@montague.lit/orchard"))

	// presences usually arrive before the roster result does
	require.False(t, c.Apply(parseStanza(t, `<presence from="juliet@capulet.lit/balcony"><show>away</show></presence>`)))
	require.False(t, c.Apply(parseStanza(t, `<presence from="nurse@capulet.lit/kitchen"/>`)))
	require.False(t, c.Apply(parseStanza(t, `<presence from="nurse@capulet.lit/kitchen" type="unavailable"/>`)))
	require.False(t, c.Apply(parseStanza(t, `<presence from="tybalt@capulet.lit/sword"/>`)))

	require.True(t, c.Apply(parseStanza(t, rosterResult)))

	e, ok := c.Entry(jid.MustParse("juliet@capulet.lit"))
	require.True(t, ok)
	require.Contains(t, e.Resources, "balcony")
	require.Equal(t, xmpp.AwayShowState, e.Resources["balcony"].Show)

	e, _ = c.Entry(jid.MustParse("nurse@capulet.lit"))
	require.False(t, e.IsOnline())

	_, ok = c.Entry(jid.MustParse("tybalt@capulet.lit"))
	require.False(t, ok)

	// once loaded, presences from strangers are dropped
	require.False(t, c.Apply(parseStanza(t, `<presence from="mercutio@verona.lit/street"/>`)))
	require.True(t, c.Apply(parseStanza(t, `<iq type="set" id="p1"><query xmlns="jabber:iq:roster"><item jid="mercutio@verona.lit"/></query></iq>`)))
	e, _ = c.Entry(jid.MustParse("mercutio@verona.lit"))
	require.False(t, e.IsOnline())
}

func TestCacheRosterPush(t *testing.T) {
	c := newLoadedCache(t)
	require.True(t, c.Apply(parseStanza(t, `<presence from="nurse@capulet.lit/kitchen"/>`)))

	// add a new contact
	require.True(t, c.Apply(parseStanza(t, `<iq type="set" id="p1"><query xmlns="jabber:iq:roster" ver="ver8"><item jid="mercutio@verona.lit" subscription="none"/></query></iq>`)))
	require.Equal(t, 4, contactCount(c))
	require.Equal(t, "ver8", c.Version())

	// update keeps presence
	require.True(t, c.Apply(parseStanza(t, `<iq type="set" id="p2" from="romeo@montague.lit"><query xmlns="jabber:iq:roster"><item jid="nurse@capulet.lit" name="Nurse" subscription="both"/></query></iq>`)))
	e, _ := c.Entry(jid.MustParse("nurse@capulet.lit"))
	require.Equal(t, "Nurse", e.Name)
	require.Equal(t, SubscriptionBoth, e.Subscription)
	require.Contains(t, e.Resources, "kitchen")
	require.Empty(t, e.Groups)

	// removal
	require.True(t, c.Apply(parseStanza(t, `<iq type="set" id="p3"><query xmlns="jabber:iq:roster"><item jid="benvolio@montague.lit" subscription="remove"/></query></iq>`)))
	_, ok := c.Entry(jid.MustParse("benvolio@montague.lit"))
	require.False(t, ok)
	require.Equal(t, "ver8", c.Version())
}

func TestCacheRosterPushFromForeignEntity(t *testing.T) {
	c := newLoadedCache(t)
	require.False(t, c.Apply(parseStanza(t, `<iq type="set" id="evil" from="tybalt@capulet.lit"><query xmlns="jabber:iq:roster"><item jid="benvolio@montague.lit" subscription="remove"/></query></iq>`)))
	require.False(t, c.Apply(parseStanza(t, `<iq type="set" id="evil2" from="romeo@montague.lit/other"><query xmlns="jabber:iq:roster"><item jid="benvolio@montague.lit" subscription="remove"/></query></iq>`)))
	require.Equal(t, 3, contactCount(c))
}

func TestCacheResultReplacesRoster(t *testing.T) {
	c := newLoadedCache(t)
	require.True(t, c.Apply(parseStanza(t, `<presence from="juliet@capulet.lit/balcony"/>`)))

	require.True(t, c.Apply(parseStanza(t, `<iq type="result" id="r2"><query xmlns="jabber:iq:roster" ver="ver9"><item jid="juliet@capulet.lit" subscription="both"/></query></iq>`)))
	require.Equal(t, 1, contactCount(c))
	e, ok := c.Entry(jid.MustParse("juliet@capulet.lit/anything"))
	require.True(t, ok)
	require.Contains(t, e.Resources, "balcony")
	require.Equal(t, []Group{{Name: DefaultGroup, Entries: []Entry{e}}}, c.Snapshot())

	// an empty result means the cached roster is current
	require.False(t, c.Apply(parseStanza(t, `<iq type="result" id="r3"/>`)))
	require.Equal(t, 1, contactCount(c))

	c.Reset()
	require.Equal(t, 0, contactCount(c))
	require.Empty(t, c.Snapshot())
}

func TestItem(t *testing.T) {
	elem, err := codec.Parse([]byte(`<item jid="Juliet@Capulet.lit/balcony" name="J" subscription="to" ask="subscribe"><group>A</group><group>B</group></item>`))
	require.Nil(t, err)
	it, err := NewItem(elem)
	require.Nil(t, err)
	require.Equal(t, "juliet@capulet.lit", it.JID.String())
	require.Equal(t, `<item jid="juliet@capulet.lit" name="J" subscription="to" ask="subscribe"><group>A</group><group>B</group></item>`, it.Element().String())

	// repeated groups are listed once
	elem, err = codec.Parse([]byte(`<item jid="juliet@capulet.lit"><group>A</group><group>A</group><group>B</group></item>`))
	require.Nil(t, err)
	it, err = NewItem(elem)
	require.Nil(t, err)
	require.Equal(t, []string{"A", "B"}, it.Groups)

	c := NewCache()
	require.True(t, c.Apply(parseStanza(t, `<iq type="result" id="r1"><query xmlns="jabber:iq:roster">`+
		`<item jid="juliet@capulet.lit"><group>Lovers</group><group>Lovers</group></item></query></iq>`)))
	groups := c.Snapshot()
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Entries, 1)

	for _, bad := range []string{
		`<entry jid="a@b.lit"/>`,
		`<item/>`,
		`<item jid="a@b.lit" subscription="maybe"/>`,
		`<item jid="a@b.lit" ask="unsubscribe"/>`,
		`<item jid="a@b.lit"><group type="x">A</group></item>`,
	} {
		elem, err := codec.Parse([]byte(bad))
		require.Nil(t, err)
		_, err = NewItem(elem)
		require.NotNil(t, err, bad)
	}
}

func TestRequests(t *testing.T) {
	get := NewGetRequest("ver7")
	require.True(t, get.IsGet())
	require.Equal(t, "ver7", get.Payload().Attributes().Get("ver"))
	require.Equal(t, Namespace, get.Payload().Namespace())

	set := NewSetRequest(&Item{JID: jid.MustParse("juliet@capulet.lit/balcony"), Name: "Juliet", Subscription: SubscriptionBoth, Groups: []string{"Lovers"}})
	require.True(t, set.IsSet())
	require.Equal(t, `<item jid="juliet@capulet.lit" name="Juliet"><group>Lovers</group></item>`, set.Payload().Elements().All()[0].String())

	rm := NewRemoveRequest(jid.MustParse("juliet@capulet.lit"))
	require.Equal(t, `<item jid="juliet@capulet.lit" subscription="remove"/>`, rm.Payload().Elements().All()[0].String())
	require.NotEqual(t, set.ID(), rm.ID())
}
