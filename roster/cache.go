/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package roster

import (
	"sort"
	"sync"

	"github.com/parley-im/parley/log"
	"github.com/parley-im/parley/xmpp"
	"github.com/parley-im/parley/xmpp/jid"
)

// DefaultGroup names the group of contacts that declare none.
const DefaultGroup = "none"

// maxEarlyPresences bounds the presences kept while the roster is not loaded.
const maxEarlyPresences = 1024

// Resource represents the presence announced by one connected resource of a contact.
type Resource struct {
	Name     string
	Show     xmpp.ShowState
	Status   string
	Priority int8
}

// Entry represents a contact along with its online resources.
type Entry struct {
	Item
	Resources map[string]Resource
}

// IsOnline tells whether the contact has any available resource.
func (e *Entry) IsOnline() bool {
	return len(e.Resources) > 0
}

// Group represents a roster group and its contacts ordered by address.
type Group struct {
	Name    string
	Entries []Entry
}

type entry struct {
	item      *Item
	resources map[string]Resource
}

// Cache is a process local mirror of the account roster and contact presences.
type Cache struct {
	mu     sync.RWMutex
	owner  *jid.JID
	ver    string
	items  map[string]*entry
	loaded bool

	// presences received before the first roster result, by full address
	early map[string]*xmpp.Presence
}

// NewCache returns an empty roster cache.
func NewCache() *Cache {
	return &Cache{
		items: make(map[string]*entry),
		early: make(map[string]*xmpp.Presence),
	}
}

// SetOwner sets the account the roster belongs to.
// Roster pushes sent by any other entity are ignored.
func (c *Cache) SetOwner(owner *jid.JID) {
	c.mu.Lock()
	c.owner = owner
	c.mu.Unlock()
}

// Version returns the last roster version announced by the server.
func (c *Cache) Version() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ver
}

// Apply updates the cache from a roster result, roster push or presence stanza.
// It returns true if the cache was modified.
func (c *Cache) Apply(stanza xmpp.Stanza) bool {
	switch st := stanza.(type) {
	case *xmpp.IQ:
		return c.applyIQ(st)
	case *xmpp.Presence:
		return c.applyPresence(st)
	}
	return false
}

func (c *Cache) applyIQ(iq *xmpp.IQ) bool {
	q := iq.Elements().ChildNamespace("query", Namespace)
	if q == nil {
		return false
	}
	items := make([]*Item, 0, q.Elements().Count())
	for _, el := range q.Elements().Children("item") {
		it, err := NewItem(el)
		if err != nil {
			log.Warnf("roster: discarding invalid item: %v", err)
			continue
		}
		items = append(items, it)
	}
	ver := q.Attributes().Get("ver")

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case iq.IsResult():
		prev := c.items
		c.items = make(map[string]*entry, len(items))
		for _, it := range items {
			if it.Subscription == SubscriptionRemove {
				continue
			}
			e := &entry{item: it, resources: make(map[string]Resource)}
			if old, ok := prev[it.JID.String()]; ok {
				e.resources = old.resources
			}
			c.items[it.JID.String()] = e
		}
		c.ver = ver
		if !c.loaded {
			c.loaded = true
			c.mergeEarly()
		}
		return true

	case iq.IsSet():
		if !c.isTrustedPushSender(iq.FromJID()) {
			log.Warnf("roster: ignoring push from %s", iq.From())
			return false
		}
		for _, it := range items {
			key := it.JID.String()
			if it.Subscription == SubscriptionRemove {
				delete(c.items, key)
				continue
			}
			if e, ok := c.items[key]; ok {
				e.item = it
				continue
			}
			c.items[key] = &entry{item: it, resources: make(map[string]Resource)}
		}
		if len(ver) > 0 {
			c.ver = ver
		}
		return len(items) > 0
	}
	return false
}

// isTrustedPushSender implements RFC 6121 §2.1.6: a push either has no 'from'
// or comes from the account's bare JID.
func (c *Cache) isTrustedPushSender(from *jid.JID) bool {
	if from == nil {
		return true
	}
	if c.owner == nil {
		return false
	}
	return from.IsBare() && from.Matches(c.owner, jid.MatchesBare)
}

// mergeEarly applies the presences that arrived before the roster did.
func (c *Cache) mergeEarly() {
	for _, p := range c.early {
		if e, ok := c.items[p.FromJID().ToBareJID().String()]; ok {
			e.applyPresence(p)
		}
	}
	c.early = make(map[string]*xmpp.Presence)
}

func (c *Cache) applyPresence(p *xmpp.Presence) bool {
	from := p.FromJID()
	if from == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[from.ToBareJID().String()]
	if !ok {
		if !c.loaded {
			c.keepEarly(p)
		}
		return false
	}
	return e.applyPresence(p)
}

// keepEarly remembers the latest presence of a resource until the roster is loaded.
func (c *Cache) keepEarly(p *xmpp.Presence) {
	from := p.FromJID()
	switch {
	case p.IsAvailable():
		if _, ok := c.early[from.String()]; !ok && len(c.early) >= maxEarlyPresences {
			return
		}
		c.early[from.String()] = p

	case p.IsUnavailable(), p.IsError():
		if len(from.Resource()) > 0 {
			delete(c.early, from.String())
			return
		}
		for k, ep := range c.early {
			if ep.FromJID().Matches(from, jid.MatchesBare) {
				delete(c.early, k)
			}
		}
	}
}

func (e *entry) applyPresence(p *xmpp.Presence) bool {
	from := p.FromJID()
	switch {
	case p.IsAvailable():
		e.resources[from.Resource()] = Resource{
			Name:     from.Resource(),
			Show:     p.ShowState(),
			Status:   p.Status(),
			Priority: p.Priority(),
		}
		return true

	case p.IsUnavailable(), p.IsError():
		if len(from.Resource()) == 0 {
			if len(e.resources) == 0 {
				return false
			}
			e.resources = make(map[string]Resource)
			return true
		}
		if _, ok := e.resources[from.Resource()]; !ok {
			return false
		}
		delete(e.resources, from.Resource())
		return true
	}
	return false
}

// Entry returns the cached entry of the contact addressed by j.
func (c *Cache) Entry(j *jid.JID) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[j.ToBareJID().String()]
	if !ok {
		return Entry{}, false
	}
	return e.snapshot(), true
}

// Snapshot returns the roster grouped by group name.
// Groups are ordered by name and contacts within a group by address.
// A contact that declares several groups appears in each one.
func (c *Cache) Snapshot() []Group {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byGroup := make(map[string][]Entry)
	for _, e := range c.items {
		groups := e.item.Groups
		if len(groups) == 0 {
			groups = []string{DefaultGroup}
		}
		snap := e.snapshot()
		for _, g := range groups {
			byGroup[g] = append(byGroup[g], snap)
		}
	}
	res := make([]Group, 0, len(byGroup))
	for name, entries := range byGroup {
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].JID.String() < entries[j].JID.String()
		})
		res = append(res, Group{Name: name, Entries: entries})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

// Reset clears every contact and presence.
// Presences are buffered again until the next roster result.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.items = make(map[string]*entry)
	c.early = make(map[string]*xmpp.Presence)
	c.loaded = false
	c.ver = ""
	c.mu.Unlock()
}

func (e *entry) snapshot() Entry {
	res := make(map[string]Resource, len(e.resources))
	for k, v := range e.resources {
		res[k] = v
	}
	return Entry{Item: *e.item.clone(), Resources: res}
}
