/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package xep0030

import (
	"context"
	"sort"
	"sync"

	"github.com/parley-im/parley/log"
	"github.com/parley-im/parley/module"
	"github.com/parley-im/parley/xmpp"
	"github.com/parley-im/parley/xmpp/jid"
	"github.com/pkg/errors"
)

const (
	discoInfoNamespace  = "http://jabber.org/protocol/disco#info"
	discoItemsNamespace = "http://jabber.org/protocol/disco#items"
)

// Identity represents a disco info identity entity.
type Identity struct {
	Category string
	Type     string
	Name     string
}

// Item represents a disco info item entity.
type Item struct {
	Jid  string
	Name string
	Node string
}

// Info is the result of a disco#info query.
type Info struct {
	Identities []Identity
	Features   []string
}

// HasFeature reports whether feature was advertised.
func (i *Info) HasFeature(feature string) bool {
	for _, f := range i.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// DiscoInfo answers service discovery queries addressed to the client.
type DiscoInfo struct {
	mu       sync.RWMutex
	identity Identity
	features map[string]struct{}
}

// New returns a disco info IQ handler module advertising identity.
func New(identity Identity) *DiscoInfo {
	di := &DiscoInfo{
		identity: identity,
		features: make(map[string]struct{}),
	}
	di.RegisterFeature(discoInfoNamespace)
	return di
}

// RegisterFeature adds a feature to the advertised set.
func (di *DiscoInfo) RegisterFeature(namespace string) {
	di.mu.Lock()
	di.features[namespace] = struct{}{}
	di.mu.Unlock()
}

// Features returns the advertised features in lexicographic order.
func (di *DiscoInfo) Features() []string {
	di.mu.RLock()
	defer di.mu.RUnlock()
	features := make([]string, 0, len(di.features))
	for f := range di.features {
		features = append(features, f)
	}
	sort.Strings(features)
	return features
}

// AssociatedNamespaces returns namespaces associated
// with disco info module.
func (di *DiscoInfo) AssociatedNamespaces() []string {
	return []string{discoInfoNamespace, discoItemsNamespace}
}

// MatchesIQ returns whether or not an IQ should be
// processed by the disco info module.
func (di *DiscoInfo) MatchesIQ(iq *xmpp.IQ) bool {
	q := iq.Elements().Child("query")
	if q == nil {
		return false
	}
	return iq.IsGet() && (q.Namespace() == discoInfoNamespace || q.Namespace() == discoItemsNamespace)
}

// ProcessIQ processes a disco info IQ taking according actions
// over the associated stream.
func (di *DiscoInfo) ProcessIQ(ctx context.Context, iq *xmpp.IQ, stm module.Stream) error {
	q := iq.Elements().Child("query")
	if node := q.Attributes().Get("node"); len(node) > 0 {
		return module.ReplyError(ctx, stm, iq, xmpp.ErrItemNotFound)
	}
	log.Debugf("answering %s query from %s", q.Namespace(), iq.From())

	result := iq.ResultIQ()
	switch q.Namespace() {
	case discoInfoNamespace:
		result.AppendElement(di.infoQuery())
	case discoItemsNamespace:
		// a client exposes no items
		result.AppendElement(xmpp.NewElementNamespace("query", discoItemsNamespace))
	}
	return stm.Send(ctx, result)
}

func (di *DiscoInfo) infoQuery() *xmpp.Element {
	query := xmpp.NewElementNamespace("query", discoInfoNamespace)

	identityEl := xmpp.NewElementName("identity")
	identityEl.SetAttribute("category", di.identity.Category)
	if len(di.identity.Type) > 0 {
		identityEl.SetAttribute("type", di.identity.Type)
	}
	if len(di.identity.Name) > 0 {
		identityEl.SetAttribute("name", di.identity.Name)
	}
	query.AppendElement(identityEl)

	for _, feature := range di.Features() {
		featureEl := xmpp.NewElementName("feature")
		featureEl.SetAttribute("var", feature)
		query.AppendElement(featureEl)
	}
	return query
}

// QueryInfo requests the identities and features of the entity at to.
func QueryInfo(ctx context.Context, stm module.Stream, to *jid.JID, node string) (*Info, error) {
	iq := xmpp.NewIQType("", xmpp.GetType)
	iq.SetToJID(to)
	q := xmpp.NewElementNamespace("query", discoInfoNamespace)
	if len(node) > 0 {
		q.SetAttribute("node", node)
	}
	iq.AppendElement(q)

	reply, err := stm.SendIQ(ctx, iq)
	if err != nil {
		return nil, err
	}
	if err := module.ResultError(reply); err != nil {
		return nil, err
	}
	rq := reply.Elements().ChildNamespace("query", discoInfoNamespace)
	if rq == nil {
		return nil, errors.New("xep0030: missing disco#info query in result")
	}
	info := &Info{}
	for _, el := range rq.Elements().All() {
		switch el.Name() {
		case "identity":
			info.Identities = append(info.Identities, Identity{
				Category: el.Attributes().Get("category"),
				Type:     el.Attributes().Get("type"),
				Name:     el.Attributes().Get("name"),
			})
		case "feature":
			info.Features = append(info.Features, el.Attributes().Get("var"))
		}
	}
	return info, nil
}

// QueryItems requests the items associated to the entity at to.
func QueryItems(ctx context.Context, stm module.Stream, to *jid.JID) ([]Item, error) {
	iq := xmpp.NewIQType("", xmpp.GetType)
	iq.SetToJID(to)
	iq.AppendElement(xmpp.NewElementNamespace("query", discoItemsNamespace))

	reply, err := stm.SendIQ(ctx, iq)
	if err != nil {
		return nil, err
	}
	if err := module.ResultError(reply); err != nil {
		return nil, err
	}
	var items []Item
	if rq := reply.Elements().ChildNamespace("query", discoItemsNamespace); rq != nil {
		for _, el := range rq.Elements().Children("item") {
			items = append(items, Item{
				Jid:  el.Attributes().Get("jid"),
				Name: el.Attributes().Get("name"),
				Node: el.Attributes().Get("node"),
			})
		}
	}
	return items, nil
}
