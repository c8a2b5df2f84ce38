/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package dispatcher

import (
	"github.com/parley-im/parley/xmpp"
)

// Matcher narrows the set of stanzas a handler is invoked for.
type Matcher func(stanza xmpp.Stanza) bool

// MessageType matches messages of any of the given types.
// The absent type is matched by xmpp.NormalType.
func MessageType(types ...string) Matcher {
	return func(stanza xmpp.Stanza) bool {
		tp := stanza.Type()
		if len(tp) == 0 {
			tp = xmpp.NormalType
		}
		return stanza.Name() == xmpp.MessageName && contains(types, tp)
	}
}

// PresenceType matches presences of any of the given types.
func PresenceType(types ...string) Matcher {
	return func(stanza xmpp.Stanza) bool {
		return stanza.Name() == xmpp.PresenceName && contains(types, stanza.Type())
	}
}

// IQNamespace matches iq requests of the given type whose payload belongs to namespace.
func IQNamespace(iqType, namespace string) Matcher {
	return func(stanza xmpp.Stanza) bool {
		iq, ok := stanza.(*xmpp.IQ)
		if !ok || iq.Type() != iqType {
			return false
		}
		p := iq.Payload()
		return p != nil && p.Namespace() == namespace
	}
}

// ChildNamespace matches stanzas carrying a child element named name in namespace.
func ChildNamespace(name, namespace string) Matcher {
	return func(stanza xmpp.Stanza) bool {
		return stanza.Elements().ChildNamespace(name, namespace) != nil
	}
}

// All matches when every matcher does.
func All(matchers ...Matcher) Matcher {
	return func(stanza xmpp.Stanza) bool {
		for _, m := range matchers {
			if !m(stanza) {
				return false
			}
		}
		return true
	}
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
