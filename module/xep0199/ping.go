/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package xep0199

import (
	"context"
	"time"

	"github.com/parley-im/parley/log"
	"github.com/parley-im/parley/module"
	"github.com/parley-im/parley/xmpp"
	"github.com/parley-im/parley/xmpp/jid"
)

const pingNamespace = "urn:xmpp:ping"

// Ping represents a ping server stream module.
type Ping struct{}

// New returns a ping IQ handler module.
func New() *Ping {
	return &Ping{}
}

// AssociatedNamespaces returns namespaces associated
// with ping module.
func (x *Ping) AssociatedNamespaces() []string {
	return []string{pingNamespace}
}

// MatchesIQ returns whether or not an IQ should be
// processed by the ping module.
func (x *Ping) MatchesIQ(iq *xmpp.IQ) bool {
	return iq.Elements().ChildNamespace("ping", pingNamespace) != nil
}

// ProcessIQ processes a ping IQ taking according actions
// over the associated stream.
func (x *Ping) ProcessIQ(ctx context.Context, iq *xmpp.IQ, stm module.Stream) error {
	p := iq.Elements().ChildNamespace("ping", pingNamespace)
	if p.Elements().Count() > 0 || !iq.IsGet() {
		return module.ReplyError(ctx, stm, iq, xmpp.ErrBadRequest)
	}
	log.Infof("received ping... id: %s", iq.ID())
	if err := stm.Send(ctx, iq.ResultIQ()); err != nil {
		return err
	}
	log.Infof("sent pong... id: %s", iq.ID())
	return nil
}

// SendPing pings the entity at to and returns the round trip time.
// An entity answering service-unavailable or feature-not-implemented
// is reachable, so those replies are not reported as errors.
func SendPing(ctx context.Context, stm module.Stream, to *jid.JID) (time.Duration, error) {
	iq := xmpp.NewIQType("", xmpp.GetType)
	iq.SetToJID(to)
	iq.AppendElement(xmpp.NewElementNamespace("ping", pingNamespace))

	start := time.Now()
	reply, err := stm.SendIQ(ctx, iq)
	if err != nil {
		return 0, err
	}
	rtt := time.Since(start)

	if err := module.ResultError(reply); err != nil {
		se, ok := err.(*xmpp.StanzaError)
		if !ok {
			return 0, err
		}
		switch se.Condition() {
		case xmpp.ErrServiceUnavailable.Condition(), xmpp.ErrFeatureNotImplemented.Condition():
			return rtt, nil
		}
		return 0, err
	}
	return rtt, nil
}
