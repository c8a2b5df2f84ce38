/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package module

import (
	"context"

	"github.com/parley-im/parley/dispatcher"
	"github.com/parley-im/parley/log"
	"github.com/parley-im/parley/xmpp"
	"github.com/parley-im/parley/xmpp/jid"
)

// Stream represents the client stream modules operate on.
type Stream interface {
	// JID returns the bound session address.
	JID() *jid.JID

	// Send writes a stanza to the server.
	Send(ctx context.Context, stanza xmpp.Stanza) error

	// SendIQ sends an iq request and waits for its reply.
	SendIQ(ctx context.Context, iq *xmpp.IQ) (*xmpp.IQ, error)
}

// Module represents an XMPP module.
type Module interface {
	// AssociatedNamespaces returns namespaces associated
	// with this module.
	AssociatedNamespaces() []string
}

// IQHandler represents an IQ handler module.
type IQHandler interface {
	Module

	// MatchesIQ returns whether or not an IQ should be
	// processed by this module.
	MatchesIQ(iq *xmpp.IQ) bool

	// ProcessIQ processes a module IQ taking according actions
	// over the associated stream.
	// It runs on the stream reading goroutine, so it must not
	// wait for other incoming stanzas.
	ProcessIQ(ctx context.Context, iq *xmpp.IQ, stm Stream) error
}

// FeatureRegistry collects the features advertised through service discovery.
type FeatureRegistry interface {
	RegisterFeature(namespace string)
}

// Modules wires a set of iq handlers into a dispatcher.
type Modules struct {
	iqHandlers []IQHandler
	ids        []dispatcher.HandlerID
	disp       *dispatcher.Dispatcher
}

// New registers every handler into disp. Replies are written to stm.
// Namespaces associated to each handler are advertised through reg, if any.
func New(disp *dispatcher.Dispatcher, stm Stream, reg FeatureRegistry, handlers ...IQHandler) *Modules {
	m := &Modules{iqHandlers: handlers, disp: disp}
	for _, h := range handlers {
		if reg != nil {
			for _, ns := range h.AssociatedNamespaces() {
				reg.RegisterFeature(ns)
			}
		}
		h := h
		id := disp.Register(dispatcher.IQKind, func(st xmpp.Stanza) bool {
			iq, ok := st.(*xmpp.IQ)
			return ok && iq.IsRequest() && h.MatchesIQ(iq)
		}, func(ctx context.Context, st xmpp.Stanza) error {
			return h.ProcessIQ(ctx, st.(*xmpp.IQ), stm)
		})
		m.ids = append(m.ids, id)
	}
	return m
}

// Shutdown unregisters every module handler.
func (m *Modules) Shutdown() {
	for _, id := range m.ids {
		m.disp.Unregister(id)
	}
	m.ids = nil
	log.Debugf("unregistered %d iq handlers", len(m.iqHandlers))
}

// ReplyError sends an error reply for iq.
func ReplyError(ctx context.Context, stm Stream, iq *xmpp.IQ, stanzaErr *xmpp.StanzaError) error {
	return stm.Send(ctx, iq.ErrorIQ(stanzaErr))
}

// ResultError returns the stanza error carried by an iq reply, or nil
// if the reply is a result.
func ResultError(reply *xmpp.IQ) error {
	if !reply.IsError() {
		return nil
	}
	if se := xmpp.NewStanzaErrorFromElement(reply.Error()); se != nil {
		return se
	}
	return xmpp.ErrUndefinedCondition
}
