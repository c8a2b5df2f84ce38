/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package dispatcher

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/parley-im/parley/log"
	"github.com/parley-im/parley/xmpp"
	"github.com/parley-im/parley/xmpp/jid"
	"github.com/pkg/errors"
)

// Kind identifies the stanza kind a handler is registered for.
type Kind string

const (
	// AnyKind matches every stanza kind.
	AnyKind Kind = ""

	// MessageKind matches <message/> stanzas.
	MessageKind Kind = xmpp.MessageName

	// PresenceKind matches <presence/> stanzas.
	PresenceKind Kind = xmpp.PresenceName

	// IQKind matches <iq/> stanzas.
	IQKind Kind = xmpp.IQName
)

// Handler processes a dispatched stanza.
type Handler func(ctx context.Context, stanza xmpp.Stanza) error

// HandlerID identifies a registered handler.
type HandlerID uint64

// Sender delivers outgoing stanzas.
type Sender interface {
	Send(ctx context.Context, stanza xmpp.Stanza) error
}

type registration struct {
	id    HandlerID
	kind  Kind
	match Matcher
	h     Handler
}

// Reply carries the outcome of a pending iq request.
type Reply struct {
	IQ  *xmpp.IQ
	Err error
}

type pendingRequest struct {
	to    *jid.JID
	reply chan Reply
}

// Dispatcher routes incoming stanzas to registered handlers and
// correlates iq replies with their pending requests.
type Dispatcher struct {
	mu        sync.RWMutex
	handlers  []*registration
	observers []*registration
	lastID    HandlerID
	account   *jid.JID

	pmu     sync.Mutex
	pending map[string]*pendingRequest
}

// New returns an empty dispatcher.
func New() *Dispatcher {
	return &Dispatcher{pending: make(map[string]*pendingRequest)}
}

// SetAccount sets the address replies to requests with no recipient may come from.
func (d *Dispatcher) SetAccount(j *jid.JID) {
	d.mu.Lock()
	d.account = j
	d.mu.Unlock()
}

// Register adds a handler for the given stanza kind.
// A nil matcher matches every stanza of that kind.
// Handlers are invoked in registration order.
func (d *Dispatcher) Register(kind Kind, match Matcher, h Handler) HandlerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastID++
	d.handlers = append(d.handlers, &registration{
		id:    d.lastID,
		kind:  kind,
		match: match,
		h:     h,
	})
	return d.lastID
}

// Observe adds a handler for iq replies correlated with a pending request.
// Observers run on the dispatching goroutine before the waiting request
// is resumed, so state they update is visible to the requester.
func (d *Dispatcher) Observe(match Matcher, h Handler) HandlerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastID++
	d.observers = append(d.observers, &registration{
		id:    d.lastID,
		kind:  IQKind,
		match: match,
		h:     h,
	})
	return d.lastID
}

// Unregister removes a previously registered handler or observer.
func (d *Dispatcher) Unregister(id HandlerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var ok bool
	if d.handlers, ok = without(d.handlers, id); ok {
		return
	}
	d.observers, _ = without(d.observers, id)
}

func without(regs []*registration, id HandlerID) ([]*registration, bool) {
	for i, r := range regs {
		if r.id == id {
			res := make([]*registration, 0, len(regs)-1)
			res = append(res, regs[:i]...)
			return append(res, regs[i+1:]...), true
		}
	}
	return regs, false
}

// Dispatch routes stanza to every matching handler and returns how many were invoked.
// An iq reply correlated with a pending request is consumed by its waiter
// and reaches no handler.
func (d *Dispatcher) Dispatch(ctx context.Context, stanza xmpp.Stanza) int {
	if iq, ok := stanza.(*xmpp.IQ); ok && (iq.IsResult() || iq.IsError()) {
		if d.resolve(ctx, iq) {
			return 0
		}
	}
	d.mu.RLock()
	handlers := d.handlers
	d.mu.RUnlock()

	var count int
	for _, r := range handlers {
		if r.kind != AnyKind && string(r.kind) != stanza.Name() {
			continue
		}
		if r.match != nil && !r.match(stanza) {
			continue
		}
		count++
		d.invoke(ctx, r, stanza)
	}
	return count
}

func (d *Dispatcher) invoke(ctx context.Context, r *registration, stanza xmpp.Stanza) {
	defer func() {
		if rec := recover(); rec != nil {
			stack := make([]byte, 4096)
			n := runtime.Stack(stack, false)
			log.Errorw("handler panicked",
				"handler", r.id, "kind", stanza.Name(), "id", stanza.ID(), "panic", rec, "stack", string(stack[:n]))
		}
	}()
	if err := r.h(ctx, stanza); err != nil {
		log.Errorw("handler failed", "handler", r.id, "kind", stanza.Name(), "id", stanza.ID(), "err", err)
	}
}

// Await registers a pending request for iq and returns the channel its reply
// will be delivered on. The channel receives exactly one value.
func (d *Dispatcher) Await(iq *xmpp.IQ) (<-chan Reply, error) {
	if !iq.IsRequest() {
		return nil, errors.Errorf("dispatcher: iq %s is not a request", iq.ID())
	}
	if len(iq.ID()) == 0 {
		return nil, errors.New("dispatcher: iq request without identifier")
	}
	d.pmu.Lock()
	defer d.pmu.Unlock()
	if _, ok := d.pending[iq.ID()]; ok {
		return nil, &DuplicateRequestError{ID: iq.ID()}
	}
	p := &pendingRequest{to: iq.ToJID(), reply: make(chan Reply, 1)}
	d.pending[iq.ID()] = p
	return p.reply, nil
}

// Resolve delivers an iq result or error to its pending request.
// Returns false if no request is waiting for it.
func (d *Dispatcher) Resolve(iq *xmpp.IQ) bool {
	return d.resolve(context.Background(), iq)
}

func (d *Dispatcher) resolve(ctx context.Context, iq *xmpp.IQ) bool {
	d.pmu.Lock()
	p, ok := d.pending[iq.ID()]
	if !ok || !d.isReplySender(p.to, iq.FromJID()) {
		d.pmu.Unlock()
		return false
	}
	delete(d.pending, iq.ID())
	d.pmu.Unlock()

	d.mu.RLock()
	observers := d.observers
	d.mu.RUnlock()
	for _, r := range observers {
		if r.match == nil || r.match(iq) {
			d.invoke(ctx, r, iq)
		}
	}
	p.reply <- Reply{IQ: iq}
	return true
}

func (d *Dispatcher) isReplySender(to, from *jid.JID) bool {
	d.mu.RLock()
	account := d.account
	d.mu.RUnlock()

	if to != nil {
		if from == nil {
			// the server answers on behalf of the account without stamping it
			return account == nil || to.Matches(account.ToBareJID(), jid.MatchesFull)
		}
		return to.Matches(from, jid.MatchesFull)
	}
	if from == nil || account == nil {
		return true
	}
	return from.Matches(account, jid.MatchesBare) ||
		(from.IsServer() && from.Domain() == account.Domain() && len(from.Resource()) == 0)
}

// forget removes a pending request that will no longer be waited for.
func (d *Dispatcher) forget(id string, ch <-chan Reply) {
	d.pmu.Lock()
	defer d.pmu.Unlock()
	if p, ok := d.pending[id]; ok && (<-chan Reply)(p.reply) == ch {
		delete(d.pending, id)
	}
}

// CancelAll fails every pending request with err.
// Each waiter observes the error once.
func (d *Dispatcher) CancelAll(err error) {
	d.pmu.Lock()
	pending := d.pending
	d.pending = make(map[string]*pendingRequest)
	d.pmu.Unlock()

	for _, p := range pending {
		p.reply <- Reply{Err: err}
	}
}

// Pending returns the number of in-flight requests.
func (d *Dispatcher) Pending() int {
	d.pmu.Lock()
	defer d.pmu.Unlock()
	return len(d.pending)
}

// SendIQ sends an iq request and waits for its reply.
// The returned iq may be of type 'error'. If no reply arrives within
// timeout an *IQTimeoutError is returned.
func (d *Dispatcher) SendIQ(ctx context.Context, sender Sender, iq *xmpp.IQ, timeout time.Duration) (*xmpp.IQ, error) {
	ch, err := d.Await(iq)
	if err != nil {
		return nil, err
	}
	if err := sender.Send(ctx, iq); err != nil {
		d.forget(iq.ID(), ch)
		return nil, err
	}
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		tm := time.NewTimer(timeout)
		defer tm.Stop()
		timeoutCh = tm.C
	}
	select {
	case r := <-ch:
		return r.IQ, r.Err

	case <-timeoutCh:
		d.forget(iq.ID(), ch)
		return nil, &IQTimeoutError{ID: iq.ID(), Timeout: timeout}

	case <-ctx.Done():
		d.forget(iq.ID(), ch)
		return nil, ctx.Err()
	}
}
