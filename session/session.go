/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/parley-im/parley/codec"
	"github.com/parley-im/parley/dispatcher"
	"github.com/parley-im/parley/log"
	"github.com/parley-im/parley/transport"
	"github.com/parley-im/parley/xmpp"
	"github.com/parley-im/parley/xmpp/jid"
	"github.com/parley-im/parley/xmpp/streamerror"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
	"mellium.im/sasl"
)

const (
	defaultRequestTimeout = 15 * time.Second
	defaultMaxStanzaSize  = 256 * 1024
	readBufferSize        = 4096
)

// Config defines a client session configuration.
type Config struct {
	// JID is the account address. A resource part, if present,
	// is requested at binding time.
	JID *jid.JID

	// Password is the account password.
	Password string

	// TLSConfig is used when upgrading the stream with STARTTLS.
	TLSConfig *tls.Config

	// AllowInsecure permits authentication over an unencrypted stream.
	AllowInsecure bool

	// Mechanisms lists SASL mechanisms in preference order.
	Mechanisms []sasl.Mechanism

	// Lang is the stream default language.
	Lang string

	// RequestTimeout bounds the wait for iq replies.
	RequestTimeout time.Duration

	// KeepAlive is the whitespace keepalive period. Zero disables it.
	KeepAlive time.Duration

	// SendRate limits outgoing stanzas per second. Zero means unlimited.
	SendRate float64

	// MaxStanzaSize limits the size of an incoming stanza.
	MaxStanzaSize int

	// Dispatcher receives incoming stanzas once the session is established.
	Dispatcher *dispatcher.Dispatcher

	// OnStateChange is invoked on every state transition.
	OnStateChange func(State)
}

// Session represents a client to server XMPP session.
// A session is created per connection attempt and can not be restarted.
type Session struct {
	id      string
	cfg     Config
	tr      transport.Transport
	mode    codec.ParsingMode
	cd      *codec.Codec
	disp    *dispatcher.Dispatcher
	limiter *rate.Limiter
	readBuf []byte

	// owned by the reading goroutine
	authenticated bool

	stMu  sync.Mutex
	state State

	mu       sync.RWMutex
	jid      *jid.JID
	features []string
	abortErr error
	err      error

	ctx        context.Context
	cancel     context.CancelFunc
	readyCh    chan struct{}
	doneCh     chan struct{}
	finishOnce sync.Once
	started    uint32
}

// Connect negotiates a client session over tr.
// It returns once the session is established, or fails with the error
// that made the negotiation fail. Cancelling ctx aborts the negotiation
// but does not affect an already established session.
func Connect(ctx context.Context, tr transport.Transport, cfg *Config) (*Session, error) {
	s, err := New(tr, cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// New returns a session over tr in the Connecting state.
// Nothing is exchanged with the server until Start is called.
func New(tr transport.Transport, cfg *Config) (*Session, error) {
	if cfg.JID == nil {
		return nil, errors.New("session: account JID is required")
	}
	return newSession(tr, cfg), nil
}

// Start runs the session state machine until the session is established
// or fails. It can only be called once.
func (s *Session) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&s.started, 0, 1) {
		return errAlreadyStarted
	}
	go s.run(ctx)

	select {
	case <-s.readyCh:
		return nil
	case <-s.doneCh:
		if err := s.Err(); err != nil {
			return err
		}
		return ErrSessionClosed
	case <-ctx.Done():
		s.abort(ctx.Err())
		<-s.doneCh
		return ctx.Err()
	}
}

func newSession(tr transport.Transport, cfg *Config) *Session {
	s := &Session{
		id:      nextID(),
		cfg:     *cfg,
		tr:      tr,
		disp:    cfg.Dispatcher,
		readBuf: make([]byte, readBufferSize),
		readyCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	if s.cfg.RequestTimeout <= 0 {
		s.cfg.RequestTimeout = defaultRequestTimeout
	}
	if s.cfg.MaxStanzaSize <= 0 {
		s.cfg.MaxStanzaSize = defaultMaxStanzaSize
	}
	if s.disp == nil {
		s.disp = dispatcher.New()
	}
	if tr.Type() == transport.WebSocket {
		s.mode = codec.FramedStream
	}
	s.cd = codec.New(s.mode, s.cfg.MaxStanzaSize)

	if s.cfg.SendRate > 0 {
		burst := int(s.cfg.SendRate)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(s.cfg.SendRate), burst)
	} else {
		s.limiter = rate.NewLimiter(rate.Inf, 0)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current session state.
func (s *Session) State() State {
	s.stMu.Lock()
	defer s.stMu.Unlock()
	return s.state
}

// JID returns the bound address. It is nil until the resource is bound.
func (s *Session) JID() *jid.JID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jid
}

// Features returns the stream features negotiated so far.
func (s *Session) Features() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.features...)
}

// Dispatcher returns the dispatcher incoming stanzas are routed to.
func (s *Session) Dispatcher() *dispatcher.Dispatcher {
	return s.disp
}

// Ready returns a channel closed once the session is established.
func (s *Session) Ready() <-chan struct{} {
	return s.readyCh
}

// Done returns a channel closed once the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.doneCh
}

// Err returns the error that made the session fail.
// It is nil while the session is alive and after a graceful close.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Send writes a stanza to the server.
func (s *Session) Send(ctx context.Context, stanza xmpp.Stanza) error {
	if st := s.State(); st != Established {
		if st.IsTerminal() {
			if err := s.Err(); err != nil {
				return err
			}
		}
		return ErrNotEstablished
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return s.writeElement(stanza)
}

// SendIQ sends an iq request and waits for the correlated reply.
// An identifier is assigned when the request has none.
// The reply may be of type error.
func (s *Session) SendIQ(ctx context.Context, iq *xmpp.IQ) (*xmpp.IQ, error) {
	if len(iq.ID()) == 0 {
		iq.SetID(uuid.New().String())
	}
	return s.disp.SendIQ(ctx, s, iq, s.cfg.RequestTimeout)
}

// Close gracefully closes the stream and waits for the server to close its side.
// If ctx expires first the transport is closed right away.
func (s *Session) Close(ctx context.Context) error {
	if atomic.CompareAndSwapUint32(&s.started, 0, 1) {
		s.finish(nil)
		return nil
	}
	if s.transition(Established, Disconnecting) {
		if err := s.writeRaw(codec.StreamFooter(s.mode)); err != nil {
			_ = s.tr.Close()
		}
	} else if st := s.State(); !st.IsTerminal() && st != Disconnecting {
		s.abort(ErrSessionClosed)
	}
	select {
	case <-s.doneCh:
		return nil
	case <-ctx.Done():
		_ = s.tr.Close()
		<-s.doneCh
		return ctx.Err()
	}
}

// runs on its own goroutine
func (s *Session) run(ctx context.Context) {
	if err := s.negotiate(ctx); err != nil {
		s.finish(err)
		return
	}
	s.mu.RLock()
	account := s.jid
	s.mu.RUnlock()
	s.disp.SetAccount(account)

	if !s.transition(ResourceBinding, Established) {
		s.finish(nil)
		return
	}
	close(s.readyCh)
	log.Infof("session established (id: %s, jid: %s)", s.id, account)

	if s.cfg.KeepAlive > 0 {
		go s.keepAlive(s.cfg.KeepAlive)
	}
	s.finish(s.loop())
}

func (s *Session) loop() error {
	for {
		elem, err := s.readElement()
		if err != nil {
			if err == codec.ErrStreamClosedByPeer {
				if s.transition(Established, Disconnecting) {
					log.Infof("stream closed by peer (id: %s)", s.id)
					_ = s.writeRaw(codec.StreamFooter(s.mode))
				}
				return nil
			}
			if s.State() == Disconnecting {
				return nil
			}
			return err
		}
		if err := s.handleElement(elem); err != nil {
			return err
		}
	}
}

func (s *Session) handleElement(elem xmpp.XElement) error {
	switch elem.Name() {
	case "stream:error":
		return streamerror.FromElement(elem)
	case xmpp.IQName, xmpp.PresenceName, xmpp.MessageName:
		return s.handleStanza(elem)
	default:
		log.Warnf("ignoring unexpected element: %s (id: %s)", elem.Name(), s.id)
		return nil
	}
}

func (s *Session) handleStanza(elem xmpp.XElement) error {
	stanza, err := xmpp.NewStanzaFromElement(elem)
	if err != nil {
		log.Warnw("discarding invalid stanza", "id", s.id, "err", err)
		return nil
	}
	if s.disp.Dispatch(s.ctx, stanza) > 0 {
		return nil
	}
	if iq, ok := stanza.(*xmpp.IQ); ok && iq.IsRequest() {
		// nobody answers this request
		_ = s.writeElement(iq.ErrorIQ(xmpp.ErrServiceUnavailable))
	}
	return nil
}

func (s *Session) keepAlive(period time.Duration) {
	tc := time.NewTicker(period)
	defer tc.Stop()
	for {
		select {
		case <-tc.C:
			if s.State() != Established {
				return
			}
			if err := s.writeRaw([]byte(" ")); err != nil {
				log.Warnf("keepalive failed (id: %s): %v", s.id, err)
				return
			}
		case <-s.doneCh:
			return
		}
	}
}

// readElement returns the next element received from the server.
func (s *Session) readElement() (xmpp.XElement, error) {
	for {
		elem, err := s.cd.Next()
		if err != nil {
			return nil, err
		}
		if elem != nil {
			log.Debugf("RECV(%s): %s", s.id, elem)
			return elem, nil
		}
		n, err := s.tr.Read(s.readBuf)
		if n > 0 {
			s.cd.Feed(s.readBuf[:n])
			continue
		}
		if err != nil {
			return nil, &ConnectionLostError{Err: err}
		}
	}
}

func (s *Session) writeElement(elem xmpp.XElement) error {
	b := codec.Serialize(elem)
	log.Debugf("SEND(%s): %s", s.id, b)
	return s.write(b)
}

func (s *Session) writeRaw(b []byte) error {
	log.Debugf("SEND(%s): %s", s.id, b)
	return s.write(b)
}

func (s *Session) write(b []byte) error {
	if _, err := s.tr.Write(b); err != nil {
		return &ConnectionLostError{Err: err}
	}
	return nil
}

// abort interrupts a session that is not established yet.
func (s *Session) abort(err error) {
	s.mu.Lock()
	if s.abortErr == nil {
		s.abortErr = err
	}
	s.mu.Unlock()
	_ = s.tr.Close()
}

func (s *Session) finish(err error) {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		if s.abortErr != nil {
			err = s.abortErr
		}
		s.mu.Unlock()

		var cancelErr error
		st := s.State()
		switch {
		case err == nil || err == ErrSessionClosed || st == Disconnecting:
			s.setState(Closed)
			cancelErr = &ConnectionLostError{Err: ErrSessionClosed}
			log.Infof("session closed (id: %s)", s.id)

		default:
			var lostErr *ConnectionLostError
			if st == Established && !errors.As(err, &lostErr) {
				err = &ConnectionLostError{Err: err}
			}
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()

			s.setState(Failed)
			if errors.As(err, &lostErr) {
				cancelErr = err
			} else {
				cancelErr = &ConnectionLostError{Err: err}
			}
			log.Warnf("session failed (id: %s, state: %s): %v", s.id, st, err)
		}
		s.cancel()
		s.disp.CancelAll(cancelErr)
		_ = s.tr.Close()
		close(s.doneCh)
	})
}

func (s *Session) setState(state State) {
	s.stMu.Lock()
	if s.state.IsTerminal() || s.state == state {
		s.stMu.Unlock()
		return
	}
	s.state = state
	s.stMu.Unlock()
	s.notify(state)
}

func (s *Session) transition(from, to State) bool {
	s.stMu.Lock()
	if s.state != from {
		s.stMu.Unlock()
		return false
	}
	s.state = to
	s.stMu.Unlock()
	s.notify(to)
	return true
}

func (s *Session) notify(state State) {
	log.Debugf("session state: %s (id: %s)", state, s.id)
	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(state)
	}
}

func (s *Session) addFeature(name string) {
	s.mu.Lock()
	s.features = append(s.features, name)
	s.mu.Unlock()
}

var sessionCounter uint64

func nextID() string {
	return fmt.Sprintf("c2s:out:%d", atomic.AddUint64(&sessionCounter, 1))
}
