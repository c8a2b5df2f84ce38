/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package client

import (
	"context"

	"github.com/google/uuid"
	"github.com/parley-im/parley/archive"
	"github.com/parley-im/parley/dispatcher"
	"github.com/parley-im/parley/log"
	"github.com/parley-im/parley/module"
	"github.com/parley-im/parley/module/xep0030"
	"github.com/parley-im/parley/module/xep0045"
	"github.com/parley-im/parley/module/xep0092"
	"github.com/parley-im/parley/module/xep0199"
	"github.com/parley-im/parley/roster"
	"github.com/parley-im/parley/session"
	"github.com/parley-im/parley/transport"
	"github.com/parley-im/parley/version"
	"github.com/parley-im/parley/xmpp"
	"github.com/parley-im/parley/xmpp/jid"
	"github.com/pkg/errors"
)

// Client is the console facing XMPP client.
// It owns one session and the components fed by it.
type Client struct {
	cfg  Config
	disp *dispatcher.Dispatcher

	roster *roster.Cache
	muc    *xep0045.MUC
	disco  *xep0030.DiscoInfo
	mods   *module.Modules

	sess *session.Session

	eventsCh chan Event
	doneCh   chan struct{}
}

// Connect dials the server, negotiates a session and performs the session
// start sequence: initial presence broadcast followed by roster retrieval.
func Connect(ctx context.Context, cfg *Config) (*Client, error) {
	c := newClient(cfg)

	dial := c.cfg.Dialer
	if dial == nil {
		dial = transport.Dial
	}
	dialCfg := c.cfg.Dial
	if len(dialCfg.Domain) == 0 {
		dialCfg.Domain = c.cfg.JID.Domain()
	}
	tr, err := dial(ctx, &dialCfg)
	if err != nil {
		return nil, err
	}
	sess, err := session.New(tr, &session.Config{
		JID:            c.cfg.JID,
		Password:       c.cfg.Password,
		TLSConfig:      c.cfg.TLSConfig,
		AllowInsecure:  c.cfg.AllowInsecure,
		RequestTimeout: c.cfg.RequestTimeout,
		KeepAlive:      c.cfg.KeepAlive,
		SendRate:       c.cfg.SendRate,
		MaxStanzaSize:  c.cfg.MaxStanzaSize,
		Dispatcher:     c.disp,
		OnStateChange:  c.cfg.OnStateChange,
	})
	if err != nil {
		_ = tr.Close()
		return nil, err
	}
	c.sess = sess
	if err := sess.Start(ctx); err != nil {
		return nil, err
	}
	go c.watch()

	log.Infof("connected as %s", sess.JID())

	if err := c.SendPresence(ctx, xmpp.AvailableShowState, ""); err != nil {
		return nil, c.abortStart(err)
	}
	if _, err := c.FetchRoster(ctx); err != nil {
		return nil, c.abortStart(err)
	}
	return c, nil
}

func newClient(cfg *Config) *Client {
	c := &Client{
		cfg:    *cfg,
		disp:   dispatcher.New(),
		roster: roster.NewCache(),
		muc:    xep0045.New(),
		doneCh: make(chan struct{}),
	}
	if c.cfg.EventBuffer <= 0 {
		c.cfg.EventBuffer = defaultEventBuffer
	}
	c.eventsCh = make(chan Event, c.cfg.EventBuffer)
	c.roster.SetOwner(c.cfg.JID.ToBareJID())

	c.disco = xep0030.New(xep0030.Identity{Category: "client", Type: "console", Name: version.ApplicationName})
	for _, ns := range c.muc.AssociatedNamespaces() {
		c.disco.RegisterFeature(ns)
	}
	c.muc.Register(c.disp)
	c.registerHandlers()
	c.mods = module.New(c.disp, c, c.disco, c.disco, xep0092.New(nil), xep0199.New())
	return c
}

func (c *Client) abortStart(err error) error {
	log.Warnf("session start failed: %v", err)
	_ = c.sess.Close(context.Background())
	<-c.doneCh
	return err
}

// JID returns the bound session address.
func (c *Client) JID() *jid.JID {
	if j := c.sess.JID(); j != nil {
		return j
	}
	return c.cfg.JID
}

// State returns the current session state.
func (c *Client) State() session.State {
	return c.sess.State()
}

// Features returns the stream features negotiated by the session.
func (c *Client) Features() []string {
	return c.sess.Features()
}

// Send writes a stanza to the server.
func (c *Client) Send(ctx context.Context, stanza xmpp.Stanza) error {
	return c.sess.Send(ctx, stanza)
}

// SendIQ sends an iq request and waits for its reply.
func (c *Client) SendIQ(ctx context.Context, iq *xmpp.IQ) (*xmpp.IQ, error) {
	return c.sess.SendIQ(ctx, iq)
}

// Events returns the console event channel.
// It is closed after the DisconnectedEvent.
func (c *Client) Events() <-chan Event {
	return c.eventsCh
}

// Done is closed once the session terminates.
func (c *Client) Done() <-chan struct{} {
	return c.doneCh
}

// Err returns the error that terminated the session, if any.
func (c *Client) Err() error {
	return c.sess.Err()
}

// Handle registers an additional stanza handler.
// Handlers run on the session reading goroutine.
func (c *Client) Handle(kind dispatcher.Kind, match dispatcher.Matcher, h dispatcher.Handler) dispatcher.HandlerID {
	return c.disp.Register(kind, match, h)
}

// Unhandle removes a handler registered with Handle.
func (c *Client) Unhandle(id dispatcher.HandlerID) {
	c.disp.Unregister(id)
}

// SendMessage sends a message of the given kind to a contact.
func (c *Client) SendMessage(ctx context.Context, to *jid.JID, body, kind string) (*xmpp.Message, error) {
	if len(kind) == 0 {
		kind = xmpp.ChatType
	}
	if kind == xmpp.ErrorType || !xmpp.IsMessageType(kind) {
		return nil, errors.Errorf("client: invalid message type: %s", kind)
	}
	msg := xmpp.NewMessage(uuid.New().String(), kind, to, body)
	if err := c.Send(ctx, msg); err != nil {
		return nil, err
	}
	c.store(ctx, msg, archive.Outgoing)
	return msg, nil
}

// SendPresence broadcasts the account availability.
func (c *Client) SendPresence(ctx context.Context, show xmpp.ShowState, status string) error {
	p := xmpp.NewPresence(nil, nil, xmpp.AvailableType)
	if show != xmpp.AvailableShowState {
		p.SetShowState(show)
	}
	if len(status) > 0 {
		p.SetStatus(status)
	}
	return c.Send(ctx, p)
}

// Subscribe asks a contact to share its presence.
// The roster reflects the pending request once the server pushes it.
func (c *Client) Subscribe(ctx context.Context, to *jid.JID) error {
	return c.sendSubscription(ctx, to, xmpp.SubscribeType)
}

// ApproveSubscription allows a contact to see the account presence.
func (c *Client) ApproveSubscription(ctx context.Context, to *jid.JID) error {
	return c.sendSubscription(ctx, to, xmpp.SubscribedType)
}

// DenySubscription refuses or revokes a contact subscription to the account presence.
func (c *Client) DenySubscription(ctx context.Context, to *jid.JID) error {
	return c.sendSubscription(ctx, to, xmpp.UnsubscribedType)
}

// Unsubscribe stops receiving a contact presence.
func (c *Client) Unsubscribe(ctx context.Context, to *jid.JID) error {
	return c.sendSubscription(ctx, to, xmpp.UnsubscribeType)
}

func (c *Client) sendSubscription(ctx context.Context, to *jid.JID, tp string) error {
	return c.Send(ctx, xmpp.NewPresence(nil, to.ToBareJID(), tp))
}

// UpdateContact adds or updates a roster item.
func (c *Client) UpdateContact(ctx context.Context, to *jid.JID, name string, groups []string) error {
	return c.rosterRequest(ctx, roster.NewSetRequest(&roster.Item{JID: to.ToBareJID(), Name: name, Groups: groups}))
}

// RemoveContact deletes a contact from the roster, cancelling subscriptions both ways.
func (c *Client) RemoveContact(ctx context.Context, to *jid.JID) error {
	return c.rosterRequest(ctx, roster.NewRemoveRequest(to.ToBareJID()))
}

func (c *Client) rosterRequest(ctx context.Context, iq *xmpp.IQ) error {
	reply, err := c.SendIQ(ctx, iq)
	if err != nil {
		return err
	}
	return module.ResultError(reply)
}

// FetchRoster retrieves the roster from the server and returns the updated snapshot.
func (c *Client) FetchRoster(ctx context.Context) ([]roster.Group, error) {
	reply, err := c.SendIQ(ctx, roster.NewGetRequest(c.roster.Version()))
	if err != nil {
		return nil, err
	}
	if err := module.ResultError(reply); err != nil {
		return nil, err
	}
	// the result was applied by the reading goroutine before SendIQ returned
	return c.roster.Snapshot(), nil
}

// Roster returns the cached roster without contacting the server.
func (c *Client) Roster() []roster.Group {
	return c.roster.Snapshot()
}

// JoinRoom enters a multi-user chat room using nick.
func (c *Client) JoinRoom(ctx context.Context, room *jid.JID, nick, password string) error {
	occupant, err := room.ToBareJID().WithResource(nick)
	if err != nil {
		return err
	}
	ctx, cancel := c.requestContext(ctx)
	defer cancel()
	return c.muc.Join(ctx, c, occupant, password)
}

// LeaveRoom exits a multi-user chat room.
func (c *Client) LeaveRoom(ctx context.Context, room *jid.JID) error {
	return c.muc.Leave(ctx, c, room, "")
}

// SendGroupMessage sends a message to a joined room.
func (c *Client) SendGroupMessage(ctx context.Context, room *jid.JID, body string) (*xmpp.Message, error) {
	msg, err := c.muc.SendMessage(ctx, c, room, body)
	if err != nil {
		return nil, err
	}
	c.store(ctx, msg, archive.Outgoing)
	return msg, nil
}

// Rooms returns the joined rooms.
func (c *Client) Rooms() []xep0045.Room {
	return c.muc.Rooms()
}

// Occupants returns the participants of a joined room.
func (c *Client) Occupants(room *jid.JID) ([]xep0045.Occupant, error) {
	return c.muc.Occupants(room)
}

// Ping measures the round trip to an entity. A nil address pings the server.
func (c *Client) Ping(ctx context.Context, to *jid.JID) (float64, error) {
	if to == nil {
		to = c.serverJID()
	}
	rtt, err := xep0199.SendPing(ctx, c, to)
	if err != nil {
		return 0, err
	}
	return rtt.Seconds() * 1000, nil
}

// SoftwareVersion queries the software run by an entity. A nil address queries the server.
func (c *Client) SoftwareVersion(ctx context.Context, to *jid.JID) (*xep0092.SoftwareVersion, error) {
	if to == nil {
		to = c.serverJID()
	}
	return xep0092.Query(ctx, c, to)
}

// DiscoverInfo queries the identities and features of an entity. A nil address queries the server.
func (c *Client) DiscoverInfo(ctx context.Context, to *jid.JID) (*xep0030.Info, error) {
	if to == nil {
		to = c.serverJID()
	}
	return xep0030.QueryInfo(ctx, c, to, "")
}

// History returns up to n archived messages exchanged with peer, oldest first.
func (c *Client) History(ctx context.Context, peer *jid.JID, n int) ([]archive.Record, error) {
	if c.cfg.Archive == nil {
		return nil, nil
	}
	return c.cfg.Archive.Fetch(ctx, c.cfg.JID.ToBareJID().String(), peer.ToBareJID().String(), n)
}

// Disconnect announces unavailability and gracefully closes the session.
func (c *Client) Disconnect(ctx context.Context) error {
	if c.sess.State() == session.Established {
		if err := c.sess.Send(ctx, xmpp.NewPresence(nil, nil, xmpp.UnavailableType)); err != nil {
			log.Warnf("unavailable presence not sent: %v", err)
		}
	}
	err := c.sess.Close(ctx)
	select {
	case <-c.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

func (c *Client) serverJID() *jid.JID {
	j, _ := jid.New("", c.JID().Domain(), "", true)
	return j
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || c.cfg.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.RequestTimeout)
}

func (c *Client) watch() {
	<-c.sess.Done()

	c.mods.Shutdown()
	c.muc.Unregister(c.disp)

	err := c.sess.Err()
	if err != nil {
		log.Warnf("session %s terminated: %v", c.sess.ID(), err)
	} else {
		log.Infof("session %s closed", c.sess.ID())
	}
	c.emitLast(Event{Type: DisconnectedEvent, Err: err})
	close(c.eventsCh)
	close(c.doneCh)
}

func (c *Client) store(ctx context.Context, msg *xmpp.Message, dir archive.Direction) {
	if c.cfg.Archive == nil || !msg.IsMessageWithBody() {
		return
	}
	r := archive.NewRecord(c.cfg.JID.ToBareJID().String(), msg, dir)
	if err := c.cfg.Archive.Store(ctx, r); err != nil {
		log.Warnf("message %s not archived: %v", msg.ID(), err)
	}
}
