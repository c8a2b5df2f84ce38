/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package xep0045

import (
	"context"
	"sort"
	"sync"

	"github.com/parley-im/parley/dispatcher"
	"github.com/parley-im/parley/log"
	"github.com/parley-im/parley/module"
	"github.com/parley-im/parley/xmpp"
	"github.com/parley-im/parley/xmpp/jid"
	"github.com/pkg/errors"
)

const (
	mucNamespace     = "http://jabber.org/protocol/muc"
	mucUserNamespace = "http://jabber.org/protocol/muc#user"

	selfPresenceCode = "110"
)

// ErrNotJoined is returned when operating on a room the account is not in.
var ErrNotJoined = errors.New("xep0045: room not joined")

// Occupant represents a room participant as seen from the account.
type Occupant struct {
	Nick        string
	JID         string
	Affiliation string
	Role        string
	Show        xmpp.ShowState
	Status      string
}

// Room describes a joined room.
type Room struct {
	JID     *jid.JID
	Nick    string
	Subject string
}

type room struct {
	jid       *jid.JID
	nick      string
	subject   string
	joined    bool
	joinCh    chan error
	occupants map[string]Occupant
}

// MUC keeps track of the multi-user chat rooms the account is in.
type MUC struct {
	mu    sync.RWMutex
	rooms map[string]*room
	ids   []dispatcher.HandlerID
}

// New returns an empty multi-user chat module.
func New() *MUC {
	return &MUC{rooms: make(map[string]*room)}
}

// AssociatedNamespaces returns namespaces associated
// with multi-user chat module.
func (x *MUC) AssociatedNamespaces() []string {
	return []string{mucNamespace}
}

// Register installs room presence and subject handlers into disp.
func (x *MUC) Register(disp *dispatcher.Dispatcher) {
	x.ids = append(x.ids,
		disp.Register(dispatcher.PresenceKind, x.isRoomStanza, x.handlePresence),
		disp.Register(dispatcher.MessageKind, dispatcher.All(
			dispatcher.MessageType(xmpp.GroupChatType),
			x.isRoomStanza,
		), x.handleMessage),
	)
}

// Unregister removes the handlers installed by Register.
func (x *MUC) Unregister(disp *dispatcher.Dispatcher) {
	for _, id := range x.ids {
		disp.Unregister(id)
	}
	x.ids = nil
}

// Join enters the room addressed by occupantJID (room@service/nick) and
// waits until the room reflects the account's own presence.
func (x *MUC) Join(ctx context.Context, stm module.Stream, occupantJID *jid.JID, password string) error {
	if len(occupantJID.Node()) == 0 || len(occupantJID.Resource()) == 0 {
		return errors.Errorf("xep0045: occupant address %s lacks room or nick", occupantJID)
	}
	roomJID := occupantJID.ToBareJID()
	key := roomJID.String()

	r := &room{
		jid:       roomJID,
		nick:      occupantJID.Resource(),
		joinCh:    make(chan error, 1),
		occupants: make(map[string]Occupant),
	}
	x.mu.Lock()
	if _, ok := x.rooms[key]; ok {
		x.mu.Unlock()
		return errors.Errorf("xep0045: already in room %s", key)
	}
	x.rooms[key] = r
	x.mu.Unlock()

	p := xmpp.NewPresence(nil, occupantJID, xmpp.AvailableType)
	xEl := xmpp.NewElementNamespace("x", mucNamespace)
	if len(password) > 0 {
		pwd := xmpp.NewElementName("password")
		pwd.SetText(password)
		xEl.AppendElement(pwd)
	}
	p.AppendElement(xEl)

	if err := stm.Send(ctx, p); err != nil {
		x.forget(key, r)
		return err
	}
	select {
	case err := <-r.joinCh:
		if err != nil {
			x.forget(key, r)
		}
		return err
	case <-ctx.Done():
		x.forget(key, r)
		return ctx.Err()
	}
}

// Leave exits the room identified by roomJID.
func (x *MUC) Leave(ctx context.Context, stm module.Stream, roomJID *jid.JID, status string) error {
	key := roomJID.ToBareJID().String()

	x.mu.Lock()
	r, ok := x.rooms[key]
	if ok {
		delete(x.rooms, key)
	}
	x.mu.Unlock()
	if !ok {
		return ErrNotJoined
	}
	to, err := r.jid.WithResource(r.nick)
	if err != nil {
		return err
	}
	p := xmpp.NewPresence(nil, to, xmpp.UnavailableType)
	if len(status) > 0 {
		p.SetStatus(status)
	}
	return stm.Send(ctx, p)
}

// SendMessage sends a groupchat message to a joined room.
func (x *MUC) SendMessage(ctx context.Context, stm module.Stream, roomJID *jid.JID, body string) (*xmpp.Message, error) {
	bare := roomJID.ToBareJID()
	if !x.isJoined(bare.String()) {
		return nil, ErrNotJoined
	}
	msg := xmpp.NewMessage("", xmpp.GroupChatType, bare, body)
	if err := stm.Send(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Rooms returns the joined rooms sorted by address.
func (x *MUC) Rooms() []Room {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var rooms []Room
	for _, r := range x.rooms {
		if !r.joined {
			continue
		}
		rooms = append(rooms, Room{JID: r.jid, Nick: r.nick, Subject: r.subject})
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].JID.String() < rooms[j].JID.String() })
	return rooms
}

// Occupants returns the current participants of a joined room sorted by nick.
func (x *MUC) Occupants(roomJID *jid.JID) ([]Occupant, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	r, ok := x.rooms[roomJID.ToBareJID().String()]
	if !ok || !r.joined {
		return nil, ErrNotJoined
	}
	occupants := make([]Occupant, 0, len(r.occupants))
	for _, o := range r.occupants {
		occupants = append(occupants, o)
	}
	sort.Slice(occupants, func(i, j int) bool { return occupants[i].Nick < occupants[j].Nick })
	return occupants, nil
}

// IsRoom reports whether addr belongs to a room the account is in or joining.
func (x *MUC) IsRoom(addr *jid.JID) bool {
	if addr == nil {
		return false
	}
	x.mu.RLock()
	_, ok := x.rooms[addr.ToBareJID().String()]
	x.mu.RUnlock()
	return ok
}

func (x *MUC) isRoomStanza(stanza xmpp.Stanza) bool {
	return x.IsRoom(stanza.FromJID())
}

func (x *MUC) isJoined(key string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	r, ok := x.rooms[key]
	return ok && r.joined
}

func (x *MUC) forget(key string, r *room) {
	x.mu.Lock()
	if x.rooms[key] == r {
		delete(x.rooms, key)
	}
	x.mu.Unlock()
}

func (x *MUC) handlePresence(_ context.Context, stanza xmpp.Stanza) error {
	p := stanza.(*xmpp.Presence)
	from := p.FromJID()
	key := from.ToBareJID().String()

	x.mu.Lock()
	defer x.mu.Unlock()

	r, ok := x.rooms[key]
	if !ok {
		return nil
	}
	if p.IsError() {
		se := xmpp.NewStanzaErrorFromElement(p.Error())
		if se == nil {
			se = xmpp.ErrUndefinedCondition
		}
		if !r.joined {
			delete(x.rooms, key)
			r.joinCh <- se
			return nil
		}
		log.Warnf("room %s error: %s", key, se.Condition())
		return nil
	}
	nick := from.Resource()
	if len(nick) == 0 {
		return nil
	}
	mucUser := p.Elements().ChildNamespace("x", mucUserNamespace)
	self := nick == r.nick || hasStatus(mucUser, selfPresenceCode)

	if p.IsUnavailable() {
		delete(r.occupants, nick)
		if self && r.joined {
			log.Infof("left room %s", key)
			delete(x.rooms, key)
		}
		return nil
	}
	occ := Occupant{
		Nick:   nick,
		Show:   p.ShowState(),
		Status: p.Status(),
	}
	if mucUser != nil {
		if item := mucUser.Elements().Child("item"); item != nil {
			occ.JID = item.Attributes().Get("jid")
			occ.Affiliation = item.Attributes().Get("affiliation")
			occ.Role = item.Attributes().Get("role")
		}
	}
	r.occupants[nick] = occ

	if self && !r.joined {
		// the server may rewrite the requested nick
		r.nick = nick
		r.joined = true
		r.joinCh <- nil
		log.Infof("joined room %s as %s", key, nick)
	}
	return nil
}

func (x *MUC) handleMessage(_ context.Context, stanza xmpp.Stanza) error {
	msg := stanza.(*xmpp.Message)
	if msg.Elements().Child("subject") == nil {
		return nil
	}
	x.mu.Lock()
	if r, ok := x.rooms[msg.FromJID().ToBareJID().String()]; ok {
		r.subject = msg.Subject()
	}
	x.mu.Unlock()
	return nil
}

func hasStatus(mucUser xmpp.XElement, code string) bool {
	if mucUser == nil {
		return false
	}
	for _, st := range mucUser.Elements().Children("status") {
		if st.Attributes().Get("code") == code {
			return true
		}
	}
	return false
}
