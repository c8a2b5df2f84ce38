/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package archive

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/parley-im/parley/xmpp"
	"github.com/pkg/errors"
)

// Direction tells whether a message was sent or received by the account.
type Direction string

const (
	// Incoming marks a received message.
	Incoming Direction = "in"

	// Outgoing marks a sent message.
	Outgoing Direction = "out"
)

// Record represents an archived message.
type Record struct {
	ID        string
	Account   string
	Peer      string
	Direction Direction
	Type      string
	Body      string
	Stamp     time.Time
}

// NewRecord derives an archive record from a message exchanged by account.
// Peer is the bare address of the other party.
func NewRecord(account string, msg *xmpp.Message, dir Direction) Record {
	var peer string
	switch dir {
	case Incoming:
		if j := msg.FromJID(); j != nil {
			peer = j.ToBareJID().String()
		}
	default:
		if j := msg.ToJID(); j != nil {
			peer = j.ToBareJID().String()
		}
	}
	return Record{
		ID:        msg.ID(),
		Account:   account,
		Peer:      peer,
		Direction: dir,
		Type:      msg.Type(),
		Body:      msg.Body(),
		Stamp:     time.Now().UTC(),
	}
}

// String returns a one line console representation of the record.
func (r Record) String() string {
	arrow := "<-"
	if r.Direction == Outgoing {
		arrow = "->"
	}
	return fmt.Sprintf("[%s] %s %s: %s", r.Stamp.Local().Format("2006-01-02 15:04:05"), arrow, r.Peer, r.Body)
}

// FromBytes deserializes a Record entity from its binary representation.
func (r *Record) FromBytes(buf *bytes.Buffer) error {
	return gob.NewDecoder(buf).Decode(r)
}

// ToBytes converts a Record entity to its binary representation.
func (r *Record) ToBytes(buf *bytes.Buffer) error {
	return gob.NewEncoder(buf).Encode(r)
}

// Archive stores the account message history.
type Archive interface {
	// Store persists a message record.
	Store(ctx context.Context, r Record) error

	// Fetch returns the latest limit records exchanged between account and peer,
	// oldest first. A non positive limit returns the whole history.
	Fetch(ctx context.Context, account, peer string, limit int) ([]Record, error)

	// Close releases archive resources.
	Close(ctx context.Context) error
}

// New initializes the archive backend selected by cfg.
func New(cfg *Config) (Archive, error) {
	switch cfg.Type {
	case Disabled:
		return &disabled{}, nil
	case BadgerDB:
		return newBadgerDB(cfg.BadgerDB.DataDir)
	case PostgreSQL:
		return newPgSQL(&cfg.SQL)
	case MySQL:
		return newMySQL(&cfg.SQL)
	}
	return nil, errors.Errorf("archive: unrecognized type: %s", cfg.Type)
}

type disabled struct{}

func (*disabled) Store(_ context.Context, _ Record) error { return nil }

func (*disabled) Fetch(_ context.Context, _, _ string, _ int) ([]Record, error) { return nil, nil }

func (*disabled) Close(_ context.Context) error { return nil }
