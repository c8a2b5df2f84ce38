/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package session

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// State represents a session lifecycle state.
type State uint32

const (
	// Connecting is the initial state: the stream header has not been answered yet.
	Connecting State = iota

	// StreamOpened means the server answered the stream header.
	StreamOpened

	// FeatureNegotiation means the server advertised its stream features.
	FeatureNegotiation

	// Authenticating means a SASL exchange is in progress.
	Authenticating

	// ResourceBinding means the session is binding its resource.
	ResourceBinding

	// Established means the session is ready to exchange stanzas.
	Established

	// Disconnecting means the stream is being closed gracefully.
	Disconnecting

	// Closed is the terminal state of a graceful shutdown.
	Closed

	// Failed is the terminal state of an unrecoverable error.
	Failed
)

var stateNames = [...]string{
	Connecting:         "connecting",
	StreamOpened:       "stream_opened",
	FeatureNegotiation: "feature_negotiation",
	Authenticating:     "authenticating",
	ResourceBinding:    "resource_binding",
	Established:        "established",
	Disconnecting:      "disconnecting",
	Closed:             "closed",
	Failed:             "failed",
}

// String returns the state name.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint32(s))
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == Closed || s == Failed
}

// ErrNotEstablished is returned when sending over a session that is not established.
var ErrNotEstablished = errors.New("session: not established")

// ErrSessionClosed is carried by the ConnectionLostError that cancels
// pending requests when the session is closed locally.
var ErrSessionClosed = errors.New("session: closed")

var errAlreadyStarted = errors.New("session: already started")

// AuthenticationError is returned when the server rejects the SASL exchange.
// Retrying with the same credentials is pointless.
type AuthenticationError struct {
	// Condition is the SASL failure condition (e.g. not-authorized).
	Condition string

	// Text is an optional human readable description.
	Text string
}

func (e *AuthenticationError) Error() string {
	var sb strings.Builder
	sb.WriteString("session: authentication failed: ")
	sb.WriteString(e.Condition)
	if len(e.Text) > 0 {
		sb.WriteString(" (")
		sb.WriteString(e.Text)
		sb.WriteString(")")
	}
	return sb.String()
}

// ConnectionLostError terminates an established session.
// Every pending request is cancelled with it.
type ConnectionLostError struct {
	Err error
}

func (e *ConnectionLostError) Error() string {
	return fmt.Sprintf("session: connection lost: %v", e.Err)
}

// Unwrap returns the cause of the connection loss.
func (e *ConnectionLostError) Unwrap() error { return e.Err }
