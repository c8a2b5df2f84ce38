/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package session

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
	"github.com/parley-im/parley/codec"
	"github.com/parley-im/parley/log"
	"github.com/parley-im/parley/transport"
	"github.com/parley-im/parley/xmpp"
	"github.com/parley-im/parley/xmpp/jid"
	"github.com/parley-im/parley/xmpp/streamerror"
	"github.com/pkg/errors"
	"mellium.im/sasl"
)

// DefaultMechanisms is the SASL mechanism preference used when none is configured.
var DefaultMechanisms = []sasl.Mechanism{
	sasl.ScramSha256Plus,
	sasl.ScramSha1Plus,
	sasl.ScramSha256,
	sasl.ScramSha1,
	sasl.Plain,
}

var errNoStartTLS = errors.New("session: server does not offer starttls")

// negotiate drives the stream from the initial header up to resource binding.
func (s *Session) negotiate(ctx context.Context) error {
	for {
		if err := s.openStream(); err != nil {
			return err
		}
		features, err := s.readElement()
		if err != nil {
			return err
		}
		if err := checkNegotiationElement(features); err != nil {
			return err
		}
		if features.Name() != "stream:features" {
			return errors.Errorf("session: expected stream features, got <%s/>", features.Name())
		}
		s.setState(FeatureNegotiation)

		restart, err := s.negotiateFeatures(ctx, features)
		if err != nil {
			return err
		}
		if !restart {
			return nil
		}
		s.cd.Reset()
	}
}

func (s *Session) openStream() error {
	if err := s.writeRaw(codec.StreamHeader(s.mode, s.cfg.JID.Domain(), s.cfg.Lang)); err != nil {
		return err
	}
	elem, err := s.readElement()
	if err != nil {
		return err
	}
	if err := checkNegotiationElement(elem); err != nil {
		return err
	}
	if !codec.IsStreamHeader(s.mode, elem) {
		return errors.Errorf("session: expected stream header, got <%s/>", elem.Name())
	}
	if v := elem.Version(); len(v) > 0 && !strings.HasPrefix(v, "1.") {
		return streamerror.ErrUnsupportedVersion
	}
	log.Debugf("stream opened (id: %s, stream: %s)", s.id, elem.ID())

	s.setState(StreamOpened)
	return nil
}

// negotiateFeatures handles a <stream:features/> element.
// It reports whether the stream must be restarted.
func (s *Session) negotiateFeatures(ctx context.Context, features xmpp.XElement) (bool, error) {
	if !s.authenticated {
		_, secured := s.tr.ConnectionState()
		if !secured {
			if features.Elements().ChildNamespace("starttls", xmpp.NamespaceTLS) != nil && s.tr.SupportsStartTLS() {
				if err := s.startTLS(ctx); err != nil {
					return false, err
				}
				return true, nil
			}
			if !s.cfg.AllowInsecure {
				return false, &transport.TLSError{Err: errNoStartTLS}
			}
			log.Warnf("authenticating over an unencrypted stream (id: %s)", s.id)
		}
		mechanisms := features.Elements().ChildNamespace("mechanisms", xmpp.NamespaceSASL)
		if mechanisms == nil {
			return false, &AuthenticationError{Condition: "invalid-mechanism", Text: "no mechanisms offered"}
		}
		if err := s.authenticate(ctx, mechanisms); err != nil {
			return false, err
		}
		return true, nil
	}
	if features.Elements().ChildNamespace("bind", xmpp.NamespaceBind) == nil {
		return false, errors.New("session: server does not offer resource binding")
	}
	s.setState(ResourceBinding)
	if err := s.bind(); err != nil {
		return false, err
	}
	if sess := features.Elements().ChildNamespace("session", xmpp.NamespaceSession); sess != nil && sess.Elements().Child("optional") == nil {
		if err := s.establishSession(); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (s *Session) startTLS(ctx context.Context) error {
	if err := s.writeElement(xmpp.NewElementNamespace("starttls", xmpp.NamespaceTLS)); err != nil {
		return err
	}
	elem, err := s.readElement()
	if err != nil {
		return err
	}
	if err := checkNegotiationElement(elem); err != nil {
		return err
	}
	if elem.Namespace() != xmpp.NamespaceTLS {
		return streamerror.ErrInvalidNamespace
	}
	switch elem.Name() {
	case "proceed":
	case "failure":
		return &transport.TLSError{Err: errors.New("session: server refused starttls")}
	default:
		return streamerror.ErrUnsupportedStanzaType
	}
	var cfg *tls.Config
	if s.cfg.TLSConfig != nil {
		cfg = s.cfg.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{}
	}
	if len(cfg.ServerName) == 0 {
		cfg.ServerName = s.cfg.JID.Domain()
	}
	if err := s.tr.StartTLS(ctx, cfg); err != nil {
		return err
	}
	s.addFeature("starttls")
	log.Infof("stream secured (id: %s)", s.id)
	return nil
}

func (s *Session) authenticate(ctx context.Context, mechanisms xmpp.XElement) error {
	s.setState(Authenticating)

	var offered []string
	for _, m := range mechanisms.Elements().Children("mechanism") {
		offered = append(offered, m.Text())
	}
	cs, secured := s.tr.ConnectionState()
	mech, ok := s.selectMechanism(offered, cs, secured)
	if !ok {
		return &AuthenticationError{
			Condition: "invalid-mechanism",
			Text:      "no supported mechanism in: " + strings.Join(offered, ", "),
		}
	}
	opts := []sasl.Option{
		sasl.Credentials(func() ([]byte, []byte, []byte) {
			return []byte(s.cfg.JID.Node()), []byte(s.cfg.Password), nil
		}),
		sasl.RemoteMechanisms(offered...),
	}
	if secured {
		opts = append(opts, sasl.TLSState(cs))
	}
	client := sasl.NewClient(mech, opts...)

	more, resp, err := client.Step(nil)
	if err != nil {
		return errors.Wrapf(err, "session: %s", mech.Name)
	}
	auth := xmpp.NewElementNamespace("auth", xmpp.NamespaceSASL)
	auth.SetAttribute("mechanism", mech.Name)
	auth.SetText(encodeSASL(resp))
	if err := s.writeElement(auth); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		elem, err := s.readElement()
		if err != nil {
			return err
		}
		if err := checkNegotiationElement(elem); err != nil {
			return err
		}
		if elem.Namespace() != xmpp.NamespaceSASL {
			return streamerror.ErrInvalidNamespace
		}
		switch elem.Name() {
		case "challenge":
			challenge, err := decodeSASL(elem.Text())
			if err != nil {
				return err
			}
			more, resp, err = client.Step(challenge)
			if err != nil {
				_ = s.writeElement(xmpp.NewElementNamespace("abort", xmpp.NamespaceSASL))
				return &AuthenticationError{Condition: "aborted", Text: err.Error()}
			}
			response := xmpp.NewElementNamespace("response", xmpp.NamespaceSASL)
			response.SetText(encodeSASL(resp))
			if err := s.writeElement(response); err != nil {
				return err
			}

		case "success":
			if more {
				// additional data with outcome of success (server signature)
				data, err := decodeSASL(elem.Text())
				if err != nil {
					return err
				}
				if _, _, err := client.Step(data); err != nil {
					return &AuthenticationError{Condition: "server-verification-failed", Text: err.Error()}
				}
			}
			s.authenticated = true
			s.addFeature("sasl:" + mech.Name)
			log.Infof("authenticated with %s (id: %s)", mech.Name, s.id)
			return nil

		case "failure":
			return authenticationError(elem)

		default:
			return streamerror.ErrUnsupportedStanzaType
		}
	}
}

func (s *Session) selectMechanism(offered []string, cs tls.ConnectionState, secured bool) (sasl.Mechanism, bool) {
	preferred := s.cfg.Mechanisms
	if len(preferred) == 0 {
		preferred = DefaultMechanisms
	}
	for _, m := range preferred {
		if strings.HasSuffix(m.Name, "-PLUS") && (!secured || len(cs.TLSUnique) == 0) {
			continue
		}
		if m.Name == sasl.Plain.Name && !secured && !s.cfg.AllowInsecure {
			continue
		}
		for _, name := range offered {
			if name == m.Name {
				return m, true
			}
		}
	}
	return sasl.Mechanism{}, false
}

func (s *Session) bind() error {
	iq := xmpp.NewIQType(uuid.New().String(), xmpp.SetType)
	b := xmpp.NewElementNamespace("bind", xmpp.NamespaceBind)
	if res := s.cfg.JID.Resource(); len(res) > 0 {
		b.AppendElement(xmpp.NewElementName("resource").SetText(res))
	}
	iq.AppendElement(b)

	reply, err := s.negotiationRequest(iq)
	if err != nil {
		return err
	}
	if reply.IsError() {
		return errors.Wrap(replyError(reply), "session: resource binding failed")
	}
	var bound string
	if b := reply.Elements().ChildNamespace("bind", xmpp.NamespaceBind); b != nil {
		if j := b.Elements().Child("jid"); j != nil {
			bound = j.Text()
		}
	}
	j, err := jid.NewWithString(bound, false)
	if err != nil || !j.IsFullWithUser() {
		return errors.Errorf("session: invalid bound address: %q", bound)
	}
	s.mu.Lock()
	s.jid = j
	s.mu.Unlock()

	s.addFeature("bind")
	return nil
}

// establishSession performs the legacy RFC 3921 session establishment.
func (s *Session) establishSession() error {
	iq := xmpp.NewIQType(uuid.New().String(), xmpp.SetType)
	iq.AppendElement(xmpp.NewElementNamespace("session", xmpp.NamespaceSession))

	reply, err := s.negotiationRequest(iq)
	if err != nil {
		return err
	}
	if reply.IsError() {
		return errors.Wrap(replyError(reply), "session: session establishment failed")
	}
	s.addFeature("session")
	return nil
}

// negotiationRequest sends an iq and reads elements until its reply arrives.
func (s *Session) negotiationRequest(iq *xmpp.IQ) (*xmpp.IQ, error) {
	if err := s.writeElement(iq); err != nil {
		return nil, err
	}
	for {
		elem, err := s.readElement()
		if err != nil {
			return nil, err
		}
		if err := checkNegotiationElement(elem); err != nil {
			return nil, err
		}
		if elem.Name() != xmpp.IQName || elem.ID() != iq.ID() {
			log.Warnf("ignoring <%s/> received during negotiation (id: %s)", elem.Name(), s.id)
			continue
		}
		stanza, err := xmpp.NewStanzaFromElement(elem)
		if err != nil {
			return nil, err
		}
		reply := stanza.(*xmpp.IQ)
		if reply.IsRequest() {
			continue
		}
		return reply, nil
	}
}

// checkNegotiationElement turns a stream error into a Go error.
func checkNegotiationElement(elem xmpp.XElement) error {
	if elem.Name() == "stream:error" {
		return streamerror.FromElement(elem)
	}
	return nil
}

func replyError(reply *xmpp.IQ) *xmpp.StanzaError {
	if se := xmpp.NewStanzaErrorFromElement(reply.Error()); se != nil {
		return se
	}
	return xmpp.ErrUndefinedCondition
}

func authenticationError(failure xmpp.XElement) *AuthenticationError {
	authErr := &AuthenticationError{Condition: "not-authorized"}
	for _, el := range failure.Elements().All() {
		if el.Name() == "text" {
			authErr.Text = el.Text()
			continue
		}
		authErr.Condition = el.Name()
	}
	return authErr
}

func encodeSASL(b []byte) string {
	if len(b) == 0 {
		return "="
	}
	return base64.StdEncoding.EncodeToString(b)
}

func decodeSASL(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s) == 0 || s == "=" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &AuthenticationError{Condition: "incorrect-encoding", Text: err.Error()}
	}
	return b, nil
}
