/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package xep0092

import (
	"context"
	"os/exec"
	"strings"

	"github.com/parley-im/parley/log"
	"github.com/parley-im/parley/module"
	"github.com/parley-im/parley/version"
	"github.com/parley-im/parley/xmpp"
	"github.com/parley-im/parley/xmpp/jid"
	"github.com/pkg/errors"
)

const versionNamespace = "jabber:iq:version"

var osString string

func init() {
	out, _ := exec.Command("uname", "-rs").Output()
	osString = strings.TrimSpace(string(out))
}

// Config represents XMPP Software Version module (XEP-0092) configuration.
type Config struct {
	ShowOS bool `yaml:"show_os"`
}

// SoftwareVersion describes the software an entity runs.
type SoftwareVersion struct {
	Name    string
	Version string
	OS      string
}

// Version represents a version module.
type Version struct {
	cfg *Config
}

// New returns a version IQ handler module.
func New(config *Config) *Version {
	if config == nil {
		config = &Config{}
	}
	return &Version{cfg: config}
}

// AssociatedNamespaces returns namespaces associated
// with version module.
func (x *Version) AssociatedNamespaces() []string {
	return []string{versionNamespace}
}

// MatchesIQ returns whether or not an IQ should be
// processed by the version module.
func (x *Version) MatchesIQ(iq *xmpp.IQ) bool {
	return iq.IsGet() && iq.Elements().ChildNamespace("query", versionNamespace) != nil
}

// ProcessIQ processes a version IQ taking according actions
// over the associated stream.
func (x *Version) ProcessIQ(ctx context.Context, iq *xmpp.IQ, stm module.Stream) error {
	q := iq.Elements().ChildNamespace("query", versionNamespace)
	if q.Elements().Count() != 0 {
		return module.ReplyError(ctx, stm, iq, xmpp.ErrBadRequest)
	}
	return x.sendSoftwareVersion(ctx, iq, stm)
}

func (x *Version) sendSoftwareVersion(ctx context.Context, iq *xmpp.IQ, stm module.Stream) error {
	log.Infof("retrieving software version: %v (requested by %s)", version.ApplicationVersion, iq.From())

	result := iq.ResultIQ()
	query := xmpp.NewElementNamespace("query", versionNamespace)

	name := xmpp.NewElementName("name")
	name.SetText(version.ApplicationName)
	query.AppendElement(name)

	ver := xmpp.NewElementName("version")
	ver.SetText(version.ApplicationVersion.String())
	query.AppendElement(ver)

	if x.cfg.ShowOS && len(osString) > 0 {
		os := xmpp.NewElementName("os")
		os.SetText(osString)
		query.AppendElement(os)
	}
	result.AppendElement(query)
	return stm.Send(ctx, result)
}

// Query requests the software version of the entity at to.
func Query(ctx context.Context, stm module.Stream, to *jid.JID) (*SoftwareVersion, error) {
	iq := xmpp.NewIQType("", xmpp.GetType)
	iq.SetToJID(to)
	iq.AppendElement(xmpp.NewElementNamespace("query", versionNamespace))

	reply, err := stm.SendIQ(ctx, iq)
	if err != nil {
		return nil, err
	}
	if err := module.ResultError(reply); err != nil {
		return nil, err
	}
	q := reply.Elements().ChildNamespace("query", versionNamespace)
	if q == nil {
		return nil, errors.New("xep0092: missing version query in result")
	}
	sv := &SoftwareVersion{}
	if el := q.Elements().Child("name"); el != nil {
		sv.Name = el.Text()
	}
	if el := q.Elements().Child("version"); el != nil {
		sv.Version = el.Text()
	}
	if el := q.Elements().Child("os"); el != nil {
		sv.OS = el.Text()
	}
	return sv, nil
}
