/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package app

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/parley-im/parley/archive"
	"github.com/parley-im/parley/module/xep0030"
	"github.com/parley-im/parley/module/xep0045"
	"github.com/parley-im/parley/module/xep0092"
	"github.com/parley-im/parley/roster"
	"github.com/parley-im/parley/xmpp"
	"github.com/parley-im/parley/xmpp/jid"
	"github.com/pkg/errors"
)

const defaultHistorySize = 20

var errQuit = errors.New("app: quit requested")

// chatClient is the set of client operations reachable from the console.
type chatClient interface {
	SendMessage(ctx context.Context, to *jid.JID, body, kind string) (*xmpp.Message, error)
	SendPresence(ctx context.Context, show xmpp.ShowState, status string) error
	Subscribe(ctx context.Context, to *jid.JID) error
	ApproveSubscription(ctx context.Context, to *jid.JID) error
	DenySubscription(ctx context.Context, to *jid.JID) error
	Unsubscribe(ctx context.Context, to *jid.JID) error
	UpdateContact(ctx context.Context, to *jid.JID, name string, groups []string) error
	RemoveContact(ctx context.Context, to *jid.JID) error
	FetchRoster(ctx context.Context) ([]roster.Group, error)
	JoinRoom(ctx context.Context, room *jid.JID, nick, password string) error
	LeaveRoom(ctx context.Context, room *jid.JID) error
	SendGroupMessage(ctx context.Context, room *jid.JID, body string) (*xmpp.Message, error)
	Rooms() []xep0045.Room
	Occupants(room *jid.JID) ([]xep0045.Occupant, error)
	Ping(ctx context.Context, to *jid.JID) (float64, error)
	SoftwareVersion(ctx context.Context, to *jid.JID) (*xep0092.SoftwareVersion, error)
	DiscoverInfo(ctx context.Context, to *jid.JID) (*xep0030.Info, error)
	History(ctx context.Context, peer *jid.JID, n int) ([]archive.Record, error)
}

type command struct {
	name    string
	usage   string
	help    string
	minArgs int
	maxArgs int
	run     func(ctx context.Context, sh *shell, cl chatClient, args []string) error
}

var commands = []command{
	{name: "msg", usage: "<jid> <body>", help: "Send a chat message", minArgs: 2, maxArgs: 2, run: runMsg},
	{name: "gc", usage: "<room> <body>", help: "Send a message to a joined room", minArgs: 2, maxArgs: 2, run: runGroupMsg},
	{name: "presence", usage: "<online|away|chat|dnd|xa> [status]", help: "Broadcast availability", minArgs: 1, maxArgs: 2, run: runPresence},
	{name: "subscribe", usage: "<jid>", help: "Request a contact presence subscription", minArgs: 1, maxArgs: 1, run: runSubscribe},
	{name: "approve", usage: "<jid>", help: "Approve a subscription request", minArgs: 1, maxArgs: 1, run: runApprove},
	{name: "deny", usage: "<jid>", help: "Deny a subscription request", minArgs: 1, maxArgs: 1, run: runDeny},
	{name: "unsubscribe", usage: "<jid>", help: "Cancel a presence subscription", minArgs: 1, maxArgs: 1, run: runUnsubscribe},
	{name: "add", usage: "<jid> [name] [group]", help: "Add or update a roster contact", minArgs: 1, maxArgs: 3, run: runAdd},
	{name: "remove", usage: "<jid>", help: "Remove a contact from the roster", minArgs: 1, maxArgs: 1, run: runRemove},
	{name: "roster", help: "Show the contact list", run: runRoster},
	{name: "join", usage: "<room> <nick> [password]", help: "Join a multi-user chat room", minArgs: 2, maxArgs: 3, run: runJoin},
	{name: "leave", usage: "<room>", help: "Leave a room", minArgs: 1, maxArgs: 1, run: runLeave},
	{name: "rooms", help: "List joined rooms and their occupants", run: runRooms},
	{name: "ping", usage: "[jid]", help: "Measure the round trip to an entity", maxArgs: 1, run: runPing},
	{name: "version", usage: "[jid]", help: "Query the software an entity runs", maxArgs: 1, run: runVersion},
	{name: "disco", usage: "[jid]", help: "Discover the identities and features of an entity", maxArgs: 1, run: runDisco},
	{name: "history", usage: "<jid> [n]", help: "Show archived messages", minArgs: 1, maxArgs: 2, run: runHistory},
}

// shell interprets console input lines.
type shell struct {
	out io.Writer
}

func newShell(out io.Writer) *shell {
	return &shell{out: out}
}

// execute runs a single input line. Returns errQuit when the user asks to leave.
// Malformed input only prints usage information.
func (sh *shell) execute(ctx context.Context, cl chatClient, line string) error {
	line = strings.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		sh.printf("unknown input, type /help to list commands\n")
		return nil
	}
	name, rest := splitCommand(line[1:])
	switch name {
	case "quit", "exit":
		return errQuit
	case "help":
		sh.printHelp()
		return nil
	}
	cmd := lookupCommand(name)
	if cmd == nil {
		sh.printf("unknown command /%s, type /help to list commands\n", name)
		return nil
	}
	args := splitArgs(rest, cmd.maxArgs)
	if len(args) < cmd.minArgs || (cmd.maxArgs == 0 && len(rest) > 0) {
		sh.printUsage(cmd)
		return nil
	}
	if err := cmd.run(ctx, sh, cl, args); err != nil {
		if err == errUsage {
			sh.printUsage(cmd)
			return nil
		}
		sh.printf("error: %v\n", err)
	}
	return nil
}

var errUsage = errors.New("app: invalid command arguments")

func (sh *shell) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(sh.out, format, args...)
}

func (sh *shell) printUsage(cmd *command) {
	if len(cmd.usage) > 0 {
		sh.printf("usage: /%s %s\n", cmd.name, cmd.usage)
		return
	}
	sh.printf("usage: /%s\n", cmd.name)
}

func (sh *shell) printHelp() {
	for _, cmd := range commands {
		sh.printf("  %-40s %s\n", strings.TrimSpace("/"+cmd.name+" "+cmd.usage), cmd.help)
	}
	sh.printf("  %-40s %s\n", "/help", "Show this message")
	sh.printf("  %-40s %s\n", "/quit", "Disconnect and exit")
}

func lookupCommand(name string) *command {
	for i := range commands {
		if commands[i].name == name {
			return &commands[i]
		}
	}
	return nil
}

func splitCommand(s string) (name, rest string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return strings.ToLower(s), ""
	}
	return strings.ToLower(s[:i]), strings.TrimSpace(s[i+1:])
}

// splitArgs splits s into at most n fields. The last field keeps the
// remainder of the input untouched.
func splitArgs(s string, n int) []string {
	var args []string
	for len(s) > 0 && len(args) < n {
		if len(args) == n-1 {
			args = append(args, s)
			break
		}
		i := strings.IndexAny(s, " \t")
		if i < 0 {
			args = append(args, s)
			break
		}
		args = append(args, s[:i])
		s = strings.TrimSpace(s[i+1:])
	}
	return args
}

func parseJID(s string) (*jid.JID, error) {
	j, err := jid.NewWithString(s, false)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid address %q", s)
	}
	return j, nil
}

func optionalJID(args []string) (*jid.JID, error) {
	if len(args) == 0 {
		return nil, nil
	}
	return parseJID(args[0])
}

func runMsg(ctx context.Context, _ *shell, cl chatClient, args []string) error {
	to, err := parseJID(args[0])
	if err != nil {
		return err
	}
	_, err = cl.SendMessage(ctx, to, args[1], xmpp.ChatType)
	return err
}

func runGroupMsg(ctx context.Context, _ *shell, cl chatClient, args []string) error {
	room, err := parseJID(args[0])
	if err != nil {
		return err
	}
	_, err = cl.SendGroupMessage(ctx, room, args[1])
	return err
}

func runPresence(ctx context.Context, _ *shell, cl chatClient, args []string) error {
	var show xmpp.ShowState
	if args[0] != "online" {
		var err error
		if show, err = xmpp.ParseShowState(args[0]); err != nil {
			return errUsage
		}
	}
	var status string
	if len(args) > 1 {
		status = args[1]
	}
	return cl.SendPresence(ctx, show, status)
}

func withJID(f func(cl chatClient, ctx context.Context, j *jid.JID) error) func(context.Context, *shell, chatClient, []string) error {
	return func(ctx context.Context, _ *shell, cl chatClient, args []string) error {
		j, err := parseJID(args[0])
		if err != nil {
			return err
		}
		return f(cl, ctx, j)
	}
}

var (
	runSubscribe   = withJID(chatClient.Subscribe)
	runApprove     = withJID(chatClient.ApproveSubscription)
	runDeny        = withJID(chatClient.DenySubscription)
	runUnsubscribe = withJID(chatClient.Unsubscribe)
	runRemove      = withJID(chatClient.RemoveContact)
	runLeave       = withJID(chatClient.LeaveRoom)
)

func runAdd(ctx context.Context, sh *shell, cl chatClient, args []string) error {
	to, err := parseJID(args[0])
	if err != nil {
		return err
	}
	var name string
	var groups []string
	if len(args) > 1 {
		name = args[1]
	}
	if len(args) > 2 {
		groups = []string{args[2]}
	}
	if err := cl.UpdateContact(ctx, to, name, groups); err != nil {
		return err
	}
	sh.printf("contact %s saved\n", to.ToBareJID())
	return nil
}

func runRoster(ctx context.Context, sh *shell, cl chatClient, _ []string) error {
	groups, err := cl.FetchRoster(ctx)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		sh.printf("roster is empty\n")
		return nil
	}
	for _, g := range groups {
		sh.printf("[%s]\n", g.Name)
		for _, e := range g.Entries {
			sh.printf("  %s\n", formatEntry(&e))
		}
	}
	return nil
}

func formatEntry(e *roster.Entry) string {
	var sb strings.Builder
	if len(e.Name) > 0 {
		sb.WriteString(e.Name)
		sb.WriteString(" <")
		sb.WriteString(e.JID.String())
		sb.WriteString(">")
	} else {
		sb.WriteString(e.JID.String())
	}
	sb.WriteString(" (")
	sb.WriteString(e.Subscription)
	if e.Ask {
		sb.WriteString(", pending")
	}
	sb.WriteString(")")

	if !e.IsOnline() {
		sb.WriteString(" offline")
		return sb.String()
	}
	resources := make([]string, 0, len(e.Resources))
	for name := range e.Resources {
		resources = append(resources, name)
	}
	sort.Strings(resources)
	for _, name := range resources {
		res := e.Resources[name]
		show := res.Show.String()
		if len(show) == 0 {
			show = "online"
		}
		sb.WriteString(" ")
		sb.WriteString(name)
		sb.WriteString(":")
		sb.WriteString(show)
		if len(res.Status) > 0 {
			sb.WriteString(" \"")
			sb.WriteString(res.Status)
			sb.WriteString("\"")
		}
	}
	return sb.String()
}

func runJoin(ctx context.Context, sh *shell, cl chatClient, args []string) error {
	room, err := parseJID(args[0])
	if err != nil {
		return err
	}
	var password string
	if len(args) > 2 {
		password = args[2]
	}
	if err := cl.JoinRoom(ctx, room, args[1], password); err != nil {
		return err
	}
	sh.printf("joined %s as %s\n", room.ToBareJID(), args[1])
	return nil
}

func runRooms(_ context.Context, sh *shell, cl chatClient, _ []string) error {
	rooms := cl.Rooms()
	if len(rooms) == 0 {
		sh.printf("no joined rooms\n")
		return nil
	}
	for _, r := range rooms {
		sh.printf("%s as %s", r.JID, r.Nick)
		if len(r.Subject) > 0 {
			sh.printf(" (%s)", r.Subject)
		}
		sh.printf("\n")
		occupants, err := cl.Occupants(r.JID)
		if err != nil {
			continue
		}
		for _, o := range occupants {
			sh.printf("  %s [%s/%s]\n", o.Nick, o.Affiliation, o.Role)
		}
	}
	return nil
}

func runPing(ctx context.Context, sh *shell, cl chatClient, args []string) error {
	to, err := optionalJID(args)
	if err != nil {
		return err
	}
	rtt, err := cl.Ping(ctx, to)
	if err != nil {
		return err
	}
	target := "server"
	if to != nil {
		target = to.String()
	}
	sh.printf("pong from %s: %.2f ms\n", target, rtt)
	return nil
}

func runVersion(ctx context.Context, sh *shell, cl chatClient, args []string) error {
	to, err := optionalJID(args)
	if err != nil {
		return err
	}
	sv, err := cl.SoftwareVersion(ctx, to)
	if err != nil {
		return err
	}
	sh.printf("%s %s", sv.Name, sv.Version)
	if len(sv.OS) > 0 {
		sh.printf(" (%s)", sv.OS)
	}
	sh.printf("\n")
	return nil
}

func runDisco(ctx context.Context, sh *shell, cl chatClient, args []string) error {
	to, err := optionalJID(args)
	if err != nil {
		return err
	}
	info, err := cl.DiscoverInfo(ctx, to)
	if err != nil {
		return err
	}
	for _, id := range info.Identities {
		sh.printf("identity %s/%s", id.Category, id.Type)
		if len(id.Name) > 0 {
			sh.printf(" %q", id.Name)
		}
		sh.printf("\n")
	}
	features := append([]string(nil), info.Features...)
	sort.Strings(features)
	for _, f := range features {
		sh.printf("feature %s\n", f)
	}
	return nil
}

func runHistory(ctx context.Context, sh *shell, cl chatClient, args []string) error {
	peer, err := parseJID(args[0])
	if err != nil {
		return err
	}
	n := defaultHistorySize
	if len(args) > 1 {
		n, err = strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return errUsage
		}
	}
	records, err := cl.History(ctx, peer, n)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		sh.printf("no archived messages with %s\n", peer.ToBareJID())
		return nil
	}
	for _, r := range records {
		sh.printf("%s\n", r.String())
	}
	return nil
}
