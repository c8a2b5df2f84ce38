/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/parley-im/parley/archive"
	"github.com/parley-im/parley/client"
	"github.com/parley-im/parley/config"
	"github.com/parley-im/parley/log"
	"github.com/parley-im/parley/log/zap"
	"github.com/parley-im/parley/version"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const (
	defaultShutDownWaitTime = time.Duration(5) * time.Second

	dataDirName    = ".parley"
	configFileName = "parley.yml"
	historyName    = "history"
)

var logoStr = []string{
	"                         _            ",
	"  _ __   __ _ _ __ ___  | | ___ _   _ ",
	" | '_ \\ / _` | '__/ _ \\ | |/ _ \\ | | |",
	" | |_) | (_| | | |  __/ | |  __/ |_| |",
	" | .__/ \\__,_|_|  \\___| |_|\\___|\\__, |",
	" |_|                            |___/ ",
}

const usageStr = `
Usage: parley [options]

Account Options:
    -c, --config <file>    Configuration file path
    -j, --jid <jid>        Account address
        --debug            Enable debug logging
Common Options:
    -h, --help             Show this message
    -v, --version          Show version
`

// Application encapsulates a parley console application.
type Application struct {
	output           io.Writer
	input            io.ReadCloser
	args             []string
	logger           *zap.Logger
	archive          archive.Archive
	waitStopCh       chan os.Signal
	shutDownWaitSecs time.Duration
	readPassword     func() (string, error)
	connect          connectFunc
}

// New returns a runnable application given an output and a command line arguments array.
func New(output io.Writer, args []string) *Application {
	a := &Application{
		output:           output,
		input:            os.Stdin,
		args:             args,
		waitStopCh:       make(chan os.Signal, 1),
		shutDownWaitSecs: defaultShutDownWaitTime,
		connect:          client.Connect,
	}
	a.readPassword = a.promptPassword
	return a
}

// Run runs the console until the user quits, a stop signal is received
// or the connection fails for good.
func (a *Application) Run() error {
	if len(a.args) == 0 {
		return errors.New("empty command-line arguments")
	}
	var configFile, account string
	var showVersion, showUsage, debug bool

	fs := pflag.NewFlagSet("parley", pflag.ContinueOnError)
	fs.SetOutput(a.output)

	fs.BoolVarP(&showUsage, "help", "h", false, "Show this message")
	fs.BoolVarP(&showVersion, "version", "v", false, "Print version information.")
	fs.StringVarP(&configFile, "config", "c", "", "Configuration file path.")
	fs.StringVarP(&account, "jid", "j", "", "Account address.")
	fs.BoolVar(&debug, "debug", false, "Enable debug logging.")
	fs.Usage = a.printUsage
	if err := fs.Parse(a.args[1:]); err != nil {
		return err
	}

	// print usage
	if showUsage {
		a.printUsage()
		return nil
	}
	// print version
	if showVersion {
		_, _ = fmt.Fprintf(a.output, "%s\n", version.UserAgent())
		return nil
	}
	// load configuration
	cfg, err := a.loadConfig(configFile, account, debug)
	if err != nil {
		return err
	}
	// initialize logger
	if err := a.initLogger(&cfg.Logger); err != nil {
		return err
	}
	defer a.closeLogger()

	if len(cfg.Account.Password) == 0 {
		pwd, err := a.readPassword()
		if err != nil {
			return err
		}
		cfg.Account.Password = pwd
	}
	// initialize message archive
	a.archive, err = archive.New(&cfg.Archive)
	if err != nil {
		return err
	}
	defer a.closeArchive()

	clientCfg, err := client.NewConfig(cfg)
	if err != nil {
		return err
	}
	clientCfg.Archive = a.archive

	a.printLogo()

	return a.interact(clientCfg)
}

func (a *Application) printUsage() {
	for i := range logoStr {
		_, _ = fmt.Fprintf(a.output, "%s\n", logoStr[i])
	}
	_, _ = fmt.Fprintf(a.output, "%s\n", usageStr)
}

func (a *Application) loadConfig(configFile, account string, debug bool) (*config.Config, error) {
	cfg := config.Default()
	if len(configFile) == 0 {
		if home, err := os.UserHomeDir(); err == nil {
			defaultFile := filepath.Join(home, dataDirName, configFileName)
			if _, err := os.Stat(defaultFile); err == nil {
				configFile = defaultFile
			}
		}
	}
	if len(configFile) > 0 {
		if err := cfg.FromFile(configFile); err != nil {
			return nil, errors.Wrapf(err, "app: loading %s", configFile)
		}
	}
	if err := cfg.FromEnvironment(); err != nil {
		return nil, err
	}
	if len(account) > 0 {
		cfg.Account.JID = account
	}
	if debug {
		cfg.Logger.Level = log.DebugLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *Application) initLogger(cfg *log.Config) error {
	l, err := zap.NewLogger(cfg)
	if err != nil {
		return err
	}
	a.logger = l
	log.Set(a.logger, cfg.Level)
	return nil
}

func (a *Application) closeLogger() {
	log.Close()
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func (a *Application) closeArchive() {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutDownWaitSecs)
	defer cancel()
	if err := a.archive.Close(ctx); err != nil {
		log.Warnf("archive close: %v", err)
	}
}

func (a *Application) promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("app: no password configured and standard input is not a terminal")
	}
	_, _ = fmt.Fprint(a.output, "Password: ")
	b, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(a.output)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (a *Application) printLogo() {
	for i := range logoStr {
		_, _ = fmt.Fprintf(a.output, "%s\n", logoStr[i])
	}
	_, _ = fmt.Fprintf(a.output, "\n%s - type /help to list commands\n\n", version.UserAgent())
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	dir := filepath.Join(home, dataDirName)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return ""
	}
	return filepath.Join(dir, historyName)
}

// interact runs the read-eval loop over a connected client, reconnecting
// whenever the session is lost for a transient reason.
func (a *Application) interact(cfg *client.Config) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "> ",
		HistoryFile:       historyPath(),
		HistorySearchFold: true,
		AutoComplete:      newCompleter(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "/quit",
		Stdin:             a.input,
		Stdout:            a.output,
	})
	if err != nil {
		return err
	}
	defer func() { _ = rl.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signal.Notify(a.waitStopCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(a.waitStopCh)
	go func() {
		select {
		case sig := <-a.waitStopCh:
			log.Infof("received %s signal... shutting down...", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	sh := newShell(rl.Stdout())
	linesCh := make(chan string)
	go readLines(ctx, rl, linesCh)

	rc := newReconnector(cfg, a.connect)
	for {
		cl, err := rc.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go printEvents(sh.out, cl.Events())

		reconnect, err := a.serve(ctx, sh, cl, linesCh)
		if !reconnect {
			return err
		}
	}
}

// serve feeds console input to cl until the session ends. It reports
// whether a new session should be established.
func (a *Application) serve(ctx context.Context, sh *shell, cl *client.Client, linesCh <-chan string) (bool, error) {
	for {
		select {
		case line, ok := <-linesCh:
			if !ok {
				return false, a.gracefullyShutdown(cl)
			}
			if err := sh.execute(ctx, cl, line); err == errQuit {
				return false, a.gracefullyShutdown(cl)
			}

		case <-ctx.Done():
			return false, a.gracefullyShutdown(cl)

		case <-cl.Done():
			err := cl.Err()
			if err == nil {
				return false, nil
			}
			if !isRetryable(err) {
				return false, err
			}
			sh.printf("connection lost: %v\n", err)
			return true, nil
		}
	}
}

func (a *Application) gracefullyShutdown(cl *client.Client) error {
	// wait until session has been closed
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(a.shutDownWaitSecs))
	defer cancel()
	return cl.Disconnect(ctx)
}

func readLines(ctx context.Context, rl *readline.Instance, linesCh chan<- string) {
	defer close(linesCh)
	for {
		line, err := rl.Readline()
		switch {
		case err == readline.ErrInterrupt:
			if len(line) == 0 {
				return
			}
			continue
		case err != nil:
			return
		}
		select {
		case linesCh <- line:
		case <-ctx.Done():
			return
		}
	}
}

func newCompleter() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(commands)+2)
	for _, cmd := range commands {
		items = append(items, readline.PcItem("/"+cmd.name))
	}
	items = append(items, readline.PcItem("/help"), readline.PcItem("/quit"))
	return readline.NewPrefixCompleter(items...)
}
