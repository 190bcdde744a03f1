// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main is the chatdesk command line client for the chat gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/chatdesk/internal/buildinfo"
	"github.com/traylinx/chatdesk/internal/logging"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

// command is one subcommand. A nil run marks commands that need neither
// storage nor the gateway.
type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":   {"log in and store the session token", cmdLogin},
	"logout":  {"end the session (local state is always cleared)", cmdLogout},
	"whoami":  {"show the current user, roles and permissions", cmdWhoami},
	"chats":   {"list, show, delete or search conversations", cmdChats},
	"groups":  {"list, create, delete groups and move conversations", cmdGroups},
	"keys":    {"manage model API keys", cmdKeys},
	"prompts": {"manage prompt templates", cmdPrompts},
	"send":    {"send a message and stream the reply", cmdSend},
	"export":  {"export conversations to the configured sink", cmdExport},
	"config":  {"read or patch the gateway system configuration", cmdConfig},
	"stats":   {"show chat statistics", cmdStats},
	"status":  {"show local state directory and session status", cmdStatus},
	"version": {"print version information", nil},
}

var commandOrder = []string{
	"login", "logout", "whoami", "chats", "groups", "keys", "prompts",
	"send", "export", "config", "stats", "status", "version",
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, "Usage: chatdesk [options] <command> [args]\n\nCommands:\n")
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %-9s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(w, "\nOptions:\n")
	fs.SetOutput(w)
	fs.PrintDefaults()
}

// run executes one invocation and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("chatdesk", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "config file (default $CHATDESK_STATE_DIR/config.yaml)")
	debug := fs.Bool("debug", false, "enable debug logging")
	baseURL := fs.String("base-url", "", "gateway API root, overrides the config")
	fs.Usage = func() { usage(stderr, fs) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		usage(stderr, fs)
		return 2
	}

	name, rest := fs.Arg(0), fs.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		usage(stderr, fs)
		return 2
	}
	if cmd.run == nil {
		fmt.Fprintf(stdout, "chatdesk %s (commit %s, built %s)\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)
		return 0
	}

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "chatdesk: %v\n", err)
		return 1
	}
	if *debug {
		cfg.Debug = true
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}

	a, err := newApp(ctx, cfg, path, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "chatdesk: %v\n", err)
		return 1
	}
	defer func() {
		if errClose := a.Close(); errClose != nil {
			log.Debugf("close storage: %v", errClose)
		}
	}()

	if err := cmd.run(ctx, a, rest); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "chatdesk %s: %v\n", name, err)
		return 1
	}
	return 0
}

func main() {
	if wd, err := os.Getwd(); err == nil {
		if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil && !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
