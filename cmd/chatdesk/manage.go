package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/skratchdot/open-golang/open"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/traylinx/chatdesk/internal/api"
	"github.com/traylinx/chatdesk/internal/export"
	"github.com/traylinx/chatdesk/internal/util"
)

// openFile is swapped in tests.
var openFile = open.Run

func cmdExport(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("export")
	format := fs.String("format", "json", "json, markdown or txt")
	system := fs.Bool("system", false, "include system messages")
	openAfter := fs.Bool("open", false, "open the exported file (file sink only)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := needArgs(fs, 1, "conversation id"); err != nil {
		return err
	}
	if err := a.requireLogin(); err != nil {
		return err
	}

	req := api.ExportRequest{Format: *format, IncludeSystemMessages: *system}
	id := fs.Arg(0)
	exportFn := a.chat.ExportChat
	if fs.NArg() == 1 {
		req.ChatID = id
	} else {
		req.ChatIDs = fs.Args()
		id = "batch"
		exportFn = a.chat.BatchExportChats
	}
	resp, err := exportFn(ctx, req)
	if err != nil {
		return err
	}

	where, err := a.sink.Write(ctx, export.FileName(resp, id, *format), resp.Body)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "exported %d bytes to %s\n", len(resp.Body), where)

	if *openAfter {
		if _, ok := a.sink.(*export.FileSink); !ok {
			return errors.New("--open needs the file export sink")
		}
		if err := openFile(where); err != nil {
			log.Warnf("could not open %s: %v", where, err)
		}
	}
	return nil
}

// config get [path] | config set <path> <value>
func cmdConfig(ctx context.Context, a *app, args []string) error {
	sub, args := splitSub(args, "get")
	fs := newFlagSet("config " + sub)
	output := fs.String("o", formatYAML, "output format: table, json or yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.requireLogin(); err != nil {
		return err
	}

	switch sub {
	case "get":
		resp, err := a.settings.GetSystemConfig(ctx)
		if err != nil {
			return err
		}
		if fs.NArg() == 0 {
			return a.printData(resp, nil, *output)
		}
		value := gjson.GetBytes(resp.Data(), fs.Arg(0))
		if !value.Exists() {
			return fmt.Errorf("%s is not set", fs.Arg(0))
		}
		if err := validFormat(*output); err != nil {
			return err
		}
		return printValue(a.out, *output, value.Value())
	case "set":
		if err := needArgs(fs, 2, "path and value"); err != nil {
			return err
		}
		_, err := a.settings.PatchSystemConfig(ctx, fs.Arg(0), parseValue(strings.Join(fs.Args()[1:], " ")))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(a.out, "%s updated\n", fs.Arg(0))
		return err
	}
	return fmt.Errorf("unknown subcommand %q (get, set)", sub)
}

// parseValue treats JSON literals as typed values and anything else as a
// string.
func parseValue(s string) any {
	if gjson.Valid(s) {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v
		}
	}
	return s
}

func cmdStats(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("stats")
	output := fs.String("o", formatTable, "output format: table, json or yaml")
	models := fs.Bool("models", false, "show per-model statistics")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.requireLogin(); err != nil {
		return err
	}
	if *models {
		resp, err := a.chat.GetModelStats(ctx, nil)
		return a.printData(resp, err, *output)
	}
	resp, err := a.chat.GetChatStatistics(ctx, nil)
	return a.printData(resp, err, *output)
}

// status reports on local state only and never contacts the gateway.
func cmdStatus(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("status")
	output := fs.String("o", formatYAML, "output format: json or yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := validFormat(*output); err != nil {
		return err
	}
	st := a.session.Snapshot()
	report := struct {
		BaseURL   string               `json:"base_url" yaml:"base_url"`
		Config    string               `json:"config" yaml:"config"`
		Backend   string               `json:"storage_backend" yaml:"storage_backend"`
		LoggedIn  bool                 `json:"logged_in" yaml:"logged_in"`
		User      string               `json:"user,omitempty" yaml:"user,omitempty"`
		Token     string               `json:"token,omitempty" yaml:"token,omitempty"`
		StateDir  *util.StateBoxStatus `json:"state_dir" yaml:"state_dir"`
		Transport string               `json:"stream_transport" yaml:"stream_transport"`
	}{
		BaseURL:   a.cfg.BaseURL,
		Config:    a.configPath,
		Backend:   a.cfg.Storage.Backend,
		LoggedIn:  st.Token != "",
		User:      st.Name,
		Token:     util.HideAPIKey(st.Token),
		StateDir:  util.Inspect(a.sb, "config.yaml", "storage/local.json", "storage/chatdesk.db"),
		Transport: a.cfg.Stream.Transport,
	}
	if *output == formatTable {
		*output = formatYAML
	}
	return printValue(a.out, *output, report)
}
