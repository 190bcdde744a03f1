package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/traylinx/chatdesk/internal/api"
	"github.com/traylinx/chatdesk/internal/session"
	"github.com/traylinx/chatdesk/internal/transport"
)

// listFlags are shared by every listing subcommand.
type listFlags struct {
	output   string
	where    string
	pageNum  int
	pageSize int
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func (l *listFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&l.output, "o", formatTable, "output format: table, json or yaml")
	fs.StringVar(&l.where, "where", "", "keep rows matching this expression, e.g. 'status == \"active\"'")
	fs.IntVar(&l.pageNum, "page", 1, "page number")
	fs.IntVar(&l.pageSize, "size", 20, "page size")
}

func (l *listFlags) query() url.Values {
	return api.PageQuery(l.pageNum, l.pageSize)
}

// rowsOf extracts records from a response whose data is a list, a page
// object (items or rows) or a single object.
func rowsOf(resp *transport.Response) ([]record, error) {
	data := gjson.ParseBytes(resp.Data())
	var raw string
	switch {
	case data.IsArray():
		raw = data.Raw
	case data.Get("items").IsArray():
		raw = data.Get("items").Raw
	case data.Get("rows").IsArray():
		raw = data.Get("rows").Raw
	case data.IsObject():
		raw = "[" + data.Raw + "]"
	default:
		return nil, nil
	}
	var rows []record
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}

// printList renders a listing response after applying --where.
func (a *app) printList(resp *transport.Response, err error, lf *listFlags, columns ...string) error {
	if err != nil {
		return err
	}
	if err := validFormat(lf.output); err != nil {
		return err
	}
	rows, err := rowsOf(resp)
	if err != nil {
		return err
	}
	rows, err = filter(rows, lf.where)
	if err != nil {
		return err
	}
	return printRows(a.out, lf.output, rows, columns...)
}

// printData renders the data of a single-document response.
func (a *app) printData(resp *transport.Response, err error, format string) error {
	if err != nil {
		return err
	}
	if err := validFormat(format); err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(resp.Data(), &v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return printValue(a.out, format, v)
}

func (a *app) printMessage(resp *transport.Response, err error, fallback string) error {
	if err != nil {
		return err
	}
	msg := resp.JSON().Get("msg").String()
	if msg == "" {
		msg = resp.JSON().Get("message").String()
	}
	if msg == "" {
		msg = fallback
	}
	_, err = fmt.Fprintln(a.out, msg)
	return err
}

func splitSub(args []string, def string) (string, []string) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return def, args
	}
	return args[0], args[1:]
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func needArgs(fs *flag.FlagSet, n int, what string) error {
	if fs.NArg() < n {
		return fmt.Errorf("missing %s", what)
	}
	return nil
}

// login, logout, whoami

func cmdLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("login")
	var creds session.Credentials
	fs.StringVar(&creds.Username, "u", "", "user name")
	fs.StringVar(&creds.Password, "p", "", "password (default $CHATDESK_PASSWORD, or read from stdin)")
	fs.StringVar(&creds.Code, "code", "", "captcha code")
	fs.StringVar(&creds.UUID, "uuid", "", "captcha id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if creds.Username == "" {
		return errors.New("missing -u user name")
	}
	if creds.Password == "" {
		creds.Password = os.Getenv("CHATDESK_PASSWORD")
	}
	if creds.Password == "" && stdinIsPipe() {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		creds.Password = strings.TrimRight(line, "\r\n")
	}

	if err := a.session.Login(ctx, creds); err != nil {
		return err
	}
	if _, err := a.session.GetInfo(ctx); err != nil {
		return fmt.Errorf("logged in but profile unavailable: %w", err)
	}
	st := a.session.Snapshot()
	_, err := fmt.Fprintf(a.out, "Logged in as %s (%s)\n", st.Name, strings.Join(st.Roles, ", "))
	return err
}

func cmdLogout(ctx context.Context, a *app, args []string) error {
	if !a.session.IsLoggedIn() {
		_, err := fmt.Fprintln(a.out, "Not logged in.")
		return err
	}
	err := a.session.LogOut(ctx)
	fmt.Fprintln(a.out, "Logged out.")
	if err != nil {
		return fmt.Errorf("gateway logout failed, local session cleared: %w", err)
	}
	return nil
}

func cmdWhoami(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("whoami")
	output := fs.String("o", formatTable, "output format: table, json or yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := validFormat(*output); err != nil {
		return err
	}
	if err := a.requireLogin(); err != nil {
		return err
	}
	if _, err := a.session.GetInfo(ctx); err != nil {
		return err
	}
	st := a.session.Snapshot()
	return printValue(a.out, *output, record{
		"name":        st.Name,
		"avatar":      st.Avatar,
		"roles":       stringsToAny(st.Roles),
		"permissions": stringsToAny(st.Permissions),
	})
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// chats

func cmdChats(ctx context.Context, a *app, args []string) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	sub, args := splitSub(args, "list")
	fs := newFlagSet("chats " + sub)
	var lf listFlags
	lf.register(fs)
	group := fs.String("group", "", "only conversations in this group id")
	keyword := fs.String("keyword", "", "search keyword")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch sub {
	case "list":
		q := lf.query()
		if *group != "" {
			q.Set("group_id", *group)
		}
		if *keyword != "" {
			q.Set("keyword", *keyword)
		}
		resp, err := a.chat.GetChatList(ctx, q)
		return a.printList(resp, err, &lf, "id", "title", "model_id", "message_count", "updated_at")
	case "show":
		if err := needArgs(fs, 1, "conversation id"); err != nil {
			return err
		}
		resp, err := a.chat.GetChatDetail(ctx, fs.Arg(0))
		return a.printData(resp, err, lf.output)
	case "messages":
		if err := needArgs(fs, 1, "conversation id"); err != nil {
			return err
		}
		resp, err := a.chat.GetChatMessages(ctx, fs.Arg(0), lf.query())
		return a.printList(resp, err, &lf, "id", "role", "content", "created_at")
	case "search":
		q := lf.query()
		q.Set("keyword", strings.Join(fs.Args(), " "))
		resp, err := a.chat.SearchChats(ctx, q)
		return a.printData(resp, err, lf.output)
	case "delete":
		if err := needArgs(fs, 1, "conversation id"); err != nil {
			return err
		}
		if fs.NArg() == 1 {
			resp, err := a.chat.DeleteChat(ctx, fs.Arg(0))
			return a.printMessage(resp, err, "deleted")
		}
		resp, err := a.chat.BatchDeleteChats(ctx, fs.Args())
		return a.printMessage(resp, err, "deleted")
	case "clear":
		if err := needArgs(fs, 1, "conversation id"); err != nil {
			return err
		}
		resp, err := a.chat.ClearChatMessages(ctx, fs.Arg(0))
		return a.printMessage(resp, err, "cleared")
	case "title":
		if err := needArgs(fs, 1, "content"); err != nil {
			return err
		}
		resp, err := a.chat.GenerateChatTitle(ctx, api.TitleRequest{Content: strings.Join(fs.Args(), " ")})
		return a.printData(resp, err, lf.output)
	}
	return fmt.Errorf("unknown subcommand %q (list, show, messages, search, delete, clear, title)", sub)
}

// groups

func cmdGroups(ctx context.Context, a *app, args []string) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	sub, args := splitSub(args, "list")
	fs := newFlagSet("groups " + sub)
	var lf listFlags
	lf.register(fs)
	name := fs.String("name", "", "group name")
	description := fs.String("description", "", "group description")
	deleteChats := fs.Bool("delete-chats", false, "also delete the group's conversations")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch sub {
	case "list":
		resp, err := a.chat.GetChatGroups(ctx, nil)
		return a.printList(resp, err, &lf, "id", "name", "description", "sort")
	case "create":
		if *name == "" {
			return errors.New("missing -name")
		}
		resp, err := a.chat.CreateChatGroup(ctx, api.ChatGroup{Name: *name, Description: *description})
		return a.printMessage(resp, err, "created")
	case "rename":
		if err := needArgs(fs, 1, "group id"); err != nil {
			return err
		}
		ids, err := parseIDs(fs.Args()[:1])
		if err != nil {
			return err
		}
		resp, err := a.chat.UpdateChatGroup(ctx, api.ChatGroup{ID: ids[0], Name: *name, Description: *description})
		return a.printMessage(resp, err, "updated")
	case "delete":
		if err := needArgs(fs, 1, "group id"); err != nil {
			return err
		}
		ids, err := parseIDs(fs.Args()[:1])
		if err != nil {
			return err
		}
		resp, err := a.chat.DeleteChatGroup(ctx, ids[0], api.WithDeleteChats(*deleteChats))
		return a.printMessage(resp, err, "deleted")
	case "move":
		// move <group id> <chat id>...
		if err := needArgs(fs, 2, "group id and conversation id"); err != nil {
			return err
		}
		ids, err := parseIDs(fs.Args()[:1])
		if err != nil {
			return err
		}
		chats := fs.Args()[1:]
		if len(chats) == 1 {
			resp, err := a.chat.MoveChatToGroup(ctx, api.MoveToGroup{ChatID: chats[0], TargetGroupID: ids[0]})
			return a.printMessage(resp, err, "moved")
		}
		resp, err := a.chat.BatchMoveChatToGroup(ctx, api.BatchMove{ChatIDs: chats, TargetGroupID: ids[0]})
		return a.printMessage(resp, err, "moved")
	}
	return fmt.Errorf("unknown subcommand %q (list, create, rename, delete, move)", sub)
}

// keys

func cmdKeys(ctx context.Context, a *app, args []string) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	sub, args := splitSub(args, "list")
	fs := newFlagSet("keys " + sub)
	var lf listFlags
	lf.register(fs)
	status := fs.String("status", "", "filter (list) or new status (enable/disable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch sub {
	case "list":
		q := lf.query()
		if *status != "" {
			q.Set("status", *status)
		}
		resp, err := a.settings.ListAPIKeys(ctx, q)
		return a.printList(resp, err, &lf, "id", "model_name", "provider", "status", "description")
	case "show":
		ids, err := parseIDs(fs.Args())
		if err != nil || len(ids) != 1 {
			return errors.New("expected one api key id")
		}
		resp, err := a.settings.GetAPIKey(ctx, ids[0])
		return a.printData(resp, err, lf.output)
	case "stats":
		resp, err := a.settings.GetAPIKeyStats(ctx)
		return a.printData(resp, err, lf.output)
	case "test":
		ids, err := parseIDs(fs.Args())
		if err != nil || len(ids) != 1 {
			return errors.New("expected one api key id")
		}
		resp, err := a.settings.TestAPIKey(ctx, api.APIKeyTest{ID: &ids[0]})
		return a.printData(resp, err, lf.output)
	case "enable", "disable":
		ids, err := parseIDs(fs.Args())
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return errors.New("missing api key id")
		}
		to := "1"
		if sub == "disable" {
			to = "0"
		}
		if *status != "" {
			to = *status
		}
		resp, err := a.settings.BatchUpdateAPIKeyStatus(ctx, api.BatchStatus{IDs: ids, Status: to})
		return a.printMessage(resp, err, "updated")
	case "delete":
		ids, err := parseIDs(fs.Args())
		if err != nil {
			return err
		}
		switch len(ids) {
		case 0:
			return errors.New("missing api key id")
		case 1:
			resp, err := a.settings.DelAPIKey(ctx, ids[0])
			return a.printMessage(resp, err, "deleted")
		}
		resp, err := a.settings.DelAPIKeys(ctx, ids)
		return a.printMessage(resp, err, "deleted")
	}
	return fmt.Errorf("unknown subcommand %q (list, show, stats, test, enable, disable, delete)", sub)
}

// prompts

func cmdPrompts(ctx context.Context, a *app, args []string) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	sub, args := splitSub(args, "list")
	fs := newFlagSet("prompts " + sub)
	var lf listFlags
	lf.register(fs)
	category := fs.String("category", "", "only prompts in this category")
	input := fs.String("input", "", "test input for `prompts test`")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch sub {
	case "list":
		q := lf.query()
		if *category != "" {
			q.Set("category", *category)
		}
		resp, err := a.settings.ListPrompts(ctx, q)
		return a.printList(resp, err, &lf, "id", "title", "category", "tags")
	case "show", "copy", "delete", "test":
		ids, err := parseIDs(fs.Args())
		if err != nil || len(ids) == 0 {
			return errors.New("missing prompt id")
		}
		switch sub {
		case "show":
			resp, err := a.settings.GetPrompt(ctx, ids[0])
			return a.printData(resp, err, lf.output)
		case "copy":
			resp, err := a.settings.CopyPrompt(ctx, ids[0])
			return a.printMessage(resp, err, "copied")
		case "test":
			resp, err := a.settings.GetPrompt(ctx, ids[0])
			if err != nil {
				return err
			}
			content := resp.JSON().Get("data.content").String()
			resp, err = a.settings.TestPrompt(ctx, api.PromptTest{Content: content, TestInput: *input})
			return a.printData(resp, err, lf.output)
		}
		if len(ids) == 1 {
			resp, err := a.settings.DelPrompt(ctx, ids[0])
			return a.printMessage(resp, err, "deleted")
		}
		resp, err := a.settings.DelPrompts(ctx, ids)
		return a.printMessage(resp, err, "deleted")
	case "categories":
		resp, err := a.settings.GetPromptCategories(ctx)
		return a.printList(resp, err, &lf, "value", "label", "count")
	case "tags":
		resp, err := a.settings.GetPromptTags(ctx)
		return a.printList(resp, err, &lf, "name", "count")
	}
	return fmt.Errorf("unknown subcommand %q (list, show, copy, delete, test, categories, tags)", sub)
}
