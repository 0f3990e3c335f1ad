package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/chatter/internal/rpc"
	"github.com/matheus3301/chatter/internal/workspace"
	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/term"
)

func main() {
	workspaceFlag := flag.String("workspace", "", "workspace name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	name := workspace.Resolve(*workspaceFlag)
	if err := workspace.ValidateName(name); err != nil {
		fatalf("%v", err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c, err := rpc.Dial(workspace.SocketPath(name))
	if err != nil {
		fatalf("cannot connect to daemon for workspace %q: %v", name, err)
	}
	defer func() { _ = c.Close() }()

	cli := &ctl{c: c, json: *jsonFlag}
	cmd, rest := args[0], args[1:]

	// Streaming commands run until interrupted.
	switch cmd {
	case "watch", "summaries":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if cmd == "watch" {
			cli.watch(ctx)
		} else {
			cli.summaries(ctx)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {
	case "status":
		cli.status(ctx)
	case "signup":
		need(rest, 2, "signup <email> <display-name> [avatar-file]")
		cli.signUp(ctx, rest)
	case "signin":
		need(rest, 1, "signin <email>")
		cli.signIn(ctx, rest[0])
	case "signout":
		check(c.SignOut(ctx))
		fmt.Println("Signed out.")
	case "whoami":
		cli.whoAmI(ctx)
	case "profile":
		cli.profile(ctx, rest)
	case "find":
		need(rest, 1, "find <email>")
		p, err := c.FindByContact(ctx, rest[0])
		check(err)
		cli.printProfile(p)
	case "add":
		need(rest, 1, "add <email>")
		cli.add(ctx, rest[0])
	case "friends":
		cli.friends(ctx)
	case "open":
		need(rest, 1, "open <email|identity>")
		cli.open(ctx, rest[0])
	case "close":
		check(c.CloseChat(ctx))
	case "send":
		need(rest, 1, "send <text>")
		check(c.SendText(ctx, strings.Join(rest, " ")))
	case "attach":
		need(rest, 1, "attach <file>")
		data, err := os.ReadFile(rest[0])
		check(err)
		check(c.SendAttachment(ctx, filepath.Base(rest[0]), data))
	case "history":
		cli.history(ctx, rest)
	case "save":
		need(rest, 2, "save <msg-id> <file> [peer]")
		cli.save(ctx, rest)
	case "invite":
		cli.invite(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatterctl [--workspace <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                         Show daemon status")
	fmt.Fprintln(os.Stderr, "  signup <email> <name> [avatar] Create an account and sign in")
	fmt.Fprintln(os.Stderr, "  signin <email>                 Sign in (prompts for password)")
	fmt.Fprintln(os.Stderr, "  signout                        Sign out")
	fmt.Fprintln(os.Stderr, "  whoami                         Show the signed-in identity")
	fmt.Fprintln(os.Stderr, "  profile [name [avatar]]        Show or update your profile")
	fmt.Fprintln(os.Stderr, "  find <email>                   Look up a user by email")
	fmt.Fprintln(os.Stderr, "  add <email>                    Add a friend by email")
	fmt.Fprintln(os.Stderr, "  friends                        List friends")
	fmt.Fprintln(os.Stderr, "  open <email|identity>          Open a conversation")
	fmt.Fprintln(os.Stderr, "  close                          Close the open conversation")
	fmt.Fprintln(os.Stderr, "  send <text>                    Send text to the open conversation")
	fmt.Fprintln(os.Stderr, "  attach <file>                  Send a file to the open conversation")
	fmt.Fprintln(os.Stderr, "  history [peer] [limit]         Print a conversation")
	fmt.Fprintln(os.Stderr, "  save <msg-id> <file> [peer]    Download an attachment")
	fmt.Fprintln(os.Stderr, "  watch                          Stream the open conversation")
	fmt.Fprintln(os.Stderr, "  summaries                      Stream last-message summaries")
	fmt.Fprintln(os.Stderr, "  invite                         Print a QR code friends can scan")
}

type ctl struct {
	c    *rpc.Client
	json bool
}

func (t *ctl) status(ctx context.Context) {
	resp, err := t.c.GetStatus(ctx)
	check(err)
	if t.json {
		outputJSON(resp)
		return
	}
	fmt.Printf("Workspace: %s\n", resp.Workspace)
	fmt.Printf("Status:    %s\n", resp.Status)
	if resp.Identity != "" {
		fmt.Printf("Identity:  %s\n", resp.Identity)
	}
	fmt.Printf("Chat:      %s %s\n", resp.ChatState, resp.OpenPeer)
	fmt.Printf("Entries:   %d\n", resp.EntryCount)
	fmt.Printf("Replicas:  %d pending, %d failed (repair=%v)\n", resp.PendingReplicas, resp.FailedReplicas, resp.Repair)
	fmt.Printf("Uptime:    %dms\n", resp.UptimeMs)
}

func (t *ctl) signUp(ctx context.Context, args []string) {
	req := &rpc.SignUpRequest{
		Email:       args[0],
		DisplayName: args[1],
		Password:    readPassword(),
	}
	if len(args) > 2 {
		data, err := os.ReadFile(args[2])
		check(err)
		req.AvatarName, req.Avatar = filepath.Base(args[2]), data
	}
	resp, err := t.c.SignUp(ctx, req)
	check(err)
	t.printIdentity(resp)
}

func (t *ctl) signIn(ctx context.Context, email string) {
	resp, err := t.c.SignIn(ctx, &rpc.SignInRequest{Email: email, Password: readPassword()})
	check(err)
	t.printIdentity(resp)
}

func (t *ctl) whoAmI(ctx context.Context) {
	resp, err := t.c.WhoAmI(ctx)
	check(err)
	t.printIdentity(resp)
}

func (t *ctl) profile(ctx context.Context, args []string) {
	if len(args) == 0 {
		p, err := t.c.GetProfile(ctx, "")
		check(err)
		t.printProfile(p)
		return
	}
	req := &rpc.UpdateProfileRequest{DisplayName: args[0]}
	if len(args) > 1 {
		data, err := os.ReadFile(args[1])
		check(err)
		req.AvatarName, req.Avatar = filepath.Base(args[1]), data
	}
	p, err := t.c.UpdateProfile(ctx, req)
	check(err)
	t.printProfile(p)
}

func (t *ctl) add(ctx context.Context, email string) {
	p, err := t.c.FindByContact(ctx, email)
	check(err)
	check(t.c.AddFriend(ctx, p.Identity))
	fmt.Printf("Added %s (%s).\n", p.DisplayName, p.Identity)
}

func (t *ctl) friends(ctx context.Context) {
	list, err := t.c.ListFriends(ctx)
	check(err)
	if t.json {
		outputJSON(list)
		return
	}
	if len(list) == 0 {
		fmt.Println("No friends yet.")
		return
	}
	for _, p := range list {
		fmt.Printf("%-24s %-28s %s\n", p.DisplayName, p.Email, p.Identity)
	}
}

// open accepts an email address or a raw identity.
func (t *ctl) open(ctx context.Context, who string) {
	peer := who
	if strings.Contains(who, "@") {
		p, err := t.c.FindByContact(ctx, who)
		check(err)
		peer = p.Identity
	}
	check(t.c.OpenChat(ctx, peer))
	fmt.Printf("Opened conversation with %s.\n", peer)
}

func (t *ctl) history(ctx context.Context, args []string) {
	var peer string
	limit := 50
	if len(args) > 0 {
		peer = args[0]
	}
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		check(err)
		limit = n
	}
	msgs, err := t.c.History(ctx, peer, limit)
	check(err)
	if t.json {
		outputJSON(msgs)
		return
	}
	for _, m := range msgs {
		printMessage(m)
	}
}

func (t *ctl) watch(ctx context.Context) {
	stream, err := t.c.WatchChat(ctx)
	check(err)
	printed := make(map[string]bool)
	for {
		evt, err := stream.Recv()
		if err != nil {
			if ctx.Err() == nil {
				fmt.Fprintf(os.Stderr, "stream ended: %v\n", err)
			}
			return
		}
		if t.json {
			outputJSON(evt)
			continue
		}
		switch evt.Kind {
		case rpc.ChatEventState:
			fmt.Printf("-- %s\n", evt.State)
		case rpc.ChatEventPeer:
			if evt.Peer != nil {
				fmt.Printf("-- talking to %s\n", evt.Peer.DisplayName)
			}
		case rpc.ChatEventNotice:
			fmt.Printf("!! %s\n", evt.Notice)
		case rpc.ChatEventMessages:
			for _, m := range evt.Messages {
				if printed[m.MsgID] && !m.Pending {
					continue
				}
				printed[m.MsgID] = true
				printMessage(m)
			}
		}
	}
}

func (t *ctl) summaries(ctx context.Context) {
	stream, err := t.c.WatchSummaries(ctx)
	check(err)
	for {
		evt, err := stream.Recv()
		if err != nil {
			if ctx.Err() == nil {
				fmt.Fprintf(os.Stderr, "stream ended: %v\n", err)
			}
			return
		}
		if t.json {
			outputJSON(evt)
			continue
		}
		if evt.Removed {
			fmt.Printf("- %s\n", evt.Peer)
			continue
		}
		fmt.Printf("%-24s %-8s %s\n", evt.DisplayName, formatTime(evt.CreatedAt), evt.DisplayText)
	}
}

// invite renders the caller's email as a QR code for FindByContact.
func (t *ctl) invite(ctx context.Context) {
	p, err := t.c.GetProfile(ctx, "")
	check(err)
	qr, err := qrcode.New("chatter:add?email="+p.Email, qrcode.Medium)
	check(err)
	fmt.Print(qr.ToSmallString(false))
	fmt.Printf("Scan to add %s <%s>\n", p.DisplayName, p.Email)
}

func (t *ctl) printIdentity(resp *rpc.IdentityResponse) {
	if t.json {
		outputJSON(resp)
		return
	}
	if !resp.SignedIn {
		fmt.Println("Signed out.")
		return
	}
	fmt.Printf("Identity: %s\n", resp.Identity)
	if resp.Profile != nil {
		fmt.Printf("Name:     %s\n", resp.Profile.DisplayName)
		fmt.Printf("Email:    %s\n", resp.Profile.Email)
	}
}

func (t *ctl) printProfile(p *rpc.Profile) {
	if t.json {
		outputJSON(p)
		return
	}
	fmt.Printf("Identity: %s\n", p.Identity)
	fmt.Printf("Name:     %s\n", p.DisplayName)
	if p.Email != "" {
		fmt.Printf("Email:    %s\n", p.Email)
	}
	if p.AvatarURL != "" {
		fmt.Printf("Avatar:   %s\n", p.AvatarURL)
	}
}

// save writes an attachment to file. peer defaults to the open conversation.
func (t *ctl) save(ctx context.Context, args []string) {
	var peer string
	if len(args) > 2 {
		peer = args[2]
	}
	resp, err := t.c.FetchAttachment(ctx, peer, args[0])
	check(err)
	check(os.WriteFile(args[1], resp.Data, 0644))
	fmt.Printf("Saved %s (%d bytes) to %s.\n", resp.Ref, len(resp.Data), args[1])
}

func printMessage(m *rpc.Message) {
	who := m.Sender
	if m.Mine {
		who = "you"
	}
	body := m.Text
	switch {
	case m.Failed:
		body = "[attachment unavailable] " + m.Text
	case m.Pending:
		body = "[loading] " + m.Text
	case m.Unsupported:
		body = "[unsupported] " + m.URL
	case m.IsAttachment:
		body = fmt.Sprintf("[%s] %s", m.Kind, m.URL)
	}
	if m.IsAttachment {
		body += "  #" + m.MsgID
	}
	if m.Undelivered {
		body = "[undelivered] " + body
	}
	fmt.Printf("%s %-10s %s\n", formatTime(m.CreatedAt), who, body)
}

func formatTime(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).Format("01/02 15:04")
}

// readPassword prompts on the terminal, or reads CHATTER_PASSWORD when stdin
// is not a terminal.
func readPassword() string {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return os.Getenv("CHATTER_PASSWORD")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	check(err)
	return string(pw)
}

func need(args []string, n int, usage string) {
	if len(args) < n {
		fatalf("usage: chatterctl %s", usage)
	}
}

func check(err error) {
	if err != nil {
		fatalf("%v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
