package tui

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatter/internal/rpc"
	"github.com/matheus3301/chatter/internal/tui/keys"
	"github.com/matheus3301/chatter/internal/tui/model"
	"github.com/matheus3301/chatter/internal/tui/ui"
	"github.com/matheus3301/chatter/internal/tui/views"
	"github.com/rivo/tview"
)

const (
	pageAuth    = "auth"
	pageFriends = "friends"
	pageThread  = "thread"
	pageDetails = "details"
	pageHelp    = "help"
	pageInvite  = "invite"
)

const pollInterval = 3 * time.Second

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	theme     *ui.Theme
	root      *tview.Flex
	pages     *ui.Pages
	crumbs    *ui.Crumbs
	menu      *ui.Menu
	info      *ui.SessionInfo
	flash     *ui.FlashModel
	flashBar  *ui.FlashBar
	prompt    *ui.Prompt
	registry  *keys.Registry
	vm        *model.ViewModel
	client    *rpc.Client
	workspace string

	friends *views.FriendList
	thread  *views.Thread
	details *views.PeerInfo
	help    *views.HelpView
	invite  *views.InviteView
	auth    *views.AuthView

	components map[string]ui.Component
	promptOpen bool

	ctx    context.Context
	cancel context.CancelFunc

	watchMu     sync.Mutex
	watching    string
	watchCancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c *rpc.Client, workspace string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		theme:     theme,
		pages:     ui.NewPages(),
		crumbs:    ui.NewCrumbs(theme),
		menu:      ui.NewMenu(theme),
		info:      ui.NewSessionInfo(theme),
		flash:     ui.NewFlashModel(),
		flashBar:  ui.NewFlashBar(theme),
		prompt:    ui.NewPrompt(theme),
		registry:  keys.NewRegistry(),
		vm:        model.NewViewModel(c),
		client:    c,
		workspace: workspace,
		friends:   views.NewFriendList(theme),
		thread:    views.NewThread(theme),
		details:   views.NewPeerInfo(theme),
		help:      views.NewHelpView(theme),
		invite:    views.NewInviteView(theme),
		auth:      views.NewAuthView(theme),
		ctx:       ctx,
		cancel:    cancel,
	}
	a.components = map[string]ui.Component{
		pageAuth:    a.auth,
		pageFriends: a.friends,
		pageThread:  a.thread,
		pageDetails: a.details,
		pageHelp:    a.help,
		pageInvite:  a.invite,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: ':', Description: "Command", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptCommand, "") },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: '?', Description: "Help", Visible: true,
		Handler: func() { a.push(pageHelp) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'q', Description: "Quit", Visible: true,
		Handler: a.Stop,
	})

	a.registry.AddView(pageFriends, &keys.Action{
		Key: tcell.KeyRune, Rune: '/', Description: "Filter", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptFilter, "") },
	})
	a.registry.AddView(pageFriends, &keys.Action{
		Key: tcell.KeyRune, Rune: 'a', Description: "Add friend", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptCommand, "add ") },
	})
	a.registry.AddView(pageFriends, &keys.Action{
		Key: tcell.KeyRune, Rune: '0', Description: "Clear filter",
		Handler: a.friends.ClearFilter,
	})
	for n := 1; n <= 9; n++ {
		a.registry.AddView(pageFriends, &keys.Action{
			Key: tcell.KeyRune, Rune: rune('0' + n),
			Handler: func() {
				if id := a.friends.FriendByIndex(n); id != "" {
					a.openChat(id)
				}
			},
		})
	}

	a.registry.AddView(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'i', Description: "Compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.AddView(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'd', Description: "Details", Visible: true,
		Handler: func() { a.push(pageDetails) },
	})
}

func (a *App) setupCallbacks() {
	a.friends.SetSelectedFunc(func(row, col int) {
		if id := a.friends.SelectedFriend(); id != "" {
			a.openChat(id)
		}
	})

	a.thread.SetOnSend(func(text string) {
		go func() {
			if err := a.vm.SendText(a.ctx, text); err != nil {
				a.flash.Err(err)
			}
		}()
	})

	a.auth.SetOnSignIn(func(email, password string) {
		go a.authenticate(func() error { return a.vm.SignIn(a.ctx, email, password) })
	})
	a.auth.SetOnSignUp(func(email, password, name string) {
		go a.authenticate(func() error { return a.vm.SignUp(a.ctx, email, password, name) })
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptCommand:
			a.runCommand(ParseCommand(text))
		case ui.PromptFilter:
			a.friends.SetFilter(text)
		}
	})
	a.prompt.SetOnCancel(a.hidePrompt)

	a.pages.SetOnChange(func(stack []string) {
		names := make([]string, len(stack))
		for i, p := range stack {
			names[i] = a.components[p].Name()
		}
		a.crumbs.Update(names)
		if len(stack) > 0 {
			a.menu.Update(append(a.components[stack[len(stack)-1]].Hints(), a.registry.Hints(stack[len(stack)-1])...))
		}
	})
}

func (a *App) setupLayout() {
	for name, c := range a.components {
		a.pages.AddPage(name, c, true, false)
	}

	header := tview.NewFlex().
		AddItem(a.info, 0, 2, false).
		AddItem(a.menu, 0, 2, false).
		AddItem(ui.NewLogo(a.theme), 14, 0, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 8, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.flashBar, 1, 0, false)

	a.app.SetRoot(a.root, true)
	a.app.SetInputCapture(a.handleKey)
}

func (a *App) handleKey(event *tcell.EventKey) *tcell.EventKey {
	current := a.pages.Current()

	if event.Key() == tcell.KeyEscape {
		switch {
		case a.promptOpen:
			return event // the prompt cancels itself
		case a.app.GetFocus() == a.thread.Composer():
			a.app.SetFocus(a.thread.Messages())
			return nil
		case a.pages.Depth() > 1:
			a.back()
			return nil
		}
		return event
	}

	// Let text input widgets and the sign-in form handle all other keys.
	if _, ok := a.app.GetFocus().(*tview.InputField); ok || current == pageAuth {
		return event
	}

	if a.registry.HandleEvent(current, event) {
		return nil
	}
	return event
}

func (a *App) push(page string) {
	if a.pages.Current() == page {
		return
	}
	a.pages.Push(page)
	a.focusPage(page)
}

func (a *App) back() {
	if a.pages.Pop() == pageThread {
		go func() {
			if err := a.vm.CloseChat(a.ctx); err != nil {
				a.flash.Err(err)
			}
		}()
	}
	a.focusPage(a.pages.Current())
}

func (a *App) focusPage(page string) {
	switch page {
	case pageThread:
		a.app.SetFocus(a.thread.Messages())
	default:
		if c, ok := a.components[page]; ok {
			a.app.SetFocus(c)
		}
	}
}

func (a *App) showPrompt(mode ui.PromptMode, text string) {
	a.prompt.Activate(mode)
	a.prompt.SetText(text)
	a.promptOpen = true
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.promptOpen = false
	a.root.ResizeItem(a.prompt, 0, 0)
	a.focusPage(a.pages.Current())
}

func (a *App) openChat(identity string) {
	name := a.friends.NameOf(identity)
	go func() {
		if err := a.vm.Open(a.ctx, identity); err != nil {
			a.flash.Err(err)
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.thread.SetPeerName(name)
			a.thread.Update(nil)
			a.push(pageThread)
		})
	}()
}

func (a *App) authenticate(fn func() error) {
	if err := fn(); err != nil {
		a.flash.Err(err)
		return
	}
	a.app.QueueUpdateDraw(a.auth.Reset)
}

func (a *App) runCommand(cmd Command) {
	args := cmd.Fields()
	switch cmd.Name {
	case "q", "quit":
		a.Stop()
	case "h", "help":
		a.push(pageHelp)
	case "add":
		if len(args) != 1 {
			a.flash.Warn("usage: add <email>")
			return
		}
		go func() {
			p, err := a.vm.AddFriend(a.ctx, args[0])
			if err != nil {
				a.flash.Err(err)
				return
			}
			a.flash.Info("Added " + p.DisplayName)
		}()
	case "open":
		if len(args) != 1 {
			a.flash.Warn("usage: open <email>")
			return
		}
		go func() {
			p, err := a.vm.Find(a.ctx, args[0])
			if err != nil {
				a.flash.Err(err)
				return
			}
			a.app.QueueUpdateDraw(func() { a.openChat(p.Identity) })
		}()
	case "attach":
		if cmd.Args == "" || a.pages.Current() != pageThread {
			a.flash.Warn("usage: attach <file> (in a conversation)")
			return
		}
		go func() {
			if err := a.vm.SendFile(a.ctx, cmd.Args); err != nil {
				a.flash.Err(err)
			}
		}()
	case "invite":
		me := a.vm.Me()
		if me == nil {
			a.flash.Warn("sign in first")
			return
		}
		a.invite.Show(me.DisplayName, me.Email)
		a.push(pageInvite)
	case "close":
		if a.pages.Current() == pageThread {
			a.back()
		}
	case "signout":
		go func() {
			if err := a.vm.SignOut(a.ctx); err != nil {
				a.flash.Err(err)
			}
		}()
	default:
		a.flash.Warn(fmt.Sprintf("unknown command: %s", cmd.Name))
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	a.pages.Reset(pageFriends)
	go a.pollLoop()
	go a.renderLoop()
	return a.app.Run()
}

// pollLoop refreshes status and friends and keeps the streams attached to
// the signed-in identity.
func (a *App) pollLoop() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if err := a.vm.LoadStatus(a.ctx); err != nil {
			a.flash.Err(err)
		} else {
			identity := ""
			if st := a.vm.Status(); st != nil {
				identity = st.Identity
			}
			a.attach(identity)
			if identity != "" {
				if err := a.vm.LoadFriends(a.ctx); err != nil {
					a.flash.Err(err)
				}
			}
		}
		select {
		case <-ticker.C:
		case <-a.ctx.Done():
			return
		}
	}
}

// attach (re)starts the summary and chat streams when the identity changes.
func (a *App) attach(identity string) {
	a.watchMu.Lock()
	defer a.watchMu.Unlock()
	if identity == a.watching {
		return
	}
	if a.watchCancel != nil {
		a.watchCancel()
		a.watchCancel = nil
	}
	previous := a.watching
	a.watching = identity
	if identity == "" {
		return
	}
	if previous != "" {
		// The daemon closed the conversation when the identity switched.
		a.app.QueueUpdateDraw(func() {
			a.pages.Reset(pageFriends)
			a.app.SetFocus(a.friends)
		})
	}
	ctx, cancel := context.WithCancel(a.ctx)
	a.watchCancel = cancel
	a.vm.ClearSummaries()
	go a.watchSummaries(ctx, identity)
	go a.watchChat(ctx, identity)
}

// detach forgets a stream that ended on its own so the next poll restarts it.
func (a *App) detach(ctx context.Context, identity string) {
	if ctx.Err() != nil {
		return
	}
	a.watchMu.Lock()
	defer a.watchMu.Unlock()
	if a.watching == identity {
		a.watchCancel()
		a.watching, a.watchCancel = "", nil
	}
}

func (a *App) watchSummaries(ctx context.Context, identity string) {
	defer a.detach(ctx, identity)
	stream, err := a.client.WatchSummaries(ctx)
	if err != nil {
		a.flash.Err(err)
		return
	}
	for {
		evt, err := stream.Recv()
		if err != nil {
			return
		}
		a.vm.ApplySummary(evt)
	}
}

func (a *App) watchChat(ctx context.Context, identity string) {
	defer a.detach(ctx, identity)
	stream, err := a.client.WatchChat(ctx)
	if err != nil {
		a.flash.Err(err)
		return
	}
	for {
		evt, err := stream.Recv()
		if err != nil {
			return
		}
		if notice := a.vm.ApplyChatEvent(evt); notice != "" {
			a.flash.Warn(notice)
		}
	}
}

func (a *App) renderLoop() {
	expiry := time.NewTicker(time.Second)
	defer expiry.Stop()
	for {
		select {
		case <-a.vm.RefreshCh():
			a.app.QueueUpdateDraw(a.render)
		case msg := <-a.flash.Watch():
			a.app.QueueUpdateDraw(func() { a.flashBar.Update(&msg) })
		case <-expiry.C:
			a.app.QueueUpdateDraw(func() { a.flashBar.Update(a.flash.GetMessage()) })
		case <-a.ctx.Done():
			return
		}
	}
}

// render copies the view model into the widgets. Runs on the UI goroutine.
func (a *App) render() {
	st := a.vm.Status()
	if st == nil {
		return
	}

	data := &ui.SessionData{
		Workspace: st.Workspace,
		Status:    st.Status,
		Chat:      st.ChatState,
		Friends:   a.vm.FriendCount(),
		Pending:   st.PendingReplicas,
		Uptime:    time.Duration(st.UptimeMs) * time.Millisecond,
	}
	if me := a.vm.Me(); me != nil {
		data.Name, data.Email = me.DisplayName, me.Email
	}
	a.info.Update(data)

	a.friends.SetSelf(st.Identity)
	a.friends.Update(a.vm.Rows())

	peer, items := a.vm.Thread()
	if peer != nil {
		a.thread.SetPeerName(peer.DisplayName)
	}
	a.thread.Update(items)
	a.details.Update(peer, len(items))

	switch current := a.pages.Current(); {
	case st.Identity == "" && current != pageAuth:
		a.pages.Reset(pageAuth)
		a.app.SetFocus(a.auth)
	case st.Identity != "" && current == pageAuth:
		a.pages.Reset(pageFriends)
		a.app.SetFocus(a.friends)
	}
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
