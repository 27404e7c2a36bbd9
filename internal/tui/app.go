// Package tui is the terminal monitor for a running daemon: instance state,
// daemon health and the rows the backend has not acknowledged yet.
package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/wppbridge/internal/api"
	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/status"
	"github.com/matheus3301/wppbridge/internal/tui/keys"
	"github.com/matheus3301/wppbridge/internal/tui/model"
	"github.com/matheus3301/wppbridge/internal/tui/ui"
	"github.com/matheus3301/wppbridge/internal/tui/views"
	"github.com/matheus3301/wppbridge/internal/wa"
	"github.com/rivo/tview"
)

const (
	pagePending = "pending"
	pageAuth    = "auth"
	pageHelp    = "help"

	refreshEvery = 3 * time.Second
)

// Daemon is what the monitor needs from the daemon client.
type Daemon interface {
	model.Source
	Auth(ctx context.Context) (*wa.AuthEvent, error)
	Watch(ctx context.Context, prefix string, fn func(api.EventFrame)) error
}

// App is the monitor application shell.
type App struct {
	app      *tview.Application
	pages    *tview.Pages
	vm       *model.ViewModel
	daemon   Daemon
	registry *keys.Registry
	theme    *ui.Theme

	info      *ui.InstanceInfo
	banner    *ui.Banner
	menu      *ui.Menu
	flash     *ui.FlashBar
	prompt    *ui.Prompt
	statusBar *views.StatusBar
	pending   *views.PendingList
	authView  *views.AuthView
	helpView  *views.HelpView
	root      *tview.Flex

	refreshCh chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the monitor for instanceID.
func NewApp(d Daemon, instanceID string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		vm:        model.NewViewModel(d),
		daemon:    d,
		registry:  keys.NewRegistry(),
		theme:     theme,
		info:      ui.NewInstanceInfo(theme),
		menu:      ui.NewMenu(theme),
		flash:     ui.NewFlashBar(theme),
		banner:    ui.NewBanner(theme),
		prompt:    ui.NewPrompt(theme),
		statusBar: views.NewStatusBar(),
		pending:   views.NewPendingList(theme),
		authView:  views.NewAuthView(theme),
		helpView:  views.NewHelpView(theme),
		refreshCh: make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetInstance(instanceID)
	a.setupBindings()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Key: tcell.KeyRune, Rune: 'q', Label: "q",
		Description: "Quit", Visible: true,
		Handler: a.Stop,
	})
	a.registry.AddGlobal("help", &keys.Action{
		Key: tcell.KeyRune, Rune: '?', Label: "?",
		Description: "Help", Visible: true,
		Handler: func() { a.show(pageHelp) },
	})
	a.registry.AddGlobal("command", &keys.Action{
		Key: tcell.KeyRune, Rune: ':', Label: ":",
		Description: "Command", Visible: true,
		Handler: func() { a.openPrompt(ui.PromptCommand) },
	})
	a.registry.AddGlobal("refresh", &keys.Action{
		Key: tcell.KeyRune, Rune: 'r', Label: "r",
		Description: "Refresh", Visible: true,
		Handler: a.requestRefresh,
	})
	a.registry.AddView(pagePending, "sweep", &keys.Action{
		Key: tcell.KeyRune, Rune: 's', Label: "s",
		Description: "Sweep now", Visible: true,
		Handler: a.sweep,
	})
	a.registry.AddView(pagePending, "filter", &keys.Action{
		Key: tcell.KeyRune, Rune: '/', Label: "/",
		Description: "Filter", Visible: true,
		Handler: func() { a.openPrompt(ui.PromptFilter) },
	})
	a.registry.AddView(pageAuth, "pair", &keys.Action{
		Key: tcell.KeyRune, Rune: 'p', Label: "p",
		Description: "Start pairing", Visible: true,
		Handler: a.pair,
	})
	for _, page := range []string{pageAuth, pageHelp} {
		a.registry.AddView(page, "back", &keys.Action{
			Key: tcell.KeyEscape, Label: "Esc",
			Description: "Back", Visible: true,
			Handler: func() { a.show(pagePending) },
		})
	}

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.closePrompt()
		if mode == ui.PromptFilter {
			a.vm.SetFilter(text)
			a.redraw()
			return
		}
		a.runCommand(ParseCommand(text))
	})
	a.prompt.SetOnChange(func(text string) {
		a.vm.SetFilter(text)
		a.redraw()
	})
	a.prompt.SetOnCancel(func(mode ui.PromptMode, initial string) {
		a.closePrompt()
		if mode == ui.PromptFilter {
			a.vm.SetFilter(initial)
			a.redraw()
		}
	})
	a.prompt.SetCommands(CommandNames)
}

func (a *App) setupLayout() {
	header := tview.NewFlex().
		AddItem(a.info, 0, 2, false).
		AddItem(a.menu, 0, 1, false).
		AddItem(a.banner, 18, 0, false)

	a.pages.AddPage(pagePending, a.pending, true, true)
	a.pages.AddPage(pageAuth, a.authView, true, false)
	a.pages.AddPage(pageHelp, a.helpView, true, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 7, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.flash, 1, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(a.root, true)
	a.menu.Update(a.registry.Hints(pagePending))

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		// Let the prompt handle all keys while it is open.
		if _, ok := a.app.GetFocus().(*tview.InputField); ok {
			return event
		}
		page, _ := a.pages.GetFrontPage()
		if a.registry.HandleEvent(page, event) {
			return nil
		}
		return event
	})
}

func (a *App) show(page string) {
	a.pages.SwitchToPage(page)
	a.menu.Update(a.registry.Hints(page))
	switch page {
	case pageAuth:
		a.app.SetFocus(a.authView)
	case pageHelp:
		a.app.SetFocus(a.helpView)
	default:
		a.app.SetFocus(a.pending)
	}
}

func (a *App) openPrompt(mode ui.PromptMode) {
	initial := ""
	if mode == ui.PromptFilter {
		initial = a.vm.Filter()
	}
	a.prompt.Open(mode, initial)
	a.root.RemoveItem(a.flash)
	a.root.AddItem(a.prompt, 3, 0, true)
	a.app.SetFocus(a.prompt.InputField)
}

func (a *App) closePrompt() {
	a.root.RemoveItem(a.prompt)
	a.root.RemoveItem(a.statusBar)
	a.root.AddItem(a.flash, 1, 0, false)
	a.root.AddItem(a.statusBar, 1, 0, false)
	page, _ := a.pages.GetFrontPage()
	a.show(page)
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "quit":
		a.Stop()
	case "help":
		a.show(pageHelp)
	case "sweep":
		a.sweep()
	case "refresh":
		a.requestRefresh()
	case "pair":
		a.show(pageAuth)
		a.pair()
	case "filter":
		a.vm.SetFilter(cmd.Args)
		a.redraw()
	default:
		a.vm.Flash.Warn("unknown command: " + cmd.Name)
		a.redraw()
	}
}

func (a *App) sweep() {
	a.vm.Flash.Info("sweeping...")
	a.redraw()
	go func() {
		_ = a.vm.RunSweep(a.ctx)
		a.requestRefresh()
	}()
}

func (a *App) pair() {
	go func() {
		evt, err := a.daemon.Auth(a.ctx)
		if err != nil {
			a.vm.Flash.Err(err)
			a.app.QueueUpdateDraw(a.redraw)
			return
		}
		a.app.QueueUpdateDraw(func() {
			if evt.QRCode != "" {
				a.authView.ShowQR(evt.QRCode)
			} else {
				a.authView.ShowMessage(evt.Message)
			}
		})
	}()
}

func (a *App) requestRefresh() {
	select {
	case a.refreshCh <- struct{}{}:
	default:
	}
}

// redraw paints every view from the view model. Call on the UI goroutine.
func (a *App) redraw() {
	st := a.vm.Status()
	a.info.Update(st, a.vm.Health())
	a.banner.Update(st)

	rows, total := a.vm.Pending()
	a.pending.Update(rows, total, a.vm.Filter())

	state := "UNREACHABLE"
	if st != nil {
		state = string(st.State)
	}
	a.statusBar.Set(state, a.vm.Health())
	a.flash.Update(a.vm.Flash.Get())

	if code := a.vm.QRCode(); code != "" {
		a.authView.ShowQR(code)
	}

	page, _ := a.pages.GetFrontPage()
	needsAuth := st != nil && st.State == status.AuthRequired
	switch {
	case needsAuth && page == pagePending:
		a.show(pageAuth)
	case !needsAuth && st != nil && page == pageAuth:
		a.authView.ShowMessage("Authenticated")
		a.show(pagePending)
	}
}

// Run starts polling, the event stream and the UI loop.
func (a *App) Run() error {
	go a.pollLoop()
	go a.watchLoop()
	return a.app.Run()
}

func (a *App) pollLoop() {
	ticker := time.NewTicker(refreshEvery)
	defer ticker.Stop()
	for {
		if err := a.vm.Refresh(a.ctx); err != nil && a.ctx.Err() == nil {
			a.vm.Flash.Err(err)
		}
		a.app.QueueUpdateDraw(a.redraw)

		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
		case <-a.refreshCh:
		}
	}
}

// watchLoop follows the event stream and reconnects after a drop.
func (a *App) watchLoop() {
	for a.ctx.Err() == nil {
		_ = a.daemon.Watch(a.ctx, "", func(f api.EventFrame) {
			if a.vm.Apply(f) {
				a.requestRefresh()
			}
			if f.Kind == bus.KindQRGenerated {
				a.app.QueueUpdateDraw(a.redraw)
			}
		})
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(refreshEvery):
		}
	}
}

// Stop gracefully shuts down the monitor.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
