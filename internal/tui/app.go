// Package tui is the terminal client of the daemon.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/crmchat/internal/api"
	"github.com/matheus3301/crmchat/internal/bus"
	"github.com/matheus3301/crmchat/internal/message"
	"github.com/matheus3301/crmchat/internal/tui/keys"
	"github.com/matheus3301/crmchat/internal/tui/model"
	"github.com/matheus3301/crmchat/internal/tui/ui"
	"github.com/matheus3301/crmchat/internal/tui/views"
)

const (
	pageConversations = "conversations"
	pageThread        = "thread"
	pageFields        = "fields"
	pageHelp          = "help"
)

// Watcher streams daemon events.
type Watcher interface {
	Watch(ctx context.Context, prefix string, fn func(api.Event) error) error
}

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	root     *tview.Flex
	pages    *ui.Pages
	header   *ui.Header
	prompt   *ui.Prompt
	flashBar *ui.FlashBar
	flash    *ui.FlashModel
	theme    *ui.Theme
	registry *keys.Registry

	convList *views.ConversationList
	thread   *views.MessageThread
	fields   *views.FieldsView
	help     *views.HelpView

	vm      *model.ViewModel
	watcher Watcher
	profile string
	editing string

	refreshCh chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c *api.Client, profileName string, theme *ui.Theme) *App {
	return newApp(c, c, profileName, theme)
}

func newApp(b model.Backend, w Watcher, profileName string, theme *ui.Theme) *App {
	ctx, cancel := context.WithCancel(context.Background())
	if theme == nil {
		theme = ui.DefaultTheme()
	}

	a := &App{
		app:       tview.NewApplication(),
		pages:     ui.NewPages(),
		header:    ui.NewHeader(theme),
		prompt:    ui.NewPrompt(theme),
		flashBar:  ui.NewFlashBar(theme),
		flash:     ui.NewFlashModel(),
		theme:     theme,
		registry:  keys.NewRegistry(),
		convList:  views.NewConversationList(theme),
		thread:    views.NewMessageThread(theme),
		fields:    views.NewFieldsView(theme),
		help:      views.NewHelpView(theme),
		vm:        model.NewViewModel(b),
		watcher:   w,
		profile:   profileName,
		refreshCh: make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: ':', Description: "Command", Visible: true,
		Handler: func() { a.activatePrompt(ui.PromptCommand, "") },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: '?', Description: "Help", Visible: true,
		Handler: func() { a.pages.Push(pageHelp) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'q', Description: "Quit", Visible: true,
		Handler: a.Stop,
	})

	a.registry.AddPage(pageConversations, &keys.Action{
		Key: tcell.KeyRune, Rune: '/', Description: "Filter", Visible: true,
		Handler: func() { a.activatePrompt(ui.PromptFilter, "") },
	})
	a.registry.AddPage(pageConversations, &keys.Action{
		Key: tcell.KeyRune, Rune: 'r', Description: "Reload", Visible: true,
		Handler: a.requestRefresh,
	})
	for n := 1; n <= 9; n++ {
		a.registry.AddPage(pageConversations, &keys.Action{
			Key: tcell.KeyRune, Rune: rune('0' + n),
			Handler: func() {
				if id := a.convList.ByIndex(n); id != "" {
					a.openConversation(id)
				}
			},
		})
	}

	a.registry.AddPage(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'i', Description: "Compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.AddPage(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: ' ', Label: "Space", Description: "Mark", Visible: true,
		Handler: a.thread.ToggleMark,
	})
	a.registry.AddPage(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'c', Description: "Clear marks",
		Handler: a.thread.ClearMarks,
	})
	a.registry.AddPage(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'p', Description: "Prefill", Visible: true,
		Handler: a.prefill,
	})
	a.registry.AddPage(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'e', Description: "Edit", Visible: true,
		Handler: a.beginEdit,
	})
	a.registry.AddPage(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'x', Description: "Delete", Visible: true,
		Handler: a.deleteCurrent,
	})
	a.registry.AddPage(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'D', Description: "Discard", Visible: true,
		Handler: a.discardCurrent,
	})
	a.registry.AddPage(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'R', Description: "Resend", Visible: true,
		Handler: a.resendCurrent,
	})
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectedFunc(func(_, _ int) {
		if id := a.convList.Selected(); id != "" {
			a.openConversation(id)
		}
	})

	a.thread.SetOnSend(func(text string) {
		a.run("send", func(ctx context.Context) error {
			_, err := a.vm.SendText(ctx, text, "")
			return err
		})
	})

	a.prompt.SetCommands(commandNames)
	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.closePrompt()
		switch mode {
		case ui.PromptCommand:
			a.execCommand(ParseCommand(text))
		case ui.PromptFilter:
			a.convList.SetFilter(text)
		case ui.PromptEdit:
			id := a.editing
			a.editing = ""
			a.run("edit", func(ctx context.Context) error {
				return a.vm.EditMessage(ctx, id, text)
			})
		}
	})
	a.prompt.SetOnCancel(func() {
		a.editing = ""
		a.closePrompt()
	})

	a.pages.SetOnChange(func(crumbs []string) {
		a.header.SetCrumbs(crumbs)
		a.header.SetHints(a.registry.Hints(a.pages.Current()))
		a.focusCurrent()
	})
}

func (a *App) setupLayout() {
	a.pages.AddPage(pageConversations, a.convList, true, false)
	a.pages.AddPage(pageThread, a.thread, true, false)
	a.pages.AddPage(pageFields, a.fields, true, false)
	a.pages.AddPage(pageHelp, a.help, true, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.header, 6, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.flashBar, 1, 0, false)
	a.app.SetRoot(a.root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		focused := a.app.GetFocus()
		if focused == a.thread.Composer() {
			if event.Key() == tcell.KeyEscape {
				a.app.SetFocus(a.thread.Table())
				return nil
			}
			return event
		}
		// Prompt handles its own Enter/Escape.
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}

		if event.Key() == tcell.KeyEscape {
			if a.pages.Current() == pageThread {
				a.thread.ClearMarks()
			}
			a.pages.Pop()
			return nil
		}
		if a.registry.HandleEvent(a.pages.Current(), event) {
			return nil
		}
		return event
	})

	a.pages.Reset(pageConversations)
}

func (a *App) activatePrompt(mode ui.PromptMode, initial string) {
	a.prompt.Activate(mode, initial)
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) closePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	a.focusCurrent()
}

func (a *App) focusCurrent() {
	switch a.pages.Current() {
	case pageThread:
		a.app.SetFocus(a.thread.Table())
	case pageFields:
		a.app.SetFocus(a.fields)
	case pageHelp:
		a.app.SetFocus(a.help)
	default:
		a.app.SetFocus(a.convList)
	}
}

func (a *App) execCommand(cmd Command) {
	switch cmd.Name {
	case "quit":
		a.Stop()
	case "help":
		a.pages.Push(pageHelp)
	case "open":
		if cmd.Args == "" {
			a.flash.Warn("usage: :open <conversation>")
			return
		}
		a.openConversation(cmd.Args)
	case "prefill":
		a.prefill()
	default:
		a.flash.Warn(fmt.Sprintf("unknown command %q", cmd.Name))
	}
}

func (a *App) openConversation(id string) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, 10*time.Second)
		defer cancel()
		if err := a.vm.OpenConversation(ctx, id); err != nil {
			a.flash.Report("open", err)
			return
		}
		self := ""
		if st := a.vm.Status(); st != nil {
			self = st.SenderID
		}
		a.app.QueueUpdateDraw(func() {
			a.thread.SetConversation(id, self)
			a.thread.Update(a.vm.Messages())
			a.pages.SetTitle(pageThread, "thread "+id)
			a.pages.Reset(pageConversations, pageThread)
		})
		a.requestRefresh()
	}()
}

func (a *App) prefill() {
	if a.pages.Current() != pageThread {
		a.flash.Warn("open a conversation first")
		return
	}
	ids := a.thread.Marked()
	if len(ids) == 0 {
		a.flash.Warn("no message selected")
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, 10*time.Second)
		defer cancel()
		fields, err := a.vm.Prefill(ctx, ids)
		if err != nil {
			a.flash.Report("prefill", err)
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.fields.Update(fields, len(ids))
			a.pages.Push(pageFields)
		})
	}()
}

func (a *App) currentMessage() (message.Message, bool) {
	id := a.thread.Current()
	if id == "" {
		return message.Message{}, false
	}
	return a.vm.Message(id)
}

func (a *App) beginEdit() {
	m, ok := a.currentMessage()
	if !ok {
		return
	}
	a.editing = m.ID
	a.activatePrompt(ui.PromptEdit, m.Content)
}

func (a *App) deleteCurrent() {
	m, ok := a.currentMessage()
	if !ok {
		return
	}
	a.run("delete", func(ctx context.Context) error {
		return a.vm.DeleteMessage(ctx, m.ID)
	})
}

func (a *App) discardCurrent() {
	m, ok := a.currentMessage()
	if !ok {
		return
	}
	if !message.IsTemporaryID(m.ID) {
		a.flash.Warn("only pending or failed messages can be discarded")
		return
	}
	a.run("discard", func(ctx context.Context) error {
		return a.vm.DiscardMessage(ctx, m.ID)
	})
}

// resendCurrent replaces a failed message with a fresh send of its content.
func (a *App) resendCurrent() {
	m, ok := a.currentMessage()
	if !ok {
		return
	}
	if m.Status != message.StatusFailed {
		a.flash.Warn("only failed messages can be resent")
		return
	}
	a.run("resend", func(ctx context.Context) error {
		if err := a.vm.DiscardMessage(ctx, m.ID); err != nil {
			return err
		}
		_, err := a.vm.SendText(ctx, m.Content, m.ReplyTo)
		return err
	})
}

// run performs a daemon call off the UI goroutine and redraws the thread.
func (a *App) run(action string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, 10*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			a.flash.Report(action, err)
		}
		a.app.QueueUpdateDraw(func() {
			a.thread.Update(a.vm.Messages())
		})
	}()
}

func (a *App) requestRefresh() {
	select {
	case a.refreshCh <- struct{}{}:
	default:
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	go a.refreshLoop()
	go a.watchLoop()
	go a.flashLoop()
	a.requestRefresh()
	return a.app.Run()
}

func (a *App) refreshLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
		case <-a.refreshCh:
		}
		a.refresh()
	}
}

func (a *App) refresh() {
	ctx, cancel := context.WithTimeout(a.ctx, 10*time.Second)
	defer cancel()
	if err := a.vm.LoadConversations(ctx); err != nil {
		a.flash.Report("status", err)
	}
	if a.vm.Active() != "" {
		if err := a.vm.Refresh(ctx); err != nil {
			a.flash.Report("refresh", err)
		}
	}
	a.app.QueueUpdateDraw(func() {
		a.convList.Update(a.vm.Conversations())
		if a.vm.Active() != "" {
			a.thread.Update(a.vm.Messages())
		}
		if st := a.vm.Status(); st != nil {
			a.header.SetProfile(&ui.ProfileData{
				Profile:       a.profile,
				Sender:        st.SenderID,
				State:         st.State,
				Conversations: len(st.Conversations),
				Uptime:        time.Duration(st.UptimeMs) * time.Millisecond,
			})
		}
	})
}

// watchLoop turns daemon events into refreshes, reconnecting until the app stops.
func (a *App) watchLoop() {
	for a.ctx.Err() == nil {
		err := a.watcher.Watch(a.ctx, "", func(evt api.Event) error {
			switch {
			case strings.HasPrefix(evt.Kind, "message."),
				strings.HasPrefix(evt.Kind, "sync."),
				strings.HasPrefix(evt.Kind, "session."):
				a.requestRefresh()
			}
			if evt.Kind == bus.MessageSendFailed {
				a.flash.Warn("a message failed to send; R resends, D discards")
			}
			return nil
		})
		if a.ctx.Err() != nil {
			return
		}
		if err != nil {
			a.flash.Report("watch", err)
		}
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func (a *App) flashLoop() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case msg := <-a.flash.Watch():
			m := msg
			a.app.QueueUpdateDraw(func() { a.flashBar.Update(&m) })
			// Clear once expired unless a newer message replaced it.
			time.AfterFunc(time.Until(m.Expires), func() {
				a.app.QueueUpdateDraw(func() { a.flashBar.Update(a.flash.Current()) })
			})
		}
	}
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
