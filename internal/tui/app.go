package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/ASDFGHan123/unichat/internal/chat"
	"github.com/ASDFGHan123/unichat/internal/status"
	"github.com/ASDFGHan123/unichat/internal/tui/model"
	"github.com/ASDFGHan123/unichat/internal/tui/ui"
	"github.com/ASDFGHan123/unichat/internal/tui/views"
)

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	vm        *model.ViewModel
	theme     *ui.Theme
	statusBar *views.StatusBar
	convList  *views.ConversationList
	msgView   *views.MessageView
	composer  *views.Composer
	searchV   *views.SearchView
	loginV    *views.LoginView
	ctx       context.Context
	cancel    context.CancelFunc

	// editingID is the message currently loaded into the composer for
	// editing. Touched only on the UI goroutine.
	editingID string
}

// NewApp creates the TUI application.
func NewApp(vm *model.ViewModel, profileName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		vm:        vm,
		theme:     theme,
		statusBar: views.NewStatusBar(),
		convList:  views.NewConversationList(theme),
		msgView:   views.NewMessageView(),
		composer:  views.NewComposer(),
		searchV:   views.NewSearchView(theme),
		loginV:    views.NewLoginView(theme),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetProfile(profileName)
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectedFunc(func(row, col int) {
		if id := a.convList.SelectedConversation(); id != "" {
			a.openConversation(id)
		}
	})

	a.composer.SetOnSend(func(text string) {
		if id := a.editingID; id != "" {
			a.editingID = ""
			a.composer.EndEdit()
			go func() {
				a.vm.Edit(a.ctx, id, text)
				a.redraw()
			}()
			return
		}
		go func() {
			a.vm.Send(a.ctx, text)
			a.redraw()
		}()
	})

	a.searchV.SetOnQuery(func(query string) {
		users := a.vm.Directory.Search(query)
		convs := chat.SearchConversations(a.vm.Store.Conversations(), query)
		a.searchV.Update(users, convs)
		a.app.SetFocus(a.searchV.Results())
	})

	a.searchV.Results().SetSelectedFunc(func(row, col int) {
		res := a.searchV.Selected()
		switch {
		case res.Conversation != nil:
			a.openConversation(res.Conversation.Core().ID)
		case res.User != nil:
			u := *res.User
			go func() {
				a.vm.StartChat(a.ctx, u)
				a.app.QueueUpdateDraw(func() {
					a.showConversation()
				})
			}()
		}
	})

	a.loginV.SetOnLogin(func(username, password string) {
		a.loginV.ShowMessage("Signing in...")
		go func() {
			_, err := a.vm.Session.Login(a.ctx, username, password)
			a.app.QueueUpdateDraw(func() {
				if err != nil {
					a.loginV.Reset()
					a.loginV.ShowMessage("[red]" + err.Error() + "[-]")
					return
				}
				a.pages.SwitchToPage("conversations")
				a.app.SetFocus(a.convList)
			})
			if err == nil {
				a.vm.LoadInitial(a.ctx)
				a.redraw()
			}
		}()
	})
}

func (a *App) setupLayout() {
	chatFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, false).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage("conversations", a.convList, true, true)
	a.pages.AddPage("chat", chatFlex, true, false)
	a.pages.AddPage("search", a.searchV, true, false)
	a.pages.AddPage("login", a.loginV, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)
	a.app.SetInputCapture(a.handleKey)
}

func (a *App) handleKey(event *tcell.EventKey) *tcell.EventKey {
	currentPage, _ := a.pages.GetFrontPage()

	if event.Key() == tcell.KeyEscape {
		if a.editingID != "" {
			a.editingID = ""
			a.composer.EndEdit()
			a.app.SetFocus(a.msgView)
			return nil
		}
		switch currentPage {
		case "chat", "search":
			a.pages.SwitchToPage("conversations")
			a.app.SetFocus(a.convList)
			return nil
		}
	}

	// Text inputs get all keys; shortcuts apply only outside them.
	focused := a.app.GetFocus()
	if _, ok := focused.(*tview.InputField); ok {
		return event
	}
	if currentPage == "login" {
		return event
	}

	if event.Key() == tcell.KeyRune {
		switch event.Rune() {
		case 'q':
			a.app.Stop()
			return nil
		case 's':
			a.showSearch()
			return nil
		case 'i':
			if currentPage == "chat" {
				a.app.SetFocus(a.composer.InputField)
				return nil
			}
		case 'R':
			if currentPage == "chat" {
				go func() {
					a.vm.RetryFetch(a.ctx)
					a.redraw()
				}()
				return nil
			}
		case 'r':
			if currentPage == "chat" {
				go func() {
					a.vm.RetrySend(a.ctx)
					a.redraw()
				}()
				return nil
			}
		case 'x':
			if currentPage == "chat" {
				a.vm.DiscardSend()
				return nil
			}
		case 'e':
			if currentPage == "chat" {
				if id, content, ok := a.vm.BeginEdit(); ok {
					a.editingID = id
					a.composer.BeginEdit(content)
					a.app.SetFocus(a.composer.InputField)
				}
				return nil
			}
		case 'd':
			if currentPage == "chat" {
				go func() {
					a.vm.DeleteMessage(a.ctx)
					a.redraw()
				}()
				return nil
			}
		}
	}

	return event
}

func (a *App) openConversation(id string) {
	go func() {
		a.vm.Open(a.ctx, id)
		a.app.QueueUpdateDraw(func() {
			a.showConversation()
		})
	}()
}

// showConversation switches to the chat page for the active conversation.
// Must run on the UI goroutine.
func (a *App) showConversation() {
	id := a.vm.Store.ActiveID()
	if id == "" {
		return
	}
	if conv := a.vm.Store.Get(id); conv != nil {
		a.msgView.SetConversation(conv.Title())
	}
	a.msgView.Update(a.vm.Store.Messages(id), a.vm.Store.FetchState(id), a.vm.Busy(id))
	a.composer.SetEnabled(true)
	a.pages.SwitchToPage("chat")
	a.app.SetFocus(a.msgView)
}

func (a *App) showSearch() {
	a.searchV.Update(a.vm.Directory.Users(), nil)
	a.pages.SwitchToPage("search")
	a.app.SetFocus(a.searchV.Input())
}

// redraw repaints the front page from the current store snapshot.
func (a *App) redraw() {
	a.app.QueueUpdateDraw(func() {
		currentPage, _ := a.pages.GetFrontPage()

		if a.vm.Machine != nil && a.vm.Machine.Current() == status.AuthRequired && currentPage != "login" {
			a.loginV.ShowMessage("Session expired, sign in again")
			a.pages.SwitchToPage("login")
			a.app.SetFocus(a.loginV.Form())
			currentPage = "login"
		}

		switch currentPage {
		case "conversations":
			a.convList.Update(a.vm.Store.Conversations())
		case "chat":
			id := a.vm.Store.ActiveID()
			a.composer.SetEnabled(id != "")
			if id != "" {
				a.msgView.Update(a.vm.Store.Messages(id), a.vm.Store.FetchState(id), a.vm.Busy(id))
			}
		}

		a.statusBar.SetStatus(a.vm.StatusLine())
		if u := a.vm.Session.Current(); u != nil {
			a.statusBar.SetUser(u.Username)
		} else {
			a.statusBar.SetUser("")
		}
		msg, isErr := a.vm.Flash.Get()
		a.statusBar.SetFlash(msg, isErr)
	})
}

// Run starts the TUI application and blocks until quit.
func (a *App) Run() error {
	a.vm.Start()

	if a.vm.Machine != nil && a.vm.Machine.Current() == status.AuthRequired {
		a.pages.SwitchToPage("login")
		a.app.SetFocus(a.loginV.Form())
	} else {
		go func() {
			a.vm.LoadInitial(a.ctx)
			a.redraw()
		}()
	}

	a.startRefreshLoop()
	return a.app.Run()
}

// startRefreshLoop repaints on store events and on a slow tick that ages
// out flash messages and the clock.
func (a *App) startRefreshLoop() {
	ticker := time.NewTicker(2 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-a.vm.RefreshCh():
				a.redraw()
			case <-ticker.C:
				a.redraw()
			case <-a.ctx.Done():
				return
			}
		}
	}()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.vm.Stop()
	a.app.Stop()
}
