// Package ui is the terminal presentation of the chat: a peers list, the
// active conversation's messages, and an input field. It holds no state of
// its own beyond the input text; everything displayed comes from the
// session controller.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog"

	"communitychat/internal/chatclient"
)

type App struct {
	app      *tview.Application
	peers    *tview.List
	chatView *tview.TextView
	input    *tview.InputField
	status   *tview.TextView

	acct    chatclient.Account
	conn    *chatclient.Conn
	session *chatclient.Session
	api     *chatclient.API
	log     zerolog.Logger
}

func NewApp(acct chatclient.Account, conn *chatclient.Conn, session *chatclient.Session, api *chatclient.API, log zerolog.Logger) *App {
	return &App{
		app:     tview.NewApplication(),
		acct:    acct,
		conn:    conn,
		session: session,
		api:     api,
		log:     log,
	}
}

// Run builds the layout, connects, and blocks until the user quits.
func (a *App) Run() error {
	a.peers = tview.NewList()
	a.peers.SetBorder(true)
	a.peers.SetTitle(fmt.Sprintf(" Conversations (%s) ", a.acct.Username))
	a.peers.ShowSecondaryText(false)
	a.peers.SetHighlightFullLine(true)
	a.peers.SetSelectedFunc(func(index int, mainText, secondaryText string, shortcut rune) {
		a.selectPeer(mainText)
	})

	a.chatView = tview.NewTextView()
	a.chatView.SetBorder(true)
	a.chatView.SetTitle(" Select a conversation ")
	a.chatView.SetDynamicColors(true)
	a.chatView.SetScrollable(true)
	a.chatView.ScrollToEnd()

	a.input = tview.NewInputField()
	a.input.SetLabel("> ")
	a.input.SetFieldWidth(0)
	a.input.SetBorder(true)
	a.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := a.input.GetText()
		if strings.TrimSpace(text) == "" {
			return
		}
		a.input.SetText("")
		go func() {
			if err := a.session.SendMessage(text); err != nil {
				a.flashStatus("[red]message not delivered[-]")
			}
		}()
	})

	a.status = tview.NewTextView()
	a.status.SetDynamicColors(true)
	a.status.SetTextAlign(tview.AlignCenter)
	a.status.SetText(" connecting… ")

	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.chatView, 0, 1, false).
		AddItem(a.input, 3, 0, true).
		AddItem(a.status, 1, 0, false)

	root := tview.NewFlex().
		AddItem(a.peers, 30, 0, true).
		AddItem(right, 0, 1, false)

	root.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyTab:
			if a.app.GetFocus() == a.input {
				a.app.SetFocus(a.peers)
			} else {
				a.app.SetFocus(a.input)
			}
			return nil
		case tcell.KeyEsc:
			a.app.Stop()
			return nil
		}
		return event
	})

	a.wireEvents()
	a.conn.Connect()
	go a.loadPeers()

	defer func() {
		a.session.Leave()
		a.conn.Disconnect()
	}()
	return a.app.SetRoot(root, true).EnableMouse(true).Run()
}

func (a *App) wireEvents() {
	a.conn.OnEvent(chatclient.EventConnected, func(chatclient.Event) {
		a.setStatus("[green]connected[-]")
	})
	a.conn.OnEvent(chatclient.EventDisconnected, func(chatclient.Event) {
		a.setStatus("[yellow]reconnecting…[-]")
	})
	a.conn.OnEvent(chatclient.EventConnectionError, func(ev chatclient.Event) {
		if a.conn.State() == chatclient.StateDisconnected {
			a.setStatus("[red]disconnected[-]")
		}
	})

	a.session.OnChange(func() {
		a.app.QueueUpdateDraw(a.renderConversation)
	})
	a.session.OnError(func(err error) {
		a.flashStatus("[red]" + tview.Escape(err.Error()) + "[-]")
	})
}

func (a *App) loadPeers() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	peers, err := a.api.ListPeers(ctx, a.acct.Username)
	a.app.QueueUpdateDraw(func() {
		a.peers.Clear()
		if err != nil {
			a.log.Error().Err(err).Msg("directory load failed")
			a.setStatusLocked("[red]could not load user list[-]")
			return
		}
		for _, p := range peers {
			a.peers.AddItem(p, "", 0, nil)
		}
	})
}

func (a *App) selectPeer(peer string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.session.SelectPeer(ctx, peer); err != nil {
			a.log.Error().Err(err).Str("peer", peer).Msg("history load failed")
			a.app.QueueUpdateDraw(func() {
				a.chatView.SetTitle(" Select a conversation ")
				a.chatView.SetText("[red]could not load messages[-]")
			})
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.app.SetFocus(a.input)
		})
	}()
}

// renderConversation redraws the message view from the session's store.
// Must run on the UI thread.
func (a *App) renderConversation() {
	peer := a.session.Peer()
	if peer == "" {
		a.chatView.SetTitle(" Select a conversation ")
		a.chatView.SetText("")
		return
	}
	a.chatView.SetTitle(fmt.Sprintf(" %s ", peer))
	if a.session.State() == chatclient.SessionLoading {
		a.chatView.SetText("[gray]loading…[-]")
		return
	}

	var b strings.Builder
	for _, m := range a.session.Messages() {
		b.WriteString(FormatMessage(m, a.acct.Username))
	}
	a.chatView.SetText(b.String())
	a.chatView.ScrollToEnd()
}

func (a *App) setStatus(text string) {
	a.app.QueueUpdateDraw(func() {
		a.status.SetText(" " + text + " ")
	})
}

// setStatusLocked is setStatus for callers already on the UI thread.
func (a *App) setStatusLocked(text string) {
	a.status.SetText(" " + text + " ")
}

func (a *App) flashStatus(text string) {
	a.setStatus(text)
	go func() {
		time.Sleep(3 * time.Second)
		a.setStatus(a.conn.State().String())
	}()
}
