package main

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dgunzy/flux9s/internal/transport"
	"github.com/dgunzy/flux9s/internal/ui"
)

// app is the thin tea.Model adapter over ui.Coordinator. Grounded on the
// Elm-architecture Model/Update/View shape in
// cmd/cub-scout/localcluster.go's LocalClusterModel; it is deliberately
// the only file in this module that imports bubbletea, so the
// Coordinator's own package stays renderer-agnostic. Detailed rendering
// is out of scope; View renders a minimal one-line status.
type app struct {
	coord *ui.Coordinator
	trans *transport.Transport
	ctx   context.Context
}

func newApp(coord *ui.Coordinator, trans *transport.Transport) *app {
	return &app{coord: coord, trans: trans}
}

type tickMsg time.Time

func (a *app) Run(ctx context.Context) error {
	a.ctx = ctx
	_, err := tea.NewProgram(a).Run()
	return err
}

func (a *app) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(ui.TickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (a *app) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.KeyMsg:
		if a.coord.CurrentView() == ui.ViewConfirmation {
			a.coord.ResolveConfirmation(a.ctx, m.String())
			return a, nil
		}
		switch m.String() {
		case "ctrl+c":
			return a, tea.Quit
		case ":":
			// command-line entry is out of scope for this adapter; the
			// core's HandleCommand is exercised directly by tests.
		default:
			a.coord.HandleKey(a.ctx, keyToOp(m.String()))
		}
		return a, nil
	case tickMsg:
		a.coord.DrainResults()
		_ = a.coord.Snapshot()
		return a, tickCmd()
	}
	return a, nil
}

func (a *app) View() string {
	entries := a.coord.Snapshot()
	if a.coord.Status() != "" {
		return a.coord.Status()
	}
	if len(entries) == 0 {
		return "no resources"
	}
	return entries[0].Key.String()
}

// keyToOp maps the out-of-scope keymap to operation names; detailed
// keybinding configuration is explicitly out of scope, so this is a
// fixed table rather than a configurable one.
func keyToOp(key string) string {
	switch key {
	case "s":
		return "suspend"
	case "r":
		return "resume"
	case "R":
		return "reconcile"
	case "d":
		return "delete"
	default:
		return ""
	}
}
