// Package ui is the UI State Coordinator: it polls result channels, swaps
// watcher subscriptions on namespace/kind changes, keeps selection
// stable across store mutations, and exposes a deterministic snapshot
// per frame. Rendering is out of scope; this package's public surface is
// a plain Go struct, not a bubbletea tea.Model — cmd/flux9s's thin
// adapter is the only place that imports bubbletea.
package ui

import "github.com/dgunzy/flux9s/internal/model"

// GateState is the Confirmation Gate's state machine, modeled as a
// single field on the Coordinator rather than a separate "dialog task",
// per spec §9's design note.
type GateState int

const (
	GateIdle GateState = iota
	GatePending
)

// ConfirmationGate enforces that destructive operations require an
// explicit yes/no acknowledgment.
type ConfirmationGate struct {
	state   GateState
	pending model.OperationRequest
}

// RequestConfirmation transitions Idle -> Pending(op).
func (g *ConfirmationGate) RequestConfirmation(req model.OperationRequest) {
	g.state = GatePending
	g.pending = req
}

// State reports the current gate state.
func (g *ConfirmationGate) State() GateState { return g.state }

// Pending returns the request awaiting confirmation, if any.
func (g *ConfirmationGate) Pending() (model.OperationRequest, bool) {
	return g.pending, g.state == GatePending
}

// Resolve handles one keypress while Pending. "y" confirms (returns the
// request and true), "n" or Escape cancels (returns zero value and
// false); any other key is swallowed per spec §4.9. The third result
// reports whether the gate changed state.
func (g *ConfirmationGate) Resolve(key string) (model.OperationRequest, bool, bool) {
	if g.state != GatePending {
		return model.OperationRequest{}, false, false
	}
	switch key {
	case "y":
		req := g.pending
		g.state = GateIdle
		g.pending = model.OperationRequest{}
		return req, true, true
	case "n", "esc", "escape":
		g.state = GateIdle
		g.pending = model.OperationRequest{}
		return model.OperationRequest{}, false, true
	default:
		return model.OperationRequest{}, false, false
	}
}
