package core

import (
	"fmt"
	"sort"
)

// BaseModeKind discriminates the workspace base modes.
type BaseModeKind string

// Workspace base modes. Move is not a base mode: it is a layer entered from
// any of these and always returns to the one that was active.
const (
	ModeBrowse    BaseModeKind = "browse"
	ModeSingleLot BaseModeKind = "single_lot"
	ModeHighlight BaseModeKind = "highlight"
)

// BaseMode is a tagged variant: Browse, SingleLot(lotID) or Highlight(set).
// There is exactly one kind, so a combined single-lot plus highlight state is
// unrepresentable.
type BaseMode struct {
	kind      BaseModeKind
	lotID     string
	highlight map[string]struct{}
}

// BrowseMode returns the unrestricted base mode.
func BrowseMode() BaseMode { return BaseMode{kind: ModeBrowse} }

// SingleLotMode returns a base mode focused on one lot. Interactivity is
// restricted to that lot's vials.
func SingleLotMode(lotID string) BaseMode {
	return BaseMode{kind: ModeSingleLot, lotID: lotID}
}

// HighlightMode returns a base mode that restricts interactivity to the given
// vial set, e.g. the result of a scan.
func HighlightMode(vialIDs []string) BaseMode {
	set := make(map[string]struct{}, len(vialIDs))
	for _, id := range vialIDs {
		set[id] = struct{}{}
	}
	return BaseMode{kind: ModeHighlight, highlight: set}
}

// ResolveBaseMode maps legacy flag-pair inputs onto the variant. Callers that
// supply both a lot and a highlight set get single-lot: the lot focus already
// restricts interactivity, so the explicit highlight set is ignored.
func ResolveBaseMode(lotID *string, highlight []string) BaseMode {
	if lotID != nil && *lotID != "" {
		return SingleLotMode(*lotID)
	}
	if len(highlight) > 0 {
		return HighlightMode(highlight)
	}
	return BrowseMode()
}

// Kind returns the mode discriminator. The zero value reads as browse.
func (m BaseMode) Kind() BaseModeKind {
	if m.kind == "" {
		return ModeBrowse
	}
	return m.kind
}

// LotID returns the focused lot when the mode is single-lot.
func (m BaseMode) LotID() (string, bool) {
	if m.Kind() != ModeSingleLot {
		return "", false
	}
	return m.lotID, true
}

// Highlighted returns the highlight set in sorted order when the mode is
// highlight.
func (m BaseMode) Highlighted() ([]string, bool) {
	if m.Kind() != ModeHighlight {
		return nil, false
	}
	out := make([]string, 0, len(m.highlight))
	for id := range m.highlight {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, true
}

// Workspace coordinates the user-facing modes over the engine. It owns the
// current base mode, the transient move selection, and the planning state; it
// owns no business invariants.
type Workspace struct {
	base      BaseMode
	inMove    bool
	selection map[string]struct{}
	eligible  map[string]struct{}
	plan      *PlanRequest
	lotVials  func(lotID string) []string
	onRefresh func()
}

// WorkspaceOption configures a workspace.
type WorkspaceOption func(*Workspace)

// WithLotVials supplies the lookup used to pre-select and restrict vials when
// the base mode is single-lot.
func WithLotVials(fn func(lotID string) []string) WorkspaceOption {
	return func(w *Workspace) { w.lotVials = fn }
}

// WithRefresh registers the callback fired after a completed move so the
// caller can re-fetch occupancy.
func WithRefresh(fn func()) WorkspaceOption {
	return func(w *Workspace) { w.onRefresh = fn }
}

// NewWorkspace constructs a workspace in the given base mode.
func NewWorkspace(base BaseMode, opts ...WorkspaceOption) *Workspace {
	w := &Workspace{base: base}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Base returns the active base mode.
func (w *Workspace) Base() BaseMode { return w.base }

// InMove reports whether a move session is active.
func (w *Workspace) InMove() bool { return w.inMove }

// SetBase switches the base mode. Not allowed mid-move: move always returns
// to the mode it was entered from.
func (w *Workspace) SetBase(mode BaseMode) error {
	if w.inMove {
		return fmt.Errorf("exit move mode before switching base mode")
	}
	w.base = mode
	return nil
}

// EnterMove starts a move session. The initial selection is empty except in
// single-lot mode, where the focused lot's vials are pre-selected. The base
// mode's visibility rule is captured here and restricts toggling for the
// whole session.
func (w *Workspace) EnterMove() error {
	if w.inMove {
		return fmt.Errorf("already in move mode")
	}
	w.selection = make(map[string]struct{})
	switch w.base.Kind() {
	case ModeSingleLot:
		w.eligible = make(map[string]struct{})
		if w.lotVials != nil {
			for _, id := range w.lotVials(w.base.lotID) {
				w.eligible[id] = struct{}{}
				w.selection[id] = struct{}{}
			}
		}
	case ModeHighlight:
		w.eligible = make(map[string]struct{}, len(w.base.highlight))
		for id := range w.base.highlight {
			w.eligible[id] = struct{}{}
		}
	default:
		w.eligible = nil
	}
	w.inMove = true
	return nil
}

// ToggleVial adds the vial to the move selection, or removes it when already
// selected. Only vials visible under the base mode can be toggled.
func (w *Workspace) ToggleVial(id string) error {
	if !w.inMove {
		return fmt.Errorf("not in move mode")
	}
	if w.eligible != nil {
		if _, ok := w.eligible[id]; !ok {
			return fmt.Errorf("vial %q is not selectable in %s mode", id, w.base.Kind())
		}
	}
	if _, ok := w.selection[id]; ok {
		delete(w.selection, id)
	} else {
		w.selection[id] = struct{}{}
	}
	return nil
}

// Selected returns the current move selection in sorted order.
func (w *Workspace) Selected() []string {
	out := make([]string, 0, len(w.selection))
	for id := range w.selection {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SetPlan stores the destination planning state for the session.
func (w *Workspace) SetPlan(req PlanRequest) error {
	if !w.inMove {
		return fmt.Errorf("not in move mode")
	}
	w.plan = &req
	return nil
}

// Plan returns the stored planning state, if any.
func (w *Workspace) Plan() (PlanRequest, bool) {
	if w.plan == nil {
		return PlanRequest{}, false
	}
	return *w.plan, true
}

// ExitMove abandons the move session and returns to the base mode. Calling it
// outside a session is a no-op.
func (w *Workspace) ExitMove() {
	w.inMove = false
	w.selection = nil
	w.eligible = nil
	w.plan = nil
}

// CompleteMove ends the session after a successful transfer: the selection is
// discarded, the base mode resumes and the refresh callback fires so the
// caller re-fetches occupancy.
func (w *Workspace) CompleteMove() error {
	if !w.inMove {
		return fmt.Errorf("not in move mode")
	}
	w.ExitMove()
	if w.onRefresh != nil {
		w.onRefresh()
	}
	return nil
}
