package engine

import "github.com/inamate/canvas/internal/document"

// History is a linear undo/redo list of scene snapshots. The cursor always
// points at the entry that matches the live scene.
type History struct {
	entries []document.Scene
	cursor  int
	limit   int // max entries, 0 = unbounded
}

// NewHistory starts a history whose only entry is initial.
func NewHistory(initial document.Scene, limit int) *History {
	h := &History{limit: max(limit, 0)}
	h.Reset(initial)
	return h
}

// Reset drops every entry and starts over from scene.
func (h *History) Reset(scene document.Scene) {
	h.entries = []document.Scene{scene.Clone()}
	h.cursor = 0
}

// Record discards any redo entries and appends scene as the new current
// state.
func (h *History) Record(scene document.Scene) {
	h.entries = append(h.entries[:h.cursor+1], scene.Clone())
	h.cursor = len(h.entries) - 1

	if h.limit > 0 && len(h.entries) > h.limit {
		drop := len(h.entries) - h.limit
		h.entries = append([]document.Scene(nil), h.entries[drop:]...)
		h.cursor -= drop
	}
}

// Undo steps back one entry. It returns false at the oldest entry.
func (h *History) Undo() (document.Scene, bool) {
	if h.cursor == 0 {
		return nil, false
	}
	h.cursor--
	return h.entries[h.cursor].Clone(), true
}

// Redo steps forward one entry. It returns false at the newest entry.
func (h *History) Redo() (document.Scene, bool) {
	if h.cursor >= len(h.entries)-1 {
		return nil, false
	}
	h.cursor++
	return h.entries[h.cursor].Clone(), true
}

func (h *History) CanUndo() bool { return h.cursor > 0 }
func (h *History) CanRedo() bool { return h.cursor < len(h.entries)-1 }
func (h *History) Len() int      { return len(h.entries) }
func (h *History) Cursor() int   { return h.cursor }

// Current returns a copy of the entry under the cursor.
func (h *History) Current() document.Scene {
	return h.entries[h.cursor].Clone()
}
