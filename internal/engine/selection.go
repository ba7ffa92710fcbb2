package engine

import (
	"slices"

	"github.com/inamate/canvas/internal/document"
	"github.com/inamate/canvas/internal/geom"
)

// Selection is an ordered set of element ids. It never holds elements
// themselves; every lookup goes back through the Store.
type Selection struct {
	ids []string
}

// Set replaces the selection.
func (s *Selection) Set(ids ...string) {
	next := make([]string, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(next, id) {
			next = append(next, id)
		}
	}
	s.ids = next
}

// Toggle adds id if absent, removes it otherwise. It reports whether id is
// selected afterwards.
func (s *Selection) Toggle(id string) bool {
	if i := slices.Index(s.ids, id); i >= 0 {
		s.ids = slices.Delete(s.ids, i, i+1)
		return false
	}
	s.ids = append(s.ids, id)
	return true
}

func (s *Selection) Clear() {
	s.ids = s.ids[:0]
}

func (s *Selection) Contains(id string) bool {
	return slices.Contains(s.ids, id)
}

func (s *Selection) Len() int {
	return len(s.ids)
}

// IDs returns a copy of the selected ids in selection order.
func (s *Selection) IDs() []string {
	return slices.Clone(s.ids)
}

// Retain drops ids for which keep returns false.
func (s *Selection) Retain(keep func(id string) bool) {
	s.ids = slices.DeleteFunc(s.ids, func(id string) bool { return !keep(id) })
}

// HitTest returns the topmost element whose box contains p. Elements are
// tested in reverse paint order; empty boxes never hit.
func HitTest(scene document.Scene, p geom.Point) (string, bool) {
	for i := len(scene) - 1; i >= 0; i-- {
		b := scene[i].Bounds()
		if !b.IsEmpty() && b.Contains(p) {
			return scene[i].ID, true
		}
	}
	return "", false
}

// SelectionBounds returns the union of the boxes of ids that exist in scene.
func SelectionBounds(scene document.Scene, ids []string) geom.Rect {
	var result geom.Rect
	for _, id := range ids {
		e, ok := scene.Find(id)
		if !ok {
			continue
		}
		result = result.Union(e.Bounds())
	}
	return result
}
