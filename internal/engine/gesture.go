package engine

import (
	"fmt"
	"slices"

	"github.com/inamate/canvas/internal/document"
	"github.com/inamate/canvas/internal/geom"
)

type GestureKind string

const (
	GestureMove   GestureKind = "move"
	GestureResize GestureKind = "resize"
)

// Handle names the resize handle being dragged.
type Handle string

const (
	HandleN  Handle = "n"
	HandleNE Handle = "ne"
	HandleE  Handle = "e"
	HandleSE Handle = "se"
	HandleS  Handle = "s"
	HandleSW Handle = "sw"
	HandleW  Handle = "w"
	HandleNW Handle = "nw"
)

// edges reports which sides of the box a handle drags.
func (h Handle) edges() (left, top, right, bottom bool, ok bool) {
	switch h {
	case HandleN:
		return false, true, false, false, true
	case HandleNE:
		return false, true, true, false, true
	case HandleE:
		return false, false, true, false, true
	case HandleSE:
		return false, false, true, true, true
	case HandleS:
		return false, false, false, true, true
	case HandleSW:
		return true, false, false, true, true
	case HandleW:
		return true, false, false, false, true
	case HandleNW:
		return true, true, false, false, true
	}
	return false, false, false, false, false
}

// gesture holds the state captured when a drag starts. Every update is
// computed from these start values, never incrementally.
type gesture struct {
	kind     GestureKind
	handle   Handle
	origin   geom.Point
	ids      []string
	start    map[string]geom.Rect
	bounds   geom.Rect
	baseline document.Scene
}

// BeginGesture starts a move or resize of the selected, unlocked elements
// at scene point p. Intermediate updates are not recorded in the history.
func (s *Session) BeginGesture(kind GestureKind, handle Handle, p geom.Point) error {
	if s.gesture != nil {
		return ErrGestureActive
	}
	if !p.IsFinite() {
		return fmt.Errorf("begin gesture: %w: pointer (%v, %v)", ErrInvalidGeometry, p.X, p.Y)
	}
	switch kind {
	case GestureMove:
	case GestureResize:
		if _, _, _, _, ok := handle.edges(); !ok {
			return fmt.Errorf("begin gesture: %w: resize handle %q", ErrUnknownGesture, handle)
		}
	default:
		return fmt.Errorf("begin gesture: %w: kind %q", ErrUnknownGesture, kind)
	}

	// Outside a gesture the live scene is the history entry under the
	// cursor: every change is either recorded or an undo/redo onto it.
	g := &gesture{
		kind:     kind,
		handle:   handle,
		origin:   p,
		start:    make(map[string]geom.Rect),
		baseline: s.history.Current(),
	}
	for _, id := range s.selection.ids {
		e, ok := s.store.Get(id)
		if !ok || e.Locked {
			continue
		}
		g.ids = append(g.ids, id)
		g.start[id] = e.Bounds()
		g.bounds = g.bounds.Union(e.Bounds())
	}
	if len(g.ids) == 0 {
		if s.selection.Len() == 0 {
			return fmt.Errorf("begin gesture: nothing selected: %w", ErrNotFound)
		}
		return fmt.Errorf("begin gesture: %w", ErrLocked)
	}
	// Union ignores empty boxes; fall back to the first box so zero-size
	// elements still have an anchor.
	if g.bounds.IsEmpty() {
		g.bounds = g.start[g.ids[0]]
	}

	s.gesture = g
	return nil
}

// GestureActive reports whether a gesture is open.
func (s *Session) GestureActive() bool {
	return s.gesture != nil
}

// UpdateGesture moves the pointer to scene point p. The scene shows the
// new geometry immediately; a frame that would produce a negative size is
// rejected with ErrInvalidGeometry and the previous frame stays.
func (s *Session) UpdateGesture(p geom.Point) error {
	g := s.gesture
	if g == nil {
		return ErrNoGesture
	}
	if !p.IsFinite() {
		return fmt.Errorf("update gesture: %w: pointer (%v, %v)", ErrInvalidGeometry, p.X, p.Y)
	}
	delta := p.Sub(g.origin)

	var boxes map[string]geom.Rect
	switch g.kind {
	case GestureMove:
		boxes = make(map[string]geom.Rect, len(g.ids))
		for _, id := range g.ids {
			boxes[id] = g.start[id].Translate(delta)
		}
	case GestureResize:
		var err error
		if boxes, err = g.resize(delta); err != nil {
			return err
		}
	}

	frame := s.store.Snapshot()
	for _, id := range g.ids {
		b := boxes[id]
		_, err := s.store.Update(id, document.Patch{
			X:      &b.X,
			Y:      &b.Y,
			Width:  &b.Width,
			Height: &b.Height,
		})
		if err != nil {
			s.store.Restore(frame)
			return fmt.Errorf("update gesture: %w", err)
		}
	}
	s.revision++
	return nil
}

// resize scales every start box with the selection bounds dragged by delta.
func (g *gesture) resize(delta geom.Point) (map[string]geom.Rect, error) {
	left, top, right, bottom, _ := g.handle.edges()

	x0, y0 := g.bounds.X, g.bounds.Y
	x1, y1 := x0+g.bounds.Width, y0+g.bounds.Height
	if left {
		x0 += delta.X
	}
	if right {
		x1 += delta.X
	}
	if top {
		y0 += delta.Y
	}
	if bottom {
		y1 += delta.Y
	}
	if x1 < x0 || y1 < y0 {
		return nil, fmt.Errorf("update gesture: %w: size %vx%v", ErrInvalidGeometry, x1-x0, y1-y0)
	}

	sx, sy := 1.0, 1.0
	if g.bounds.Width > 0 {
		sx = (x1 - x0) / g.bounds.Width
	}
	if g.bounds.Height > 0 {
		sy = (y1 - y0) / g.bounds.Height
	}

	boxes := make(map[string]geom.Rect, len(g.ids))
	for _, id := range g.ids {
		b := g.start[id]
		boxes[id] = geom.Rect{
			X:      x0 + (b.X-g.bounds.X)*sx,
			Y:      y0 + (b.Y-g.bounds.Y)*sy,
			Width:  b.Width * sx,
			Height: b.Height * sy,
		}
	}
	return boxes, nil
}

// CommitGesture ends the gesture and records one history entry if the
// scene changed. It reports whether an entry was recorded.
func (s *Session) CommitGesture() (bool, error) {
	g := s.gesture
	if g == nil {
		return false, ErrNoGesture
	}
	s.gesture = nil

	if s.store.view().Equal(g.baseline) {
		return false, nil
	}
	s.commit()
	return true, nil
}

// CancelGesture ends the gesture and restores the scene to its state
// before the gesture began. Nothing is recorded.
func (s *Session) CancelGesture() error {
	if s.gesture == nil {
		return ErrNoGesture
	}
	s.abortGesture()
	return nil
}

func (s *Session) abortGesture() {
	if s.gesture == nil {
		return
	}
	s.store.Restore(s.gesture.baseline)
	s.gesture = nil
	s.revision++
	s.pruneSelection()
}

// GestureIDs returns the ids moved by the open gesture.
func (s *Session) GestureIDs() []string {
	if s.gesture == nil {
		return nil
	}
	return slices.Clone(s.gesture.ids)
}
