package engine

import (
	"fmt"

	"github.com/inamate/canvas/internal/document"
	"github.com/inamate/canvas/internal/geom"
	"github.com/inamate/canvas/internal/typeid"
)

// DefaultHistoryLimit bounds the undo list of a session.
const DefaultHistoryLimit = 200

// Session is one editing session: the scene, its history, the selection
// and the viewport. Every scene change goes through its methods, which
// record successful changes in the history. Discrete mutations, undo and
// redo cancel an uncommitted gesture first.
//
// A Session is not safe for concurrent use.
type Session struct {
	store     *Store
	history   *History
	selection Selection
	viewport  *Viewport
	gesture   *gesture
	revision  uint64
}

type sessionConfig struct {
	historyLimit int
	zoomMin      float64
	zoomMax      float64
	newID        func() string
	scene        document.Scene
}

type Option func(*sessionConfig)

// WithHistoryLimit caps the number of history entries. 0 means unbounded.
func WithHistoryLimit(n int) Option {
	return func(c *sessionConfig) { c.historyLimit = n }
}

// WithZoomBounds sets the viewport zoom limits in percent.
func WithZoomBounds(zoomMin, zoomMax float64) Option {
	return func(c *sessionConfig) { c.zoomMin, c.zoomMax = zoomMin, zoomMax }
}

// WithIDFunc replaces the element id generator.
func WithIDFunc(newID func() string) Option {
	return func(c *sessionConfig) { c.newID = newID }
}

// WithScene starts the session from an existing scene.
func WithScene(scene document.Scene) Option {
	return func(c *sessionConfig) { c.scene = scene }
}

// NewSession creates a session with an empty scene unless WithScene is given.
func NewSession(opts ...Option) *Session {
	cfg := sessionConfig{
		historyLimit: DefaultHistoryLimit,
		zoomMin:      DefaultZoomMin,
		zoomMax:      DefaultZoomMax,
		newID:        typeid.NewElementID,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Session{
		store:    NewStore(cfg.newID),
		viewport: NewViewport(cfg.zoomMin, cfg.zoomMax),
	}
	s.store.Restore(cfg.scene)
	s.history = NewHistory(s.store.Snapshot(), cfg.historyLimit)
	return s
}

// --- Mutations ---

// commit records the live scene as a new history entry.
func (s *Session) commit() {
	s.history.Record(s.store.Snapshot())
	s.revision++
	s.pruneSelection()
}

func (s *Session) pruneSelection() {
	s.selection.Retain(s.store.Has)
}

// AddElement creates an element on top of the scene and returns its id.
func (s *Session) AddElement(spec CreateSpec) string {
	s.abortGesture()
	id := s.store.Add(spec)
	s.commit()
	return id
}

// RemoveElement deletes one element. It returns false without error when
// the id does not exist.
func (s *Session) RemoveElement(id string) (bool, error) {
	s.abortGesture()
	removed, err := s.store.Remove(id)
	if err != nil || !removed {
		return false, err
	}
	s.commit()
	return true, nil
}

// UpdateElement applies a partial update to one element.
func (s *Session) UpdateElement(id string, p document.Patch) error {
	s.abortGesture()
	changed, err := s.store.Update(id, p)
	if err != nil {
		return err
	}
	if changed {
		s.commit()
	}
	return nil
}

// Reorder moves an element to newIndex in paint order.
func (s *Session) Reorder(id string, newIndex int) error {
	s.abortGesture()
	changed, err := s.store.Reorder(id, newIndex)
	if err != nil {
		return err
	}
	if changed {
		s.commit()
	}
	return nil
}

// BringToFront moves an element to the top of the paint order.
func (s *Session) BringToFront(id string) error {
	return s.Reorder(id, s.store.Len()-1)
}

// SendToBack moves an element to the bottom of the paint order.
func (s *Session) SendToBack(id string) error {
	return s.Reorder(id, 0)
}

// BringForward moves an element one step up.
func (s *Session) BringForward(id string) error {
	i := s.store.Index(id)
	if i < 0 {
		return fmt.Errorf("reorder %s: %w", id, ErrNotFound)
	}
	return s.Reorder(id, i+1)
}

// SendBackward moves an element one step down.
func (s *Session) SendBackward(id string) error {
	i := s.store.Index(id)
	if i < 0 {
		return fmt.Errorf("reorder %s: %w", id, ErrNotFound)
	}
	return s.Reorder(id, i-1)
}

// DeleteSelected removes every selected element that is not locked, as a
// single history entry. Locked elements are skipped and stay selected.
// It returns the number of removed elements.
func (s *Session) DeleteSelected() int {
	s.abortGesture()
	removed := 0
	for _, id := range s.selection.IDs() {
		e, ok := s.store.Get(id)
		if !ok || e.Locked {
			continue
		}
		if done, err := s.store.Remove(id); err == nil && done {
			removed++
		}
	}
	if removed > 0 {
		s.commit()
	}
	return removed
}

// Undo restores the previous history entry. It returns false when there
// is nothing to undo. An open gesture is cancelled first.
func (s *Session) Undo() bool {
	s.abortGesture()
	scene, ok := s.history.Undo()
	if !ok {
		return false
	}
	s.store.Restore(scene)
	s.revision++
	s.pruneSelection()
	return true
}

// Redo re-applies the next history entry. It returns false when there is
// nothing to redo.
func (s *Session) Redo() bool {
	s.abortGesture()
	scene, ok := s.history.Redo()
	if !ok {
		return false
	}
	s.store.Restore(scene)
	s.revision++
	s.pruneSelection()
	return true
}

func (s *Session) CanUndo() bool { return s.history.CanUndo() }
func (s *Session) CanRedo() bool { return s.history.CanRedo() }

// LoadScene replaces the whole scene, clears the selection and restarts
// the history from the loaded scene.
func (s *Session) LoadScene(scene document.Scene) error {
	if err := scene.Validate(); err != nil {
		return fmt.Errorf("load scene: %w", err)
	}
	s.abortGesture()
	s.store.Restore(scene)
	s.history.Reset(s.store.Snapshot())
	s.revision++
	s.selection.Clear()
	return nil
}

// --- Selection ---

// Select replaces the selection with id. Locked elements may be selected.
func (s *Session) Select(id string) error {
	if !s.store.Has(id) {
		return fmt.Errorf("select %s: %w", id, ErrNotFound)
	}
	s.selection.Set(id)
	return nil
}

// SetSelection replaces the selection with ids. No id may be missing;
// an empty list clears the selection.
func (s *Session) SetSelection(ids ...string) error {
	for _, id := range ids {
		if !s.store.Has(id) {
			return fmt.Errorf("select %s: %w", id, ErrNotFound)
		}
	}
	s.selection.Set(ids...)
	return nil
}

// ToggleSelect adds or removes id from the selection.
func (s *Session) ToggleSelect(id string) error {
	if !s.store.Has(id) {
		return fmt.Errorf("select %s: %w", id, ErrNotFound)
	}
	s.selection.Toggle(id)
	return nil
}

// SelectAll selects every element in paint order.
func (s *Session) SelectAll() {
	s.selection.Set(s.store.view().IDs()...)
}

func (s *Session) ClearSelection() {
	s.selection.Clear()
}

// SelectAt hit-tests a screen point. A hit replaces the selection, or
// toggles the element when additive is set. A miss clears the selection
// unless additive is set. It returns the hit id, if any.
func (s *Session) SelectAt(screen geom.Point, additive bool) (string, bool) {
	id, ok := s.HitTestScreen(screen)
	switch {
	case ok && additive:
		s.selection.Toggle(id)
	case ok:
		s.selection.Set(id)
	case !additive:
		s.selection.Clear()
	}
	return id, ok
}

// Selection returns the selected ids.
func (s *Session) Selection() []string {
	return s.selection.IDs()
}

// IsSelected reports whether id is selected.
func (s *Session) IsSelected(id string) bool {
	return s.selection.Contains(id)
}

// SelectionBounds returns the union of the selected element boxes.
func (s *Session) SelectionBounds() geom.Rect {
	return SelectionBounds(s.store.view(), s.selection.ids)
}

// --- Queries ---

// HitTest returns the topmost element containing a scene point.
func (s *Session) HitTest(p geom.Point) (string, bool) {
	return HitTest(s.store.view(), p)
}

// HitTestScreen returns the topmost element under a screen point.
func (s *Session) HitTestScreen(p geom.Point) (string, bool) {
	return s.HitTest(s.viewport.ScreenToScene(p))
}

// Get returns a copy of an element, for property panels.
func (s *Session) Get(id string) (document.Element, bool) {
	return s.store.Get(id)
}

// Scene returns a copy of the current scene.
func (s *Session) Scene() document.Scene {
	return s.store.Snapshot()
}

// Len returns the number of elements.
func (s *Session) Len() int {
	return s.store.Len()
}

// Viewport returns the session's viewport for zoom and pan commands.
func (s *Session) Viewport() *Viewport {
	return s.viewport
}

// Revision increases every time the live scene changes, including
// intermediate gesture frames. Renderers can skip redraws when it is
// unchanged.
func (s *Session) Revision() uint64 {
	return s.revision
}

// History returns the number of history entries and the cursor position.
func (s *Session) History() (entries, cursor int) {
	return s.history.Len(), s.history.Cursor()
}

// Render compiles the current scene into screen-space draw commands.
func (s *Session) Render() []DrawCommand {
	return CompileDrawCommands(s.store.view(), s.viewport)
}
