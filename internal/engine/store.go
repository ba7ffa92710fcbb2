package engine

import (
	"fmt"
	"math"
	"slices"
	"unicode/utf8"

	"github.com/inamate/canvas/internal/document"
	"github.com/inamate/canvas/internal/geom"
)

const (
	defaultFontSize   = 16
	defaultFontFamily = "sans-serif"
	defaultStarPoints = 5
	defaultShapeFill  = "#cccccc"
	defaultTextFill   = "#000000"
	defaultShapeSize  = 100

	// Rough glyph metrics used to size text boxes created without a size.
	textAdvance    = 0.6
	textLineHeight = 1.2
)

var defaultNames = map[document.Kind]string{
	document.KindRect:    "Rectangle",
	document.KindEllipse: "Ellipse",
	document.KindStar:    "Star",
	document.KindText:    "Text",
	document.KindImage:   "Image",
}

// CreateSpec describes a new element. Zero values fall back to per-kind
// defaults; Data may be nil. Style fields left nil keep the kind's default.
type CreateSpec struct {
	Kind   document.Kind
	Name   string
	Bounds geom.Rect
	Style  document.StylePatch
	Data   document.Variant
}

// Store owns the canonical element list of one scene.
type Store struct {
	elements document.Scene
	newID    func() string
}

// NewStore creates an empty store that assigns ids with newID.
func NewStore(newID func() string) *Store {
	return &Store{
		elements: document.Scene{},
		newID:    newID,
	}
}

// Add builds an element from spec, appends it on top and returns its id.
// Creation never fails: unusable values are replaced by defaults.
func (s *Store) Add(spec CreateSpec) string {
	e := newElement(spec)
	e.ID = s.newID()
	s.elements = append(s.elements, e)
	return e.ID
}

// Remove deletes the element with the given id. Removing an absent id is
// a no-op; removing a locked element fails with ErrLocked.
func (s *Store) Remove(id string) (bool, error) {
	i := s.elements.IndexOf(id)
	if i < 0 {
		return false, nil
	}
	if s.elements[i].Locked {
		return false, fmt.Errorf("remove %s: %w", id, ErrLocked)
	}
	s.elements = slices.Delete(s.elements, i, i+1)
	return true, nil
}

// Update applies a partial update. It reports whether anything changed.
// The element is left untouched on error.
func (s *Store) Update(id string, p document.Patch) (bool, error) {
	i := s.elements.IndexOf(id)
	if i < 0 {
		return false, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	cur := s.elements[i]
	if cur.Locked && !p.IsUnlockOnly() {
		return false, fmt.Errorf("update %s: %w", id, ErrLocked)
	}

	next, err := applyPatch(cur, p)
	if err != nil {
		return false, fmt.Errorf("update %s: %w", id, err)
	}
	if next.Equal(cur) {
		return false, nil
	}
	s.elements[i] = next
	return true, nil
}

// Reorder moves an element to newIndex in paint order. The index is
// clamped to the valid range.
func (s *Store) Reorder(id string, newIndex int) (bool, error) {
	i := s.elements.IndexOf(id)
	if i < 0 {
		return false, fmt.Errorf("reorder %s: %w", id, ErrNotFound)
	}
	if s.elements[i].Locked {
		return false, fmt.Errorf("reorder %s: %w", id, ErrLocked)
	}

	newIndex = max(0, min(newIndex, len(s.elements)-1))
	if newIndex == i {
		return false, nil
	}

	e := s.elements[i]
	s.elements = slices.Insert(slices.Delete(s.elements, i, i+1), newIndex, e)
	return true, nil
}

// Index returns the paint index of id, or -1.
func (s *Store) Index(id string) int {
	return s.elements.IndexOf(id)
}

// Get returns a copy of the element with the given id.
func (s *Store) Get(id string) (document.Element, bool) {
	return s.elements.Find(id)
}

// Has reports whether id is in the scene.
func (s *Store) Has(id string) bool {
	return s.elements.IndexOf(id) >= 0
}

// Len returns the number of elements.
func (s *Store) Len() int {
	return len(s.elements)
}

// Snapshot returns an independent copy of the scene.
func (s *Store) Snapshot() document.Scene {
	return s.elements.Clone()
}

// Restore replaces the scene with a copy of scene.
func (s *Store) Restore(scene document.Scene) {
	s.elements = scene.Clone()
}

// view exposes the live scene to package code that only reads it.
func (s *Store) view() document.Scene {
	return s.elements
}

func newElement(spec CreateSpec) document.Element {
	kind := spec.Kind
	if kind == "" && spec.Data != nil {
		kind = spec.Data.Kind()
	}
	if _, ok := defaultNames[kind]; !ok {
		kind = document.KindRect
	}

	data := spec.Data
	if data == nil || data.Kind() != kind {
		data = defaultData(kind)
	}

	e := document.Element{
		Name:  spec.Name,
		Style: sanitizeStyle(spec.Style.Over(defaultStyle(kind))),
		Data:  sanitizeData(data),
	}
	if e.Name == "" {
		e.Name = defaultNames[kind]
	}

	b := normalizeRect(spec.Bounds)
	e.X, e.Y, e.Width, e.Height = b.X, b.Y, b.Width, b.Height
	sizeFromData(&e)
	return e
}

func defaultData(kind document.Kind) document.Variant {
	switch kind {
	case document.KindEllipse:
		return document.EllipseData{}
	case document.KindStar:
		return document.StarData{PointCount: defaultStarPoints}
	case document.KindText:
		return document.TextData{FontSize: defaultFontSize, FontFamily: defaultFontFamily, Align: document.AlignLeft}
	case document.KindImage:
		return document.ImageData{}
	default:
		return document.RectData{}
	}
}

func defaultStyle(kind document.Kind) document.Style {
	switch kind {
	case document.KindText:
		return document.Style{Fill: defaultTextFill, Opacity: 1}
	case document.KindImage:
		return document.Style{Opacity: 1}
	default:
		return document.Style{Fill: defaultShapeFill, Opacity: 1}
	}
}

func sanitizeStyle(st document.Style) document.Style {
	if math.IsNaN(st.Opacity) {
		st.Opacity = 1
	}
	st.Opacity = geom.Clamp(st.Opacity, 0, 1)
	if !geom.IsFinite(st.StrokeWidth) || st.StrokeWidth < 0 {
		st.StrokeWidth = 0
	}
	return st
}

func sanitizeData(v document.Variant) document.Variant {
	switch d := v.(type) {
	case document.RectData:
		return d
	case document.EllipseData:
		d.Radius = nonNegative(d.Radius)
		return d
	case document.StarData:
		d.OuterRadius = nonNegative(d.OuterRadius)
		d.InnerRadius = nonNegative(d.InnerRadius)
		if d.PointCount < 3 {
			d.PointCount = defaultStarPoints
		}
		if d.InnerRadius > d.OuterRadius {
			d.InnerRadius = d.OuterRadius / 2
		}
		return d
	case document.TextData:
		if !geom.IsFinite(d.FontSize) || d.FontSize <= 0 {
			d.FontSize = defaultFontSize
		}
		if d.FontFamily == "" {
			d.FontFamily = defaultFontFamily
		}
		if !d.Align.Valid() {
			d.Align = document.AlignLeft
		}
		return d
	case document.ImageData:
		d.NaturalWidth = nonNegative(d.NaturalWidth)
		d.NaturalHeight = nonNegative(d.NaturalHeight)
		return d
	default:
		panic(fmt.Sprintf("engine: unhandled variant %T", v))
	}
}

// sizeFromData fills a missing box from the variant data and a missing
// radius from the box, so both stay consistent after creation.
func sizeFromData(e *document.Element) {
	empty := e.Width == 0 && e.Height == 0

	switch d := e.Data.(type) {
	case document.RectData:
		if empty {
			e.Width, e.Height = defaultShapeSize, defaultShapeSize
		}
	case document.EllipseData:
		if empty {
			if d.Radius == 0 {
				d.Radius = defaultShapeSize / 2
			}
			e.Width, e.Height = 2*d.Radius, 2*d.Radius
		}
		d.Radius = min(e.Width, e.Height) / 2
		e.Data = d
	case document.StarData:
		if empty {
			if d.OuterRadius == 0 {
				d.OuterRadius = defaultShapeSize / 2
			}
			if d.InnerRadius == 0 {
				d.InnerRadius = d.OuterRadius / 2
			}
			e.Width, e.Height = 2*d.OuterRadius, 2*d.OuterRadius
		}
		d = fitStar(d, min(e.Width, e.Height)/2)
		e.Data = d
	case document.TextData:
		if empty {
			runes := max(utf8.RuneCountInString(d.Content), 1)
			e.Width = float64(runes) * d.FontSize * textAdvance
			e.Height = d.FontSize * textLineHeight
		}
	case document.ImageData:
		if empty {
			e.Width, e.Height = d.NaturalWidth, d.NaturalHeight
		}
	}
}

// fitStar scales the star radii so the outer radius becomes outer,
// keeping the inner/outer ratio.
func fitStar(d document.StarData, outer float64) document.StarData {
	ratio := 0.5
	if d.OuterRadius > 0 {
		ratio = d.InnerRadius / d.OuterRadius
	}
	d.OuterRadius = outer
	d.InnerRadius = outer * ratio
	return d
}

func normalizeRect(r geom.Rect) geom.Rect {
	r.X, r.Y = finiteOrZero(r.X), finiteOrZero(r.Y)
	r.Width, r.Height = finiteOrZero(r.Width), finiteOrZero(r.Height)
	if r.Width < 0 {
		r.X += r.Width
		r.Width = -r.Width
	}
	if r.Height < 0 {
		r.Y += r.Height
		r.Height = -r.Height
	}
	return r
}

func finiteOrZero(v float64) float64 {
	if !geom.IsFinite(v) {
		return 0
	}
	return v
}

func nonNegative(v float64) float64 {
	if !geom.IsFinite(v) || v < 0 {
		return 0
	}
	return v
}

func applyPatch(e document.Element, p document.Patch) (document.Element, error) {
	vk, ok := p.VariantKind()
	if !ok || (vk != "" && vk != e.Kind()) {
		return e, fmt.Errorf("%w: %s", ErrKindMismatch, e.Kind())
	}

	if p.Name != nil {
		e.Name = *p.Name
	}
	if p.X != nil {
		e.X = *p.X
	}
	if p.Y != nil {
		e.Y = *p.Y
	}
	sizeChanged := p.Width != nil || p.Height != nil
	if p.Width != nil {
		e.Width = *p.Width
	}
	if p.Height != nil {
		e.Height = *p.Height
	}
	if p.Opacity != nil {
		if math.IsNaN(*p.Opacity) {
			return e, fmt.Errorf("%w: opacity is NaN", ErrInvalidGeometry)
		}
		e.Style.Opacity = geom.Clamp(*p.Opacity, 0, 1)
	}
	if p.Fill != nil {
		e.Style.Fill = *p.Fill
	}
	if p.Stroke != nil {
		e.Style.Stroke = *p.Stroke
	}
	if p.StrokeWidth != nil {
		e.Style.StrokeWidth = *p.StrokeWidth
	}
	if p.Locked != nil {
		e.Locked = *p.Locked
	}

	// Validate the box before deriving radii from it.
	if err := e.Validate(); err != nil {
		return e, err
	}

	switch d := e.Data.(type) {
	case document.RectData, document.ImageData:
	case document.EllipseData:
		if p.Radius != nil {
			d.Radius = *p.Radius
			e.Width, e.Height = 2*d.Radius, 2*d.Radius
		} else if sizeChanged {
			d.Radius = min(e.Width, e.Height) / 2
		}
		e.Data = d
	case document.StarData:
		if p.OuterRadius != nil || p.InnerRadius != nil || p.PointCount != nil {
			if p.OuterRadius != nil {
				d.OuterRadius = *p.OuterRadius
				e.Width, e.Height = 2*d.OuterRadius, 2*d.OuterRadius
			}
			if p.InnerRadius != nil {
				d.InnerRadius = *p.InnerRadius
			}
			if p.PointCount != nil {
				d.PointCount = *p.PointCount
			}
		} else if sizeChanged {
			d = fitStar(d, min(e.Width, e.Height)/2)
		}
		e.Data = d
	case document.TextData:
		if p.Content != nil {
			d.Content = *p.Content
		}
		if p.FontSize != nil {
			d.FontSize = *p.FontSize
		}
		if p.FontFamily != nil {
			d.FontFamily = *p.FontFamily
		}
		if p.Align != nil {
			d.Align = *p.Align
		}
		e.Data = d
	default:
		panic(fmt.Sprintf("engine: unhandled variant %T", d))
	}

	if err := e.Validate(); err != nil {
		return e, err
	}
	return e, nil
}
