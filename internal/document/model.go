package document

import (
	"errors"
	"fmt"
	"image"
	"reflect"
	"slices"

	"github.com/inamate/canvas/internal/geom"
)

// ErrInvalidGeometry is returned for negative sizes and non-finite numbers.
var ErrInvalidGeometry = errors.New("invalid geometry")

type Kind string

const (
	KindRect    Kind = "rectangle"
	KindEllipse Kind = "ellipse"
	KindStar    Kind = "star"
	KindText    Kind = "text"
	KindImage   Kind = "image"
)

// Kinds lists every element kind in declaration order.
var Kinds = []Kind{KindRect, KindEllipse, KindStar, KindText, KindImage}

type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

func (a Align) Valid() bool {
	return a == AlignLeft || a == AlignCenter || a == AlignRight
}

type Style struct {
	Fill        string  `json:"fill"`
	Stroke      string  `json:"stroke"`
	StrokeWidth float64 `json:"strokeWidth"`
	Opacity     float64 `json:"opacity"`
}

// Element is one editable object in a scene. The variant-specific part
// lives in Data, whose dynamic type determines the element kind.
type Element struct {
	ID     string
	Name   string
	X      float64
	Y      float64
	Width  float64
	Height float64
	Style  Style
	Locked bool
	Data   Variant
}

// Variant is implemented only by the data types of this package.
type Variant interface {
	Kind() Kind
	validate() error
}

type RectData struct{}

type EllipseData struct {
	Radius float64 `json:"radius"`
}

type StarData struct {
	OuterRadius float64 `json:"outerRadius"`
	InnerRadius float64 `json:"innerRadius"`
	PointCount  int     `json:"pointCount"`
}

type TextData struct {
	Content    string  `json:"content"`
	FontSize   float64 `json:"fontSize"`
	FontFamily string  `json:"fontFamily"`
	Align      Align   `json:"align"`
}

// ImageSource describes where an image came from. The engine keeps it so
// exporters can resolve pixels again after a scene is reloaded.
type ImageSource struct {
	AssetID string `json:"assetId,omitempty"`
	URL     string `json:"url,omitempty"`
}

// ImageData references decoded pixels owned by the image collaborator.
// Handle is shared between snapshots and never serialized.
type ImageData struct {
	Source        ImageSource `json:"source"`
	NaturalWidth  float64     `json:"naturalWidth"`
	NaturalHeight float64     `json:"naturalHeight"`
	Handle        image.Image `json:"-"`
}

func (RectData) Kind() Kind    { return KindRect }
func (EllipseData) Kind() Kind { return KindEllipse }
func (StarData) Kind() Kind    { return KindStar }
func (TextData) Kind() Kind    { return KindText }
func (ImageData) Kind() Kind   { return KindImage }

func (RectData) validate() error { return nil }

func (d EllipseData) validate() error {
	if !geom.IsFinite(d.Radius) || d.Radius < 0 {
		return fmt.Errorf("%w: radius %v", ErrInvalidGeometry, d.Radius)
	}
	return nil
}

func (d StarData) validate() error {
	if !geom.IsFinite(d.OuterRadius) || d.OuterRadius < 0 {
		return fmt.Errorf("%w: outer radius %v", ErrInvalidGeometry, d.OuterRadius)
	}
	if !geom.IsFinite(d.InnerRadius) || d.InnerRadius < 0 || d.InnerRadius > d.OuterRadius {
		return fmt.Errorf("%w: inner radius %v", ErrInvalidGeometry, d.InnerRadius)
	}
	if d.PointCount < 3 {
		return fmt.Errorf("%w: star needs at least 3 points, got %d", ErrInvalidGeometry, d.PointCount)
	}
	return nil
}

func (d TextData) validate() error {
	if !geom.IsFinite(d.FontSize) || d.FontSize <= 0 {
		return fmt.Errorf("%w: font size %v", ErrInvalidGeometry, d.FontSize)
	}
	if !d.Align.Valid() {
		return fmt.Errorf("%w: align %q", ErrInvalidGeometry, d.Align)
	}
	return nil
}

func (d ImageData) validate() error {
	if !geom.IsFinite(d.NaturalWidth) || !geom.IsFinite(d.NaturalHeight) ||
		d.NaturalWidth < 0 || d.NaturalHeight < 0 {
		return fmt.Errorf("%w: natural size %vx%v", ErrInvalidGeometry, d.NaturalWidth, d.NaturalHeight)
	}
	return nil
}

// Kind returns the element kind, or "" when no variant data is set.
func (e Element) Kind() Kind {
	if e.Data == nil {
		return ""
	}
	return e.Data.Kind()
}

// Bounds returns the element's scene-space box.
func (e Element) Bounds() geom.Rect {
	return geom.Rect{X: e.X, Y: e.Y, Width: e.Width, Height: e.Height}
}

// Validate checks the element's geometry, style and variant data.
func (e Element) Validate() error {
	if !geom.IsFinite(e.X) || !geom.IsFinite(e.Y) {
		return fmt.Errorf("%w: position (%v, %v)", ErrInvalidGeometry, e.X, e.Y)
	}
	if !geom.IsFinite(e.Width) || !geom.IsFinite(e.Height) || e.Width < 0 || e.Height < 0 {
		return fmt.Errorf("%w: size %vx%v", ErrInvalidGeometry, e.Width, e.Height)
	}
	if !geom.IsFinite(e.Style.Opacity) || e.Style.Opacity < 0 || e.Style.Opacity > 1 {
		return fmt.Errorf("%w: opacity %v", ErrInvalidGeometry, e.Style.Opacity)
	}
	if !geom.IsFinite(e.Style.StrokeWidth) || e.Style.StrokeWidth < 0 {
		return fmt.Errorf("%w: stroke width %v", ErrInvalidGeometry, e.Style.StrokeWidth)
	}
	if e.Data == nil {
		return fmt.Errorf("%w: element %s has no kind", ErrInvalidGeometry, e.ID)
	}
	return e.Data.validate()
}

// Scene is the ordered element list. Order is paint order, back to front.
type Scene []Element

// Clone returns an independent copy. Variant data are plain values, so a
// shallow element copy is already deep; image handles stay shared.
func (s Scene) Clone() Scene {
	if s == nil {
		return Scene{}
	}
	return slices.Clone(s)
}

// IndexOf returns the paint index of id, or -1.
func (s Scene) IndexOf(id string) int {
	return slices.IndexFunc(s, func(e Element) bool { return e.ID == id })
}

// Find returns the element with the given id.
func (s Scene) Find(id string) (Element, bool) {
	i := s.IndexOf(id)
	if i < 0 {
		return Element{}, false
	}
	return s[i], true
}

// IDs returns element ids in paint order.
func (s Scene) IDs() []string {
	ids := make([]string, len(s))
	for i, e := range s {
		ids[i] = e.ID
	}
	return ids
}

// Equal reports whether both scenes hold the same elements in the same order.
func (s Scene) Equal(other Scene) bool {
	return slices.EqualFunc(s, other, Element.Equal)
}

// Equal compares two elements field by field. Image handles are compared
// by identity, never by value.
func (e Element) Equal(o Element) bool {
	ed, od := e.Data, o.Data
	e.Data, o.Data = nil, nil
	return e == o && variantEqual(ed, od)
}

func variantEqual(a, b Variant) bool {
	ai, aImage := a.(ImageData)
	bi, bImage := b.(ImageData)
	if aImage || bImage {
		return aImage && bImage &&
			ai.Source == bi.Source &&
			ai.NaturalWidth == bi.NaturalWidth &&
			ai.NaturalHeight == bi.NaturalHeight &&
			sameHandle(ai.Handle, bi.Handle)
	}
	return a == b
}

// sameHandle reports whether a and b are the same decoded image. Handles
// whose dynamic type is not comparable only match when both are nil.
func sameHandle(a, b image.Image) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	if va.Kind() == reflect.Pointer {
		return va.Pointer() == vb.Pointer()
	}
	return va.Comparable() && va.Equal(vb)
}

// Validate checks every element and the uniqueness of ids.
func (s Scene) Validate() error {
	seen := make(map[string]struct{}, len(s))
	for _, e := range s {
		if e.ID == "" {
			return errors.New("element without id")
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("duplicate element id %q", e.ID)
		}
		seen[e.ID] = struct{}{}
		if err := e.Validate(); err != nil {
			return fmt.Errorf("element %s: %w", e.ID, err)
		}
	}
	return nil
}
