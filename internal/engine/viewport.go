package engine

import (
	"math"

	"github.com/inamate/canvas/internal/geom"
)

const (
	DefaultZoomMin = 10
	DefaultZoomMax = 200
	defaultZoom    = 100
)

// Viewport maps scene space to screen space:
// screen = scene * zoom/100 + pan.
type Viewport struct {
	zoom    float64 // percent
	pan     geom.Point
	zoomMin float64
	zoomMax float64
}

// NewViewport creates a viewport at 100% with no pan. Bounds that are not
// positive or not ordered fall back to the defaults.
func NewViewport(zoomMin, zoomMax float64) *Viewport {
	if !(zoomMin > 0) || !(zoomMax >= zoomMin) || math.IsInf(zoomMax, 0) {
		zoomMin, zoomMax = DefaultZoomMin, DefaultZoomMax
	}
	v := &Viewport{zoomMin: zoomMin, zoomMax: zoomMax}
	v.Reset()
	return v
}

// Reset returns to 100% (clamped into the bounds) and zero pan.
func (v *Viewport) Reset() {
	v.pan = geom.Point{}
	v.SetZoom(defaultZoom)
}

// Zoom returns the zoom factor in percent.
func (v *Viewport) Zoom() float64 { return v.zoom }

// Bounds returns the zoom limits in percent.
func (v *Viewport) Bounds() (zoomMin, zoomMax float64) { return v.zoomMin, v.zoomMax }

// PanOffset returns the pan offset in screen pixels.
func (v *Viewport) PanOffset() geom.Point { return v.pan }

// SetZoom sets the zoom, clamped into the bounds. NaN is ignored.
func (v *Viewport) SetZoom(percent float64) {
	if math.IsNaN(percent) {
		return
	}
	v.zoom = geom.Clamp(percent, v.zoomMin, v.zoomMax)
}

// ZoomBy changes the zoom by deltaPercent points.
func (v *Viewport) ZoomBy(deltaPercent float64) {
	v.SetZoom(v.zoom + deltaPercent)
}

// ZoomAt sets the zoom while keeping the scene point under screen fixed.
func (v *Viewport) ZoomAt(screen geom.Point, percent float64) {
	anchor := v.ScreenToScene(screen)
	v.SetZoom(percent)
	v.pan = screen.Sub(anchor.Mul(v.scale()))
}

// Pan moves the view by a screen-space delta. Non-finite deltas are ignored.
func (v *Viewport) Pan(dx, dy float64) {
	d := geom.Point{X: dx, Y: dy}
	if !d.IsFinite() {
		return
	}
	v.pan = v.pan.Add(d)
}

// SetPan replaces the pan offset.
func (v *Viewport) SetPan(p geom.Point) {
	if p.IsFinite() {
		v.pan = p
	}
}

func (v *Viewport) scale() float64 {
	return v.zoom / 100
}

// SceneToScreen converts a scene point to screen pixels.
func (v *Viewport) SceneToScreen(p geom.Point) geom.Point {
	return p.Mul(v.scale()).Add(v.pan)
}

// ScreenToScene converts screen pixels to a scene point.
func (v *Viewport) ScreenToScene(p geom.Point) geom.Point {
	s := v.scale()
	return geom.Point{X: (p.X - v.pan.X) / s, Y: (p.Y - v.pan.Y) / s}
}

// Matrix returns the scene-to-screen transform.
func (v *Viewport) Matrix() geom.Matrix2D {
	s := v.scale()
	return geom.Translate(v.pan.X, v.pan.Y).Multiply(geom.Scale(s, s))
}

// ViewportState is the serializable view of a viewport.
type ViewportState struct {
	Zoom float64    `json:"zoom"`
	Pan  geom.Point `json:"pan"`
}

func (v *Viewport) State() ViewportState {
	return ViewportState{Zoom: v.zoom, Pan: v.pan}
}
