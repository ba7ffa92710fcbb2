package export

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/inamate/canvas/internal/document"
	"github.com/inamate/canvas/internal/engine"
	"github.com/inamate/canvas/internal/geom"
)

// DefaultMaxPixels bounds the size of an exported image.
const DefaultMaxPixels = 16 << 20

const (
	curveSegments  = 16
	textLineHeight = 1.2
)

// ErrTooLarge is returned when the requested image exceeds the pixel limit.
var ErrTooLarge = errors.New("export: image too large")

// ImageResolver looks up decoded pixels for an asset id. Image elements
// whose handle was not kept in the scene are resolved through it.
type ImageResolver interface {
	Resolve(assetID string) (image.Image, bool)
}

var (
	goRegular     *opentype.Font
	goRegularOnce sync.Once
	goRegularErr  error
)

func regularFont() (*opentype.Font, error) {
	goRegularOnce.Do(func() {
		goRegular, goRegularErr = opentype.Parse(goregular.TTF)
	})
	return goRegular, goRegularErr
}

// Rasterizer paints draw commands onto an RGBA image. Text is set in Go
// Regular whatever the requested family. A Rasterizer caches font faces
// and is not safe for concurrent use.
type Rasterizer struct {
	resolver   ImageResolver
	background color.Color
	maxPixels  int
	faces      map[float64]font.Face
}

type Option func(*Rasterizer)

// WithResolver sets the asset resolver for image elements.
func WithResolver(r ImageResolver) Option {
	return func(z *Rasterizer) { z.resolver = r }
}

// WithBackground fills the image before painting. The default is
// transparent.
func WithBackground(c color.Color) Option {
	return func(z *Rasterizer) { z.background = c }
}

// WithMaxPixels caps width*height of rasterized images.
func WithMaxPixels(n int) Option {
	return func(z *Rasterizer) { z.maxPixels = n }
}

func NewRasterizer(opts ...Option) *Rasterizer {
	z := &Rasterizer{
		maxPixels: DefaultMaxPixels,
		faces:     make(map[float64]font.Face),
	}
	for _, opt := range opts {
		opt(z)
	}
	return z
}

// Rasterize renders scene as seen through vp onto a size.X x size.Y image.
func Rasterize(scene document.Scene, vp *engine.Viewport, size image.Point, opts ...Option) (*image.RGBA, error) {
	return NewRasterizer(opts...).Rasterize(scene, vp, size)
}

// Rasterize renders scene as seen through vp onto a new image.
func (z *Rasterizer) Rasterize(scene document.Scene, vp *engine.Viewport, size image.Point) (*image.RGBA, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("export: invalid size %dx%d", size.X, size.Y)
	}
	if z.maxPixels > 0 && size.X*size.Y > z.maxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, size.X, size.Y, z.maxPixels)
	}

	dst := image.NewRGBA(image.Rectangle{Max: size})
	if z.background != nil {
		draw.Draw(dst, dst.Bounds(), image.NewUniform(z.background), image.Point{}, draw.Src)
	}
	z.Draw(dst, engine.CompileDrawCommands(scene, vp))
	return dst, nil
}

// Draw paints cmds onto dst in order.
func (z *Rasterizer) Draw(dst *image.RGBA, cmds []engine.DrawCommand) {
	for _, cmd := range cmds {
		if cmd.Opacity <= 0 {
			continue
		}
		m := matrixOf(cmd.Transform)
		switch cmd.Op {
		case engine.OpPath:
			z.drawPath(dst, cmd, m)
		case engine.OpText:
			z.drawText(dst, cmd, m)
		case engine.OpImage:
			z.drawImage(dst, cmd, m)
		default:
			slog.Warn("export: unknown draw op", "op", cmd.Op, "element", cmd.ElementID)
		}
	}
}

func matrixOf(t []float64) geom.Matrix2D {
	if len(t) != 6 {
		return geom.Identity()
	}
	return geom.Matrix2D{t[0], t[1], t[2], t[3], t[4], t[5]}
}

// matrixScale returns the uniform scale factor of an affine transform.
func matrixScale(m geom.Matrix2D) float64 {
	return math.Sqrt(math.Abs(m.Determinant()))
}

// polyline is one flattened subpath in screen space.
type polyline struct {
	points []geom.Point
	closed bool
}

// flatten converts Canvas2D-style path commands into screen-space
// polylines, approximating curves with straight segments.
func flatten(path []engine.PathCommand, m geom.Matrix2D) []polyline {
	var (
		out  []polyline
		cur  *polyline
		last geom.Point
	)
	arg := func(c engine.PathCommand, i int) float64 {
		if i >= len(c) {
			return 0
		}
		v, _ := c[i].(float64)
		return v
	}

	for _, c := range path {
		if len(c) == 0 {
			continue
		}
		op, _ := c[0].(string)
		switch op {
		case "M":
			out = append(out, polyline{})
			cur = &out[len(out)-1]
			last = geom.Point{X: arg(c, 1), Y: arg(c, 2)}
			cur.points = append(cur.points, m.Apply(last))
		case "L":
			if cur == nil {
				continue
			}
			last = geom.Point{X: arg(c, 1), Y: arg(c, 2)}
			cur.points = append(cur.points, m.Apply(last))
		case "C":
			if cur == nil {
				continue
			}
			p1 := geom.Point{X: arg(c, 1), Y: arg(c, 2)}
			p2 := geom.Point{X: arg(c, 3), Y: arg(c, 4)}
			p3 := geom.Point{X: arg(c, 5), Y: arg(c, 6)}
			for i := 1; i <= curveSegments; i++ {
				cur.points = append(cur.points, m.Apply(cubicAt(last, p1, p2, p3, float64(i)/curveSegments)))
			}
			last = p3
		case "Z":
			if cur != nil {
				cur.closed = true
			}
		}
	}
	return out
}

func cubicAt(p0, p1, p2, p3 geom.Point, t float64) geom.Point {
	u := 1 - t
	a, b, c, d := u*u*u, 3*u*u*t, 3*u*t*t, t*t*t
	return geom.Point{
		X: a*p0.X + b*p1.X + c*p2.X + d*p3.X,
		Y: a*p0.Y + b*p1.Y + c*p2.Y + d*p3.Y,
	}
}

func (z *Rasterizer) drawPath(dst *image.RGBA, cmd engine.DrawCommand, m geom.Matrix2D) {
	lines := flatten(cmd.Path, m)
	if len(lines) == 0 {
		return
	}
	size := dst.Bounds().Size()

	if fill, ok := z.paint(cmd.Fill, cmd); ok {
		r := vector.NewRasterizer(size.X, size.Y)
		for _, pl := range lines {
			addPolygon(r, pl.points)
		}
		r.Draw(dst, dst.Bounds(), image.NewUniform(fill), image.Point{})
	}

	if cmd.StrokeWidth <= 0 {
		return
	}
	stroke, ok := z.paint(cmd.Stroke, cmd)
	if !ok {
		return
	}
	r := vector.NewRasterizer(size.X, size.Y)
	half := cmd.StrokeWidth * matrixScale(m) / 2
	for _, pl := range lines {
		strokePolyline(r, pl, half)
	}
	r.Draw(dst, dst.Bounds(), image.NewUniform(stroke), image.Point{})
}

// paint resolves a color string to the source color of a command.
func (z *Rasterizer) paint(s string, cmd engine.DrawCommand) (color.NRGBA, bool) {
	c, ok, err := ParseColor(s)
	if err != nil {
		slog.Warn("export: bad color", "color", s, "element", cmd.ElementID, "error", err)
		return color.NRGBA{}, false
	}
	if !ok {
		return color.NRGBA{}, false
	}
	return withOpacity(c, cmd.Opacity), true
}

func addPolygon(r *vector.Rasterizer, pts []geom.Point) {
	if len(pts) < 3 {
		return
	}
	r.MoveTo(float32(pts[0].X), float32(pts[0].Y))
	for _, p := range pts[1:] {
		r.LineTo(float32(p.X), float32(p.Y))
	}
	r.ClosePath()
}

// strokePolyline adds one quad per segment plus a joint polygon at every
// vertex. All shapes share the same winding so overlaps do not cancel.
func strokePolyline(r *vector.Rasterizer, pl polyline, half float64) {
	pts := pl.points
	if pl.closed && len(pts) > 1 && !pts[0].NearlyEquals(pts[len(pts)-1]) {
		pts = append(pts[:len(pts):len(pts)], pts[0])
	}
	for i := 1; i < len(pts); i++ {
		a, b := pts[i-1], pts[i]
		d := b.Sub(a)
		l := math.Hypot(d.X, d.Y)
		if l == 0 {
			continue
		}
		n := geom.Point{X: -d.Y / l * half, Y: d.X / l * half}
		addPolygon(r, []geom.Point{a.Sub(n), b.Sub(n), b.Add(n), a.Add(n)})
	}
	for _, p := range pts {
		addPolygon(r, joint(p, half))
	}
}

func joint(c geom.Point, radius float64) []geom.Point {
	const sides = 8
	pts := make([]geom.Point, sides)
	for i := range sides {
		a := 2 * math.Pi * float64(i) / sides
		pts[i] = geom.Point{X: c.X + radius*math.Cos(a), Y: c.Y + radius*math.Sin(a)}
	}
	return pts
}

func (z *Rasterizer) face(size float64) (font.Face, error) {
	size = math.Round(size*4) / 4
	if f, ok := z.faces[size]; ok {
		return f, nil
	}
	fnt, err := regularFont()
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	f, err := opentype.NewFace(fnt, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("new face: %w", err)
	}
	z.faces[size] = f
	return f, nil
}

func (z *Rasterizer) drawText(dst *image.RGBA, cmd engine.DrawCommand, m geom.Matrix2D) {
	fill, ok := z.paint(cmd.Fill, cmd)
	if !ok || cmd.Text == "" {
		return
	}
	scale := matrixScale(m)
	size := cmd.FontSize * scale
	if size < 1 {
		return
	}
	face, err := z.face(size)
	if err != nil {
		slog.Error("export: font", "error", err)
		return
	}

	origin := m.Apply(geom.Point{})
	boxWidth := cmd.Width * scale
	ascent := face.Metrics().Ascent.Ceil()
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(fill),
		Face: face,
	}
	for i, line := range strings.Split(cmd.Text, "\n") {
		width := float64(font.MeasureString(face, line).Ceil())
		x := origin.X
		switch cmd.Align {
		case document.AlignCenter:
			x += (boxWidth - width) / 2
		case document.AlignRight:
			x += boxWidth - width
		}
		y := origin.Y + float64(ascent) + float64(i)*size*textLineHeight
		d.Dot = fixed.Point26_6{X: fixed.Int26_6(x * 64), Y: fixed.Int26_6(y * 64)}
		d.DrawString(line)
	}
}

func (z *Rasterizer) drawImage(dst *image.RGBA, cmd engine.DrawCommand, m geom.Matrix2D) {
	box := m.ApplyRect(geom.Rect{Width: cmd.Width, Height: cmd.Height})
	rect := image.Rect(
		int(math.Round(box.X)), int(math.Round(box.Y)),
		int(math.Round(box.X+box.Width)), int(math.Round(box.Y+box.Height)),
	)
	if rect.Empty() || !rect.Overlaps(dst.Bounds()) {
		return
	}

	src := cmd.Image
	if src == nil && z.resolver != nil && cmd.ImageAssetID != "" {
		src, _ = z.resolver.Resolve(cmd.ImageAssetID)
	}
	if src == nil {
		// Placeholder for pixels that are not available.
		placeholder := withOpacity(color.NRGBA{R: 224, G: 224, B: 224, A: 255}, cmd.Opacity)
		draw.Draw(dst, rect, image.NewUniform(placeholder), image.Point{}, draw.Over)
		return
	}

	var opts *draw.Options
	if cmd.Opacity < 1 {
		opts = &draw.Options{SrcMask: image.NewUniform(color.Alpha{A: uint8(cmd.Opacity*255 + 0.5)})}
	}
	draw.CatmullRom.Scale(dst, rect, src, src.Bounds(), draw.Over, opts)
}

// FitScene returns a viewport and image size that frame the whole scene
// at the given zoom percent with padding pixels on every side.
func FitScene(scene document.Scene, zoom float64, padding int) (*engine.Viewport, image.Point) {
	vp := engine.NewViewport(engine.DefaultZoomMin, engine.DefaultZoomMax)
	vp.SetZoom(zoom)
	s := vp.Zoom() / 100

	var bounds geom.Rect
	for _, e := range scene {
		bounds = bounds.Union(e.Bounds())
	}
	if bounds.IsEmpty() {
		return vp, image.Point{X: max(2*padding, 1), Y: max(2*padding, 1)}
	}

	pad := float64(padding)
	vp.SetPan(geom.Point{X: pad - bounds.X*s, Y: pad - bounds.Y*s})
	return vp, image.Point{
		X: int(math.Ceil(bounds.Width*s + 2*pad)),
		Y: int(math.Ceil(bounds.Height*s + 2*pad)),
	}
}

// WritePNG encodes img as PNG.
func WritePNG(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}
