package engine

import (
	"encoding/json"
	"fmt"
	"image"
	"math"

	"github.com/inamate/canvas/internal/document"
	"github.com/inamate/canvas/internal/geom"
)

// Draw operations emitted by CompileDrawCommands.
const (
	OpPath  = "path"
	OpText  = "text"
	OpImage = "image"
)

// DrawCommand represents a single drawing operation for a rendering surface.
// Geometry is in element-local space (origin at the element's top-left
// corner); Transform maps it to screen pixels.
type DrawCommand struct {
	Op          string        `json:"op"`
	ElementID   string        `json:"elementId"`
	Transform   []float64     `json:"transform"`             // [a, b, c, d, e, f] affine matrix
	Width       float64       `json:"width"`                 // local box width
	Height      float64       `json:"height"`                // local box height
	Path        []PathCommand `json:"path,omitempty"`        // Path data for "path" ops
	Fill        string        `json:"fill,omitempty"`        // Fill color
	Stroke      string        `json:"stroke,omitempty"`      // Stroke color
	StrokeWidth float64       `json:"strokeWidth,omitempty"` // Stroke width in scene units
	Opacity     float64       `json:"opacity"`               // Global alpha

	Text       string         `json:"text,omitempty"`
	FontSize   float64        `json:"fontSize,omitempty"`
	FontFamily string         `json:"fontFamily,omitempty"`
	Align      document.Align `json:"align,omitempty"`

	ImageAssetID string      `json:"imageAssetId,omitempty"` // Asset ID for image lookup
	ImageURL     string      `json:"imageUrl,omitempty"`
	ImageWidth   float64     `json:"imageWidth,omitempty"`  // Image natural width
	ImageHeight  float64     `json:"imageHeight,omitempty"` // Image natural height
	Image        image.Image `json:"-"`                     // decoded pixels, when the scene holds them
}

// PathCommand represents a single path segment for rendering.
// Format matches Canvas2D: ["M", x, y], ["L", x, y], ["C", x1, y1, x2, y2, x, y], ["Z"].
type PathCommand []any

// CompileDrawCommands generates a draw command buffer for a scene seen
// through a viewport. Commands are in painter's order (back to front).
func CompileDrawCommands(scene document.Scene, vp *Viewport) []DrawCommand {
	view := vp.Matrix()
	commands := make([]DrawCommand, 0, len(scene))
	for _, e := range scene {
		commands = append(commands, compileElement(e, view))
	}
	return commands
}

func compileElement(e document.Element, view geom.Matrix2D) DrawCommand {
	cmd := DrawCommand{
		ElementID:   e.ID,
		Transform:   view.Multiply(geom.Translate(e.X, e.Y)).ToSlice(),
		Width:       e.Width,
		Height:      e.Height,
		Fill:        e.Style.Fill,
		Stroke:      e.Style.Stroke,
		StrokeWidth: e.Style.StrokeWidth,
		Opacity:     e.Style.Opacity,
	}

	switch d := e.Data.(type) {
	case document.RectData:
		cmd.Op = OpPath
		cmd.Path = rectPath(e.Width, e.Height)
	case document.EllipseData:
		cmd.Op = OpPath
		cmd.Path = ellipsePath(e.Width, e.Height)
	case document.StarData:
		cmd.Op = OpPath
		cmd.Path = starPath(e.Width, e.Height, d)
	case document.TextData:
		cmd.Op = OpText
		cmd.Text = d.Content
		cmd.FontSize = d.FontSize
		cmd.FontFamily = d.FontFamily
		cmd.Align = d.Align
	case document.ImageData:
		cmd.Op = OpImage
		cmd.ImageAssetID = d.Source.AssetID
		cmd.ImageURL = d.Source.URL
		cmd.ImageWidth = d.NaturalWidth
		cmd.ImageHeight = d.NaturalHeight
		cmd.Image = d.Handle
	default:
		panic(fmt.Sprintf("engine: unhandled variant %T", d))
	}
	return cmd
}

// rectPath generates path commands for a rectangle.
func rectPath(w, h float64) []PathCommand {
	return []PathCommand{
		{"M", 0.0, 0.0},
		{"L", w, 0.0},
		{"L", w, h},
		{"L", 0.0, h},
		{"Z"},
	}
}

// ellipsePath generates path commands for the ellipse inscribed in a
// w x h box using bezier curves.
func ellipsePath(w, h float64) []PathCommand {
	rx, ry := w/2, h/2
	cx, cy := rx, ry

	// Magic number for bezier approximation of a circle/ellipse
	// k = 4 * (sqrt(2) - 1) / 3 ≈ 0.5522847498
	k := 0.5522847498
	kx, ky := rx*k, ry*k

	return []PathCommand{
		{"M", cx + rx, cy},
		{"C", cx + rx, cy + ky, cx + kx, cy + ry, cx, cy + ry},
		{"C", cx - kx, cy + ry, cx - rx, cy + ky, cx - rx, cy},
		{"C", cx - rx, cy - ky, cx - kx, cy - ry, cx, cy - ry},
		{"C", cx + kx, cy - ry, cx + rx, cy - ky, cx + rx, cy},
		{"Z"},
	}
}

// starPath generates a star polygon inscribed in a w x h box, first point
// straight up.
func starPath(w, h float64, d document.StarData) []PathCommand {
	n := max(d.PointCount, 3)
	ratio := 0.5
	if d.OuterRadius > 0 {
		ratio = d.InnerRadius / d.OuterRadius
	}
	rx, ry := w/2, h/2

	path := make([]PathCommand, 0, 2*n+1)
	for i := range 2 * n {
		angle := -math.Pi/2 + float64(i)*math.Pi/float64(n)
		scale := 1.0
		if i%2 == 1 {
			scale = ratio
		}
		x := rx + math.Cos(angle)*rx*scale
		y := ry + math.Sin(angle)*ry*scale
		op := "L"
		if i == 0 {
			op = "M"
		}
		path = append(path, PathCommand{op, x, y})
	}
	return append(path, PathCommand{"Z"})
}

// DrawCommandsToJSON serializes draw commands to JSON.
func DrawCommandsToJSON(commands []DrawCommand) (string, error) {
	data, err := json.Marshal(commands)
	if err != nil {
		return "[]", err
	}
	return string(data), nil
}
